package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Config - структура для хранения конфигурации приложения
type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Store Config
	StoreBackend        string        `env:"STORE_BACKEND" envDefault:"postgres"`
	DatabaseURL         string        `env:"DATABASE_URL"`
	FirestoreProjectID  string        `env:"FIRESTORE_PROJECT_ID"`
	FirestoreDatabaseID string        `env:"FIRESTORE_DATABASE_ID" envDefault:"(default)"`
	StoreRetryAttempts  int           `env:"STORE_RETRY_ATTEMPTS" envDefault:"3"`
	StoreRetryBaseDelay time.Duration `env:"STORE_RETRY_BASE_DELAY" envDefault:"200ms"`

	// Redis Config
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Grid & Risk Config
	GridCellMeters     float64       `env:"GRID_CELL_METERS" envDefault:"150"`
	GridMaxRegionCells int           `env:"GRID_MAX_REGION_CELLS" envDefault:"10000"`
	RiskHalfLife       time.Duration `env:"RISK_HALF_LIFE" envDefault:"24h"`
	RiskColdFloor      float64       `env:"RISK_COLD_FLOOR" envDefault:"0.05"`
	RiskTickInterval   time.Duration `env:"RISK_TICK_INTERVAL" envDefault:"1m"`
	RiskDeltaThreshold float64       `env:"RISK_DELTA_THRESHOLD" envDefault:"0.01"`
	RiskWarmupWindow   time.Duration `env:"RISK_WARMUP_WINDOW" envDefault:"168h"`
	RiskRetention      time.Duration `env:"RISK_RETENTION"` // 0 - 32 периода полураспада

	// Fan-out Config
	DeltaLogSize       int           `env:"DELTA_LOG_SIZE" envDefault:"64"`
	SubscriptionBuffer int           `env:"SUBSCRIPTION_BUFFER" envDefault:"256"`
	DeltaLogTTL        time.Duration `env:"DELTA_LOG_TTL" envDefault:"1h"`

	// SOS Config
	SOSMaxConcurrentSends int             `env:"SOS_MAX_CONCURRENT_SENDS" envDefault:"5"`
	SOSAttemptTimeout     time.Duration   `env:"SOS_ATTEMPT_TIMEOUT" envDefault:"10s"`
	SOSRetryDelays        []time.Duration `env:"SOS_RETRY_DELAYS" envDefault:"1s,3s"`
	SOSDispatchDeadline   time.Duration   `env:"SOS_DISPATCH_DEADLINE" envDefault:"30s"`
	SOSIdempotencyTTL     time.Duration   `env:"SOS_IDEMPOTENCY_TTL" envDefault:"10m"`
	LocationFixTTL        time.Duration   `env:"LOCATION_FIX_TTL" envDefault:"15m"`

	// SMS Gateway Config
	SMSGatewayURL   string `env:"SMS_GATEWAY_URL"`
	SMSGatewayToken string `env:"SMS_GATEWAY_TOKEN"`
	SMSSenderID     string `env:"SMS_SENDER_ID" envDefault:"SafeSteps"`

	// Webhook Config
	WebhookURL        string        `env:"WEBHOOK_URL"`
	WebhookSecret     string        `env:"WEBHOOK_SECRET"`
	WebhookTimeout    time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`
	WebhookMaxRetries int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"3"`
	WebhookBaseDelay  time.Duration `env:"WEBHOOK_BASE_DELAY" envDefault:"1s"`

	// Auth Config
	APIKeys   []string `env:"API_KEYS"`
	JWTSecret string   `env:"JWT_SECRET"`
}

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла (если есть)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}

	cfg := &Config{
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		StoreBackend:          strings.ToLower(getEnv("STORE_BACKEND", BackendPostgres)),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		FirestoreProjectID:    os.Getenv("FIRESTORE_PROJECT_ID"),
		FirestoreDatabaseID:   getEnv("FIRESTORE_DATABASE_ID", "(default)"),
		StoreRetryAttempts:    getEnvAsInt("STORE_RETRY_ATTEMPTS", 3),
		StoreRetryBaseDelay:   getEnvAsDuration("STORE_RETRY_BASE_DELAY", 200*time.Millisecond),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getEnvAsInt("REDIS_DB", 0),
		GridCellMeters:        getEnvAsFloat("GRID_CELL_METERS", 150),
		GridMaxRegionCells:    getEnvAsInt("GRID_MAX_REGION_CELLS", 10000),
		RiskHalfLife:          getEnvAsDuration("RISK_HALF_LIFE", 24*time.Hour),
		RiskColdFloor:         getEnvAsFloat("RISK_COLD_FLOOR", 0.05),
		RiskTickInterval:      getEnvAsDuration("RISK_TICK_INTERVAL", time.Minute),
		RiskDeltaThreshold:    getEnvAsFloat("RISK_DELTA_THRESHOLD", 0.01),
		RiskWarmupWindow:      getEnvAsDuration("RISK_WARMUP_WINDOW", 7*24*time.Hour),
		RiskRetention:         getEnvAsDuration("RISK_RETENTION", 0),
		DeltaLogSize:          getEnvAsInt("DELTA_LOG_SIZE", 64),
		SubscriptionBuffer:    getEnvAsInt("SUBSCRIPTION_BUFFER", 256),
		DeltaLogTTL:           getEnvAsDuration("DELTA_LOG_TTL", time.Hour),
		SOSMaxConcurrentSends: getEnvAsInt("SOS_MAX_CONCURRENT_SENDS", 5),
		SOSAttemptTimeout:     getEnvAsDuration("SOS_ATTEMPT_TIMEOUT", 10*time.Second),
		SOSRetryDelays:        getEnvAsDurations("SOS_RETRY_DELAYS", []time.Duration{time.Second, 3 * time.Second}),
		SOSDispatchDeadline:   getEnvAsDuration("SOS_DISPATCH_DEADLINE", 30*time.Second),
		SOSIdempotencyTTL:     getEnvAsDuration("SOS_IDEMPOTENCY_TTL", 10*time.Minute),
		LocationFixTTL:        getEnvAsDuration("LOCATION_FIX_TTL", 15*time.Minute),
		SMSGatewayURL:         os.Getenv("SMS_GATEWAY_URL"),
		SMSGatewayToken:       os.Getenv("SMS_GATEWAY_TOKEN"),
		SMSSenderID:           getEnv("SMS_SENDER_ID", "SafeSteps"),
		WebhookURL:            os.Getenv("WEBHOOK_URL"),
		WebhookSecret:         os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeout:        getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		WebhookMaxRetries:     getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookBaseDelay:      getEnvAsDuration("WEBHOOK_BASE_DELAY", time.Second),
		JWTSecret:             os.Getenv("JWT_SECRET"),
	}

	// Загрузка API ключей
	apiKeysStr := os.Getenv("API_KEYS")
	if apiKeysStr != "" {
		cfg.APIKeys = strings.Split(apiKeysStr, ",")
		for i, key := range cfg.APIKeys {
			cfg.APIKeys[i] = strings.TrimSpace(key)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required")
		}
	case BackendFirestore:
		if c.FirestoreProjectID == "" {
			return fmt.Errorf("FIRESTORE_PROJECT_ID environment variable is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.GridCellMeters <= 0 {
		return fmt.Errorf("GRID_CELL_METERS must be positive")
	}
	if c.RiskHalfLife <= 0 {
		return fmt.Errorf("RISK_HALF_LIFE must be positive")
	}
	if c.SOSMaxConcurrentSends <= 0 {
		return fmt.Errorf("SOS_MAX_CONCURRENT_SENDS must be positive")
	}
	return nil
}

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает значение переменной окружения как int или значение по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsDuration возвращает значение переменной окружения как time.Duration или значение по умолчанию
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}

// getEnvAsDurations разбирает список через запятую; пустая строка означает "без повторов"
func getEnvAsDurations(key string, defaultValue []time.Duration) []time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var out []time.Duration
	for _, part := range strings.Split(value, ",") {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			return defaultValue
		}
		out = append(out, d)
	}
	return out
}
