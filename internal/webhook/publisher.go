package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shenikar/safesteps/internal/models"
)

const (
	webhookQueueKey = "sos_alert_events"
)

// DeliveryOutcome - результат доставки одному контакту без номера телефона
type DeliveryOutcome struct {
	Name     string                `json:"name"`
	Status   models.DeliveryStatus `json:"status"`
	Attempts int                   `json:"attempts"`
	Error    string                `json:"error,omitempty"`
}

// AlertEvent - событие о завершенной рассылке SOS
type AlertEvent struct {
	AlertID        string                `json:"alert_id"`
	OwnerID        string                `json:"owner_id"`
	Coordinate     *models.Coordinate    `json:"coordinate,omitempty"`
	LocationStatus models.LocationStatus `json:"location_status"`
	Delivered      int                   `json:"delivered"`
	Failed         int                   `json:"failed"`
	Deliveries     []DeliveryOutcome     `json:"deliveries"`
	CreatedAt      time.Time             `json:"created_at"`
	FinalizedAt    *time.Time            `json:"finalized_at,omitempty"`
}

func NewAlertEvent(alert *models.SOSAlert) AlertEvent {
	delivered, failed := alert.Counts()
	ev := AlertEvent{
		AlertID:        alert.ID,
		OwnerID:        alert.OwnerID,
		Coordinate:     alert.Coordinate,
		LocationStatus: alert.LocationStatus,
		Delivered:      delivered,
		Failed:         failed,
		Deliveries:     make([]DeliveryOutcome, 0, len(alert.Deliveries)),
		CreatedAt:      alert.CreatedAt,
		FinalizedAt:    alert.FinalizedAt,
	}
	for _, d := range alert.Deliveries {
		ev.Deliveries = append(ev.Deliveries, DeliveryOutcome{
			Name:     d.Name,
			Status:   d.Status,
			Attempts: d.Attempts,
			Error:    d.Error,
		})
	}
	return ev
}

// RedisWebhookPublisher ставит события в очередь Redis; отправку делает WebhookWorker
type RedisWebhookPublisher struct {
	redisClient *redis.Client
}

// NewRedisWebhookPublisher создает новый RedisWebhookPublisher
func NewRedisWebhookPublisher(client *redis.Client) *RedisWebhookPublisher {
	return &RedisWebhookPublisher{
		redisClient: client,
	}
}

// Publish публикует событие о финализированной тревоге в очередь Redis
func (p *RedisWebhookPublisher) Publish(ctx context.Context, alert *models.SOSAlert) error {
	payload, err := json.Marshal(NewAlertEvent(alert))
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	// LPUSH добавляет событие в левую часть списка, воркер забирает справа
	if err := p.redisClient.LPush(ctx, webhookQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish webhook event to Redis: %w", err)
	}
	return nil
}
