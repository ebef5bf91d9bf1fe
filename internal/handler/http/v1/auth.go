package v1

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shenikar/safesteps/internal/config"
	"github.com/sirupsen/logrus"
)

const userIDKey = "user_id"

// Claims - утверждения токена доступа мобильного клиента
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// APIKeyAuthMiddleware - middleware для аутентификации модераторов по API-ключу
func APIKeyAuthMiddleware(cfg *config.Config, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			log.Warn("API key missing from request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			return
		}

		isValid := false
		for _, key := range cfg.APIKeys {
			if key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
				isValid = true
				break
			}
		}

		if !isValid {
			log.WithField("path", c.FullPath()).Warn("Invalid API key provided")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		c.Next()
	}
}

// JWTAuthMiddleware извлекает пользователя из Bearer-токена.
// Если required=false, запрос без токена проходит анонимно, но неверный токен отклоняется.
func JWTAuthMiddleware(secret string, log *logrus.Logger, required bool) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			if required {
				log.Warn("Bearer token missing from request")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization token required"})
				return
			}
			c.Next()
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenUnverifiable
			}
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token has expired"
			}
			log.WithError(err).Warn("Rejected bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		userID := claims.UserID
		if userID == "" {
			userID = claims.Subject
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has no user"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// bearerToken читает токен из заголовка Authorization, а для WebSocket еще и из параметра token
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if websocketUpgrade(c.Request) {
		return c.Query("token")
	}
	return ""
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// userID возвращает пользователя, установленного JWTAuthMiddleware, или пустую строку
func userID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
