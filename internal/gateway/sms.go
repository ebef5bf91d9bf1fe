// Package gateway отправляет SMS доверенным контактам через HTTP-шлюз.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/models"
	"github.com/sirupsen/logrus"
)

const opSend = "sms.send"

type Config struct {
	URL      string
	Token    string // секрет для подписи X-Gateway-Signature и заголовка Authorization
	SenderID string
}

type sendRequest struct {
	Reference string `json:"reference"`
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
}

// SMSGateway - клиент HTTP-шлюза. Таймаут попытки задается контекстом вызывающего.
type SMSGateway struct {
	cfg        Config
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewSMSGateway(cfg Config, httpClient *http.Client, logger *logrus.Logger) *SMSGateway {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &SMSGateway{cfg: cfg, httpClient: httpClient, logger: logger}
}

// Send возвращает nil при подтверждении шлюза (2xx). Ошибки классифицируются:
// 400/404/422 - постоянные (неверный номер), 408/429/5xx и сетевые - временные.
func (g *SMSGateway) Send(ctx context.Context, msg models.SMSMessage) error {
	payload, err := json.Marshal(sendRequest{
		Reference: msg.Reference,
		From:      g.cfg.SenderID,
		To:        msg.To,
		Body:      msg.Body,
	})
	if err != nil {
		return fmt.Errorf("gateway: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return apperr.Permanent(opSend, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.Reference)
	if g.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
		req.Header.Set("X-Gateway-Signature", sign(payload, g.cfg.Token))
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return apperr.Permanent(opSend, err)
		}
		return apperr.Transient(opSend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	statusErr := fmt.Errorf("gateway responded %d: %s", resp.StatusCode, bytes.TrimSpace(body))

	g.logger.WithFields(logrus.Fields{
		"component": "gateway",
		"reference": msg.Reference,
		"status":    resp.StatusCode,
	}).Warn("SMS gateway rejected message")

	switch {
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return apperr.Permanent(opSend, statusErr)
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return apperr.Transient(opSend, statusErr)
	}
	return apperr.Permanent(opSend, statusErr)
}

// sign генерирует HMAC-SHA256 подпись тела запроса
func sign(data []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// LogGateway только пишет сообщения в лог; используется, когда шлюз не настроен
type LogGateway struct {
	logger *logrus.Logger
}

func NewLogGateway(logger *logrus.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Send(_ context.Context, msg models.SMSMessage) error {
	g.logger.WithFields(logrus.Fields{
		"component": "gateway",
		"reference": msg.Reference,
		"to":        msg.To,
	}).Warn("SMS gateway is not configured, message logged only")
	return nil
}
