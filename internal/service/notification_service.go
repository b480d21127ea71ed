package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/campuscare/counseling-service/internal/config"
	"github.com/campuscare/counseling-service/internal/domain"
)

// NotificationService delivers escalation payloads to the configured
// channel endpoints. The contacts channel is delivered through the
// general webhook; campus security has its own endpoint. Without a
// configured endpoint the payload is logged so nothing is silently
// dropped in development.
type NotificationService struct {
	cfg    config.NotificationConfig
	client *http.Client
	logger *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(cfg config.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Notify implements Notifier.
func (s *NotificationService) Notify(ctx context.Context, channel domain.NotifyChannel, payload NotificationPayload) error {
	url := s.cfg.WebhookURL
	if channel == domain.NotifySecurity && s.cfg.SecurityWebhookURL != "" {
		url = s.cfg.SecurityWebhookURL
	}
	if url == "" {
		s.logger.Warn("notification endpoint not configured, logging payload",
			zap.String("channel", string(channel)),
			zap.String("ticket_id", payload.TicketID),
			zap.String("level", string(payload.Level)),
			zap.String("summary", payload.Summary))
		return nil
	}

	body, err := json.Marshal(struct {
		Channel domain.NotifyChannel `json:"channel"`
		NotificationPayload
	}{Channel: channel, NotificationPayload: payload})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	s.logger.Info("notification delivered",
		zap.String("channel", string(channel)),
		zap.String("event_id", payload.EventID))
	return nil
}
