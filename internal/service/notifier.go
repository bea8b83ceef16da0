package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmylchreest/xtarr/internal/config"
	"github.com/jmylchreest/xtarr/internal/models"
	"github.com/jmylchreest/xtarr/pkg/httpclient"
)

// Notifier delivers operator notifications about refresh problems.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs at warn level.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs message.
func (n *LogNotifier) Notify(ctx context.Context, message string) error {
	n.logger.WarnContext(ctx, "refresh notification", slog.String("message", message))
	return nil
}

// WebhookNotifier POSTs notifications as {"message": ...} JSON.
type WebhookNotifier struct {
	url            string
	headers        map[string]string
	maxMessageSize int
	client         *httpclient.Client
}

// NewWebhookNotifier creates a webhook notifier from cfg.
func NewWebhookNotifier(cfg config.NotifyConfig, logger *slog.Logger) *WebhookNotifier {
	httpCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}
	if logger != nil {
		httpCfg.Logger = logger
	}

	return &WebhookNotifier{
		url:            cfg.WebhookURL,
		headers:        cfg.Headers,
		maxMessageSize: cfg.MaxMessageSize,
		client:         httpclient.New(httpCfg),
	}
}

type webhookPayload struct {
	Message string `json:"message"`
}

// Notify sends message, truncated to the configured size.
func (n *WebhookNotifier) Notify(ctx context.Context, message string) error {
	body, err := json.Marshal(webhookPayload{Message: models.TruncateMessage(message, n.maxMessageSize)})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// MultiNotifier fans a notification out to several notifiers.
type MultiNotifier []Notifier

// Notify calls every notifier and joins their errors.
func (m MultiNotifier) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewNotifier builds the notifier for cfg: the log always, plus a webhook
// when one is configured.
func NewNotifier(cfg config.NotifyConfig, logger *slog.Logger) Notifier {
	log := NewLogNotifier(logger)
	if cfg.WebhookURL == "" {
		return log
	}
	return MultiNotifier{log, NewWebhookNotifier(cfg, logger)}
}
