// Package webhook provides fire-and-forget webhook notifications.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fgeck/goworld-backup/internal/models"
	"github.com/rs/zerolog"
)

// EmbedColor is the color sent with every embed.
const EmbedColor = 3066993

// Service defines the interface for webhook notifications.
// Notify never reports failures to the caller.
type Service interface {
	Notify(ctx context.Context, cfg *models.WebhookConfig, title, description string)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the webhook Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
}

// New creates a new webhook service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// NewWithClient creates a new webhook service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
	}
}

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// payload is the request body accepted by Discord-style webhooks.
type payload struct {
	Embeds []embed `json:"embeds"`
}

// Notify posts one embed to the configured webhook. Failures are logged and dropped.
func (s *Impl) Notify(ctx context.Context, cfg *models.WebhookConfig, title, description string) {
	if cfg == nil || !cfg.Enabled {
		return
	}

	result := s.Send(ctx, *cfg, title, description)
	if result.Error != nil {
		s.logger.Warn().Err(result.Error).Str("title", title).Msg("webhook notification failed")
		return
	}

	s.logger.Debug().Str("title", title).Int("status", result.StatusCode).Msg("webhook notification sent")
}

// Send delivers one embed and reports the outcome in the result.
// It recovers from panics in the transport so that no failure can escape to the caller.
func (s *Impl) Send(ctx context.Context, cfg models.WebhookConfig, title, description string) (result *models.WebhookResult) {
	result = &models.WebhookResult{}
	defer func() {
		if r := recover(); r != nil {
			result.MessageSent = false
			result.Error = fmt.Errorf("webhook panic: %v", r)
		}
	}()

	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		result.Error = fmt.Errorf("invalid webhook url: %w", err)
		return result
	}

	jsonBody, err := json.Marshal(payload{
		Embeds: []embed{{Title: title, Description: description, Color: EmbedColor}},
	})
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal request: %w", err)
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(jsonBody))
	if err != nil {
		result.Error = fmt.Errorf("failed to create request: %w", err)
		return result
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("failed to send request: %w", err)
		return result
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	result.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Error = fmt.Errorf("webhook returned status %d", resp.StatusCode)
		return result
	}

	result.MessageSent = true
	return result
}
