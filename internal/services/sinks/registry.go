package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/models"
)

// RegistryHandler forwards alert events to an external HTTP registration
// API. Non-2xx responses and timeouts are retried with exponential
// backoff up to the configured ceiling, then dropped and logged.
type RegistryHandler struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	logger     zerolog.Logger
}

func NewRegistryHandler(cfg *config.Config, logger zerolog.Logger) (*RegistryHandler, error) {
	parsed, err := url.Parse(cfg.RegistryURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid registry URL %q", cfg.RegistryURL)
	}

	h := &RegistryHandler{
		baseURL:    cfg.RegistryURL,
		client:     &http.Client{Timeout: cfg.RegistryTimeout},
		maxRetries: cfg.RegistryMaxRetries,
		logger:     logger.With().Str("handler", "registry").Logger(),
	}

	// Connectivity probe at startup. An unreachable registry disables the
	// handler rather than failing the whole subsystem.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RegistryTimeout)
	defer cancel()
	if err := h.probe(ctx); err != nil {
		return nil, fmt.Errorf("registry API unreachable: %w", err)
	}

	h.logger.Info().Str("url", cfg.RegistryURL).Msg("Registry handler connected")
	return h, nil
}

func (h *RegistryHandler) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/api/stats", nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stats probe returned %d", resp.StatusCode)
	}
	return nil
}

func (h *RegistryHandler) Name() string { return "registry" }

func (h *RegistryHandler) Active() bool { return true }

func (h *RegistryHandler) HandleEvent(ctx context.Context, evt *models.AlertEvent) error {
	payload, err := json.Marshal(models.NewEnvelope(evt))
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", evt.EventID, err)
	}

	var lastErr error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = h.register(ctx, payload)
		if lastErr == nil {
			h.logger.Debug().Str("event_id", evt.EventID).Msg("Event registered")
			return nil
		}
		h.logger.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Str("event_id", evt.EventID).
			Msg("Event registration attempt failed")
	}

	h.logger.Error().
		Err(lastErr).
		Str("event_id", evt.EventID).
		Int("attempts", h.maxRetries+1).
		Msg("Dropping event after exhausting registry retries")
	return fmt.Errorf("failed to register event after %d attempts: %w", h.maxRetries+1, lastErr)
}

func (h *RegistryHandler) register(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/events", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("registry returned %d", resp.StatusCode)
	}
	return nil
}

func (h *RegistryHandler) Close(ctx context.Context) error { return nil }
