package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/models"
	"digefx-monitor-go/internal/store"
)

// AlertStore is the persistence surface the storage sink needs.
type AlertStore interface {
	SaveAlert(ctx context.Context, evt *models.AlertEvent) error
}

// StorageHandler persists alert events to the SQLite store with bounded
// retry. Validation failures and unknown cameras are dropped immediately;
// transient insert failures are retried with exponential backoff, then
// dropped and logged.
type StorageHandler struct {
	alerts     AlertStore
	maxRetries int
	logger     zerolog.Logger
}

func NewStorageHandler(cfg *config.Config, alerts AlertStore, logger zerolog.Logger) *StorageHandler {
	return &StorageHandler{
		alerts:     alerts,
		maxRetries: cfg.StorageMaxRetries,
		logger:     logger.With().Str("handler", "storage").Logger(),
	}
}

func (h *StorageHandler) Name() string { return "storage" }

func (h *StorageHandler) Active() bool { return true }

func (h *StorageHandler) HandleEvent(ctx context.Context, evt *models.AlertEvent) error {
	if err := validateEvent(evt); err != nil {
		h.logger.Warn().Err(err).Str("event_id", evt.EventID).Msg("Dropping malformed event")
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = h.alerts.SaveAlert(ctx, evt)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, store.ErrUnknownCamera) {
			// Per registry policy, alerts from unregistered cameras are
			// dropped rather than retried.
			h.logger.Warn().
				Str("camera_id", evt.CameraID).
				Str("event_id", evt.EventID).
				Msg("Dropping alert for unregistered camera")
			return lastErr
		}
		h.logger.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Str("event_id", evt.EventID).
			Msg("Alert persist attempt failed")
	}

	h.logger.Error().
		Err(lastErr).
		Str("event_id", evt.EventID).
		Int("attempts", h.maxRetries+1).
		Msg("Dropping alert after exhausting retries")
	return fmt.Errorf("failed to persist alert after %d attempts: %w", h.maxRetries+1, lastErr)
}

func (h *StorageHandler) Close(ctx context.Context) error { return nil }

func validateEvent(evt *models.AlertEvent) error {
	if evt.CameraID == "" {
		return errors.New("event has no camera id")
	}
	if len(evt.Detections) == 0 {
		return errors.New("alert event has no detections")
	}
	for i, d := range evt.Detections {
		if d.Confidence < 0 || d.Confidence > 1 {
			return fmt.Errorf("detection %d confidence %f out of range", i, d.Confidence)
		}
	}
	return nil
}
