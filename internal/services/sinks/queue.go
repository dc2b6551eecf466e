package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/models"
)

// QueueHandler publishes alert events to NATS with a subject derived
// from the event, acting as the routing key. The NATS client owns its
// reconnect loop with unlimited retries by default.
type QueueHandler struct {
	conn          *nats.Conn
	subjectPrefix string
	logger        zerolog.Logger
}

func NewQueueHandler(cfg *config.Config, logger zerolog.Logger) (*QueueHandler, error) {
	qlog := logger.With().Str("handler", "queue").Logger()

	opts := []nats.Option{
		nats.Name("digefx-monitor"),
		nats.Timeout(cfg.NatsConnectTimeout),
		nats.ReconnectWait(cfg.NatsReconnectWait),
		nats.MaxReconnects(cfg.NatsMaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			qlog.Warn().Err(err).Msg("NATS disconnected, reconnecting in background")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			qlog.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NatsURL, err)
	}

	qlog.Info().Str("url", cfg.NatsURL).Msg("NATS connection established")

	return &QueueHandler{
		conn:          conn,
		subjectPrefix: cfg.NatsSubjectPrefix,
		logger:        qlog,
	}, nil
}

func (h *QueueHandler) Name() string { return "queue" }

func (h *QueueHandler) Active() bool { return h.conn != nil && h.conn.IsConnected() }

func (h *QueueHandler) HandleEvent(ctx context.Context, evt *models.AlertEvent) error {
	payload, err := json.Marshal(models.NewEnvelope(evt))
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", evt.EventID, err)
	}

	subject := eventSubject(h.subjectPrefix, evt)
	if err := h.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	h.logger.Debug().Str("event_id", evt.EventID).Str("subject", subject).Msg("Event published to NATS")
	return nil
}

func (h *QueueHandler) Close(ctx context.Context) error {
	if h.conn == nil {
		return nil
	}
	// Graceful drain first, immediate close as fallback.
	if err := h.conn.Drain(); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to drain NATS connection, closing immediately")
		h.conn.Close()
	}
	h.logger.Info().Msg("Queue handler closed")
	return nil
}

// eventSubject builds the routing subject for one event:
// {prefix}.camera.{camera_id}[.type.{class}], with ids sanitized for the
// NATS subject grammar.
func eventSubject(prefix string, evt *models.AlertEvent) string {
	subject := fmt.Sprintf("%s.camera.%s", prefix, sanitizeToken(evt.CameraID))
	if class := evt.PrimaryClass(); class != "" {
		subject = fmt.Sprintf("%s.type.%s", subject, sanitizeToken(class))
	}
	return subject
}

var tokenSanitizer = strings.NewReplacer(".", "-", " ", "-", "*", "-", ">", "-")

func sanitizeToken(s string) string {
	if s == "" {
		return "unknown"
	}
	return tokenSanitizer.Replace(s)
}
