package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/models"
)

var (
	ErrBusClosed        = errors.New("event bus is closed")
	ErrDuplicateHandler = errors.New("handler already subscribed for event type")
)

// Handler is the contract every bus subscriber implements. The bus wraps
// each invocation so a failing handler never affects its siblings.
type Handler interface {
	Name() string
	HandleEvent(ctx context.Context, evt *models.AlertEvent) error
}

// Bus is the in-process publish/subscribe broker. Subscriptions are
// mutated only at startup/shutdown; Publish works against a snapshot of
// the subscriber set taken at call time, so subscription changes during
// an in-flight publish never affect that publish's target set.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[models.EventType][]Handler
	closed      bool

	handlerTimeout time.Duration

	histMu     sync.Mutex
	history    []*models.AlertEvent
	historyMax int

	logger zerolog.Logger
}

func NewBus(cfg *config.Config) *Bus {
	return &Bus{
		subscribers:    make(map[models.EventType][]Handler),
		handlerTimeout: cfg.HandlerTimeout,
		historyMax:     cfg.EventHistoryMax,
		logger:         log.With().Str("service", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for one event type. Subscribing to an
// event type nobody publishes yet is legal.
func (b *Bus) Subscribe(eventType models.EventType, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	for _, existing := range b.subscribers[eventType] {
		if existing.Name() == h.Name() {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateHandler, eventType, h.Name())
		}
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], h)

	b.logger.Info().
		Str("event_type", string(eventType)).
		Str("handler", h.Name()).
		Msg("Handler subscribed")
	return nil
}

// Unsubscribe removes the named handler from one event type. Removing an
// unknown handler is a no-op.
func (b *Bus) Unsubscribe(eventType models.EventType, handlerName string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, h := range subs {
		if h.Name() == handlerName {
			b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
			b.logger.Info().
				Str("event_type", string(eventType)).
				Str("handler", handlerName).
				Msg("Handler unsubscribed")
			return
		}
	}
}

// Publish fans the event out to every handler subscribed to its type at
// the moment of the call, invoking all of them in parallel. It returns
// one HandlerOutcome per subscriber and does not return until every
// invocation has completed, failed, or timed out. Publishing with zero
// subscribers is a no-op that returns an empty map.
func (b *Bus) Publish(ctx context.Context, evt *models.AlertEvent) map[string]models.HandlerOutcome {
	b.mu.RLock()
	closed := b.closed
	subs := append([]Handler(nil), b.subscribers[evt.EventType]...)
	b.mu.RUnlock()

	outcomes := make(map[string]models.HandlerOutcome, len(subs))
	if closed {
		return outcomes
	}

	b.record(evt)
	if len(subs) == 0 {
		return outcomes
	}

	results := make(chan models.HandlerOutcome, len(subs))
	for _, h := range subs {
		go b.invoke(ctx, h, evt, results)
	}
	for range subs {
		out := <-results
		outcomes[out.HandlerName] = out
	}
	return outcomes
}

// invoke runs one handler with panic recovery and a per-handler timeout.
// A timed-out handler keeps running on its (now canceled) context, but
// the publish call stops waiting for it.
func (b *Bus) invoke(ctx context.Context, h Handler, evt *models.AlertEvent, results chan<- models.HandlerOutcome) {
	start := time.Now()

	hctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("handler panic: %v", r)
			}
		}()
		done <- h.HandleEvent(hctx, evt)
	}()

	var err error
	select {
	case err = <-done:
	case <-hctx.Done():
		err = fmt.Errorf("handler timed out after %s", b.handlerTimeout)
	}

	out := models.HandlerOutcome{
		HandlerName: h.Name(),
		Success:     err == nil,
		Latency:     time.Since(start),
	}
	if err != nil {
		out.Error = err.Error()
		b.logger.Warn().
			Err(err).
			Str("handler", h.Name()).
			Str("event_id", evt.EventID).
			Str("camera_id", evt.CameraID).
			Dur("latency", out.Latency).
			Msg("Handler failed")
	} else {
		b.logger.Debug().
			Str("handler", h.Name()).
			Str("event_id", evt.EventID).
			Dur("latency", out.Latency).
			Msg("Handler completed")
	}

	results <- out
}

// record appends alert events to the bounded history ring. Status events
// are not retained; the history exists for introspection only and is
// never redelivered.
func (b *Bus) record(evt *models.AlertEvent) {
	if evt.EventType != models.EventAlertDetected || b.historyMax <= 0 {
		return
	}
	b.histMu.Lock()
	b.history = append(b.history, evt)
	if len(b.history) > b.historyMax {
		b.history = b.history[len(b.history)-b.historyMax:]
	}
	b.histMu.Unlock()
}

// History returns up to limit most recent alert events, newest last.
func (b *Bus) History(limit int) []*models.AlertEvent {
	b.histMu.Lock()
	defer b.histMu.Unlock()

	if limit <= 0 || limit > len(b.history) {
		limit = len(b.history)
	}
	out := make([]*models.AlertEvent, limit)
	copy(out, b.history[len(b.history)-limit:])
	return out
}

// SubscriberCount reports how many handlers are subscribed to one type.
func (b *Bus) SubscriberCount(eventType models.EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

// Close marks the bus closed and drops all subscriptions. Publishing on
// a closed bus returns an empty outcome map.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.subscribers = make(map[models.EventType][]Handler)
	b.logger.Info().Msg("Event bus closed")
}
