package sinks

import (
	"context"

	"digefx-monitor-go/internal/models"
)

// Handler is one alert sink. It extends the bus subscriber contract with
// liveness reporting for the status surface and an explicit close for
// shutdown. Each handler owns exactly one external channel and its
// reconnect discipline; a failing handler never touches its siblings.
type Handler interface {
	Name() string
	Active() bool
	HandleEvent(ctx context.Context, evt *models.AlertEvent) error
	Close(ctx context.Context) error
}
