package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/events"
	"digefx-monitor-go/internal/models"
	"digefx-monitor-go/internal/services/alerts"
	"digefx-monitor-go/internal/services/capture"
	"digefx-monitor-go/internal/services/inference"
	"digefx-monitor-go/internal/services/monitors"
	"digefx-monitor-go/internal/services/sinks"
	"digefx-monitor-go/internal/services/snapshots"
	"digefx-monitor-go/internal/store"
)

// Deps are the collaborators the manager orchestrates. Bootstrap builds
// the production set; tests inject fakes.
type Deps struct {
	Store     *store.Store
	Cameras   alerts.CameraSource
	Capture   capture.Source
	Engine    inference.Engine
	Snapshots snapshots.Store
	Handlers  []sinks.Handler
}

// Manager is the top-level orchestrator: it boots the bus, subscribes
// the enabled sink handlers, runs the alert coordinator, and owns the
// health monitors. Start/Stop/Restart act on the alert subsystem only;
// the monitors run from Startup until Shutdown.
type Manager struct {
	cfg    *config.Config
	deps   Deps
	bus    *events.Bus
	coord  *alerts.Coordinator
	host   *monitors.HostMonitor
	camera *monitors.CameraMonitor
	logger zerolog.Logger

	mu     sync.Mutex
	booted bool
}

// StatusReport is the aggregated snapshot exposed on the control surface.
type StatusReport struct {
	Status          string         `json:"status"`
	IsRunning       bool           `json:"is_running"`
	BasicMonitors   MonitorsReport `json:"basic_monitors"`
	AlertProcessing AlertReport    `json:"alert_processing"`
}

type MonitorsReport struct {
	HostMonitor   bool   `json:"host_monitor"`
	CameraMonitor bool   `json:"camera_monitor"`
	Status        string `json:"status"`
}

type AlertReport struct {
	Status               string                   `json:"status"`
	CamerasProcessing    int                      `json:"cameras_processing"`
	TotalAlertsProcessed int64                    `json:"total_alerts_processed"`
	UptimeSeconds        float64                  `json:"uptime_seconds"`
	Cameras              []models.ProcessorStatus `json:"cameras"`
	HandlersStatus       map[string]string        `json:"handlers_status"`
}

func NewManager(cfg *config.Config, deps Deps) *Manager {
	logger := log.With().Str("service", "lifecycle").Logger()
	bus := events.NewBus(cfg)

	return &Manager{
		cfg:    cfg,
		deps:   deps,
		bus:    bus,
		coord:  alerts.NewCoordinator(cfg, bus, deps.Cameras, deps.Capture, deps.Engine, deps.Snapshots, logger),
		host:   monitors.NewHostMonitor(cfg, deps.Store, logger),
		camera: monitors.NewCameraMonitor(cfg, deps.Cameras, deps.Store, logger),
		logger: logger,
	}
}

// Bootstrap builds the production dependency set from configuration and
// returns an un-booted manager. Store and inference failures are fatal;
// per-handler configuration or connection failures disable only that
// handler.
func Bootstrap(cfg *config.Config) (*Manager, error) {
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	engine, err := inference.NewHTTPEngine(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize inference engine: %w", err)
	}

	var snaps snapshots.Store
	if cfg.MinioEnabled {
		ms, err := snapshots.NewMinioStore(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Snapshot store unavailable, alerts will carry no snapshot URL")
		} else {
			snaps = ms
		}
	}

	deps := Deps{
		Store:     st,
		Cameras:   st,
		Capture:   capture.NewHTTPSource(cfg),
		Engine:    engine,
		Snapshots: snaps,
		Handlers:  buildHandlers(cfg, st),
	}
	return NewManager(cfg, deps), nil
}

// buildHandlers constructs every enabled sink handler. A handler whose
// configuration or initial connection fails is disabled with a warning;
// its absence never affects the others.
func buildHandlers(cfg *config.Config, st *store.Store) []sinks.Handler {
	logger := log.With().Str("service", "sinks").Logger()
	var handlers []sinks.Handler

	if cfg.StorageEnabled {
		handlers = append(handlers, sinks.NewStorageHandler(cfg, st, logger))
	}
	if cfg.MqttEnabled {
		h, err := sinks.NewMQTTHandler(cfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("MQTT handler disabled")
		} else {
			handlers = append(handlers, h)
		}
	}
	if cfg.NatsEnabled {
		h, err := sinks.NewQueueHandler(cfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Queue handler disabled")
		} else {
			handlers = append(handlers, h)
		}
	}
	if cfg.RegistryEnabled {
		h, err := sinks.NewRegistryHandler(cfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Registry handler disabled")
		} else {
			handlers = append(handlers, h)
		}
	}
	return handlers
}

// Startup performs the ordered boot: handlers subscribed to the bus,
// alert coordinator started, then the health monitors. A subscription
// failure is fatal and leaves the system stopped.
func (m *Manager) Startup(ctx context.Context) error {
	m.mu.Lock()
	if m.booted {
		m.mu.Unlock()
		return nil
	}
	m.booted = true
	m.mu.Unlock()

	for _, h := range m.deps.Handlers {
		if err := m.bus.Subscribe(models.EventAlertDetected, h); err != nil {
			return fmt.Errorf("fatal startup failure subscribing handler %s: %w", h.Name(), err)
		}
	}

	if err := m.coord.Start(ctx); err != nil {
		return fmt.Errorf("fatal startup failure starting coordinator: %w", err)
	}

	m.host.Start()
	m.camera.Start()

	m.logger.Info().
		Int("handlers", len(m.deps.Handlers)).
		Msg("Lifecycle startup complete")
	return nil
}

// Start starts the alert subsystem. Idempotent: starting a running
// subsystem is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	return m.coord.Start(ctx)
}

// Stop stops the alert coordinator and all camera processors. The
// health monitors and handler subscriptions are untouched. Idempotent.
func (m *Manager) Stop(ctx context.Context) error {
	return m.coord.Stop(ctx)
}

// Restart is stop followed by start.
func (m *Manager) Restart(ctx context.Context) error {
	if err := m.coord.Stop(ctx); err != nil {
		return err
	}
	return m.coord.Start(ctx)
}

// Running reports whether the alert subsystem is live.
func (m *Manager) Running() bool { return m.coord.Running() }

// Healthy reports whether the lifecycle state is coherent: either the
// subsystem runs with a live coordinator or it is cleanly stopped.
func (m *Manager) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.booted
}

// Status builds the aggregated snapshot for the control surface. Every
// contained value is a copy.
func (m *Manager) Status() StatusReport {
	coord := m.coord.Status()

	state := "stopped"
	if coord.Running {
		state = "running"
	}

	handlers := make(map[string]string, len(m.deps.Handlers))
	for _, h := range m.deps.Handlers {
		if h.Active() {
			handlers[h.Name()] = "active"
		} else {
			handlers[h.Name()] = "inactive"
		}
	}

	monStatus := "inactive"
	if m.host.Active() || m.camera.Active() {
		monStatus = "active"
	}

	return StatusReport{
		Status:    state,
		IsRunning: coord.Running,
		BasicMonitors: MonitorsReport{
			HostMonitor:   m.host.Active(),
			CameraMonitor: m.camera.Active(),
			Status:        monStatus,
		},
		AlertProcessing: AlertReport{
			Status:               state,
			CamerasProcessing:    coord.CamerasProcessing,
			TotalAlertsProcessed: coord.TotalAlerts,
			UptimeSeconds:        coord.UptimeSeconds,
			Cameras:              coord.Cameras,
			HandlersStatus:       handlers,
		},
	}
}

// HostStats returns the latest host monitor reading.
func (m *Manager) HostStats() models.HostSnapshot { return m.host.Latest() }

// History exposes the bus's bounded alert history.
func (m *Manager) History(limit int) []*models.AlertEvent { return m.bus.History(limit) }

// Shutdown tears the whole system down: alert subsystem, handlers,
// monitors, store, bus. Used only at process exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	if err := m.coord.Stop(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Coordinator stop failed during shutdown")
	}

	for _, h := range m.deps.Handlers {
		m.bus.Unsubscribe(models.EventAlertDetected, h.Name())
		if err := h.Close(ctx); err != nil {
			m.logger.Warn().Err(err).Str("handler", h.Name()).Msg("Handler close failed")
		}
	}

	m.host.Stop()
	m.camera.Stop()
	m.bus.Close()

	if m.deps.Store != nil {
		if err := m.deps.Store.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("Store close failed")
		}
	}

	m.logger.Info().Msg("Lifecycle shutdown complete")
	return nil
}
