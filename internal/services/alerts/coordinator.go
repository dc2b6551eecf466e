package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/events"
	"digefx-monitor-go/internal/models"
	"digefx-monitor-go/internal/services/capture"
	"digefx-monitor-go/internal/services/inference"
	"digefx-monitor-go/internal/services/snapshots"
)

// CameraSource supplies the desired active-camera set the coordinator
// reconciles against.
type CameraSource interface {
	ActiveCameras(ctx context.Context) ([]models.CameraConfig, error)
}

// procEntry is one row of the live processor table. The table is owned
// exclusively by the coordinator; readers get copies.
type procEntry struct {
	proc     *Processor
	cancel   context.CancelFunc
	restarts int
}

// Coordinator keeps the live processor pool converged with the desired
// camera set: it starts workers for new cameras, stops workers for
// removed ones, and restarts failed workers up to a ceiling.
type Coordinator struct {
	cfg    *config.Config
	bus    *events.Bus
	source CameraSource
	capSrc capture.Source
	engine inference.Engine
	snaps  snapshots.Store
	logger zerolog.Logger

	mu            sync.Mutex
	procs         map[string]*procEntry
	running       bool
	cancel        context.CancelFunc
	loopDone      chan struct{}
	lastReconcile time.Time
	startedAt     time.Time

	// Alerts from workers that have since been removed still count
	// toward the subsystem total.
	retiredAlerts int64
}

// Status is a copy-on-read snapshot of the coordinator for the control
// surface.
type Status struct {
	Running           bool                     `json:"running"`
	CamerasProcessing int                      `json:"cameras_processing"`
	TotalAlerts       int64                    `json:"total_alerts"`
	LastReconcile     time.Time                `json:"last_reconcile"`
	UptimeSeconds     float64                  `json:"uptime_seconds"`
	Cameras           []models.ProcessorStatus `json:"cameras"`
}

func NewCoordinator(cfg *config.Config, bus *events.Bus, source CameraSource,
	capSrc capture.Source, engine inference.Engine, snaps snapshots.Store,
	logger zerolog.Logger) *Coordinator {

	return &Coordinator{
		cfg:    cfg,
		bus:    bus,
		source: source,
		capSrc: capSrc,
		engine: engine,
		snaps:  snaps,
		logger: logger.With().Str("service", "alert_coordinator").Logger(),
		procs:  make(map[string]*procEntry),
	}
}

// Start launches the reconciliation loop. Idempotent: starting a running
// coordinator is a logged no-op.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.logger.Warn().Msg("Coordinator already running, start ignored")
		return nil
	}

	// Detached from the caller's request context: the loop outlives the
	// HTTP call that started it.
	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.loopDone = make(chan struct{})
	c.running = true
	c.startedAt = time.Now()

	go c.loop(loopCtx)

	c.logger.Info().
		Dur("check_interval", c.cfg.CheckInterval).
		Int("max_cameras", c.cfg.MaxCameras).
		Int("max_restarts", c.cfg.MaxRestarts).
		Msg("Alert coordinator started")
	return nil
}

// Stop halts the loop and gracefully stops every processor, bounded per
// worker by the stop timeout. Idempotent.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		c.logger.Warn().Msg("Coordinator not running, stop ignored")
		return nil
	}
	c.running = false
	c.cancel()
	loopDone := c.loopDone
	c.mu.Unlock()

	select {
	case <-loopDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Drain the table under the lock, stop workers outside it.
	c.mu.Lock()
	entries := make(map[string]*procEntry, len(c.procs))
	for id, e := range c.procs {
		entries[id] = e
		c.retiredAlerts += e.proc.AlertsDetected()
	}
	c.procs = make(map[string]*procEntry)
	c.mu.Unlock()

	for id, e := range entries {
		c.stopProcessor(id, e)
		c.publishStatusEvent(context.Background(), models.EventProcessingStopped, id)
	}

	c.logger.Info().Int("stopped", len(entries)).Msg("Alert coordinator stopped")
	return nil
}

// Running reports whether the reconciliation loop is live.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Coordinator) loop(ctx context.Context) {
	defer close(c.loopDone)

	// Converge immediately, then on every tick.
	c.reconcile(ctx)

	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reconcile(ctx)
		}
	}
}

// reconcile diffs the desired camera set against the live table and
// applies the minimal start/stop/restart actions. A registry fetch
// failure skips the cycle; the previous table stays untouched.
func (c *Coordinator) reconcile(ctx context.Context) {
	desired, err := c.source.ActiveCameras(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to fetch desired camera set, skipping cycle")
		return
	}

	desiredByID := make(map[string]models.CameraConfig, len(desired))
	for _, cam := range desired {
		desiredByID[cam.ID] = cam
	}

	type removal struct {
		id    string
		entry *procEntry
	}
	var removals []removal
	var started []string

	c.mu.Lock()
	// Remove workers whose cameras left the desired set.
	for id, entry := range c.procs {
		if _, ok := desiredByID[id]; !ok {
			delete(c.procs, id)
			c.retiredAlerts += entry.proc.AlertsDetected()
			removals = append(removals, removal{id, entry})
		}
	}

	// Start, replace, or restart workers for desired cameras.
	for _, cam := range desired {
		entry, exists := c.procs[cam.ID]
		if exists {
			switch entry.proc.State() {
			case models.ProcessorStopped:
				// Worker ended without coordinator action; replace it.
				entry.cancel()
				c.retiredAlerts += entry.proc.AlertsDetected()
				c.startLocked(ctx, cam, entry.restarts)
				started = append(started, cam.ID)
			case models.ProcessorError:
				if entry.restarts < c.cfg.MaxRestarts {
					entry.cancel()
					c.retiredAlerts += entry.proc.AlertsDetected()
					c.logger.Info().
						Str("camera_id", cam.ID).
						Int("restarts", entry.restarts+1).
						Msg("Restarting failed processor")
					c.startLocked(ctx, cam, entry.restarts+1)
					started = append(started, cam.ID)
				}
				// At the ceiling the worker stays parked in error,
				// surfaced via status.
			}
			continue
		}

		if len(c.procs) >= c.cfg.MaxCameras {
			c.logger.Warn().
				Str("camera_id", cam.ID).
				Int("max_cameras", c.cfg.MaxCameras).
				Msg("Camera limit reached, skipping start")
			continue
		}
		c.startLocked(ctx, cam, 0)
		started = append(started, cam.ID)
	}
	c.lastReconcile = time.Now()
	c.mu.Unlock()

	// Graceful stops happen outside the lock so status queries never
	// block on a worker's shutdown.
	for _, r := range removals {
		c.logger.Info().Str("camera_id", r.id).Msg("Camera left desired set, stopping processor")
		c.stopProcessor(r.id, r.entry)
		c.publishStatusEvent(ctx, models.EventProcessingStopped, r.id)
	}
	for _, id := range started {
		c.publishStatusEvent(ctx, models.EventProcessingStarted, id)
	}
}

// startLocked creates and launches a worker for one camera, replacing
// any previous table entry. Caller holds c.mu.
func (c *Coordinator) startLocked(ctx context.Context, cam models.CameraConfig, restarts int) {
	procCtx, cancel := context.WithCancel(context.Background())
	proc := newProcessor(c.cfg, cam, c.bus, c.capSrc, c.engine, c.snaps, c.onStateChange, c.logger)
	c.procs[cam.ID] = &procEntry{proc: proc, cancel: cancel, restarts: restarts}
	proc.Start(procCtx)

	c.logger.Info().
		Str("camera_id", cam.ID).
		Str("camera_name", cam.Name).
		Msg("Camera processor started")
}

// stopProcessor requests a graceful stop and waits for it within the
// stop timeout; a worker that does not comply is force-terminated.
func (c *Coordinator) stopProcessor(cameraID string, entry *procEntry) {
	entry.proc.Stop()

	select {
	case <-entry.proc.Done():
	case <-time.After(c.cfg.StopTimeout):
		c.logger.Warn().
			Str("camera_id", cameraID).
			Dur("stop_timeout", c.cfg.StopTimeout).
			Msg("Graceful stop timed out, force terminating processor")
		entry.cancel()
		select {
		case <-entry.proc.Done():
		case <-time.After(2 * time.Second):
			c.logger.Error().Str("camera_id", cameraID).Msg("Processor did not terminate after force cancel")
		}
	}
	entry.cancel()
}

// onStateChange receives state transition reports from workers.
func (c *Coordinator) onStateChange(cameraID string, state models.ProcessorState) {
	c.logger.Debug().
		Str("camera_id", cameraID).
		Str("state", state.String()).
		Msg("Processor state transition")
}

// publishStatusEvent emits a processing started/stopped event on the
// bus. With no subscribers this is a recorded no-op.
func (c *Coordinator) publishStatusEvent(ctx context.Context, eventType models.EventType, cameraID string) {
	c.bus.Publish(ctx, &models.AlertEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		CameraID:  cameraID,
		Timestamp: time.Now().UTC(),
	})
}

// Status returns a copy-on-read snapshot of the live processor table.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Running:       c.running,
		TotalAlerts:   c.retiredAlerts,
		LastReconcile: c.lastReconcile,
		Cameras:       make([]models.ProcessorStatus, 0, len(c.procs)),
	}
	if c.running {
		st.UptimeSeconds = time.Since(c.startedAt).Seconds()
	}
	for _, entry := range c.procs {
		ps := entry.proc.Status()
		ps.Restarts = entry.restarts
		st.Cameras = append(st.Cameras, ps)
		st.TotalAlerts += ps.AlertsDetected
		switch entry.proc.State() {
		case models.ProcessorStarting, models.ProcessorRunning:
			st.CamerasProcessing++
		}
	}
	return st
}
