package alerts

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
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

// EMA smoothing factor for the per-processor cycle time.
const cycleEMAAlpha = 0.1

// reportFunc lets a processor report state transitions back to the
// coordinator. The coordinator owns the processor table; the processor
// never mutates it directly.
type reportFunc func(cameraID string, state models.ProcessorState)

// Processor runs the capture -> infer -> publish cycle for one camera.
// Cycles are strictly sequential: a single goroutine owns the loop, so
// no two cycles for the same camera ever overlap.
type Processor struct {
	cam    models.CameraConfig
	cfg    *config.Config
	bus    *events.Bus
	source capture.Source
	engine inference.Engine
	snaps  snapshots.Store // nil when snapshot upload is disabled
	report reportFunc
	logger zerolog.Logger

	state int32 // models.ProcessorState

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu    sync.Mutex
	stats procStats
}

type procStats struct {
	consecutiveFailures int
	framesProcessed     int64
	alertsDetected      int64
	avgCycleMs          float64
	lastActivity        time.Time
	startedAt           time.Time
	lastError           string
}

func newProcessor(cfg *config.Config, cam models.CameraConfig, bus *events.Bus,
	source capture.Source, engine inference.Engine, snaps snapshots.Store,
	report reportFunc, logger zerolog.Logger) *Processor {

	p := &Processor{
		cam:    cam,
		cfg:    cfg,
		bus:    bus,
		source: source,
		engine: engine,
		snaps:  snaps,
		report: report,
		logger: logger.With().Str("camera_id", cam.ID).Logger(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	atomic.StoreInt32(&p.state, int32(models.ProcessorStarting))
	return p
}

// Start launches the processing loop. The context bounds the whole
// lifetime of the worker; canceling it force-terminates the loop.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	p.stats.startedAt = time.Now()
	p.stats.lastActivity = time.Now()
	p.mu.Unlock()
	go p.run(ctx)
}

// Stop requests a graceful stop, observed at the top of the next loop
// iteration. Safe to call more than once.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Done is closed once the loop has fully exited and the capture session
// has been released.
func (p *Processor) Done() <-chan struct{} { return p.done }

func (p *Processor) State() models.ProcessorState {
	return models.ProcessorState(atomic.LoadInt32(&p.state))
}

func (p *Processor) setState(state models.ProcessorState) {
	atomic.StoreInt32(&p.state, int32(state))
	if p.report != nil {
		p.report(p.cam.ID, state)
	}
}

// Status returns a point-in-time copy of the processor's record. The
// copy never aliases internal state.
func (p *Processor) Status() models.ProcessorStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return models.ProcessorStatus{
		CameraID:            p.cam.ID,
		CameraName:          p.cam.Name,
		Status:              p.State().String(),
		ConsecutiveFailures: p.stats.consecutiveFailures,
		FramesProcessed:     p.stats.framesProcessed,
		AlertsDetected:      p.stats.alertsDetected,
		AvgCycleMs:          p.stats.avgCycleMs,
		LastActivity:        p.stats.lastActivity,
		StartedAt:           p.stats.startedAt,
		LastError:           p.stats.lastError,
	}
}

// AlertsDetected returns the number of alerts published by this worker.
func (p *Processor) AlertsDetected() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.alertsDetected
}

func (p *Processor) run(ctx context.Context) {
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("Processor panic recovered")
			p.noteError(fmt.Sprintf("panic: %v", r))
			p.setState(models.ProcessorError)
		}
	}()

	session, err := p.source.Open(ctx, p.cam)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to open capture session")
		p.noteError(err.Error())
		p.setState(models.ProcessorError)
		return
	}
	defer session.Close()

	p.setState(models.ProcessorRunning)
	p.logger.Info().Str("camera_name", p.cam.Name).Msg("Camera processor running")

	for {
		select {
		case <-p.stop:
			p.setState(models.ProcessorStopping)
			p.logger.Info().Msg("Camera processor stopping")
			p.setState(models.ProcessorStopped)
			return
		case <-ctx.Done():
			p.setState(models.ProcessorStopping)
			p.setState(models.ProcessorStopped)
			return
		default:
		}

		cycleStart := time.Now()
		if err := p.cycle(ctx, session); err != nil {
			if ctx.Err() != nil {
				p.setState(models.ProcessorStopping)
				p.setState(models.ProcessorStopped)
				return
			}

			failures := p.noteFailure(err)
			p.logger.Warn().
				Err(err).
				Int("consecutive_failures", failures).
				Msg("Processing cycle failed")

			if failures >= p.cfg.FailureCeiling {
				p.logger.Error().
					Int("consecutive_failures", failures).
					Int("ceiling", p.cfg.FailureCeiling).
					Msg("Failure ceiling reached, processor entering error state")
				p.setState(models.ProcessorError)
				return
			}
			p.sleep(ctx, p.backoff(failures))
			continue
		}

		p.noteCycle(time.Since(cycleStart))
		p.sleep(ctx, p.cfg.FrameInterval)
	}
}

// cycle performs one capture+infer+publish pass. A zero-detection cycle
// publishes nothing.
func (p *Processor) cycle(ctx context.Context, session capture.Session) error {
	frame, err := session.Capture(ctx)
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}

	detections, err := p.engine.Detect(ctx, p.cam.ID, frame)
	if err != nil {
		return fmt.Errorf("inference failed: %w", err)
	}

	if len(detections) == 0 {
		return nil
	}

	evt := &models.AlertEvent{
		EventID:    uuid.NewString(),
		EventType:  models.EventAlertDetected,
		CameraID:   p.cam.ID,
		CameraName: p.cam.Name,
		Detections: detections,
		Timestamp:  time.Now().UTC(),
		Metadata: map[string]interface{}{
			"frame_bytes":     len(frame),
			"detection_count": len(detections),
		},
		RawFrame: frame,
	}

	if p.snaps != nil {
		key := fmt.Sprintf("%s/%s.jpg", p.cam.ID, evt.EventID)
		url, err := p.snaps.SaveSnapshot(ctx, key, frame, "image/jpeg")
		if err != nil {
			// Snapshot upload is best effort; the alert still goes out.
			p.logger.Warn().Err(err).Str("event_id", evt.EventID).Msg("Snapshot upload failed")
		} else {
			evt.SnapshotURL = url
		}
	}

	outcomes := p.bus.Publish(ctx, evt)
	p.noteAlert()

	failed := 0
	for _, out := range outcomes {
		if !out.Success {
			failed++
		}
	}
	p.logger.Info().
		Str("event_id", evt.EventID).
		Int("detections", len(detections)).
		Int("handlers", len(outcomes)).
		Int("handler_failures", failed).
		Msg("Alert published")

	return nil
}

// backoff computes the bounded exponential delay for the nth consecutive
// failure, with configured jitter.
func (p *Processor) backoff(failures int) time.Duration {
	d := p.cfg.BackoffMin
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= p.cfg.BackoffMax {
			d = p.cfg.BackoffMax
			break
		}
	}
	if p.cfg.BackoffJitter > 0 {
		jitter := float64(d) * float64(p.cfg.BackoffJitter) / 100
		d += time.Duration((rand.Float64()*2 - 1) * jitter)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// sleep waits for d. A stop request or cancellation interrupts the wait;
// the loop top observes it on the next iteration.
func (p *Processor) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-p.stop:
	case <-ctx.Done():
	}
}

func (p *Processor) noteCycle(elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.consecutiveFailures = 0
	p.stats.framesProcessed++
	p.stats.lastActivity = time.Now()

	ms := float64(elapsed.Microseconds()) / 1000
	if p.stats.avgCycleMs == 0 {
		p.stats.avgCycleMs = ms
	} else {
		p.stats.avgCycleMs = cycleEMAAlpha*ms + (1-cycleEMAAlpha)*p.stats.avgCycleMs
	}
}

func (p *Processor) noteFailure(err error) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.consecutiveFailures++
	p.stats.lastError = err.Error()
	p.stats.lastActivity = time.Now()
	return p.stats.consecutiveFailures
}

func (p *Processor) noteError(msg string) {
	p.mu.Lock()
	p.stats.lastError = msg
	p.mu.Unlock()
}

func (p *Processor) noteAlert() {
	p.mu.Lock()
	p.stats.alertsDetected++
	p.mu.Unlock()
}
