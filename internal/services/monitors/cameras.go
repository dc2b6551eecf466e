package monitors

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/models"
)

// PingStore receives camera connectivity readings.
type PingStore interface {
	SaveCameraStatus(ctx context.Context, ping models.CameraPing) error
}

// CameraSource supplies the cameras whose connectivity is probed.
type CameraSource interface {
	ActiveCameras(ctx context.Context) ([]models.CameraConfig, error)
}

// CameraMonitor probes each registered camera with a TCP dial and
// records the response time. Like the host monitor it is unrelated to
// alert processing and survives alert-subsystem restarts.
type CameraMonitor struct {
	source      CameraSource
	store       PingStore
	interval    time.Duration
	dialTimeout time.Duration
	logger      zerolog.Logger

	mu      sync.Mutex
	running bool
	latest  map[string]models.CameraPing
	stop    chan struct{}
	done    chan struct{}
}

func NewCameraMonitor(cfg *config.Config, source CameraSource, store PingStore, logger zerolog.Logger) *CameraMonitor {
	return &CameraMonitor{
		source:      source,
		store:       store,
		interval:    cfg.CameraMonitorInterval,
		dialTimeout: cfg.CameraDialTimeout,
		logger:      logger.With().Str("service", "camera_monitor").Logger(),
		latest:      make(map[string]models.CameraPing),
	}
}

func (m *CameraMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop()
	m.logger.Info().Dur("interval", m.interval).Msg("Camera monitor started")
}

func (m *CameraMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()
	<-done
	m.logger.Info().Msg("Camera monitor stopped")
}

func (m *CameraMonitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Latest returns a copy of the most recent reading per camera.
func (m *CameraMonitor) Latest() map[string]models.CameraPing {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.CameraPing, len(m.latest))
	for id, ping := range m.latest {
		out[id] = ping
	}
	return out
}

func (m *CameraMonitor) loop() {
	defer close(m.done)

	m.sweep()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *CameraMonitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	cameras, err := m.source.ActiveCameras(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to fetch cameras for connectivity sweep")
		return
	}

	for _, cam := range cameras {
		if cam.Addr == "" {
			continue
		}
		ping := m.probe(cam)

		m.mu.Lock()
		m.latest[cam.ID] = ping
		m.mu.Unlock()

		if err := m.store.SaveCameraStatus(ctx, ping); err != nil {
			m.logger.Warn().Err(err).Str("camera_id", cam.ID).Msg("Failed to persist camera status")
		}
	}
}

func (m *CameraMonitor) probe(cam models.CameraConfig) models.CameraPing {
	ping := models.CameraPing{CameraID: cam.ID, Timestamp: time.Now().UTC()}

	start := time.Now()
	conn, err := net.DialTimeout("tcp", cam.Addr, m.dialTimeout)
	if err != nil {
		m.logger.Debug().Err(err).Str("camera_id", cam.ID).Msg("Camera unreachable")
		return ping
	}
	conn.Close()

	ping.Connected = true
	ping.ResponseTimeMs = float64(time.Since(start).Microseconds()) / 1000
	return ping
}
