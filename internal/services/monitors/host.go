package monitors

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/models"
)

// HostStore receives host monitor readings.
type HostStore interface {
	SaveHostStatus(ctx context.Context, snap models.HostSnapshot) error
}

// HostMonitor samples cpu/memory/disk usage periodically and appends the
// readings to the store. It runs on its own goroutine, independent of
// the alert subsystem: stopping alert processing never touches it.
type HostMonitor struct {
	store    HostStore
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	latest  models.HostSnapshot
	stop    chan struct{}
	done    chan struct{}
}

func NewHostMonitor(cfg *config.Config, store HostStore, logger zerolog.Logger) *HostMonitor {
	return &HostMonitor{
		store:    store,
		interval: cfg.HostMonitorInterval,
		logger:   logger.With().Str("service", "host_monitor").Logger(),
	}
}

func (m *HostMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop()
	m.logger.Info().Dur("interval", m.interval).Msg("Host monitor started")
}

func (m *HostMonitor) Stop() {
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
	m.logger.Info().Msg("Host monitor stopped")
}

func (m *HostMonitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Latest returns the most recent reading, zero-valued before the first
// sample completes.
func (m *HostMonitor) Latest() models.HostSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

func (m *HostMonitor) loop() {
	defer close(m.done)

	m.sample()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *HostMonitor) sample() {
	snap := models.HostSnapshot{Online: true, Timestamp: time.Now().UTC()}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	} else if err != nil {
		m.logger.Warn().Err(err).Msg("CPU sample failed")
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemPercent = vm.UsedPercent
	} else {
		m.logger.Warn().Err(err).Msg("Memory sample failed")
	}
	if du, err := disk.Usage("/"); err == nil {
		snap.DiskPercent = du.UsedPercent
	} else {
		m.logger.Warn().Err(err).Msg("Disk sample failed")
	}

	m.mu.Lock()
	m.latest = snap
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.SaveHostStatus(ctx, snap); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to persist host status")
	}
}
