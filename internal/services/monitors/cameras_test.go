package monitors

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/models"
)

type fakePingStore struct {
	mu    sync.Mutex
	pings []models.CameraPing
}

func (f *fakePingStore) SaveCameraStatus(ctx context.Context, ping models.CameraPing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings = append(f.pings, ping)
	return nil
}

func (f *fakePingStore) all() []models.CameraPing {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.CameraPing, len(f.pings))
	copy(out, f.pings)
	return out
}

type staticCameras struct{ cameras []models.CameraConfig }

func (s *staticCameras) ActiveCameras(ctx context.Context) ([]models.CameraConfig, error) {
	return s.cameras, nil
}

func TestCameraMonitorProbesReachableAndUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	source := &staticCameras{cameras: []models.CameraConfig{
		{ID: "cam-up", Addr: ln.Addr().String()},
		{ID: "cam-down", Addr: "127.0.0.1:1"},
		{ID: "cam-noaddr"},
	}}
	store := &fakePingStore{}
	cfg := &config.Config{
		CameraMonitorInterval: time.Hour,
		CameraDialTimeout:     200 * time.Millisecond,
	}

	m := NewCameraMonitor(cfg, source, store, zerolog.Nop())
	m.sweep()

	pings := store.all()
	if len(pings) != 2 {
		t.Fatalf("recorded %d pings, want 2 (camera without addr skipped)", len(pings))
	}

	byID := map[string]models.CameraPing{}
	for _, p := range pings {
		byID[p.CameraID] = p
	}
	if !byID["cam-up"].Connected {
		t.Error("cam-up should be connected")
	}
	if byID["cam-up"].ResponseTimeMs < 0 {
		t.Error("cam-up response time should be recorded")
	}
	if byID["cam-down"].Connected {
		t.Error("cam-down should be unreachable")
	}

	latest := m.Latest()
	if len(latest) != 2 {
		t.Errorf("Latest holds %d entries, want 2", len(latest))
	}
}

func TestCameraMonitorStartStopIdempotent(t *testing.T) {
	cfg := &config.Config{
		CameraMonitorInterval: time.Hour,
		CameraDialTimeout:     time.Millisecond,
	}
	m := NewCameraMonitor(cfg, &staticCameras{}, &fakePingStore{}, zerolog.Nop())

	m.Start()
	m.Start()
	if !m.Active() {
		t.Error("monitor should be active after Start")
	}
	m.Stop()
	m.Stop()
	if m.Active() {
		t.Error("monitor should be inactive after Stop")
	}
}
