package lifecycle

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/models"
	"digefx-monitor-go/internal/services/capture"
	"digefx-monitor-go/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		HandlerTimeout:        time.Second,
		EventHistoryMax:       100,
		CheckInterval:         20 * time.Millisecond,
		MaxCameras:            10,
		StopTimeout:           time.Second,
		MaxRestarts:           3,
		FrameInterval:         time.Millisecond,
		FailureCeiling:        5,
		BackoffMin:            time.Millisecond,
		BackoffMax:            5 * time.Millisecond,
		HostMonitorInterval:   time.Hour,
		CameraMonitorInterval: time.Hour,
		CameraDialTimeout:     50 * time.Millisecond,
	}
}

type scriptedSession struct {
	mu    sync.Mutex
	calls int
}

func (s *scriptedSession) Capture(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return []byte{0xff, 0xd8}, nil
}

func (s *scriptedSession) Close() error { return nil }

type stubSource struct{}

func (stubSource) Open(ctx context.Context, cam models.CameraConfig) (capture.Session, error) {
	return &scriptedSession{}, nil
}

// stubEngine yields one detection for each camera listed in hits, once.
type stubEngine struct {
	mu   sync.Mutex
	hits map[string]bool
}

func (e *stubEngine) Detect(ctx context.Context, cameraID string, frame []byte) ([]models.Detection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hits[cameraID] {
		delete(e.hits, cameraID)
		return []models.Detection{{ClassName: "person", Confidence: 0.87,
			BBox: models.BBox{X: 10, Y: 20, Width: 50, Height: 120}}}, nil
	}
	return nil, nil
}

func testManager(t *testing.T, hits map[string]bool) (*Manager, *store.Store) {
	t.Helper()
	cfg := testConfig()

	st, err := store.OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}

	ctx := context.Background()
	st.UpsertCamera(ctx, models.CameraConfig{ID: "cam-01", Name: "Gate", SnapshotURL: "http://cam-01/snap"}, true)
	st.UpsertCamera(ctx, models.CameraConfig{ID: "cam-02", Name: "Dock", SnapshotURL: "http://cam-02/snap"}, true)

	m := NewManager(cfg, Deps{
		Store:   st,
		Cameras: st,
		Capture: stubSource{},
		Engine:  &stubEngine{hits: hits},
	})
	t.Cleanup(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Shutdown(sctx)
	})
	return m, st
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func TestStartupRunsSubsystemAndMonitors(t *testing.T) {
	m, _ := testManager(t, nil)
	ctx := context.Background()

	if err := m.Startup(ctx); err != nil {
		t.Fatalf("Startup: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return m.Status().AlertProcessing.CamerasProcessing == 2
	}, "both registered cameras should be processing")

	st := m.Status()
	if !st.IsRunning || st.Status != "running" {
		t.Errorf("status = %+v, want running", st)
	}
	if !st.BasicMonitors.HostMonitor || !st.BasicMonitors.CameraMonitor {
		t.Errorf("monitors = %+v, want both active", st.BasicMonitors)
	}
}

func TestAlertFlowsThroughToStatusAndHistory(t *testing.T) {
	m, _ := testManager(t, map[string]bool{"cam-01": true})
	ctx := context.Background()

	if err := m.Startup(ctx); err != nil {
		t.Fatalf("Startup: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		st := m.Status()
		return st.AlertProcessing.CamerasProcessing == 2 &&
			st.AlertProcessing.TotalAlertsProcessed == 1
	}, "status should show cameras_processing=2, total_alerts_processed=1")

	hist := m.History(0)
	if len(hist) != 1 {
		t.Fatalf("history holds %d events, want exactly 1 (cam-02 stays idle)", len(hist))
	}
	if hist[0].CameraID != "cam-01" {
		t.Errorf("alert came from %s, want cam-01", hist[0].CameraID)
	}
}

func TestStopLeavesMonitorsRunning(t *testing.T) {
	m, _ := testManager(t, nil)
	ctx := context.Background()

	if err := m.Startup(ctx); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	st := m.Status()
	if st.IsRunning {
		t.Error("alert subsystem should be stopped")
	}
	if st.AlertProcessing.CamerasProcessing != 0 {
		t.Errorf("cameras processing = %d after stop, want 0", st.AlertProcessing.CamerasProcessing)
	}
	if !st.BasicMonitors.HostMonitor || !st.BasicMonitors.CameraMonitor {
		t.Error("stop must leave health monitors running")
	}
	if st.BasicMonitors.Status != "active" {
		t.Errorf("monitors status = %q, want active", st.BasicMonitors.Status)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	m, _ := testManager(t, nil)
	ctx := context.Background()

	if err := m.Startup(ctx); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start on running subsystem should be a no-op, got %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop on stopped subsystem should be a no-op, got %v", err)
	}
}

func TestRestartRecoversProcessing(t *testing.T) {
	m, _ := testManager(t, nil)
	ctx := context.Background()

	if err := m.Startup(ctx); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	if err := m.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return m.Status().AlertProcessing.CamerasProcessing == 2
	}, "processing should resume after restart")
}

func TestHealthyAfterStartupAndAfterCleanStop(t *testing.T) {
	m, _ := testManager(t, nil)
	ctx := context.Background()

	if m.Healthy() {
		t.Error("manager should not report healthy before startup")
	}
	if err := m.Startup(ctx); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	if !m.Healthy() {
		t.Error("manager should report healthy when running")
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !m.Healthy() {
		t.Error("a cleanly stopped subsystem is still healthy")
	}
}
