package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"digefx-monitor-go/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestActiveCamerasReturnsOnlyActiveOrdered(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	cams := []struct {
		cam    models.CameraConfig
		active bool
	}{
		{models.CameraConfig{ID: "cam-02", Name: "Dock"}, true},
		{models.CameraConfig{ID: "cam-01", Name: "Gate"}, true},
		{models.CameraConfig{ID: "cam-03", Name: "Roof"}, false},
	}
	for _, c := range cams {
		if err := s.UpsertCamera(ctx, c.cam, c.active); err != nil {
			t.Fatalf("UpsertCamera(%s): %v", c.cam.ID, err)
		}
	}

	got, err := s.ActiveCameras(ctx)
	if err != nil {
		t.Fatalf("ActiveCameras: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d cameras, want 2", len(got))
	}
	if got[0].ID != "cam-01" || got[1].ID != "cam-02" {
		t.Errorf("cameras not ordered by id: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestUpsertCameraUpdatesExistingRow(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.UpsertCamera(ctx, models.CameraConfig{ID: "cam-01", Name: "Gate"}, true)
	s.UpsertCamera(ctx, models.CameraConfig{ID: "cam-01", Name: "Gate North"}, true)

	got, err := s.ActiveCameras(ctx)
	if err != nil {
		t.Fatalf("ActiveCameras: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d cameras, want 1", len(got))
	}
	if got[0].Name != "Gate North" {
		t.Errorf("Name = %q, want updated name", got[0].Name)
	}
}

func TestSaveAlertAndCount(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.UpsertCamera(ctx, models.CameraConfig{ID: "cam-01"}, true)

	evt := &models.AlertEvent{
		EventID:   uuid.NewString(),
		EventType: models.EventAlertDetected,
		CameraID:  "cam-01",
		Detections: []models.Detection{
			{ClassID: 0, ClassName: "person", Confidence: 0.87,
				BBox: models.BBox{X: 10, Y: 20, Width: 50, Height: 120}},
		},
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]interface{}{"frame_bytes": 1024},
	}
	if err := s.SaveAlert(ctx, evt); err != nil {
		t.Fatalf("SaveAlert: %v", err)
	}

	n, err := s.AlertCount(ctx)
	if err != nil {
		t.Fatalf("AlertCount: %v", err)
	}
	if n != 1 {
		t.Errorf("AlertCount = %d, want 1", n)
	}
}

func TestSaveAlertUnknownCamera(t *testing.T) {
	s := testStore(t)

	evt := &models.AlertEvent{
		EventID:    uuid.NewString(),
		EventType:  models.EventAlertDetected,
		CameraID:   "ghost",
		Detections: []models.Detection{{ClassName: "person", Confidence: 0.5}},
		Timestamp:  time.Now().UTC(),
	}
	err := s.SaveAlert(context.Background(), evt)
	if !errors.Is(err, ErrUnknownCamera) {
		t.Fatalf("err = %v, want ErrUnknownCamera", err)
	}
}

func TestMonitorRows(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SaveHostStatus(ctx, models.HostSnapshot{
		CPUPercent: 12.5, MemPercent: 40.1, DiskPercent: 71.0,
		Online: true, Timestamp: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("SaveHostStatus: %v", err)
	}

	if err := s.SaveCameraStatus(ctx, models.CameraPing{
		CameraID: "cam-01", Connected: true, ResponseTimeMs: 4.2,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("SaveCameraStatus: %v", err)
	}
}
