package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/models"
	"digefx-monitor-go/internal/store"
)

type fakeAlertStore struct {
	saves    int
	failures int // fail the first N saves
	err      error
}

func (f *fakeAlertStore) SaveAlert(ctx context.Context, evt *models.AlertEvent) error {
	f.saves++
	if f.err != nil {
		return f.err
	}
	if f.saves <= f.failures {
		return errors.New("disk full")
	}
	return nil
}

func storageEvent() *models.AlertEvent {
	return &models.AlertEvent{
		EventID:    uuid.NewString(),
		EventType:  models.EventAlertDetected,
		CameraID:   "cam-01",
		Detections: []models.Detection{{ClassName: "person", Confidence: 0.9}},
		Timestamp:  time.Now().UTC(),
	}
}

func TestStorageHandlerRetriesThenSucceeds(t *testing.T) {
	fake := &fakeAlertStore{failures: 2}
	h := NewStorageHandler(&config.Config{StorageMaxRetries: 3}, fake, zerolog.Nop())

	if err := h.HandleEvent(context.Background(), storageEvent()); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if fake.saves != 3 {
		t.Errorf("saves = %d, want 3 (2 failures + 1 success)", fake.saves)
	}
}

func TestStorageHandlerDropsAfterExhaustingRetries(t *testing.T) {
	fake := &fakeAlertStore{err: errors.New("disk full")}
	h := NewStorageHandler(&config.Config{StorageMaxRetries: 2}, fake, zerolog.Nop())

	if err := h.HandleEvent(context.Background(), storageEvent()); err == nil {
		t.Fatal("HandleEvent should report failure after exhausting retries")
	}
	if fake.saves != 3 {
		t.Errorf("saves = %d, want 3 attempts", fake.saves)
	}
}

func TestStorageHandlerDropsUnknownCameraWithoutRetry(t *testing.T) {
	fake := &fakeAlertStore{err: store.ErrUnknownCamera}
	h := NewStorageHandler(&config.Config{StorageMaxRetries: 3}, fake, zerolog.Nop())

	err := h.HandleEvent(context.Background(), storageEvent())
	if !errors.Is(err, store.ErrUnknownCamera) {
		t.Fatalf("err = %v, want ErrUnknownCamera", err)
	}
	if fake.saves != 1 {
		t.Errorf("saves = %d, unknown camera must not be retried", fake.saves)
	}
}

func TestStorageHandlerRejectsMalformedEvents(t *testing.T) {
	fake := &fakeAlertStore{}
	h := NewStorageHandler(&config.Config{StorageMaxRetries: 3}, fake, zerolog.Nop())

	cases := []struct {
		name string
		evt  *models.AlertEvent
	}{
		{"missing camera id", &models.AlertEvent{
			Detections: []models.Detection{{Confidence: 0.5}},
		}},
		{"no detections", &models.AlertEvent{CameraID: "cam-01"}},
		{"confidence out of range", &models.AlertEvent{
			CameraID:   "cam-01",
			Detections: []models.Detection{{Confidence: 1.5}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := h.HandleEvent(context.Background(), tc.evt); err == nil {
				t.Error("malformed event should be rejected")
			}
		})
	}
	if fake.saves != 0 {
		t.Errorf("saves = %d, malformed events must never reach the store", fake.saves)
	}
}
