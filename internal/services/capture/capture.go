package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/models"
)

// Source opens capture sessions for cameras. A Session owns whatever
// connection or handle the device needs and must be closed by the
// processor when its loop ends.
type Source interface {
	Open(ctx context.Context, cam models.CameraConfig) (Session, error)
}

// Session produces raw frames for one camera.
type Session interface {
	Capture(ctx context.Context) ([]byte, error)
	Close() error
}

// HTTPSource captures frames from per-camera HTTP snapshot endpoints.
type HTTPSource struct {
	client *http.Client
	logger zerolog.Logger
}

func NewHTTPSource(cfg *config.Config) *HTTPSource {
	return &HTTPSource{
		client: &http.Client{Timeout: cfg.CaptureTimeout},
		logger: log.With().Str("service", "capture").Logger(),
	}
}

func (s *HTTPSource) Open(ctx context.Context, cam models.CameraConfig) (Session, error) {
	if cam.SnapshotURL == "" {
		return nil, fmt.Errorf("camera %s has no snapshot URL configured", cam.ID)
	}

	s.logger.Debug().Str("camera_id", cam.ID).Str("url", cam.SnapshotURL).Msg("Capture session opened")

	return &httpSession{
		client:   s.client,
		cameraID: cam.ID,
		url:      cam.SnapshotURL,
	}, nil
}

type httpSession struct {
	client   *http.Client
	cameraID string
	url      string
	closed   bool
}

func (s *httpSession) Capture(ctx context.Context) ([]byte, error) {
	if s.closed {
		return nil, fmt.Errorf("capture session for camera %s is closed", s.cameraID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request failed for camera %s: %w", s.cameraID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("snapshot endpoint for camera %s returned %d", s.cameraID, resp.StatusCode)
	}

	frame, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot body for camera %s: %w", s.cameraID, err)
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty frame from camera %s", s.cameraID)
	}
	return frame, nil
}

func (s *httpSession) Close() error {
	s.closed = true
	return nil
}
