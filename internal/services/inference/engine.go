package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/models"
)

// Engine runs object detection on one raw frame. An empty detection slice
// with a nil error is the normal idle result.
type Engine interface {
	Detect(ctx context.Context, cameraID string, frame []byte) ([]models.Detection, error)
}

// HTTPEngine calls an external detection API over HTTP.
type HTTPEngine struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

func NewHTTPEngine(cfg *config.Config) (*HTTPEngine, error) {
	if _, err := url.Parse(cfg.InferenceURL); err != nil || cfg.InferenceURL == "" {
		return nil, fmt.Errorf("invalid inference URL %q: %w", cfg.InferenceURL, err)
	}

	log.Info().Str("url", cfg.InferenceURL).Msg("Inference engine initialized")

	return &HTTPEngine{
		baseURL: cfg.InferenceURL,
		client:  &http.Client{Timeout: cfg.InferenceTimeout},
		logger:  log.With().Str("service", "inference").Logger(),
	}, nil
}

type detectResponse struct {
	Detections []models.Detection `json:"detections"`
}

func (e *HTTPEngine) Detect(ctx context.Context, cameraID string, frame []byte) ([]models.Detection, error) {
	endpoint := fmt.Sprintf("%s/api/detect?camera_id=%s", e.baseURL, url.QueryEscape(cameraID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect request failed for camera %s: %w", cameraID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("detection API returned %d for camera %s", resp.StatusCode, cameraID)
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode detection response: %w", err)
	}

	e.logger.Debug().
		Str("camera_id", cameraID).
		Int("detections", len(decoded.Detections)).
		Msg("Inference completed")

	return decoded.Detections, nil
}
