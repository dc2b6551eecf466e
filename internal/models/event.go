package models

import (
	"time"
)

// EventType identifies the kind of event flowing over the bus.
// The set is fixed; handlers subscribe to these constants, never to
// runtime-built strings.
type EventType string

const (
	EventAlertDetected     EventType = "camera_alert_detected"
	EventProcessingStarted EventType = "camera_processing_started"
	EventProcessingStopped EventType = "camera_processing_stopped"
)

// Wire identity fields attached by the sink handlers.
const (
	SourceName  = "digefx-monitor"
	WireVersion = "1.0"
)

// BBox is a detection bounding box in pixel coordinates.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one classified object instance produced by inference.
type Detection struct {
	ClassID    int                    `json:"class_id"`
	ClassName  string                 `json:"class_name"`
	Confidence float64                `json:"confidence"`
	BBox       BBox                   `json:"bbox"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// AlertEvent is an immutable record of one or more detections from one
// camera at one point in time. Once published it must not be mutated;
// every sink handler receives the same instance.
type AlertEvent struct {
	EventID     string                 `json:"event_id"`
	EventType   EventType              `json:"event_type"`
	CameraID    string                 `json:"camera_id"`
	CameraName  string                 `json:"camera_name,omitempty"`
	Detections  []Detection            `json:"detections"`
	Timestamp   time.Time              `json:"timestamp"`
	SnapshotURL string                 `json:"snapshot_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// Triggering frame bytes, kept out of the serialized payload.
	RawFrame []byte `json:"-"`
}

// PrimaryClass returns the class name of the highest-confidence detection,
// used to derive broker topics and routing keys.
func (e *AlertEvent) PrimaryClass() string {
	if len(e.Detections) == 0 {
		return ""
	}
	best := e.Detections[0]
	for _, d := range e.Detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best.ClassName
}

// Envelope is the wire shape of an AlertEvent at external boundaries.
type Envelope struct {
	*AlertEvent
	Source  string `json:"source"`
	Version string `json:"version"`
}

// NewEnvelope wraps an event with the source/version fields brokers and
// the registration API expect.
func NewEnvelope(evt *AlertEvent) Envelope {
	return Envelope{AlertEvent: evt, Source: SourceName, Version: WireVersion}
}

// HandlerOutcome records the result of one sink handler invocation for one
// published event. Produced per publish call, logged, never persisted.
type HandlerOutcome struct {
	HandlerName string        `json:"handler_name"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Latency     time.Duration `json:"latency"`
}
