package models

import (
	"time"
)

// CameraConfig describes one camera as returned by the registry.
type CameraConfig struct {
	ID          string `json:"camera_id"`
	Name        string `json:"name"`
	Addr        string `json:"addr"`
	SnapshotURL string `json:"snapshot_url"`
}

// ProcessorState is the atomic state of a camera processor.
type ProcessorState int32

const (
	ProcessorStarting ProcessorState = iota
	ProcessorRunning
	ProcessorStopping
	ProcessorStopped
	ProcessorError
)

func (s ProcessorState) String() string {
	switch s {
	case ProcessorStarting:
		return "starting"
	case ProcessorRunning:
		return "running"
	case ProcessorStopping:
		return "stopping"
	case ProcessorStopped:
		return "stopped"
	case ProcessorError:
		return "error"
	default:
		return "unknown"
	}
}

// ProcessorStatus is a point-in-time copy of one processor's record.
// Snapshots are safe to hand to the control surface; they never alias
// the coordinator's live table.
type ProcessorStatus struct {
	CameraID            string    `json:"camera_id"`
	CameraName          string    `json:"camera_name,omitempty"`
	Status              string    `json:"status"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Restarts            int       `json:"restarts"`
	FramesProcessed     int64     `json:"frames_processed"`
	AlertsDetected      int64     `json:"alerts_detected"`
	AvgCycleMs          float64   `json:"avg_cycle_ms"`
	LastActivity        time.Time `json:"last_activity"`
	StartedAt           time.Time `json:"started_at"`
	LastError           string    `json:"last_error,omitempty"`
}

// HostSnapshot is one reading from the host monitor.
type HostSnapshot struct {
	CPUPercent  float64   `json:"cpu_percent"`
	MemPercent  float64   `json:"mem_percent"`
	DiskPercent float64   `json:"disk_percent"`
	Online      bool      `json:"online"`
	Timestamp   time.Time `json:"timestamp"`
}

// CameraPing is one connectivity reading for a single camera.
type CameraPing struct {
	CameraID       string    `json:"camera_id"`
	Connected      bool      `json:"connected"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	Timestamp      time.Time `json:"timestamp"`
}
