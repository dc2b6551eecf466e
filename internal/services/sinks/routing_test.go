package sinks

import (
	"reflect"
	"testing"

	"digefx-monitor-go/internal/models"
)

func TestMqttTopics(t *testing.T) {
	evt := &models.AlertEvent{
		CameraID: "cam-01",
		Detections: []models.Detection{
			{ClassName: "car", Confidence: 0.4},
			{ClassName: "person", Confidence: 0.9},
		},
	}

	got := mqttTopics("digefx/alerts", evt)
	want := []string{
		"digefx/alerts/all",
		"digefx/alerts/camera/cam-01",
		"digefx/alerts/type/person",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mqttTopics = %v, want %v", got, want)
	}
}

func TestMqttTopicsWithoutDetections(t *testing.T) {
	evt := &models.AlertEvent{CameraID: "cam-01"}

	got := mqttTopics("digefx/alerts", evt)
	if len(got) != 2 {
		t.Errorf("got %d topics, want 2 (no type topic without detections)", len(got))
	}
}

func TestEventSubject(t *testing.T) {
	cases := []struct {
		name string
		evt  *models.AlertEvent
		want string
	}{
		{
			"plain ids",
			&models.AlertEvent{
				CameraID:   "cam-01",
				Detections: []models.Detection{{ClassName: "person", Confidence: 0.9}},
			},
			"digefx.alerts.camera.cam-01.type.person",
		},
		{
			"ids sanitized for subject grammar",
			&models.AlertEvent{
				CameraID:   "dock 1.a",
				Detections: []models.Detection{{ClassName: "fork lift", Confidence: 0.8}},
			},
			"digefx.alerts.camera.dock-1-a.type.fork-lift",
		},
		{
			"no detections",
			&models.AlertEvent{CameraID: "cam-01"},
			"digefx.alerts.camera.cam-01",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := eventSubject("digefx.alerts", tc.evt); got != tc.want {
				t.Errorf("eventSubject = %q, want %q", got, tc.want)
			}
		})
	}
}
