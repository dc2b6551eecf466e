package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Port)
	}
	if cfg.CheckInterval != 30*time.Second {
		t.Errorf("CheckInterval = %v, want 30s", cfg.CheckInterval)
	}
	if cfg.MaxCameras != 10 {
		t.Errorf("MaxCameras = %d, want 10", cfg.MaxCameras)
	}
	if cfg.FailureCeiling != 5 {
		t.Errorf("FailureCeiling = %d, want 5", cfg.FailureCeiling)
	}
	if cfg.MqttTopicPrefix != "digefx/alerts" {
		t.Errorf("MqttTopicPrefix = %q, want digefx/alerts", cfg.MqttTopicPrefix)
	}
	if cfg.NatsSubjectPrefix != "digefx.alerts" {
		t.Errorf("NatsSubjectPrefix = %q, want digefx.alerts", cfg.NatsSubjectPrefix)
	}
	if !cfg.StorageEnabled {
		t.Error("StorageEnabled should default to true")
	}
	if cfg.RegistryEnabled {
		t.Error("RegistryEnabled should default to false")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CHECK_INTERVAL", "5s")
	t.Setenv("MAX_CAMERAS", "3")
	t.Setenv("FAILURE_CEILING", "2")
	t.Setenv("MQTT_ENABLED", "false")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("DB_PATH", "/tmp/test.db")

	cfg := Load()

	if cfg.CheckInterval != 5*time.Second {
		t.Errorf("CheckInterval = %v, want 5s", cfg.CheckInterval)
	}
	if cfg.MaxCameras != 3 {
		t.Errorf("MaxCameras = %d, want 3", cfg.MaxCameras)
	}
	if cfg.FailureCeiling != 2 {
		t.Errorf("FailureCeiling = %d, want 2", cfg.FailureCeiling)
	}
	if cfg.MqttEnabled {
		t.Error("MqttEnabled should be overridden to false")
	}
	if cfg.NatsURL != "nats://broker:4222" {
		t.Errorf("NatsURL = %q, want nats://broker:4222", cfg.NatsURL)
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want /tmp/test.db", cfg.DBPath)
	}
}

func TestGetEnvParseFailureFallsBack(t *testing.T) {
	t.Setenv("MAX_CAMERAS", "not-a-number")
	t.Setenv("CHECK_INTERVAL", "soon")

	cfg := Load()

	if cfg.MaxCameras != 10 {
		t.Errorf("MaxCameras = %d, want default 10 on parse failure", cfg.MaxCameras)
	}
	if cfg.CheckInterval != 30*time.Second {
		t.Errorf("CheckInterval = %v, want default 30s on parse failure", cfg.CheckInterval)
	}
}
