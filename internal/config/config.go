package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	MonitorID   string
	Port        int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// SQLite store (camera registry, alerts, monitor history)
	DBPath string

	// Event bus
	HandlerTimeout  time.Duration
	EventHistoryMax int

	// Alert coordinator
	CheckInterval time.Duration
	MaxCameras    int
	StopTimeout   time.Duration
	MaxRestarts   int

	// Camera processors
	FrameInterval  time.Duration
	FailureCeiling int
	BackoffMin     time.Duration
	BackoffMax     time.Duration
	BackoffJitter  int // percent

	// Capture (HTTP snapshot endpoint per camera)
	CaptureTimeout time.Duration

	// Inference (HTTP detection API)
	InferenceURL     string
	InferenceTimeout time.Duration

	// Storage sink
	StorageEnabled    bool
	StorageMaxRetries int

	// MQTT sink (configured for the local broker by default)
	// Docker: use the compose service name as MQTT_HOST
	MqttEnabled     bool
	MqttHost        string
	MqttPort        int
	MqttUsername    string
	MqttPassword    string
	MqttClientID    string
	MqttTopicPrefix string
	MqttQoS         int

	// NATS sink
	// Default: nats://localhost:4222 (works with Docker Compose setup)
	// Docker: Use nats://nats:4222 if running the monitor in Docker
	NatsEnabled        bool
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	NatsSubjectPrefix  string

	// Registry sink (external HTTP registration API)
	RegistryEnabled    bool
	RegistryURL        string
	RegistryTimeout    time.Duration
	RegistryMaxRetries int

	// MinIO snapshot store (optional)
	MinioEnabled   bool
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioPublicURL string

	// Health monitors
	HostMonitorInterval   time.Duration
	CameraMonitorInterval time.Duration
	CameraDialTimeout     time.Duration

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		MonitorID:   getEnv("MONITOR_ID", "monitor-1"),
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Logdy (lightweight web log viewer)
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// SQLite store
		DBPath: getEnv("DB_PATH", "digefx.db"),

		// Event bus
		HandlerTimeout:  getEnvDuration("HANDLER_TIMEOUT", 30*time.Second),
		EventHistoryMax: getEnvInt("EVENT_HISTORY_MAX", 1000),

		// Alert coordinator
		CheckInterval: getEnvDuration("CHECK_INTERVAL", 30*time.Second),
		MaxCameras:    getEnvInt("MAX_CAMERAS", 10),
		StopTimeout:   getEnvDuration("STOP_TIMEOUT", 10*time.Second),
		MaxRestarts:   getEnvInt("MAX_RESTARTS", 3),

		// Camera processors
		FrameInterval:  getEnvDuration("FRAME_INTERVAL", 1*time.Second),
		FailureCeiling: getEnvInt("FAILURE_CEILING", 5),
		BackoffMin:     getEnvDuration("BACKOFF_MIN", 1*time.Second),
		BackoffMax:     getEnvDuration("BACKOFF_MAX", 30*time.Second),
		BackoffJitter:  getEnvInt("BACKOFF_JITTER_PCT", 20),

		// Capture
		CaptureTimeout: getEnvDuration("CAPTURE_TIMEOUT", 10*time.Second),

		// Inference
		InferenceURL:     getEnv("INFERENCE_URL", "http://localhost:8500"),
		InferenceTimeout: getEnvDuration("INFERENCE_TIMEOUT", 5*time.Second),

		// Storage sink
		StorageEnabled:    getEnvBool("STORAGE_ENABLED", true),
		StorageMaxRetries: getEnvInt("STORAGE_MAX_RETRIES", 3),

		// MQTT sink
		MqttEnabled:     getEnvBool("MQTT_ENABLED", true),
		MqttHost:        getEnv("MQTT_HOST", "localhost"),
		MqttPort:        getEnvInt("MQTT_PORT", 1883),
		MqttUsername:    getEnv("MQTT_USERNAME", ""),
		MqttPassword:    getEnv("MQTT_PASSWORD", ""),
		MqttClientID:    getEnv("MQTT_CLIENT_ID", "digefx-monitor"),
		MqttTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "digefx/alerts"),
		MqttQoS:         getEnvInt("MQTT_QOS", 1),

		// NATS sink (configured for Docker Compose setup)
		NatsEnabled:        getEnvBool("NATS_ENABLED", true),
		NatsURL:            getNatsURL(),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		NatsSubjectPrefix:  getEnv("NATS_SUBJECT_PREFIX", "digefx.alerts"),

		// Registry sink
		RegistryEnabled:    getEnvBool("REGISTRY_ENABLED", false),
		RegistryURL:        getEnv("REGISTRY_URL", "http://localhost:5000"),
		RegistryTimeout:    getEnvDuration("REGISTRY_TIMEOUT", 10*time.Second),
		RegistryMaxRetries: getEnvInt("REGISTRY_MAX_RETRIES", 3),

		// MinIO snapshot store
		MinioEnabled:   getEnvBool("MINIO_ENABLED", false),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getEnv("MINIO_BUCKET", "digefx-snapshots"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioPublicURL: getEnv("MINIO_PUBLIC_URL", ""),

		// Health monitors
		HostMonitorInterval:   getEnvDuration("HOST_MONITOR_INTERVAL", 10*time.Second),
		CameraMonitorInterval: getEnvDuration("CAMERA_MONITOR_INTERVAL", 10*time.Second),
		CameraDialTimeout:     getEnvDuration("CAMERA_DIAL_TIMEOUT", 3*time.Second),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Helper functions for Docker environment detection
func isRunningInDocker() bool {
	// Check for Docker-specific environment indicators
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}

	// Check for .dockerenv file
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}

	// If running in Docker, use service name; otherwise use localhost
	if isRunningInDocker() {
		return "nats://nats:4222"
	}

	return "nats://localhost:4222"
}
