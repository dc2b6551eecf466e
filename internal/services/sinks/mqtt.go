package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/models"
)

const mqttPublishWait = 10 * time.Second

// MQTTHandler publishes alert events to an MQTT broker on a fan of
// topics derived from the event. Paho owns the reconnect loop; while the
// connection is down the handler reports failed outcomes and recovers on
// its own once the broker is back.
type MQTTHandler struct {
	client      mqtt.Client
	topicPrefix string
	qos         byte
	logger      zerolog.Logger
}

func NewMQTTHandler(cfg *config.Config, logger zerolog.Logger) (*MQTTHandler, error) {
	if cfg.MqttHost == "" {
		return nil, errors.New("MQTT_HOST not configured")
	}

	h := &MQTTHandler{
		topicPrefix: cfg.MqttTopicPrefix,
		qos:         byte(cfg.MqttQoS),
		logger:      logger.With().Str("handler", "mqtt").Logger(),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MqttHost, cfg.MqttPort))
	opts.SetClientID(cfg.MqttClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	if cfg.MqttUsername != "" {
		opts.SetUsername(cfg.MqttUsername)
		opts.SetPassword(cfg.MqttPassword)
	}
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		h.logger.Info().Str("host", cfg.MqttHost).Int("port", cfg.MqttPort).Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		h.logger.Warn().Err(err).Msg("MQTT connection lost, reconnecting in background")
	})

	h.client = mqtt.NewClient(opts)

	// With connect-retry enabled the token keeps trying in the background;
	// a broker that is down at boot only delays the handler going active.
	token := h.client.Connect()
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		h.logger.Warn().Err(token.Error()).Msg("Initial MQTT connect failed, retrying in background")
	}

	return h, nil
}

func (h *MQTTHandler) Name() string { return "mqtt" }

func (h *MQTTHandler) Active() bool { return h.client.IsConnected() }

func (h *MQTTHandler) HandleEvent(ctx context.Context, evt *models.AlertEvent) error {
	if !h.client.IsConnected() {
		return errors.New("mqtt broker not connected")
	}

	payload, err := json.Marshal(models.NewEnvelope(evt))
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", evt.EventID, err)
	}

	var errs []error
	for _, topic := range mqttTopics(h.topicPrefix, evt) {
		token := h.client.Publish(topic, h.qos, false, payload)
		if !token.WaitTimeout(mqttPublishWait) {
			errs = append(errs, fmt.Errorf("publish to %s timed out", topic))
			continue
		}
		if err := token.Error(); err != nil {
			errs = append(errs, fmt.Errorf("publish to %s failed: %w", topic, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	h.logger.Debug().Str("event_id", evt.EventID).Str("camera_id", evt.CameraID).Msg("Event published to MQTT")
	return nil
}

func (h *MQTTHandler) Close(ctx context.Context) error {
	if h.client.IsConnected() {
		h.client.Disconnect(250)
	}
	h.logger.Info().Msg("MQTT handler closed")
	return nil
}

// mqttTopics derives the broadcast, per-camera and per-class topics for
// one event. The class topic is omitted when the event has no detections.
func mqttTopics(prefix string, evt *models.AlertEvent) []string {
	topics := []string{
		prefix + "/all",
		fmt.Sprintf("%s/camera/%s", prefix, evt.CameraID),
	}
	if class := evt.PrimaryClass(); class != "" {
		topics = append(topics, fmt.Sprintf("%s/type/%s", prefix, class))
	}
	return topics
}
