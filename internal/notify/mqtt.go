package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// ErrPublishTimeout is returned when the broker does not acknowledge a
// publish in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Timeout     time.Duration
}

// publisher is the subset of mqtt.Client used here.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTNotifier publishes events as JSON to <prefix>/<tenant>/<event type>
// with QoS 1.
type MQTTNotifier struct {
	client  publisher
	prefix  string
	timeout time.Duration
	log     log.FieldLogger
}

// NewMQTTNotifier connects to the broker and returns a notifier. The client
// reconnects on its own after the initial connection succeeds.
func NewMQTTNotifier(cfg MQTTConfig, logger log.FieldLogger) (*MQTTNotifier, mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.WithError(err).Warn("MQTT connection lost")
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.WithField("broker", cfg.BrokerURL).Info("Connected to MQTT broker")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, nil, fmt.Errorf("connect to %s: %w", cfg.BrokerURL, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", cfg.BrokerURL, err)
	}
	return newMQTTNotifier(client, cfg, logger), client, nil
}

func newMQTTNotifier(client publisher, cfg MQTTConfig, logger log.FieldLogger) *MQTTNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "fleet"
	}
	return &MQTTNotifier{client: client, prefix: prefix, timeout: timeout, log: logger}
}

// Topic returns the topic an event is published to.
func (n *MQTTNotifier) Topic(e Event) string {
	return fmt.Sprintf("%s/%s/%s", n.prefix, e.TenantID.Hex(), e.Type)
}

// Notify publishes e and waits for the broker's acknowledgement, the
// configured timeout or ctx, whichever comes first.
func (n *MQTTNotifier) Notify(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	topic := n.Topic(e)
	token := n.client.Publish(topic, 1, false, payload)

	timer := time.NewTimer(n.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	n.log.WithFields(log.Fields{"topic": topic, "event_id": e.ID}).Debug("Published notification")
	return nil
}
