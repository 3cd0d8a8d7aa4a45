package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/specialist-referral/config"
	"github.com/amirphl/specialist-referral/utils"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// NewMQTTClient connects to the broker configured in cfg
func NewMQTTClient(cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

// MQTTChannel publishes the message to <prefix>/<phone> for the device push gateway
type MQTTChannel struct {
	name        string
	client      mqtt.Client
	topicPrefix string
	qos         byte
	timeout     time.Duration
}

// NewMQTTChannel creates the channel over a connected client
func NewMQTTChannel(name string, client mqtt.Client, topicPrefix string, qos int, timeout time.Duration) *MQTTChannel {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if qos < 0 || qos > 2 {
		qos = 1
	}
	return &MQTTChannel{
		name:        name,
		client:      client,
		topicPrefix: strings.TrimSuffix(topicPrefix, "/"),
		qos:         byte(qos),
		timeout:     timeout,
	}
}

func (m *MQTTChannel) Name() string { return m.name }

func (m *MQTTChannel) Send(ctx context.Context, phone, message string) (*ChannelResponse, error) {
	envelope := OutboundMessage{
		ID:       uuid.NewString(),
		Phone:    phone,
		Message:  message,
		QueuedAt: utils.UTCNow(),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mqtt message: %w", err)
	}

	topic := m.topicPrefix + "/" + phone
	token := m.client.Publish(topic, m.qos, false, payload)

	wait := m.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
	}
	if !token.WaitTimeout(wait) {
		return nil, fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}

	raw, _ := json.Marshal(map[string]string{"topic": topic, "message_id": envelope.ID})
	return &ChannelResponse{Raw: raw}, nil
}
