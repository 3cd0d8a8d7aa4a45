package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirphl/specialist-referral/utils"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// KafkaWriter is the subset of *kafka.Writer the channel needs
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboundMessage is the envelope published on queue-based channels
type OutboundMessage struct {
	ID       string    `json:"id"`
	Phone    string    `json:"phone"`
	Message  string    `json:"message"`
	QueuedAt time.Time `json:"queued_at"`
}

// KafkaChannel hands the message to a downstream delivery worker through a topic.
// A successful write means the broker accepted it.
type KafkaChannel struct {
	name   string
	topic  string
	writer KafkaWriter
}

// NewKafkaWriter builds a writer the way the consumers in this stack expect
func NewKafkaWriter(brokers []string, batchTimeout time.Duration) *kafka.Writer {
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}
}

// NewKafkaChannel creates a queue channel publishing to topic
func NewKafkaChannel(name, topic string, writer KafkaWriter) *KafkaChannel {
	return &KafkaChannel{name: name, topic: topic, writer: writer}
}

func (k *KafkaChannel) Name() string { return k.name }

func (k *KafkaChannel) Send(ctx context.Context, phone, message string) (*ChannelResponse, error) {
	envelope := OutboundMessage{
		ID:       uuid.NewString(),
		Phone:    phone,
		Message:  message,
		QueuedAt: utils.UTCNow(),
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal kafka message: %w", err)
	}

	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic: k.topic,
		Key:   []byte(phone),
		Value: value,
	}); err != nil {
		return nil, fmt.Errorf("failed to publish to topic %s: %w", k.topic, err)
	}

	raw, _ := json.Marshal(map[string]string{"topic": k.topic, "message_id": envelope.ID})
	return &ChannelResponse{Raw: raw}, nil
}
