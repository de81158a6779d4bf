package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Message headers set on every published event
const (
	HeaderEventType = "event-type"
	HeaderTenantID  = "tenant-id"
	HeaderEventID   = "event-id"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher publishes events to a single Kafka topic keyed by entity id,
// so all events of one loan land on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates a publisher writing to topic on the given brokers
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafkago.RequireAll,
		},
		topic: topic,
	}
}

// Publish serializes the event and writes it synchronously
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}

	msg := kafkago.Message{
		Key:   []byte(messageKey(event)),
		Value: value,
		Headers: []kafkago.Header{
			{Key: HeaderEventType, Value: []byte(event.Type)},
			{Key: HeaderTenantID, Value: []byte(strconv.Itoa(int(event.TenantID)))},
			{Key: HeaderEventID, Value: []byte(event.ID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes and closes the underlying writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func messageKey(event Event) string {
	if event.EntityID == 0 {
		return fmt.Sprintf("%s:%d", event.Entity, event.TenantID)
	}
	return fmt.Sprintf("%s:%d:%d", event.Entity, event.TenantID, event.EntityID)
}
