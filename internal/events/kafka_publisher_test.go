package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func headerValue(msg kafkago.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaPublisher_Publish(t *testing.T) {
	writer := &fakeWriter{}
	publisher := &KafkaPublisher{writer: writer, topic: "mutualia.loans"}

	evt := LoanOriginated(3, 42, map[string]string{"principal": "100000.00"})
	require.NoError(t, publisher.Publish(context.Background(), evt))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "loan:3:42", string(msg.Key))
	assert.Equal(t, "loan.originated", headerValue(msg, HeaderEventType))
	assert.Equal(t, "3", headerValue(msg, HeaderTenantID))
	assert.Equal(t, evt.ID, headerValue(msg, HeaderEventID))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, evt.ID, decoded.ID)
	assert.Equal(t, int32(42), decoded.EntityID)
}

func TestKafkaPublisher_KeyWithoutEntityID(t *testing.T) {
	writer := &fakeWriter{}
	publisher := &KafkaPublisher{writer: writer, topic: "mutualia.loans"}

	require.NoError(t, publisher.Publish(context.Background(), LoanImportCompleted(5, nil)))
	assert.Equal(t, "loan_import:5", string(writer.messages[0].Key))
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker unavailable")}
	publisher := &KafkaPublisher{writer: writer, topic: "mutualia.loans"}

	err := publisher.Publish(context.Background(), LoanCancelled(1, 1, nil))
	assert.ErrorContains(t, err, "mutualia.loans")
	assert.ErrorContains(t, err, "broker unavailable")
}

func TestKafkaPublisher_Close(t *testing.T) {
	writer := &fakeWriter{}
	publisher := &KafkaPublisher{writer: writer, topic: "mutualia.loans"}

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestNoOpPublisher_Publish(t *testing.T) {
	var publisher EventPublisher = &NoOpPublisher{}
	assert.NoError(t, publisher.Publish(context.Background(), LoanOriginated(1, 1, nil)))
}

func TestPublishers_ImplementEventPublisher(t *testing.T) {
	var _ EventPublisher = (*KafkaPublisher)(nil)
	var _ EventPublisher = (*NoOpPublisher)(nil)
}
