package events

import "context"

// EventPublisher delivers domain events to downstream consumers
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoOpPublisher is a publisher that does nothing (for testing or when Kafka is not configured)
type NoOpPublisher struct{}

// Publish does nothing
func (n *NoOpPublisher) Publish(ctx context.Context, event Event) error { return nil }
