package messaging

import "context"

// Broker publishes messages to interested platform consumers.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Close() error
}

// NoopBroker discards every message. Used when no broker is configured
// and in tests.
type NoopBroker struct{}

func (NoopBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	return nil
}

func (NoopBroker) Close() error { return nil }
