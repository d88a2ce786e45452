package publisher

// Publisher defines the interface for publishing ingested product records to
// downstream consumers (the content/blog side reads these).
type Publisher interface {
	// Publish publishes a message under the given key
	Publish(key string, message []byte) error

	// TrimStreams trims the underlying streams to their configured size
	TrimStreams() error

	// Close closes the publisher
	Close() error
}

// NoopPublisher drops every message; used when no broker is configured.
type NoopPublisher struct{}

var _ Publisher = (*NoopPublisher)(nil)

func (NoopPublisher) Publish(string, []byte) error { return nil }
func (NoopPublisher) TrimStreams() error           { return nil }
func (NoopPublisher) Close() error                 { return nil }
