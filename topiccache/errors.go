package topiccache

import "fmt"

// Error constructors

// ErrInvalidConfig returns an error for an invalid configuration
func ErrInvalidConfig(reason string) error {
	return fmt.Errorf("topiccache: invalid config: %s", reason)
}

// ErrConnection wraps a kafka client creation failure
func ErrConnection(err error) error {
	return fmt.Errorf("topiccache: failed to create kafka consumer: %w", err)
}

// ErrTopicMetadata wraps a metadata or watermark lookup failure
func ErrTopicMetadata(topic string, err error) error {
	return fmt.Errorf("topiccache: failed to read metadata for topic %s: %w", topic, err)
}

// ErrConsume wraps a message read failure
func ErrConsume(topic string, err error) error {
	return fmt.Errorf("topiccache: failed to consume topic %s: %w", topic, err)
}
