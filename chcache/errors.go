package chcache

import "fmt"

// Error constructors

// ErrInvalidConfig returns an error for an invalid configuration
func ErrInvalidConfig(reason string) error {
	return fmt.Errorf("chcache: invalid config: %s", reason)
}

// ErrConnection wraps a ClickHouse connection failure
func ErrConnection(err error) error {
	return fmt.Errorf("chcache: failed to connect to clickhouse: %w", err)
}

// ErrQuery wraps a dictionary query failure
func ErrQuery(err error) error {
	return fmt.Errorf("chcache: dictionary query failed: %w", err)
}
