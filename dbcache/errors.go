package dbcache

import "fmt"

// Error constructors

// ErrInvalidConfig returns an error for an invalid configuration
func ErrInvalidConfig(reason string) error {
	return fmt.Errorf("dbcache: invalid config: %s", reason)
}

// ErrConnection wraps a MySQL connection failure
func ErrConnection(err error) error {
	return fmt.Errorf("dbcache: failed to connect to mysql: %w", err)
}

// ErrQuery wraps a catalog query failure
func ErrQuery(err error) error {
	return fmt.Errorf("dbcache: catalog query failed: %w", err)
}
