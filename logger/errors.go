package logger

import "fmt"

// Error constructors

// ErrInvalidLevel returns an error for an invalid log level
func ErrInvalidLevel(level string, err error) error {
	return fmt.Errorf("logger: invalid level %q: %w", level, err)
}

// ErrInvalidEncoding returns an error for an invalid encoding
func ErrInvalidEncoding(encoding string) error {
	return fmt.Errorf("logger: invalid encoding %q (must be json or console)", encoding)
}

// ErrBuildLogger wraps a zap build failure
func ErrBuildLogger(err error) error {
	return fmt.Errorf("logger: failed to build logger: %w", err)
}
