package cache

import "fmt"

// Predefined errors
var (
	// ErrEmptyCache is returned (possibly wrapped) by GetAndWrite to
	// signal that there is nothing to dump; the engine logs a warning
	// and skips the dump
	ErrEmptyCache = fmt.Errorf("cache: cache is empty")
)

// Error constructors

// ErrDumpUnimplemented reports a cache with dumps enabled but no
// Dumpable implementation; this is a programming error
func ErrDumpUnimplemented(name string) error {
	return fmt.Errorf("cache: dumps are enabled for cache %s, but it does not implement Dumpable", name)
}

// ErrUpdate wraps a domain update failure
func ErrUpdate(name string, err error) error {
	return fmt.Errorf("cache: update of cache %s failed: %w", name, err)
}

// ErrFirstUpdate wraps a first-update failure that Start propagates
func ErrFirstUpdate(name string, err error) error {
	return fmt.Errorf("cache: first update of cache %s failed: %w", name, err)
}

// ErrUnknownCache reports a control operation on an unregistered cache
func ErrUnknownCache(name string) error {
	return fmt.Errorf("cache: unknown cache: %s", name)
}

// ErrInvalidConfig returns an error for an invalid configuration
func ErrInvalidConfig(reason string) error {
	return fmt.Errorf("cache: invalid config: %s", reason)
}
