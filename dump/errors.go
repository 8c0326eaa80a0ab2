package dump

import "fmt"

// Predefined errors
var (
	// ErrBumpMissing is returned by BumpDumpTime when the dump to rename
	// is no longer on disk
	ErrBumpMissing = fmt.Errorf("dump: dump to bump is missing")

	// ErrWriterFinished is returned when writing to a finished writer
	ErrWriterFinished = fmt.Errorf("dump: writer already finished")
)

// Error constructors

// ErrInvalidConfig returns an error for an invalid configuration
func ErrInvalidConfig(reason string) error {
	return fmt.Errorf("dump: invalid config: %s", reason)
}

// ErrScanDir wraps a dump directory scan failure
func ErrScanDir(dir string, err error) error {
	return fmt.Errorf("dump: failed to scan dump dir %s: %w", dir, err)
}
