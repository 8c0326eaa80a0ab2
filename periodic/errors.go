package periodic

import (
	"fmt"
	"time"
)

// Error constructors

// ErrInvalidInterval returns an error for a non-positive interval
func ErrInvalidInterval(interval time.Duration) error {
	return fmt.Errorf("periodic: invalid interval: %v (must be > 0)", interval)
}
