// Package periodic provides a restartable periodic task with per-tick
// jitter and live settings updates.
//
// It follows go-kit conventions:
// - Uses logger.Logger interface for unified logging
// - Uses routine package for safe goroutine execution
// - Structured error handling
package periodic

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dailyyoga/cachekit/logger"
	"github.com/dailyyoga/cachekit/routine"
	"go.uber.org/zap"
)

// Flags control the scheduling behavior of a Task
type Flags uint8

const (
	// FlagNone is the empty flag set
	FlagNone Flags = 0
	// FlagChaotic applies a random jitter in [-Jitter, +Jitter) to each period
	FlagChaotic Flags = 1 << 0
	// FlagCritical schedules the next tick relative to the previous tick's
	// start, so a slow callback does not silently drop ticks
	FlagCritical Flags = 1 << 1
	// FlagNow fires the first tick immediately on Start
	FlagNow Flags = 1 << 2
)

// Settings parameterize a periodic Task
type Settings struct {
	// Interval is the nominal period between ticks (required, > 0)
	Interval time.Duration
	// Jitter is the random spread applied when FlagChaotic is set
	Jitter time.Duration
	// Flags control scheduling behavior
	Flags Flags
}

// Task runs a callback periodically. Settings can be replaced while the
// task is running; the new settings take effect from the next tick.
type Task struct {
	name string
	log  logger.Logger

	settings atomic.Pointer[Settings]

	// mu guards start/stop transitions
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped periodic task with the given name
func New(log logger.Logger, name string) *Task {
	return &Task{
		name: name,
		log:  log,
	}
}

// Name returns the task name
func (t *Task) Name() string {
	return t.name
}

// Start launches the periodic loop. If the task is already running it is
// stopped first. The callback is invoked on a dedicated goroutine; a panic
// inside the callback is recovered and logged, and the loop keeps running.
func (t *Task) Start(settings Settings, fn func(ctx context.Context) error) error {
	if settings.Interval <= 0 {
		return ErrInvalidInterval(settings.Interval)
	}

	t.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.settings.Store(&settings)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	routine.GoNamedWithContext(ctx, t.log, t.name, func(ctx context.Context) {
		defer close(done)
		t.loop(ctx, fn)
	})

	return nil
}

// SetSettings replaces the task settings without restarting the loop.
// The new settings apply from the next tick.
func (t *Task) SetSettings(settings Settings) error {
	if settings.Interval <= 0 {
		return ErrInvalidInterval(settings.Interval)
	}
	t.settings.Store(&settings)
	return nil
}

// Running reports whether the periodic loop is active
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done != nil
}

// Stop cancels the loop and waits for the callback to return.
// It can be called multiple times safely.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *Task) loop(ctx context.Context, fn func(ctx context.Context) error) {
	if t.settings.Load().Flags&FlagNow == 0 {
		if !sleep(ctx, t.period()) {
			return
		}
	}

	for {
		start := time.Now()
		t.tick(ctx, fn)

		delay := t.period()
		if t.settings.Load().Flags&FlagCritical != 0 {
			delay -= time.Since(start)
			if delay < 0 {
				delay = 0
			}
		}
		if !sleep(ctx, delay) {
			return
		}
	}
}

// tick runs one callback invocation with panic recovery
func (t *Task) tick(ctx context.Context, fn func(ctx context.Context) error) {
	defer func() {
		if rec := recover(); rec != nil {
			t.log.Error("periodic task panicked",
				zap.String("task", t.name),
				zap.Any("panic", rec),
			)
		}
	}()

	if err := fn(ctx); err != nil {
		t.log.Warn("periodic task failed",
			zap.String("task", t.name),
			zap.Error(err),
		)
	}
}

// period computes the delay before the next tick from the current settings
func (t *Task) period() time.Duration {
	s := t.settings.Load()
	d := s.Interval
	if s.Flags&FlagChaotic != 0 && s.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(2*s.Jitter))) - s.Jitter
		if d < 0 {
			d = 0
		}
	}
	return d
}

// sleep waits for d or until ctx is cancelled; it reports whether the
// full duration elapsed
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
