package routine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dailyyoga/cachekit/logger"
)

func newTestLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{
		Level:    "debug",
		Encoding: "console",
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log
}

func TestRunner_Go(t *testing.T) {
	log := newTestLogger(t)
	runner := New(log)

	var executed atomic.Bool
	runner.Go(func() {
		executed.Store(true)
	})

	runner.Wait()

	if !executed.Load() {
		t.Error("expected function to be executed")
	}
}

func TestRunner_Go_WithPanic(t *testing.T) {
	log := newTestLogger(t)
	runner := New(log)

	var beforePanic, afterPanic atomic.Bool
	runner.Go(func() {
		beforePanic.Store(true)
		panic("test panic")
	})

	// Start another goroutine to verify runner still works after panic
	runner.Go(func() {
		afterPanic.Store(true)
	})

	runner.Wait()

	if !beforePanic.Load() {
		t.Error("expected code before panic to execute")
	}
	if !afterPanic.Load() {
		t.Error("expected goroutine after panic to execute")
	}
}

func TestRunner_GoNamed_WithPanic(t *testing.T) {
	log := newTestLogger(t)
	runner := New(log)

	runner.GoNamed("panic-routine", func() {
		panic("named panic")
	})

	// Should not panic, runner should recover
	runner.Wait()
}

func TestGo_Standalone(t *testing.T) {
	log := newTestLogger(t)

	var executed atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)

	Go(log, func() {
		defer wg.Done()
		executed.Store(true)
	})

	wg.Wait()

	if !executed.Load() {
		t.Error("expected standalone Go function to execute")
	}
}

func TestGoNamedWithContext_Standalone(t *testing.T) {
	log := newTestLogger(t)

	ctx := context.WithValue(context.Background(), "key", "value")
	var receivedValue atomic.Value
	var wg sync.WaitGroup
	wg.Add(1)

	GoNamedWithContext(ctx, log, "standalone-named-ctx", func(ctx context.Context) {
		defer wg.Done()
		receivedValue.Store(ctx.Value("key").(string))
	})

	wg.Wait()

	if receivedValue.Load() != "value" {
		t.Errorf("expected context value 'value', got %v", receivedValue.Load())
	}
}

func TestErrPanic(t *testing.T) {
	err := ErrPanic("test error")
	expected := "routine: panic recovered: test error"
	if err.Error() != expected {
		t.Errorf("expected '%s', got '%s'", expected, err.Error())
	}
}
