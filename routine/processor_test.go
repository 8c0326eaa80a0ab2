package routine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func newTestProcessor(t *testing.T, workers int) *Processor {
	t.Helper()
	p, err := NewProcessor(newTestLogger(t), &ProcessorConfig{Name: "test", Workers: workers})
	if err != nil {
		t.Fatalf("failed to create processor: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func TestProcessorConfig_MergeDefaults(t *testing.T) {
	cfg := (&ProcessorConfig{Name: "fs"}).MergeDefaults()
	if cfg.Workers != 2 || cfg.QueueCapacity != 64 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestNewProcessor_InvalidWorkers(t *testing.T) {
	if _, err := NewProcessor(newTestLogger(t), &ProcessorConfig{Workers: -1}); err == nil {
		t.Fatal("expected error for negative worker count")
	}
}

func TestProcessor_Submit(t *testing.T) {
	p := newTestProcessor(t, 2)

	var counter atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		last := i == 49
		if err := p.Submit(func() {
			counter.Add(1)
			if last {
				close(done)
			}
		}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	<-done
	// workers may still be finishing earlier items
	p.Close()
	if counter.Load() != 50 {
		t.Errorf("expected 50 executions, got %d", counter.Load())
	}
}

func TestProcessor_Submit_AfterClose(t *testing.T) {
	p, err := NewProcessor(newTestLogger(t), &ProcessorConfig{Name: "closing"})
	if err != nil {
		t.Fatalf("failed to create processor: %v", err)
	}
	p.Close()

	if err := p.Submit(func() {}); err != ErrProcessorClosed {
		t.Errorf("expected ErrProcessorClosed, got %v", err)
	}
}

func TestProcessor_Async_Success(t *testing.T) {
	p := newTestProcessor(t, 1)

	task := p.Async(context.Background(), "ok-task", func(ctx context.Context) error {
		return nil
	})

	if !task.Valid() {
		t.Fatal("expected task to be valid")
	}
	if err := task.Wait(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if !task.Finished() {
		t.Error("expected task to be finished after Wait")
	}
}

func TestProcessor_Async_Error(t *testing.T) {
	p := newTestProcessor(t, 1)

	wantErr := fmt.Errorf("boom")
	task := p.Async(context.Background(), "err-task", func(ctx context.Context) error {
		return wantErr
	})

	if err := task.Wait(); err != wantErr {
		t.Errorf("expected %v, got %v", wantErr, err)
	}
}

func TestProcessor_Async_Panic(t *testing.T) {
	p := newTestProcessor(t, 1)

	task := p.Async(context.Background(), "panic-task", func(ctx context.Context) error {
		panic("task panic")
	})

	if err := task.Wait(); err == nil {
		t.Error("expected error from panicking task")
	}
}

func TestProcessor_Async_Cancel(t *testing.T) {
	p := newTestProcessor(t, 1)

	started := make(chan struct{})
	task := p.Async(context.Background(), "cancel-task", func(ctx context.Context) error {
		close(started)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})

	<-started
	task.Cancel()

	if err := task.Wait(); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestProcessor_Async_AfterClose(t *testing.T) {
	p, err := NewProcessor(newTestLogger(t), &ProcessorConfig{Name: "closed"})
	if err != nil {
		t.Fatalf("failed to create processor: %v", err)
	}
	p.Close()

	task := p.Async(context.Background(), "too-late", func(ctx context.Context) error {
		return nil
	})
	if err := task.Wait(); err != ErrProcessorClosed {
		t.Errorf("expected ErrProcessorClosed, got %v", err)
	}
}

func TestTask_NilHandle(t *testing.T) {
	var task *Task
	if task.Valid() {
		t.Error("nil task must not be valid")
	}
}

func TestProcessor_Run(t *testing.T) {
	p := newTestProcessor(t, 1)

	var executed atomic.Bool
	if err := p.Run(context.Background(), "sync-task", func(ctx context.Context) error {
		executed.Store(true)
		return nil
	}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !executed.Load() {
		t.Error("expected function to be executed")
	}
}
