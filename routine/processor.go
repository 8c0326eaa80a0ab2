package routine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dailyyoga/cachekit/logger"
	"github.com/smallnest/chanx"
	"go.uber.org/zap"
)

// ProcessorConfig holds configuration for a Processor
type ProcessorConfig struct {
	// Name identifies the processor in logs and task names (required)
	Name string `mapstructure:"name"`
	// Workers is the number of worker goroutines
	// default: 2
	Workers int `mapstructure:"workers"`
	// QueueCapacity is the initial capacity of the submission queue
	// The queue itself is unbounded; this only sizes the initial buffer
	// default: 64
	QueueCapacity int `mapstructure:"queue_capacity"`
}

// DefaultProcessorConfig returns the default configuration for a Processor
func DefaultProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		Workers:       2,
		QueueCapacity: 64,
	}
}

// MergeDefaults merges the default configuration into zero fields
func (c *ProcessorConfig) MergeDefaults() *ProcessorConfig {
	defaults := DefaultProcessorConfig()
	if c.Workers == 0 {
		c.Workers = defaults.Workers
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = defaults.QueueCapacity
	}
	return c
}

// Processor is a named pool of worker goroutines consuming an unbounded
// submission queue. Blocking work (filesystem, network) is confined to a
// dedicated processor so it does not stall the callers' goroutines.
type Processor struct {
	name string
	log  logger.Logger

	queue *chanx.UnboundedChan[func()]

	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewProcessor creates a processor and starts its workers
func NewProcessor(log logger.Logger, cfg *ProcessorConfig) (*Processor, error) {
	if cfg == nil {
		cfg = DefaultProcessorConfig()
	} else {
		cfg.MergeDefaults()
	}
	if cfg.Workers < 1 {
		return nil, ErrInvalidWorkers(cfg.Workers)
	}

	p := &Processor{
		name:  cfg.Name,
		log:   log,
		queue: chanx.NewUnboundedChan[func()](context.Background(), cfg.QueueCapacity),
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}

	return p, nil
}

// Name returns the processor name
func (p *Processor) Name() string {
	return p.name
}

// Submit enqueues a function for execution on the processor.
// It never blocks; the queue grows as needed.
func (p *Processor) Submit(fn func()) error {
	if p.closed.Load() {
		return ErrProcessorClosed
	}
	p.queue.In <- fn
	return nil
}

// Async schedules fn on the processor and returns a handle for the result.
// The context passed to fn is cancelled when the handle's Cancel is called.
func (p *Processor) Async(ctx context.Context, name string, fn func(ctx context.Context) error) *Task {
	taskCtx, cancel := context.WithCancel(ctx)
	t := &Task{
		name:   name,
		done:   make(chan struct{}),
		cancel: cancel,
	}

	err := p.Submit(func() {
		defer close(t.done)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				p.log.Error("task panicked",
					zap.String("processor", p.name),
					zap.String("task", name),
					zap.Any("panic", rec),
				)
				t.err = ErrPanic(rec)
			}
		}()
		t.err = fn(taskCtx)
	})
	if err != nil {
		cancel()
		t.err = err
		close(t.done)
	}

	return t
}

// Run executes fn on the processor and waits for it to finish.
// It is the synchronous counterpart of Async.
func (p *Processor) Run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return p.Async(ctx, name, fn).Wait()
}

// Close stops accepting work, drains the queue and joins the workers.
// It can be called multiple times safely.
func (p *Processor) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.queue.In)
	p.wg.Wait()
}

func (p *Processor) worker() {
	defer p.wg.Done()
	for fn := range p.queue.Out {
		func() {
			defer recoverWithLog(p.log, p.name)
			fn()
		}()
	}
}
