package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dailyyoga/cachekit/dump"
	"github.com/dailyyoga/cachekit/logger"
	"github.com/dailyyoga/cachekit/periodic"
	"github.com/dailyyoga/cachekit/routine"
	"go.uber.org/zap"
)

// StartFlags adjust Engine.Start behavior
type StartFlags uint8

const (
	// NoStartFlags is the empty flag set
	NoStartFlags StartFlags = 0
	// NoFirstUpdate skips the synchronous first update when periodic
	// updates are enabled; ignored otherwise, because some callers
	// require caches to be updated at least once
	NoFirstUpdate StartFlags = 1 << 0
)

// Engine drives a concrete cache: periodic full/incremental updates,
// cleanup, asynchronous dumps to disk and dump loading on startup.
//
// The domain hands its capability set to NewEngine and owns the returned
// engine's lifecycle: Start during application startup, Stop during
// shutdown. Stopping is mandatory before discarding a started engine.
type Engine struct {
	name     string
	log      logger.Logger
	cache    Cache
	dumpable Dumpable // nil when the cache does not implement Dumpable

	control *Control
	fsProc  *routine.Processor

	config      *configView
	dumpManager *dump.Manager // nil when no dump section is configured

	updateTask  *periodic.Task
	cleanupTask *periodic.Task
	// taskFlags holds the periodic.Flags of the update task; the
	// bootstrap may add FlagNow before the task starts
	taskFlags atomic.Uint32

	// mu guards update; every update, dump decision and bootstrap step
	// acquires it
	mu     sync.Mutex
	update updateData

	isRunning           atomic.Bool
	cacheModified       atomic.Bool
	forceNextUpdateFull atomic.Bool
	// lastDumpedUpdateMicro is the unix-microsecond instant reflected in
	// the newest on-disk dump name; zero means no dump. Written with a
	// monotonic-max CAS.
	lastDumpedUpdateMicro atomic.Int64

	stats Statistics
}

// NewEngine creates an engine for the given cache. The filesystem
// processor runs all dump reads, writes and directory operations.
func NewEngine(log logger.Logger, c Cache, control *Control, fsProc *routine.Processor, cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	name := c.Name()
	if name == "" {
		return nil, ErrInvalidConfig("cache name must be non-empty")
	}

	dumpable, _ := c.(Dumpable)
	if cfg.DumpsEnabled && dumpable == nil {
		return nil, ErrDumpUnimplemented(name)
	}

	log = log.Named(name)

	var manager *dump.Manager
	if cfg.Dump != nil {
		var err error
		manager, err = dump.NewManager(log, name, cfg.Dump)
		if err != nil {
			return nil, err
		}
	}

	e := &Engine{
		name:        name,
		log:         log,
		cache:       c,
		dumpable:    dumpable,
		control:     control,
		fsProc:      fsProc,
		config:      newConfigView(cfg),
		dumpManager: manager,
		updateTask:  periodic.New(log, "update-task/"+name),
		cleanupTask: periodic.New(log, "cleanup-task/"+name),
	}
	e.taskFlags.Store(uint32(periodic.FlagChaotic | periodic.FlagCritical))
	return e, nil
}

// Name returns the cache name
func (e *Engine) Name() string {
	return e.name
}

// Statistics returns the engine's counters
func (e *Engine) Statistics() *Statistics {
	return &e.stats
}

// DumpManager returns the dump facade, or nil when dumps are not
// configured. Intended for registration with a dump.Janitor.
func (e *Engine) DumpManager() *dump.Manager {
	return e.dumpManager
}

// OnCacheModified is called by the domain Update iff it changed the cache
// contents. The flag is consumed at the end of each successful update.
func (e *Engine) OnCacheModified() {
	e.cacheModified.Store(true)
}

// Start loads the latest dump (when enabled), runs the first update per
// the FirstUpdateMode policy and launches the periodic update and cleanup
// tasks. Starting an already running engine is a no-op.
func (e *Engine) Start(ctx context.Context, flags StartFlags) error {
	if !e.isRunning.CompareAndSwap(false, true) {
		return nil
	}

	cfg := e.config.Read()
	periodicEnabled := e.control.PeriodicUpdatesEnabled()
	e.control.register(e)

	fail := func(err error) error {
		// update tasks have not started; leave no trace
		e.control.deregister(e)
		e.isRunning.Store(false)
		return err
	}

	dumpLoaded := e.loadFromDump(ctx, cfg)

	runFirstUpdate := (!dumpLoaded || cfg.FirstUpdateMode != FirstUpdateSkip) &&
		(flags&NoFirstUpdate == 0 || !periodicEnabled)
	if runFirstUpdate {
		if err := e.doPeriodicUpdate(ctx); err != nil {
			switch {
			case dumpLoaded && cfg.FirstUpdateMode != FirstUpdateRequired:
				e.log.Error("failed to update cache after loading a cache dump, "+
					"going on with the contents loaded from the dump",
					zap.Error(err),
				)
			case cfg.AllowFirstUpdateFailure:
				e.log.Error("failed to update cache for the first time, leaving it empty",
					zap.Error(err),
				)
			default:
				e.log.Error("failed to update cache for the first time", zap.Error(err))
				return fail(ErrFirstUpdate(e.name, err))
			}
		}
	}

	// After loading a dump, incremental-only caches would never run a
	// full update again, so corrupted dump data could survive restarts.
	// One forced asynchronous full update repairs that.
	if dumpLoaded && cfg.AllowedUpdateTypes == IncrementalOnly && cfg.ForceFullSecondUpdate {
		e.forceNextUpdateFull.Store(true)
		e.addTaskFlags(periodic.FlagNow)
	}

	if periodicEnabled {
		if err := e.updateTask.Start(e.periodicSettings(cfg), e.doPeriodicUpdate); err != nil {
			return fail(err)
		}
		cleanupSettings := periodic.Settings{Interval: cfg.CleanupInterval}
		if err := e.cleanupTask.Start(cleanupSettings, func(ctx context.Context) error {
			e.config.Cleanup()
			e.cache.Cleanup()
			return nil
		}); err != nil {
			e.updateTask.Stop()
			return fail(err)
		}
	}

	return nil
}

// Stop halts the periodic tasks and cancels a dump in flight, waiting
// for it to finish. It can be called multiple times safely.
func (e *Engine) Stop() {
	if !e.isRunning.CompareAndSwap(true, false) {
		return
	}

	e.control.deregister(e)
	e.updateTask.Stop()
	e.cleanupTask.Stop()

	e.mu.Lock()
	task := e.update.dumpTask
	e.mu.Unlock()

	if task.Valid() && !task.Finished() {
		e.log.Warn("stopping a dump task")
		task.Cancel()
		if err := task.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			e.log.Error("dump task failed during shutdown", zap.Error(err))
		}
	}
}

// SetConfig replaces the dynamic configuration overlay; nil resets to
// the static configuration. Periodic task settings are re-tuned without
// restarting the tasks.
func (e *Engine) SetConfig(d *DynamicConfig) {
	e.config.Assign(d)
	cfg := e.config.Read()
	// ignore settings errors: the merged config was validated at
	// construction and overlays cannot zero an interval
	_ = e.updateTask.SetSettings(e.periodicSettings(cfg))
	_ = e.cleanupTask.SetSettings(periodic.Settings{Interval: cfg.CleanupInterval})
}

func (e *Engine) periodicSettings(cfg *Config) periodic.Settings {
	return periodic.Settings{
		Interval: cfg.UpdateInterval,
		Jitter:   cfg.UpdateJitter,
		Flags:    periodic.Flags(e.taskFlags.Load()),
	}
}

func (e *Engine) addTaskFlags(f periodic.Flags) {
	for {
		old := e.taskFlags.Load()
		if e.taskFlags.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}
