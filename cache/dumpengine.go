package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// dumpType distinguishes interval-honoring periodic dumps from forced
// debug dumps
type dumpType int

const (
	dumpHonorInterval dumpType = iota
	dumpForced
)

// dumpOperation selects between a full rewrite and a rename-only bump
type dumpOperation int

const (
	dumpOpNew dumpOperation = iota
	dumpOpBumpTime
)

// DumpSyncDebug forces a dump, bypassing the interval check, and waits
// for it to finish. Intended for tests and debug tooling.
func (e *Engine) DumpSyncDebug(ctx context.Context) error {
	e.mu.Lock()
	cfg := e.config.Read()
	e.dumpAsyncIfNeeded(dumpForced, cfg)
	task := e.update.dumpTask
	e.mu.Unlock()

	if task.Valid() {
		return task.Wait()
	}
	return nil
}

// shouldDump applies the dump decision of one tick. The caller holds the
// state mutex.
func (e *Engine) shouldDump(t dumpType, cfg *Config) bool {
	if !cfg.DumpsEnabled || e.dumpManager == nil {
		e.log.Debug("skipped cache dump, because cache dumps are disabled")
		return false
	}

	if e.update.lastUpdate.IsZero() {
		e.log.Debug("skipped cache dump, because the cache has not loaded yet")
		return false
	}

	if t == dumpHonorInterval &&
		e.lastDumpedUpdateMicro.Load() > e.update.lastUpdate.Add(-cfg.MinDumpInterval).UnixMicro() {
		e.log.Debug("skipped cache dump, because dump interval has not passed yet")
		return false
	}

	// Prevent concurrent cache dumps from accumulating
	// and slowing everything down.
	if e.update.dumpTask.Valid() && !e.update.dumpTask.Finished() {
		e.log.Info("skipped cache dump, because a previous dump operation is in progress")
		return false
	}

	return true
}

// dumpAsyncIfNeeded runs the dump decision and schedules the chosen
// operation. The caller holds the state mutex.
func (e *Engine) dumpAsyncIfNeeded(t dumpType, cfg *Config) {
	if !e.shouldDump(t, cfg) {
		return
	}

	lastDumped := e.lastDumpedUpdateMicro.Load()
	if lastDumped != 0 && lastDumped >= timeMicro(e.update.lastModifyingUpdate) {
		// Nothing changed since the on-disk dump; advertise the newer
		// update instant by renaming instead of rewriting.
		e.log.Debug("skipped cache dump, because nothing has been updated; bumping dump time")
		e.dumpAsync(dumpOpBumpTime)
	} else {
		e.dumpAsync(dumpOpNew)
	}
}

// dumpAsync consumes the previous dump handle and spawns the dump task
// on the filesystem processor. The caller holds the state mutex and has
// checked through shouldDump that no dump is in flight.
func (e *Engine) dumpAsync(op dumpOperation) {
	if e.update.dumpTask.Valid() {
		// surface a result nobody observed; the task already logged it
		if err := e.update.dumpTask.Wait(); err != nil {
			e.log.Debug("previous cache dump had failed", zap.Error(err))
		}
	}

	oldUpdateTime := microTime(e.lastDumpedUpdateMicro.Load())
	// the new dump advertises the latest successful update: the contents
	// are known valid as of that instant even when they changed earlier
	newUpdateTime := e.update.lastUpdate

	e.update.dumpTask = e.fsProc.Async(context.Background(), "dump/"+e.name,
		func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			var err error
			switch op {
			case dumpOpNew:
				err = e.doDump(ctx, newUpdateTime)
			case dumpOpBumpTime:
				err = e.dumpManager.BumpDumpTime(oldUpdateTime, newUpdateTime)
				if err != nil {
					e.log.Error("failed to bump cache dump time", zap.Error(err))
				}
			}
			if err != nil {
				return err
			}

			e.raiseLastDumpedUpdate(newUpdateTime)
			return nil
		})
}

// doDump serializes the cache into a new dump file. Runs on the
// filesystem processor.
func (e *Engine) doDump(ctx context.Context, updateTime time.Time) error {
	dumpStart := time.Now()

	path := e.dumpManager.RegisterNewDump(updateTime)
	writer, err := e.dumpManager.CreateWriter(path)
	if err != nil {
		e.log.Error("error while creating a cache dump file", zap.Error(err))
		return err
	}

	if err := e.dumpable.GetAndWrite(writer); err != nil {
		writer.Discard()
		if errors.Is(err, ErrEmptyCache) {
			// a successful update has been performed, but the cache
			// could have been cleared forcefully since
			e.log.Warn("could not dump cache, because it is empty")
		} else {
			e.log.Error("error while serializing a cache dump", zap.Error(err))
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		writer.Discard()
		return err
	}
	if err := writer.Finish(); err != nil {
		e.log.Error("error while writing a cache dump", zap.Error(err))
		return err
	}

	e.dumpManager.Cleanup()

	e.stats.dump.setLastWrite(writer.Size(), time.Since(dumpStart), dumpStart)
	return nil
}

// loadFromDump restores the cache from the newest dump on disk. It runs
// synchronously on the filesystem processor and reports whether a dump
// was loaded. Failures of any kind degrade to a cold start.
func (e *Engine) loadFromDump(ctx context.Context, cfg *Config) bool {
	if !cfg.DumpsEnabled || e.dumpManager == nil {
		e.log.Debug("could not load a cache dump, because cache dumps are disabled")
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	loadStart := time.Now()

	var updateTime time.Time
	loaded := false
	_ = e.fsProc.Run(ctx, "load-dump/"+e.name, func(ctx context.Context) error {
		info, err := e.dumpManager.GetLatestDump()
		if err != nil {
			e.log.Error("error while searching for a cache dump", zap.Error(err))
			return nil
		}
		if info == nil {
			return nil
		}

		reader, err := e.dumpManager.CreateReader(info.Path)
		if err != nil {
			e.log.Error("error while opening a cache dump", zap.Error(err))
			return nil
		}
		if err := e.dumpable.ReadAndSet(reader); err != nil {
			reader.Finish()
			e.log.Error("error while parsing a cache dump", zap.Error(err))
			return nil
		}
		if err := reader.Finish(); err != nil {
			e.log.Error("error while closing a cache dump", zap.Error(err))
			return nil
		}

		updateTime = info.UpdateTime
		loaded = true
		return nil
	})

	if !loaded {
		return false
	}

	e.log.Info("loaded a cache dump", zap.Time("update_time", updateTime))
	e.update.lastUpdate = updateTime
	e.update.lastModifyingUpdate = updateTime
	e.raiseLastDumpedUpdate(updateTime)

	e.stats.dump.setLoaded(time.Since(loadStart))
	return true
}

// raiseLastDumpedUpdate performs a monotonic-max write; readers may
// briefly observe an older value, never a newer one
func (e *Engine) raiseLastDumpedUpdate(t time.Time) {
	micro := timeMicro(t)
	for {
		old := e.lastDumpedUpdateMicro.Load()
		if old >= micro || e.lastDumpedUpdateMicro.CompareAndSwap(old, micro) {
			return
		}
	}
}

// timeMicro maps an update instant to unix microseconds, with the zero
// instant ("never") mapped to 0
func timeMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

// microTime is the inverse of timeMicro
func microTime(micro int64) time.Time {
	if micro == 0 {
		return time.Time{}
	}
	return time.UnixMicro(micro).UTC()
}
