package cache

import (
	"context"
	"time"

	"github.com/dailyyoga/cachekit/dump"
	"go.uber.org/zap"
)

// Update runs one synchronous update of the requested type. An
// incremental request is coerced to full when the configuration permits
// only full updates. Used by the control registry and tests; periodic
// ticks go through doPeriodicUpdate instead.
func (e *Engine) Update(ctx context.Context, updateType UpdateType) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg := e.config.Read()

	if cfg.AllowedUpdateTypes == FullOnly && updateType == UpdateIncremental {
		updateType = UpdateFull
	}

	return e.doUpdate(ctx, updateType)
}

// doPeriodicUpdate is the periodic tick body: pick the update type, run
// the domain update, then hand over to the dump engine whether the
// update succeeded or not.
func (e *Engine) doPeriodicUpdate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg := e.config.Read()

	// The update is full regardless of the allowed types:
	// - if the cache is empty, or
	// - if the update is forced to be full (see Start)
	forceFullUpdate := e.forceNextUpdateFull.Swap(false) ||
		e.update.lastUpdate.IsZero()

	updateType := UpdateFull
	if !forceFullUpdate {
		switch cfg.AllowedUpdateTypes {
		case FullOnly:
			updateType = UpdateFull
		case IncrementalOnly:
			updateType = UpdateIncremental
		case FullAndIncremental:
			updateType = UpdateIncremental
			if time.Since(e.update.lastFullUpdate) >= cfg.FullUpdateInterval {
				updateType = UpdateFull
			}
		}
	}

	err := e.doUpdate(ctx, updateType)
	if err != nil {
		e.log.Warn("error while updating cache", zap.Error(err))
	}
	e.dumpAsyncIfNeeded(dumpHonorInterval, cfg)
	return err
}

// doUpdate invokes the domain update and records the outcome on success.
// The caller holds the state mutex.
func (e *Engine) doUpdate(ctx context.Context, updateType UpdateType) error {
	steadyStart := time.Now()
	scope := newUpdateScope(&e.stats, updateType)
	scope.onModified = e.OnCacheModified

	e.log.Info("updating cache", zap.Stringer("update_type", updateType))

	systemNow := dump.TruncateTime(time.Now())
	if err := e.cache.Update(ctx, updateType, e.update.lastUpdate, systemNow, scope); err != nil {
		scope.failure()
		return ErrUpdate(e.name, err)
	}
	scope.success(systemNow)

	e.log.Info("updated cache", zap.Stringer("update_type", updateType))

	e.update.lastUpdate = systemNow
	if e.cacheModified.Swap(false) {
		e.update.lastModifyingUpdate = systemNow
	}
	if updateType == UpdateFull {
		e.update.lastFullUpdate = steadyStart
	}
	e.stats.dump.isCurrentFromDump.Store(false)
	return nil
}
