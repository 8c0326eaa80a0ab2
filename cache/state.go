package cache

import (
	"time"

	"github.com/dailyyoga/cachekit/routine"
)

// updateData is the mutable record of update outcomes. It is guarded by
// the engine's state mutex; the update driver, the dump engine, the
// bootstrap and the synchronous debug dumper all acquire it.
//
// Invariant: lastModifyingUpdate never exceeds lastUpdate.
type updateData struct {
	// lastUpdate is the wall-clock instant supplied to the most recent
	// successful update; zero means the cache has never loaded
	lastUpdate time.Time
	// lastModifyingUpdate is the instant of the most recent update that
	// actually mutated the cache contents
	lastModifyingUpdate time.Time
	// lastFullUpdate carries a monotonic reading of the last full update,
	// used to space full updates in full-and-incremental mode
	lastFullUpdate time.Time
	// dumpTask is the at-most-one in-flight dump handle; nil means no
	// dump has been scheduled yet
	dumpTask *routine.Task
}
