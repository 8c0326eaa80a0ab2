package cache

import (
	"sync/atomic"
	"time"
)

// UpdateStatistics counts update outcomes for one update type.
// All fields are updated atomically and may be read from any goroutine.
type UpdateStatistics struct {
	attempts  atomic.Uint64
	successes atomic.Uint64
	failures  atomic.Uint64
	// lastSuccessUnixMicro is zero until the first successful update
	lastSuccessUnixMicro atomic.Int64
}

// Attempts returns the number of started updates
func (s *UpdateStatistics) Attempts() uint64 { return s.attempts.Load() }

// Successes returns the number of successful updates
func (s *UpdateStatistics) Successes() uint64 { return s.successes.Load() }

// Failures returns the number of failed updates
func (s *UpdateStatistics) Failures() uint64 { return s.failures.Load() }

// DumpStatistics tracks dump load/write outcomes
type DumpStatistics struct {
	isLoaded          atomic.Bool
	isCurrentFromDump atomic.Bool
	loadDuration      atomic.Int64 // milliseconds
	lastWrittenSize   atomic.Int64
	// last nontrivial write = a real serialization, not a bump-time rename
	lastNontrivialWriteDuration  atomic.Int64 // milliseconds
	lastNontrivialWriteStartUnix atomic.Int64 // unix milliseconds
}

// IsLoaded reports whether a dump was loaded on startup
func (s *DumpStatistics) IsLoaded() bool { return s.isLoaded.Load() }

// IsCurrentFromDump reports whether the current contents came from a dump
// and have not been refreshed by an update yet
func (s *DumpStatistics) IsCurrentFromDump() bool { return s.isCurrentFromDump.Load() }

// LastWrittenSize returns the byte size of the last written dump
func (s *DumpStatistics) LastWrittenSize() int64 { return s.lastWrittenSize.Load() }

func (s *DumpStatistics) setLoaded(d time.Duration) {
	s.isLoaded.Store(true)
	s.isCurrentFromDump.Store(true)
	s.loadDuration.Store(d.Milliseconds())
}

func (s *DumpStatistics) setLastWrite(size int64, d time.Duration, start time.Time) {
	s.lastWrittenSize.Store(size)
	s.lastNontrivialWriteDuration.Store(d.Milliseconds())
	s.lastNontrivialWriteStartUnix.Store(start.UnixMilli())
}

// Statistics aggregates all counters of one cache engine
type Statistics struct {
	full                  UpdateStatistics
	incremental           UpdateStatistics
	documentsCurrentCount atomic.Int64
	dump                  DumpStatistics
}

// Full returns the full-update counters
func (s *Statistics) Full() *UpdateStatistics { return &s.full }

// Incremental returns the incremental-update counters
func (s *Statistics) Incremental() *UpdateStatistics { return &s.incremental }

// Dump returns the dump counters
func (s *Statistics) Dump() *DumpStatistics { return &s.dump }

// CurrentDocumentsCount returns the document count reported by the most
// recent successful update
func (s *Statistics) CurrentDocumentsCount() int64 { return s.documentsCurrentCount.Load() }

func (s *Statistics) forType(t UpdateType) *UpdateStatistics {
	if t == UpdateFull {
		return &s.full
	}
	return &s.incremental
}

// UpdateSnapshot is the JSON form of UpdateStatistics
type UpdateSnapshot struct {
	Attempts        uint64 `json:"attempts"`
	Successes       uint64 `json:"successes"`
	Failures        uint64 `json:"failures"`
	LastSuccessTime string `json:"last-success-time,omitempty"`
}

// DumpSnapshot is the JSON form of DumpStatistics
type DumpSnapshot struct {
	IsLoaded                    bool   `json:"is-loaded"`
	IsCurrentFromDump           bool   `json:"is-current-from-dump"`
	LoadDurationMs              int64  `json:"load-duration"`
	LastWrittenSize             int64  `json:"last-written-size"`
	LastNontrivialWriteDuration int64  `json:"last-nontrivial-write-duration"`
	LastNontrivialWriteStart    string `json:"last-nontrivial-write-start-time,omitempty"`
}

// Snapshot is a consistent-enough point-in-time copy of the counters,
// serializable to the per-cache metrics JSON
type Snapshot struct {
	Full                  UpdateSnapshot `json:"full"`
	Incremental           UpdateSnapshot `json:"incremental"`
	Any                   UpdateSnapshot `json:"any"`
	CurrentDocumentsCount int64          `json:"current-documents-count"`
	Dump                  DumpSnapshot   `json:"dump"`
}

func (s *UpdateStatistics) snapshot() UpdateSnapshot {
	snap := UpdateSnapshot{
		Attempts:  s.attempts.Load(),
		Successes: s.successes.Load(),
		Failures:  s.failures.Load(),
	}
	if micro := s.lastSuccessUnixMicro.Load(); micro != 0 {
		snap.LastSuccessTime = time.UnixMicro(micro).UTC().Format(time.RFC3339)
	}
	return snap
}

// combine merges two update snapshots into the "any" aggregate
func combine(a, b UpdateSnapshot) UpdateSnapshot {
	out := UpdateSnapshot{
		Attempts:  a.Attempts + b.Attempts,
		Successes: a.Successes + b.Successes,
		Failures:  a.Failures + b.Failures,
	}
	if a.LastSuccessTime > b.LastSuccessTime {
		out.LastSuccessTime = a.LastSuccessTime
	} else {
		out.LastSuccessTime = b.LastSuccessTime
	}
	return out
}

// Snapshot captures the current counter values
func (s *Statistics) Snapshot() Snapshot {
	full := s.full.snapshot()
	incremental := s.incremental.snapshot()

	snap := Snapshot{
		Full:                  full,
		Incremental:           incremental,
		Any:                   combine(full, incremental),
		CurrentDocumentsCount: s.documentsCurrentCount.Load(),
		Dump: DumpSnapshot{
			IsLoaded:                    s.dump.isLoaded.Load(),
			IsCurrentFromDump:           s.dump.isCurrentFromDump.Load(),
			LoadDurationMs:              s.dump.loadDuration.Load(),
			LastWrittenSize:             s.dump.lastWrittenSize.Load(),
			LastNontrivialWriteDuration: s.dump.lastNontrivialWriteDuration.Load(),
		},
	}
	if ms := s.dump.lastNontrivialWriteStartUnix.Load(); ms != 0 {
		snap.Dump.LastNontrivialWriteStart = time.UnixMilli(ms).UTC().Format(time.RFC3339)
	}
	return snap
}

// UpdateScope tracks one update attempt. The engine creates it before
// invoking the domain Update and settles it from the returned error; the
// domain reports document counts through it.
type UpdateScope struct {
	stats      *Statistics
	updateType UpdateType
	documents  int64
	hasCount   bool
	onModified func()
}

func newUpdateScope(stats *Statistics, updateType UpdateType) *UpdateScope {
	stats.forType(updateType).attempts.Add(1)
	return &UpdateScope{
		stats:      stats,
		updateType: updateType,
	}
}

// SetDocumentsCount reports the cache's document count after this update
func (sc *UpdateScope) SetDocumentsCount(n int64) {
	sc.documents = n
	sc.hasCount = true
}

// MarkModified records that this update changed the cache contents.
// Equivalent to calling the engine's OnCacheModified.
func (sc *UpdateScope) MarkModified() {
	if sc.onModified != nil {
		sc.onModified()
	}
}

func (sc *UpdateScope) success(now time.Time) {
	s := sc.stats.forType(sc.updateType)
	s.successes.Add(1)
	s.lastSuccessUnixMicro.Store(now.UnixMicro())
	if sc.hasCount {
		sc.stats.documentsCurrentCount.Store(sc.documents)
	}
}

func (sc *UpdateScope) failure() {
	sc.stats.forType(sc.updateType).failures.Add(1)
}
