package cache

import (
	"sync"
	"sync/atomic"
)

// configView publishes the effective configuration as an atomic snapshot:
// an immutable static base with an optional dynamic overlay merged over
// it. Readers get a *Config that is never mutated afterwards; writers
// install a new snapshot atomically, so a reader observes either the old
// or the new configuration wholly.
type configView struct {
	base    *Config
	current atomic.Pointer[Config]

	// mu serializes writers and guards retained
	mu sync.Mutex
	// retained holds superseded snapshots until the next Cleanup;
	// readers holding an old pointer keep it valid regardless
	retained []*Config
}

func newConfigView(base *Config) *configView {
	v := &configView{base: base}
	v.current.Store(base)
	return v
}

// Read returns the current configuration snapshot. The result must be
// treated as read-only.
func (v *configView) Read() *Config {
	return v.current.Load()
}

// Assign replaces the dynamic overlay; nil resets to the static base
func (v *configView) Assign(d *DynamicConfig) {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := v.base
	if d != nil {
		next = v.base.MergeWith(d)
	}
	prev := v.current.Swap(next)
	if prev != v.base && prev != next {
		v.retained = append(v.retained, prev)
	}
}

// Cleanup drops superseded snapshots
func (v *configView) Cleanup() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.retained = nil
}
