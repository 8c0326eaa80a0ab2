package cache

import (
	"context"
	"sort"
	"sync"
)

// Control is a registry of running cache engines. Test suites use it to
// trigger updates and dumps from outside and to disable periodic updates
// so every refresh is externally driven.
//
// Engines register themselves on Start and deregister on Stop.
type Control struct {
	mu      sync.Mutex
	engines map[string]*Engine
	// periodicDisabled applies to engines started after the change
	periodicDisabled bool
}

// NewControl creates an empty registry with periodic updates enabled
func NewControl() *Control {
	return &Control{
		engines: make(map[string]*Engine),
	}
}

// SetPeriodicUpdatesEnabled toggles periodic updates for engines started
// afterwards. Intended for test suites that drive updates explicitly.
func (c *Control) SetPeriodicUpdatesEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.periodicDisabled = !enabled
}

// PeriodicUpdatesEnabled reports whether engines should run periodic
// update tasks
func (c *Control) PeriodicUpdatesEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.periodicDisabled
}

func (c *Control) register(e *Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engines[e.Name()] = e
}

func (c *Control) deregister(e *Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engines[e.Name()] == e {
		delete(c.engines, e.Name())
	}
}

// Engines returns the registered engines sorted by name
func (c *Control) Engines() []*Engine {
	c.mu.Lock()
	defer c.mu.Unlock()

	engines := make([]*Engine, 0, len(c.engines))
	for _, e := range c.engines {
		engines = append(engines, e)
	}
	sort.Slice(engines, func(i, j int) bool {
		return engines[i].Name() < engines[j].Name()
	})
	return engines
}

func (c *Control) engine(name string) (*Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.engines[name]
	if !ok {
		return nil, ErrUnknownCache(name)
	}
	return e, nil
}

// Invalidate triggers a synchronous update of one cache
func (c *Control) Invalidate(ctx context.Context, name string, updateType UpdateType) error {
	e, err := c.engine(name)
	if err != nil {
		return err
	}
	return e.Update(ctx, updateType)
}

// InvalidateAll triggers a synchronous full update of every registered
// cache, in name order. The first failure aborts the sweep.
func (c *Control) InvalidateAll(ctx context.Context) error {
	for _, e := range c.Engines() {
		if err := e.Update(ctx, UpdateFull); err != nil {
			return err
		}
	}
	return nil
}

// DumpSyncDebug forces a dump of one cache and waits for it
func (c *Control) DumpSyncDebug(ctx context.Context, name string) error {
	e, err := c.engine(name)
	if err != nil {
		return err
	}
	return e.DumpSyncDebug(ctx)
}
