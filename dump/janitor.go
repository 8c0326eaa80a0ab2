package dump

import (
	"sync"

	"github.com/dailyyoga/cachekit/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JanitorConfig holds configuration for the Janitor
type JanitorConfig struct {
	// Spec is the cron spec for retention sweeps, e.g. "@every 10m"
	// default: "@every 10m"
	Spec string `mapstructure:"spec"`
}

// DefaultJanitorConfig returns the default configuration for the Janitor
func DefaultJanitorConfig() *JanitorConfig {
	return &JanitorConfig{
		Spec: "@every 10m",
	}
}

// MergeDefaults merges the default configuration into empty fields
func (c *JanitorConfig) MergeDefaults() *JanitorConfig {
	if c.Spec == "" {
		c.Spec = DefaultJanitorConfig().Spec
	}
	return c
}

// Janitor runs retention sweeps over registered dump managers on a cron
// schedule. The dump engine cleans a cache's dump dir after each write,
// but a cache that stops dumping (disabled via dynamic config, or idle)
// would otherwise keep expired dumps forever.
type Janitor struct {
	log  logger.Logger
	cron *cron.Cron

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewJanitor creates a janitor sweeping on the configured cron spec
func NewJanitor(log logger.Logger, cfg *JanitorConfig) (*Janitor, error) {
	if cfg == nil {
		cfg = DefaultJanitorConfig()
	} else {
		cfg.MergeDefaults()
	}

	j := &Janitor{
		log:      log,
		cron:     cron.New(),
		managers: make(map[string]*Manager),
	}
	if _, err := j.cron.AddFunc(cfg.Spec, j.sweep); err != nil {
		return nil, ErrInvalidConfig("bad janitor spec: " + cfg.Spec)
	}
	return j, nil
}

// Register adds a manager to the sweep set. A manager registered under an
// already-known cache name replaces the previous one.
func (j *Janitor) Register(m *Manager) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.managers[m.Name()] = m
}

// Deregister removes the manager for the given cache name
func (j *Janitor) Deregister(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.managers, name)
}

// Start begins scheduled sweeps
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop stops the schedule and waits for a running sweep to complete
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one retention pass over all registered managers
func (j *Janitor) Sweep() {
	j.sweep()
}

func (j *Janitor) sweep() {
	j.mu.Lock()
	managers := make([]*Manager, 0, len(j.managers))
	for _, m := range j.managers {
		managers = append(managers, m)
	}
	j.mu.Unlock()

	for _, m := range managers {
		m.Cleanup()
	}
	j.log.Debug("dump janitor sweep completed", zap.Int("managers", len(managers)))
}
