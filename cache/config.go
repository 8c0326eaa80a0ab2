package cache

import (
	"fmt"
	"time"

	"github.com/dailyyoga/cachekit/dump"
)

// Config is the static configuration of a cache engine. A subset of the
// fields can be overridden at runtime through a DynamicConfig overlay.
type Config struct {
	// UpdateInterval is the nominal period between periodic updates
	// default: 5 * time.Minute
	UpdateInterval time.Duration `mapstructure:"update_interval"`
	// UpdateJitter is the random spread applied to each update period
	// default: UpdateInterval / 10
	UpdateJitter time.Duration `mapstructure:"update_jitter"`
	// FullUpdateInterval is the minimum interval between full updates
	// when AllowedUpdateTypes is full-and-incremental (required then)
	FullUpdateInterval time.Duration `mapstructure:"full_update_interval"`
	// CleanupInterval is the period for config compaction and the user
	// Cleanup hook
	// default: 10 * time.Minute
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	// AllowedUpdateTypes restricts the update types the engine may pick
	// default: full-and-incremental
	AllowedUpdateTypes AllowedUpdateTypes `mapstructure:"allowed_update_types"`
	// FirstUpdateMode controls the synchronous first update after a dump
	// load
	// default: skip
	FirstUpdateMode FirstUpdateMode `mapstructure:"first_update_mode"`
	// ForceFullSecondUpdate schedules one full update right after a warm
	// start with incremental-only updates, so corrupted dump data cannot
	// survive restarts
	ForceFullSecondUpdate bool `mapstructure:"force_full_second_update"`
	// AllowFirstUpdateFailure lets Start proceed with an empty cache when
	// the first update fails and no dump was loaded
	AllowFirstUpdateFailure bool `mapstructure:"allow_first_update_failure"`
	// DumpsEnabled turns on dump writing and dump loading on startup
	DumpsEnabled bool `mapstructure:"dumps_enabled"`
	// MinDumpInterval is the minimum spacing between dumps triggered by
	// periodic updates
	MinDumpInterval time.Duration `mapstructure:"min_dump_interval"`
	// Dump configures the on-disk dump namespace (required when
	// DumpsEnabled)
	Dump *dump.Config `mapstructure:"dump"`
}

// DefaultConfig returns the default configuration for a cache engine
func DefaultConfig() *Config {
	return &Config{
		UpdateInterval:     5 * time.Minute,
		CleanupInterval:    10 * time.Minute,
		AllowedUpdateTypes: FullAndIncremental,
		FirstUpdateMode:    FirstUpdateSkip,
	}
}

// MergeDefaults merges the default configuration into zero fields
func (c *Config) MergeDefaults() *Config {
	defaults := DefaultConfig()
	if c.UpdateInterval == 0 {
		c.UpdateInterval = defaults.UpdateInterval
	}
	if c.UpdateJitter == 0 {
		c.UpdateJitter = c.UpdateInterval / 10
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = defaults.CleanupInterval
	}
	if c.AllowedUpdateTypes == "" {
		c.AllowedUpdateTypes = defaults.AllowedUpdateTypes
	}
	if c.FirstUpdateMode == "" {
		c.FirstUpdateMode = defaults.FirstUpdateMode
	}
	return c
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.UpdateInterval <= 0 {
		return ErrInvalidConfig(fmt.Sprintf("update_interval %v must be > 0", c.UpdateInterval))
	}
	if c.UpdateJitter < 0 {
		return ErrInvalidConfig(fmt.Sprintf("update_jitter %v must be >= 0", c.UpdateJitter))
	}
	if c.CleanupInterval <= 0 {
		return ErrInvalidConfig(fmt.Sprintf("cleanup_interval %v must be > 0", c.CleanupInterval))
	}
	switch c.AllowedUpdateTypes {
	case FullOnly, IncrementalOnly:
	case FullAndIncremental:
		if c.FullUpdateInterval <= 0 {
			return ErrInvalidConfig("full_update_interval is required for full-and-incremental updates")
		}
	default:
		return ErrInvalidConfig(fmt.Sprintf("unknown allowed_update_types: %q", c.AllowedUpdateTypes))
	}
	switch c.FirstUpdateMode {
	case FirstUpdateSkip, FirstUpdateBestEffort, FirstUpdateRequired:
	default:
		return ErrInvalidConfig(fmt.Sprintf("unknown first_update_mode: %q", c.FirstUpdateMode))
	}
	if c.MinDumpInterval < 0 {
		return ErrInvalidConfig(fmt.Sprintf("min_dump_interval %v must be >= 0", c.MinDumpInterval))
	}
	if c.DumpsEnabled {
		if c.Dump == nil {
			return ErrInvalidConfig("dump section is required when dumps_enabled")
		}
		if err := c.Dump.MergeDefaults().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// clone returns a shallow copy used as the basis of an overlay merge
func (c *Config) clone() *Config {
	cp := *c
	return &cp
}

// DynamicConfig is the runtime-tunable overlay merged over the static
// configuration. Zero fields keep the static value.
type DynamicConfig struct {
	UpdateInterval     time.Duration `mapstructure:"update_interval"`
	UpdateJitter       time.Duration `mapstructure:"update_jitter"`
	FullUpdateInterval time.Duration `mapstructure:"full_update_interval"`
	CleanupInterval    time.Duration `mapstructure:"cleanup_interval"`
	MinDumpInterval    time.Duration `mapstructure:"min_dump_interval"`
	// DumpsEnabled toggles dump writing at runtime; nil keeps the static
	// value
	DumpsEnabled *bool `mapstructure:"dumps_enabled"`
}

// MergeWith applies the overlay to a copy of the static configuration
func (c *Config) MergeWith(d *DynamicConfig) *Config {
	merged := c.clone()
	if d.UpdateInterval > 0 {
		merged.UpdateInterval = d.UpdateInterval
	}
	if d.UpdateJitter > 0 {
		merged.UpdateJitter = d.UpdateJitter
	}
	if d.FullUpdateInterval > 0 {
		merged.FullUpdateInterval = d.FullUpdateInterval
	}
	if d.CleanupInterval > 0 {
		merged.CleanupInterval = d.CleanupInterval
	}
	if d.MinDumpInterval > 0 {
		merged.MinDumpInterval = d.MinDumpInterval
	}
	if d.DumpsEnabled != nil {
		merged.DumpsEnabled = *d.DumpsEnabled
	}
	return merged
}
