package dump

import "time"

// Config holds configuration for a dump Manager
type Config struct {
	// Dir is the directory holding this cache's dump files (required)
	Dir string `mapstructure:"dir"`
	// MaxCount is how many finished dumps Cleanup keeps, newest first
	// default: 2
	MaxCount int `mapstructure:"max_count"`
	// MaxAge is the oldest dump Cleanup keeps; 0 disables the age check
	// default: 0
	MaxAge time.Duration `mapstructure:"max_age"`
}

// DefaultConfig returns the default configuration for a dump Manager
// Note: Dir has no default value and must be explicitly set by the user
func DefaultConfig() *Config {
	return &Config{
		MaxCount: 2,
	}
}

// MergeDefaults merges the default configuration into zero fields
func (c *Config) MergeDefaults() *Config {
	defaults := DefaultConfig()
	if c.MaxCount == 0 {
		c.MaxCount = defaults.MaxCount
	}
	return c
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Dir == "" {
		return ErrInvalidConfig("dir is required")
	}
	if c.MaxCount < 1 {
		return ErrInvalidConfig("max_count must be >= 1")
	}
	if c.MaxAge < 0 {
		return ErrInvalidConfig("max_age must be >= 0")
	}
	return nil
}
