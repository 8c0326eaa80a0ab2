package chcache

import "time"

// Config is the configuration for the ClickHouse dictionary cache
type Config struct {
	// Name identifies the cache in logs, metrics and the control
	// registry (required)
	Name string `mapstructure:"name"`

	// clickhouse connection config
	Hosts    []string `mapstructure:"hosts"`
	Database string   `mapstructure:"database"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	// DialTimeout is the connection timeout
	// default: 5s
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// Table is the dictionary table to load (required). It must have
	// id (UInt64), name (String) and updated_at (DateTime64) columns.
	Table string `mapstructure:"table"`
}

// DefaultConfig returns the default configuration for the dictionary cache
func DefaultConfig() *Config {
	return &Config{
		DialTimeout: 5 * time.Second,
	}
}

// MergeDefaults merges the default configuration into zero fields
func (c *Config) MergeDefaults() *Config {
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultConfig().DialTimeout
	}
	return c
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Name == "" {
		return ErrInvalidConfig("name is required")
	}
	if len(c.Hosts) == 0 {
		return ErrInvalidConfig("hosts are required")
	}
	if c.Database == "" {
		return ErrInvalidConfig("database is required")
	}
	if c.Table == "" {
		return ErrInvalidConfig("table is required")
	}
	return nil
}
