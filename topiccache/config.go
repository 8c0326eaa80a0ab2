package topiccache

import (
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Config is the configuration for the compacted-topic cache
type Config struct {
	// Name identifies the cache in logs, metrics and the control
	// registry (required)
	Name string `mapstructure:"name"`

	// kafka connection config
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	// GroupID is required by the client; the cache never commits
	// offsets through the group, it tracks them itself
	// default: "<name>-topiccache"
	GroupID string `mapstructure:"group_id"`

	// PollTimeout bounds each poll for the next message
	// default: 500ms
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	// MetadataTimeout bounds partition metadata and watermark lookups
	// default: 10s
	MetadataTimeout time.Duration `mapstructure:"metadata_timeout"`
}

// DefaultConfig returns the default configuration for the topic cache
func DefaultConfig() *Config {
	return &Config{
		PollTimeout:     500 * time.Millisecond,
		MetadataTimeout: 10 * time.Second,
	}
}

// MergeDefaults merges the default configuration into zero fields
func (c *Config) MergeDefaults() *Config {
	defaults := DefaultConfig()
	if c.GroupID == "" && c.Name != "" {
		c.GroupID = c.Name + "-topiccache"
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = defaults.PollTimeout
	}
	if c.MetadataTimeout == 0 {
		c.MetadataTimeout = defaults.MetadataTimeout
	}
	return c
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Name == "" {
		return ErrInvalidConfig("name is required")
	}
	if len(c.Brokers) == 0 {
		return ErrInvalidConfig("brokers are required")
	}
	if c.Topic == "" {
		return ErrInvalidConfig("topic is required")
	}
	if c.PollTimeout <= 0 {
		return ErrInvalidConfig("poll_timeout must be > 0")
	}
	if c.MetadataTimeout <= 0 {
		return ErrInvalidConfig("metadata_timeout must be > 0")
	}
	return nil
}

// BuildConfigMap builds the confluent client configuration. The cache
// assigns partitions and tracks offsets itself, so group features and
// auto commit stay off.
func (c *Config) BuildConfigMap() *kafka.ConfigMap {
	return &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(c.Brokers, ","),
		"group.id":           c.GroupID,
		"enable.auto.commit": false,
		"auto.offset.reset":  "earliest",
	}
}
