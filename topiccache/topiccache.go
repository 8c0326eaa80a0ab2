// Package topiccache provides a cache.Cache implementation materializing
// a compacted Kafka topic as an in-memory key-value map.
//
// A full update replays the topic from the earliest offsets; an
// incremental update resumes from the offsets reached last time. A
// message with a nil value is a tombstone and removes the key. Offsets
// are part of the dump, so a warm-started cache continues incrementally
// from where the dumped snapshot stopped.
package topiccache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/dailyyoga/cachekit/cache"
	"github.com/dailyyoga/cachekit/logger"
	"go.uber.org/zap"
)

// consumer is the subset of *kafka.Consumer the cache uses
type consumer interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	QueryWatermarkOffsets(topic string, partition int32, timeoutMs int) (int64, int64, error)
	Assign(partitions []kafka.TopicPartition) error
	Unassign() error
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	Close() error
}

// TopicCache is a compacted-topic cache
type TopicCache struct {
	name  string
	log   logger.Logger
	topic string

	consumer        consumer
	pollTimeout     time.Duration
	metadataTimeout time.Duration

	mu      sync.RWMutex
	entries map[string][]byte
	// offsets holds the next offset to read per partition
	offsets map[int32]int64
}

// New creates a kafka consumer per the configuration and returns an
// empty topic cache; the cache engine fills it on the first update
func New(log logger.Logger, cfg *Config) (*TopicCache, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig("config is required")
	}
	cfg.MergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kc, err := kafka.NewConsumer(cfg.BuildConfigMap())
	if err != nil {
		return nil, ErrConnection(err)
	}

	log.Info("topic cache consumer created",
		zap.String("cache", cfg.Name),
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
	)

	c := newWithConsumer(log, cfg.Name, cfg.Topic, kc)
	c.pollTimeout = cfg.PollTimeout
	c.metadataTimeout = cfg.MetadataTimeout
	return c, nil
}

func newWithConsumer(log logger.Logger, name, topic string, kc consumer) *TopicCache {
	return &TopicCache{
		name:            name,
		log:             log,
		topic:           topic,
		consumer:        kc,
		pollTimeout:     DefaultConfig().PollTimeout,
		metadataTimeout: DefaultConfig().MetadataTimeout,
		entries:         make(map[string][]byte),
		offsets:         make(map[int32]int64),
	}
}

// Close releases the kafka consumer
func (c *TopicCache) Close() error {
	if c.consumer == nil {
		return nil
	}
	return c.consumer.Close()
}

// Name implements cache.Cache
func (c *TopicCache) Name() string { return c.name }

// replayState is the private working copy of one update. The live maps
// are replaced only after every partition replays cleanly, so a failing
// update never destroys the current contents.
type replayState struct {
	entries map[string][]byte
	offsets map[int32]int64
}

// Update implements cache.Cache
func (c *TopicCache) Update(ctx context.Context, updateType cache.UpdateType, lastUpdate, now time.Time, scope *cache.UpdateScope) error {
	st := c.stagingState(updateType == cache.UpdateFull)

	md, err := c.consumer.GetMetadata(&c.topic, false, int(c.metadataTimeout.Milliseconds()))
	if err != nil {
		return ErrTopicMetadata(c.topic, err)
	}
	tmeta, ok := md.Topics[c.topic]
	if !ok || len(tmeta.Partitions) == 0 {
		return ErrTopicMetadata(c.topic, fmt.Errorf("topic has no partitions"))
	}

	changed := false
	for _, p := range tmeta.Partitions {
		partChanged, err := c.consumePartition(ctx, p.ID, st)
		if err != nil {
			return err
		}
		changed = changed || partChanged
	}

	c.mu.Lock()
	if updateType == cache.UpdateFull {
		// a full replay rebuilds the map from scratch; compare against
		// the previous contents to detect an actual change
		changed = !entriesEqual(st.entries, c.entries)
	}
	c.entries = st.entries
	c.offsets = st.offsets
	documents := len(c.entries)
	c.mu.Unlock()

	if changed {
		scope.MarkModified()
	}
	scope.SetDocumentsCount(int64(documents))

	c.log.Debug("topic cache updated",
		zap.Stringer("update_type", updateType),
		zap.Int("documents", documents),
		zap.Bool("changed", changed),
	)
	return nil
}

// stagingState builds the working copy: empty for a full replay, a deep
// copy of the live maps for an incremental one
func (c *TopicCache) stagingState(fresh bool) *replayState {
	st := &replayState{
		entries: make(map[string][]byte),
		offsets: make(map[int32]int64),
	}
	if fresh {
		return st
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.entries {
		st.entries[k] = v
	}
	for p, o := range c.offsets {
		st.offsets[p] = o
	}
	return st
}

func entriesEqual(a, b map[string][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if old, ok := b[k]; !ok || string(old) != string(v) {
			return false
		}
	}
	return true
}

// consumePartition replays one partition up to its current high watermark
func (c *TopicCache) consumePartition(ctx context.Context, partition int32, st *replayState) (bool, error) {
	low, high, err := c.consumer.QueryWatermarkOffsets(c.topic, partition, int(c.metadataTimeout.Milliseconds()))
	if err != nil {
		return false, ErrTopicMetadata(c.topic, err)
	}

	next, ok := st.offsets[partition]
	if !ok || next < low {
		// compaction may have dropped the offsets we remembered
		next = low
	}
	if next >= high {
		st.offsets[partition] = next
		return false, nil
	}

	if err := c.consumer.Assign([]kafka.TopicPartition{{
		Topic:     &c.topic,
		Partition: partition,
		Offset:    kafka.Offset(next),
	}}); err != nil {
		return false, ErrConsume(c.topic, err)
	}
	defer c.consumer.Unassign()

	changed := false
	for next < high {
		if err := ctx.Err(); err != nil {
			return changed, err
		}

		msg, err := c.consumer.ReadMessage(c.pollTimeout)
		if err != nil {
			if kerr, ok := err.(kafka.Error); ok && kerr.Code() == kafka.ErrTimedOut {
				continue
			}
			return changed, ErrConsume(c.topic, err)
		}

		if apply(st, msg) {
			changed = true
		}
		next = int64(msg.TopicPartition.Offset) + 1
	}

	st.offsets[partition] = next
	return changed, nil
}

// apply merges one message into the working copy; a nil value is a
// tombstone
func apply(st *replayState, msg *kafka.Message) bool {
	key := string(msg.Key)
	if key == "" {
		return false
	}

	if msg.Value == nil {
		if _, ok := st.entries[key]; ok {
			delete(st.entries, key)
			return true
		}
		return false
	}
	if old, ok := st.entries[key]; ok && string(old) == string(msg.Value) {
		return false
	}
	st.entries[key] = append([]byte(nil), msg.Value...)
	return true
}

// Cleanup implements cache.Cache; tombstoned keys are removed eagerly,
// so there is nothing to compact
func (c *TopicCache) Cleanup() {}

// Get returns the value for a key
func (c *TopicCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Count returns the number of cached keys
func (c *TopicCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// snapshot is the dump payload: the materialized map plus the offsets
// it reflects, so a warm start resumes incrementally
type snapshot struct {
	Entries map[string][]byte `json:"entries"`
	Offsets map[int32]int64   `json:"offsets"`
}

// GetAndWrite implements cache.Dumpable
func (c *TopicCache) GetAndWrite(w io.Writer) error {
	c.mu.RLock()
	snap := snapshot{
		Entries: make(map[string][]byte, len(c.entries)),
		Offsets: make(map[int32]int64, len(c.offsets)),
	}
	for k, v := range c.entries {
		snap.Entries[k] = v
	}
	for p, o := range c.offsets {
		snap.Offsets[p] = o
	}
	c.mu.RUnlock()

	if len(snap.Entries) == 0 {
		return fmt.Errorf("%w: %s", cache.ErrEmptyCache, c.name)
	}
	return json.NewEncoder(w).Encode(snap)
}

// ReadAndSet implements cache.Dumpable
func (c *TopicCache) ReadAndSet(r io.Reader) error {
	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = snap.Entries
	if c.entries == nil {
		c.entries = make(map[string][]byte)
	}
	c.offsets = snap.Offsets
	if c.offsets == nil {
		c.offsets = make(map[int32]int64)
	}
	return nil
}
