// Package chcache provides a cache.Cache implementation holding a
// dictionary table loaded from ClickHouse.
//
// Dictionary tables (regions, categories, feature groups) are small,
// append-mostly and queried on every request, which makes them a natural
// fit for a periodically refreshed in-memory snapshot with dump support.
package chcache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/dailyyoga/cachekit/cache"
	"github.com/dailyyoga/cachekit/logger"
	"go.uber.org/zap"
)

// Entry is one dictionary row
type Entry struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// equal compares two rows; timestamps compare by instant, not location
func (e Entry) equal(o Entry) bool {
	return e.ID == o.ID && e.Name == o.Name && e.UpdatedAt.Equal(o.UpdatedAt)
}

// Dictionary is a ClickHouse-backed dictionary cache
type Dictionary struct {
	name  string
	log   logger.Logger
	table string
	conn  driver.Conn

	mu      sync.RWMutex
	entries map[uint64]Entry
}

// New connects to ClickHouse per the configuration and returns an empty
// dictionary; the cache engine fills it on the first update
func New(log logger.Logger, cfg *Config) (*Dictionary, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig("config is required")
	}
	cfg.MergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Hosts,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, ErrConnection(err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		conn.Close()
		return nil, ErrConnection(err)
	}

	log.Info("dictionary clickhouse connection established",
		zap.String("cache", cfg.Name),
		zap.Strings("hosts", cfg.Hosts),
		zap.String("table", cfg.Table),
	)

	d := NewWithConn(log, cfg.Name, cfg.Table, conn)
	return d, nil
}

// NewWithConn builds a dictionary over an existing ClickHouse connection
func NewWithConn(log logger.Logger, name, table string, conn driver.Conn) *Dictionary {
	return &Dictionary{
		name:    name,
		log:     log,
		table:   table,
		conn:    conn,
		entries: make(map[uint64]Entry),
	}
}

// Close releases the ClickHouse connection
func (d *Dictionary) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// Name implements cache.Cache
func (d *Dictionary) Name() string { return d.name }

// Update implements cache.Cache. Dictionaries are append-mostly: rows
// never disappear upstream, so incremental updates only upsert.
func (d *Dictionary) Update(ctx context.Context, updateType cache.UpdateType, lastUpdate, now time.Time, scope *cache.UpdateScope) error {
	query := fmt.Sprintf("SELECT id, name, updated_at FROM `%s`", d.table)
	args := []any(nil)
	if updateType == cache.UpdateIncremental {
		query += " WHERE updated_at > ?"
		args = append(args, lastUpdate)
	}

	rows, err := d.conn.Query(ctx, query, args...)
	if err != nil {
		return ErrQuery(err)
	}
	defer rows.Close()

	var fetched []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.UpdatedAt); err != nil {
			return ErrQuery(err)
		}
		fetched = append(fetched, e)
	}
	if err := rows.Err(); err != nil {
		return ErrQuery(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var changed bool
	if updateType == cache.UpdateFull {
		changed = d.replaceLocked(fetched)
	} else {
		changed = d.upsertLocked(fetched)
	}
	if changed {
		scope.MarkModified()
	}
	scope.SetDocumentsCount(int64(len(d.entries)))

	d.log.Debug("dictionary updated",
		zap.Stringer("update_type", updateType),
		zap.Int("rows_read", len(fetched)),
		zap.Int("documents", len(d.entries)),
		zap.Bool("changed", changed),
	)
	return nil
}

func (d *Dictionary) replaceLocked(fetched []Entry) bool {
	next := make(map[uint64]Entry, len(fetched))
	for _, e := range fetched {
		next[e.ID] = e
	}

	changed := len(next) != len(d.entries)
	if !changed {
		for id, e := range next {
			if old, ok := d.entries[id]; !ok || !old.equal(e) {
				changed = true
				break
			}
		}
	}

	d.entries = next
	return changed
}

func (d *Dictionary) upsertLocked(fetched []Entry) bool {
	changed := false
	for _, e := range fetched {
		if old, ok := d.entries[e.ID]; !ok || !old.equal(e) {
			d.entries[e.ID] = e
			changed = true
		}
	}
	return changed
}

// Cleanup implements cache.Cache; dictionaries carry no tombstones, so
// there is nothing to compact
func (d *Dictionary) Cleanup() {}

// Get returns a dictionary entry by id
func (d *Dictionary) Get(id uint64) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[id]
	return e, ok
}

// Count returns the number of cached entries
func (d *Dictionary) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// GetAndWrite implements cache.Dumpable
func (d *Dictionary) GetAndWrite(w io.Writer) error {
	d.mu.RLock()
	entries := make([]Entry, 0, len(d.entries))
	for _, e := range d.entries {
		entries = append(entries, e)
	}
	d.mu.RUnlock()

	if len(entries) == 0 {
		return fmt.Errorf("%w: %s", cache.ErrEmptyCache, d.name)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return json.NewEncoder(w).Encode(entries)
}

// ReadAndSet implements cache.Dumpable
func (d *Dictionary) ReadAndSet(r io.Reader) error {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = make(map[uint64]Entry, len(entries))
	for _, e := range entries {
		d.entries[e.ID] = e
	}
	return nil
}
