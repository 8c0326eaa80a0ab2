// Package dbcache provides a cache.Cache implementation holding a product
// catalog loaded from a MySQL table.
//
// A full update reloads the whole table; an incremental update fetches
// only rows with updated_at past the previous update instant, including
// soft-deleted rows, and applies them to the in-memory map. The cache is
// dumpable, so a service can restart warm without hitting the database.
package dbcache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dailyyoga/cachekit/cache"
	"github.com/dailyyoga/cachekit/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"
)

// Product is one catalog row
type Product struct {
	ID        uint64          `gorm:"primaryKey" json:"id"`
	SKU       string          `gorm:"size:64" json:"sku"`
	Title     string          `gorm:"size:255" json:"title"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
	Deleted   bool            `json:"deleted"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName implements the gorm table naming convention
func (Product) TableName() string { return "products" }

// equal compares two rows field by field; decimal values compare by
// numeric value, not representation
func (p Product) equal(o Product) bool {
	return p.ID == o.ID &&
		p.SKU == o.SKU &&
		p.Title == o.Title &&
		p.Price.Equal(o.Price) &&
		p.Deleted == o.Deleted &&
		p.UpdatedAt.Equal(o.UpdatedAt)
}

// Catalog is a MySQL-backed product cache
type Catalog struct {
	name string
	log  logger.Logger
	db   *gorm.DB

	mu       sync.RWMutex
	products map[uint64]Product
	// deletions since the last compaction; Cleanup reallocates the map
	// once tombstone churn outweighs the live set
	deletions int
}

// New opens a MySQL connection per the configuration and returns an
// empty catalog; the cache engine fills it on the first update
func New(log logger.Logger, cfg *Config) (*Catalog, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig("config is required")
	}
	cfg.MergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger:      glogger.Default.LogMode(glogger.Warn),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, ErrConnection(err)
	}
	sqldb, err := db.DB()
	if err != nil {
		return nil, ErrConnection(err)
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqldb.Ping(); err != nil {
		return nil, ErrConnection(err)
	}

	log.Info("catalog database connection established",
		zap.String("cache", cfg.Name),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)

	return NewWithDB(log, cfg.Name, db), nil
}

// NewWithDB builds a catalog over an existing gorm handle
func NewWithDB(log logger.Logger, name string, db *gorm.DB) *Catalog {
	return &Catalog{
		name:     name,
		log:      log,
		db:       db,
		products: make(map[uint64]Product),
	}
}

// Name implements cache.Cache
func (c *Catalog) Name() string { return c.name }

// Update implements cache.Cache
func (c *Catalog) Update(ctx context.Context, updateType cache.UpdateType, lastUpdate, now time.Time, scope *cache.UpdateScope) error {
	var rows []Product
	q := c.db.WithContext(ctx)
	if updateType == cache.UpdateFull {
		q = q.Where("deleted = ?", false)
	} else {
		q = q.Where("updated_at > ?", lastUpdate)
	}
	if err := q.Find(&rows).Error; err != nil {
		return ErrQuery(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var changed bool
	if updateType == cache.UpdateFull {
		changed = c.replaceLocked(rows)
	} else {
		changed = c.applyLocked(rows)
	}
	if changed {
		scope.MarkModified()
	}
	scope.SetDocumentsCount(int64(len(c.products)))

	c.log.Debug("catalog updated",
		zap.Stringer("update_type", updateType),
		zap.Int("rows_read", len(rows)),
		zap.Int("documents", len(c.products)),
		zap.Bool("changed", changed),
	)
	return nil
}

// replaceLocked installs a full snapshot; reports whether anything changed
func (c *Catalog) replaceLocked(rows []Product) bool {
	next := make(map[uint64]Product, len(rows))
	for _, row := range rows {
		next[row.ID] = row
	}

	changed := len(next) != len(c.products)
	if !changed {
		for id, row := range next {
			old, ok := c.products[id]
			if !ok || !old.equal(row) {
				changed = true
				break
			}
		}
	}

	c.products = next
	c.deletions = 0
	return changed
}

// applyLocked merges incremental rows; soft-deleted rows become removals
func (c *Catalog) applyLocked(rows []Product) bool {
	changed := false
	for _, row := range rows {
		if row.Deleted {
			if _, ok := c.products[row.ID]; ok {
				delete(c.products, row.ID)
				c.deletions++
				changed = true
			}
			continue
		}
		if old, ok := c.products[row.ID]; !ok || !old.equal(row) {
			c.products[row.ID] = row
			changed = true
		}
	}
	return changed
}

// Cleanup implements cache.Cache: compacts the map once deletions
// outweigh the live set
func (c *Catalog) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deletions <= len(c.products) {
		return
	}
	next := make(map[uint64]Product, len(c.products))
	for id, row := range c.products {
		next[id] = row
	}
	c.products = next
	c.deletions = 0
}

// Get returns a product by id
func (c *Catalog) Get(id uint64) (Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	return p, ok
}

// Count returns the number of cached products
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.products)
}

// GetAndWrite implements cache.Dumpable
func (c *Catalog) GetAndWrite(w io.Writer) error {
	c.mu.RLock()
	rows := make([]Product, 0, len(c.products))
	for _, row := range c.products {
		rows = append(rows, row)
	}
	c.mu.RUnlock()

	if len(rows) == 0 {
		return fmt.Errorf("%w: %s", cache.ErrEmptyCache, c.name)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return json.NewEncoder(w).Encode(rows)
}

// ReadAndSet implements cache.Dumpable
func (c *Catalog) ReadAndSet(r io.Reader) error {
	var rows []Product
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = make(map[uint64]Product, len(rows))
	for _, row := range rows {
		c.products[row.ID] = row
	}
	c.deletions = 0
	return nil
}
