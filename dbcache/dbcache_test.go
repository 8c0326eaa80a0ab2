package dbcache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dailyyoga/cachekit/cache"
	"github.com/dailyyoga/cachekit/dump"
	"github.com/dailyyoga/cachekit/logger"
	"github.com/dailyyoga/cachekit/routine"
	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "debug", Encoding: "console"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log
}

func product(id uint64, sku string, price string, updatedAt time.Time) Product {
	return Product{
		ID:        id,
		SKU:       sku,
		Title:     "title-" + sku,
		Price:     decimal.RequireFromString(price),
		UpdatedAt: updatedAt,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"valid", &Config{Name: "catalog", Host: "localhost", User: "root", Database: "shop"}, false},
		{"missing name", &Config{Host: "localhost", User: "root", Database: "shop"}, true},
		{"missing host", &Config{Name: "catalog", User: "root", Database: "shop"}, true},
		{"missing user", &Config{Name: "catalog", Host: "localhost", Database: "shop"}, true},
		{"missing database", &Config{Name: "catalog", Host: "localhost", User: "root"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.MergeDefaults()
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := (&Config{Name: "catalog", Host: "db.local", User: "app", Password: "secret", Database: "shop"}).MergeDefaults()
	want := "app:secret@tcp(db.local:3306)/shop?charset=utf8mb4&parseTime=True&loc=UTC"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestCatalog_ReplaceDetectsChanges(t *testing.T) {
	c := NewWithDB(testLogger(t), "catalog", nil)
	now := time.Now().UTC().Truncate(time.Second)

	rows := []Product{product(1, "a", "9.99", now), product(2, "b", "5.00", now)}
	if !c.replaceLocked(rows) {
		t.Error("initial load must report a change")
	}
	if c.replaceLocked(rows) {
		t.Error("identical snapshot must not report a change")
	}

	// numeric-equal decimal with a different representation
	same := []Product{product(1, "a", "9.990", now), product(2, "b", "5", now)}
	if c.replaceLocked(same) {
		t.Error("numerically equal snapshot must not report a change")
	}

	changedPrice := []Product{product(1, "a", "10.99", now), product(2, "b", "5.00", now)}
	if !c.replaceLocked(changedPrice) {
		t.Error("price change must report a change")
	}
}

func TestCatalog_ApplyIncremental(t *testing.T) {
	c := NewWithDB(testLogger(t), "catalog", nil)
	now := time.Now().UTC()

	c.replaceLocked([]Product{product(1, "a", "1.00", now), product(2, "b", "2.00", now)})

	// upsert one, soft-delete another
	deleted := product(2, "b", "2.00", now.Add(time.Minute))
	deleted.Deleted = true
	changed := c.applyLocked([]Product{product(1, "a", "1.50", now.Add(time.Minute)), deleted})
	if !changed {
		t.Error("incremental with changes must report a change")
	}
	if c.Count() != 1 {
		t.Errorf("expected 1 product after delete, got %d", c.Count())
	}
	if p, ok := c.Get(1); !ok || !p.Price.Equal(decimal.RequireFromString("1.50")) {
		t.Errorf("upsert not applied: %+v", p)
	}

	// replaying the same delete is a no-op
	if c.applyLocked([]Product{deleted}) {
		t.Error("replayed delete must not report a change")
	}
}

func TestCatalog_DumpRoundTrip(t *testing.T) {
	c := NewWithDB(testLogger(t), "catalog", nil)
	now := time.Now().UTC().Truncate(time.Second)
	c.replaceLocked([]Product{product(1, "a", "9.99", now), product(2, "b", "5.00", now)})

	var buf bytes.Buffer
	if err := c.GetAndWrite(&buf); err != nil {
		t.Fatalf("GetAndWrite failed: %v", err)
	}

	restored := NewWithDB(testLogger(t), "catalog", nil)
	if err := restored.ReadAndSet(&buf); err != nil {
		t.Fatalf("ReadAndSet failed: %v", err)
	}

	if restored.Count() != 2 {
		t.Fatalf("expected 2 products, got %d", restored.Count())
	}
	for id := uint64(1); id <= 2; id++ {
		orig, _ := c.Get(id)
		got, ok := restored.Get(id)
		if !ok || !got.equal(orig) {
			t.Errorf("product %d mismatch: %+v != %+v", id, got, orig)
		}
	}
}

func TestCatalog_DumpEmpty(t *testing.T) {
	c := NewWithDB(testLogger(t), "catalog", nil)
	err := c.GetAndWrite(&bytes.Buffer{})
	if !errors.Is(err, cache.ErrEmptyCache) {
		t.Errorf("expected ErrEmptyCache, got %v", err)
	}
}

func TestCatalog_CleanupCompacts(t *testing.T) {
	c := NewWithDB(testLogger(t), "catalog", nil)
	now := time.Now().UTC()

	var rows []Product
	for i := uint64(1); i <= 10; i++ {
		rows = append(rows, product(i, "sku", "1.00", now))
	}
	c.replaceLocked(rows)

	var deletes []Product
	for i := uint64(1); i <= 8; i++ {
		d := product(i, "sku", "1.00", now.Add(time.Minute))
		d.Deleted = true
		deletes = append(deletes, d)
	}
	c.applyLocked(deletes)

	c.Cleanup()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.deletions != 0 {
		t.Errorf("expected compaction to reset the deletion counter, got %d", c.deletions)
	}
	if len(c.products) != 2 {
		t.Errorf("expected 2 products after compaction, got %d", len(c.products))
	}
}

// TestCatalog_LiveUpdate drives the catalog through a real cache engine
// against a live MySQL instance. Set DBCACHE_TEST_DSN to run it, e.g.
// "root:root@tcp(localhost:3306)/shop?charset=utf8mb4&parseTime=True&loc=UTC".
func TestCatalog_LiveUpdate(t *testing.T) {
	dsn := os.Getenv("DBCACHE_TEST_DSN")
	if dsn == "" {
		t.Skip("DBCACHE_TEST_DSN not set, skipping live MySQL test")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := db.AutoMigrate(&Product{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	db.Exec("DELETE FROM products")
	db.Create(&Product{ID: 1, SKU: "a", Title: "A", Price: decimal.RequireFromString("9.99"), UpdatedAt: time.Now().UTC()})

	log := testLogger(t)
	c := NewWithDB(log, "catalog-live", db)
	fs, err := routine.NewProcessor(log, &routine.ProcessorConfig{Name: "fs"})
	if err != nil {
		t.Fatalf("failed to create processor: %v", err)
	}
	t.Cleanup(fs.Close)

	engine, err := cache.NewEngine(log, c, cache.NewControl(), fs, &cache.Config{
		UpdateInterval:     time.Hour,
		CleanupInterval:    time.Hour,
		AllowedUpdateTypes: cache.FullAndIncremental,
		FullUpdateInterval: time.Hour,
		DumpsEnabled:       true,
		Dump:               &dump.Config{Dir: t.TempDir()},
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(engine.Stop)

	if err := engine.Start(context.Background(), cache.NoStartFlags); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if c.Count() != 1 {
		t.Fatalf("expected 1 product after first update, got %d", c.Count())
	}

	db.Create(&Product{ID: 2, SKU: "b", Title: "B", Price: decimal.RequireFromString("5.00"), UpdatedAt: time.Now().UTC()})
	if err := engine.Update(context.Background(), cache.UpdateIncremental); err != nil {
		t.Fatalf("incremental update failed: %v", err)
	}
	if c.Count() != 2 {
		t.Fatalf("expected 2 products after incremental update, got %d", c.Count())
	}
}
