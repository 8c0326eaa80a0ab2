package logger

import (
	"testing"
)

func TestNew_NilConfig(t *testing.T) {
	l, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil) failed: %v", err)
	}
	if l == nil {
		t.Fatal("New(nil) returned nil logger")
	}
	l.Info("test")
	if err := l.Sync(); err != nil {
		t.Logf("Sync returned error (may be expected for stdout): %v", err)
	}
}

func TestNew_PartialConfig(t *testing.T) {
	cfg := &Config{
		Level:    "info",
		Encoding: "json",
		// OutputPaths and ErrorOutputPaths are nil
	}
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New with partial config failed: %v", err)
	}
	l.Info("test from partial config")
}

func TestNew_InvalidLevel(t *testing.T) {
	cfg := &Config{
		Level:    "invalid",
		Encoding: "json",
	}
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for invalid level, got nil")
	}
}

func TestNew_InvalidEncoding(t *testing.T) {
	cfg := &Config{
		Level:    "info",
		Encoding: "invalid",
	}
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for invalid encoding, got nil")
	}
}

func TestNamed(t *testing.T) {
	l, err := New(&Config{Level: "debug", Encoding: "console"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	sub := l.Named("cache").Named("orders")
	if sub == nil {
		t.Fatal("Named returned nil logger")
	}
	sub.Debug("named logger works")
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Info("discarded")
	if err := l.Sync(); err != nil {
		t.Errorf("Sync on nop logger returned error: %v", err)
	}
}
