package logger

import (
	"path/filepath"
	"testing"
)

func TestInit_CreatesLogDirAndGlobalLogger(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.LogDir = filepath.Join(dir, "logs")

	if err := Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if Get() == nil {
		t.Fatal("expected Get() to return a non-nil logger after Init")
	}
	if err := Sync(); err != nil {
		t.Logf("Sync returned %v (expected on some stdout-backed cores)", err)
	}
}

func TestGet_ReturnsUsableLoggerBeforeInit(t *testing.T) {
	globalLoggerReset()
	if Get() == nil {
		t.Fatal("expected Get() to fall back to a development logger before Init")
	}
}

func TestWithActorAndWithPeer_AttachFields(t *testing.T) {
	Init(DefaultConfig())
	l := WithActor("sx1276", "spidev0.0")
	if l == nil {
		t.Fatal("expected WithActor to return a logger")
	}
	p := WithPeer("trial-7")
	if p == nil {
		t.Fatal("expected WithPeer to return a logger")
	}
}

// globalLoggerReset clears package state between tests that care about
// the pre-Init fallback path.
func globalLoggerReset() {
	mu.Lock()
	globalLogger = nil
	globalSugar = nil
	mu.Unlock()
}
