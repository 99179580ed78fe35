package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LORA_BACKEND", "")
	os.Unsetenv("LORA_BACKEND")

	cfg, err := Load(t.TempDir() + "/does-not-exist.yaml")
	if err == nil {
		t.Fatalf("expected Load with an explicit nonexistent file to fail")
	}
	_ = cfg

	cfg, err = loadWithNoConfigFile(t)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LoraBackend != "rn2903" {
		t.Errorf("expected default lora_backend rn2903, got %q", cfg.LoraBackend)
	}
	if cfg.SerialPort != "/dev/ttyACM0" {
		t.Errorf("expected default serial_port /dev/ttyACM0, got %q", cfg.SerialPort)
	}
	if cfg.FrequencyHz != 915_000_000 {
		t.Errorf("expected default frequency_hz 915000000, got %d", cfg.FrequencyHz)
	}
	if cfg.Beacon.Message != "BEACON" || cfg.Beacon.IntervalMs != 5000 {
		t.Errorf("unexpected beacon defaults: %+v", cfg.Beacon)
	}
	if cfg.Echo.Prefix != "ECHO:" || cfg.Echo.DelayMs != 150 {
		t.Errorf("unexpected echo defaults: %+v", cfg.Echo)
	}
	if cfg.Status.JWTIssuer != "d2d-responder" {
		t.Errorf("expected default status.jwt_issuer d2d-responder, got %q", cfg.Status.JWTIssuer)
	}
	if cfg.Status.JWTSecret != "" {
		t.Errorf("expected no default status.jwt_secret, got %q", cfg.Status.JWTSecret)
	}
}

func TestLoad_LoraBackendEnvOverride(t *testing.T) {
	t.Setenv("LORA_BACKEND", "sx1276")
	cfg, err := loadWithNoConfigFile(t)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LoraBackend != "sx1276" {
		t.Errorf("expected LORA_BACKEND override to win, got %q", cfg.LoraBackend)
	}
}

// loadWithNoConfigFile runs Load from a directory with no config.yaml
// present, so it falls through to defaults plus environment overrides,
// the same "config file not found; using defaults" path the teacher's
// Load tolerates.
func loadWithNoConfigFile(t *testing.T) (*Config, error) {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	return Load("")
}
