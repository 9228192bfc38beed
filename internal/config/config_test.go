package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Server.Transport != "stdio" {
		t.Errorf("Server.Transport = %q, want stdio", cfg.Server.Transport)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Cache.TTLHours != 24 {
		t.Errorf("Cache.TTLHours = %d, want 24", cfg.Cache.TTLHours)
	}
	if cfg.Cache.CleanupIntervalHours != 6 {
		t.Errorf("Cache.CleanupIntervalHours = %d, want 6", cfg.Cache.CleanupIntervalHours)
	}
	if cfg.Fetcher.AllowlistDepth != 1 {
		t.Errorf("Fetcher.AllowlistDepth = %d, want 1", cfg.Fetcher.AllowlistDepth)
	}
	if !cfg.Fetcher.SSRFDomainCheck {
		t.Errorf("Fetcher.SSRFDomainCheck = false, want true")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	chdirTemp(t)

	t.Setenv("PROCONTEXT__SERVER__TRANSPORT", "http")
	t.Setenv("PROCONTEXT__SERVER__PORT", "9090")
	t.Setenv("PROCONTEXT__LOGGING__LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Server.Transport != "http" {
		t.Errorf("Server.Transport = %q, want http", cfg.Server.Transport)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadYAMLFileOverride(t *testing.T) {
	dir := chdirTemp(t)

	yaml := []byte("server:\n  transport: http\n  port: 7000\ncache:\n  ttl_hours: 48\n")
	if err := os.WriteFile(filepath.Join(dir, "procontext.yaml"), yaml, 0o644); err != nil {
		t.Fatalf("write procontext.yaml: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Server.Transport != "http" {
		t.Errorf("Server.Transport = %q, want http", cfg.Server.Transport)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Cache.TTLHours != 48 {
		t.Errorf("Cache.TTLHours = %d, want 48", cfg.Cache.TTLHours)
	}
	// Untouched sections keep their defaults.
	if cfg.Fetcher.AllowlistDepth != 1 {
		t.Errorf("Fetcher.AllowlistDepth = %d, want 1", cfg.Fetcher.AllowlistDepth)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	dir := chdirTemp(t)

	yaml := []byte("server:\n  transport: stdio\nbogus_section:\n  foo: bar\n")
	if err := os.WriteFile(filepath.Join(dir, "procontext.yaml"), yaml, 0o644); err != nil {
		t.Fatalf("write procontext.yaml: %v", err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown config key, got nil")
	}
}

func TestLoadRejectsWrongType(t *testing.T) {
	dir := chdirTemp(t)

	yaml := []byte("cache:\n  ttl_hours: \"not-a-number\"\n")
	if err := os.WriteFile(filepath.Join(dir, "procontext.yaml"), yaml, 0o644); err != nil {
		t.Fatalf("write procontext.yaml: %v", err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected error for wrong-typed config value, got nil")
	}
}

func TestLoadRejectsBadTransport(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PROCONTEXT__SERVER__TRANSPORT", "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid server.transport, got nil")
	}
}

// chdirTemp creates a temp dir, chdirs the test process into it for the
// duration of the test (restoring the original directory on cleanup), and
// returns its path. Isolates Load()'s ./procontext.yaml lookup and keeps
// tests from tripping over each other's files or the real home directory.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Setenv("HOME", dir)
	t.Cleanup(func() {
		_ = os.Chdir(orig)
	})
	return dir
}
