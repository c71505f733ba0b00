// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"hubward/internal/catalog"
	"hubward/internal/config"
)

// NewConfig returns a validated configuration rooted in a temp directory.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(base, "catalog.db")
	cfg.DataRoot = filepath.Join(base, "library")
	cfg.WatchRoot = filepath.Join(base, "inbox")
	cfg.LogDir = filepath.Join(base, "logs")
	cfg.APIBind = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return &cfg
}

// MustOpenStore opens a catalogue store for the test config and closes it on
// cleanup.
func MustOpenStore(t *testing.T, cfg *config.Config) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// WriteFile creates a file with contents under dir and returns its path.
func WriteFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
