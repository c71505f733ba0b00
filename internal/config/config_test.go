package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hubward/internal/config"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, resolved, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Scoring.AutoLinkThreshold != 0.85 {
		t.Fatalf("unexpected default threshold: %v", cfg.Scoring.AutoLinkThreshold)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("first run must persist the default config: %v", err)
	}
}

func TestLoadFallsBackToBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	def := config.Default()
	def.APIToken = "from-backup"
	if err := config.Save(&def, path+".bak"); err != nil {
		t.Fatalf("Save backup failed: %v", err)
	}
	// Primary is corrupt JSON.
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt primary: %v", err)
	}

	cfg, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIToken != "from-backup" {
		t.Fatal("expected backup config to win")
	}

	// The primary is restored from the backup.
	restored, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read restored primary: %v", err)
	}
	if !strings.Contains(string(restored), "from-backup") {
		t.Fatal("expected primary restored from backup")
	}
}

func TestSaveRotatesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	first := config.Default()
	first.APIToken = "first"
	if err := config.Save(&first, path); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	second := config.Default()
	second.APIToken = "second"
	if err := config.Save(&second, path); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	backup, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if !strings.Contains(string(backup), "first") {
		t.Fatal("backup must hold the previous generation")
	}
	primary, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("primary missing: %v", err)
	}
	if !strings.Contains(string(primary), "second") {
		t.Fatal("primary must hold the latest generation")
	}
}

func TestValidateRejectsOutOfRangeThresholds(t *testing.T) {
	cfg := config.Default()
	cfg.Scoring.ConflictEpsilon = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure for epsilon > 1")
	}

	cfg = config.Default()
	cfg.Scoring.ConflictThreshold = 0.9
	cfg.Scoring.AutoLinkThreshold = 0.8
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure for conflict > auto-link")
	}

	cfg = config.Default()
	cfg.DatabasePath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure for missing database path")
	}
}

func TestProviderWeightsSkipDisabledProviders(t *testing.T) {
	cfg := config.Default()
	cfg.Providers = []config.Provider{
		{Name: "filesystem", Enabled: true, Weight: 1.0},
		{Name: "openlibrary", Enabled: false, Weight: 0.7},
	}
	weights := cfg.ProviderWeights()
	if _, ok := weights["openlibrary"]; ok {
		t.Fatal("disabled provider must not contribute weight")
	}
	if weights["filesystem"] != 1.0 {
		t.Fatalf("unexpected weights: %#v", weights)
	}
}

func TestProviderFieldWeightsLowercaseKeys(t *testing.T) {
	cfg := config.Default()
	cfg.Providers = []config.Provider{
		{Name: "openlibrary", Enabled: true, Weight: 0.7, FieldWeights: map[string]float64{"Title": 2.0}},
	}
	overrides := cfg.ProviderFieldWeights()
	if overrides["openlibrary"]["title"] != 2.0 {
		t.Fatalf("expected lowercased field key, got %#v", overrides)
	}
}
