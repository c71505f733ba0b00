// Package config loads and persists the hubward configuration file.
//
// The file is JSON. Load order is primary path, then the ".bak" backup
// (restoring the primary on success), then a first-run default that is
// created and persisted. Save rotates the primary to ".bak" before
// overwriting so a torn write never loses the last good file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// SchemaVersion is the current configuration schema version.
const SchemaVersion = 1

// ProviderDomain describes the media domain a provider serves.
type ProviderDomain string

const (
	DomainEbook     ProviderDomain = "ebook"
	DomainAudiobook ProviderDomain = "audiobook"
	DomainVideo     ProviderDomain = "video"
	DomainUniversal ProviderDomain = "universal"
)

// Provider describes one registered metadata provider.
type Provider struct {
	Name           string             `json:"name"`
	Version        string             `json:"version,omitempty"`
	Enabled        bool               `json:"enabled"`
	Weight         float64            `json:"weight"`
	Domain         ProviderDomain     `json:"domain"`
	CapabilityTags []string           `json:"capability_tags,omitempty"`
	FieldWeights   map[string]float64 `json:"field_weights,omitempty"`
}

// Scoring contains the weighted-voter thresholds.
type Scoring struct {
	AutoLinkThreshold     float64 `json:"auto_link_threshold"`
	ConflictThreshold     float64 `json:"conflict_threshold"`
	ConflictEpsilon       float64 `json:"conflict_epsilon"`
	StaleClaimDecayDays   int     `json:"stale_claim_decay_days"`
	StaleClaimDecayFactor float64 `json:"stale_claim_decay_factor"`
}

// Maintenance contains catalogue housekeeping settings.
type Maintenance struct {
	MaxTransactionLogEntries int  `json:"max_transaction_log_entries"`
	VacuumOnStartup          bool `json:"vacuum_on_startup"`
}

// Ingest contains watcher and worker tuning.
type Ingest struct {
	SettleDelaySeconds   int `json:"settle_delay_seconds"`
	ProbeIntervalSeconds int `json:"probe_interval_seconds"`
	MaxProbeDelaySeconds int `json:"max_probe_delay_seconds"`
	MaxProbeAttempts     int `json:"max_probe_attempts"`
	QueueCapacity        int `json:"queue_capacity"`
	// WorkerConcurrency of 0 means host parallelism.
	WorkerConcurrency int `json:"worker_concurrency"`
}

// Logging contains log output settings.
type Logging struct {
	Format string `json:"format"`
	Level  string `json:"level"`
}

// Config encapsulates all configuration values for hubward.
type Config struct {
	SchemaVersion     int               `json:"schema_version"`
	DatabasePath      string            `json:"database_path"`
	DataRoot          string            `json:"data_root"`
	WatchRoot         string            `json:"watch_root"`
	LogDir            string            `json:"log_dir,omitempty"`
	APIBind           string            `json:"api_bind,omitempty"`
	APIToken          string            `json:"api_token,omitempty"`
	Providers         []Provider        `json:"providers"`
	ProviderEndpoints map[string]string `json:"provider_endpoints,omitempty"`
	Maintenance       Maintenance       `json:"maintenance"`
	Scoring           Scoring           `json:"scoring"`
	Ingest            Ingest            `json:"ingest"`
	Logging           Logging           `json:"logging"`
}

// Default returns the first-run configuration rooted under the user home.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, "hubward")
	return Config{
		SchemaVersion: SchemaVersion,
		DatabasePath:  filepath.Join(base, "catalog.db"),
		DataRoot:      filepath.Join(base, "library"),
		WatchRoot:     filepath.Join(base, "inbox"),
		LogDir:        filepath.Join(base, "logs"),
		APIBind:       "127.0.0.1:7814",
		Providers: []Provider{
			{
				Name:    "filesystem",
				Enabled: true,
				Weight:  1.0,
				Domain:  DomainUniversal,
			},
		},
		Maintenance: Maintenance{
			MaxTransactionLogEntries: 100_000,
		},
		Scoring: Scoring{
			AutoLinkThreshold:     0.85,
			ConflictThreshold:     0.60,
			ConflictEpsilon:       0.05,
			StaleClaimDecayDays:   90,
			StaleClaimDecayFactor: 0.8,
		},
		Ingest: Ingest{
			SettleDelaySeconds:   2,
			ProbeIntervalSeconds: 1,
			MaxProbeDelaySeconds: 30,
			MaxProbeAttempts:     8,
			QueueCapacity:        512,
		},
		Logging: Logging{Format: "console", Level: "info"},
	}
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/hubward/config.json")
}

// Load resolves, parses, and validates the configuration. When neither the
// primary nor the backup file is readable and the primary does not exist, a
// default configuration is created and persisted (first run). The returned
// path is the resolved primary path.
func Load(path string) (*Config, string, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, "", err
	}

	cfg, err := readConfigFile(resolved)
	if err == nil {
		return finish(cfg, resolved)
	}
	primaryErr := err

	backup := resolved + ".bak"
	cfg, err = readConfigFile(backup)
	if err == nil {
		// Restore the primary from the surviving backup.
		if data, marshalErr := marshal(cfg); marshalErr == nil {
			_ = os.WriteFile(resolved, data, 0o644)
		}
		return finish(cfg, resolved)
	}

	if errors.Is(primaryErr, fs.ErrNotExist) {
		def := Default()
		if err := Save(&def, resolved); err != nil {
			return nil, "", fmt.Errorf("create default config: %w", err)
		}
		return finish(&def, resolved)
	}

	return nil, "", fmt.Errorf("config unreadable (primary: %v; backup: %v)", primaryErr, err)
}

// Save writes the configuration atomically, rotating any existing file to
// ".bak" first.
func Save(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	resolved, err := resolvePath(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(resolved); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := marshal(cfg)
	if err != nil {
		return err
	}
	if _, err := os.Stat(resolved); err == nil {
		if err := os.Rename(resolved, resolved+".bak"); err != nil {
			return fmt.Errorf("rotate config backup: %w", err)
		}
	}
	tmp := resolved + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, resolved); err != nil {
		return fmt.Errorf("commit config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the directories the daemon needs at runtime.
// DataRoot is created best-effort so the daemon can start while external
// storage is temporarily offline.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.WatchRoot, filepath.Dir(c.DatabasePath)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.LogDir) != "" {
		if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", c.LogDir, err)
		}
	}
	if strings.TrimSpace(c.DataRoot) != "" {
		_ = os.MkdirAll(c.DataRoot, 0o755)
	}
	return nil
}

// Validate rejects out-of-range or inconsistent values.
func (c *Config) Validate() error {
	if c.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schema_version %d (expected %d)", c.SchemaVersion, SchemaVersion)
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return errors.New("database_path is required")
	}
	if strings.TrimSpace(c.DataRoot) == "" {
		return errors.New("data_root is required")
	}
	if strings.TrimSpace(c.WatchRoot) == "" {
		return errors.New("watch_root is required")
	}
	s := c.Scoring
	for _, check := range []struct {
		name  string
		value float64
	}{
		{"scoring.auto_link_threshold", s.AutoLinkThreshold},
		{"scoring.conflict_threshold", s.ConflictThreshold},
		{"scoring.conflict_epsilon", s.ConflictEpsilon},
		{"scoring.stale_claim_decay_factor", s.StaleClaimDecayFactor},
	} {
		if check.value < 0 || check.value > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", check.name, check.value)
		}
	}
	if s.ConflictThreshold > s.AutoLinkThreshold {
		return errors.New("scoring.conflict_threshold must not exceed scoring.auto_link_threshold")
	}
	for _, p := range c.Providers {
		if strings.TrimSpace(p.Name) == "" {
			return errors.New("provider name is required")
		}
		if p.Weight < 0 {
			return fmt.Errorf("provider %q weight must not be negative", p.Name)
		}
	}
	if c.Ingest.MaxProbeAttempts < 1 {
		return errors.New("ingest.max_probe_attempts must be at least 1")
	}
	if c.Maintenance.MaxTransactionLogEntries < 0 {
		return errors.New("maintenance.max_transaction_log_entries must not be negative")
	}
	return nil
}

// SettleDelay returns the debounce quiet period.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Ingest.SettleDelaySeconds) * time.Second
}

// ProbeInterval returns the base lock-probe backoff interval.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Ingest.ProbeIntervalSeconds) * time.Second
}

// MaxProbeDelay returns the cap on the lock-probe backoff.
func (c *Config) MaxProbeDelay() time.Duration {
	return time.Duration(c.Ingest.MaxProbeDelaySeconds) * time.Second
}

// WorkerConcurrency returns the configured ingestion parallelism, defaulting
// to host parallelism.
func (c *Config) WorkerConcurrency() int {
	if c.Ingest.WorkerConcurrency > 0 {
		return c.Ingest.WorkerConcurrency
	}
	return runtime.NumCPU()
}

// ProviderWeights returns the global provider weight map keyed by name.
func (c *Config) ProviderWeights() map[string]float64 {
	weights := make(map[string]float64, len(c.Providers))
	for _, p := range c.Providers {
		if !p.Enabled {
			continue
		}
		weights[p.Name] = p.Weight
	}
	return weights
}

// ProviderFieldWeights returns per-provider field weight overrides.
func (c *Config) ProviderFieldWeights() map[string]map[string]float64 {
	overrides := make(map[string]map[string]float64)
	for _, p := range c.Providers {
		if !p.Enabled || len(p.FieldWeights) == 0 {
			continue
		}
		fields := make(map[string]float64, len(p.FieldWeights))
		for key, weight := range p.FieldWeights {
			fields[strings.ToLower(strings.TrimSpace(key))] = weight
		}
		overrides[p.Name] = fields
	}
	return overrides
}

func finish(cfg *Config, resolved string) (*Config, string, error) {
	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, resolved, nil
}

func readConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

func marshal(cfg *Config) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return append(data, '\n'), nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{&c.DatabasePath, &c.DataRoot, &c.WatchRoot, &c.LogDir} {
		if strings.TrimSpace(*field) == "" {
			continue
		}
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	for i := range c.Providers {
		c.Providers[i].Name = strings.TrimSpace(c.Providers[i].Name)
		if c.Providers[i].Domain == "" {
			c.Providers[i].Domain = DomainUniversal
		}
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultConfigPath()
	}
	return expandPath(path)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
