// Package scoring arbitrates competing metadata claims into canonical
// values. The engine is a per-field weighted voter: pure, deterministic, and
// free of I/O, so historical re-scoring is reproducible from the claim log.
package scoring

import (
	"errors"
	"time"

	"hubward/internal/catalog"
)

// Config carries the arbitration thresholds.
type Config struct {
	AutoLinkThreshold float64
	ConflictThreshold float64
	ConflictEpsilon   float64
	// StaleDecayDays of 0 disables decay entirely.
	StaleDecayDays   int
	StaleDecayFactor float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		AutoLinkThreshold: 0.85,
		ConflictThreshold: 0.60,
		ConflictEpsilon:   0.05,
		StaleDecayDays:    90,
		StaleDecayFactor:  0.8,
	}
}

// Context is the full input to one scoring pass.
type Context struct {
	EntityID        string
	Claims          []catalog.Claim
	ProviderWeights map[string]float64
	// ProviderFieldWeights overrides the global weight per provider per
	// field key (lower-cased keys).
	ProviderFieldWeights map[string]map[string]float64
	Config               Config
	// Now anchors stale-claim decay; the zero value means time.Now.
	Now time.Time
}

// FieldScore is the arbitration outcome for one claim key.
type FieldScore struct {
	Key               string
	Value             string
	Confidence        float64
	WinningProviderID string
	Conflicted        bool
}

// Result is the outcome of scoring one entity.
type Result struct {
	EntityID          string
	FieldScores       []FieldScore
	OverallConfidence float64
	ScoredAt          time.Time
}

// ErrEmptyField marks a field group the resolver could not arbitrate. The
// engine skips such fields; one bad field never aborts the entity.
var ErrEmptyField = errors.New("no scorable claims for field")
