package scoring_test

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"hubward/internal/catalog"
	"hubward/internal/scoring"
)

var baseTime = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func claim(id, provider, key, value string, confidence float64, offset time.Duration, locked bool) catalog.Claim {
	return catalog.Claim{
		ID:           id,
		EntityID:     "e1",
		ProviderID:   provider,
		Key:          key,
		Value:        value,
		Confidence:   confidence,
		ClaimedAt:    baseTime.Add(offset),
		IsUserLocked: locked,
	}
}

func score(claims []catalog.Claim, weights map[string]float64) scoring.Result {
	return scoring.Score(scoring.Context{
		EntityID:        "e1",
		Claims:          claims,
		ProviderWeights: weights,
		Config:          scoring.DefaultConfig(),
		Now:             baseTime.Add(time.Hour),
	})
}

func TestEmptyClaimSet(t *testing.T) {
	result := score(nil, nil)
	if result.OverallConfidence != 0 {
		t.Fatalf("expected zero confidence, got %v", result.OverallConfidence)
	}
	if len(result.FieldScores) != 0 {
		t.Fatalf("expected no field scores, got %d", len(result.FieldScores))
	}
}

func TestSingleClaimPerField(t *testing.T) {
	claims := []catalog.Claim{claim("1", "filesystem", "title", "Dune", 1.0, 0, false)}
	result := score(claims, map[string]float64{"filesystem": 1.0})
	if len(result.FieldScores) != 1 {
		t.Fatalf("expected one field, got %d", len(result.FieldScores))
	}
	field := result.FieldScores[0]
	if field.Confidence != 1.0 || field.Conflicted {
		t.Fatalf("expected confidence 1.0 and no conflict, got %#v", field)
	}
	if result.OverallConfidence != 1.0 {
		t.Fatalf("expected overall 1.0, got %v", result.OverallConfidence)
	}
}

func TestTwoProvidersDisagreeOnTitle(t *testing.T) {
	claims := []catalog.Claim{
		claim("1", "filesystem", "title", "Dune", 1.0, 0, false),
		claim("2", "openlibrary", "title", "Dune: Book One", 1.0, time.Minute, false),
	}
	weights := map[string]float64{"filesystem": 1.0, "openlibrary": 0.7}
	result := score(claims, weights)

	field := result.FieldScores[0]
	if field.Value != "Dune" {
		t.Fatalf("expected Dune to win, got %q", field.Value)
	}
	if field.Conflicted {
		t.Fatal("runner-up at 0.41 of total must not conflict with winner at 0.59")
	}
	expected := 1.0 / 1.7
	if math.Abs(field.Confidence-expected) > 1e-9 {
		t.Fatalf("expected winner confidence %.4f, got %.4f", expected, field.Confidence)
	}
}

func TestUserLockDominance(t *testing.T) {
	claims := []catalog.Claim{
		claim("1", "filesystem", "title", "Dune", 1.0, 0, false),
		claim("2", "openlibrary", "title", "Dune: Book One", 1.0, time.Minute, false),
		claim("3", "user", "title", "Dune (Special Edition)", 1.0, 2*time.Minute, true),
		claim("4", "user", "title", "Dune (Older Lock)", 1.0, time.Minute, true),
	}
	result := score(claims, map[string]float64{"filesystem": 1.0, "openlibrary": 5.0})

	field := result.FieldScores[0]
	if field.Value != "Dune (Special Edition)" {
		t.Fatalf("expected the most recent locked claim to win, got %q", field.Value)
	}
	if field.Confidence != 1.0 || field.Conflicted {
		t.Fatalf("locked field must be confidence 1.0 and unconflicted, got %#v", field)
	}
}

func TestDeterminismUnderPermutation(t *testing.T) {
	claims := []catalog.Claim{
		claim("1", "a", "title", "Dune", 0.9, 0, false),
		claim("2", "b", "title", "Dune Messiah", 0.8, time.Minute, false),
		claim("3", "c", "title", "dune", 0.7, 2*time.Minute, false),
		claim("4", "a", "author", "Frank Herbert", 1.0, 0, false),
		claim("5", "b", "author", "F. Herbert", 0.6, time.Minute, false),
	}
	weights := map[string]float64{"a": 1.0, "b": 0.9, "c": 0.8}
	reference := score(claims, weights)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		shuffled := make([]catalog.Claim, len(claims))
		copy(shuffled, claims)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		result := score(shuffled, weights)
		if len(result.FieldScores) != len(reference.FieldScores) {
			t.Fatalf("trial %d: field count diverged", trial)
		}
		for i, field := range result.FieldScores {
			ref := reference.FieldScores[i]
			if field.Key != ref.Key || field.Value != ref.Value || field.Conflicted != ref.Conflicted {
				t.Fatalf("trial %d: field %d diverged: %#v vs %#v", trial, i, field, ref)
			}
			if math.Abs(field.Confidence-ref.Confidence) > 1e-12 {
				t.Fatalf("trial %d: confidence diverged on %s", trial, field.Key)
			}
		}
	}
}

func TestZeroWeightsDistributeUniformlyWithoutConflict(t *testing.T) {
	claims := []catalog.Claim{
		claim("1", "a", "title", "Dune", 0.0, 0, false),
		claim("2", "b", "title", "Arrakis", 0.0, time.Minute, false),
	}
	result := score(claims, map[string]float64{"a": 0, "b": 0})
	field := result.FieldScores[0]
	if math.Abs(field.Confidence-0.5) > 1e-9 {
		t.Fatalf("expected uniform 0.5 share, got %v", field.Confidence)
	}
	if field.Conflicted {
		t.Fatal("uniform distribution must not flag conflict")
	}
}

func TestRunnerUpAtEpsilonBoundaryConflicts(t *testing.T) {
	// Winner 1.0, runner-up 0.95 with epsilon 0.05: ratio exactly 1 − ε.
	claims := []catalog.Claim{
		claim("1", "a", "title", "Dune", 1.0, 0, false),
		claim("2", "b", "title", "Arrakis", 0.95, time.Minute, false),
	}
	result := score(claims, map[string]float64{"a": 1.0, "b": 1.0})
	if !result.FieldScores[0].Conflicted {
		t.Fatal("runner-up exactly at 1-epsilon of winner must conflict")
	}
}

func TestNormalizationSumProperty(t *testing.T) {
	// Every claim carries the same value, so the single value-group absorbs
	// the entire normalized mass: its total must be exactly 1.0 for any
	// positive weights and confidences.
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		count := 1 + rng.Intn(6)
		claims := make([]catalog.Claim, 0, count)
		weights := map[string]float64{}
		for i := 0; i < count; i++ {
			provider := string(rune('a' + i))
			weights[provider] = 0.1 + rng.Float64()
			claims = append(claims, claim(
				string(rune('0'+i)), provider, "title", "Dune",
				0.1+rng.Float64()*0.9,
				time.Duration(i)*time.Minute,
				false,
			))
		}
		result := score(claims, weights)
		field := result.FieldScores[0]
		if math.Abs(field.Confidence-1.0) > 1e-9 {
			t.Fatalf("trial %d: normalized mass %.12f != 1.0", trial, field.Confidence)
		}
	}
}

func TestStaleDecayDisabledWhenZeroDays(t *testing.T) {
	old := claim("1", "a", "title", "Dune", 1.0, -365*24*time.Hour, false)
	fresh := claim("2", "b", "title", "Arrakis", 1.0, 0, false)

	cfg := scoring.DefaultConfig()
	cfg.StaleDecayDays = 0
	result := scoring.Score(scoring.Context{
		EntityID:        "e1",
		Claims:          []catalog.Claim{old, fresh},
		ProviderWeights: map[string]float64{"a": 1.0, "b": 1.0},
		Config:          cfg,
		Now:             baseTime,
	})
	field := result.FieldScores[0]
	// With decay disabled both claims weigh equally; the tie resolves to
	// the lexicographically smaller value.
	if math.Abs(field.Confidence-0.5) > 1e-9 {
		t.Fatalf("expected equal shares with decay disabled, got %v", field.Confidence)
	}
}

func TestStaleClaimDecays(t *testing.T) {
	old := claim("1", "a", "title", "Dune", 1.0, -100*24*time.Hour, false)
	fresh := claim("2", "b", "title", "Arrakis", 1.0, 0, false)

	result := scoring.Score(scoring.Context{
		EntityID:        "e1",
		Claims:          []catalog.Claim{old, fresh},
		ProviderWeights: map[string]float64{"a": 1.0, "b": 1.0},
		Config:          scoring.DefaultConfig(),
		Now:             baseTime,
	})
	field := result.FieldScores[0]
	if field.Value != "Arrakis" {
		t.Fatalf("expected fresh claim to beat the decayed one, got %q", field.Value)
	}
	expected := 1.0 / 1.8
	if math.Abs(field.Confidence-expected) > 1e-9 {
		t.Fatalf("expected winner share %.4f, got %.4f", expected, field.Confidence)
	}
}

func TestValueGroupingIsCaseInsensitive(t *testing.T) {
	claims := []catalog.Claim{
		claim("1", "a", "title", "Dune", 1.0, 0, false),
		claim("2", "b", "title", "  dune ", 1.0, time.Minute, false),
		claim("3", "c", "title", "Arrakis", 1.0, 2*time.Minute, false),
	}
	result := score(claims, map[string]float64{"a": 1, "b": 1, "c": 1})
	field := result.FieldScores[0]
	expected := 2.0 / 3.0
	if math.Abs(field.Confidence-expected) > 1e-9 {
		t.Fatalf("expected folded values to pool weight %.3f, got %.3f", expected, field.Confidence)
	}
}

func TestFieldWeightOverrideBeatsGlobalWeight(t *testing.T) {
	claims := []catalog.Claim{
		claim("1", "a", "title", "Dune", 1.0, 0, false),
		claim("2", "b", "title", "Arrakis", 1.0, time.Minute, false),
	}
	result := scoring.Score(scoring.Context{
		EntityID:        "e1",
		Claims:          claims,
		ProviderWeights: map[string]float64{"a": 1.0, "b": 0.1},
		ProviderFieldWeights: map[string]map[string]float64{
			"b": {"title": 10.0},
		},
		Config: scoring.DefaultConfig(),
		Now:    baseTime.Add(time.Hour),
	})
	if result.FieldScores[0].Value != "Arrakis" {
		t.Fatalf("expected field override to flip the winner, got %q", result.FieldScores[0].Value)
	}
}
