package scoring

import (
	"sort"
	"strings"
	"time"

	"hubward/internal/catalog"
	"hubward/internal/textutil"
)

// Score arbitrates every field of the entity described by ctx. Fields whose
// resolver fails are skipped; the remaining fields still produce a result.
func Score(ctx Context) Result {
	now := ctx.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	groups := groupByKey(ctx.Claims)
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := Result{EntityID: ctx.EntityID, ScoredAt: now}
	var confidenceSum float64
	for _, key := range keys {
		score, err := resolveField(key, groups[key], ctx, now)
		if err != nil {
			continue
		}
		result.FieldScores = append(result.FieldScores, score)
		confidenceSum += score.Confidence
	}
	if len(result.FieldScores) > 0 {
		result.OverallConfidence = confidenceSum / float64(len(result.FieldScores))
	}
	return result
}

// groupByKey buckets claims by case-insensitive claim key, sorted by
// (claimed_at, id) so downstream tie-breaks are order-independent. Group
// labels are the lower-cased keys.
func groupByKey(claims []catalog.Claim) map[string][]catalog.Claim {
	sorted := make([]catalog.Claim, len(claims))
	copy(sorted, claims)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ClaimedAt.Equal(sorted[j].ClaimedAt) {
			return sorted[i].ClaimedAt.Before(sorted[j].ClaimedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	groups := make(map[string][]catalog.Claim)
	for _, claim := range sorted {
		key := strings.ToLower(strings.TrimSpace(claim.Key))
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], claim)
	}
	return groups
}

func resolveField(key string, claims []catalog.Claim, ctx Context, now time.Time) (FieldScore, error) {
	if len(claims) == 0 {
		return FieldScore{}, ErrEmptyField
	}

	// A user lock short-circuits arbitration: the most recent locked claim
	// wins outright.
	if locked := latestLocked(claims); locked != nil {
		return FieldScore{
			Key:               key,
			Value:             locked.Value,
			Confidence:        1.0,
			WinningProviderID: locked.ProviderID,
			Conflicted:        false,
		}, nil
	}

	raw := make([]float64, len(claims))
	var total float64
	for i, claim := range claims {
		weight := effectiveWeight(claim.ProviderID, key, ctx)
		r := claim.Confidence * weight * staleFactor(claim.ClaimedAt, now, ctx.Config)
		if r < 0 {
			r = 0
		}
		raw[i] = r
		total += r
	}

	// Normalise to sum 1.0; a zero total distributes uniformly and carries
	// no conflict signal.
	normalized := make([]float64, len(claims))
	uniform := total <= 0
	if uniform {
		share := 1.0 / float64(len(claims))
		for i := range normalized {
			normalized[i] = share
		}
	} else {
		for i, r := range raw {
			normalized[i] = r / total
		}
	}

	type valueGroup struct {
		display  string
		total    float64
		provider string
		best     float64
	}
	groups := make(map[string]*valueGroup)
	order := make([]string, 0, len(claims))
	for i, claim := range claims {
		folded := textutil.FoldValue(claim.Value)
		group, ok := groups[folded]
		if !ok {
			group = &valueGroup{display: claim.Value, provider: claim.ProviderID, best: normalized[i]}
			groups[folded] = group
			order = append(order, folded)
		}
		group.total += normalized[i]
		if normalized[i] > group.best {
			group.best = normalized[i]
			group.provider = claim.ProviderID
			group.display = claim.Value
		}
	}

	// Equal totals resolve to the lexicographically smallest folded value so
	// claim-order permutations cannot change the winner.
	sort.Strings(order)
	var winnerKey, runnerKey string
	for _, folded := range order {
		group := groups[folded]
		switch {
		case winnerKey == "" || group.total > groups[winnerKey].total:
			runnerKey = winnerKey
			winnerKey = folded
		case runnerKey == "" || group.total > groups[runnerKey].total:
			runnerKey = folded
		}
	}

	winner := groups[winnerKey]
	conflicted := false
	if !uniform && runnerKey != "" && winner.total > 0 {
		// Multiply instead of divide, with a small guard so a runner-up
		// sitting exactly at (1 − ε) of the winner still conflicts despite
		// rounding.
		threshold := (1.0 - ctx.Config.ConflictEpsilon) * winner.total
		conflicted = groups[runnerKey].total >= threshold-1e-9
	}

	return FieldScore{
		Key:               key,
		Value:             winner.display,
		Confidence:        winner.total,
		WinningProviderID: winner.provider,
		Conflicted:        conflicted,
	}, nil
}

func latestLocked(claims []catalog.Claim) *catalog.Claim {
	var latest *catalog.Claim
	for i := range claims {
		claim := &claims[i]
		if !claim.IsUserLocked {
			continue
		}
		if latest == nil || claim.ClaimedAt.After(latest.ClaimedAt) {
			latest = claim
		}
	}
	return latest
}

func effectiveWeight(providerID, key string, ctx Context) float64 {
	if fields, ok := ctx.ProviderFieldWeights[providerID]; ok {
		if weight, ok := fields[key]; ok {
			return weight
		}
	}
	if weight, ok := ctx.ProviderWeights[providerID]; ok {
		return weight
	}
	return 1.0
}

func staleFactor(claimedAt, now time.Time, cfg Config) float64 {
	if cfg.StaleDecayDays <= 0 {
		return 1.0
	}
	age := now.Sub(claimedAt)
	if age <= time.Duration(cfg.StaleDecayDays)*24*time.Hour {
		return 1.0
	}
	return cfg.StaleDecayFactor
}
