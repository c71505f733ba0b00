package matching

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hubward/internal/catalog"
	"hubward/internal/logging"
)

// Journal event names written by the arbiter.
const (
	EventWorkAutoLinked  = "WORK_AUTO_LINKED"
	EventWorkNeedsReview = "WORK_NEEDS_REVIEW"
	EventWorkRejected    = "WORK_LINK_REJECTED"
)

// Decision is the arbiter's verdict for a work against the candidate hubs.
type Decision struct {
	WorkID      string
	HubID       string
	Score       float64
	Disposition Disposition
	Reason      string
	DecidedAt   time.Time
}

// CatalogReader is the read surface the arbiter needs from the store, plus
// the journal append. The arbiter never creates hubs and never mutates works
// or hubs.
type CatalogReader interface {
	WorksForHub(ctx context.Context, hubID string) ([]*catalog.Work, error)
	CanonicalValuesFor(ctx context.Context, entityID string) (map[string]string, error)
	LogEvent(ctx context.Context, eventType, entityType, entityID string) error
}

// Arbiter decides hub placement for newly ingested works.
type Arbiter struct {
	store      CatalogReader
	matcher    *Matcher
	thresholds Thresholds
	logger     *slog.Logger
}

// NewArbiter constructs an arbiter over the given store and matcher.
func NewArbiter(store CatalogReader, matcher *Matcher, thresholds Thresholds, logger *slog.Logger) *Arbiter {
	if matcher == nil {
		matcher = NewMatcher(nil)
	}
	return &Arbiter{
		store:      store,
		matcher:    matcher,
		thresholds: thresholds,
		logger:     logging.NewComponentLogger(logger, "arbiter"),
	}
}

// Decide scores workID's canonical values against every work in each
// candidate hub and returns the best hub with its disposition. A journal
// entry is written before returning.
func (a *Arbiter) Decide(ctx context.Context, workID string, workValues map[string]string, candidates []*catalog.Hub) (Decision, error) {
	decision := Decision{
		WorkID:      workID,
		Disposition: Rejected,
		DecidedAt:   time.Now().UTC(),
	}

	var (
		bestHub   *catalog.Hub
		bestScore float64
		bestMatch MatchResult
	)
	for _, hub := range candidates {
		if hub == nil {
			continue
		}
		works, err := a.store.WorksForHub(ctx, hub.ID)
		if err != nil {
			return decision, err
		}
		// A work already inside the hub must not score against itself.
		member := false
		hubBest := MatchResult{}
		for _, work := range works {
			if work.ID == workID {
				member = true
				break
			}
		}
		if member {
			continue
		}
		for _, work := range works {
			values, err := a.store.CanonicalValuesFor(ctx, work.ID)
			if err != nil {
				return decision, err
			}
			match := a.matcher.Match(workValues, values)
			if match.Similarity > hubBest.Similarity || (match.Hard && !hubBest.Hard) {
				hubBest = match
			}
		}
		if bestHub == nil || hubBest.Similarity > bestScore {
			bestHub = hub
			bestScore = hubBest.Similarity
			bestMatch = hubBest
		}
	}

	decision.Score = bestScore
	decision.Disposition = a.thresholds.Disposition(bestScore)
	if decision.Disposition != Rejected && bestHub != nil {
		decision.HubID = bestHub.ID
	}
	decision.Reason = decisionReason(decision.Disposition, bestScore, bestMatch)

	eventType := EventWorkRejected
	switch decision.Disposition {
	case AutoLinked:
		eventType = EventWorkAutoLinked
	case NeedsReview:
		eventType = EventWorkNeedsReview
	}
	if err := a.store.LogEvent(ctx, eventType, "work", workID); err != nil {
		return decision, err
	}

	a.logger.Info("hub placement decided",
		logging.String("work_id", workID),
		logging.String(logging.FieldHubID, decision.HubID),
		logging.Float64("score", decision.Score),
		logging.String("disposition", string(decision.Disposition)),
		logging.String("reason", decision.Reason),
	)
	return decision, nil
}

func decisionReason(disposition Disposition, score float64, match MatchResult) string {
	if match.Hard {
		return fmt.Sprintf("hard identifier match on %s", strings.Join(match.MatchedIDs, ", "))
	}
	switch disposition {
	case AutoLinked:
		return fmt.Sprintf("fuzzy similarity %.3f above auto-link threshold", score)
	case NeedsReview:
		return fmt.Sprintf("fuzzy similarity %.3f requires review", score)
	default:
		return fmt.Sprintf("fuzzy similarity %.3f below review threshold", score)
	}
}
