// Package ingest drives each candidate through the full pipeline: hash,
// process, claim, score, chain, store, organise, enrich, publish. Steps
// within one candidate run sequentially; candidates run in parallel under
// the bounded worker.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"hubward/internal/catalog"
	"hubward/internal/chain"
	"hubward/internal/events"
	"hubward/internal/hashing"
	"hubward/internal/logging"
	"hubward/internal/matching"
	"hubward/internal/organizer"
	"hubward/internal/processing"
	"hubward/internal/scoring"
	"hubward/internal/services"
	"hubward/internal/sidecar"
	"hubward/internal/watcher"
)

// State tracks a candidate through the pipeline.
type State string

const (
	StateWatch       State = "watch"
	StateStaging     State = "staging"
	StateLibrary     State = "library"
	StateRejected    State = "rejected"
	StateLockTimeout State = "lock_timeout"
)

// Enricher queues background metadata enrichment. Failures never fail
// ingestion.
type Enricher interface {
	Enqueue(ctx context.Context, entityID string, canonical map[string]string) error
}

// NoopEnricher discards enrichment requests.
type NoopEnricher struct{}

func (NoopEnricher) Enqueue(context.Context, string, map[string]string) error { return nil }

// Options wires the orchestrator's collaborators and tuning.
type Options struct {
	Store                *catalog.Store
	Registry             *processing.Registry
	Organizer            *organizer.Organizer
	Publisher            events.Publisher
	Enricher             Enricher
	ScoringConfig        scoring.Config
	ProviderWeights      map[string]float64
	ProviderFieldWeights map[string]map[string]float64
	// QuarantineDir receives corrupt files; they are moved, never deleted.
	QuarantineDir string
	Logger        *slog.Logger
}

// Orchestrator owns the candidate pipeline.
type Orchestrator struct {
	store     *catalog.Store
	registry  *processing.Registry
	organizer *organizer.Organizer
	publisher events.Publisher
	enricher  Enricher
	arbiter   *matching.Arbiter

	scoringCfg           scoring.Config
	providerWeights      map[string]float64
	providerFieldWeights map[string]map[string]float64
	quarantineDir        string
	logger               *slog.Logger
}

// Outcome reports what happened to one candidate.
type Outcome struct {
	State       State
	AssetID     string
	EditionID   string
	HubID       string
	ContentHash string
	FinalPath   string
	Duplicate   bool
}

// New constructs the orchestrator.
func New(opts Options) *Orchestrator {
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	enricher := opts.Enricher
	if enricher == nil {
		enricher = NoopEnricher{}
	}
	logger := logging.NewComponentLogger(opts.Logger, "ingest")
	thresholds := matching.Thresholds{
		AutoLink: opts.ScoringConfig.AutoLinkThreshold,
		Review:   opts.ScoringConfig.ConflictThreshold,
	}
	return &Orchestrator{
		store:                opts.Store,
		registry:             opts.Registry,
		organizer:            opts.Organizer,
		publisher:            publisher,
		enricher:             enricher,
		arbiter:              matching.NewArbiter(opts.Store, matching.NewMatcher(nil), thresholds, opts.Logger),
		scoringCfg:           opts.ScoringConfig,
		providerWeights:      opts.ProviderWeights,
		providerFieldWeights: opts.ProviderFieldWeights,
		quarantineDir:        opts.QuarantineDir,
		logger:               logger,
	}
}

// HandleCandidate runs the pipeline for one settled candidate.
func (o *Orchestrator) HandleCandidate(ctx context.Context, candidate watcher.Candidate) (Outcome, error) {
	ctx = logging.WithPath(ctx, candidate.Path)
	logger := logging.WithContext(ctx, o.logger)
	outcome := Outcome{State: StateStaging}

	if candidate.Event.Type == watcher.EventDeleted {
		return o.handleDeletion(ctx, candidate)
	}

	if candidate.IsFailed {
		outcome.State = StateLockTimeout
		o.recordFailure(ctx, candidate.Path, candidate.Reason)
		return outcome, services.Wrap(services.ErrTransient, "ingest", "settle", candidate.Reason, nil)
	}
	if _, err := os.Stat(candidate.Path); err != nil {
		outcome.State = StateRejected
		o.recordFailure(ctx, candidate.Path, "file missing after settle")
		return outcome, services.Wrap(services.ErrTransient, "ingest", "stat candidate", "file missing after settle", err)
	}

	digest, err := hashing.HashFile(ctx, candidate.Path)
	if err != nil {
		outcome.State = StateRejected
		return outcome, services.Wrap(services.ErrTransient, "ingest", "hash", "", err)
	}
	outcome.ContentHash = digest.Hex
	logger.Debug("candidate hashed",
		logging.String(logging.FieldContentHash, digest.Hex),
		logging.Int64("bytes", digest.ByteCount),
		logging.Duration("elapsed", digest.Elapsed),
	)

	existing, err := o.store.FindAssetByHash(ctx, digest.Hex)
	if err != nil {
		return outcome, err
	}
	if existing != nil {
		outcome.Duplicate = true
		outcome.State = StateRejected
		outcome.AssetID = existing.ID
		o.publisher.Publish(events.DuplicateSkipped, events.Payload{
			"path":         candidate.Path,
			"content_hash": digest.Hex,
			"asset_id":     existing.ID,
		})
		logger.Info("duplicate content skipped", logging.String(logging.FieldContentHash, digest.Hex))
		return outcome, nil
	}

	result, err := o.registry.Process(ctx, candidate.Path)
	if err != nil {
		outcome.State = StateRejected
		return outcome, services.Wrap(services.ErrTransient, "ingest", "process", "", err)
	}
	if result.IsCorrupt {
		outcome.State = StateRejected
		quarantined, qErr := o.quarantine(candidate.Path)
		o.publisher.Publish(events.AssetCorrupt, events.Payload{
			"path":   candidate.Path,
			"reason": result.CorruptReason,
		})
		if err := o.store.LogEvent(ctx, "ASSET_CORRUPT", "file", candidate.Path); err != nil {
			logger.Warn("journal write failed", logging.Error(err))
		}
		if qErr != nil {
			return outcome, qErr
		}
		logger.Warn("corrupt candidate quarantined",
			logging.String("reason", result.CorruptReason),
			logging.String("quarantine_path", quarantined),
		)
		return outcome, nil
	}

	// Claims are scoped to the edition id pre-assigned here; the chain
	// factory materialises the edition under the same id later.
	editionID := uuid.NewString()
	outcome.EditionID = editionID
	ctx = logging.WithAssetID(ctx, editionID)
	for _, extracted := range result.Claims {
		claim := &catalog.Claim{
			EntityID:   editionID,
			EntityType: catalog.EntityEdition,
			ProviderID: processing.FilesystemProvider,
			Key:        extracted.Key,
			Value:      extracted.Value,
			Confidence: extracted.Confidence,
		}
		if err := o.store.AppendClaim(ctx, claim); err != nil {
			return outcome, err
		}
	}

	claims, err := o.store.ListClaims(ctx, editionID)
	if err != nil {
		return outcome, err
	}
	score := scoring.Score(scoring.Context{
		EntityID:             editionID,
		Claims:               claims,
		ProviderWeights:      o.providerWeights,
		ProviderFieldWeights: o.providerFieldWeights,
		Config:               o.scoringCfg,
	})

	canonical := make(map[string]string, len(score.FieldScores))
	for _, field := range score.FieldScores {
		if err := o.store.UpsertCanonical(ctx, editionID, field.Key, field.Value, score.ScoredAt); err != nil {
			return outcome, err
		}
		canonical[field.Key] = field.Value
	}

	mediaType := result.DetectedType
	if mediaType == "" {
		mediaType = catalog.MediaUnknown
	}

	// The arbiter scores the new entity against every existing hub. An
	// auto-link (hard identifier or strong fuzzy match) redirects the chain
	// factory to the matched hub even when titles differ.
	chainMetadata := make(map[string]string, len(canonical)+1)
	for key, value := range canonical {
		chainMetadata[key] = value
	}
	if hubs, hubErr := o.store.ListHubs(ctx); hubErr == nil {
		decision, decideErr := o.arbiter.Decide(ctx, editionID, canonical, hubs)
		if decideErr != nil {
			logger.Warn("arbiter decision failed", logging.Error(decideErr))
		} else if decision.Disposition == matching.AutoLinked && decision.HubID != "" {
			if hub, err := o.store.GetHub(ctx, decision.HubID); err == nil && hub != nil {
				chainMetadata["title"] = hub.DisplayName
			}
		}
	} else {
		logger.Warn("hub listing failed", logging.Error(hubErr))
	}

	built, err := chain.NewFactory(o.store, o.logger).Ensure(ctx, editionID, mediaType, chainMetadata)
	if err != nil {
		return outcome, err
	}
	outcome.HubID = built.Hub.ID

	// Canonical values live on the work for matching purposes as well; the
	// arbiter compares works across hubs.
	for key, value := range canonical {
		if err := o.store.UpsertCanonical(ctx, built.Work.ID, key, value, score.ScoredAt); err != nil {
			return outcome, err
		}
	}

	asset := &catalog.MediaAsset{
		EditionID:    built.Edition.ID,
		ContentHash:  digest.Hex,
		FilePathRoot: candidate.Path,
	}
	insert, err := o.store.InsertAsset(ctx, asset)
	if err != nil {
		return outcome, err
	}
	if insert == catalog.DuplicateHash {
		outcome.Duplicate = true
		outcome.State = StateRejected
		o.publisher.Publish(events.DuplicateSkipped, events.Payload{"path": candidate.Path, "content_hash": digest.Hex})
		return outcome, nil
	}
	outcome.AssetID = asset.ID
	if err := o.store.LogEvent(ctx, "ASSET_INGESTED", "asset", asset.ID); err != nil {
		logger.Warn("journal write failed", logging.Error(err))
	}

	userLocked := false
	for _, claim := range claims {
		if claim.IsUserLocked {
			userLocked = true
			break
		}
	}
	if score.OverallConfidence >= o.scoringCfg.AutoLinkThreshold || userLocked {
		finalPath, err := o.organize(ctx, candidate.Path, built, canonical, result, digest.Hex)
		if err != nil {
			logger.Warn("organisation failed; asset remains in inbox", logging.Error(err))
		} else {
			outcome.FinalPath = finalPath
			if err := o.store.UpdateAssetPathRoot(ctx, asset.ID, finalPath); err != nil {
				logger.Warn("asset path update failed", logging.Error(err))
			}
		}
	}

	if err := o.enricher.Enqueue(ctx, editionID, canonical); err != nil {
		logger.Warn("enrichment enqueue failed", logging.Error(err))
	}

	outcome.State = StateLibrary
	o.publisher.Publish(events.MediaAdded, events.Payload{
		"asset_id":     asset.ID,
		"hub_id":       built.Hub.ID,
		"content_hash": digest.Hex,
		"path":         candidate.Path,
	})
	if len(canonical) > 0 {
		o.publisher.Publish(events.MetadataHarvested, events.Payload{
			"entity_id":  editionID,
			"confidence": score.OverallConfidence,
		})
	}
	logger.Info("candidate ingested",
		logging.String(logging.FieldHubID, built.Hub.ID),
		logging.Float64("confidence", score.OverallConfidence),
		logging.String("state", string(outcome.State)),
	)
	return outcome, nil
}

func (o *Orchestrator) organize(ctx context.Context, sourcePath string, built *chain.Chain, canonical map[string]string, result processing.Result, contentHash string) (string, error) {
	format := built.Edition.FormatLabel
	if format == "" {
		format = categoryLabel(built.Work.MediaType)
	}
	placement := organizer.Placement{
		Category: categoryLabel(built.Work.MediaType),
		HubName:  built.Hub.DisplayName,
		Year:     yearFrom(canonical),
		Format:   format,
		Edition:  built.Edition.FormatLabel,
		Ext:      strings.ToLower(filepath.Ext(sourcePath)),
	}
	finalPath, err := o.organizer.Organize(sourcePath, placement)
	if err != nil {
		return "", err
	}

	descriptor := &sidecar.Descriptor{
		ContentHash:   contentHash,
		HubName:       built.Hub.DisplayName,
		UniverseID:    built.Hub.UniverseID,
		MediaType:     string(built.Work.MediaType),
		SequenceIndex: built.Work.SequenceIndex,
		FormatLabel:   built.Edition.FormatLabel,
		IngestedAt:    time.Now().UTC(),
	}
	for key, value := range canonical {
		descriptor.Canonical = append(descriptor.Canonical, sidecar.CanonicalEntry{Key: key, Value: value})
	}
	if data, err := sidecar.Marshal(descriptor); err == nil {
		if _, err := o.organizer.WriteSidecar(finalPath, data); err != nil {
			logging.WithContext(ctx, o.logger).Warn("sidecar write failed", logging.Error(err))
		}
	}
	if len(result.CoverBytes) > 0 {
		if _, err := o.organizer.WriteCover(finalPath, result.CoverBytes, result.CoverMime); err != nil {
			logging.WithContext(ctx, o.logger).Warn("cover write failed", logging.Error(err))
		}
	}
	return finalPath, nil
}

func (o *Orchestrator) handleDeletion(ctx context.Context, candidate watcher.Candidate) (Outcome, error) {
	outcome := Outcome{State: StateRejected}
	asset, err := o.store.FindAssetByPathRoot(ctx, candidate.Path)
	if err != nil {
		return outcome, err
	}
	if asset == nil {
		return outcome, nil
	}
	if err := o.store.UpdateAssetStatus(ctx, asset.ID, catalog.AssetOrphaned); err != nil {
		return outcome, err
	}
	if err := o.store.LogEvent(ctx, "ASSET_ORPHANED", "asset", asset.ID); err != nil {
		logging.WithContext(ctx, o.logger).Warn("journal write failed", logging.Error(err))
	}
	o.publisher.Publish(events.AssetOrphaned, events.Payload{"asset_id": asset.ID, "path": candidate.Path})
	outcome.AssetID = asset.ID
	logging.WithContext(ctx, o.logger).Info("asset marked orphaned", logging.String(logging.FieldAssetID, asset.ID))
	return outcome, nil
}

func (o *Orchestrator) quarantine(path string) (string, error) {
	if strings.TrimSpace(o.quarantineDir) == "" {
		return "", services.Wrap(services.ErrConfiguration, "ingest", "quarantine", "quarantine directory not configured", nil)
	}
	if err := os.MkdirAll(o.quarantineDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "ingest", "quarantine", "", err)
	}
	target := filepath.Join(o.quarantineDir, filepath.Base(path))
	for n := 2; ; n++ {
		if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
			break
		}
		ext := filepath.Ext(path)
		stem := strings.TrimSuffix(filepath.Base(path), ext)
		target = filepath.Join(o.quarantineDir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
	}
	if err := organizer.Move(path, target); err != nil {
		return "", services.Wrap(services.ErrTransient, "ingest", "quarantine move", "", err)
	}
	return target, nil
}

func (o *Orchestrator) recordFailure(ctx context.Context, path, reason string) {
	if err := o.store.LogEvent(ctx, "INGEST_FAILED", "file", path); err != nil {
		logging.WithContext(ctx, o.logger).Warn("journal write failed", logging.Error(err))
	}
	o.publisher.Publish(events.IngestFailed, events.Payload{"path": path, "reason": reason})
}

func categoryLabel(mediaType catalog.MediaType) string {
	switch mediaType {
	case catalog.MediaEpub:
		return "Epub"
	case catalog.MediaAudiobook:
		return "Audiobook"
	case catalog.MediaMovie:
		return "Movie"
	case catalog.MediaComic:
		return "Comic"
	case catalog.MediaTvShow:
		return "TV"
	case catalog.MediaPodcast:
		return "Podcast"
	case catalog.MediaMusic:
		return "Music"
	default:
		return "Unknown"
	}
}

func yearFrom(canonical map[string]string) string {
	for _, key := range []string{"year", "published_year", "release_year"} {
		if value := strings.TrimSpace(canonical[key]); value != "" {
			return value
		}
	}
	return ""
}
