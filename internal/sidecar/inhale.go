package sidecar

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"hubward/internal/catalog"
	"hubward/internal/chain"
	"hubward/internal/logging"
)

// InhaleStats summarises one reconciliation pass.
type InhaleStats struct {
	SidecarsSeen int
	Restored     int
	Duplicates   int
	Failures     int
}

// Inhaler rebuilds the catalogue from on-disk sidecars — the disaster
// recovery pass that walks the data root and replays every descriptor
// through the same store operations ingestion uses.
type Inhaler struct {
	store  *catalog.Store
	logger *slog.Logger
}

// NewInhaler constructs an inhaler over the catalogue store.
func NewInhaler(store *catalog.Store, logger *slog.Logger) *Inhaler {
	return &Inhaler{store: store, logger: logging.NewComponentLogger(logger, "inhale")}
}

// Inhale walks root, parses every descriptor, and restores the asset chains.
// Restoration is idempotent on content hash, so re-running over an intact
// catalogue is a no-op.
func (i *Inhaler) Inhale(ctx context.Context, root string) (InhaleStats, error) {
	stats := InhaleStats{}
	factory := chain.NewFactory(i.store, i.logger)

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(path, ".hubward.xml") {
			return nil
		}
		stats.SidecarsSeen++

		data, err := os.ReadFile(path)
		if err != nil {
			stats.Failures++
			i.logger.Warn("sidecar unreadable", logging.String(logging.FieldPath, path), logging.Error(err))
			return nil
		}
		descriptor, err := Unmarshal(data)
		if err != nil {
			stats.Failures++
			i.logger.Warn("sidecar unparseable", logging.String(logging.FieldPath, path), logging.Error(err))
			return nil
		}

		existing, err := i.store.FindAssetByHash(ctx, descriptor.ContentHash)
		if err != nil {
			return err
		}
		if existing != nil {
			stats.Duplicates++
			return nil
		}

		if err := i.restore(ctx, factory, path, descriptor); err != nil {
			stats.Failures++
			i.logger.Warn("sidecar restore failed", logging.String(logging.FieldPath, path), logging.Error(err))
			return nil
		}
		stats.Restored++
		return nil
	})
	if err != nil {
		return stats, err
	}

	i.logger.Info("inhale completed",
		logging.Int("seen", stats.SidecarsSeen),
		logging.Int("restored", stats.Restored),
		logging.Int("duplicates", stats.Duplicates),
		logging.Int("failures", stats.Failures),
	)
	return stats, nil
}

func (i *Inhaler) restore(ctx context.Context, factory *chain.Factory, sidecarPath string, d *Descriptor) error {
	metadata := d.CanonicalMap()
	if strings.TrimSpace(metadata["title"]) == "" {
		metadata["title"] = d.HubName
	}
	if d.FormatLabel != "" {
		metadata["format"] = d.FormatLabel
	}

	built, err := factory.Ensure(ctx, uuid.NewString(), catalog.ParseMediaType(d.MediaType), metadata)
	if err != nil {
		return err
	}

	mediaPath := mediaPathForSidecar(sidecarPath)
	asset := &catalog.MediaAsset{
		EditionID:    built.Edition.ID,
		ContentHash:  d.ContentHash,
		FilePathRoot: mediaPath,
		Status:       catalog.AssetNormal,
	}
	if _, err := i.store.InsertAsset(ctx, asset); err != nil {
		return err
	}

	scoredAt := d.IngestedAt
	if scoredAt.IsZero() {
		scoredAt = time.Now().UTC()
	}
	for key, value := range d.CanonicalMap() {
		if err := i.store.UpsertCanonical(ctx, built.Edition.ID, key, value, scoredAt); err != nil {
			return err
		}
	}
	return i.store.LogEvent(ctx, "ASSET_INHALED", "asset", asset.ID)
}

func mediaPathForSidecar(sidecarPath string) string {
	return strings.TrimSuffix(sidecarPath, ".hubward.xml")
}
