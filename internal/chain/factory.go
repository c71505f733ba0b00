// Package chain materialises the Hub→Work→Edition chain for newly hashed
// assets. Hubs are reused by case-insensitive display name; works and
// editions are always created fresh (deduplication under a hub is a separate
// concern).
package chain

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"hubward/internal/catalog"
	"hubward/internal/logging"
)

// UnknownTitle labels chains whose metadata carries no usable title.
const UnknownTitle = "Unknown"

// Store is the catalogue surface the factory needs.
type Store interface {
	FindHubByDisplayName(ctx context.Context, displayName string) (*catalog.Hub, error)
	CreateHub(ctx context.Context, displayName, universeID string) (*catalog.Hub, error)
	CreateWork(ctx context.Context, hubID string, mediaType catalog.MediaType, sequenceIndex *int) (*catalog.Work, error)
	CreateEditionWithID(ctx context.Context, id, workID, formatLabel string) (*catalog.Edition, error)
}

// Factory builds entity chains.
type Factory struct {
	store  Store
	logger *slog.Logger
}

// NewFactory constructs a chain factory.
func NewFactory(store Store, logger *slog.Logger) *Factory {
	return &Factory{store: store, logger: logging.NewComponentLogger(logger, "chain")}
}

// Chain is the materialised result.
type Chain struct {
	Hub     *catalog.Hub
	Work    *catalog.Work
	Edition *catalog.Edition
	// HubReused is true when an existing hub matched by display name.
	HubReused bool
}

// Ensure creates (or reuses) the Hub and creates a fresh Work and Edition for
// the given metadata. editionID pre-assigns the edition's identifier so
// claims recorded earlier in the pipeline stay attached.
func (f *Factory) Ensure(ctx context.Context, editionID string, mediaType catalog.MediaType, metadata map[string]string) (*Chain, error) {
	title := strings.TrimSpace(metadata["title"])
	if title == "" {
		title = UnknownTitle
	}

	hub, err := f.store.FindHubByDisplayName(ctx, title)
	if err != nil {
		return nil, err
	}
	reused := hub != nil
	if hub == nil {
		hub, err = f.store.CreateHub(ctx, title, "")
		if err != nil {
			return nil, err
		}
	}

	work, err := f.store.CreateWork(ctx, hub.ID, mediaType, sequenceIndex(metadata))
	if err != nil {
		return nil, err
	}

	edition, err := f.store.CreateEditionWithID(ctx, editionID, work.ID, metadata["format"])
	if err != nil {
		return nil, err
	}

	f.logger.Debug("entity chain ensured",
		logging.String(logging.FieldHubID, hub.ID),
		logging.String("work_id", work.ID),
		logging.String("edition_id", edition.ID),
		logging.Bool("hub_reused", reused),
	)
	return &Chain{Hub: hub, Work: work, Edition: edition, HubReused: reused}, nil
}

func sequenceIndex(metadata map[string]string) *int {
	raw := strings.TrimSpace(metadata["series_index"])
	if raw == "" {
		return nil
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &index
}
