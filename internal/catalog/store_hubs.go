package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"hubward/internal/services"
)

// CreateHub inserts a new hub. No uniqueness is enforced on display names;
// duplicate hubs are reconciled by the arbiter later.
func (s *Store) CreateHub(ctx context.Context, displayName, universeID string) (*Hub, error) {
	hub := &Hub{
		ID:          uuid.NewString(),
		UniverseID:  universeID,
		DisplayName: strings.TrimSpace(displayName),
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO hubs (id, universe_id, display_name, created_at) VALUES (?, ?, ?, ?)`,
		hub.ID,
		nullableString(hub.UniverseID),
		hub.DisplayName,
		formatTime(hub.CreatedAt),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "create hub", "", err)
	}
	return hub, nil
}

// FindHubByDisplayName performs the case-insensitive reuse lookup. When
// collisions exist, the oldest hub wins.
func (s *Store) FindHubByDisplayName(ctx context.Context, displayName string) (*Hub, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, universe_id, display_name, created_at FROM hubs
         WHERE display_name = ? COLLATE NOCASE ORDER BY created_at LIMIT 1`,
		strings.TrimSpace(displayName),
	)
	hub, err := scanHub(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "find hub", "", err)
	}
	return hub, nil
}

// GetHub fetches a hub by id, or nil.
func (s *Store) GetHub(ctx context.Context, id string) (*Hub, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, universe_id, display_name, created_at FROM hubs WHERE id = ?`, id)
	hub, err := scanHub(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "get hub", "", err)
	}
	return hub, nil
}

// DeleteHub removes a hub. Foreign keys null hub_id on its works so they
// remain recoverable.
func (s *Store) DeleteHub(ctx context.Context, id string) error {
	_, err := s.execWithRetry(ctx, `DELETE FROM hubs WHERE id = ?`, id)
	if err != nil {
		return services.Wrap(services.ErrStoreUnavailable, "catalog", "delete hub", "", err)
	}
	return nil
}

// CreateWork inserts a new work under a hub.
func (s *Store) CreateWork(ctx context.Context, hubID string, mediaType MediaType, sequenceIndex *int) (*Work, error) {
	if strings.TrimSpace(hubID) == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "create work", "hub id is required", nil)
	}
	work := &Work{
		ID:            uuid.NewString(),
		HubID:         hubID,
		MediaType:     mediaType,
		SequenceIndex: sequenceIndex,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO works (id, hub_id, media_type, sequence_index, created_at) VALUES (?, ?, ?, ?, ?)`,
		work.ID,
		work.HubID,
		string(work.MediaType),
		nullableInt(work.SequenceIndex),
		formatTime(work.CreatedAt),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "create work", "", err)
	}
	return work, nil
}

// WorksForHub returns the works of a hub ordered by creation.
func (s *Store) WorksForHub(ctx context.Context, hubID string) ([]*Work, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, hub_id, media_type, sequence_index, created_at FROM works WHERE hub_id = ? ORDER BY created_at`,
		hubID,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "works for hub", "", err)
	}
	defer rows.Close()

	var works []*Work
	for rows.Next() {
		work, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		works = append(works, work)
	}
	return works, rows.Err()
}

// GetWork fetches a work by id, or nil.
func (s *Store) GetWork(ctx context.Context, id string) (*Work, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, hub_id, media_type, sequence_index, created_at FROM works WHERE id = ?`, id)
	work, err := scanWork(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "get work", "", err)
	}
	return work, nil
}

// CreateEdition inserts a new edition under a work.
func (s *Store) CreateEdition(ctx context.Context, workID, formatLabel string) (*Edition, error) {
	return s.CreateEditionWithID(ctx, uuid.NewString(), workID, formatLabel)
}

// CreateEditionWithID inserts an edition using a pre-assigned id. Ingestion
// assigns the edition id before the edition exists so claims can be scoped to
// it.
func (s *Store) CreateEditionWithID(ctx context.Context, id, workID, formatLabel string) (*Edition, error) {
	if strings.TrimSpace(workID) == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "create edition", "work id is required", nil)
	}
	edition := &Edition{
		ID:          id,
		WorkID:      workID,
		FormatLabel: strings.TrimSpace(formatLabel),
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO editions (id, work_id, format_label, created_at) VALUES (?, ?, ?, ?)`,
		edition.ID,
		edition.WorkID,
		nullableString(edition.FormatLabel),
		formatTime(edition.CreatedAt),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "create edition", "", err)
	}
	return edition, nil
}

// ListHubs loads every hub with its works and each work's canonical values.
// Two queries: one join for hubs and works, one IN-list sweep for canonical
// values over the collected work ids. This avoids the per-work N+1.
func (s *Store) ListHubs(ctx context.Context) ([]*Hub, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.id, h.universe_id, h.display_name, h.created_at,
                w.id, w.hub_id, w.media_type, w.sequence_index, w.created_at
         FROM hubs h
         LEFT JOIN works w ON w.hub_id = h.id
         ORDER BY h.created_at, w.created_at`,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "list hubs", "", err)
	}
	defer rows.Close()

	var (
		hubs    []*Hub
		hubByID = make(map[string]*Hub)
		workIDs []string
		works   = make(map[string]*Work)
	)
	for rows.Next() {
		var (
			hubID       string
			universeID  sql.NullString
			displayName string
			hubCreated  sql.NullString
			workID      sql.NullString
			workHubID   sql.NullString
			mediaType   sql.NullString
			seqIndex    sql.NullInt64
			workCreated sql.NullString
		)
		if err := rows.Scan(&hubID, &universeID, &displayName, &hubCreated, &workID, &workHubID, &mediaType, &seqIndex, &workCreated); err != nil {
			return nil, err
		}
		hub, ok := hubByID[hubID]
		if !ok {
			hub = &Hub{ID: hubID, UniverseID: universeID.String, DisplayName: displayName}
			if created, err := parseTimeString(hubCreated.String); err == nil {
				hub.CreatedAt = created
			}
			hubByID[hubID] = hub
			hubs = append(hubs, hub)
		}
		if !workID.Valid {
			continue
		}
		work := &Work{ID: workID.String, HubID: workHubID.String, MediaType: MediaType(mediaType.String)}
		if seqIndex.Valid {
			idx := int(seqIndex.Int64)
			work.SequenceIndex = &idx
		}
		if created, err := parseTimeString(workCreated.String); err == nil {
			work.CreatedAt = created
		}
		hub.Works = append(hub.Works, work)
		works[work.ID] = work
		workIDs = append(workIDs, work.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(workIDs) == 0 {
		return hubs, nil
	}

	placeholders := makePlaceholders(len(workIDs))
	args := make([]any, len(workIDs))
	for i, id := range workIDs {
		args[i] = id
	}
	valueRows, err := s.db.QueryContext(ctx,
		`SELECT entity_id, claim_key, claim_value, last_scored_at FROM canonical_values
         WHERE entity_id IN (`+placeholders+`) ORDER BY entity_id, claim_key`,
		args...,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "list hub values", "", err)
	}
	defer valueRows.Close()

	for valueRows.Next() {
		var (
			entityID string
			key      string
			value    string
			scoredAt sql.NullString
		)
		if err := valueRows.Scan(&entityID, &key, &value, &scoredAt); err != nil {
			return nil, err
		}
		work, ok := works[entityID]
		if !ok {
			continue
		}
		cv := CanonicalValue{EntityID: entityID, Key: key, Value: value}
		if scored, err := parseTimeString(scoredAt.String); err == nil {
			cv.LastScoredAt = scored
		}
		work.CanonicalValues = append(work.CanonicalValues, cv)
	}
	return hubs, valueRows.Err()
}

// SearchHubs returns up to limit hubs whose display name contains the query,
// case-insensitively.
func (s *Store) SearchHubs(ctx context.Context, query string, limit int) ([]*Hub, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, universe_id, display_name, created_at FROM hubs
         WHERE display_name LIKE ? ESCAPE '\' ORDER BY display_name LIMIT ?`,
		pattern, limit,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "search hubs", "", err)
	}
	defer rows.Close()

	var hubs []*Hub
	for rows.Next() {
		hub, err := scanHub(rows)
		if err != nil {
			return nil, err
		}
		hubs = append(hubs, hub)
	}
	return hubs, rows.Err()
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func scanHub(scanner interface{ Scan(dest ...any) error }) (*Hub, error) {
	var (
		id          string
		universeID  sql.NullString
		displayName string
		createdRaw  sql.NullString
	)
	if err := scanner.Scan(&id, &universeID, &displayName, &createdRaw); err != nil {
		return nil, err
	}
	hub := &Hub{ID: id, UniverseID: universeID.String, DisplayName: displayName}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		hub.CreatedAt = created
	}
	return hub, nil
}

func scanWork(scanner interface{ Scan(dest ...any) error }) (*Work, error) {
	var (
		id         string
		hubID      sql.NullString
		mediaType  string
		seqIndex   sql.NullInt64
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&id, &hubID, &mediaType, &seqIndex, &createdRaw); err != nil {
		return nil, err
	}
	work := &Work{ID: id, HubID: hubID.String, MediaType: MediaType(mediaType)}
	if seqIndex.Valid {
		idx := int(seqIndex.Int64)
		work.SequenceIndex = &idx
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		work.CreatedAt = created
	}
	return work, nil
}
