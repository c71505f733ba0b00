package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"hubward/internal/services"
)

// LogEvent appends an audit row to the transaction journal.
func (s *Store) LogEvent(ctx context.Context, eventType, entityType, entityID string) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO transaction_log (event_type, entity_type, entity_id, occurred_at) VALUES (?, ?, ?, ?)`,
		eventType, entityType, entityID, formatTime(time.Now().UTC()),
	)
	if err != nil {
		return services.Wrap(services.ErrStoreUnavailable, "catalog", "log event", "", err)
	}
	return nil
}

// PruneLog deletes the oldest journal rows beyond maxEntries. SQLite builds
// without DELETE-LIMIT support, so overflow is selected with a subquery.
func (s *Store) PruneLog(ctx context.Context, maxEntries int) (int64, error) {
	if maxEntries < 0 {
		maxEntries = 0
	}
	res, err := s.execWithRetry(ctx,
		`DELETE FROM transaction_log
         WHERE id NOT IN (
             SELECT id FROM transaction_log ORDER BY id DESC LIMIT ?
         )`,
		maxEntries,
	)
	if err != nil {
		return 0, services.Wrap(services.ErrStoreUnavailable, "catalog", "prune log", "", err)
	}
	return res.RowsAffected()
}

// RecentJournal returns the newest journal rows, newest first.
func (s *Store) RecentJournal(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, entity_type, entity_id, occurred_at FROM transaction_log ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "recent journal", "", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var (
			entry       JournalEntry
			occurredRaw sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.EventType, &entry.EntityType, &entry.EntityID, &occurredRaw); err != nil {
			return nil, err
		}
		if occurred, err := parseTimeString(occurredRaw.String); err == nil {
			entry.OccurredAt = occurred
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountJournal returns the number of journal rows.
func (s *Store) CountJournal(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM transaction_log`).Scan(&count); err != nil {
		return 0, services.Wrap(services.ErrStoreUnavailable, "catalog", "count journal", "", err)
	}
	return count, nil
}

// UpsertProvider registers or refreshes a provider's arbitration weights.
func (s *Store) UpsertProvider(ctx context.Context, reg *ProviderRegistration) error {
	if reg == nil {
		return errors.New("provider registration is nil")
	}
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	var fieldWeights any
	if len(reg.FieldWeights) > 0 {
		data, err := json.Marshal(reg.FieldWeights)
		if err != nil {
			return services.Wrap(services.ErrValidation, "catalog", "encode field weights", "", err)
		}
		fieldWeights = string(data)
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO providers (id, name, enabled, default_weight, field_weights_json)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (name) DO UPDATE SET
             enabled = excluded.enabled,
             default_weight = excluded.default_weight,
             field_weights_json = excluded.field_weights_json`,
		reg.ID, reg.Name, boolToInt(reg.Enabled), reg.DefaultWeight, fieldWeights,
	)
	if err != nil {
		return services.Wrap(services.ErrStoreUnavailable, "catalog", "upsert provider", "", err)
	}
	return nil
}

// ListProviders returns every registered provider.
func (s *Store) ListProviders(ctx context.Context) ([]ProviderRegistration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, enabled, default_weight, field_weights_json FROM providers ORDER BY name`,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "list providers", "", err)
	}
	defer rows.Close()

	var providers []ProviderRegistration
	for rows.Next() {
		var (
			reg     ProviderRegistration
			enabled int
			fields  sql.NullString
		)
		if err := rows.Scan(&reg.ID, &reg.Name, &enabled, &reg.DefaultWeight, &fields); err != nil {
			return nil, err
		}
		reg.Enabled = enabled != 0
		if fields.Valid && fields.String != "" {
			weights := make(map[string]float64)
			if err := json.Unmarshal([]byte(fields.String), &weights); err == nil {
				reg.FieldWeights = weights
			}
		}
		providers = append(providers, reg)
	}
	return providers, rows.Err()
}
