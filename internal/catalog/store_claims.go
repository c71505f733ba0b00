package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"hubward/internal/services"
)

const claimColumns = "id, entity_id, entity_type, provider_id, claim_key, claim_value, confidence, claimed_at, is_user_locked"

// AppendClaim records a claim. Claims are never updated or deleted; every
// re-score replays the full history.
func (s *Store) AppendClaim(ctx context.Context, claim *Claim) error {
	if claim == nil {
		return errors.New("claim is nil")
	}
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	if claim.ClaimedAt.IsZero() {
		claim.ClaimedAt = time.Now().UTC()
	}
	if claim.EntityType == "" {
		claim.EntityType = EntityEdition
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO metadata_claims (id, entity_id, entity_type, provider_id, claim_key, claim_value, confidence, claimed_at, is_user_locked)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		claim.ID,
		claim.EntityID,
		string(claim.EntityType),
		claim.ProviderID,
		claim.Key,
		claim.Value,
		claim.Confidence,
		formatTime(claim.ClaimedAt),
		boolToInt(claim.IsUserLocked),
	)
	if err != nil {
		return services.Wrap(services.ErrStoreUnavailable, "catalog", "append claim", "", err)
	}
	return nil
}

// ListClaims returns every claim for an entity in insertion order.
func (s *Store) ListClaims(ctx context.Context, entityID string) ([]Claim, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+claimColumns+` FROM metadata_claims WHERE entity_id = ? ORDER BY claimed_at, id`,
		entityID,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "list claims", "", err)
	}
	defer rows.Close()

	var claims []Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

// CountClaims returns the number of claim rows across all entities.
func (s *Store) CountClaims(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM metadata_claims`).Scan(&count); err != nil {
		return 0, services.Wrap(services.ErrStoreUnavailable, "catalog", "count claims", "", err)
	}
	return count, nil
}

// UpsertCanonical replaces the canonical value for one (entity, key) pair.
func (s *Store) UpsertCanonical(ctx context.Context, entityID, key, value string, scoredAt time.Time) error {
	if scoredAt.IsZero() {
		scoredAt = time.Now().UTC()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO canonical_values (entity_id, claim_key, claim_value, last_scored_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT (entity_id, claim_key) DO UPDATE SET claim_value = excluded.claim_value, last_scored_at = excluded.last_scored_at`,
		entityID, key, value, formatTime(scoredAt),
	)
	if err != nil {
		return services.Wrap(services.ErrStoreUnavailable, "catalog", "upsert canonical", "", err)
	}
	return nil
}

// CanonicalValuesFor returns the canonical values of one entity keyed by claim key.
func (s *Store) CanonicalValuesFor(ctx context.Context, entityID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT claim_key, claim_value FROM canonical_values WHERE entity_id = ?`,
		entityID,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "canonical values", "", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, rows.Err()
}

func scanClaim(scanner interface{ Scan(dest ...any) error }) (Claim, error) {
	var (
		id         string
		entityID   string
		entityType string
		providerID string
		key        string
		value      string
		confidence float64
		claimedRaw sql.NullString
		locked     int
	)
	if err := scanner.Scan(&id, &entityID, &entityType, &providerID, &key, &value, &confidence, &claimedRaw, &locked); err != nil {
		return Claim{}, err
	}
	claim := Claim{
		ID:           id,
		EntityID:     entityID,
		EntityType:   EntityType(entityType),
		ProviderID:   providerID,
		Key:          key,
		Value:        value,
		Confidence:   confidence,
		IsUserLocked: locked != 0,
	}
	if claimed, err := parseTimeString(claimedRaw.String); err == nil {
		claim.ClaimedAt = claimed
	}
	return claim, nil
}
