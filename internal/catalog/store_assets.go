package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hubward/internal/services"
)

const assetColumns = "id, edition_id, content_hash, file_path_root, status, manifest_json, created_at"

// InsertAsset inserts an asset unless its content hash is already present.
// Duplicate hashes are not errors; the caller receives DuplicateHash.
func (s *Store) InsertAsset(ctx context.Context, asset *MediaAsset) (InsertResult, error) {
	if asset == nil {
		return DuplicateHash, errors.New("asset is nil")
	}
	hash := strings.ToLower(strings.TrimSpace(asset.ContentHash))
	if hash == "" {
		return DuplicateHash, services.Wrap(services.ErrValidation, "catalog", "insert asset", "content hash is required", nil)
	}
	existing, err := s.FindAssetByHash(ctx, hash)
	if err != nil {
		return DuplicateHash, err
	}
	if existing != nil {
		return DuplicateHash, nil
	}
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	if asset.Status == "" {
		asset.Status = AssetNormal
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}
	asset.ContentHash = hash

	_, err = s.execWithRetry(ctx,
		`INSERT INTO media_assets (id, edition_id, content_hash, file_path_root, status, manifest_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		asset.ID,
		asset.EditionID,
		asset.ContentHash,
		asset.FilePathRoot,
		string(asset.Status),
		nullableString(asset.ManifestJSON),
		formatTime(asset.CreatedAt),
	)
	if err != nil {
		// A concurrent writer may have landed the same hash between the
		// lookup and the insert; the UNIQUE constraint keeps this silent.
		if strings.Contains(err.Error(), "UNIQUE") {
			return DuplicateHash, nil
		}
		return DuplicateHash, services.Wrap(services.ErrStoreUnavailable, "catalog", "insert asset", "", err)
	}
	return Inserted, nil
}

// FindAssetByHash returns the asset with the given content hash, or nil.
func (s *Store) FindAssetByHash(ctx context.Context, hexDigest string) (*MediaAsset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM media_assets WHERE content_hash = ?`,
		strings.ToLower(strings.TrimSpace(hexDigest)),
	)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "find asset by hash", "", err)
	}
	return asset, nil
}

// FindAssetByPathRoot returns the first asset rooted at the given path, or nil.
func (s *Store) FindAssetByPathRoot(ctx context.Context, pathRoot string) (*MediaAsset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM media_assets WHERE file_path_root = ? ORDER BY created_at LIMIT 1`,
		pathRoot,
	)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "find asset by path", "", err)
	}
	return asset, nil
}

// UpdateAssetStatus transitions an asset's lifecycle state.
func (s *Store) UpdateAssetStatus(ctx context.Context, assetID string, status AssetStatus) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE media_assets SET status = ? WHERE id = ?`,
		string(status), assetID,
	)
	if err != nil {
		return services.Wrap(services.ErrStoreUnavailable, "catalog", "update asset status", "", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "catalog", "update asset status", assetID, nil)
	}
	return nil
}

// UpdateAssetPathRoot records the organised location of an asset.
func (s *Store) UpdateAssetPathRoot(ctx context.Context, assetID, pathRoot string) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE media_assets SET file_path_root = ? WHERE id = ?`,
		pathRoot, assetID,
	)
	if err != nil {
		return services.Wrap(services.ErrStoreUnavailable, "catalog", "update asset path", "", err)
	}
	return nil
}

// CountAssets returns the number of asset rows.
func (s *Store) CountAssets(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM media_assets`).Scan(&count); err != nil {
		return 0, services.Wrap(services.ErrStoreUnavailable, "catalog", "count assets", "", err)
	}
	return count, nil
}

func scanAsset(scanner interface{ Scan(dest ...any) error }) (*MediaAsset, error) {
	var (
		id        string
		editionID string
		hash      string
		pathRoot  string
		statusStr string
		manifest  sql.NullString
		createdAt sql.NullString
	)
	if err := scanner.Scan(&id, &editionID, &hash, &pathRoot, &statusStr, &manifest, &createdAt); err != nil {
		return nil, err
	}
	asset := &MediaAsset{
		ID:           id,
		EditionID:    editionID,
		ContentHash:  hash,
		FilePathRoot: pathRoot,
		Status:       AssetStatus(statusStr),
		ManifestJSON: manifest.String,
	}
	if created, err := parseTimeString(createdAt.String); err == nil {
		asset.CreatedAt = created
	}
	return asset, nil
}
