package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrNotFound indicates the asset does not exist
	ErrNotFound = errors.New("media asset not found")
)

// Store persists asset records in PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a media store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const assetColumns = `id, file_name, object_key, content_type, size_bytes, url, uploaded_by, created_at`

// Create records an uploaded asset. When the object key already exists
// (content-addressed duplicate upload) the existing record is returned.
func (s *Store) Create(ctx context.Context, asset *Asset) error {
	query := `
		INSERT INTO media_assets (file_name, object_key, content_type, size_bytes, url, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		asset.FileName, asset.ObjectKey, asset.ContentType,
		asset.SizeBytes, asset.URL, asset.UploadedBy,
	).Scan(&asset.ID, &asset.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			existing, lookupErr := s.GetByObjectKey(ctx, asset.ObjectKey)
			if lookupErr != nil {
				return fmt.Errorf("failed to load duplicate asset: %w", lookupErr)
			}
			*asset = *existing
			return nil
		}
		return fmt.Errorf("failed to create media asset: %w", err)
	}
	return nil
}

// Get fetches an asset by ID
func (s *Store) Get(ctx context.Context, id int64) (*Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM media_assets WHERE id = $1`
	return s.scanAsset(s.db.QueryRowContext(ctx, query, id))
}

// GetByObjectKey fetches an asset by its storage key
func (s *Store) GetByObjectKey(ctx context.Context, key string) (*Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM media_assets WHERE object_key = $1`
	return s.scanAsset(s.db.QueryRowContext(ctx, query, key))
}

// List returns assets newest first
func (s *Store) List(ctx context.Context, limit, offset int64) ([]Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM media_assets ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list media assets: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.FileName, &a.ObjectKey, &a.ContentType,
			&a.SizeBytes, &a.URL, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan media asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// Delete removes an asset record
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM media_assets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete media asset: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByObjectKey reports how many asset records share a storage key.
// Deduplicated uploads share the object; it is removed only when the
// last record goes.
func (s *Store) CountByObjectKey(ctx context.Context, key string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media_assets WHERE object_key = $1`, key).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count assets by object key: %w", err)
	}
	return count, nil
}

func (s *Store) scanAsset(row *sql.Row) (*Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.FileName, &a.ObjectKey, &a.ContentType,
		&a.SizeBytes, &a.URL, &a.UploadedBy, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan media asset: %w", err)
	}
	return &a, nil
}
