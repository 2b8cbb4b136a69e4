package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/diogotoporcov/Finder2/internal/database"
)

// ErrNotFound is returned when an asset does not exist or is not visible to
// the requesting owner.
var ErrNotFound = errors.New("asset not found")

// AssetStore persists assets and their fingerprints. Every method takes a
// Querier so staging inserts and duplicate lookups can run inside the same
// open transaction and see uncommitted sibling rows.
type AssetStore struct{}

// NewAssetStore creates an asset store.
func NewAssetStore() *AssetStore {
	return &AssetStore{}
}

// InsertAsset stages one asset row.
func (s *AssetStore) InsertAsset(ctx context.Context, q Querier, a *database.Asset) error {
	query := `
		INSERT INTO assets (id, owner_id, collection_id, stored_filename, original_filename, mime_type, size_bytes, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.ExecContext(ctx, query,
		a.ID, a.OwnerID, a.CollectionID,
		a.StoredFilename, a.OriginalFilename, a.MimeType, a.SizeBytes,
		pq.Array(a.Tags),
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// InsertFingerprint stages the fingerprint row for an asset. A nil embedding
// is stored as NULL; the embedding tier then skips the row.
func (s *AssetStore) InsertFingerprint(ctx context.Context, q Querier, fp *database.StoredFingerprint) error {
	var embedding any
	if len(fp.Embedding) > 0 {
		embedding = pgvector.NewVector(fp.Embedding)
	}

	query := `
		INSERT INTO asset_fingerprints (asset_id, sha256, phash, embedding)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := q.ExecContext(ctx, query, fp.AssetID, fp.SHA256, fp.PHash, embedding); err != nil {
		return fmt.Errorf("insert fingerprint: %w", err)
	}
	return nil
}

// DeleteAsset removes an asset row; the fingerprint row goes with it by
// cascade. Used both to un-stage duplicates and to delete committed assets.
func (s *AssetStore) DeleteAsset(ctx context.Context, q Querier, id uuid.UUID) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM assets WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return nil
}

// GetAsset retrieves an asset by id, scoped to its owner.
func (s *AssetStore) GetAsset(ctx context.Context, q Querier, ownerID, id uuid.UUID) (*database.Asset, error) {
	query := `
		SELECT id, owner_id, collection_id, stored_filename, original_filename, mime_type, size_bytes, tags, created_at, updated_at
		FROM assets
		WHERE id = $1 AND owner_id = $2
	`

	var a database.Asset
	err := q.QueryRowContext(ctx, query, id, ownerID).Scan(
		&a.ID, &a.OwnerID, &a.CollectionID,
		&a.StoredFilename, &a.OriginalFilename, &a.MimeType, &a.SizeBytes,
		pq.Array(&a.Tags), &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query asset: %w", err)
	}
	return &a, nil
}

// UpdateTags replaces the tag set of an owner's asset.
func (s *AssetStore) UpdateTags(ctx context.Context, q Querier, ownerID, id uuid.UUID, tags []string) error {
	res, err := q.ExecContext(ctx,
		"UPDATE assets SET tags = $1, updated_at = NOW() WHERE id = $2 AND owner_id = $3",
		pq.Array(tags), id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("update tags: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tags: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByContentHash returns the oldest asset in scope whose content hash is
// byte-identical to the candidate's, excluding the candidate itself.
func (s *AssetStore) FindByContentHash(ctx context.Context, q Querier, scope database.Scope, exclude uuid.UUID, sha256 string) (uuid.UUID, bool, error) {
	query := `
		SELECT a.id
		FROM assets a
		JOIN asset_fingerprints f ON f.asset_id = a.id
		WHERE a.owner_id = $1 AND a.collection_id = $2 AND a.id <> $3
		  AND f.sha256 = $4
		ORDER BY a.created_at, a.id
		LIMIT 1
	`
	return scanMatch(q.QueryRowContext(ctx, query, scope.OwnerID, scope.CollectionID, exclude, sha256))
}

// FindByPerceptualHash returns the asset in scope whose perceptual hash is
// nearest to the candidate's within maxDistance bits, excluding the candidate.
// The distance is computed in SQL as the popcount of the XOR of both hashes.
func (s *AssetStore) FindByPerceptualHash(ctx context.Context, q Querier, scope database.Scope, exclude uuid.UUID, phash int64, maxDistance int) (uuid.UUID, bool, error) {
	query := `
		SELECT a.id
		FROM assets a
		JOIN asset_fingerprints f ON f.asset_id = a.id
		WHERE a.owner_id = $1 AND a.collection_id = $2 AND a.id <> $3
		  AND bit_count((f.phash # $4)::bit(64)) <= $5
		ORDER BY bit_count((f.phash # $4)::bit(64)), a.created_at, a.id
		LIMIT 1
	`
	return scanMatch(q.QueryRowContext(ctx, query, scope.OwnerID, scope.CollectionID, exclude, phash, maxDistance))
}

// FindByEmbedding returns the asset in scope whose embedding is most similar
// to the candidate's, if its cosine similarity reaches minSimilarity.
// Rows without an embedding are never matched.
func (s *AssetStore) FindByEmbedding(ctx context.Context, q Querier, scope database.Scope, exclude uuid.UUID, embedding []float32, minSimilarity float64) (uuid.UUID, bool, error) {
	query := `
		SELECT a.id
		FROM assets a
		JOIN asset_fingerprints f ON f.asset_id = a.id
		WHERE a.owner_id = $1 AND a.collection_id = $2 AND a.id <> $3
		  AND f.embedding IS NOT NULL
		  AND 1 - (f.embedding <=> $4) >= $5
		ORDER BY f.embedding <=> $4, a.created_at, a.id
		LIMIT 1
	`
	vec := pgvector.NewVector(embedding)
	return scanMatch(q.QueryRowContext(ctx, query, scope.OwnerID, scope.CollectionID, exclude, vec, minSimilarity))
}

// scanMatch converts a single-id row into (id, found, err).
func scanMatch(row *sql.Row) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("query duplicate candidate: %w", err)
	}
	return id, true, nil
}
