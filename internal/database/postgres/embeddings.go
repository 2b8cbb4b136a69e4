package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/diogotoporcov/Finder2/internal/database"
)

// EmbeddingRepository serves the similar-image search with an optional
// in-memory HNSW index over committed embeddings, falling back to pgvector
// queries when the index is disabled.
type EmbeddingRepository struct {
	pool        *Pool
	hnswIndex   *database.HNSWEmbeddingIndex
	hnswEnabled bool
	hnswMu      sync.RWMutex
}

// NewEmbeddingRepository creates a new embedding repository.
func NewEmbeddingRepository(pool *Pool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

// ListEmbeddings loads every committed embedding, used to build the index.
func (r *EmbeddingRepository) ListEmbeddings(ctx context.Context) ([]database.StoredEmbedding, error) {
	query := `
		SELECT f.asset_id, a.owner_id, f.embedding
		FROM asset_fingerprints f
		JOIN assets a ON a.id = f.asset_id
		WHERE f.embedding IS NOT NULL
	`

	rows, err := r.pool.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []database.StoredEmbedding
	for rows.Next() {
		var emb database.StoredEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&emb.AssetID, &emb.OwnerID, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		emb.Embedding = vec.Slice()
		embeddings = append(embeddings, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}

	return embeddings, nil
}

// EnableHNSW builds the in-memory index from committed embeddings.
func (r *EmbeddingRepository) EnableHNSW(ctx context.Context) error {
	embeddings, err := r.ListEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("load embeddings for HNSW index: %w", err)
	}

	index := database.NewHNSWEmbeddingIndex()
	if err := index.Build(embeddings); err != nil {
		return fmt.Errorf("build HNSW index: %w", err)
	}

	r.hnswMu.Lock()
	r.hnswIndex = index
	r.hnswEnabled = true
	r.hnswMu.Unlock()
	return nil
}

// HNSWCount returns the number of embeddings in the in-memory index.
func (r *EmbeddingRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Len()
}

// NotifyCommitted keeps the in-memory index in step with newly committed
// assets. A no-op when the index is disabled.
func (r *EmbeddingRepository) NotifyCommitted(ownerID uuid.UUID, assetID uuid.UUID, embedding []float32) {
	r.hnswMu.RLock()
	index := r.hnswIndex
	enabled := r.hnswEnabled
	r.hnswMu.RUnlock()

	if !enabled || index == nil || len(embedding) == 0 {
		return
	}
	index.Add(database.StoredEmbedding{AssetID: assetID, OwnerID: ownerID, Embedding: embedding})
}

// NotifyDeleted removes a deleted asset from the in-memory index.
func (r *EmbeddingRepository) NotifyDeleted(assetID uuid.UUID) {
	r.hnswMu.RLock()
	index := r.hnswIndex
	enabled := r.hnswEnabled
	r.hnswMu.RUnlock()

	if !enabled || index == nil {
		return
	}
	index.Remove(assetID)
}

// FindSimilar returns the owner's top-k most similar assets, best first.
// Uses the in-memory HNSW index when enabled, otherwise pgvector.
func (r *EmbeddingRepository) FindSimilar(ctx context.Context, ownerID uuid.UUID, embedding []float32, limit int) ([]database.SimilarAsset, error) {
	r.hnswMu.RLock()
	index := r.hnswIndex
	enabled := r.hnswEnabled && index != nil
	r.hnswMu.RUnlock()

	if enabled {
		return index.Search(ownerID, embedding, limit)
	}
	return r.findSimilarPostgres(ctx, ownerID, embedding, limit)
}

// findSimilarPostgres searches with the pgvector HNSW index, raising
// ef_search for better recall.
func (r *EmbeddingRepository) findSimilarPostgres(ctx context.Context, ownerID uuid.UUID, embedding []float32, limit int) ([]database.SimilarAsset, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	query := `
		SELECT f.asset_id, 1 - (f.embedding <=> $1) AS similarity
		FROM asset_fingerprints f
		JOIN assets a ON a.id = f.asset_id
		WHERE a.owner_id = $2 AND f.embedding IS NOT NULL
		ORDER BY f.embedding <=> $1
		LIMIT $3
	`

	vec := pgvector.NewVector(embedding)
	rows, err := tx.QueryContext(ctx, query, vec, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query similar embeddings: %w", err)
	}
	defer rows.Close()

	var results []database.SimilarAsset
	for rows.Next() {
		var hit database.SimilarAsset
		if err := rows.Scan(&hit.AssetID, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("scan similar embedding: %w", err)
		}
		results = append(results, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar embeddings: %w", err)
	}

	return results, nil
}
