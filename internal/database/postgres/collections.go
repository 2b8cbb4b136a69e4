package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/diogotoporcov/Finder2/internal/database"
)

// ErrCollectionNotFound is returned when a collection does not exist or
// belongs to a different owner.
var ErrCollectionNotFound = errors.New("collection not found")

// CollectionStore resolves collections for the ingestion scope. Collection
// CRUD happens outside this service.
type CollectionStore struct {
	pool *Pool
}

// NewCollectionStore creates a collection store.
func NewCollectionStore(pool *Pool) *CollectionStore {
	return &CollectionStore{pool: pool}
}

const collectionColumns = "id, owner_id, name, tags, is_default, created_at, updated_at"

func scanCollection(row *sql.Row) (*database.Collection, error) {
	var c database.Collection
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, pq.Array(&c.Tags), &c.IsDefault, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCollectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	return &c, nil
}

// Get returns an owner's collection by id.
func (s *CollectionStore) Get(ctx context.Context, ownerID, id uuid.UUID) (*database.Collection, error) {
	query := "SELECT " + collectionColumns + " FROM collections WHERE id = $1 AND owner_id = $2"
	return scanCollection(s.pool.QueryRowContext(ctx, query, id, ownerID))
}

// GetDefault returns the owner's default collection.
func (s *CollectionStore) GetDefault(ctx context.Context, ownerID uuid.UUID) (*database.Collection, error) {
	query := "SELECT " + collectionColumns + " FROM collections WHERE owner_id = $1 AND is_default"
	return scanCollection(s.pool.QueryRowContext(ctx, query, ownerID))
}
