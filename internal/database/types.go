package database

import (
	"time"

	"github.com/google/uuid"
)

// Scope bounds every duplicate search to one owner's collection.
// Searches never cross owners or collections.
type Scope struct {
	OwnerID      uuid.UUID
	CollectionID uuid.UUID
}

// Asset is one stored image owned by an account within a collection.
type Asset struct {
	ID               uuid.UUID
	OwnerID          uuid.UUID
	CollectionID     uuid.UUID
	StoredFilename   string
	OriginalFilename string
	MimeType         string
	SizeBytes        int64
	Tags             []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StoredFingerprint is the 1:1 fingerprint row for an asset. Embedding is nil
// when the row was written with the embedding tier disabled.
type StoredFingerprint struct {
	AssetID   uuid.UUID
	SHA256    string
	PHash     int64
	Embedding []float32
	CreatedAt time.Time
}

// Collection groups assets under an owner. Collection CRUD lives outside this
// service; only resolution (default lookup, ownership check) happens here.
type Collection struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Name      string
	Tags      []string
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is the owning account, read-only from this service's point of view.
type User struct {
	ID        uuid.UUID
	Email     string
	CreatedAt time.Time
}

// StoredEmbedding is one embedding loaded for the in-memory similarity index.
type StoredEmbedding struct {
	AssetID   uuid.UUID
	OwnerID   uuid.UUID
	Embedding []float32
}

// SimilarAsset is one similarity search hit.
type SimilarAsset struct {
	AssetID    uuid.UUID `json:"asset_id"`
	Similarity float64   `json:"similarity"`
}
