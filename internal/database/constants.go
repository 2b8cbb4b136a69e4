package database

// EmbeddingDim is the fixed dimension of stored embeddings. It is enforced by
// the vector(512) column type, so it is constant store-wide.
const EmbeddingDim = 512

// HNSW index parameters for the in-memory similarity index.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size for the Postgres index.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier requests extra candidates from the index so enough
	// survive owner-scope filtering.
	HNSWSearchMultiplier = 3
)
