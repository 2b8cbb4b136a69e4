package database

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/uuid"
)

// HNSWEmbeddingIndex wraps an in-memory HNSW graph over stored embeddings for
// fast similar-image search. The graph is keyed by asset UUID string; owner
// scoping happens at query time by over-fetching and filtering.
type HNSWEmbeddingIndex struct {
	graph   *hnsw.Graph[string]
	idToEmb map[string]*StoredEmbedding
	mu      sync.RWMutex
}

// NewHNSWEmbeddingIndex creates a new empty index.
func NewHNSWEmbeddingIndex() *HNSWEmbeddingIndex {
	return &HNSWEmbeddingIndex{
		idToEmb: make(map[string]*StoredEmbedding),
	}
}

// Build replaces the index contents with the given embeddings.
func (h *HNSWEmbeddingIndex) Build(embeddings []StoredEmbedding) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(embeddings) == 0 {
		h.graph = nil
		h.idToEmb = make(map[string]*StoredEmbedding)
		return nil
	}

	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance

	h.idToEmb = make(map[string]*StoredEmbedding, len(embeddings))

	for i := range embeddings {
		emb := &embeddings[i]
		if len(emb.Embedding) == 0 {
			continue
		}
		key := emb.AssetID.String()
		g.Add(hnsw.MakeNode(key, emb.Embedding))
		h.idToEmb[key] = emb
	}

	h.graph = g
	return nil
}

// Add inserts or replaces one embedding without rebuilding the whole graph.
func (h *HNSWEmbeddingIndex) Add(emb StoredEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		g := hnsw.NewGraph[string]()
		g.M = HNSWMaxNeighbors
		g.Ml = 1.0 / float64(HNSWMaxNeighbors)
		g.Distance = hnsw.CosineDistance
		h.graph = g
	}

	key := emb.AssetID.String()
	h.graph.Add(hnsw.MakeNode(key, emb.Embedding))
	h.idToEmb[key] = &emb
}

// Remove drops one asset from the index.
func (h *HNSWEmbeddingIndex) Remove(assetID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := assetID.String()
	if h.graph != nil {
		h.graph.Delete(key)
	}
	delete(h.idToEmb, key)
}

// Len returns the number of indexed embeddings.
func (h *HNSWEmbeddingIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToEmb)
}

// Search returns up to k hits for the given owner, best first. The underlying
// graph is searched with a multiplier so owner filtering still yields k hits
// in the common case.
func (h *HNSWEmbeddingIndex) Search(ownerID uuid.UUID, query []float32, k int) ([]SimilarAsset, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, k*HNSWSearchMultiplier)

	results := make([]SimilarAsset, 0, k)
	for _, n := range neighbors {
		emb, ok := h.idToEmb[n.Key]
		if !ok || emb.OwnerID != ownerID {
			continue
		}
		results = append(results, SimilarAsset{
			AssetID:    emb.AssetID,
			Similarity: 1 - CosineDistance(query, emb.Embedding),
		})
		if len(results) == k {
			break
		}
	}

	return results, nil
}
