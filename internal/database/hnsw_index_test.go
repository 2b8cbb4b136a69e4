package database

import (
	"math"
	"testing"

	"github.com/google/uuid"
)

func unit(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func TestHNSWIndexBuildAndSearch(t *testing.T) {
	owner := uuid.New()
	target := uuid.New()

	index := NewHNSWEmbeddingIndex()
	err := index.Build([]StoredEmbedding{
		{AssetID: target, OwnerID: owner, Embedding: unit(8, 0)},
		{AssetID: uuid.New(), OwnerID: owner, Embedding: unit(8, 1)},
		{AssetID: uuid.New(), OwnerID: owner, Embedding: unit(8, 2)},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if index.Len() != 3 {
		t.Fatalf("Len = %d; want 3", index.Len())
	}

	results, err := index.Search(owner, unit(8, 0), 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results; want 1", len(results))
	}
	if results[0].AssetID != target {
		t.Errorf("top hit = %s; want %s", results[0].AssetID, target)
	}
	if math.Abs(results[0].Similarity-1.0) > 0.001 {
		t.Errorf("top hit similarity = %f; want ~1.0", results[0].Similarity)
	}
}

func TestHNSWIndexOwnerFiltering(t *testing.T) {
	ownerA := uuid.New()
	ownerB := uuid.New()

	index := NewHNSWEmbeddingIndex()
	err := index.Build([]StoredEmbedding{
		{AssetID: uuid.New(), OwnerID: ownerA, Embedding: unit(8, 0)},
		{AssetID: uuid.New(), OwnerID: ownerB, Embedding: unit(8, 0)},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	results, err := index.Search(ownerA, unit(8, 0), 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, hit := range results {
		emb := index.idToEmb[hit.AssetID.String()]
		if emb.OwnerID != ownerA {
			t.Errorf("hit %s belongs to another owner", hit.AssetID)
		}
	}
	if len(results) != 1 {
		t.Errorf("got %d results; want only owner A's asset", len(results))
	}
}

func TestHNSWIndexAddAndRemove(t *testing.T) {
	owner := uuid.New()
	assetID := uuid.New()

	index := NewHNSWEmbeddingIndex()
	index.Add(StoredEmbedding{AssetID: assetID, OwnerID: owner, Embedding: unit(8, 0)})

	if index.Len() != 1 {
		t.Fatalf("Len after Add = %d; want 1", index.Len())
	}

	results, err := index.Search(owner, unit(8, 0), 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].AssetID != assetID {
		t.Fatalf("Search after Add = %v; want the added asset", results)
	}

	index.Remove(assetID)
	if index.Len() != 0 {
		t.Errorf("Len after Remove = %d; want 0", index.Len())
	}
}

func TestHNSWIndexSearchUninitialized(t *testing.T) {
	index := NewHNSWEmbeddingIndex()

	if _, err := index.Search(uuid.New(), unit(8, 0), 1); err == nil {
		t.Error("Search on an empty index should fail")
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
		delta    float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 0.0, 0.001},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2.0, 0.001},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1.0, 0.001},
		{"length mismatch", []float32{1}, []float32{1, 0}, 2.0, 0.001},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 2.0, 0.001},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineDistance(tc.a, tc.b)
			if math.Abs(got-tc.expected) > tc.delta {
				t.Errorf("CosineDistance(%v, %v) = %f; want %f", tc.a, tc.b, got, tc.expected)
			}
		})
	}
}
