package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/diogotoporcov/Finder2/internal/database"
	"github.com/diogotoporcov/Finder2/internal/fingerprint"
)

// FingerprintIndex answers the three tier queries within a duplicate scope.
// The production implementation runs against the open staging transaction so
// same-batch siblings are visible; tests substitute an in-memory index.
type FingerprintIndex interface {
	FindByContentHash(ctx context.Context, scope database.Scope, exclude uuid.UUID, sha256 string) (uuid.UUID, bool, error)
	FindByPerceptualHash(ctx context.Context, scope database.Scope, exclude uuid.UUID, phash int64, maxDistance int) (uuid.UUID, bool, error)
	FindByEmbedding(ctx context.Context, scope database.Scope, exclude uuid.UUID, embedding []float32, minSimilarity float64) (uuid.UUID, bool, error)
}

// Resolver makes the tiered duplicate decision for one candidate at a time.
// Tiers run strictly in order and the first hit short-circuits the rest:
// byte-exact content hash, then perceptual hash within the configured bit
// tolerance, then embedding cosine similarity at or above the threshold.
type Resolver struct {
	index              FingerprintIndex
	phashTolerance     int
	embeddingThreshold float64
}

// NewResolver creates a resolver over the given index.
func NewResolver(index FingerprintIndex, phashTolerance int, embeddingThreshold float64) *Resolver {
	return &Resolver{
		index:              index,
		phashTolerance:     phashTolerance,
		embeddingThreshold: embeddingThreshold,
	}
}

// Resolve decides whether the candidate duplicates an asset already visible
// in scope. The candidate's own staged row is excluded, so an unchanged novel
// fingerprint resolves novel again on re-check. A candidate without an
// embedding skips the embedding tier; the pipeline only permits that when
// degraded checking is explicitly enabled.
func (r *Resolver) Resolve(ctx context.Context, scope database.Scope, candidate uuid.UUID, fp *fingerprint.Fingerprint) (Match, error) {
	if id, found, err := r.index.FindByContentHash(ctx, scope, candidate, fp.SHA256); err != nil {
		return Match{}, fmt.Errorf("content hash tier: %w", err)
	} else if found {
		return Match{Kind: MatchExact, AssetID: id}, nil
	}

	if id, found, err := r.index.FindByPerceptualHash(ctx, scope, candidate, fp.PHash, r.phashTolerance); err != nil {
		return Match{}, fmt.Errorf("perceptual tier: %w", err)
	} else if found {
		return Match{Kind: MatchPerceptual, AssetID: id}, nil
	}

	if fp.HasEmbedding() {
		if id, found, err := r.index.FindByEmbedding(ctx, scope, candidate, fp.Embedding, r.embeddingThreshold); err != nil {
			return Match{}, fmt.Errorf("embedding tier: %w", err)
		} else if found {
			return Match{Kind: MatchEmbedding, AssetID: id}, nil
		}
	}

	return Match{Kind: MatchNone}, nil
}
