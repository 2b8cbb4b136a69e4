package fingerprint

import (
	"context"
	"fmt"
	"image"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Engine computes complete fingerprints for a decoded batch. Hashing and
// preprocessing are CPU work fanned out across cores; the single remote
// embedding call goes through the shared I/O gate.
type Engine struct {
	embedder *EmbeddingClient
	gate     *semaphore.Weighted
	hashSize int
}

// NewEngine creates a fingerprint engine. The gate bounds concurrent I/O
// across the whole process and must be shared with the blob store.
func NewEngine(embedder *EmbeddingClient, gate *semaphore.Weighted) *Engine {
	return &Engine{
		embedder: embedder,
		gate:     gate,
		hashSize: DefaultHashSize,
	}
}

// ComputeBatch computes content hash, perceptual hash and (when withEmbeddings
// is set) the semantic embedding for every item. contents and images must be
// parallel slices; results keep input order regardless of completion order.
// Either every item gets all requested signals or the whole batch fails;
// partial fingerprints are never returned.
func (e *Engine) ComputeBatch(ctx context.Context, contents [][]byte, images []image.Image, withEmbeddings bool) ([]Fingerprint, error) {
	if len(contents) != len(images) {
		return nil, fmt.Errorf("content/image count mismatch: %d vs %d", len(contents), len(images))
	}
	if len(contents) == 0 {
		return nil, nil
	}

	fingerprints := make([]Fingerprint, len(contents))

	var tensors [][]float32
	if withEmbeddings {
		tensors = make([][]float32, len(contents))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i := range contents {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fingerprints[i].SHA256 = ContentHash(contents[i])
			fingerprints[i].PHash = PerceptualHash(images[i], e.hashSize)
			if withEmbeddings {
				tensors[i] = Preprocess(images[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("computing hashes: %w", err)
	}

	if !withEmbeddings {
		return fingerprints, nil
	}

	if err := e.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring I/O slot: %w", err)
	}
	embeddings, err := e.embedder.EmbedBatch(ctx, tensors)
	e.gate.Release(1)
	if err != nil {
		return nil, fmt.Errorf("computing embeddings: %w", err)
	}

	for i := range fingerprints {
		fingerprints[i].Embedding = embeddings[i]
	}

	return fingerprints, nil
}
