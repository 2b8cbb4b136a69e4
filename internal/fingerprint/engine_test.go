package fingerprint

import (
	"context"
	"image"
	"testing"

	"golang.org/x/sync/semaphore"
)

func TestComputeBatchPositional(t *testing.T) {
	server := embedServer(t, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	})
	defer server.Close()

	gate := semaphore.NewWeighted(4)
	engine := NewEngine(NewEmbeddingClient(server.URL, 4), gate)

	imgA := createGradientImage(64, 64)
	imgB := createCheckerboardImage(64, 64)
	contents := [][]byte{[]byte("first image bytes"), []byte("second image bytes")}
	images := []image.Image{imgA, imgB}

	fingerprints, err := engine.ComputeBatch(context.Background(), contents, images, true)
	if err != nil {
		t.Fatalf("ComputeBatch failed: %v", err)
	}
	if len(fingerprints) != 2 {
		t.Fatalf("got %d fingerprints; want 2", len(fingerprints))
	}

	// Results must line up with inputs regardless of goroutine scheduling.
	if fingerprints[0].SHA256 != ContentHash(contents[0]) {
		t.Error("fingerprint 0 carries the wrong content hash")
	}
	if fingerprints[1].SHA256 != ContentHash(contents[1]) {
		t.Error("fingerprint 1 carries the wrong content hash")
	}
	if fingerprints[0].PHash != PerceptualHash(imgA, DefaultHashSize) {
		t.Error("fingerprint 0 carries the wrong perceptual hash")
	}
	if fingerprints[1].PHash != PerceptualHash(imgB, DefaultHashSize) {
		t.Error("fingerprint 1 carries the wrong perceptual hash")
	}
	if fingerprints[0].Embedding[0] < 0.999 || fingerprints[1].Embedding[1] < 0.999 {
		t.Errorf("embeddings assigned out of order: %v, %v",
			fingerprints[0].Embedding, fingerprints[1].Embedding)
	}
}

func TestComputeBatchWithoutEmbeddings(t *testing.T) {
	gate := semaphore.NewWeighted(4)
	// No server: the embedding endpoint must not be contacted.
	engine := NewEngine(NewEmbeddingClient("http://localhost:1", 4), gate)

	contents := [][]byte{[]byte("payload")}
	images := []image.Image{createGradientImage(32, 32)}

	fingerprints, err := engine.ComputeBatch(context.Background(), contents, images, false)
	if err != nil {
		t.Fatalf("ComputeBatch failed: %v", err)
	}
	if fingerprints[0].HasEmbedding() {
		t.Error("embedding should be absent when the tier is disabled")
	}
	if fingerprints[0].SHA256 == "" || fingerprints[0].PHash == 0 {
		t.Error("hashes should still be computed without the embedding tier")
	}
}

func TestComputeBatchLengthMismatch(t *testing.T) {
	gate := semaphore.NewWeighted(4)
	engine := NewEngine(NewEmbeddingClient("http://localhost:1", 4), gate)

	_, err := engine.ComputeBatch(context.Background(), [][]byte{[]byte("x")}, nil, false)
	if err == nil {
		t.Error("ComputeBatch should reject mismatched input slices")
	}
}
