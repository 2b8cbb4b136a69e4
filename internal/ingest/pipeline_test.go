package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/diogotoporcov/Finder2/internal/config"
	"github.com/diogotoporcov/Finder2/internal/database/postgres"
	"github.com/diogotoporcov/Finder2/internal/fingerprint"
)

// testPipeline builds a pipeline suitable for exercising the validation and
// probing stages. The embedding server is unreachable; allowDegraded controls
// whether that rejects batches or skips the embedding tier.
func testPipeline(allowDegraded bool) *Pipeline {
	cfg := &config.Config{
		Embedding: config.EmbeddingConfig{
			URL:           "http://localhost:1",
			Dim:           4,
			AllowDegraded: allowDegraded,
		},
		Storage: config.StorageConfig{MaxConcurrentIO: 4},
		Upload: config.UploadConfig{
			MaxFileBytes:      1024,
			MaxBatchFiles:     2,
			AllowedMediaTypes: []string{"image/jpeg", "image/png"},
		},
		Similarity: config.SimilarityConfig{PHashTolerance: 5, EmbeddingThreshold: 0.9},
	}

	gate := semaphore.NewWeighted(cfg.Storage.MaxConcurrentIO)
	embedder := fingerprint.NewEmbeddingClient(cfg.Embedding.URL, cfg.Embedding.Dim)
	return NewPipeline(cfg, nil, postgres.NewAssetStore(), nil, embedder, gate, zerolog.Nop())
}

func TestIngestEmptyBatch(t *testing.T) {
	p := testPipeline(true)

	_, err := p.Ingest(context.Background(), testScope(), nil, true)
	if !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("err = %v; want ErrEmptyBatch", err)
	}
}

func TestIngestTooManyFiles(t *testing.T) {
	p := testPipeline(true)

	files := []File{
		{Filename: "a.jpg", MediaType: "image/jpeg", Data: []byte("a")},
		{Filename: "b.jpg", MediaType: "image/jpeg", Data: []byte("b")},
		{Filename: "c.jpg", MediaType: "image/jpeg", Data: []byte("c")},
	}
	_, err := p.Ingest(context.Background(), testScope(), files, true)
	if !errors.Is(err, ErrTooManyFiles) {
		t.Errorf("err = %v; want ErrTooManyFiles", err)
	}
}

func TestIngestRejectsMediaType(t *testing.T) {
	p := testPipeline(true)

	files := []File{
		{Filename: "a.jpg", MediaType: "image/jpeg", Data: []byte("a")},
		{Filename: "doc.pdf", MediaType: "application/pdf", Data: []byte("b")},
	}
	_, err := p.Ingest(context.Background(), testScope(), files, true)
	if !errors.Is(err, ErrMediaTypeNotAllowed) {
		t.Errorf("err = %v; want ErrMediaTypeNotAllowed", err)
	}
}

func TestIngestRejectsOversizeFile(t *testing.T) {
	p := testPipeline(true)

	files := []File{
		{Filename: "big.jpg", MediaType: "image/jpeg", Data: make([]byte, 2048)},
	}
	_, err := p.Ingest(context.Background(), testScope(), files, true)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("err = %v; want ErrFileTooLarge", err)
	}
}

func TestIngestEmbedderDownRejectsBatch(t *testing.T) {
	p := testPipeline(false)

	files := []File{
		{Filename: "a.jpg", MediaType: "image/jpeg", Data: []byte("a")},
	}
	_, err := p.Ingest(context.Background(), testScope(), files, true)
	if !errors.Is(err, ErrEmbedderUnavailable) {
		t.Errorf("err = %v; want ErrEmbedderUnavailable", err)
	}
}

func TestIngestUndecodableFailsWholeBatch(t *testing.T) {
	p := testPipeline(true)

	files := []File{
		{Filename: "junk.jpg", MediaType: "image/jpeg", Data: []byte("not an image at all")},
	}
	_, err := p.Ingest(context.Background(), testScope(), files, true)
	if !errors.Is(err, ErrUndecodable) {
		t.Errorf("err = %v; want ErrUndecodable", err)
	}
}

func TestMatchKindString(t *testing.T) {
	tests := []struct {
		kind MatchKind
		want string
	}{
		{MatchNone, "none"},
		{MatchExact, "exact"},
		{MatchPerceptual, "perceptual"},
		{MatchEmbedding, "embedding"},
	}
	for _, tc := range tests {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("MatchKind(%d).String() = %q; want %q", tc.kind, got, tc.want)
		}
	}
}
