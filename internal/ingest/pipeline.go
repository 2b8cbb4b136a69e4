package ingest

import (
	"context"
	"fmt"
	"image"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/diogotoporcov/Finder2/internal/config"
	"github.com/diogotoporcov/Finder2/internal/database"
	"github.com/diogotoporcov/Finder2/internal/database/postgres"
	"github.com/diogotoporcov/Finder2/internal/fingerprint"
)

// CommitHook observes every committed asset, e.g. to keep the in-memory
// similarity index in step with the store.
type CommitHook func(ownerID, assetID uuid.UUID, embedding []float32)

// Pipeline ingests one batch of files per call: validate, decode, probe the
// embedder, fingerprint, resolve duplicates inside a staging transaction and
// commit across both substrates. One logical pipeline serves concurrent
// requests; each call gets its own transaction while the embedding client
// and I/O gate are shared process-wide.
type Pipeline struct {
	pool     *postgres.Pool
	store    *postgres.AssetStore
	blobs    BlobWriter
	embedder *fingerprint.EmbeddingClient
	engine   *fingerprint.Engine
	gate     *semaphore.Weighted

	upload        config.UploadConfig
	similarity    config.SimilarityConfig
	allowDegraded bool

	onCommit CommitHook
	log      zerolog.Logger
}

// NewPipeline wires an ingestion pipeline. gate is the process-wide I/O
// semaphore shared with the blob store and the fingerprint engine.
func NewPipeline(
	cfg *config.Config,
	pool *postgres.Pool,
	store *postgres.AssetStore,
	blobs BlobWriter,
	embedder *fingerprint.EmbeddingClient,
	gate *semaphore.Weighted,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		pool:          pool,
		store:         store,
		blobs:         blobs,
		embedder:      embedder,
		engine:        fingerprint.NewEngine(embedder, gate),
		gate:          gate,
		upload:        cfg.Upload,
		similarity:    cfg.Similarity,
		allowDegraded: cfg.Embedding.AllowDegraded,
		log:           logger,
	}
}

// OnCommit registers a hook called once per committed asset.
func (p *Pipeline) OnCommit(hook CommitHook) {
	p.onCommit = hook
}

// Ingest runs one batch through the pipeline. detectDuplicates gates the
// resolution step; fingerprints are computed and stored either way. The
// returned Result is valid whenever err is nil or ErrAllDuplicates.
func (p *Pipeline) Ingest(ctx context.Context, scope database.Scope, files []File, detectDuplicates bool) (*Result, error) {
	if err := p.validate(files); err != nil {
		return nil, err
	}

	// One readiness probe per batch, before any decode or hashing. Degraded
	// runs (no embedding tier) must be opted into explicitly because they
	// change the duplicate false-negative rate.
	withEmbeddings := p.embedder.Ready(ctx)
	if !withEmbeddings && !p.allowDegraded {
		return nil, ErrEmbedderUnavailable
	}

	images, err := p.decodeAll(ctx, files)
	if err != nil {
		return nil, err
	}

	contents := make([][]byte, len(files))
	for i := range files {
		contents[i] = files[i].Data
	}
	fingerprints, err := p.engine.ComputeBatch(ctx, contents, images, withEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting batch: %w", err)
	}

	tx, err := Begin(ctx, p.pool, p.store, p.blobs, scope)
	if err != nil {
		return nil, fmt.Errorf("opening staging transaction: %w", err)
	}
	defer tx.Rollback()

	resolver := NewResolver(tx.Index(), p.similarity.PHashTolerance, p.similarity.EmbeddingThreshold)

	result := &Result{
		Items:      make([]ItemOutcome, 0, len(files)),
		Duplicates: make(map[uuid.UUID]uuid.UUID),
	}

	// Items are staged and resolved in input order, so the first of a set of
	// identical files stays staged and its later twins resolve against it.
	for i := range files {
		id, err := tx.Stage(ctx, files[i], &fingerprints[i])
		if err != nil {
			return nil, err
		}

		if !detectDuplicates {
			result.Items = append(result.Items, ItemOutcome{
				Filename: files[i].Filename,
				AssetID:  id,
				Status:   ItemAccepted,
			})
			continue
		}

		match, err := resolver.Resolve(ctx, scope, id, &fingerprints[i])
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", files[i].Filename, err)
		}

		if match.Kind == MatchNone {
			result.Items = append(result.Items, ItemOutcome{
				Filename: files[i].Filename,
				AssetID:  id,
				Status:   ItemAccepted,
			})
			continue
		}

		if err := tx.Unstage(ctx, id); err != nil {
			return nil, err
		}
		result.Duplicates[id] = match.AssetID
		result.Items = append(result.Items, ItemOutcome{
			Filename:    files[i].Filename,
			AssetID:     id,
			Status:      ItemDuplicate,
			MatchedBy:   match.Kind.String(),
			DuplicateOf: match.AssetID,
		})
	}

	if len(tx.Staged()) == 0 {
		tx.Rollback()
		p.log.Info().
			Int("batch_size", len(files)).
			Int("duplicates", len(result.Duplicates)).
			Msg("batch fully rejected as duplicates")
		return result, ErrAllDuplicates
	}

	if err := tx.Commit(ctx); err != nil {
		p.log.Error().Err(err).Int("batch_size", len(files)).Msg("batch commit failed")
		return nil, fmt.Errorf("committing batch: %w", err)
	}

	// Items are appended in input order, so result.Items[i] pairs with
	// files[i] and fingerprints[i].
	for i, item := range result.Items {
		if item.Status != ItemAccepted {
			continue
		}
		result.Accepted = append(result.Accepted, item.AssetID)
		if p.onCommit != nil {
			p.onCommit(scope.OwnerID, item.AssetID, fingerprints[i].Embedding)
		}
	}

	p.log.Info().
		Int("batch_size", len(files)).
		Int("accepted", len(result.Accepted)).
		Int("duplicates", len(result.Duplicates)).
		Bool("embedding_tier", withEmbeddings).
		Msg("batch ingested")

	return result, nil
}

// validate applies the pre-I/O checks: batch bounds, declared media types and
// per-file byte limits.
func (p *Pipeline) validate(files []File) error {
	if len(files) == 0 {
		return ErrEmptyBatch
	}
	if len(files) > p.upload.MaxBatchFiles {
		return fmt.Errorf("%w: %d files, limit %d", ErrTooManyFiles, len(files), p.upload.MaxBatchFiles)
	}
	for i := range files {
		if !p.upload.MediaTypeAllowed(files[i].MediaType) {
			return fmt.Errorf("%w: %s (%s)", ErrMediaTypeNotAllowed, files[i].MediaType, files[i].Filename)
		}
		if int64(len(files[i].Data)) > p.upload.MaxFileBytes {
			return fmt.Errorf("%w: %s", ErrFileTooLarge, files[i].Filename)
		}
	}
	return nil
}

// decodeAll decodes every file up front so a corrupt image fails the batch
// before any fingerprinting. Decodes fan out through the I/O gate and results
// are collected positionally.
func (p *Pipeline) decodeAll(ctx context.Context, files []File) ([]image.Image, error) {
	images := make([]image.Image, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i := range files {
		g.Go(func() error {
			if err := p.gate.Acquire(gctx, 1); err != nil {
				return err
			}
			defer p.gate.Release(1)

			img, err := fingerprint.Decode(files[i].Data)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrUndecodable, files[i].Filename, err)
			}
			images[i] = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}
