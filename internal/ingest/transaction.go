package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/diogotoporcov/Finder2/internal/database"
	"github.com/diogotoporcov/Finder2/internal/database/postgres"
	"github.com/diogotoporcov/Finder2/internal/fingerprint"
)

// BlobWriter is what the transaction needs from blob storage. Delete must be
// idempotent; it is the compensating action of the rollback path.
type BlobWriter interface {
	Write(ctx context.Context, scope database.Scope, storedFilename string, data []byte) error
	Delete(ctx context.Context, scope database.Scope, storedFilename string) error
}

// Transaction coordinates one batch across the two storage substrates.
// Asset and fingerprint rows are staged into a single open Postgres
// transaction, blobs are written only after duplicate resolution, and the
// relational commit happens last. There is no native two-phase commit across
// Postgres and the filesystem, so every failure past staging compensates:
// rollback the transaction and delete whatever blobs were written.
//
// Invariant on success: every committed asset row has its blob durably on
// disk, and no blob exists without its row.
type Transaction struct {
	tx     *sql.Tx
	store  *postgres.AssetStore
	blobs  BlobWriter
	scope  database.Scope
	staged []*stagedItem
	closed bool
}

type stagedItem struct {
	asset database.Asset
	data  []byte
}

// Begin opens the staging transaction for one batch. The transaction is
// exclusive to the batch; concurrent batches each get their own.
func Begin(ctx context.Context, pool *postgres.Pool, store *postgres.AssetStore, blobs BlobWriter, scope database.Scope) (*Transaction, error) {
	tx, err := pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Transaction{
		tx:    tx,
		store: store,
		blobs: blobs,
		scope: scope,
	}, nil
}

// Index returns a FingerprintIndex bound to the open transaction, so
// duplicate queries see rows staged for this batch alongside committed ones.
func (t *Transaction) Index() FingerprintIndex {
	return &txIndex{store: t.store, q: t.tx}
}

// Stage inserts the asset and fingerprint rows for one file into the open
// transaction and returns the generated asset identity. The stored filename
// derives from that identity plus the original extension; user input never
// reaches the blob path.
func (t *Transaction) Stage(ctx context.Context, file File, fp *fingerprint.Fingerprint) (uuid.UUID, error) {
	id := uuid.New()

	asset := database.Asset{
		ID:               id,
		OwnerID:          t.scope.OwnerID,
		CollectionID:     t.scope.CollectionID,
		StoredFilename:   id.String() + storedExtension(file.Filename),
		OriginalFilename: file.Filename,
		MimeType:         file.MediaType,
		SizeBytes:        int64(len(file.Data)),
		Tags:             []string{},
	}

	if err := t.store.InsertAsset(ctx, t.tx, &asset); err != nil {
		return uuid.Nil, fmt.Errorf("staging asset %q: %w", file.Filename, err)
	}

	row := database.StoredFingerprint{
		AssetID:   id,
		SHA256:    fp.SHA256,
		PHash:     fp.PHash,
		Embedding: fp.Embedding,
	}
	if err := t.store.InsertFingerprint(ctx, t.tx, &row); err != nil {
		return uuid.Nil, fmt.Errorf("staging fingerprint for %q: %w", file.Filename, err)
	}

	t.staged = append(t.staged, &stagedItem{asset: asset, data: file.Data})
	return id, nil
}

// Unstage removes a staged candidate's rows from the pending transaction,
// used when duplicate resolution rejects it. No blob exists yet at this
// point, so only the relational side needs undoing.
func (t *Transaction) Unstage(ctx context.Context, id uuid.UUID) error {
	if err := t.store.DeleteAsset(ctx, t.tx, id); err != nil {
		return fmt.Errorf("unstaging asset: %w", err)
	}
	for i, item := range t.staged {
		if item.asset.ID == id {
			t.staged = append(t.staged[:i], t.staged[i+1:]...)
			break
		}
	}
	return nil
}

// Staged returns the assets still staged for commit, in staging order.
func (t *Transaction) Staged() []database.Asset {
	assets := make([]database.Asset, len(t.staged))
	for i, item := range t.staged {
		assets[i] = item.asset
	}
	return assets
}

// Commit writes blobs for the surviving items and then commits the relational
// transaction. Blob writes fan out concurrently through the store's I/O gate.
// Any blob failure rolls back the transaction and deletes the blobs already
// written; a relational commit failure deletes every written blob.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.closed {
		return nil
	}
	t.closed = true

	var (
		mu      sync.Mutex
		written []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, item := range t.staged {
		g.Go(func() error {
			if err := t.blobs.Write(gctx, t.scope, item.asset.StoredFilename, item.data); err != nil {
				return err
			}
			mu.Lock()
			written = append(written, item.asset.StoredFilename)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.deleteBlobs(written)
		t.tx.Rollback()
		return fmt.Errorf("writing blobs: %w", err)
	}

	if err := t.tx.Commit(); err != nil {
		t.deleteBlobs(written)
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Rollback aborts the batch. Safe to defer after Commit; it becomes a no-op.
func (t *Transaction) Rollback() {
	if t.closed {
		return
	}
	t.closed = true
	t.tx.Rollback()
}

// deleteBlobs is the compensating action for the filesystem substrate. It
// runs on a fresh context so cleanup still happens when the caller's context
// is already dead.
func (t *Transaction) deleteBlobs(storedFilenames []string) {
	ctx := context.Background()
	for _, name := range storedFilenames {
		t.blobs.Delete(ctx, t.scope, name)
	}
}

// storedExtension derives a safe lowercase extension from the original
// filename. Base() strips any path components a hostile client sent.
func storedExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if ext == "." {
		return ""
	}
	return ext
}

// txIndex runs the tier queries on the batch's open transaction.
type txIndex struct {
	store *postgres.AssetStore
	q     postgres.Querier
}

func (i *txIndex) FindByContentHash(ctx context.Context, scope database.Scope, exclude uuid.UUID, sha256 string) (uuid.UUID, bool, error) {
	return i.store.FindByContentHash(ctx, i.q, scope, exclude, sha256)
}

func (i *txIndex) FindByPerceptualHash(ctx context.Context, scope database.Scope, exclude uuid.UUID, phash int64, maxDistance int) (uuid.UUID, bool, error) {
	return i.store.FindByPerceptualHash(ctx, i.q, scope, exclude, phash, maxDistance)
}

func (i *txIndex) FindByEmbedding(ctx context.Context, scope database.Scope, exclude uuid.UUID, embedding []float32, minSimilarity float64) (uuid.UUID, bool, error) {
	return i.store.FindByEmbedding(ctx, i.q, scope, exclude, embedding, minSimilarity)
}
