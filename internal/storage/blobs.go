// Package storage keeps asset blobs on the local filesystem, laid out as
// <root>/collections/<owner-id>/<collection-id>/<asset-id>.<ext>. Filenames
// derive from generated asset identities, never from user input.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/semaphore"

	"github.com/diogotoporcov/Finder2/internal/database"
)

// ErrTooLarge is returned when a blob exceeds the store's byte limit.
var ErrTooLarge = errors.New("blob exceeds the maximum allowed size")

// BlobStore reads and writes asset blobs. All operations go through the
// shared I/O gate so large batches cannot exhaust memory or descriptors.
type BlobStore struct {
	root     string
	maxBytes int64
	gate     *semaphore.Weighted
}

// NewBlobStore creates a blob store rooted at root. maxBytes of 0 disables
// the size check (reads of already-committed blobs are never limited).
func NewBlobStore(root string, maxBytes int64, gate *semaphore.Weighted) *BlobStore {
	return &BlobStore{
		root:     root,
		maxBytes: maxBytes,
		gate:     gate,
	}
}

// Path returns the absolute blob path for a stored filename within a scope.
func (s *BlobStore) Path(scope database.Scope, storedFilename string) string {
	return filepath.Join(s.root, "collections", scope.OwnerID.String(), scope.CollectionID.String(), storedFilename)
}

// Write stores blob bytes. A partially written file is removed on failure so
// a failed write never leaves an orphan on disk.
func (s *BlobStore) Write(ctx context.Context, scope database.Scope, storedFilename string, data []byte) error {
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return fmt.Errorf("%w: %s", ErrTooLarge, storedFilename)
	}

	if err := s.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring I/O slot: %w", err)
	}
	defer s.gate.Release(1)

	path := s.Path(scope, storedFilename)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating blob directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o640); err != nil {
		os.Remove(path)
		return fmt.Errorf("writing blob %s: %w", storedFilename, err)
	}
	return nil
}

// Read returns blob bytes for a stored filename.
func (s *BlobStore) Read(ctx context.Context, scope database.Scope, storedFilename string) ([]byte, error) {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring I/O slot: %w", err)
	}
	defer s.gate.Release(1)

	data, err := os.ReadFile(s.Path(scope, storedFilename))
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", storedFilename, err)
	}
	return data, nil
}

// Delete removes a blob. A missing blob is not an error; compensating
// deletes during rollback must be idempotent.
func (s *BlobStore) Delete(ctx context.Context, scope database.Scope, storedFilename string) error {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring I/O slot: %w", err)
	}
	defer s.gate.Release(1)

	err := os.Remove(s.Path(scope, storedFilename))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting blob %s: %w", storedFilename, err)
	}
	return nil
}
