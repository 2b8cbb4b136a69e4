package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/diogotoporcov/Finder2/internal/database"
)

func newTestStore(t *testing.T, maxBytes int64) *BlobStore {
	t.Helper()
	return NewBlobStore(t.TempDir(), maxBytes, semaphore.NewWeighted(4))
}

func TestWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t, 0)
	scope := database.Scope{OwnerID: uuid.New(), CollectionID: uuid.New()}
	data := []byte("jpeg bytes")

	if err := store.Write(context.Background(), scope, "asset.jpg", data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := store.Read(context.Background(), scope, "asset.jpg")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Read = %q; want %q", got, data)
	}
}

func TestPathLayout(t *testing.T) {
	store := NewBlobStore("root", 0, semaphore.NewWeighted(1))
	scope := database.Scope{OwnerID: uuid.New(), CollectionID: uuid.New()}

	want := filepath.Join("root", "collections", scope.OwnerID.String(), scope.CollectionID.String(), "a.png")
	if got := store.Path(scope, "a.png"); got != want {
		t.Errorf("Path = %s; want %s", got, want)
	}
}

func TestWriteRejectsOversizeBlob(t *testing.T) {
	store := newTestStore(t, 8)
	scope := database.Scope{OwnerID: uuid.New(), CollectionID: uuid.New()}

	err := store.Write(context.Background(), scope, "big.jpg", make([]byte, 9))
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v; want ErrTooLarge", err)
	}
	if _, statErr := os.Stat(store.Path(scope, "big.jpg")); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("oversize write should leave no file behind")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t, 0)
	scope := database.Scope{OwnerID: uuid.New(), CollectionID: uuid.New()}

	if err := store.Write(context.Background(), scope, "asset.jpg", []byte("x")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := store.Delete(context.Background(), scope, "asset.jpg"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	// Deleting again must not error; rollback compensation retries blindly.
	if err := store.Delete(context.Background(), scope, "asset.jpg"); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestReadMissingBlob(t *testing.T) {
	store := newTestStore(t, 0)
	scope := database.Scope{OwnerID: uuid.New(), CollectionID: uuid.New()}

	if _, err := store.Read(context.Background(), scope, "missing.jpg"); err == nil {
		t.Error("Read should fail for a missing blob")
	}
}

func TestScopesDoNotCollide(t *testing.T) {
	store := newTestStore(t, 0)
	owner := uuid.New()
	scopeA := database.Scope{OwnerID: owner, CollectionID: uuid.New()}
	scopeB := database.Scope{OwnerID: owner, CollectionID: uuid.New()}

	if err := store.Write(context.Background(), scopeA, "asset.jpg", []byte("a")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := store.Write(context.Background(), scopeB, "asset.jpg", []byte("b")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	a, err := store.Read(context.Background(), scopeA, "asset.jpg")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(a) != "a" {
		t.Errorf("collection A blob = %q; want %q", a, "a")
	}
}
