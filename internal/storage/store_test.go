package storage_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelsmith/internal/services"
	"reelsmith/internal/storage"
	"reelsmith/internal/testsupport"
)

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New(testsupport.NewConfig(t))
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	return store
}

func TestPutAndOpenRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "media/ABC123.mp4", strings.NewReader("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reader, err := store.Open(ctx, "media/ABC123.mp4")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected contents %q", data)
	}
}

func TestPutReplacesExistingBlob(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "k", strings.NewReader("old")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, "k", strings.NewReader("new")); err != nil {
		t.Fatalf("Put replace: %v", err)
	}

	reader, err := store.Open(ctx, "k")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	if string(data) != "new" {
		t.Fatalf("expected replacement, got %q", data)
	}
}

func TestOpenMissingBlobIsNotFound(t *testing.T) {
	store := newStore(t)

	_, err := store.Open(context.Background(), "missing/key")
	if err == nil {
		t.Fatal("expected error for missing blob")
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found classification, got %v", err)
	}
}

func TestFetchCopiesBlobToDisk(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "composites/final.mp4", strings.NewReader("video")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "work", "final.mp4")
	if err := store.Fetch(ctx, "composites/final.mp4", dest); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if string(data) != "video" {
		t.Fatalf("unexpected contents %q", data)
	}
}

func TestDeleteAndExists(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "gone", strings.NewReader("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	exists, err := store.Exists(ctx, "gone")
	if err != nil || !exists {
		t.Fatalf("expected blob to exist, got %v %v", exists, err)
	}

	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	exists, err = store.Exists(ctx, "gone")
	if err != nil || exists {
		t.Fatalf("expected blob to be gone, got %v %v", exists, err)
	}

	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete of missing blob must be a no-op: %v", err)
	}
}

func TestKeysCannotEscapeRoot(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "  ", "../outside", "/etc/passwd", "a/../../b"} {
		err := store.Put(ctx, key, strings.NewReader("x"))
		if err == nil {
			t.Fatalf("expected rejection for key %q", key)
		}
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for key %q, got %v", key, err)
		}
	}
}

func TestPathMapsKeyUnderRoot(t *testing.T) {
	store := newStore(t)

	path, err := store.Path("media/clip.mp4")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if !strings.HasPrefix(path, store.Root()) {
		t.Fatalf("path %q is not under root %q", path, store.Root())
	}
}
