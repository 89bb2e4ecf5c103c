package storage

import (
	"context"
	"testing"
)

func TestDiskBlobStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewDiskBlobStore(dir)
	if err != nil {
		t.Fatalf("NewDiskBlobStore: %v", err)
	}

	key := "models/foo/bar.bin"
	payload := []byte("hello world")

	if err := store.Put(ctx, key, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}

	size, err := store.Size(ctx, key)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != int64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), size)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, key); err == nil {
		t.Fatal("expected error reading deleted key")
	}
}

func TestDiskBlobStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	store, err := NewDiskBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskBlobStore: %v", err)
	}
	if _, err := store.Get(ctx, "does/not/exist"); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestDiskBlobStoreDeleteMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	store, err := NewDiskBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskBlobStore: %v", err)
	}
	if err := store.Delete(ctx, "does/not/exist"); err != nil {
		t.Fatalf("expected deleting a missing key to be a no-op, got %v", err)
	}
}
