package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/r3e-labs/rlstudio/pkg/apperrors"
)

// DiskBlobStore is the default BlobStore: keys map directly to paths under
// a root directory. Rollouts/models are already gzip-compressed by their
// callers; this store is byte-agnostic.
type DiskBlobStore struct {
	root string
}

// NewDiskBlobStore builds a DiskBlobStore rooted at dir, creating it if
// necessary.
func NewDiskBlobStore(dir string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.External("blob-store", err)
	}
	return &DiskBlobStore{root: dir}, nil
}

var _ BlobStore = (*DiskBlobStore)(nil)

func (d *DiskBlobStore) path(key string) string {
	return filepath.Join(d.root, filepath.FromSlash(key))
}

// Put implements BlobStore.
func (d *DiskBlobStore) Put(_ context.Context, key string, data []byte) error {
	full := d.path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return apperrors.External("blob-store", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return apperrors.External("blob-store", err)
	}
	return nil
}

// Get implements BlobStore.
func (d *DiskBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(d.path(key))
	if os.IsNotExist(err) {
		return nil, apperrors.ResourceNotFound("blob", key)
	}
	if err != nil {
		return nil, apperrors.External("blob-store", err)
	}
	return data, nil
}

// Delete implements BlobStore.
func (d *DiskBlobStore) Delete(_ context.Context, key string) error {
	err := os.Remove(d.path(key))
	if err != nil && !os.IsNotExist(err) {
		return apperrors.External("blob-store", err)
	}
	return nil
}

// Size implements BlobStore.
func (d *DiskBlobStore) Size(_ context.Context, key string) (int64, error) {
	f, err := os.Open(d.path(key))
	if os.IsNotExist(err) {
		return 0, apperrors.ResourceNotFound("blob", key)
	}
	if err != nil {
		return 0, apperrors.External("blob-store", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, apperrors.External("blob-store", err)
	}
	return info.Size(), nil
}
