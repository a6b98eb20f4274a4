package storage

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Uploader stores a named blob and returns a stable URL for it. The proof
// submission flow uploads every file before persisting any reference, so an
// implementation only needs per-file atomicity.
type Uploader interface {
	Upload(name string, data []byte) (string, error)
}

// MemoryUploader is an in-memory Uploader used in tests and when no external
// object store is configured.
type MemoryUploader struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	// FailOn makes uploads of the named file fail, for exercising the
	// all-or-nothing proof submission path.
	FailOn string
}

// NewMemoryUploader creates an empty in-memory uploader.
func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{
		blobs: make(map[string][]byte),
	}
}

// Upload stores the blob under a unique key and returns its URL.
func (u *MemoryUploader) Upload(name string, data []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.FailOn != "" && u.FailOn == name {
		return "", fmt.Errorf("upload of %s failed", name)
	}
	key := fmt.Sprintf("proofs/%s/%s", uuid.New().String(), name)
	u.blobs[key] = data
	return "mem://" + key, nil
}

// Len reports how many blobs are stored.
func (u *MemoryUploader) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.blobs)
}
