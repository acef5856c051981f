package downloads

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dwnmf/Screen-recoder/internal/media"
)

// URLPrefix starts every object URL handed out by a BlobRegistry.
const URLPrefix = "blob:recorder/"

// BlobRegistry maps object URLs to in-memory blobs until they are revoked.
type BlobRegistry struct {
	mu    sync.RWMutex
	blobs map[string]*media.Blob
}

func NewBlobRegistry() *BlobRegistry {
	return &BlobRegistry{blobs: make(map[string]*media.Blob)}
}

// CreateObjectURL registers b and returns its URL.
func (r *BlobRegistry) CreateObjectURL(b *media.Blob) string {
	url := URLPrefix + uuid.NewString()
	r.mu.Lock()
	r.blobs[url] = b
	r.mu.Unlock()
	return url
}

func (r *BlobRegistry) Resolve(url string) (*media.Blob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[url]
	return b, ok
}

// Revoke releases the blob behind url. Unknown URLs are ignored.
func (r *BlobRegistry) Revoke(url string) {
	r.mu.Lock()
	delete(r.blobs, url)
	r.mu.Unlock()
}

func (r *BlobRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}
