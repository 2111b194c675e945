package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"trustcore/internal/domain"
)

var _ domain.BlobStore = (*BlobStore)(nil)

// BlobStore keeps uploaded payloads in memory.
type BlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewBlobStore creates an empty in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

// Put stores a copy of data and returns a memory:// URL for it.
func (s *BlobStore) Put(_ context.Context, folder, extension string, data []byte) (string, error) {
	url := "memory://" + folder + "/" + uuid.NewString() + "." + extension

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.blobs[url] = buf
	s.mu.Unlock()
	return url, nil
}

// Get returns the stored payload for url. Only tests read blobs back.
func (s *BlobStore) Get(url string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[url]
	return b, ok
}
