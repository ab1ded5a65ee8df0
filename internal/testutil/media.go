package testutil

import (
	"context"
	"io"
	"sync"

	"loop/internal/media"
)

// MediaStoreStub is an in-memory media.Store that records every upload.
type MediaStoreStub struct {
	mu      sync.Mutex
	Uploads map[string][]byte
	Err     error
}

// NewMediaStoreStub creates an empty media store stub.
func NewMediaStoreStub() *MediaStoreStub {
	return &MediaStoreStub{Uploads: make(map[string][]byte)}
}

// Put stores the upload in memory and returns a fake CDN URL.
func (s *MediaStoreStub) Put(_ context.Context, in media.StoreInput) (*media.Asset, error) {
	b, err := io.ReadAll(in.Content)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	key := in.Folder + "/" + in.Name
	s.Uploads[key] = b
	return &media.Asset{URL: "https://media.test/" + key}, nil
}

// Count returns the number of stored uploads.
func (s *MediaStoreStub) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Uploads)
}
