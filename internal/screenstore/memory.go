package screenstore

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"pdfchat/internal/model"
)

// MemoryStore keeps screens in process memory and forgets idle ones after ttl.
type MemoryStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryStore{
		cache: cache.New(ttl, 10*time.Minute),
		ttl:   ttl,
	}
}

func (s *MemoryStore) Get(_ context.Context, viewerID string) (*model.Screen, bool, error) {
	x, found := s.cache.Get(viewerID)
	if !found {
		return nil, false, nil
	}
	return x.(*model.Screen).Clone(), true, nil
}

func (s *MemoryStore) Save(_ context.Context, viewerID string, screen *model.Screen) error {
	s.cache.Set(viewerID, screen.Clone(), s.ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, viewerID string) error {
	s.cache.Delete(viewerID)
	return nil
}
