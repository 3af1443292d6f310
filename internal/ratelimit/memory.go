package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryStore counts hits in process. The least recently seen keys are evicted once size keys
// are tracked, so a flood of distinct clients cannot grow it without bound.
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *window]
	now   func() time.Time
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	cache, err := lru.New[string, *window](size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: cache, now: time.Now}, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, length time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.cache.Get(key)
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(length)}
		s.cache.Add(key, w)
	}
	w.count++
	return w.count, w.resetAt, nil
}
