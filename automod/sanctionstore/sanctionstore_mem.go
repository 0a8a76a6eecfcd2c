package sanctionstore

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type sanction struct {
	kind  Kind
	until time.Time // zero for bans
}

func (s sanction) activeAt(now time.Time) bool {
	return s.kind == KindBan || now.Before(s.until)
}

// In-process store, bounded in size. Entries older than MaxAge are forgotten, bans included.
type MemStore struct {
	mu   sync.Mutex
	data *expirable.LRU[string, sanction]
	now  func() time.Time
}

var _ Store = (*MemStore)(nil)

func NewMemStore(capacity int, maxAge time.Duration) *MemStore {
	return &MemStore{
		data: expirable.NewLRU[string, sanction](capacity, nil, maxAge),
		now:  time.Now,
	}
}

func (s *MemStore) Claim(ctx context.Context, groupID, authorID string, kind Kind, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := sanctionKey(groupID, authorID)
	if prev, ok := s.data.Get(key); ok && prev.activeAt(now) {
		if prev.kind == KindBan || kind == KindMute {
			return false, nil
		}
	}
	next := sanction{kind: kind}
	if kind == KindMute {
		next.until = now.Add(ttl)
	}
	s.data.Add(key, next)
	return true, nil
}

func (s *MemStore) Active(ctx context.Context, groupID, authorID string) (Kind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.data.Get(sanctionKey(groupID, authorID))
	if !ok || !prev.activeAt(s.now()) {
		return "", nil
	}
	return prev.kind, nil
}

func (s *MemStore) Release(ctx context.Context, groupID, authorID string, kind Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sanctionKey(groupID, authorID)
	if prev, ok := s.data.Peek(key); ok && prev.kind == kind {
		s.data.Remove(key)
	}
	return nil
}
