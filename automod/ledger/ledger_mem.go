package ledger

import (
	"context"
	"slices"
	"sync"
	"time"
)

type MemStore struct {
	mu      sync.Mutex
	ids     map[string]bool
	records map[string][]*ViolationRecord
}

var (
	_ Store  = (*MemStore)(nil)
	_ Lister = (*MemStore)(nil)
)

func NewMemStore() *MemStore {
	return &MemStore{
		ids:     make(map[string]bool),
		records: make(map[string][]*ViolationRecord),
	}
}

func memKey(groupID, authorID string) string {
	return groupID + "/" + authorID
}

func (s *MemStore) Append(ctx context.Context, rec *ViolationRecord) (string, error) {
	if err := prepare(rec); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[rec.ID] {
		return rec.ID, nil
	}
	cp := *rec
	s.ids[rec.ID] = true
	k := memKey(rec.GroupID, rec.AuthorID)
	s.records[k] = append(s.records[k], &cp)
	return rec.ID, nil
}

func (s *MemStore) CountSince(ctx context.Context, groupID, authorID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records[memKey(groupID, authorID)] {
		if !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) Recent(ctx context.Context, groupID, authorID string, limit int) ([]ViolationRecord, error) {
	all := s.Records(groupID, authorID)
	slices.Reverse(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// All records for an author, oldest first.
func (s *MemStore) Records(groupID, authorID string) []ViolationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ViolationRecord
	for _, r := range s.records[memKey(groupID, authorID)] {
		out = append(out, *r)
	}
	return out
}
