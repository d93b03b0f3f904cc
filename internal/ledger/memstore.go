package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DollhouseMCP/contentguard/internal/trust"
)

// MemStore is an in-memory EntryStore for tests and the scan CLI.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string]*trust.Entry
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]*trust.Entry)}
}

func (s *MemStore) GetEntry(_ context.Context, id string) (*trust.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *e
	cp.History = append([]trust.Result(nil), e.History...)
	cp.Raw = append([]byte(nil), e.Raw...)
	return &cp, nil
}

func (s *MemStore) PutEntry(_ context.Context, e *trust.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	cp := *e
	cp.Raw = append([]byte(nil), e.Raw...)
	if prev, ok := s.entries[e.ID]; ok {
		// Re-ingestion replaces bytes but keeps the audit trail.
		cp.History = prev.History
		cp.CreatedAt = prev.CreatedAt
	} else {
		cp.History = append([]trust.Result(nil), e.History...)
	}
	s.entries[e.ID] = &cp
	return nil
}

func (s *MemStore) RecordValidation(_ context.Context, id string, res trust.Result, level trust.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.History = append(e.History, res)
	e.Level = level
	e.LastValidatedAt = res.Timestamp
	return nil
}

func (s *MemStore) EntriesByLevel(_ context.Context, level trust.Level, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type cand struct {
		id string
		at time.Time
	}
	var cands []cand
	for id, e := range s.entries {
		if e.Level == level {
			cands = append(cands, cand{id, e.LastValidatedAt})
		}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].at.Before(cands[j].at) })
	ids := make([]string, 0, len(cands))
	for _, c := range cands {
		if limit >= 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, c.id)
	}
	return ids, nil
}

func (s *MemStore) DeleteEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}
