// Package ledger maintains the per-entry trust state machine and its
// level index. All mutations flow through RecordResult, which is
// linearizable per entry; reads of different entries never contend.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/DollhouseMCP/contentguard/internal/trust"
)

var (
	// ErrNotFound is returned for unknown entry ids.
	ErrNotFound = errors.New("entry not found")
	// ErrQuarantined gates quarantined content at the read boundary.
	ErrQuarantined = errors.New("entry is quarantined")
)

// EntryStore is the durability collaborator. RecordValidation must append
// the result to the entry's history and set the new level in one atomic
// write; a trust decision that is not durably recorded must fail loudly.
type EntryStore interface {
	GetEntry(ctx context.Context, id string) (*trust.Entry, error)
	PutEntry(ctx context.Context, e *trust.Entry) error
	RecordValidation(ctx context.Context, id string, res trust.Result, level trust.Level) error
	// EntriesByLevel returns up to limit entry ids at the given level,
	// oldest validation first. Must use a level index, not a full scan.
	EntriesByLevel(ctx context.Context, level trust.Level, limit int) ([]string, error)
	DeleteEntry(ctx context.Context, id string) error
}

// Ledger wraps an EntryStore with per-entry serialization and an in-memory
// level index so foreground and background validation never interleave on
// the same entry.
type Ledger struct {
	store EntryStore
	log   *zap.Logger

	// levels maps entry id -> current level; index is the inverse,
	// keyed by level, so ListByLevel never scans all entries.
	mu     sync.RWMutex
	levels map[string]trust.Level
	index  map[trust.Level]map[string]struct{}

	locks sync.Map // entry id -> *sync.Mutex
}

// New builds a Ledger and warms the level index from the store.
func New(ctx context.Context, store EntryStore, log *zap.Logger) (*Ledger, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Ledger{
		store:  store,
		log:    log,
		levels: make(map[string]trust.Level),
		index:  make(map[trust.Level]map[string]struct{}),
	}
	for _, lvl := range trust.Levels() {
		l.index[lvl] = make(map[string]struct{})
	}
	for _, lvl := range trust.Levels() {
		ids, err := store.EntriesByLevel(ctx, lvl, -1)
		if err != nil {
			return nil, fmt.Errorf("warming level index: %w", err)
		}
		for _, id := range ids {
			l.levels[id] = lvl
			l.index[lvl][id] = struct{}{}
		}
	}
	return l, nil
}

func (l *Ledger) entryLock(id string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Ingest registers a new entry at UNTRUSTED. The caller validates it
// synchronously before first use.
func (l *Ledger) Ingest(ctx context.Context, e *trust.Entry) error {
	mu := l.entryLock(e.ID)
	mu.Lock()
	defer mu.Unlock()

	e.Level = trust.Untrusted
	if err := l.store.PutEntry(ctx, e); err != nil {
		return fmt.Errorf("persisting entry %s: %w", e.ID, err)
	}
	l.setLevel(e.ID, trust.Untrusted)
	return nil
}

// Reingest replaces an entry's bytes and resets it to UNTRUSTED. This is
// the only exit from QUARANTINED.
func (l *Ledger) Reingest(ctx context.Context, id string, raw []byte, origin trust.Origin) error {
	mu := l.entryLock(id)
	mu.Lock()
	defer mu.Unlock()

	e, err := l.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	e.Raw = raw
	e.Origin = origin
	e.Level = trust.Untrusted
	if err := l.store.PutEntry(ctx, e); err != nil {
		return fmt.Errorf("persisting entry %s: %w", id, err)
	}
	l.setLevel(id, trust.Untrusted)
	l.log.Info("entry re-ingested", zap.String("entry_id", id), zap.String("origin", string(origin)))
	return nil
}

// RecordResult applies the transition table for one validation result and
// persists the new level together with the history append. The read-
// modify-write is serialized per entry.
func (l *Ledger) RecordResult(ctx context.Context, res trust.Result) (trust.Level, error) {
	mu := l.entryLock(res.EntryID)
	mu.Lock()
	defer mu.Unlock()

	l.mu.RLock()
	from, ok := l.levels[res.EntryID]
	l.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, res.EntryID)
	}

	next, err := trust.Next(from, res.Decision)
	if err != nil {
		// Terminal levels admit no automatic transition; the result is
		// still recorded for audit, the level stands.
		l.log.Warn("decision on terminal trust level ignored",
			zap.String("entry_id", res.EntryID),
			zap.String("level", string(from)),
			zap.String("decision", string(res.Decision)))
		next = from
	}

	if err := l.store.RecordValidation(ctx, res.EntryID, res, next); err != nil {
		return "", fmt.Errorf("recording validation for %s: %w", res.EntryID, err)
	}
	l.setLevel(res.EntryID, next)
	return next, nil
}

// Level returns the current trust level of an entry.
func (l *Ledger) Level(id string) (trust.Level, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lvl, ok := l.levels[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return lvl, nil
}

// ListByLevel returns up to limit entry ids at the given level. Cost is
// proportional to the entries at that level, not all entries.
func (l *Ledger) ListByLevel(level trust.Level, limit int) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.index[level]))
	for id := range l.index[level] {
		if limit >= 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, id)
	}
	return ids
}

// Content returns an entry's bytes, refusing QUARANTINED entries. This is
// the structural read gate: consumers go through here, not the store.
func (l *Ledger) Content(ctx context.Context, id string) ([]byte, error) {
	l.mu.RLock()
	lvl, ok := l.levels[id]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if lvl == trust.Quarantined {
		return nil, fmt.Errorf("%w: %s", ErrQuarantined, id)
	}
	e, err := l.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.Raw, nil
}

// Entry loads the full entry record, including its history. Used by the
// validation path, which must see quarantined entries too.
func (l *Ledger) Entry(ctx context.Context, id string) (*trust.Entry, error) {
	return l.store.GetEntry(ctx, id)
}

// Destroy removes an entry and its full history atomically, for use when
// the owning element is deleted.
func (l *Ledger) Destroy(ctx context.Context, id string) error {
	mu := l.entryLock(id)
	mu.Lock()
	defer mu.Unlock()

	if err := l.store.DeleteEntry(ctx, id); err != nil {
		return err
	}
	l.mu.Lock()
	if lvl, ok := l.levels[id]; ok {
		delete(l.index[lvl], id)
		delete(l.levels, id)
	}
	l.mu.Unlock()
	l.locks.Delete(id)
	return nil
}

func (l *Ledger) setLevel(id string, next trust.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.levels[id]; ok {
		delete(l.index[prev], id)
	}
	l.levels[id] = next
	l.index[next][id] = struct{}{}
}
