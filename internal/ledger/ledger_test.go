package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DollhouseMCP/contentguard/internal/trust"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(context.Background(), NewMemStore(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func ingest(t *testing.T, l *Ledger, id string) {
	t.Helper()
	err := l.Ingest(context.Background(), &trust.Entry{
		ID:     id,
		Raw:    []byte("content of " + id),
		Origin: trust.OriginImported,
	})
	if err != nil {
		t.Fatalf("Ingest(%s): %v", id, err)
	}
}

func record(t *testing.T, l *Ledger, id string, d trust.Decision) trust.Level {
	t.Helper()
	lvl, err := l.RecordResult(context.Background(), trust.Result{
		EntryID:   id,
		Timestamp: time.Now(),
		Decision:  d,
	})
	if err != nil {
		t.Fatalf("RecordResult(%s, %s): %v", id, d, err)
	}
	return lvl
}

func TestLedger_IngestStartsUntrusted(t *testing.T) {
	l := newLedger(t)
	ingest(t, l, "a")
	lvl, err := l.Level("a")
	if err != nil {
		t.Fatal(err)
	}
	if lvl != trust.Untrusted {
		t.Errorf("level = %s, want UNTRUSTED", lvl)
	}
}

func TestLedger_TransitionsFollowTable(t *testing.T) {
	l := newLedger(t)

	ingest(t, l, "pass")
	if got := record(t, l, "pass", trust.DecisionPass); got != trust.Validated {
		t.Errorf("pass -> %s, want VALIDATED", got)
	}

	ingest(t, l, "flag")
	if got := record(t, l, "flag", trust.DecisionFlag); got != trust.Flagged {
		t.Errorf("flag -> %s, want FLAGGED", got)
	}
	if got := record(t, l, "flag", trust.DecisionPass); got != trust.Validated {
		t.Errorf("flagged+pass -> %s, want VALIDATED", got)
	}

	ingest(t, l, "q")
	if got := record(t, l, "q", trust.DecisionQuarantine); got != trust.Quarantined {
		t.Errorf("quarantine -> %s, want QUARANTINED", got)
	}
	// Terminal: further decisions leave the level alone.
	if got := record(t, l, "q", trust.DecisionPass); got != trust.Quarantined {
		t.Errorf("quarantined+pass -> %s, want QUARANTINED", got)
	}
}

func TestLedger_ContentGateRefusesQuarantined(t *testing.T) {
	l := newLedger(t)
	ingest(t, l, "bad")
	record(t, l, "bad", trust.DecisionQuarantine)

	_, err := l.Content(context.Background(), "bad")
	if !errors.Is(err, ErrQuarantined) {
		t.Fatalf("expected ErrQuarantined, got %v", err)
	}

	// Re-ingestion with new bytes reopens the gate via UNTRUSTED.
	if err := l.Reingest(context.Background(), "bad", []byte("new bytes"), trust.OriginLocal); err != nil {
		t.Fatal(err)
	}
	raw, err := l.Content(context.Background(), "bad")
	if err != nil {
		t.Fatalf("content after reingest: %v", err)
	}
	if string(raw) != "new bytes" {
		t.Errorf("raw = %q", raw)
	}
	if lvl, _ := l.Level("bad"); lvl != trust.Untrusted {
		t.Errorf("level after reingest = %s, want UNTRUSTED", lvl)
	}
}

func TestLedger_ListByLevel(t *testing.T) {
	l := newLedger(t)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("f%d", i)
		ingest(t, l, id)
		record(t, l, id, trust.DecisionFlag)
	}
	ingest(t, l, "ok")
	record(t, l, "ok", trust.DecisionPass)

	flagged := l.ListByLevel(trust.Flagged, 10)
	if len(flagged) != 5 {
		t.Errorf("flagged count = %d, want 5", len(flagged))
	}
	if got := l.ListByLevel(trust.Flagged, 2); len(got) != 2 {
		t.Errorf("limit ignored: %d", len(got))
	}
	if got := l.ListByLevel(trust.Quarantined, 10); len(got) != 0 {
		t.Errorf("quarantined count = %d, want 0", len(got))
	}
}

func TestLedger_HistoryAppendOnly(t *testing.T) {
	l := newLedger(t)
	ingest(t, l, "h")
	record(t, l, "h", trust.DecisionFlag)
	record(t, l, "h", trust.DecisionFlag)
	record(t, l, "h", trust.DecisionPass)

	e, err := l.Entry(context.Background(), "h")
	if err != nil {
		t.Fatal(err)
	}
	if len(e.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(e.History))
	}
	want := []trust.Decision{trust.DecisionFlag, trust.DecisionFlag, trust.DecisionPass}
	for i, d := range want {
		if e.History[i].Decision != d {
			t.Errorf("history[%d] = %s, want %s", i, e.History[i].Decision, d)
		}
	}
}

func TestLedger_ConcurrentRecordsSameEntry(t *testing.T) {
	l := newLedger(t)
	ingest(t, l, "c")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.RecordResult(context.Background(), trust.Result{
				EntryID:   "c",
				Timestamp: time.Now(),
				Decision:  trust.DecisionFlag,
			})
		}()
	}
	wg.Wait()

	e, err := l.Entry(context.Background(), "c")
	if err != nil {
		t.Fatal(err)
	}
	// Exactly one history row per call, none lost.
	if len(e.History) != 20 {
		t.Errorf("history length = %d, want 20", len(e.History))
	}
	if lvl, _ := l.Level("c"); lvl != trust.Flagged {
		t.Errorf("level = %s, want FLAGGED", lvl)
	}
}

func TestLedger_Destroy(t *testing.T) {
	l := newLedger(t)
	ingest(t, l, "d")
	record(t, l, "d", trust.DecisionPass)
	if err := l.Destroy(context.Background(), "d"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Level("d"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if got := l.ListByLevel(trust.Validated, 10); len(got) != 0 {
		t.Errorf("destroyed entry still indexed: %v", got)
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entries.db")
	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	e := &trust.Entry{ID: "s1", Raw: []byte("hello"), Origin: trust.OriginRemote, Level: trust.Untrusted}
	if err := store.PutEntry(ctx, e); err != nil {
		t.Fatal(err)
	}

	res := trust.Result{
		EntryID:    "s1",
		Timestamp:  time.Now(),
		Decision:   trust.DecisionFlag,
		MatchedIDs: []string{"inj-ignore-instructions"},
	}
	if err := store.RecordValidation(ctx, "s1", res, trust.Flagged); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetEntry(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Level != trust.Flagged {
		t.Errorf("level = %s", got.Level)
	}
	if len(got.History) != 1 || got.History[0].Decision != trust.DecisionFlag {
		t.Fatalf("history = %+v", got.History)
	}
	if len(got.History[0].MatchedIDs) != 1 {
		t.Errorf("matched ids = %v", got.History[0].MatchedIDs)
	}

	ids, err := store.EntriesByLevel(ctx, trust.Flagged, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "s1" {
		t.Errorf("ids = %v", ids)
	}

	// A ledger warmed from this store sees the persisted level.
	l, err := New(ctx, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if lvl, _ := l.Level("s1"); lvl != trust.Flagged {
		t.Errorf("warmed level = %s", lvl)
	}
}

func TestSQLiteStore_RecordValidationUnknownEntry(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "x.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	err = store.RecordValidation(context.Background(), "ghost", trust.Result{Timestamp: time.Now()}, trust.Flagged)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_DeleteCascades(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "y.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	store.PutEntry(ctx, &trust.Entry{ID: "z", Raw: []byte("x"), Origin: trust.OriginLocal, Level: trust.Untrusted})
	store.RecordValidation(ctx, "z", trust.Result{Timestamp: time.Now(), Decision: trust.DecisionPass}, trust.Validated)
	if err := store.DeleteEntry(ctx, "z"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetEntry(ctx, "z"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
