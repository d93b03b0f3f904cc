package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DollhouseMCP/contentguard/internal/trust"
)

func TestLog_RecordAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	ev := Event{
		EntryID:    "e1",
		Timestamp:  time.Now().UTC(),
		Decision:   trust.DecisionFlag,
		MatchedIDs: []string{"inj-ignore-instructions"},
		DurationUs: 120,
		TrustFrom:  trust.Untrusted,
		TrustTo:    trust.Flagged,
	}
	if err := log.Record(ev); err != nil {
		t.Fatal(err)
	}

	events, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	got := events[0]
	if got.EntryID != "e1" || got.Decision != trust.DecisionFlag || got.TrustTo != trust.Flagged {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.EventID == "" {
		t.Error("Record should assign an event id")
	}
}

func TestLog_PerEntryOrderUnderConcurrency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("entry-%d", w)
			for i := 0; i < perWriter; i++ {
				log.Record(Event{
					EntryID:    id,
					Timestamp:  time.Now(),
					Decision:   trust.DecisionPass,
					DurationUs: int64(i),
				})
			}
		}(w)
	}
	wg.Wait()

	events, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != writers*perWriter {
		t.Fatalf("events = %d, want %d (none dropped)", len(events), writers*perWriter)
	}

	// Program order per entry: DurationUs encodes the write sequence.
	last := map[string]int64{}
	for _, ev := range events {
		if prev, ok := last[ev.EntryID]; ok && ev.DurationUs <= prev {
			t.Fatalf("entry %s reordered: %d after %d", ev.EntryID, ev.DurationUs, prev)
		}
		last[ev.EntryID] = ev.DurationUs
	}
}

func TestReadAll_SkipsTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, _ := Open(path)
	log.Record(Event{EntryID: "a", Timestamp: time.Now(), Decision: trust.DecisionPass})
	log.Close()

	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	f.WriteString(`{"entry_id":"b","deci`)
	f.Close()

	events, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].EntryID != "a" {
		t.Errorf("events = %+v", events)
	}
}

func TestReadAll_MissingFile(t *testing.T) {
	events, err := ReadAll(filepath.Join(t.TempDir(), "nope.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if events != nil {
		t.Errorf("expected nil, got %v", events)
	}
}

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, _ := Open(path)
	for i := 0; i < 10; i++ {
		log.Record(Event{EntryID: "x", Timestamp: time.Now(), Decision: trust.DecisionPass, DurationUs: int64(i)})
	}
	log.Close()

	events, err := Tail(path, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 || events[0].DurationUs != 7 {
		t.Errorf("tail = %+v", events)
	}
}
