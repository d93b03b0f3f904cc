// Package audit provides the durable append-only record of every
// validation decision. Audit records are never dropped or reordered for
// the same entry; a write failure is surfaced to the caller, because an
// unrecorded trust decision must never be treated as an implicit pass.
package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DollhouseMCP/contentguard/internal/trust"
)

// Event is one audit record, serialized as a JSON line.
type Event struct {
	EventID    string         `json:"event_id"`
	EntryID    string         `json:"entry_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Decision   trust.Decision `json:"decision"`
	MatchedIDs []string       `json:"matched_signature_ids,omitempty"`
	DurationUs int64          `json:"duration_us"`
	TrustFrom  trust.Level    `json:"trust_from,omitempty"`
	TrustTo    trust.Level    `json:"trust_to"`
}

// Log appends events to a JSONL file under a single mutex, which gives
// per-entry program order for free.
type Log struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Open creates or opens the audit log at path in append-only mode.
func Open(path string) (*Log, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &Log{file: file, path: path}, nil
}

// Record writes one event durably. The sync is deliberate: the record
// must be on disk before the validation call returns.
func (l *Log) Record(ev Event) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(data); err != nil {
		return err
	}
	return l.file.Sync()
}

// ReadAll parses the full event stream written by this log.
func (l *Log) ReadAll() ([]Event, error) { return ReadAll(l.path) }

// Tail returns the last n events written by this log.
func (l *Log) Tail(n int) ([]Event, error) { return Tail(l.path, n) }

// Close releases the log file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// ReadAll parses the full event stream at path. Reading never mutates the
// log; malformed lines are skipped rather than aborting the read, so a
// torn final line from a crash does not hide the rest of the history.
func ReadAll(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}

// Tail returns the last n events.
func Tail(path string, n int) ([]Event, error) {
	events, err := ReadAll(path)
	if err != nil {
		return nil, err
	}
	if n > 0 && n < len(events) {
		events = events[len(events)-n:]
	}
	return events, nil
}
