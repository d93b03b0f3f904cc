// Package pipeline wires the validation components into the surface the
// host application consumes: synchronous validation, trust queries, the
// gated content read, and the telemetry export. Every validation call
// lands exactly one audit record and one history row, or fails loudly.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DollhouseMCP/contentguard/internal/audit"
	"github.com/DollhouseMCP/contentguard/internal/ledger"
	"github.com/DollhouseMCP/contentguard/internal/structural"
	"github.com/DollhouseMCP/contentguard/internal/telemetry"
	"github.com/DollhouseMCP/contentguard/internal/trust"
	"github.com/DollhouseMCP/contentguard/internal/validator"
)

// AuditRecorder is the durable sink for validation decisions.
// *audit.Log is the production implementation.
type AuditRecorder interface {
	Record(audit.Event) error
}

// Pipeline owns the foreground validation path.
type Pipeline struct {
	validator *validator.Validator
	ledger    *ledger.Ledger
	auditLog  AuditRecorder
	collector *telemetry.Collector
	log       *zap.Logger

	// locks serializes the whole read-validate-record sequence per
	// entry, so a re-ingestion can never race a validation of the same
	// entry's previous bytes. Different entries proceed in parallel.
	locks sync.Map

	// onFlagged is called after a validation leaves an entry FLAGGED,
	// typically to hand it to the background revalidator.
	onFlagged func(entryID string)
}

func (p *Pipeline) entryLock(id string) *sync.Mutex {
	mu, _ := p.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// New assembles a pipeline. All collaborators are required except log.
func New(v *validator.Validator, l *ledger.Ledger, a AuditRecorder, c *telemetry.Collector, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		validator: v,
		ledger:    l,
		auditLog:  a,
		collector: c,
		log:       log,
	}
}

// OnFlagged registers the hook invoked when an entry lands at FLAGGED.
// Must be called before validation traffic starts.
func (p *Pipeline) OnFlagged(fn func(entryID string)) { p.onFlagged = fn }

// Ingest registers new content at UNTRUSTED and validates it before first
// use. Returns the resulting trust level.
func (p *Pipeline) Ingest(ctx context.Context, id string, raw []byte, origin trust.Origin) (trust.Level, error) {
	mu := p.entryLock(id)
	mu.Lock()
	defer mu.Unlock()

	if err := p.ledger.Ingest(ctx, &trust.Entry{
		ID:        id,
		Raw:       raw,
		Origin:    origin,
		CreatedAt: time.Now(),
	}); err != nil {
		return "", err
	}
	return p.validateLocked(ctx, id)
}

// Reingest replaces an entry's bytes and restarts validation from
// UNTRUSTED. This is the only path out of QUARANTINED. The replacement
// and the validation of the new bytes happen under one lock hold, so no
// result computed against the old bytes can land in between.
func (p *Pipeline) Reingest(ctx context.Context, id string, raw []byte, origin trust.Origin) (trust.Level, error) {
	mu := p.entryLock(id)
	mu.Lock()
	defer mu.Unlock()

	if err := p.ledger.Reingest(ctx, id, raw, origin); err != nil {
		return "", err
	}
	return p.validateLocked(ctx, id)
}

// Validate runs the full synchronous validation pass for one entry and
// returns the resulting trust level. The trust state is durably recorded
// before a success return; an unrecorded decision never reads as a pass.
func (p *Pipeline) Validate(ctx context.Context, id string) (trust.Level, error) {
	mu := p.entryLock(id)
	mu.Lock()
	defer mu.Unlock()
	return p.validateLocked(ctx, id)
}

func (p *Pipeline) validateLocked(ctx context.Context, id string) (trust.Level, error) {
	entry, err := p.ledger.Entry(ctx, id)
	if err != nil {
		return "", err
	}
	from := entry.Level

	out := p.validator.Validate(ctx, id, entry.Raw)

	to, err := p.ledger.RecordResult(ctx, out.Result)
	if err != nil {
		return "", fmt.Errorf("persisting trust state: %w", err)
	}

	if err := p.auditLog.Record(audit.Event{
		EntryID:    id,
		Timestamp:  out.Result.Timestamp,
		Decision:   out.Result.Decision,
		MatchedIDs: out.Result.MatchedIDs,
		DurationUs: out.Result.DurationMicros,
		TrustFrom:  from,
		TrustTo:    to,
	}); err != nil {
		// The trust state is already durable; the host must still know
		// the audit record is missing.
		return "", fmt.Errorf("writing audit record: %w", err)
	}

	p.recordTelemetry(entry.Origin, out)

	p.log.Info("entry validated",
		zap.String("entry_id", id),
		zap.String("decision", string(out.Result.Decision)),
		zap.String("trust_from", string(from)),
		zap.String("trust_to", string(to)),
		zap.Int("matches", len(out.Matches)))

	if to == trust.Flagged && p.onFlagged != nil {
		p.onFlagged(id)
	}
	return to, nil
}

// GetTrustLevel returns the current trust level for an entry.
func (p *Pipeline) GetTrustLevel(id string) (trust.Level, error) {
	return p.ledger.Level(id)
}

// ListByTrustLevel returns up to limit entry ids at the given level.
func (p *Pipeline) ListByTrustLevel(level trust.Level, limit int) []string {
	return p.ledger.ListByLevel(level, limit)
}

// Content is the gated read: QUARANTINED content is never returned.
func (p *Pipeline) Content(ctx context.Context, id string) ([]byte, error) {
	return p.ledger.Content(ctx, id)
}

// Destroy removes an entry and its history with its owning element.
func (p *Pipeline) Destroy(ctx context.Context, id string) error {
	return p.ledger.Destroy(ctx, id)
}

// ExportSnapshot returns the current telemetry window.
func (p *Pipeline) ExportSnapshot() telemetry.Snapshot {
	return p.collector.ExportSnapshot()
}

// recordTelemetry feeds the bounded collector. Best effort by design:
// eviction under pressure is acceptable here, unlike the audit log.
func (p *Pipeline) recordTelemetry(origin trust.Origin, out validator.Outcome) {
	if out.Result.Decision == trust.DecisionPass {
		return
	}
	ts := out.Result.Timestamp
	hint := string(origin)

	// Malformed input is a parse failure, not an attack; only budget
	// breaches, forbidden constructs and timeouts count as bombs.
	if out.Result.StructuralKind != "" && out.Result.StructuralKind != string(structural.MalformedInput) {
		p.collector.Record(telemetry.AttackRecord{
			Timestamp:  ts,
			Vector:     "structural_bomb",
			Severity:   trust.SeverityCritical,
			OriginHint: hint,
		})
	}
	for _, m := range out.Matches {
		p.collector.Record(telemetry.AttackRecord{
			Timestamp:  ts,
			Vector:     string(m.Category),
			Severity:   m.Severity,
			OriginHint: hint,
		})
	}
	for _, f := range out.Findings {
		if f.Severity.Rank() >= trust.SeverityMedium.Rank() {
			p.collector.Record(telemetry.AttackRecord{
				Timestamp:  ts,
				Vector:     "unicode_evasion",
				Severity:   f.Severity,
				OriginHint: hint,
			})
		}
	}
}
