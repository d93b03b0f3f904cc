// Package trust defines the trust classification model shared by the
// validation pipeline: trust levels, validator decisions, signature
// severities, and the per-entry validation record.
package trust

import (
	"fmt"
	"time"
)

// Level is the coarse classification of how safe a stored content entry
// is to expose to downstream consumers.
type Level string

const (
	Untrusted   Level = "UNTRUSTED"
	Validated   Level = "VALIDATED"
	Flagged     Level = "FLAGGED"
	Quarantined Level = "QUARANTINED"
)

// Decision is the outcome of a single validation pass.
type Decision string

const (
	DecisionPass       Decision = "pass"
	DecisionFlag       Decision = "flag"
	DecisionQuarantine Decision = "quarantine"
)

// Severity ranks signatures and evasion findings.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns a numeric severity for comparison. Higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Origin records where an entry's bytes came from.
type Origin string

const (
	OriginLocal    Origin = "local"
	OriginImported Origin = "imported"
	OriginRemote   Origin = "remote"
)

// Entry is one content entry owned by an element in the store. Raw holds
// the bytes as ingested; History is append-only and is the system of
// record for audit purposes.
type Entry struct {
	ID              string
	Raw             []byte
	Origin          Origin
	CreatedAt       time.Time
	Level           Level
	LastValidatedAt time.Time
	History         []Result
}

// Result is one validation pass over an entry. Never mutated after creation.
type Result struct {
	EntryID        string    `json:"entry_id"`
	Timestamp      time.Time `json:"timestamp"`
	MatchedIDs     []string  `json:"matched_signature_ids,omitempty"`
	Decision       Decision  `json:"decision"`
	DurationMicros int64     `json:"duration_us"`
	// StructuralKind is set when a structural parse failure drove the
	// decision: "resource_exhaustion", "forbidden_construct",
	// "malformed_input" or "timeout".
	StructuralKind string `json:"structural_kind,omitempty"`
}

// ErrIllegalTransition is returned by Next for (level, decision) pairs
// outside the transition table.
type ErrIllegalTransition struct {
	From     Level
	Decision Decision
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal trust transition: %s on %s", e.Decision, e.From)
}

// Next applies the trust transition table. VALIDATED and QUARANTINED are
// terminal with respect to validator decisions: they only re-enter
// UNTRUSTED through re-ingestion, which is not a validator transition.
func Next(from Level, d Decision) (Level, error) {
	switch from {
	case Untrusted, Flagged:
		switch d {
		case DecisionPass:
			return Validated, nil
		case DecisionFlag:
			return Flagged, nil
		case DecisionQuarantine:
			return Quarantined, nil
		}
	case Validated, Quarantined:
		// No automatic transition out of a terminal level.
	}
	return from, &ErrIllegalTransition{From: from, Decision: d}
}

// Levels lists all trust levels, useful for index initialization.
func Levels() []Level {
	return []Level{Untrusted, Validated, Flagged, Quarantined}
}
