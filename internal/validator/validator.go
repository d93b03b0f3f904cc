// Package validator runs the full content validation pass: unicode
// canonicalization, bounded structural parsing, and signature matching,
// folded into a single trust decision. Every call produces exactly one
// Result, including on timeout — the pipeline never surfaces a validation
// as a bare error to its host.
package validator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DollhouseMCP/contentguard/internal/signature"
	"github.com/DollhouseMCP/contentguard/internal/structural"
	"github.com/DollhouseMCP/contentguard/internal/trust"
	"github.com/DollhouseMCP/contentguard/internal/unicode"
)

// TimeoutSignatureID is the synthetic signature recorded when the
// defense-in-depth timer fires. Mapped to quarantine, never a silent pass.
const TimeoutSignatureID = "bomb-validation-timeout"

// structuralSignatureID marks results driven by a parser rejection.
const structuralSignatureID = "bomb-structural-reject"

// Options configure a Validator. Zero values take conservative defaults.
type Options struct {
	Limits  structural.Limits
	Timeout time.Duration
}

// Validator is safe for concurrent use: the catalog is immutable and each
// call carries its own state.
type Validator struct {
	catalog *signature.Catalog
	limits  structural.Limits
	timeout time.Duration
	log     *zap.Logger
}

// New builds a Validator around an immutable signature catalog.
func New(catalog *signature.Catalog, opts Options, log *zap.Logger) *Validator {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{
		catalog: catalog,
		limits:  opts.Limits,
		timeout: opts.Timeout,
		log:     log,
	}
}

// Outcome bundles the validation record with the evidence behind it.
type Outcome struct {
	Result   trust.Result
	Matches  []signature.Match
	Findings []unicode.Finding
	// StructuralErr is non-nil when parsing drove the decision.
	StructuralErr *structural.StructuralError
}

// Validate scans raw content and returns exactly one Outcome. The context
// bounds wall-clock time as a backstop; expiry maps to quarantine through
// the same path as resource exhaustion.
func (v *Validator) Validate(ctx context.Context, entryID string, raw []byte) Outcome {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	type scanOut struct {
		matches  []signature.Match
		findings []unicode.Finding
		serr     *structural.StructuralError
	}
	done := make(chan scanOut, 1)

	go func() {
		var out scanOut

		canonical, findings := unicode.Normalize(string(raw))
		out.findings = findings

		doc, err := structural.Parse(canonical, v.limits)
		if err != nil {
			// Parse always fails with a *StructuralError.
			out.serr = err.(*structural.StructuralError)
			done <- out
			return
		}

		texts := append([]string{canonical}, doc.Scalars...)
		out.matches = v.catalog.Scan(texts)
		done <- out
	}()

	var out scanOut
	timedOut := false
	select {
	case out = <-done:
	case <-ctx.Done():
		timedOut = true
	}

	res := trust.Result{
		EntryID:        entryID,
		Timestamp:      start,
		DurationMicros: time.Since(start).Microseconds(),
	}

	switch {
	case timedOut:
		res.Decision = trust.DecisionQuarantine
		res.StructuralKind = "timeout"
		res.MatchedIDs = []string{TimeoutSignatureID}
		v.log.Warn("validation timed out",
			zap.String("entry_id", entryID),
			zap.Duration("timeout", v.timeout))

	case out.serr != nil && out.serr.Kind != structural.MalformedInput:
		// ResourceExhaustion and ForbiddenConstruct are attack signals,
		// not parse failures to retry.
		res.Decision = trust.DecisionQuarantine
		res.StructuralKind = string(out.serr.Kind)
		res.MatchedIDs = []string{structuralSignatureID}

	case out.serr != nil:
		// Undecodable input is scanned as raw text rather than quarantined
		// outright: plenty of legitimate entries are prose, and the unicode
		// findings still count.
		canonical, _ := unicode.Normalize(string(raw))
		out.matches = v.catalog.Scan([]string{canonical})
		res.StructuralKind = string(structural.MalformedInput)
		res.Decision = decide(out.matches, out.findings)
		res.MatchedIDs = matchedIDs(out.matches, nil)

	default:
		res.Decision = decide(out.matches, out.findings)
		res.MatchedIDs = matchedIDs(out.matches, nil)
	}

	return Outcome{
		Result:        res,
		Matches:       out.matches,
		Findings:      out.findings,
		StructuralErr: out.serr,
	}
}

// decide applies the decision rule, highest precedence first:
//  1. any CRITICAL match => quarantine
//  2. any HIGH match, 2+ MEDIUM matches, or any evasion finding with
//     severity >= MEDIUM => flag
//  3. otherwise => pass
//
// Structural rejections and timeouts are handled before this point.
func decide(matches []signature.Match, findings []unicode.Finding) trust.Decision {
	// Examine every match before deciding: a CRITICAL hit outranks any
	// number of HIGH hits seen earlier in the catalog order.
	highs, mediums := 0, 0
	for _, m := range matches {
		switch m.Severity {
		case trust.SeverityCritical:
			return trust.DecisionQuarantine
		case trust.SeverityHigh:
			highs++
		case trust.SeverityMedium:
			mediums++
		}
	}
	if highs > 0 || mediums >= 2 {
		return trust.DecisionFlag
	}
	for _, f := range findings {
		if f.Severity.Rank() >= trust.SeverityMedium.Rank() {
			return trust.DecisionFlag
		}
	}
	return trust.DecisionPass
}

func matchedIDs(matches []signature.Match, base []string) []string {
	ids := base
	for _, m := range matches {
		ids = append(ids, m.SignatureID)
	}
	return ids
}
