// Package unicode canonicalizes untrusted text and flags encoding-level
// evasion before any pattern matching runs. Canonical output has invisible
// and bidirectional control characters stripped so downstream matchers see
// the de-cloaked text; finding positions are byte offsets into the
// NFKC-normalized text, before stripping.
package unicode

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/DollhouseMCP/contentguard/internal/trust"
)

// Finding is one detected evasion indicator. Findings never carry a trust
// decision themselves; the validator scores them.
type Finding struct {
	Category    string         // "invalid-utf8", "bidi-override", "zero-width", "tag-char", "control-char", "homoglyph", "mixed-script"
	Description string
	Position    int            // byte offset into the NFKC-normalized text
	Codepoint   string         // e.g. "U+202E"
	Severity    trust.Severity
}

// keywords that make an adjacent invisible character suspicious: an
// attacker splits these to dodge naive substring scanning.
var splitTargets = []string{
	"ignore", "system", "prompt", "instruction", "execute", "eval",
	"curl", "wget", "bash", "token", "secret", "password",
}

// Normalize applies NFKC canonicalization, then makes a single linear pass
// flagging evasion indicators. It never fails: malformed byte sequences are
// themselves a finding, and the offending bytes are dropped from the
// canonical output.
func Normalize(text string) (string, []Finding) {
	var findings []Finding

	// NFKC folds compatibility variants (fullwidth forms, ligatures) that
	// attackers use to dodge ASCII substring matching.
	canonical := norm.NFKC.String(text)

	var out strings.Builder
	out.Grow(len(canonical))

	i := 0
	for i < len(canonical) {
		r, size := utf8.DecodeRuneInString(canonical[i:])

		if r == utf8.RuneError && size == 1 {
			findings = append(findings, Finding{
				Category:    "invalid-utf8",
				Description: "invalid UTF-8 byte sequence",
				Position:    i,
				Codepoint:   fmt.Sprintf("0x%02X", canonical[i]),
				Severity:    trust.SeverityHigh,
			})
			i++
			continue
		}

		if f, found := classifyRune(canonical, r, i); found {
			findings = append(findings, f)
			// Strip invisible and control characters so matchers see the
			// joined text. Homoglyphs stay: removing them would corrupt
			// legitimate non-Latin content.
			if f.Category != "homoglyph" {
				i += size
				continue
			}
		}

		out.WriteRune(r)
		i += size
	}

	result := out.String()
	findings = append(findings, scanMixedScript(result)...)
	return result, findings
}

func classifyRune(s string, r rune, pos int) (Finding, bool) {
	cp := fmt.Sprintf("U+%04X", r)

	if isZeroWidth(r) {
		sev := trust.SeverityMedium
		desc := fmt.Sprintf("zero-width character %s can hide content from scanning", cp)
		if nearSplitTarget(s, pos) {
			sev = trust.SeverityHigh
			desc = fmt.Sprintf("zero-width character %s splits a scanner keyword", cp)
		}
		return Finding{Category: "zero-width", Description: desc, Position: pos, Codepoint: cp, Severity: sev}, true
	}

	if isBidiControl(r) {
		return Finding{
			Category:    "bidi-override",
			Description: fmt.Sprintf("bidirectional control %s can make displayed text differ from stored text", cp),
			Position:    pos,
			Codepoint:   cp,
			Severity:    trust.SeverityHigh,
		}, true
	}

	if r >= 0xE0001 && r <= 0xE007F {
		return Finding{
			Category:    "tag-char",
			Description: fmt.Sprintf("Unicode tag character %s can smuggle hidden instructions", cp),
			Position:    pos,
			Codepoint:   cp,
			Severity:    trust.SeverityHigh,
		}, true
	}

	if isUnsafeControl(r) {
		return Finding{
			Category:    "control-char",
			Description: fmt.Sprintf("control character %s should not appear in content", cp),
			Position:    pos,
			Codepoint:   cp,
			Severity:    trust.SeverityMedium,
		}, true
	}

	if latin, ok := confusables[r]; ok {
		return Finding{
			Category:    "homoglyph",
			Description: fmt.Sprintf("%s is visually confusable with Latin '%c'", cp, latin),
			Position:    pos,
			Codepoint:   cp,
			Severity:    trust.SeverityMedium,
		}, true
	}

	return Finding{}, false
}

// nearSplitTarget reports whether the runes around pos, with invisible
// characters removed, spell one of the split-target keywords.
func nearSplitTarget(s string, pos int) bool {
	const window = 16
	lo := pos - window
	if lo < 0 {
		lo = 0
	}
	hi := pos + window
	if hi > len(s) {
		hi = len(s)
	}

	var joined strings.Builder
	for _, r := range s[lo:hi] {
		if isZeroWidth(r) || isBidiControl(r) {
			continue
		}
		joined.WriteRune(unicode.ToLower(r))
	}
	frag := joined.String()
	for _, kw := range splitTargets {
		if strings.Contains(frag, kw) {
			return true
		}
	}
	return false
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u00AD', // SOFT HYPHEN
		'\u180E', // MONGOLIAN VOWEL SEPARATOR
		'\u200B', // ZERO WIDTH SPACE
		'\u200C', // ZERO WIDTH NON-JOINER
		'\u200D', // ZERO WIDTH JOINER
		'\u200E', // LEFT-TO-RIGHT MARK
		'\u200F', // RIGHT-TO-LEFT MARK
		'\u2060', // WORD JOINER
		'\uFEFF': // ZERO WIDTH NO-BREAK SPACE (BOM)
		return true
	}
	// Variation selectors: emoji steganography vector.
	if r >= 0xFE00 && r <= 0xFE0F {
		return true
	}
	if r >= 0xE0100 && r <= 0xE01EF {
		return true
	}
	return false
}

func isBidiControl(r rune) bool {
	switch r {
	case '\u202A', // LEFT-TO-RIGHT EMBEDDING
		'\u202B', // RIGHT-TO-LEFT EMBEDDING
		'\u202C', // POP DIRECTIONAL FORMATTING
		'\u202D', // LEFT-TO-RIGHT OVERRIDE
		'\u202E', // RIGHT-TO-LEFT OVERRIDE
		'\u2066', // LEFT-TO-RIGHT ISOLATE
		'\u2067', // RIGHT-TO-LEFT ISOLATE
		'\u2068', // FIRST STRONG ISOLATE
		'\u2069': // POP DIRECTIONAL ISOLATE
		return true
	}
	return false
}

func isUnsafeControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	if r <= 0x1F || r == 0x7F {
		return true
	}
	// C1 controls
	if r >= 0x80 && r <= 0x9F {
		return true
	}
	return false
}
