// Package signature holds the immutable threat signature catalog and the
// bounded-time matchers that scan decoded content. Matching is strictly
// linear in input length: regex signatures compile under Go's RE2 engine
// (no backtracking), and the shell matcher parses once per candidate.
package signature

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/DollhouseMCP/contentguard/internal/redact"
	"github.com/DollhouseMCP/contentguard/internal/trust"
)

// Category is the closed set of threat classes a signature can belong to.
type Category string

const (
	CategoryInjection      Category = "injection"
	CategoryExfiltration   Category = "exfiltration"
	CategoryXSS            Category = "xss"
	CategoryCommand        Category = "command"
	CategoryStructuralBomb Category = "structural_bomb"
	CategoryUnicodeEvasion Category = "unicode_evasion"
)

func validCategory(c Category) bool {
	switch c {
	case CategoryInjection, CategoryExfiltration, CategoryXSS,
		CategoryCommand, CategoryStructuralBomb, CategoryUnicodeEvasion:
		return true
	}
	return false
}

// Signature is one immutable detection rule. Exactly one of the matcher
// fields (regex, substrings, shellCheck) is active.
type Signature struct {
	ID          string
	Category    Category
	Severity    trust.Severity
	Description string

	re         *regexp.Regexp
	substrings []string
	shellCheck string
}

// Match records one signature hit on a piece of content.
type Match struct {
	SignatureID string
	Category    Category
	Severity    trust.Severity
	Detail      string
}

// Catalog is a versioned, immutable set of signatures. Build one with
// Default or Load; never mutate it after construction.
type Catalog struct {
	version string
	sigs    []Signature
}

// Version identifies the catalog as a unit.
func (c *Catalog) Version() string { return c.version }

// Len returns the number of signatures.
func (c *Catalog) Len() int { return len(c.sigs) }

// Lookup returns the category and severity recorded for a signature id.
func (c *Catalog) Lookup(id string) (Category, trust.Severity, bool) {
	for i := range c.sigs {
		if c.sigs[i].ID == id {
			return c.sigs[i].Category, c.sigs[i].Severity, true
		}
	}
	return "", "", false
}

// Scan runs every signature against the given texts and returns all
// matches. One signature matches at most once per call.
func (c *Catalog) Scan(texts []string) []Match {
	var matches []Match
	for i := range c.sigs {
		sig := &c.sigs[i]
		for _, text := range texts {
			if detail, ok := sig.match(text); ok {
				matches = append(matches, Match{
					SignatureID: sig.ID,
					Category:    sig.Category,
					Severity:    sig.Severity,
					Detail:      detail,
				})
				break
			}
		}
	}
	return matches
}

func (s *Signature) match(text string) (string, bool) {
	switch {
	case s.re != nil:
		if loc := s.re.FindStringIndex(text); loc != nil {
			// The excerpt is redacted so exfiltration matches do not
			// copy the secret they found into logs and audit output.
			excerpt := redact.Excerpt(text[loc[0]:loc[1]], 80)
			return fmt.Sprintf("%s at offset %d: %q", s.Description, loc[0], excerpt), true
		}
	case len(s.substrings) > 0:
		lower := strings.ToLower(text)
		for _, sub := range s.substrings {
			if strings.Contains(lower, sub) {
				return s.Description, true
			}
		}
	case s.shellCheck != "":
		if detail, ok := runShellCheck(s.shellCheck, text); ok {
			if detail == "" {
				detail = s.Description
			}
			return detail, true
		}
	}
	return "", false
}

func newCatalog(version string, sigs []Signature) (*Catalog, error) {
	seen := make(map[string]bool, len(sigs))
	for i := range sigs {
		s := &sigs[i]
		if s.ID == "" {
			return nil, fmt.Errorf("signature %d: missing id", i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("signature %q: duplicate id", s.ID)
		}
		seen[s.ID] = true
		if !validCategory(s.Category) {
			return nil, fmt.Errorf("signature %q: unknown category %q", s.ID, s.Category)
		}
		if s.Severity.Rank() == 0 {
			return nil, fmt.Errorf("signature %q: unknown severity %q", s.ID, s.Severity)
		}
		active := 0
		if s.re != nil {
			active++
		}
		if len(s.substrings) > 0 {
			active++
		}
		if s.shellCheck != "" {
			if !knownShellCheck(s.shellCheck) {
				return nil, fmt.Errorf("signature %q: unknown shell check %q", s.ID, s.shellCheck)
			}
			active++
		}
		if active != 1 {
			return nil, fmt.Errorf("signature %q: exactly one matcher required, got %d", s.ID, active)
		}
	}
	return &Catalog{version: version, sigs: sigs}, nil
}
