// Package structural parses untrusted YAML under hard resource ceilings.
// It fails closed: any input that would exceed a limit is rejected before
// partial processing, and every rejection is classified so the validator
// can map it straight into a trust decision.
package structural

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrorKind classifies a structural rejection.
type ErrorKind string

const (
	ResourceExhaustion ErrorKind = "resource_exhaustion"
	ForbiddenConstruct ErrorKind = "forbidden_construct"
	MalformedInput     ErrorKind = "malformed_input"
)

// StructuralError is the only error type Parse returns.
type StructuralError struct {
	Kind   ErrorKind
	Detail string
	Cause  error
}

func (e *StructuralError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("structural %s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("structural %s: %s", e.Kind, e.Detail)
}

func (e *StructuralError) Unwrap() error { return e.Cause }

// Limits are the hard ceilings applied during parsing. Zero values are
// replaced by the conservative defaults from DefaultLimits.
type Limits struct {
	MaxInputBytes     int     // raw input size ceiling
	MaxDepth          int     // nesting depth ceiling
	MaxNodes          int     // total node count after alias expansion
	MaxAliasCount     int     // number of alias references
	MaxExpansionRatio float64 // expanded scalar bytes / input bytes
}

// DefaultLimits returns conservative ceilings. A 2 KB billion-laughs
// payload expanding 50,000x is rejected by both the ratio and node caps.
func DefaultLimits() Limits {
	return Limits{
		MaxInputBytes:     256 * 1024,
		MaxDepth:          20,
		MaxNodes:          10000,
		MaxAliasCount:     100,
		MaxExpansionRatio: 10,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxInputBytes <= 0 {
		l.MaxInputBytes = d.MaxInputBytes
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = d.MaxDepth
	}
	if l.MaxNodes <= 0 {
		l.MaxNodes = d.MaxNodes
	}
	if l.MaxAliasCount <= 0 {
		l.MaxAliasCount = d.MaxAliasCount
	}
	if l.MaxExpansionRatio <= 0 {
		l.MaxExpansionRatio = d.MaxExpansionRatio
	}
	return l
}

// forbiddenTagPrefixes are type tags that instruct a permissive loader to
// construct arbitrary objects or run code. Their presence is an attack
// indicator regardless of payload.
var forbiddenTagPrefixes = []string{
	"!!python/",
	"!!js/",
	"!!java/",
	"!!ruby/",
	"tag:yaml.org,2002:python/",
}

// Document is the decoded form of one input: the scalar fields in document
// order, ready for signature matching.
type Document struct {
	// Scalars holds every scalar value encountered, aliases expanded.
	Scalars []string
	// NodeCount is the total expanded node count (diagnostic).
	NodeCount int
}

// Text joins all scalar fields for matchers that want a single view.
func (d *Document) Text() string {
	return strings.Join(d.Scalars, "\n")
}

type walker struct {
	limits      Limits
	inputLen    int
	nodes       int
	aliases     int
	scalarBytes int
	out         *Document
}

// Parse decodes canonical text under the given limits. On any breach it
// returns a nil Document and a *StructuralError; a partially decoded
// document is never returned.
//
// Aliases are decoded to references by yaml.v3 and expanded here under a
// metered budget: each dereference charges the node and scalar budgets
// before descending, so the walk is linear in the budget no matter how
// large the logical expansion would be.
func Parse(canonical string, limits Limits) (*Document, error) {
	limits = limits.withDefaults()

	if len(canonical) > limits.MaxInputBytes {
		return nil, &StructuralError{
			Kind:   ResourceExhaustion,
			Detail: fmt.Sprintf("input %d bytes exceeds cap %d", len(canonical), limits.MaxInputBytes),
		}
	}

	inputLen := len(canonical)
	if inputLen == 0 {
		return &Document{}, nil
	}

	w := &walker{limits: limits, inputLen: inputLen, out: &Document{}}

	dec := yaml.NewDecoder(strings.NewReader(canonical))
	decoded := 0
	for {
		var root yaml.Node
		err := dec.Decode(&root)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &StructuralError{Kind: MalformedInput, Detail: "yaml decode failed", Cause: err}
		}
		decoded++
		if err := w.walk(&root, 0); err != nil {
			return nil, err
		}
	}

	if decoded == 0 {
		return &Document{}, nil
	}
	w.out.NodeCount = w.nodes
	return w.out, nil
}

func (w *walker) walk(n *yaml.Node, depth int) error {
	if depth > w.limits.MaxDepth {
		return &StructuralError{
			Kind:   ResourceExhaustion,
			Detail: fmt.Sprintf("nesting depth exceeds cap %d", w.limits.MaxDepth),
		}
	}

	w.nodes++
	if w.nodes > w.limits.MaxNodes {
		return &StructuralError{
			Kind:   ResourceExhaustion,
			Detail: fmt.Sprintf("expanded node count exceeds cap %d", w.limits.MaxNodes),
		}
	}

	if err := w.checkTag(n.Tag); err != nil {
		return err
	}

	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode, yaml.MappingNode:
		for _, child := range n.Content {
			if err := w.walk(child, depth+1); err != nil {
				return err
			}
		}

	case yaml.ScalarNode:
		w.scalarBytes += len(n.Value)
		if float64(w.scalarBytes) > w.limits.MaxExpansionRatio*float64(w.inputLen) {
			return &StructuralError{
				Kind: ResourceExhaustion,
				Detail: fmt.Sprintf("expansion ratio exceeds cap %.0fx (%d expanded bytes from %d input bytes)",
					w.limits.MaxExpansionRatio, w.scalarBytes, w.inputLen),
			}
		}
		w.out.Scalars = append(w.out.Scalars, n.Value)

	case yaml.AliasNode:
		w.aliases++
		if w.aliases > w.limits.MaxAliasCount {
			return &StructuralError{
				Kind:   ResourceExhaustion,
				Detail: fmt.Sprintf("alias reference count exceeds cap %d", w.limits.MaxAliasCount),
			}
		}
		if n.Alias != nil {
			// Expanding the anchor target re-charges node and scalar
			// budgets, which is what defeats amplification chains.
			if err := w.walk(n.Alias, depth+1); err != nil {
				return err
			}
		}
	}

	return nil
}

func (w *walker) checkTag(tag string) error {
	if tag == "" || strings.HasPrefix(tag, "!!") && isPlainTag(tag) {
		return nil
	}
	for _, prefix := range forbiddenTagPrefixes {
		if strings.HasPrefix(tag, prefix) {
			return &StructuralError{
				Kind:   ForbiddenConstruct,
				Detail: fmt.Sprintf("forbidden type tag %q", tag),
			}
		}
	}
	// Any custom local tag (single !) requests a constructor the schema
	// does not define. Reject rather than guess.
	if strings.HasPrefix(tag, "!") && !strings.HasPrefix(tag, "!!") {
		return &StructuralError{
			Kind:   ForbiddenConstruct,
			Detail: fmt.Sprintf("custom constructor tag %q", tag),
		}
	}
	return nil
}

// isPlainTag allows the core YAML schema tags only.
func isPlainTag(tag string) bool {
	switch tag {
	case "!!str", "!!int", "!!float", "!!bool", "!!null", "!!map", "!!seq", "!!timestamp", "!!merge":
		return true
	}
	return false
}
