package permkit

import (
	"strings"
)

// WildcardMatcher decides whether a held permission pattern implies a
// requested permission. Patterns are split into parts on PartDelimiter;
// each part is a set of alternative tokens split on SubpartDelimiter.
//
// The implication is asymmetric:
//
//	Implies("posts", "posts.create.123")          // true - held is broader
//	Implies("posts.*", "posts.create.anything")   // true - wildcard absorbs
//	Implies("posts.edit,view", "posts.view")      // true - token containment
//	Implies("posts.create", "posts")              // false - held is narrower
type WildcardMatcher struct {
	// PartDelimiter separates parts. Default ".".
	PartDelimiter string

	// SubpartDelimiter separates alternative tokens within a part.
	// Default ",".
	SubpartDelimiter string

	// WildcardToken matches any requested part. Default "*".
	WildcardToken string
}

// NewWildcardMatcher returns a matcher with the default symbols.
func NewWildcardMatcher() *WildcardMatcher {
	return &WildcardMatcher{
		PartDelimiter:    ".",
		SubpartDelimiter: ",",
		WildcardToken:    "*",
	}
}

// WildcardPermission is a parsed pattern: an ordered sequence of parts,
// each a set of alternative tokens.
type WildcardPermission struct {
	source  string
	parts   []map[string]struct{}
	matcher *WildcardMatcher
}

// Parse validates and parses a permission string into a pattern.
// Returns ErrWildcardNotProperlyFormatted for an empty string, an empty
// part, or an empty subpart.
func (m *WildcardMatcher) Parse(permission string) (*WildcardPermission, error) {
	if permission == "" {
		return nil, NewError(ErrWildcardNotProperlyFormatted, "permission is empty")
	}

	rawParts := strings.Split(permission, m.PartDelimiter)
	parts := make([]map[string]struct{}, 0, len(rawParts))
	for _, rawPart := range rawParts {
		tokens := strings.Split(rawPart, m.SubpartDelimiter)
		set := make(map[string]struct{}, len(tokens))
		for _, token := range tokens {
			if token == "" {
				return nil, NewError(ErrWildcardNotProperlyFormatted, "empty part in permission").
					WithPermission(permission)
			}
			set[token] = struct{}{}
		}
		if len(set) == 0 {
			return nil, NewError(ErrWildcardNotProperlyFormatted, "empty part in permission").
				WithPermission(permission)
		}
		parts = append(parts, set)
	}

	return &WildcardPermission{source: permission, parts: parts, matcher: m}, nil
}

// Source returns the original permission string.
func (p *WildcardPermission) Source() string {
	return p.source
}

// Implies reports whether this held pattern grants the requested pattern.
//
// For each part of the requested pattern in order: a held pattern that ran
// out of parts matches (shorter is broader); a held wildcard part matches
// anything; otherwise every requested token at that position must be
// present in the held part's token set. Held parts left over after the
// requested pattern is exhausted must all be the wildcard.
func (p *WildcardPermission) Implies(requested *WildcardPermission) bool {
	wildcard := p.matcher.WildcardToken

	for i, reqPart := range requested.parts {
		if i >= len(p.parts) {
			return true
		}
		heldPart := p.parts[i]
		if _, ok := heldPart[wildcard]; ok {
			continue
		}
		for token := range reqPart {
			if _, ok := heldPart[token]; !ok {
				return false
			}
		}
	}

	for i := len(requested.parts); i < len(p.parts); i++ {
		heldPart := p.parts[i]
		if len(heldPart) != 1 {
			return false
		}
		if _, ok := heldPart[wildcard]; !ok {
			return false
		}
	}

	return true
}

// Implies parses both strings and reports whether held implies requested.
func (m *WildcardMatcher) Implies(held, requested string) (bool, error) {
	heldPattern, err := m.Parse(held)
	if err != nil {
		return false, err
	}
	reqPattern, err := m.Parse(requested)
	if err != nil {
		return false, err
	}
	return heldPattern.Implies(reqPattern), nil
}

// ImpliesAny reports whether any held pattern implies the requested
// permission. Parsing stops at the first malformed pattern.
func (m *WildcardMatcher) ImpliesAny(held []string, requested string) (bool, error) {
	reqPattern, err := m.Parse(requested)
	if err != nil {
		return false, err
	}
	for _, h := range held {
		heldPattern, err := m.Parse(h)
		if err != nil {
			return false, err
		}
		if heldPattern.Implies(reqPattern) {
			return true, nil
		}
	}
	return false, nil
}

// DefaultWildcardMatcher is the matcher used when a Service is built
// without a custom one.
var DefaultWildcardMatcher = NewWildcardMatcher()
