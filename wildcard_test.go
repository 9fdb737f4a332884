package permkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewWildcardMatcher tests the matcher constructor defaults
func TestNewWildcardMatcher(t *testing.T) {
	matcher := NewWildcardMatcher()
	require.NotNil(t, matcher)
	assert.Equal(t, ".", matcher.PartDelimiter)
	assert.Equal(t, ",", matcher.SubpartDelimiter)
	assert.Equal(t, "*", matcher.WildcardToken)
}

// TestWildcardImplies tests held-pattern-implies-requested matching
func TestWildcardImplies(t *testing.T) {
	matcher := NewWildcardMatcher()

	tests := []struct {
		name      string
		held      string
		requested string
		expected  bool
	}{
		// Exact matches
		{
			name:      "Identical single part",
			held:      "articles",
			requested: "articles",
			expected:  true,
		},
		{
			name:      "Identical multi part",
			held:      "articles.edit",
			requested: "articles.edit",
			expected:  true,
		},
		{
			name:      "Different action",
			held:      "articles.edit",
			requested: "articles.create",
			expected:  false,
		},
		{
			name:      "Different resource",
			held:      "articles.edit",
			requested: "news.edit",
			expected:  false,
		},

		// Universal wildcard
		{
			name:      "Star implies everything",
			held:      "*",
			requested: "articles.edit.own",
			expected:  true,
		},
		{
			name:      "Star implies single part",
			held:      "*",
			requested: "articles",
			expected:  true,
		},

		// Prefix open-endedness: the held pattern ran out of parts
		{
			name:      "Shorter held implies deeper requested",
			held:      "articles",
			requested: "articles.edit",
			expected:  true,
		},
		{
			name:      "Shorter held implies much deeper requested",
			held:      "articles.edit",
			requested: "articles.edit.own.drafts",
			expected:  true,
		},
		{
			name:      "Deeper requested with mismatched prefix",
			held:      "articles.view",
			requested: "articles.edit.own",
			expected:  false,
		},

		// Longer held than requested: leftovers must all be wildcard
		{
			name:      "Trailing wildcard part absorbs missing request part",
			held:      "articles.*",
			requested: "articles",
			expected:  true,
		},
		{
			name:      "Trailing literal part does not absorb",
			held:      "articles.edit",
			requested: "articles",
			expected:  false,
		},
		{
			name:      "Two trailing wildcards absorb",
			held:      "articles.*.*",
			requested: "articles",
			expected:  true,
		},
		{
			name:      "Wildcard then literal leftover fails",
			held:      "articles.*.own",
			requested: "articles",
			expected:  false,
		},

		// Wildcard inside the pattern
		{
			name:      "Middle wildcard matches any action",
			held:      "articles.*.own",
			requested: "articles.edit.own",
			expected:  true,
		},
		{
			name:      "Middle wildcard with tail mismatch",
			held:      "articles.*.own",
			requested: "articles.edit.all",
			expected:  false,
		},

		// Subpart alternatives
		{
			name:      "Alternative tokens contain requested",
			held:      "articles.edit,view,create",
			requested: "articles.view",
			expected:  true,
		},
		{
			name:      "Alternative tokens missing requested",
			held:      "articles.edit,view",
			requested: "articles.delete",
			expected:  false,
		},
		{
			name:      "Requested alternatives must all be held",
			held:      "articles.edit,view,create",
			requested: "articles.edit,view",
			expected:  true,
		},
		{
			name:      "Requested alternatives partially held",
			held:      "articles.edit",
			requested: "articles.edit,view",
			expected:  false,
		},

		// Names with no special characters at all
		{
			name:      "Plain names behave as exact",
			held:      "dashboard",
			requested: "reports",
			expected:  false,
		},
		{
			name:      "Numeric parts",
			held:      "projects.42.read",
			requested: "projects.42.read",
			expected:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := matcher.Implies(tt.held, tt.requested)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

// TestWildcardParseErrors tests malformed pattern handling
func TestWildcardParseErrors(t *testing.T) {
	matcher := NewWildcardMatcher()

	tests := []struct {
		name    string
		pattern string
	}{
		{name: "Empty string", pattern: ""},
		{name: "Empty middle part", pattern: "articles..edit"},
		{name: "Empty leading part", pattern: ".articles"},
		{name: "Empty trailing part", pattern: "articles."},
		{name: "Empty subpart", pattern: "articles.edit,,view"},
		{name: "Trailing comma", pattern: "articles.edit,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := matcher.Parse(tt.pattern)
			assert.ErrorIs(t, err, ErrWildcardNotProperlyFormatted)
		})
	}
}

// TestWildcardImpliesMalformedHeld tests that a malformed held pattern
// surfaces an error rather than silently denying
func TestWildcardImpliesMalformedHeld(t *testing.T) {
	matcher := NewWildcardMatcher()

	_, err := matcher.Implies("articles..edit", "articles.edit")
	assert.ErrorIs(t, err, ErrWildcardNotProperlyFormatted)
}

// TestWildcardImpliesAny tests checking one requested name against a held set
func TestWildcardImpliesAny(t *testing.T) {
	matcher := NewWildcardMatcher()

	held := []string{"news.view", "articles.*"}

	got, err := matcher.ImpliesAny(held, "articles.publish")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = matcher.ImpliesAny(held, "news.edit")
	require.NoError(t, err)
	assert.False(t, got)

	got, err = matcher.ImpliesAny(nil, "articles.edit")
	require.NoError(t, err)
	assert.False(t, got)
}

// TestWildcardCustomDelimiters tests a matcher with non-default syntax
func TestWildcardCustomDelimiters(t *testing.T) {
	matcher := &WildcardMatcher{
		PartDelimiter:    "/",
		SubpartDelimiter: "|",
		WildcardToken:    "%",
	}

	tests := []struct {
		name      string
		held      string
		requested string
		expected  bool
	}{
		{name: "Slash parts exact", held: "articles/edit", requested: "articles/edit", expected: true},
		{name: "Percent wildcard", held: "articles/%", requested: "articles/view", expected: true},
		{name: "Pipe alternatives", held: "articles/edit|view", requested: "articles/view", expected: true},
		{name: "Dots are plain characters", held: "articles.edit", requested: "articles.view", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := matcher.Implies(tt.held, tt.requested)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
