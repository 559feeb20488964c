package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandPatternLiteral(t *testing.T) {
	got := ExpandPattern("docs", []string{"docs", "docs-v2"})
	assert.Equal(t, []string{"docs"}, got)
}

func TestExpandPatternLiteralRoundTrip(t *testing.T) {
	// expandPattern(literal, [literal]) == [literal]
	assert.Equal(t, []string{"only"}, ExpandPattern("only", []string{"only"}))
}

func TestExpandPatternGlob(t *testing.T) {
	available := []string{"api-docs", "api-ref", "guides"}
	got := ExpandPattern("api-*", available)
	assert.Equal(t, []string{"api-docs", "api-ref"}, got)

	got = ExpandPattern("guide?", available)
	assert.Equal(t, []string{"guides"}, got)
}

func TestExpandPatternEnvAlias(t *testing.T) {
	available := []string{"svc-dev", "svc-prod", "misc"}
	assert.Equal(t, []string{"svc-dev"}, ExpandPattern("env:dev", available))
	assert.Equal(t, []string{"svc-prod"}, ExpandPattern("env:prod", available))
}

func TestExpandPatternEnvAliasEmptyList(t *testing.T) {
	got := ExpandPattern("env:dev", nil)
	assert.Empty(t, got)
	// The pattern itself is still considered valid.
	assert.True(t, Validate("env:dev", nil).Valid)
}

func TestExpandPatternVersionLatest(t *testing.T) {
	available := []string{"lib-v1.2.0", "lib-v1.10.0", "lib-v2.0.0-rc1", "other-v0.3"}
	got := ExpandPattern("version:latest", available)
	assert.Equal(t, []string{"lib-v1.10.0", "other-v0.3"}, got)
}

func TestExpandPatternVersionLatestPre(t *testing.T) {
	available := []string{"lib-v1.10.0", "lib-v2.0.0-rc1"}
	got := ExpandPattern("version:latest-pre", available)
	assert.Equal(t, []string{"lib-v2.0.0-rc1"}, got)
}

func TestExpandPatternEmptyMatchesAll(t *testing.T) {
	available := []string{"b", "a"}
	assert.Equal(t, []string{"a", "b"}, ExpandPattern("", available))
	assert.Equal(t, []string{"a", "b"}, ExpandPattern("*", available))
}

func TestValidateSuggestions(t *testing.T) {
	res := Validate("api-dcos", []string{"api-docs", "guides"})
	assert.False(t, res.Valid)
	assert.Contains(t, res.Suggestions, "api-docs")
}

func TestSuggestPatterns(t *testing.T) {
	available := []string{"api-docs", "api-ref", "svc-dev"}
	got := SuggestPatterns(available)
	assert.NotEmpty(t, got)
	for _, s := range got {
		assert.Greater(t, s.MatchCount, 0, "zero-count patterns must be excluded")
	}
	// Sorted descending by match count.
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].MatchCount, got[i].MatchCount)
	}
}
