package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"lowercases", "Hello World", []string{"hello", "world"}},
		{"splits on punctuation", "rate-limit: 5/sec", []string{"rate", "limit", "5", "sec"}},
		{"keeps digits with letters", "HTTP2 and ipv6", []string{"http2", "and", "ipv6"}},
		{"underscore separates", "snake_case", []string{"snake", "case"}},
		{"non-ascii separates", "café au lait", []string{"caf", "au", "lait"}},
		{"keeps duplicates", "a a b", []string{"a", "a", "b"}},
		{"empty", "", nil},
		{"only punctuation", "?!  ...", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.text))
		})
	}
}

func TestTerms_Distinct(t *testing.T) {
	terms := Terms("the cat and the hat")

	assert.Len(t, terms, 4)
	assert.Contains(t, terms, "the")
	assert.Contains(t, terms, "hat")
}

func TestCoverage(t *testing.T) {
	tests := []struct {
		name  string
		query string
		text  string
		want  float64
	}{
		{"all terms present", "reset password", "How to reset your password", 1.0},
		{"half present", "reset token", "Reset the form", 0.5},
		{"repeated query terms count once", "reset reset token", "reset", 0.5},
		{"none present", "kubernetes", "a recipe for bread", 0.0},
		{"no query terms", "?!", "anything", 0.0},
		{"case insensitive", "API", "the api gateway", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Coverage(Terms(tt.query), tt.text), 1e-9)
		})
	}
}
