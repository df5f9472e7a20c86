package resolver

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Candidate is one existing catalog row offered to the fuzzy matcher.
type Candidate struct {
	ID   string
	Name string
}

// Matcher finds the best near-match for a name among existing rows in
// scope. The linear scan is fine at personal-library scale; swap the
// implementation for an indexed one if that stops being true.
type Matcher interface {
	// Best returns the highest-scoring candidate and its normalized
	// similarity in [0, 1]. Ties go to the first-encountered candidate.
	Best(name string, candidates []Candidate) (Candidate, float64, bool)
}

// LevenshteinMatcher scores candidates with a normalized Levenshtein
// ratio over case-folded, whitespace-trimmed names.
type LevenshteinMatcher struct {
	metric *metrics.Levenshtein
}

// NewMatcher creates the default [LevenshteinMatcher].
func NewMatcher() *LevenshteinMatcher {
	m := metrics.NewLevenshtein()
	m.CaseSensitive = false
	return &LevenshteinMatcher{metric: m}
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Best implements [Matcher].
func (m *LevenshteinMatcher) Best(name string, candidates []Candidate) (Candidate, float64, bool) {
	if len(candidates) == 0 {
		return Candidate{}, 0, false
	}

	target := normalizeName(name)

	var (
		best      Candidate
		bestScore float64
		found     bool
	)
	for _, c := range candidates {
		score := strutil.Similarity(target, normalizeName(c.Name), m.metric)
		// strictly greater keeps the first-encountered winner on ties
		if !found || score > bestScore {
			best = c
			bestScore = score
			found = true
		}
	}

	return best, bestScore, found
}
