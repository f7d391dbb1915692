package align

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const defaultPhoneticThreshold = 0.80

// MatcherOption is a functional option for configuring a [Matcher].
type MatcherOption func(*Matcher)

// WithPhonetic enables an extra, final rule that accepts two words when their
// Double Metaphone codes overlap and their Jaro-Winkler similarity is at least
// threshold. A threshold <= 0 selects the default of 0.80.
func WithPhonetic(threshold float64) MatcherOption {
	return func(m *Matcher) {
		m.phonetic = true
		if threshold > 0 {
			m.phoneticThreshold = threshold
		}
	}
}

// Matcher decides whether two short word tokens "read the same". It is
// read-only after construction and safe for concurrent use.
type Matcher struct {
	phonetic          bool
	phoneticThreshold float64
}

// NewMatcher returns a [Matcher] configured with opts. Without options it
// applies exactly the six heuristic rules documented on [Matcher.Match].
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{phoneticThreshold: defaultPhoneticThreshold}
	for _, o := range opts {
		o(m)
	}
	return m
}

var defaultMatcher = NewMatcher()

// IsFuzzyMatch reports whether a and b match under the default [Matcher].
func IsFuzzyMatch(a, b string) bool {
	return defaultMatcher.Match(a, b)
}

// Match reports whether two already lowercased, stripped tokens match. The
// rules are tried in order and the first that applies decides:
//
//  1. equal strings match
//  2. an empty string never matches
//  3. one is a prefix of the other ("not" / "notch")
//  4. one contains the other
//  5. they share a leading run of at least max(2, ceil(0.6*shorter)) runes
//  6. their edit distance is within a length-dependent threshold: 1 for
//     words up to 4 runes, 2 up to 8, otherwise a third of the longer word
//
// With [WithPhonetic] a seventh, phonetic rule is consulted last.
func (m *Matcher) Match(a, b string) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	if strings.HasPrefix(a, b) || strings.HasPrefix(b, a) {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}

	ra, rb := []rune(a), []rune(b)
	shorter, longer := len(ra), len(rb)
	if shorter > longer {
		shorter, longer = longer, shorter
	}

	if shorter >= 2 && sharedPrefix(ra, rb) >= max(2, ceilFrac(shorter, 6, 10)) {
		return true
	}

	limit := maxEdits(shorter, longer)
	if editDistance(ra, rb, limit) <= limit {
		return true
	}

	if m.phonetic {
		return m.soundsAlike(a, b)
	}
	return false
}

// maxEdits returns the largest edit distance still accepted for a word pair.
func maxEdits(shorter, longer int) int {
	switch {
	case shorter <= 4:
		return 1
	case shorter <= 8:
		return 2
	default:
		return longer / 3
	}
}

// ceilFrac returns ceil(n*num/den) for non-negative n.
func ceilFrac(n, num, den int) int {
	return (n*num + den - 1) / den
}

func sharedPrefix(a, b []rune) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// editDistance computes the Levenshtein distance between a and b with a single
// rolling row. When every entry of a row exceeds limit the true distance must
// too, so it returns limit+1 early.
func editDistance(a, b []rune, limit int) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(a)-len(b) > limit {
		return limit + 1
	}
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		diag := row[0]
		row[0] = i
		best := row[0]
		for j := 1; j <= len(b); j++ {
			up := row[j]
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			row[j] = min(up+1, row[j-1]+1, diag+cost)
			diag = up
			best = min(best, row[j])
		}
		if best > limit {
			return limit + 1
		}
	}
	return row[len(b)]
}

// soundsAlike is the optional phonetic rule. Codes are compared first so that
// Jaro-Winkler only ranks words that already sound related.
func (m *Matcher) soundsAlike(a, b string) bool {
	pa, sa := matchr.DoubleMetaphone(a)
	pb, sb := matchr.DoubleMetaphone(b)
	overlap := false
	for _, x := range []string{pa, sa} {
		if x == "" {
			continue
		}
		if x == pb || x == sb {
			overlap = true
			break
		}
	}
	if !overlap {
		return false
	}
	return matchr.JaroWinkler(a, b, false) >= m.phoneticThreshold
}
