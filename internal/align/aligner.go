package align

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const defaultLookahead = 3

// AlignerOption is a functional option for configuring an [Aligner].
type AlignerOption func(*Aligner)

// WithLookahead sets how many positions (runes for the character strategy,
// words for the word strategy) are searched ahead on either side when the
// cursors disagree. Default: 3.
func WithLookahead(n int) AlignerOption {
	return func(a *Aligner) {
		if n > 0 {
			a.lookahead = n
		}
	}
}

// WithMatcher sets the token matcher used by word alignment.
func WithMatcher(m *Matcher) AlignerOption {
	return func(a *Aligner) {
		if m != nil {
			a.matcher = m
		}
	}
}

// Aligner runs the character and word strategies. It holds no per-call state
// and is safe for concurrent use.
type Aligner struct {
	lookahead int
	matcher   *Matcher
}

// NewAligner returns an [Aligner] configured with opts.
func NewAligner(opts ...AlignerOption) *Aligner {
	a := &Aligner{lookahead: defaultLookahead, matcher: defaultMatcher}
	for _, o := range opts {
		o(a)
	}
	return a
}

var defaultAligner = NewAligner()

// AlignChars runs character alignment with default settings.
func AlignChars(suffix, transcript string) int {
	return defaultAligner.Chars(suffix, transcript)
}

// AlignWords runs word alignment with the default lookahead, accepting tokens
// with m. A nil m selects the default [Matcher].
func AlignWords(suffix, transcript string, m *Matcher) int {
	if m == nil {
		return defaultAligner.Words(suffix, transcript)
	}
	return NewAligner(WithMatcher(m)).Words(suffix, transcript)
}

// Chars walks the script suffix and the normalised transcript rune by rune
// and returns how many suffix runes were confidently consumed.
//
// Non-alphanumeric runes on either side are skipped. On a mismatch the
// transcript is searched ahead for the script rune (an insertion), then the
// script is searched ahead for the transcript rune (a deletion). If neither
// is found the pair is taken as a substitution and both cursors move on, so
// one noisy rune never stalls progress.
func (a *Aligner) Chars(suffix, transcript string) int {
	script := []rune(suffix)
	for i, r := range script {
		script[i] = foldRune(r)
	}
	spoken := []rune(Normalize(dropMarkers(transcript)))

	si, ri, last := 0, 0, 0
	for si < len(script) && ri < len(spoken) {
		sc, tc := script[si], spoken[ri]
		if !isAlnum(sc) {
			si++
			continue
		}
		if !isAlnum(tc) {
			ri++
			continue
		}
		if sc == tc {
			si++
			ri++
			last = si
			continue
		}
		if j := indexAhead(spoken, ri, a.lookahead, sc); j >= 0 {
			ri = j
			continue
		}
		if j := indexAhead(script, si, a.lookahead, tc); j >= 0 {
			si = j
			continue
		}
		si++
		ri++
		last = si
	}
	return last
}

// indexAhead returns the index of the first r in s[from+1 : from+n+1], or -1.
func indexAhead(s []rune, from, n int, r rune) int {
	for k := 1; k <= n && from+k < len(s); k++ {
		if s[from+k] == r {
			return from + k
		}
	}
	return -1
}

// Words walks script words against transcript words and returns how many
// suffix runes, original punctuation and separating spaces included, were
// consumed.
//
// Annotation words are counted without being spoken. When the current pair
// does not match, up to lookahead transcript words are searched for the script
// word (inserted or hallucinated words), then up to lookahead script words
// for the transcript word (the speaker skipped ahead; the skipped words are
// counted). If neither helps, only the transcript cursor advances. Annotation
// words left directly after the last consumed word are counted as well, so a
// closing stage direction never blocks the end of the script.
func (a *Aligner) Words(suffix, transcript string) int {
	spoken := transcriptTokens(transcript)
	if len(spoken) == 0 {
		return 0
	}
	words := strings.Fields(suffix)
	stripped := make([]string, len(words))
	annotation := make([]bool, len(words))
	for i, w := range words {
		annotation[i] = IsAnnotationWord(w)
		if !annotation[i] {
			stripped[i] = Strip(w)
		}
	}
	size := func(i int) int {
		n := utf8.RuneCountInString(words[i])
		if i < len(words)-1 {
			n++
		}
		return n
	}

	total, si, ri := 0, 0, 0
	for si < len(words) && ri < len(spoken) {
		if annotation[si] {
			total += size(si)
			si++
			continue
		}
		if a.matcher.Match(stripped[si], spoken[ri]) {
			total += size(si)
			si++
			ri++
			continue
		}
		if j := a.findSpoken(spoken, ri, stripped[si]); j >= 0 {
			ri = j
			continue
		}
		if k := a.findScript(stripped, annotation, si, spoken[ri]); k >= 0 {
			for ; si < k; si++ {
				total += size(si)
			}
			continue
		}
		ri++
	}
	for si < len(words) && annotation[si] {
		total += size(si)
		si++
	}
	n := utf8.RuneCountInString(suffix)
	if total > 0 {
		// A suffix that starts on a separator carries leading spaces.
		total += n - utf8.RuneCountInString(strings.TrimLeftFunc(suffix, unicode.IsSpace))
	}
	return min(total, n)
}

func (a *Aligner) findSpoken(spoken []string, ri int, word string) int {
	for k := 1; k <= a.lookahead && ri+k < len(spoken); k++ {
		if a.matcher.Match(word, spoken[ri+k]) {
			return ri + k
		}
	}
	return -1
}

func (a *Aligner) findScript(stripped []string, annotation []bool, si int, token string) int {
	for k := 1; k <= a.lookahead && si+k < len(stripped); k++ {
		if annotation[si+k] {
			continue
		}
		if a.matcher.Match(stripped[si+k], token) {
			return si + k
		}
	}
	return -1
}

// transcriptTokens lowercases and strips every transcript word, dropping
// non-speech markers and tokens that carry no letters or digits.
func transcriptTokens(transcript string) []string {
	fields := strings.Fields(dropMarkers(transcript))
	out := fields[:0]
	for _, f := range fields {
		if s := Strip(f); s != "" {
			out = append(out, s)
		}
	}
	return out
}
