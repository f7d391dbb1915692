package align

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacritics holds the combining marks that are folded away: the Latin,
// Greek and Cyrillic accents and their extensions. Marks that change the
// letter itself, such as the kana voicing marks, are not listed.
var diacritics = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0300, Hi: 0x036f, Stride: 1},
		{Lo: 0x1ab0, Hi: 0x1aff, Stride: 1},
		{Lo: 0x1dc0, Hi: 0x1dff, Stride: 1},
		{Lo: 0x20d0, Hi: 0x20ff, Stride: 1},
		{Lo: 0xfe20, Hi: 0xfe2f, Stride: 1},
	},
}

// foldRune lowercases r and removes any diacritic from it. The result is always
// exactly one rune, so positions in the folded text line up with positions in
// the original.
//
// A rune is only reduced to its base when everything after the base in its
// canonical decomposition is a diacritic. Hangul syllables decompose into
// jamo and voiced kana into a base and a voicing mark; both are kept whole.
func foldRune(r rune) rune {
	if r < utf8.RuneSelf {
		return unicode.ToLower(r)
	}
	r = unicode.ToLower(r)
	d := norm.NFD.String(string(r))
	base, n := utf8.DecodeRuneInString(d)
	if base == utf8.RuneError {
		return r
	}
	for _, m := range d[n:] {
		if !unicode.Is(diacritics, m) {
			return r
		}
	}
	return base
}

// markerPattern matches recogniser annotations such as "[BLANK_AUDIO]",
// "[MUSIC]" or "(upbeat music)". They describe sound, not speech.
var markerPattern = regexp.MustCompile(`\[[^\[\]]*\]|\([^()]*\)`)

// dropMarkers blanks out every bracketed or parenthesised span of a
// transcript.
func dropMarkers(transcript string) string {
	if !strings.ContainsAny(transcript, "[(") {
		return transcript
	}
	return markerPattern.ReplaceAllString(transcript, " ")
}

// isAlnum reports whether r is a letter or a digit.
func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Normalize canonicalises text for comparison. Letters are lowercased and
// stripped of diacritics, letters, digits and whitespace are kept, and
// everything else (punctuation, symbols, emoji, combining marks) is dropped.
// Normalize is idempotent.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsSpace(r) {
			b.WriteRune(r)
			continue
		}
		if f := foldRune(r); isAlnum(f) {
			b.WriteRune(f)
		}
	}
	return b.String()
}

// Strip returns the normalised form of a single token with whitespace removed.
func Strip(word string) string {
	var b strings.Builder
	b.Grow(len(word))
	for _, r := range word {
		if f := foldRune(r); isAlnum(f) {
			b.WriteRune(f)
		}
	}
	return b.String()
}

// IsAnnotationWord reports whether a raw script word is never expected to be
// spoken: it is wrapped in square brackets, or it carries no letters or digits
// at all.
func IsAnnotationWord(word string) bool {
	if len(word) >= 2 && word[0] == '[' && word[len(word)-1] == ']' {
		return true
	}
	for _, r := range word {
		if isAlnum(r) {
			return false
		}
	}
	return true
}

// Fold removes diacritics from text while keeping its case and punctuation.
// Like [Normalize] it leaves Hangul and kana voicing intact.
// It is used for display-side comparisons where the full text must survive.
func Fold(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(diacritics)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}
