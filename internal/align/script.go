package align

import (
	"encoding/hex"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zeebo/blake3"
)

// Word is a single whitespace-delimited token of a [Script].
type Word struct {
	// Text is the raw token, punctuation included.
	Text string `json:"text"`

	// Offset is the rune offset of the token's first character in the
	// canonical script text.
	Offset int `json:"offset"`

	// Len is the token length in runes.
	Len int `json:"len"`

	// Annotation marks tokens that are never expected to be spoken.
	Annotation bool `json:"annotation,omitempty"`
}

// End returns the rune offset just past the word.
func (w Word) End() int { return w.Offset + w.Len }

// Script is the immutable reference text of one reading session.
type Script struct {
	raw   string
	text  []rune
	words []Word
	id    string
}

// NewScript builds a [Script] from raw text. Runs of whitespace, newlines
// included, collapse to a single space, so consecutive words are always
// separated by exactly one rune.
func NewScript(raw string) *Script {
	fields := strings.Fields(raw)
	canonical := strings.Join(fields, " ")

	words := make([]Word, 0, len(fields))
	off := 0
	for _, f := range fields {
		n := utf8.RuneCountInString(f)
		words = append(words, Word{
			Text:       f,
			Offset:     off,
			Len:        n,
			Annotation: IsAnnotationWord(f),
		})
		off += n + 1
	}

	sum := blake3.Sum256([]byte(canonical))
	return &Script{
		raw:   raw,
		text:  []rune(canonical),
		words: words,
		id:    hex.EncodeToString(sum[:8]),
	}
}

// ID returns a short content hash of the canonical text.
func (s *Script) ID() string { return s.id }

// Raw returns the text the script was built from.
func (s *Script) Raw() string { return s.raw }

// Text returns the canonical text.
func (s *Script) Text() string { return string(s.text) }

// Len returns the canonical length in runes.
func (s *Script) Len() int { return len(s.text) }

// Words returns the word table. The slice must not be modified.
func (s *Script) Words() []Word { return s.words }

// Suffix returns the canonical text from offset onwards. Offsets outside the
// script are clamped.
func (s *Script) Suffix(offset int) string {
	offset = min(max(offset, 0), len(s.text))
	return string(s.text[offset:])
}

// Prefix returns the canonical text before offset, clamped like [Script.Suffix].
func (s *Script) Prefix(offset int) string {
	offset = min(max(offset, 0), len(s.text))
	return string(s.text[:offset])
}

// WordAt returns the index of the word that contains offset, or of the first
// word after it when offset falls on a separating space. It returns
// len(Words()) once offset is past the last word.
func (s *Script) WordAt(offset int) int {
	return sort.Search(len(s.words), func(i int) bool {
		return s.words[i].End() > offset
	})
}

// Vocabulary returns up to limit distinctive words that a recogniser is likely
// to miss without a hint: capitalised words and words of seven letters or
// more. Annotations are skipped, duplicates are removed case-insensitively
// and the order follows the script. A limit <= 0 means no limit.
func (s *Script) Vocabulary(limit int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range s.words {
		if w.Annotation {
			continue
		}
		word := strings.TrimFunc(w.Text, func(r rune) bool { return !isAlnum(r) })
		if word == "" {
			continue
		}
		first, _ := utf8.DecodeRuneInString(word)
		if !unicode.IsUpper(first) && utf8.RuneCountInString(word) < 7 {
			continue
		}
		key := strings.ToLower(Fold(word))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, word)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
