// Package types defines the values shared between transcription providers,
// the follower loop and the overlay transport.
//
// Each package keeps its own domain types; only data that crosses package
// boundaries lives here to avoid import cycles.
package types

import "time"

// Transcript is one recognition result from an STT provider. Partial and final
// results use the same type.
//
// Text is always a restatement of the whole pass or utterance so far, never a
// delta, so consumers may match each value afresh.
type Transcript struct {
	// Text is the transcribed speech.
	Text string

	// IsFinal is true once the provider has committed to Text. After a final
	// the provider starts a new utterance and later Text values no longer
	// repeat the committed words.
	IsFinal bool

	// Confidence is the overall confidence (0.0-1.0), or zero if unreported.
	Confidence float64

	// Words holds per-word timing when the provider reports it.
	Words []WordDetail

	// Timestamp marks when the utterance started, relative to the pass start.
	Timestamp time.Duration

	// Duration is the utterance length.
	Duration time.Duration
}

// WordDetail is per-word metadata from providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a vocabulary hint for recognition, typically a proper noun
// taken from the script being read.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Eldrinax").
	Keyword string

	// Boost is the intensity on a provider-specific scale. Providers that only
	// accept plain hints ignore it.
	Boost float64
}
