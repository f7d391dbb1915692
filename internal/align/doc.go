// Package align tracks a reader's position in a known script by matching a
// noisy, restated speech-to-text transcript against the script text.
//
// Two independent strategies run against the unconsumed script suffix:
//
//  1. Character alignment walks script and transcript runes in lockstep,
//     resynchronising within a small lookahead window and tolerating single
//     substitutions.
//
//  2. Word alignment walks script and transcript words, using [Matcher] to
//     accept misrecognised tokens and skipping annotation words such as
//     "[pause]" or emoji that are never spoken.
//
// A [Session] combines both results by taking the larger advance and only ever
// moves its recognized offset forward. All offsets are rune offsets into the
// canonical script text (see [NewScript]).
//
// Nothing in this package blocks or spawns goroutines. A [Session] has a single
// writer; callers marshal transcript events onto one goroutine before calling
// [Session.Update].
package align
