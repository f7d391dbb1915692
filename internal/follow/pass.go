package follow

import (
	"context"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/teleprompt/pkg/provider/stt"
	"github.com/MrWong99/teleprompt/pkg/types"
)

// pass is one open recognition stream. gen is owned by the loop and moves on
// every rebase, so transcripts aligned after a rebase use the new tag.
type pass struct {
	gen    uint64
	handle stt.SessionHandle
	cancel context.CancelFunc
	done   chan struct{}
	acc    accumulator
}

// event carries one transcript or the end of a pass into the loop.
type event struct {
	pass *pass
	tr   types.Transcript
	end  bool
	err  error
}

// pump forwards the pass's results into events until both result channels
// are closed, then reports the end of the pass with the handle's error.
func (p *pass) pump(events chan<- event) {
	partials, finals := p.handle.Partials(), p.handle.Finals()
	for partials != nil || finals != nil {
		select {
		case tr, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if !p.emit(events, event{pass: p, tr: tr}) {
				return
			}
		case tr, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			if !p.emit(events, event{pass: p, tr: tr}) {
				return
			}
		case <-p.done:
			return
		}
	}
	p.emit(events, event{pass: p, end: true, err: p.handle.Err()})
}

func (p *pass) emit(events chan<- event, ev event) bool {
	select {
	case events <- ev:
		return true
	case <-p.done:
		return false
	}
}

// accumulator builds the text of the current utterance window: every final
// since the window started followed by the latest partial.
type accumulator struct {
	finals  []string
	partial string
}

func (a *accumulator) add(tr types.Transcript) {
	text := strings.TrimSpace(tr.Text)
	if !tr.IsFinal {
		a.partial = text
		return
	}
	if text != "" {
		a.finals = append(a.finals, text)
	}
	a.partial = ""
}

func (a *accumulator) text() string {
	if a.partial == "" {
		return strings.Join(a.finals, " ")
	}
	return strings.Join(append(slices.Clip(a.finals), a.partial), " ")
}

func (a *accumulator) runes() int {
	return utf8.RuneCountInString(a.text())
}

func (a *accumulator) reset() {
	a.finals = nil
	a.partial = ""
}
