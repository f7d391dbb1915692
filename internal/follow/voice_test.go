package follow

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/teleprompt/pkg/provider/vad"
	vadmock "github.com/MrWong99/teleprompt/pkg/provider/vad/mock"
)

func TestVoiceGate_SplitsFrames(t *testing.T) {
	t.Parallel()
	detector := &vadmock.Session{Default: vad.Event{Type: vad.Silence}}
	g := newVoiceGate(detector, 4)

	for _, n := range []int{3, 6, 1, 2} {
		if err := g.feed(make([]byte, n)); err != nil {
			t.Fatal(err)
		}
	}
	if got := detector.Frames(); !slices.Equal(got, []int{4, 4, 4}) {
		t.Errorf("frames = %v, want three 4-byte frames", got)
	}
	if len(g.pending) != 0 {
		t.Errorf("pending = %d bytes, want 0", len(g.pending))
	}
	if !g.lastSpeech().IsZero() {
		t.Error("silence should not record speech")
	}
}

func TestVoiceGate_RecordsSpeech(t *testing.T) {
	t.Parallel()
	detector := &vadmock.Session{
		Events:  []vad.Event{{Type: vad.SpeechStart}, {Type: vad.SpeechEnd}},
		Default: vad.Event{Type: vad.Silence},
	}
	g := newVoiceGate(detector, 2)
	at := time.Unix(1700000000, 0)
	g.now = func() time.Time { return at }

	if err := g.feed(make([]byte, 4)); err != nil {
		t.Fatal(err)
	}
	if got := g.lastSpeech(); !got.Equal(at) {
		t.Errorf("lastSpeech = %v, want %v", got, at)
	}
}

func TestVoiceGate_Error(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	g := newVoiceGate(&vadmock.Session{ProcessFrameErr: boom}, 2)
	if err := g.feed(make([]byte, 5)); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if len(g.pending) != 3 {
		t.Errorf("pending = %d bytes, want the 3 bytes after the failed frame", len(g.pending))
	}
}
