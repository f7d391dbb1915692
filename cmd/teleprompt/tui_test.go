package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/teleprompt/internal/follow"
)

func TestRenderProgress(t *testing.T) {
	t.Parallel()
	st := newStyles(&bytes.Buffer{})

	tests := []struct {
		name   string
		p      follow.Progress
		filled int
		want   []string
	}{
		{
			name:   "idle",
			p:      follow.Progress{State: "idle"},
			filled: 0,
			want:   []string{"0.0%", "0/0", "idle"},
		},
		{
			name:   "halfway",
			p:      follow.Progress{Offset: 50, Length: 100, State: "active", Mode: "word_tracking", Listening: true},
			filled: 5,
			want:   []string{"50.0%", "50/100", "active", "[word_tracking]", "●"},
		},
		{
			name:   "failed",
			p:      follow.Progress{Offset: 10, Length: 10, State: "paused", Error: "recognition unavailable"},
			filled: 10,
			want:   []string{"100.0%", "paused", "recognition unavailable"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := renderProgress(tt.p, 10, st)
			if n := strings.Count(got, "█"); n != tt.filled {
				t.Errorf("filled cells = %d, want %d in %q", n, tt.filled, got)
			}
			if n := strings.Count(got, "░"); n != 10-tt.filled {
				t.Errorf("empty cells = %d, want %d in %q", n, 10-tt.filled, got)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("render = %q, missing %q", got, w)
				}
			}
		})
	}
}

type fakeSubscriber struct {
	ch        chan follow.Progress
	cancelled chan struct{}
}

func (s *fakeSubscriber) Subscribe() (<-chan follow.Progress, func()) {
	return s.ch, func() { close(s.cancelled) }
}

func TestRunTUI(t *testing.T) {
	t.Parallel()
	sub := &fakeSubscriber{ch: make(chan follow.Progress, 2), cancelled: make(chan struct{})}
	sub.ch <- follow.Progress{Offset: 1, Length: 4, State: "active"}
	sub.ch <- follow.Progress{Offset: 4, Length: 4, State: "done"}
	close(sub.ch)

	var buf bytes.Buffer
	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	if err := runTUI(ctx, sub, &buf); err != nil {
		t.Fatal(err)
	}
	select {
	case <-sub.cancelled:
	default:
		t.Error("subscription was not cancelled")
	}
	out := buf.String()
	if strings.Count(out, "\r\x1b[2K") != 2 {
		t.Errorf("expected two redraws, got %q", out)
	}
	if !strings.Contains(out, "4/4") || !strings.HasSuffix(out, "\n") {
		t.Errorf("output = %q", out)
	}
}
