package follow

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/teleprompt/pkg/provider/vad"
)

// voiceGate splits incoming audio into detector frames and remembers when
// speech was last heard. feed runs on the audio goroutine; lastSpeech is read
// by the loop.
type voiceGate struct {
	mu      sync.Mutex
	handle  vad.SessionHandle
	frame   int
	pending []byte

	last atomic.Int64
	now  func() time.Time
}

func newVoiceGate(h vad.SessionHandle, frameBytes int) *voiceGate {
	return &voiceGate{handle: h, frame: frameBytes, now: time.Now}
}

// feed classifies every complete frame in chunk. A partial frame is kept for
// the next call.
func (g *voiceGate) feed(chunk []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = append(g.pending, chunk...)
	n := 0
	for ; n+g.frame <= len(g.pending); n += g.frame {
		ev, err := g.handle.ProcessFrame(g.pending[n : n+g.frame])
		if err != nil {
			g.pending = g.pending[:copy(g.pending, g.pending[n+g.frame:])]
			return fmt.Errorf("process frame: %w", err)
		}
		if ev.Type.IsSpeech() {
			g.last.Store(g.now().UnixNano())
		}
	}
	g.pending = g.pending[:copy(g.pending, g.pending[n:])]
	return nil
}

// lastSpeech returns when the last speech frame was classified, or the zero
// time.
func (g *voiceGate) lastSpeech() time.Time {
	ns := g.last.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
