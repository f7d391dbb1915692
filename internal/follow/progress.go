package follow

import (
	"sync"

	"github.com/MrWong99/teleprompt/internal/config"
)

// Progress is a snapshot of the follower, published after every change of
// the recognized offset or the lifecycle state.
type Progress struct {
	// SessionID identifies one loaded script; it changes on every Load.
	SessionID string `json:"session_id"`

	// ScriptID is the content hash of the loaded script.
	ScriptID string `json:"script_id"`

	Generation uint64 `json:"generation"`

	// Offset is the recognized rune offset into the canonical script text.
	Offset     int `json:"offset"`
	MatchStart int `json:"match_start"`
	Length     int `json:"length"`

	// WordIndex is the index of the word at Offset, for highlighting.
	WordIndex int `json:"word_index"`

	State     string      `json:"state"`
	Mode      config.Mode `json:"mode"`
	Listening bool        `json:"listening"`

	// Winner is the alignment strategy behind the last advance, if any.
	Winner string `json:"winner,omitempty"`

	// Err is the terminal recognition error, such as
	// [ErrRecognitionUnavailable]. Error carries its text for JSON.
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// hub fans progress snapshots out to subscribers. Each subscriber channel
// holds one value; a slow reader loses intermediate snapshots but always
// finds the latest one.
type hub struct {
	mu     sync.Mutex
	latest Progress
	subs   map[int]chan Progress
	nextID int
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan Progress)}
}

func (h *hub) publish(p Progress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = p
	for _, ch := range h.subs {
		offer(ch, p)
	}
}

// offer replaces any unread value in ch with p. Callers hold h.mu, so no
// other goroutine sends on ch concurrently.
func offer(ch chan Progress, p Progress) {
	select {
	case ch <- p:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- p:
	default:
	}
}

func (h *hub) snapshot() Progress {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

func (h *hub) subscribe() (<-chan Progress, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Progress, 1)
	ch <- h.latest
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

func (h *hub) subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
