// Package overlay serves the WebSocket endpoint that rendering clients use to
// display the script and highlight the reading position.
//
// On connect a client receives a "script" message followed by "progress"
// messages. A new script message is sent whenever a different script is
// loaded. Clients may send jump, pause, resume and load commands.
package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/teleprompt/internal/align"
	"github.com/MrWong99/teleprompt/internal/follow"
)

const (
	writeTimeout = 5 * time.Second

	// maxMessageBytes bounds client messages; load commands carry a whole
	// script.
	maxMessageBytes = 4 << 20
)

// Controller is the follower surface the overlay needs.
type Controller interface {
	Script() *align.Script
	Subscribe() (<-chan follow.Progress, func())
	Load(ctx context.Context, text string) error
	JumpTo(ctx context.Context, offset int) error
	JumpToWord(ctx context.Context, i int) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}

var errEmptyScript = errors.New("script text is empty")

// Message types.
const (
	TypeScript   = "script"
	TypeProgress = "progress"
	TypeError    = "error"
	TypeJump     = "jump"
	TypePause    = "pause"
	TypeResume   = "resume"
	TypeLoad     = "load"
)

// ScriptMessage describes the loaded script. ID is empty when none is loaded.
type ScriptMessage struct {
	Type  string       `json:"type"`
	ID    string       `json:"id"`
	Text  string       `json:"text"`
	Words []align.Word `json:"words"`
}

// ProgressMessage wraps one progress snapshot.
type ProgressMessage struct {
	Type string `json:"type"`
	follow.Progress
}

// ErrorMessage reports a rejected client message.
type ErrorMessage struct {
	Type    string `json:"type"`
	Request string `json:"request,omitempty"`
	Error   string `json:"error"`
}

// ClientMessage is a command sent by a client. A jump carries either Offset
// or Word.
type ClientMessage struct {
	Type   string `json:"type"`
	Offset *int   `json:"offset,omitempty"`
	Word   *int   `json:"word,omitempty"`
	Text   string `json:"text,omitempty"`
}

// Option configures a [Server].
type Option func(*Server)

// WithOriginPatterns allows cross-origin clients whose Origin host matches
// one of patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) {
		s.accept.OriginPatterns = append(s.accept.OriginPatterns, patterns...)
	}
}

// Server is an http.Handler for the overlay WebSocket.
type Server struct {
	ctrl   Controller
	accept websocket.AcceptOptions
}

// New returns a Server backed by ctrl.
func New(ctrl Controller, opts ...Option) *Server {
	s := &Server{ctrl: ctrl}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register mounts the endpoint at GET /ws.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("GET /ws", s)
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &s.accept)
	if err != nil {
		slog.Warn("overlay: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageBytes)

	progress, unsubscribe := s.ctrl.Subscribe()
	defer unsubscribe()

	slog.Info("overlay: client connected", "remote", r.RemoteAddr)
	replies := make(chan any, 8)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return s.read(ctx, conn, replies) })
	g.Go(func() error { return s.write(ctx, conn, progress, replies) })

	err = g.Wait()
	switch status := websocket.CloseStatus(err); {
	case err == nil, status == websocket.StatusNormalClosure, status == websocket.StatusGoingAway,
		errors.Is(err, context.Canceled):
		slog.Info("overlay: client disconnected", "remote", r.RemoteAddr)
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		slog.Warn("overlay: client connection failed", "remote", r.RemoteAddr, "err", err)
		conn.Close(websocket.StatusInternalError, "")
	}
}

// read handles client commands. Malformed and unknown messages are answered
// with an error message and the connection stays open.
func (s *Server) read(ctx context.Context, conn *websocket.Conn, replies chan<- any) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var reply any
		if typ != websocket.MessageText {
			reply = ErrorMessage{Type: TypeError, Error: "expected a text message"}
		} else {
			var msg ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				reply = ErrorMessage{Type: TypeError, Error: "malformed message: " + err.Error()}
			} else if err := s.dispatch(ctx, msg); err != nil {
				reply = ErrorMessage{Type: TypeError, Request: msg.Type, Error: err.Error()}
			}
		}
		if reply == nil {
			continue
		}
		select {
		case replies <- reply:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Server) dispatch(ctx context.Context, msg ClientMessage) error {
	switch msg.Type {
	case TypeJump:
		switch {
		case msg.Offset != nil:
			return s.ctrl.JumpTo(ctx, *msg.Offset)
		case msg.Word != nil:
			return s.ctrl.JumpToWord(ctx, *msg.Word)
		default:
			return errors.New("jump needs an offset or a word")
		}
	case TypePause:
		return s.ctrl.Pause(ctx)
	case TypeResume:
		return s.ctrl.Resume(ctx)
	case TypeLoad:
		if strings.TrimSpace(msg.Text) == "" {
			return errEmptyScript
		}
		return s.ctrl.Load(ctx, msg.Text)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// write is the only writer on conn.
func (s *Server) write(ctx context.Context, conn *websocket.Conn, progress <-chan follow.Progress, replies <-chan any) error {
	sent := false
	var scriptID string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-replies:
			if err := send(ctx, conn, msg); err != nil {
				return err
			}
		case p, ok := <-progress:
			if !ok {
				return nil
			}
			if !sent || p.ScriptID != scriptID {
				msg := scriptMessage(s.ctrl.Script())
				if err := send(ctx, conn, msg); err != nil {
					return err
				}
				sent, scriptID = true, msg.ID
			}
			if err := send(ctx, conn, ProgressMessage{Type: TypeProgress, Progress: p}); err != nil {
				return err
			}
		}
	}
}

func send(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func scriptMessage(s *align.Script) ScriptMessage {
	msg := ScriptMessage{Type: TypeScript, Words: []align.Word{}}
	if s != nil {
		msg.ID = s.ID()
		msg.Text = s.Text()
		if words := s.Words(); words != nil {
			msg.Words = words
		}
	}
	return msg
}
