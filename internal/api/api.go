// Package api serves the JSON control surface of the follower under /api/v1.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/MrWong99/teleprompt/internal/align"
	"github.com/MrWong99/teleprompt/internal/follow"
)

// maxScriptBytes bounds the body of POST /api/v1/script.
const maxScriptBytes = 4 << 20

// Controller is the follower surface the API needs.
type Controller interface {
	Snapshot() follow.Progress
	Script() *align.Script
	Load(ctx context.Context, text string) error
	JumpTo(ctx context.Context, offset int) error
	JumpToWord(ctx context.Context, i int) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}

// JumpRequest is the body of POST /api/v1/jump. Exactly one field is set.
type JumpRequest struct {
	Offset *int `json:"offset,omitempty"`
	Word   *int `json:"word,omitempty"`
}

// ScriptRequest is the JSON form of POST /api/v1/script. A text/plain body
// is taken as the script itself.
type ScriptRequest struct {
	Text string `json:"text"`
}

// ScriptResponse is returned by GET /api/v1/script.
type ScriptResponse struct {
	ID    string       `json:"id"`
	Text  string       `json:"text"`
	Words []align.Word `json:"words"`
}

// Error is the body of every non-2xx response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error Error `json:"error"`
}

// Handler serves the control routes.
type Handler struct {
	ctrl Controller
}

// New returns a Handler backed by ctrl.
func New(ctrl Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

// Register adds the /api/v1 routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/status", h.status)
	mux.HandleFunc("GET /api/v1/script", h.script)
	mux.HandleFunc("POST /api/v1/script", h.load)
	mux.HandleFunc("POST /api/v1/jump", h.jump)
	mux.HandleFunc("POST /api/v1/pause", h.command(h.ctrl.Pause))
	mux.HandleFunc("POST /api/v1/resume", h.command(h.ctrl.Resume))
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) script(w http.ResponseWriter, _ *http.Request) {
	s := h.ctrl.Script()
	if s == nil {
		writeError(w, http.StatusNotFound, "no_script", "no script is loaded")
		return
	}
	words := s.Words()
	if words == nil {
		words = []align.Word{}
	}
	writeJSON(w, http.StatusOK, ScriptResponse{ID: s.ID(), Text: s.Text(), Words: words})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxScriptBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "script exceeds 4 MiB")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	text := string(body)
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		var req ScriptRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON: "+err.Error())
			return
		}
		text = req.Text
	}
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "empty_script", "script text is empty")
		return
	}

	if err := h.ctrl.Load(r.Context(), text); err != nil {
		writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) jump(w http.ResponseWriter, r *http.Request) {
	var req JumpRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON: "+err.Error())
		return
	}

	var err error
	switch {
	case req.Offset != nil && req.Word != nil:
		writeError(w, http.StatusBadRequest, "bad_request", "set either offset or word, not both")
		return
	case req.Offset != nil:
		err = h.ctrl.JumpTo(r.Context(), *req.Offset)
	case req.Word != nil:
		err = h.ctrl.JumpToWord(r.Context(), *req.Word)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "offset or word is required")
		return
	}
	if err != nil {
		writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) command(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context()); err != nil {
			writeCommandError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
	}
}

// writeCommandError maps follower errors to HTTP statuses.
func writeCommandError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, align.ErrInvalidOffset):
		writeError(w, http.StatusUnprocessableEntity, "invalid_offset", err.Error())
	case errors.Is(err, align.ErrIdle):
		writeError(w, http.StatusConflict, "no_script", err.Error())
	case errors.Is(err, follow.ErrStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		slog.Error("api: command failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: Error{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
