package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/teleprompt/pkg/provider/stt"
	"github.com/MrWong99/teleprompt/pkg/types"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	t.Parallel()

	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_ProviderDefaultsApply(t *testing.T) {
	t.Parallel()

	p, err := New("key", WithModel("nova-2"), WithLanguage("de-DE"), WithSampleRate(48000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rawURL, err := p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "nova-2", q.Get("model"))
	assertEqual(t, "language", "de-DE", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))

	rawURL, _ = p.buildURL(stt.StreamConfig{Language: "fr-FR"})
	u, _ = url.Parse(rawURL)
	assertEqual(t, "language override", "fr-FR", u.Query().Get("language"))
}

func TestBuildURL_Hints(t *testing.T) {
	t.Parallel()

	kws := []types.KeywordBoost{
		{Keyword: "Eldrinax", Boost: 5},
		{Keyword: "Zorrath", Boost: 3.5},
	}

	tests := []struct {
		model string
		param string
		want  []string
	}{
		{"nova-3", "keyterm", []string{"Eldrinax", "Zorrath"}},
		{"nova-2", "keywords", []string{"Eldrinax:5", "Zorrath:3.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			t.Parallel()
			p, _ := New("key", WithModel(tt.model))
			rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000, Keywords: kws})
			if err != nil {
				t.Fatalf("buildURL: %v", err)
			}
			u, _ := url.Parse(rawURL)
			got := u.Query()[tt.param]
			slices.Sort(got)
			if !slices.Equal(got, tt.want) {
				t.Errorf("%s = %v, want %v", tt.param, got, tt.want)
			}
		})
	}
}

func TestBuildURL_NoKeywords(t *testing.T) {
	t.Parallel()

	p, _ := New("key")
	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	for _, k := range []string{"keywords", "keyterm"} {
		if _, ok := u.Query()[k]; ok {
			t.Errorf("unexpected %q param when no keywords provided", k)
		}
	}
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse_Final(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"start": 1.5,
		"duration": 0.9,
		"channel": {
			"alternatives": [{
				"transcript": "Hello world",
				"confidence": 0.95,
				"words": [
					{"word": "Hello", "start": 0.1, "end": 0.5, "confidence": 0.97},
					{"word": "world", "start": 0.6, "end": 1.0, "confidence": 0.93}
				]
			}]
		}
	}`)

	tr, ok := parseDeepgramResponse(raw)
	if !ok {
		t.Fatal("expected ok=true for valid Results message")
	}
	if !tr.IsFinal {
		t.Error("expected IsFinal=true")
	}
	assertEqual(t, "text", "Hello world", tr.Text)
	if tr.Confidence != 0.95 {
		t.Errorf("confidence = %f, want 0.95", tr.Confidence)
	}
	if len(tr.Words) != 2 {
		t.Fatalf("len(Words) = %d, want 2", len(tr.Words))
	}
	if tr.Timestamp != 1500*time.Millisecond {
		t.Errorf("Timestamp = %v, want 1.5s", tr.Timestamp)
	}
}

func TestParseDeepgramResponse_Ignored(t *testing.T) {
	t.Parallel()

	for name, raw := range map[string]string{
		"metadata":           `{"type":"Metadata","request_id":"abc"}`,
		"empty alternatives": `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`,
		"invalid json":       `{invalid`,
	} {
		if _, ok := parseDeepgramResponse([]byte(raw)); ok {
			t.Errorf("%s: expected ok=false", name)
		}
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

// ---- Streaming tests ----

func newTestServer(t *testing.T, handler func(ctx context.Context, conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.CloseNow()
		handler(r.Context(), conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStream_PartialsAndFinals(t *testing.T) {
	t.Parallel()

	gotAuth := make(chan string, 1)
	gotAudio := make(chan []byte, 1)
	srv := newTestServer(t, func(ctx context.Context, conn *websocket.Conn, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		typ, data, err := conn.Read(ctx)
		if err != nil || typ != websocket.MessageBinary {
			return
		}
		gotAudio <- data
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hello wor"}]}}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello world"}]}}`))
		conn.Close(websocket.StatusNormalClosure, "done")
	})

	p, _ := New("secret", WithEndpoint(wsURL(srv)), WithKeepAlive(0))
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	h, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer h.Close()

	if err := h.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if auth := <-gotAuth; auth != "Token secret" {
		t.Errorf("Authorization = %q", auth)
	}
	if audio := <-gotAudio; len(audio) != 4 {
		t.Errorf("server received %d bytes, want 4", len(audio))
	}

	select {
	case p := <-h.Partials():
		assertEqual(t, "partial", "hello wor", p.Text)
	case <-ctx.Done():
		t.Fatal("timed out waiting for partial")
	}
	select {
	case f := <-h.Finals():
		assertEqual(t, "final", "hello world", f.Text)
	case <-ctx.Done():
		t.Fatal("timed out waiting for final")
	}

	// Normal closure from the server is a clean end.
	for range h.Partials() {
	}
	if err := h.Err(); err != nil {
		t.Errorf("Err() = %v, want nil after normal closure", err)
	}
}

func TestStream_AbnormalCloseReportsErr(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(ctx context.Context, conn *websocket.Conn, _ *http.Request) {
		conn.Close(websocket.StatusInternalError, "boom")
	})

	p, _ := New("secret", WithEndpoint(wsURL(srv)), WithKeepAlive(0))
	h, err := p.StartStream(t.Context(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer h.Close()

	for range h.Finals() {
	}
	if h.Err() == nil {
		t.Error("Err() = nil, want read error after abnormal close")
	}
}

func TestSendAudio_AfterClose(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(ctx context.Context, conn *websocket.Conn, _ *http.Request) {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})
	p, _ := New("secret", WithEndpoint(wsURL(srv)))
	h, err := p.StartStream(t.Context(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := h.SendAudio([]byte{0, 0}); !errors.Is(err, stt.ErrSessionClosed) {
		t.Errorf("SendAudio after Close: err = %v, want ErrSessionClosed", err)
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
