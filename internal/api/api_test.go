package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/teleprompt/internal/api"
	"github.com/MrWong99/teleprompt/internal/config"
	"github.com/MrWong99/teleprompt/internal/follow"
	"github.com/MrWong99/teleprompt/internal/observe"
	"github.com/MrWong99/teleprompt/pkg/provider/stt/mock"
)

var _ api.Controller = (*follow.Follower)(nil)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	met, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader())))
	if err != nil {
		t.Fatal(err)
	}
	f := follow.New(&mock.Provider{}, cfg, follow.WithMetrics(met))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	mux := http.NewServeMux()
	api.New(f).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, contentType, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestStatus_Idle(t *testing.T) {
	t.Parallel()
	srv := newServer(t)

	resp, body := do(t, srv, http.MethodGet, "/api/v1/status", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d, want 200", resp.StatusCode)
	}
	if body["state"] != "idle" {
		t.Errorf("state = %v, want idle", body["state"])
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}

	resp, body = do(t, srv, http.MethodGet, "/api/v1/script", "", "")
	if resp.StatusCode != http.StatusNotFound || errorCode(body) != "no_script" {
		t.Errorf("GET script while idle: %d %v", resp.StatusCode, body)
	}
}

func TestLoadAndJump(t *testing.T) {
	t.Parallel()
	srv := newServer(t)

	resp, body := do(t, srv, http.MethodPost, "/api/v1/script", "text/plain", "one two three")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load: status %d, body %v", resp.StatusCode, body)
	}
	if body["state"] != "active" || body["length"] != float64(13) {
		t.Errorf("after load: %v", body)
	}

	resp, body = do(t, srv, http.MethodGet, "/api/v1/script", "", "")
	if resp.StatusCode != http.StatusOK || body["text"] != "one two three" {
		t.Errorf("GET script: %d %v", resp.StatusCode, body)
	}
	if words, _ := body["words"].([]any); len(words) != 3 {
		t.Errorf("words = %v, want 3 entries", body["words"])
	}

	resp, body = do(t, srv, http.MethodPost, "/api/v1/jump", "application/json", `{"offset":4}`)
	if resp.StatusCode != http.StatusOK || body["offset"] != float64(4) {
		t.Errorf("jump: %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, srv, http.MethodPost, "/api/v1/jump", "application/json", `{"word":2}`)
	if resp.StatusCode != http.StatusOK || body["offset"] != float64(8) {
		t.Errorf("jump to word: %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, srv, http.MethodPost, "/api/v1/pause", "", "")
	if resp.StatusCode != http.StatusOK || body["state"] != "paused" {
		t.Errorf("pause: %d %v", resp.StatusCode, body)
	}
	resp, body = do(t, srv, http.MethodPost, "/api/v1/resume", "", "")
	if resp.StatusCode != http.StatusOK || body["state"] != "active" {
		t.Errorf("resume: %d %v", resp.StatusCode, body)
	}
}

func TestLoad_JSONBody(t *testing.T) {
	t.Parallel()
	srv := newServer(t)

	resp, body := do(t, srv, http.MethodPost, "/api/v1/script", "application/json; charset=utf-8", `{"text":"hello world"}`)
	if resp.StatusCode != http.StatusOK || body["length"] != float64(11) {
		t.Errorf("load: %d %v", resp.StatusCode, body)
	}
}

func TestErrors(t *testing.T) {
	t.Parallel()
	srv := newServer(t)

	tests := []struct {
		name        string
		path        string
		contentType string
		body        string
		wantStatus  int
		wantCode    string
	}{
		{name: "jump while idle", path: "/api/v1/jump", body: `{"offset":0}`, wantStatus: http.StatusConflict, wantCode: "no_script"},
		{name: "pause while idle", path: "/api/v1/pause", wantStatus: http.StatusConflict, wantCode: "no_script"},
		{name: "empty script", path: "/api/v1/script", contentType: "text/plain", body: "  \n", wantStatus: http.StatusBadRequest, wantCode: "empty_script"},
		{name: "malformed script json", path: "/api/v1/script", contentType: "application/json", body: `{"text":`, wantStatus: http.StatusBadRequest, wantCode: "bad_request"},
		{name: "malformed jump", path: "/api/v1/jump", body: `{"offset":"x"}`, wantStatus: http.StatusBadRequest, wantCode: "bad_request"},
		{name: "jump without target", path: "/api/v1/jump", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: "bad_request"},
		{name: "jump with both targets", path: "/api/v1/jump", body: `{"offset":1,"word":1}`, wantStatus: http.StatusBadRequest, wantCode: "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, srv, http.MethodPost, tt.path, tt.contentType, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if code := errorCode(body); code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}

	t.Run("offset out of range", func(t *testing.T) {
		if resp, _ := do(t, srv, http.MethodPost, "/api/v1/script", "text/plain", "short"); resp.StatusCode != http.StatusOK {
			t.Fatalf("load: %d", resp.StatusCode)
		}
		resp, body := do(t, srv, http.MethodPost, "/api/v1/jump", "", `{"offset":99}`)
		if resp.StatusCode != http.StatusUnprocessableEntity || errorCode(body) != "invalid_offset" {
			t.Errorf("got %d %v", resp.StatusCode, body)
		}
	})
}
