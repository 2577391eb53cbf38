package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/rehearsal/pkg/provider/stt"
	"github.com/MrWong99/rehearsal/pkg/types"
	"github.com/coder/websocket"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000, Channels: 1})
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
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_OptionsAndOverrides(t *testing.T) {
	p, err := New("key", WithModel("base"), WithLanguage("de-DE"), WithSampleRate(48000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, _ := p.buildURL(stt.StreamConfig{})
	q, _ := url.Parse(rawURL)
	assertEqual(t, "model", "base", q.Query().Get("model"))
	assertEqual(t, "language", "de-DE", q.Query().Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Query().Get("sample_rate"))

	// Stream config wins over provider defaults.
	rawURL, _ = p.buildURL(stt.StreamConfig{Language: "en-GB", SampleRate: 16000})
	q, _ = url.Parse(rawURL)
	assertEqual(t, "language", "en-GB", q.Query().Get("language"))
	assertEqual(t, "sample_rate", "16000", q.Query().Get("sample_rate"))
}

func TestBuildURL_ReferenceKeywords(t *testing.T) {
	p, _ := New("key")
	rawURL, err := p.buildURL(stt.StreamConfig{
		Keywords: []types.KeywordBoost{
			{Keyword: "apples", Boost: 2},
			{Keyword: "eat", Boost: 1.5},
		},
	})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	kws := u.Query()["keywords"]
	found := map[string]bool{}
	for _, kw := range kws {
		found[kw] = true
	}
	if len(kws) != 2 || !found["apples:2"] || !found["eat:1.5"] {
		t.Errorf("keywords = %v, want [apples:2 eat:1.5]", kws)
	}

	rawURL, _ = p.buildURL(stt.StreamConfig{})
	u, _ = url.Parse(rawURL)
	if _, ok := u.Query()["keywords"]; ok {
		t.Error("expected no keywords param when none provided")
	}
}

// ---- JSON parsing tests ----

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantOK    bool
		wantText  string
		wantFinal bool
		wantWords int
	}{
		{
			name: "final with words",
			raw: `{"type":"Results","is_final":true,"start":1.5,"duration":0.9,"channel":{"alternatives":[{
				"transcript":"hello world","confidence":0.95,
				"words":[{"word":"hello","start":0.1,"end":0.5,"confidence":0.97},
				         {"word":"world","start":0.6,"end":1.0,"confidence":0.93}]}]}}`,
			wantOK: true, wantText: "hello world", wantFinal: true, wantWords: 2,
		},
		{
			name:   "partial",
			raw:    `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel","words":[]}]}}`,
			wantOK: true, wantText: "hel",
		},
		{name: "metadata ignored", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "no alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "invalid json", raw: `{invalid`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr, ok := parseResponse([]byte(tc.raw))
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			assertEqual(t, "text", tc.wantText, tr.Text)
			if tr.IsFinal != tc.wantFinal {
				t.Errorf("IsFinal = %v, want %v", tr.IsFinal, tc.wantFinal)
			}
			if len(tr.Words) != tc.wantWords {
				t.Errorf("len(Words) = %d, want %d", len(tr.Words), tc.wantWords)
			}
		})
	}
}

func TestParseResponse_Timing(t *testing.T) {
	tr, ok := parseResponse([]byte(`{"type":"Results","is_final":true,"start":1.5,"duration":0.5,
		"channel":{"alternatives":[{"transcript":"hi","words":[{"word":"hi","start":0.25,"end":0.5}]}]}}`))
	if !ok {
		t.Fatal("expected ok")
	}
	if tr.Timestamp != 1500*time.Millisecond {
		t.Errorf("Timestamp = %v, want 1.5s", tr.Timestamp)
	}
	if tr.Words[0].Start != 250*time.Millisecond {
		t.Errorf("word start = %v, want 250ms", tr.Words[0].Start)
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

// ---- Streaming tests ----

func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStream_DeliversPartialsAndFinals(t *testing.T) {
	authHeader := make(chan string, 1)
	endpoint := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		defer conn.Close(websocket.StatusNormalClosure, "done")
		authHeader <- r.Header.Get("Authorization")
		ctx := context.Background()
		// Wait for one audio chunk before answering.
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hello"}]}}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello world"}]}}`))
		_, _, _ = conn.Read(ctx)
	})

	p, _ := New("secret", WithEndpoint(endpoint))
	h, err := p.StartStream(context.Background(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer h.Close()

	if got := <-authHeader; got != "Token secret" {
		t.Errorf("Authorization = %q, want %q", got, "Token secret")
	}
	if err := h.SendAudio([]byte{0, 1, 2, 3}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case tr := <-h.Partials():
		assertEqual(t, "partial", "hello", tr.Text)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for partial")
	}
	select {
	case tr := <-h.Finals():
		assertEqual(t, "final", "hello world", tr.Text)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for final")
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if h.Err() != nil {
		t.Errorf("Err after clean close = %v, want nil", h.Err())
	}
	if err := h.SendAudio([]byte{1}); err == nil {
		t.Error("SendAudio after Close should fail")
	}
}

func TestStream_ServerFailureSurfacesErr(t *testing.T) {
	endpoint := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		conn.Close(websocket.StatusInternalError, "boom")
	})

	p, _ := New("key", WithEndpoint(endpoint))
	h, err := p.StartStream(context.Background(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer h.Close()

	select {
	case _, ok := <-h.Finals():
		if ok {
			t.Fatal("expected finals channel to close")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for stream end")
	}
	if h.Err() == nil {
		t.Error("expected Err to report the abnormal close")
	}
}

func TestSetKeywords_NotSupported(t *testing.T) {
	s := &session{}
	if err := s.SetKeywords(nil); err == nil {
		t.Error("expected ErrNotSupported")
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
