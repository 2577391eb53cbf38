package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/rehearsal/pkg/provider/classifier"
	"github.com/MrWong99/rehearsal/pkg/types"
)

func TestNew_EmptyBaseURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestClassify_RequestShape(t *testing.T) {
	var got classifyRequest
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"label":"Relaxed","confidence":0.8}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/", WithAPIKey("k"), WithModel("fer-small"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := c.Classify(context.Background(), types.Frame{Data: []byte{1, 2, 3}, Format: "jpeg", Width: 64, Height: 48})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if path != "/classify" {
		t.Errorf("path = %q, want /classify", path)
	}
	if auth != "Bearer k" {
		t.Errorf("Authorization = %q, want %q", auth, "Bearer k")
	}
	if string(got.Image) != "\x01\x02\x03" || got.Format != "jpeg" || got.Width != 64 || got.Model != "fer-small" {
		t.Errorf("unexpected request body: %+v", got)
	}
	if res.Label != classifier.LabelRelaxed || res.Confidence != 0.8 {
		t.Errorf("result = %+v, want relaxed/0.8", res)
	}
}

func TestClassify_NoResult(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"204", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }},
		{"none label", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"label":"none"}`)) }},
		{"empty label", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{}`)) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c, _ := New(srv.URL)
			_, err := c.Classify(context.Background(), types.Frame{})
			if !errors.Is(err, classifier.ErrNoResult) {
				t.Errorf("err = %v, want ErrNoResult", err)
			}
		})
	}
}

func TestClassify_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	_, err := c.Classify(context.Background(), types.Frame{})
	if err == nil || errors.Is(err, classifier.ErrNoResult) {
		t.Fatalf("err = %v, want transport error", err)
	}
}

func TestClassify_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := New(srv.URL, WithTimeout(50*time.Millisecond))
	if _, err := c.Classify(context.Background(), types.Frame{}); err == nil {
		t.Fatal("expected timeout error")
	}
}
