package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/rehearsal/internal/session"
)

func TestConn_RunEndsWhenWriterFailsWithFullOutbox(t *testing.T) {
	srv, err := New(Config{
		Source:  testSource(),
		Session: func() session.Config { return session.Config{TickInterval: 20 * time.Millisecond} },
		Logger:  discardLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runErr := make(chan error, 1)
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			runErr <- err
			return
		}
		defer ws.CloseNow()

		c, err := srv.newConn(r.Context(), "s-1", ws)
		if err != nil {
			runErr <- err
			return
		}
		// The first message cannot be encoded, so the writer fails while
		// the outbox is still full.
		c.out <- func() {}
		for len(c.out) < cap(c.out) {
			c.out <- errorMessage{Type: msgError, Message: "filler"}
		}
		runErr <- c.run(r.Context())
	}))
	defer hs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(hs.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ws.CloseNow()

	select {
	case err := <-runErr:
		if err == nil || !strings.Contains(err.Error(), "bridge: write") {
			t.Errorf("run error = %v, want write failure", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run still blocked after the writer failed")
	}
}

func TestConn_SendReturnsOnceDone(t *testing.T) {
	c := &conn{out: make(chan any, 1), done: make(chan struct{})}
	c.out <- "full"
	close(c.done)

	sent := make(chan struct{})
	go func() {
		c.send("more")
		close(sent)
	}()
	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("send blocked on a full outbox after done")
	}
}
