package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/rehearsal/internal/scoring"
	"github.com/MrWong99/rehearsal/internal/session"
	"github.com/MrWong99/rehearsal/pkg/host"
	"github.com/MrWong99/rehearsal/pkg/types"
)

// errClientGone ends a connection whose client closed the socket.
var errClientGone = errors.New("bridge: client disconnected")

// conn is one practice session over one websocket. It is the controller's
// media player and permission gate.
type conn struct {
	srv  *Server
	id   string
	ws   *websocket.Conn
	ctrl *session.Controller
	log  *slog.Logger

	// done is closed once the connection starts winding down: any of its
	// loops failed or run's context ended. Senders stop blocking on out then.
	done chan struct{}
	out  chan any

	mu        sync.Mutex
	nextToken uint64
	playing   map[uint64]func()
	permReply chan bool
}

var (
	_ host.MediaPlayer    = (*conn)(nil)
	_ host.PermissionGate = (*conn)(nil)
)

func (s *Server) newConn(ctx context.Context, id string, ws *websocket.Conn) (*conn, error) {
	c := &conn{
		srv:     s,
		id:      id,
		ws:      ws,
		log:     s.log.With("session_id", id),
		done:    make(chan struct{}),
		out:     make(chan any, outboxSize),
		playing: make(map[uint64]func()),
	}

	cfg := s.cfg.Session()
	cfg.SessionID = id
	cfg.Media = c
	cfg.Permissions = c
	if cfg.Metrics == nil {
		cfg.Metrics = s.cfg.Metrics
	}
	if cfg.Logger == nil {
		cfg.Logger = s.log
	}
	cfg.OnCaptureScore = func(conf, speech int) {
		c.send(captureScoreMessage{Type: msgCaptureScore, ConfidencePoints: conf, SpeechPoints: speech})
	}
	cfg.OnSectionComplete = func(score scoring.SessionScore) {
		c.send(sectionCompleteMessage{Type: msgSectionComplete, Score: score})
	}

	ctrl, err := session.New(cfg)
	if err != nil {
		return nil, err
	}
	c.ctrl = ctrl
	return c, nil
}

// run serves the connection until the client leaves or ctx ends. The
// controller is closed before run returns.
func (c *conn) run(ctx context.Context) error {
	defer c.abandonMedia()
	defer func() {
		if err := c.ctrl.Close(); err != nil {
			c.log.Debug("close controller", "err", err)
		}
	}()

	c.log.Info("practice connection opened")
	snaps, unsubscribe := c.ctrl.Subscribe()
	defer unsubscribe()

	g, ctx := errgroup.WithContext(ctx)
	// The group context ends on the first loop error and at the latest when
	// Wait returns.
	context.AfterFunc(ctx, func() { close(c.done) })
	g.Go(func() error { return c.readLoop(ctx) })
	g.Go(func() error { return c.writeLoop(ctx) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-snaps:
				if !ok {
					return nil
				}
				c.send(newStateMessage(snap))
			}
		}
	})

	c.send(helloMessage{Type: msgHello, SessionID: c.id})
	c.send(newStateMessage(c.ctrl.Snapshot()))

	err := g.Wait()
	c.log.Info("practice connection closed")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *conn) readLoop(ctx context.Context) error {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return errClientGone
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bridge: read: %w", err)
		}
		if typ == websocket.MessageBinary {
			c.ctrl.OnAudio(data)
			continue
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(fmt.Errorf("malformed message: %w", err))
			continue
		}
		if err := c.handle(ctx, msg); err != nil {
			c.sendError(err)
		}
	}
}

func (c *conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.ws, msg)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("bridge: write: %w", err)
			}
		}
	}
}

func (c *conn) handle(ctx context.Context, msg inbound) error {
	switch msg.Type {
	case msgLoad:
		return c.ctrl.LoadSectionFrom(ctx, c.srv.cfg.Source, msg.Level, msg.Section)
	case msgStart:
		return c.ctrl.Start(ctx)
	case msgPermission:
		c.permission(msg.Granted)
	case msgBeginCapture:
		c.ctrl.BeginCapture()
	case msgAcknowledge:
		c.ctrl.AcknowledgeInstruction()
	case msgAdvance:
		c.ctrl.Advance()
	case msgComplete:
		c.ctrl.CompleteSection()
	case msgMediaEnded:
		c.mediaEnded(msg.Token)
	case msgFrame:
		if msg.Frame == nil {
			return errors.New("frame message without frame")
		}
		c.ctrl.OnCameraFrame(msg.Frame.frame())
	case msgClassifierScore:
		if msg.Score < 0 || msg.Score > scoring.MaxFrameScore {
			return fmt.Errorf("classifier score %d out of range", msg.Score)
		}
		c.ctrl.OnClassifierFrame(msg.Score)
	case msgTranscript:
		c.ctrl.OnTranscript(msg.Text, msg.Final)
	case msgTranscriberError:
		c.ctrl.OnTranscriberError(errors.New(msg.Message))
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

// send queues msg for the client. It gives up once the connection is gone.
func (c *conn) send(msg any) {
	select {
	case c.out <- msg:
	case <-c.done:
	}
}

func (c *conn) sendError(err error) {
	c.log.Debug("client request failed", "err", err)
	c.send(errorMessage{Type: msgError, Message: err.Error()})
}

// Play implements host.MediaPlayer. The client answers with media_ended and
// the token.
func (c *conn) Play(ref string, onEnded func()) {
	c.mu.Lock()
	c.nextToken++
	token := c.nextToken
	c.playing[token] = onEnded
	c.mu.Unlock()

	c.send(playMessage{Type: msgPlay, Token: token, Ref: ref})
}

func (c *conn) mediaEnded(token uint64) {
	c.mu.Lock()
	onEnded, ok := c.playing[token]
	delete(c.playing, token)
	c.mu.Unlock()
	if ok {
		onEnded()
	}
}

// abandonMedia ends every playback the client never reported.
func (c *conn) abandonMedia() {
	c.mu.Lock()
	pending := c.playing
	c.playing = make(map[uint64]func())
	c.mu.Unlock()
	for _, onEnded := range pending {
		onEnded()
	}
}

// Request implements host.PermissionGate.
func (c *conn) Request(ctx context.Context, caps []types.Capability) (bool, error) {
	reply := make(chan bool, 1)
	c.mu.Lock()
	c.permReply = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.permReply == reply {
			c.permReply = nil
		}
		c.mu.Unlock()
	}()

	c.send(permissionRequestMessage{Type: msgPermissionRequest, Capabilities: caps})
	select {
	case granted := <-reply:
		return granted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-c.done:
		return false, errClientGone
	}
}

// permission routes a client permission answer: to the pending prompt if
// there is one, otherwise straight to the controller, where a denial revokes
// access mid-session.
func (c *conn) permission(granted bool) {
	c.mu.Lock()
	reply := c.permReply
	c.permReply = nil
	c.mu.Unlock()
	if reply != nil {
		reply <- granted
		return
	}
	c.ctrl.SubmitPermissionResult(granted)
}
