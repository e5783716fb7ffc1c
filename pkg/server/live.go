package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-go/parley/pkg/agent"
)

// liveFrame is the wire format for /chat/live, both directions. Type selects
// which other fields are meaningful.
//
// Client to server:
//
//	session.start      scenario_id
//	transcript.partial transcript
//	transcript.final   transcript
//	capture.ended      -
//	capture.error      code, message
//	synthesis.ended    -
//	synthesis.error    message
//	session.stop       -
//
// Server to client:
//
//	capture.acquire    -
//	capture.start      -
//	capture.stop       -
//	speak              text
//	synthesis.cancel   -
//	event              event, data
type liveFrame struct {
	Type       string `json:"type"`
	ScenarioID string `json:"scenario_id,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Text       string `json:"text,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	Event      string `json:"event,omitempty"`
	Data       any    `json:"data,omitempty"`
}

// handleLive hosts one voice session controller per WebSocket connection. The
// browser does the actual audio I/O; frames carry transcripts down and speak
// commands up, so the session state machine runs server-side.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout: s.cfg.LiveHandshakeTimeout,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.cfg.CORSAllowedOrigins) == 0 {
				return true
			}
			_, ok := s.cfg.CORSAllowedOrigins[r.Header.Get("Origin")]
			return ok
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("live upgrade failed", "error", err)
		return
	}

	s.metrics.liveSessionOpened()
	defer s.metrics.liveSessionClosed()

	bridge := newLiveBridge(conn, s)
	bridge.run()
}

type liveBridge struct {
	conn   *websocket.Conn
	server *Server

	writeMu sync.Mutex

	capture *remoteCapture
	synth   *remoteSynth
	ctrl    *agent.Controller

	done chan struct{}
}

func newLiveBridge(conn *websocket.Conn, s *Server) *liveBridge {
	b := &liveBridge{
		conn:   conn,
		server: s,
		done:   make(chan struct{}),
	}
	b.capture = &remoteCapture{bridge: b}
	b.synth = &remoteSynth{bridge: b}
	b.ctrl = agent.NewController(b.capture, b.synth, s.engine,
		agent.WithLogger(s.logger),
	)
	return b
}

func (b *liveBridge) run() {
	defer b.conn.Close()
	defer close(b.done)
	defer b.ctrl.Stop()

	go b.pumpEvents()
	go b.pumpPings()

	for {
		var f liveFrame
		if err := b.conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.server.logger.Debug("live read ended", "error", err)
			}
			return
		}
		if err := b.dispatch(f); err != nil {
			b.server.logger.Warn("live frame rejected", "type", f.Type, "error", err)
		}
	}
}

func (b *liveBridge) dispatch(f liveFrame) error {
	switch f.Type {
	case "session.start":
		// Start uses a background context: the session outlives the frame
		// that opened it and is torn down by session.stop or disconnect.
		return b.ctrl.Start(context.Background(), f.ScenarioID)
	case "session.stop":
		b.ctrl.Stop()
		return nil
	case "transcript.partial":
		b.capture.deliver(agent.CaptureEvent{Kind: agent.CapturePartial, Transcript: f.Transcript})
		return nil
	case "transcript.final":
		b.capture.deliver(agent.CaptureEvent{Kind: agent.CaptureFinal, Transcript: f.Transcript})
		return nil
	case "capture.ended":
		b.capture.deliver(agent.CaptureEvent{Kind: agent.CaptureEnded})
		return nil
	case "capture.error":
		b.capture.deliver(agent.CaptureEvent{Kind: agent.CaptureFailed, Err: &agent.CaptureError{
			Code:    captureCode(f.Code),
			Message: f.Message,
		}})
		return nil
	case "synthesis.ended":
		b.synth.finish(nil)
		return nil
	case "synthesis.error":
		b.synth.finish(errors.New(f.Message))
		return nil
	default:
		return errors.New("unknown frame type")
	}
}

// pumpEvents forwards controller events to the client until the connection
// goes away.
func (b *liveBridge) pumpEvents() {
	events := b.ctrl.Events()
	for {
		select {
		case <-b.done:
			return
		case ev := <-events:
			frame := liveFrame{Type: "event", Event: ev.EventType(), Data: ev}
			if err := b.send(frame); err != nil {
				return
			}
		}
	}
}

func (b *liveBridge) pumpPings() {
	interval := b.server.cfg.LivePingInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(b.server.cfg.LiveWriteTimeout)
			if err := b.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (b *liveBridge) send(f liveFrame) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = b.conn.SetWriteDeadline(time.Now().Add(b.server.cfg.LiveWriteTimeout))
	return b.conn.WriteJSON(f)
}

func captureCode(code string) agent.CaptureErrorCode {
	switch agent.CaptureErrorCode(code) {
	case agent.CapturePermissionDenied, agent.CaptureNoSpeech:
		return agent.CaptureErrorCode(code)
	default:
		return agent.CaptureOther
	}
}

// remoteCapture satisfies agent.SpeechCapture by proxying to the browser over
// the WebSocket. Transcript frames are forwarded to the controller's handler
// only while a capture session is armed.
type remoteCapture struct {
	bridge *liveBridge

	mu      sync.Mutex
	armed   bool
	handler func(agent.CaptureEvent)
}

func (c *remoteCapture) Acquire(ctx context.Context) error {
	// The browser prompts for microphone permission on its side; a denial
	// comes back as a capture.error frame once capture is armed.
	return c.bridge.send(liveFrame{Type: "capture.acquire"})
}

func (c *remoteCapture) Start(handler func(agent.CaptureEvent)) error {
	c.mu.Lock()
	c.armed = true
	c.handler = handler
	c.mu.Unlock()
	return c.bridge.send(liveFrame{Type: "capture.start"})
}

func (c *remoteCapture) Stop() {
	c.mu.Lock()
	c.armed = false
	c.mu.Unlock()
	_ = c.bridge.send(liveFrame{Type: "capture.stop"})
}

func (c *remoteCapture) Release() {
	// Nothing held server-side; the browser tears down its own media stream
	// when the session stops.
}

func (c *remoteCapture) deliver(ev agent.CaptureEvent) {
	c.mu.Lock()
	armed, handler := c.armed, c.handler
	if ev.Kind == agent.CaptureFinal || ev.Kind == agent.CaptureEnded {
		c.armed = false
	}
	c.mu.Unlock()
	if !armed || handler == nil {
		return
	}
	handler(ev)
}

// remoteSynth satisfies agent.SpeechSynthesizer by sending speak commands and
// waiting for the client's synthesis.ended frame.
type remoteSynth struct {
	bridge *liveBridge

	mu   sync.Mutex
	done func(error)
}

func (s *remoteSynth) Speak(text string, done func(error)) {
	s.mu.Lock()
	prev := s.done
	s.done = done
	s.mu.Unlock()
	if prev != nil {
		prev(errors.New("superseded by newer utterance"))
	}
	if err := s.bridge.send(liveFrame{Type: "speak", Text: text}); err != nil {
		s.finish(err)
	}
}

func (s *remoteSynth) Cancel() {
	_ = s.bridge.send(liveFrame{Type: "synthesis.cancel"})
}

func (s *remoteSynth) finish(err error) {
	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()
	if done != nil {
		done(err)
	}
}
