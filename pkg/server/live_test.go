package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-go/parley/pkg/agent"
)

func dialLive(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/chat/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// awaitFrame reads frames until one matches, failing on timeout. Frame order
// between the event pump and direct command sends is not fixed, so tests
// match on content rather than position.
func awaitFrame(t *testing.T, conn *websocket.Conn, what string, match func(liveFrame) bool) liveFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		var f liveFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		if match(f) {
			return f
		}
	}
	t.Fatalf("timed out waiting for %s", what)
	return liveFrame{}
}

func sendFrame(t *testing.T, conn *websocket.Conn, f liveFrame) {
	t.Helper()
	if err := conn.WriteJSON(f); err != nil {
		t.Fatalf("send %s frame: %v", f.Type, err)
	}
}

func TestLive_FullVoiceTurn(t *testing.T) {
	s := newTestServer(t, &staticProvider{name: "gemini", reply: "from the provider"})
	conn := dialLive(t, s)

	sendFrame(t, conn, liveFrame{Type: "session.start", ScenarioID: "customer_support"})

	// The welcome goes out as a speak command before capture first arms.
	welcome := awaitFrame(t, conn, "welcome speak", func(f liveFrame) bool {
		return f.Type == "speak"
	})
	if welcome.Text != agent.WelcomeUtterance {
		t.Fatalf("welcome text = %q, want %q", welcome.Text, agent.WelcomeUtterance)
	}

	sendFrame(t, conn, liveFrame{Type: "synthesis.ended"})
	awaitFrame(t, conn, "capture armed", func(f liveFrame) bool {
		return f.Type == "capture.start"
	})

	sendFrame(t, conn, liveFrame{Type: "transcript.final", Transcript: "hello there"})
	reply := awaitFrame(t, conn, "reply speak", func(f liveFrame) bool {
		return f.Type == "speak" && f.Text != agent.WelcomeUtterance
	})
	if reply.Text != "from the provider" {
		t.Fatalf("reply text = %q, want %q", reply.Text, "from the provider")
	}

	sendFrame(t, conn, liveFrame{Type: "synthesis.ended"})
	awaitFrame(t, conn, "capture re-armed", func(f liveFrame) bool {
		return f.Type == "capture.start"
	})

	sendFrame(t, conn, liveFrame{Type: "session.stop"})
	awaitFrame(t, conn, "session stopped event", func(f liveFrame) bool {
		return f.Type == "event" && f.Event == "session.stopped"
	})
}

func TestLive_EmitsSessionAndTranscriptEvents(t *testing.T) {
	s := newTestServer(t, &staticProvider{name: "gemini", reply: "ok"})
	conn := dialLive(t, s)

	sendFrame(t, conn, liveFrame{Type: "session.start"})

	started := awaitFrame(t, conn, "session.started event", func(f liveFrame) bool {
		return f.Type == "event" && f.Event == "session.started"
	})
	data, ok := started.Data.(map[string]any)
	if id, _ := data["session_id"].(string); !ok || id == "" {
		t.Fatalf("session.started data = %#v, want a session id", started.Data)
	}

	sendFrame(t, conn, liveFrame{Type: "synthesis.ended"})
	awaitFrame(t, conn, "capture armed", func(f liveFrame) bool {
		return f.Type == "capture.start"
	})

	sendFrame(t, conn, liveFrame{Type: "transcript.partial", Transcript: "hel"})
	transcript := awaitFrame(t, conn, "transcript event", func(f liveFrame) bool {
		return f.Type == "event" && f.Event == "transcript.user"
	})
	if data, _ := transcript.Data.(map[string]any); data["transcript"] != "hel" {
		t.Fatalf("transcript data = %#v, want hel", transcript.Data)
	}
}

func TestLive_PermissionDeniedIsFatal(t *testing.T) {
	s := newTestServer(t)
	conn := dialLive(t, s)

	sendFrame(t, conn, liveFrame{Type: "session.start"})
	sendFrame(t, conn, liveFrame{Type: "synthesis.ended"})
	awaitFrame(t, conn, "capture armed", func(f liveFrame) bool {
		return f.Type == "capture.start"
	})

	sendFrame(t, conn, liveFrame{Type: "capture.error", Code: "permission-denied", Message: "denied"})

	failure := awaitFrame(t, conn, "fatal error event", func(f liveFrame) bool {
		return f.Type == "event" && f.Event == "error"
	})
	data, _ := failure.Data.(map[string]any)
	if fatal, _ := data["fatal"].(bool); !fatal {
		t.Fatalf("error event data = %#v, want fatal=true", failure.Data)
	}
}

func TestLive_UnknownFrameIgnored(t *testing.T) {
	s := newTestServer(t)
	conn := dialLive(t, s)

	sendFrame(t, conn, liveFrame{Type: "bogus"})
	sendFrame(t, conn, liveFrame{Type: "session.start"})

	awaitFrame(t, conn, "session still starts", func(f liveFrame) bool {
		return f.Type == "event" && f.Event == "session.started"
	})
}
