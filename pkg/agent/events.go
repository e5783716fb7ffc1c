package agent

// Event is the interface for all controller events. The presentation layer
// (or the live WebSocket bridge) subscribes to these; the controller never
// blocks on a slow consumer.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// SessionStartedEvent is emitted once a session is connected and the welcome
// utterance is queued.
type SessionStartedEvent struct {
	SessionID  string `json:"session_id"`
	ScenarioID string `json:"scenario_id"`
}

func (e *SessionStartedEvent) EventType() string { return "session.started" }

// SessionStoppedEvent is emitted when the session returns to idle.
type SessionStoppedEvent struct{}

func (e *SessionStoppedEvent) EventType() string { return "session.stopped" }

// StateChangedEvent is emitted on every state transition.
type StateChangedEvent struct {
	From State `json:"from"`
	To   State `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// UserTranscriptEvent carries the user's interim or finalized transcript.
type UserTranscriptEvent struct {
	Transcript string `json:"transcript"`
	Final      bool   `json:"final,omitempty"`
}

func (e *UserTranscriptEvent) EventType() string { return "transcript.user" }

// AgentReplyEvent carries the reply text, published before synthesis finishes
// so a UI can render it while audio plays.
type AgentReplyEvent struct {
	Text         string `json:"text"`
	ScenarioName string `json:"scenario_name,omitempty"`
}

func (e *AgentReplyEvent) EventType() string { return "reply" }

// ErrorEvent surfaces a user-visible problem. Fatal errors end the session
// attempt; the rest leave it connected.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal,omitempty"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// DebugEvent mirrors the rolling debug log.
type DebugEvent struct {
	Message string `json:"message"`
}

func (e *DebugEvent) EventType() string { return "debug" }
