package agent

// State is the voice session's current phase. Disconnected is StateIdle with
// the connected flag down; the two always travel together.
type State int

const (
	// StateIdle is the rest state before Start and after Stop.
	StateIdle State = iota
	// StateListening is when capture is armed and awaiting speech.
	StateListening
	// StateProcessing is when a completion call is in flight.
	StateProcessing
	// StateSpeaking is when a reply (or the welcome) is being synthesized.
	StateSpeaking
	// StateError is the terminal state of a failed session attempt.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateProcessing:
		return "PROCESSING"
	case StateSpeaking:
		return "SPEAKING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
