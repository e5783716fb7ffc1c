// Package agent implements the client-side voice session controller: a state
// machine sequencing microphone capture, completion calls, and speech
// playback for one active session.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-go/parley/pkg/core"
)

// WelcomeUtterance is spoken when a session starts, before capture first arms.
const WelcomeUtterance = "Hello! I am ready to help. How can I assist you today?"

const (
	// defaultRearmDelay is the pause before re-listening after capture ends
	// without a finalized utterance. The self-healing re-listen loop, not a
	// failure path.
	defaultRearmDelay = 200 * time.Millisecond

	// debugLogLimit bounds the rolling debug log, newest entry first.
	debugLogLimit = 3

	eventBuffer = 64
)

// Snapshot is the observable state the presentation layer reads. It is a
// copy; holders cannot mutate the controller through it.
type Snapshot struct {
	State           State
	Connected       bool
	SessionID       string
	ScenarioID      string
	UserTranscript  string
	AgentTranscript string
	LastError       string
	DebugLog        []string
}

// Controller coordinates capture, completion calls, and playback without
// races or dead-ends. All transitions run under one mutex; every asynchronous
// continuation re-checks the current generation at resume time, so callbacks
// outliving a Stop are silently dropped.
type Controller struct {
	capture      SpeechCapture
	synth        SpeechSynthesizer
	chat         Completer
	logger       *slog.Logger
	rearmDelay   time.Duration
	newSessionID func() string

	mu              sync.Mutex
	generation      uint64
	connected       bool
	captureHeld     bool
	state           State
	scenarioID      string
	sessionID       string
	userTranscript  string
	agentTranscript string
	lastError       string
	debugLog        []string

	events chan Event
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRearmDelay overrides the re-listen delay.
func WithRearmDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.rearmDelay = d
		}
	}
}

// WithSessionIDFunc overrides session id generation.
func WithSessionIDFunc(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newSessionID = fn
		}
	}
}

// NewController wires the capture, synthesis, and completion capabilities
// into a controller in the idle, disconnected state.
func NewController(capture SpeechCapture, synth SpeechSynthesizer, chat Completer, opts ...Option) *Controller {
	c := &Controller{
		capture:      capture,
		synth:        synth,
		chat:         chat,
		logger:       slog.Default(),
		rearmDelay:   defaultRearmDelay,
		newSessionID: uuid.NewString,
		state:        StateIdle,
		events:       make(chan Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns the controller's event feed. Events are dropped rather than
// blocking when the consumer lags.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	log := make([]string, len(c.debugLog))
	copy(log, c.debugLog)
	return Snapshot{
		State:           c.state,
		Connected:       c.connected,
		SessionID:       c.sessionID,
		ScenarioID:      c.scenarioID,
		UserTranscript:  c.userTranscript,
		AgentTranscript: c.agentTranscript,
		LastError:       c.lastError,
		DebugLog:        log,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start acquires the microphone, generates a fresh session id, and opens the
// session by speaking the welcome utterance. Capture arms once speaking ends.
// Permission or platform failures are terminal for the attempt.
func (c *Controller) Start(ctx context.Context, scenarioID string) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return core.NewInvalidRequestError("session already started")
	}
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	if err := c.capture.Acquire(ctx); err != nil {
		cerr := core.AsError(err)
		c.mu.Lock()
		c.lastError = cerr.Message
		c.setStateLocked(StateError)
		c.mu.Unlock()
		c.emit(&ErrorEvent{Code: string(cerr.Type), Message: cerr.Message, Fatal: true})
		return cerr
	}

	c.mu.Lock()
	c.connected = true
	c.captureHeld = true
	c.scenarioID = scenarioID
	c.sessionID = c.newSessionID()
	c.userTranscript = ""
	c.lastError = ""
	c.debugLog = nil
	c.agentTranscript = WelcomeUtterance
	c.setStateLocked(StateSpeaking)
	sessionID := c.sessionID
	c.mu.Unlock()

	c.emit(&SessionStartedEvent{SessionID: sessionID, ScenarioID: scenarioID})
	c.emit(&AgentReplyEvent{Text: WelcomeUtterance})
	c.debugf("session %s started (scenario %s)", sessionID, scenarioID)

	c.synth.Speak(WelcomeUtterance, func(err error) {
		c.onSynthesisDone(gen, err)
	})
	return nil
}

// Stop tears the session down: cancels synthesis, disarms and releases
// capture, clears transcripts, and returns to idle. Idempotent; safe from any
// state and from teardown paths.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.connected {
		// A failed start can strand the controller in Error; Stop still
		// resets it to the rest state.
		if c.state != StateIdle {
			c.setStateLocked(StateIdle)
		}
		c.mu.Unlock()
		return
	}
	c.generation++
	c.connected = false
	held := c.captureHeld
	c.captureHeld = false
	c.userTranscript = ""
	c.agentTranscript = ""
	c.setStateLocked(StateIdle)
	c.mu.Unlock()

	c.synth.Cancel()
	c.capture.Stop()
	if held {
		c.capture.Release()
	}
	c.emit(&SessionStoppedEvent{})
	c.debugf("session stopped")
}

// fail ends the session attempt on a fatal capture error, landing in Error
// instead of Idle.
func (c *Controller) fail(gen uint64, cerr *core.Error) {
	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.generation++
	c.connected = false
	held := c.captureHeld
	c.captureHeld = false
	c.lastError = cerr.Message
	c.setStateLocked(StateError)
	c.mu.Unlock()

	c.synth.Cancel()
	c.capture.Stop()
	if held {
		c.capture.Release()
	}
	c.emit(&ErrorEvent{Code: string(cerr.Type), Message: cerr.Message, Fatal: true})
	c.debugf("session failed: %s", cerr.Message)
}

// armCapture starts one capture session if the controller is still live and
// neither speaking nor processing.
func (c *Controller) armCapture(gen uint64) {
	c.mu.Lock()
	if !c.liveLocked(gen) || c.state == StateSpeaking || c.state == StateProcessing {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateListening)
	c.mu.Unlock()

	if err := c.capture.Start(func(ev CaptureEvent) {
		c.onCaptureEvent(gen, ev)
	}); err != nil {
		c.debugf("capture start skipped: %v", err)
	}
}

// scheduleRearm re-listens after the fixed delay, re-checking liveness when
// the timer fires rather than now.
func (c *Controller) scheduleRearm(gen uint64) {
	time.AfterFunc(c.rearmDelay, func() {
		c.armCapture(gen)
	})
}

// onCaptureEvent handles one event from the armed capture session.
func (c *Controller) onCaptureEvent(gen uint64, ev CaptureEvent) {
	switch ev.Kind {
	case CapturePartial:
		c.mu.Lock()
		if !c.liveLocked(gen) {
			c.mu.Unlock()
			return
		}
		c.userTranscript = ev.Transcript
		c.mu.Unlock()
		c.emit(&UserTranscriptEvent{Transcript: ev.Transcript})

	case CaptureFinal:
		c.mu.Lock()
		if !c.liveLocked(gen) {
			c.mu.Unlock()
			return
		}
		if c.state == StateProcessing {
			// One completion in flight at a time; rapid re-finalization is
			// dropped, not queued.
			c.mu.Unlock()
			c.debugf("dropped duplicate utterance while processing")
			return
		}
		c.userTranscript = ev.Transcript
		c.setStateLocked(StateProcessing)
		scenarioID, sessionID := c.scenarioID, c.sessionID
		c.mu.Unlock()

		c.emit(&UserTranscriptEvent{Transcript: ev.Transcript, Final: true})
		c.debugf("you said: %q", ev.Transcript)
		c.capture.Stop()
		go c.complete(gen, scenarioID, sessionID, ev.Transcript)

	case CaptureEnded:
		c.mu.Lock()
		rearm := c.liveLocked(gen) && c.state == StateListening
		c.mu.Unlock()
		if rearm {
			c.scheduleRearm(gen)
		}

	case CaptureFailed:
		c.onCaptureError(gen, ev.Err)
	}
}

// onCaptureError applies the capture error taxonomy: permission denial is
// fatal, silence rearms, anything else warns and continues.
func (c *Controller) onCaptureError(gen uint64, capErr *CaptureError) {
	if capErr == nil {
		return
	}

	switch capErr.Code {
	case CapturePermissionDenied:
		c.fail(gen, core.NewPermissionDeniedError("Microphone access denied. Please allow in your browser."))

	case CaptureNoSpeech:
		c.debugf("no speech detected, re-listening")
		c.mu.Lock()
		rearm := c.liveLocked(gen) && c.state == StateListening
		c.mu.Unlock()
		if rearm {
			c.scheduleRearm(gen)
		}

	default:
		c.mu.Lock()
		if !c.liveLocked(gen) {
			c.mu.Unlock()
			return
		}
		c.lastError = fmt.Sprintf("Microphone error: %s", capErr.Message)
		rearm := c.state == StateListening
		c.mu.Unlock()
		c.emit(&ErrorEvent{Code: string(capErr.Code), Message: capErr.Message})
		if rearm {
			c.scheduleRearm(gen)
		}
	}
}

// complete runs the completion call for one finalized utterance. Stop does
// not abort the request on the wire; a result arriving afterwards is
// discarded here.
func (c *Controller) complete(gen uint64, scenarioID, sessionID, message string) {
	reply, err := c.chat.Complete(context.Background(), scenarioID, sessionID, message)

	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		return
	}

	if err != nil {
		cerr := core.AsError(err)
		c.lastError = cerr.Message
		c.setStateLocked(StateListening)
		c.mu.Unlock()
		c.emit(&ErrorEvent{Code: string(cerr.Type), Message: cerr.Message})
		c.debugf("completion failed: %s", cerr.Message)
		c.armCapture(gen)
		return
	}

	c.agentTranscript = reply.Text
	c.setStateLocked(StateSpeaking)
	c.mu.Unlock()

	c.emit(&AgentReplyEvent{Text: reply.Text, ScenarioName: reply.ScenarioDisplayName})
	c.synth.Speak(reply.Text, func(synthErr error) {
		c.onSynthesisDone(gen, synthErr)
	})
}

// onSynthesisDone runs when an utterance finishes or fails. It rearms capture
// unless the session stopped or another completion took over.
func (c *Controller) onSynthesisDone(gen uint64, synthErr error) {
	if synthErr != nil {
		c.debugf("synthesis error: %v", synthErr)
	}

	c.mu.Lock()
	if !c.liveLocked(gen) || c.state == StateProcessing {
		c.mu.Unlock()
		return
	}
	if c.state == StateSpeaking {
		c.setStateLocked(StateListening)
	}
	c.mu.Unlock()

	c.armCapture(gen)
}

// liveLocked reports whether a continuation scheduled under gen may still
// act. Callers hold c.mu.
func (c *Controller) liveLocked(gen uint64) bool {
	return c.connected && c.generation == gen
}

// setStateLocked applies a transition and emits the change. Callers hold
// c.mu; emit never blocks so this is safe under the lock.
func (c *Controller) setStateLocked(next State) {
	prev := c.state
	if prev == next {
		return
	}
	c.state = next
	c.emit(&StateChangedEvent{From: prev, To: next})
}

// emit sends an event without ever blocking the state machine.
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}

// debugf appends to the bounded rolling debug log, newest first.
func (c *Controller) debugf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	c.mu.Lock()
	c.debugLog = append([]string{msg}, c.debugLog...)
	if len(c.debugLog) > debugLogLimit {
		c.debugLog = c.debugLog[:debugLogLimit]
	}
	c.mu.Unlock()

	c.logger.Debug("agent", "msg", msg)
	c.emit(&DebugEvent{Message: msg})
}
