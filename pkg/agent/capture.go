package agent

import (
	"context"
)

// CaptureEventKind tags events emitted by a capture session.
type CaptureEventKind int

const (
	// CapturePartial is an interim transcript; more speech may follow.
	CapturePartial CaptureEventKind = iota
	// CaptureFinal is a finalized utterance, ready for a completion call.
	CaptureFinal
	// CaptureEnded means the capture session ended without a final result
	// (silence timeout, platform hiccup). The controller rearms.
	CaptureEnded
	// CaptureFailed carries a classified capture error.
	CaptureFailed
)

// CaptureEvent is one event from an armed capture session.
type CaptureEvent struct {
	Kind       CaptureEventKind
	Transcript string
	Err        *CaptureError
}

// CaptureErrorCode classifies capture failures the way the state machine
// needs: fatal, transient, or warn-and-continue.
type CaptureErrorCode string

const (
	// CapturePermissionDenied means the platform refused microphone access.
	// Fatal to the session attempt.
	CapturePermissionDenied CaptureErrorCode = "permission-denied"
	// CaptureNoSpeech is a silence timeout. Recovered by rearming.
	CaptureNoSpeech CaptureErrorCode = "no-speech"
	// CaptureOther is any other capture error. Surfaced as a warning.
	CaptureOther CaptureErrorCode = "other"
)

// CaptureError is a classified capture failure.
type CaptureError struct {
	Code    CaptureErrorCode
	Message string
}

func (e *CaptureError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// SpeechCapture is the speech-to-text capability the controller depends on.
// A platform adapter supplies the concrete implementation; tests supply
// scripted fakes.
type SpeechCapture interface {
	// Acquire obtains the microphone resource, blocking while the platform
	// prompts for permission. It fails with a core.ErrPermissionDenied error
	// when the platform denies access, or core.ErrUnsupportedPlatform when no
	// speech-to-text capability exists.
	Acquire(ctx context.Context) error

	// Start arms one capture session. Events are delivered to handler until
	// the session ends; the caller rearms by calling Start again.
	Start(handler func(CaptureEvent)) error

	// Stop disarms the current capture session, if any.
	Stop()

	// Release gives the microphone resource back. Called exactly once per
	// successful Acquire.
	Release()
}

// SpeechSynthesizer is the text-to-speech capability the controller depends
// on.
type SpeechSynthesizer interface {
	// Speak cancels anything queued or playing, then voices text. done is
	// invoked exactly once, with nil on completion or the synthesis error.
	Speak(text string, done func(error))

	// Cancel silences any in-flight utterance. Its done callback may still
	// fire; callers must tolerate that.
	Cancel()
}
