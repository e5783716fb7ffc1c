package core

import (
	"fmt"
)

// Error is the typed error shared across the engine, providers, and the HTTP
// surface.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Param     string    `json:"param,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrInvalidRequest is a malformed request from the caller.
	ErrInvalidRequest ErrorType = "invalid_request_error"
	// ErrUnknownSession is an append against a session that was never ensured.
	ErrUnknownSession ErrorType = "unknown_session_error"
	// ErrProvider is a completion-provider failure. It never escapes the
	// fallback chain; it exists so provider adapters report failures uniformly.
	ErrProvider ErrorType = "provider_error"
	// ErrPermissionDenied is a capture resource refused by the platform.
	ErrPermissionDenied ErrorType = "permission_denied_error"
	// ErrUnsupportedPlatform means no capture or synthesis capability exists.
	ErrUnsupportedPlatform ErrorType = "unsupported_platform_error"
	// ErrNetwork is a failed client-to-server call.
	ErrNetwork ErrorType = "network_error"
	// ErrAPI is an unexpected internal failure.
	ErrAPI ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewInvalidRequestErrorWithParam creates an invalid request error naming the
// offending parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message, Param: param}
}

// NewUnknownSessionError creates an unknown session error.
func NewUnknownSessionError(sessionID string) *Error {
	return &Error{
		Type:    ErrUnknownSession,
		Message: fmt.Sprintf("no history for session %q", sessionID),
	}
}

// NewProviderError wraps a provider failure with the provider's name.
func NewProviderError(provider string, underlying error) *Error {
	return &Error{
		Type:    ErrProvider,
		Message: fmt.Sprintf("%s: %v", provider, underlying),
	}
}

// NewPermissionDeniedError creates a permission denied error.
func NewPermissionDeniedError(message string) *Error {
	return &Error{Type: ErrPermissionDenied, Message: message}
}

// NewUnsupportedPlatformError creates an unsupported platform error.
func NewUnsupportedPlatformError(message string) *Error {
	return &Error{Type: ErrUnsupportedPlatform, Message: message}
}

// NewNetworkError creates a network error.
func NewNetworkError(message string) *Error {
	return &Error{Type: ErrNetwork, Message: message}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// AsError normalizes an arbitrary error into a *Error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*Error); ok {
		return apiErr
	}
	return NewAPIError(err.Error())
}
