package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider indicates a provider id outside the known set.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrThreadNotFound indicates a thread id registered against no provider.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrThreadAmbiguous indicates a thread id registered against multiple
	// providers; callers must supply an explicit provider.
	ErrThreadAmbiguous = errors.New("thread id is ambiguous across providers")
	// ErrProviderMismatch indicates a command routed to an adapter for a
	// different provider. This is a coverage bug, not a feature gap.
	ErrProviderMismatch = errors.New("command provider does not match adapter provider")
	// ErrRequestNotFound indicates a user-input request id with no pending
	// request on the backend.
	ErrRequestNotFound = errors.New("user input request not found")
	// ErrTraceActive indicates a trace start while one is already running.
	ErrTraceActive = errors.New("trace already active")
	// ErrTraceNotActive indicates a trace stop with none running.
	ErrTraceNotActive = errors.New("no active trace")
)

// ValidationError reports a payload that failed schema validation. It always
// carries the originating context label and field-level diagnostics.
type ValidationError struct {
	Context string
	Path    string
	Message string
	Err     error
}

// Error implements error.
func (e *ValidationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Context, e.Path, msg)
	}
	return fmt.Sprintf("%s: %s", e.Context, msg)
}

// Unwrap exposes the underlying structural diagnostic.
func (e *ValidationError) Unwrap() error { return e.Err }

// FeatureError is raised by the feature gate when a command targets a
// feature that is not currently available. It is an expected, recoverable
// condition, not a hard failure.
type FeatureError struct {
	Provider ProviderID
	Feature  FeatureID
	Reason   UnavailableReason
	Message  string
}

// Error implements error.
func (e *FeatureError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s: %s", e.Provider, e.Feature, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Feature, e.Reason)
}

// RequestError identifies a user-input request id that matched no pending
// request on the backend. The original request id travels with the error so
// callers can surface it structurally instead of parsing the message.
type RequestError struct {
	Provider  ProviderID
	ThreadID  ThreadID
	RequestID RequestID
}

// Error implements error.
func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: request %s on thread %s: %v", e.Provider, e.RequestID, e.ThreadID, ErrRequestNotFound)
}

// Unwrap makes errors.Is(err, ErrRequestNotFound) hold.
func (e *RequestError) Unwrap() error { return ErrRequestNotFound }

// BackendError wraps a failure that occurred while talking to a provider,
// with enough context to diagnose without reproducing.
type BackendError struct {
	Provider  ProviderID
	Operation string
	ThreadID  ThreadID
	Err       error
}

// Error implements error.
func (e *BackendError) Error() string {
	if e.ThreadID != "" {
		return fmt.Sprintf("%s: %s: thread %s: %v", e.Provider, e.Operation, e.ThreadID, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Operation, e.Err)
}

// Unwrap exposes the backend failure.
func (e *BackendError) Unwrap() error { return e.Err }
