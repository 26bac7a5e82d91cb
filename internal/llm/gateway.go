// Package llm talks to the language-model backends that produce compliance
// reports. Two protocols are supported: a synchronous chat completion
// (ChatClient) and an asynchronous thread, run and poll job (AssistantClient).
package llm

import (
	"context"
	"errors"
)

// Report is the text a backend produced for one check.
type Report struct {
	Text string
	// JobID identifies the backend conversation, when the protocol has one.
	JobID string
}

// BackendInfo describes the configured backend for diagnostics.
type BackendInfo struct {
	Protocol string `json:"protocol"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Model    string `json:"model"`
}

// Gateway invokes a model backend. Implementations return *ModelError for
// every backend-side failure.
type Gateway interface {
	Invoke(ctx context.Context, systemPrompt, userContent string) (Report, error)
	Describe(ctx context.Context) (BackendInfo, error)
}

// Kind classifies a ModelError.
type Kind string

const (
	KindBackendError      Kind = "backend_error"
	KindMalformedResponse Kind = "malformed_response"
	KindJobFailed         Kind = "job_failed"
	KindTimeout           Kind = "timeout"
)

// ModelError is returned by gateways. Message is surfaced to callers verbatim.
type ModelError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *ModelError) Error() string {
	return e.Message
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// IsModelError reports whether err is a *ModelError and returns it.
func IsModelError(err error) (*ModelError, bool) {
	var me *ModelError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}
