package utils

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindProtocol         ErrorKind = "protocol_error"
	KindAudioFormat      ErrorKind = "audio_format_error"
	KindModelUnavailable ErrorKind = "model_unavailable"
	KindTranscription    ErrorKind = "transcription_error"
	KindGeneration       ErrorKind = "generation_error"
	KindSynthesis        ErrorKind = "synthesis_error"
	KindTimeout          ErrorKind = "timeout"
	KindSessionNotFound  ErrorKind = "session_not_found"
	KindInternal         ErrorKind = "internal_error"
)

// XError is the error type surfaced to clients. Stage names the adapter for
// timeouts ("transcription", "generation", "synthesis").
type XError struct {
	Kind   ErrorKind
	Stage  string
	Reason string
	Meta   error
}

func (xe *XError) Error() string {
	msg := string(xe.Kind)
	if xe.Stage != "" {
		msg += "(" + xe.Stage + ")"
	}
	if xe.Reason != "" {
		msg += ": " + xe.Reason
	}
	if xe.Meta != nil {
		msg += ": " + xe.Meta.Error()
	}
	return msg
}

func (xe *XError) Unwrap() error { return xe.Meta }

// ToError kept for call sites that build an XError value inline.
func (xe XError) ToError() error { return &xe }

func NewError(kind ErrorKind, reason string, meta error) *XError {
	return &XError{Kind: kind, Reason: reason, Meta: meta}
}

func Errorf(kind ErrorKind, format string, args ...any) *XError {
	return &XError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// StageError wraps an adapter failure. Deadline overruns become timeouts for
// the same stage.
func StageError(kind ErrorKind, stage string, err error) error {
	if err == nil {
		return nil
	}
	var xe *XError
	if errors.As(err, &xe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &XError{Kind: KindTimeout, Stage: stage, Reason: stage + " exceeded its time bound", Meta: err}
	}
	return &XError{Kind: kind, Stage: stage, Meta: err}
}

func KindOf(err error) ErrorKind {
	var xe *XError
	if errors.As(err, &xe) {
		return xe.Kind
	}
	return KindInternal
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal reports whether the error must close the connection.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindProtocol, KindModelUnavailable:
		return true
	}
	return false
}
