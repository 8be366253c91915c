package conversation

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure
type Kind string

const (
	KindInvalidUpload            Kind = "InvalidUpload"
	KindTranscriptionUnavailable Kind = "TranscriptionUnavailable"
	KindAnalysisParseError       Kind = "AnalysisParseError"
	KindAnalysisUnavailable      Kind = "AnalysisUnavailable"
	KindConfigurationError       Kind = "ConfigurationError"
	KindInternal                 Kind = "Internal"
)

// Error is a classified failure with a client-facing message
type Error struct {
	Kind     Kind
	Message  string
	Guidance string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrInvalidUpload) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrInvalidUpload            = &Error{Kind: KindInvalidUpload}
	ErrTranscriptionUnavailable = &Error{Kind: KindTranscriptionUnavailable}
	ErrAnalysisParse            = &Error{Kind: KindAnalysisParseError}
	ErrAnalysisUnavailable      = &Error{Kind: KindAnalysisUnavailable}
	ErrConfiguration            = &Error{Kind: KindConfigurationError}
)

func InvalidUpload(message, guidance string) *Error {
	return &Error{Kind: KindInvalidUpload, Message: message, Guidance: guidance}
}

func TranscriptionUnavailable(err error) *Error {
	return &Error{
		Kind:     KindTranscriptionUnavailable,
		Message:  "transcription provider unavailable",
		Guidance: "try again later or upload a text transcript instead",
		Err:      err,
	}
}

func AnalysisParseError(format string, args ...any) *Error {
	return &Error{
		Kind:     KindAnalysisParseError,
		Message:  fmt.Sprintf(format, args...),
		Guidance: "the analysis could not be interpreted; the transcript is still shown",
	}
}

func AnalysisUnavailable(err error) *Error {
	return &Error{
		Kind:     KindAnalysisUnavailable,
		Message:  "analysis provider unavailable",
		Guidance: "try again later; the transcript is still shown",
		Err:      err,
	}
}

func ConfigurationError(message string) *Error {
	return &Error{Kind: KindConfigurationError, Message: message}
}

// Internal classifies an unexpected failure; its cause is never shown to clients
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
