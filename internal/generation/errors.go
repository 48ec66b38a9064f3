package generation

import (
	"errors"
	"strings"
)

// Kind classifies a failed generation attempt.
type Kind string

const (
	KindMissingCredential Kind = "missing_credential"
	KindInvalidCredential Kind = "invalid_credential"
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindEmptyResult       Kind = "empty_result"
	KindUnknown           Kind = "unknown"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrMissingCredential = &Error{Kind: KindMissingCredential, Message: "credential is not set"}
	ErrInvalidCredential = &Error{Kind: KindInvalidCredential, Message: "credential was rejected"}
	ErrQuotaExceeded     = &Error{Kind: KindQuotaExceeded, Message: "quota exceeded"}
	ErrEmptyResult       = &Error{Kind: KindEmptyResult, Message: "no images returned"}
)

// Error is the only error type Client.Generate returns.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return "generation: " + string(e.Kind)
	}
	return "generation: " + string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of a generation error, or KindUnknown.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

// Classify maps a provider failure onto the error taxonomy. Errors that are
// already classified pass through; anything unrecognized becomes KindUnknown
// carrying the provider's message verbatim.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "API key not valid"), strings.Contains(msg, "API_KEY_INVALID"):
		return &Error{Kind: KindInvalidCredential, Message: msg, Err: err}
	case strings.Contains(msg, "RESOURCE_EXHAUSTED"), strings.Contains(msg, "429"):
		return &Error{Kind: KindQuotaExceeded, Message: msg, Err: err}
	default:
		return &Error{Kind: KindUnknown, Message: msg, Err: err}
	}
}
