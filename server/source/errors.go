package source

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the wire name of an error class. Kinds and their status codes are
// part of the external interface and must stay stable for existing clients.
type Kind string

const (
	KindAuth           Kind = "AuthError"
	KindRateLimit      Kind = "RateLimitError"
	KindNotFound       Kind = "NotFoundError"
	KindUnsupported    Kind = "UnsupportedOperationError"
	KindUpstreamFormat Kind = "UpstreamFormatError"
	KindEncoding       Kind = "EncodingError"
	KindDecoding       Kind = "DecodingError"
)

// Error is a classified request-level error. UpstreamFormatError is the one
// item-level kind; adapters absorb it per item and only surface it when an
// entire batch is malformed.
type Error struct {
	Kind    Kind
	Message string
	Status  int // optional override, eg a source's nonstandard throttle code
	Err     error
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

func NewAuthError(message string) *Error {
	return &Error{Kind: KindAuth, Message: message}
}

// NewRateLimitError carries the source's own status code when it uses a
// nonstandard one; pass 0 to map to 429.
func NewRateLimitError(message string, status int) *Error {
	return &Error{Kind: KindRateLimit, Message: message, Status: status}
}

func NewNotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func NewUnsupportedError(message string) *Error {
	return &Error{Kind: KindUnsupported, Message: message}
}

func NewFormatError(message string, err error) *Error {
	return &Error{Kind: KindUpstreamFormat, Message: message, Err: err}
}

func NewEncodingError(message string, err error) *Error {
	return &Error{Kind: KindEncoding, Message: message, Err: err}
}

func NewDecodingError(message string, err error) *Error {
	return &Error{Kind: KindDecoding, Message: message, Err: err}
}

// KindOf classifies any error, defaulting to UpstreamFormatError for
// unclassified ones.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstreamFormat
}

// IsUnsupported reports whether err is an UnsupportedOperationError.
func IsUnsupported(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindUnsupported
}

// StatusCode maps a classified error to its protocol status code. The
// mapping is bit-exact per the API contract: auth 401, rate limiting 429
// (unless the source reported its own code), not found 404, unsupported
// operations and codec failures 400, and an upstream batch that was garbage
// end to end 502.
func StatusCode(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusBadGateway
	}
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	case KindUnsupported, KindEncoding, KindDecoding:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
