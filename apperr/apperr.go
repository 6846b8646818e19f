package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error for transport mapping.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindRateLimited Kind = "rate_limited"
	KindUnavailable Kind = "unavailable"
	KindUpstream    Kind = "upstream"
	KindStorage     Kind = "storage"
	KindInternal    Kind = "internal"
)

// Error codes
const (
	CodeMissingField    = "VALIDATION_001"
	CodeInvalidFormat   = "VALIDATION_002"
	CodeUnsupportedFile = "VALIDATION_003"
	CodeFileTooLarge    = "VALIDATION_004"

	CodeUpstreamStatus    = "UPSTREAM_001"
	CodeUpstreamTransport = "UPSTREAM_002"
	CodeUpstreamPayload   = "UPSTREAM_003"

	CodeStorageWrite = "STORAGE_001"
	CodeStorageRead  = "STORAGE_002"

	CodeNotFound       = "NOT_FOUND_001"
	CodeAlreadyLoading = "CONFLICT_001"
	CodeRateLimited    = "RATE_001"
	CodePaused         = "UNAVAILABLE_001"
	CodeNoBackend      = "UNAVAILABLE_002"
)

// Error is the application error carried through services and handlers.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind.
func New(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func Validation(code, message string) *Error {
	return New(KindValidation, code, message, nil)
}

func NotFound(message string) *Error {
	return New(KindNotFound, CodeNotFound, message, nil)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message, nil)
}

func RateLimited(message string) *Error {
	return New(KindRateLimited, CodeRateLimited, message, nil)
}

func Unavailable(code, message string) *Error {
	return New(KindUnavailable, code, message, nil)
}

func Upstream(code, message string, err error) *Error {
	return New(KindUpstream, code, message, err)
}

func Storage(code, message string, err error) *Error {
	return New(KindStorage, code, message, err)
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to show an end user.
// Storage failures never leak driver details.
func PublicMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return "Internal error"
	}
	if ae.Kind == KindStorage {
		return "Could not save your changes. Please try again."
	}
	return ae.Message
}

// Details returns the wrapped cause, used for upstream failures.
func Details(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Err != nil && ae.Kind == KindUpstream {
		return ae.Err.Error()
	}
	return ""
}
