package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable machine codes returned on the wire. Handlers map them to HTTP
// statuses via Status(); services attach the underlying cause as Err.
const (
	CodeInvalidInput        = "invalid_input"
	CodeInvalidScope        = "invalid_scope"
	CodeUnsupportedType     = "unsupported_type"
	CodeTooLarge            = "too_large"
	CodeNotFound            = "not_found"
	CodeForbidden           = "forbidden"
	CodeNoChapter           = "no_chapter"
	CodeResourceNotReady    = "resource_not_ready"
	CodeBelowRelevanceFloor = "below_relevance_floor"
	CodeConflict            = "conflict"
	CodeUpstreamTimeout     = "upstream_timeout"
	CodeUpstreamFailure     = "upstream_failure"
	CodeStorageFailure      = "storage_failure"
	CodeInternal            = "internal"
)

var statusByCode = map[string]int{
	CodeInvalidInput:        http.StatusBadRequest,
	CodeInvalidScope:        http.StatusBadRequest,
	CodeUnsupportedType:     http.StatusBadRequest,
	CodeTooLarge:            http.StatusBadRequest,
	CodeNotFound:            http.StatusNotFound,
	CodeForbidden:           http.StatusForbidden,
	CodeNoChapter:           http.StatusBadRequest,
	CodeResourceNotReady:    http.StatusConflict,
	CodeBelowRelevanceFloor: http.StatusBadRequest,
	CodeConflict:            http.StatusConflict,
	CodeUpstreamTimeout:     http.StatusGatewayTimeout,
	CodeUpstreamFailure:     http.StatusBadGateway,
	CodeStorageFailure:      http.StatusInternalServerError,
	CodeInternal:            http.StatusInternalServerError,
}

type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Status() int {
	if e == nil {
		return http.StatusInternalServerError
	}
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func New(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

func Newf(code string, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// From extracts the *Error wrapped anywhere in err's chain, falling back
// to an internal error so handlers always have a code and status.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Code: CodeInternal, Err: err}
}

// Is reports whether err carries the given stable code.
func Is(err error, code string) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// Retryable reports whether the error is worth retrying upstream-side.
// Transient infrastructure codes qualify; anything caused by the request
// itself does not.
func Retryable(err error) bool {
	var ae *Error
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.Code {
	case CodeUpstreamTimeout, CodeUpstreamFailure, CodeStorageFailure:
		return true
	}
	return false
}
