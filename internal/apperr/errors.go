package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a rejected operation so clients can show a precise message
type Kind string

const (
	KindValidation             Kind = "validation"
	KindInsufficientBalance    Kind = "insufficient_balance"
	KindAuthorization          Kind = "authorization"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindNotFound               Kind = "not_found"
	KindMarketplaceDisabled    Kind = "marketplace_disabled"
	KindTransient              Kind = "transient"
	KindInternal               Kind = "internal"
)

// Metadata describes how a kind is surfaced over HTTP
type Metadata struct {
	HTTPStatus int
	Retryable  bool
}

var metadataByKind = map[Kind]Metadata{
	KindValidation:             {HTTPStatus: http.StatusBadRequest},
	KindInsufficientBalance:    {HTTPStatus: http.StatusPaymentRequired},
	KindAuthorization:          {HTTPStatus: http.StatusForbidden},
	KindInvalidStateTransition: {HTTPStatus: http.StatusConflict},
	KindNotFound:               {HTTPStatus: http.StatusNotFound},
	KindMarketplaceDisabled:    {HTTPStatus: http.StatusServiceUnavailable},
	KindTransient:              {HTTPStatus: http.StatusServiceUnavailable, Retryable: true},
	KindInternal:               {HTTPStatus: http.StatusInternalServerError},
}

// MetadataFor returns the HTTP metadata of a kind, defaulting to internal
func MetadataFor(kind Kind) Metadata {
	if meta, ok := metadataByKind[kind]; ok {
		return meta
	}
	return metadataByKind[KindInternal]
}

// Error is a business-rule rejection or a classified infrastructure failure
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by kind, so errors.Is(err, apperr.NotFound("")) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: err}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func InsufficientBalance(format string, args ...any) *Error {
	return New(KindInsufficientBalance, format, args...)
}

func Authorization(format string, args ...any) *Error {
	return New(KindAuthorization, format, args...)
}

func InvalidTransition(format string, args ...any) *Error {
	return New(KindInvalidStateTransition, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Transient wraps a data-store failure that the caller may retry with backoff
func Transient(err error, message string) *Error {
	return Wrap(KindTransient, err, message)
}

// KindOf extracts the kind of err; untyped errors are internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether err may be retried by the caller
func IsRetryable(err error) bool {
	return MetadataFor(KindOf(err)).Retryable
}
