// Package apierror provides the error taxonomy shared by services and the
// standardized response envelopes written by handlers. Internal details
// (SQL errors, stack traces) never reach the client: only Kind and Detail do.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable machine-readable error category.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindNotFound            Kind = "resource_not_found"
	KindConcurrencyConflict Kind = "concurrency_conflict"
	KindInconsistentState   Kind = "inconsistent_state"
	KindInternal            Kind = "internal_error"
)

// HTTPStatus maps a kind to its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConcurrencyConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error returned by services.
type Error struct {
	Kind    Kind
	Message string
	Barcode string
	Box     string
	OrderID string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may resubmit the whole request.
func (e *Error) Retryable() bool { return e.Kind == KindConcurrencyConflict }

// WithBarcode, WithBox and WithOrder attach the offending identifier.
func (e *Error) WithBarcode(barcode string) *Error { e.Barcode = barcode; return e }
func (e *Error) WithBox(box string) *Error         { e.Box = box; return e }
func (e *Error) WithOrder(orderID string) *Error   { e.OrderID = orderID; return e }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func InvalidInput(format string, args ...any) *Error {
	return newError(KindInvalidInput, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newError(KindConcurrencyConflict, format, args...)
}

func Inconsistent(format string, args ...any) *Error {
	return newError(KindInconsistentState, format, args...)
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	e := newError(kind, format, args...)
	e.Err = err
	return e
}

// As extracts the domain error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

// ── Envelopes ─────────────────────────────────────────────────────────────────

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Kind      Kind   `json:"kind"`
	Detail    string `json:"detail"`
	Retryable bool   `json:"retryable"`
	Barcode   string `json:"barcode,omitempty"`
	Box       string `json:"box,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
}

// New builds a plain envelope used by middleware (auth, rate limiting).
func New(kind Kind, msg string) *APIError {
	return &APIError{Kind: kind, Detail: msg}
}

// FromError converts any error into an envelope and status code. Foreign
// errors collapse to a generic internal error.
func FromError(err error) (int, *APIError) {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError, New(KindInternal, "internal server error")
	}
	return e.Kind.HTTPStatus(), &APIError{
		Kind:      e.Kind,
		Detail:    e.Message,
		Retryable: e.Retryable(),
		Barcode:   e.Barcode,
		Box:       e.Box,
		OrderID:   e.OrderID,
	}
}

// ValidationError wraps multiple field errors.
type ValidationError struct {
	Kind   Kind              `json:"kind"`
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Kind: KindInvalidInput, Detail: "validation failed", Fields: fields}
}
