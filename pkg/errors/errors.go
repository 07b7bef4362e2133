package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error and determines its HTTP status
type Kind int

// Error kinds
const (
	KindInternal Kind = iota + 1000
	KindValidation
	KindForbiddenField
	KindInvalidIdentifier
	KindUnauthenticated
	KindInvalidCredentials
	KindForbidden
	KindNotFound
	KindDuplicateKey
	KindHasDependents
	KindInvalidTransition
	KindRateLimited
)

var kindNames = map[Kind]string{
	KindInternal:           "InternalError",
	KindValidation:         "ValidationError",
	KindForbiddenField:     "ForbiddenFieldError",
	KindInvalidIdentifier:  "InvalidIdentifier",
	KindUnauthenticated:    "Unauthenticated",
	KindInvalidCredentials: "InvalidCredentials",
	KindForbidden:          "Forbidden",
	KindNotFound:           "NotFound",
	KindDuplicateKey:       "DuplicateKey",
	KindHasDependents:      "HasDependents",
	KindInvalidTransition:  "InvalidTransition",
	KindRateLimited:        "RateLimited",
}

var kindStatus = map[Kind]int{
	KindInternal:           http.StatusInternalServerError,
	KindValidation:         http.StatusBadRequest,
	KindForbiddenField:     http.StatusBadRequest,
	KindInvalidIdentifier:  http.StatusBadRequest,
	KindUnauthenticated:    http.StatusUnauthorized,
	KindInvalidCredentials: http.StatusUnauthorized,
	KindForbidden:          http.StatusForbidden,
	KindNotFound:           http.StatusNotFound,
	KindDuplicateKey:       http.StatusConflict,
	KindHasDependents:      http.StatusBadRequest,
	KindInvalidTransition:  http.StatusConflict,
	KindRateLimited:        http.StatusTooManyRequests,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Status returns the HTTP status code for the kind
func (k Kind) Status() int {
	if status, ok := kindStatus[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// AppError represents an application error
type AppError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code for the error
func (e *AppError) StatusCode() int {
	return e.Kind.Status()
}

// Is matches any AppError of the same kind, so errors.Is(err, &AppError{Kind: KindNotFound}) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// As extracts the AppError from err, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// Error constructors

func NewValidation(field, message string) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Message: fmt.Sprintf("%s: %s", field, message),
		Field:   field,
	}
}

func NewForbiddenField(field string) *AppError {
	return &AppError{
		Kind:    KindForbiddenField,
		Message: fmt.Sprintf("%s: field cannot be updated", field),
		Field:   field,
	}
}

func NewInvalidIdentifier(field string) *AppError {
	return &AppError{
		Kind:    KindInvalidIdentifier,
		Message: fmt.Sprintf("invalid %s", field),
		Field:   field,
	}
}

func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewDuplicateKey(field string, err error) *AppError {
	return &AppError{
		Kind:    KindDuplicateKey,
		Message: fmt.Sprintf("%s already exists", field),
		Field:   field,
		Err:     err,
	}
}

func NewHasDependents(message string) *AppError {
	return &AppError{
		Kind:    KindHasDependents,
		Message: message,
	}
}

func NewInvalidTransition(resource, from, to string) *AppError {
	return &AppError{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("%s cannot move from %s to %s", resource, from, to),
		Field:   "status",
	}
}

// NewStaleStatus reports a write that lost a race with another status change.
func NewStaleStatus(resource string, err error) *AppError {
	return &AppError{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("%s status changed concurrently", resource),
		Field:   "status",
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func Unauthenticated(err error) *AppError {
	return &AppError{
		Kind:    KindUnauthenticated,
		Message: "unauthenticated",
		Err:     err,
	}
}

// NewUnauthenticated carries the public message; err holds the reason for logs only.
func NewUnauthenticated(message string, err error) *AppError {
	return &AppError{
		Kind:    KindUnauthenticated,
		Message: message,
		Err:     err,
	}
}

// ErrInvalidCredentials is returned by every login path on any mismatch.
var ErrInvalidCredentials = &AppError{
	Kind:    KindInvalidCredentials,
	Message: "invalid credentials",
}

func Forbidden(message string) *AppError {
	if message == "" {
		message = "permission denied"
	}
	return &AppError{
		Kind:    KindForbidden,
		Message: message,
	}
}

func RateLimited() *AppError {
	return &AppError{
		Kind:    KindRateLimited,
		Message: "rate limit exceeded",
	}
}
