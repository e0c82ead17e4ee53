package domain

import (
	"errors"
	"fmt"
)

// Kind is the closed error taxonomy from spec §7. Callers at the action
// boundary switch on Kind to decide the user-facing failure shape; it is
// never used for control flow inside the engine itself (errors.Is/As on
// the sentinels below is preferred there).
type Kind string

const (
	KindTicketNotFound       Kind = "TICKET_NOT_FOUND"
	KindStepNotFound         Kind = "STEP_NOT_FOUND"
	KindNotFound             Kind = "NOT_FOUND"
	KindInvalidState         Kind = "INVALID_STATE"
	KindPermissionDenied     Kind = "PERMISSION_DENIED"
	KindValidation           Kind = "VALIDATION_ERROR"
	KindConcurrency          Kind = "CONCURRENCY"
	KindInfoRequestOpen      Kind = "INFO_REQUEST_OPEN"
	KindApproverResolution   Kind = "APPROVER_RESOLUTION"
	KindManagerNotFound      Kind = "MANAGER_NOT_FOUND"
	KindTransitionNotFound   Kind = "TRANSITION_NOT_FOUND"
	KindEmailSend            Kind = "EMAIL_SEND"
)

// FieldError is one field-level validation failure.
type FieldError struct {
	StepID   ID     `json:"step_id,omitempty"`
	FieldKey string `json:"field_key"`
	Message  string `json:"message"`
}

// Error is the engine's single user-facing error type.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, ErrTicketNotFound) etc. work against a *Error
// built with New(kind, ...) since the sentinels below are themselves
// *Error values compared by Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches an underlying cause while keeping the taxonomy kind.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithFields attaches field-level validation detail.
func (e *Error) WithFields(fields []FieldError) *Error {
	e.Fields = fields
	return e
}

// Sentinels for errors.Is comparisons against a well-known kind without
// needing the original message.
var (
	ErrTicketNotFound     = New(KindTicketNotFound, "")
	ErrStepNotFound       = New(KindStepNotFound, "")
	ErrNotFound           = New(KindNotFound, "")
	ErrInvalidState       = New(KindInvalidState, "")
	ErrPermissionDenied   = New(KindPermissionDenied, "")
	ErrValidation         = New(KindValidation, "")
	ErrConcurrency        = New(KindConcurrency, "")
	ErrInfoRequestOpen    = New(KindInfoRequestOpen, "")
	ErrApproverResolution = New(KindApproverResolution, "")
	ErrManagerNotFound    = New(KindManagerNotFound, "")
	ErrTransitionNotFound = New(KindTransitionNotFound, "")
	ErrEmailSend          = New(KindEmailSend, "")
)
