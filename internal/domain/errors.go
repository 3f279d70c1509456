package domain

import (
	"errors"
	"fmt"
)

// Kind classifies business errors surfaced to users.
type Kind string

const (
	KindNotFound   Kind = "NOT_FOUND"
	KindValidation Kind = "VALIDATION"
	KindConflict   Kind = "CONFLICT"
)

// Reason narrows a Kind down to the rule that failed. Channels map it to a message.
type Reason string

const (
	ReasonUnknownAccount  Reason = "unknown_account"
	ReasonInvalidNumber   Reason = "invalid_number"
	ReasonRegression      Reason = "reading_regression"
	ReasonEditWindow      Reason = "edit_window_elapsed"
	ReasonInvalidChoice   Reason = "invalid_choice"
	ReasonDatePast        Reason = "date_past"
	ReasonDateOutOfRange  Reason = "date_out_of_range"
	ReasonDateTaken       Reason = "date_taken"
	ReasonDateFull        Reason = "date_full"
	ReasonSlotTaken       Reason = "slot_taken"
	ReasonBadCredentials  Reason = "bad_credentials"
	ReasonUnknownLanguage Reason = "unknown_language"
)

// Error is the single business error type shared by the directory, ledger and book.
type Error struct {
	Kind   Kind
	Reason Reason
	// Vars carries values for the user-facing message, e.g. the previous reading.
	Vars map[string]string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Code is picked up by handler logging as err_code.
func (e *Error) Code() string {
	if e == nil {
		return ""
	}
	return string(e.Reason)
}

// NotFound builds a KindNotFound error.
func NotFound(reason Reason, vars map[string]string) *Error {
	return &Error{Kind: KindNotFound, Reason: reason, Vars: vars}
}

// Invalid builds a KindValidation error.
func Invalid(reason Reason, vars map[string]string) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Vars: vars}
}

// Conflict builds a KindConflict error.
func Conflict(reason Reason, err error) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Err: err}
}

// AsError extracts a business error from err.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) && de != nil {
		return de, true
	}
	return nil, false
}

// IsNotFound reports whether err is a KindNotFound business error.
func IsNotFound(err error) bool { return isKind(err, KindNotFound) }

// IsValidation reports whether err is a KindValidation business error.
func IsValidation(err error) bool { return isKind(err, KindValidation) }

// IsConflict reports whether err is a KindConflict business error.
func IsConflict(err error) bool { return isKind(err, KindConflict) }

// HasReason reports whether err is a business error with the given reason.
func HasReason(err error, reason Reason) bool {
	de, ok := AsError(err)
	return ok && de.Reason == reason
}

func isKind(err error, kind Kind) bool {
	de, ok := AsError(err)
	return ok && de.Kind == kind
}
