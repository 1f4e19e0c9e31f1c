// Package domainerrors carries typed error codes from the ledger services to the
// transport layer. Services return *Error values; handlers branch on the code and
// map it to a status without inspecting messages.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies an error so callers can branch on it.
type Code string

// Generic codes shared by every module.
const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeInternal           Code = "internal_error"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"
)

// Ledger codes surfaced by voting, donation and release operations.
const (
	CodeNotWhitelisted      Code = "verifier_not_whitelisted"
	CodeDuplicateVote       Code = "duplicate_vote"
	CodeWindowExpired       Code = "voting_window_expired"
	CodeCaseAlreadyDecided  Code = "case_already_decided"
	CodeInvalidAmount       Code = "invalid_amount"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeCapacityExceeded    Code = "capacity_exceeded"
	CodeOverflow            Code = "arithmetic_overflow"
	CodeUnderflow           Code = "arithmetic_underflow"
	CodeCaseNotVerified     Code = "case_not_verified"
	CodeEscrowNotFound      Code = "escrow_not_found"
	CodeCaseFunded          Code = "case_fully_funded"
)

// Error is a coded domain error. Message is safe to return to clients.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and client-safe message to an underlying cause.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is shorthand for HasCode kept for handler readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost client-safe message.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal server error"
}

// HTTPStatus maps a code to the response status used by the transport layer.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation, CodeInvalidAmount:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeNotWhitelisted:
		return http.StatusForbidden
	case CodeNotFound, CodeEscrowNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeDuplicateVote, CodeCaseAlreadyDecided, CodeCaseFunded:
		return http.StatusConflict
	case CodeWindowExpired:
		return http.StatusGone
	case CodeCaseNotVerified, CodeInsufficientBalance, CodeCapacityExceeded,
		CodeOverflow, CodeUnderflow, CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
