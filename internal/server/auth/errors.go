package auth

import (
	"errors"
	"fmt"
)

// Code names one failure of the token pipeline. The set is closed: every
// error produced by this package carries one of the codes below.
type Code string

const (
	CodeMalformedToken   Code = "malformed_token"
	CodeSignatureInvalid Code = "signature_invalid"
	CodeExpiredToken     Code = "expired_token"
	CodeWrongTokenKind   Code = "wrong_token_kind"
	CodeRevokedToken     Code = "revoked_token"
	CodeRotationAborted  Code = "rotation_aborted"
	CodeInsufficientRole Code = "insufficient_role"
	CodeStoreUnavailable Code = "revocation_store_unavailable"
)

// Category groups codes the way transports report them.
type Category int

const (
	CategoryUnknown Category = iota
	// CategoryAuthentication: the credential is invalid (401 / Unauthenticated).
	CategoryAuthentication
	// CategoryAuthorization: the caller lacks the capability (403 / PermissionDenied).
	CategoryAuthorization
	// CategoryUnavailable: a dependency could not answer (503 / Unavailable).
	CategoryUnavailable
)

func (c Category) String() string {
	switch c {
	case CategoryAuthentication:
		return "authentication"
	case CategoryAuthorization:
		return "authorization"
	case CategoryUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Category reports which group the code belongs to.
func (c Code) Category() Category {
	switch c {
	case CodeMalformedToken, CodeSignatureInvalid, CodeExpiredToken,
		CodeWrongTokenKind, CodeRevokedToken, CodeRotationAborted:
		return CategoryAuthentication
	case CodeInsufficientRole:
		return CategoryAuthorization
	case CodeStoreUnavailable:
		return CategoryUnavailable
	default:
		return CategoryUnknown
	}
}

// Error is the typed failure returned by the codec, validator, issuer and
// guard. Required and Actual are only set for CodeInsufficientRole.
type Error struct {
	Code     Code
	Required Role
	Actual   Role
	Err      error
}

func (e *Error) Error() string {
	if e.Code == CodeInsufficientRole {
		return fmt.Sprintf("%s: required %q, actual %q", e.Code, e.Required, e.Actual)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, ErrExpiredToken)
// holds regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrMalformedToken             = &Error{Code: CodeMalformedToken}
	ErrSignatureInvalid           = &Error{Code: CodeSignatureInvalid}
	ErrExpiredToken               = &Error{Code: CodeExpiredToken}
	ErrWrongTokenKind             = &Error{Code: CodeWrongTokenKind}
	ErrRevokedToken               = &Error{Code: CodeRevokedToken}
	ErrRotationAborted            = &Error{Code: CodeRotationAborted}
	ErrInsufficientRole           = &Error{Code: CodeInsufficientRole}
	ErrRevocationStoreUnavailable = &Error{Code: CodeStoreUnavailable}
)

// CodeOf extracts the code from err, if err is (or wraps) an *Error.
func CodeOf(err error) (Code, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code, true
	}
	return "", false
}

// CategoryOf returns the category of err, CategoryUnknown for foreign errors.
func CategoryOf(err error) Category {
	code, ok := CodeOf(err)
	if !ok {
		return CategoryUnknown
	}
	return code.Category()
}

func newError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// unavailable wraps a RevocationStore failure. Errors that already carry a
// code are passed through.
func unavailable(err error) error {
	if _, ok := CodeOf(err); ok {
		return err
	}
	return newError(CodeStoreUnavailable, err)
}
