// ABOUTME: Closed error taxonomy for login operations
// ABOUTME: Error carries a Code and wraps the component sentinel for errors.Is

package login

import (
	"errors"
	"fmt"
)

// Code classifies a login failure.
type Code string

const (
	CodeChallengeNotFound      Code = "challenge_not_found"
	CodeInvalidSignature       Code = "invalid_signature"
	CodeMalformedSignature     Code = "malformed_signature"
	CodeMalformedKey           Code = "malformed_key"
	CodeDelegationConstruction Code = "delegation_construction"
	CodeSignatureNotFound      Code = "signature_not_found"
	CodeNotInitialized         Code = "not_initialized"
)

// Login errors
var (
	ErrNotInitialized    = errors.New("login service not initialized")
	ErrSignatureNotFound = errors.New("signature not found")
)

// Error is returned by every Service operation that fails for a classified reason.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// CodeOf returns the classification of err, if any.
func CodeOf(err error) (Code, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Code, true
	}
	return "", false
}
