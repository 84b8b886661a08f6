// Package auth implements the GitHub OAuth login flow and the server-side
// sessions that back the session_id cookie.
package auth

import (
	"errors"
	"fmt"
)

// ErrUnauthorized means the caller has no live session or presented an
// invalid login state.
var ErrUnauthorized = errors.New("not authenticated")

// AuthError reports a failed step of the OAuth flow. Status carries the
// upstream HTTP status when GitHub answered with one.
type AuthError struct {
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	msg := e.Op + ": " + e.Detail
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: %s (status %d)", e.Op, e.Detail, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }
