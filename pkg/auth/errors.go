package auth

import (
	"errors"
	"fmt"
)

// Kind classifies protocol failures. The set is closed; every error the
// Protocol returns is an *Error carrying one of these kinds.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindUserNotFound
	KindAuthIDNotFound
	KindChallengeNotFound
	KindAuthenticationFailed
)

var kindNames = map[Kind]string{
	KindInternal:             "internal_error",
	KindInvalidInput:         "invalid_input",
	KindUserNotFound:         "user_not_found",
	KindAuthIDNotFound:       "auth_id_not_found",
	KindChallengeNotFound:    "challenge_not_found",
	KindAuthenticationFailed: "authentication_failed",
}

// String returns the snake_case name used on the wire.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a protocol failure.
type Error struct {
	Kind Kind
	Op   string // operation, e.g. "CreateChallenge"
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the per-kind sentinels below, so callers can write
// errors.Is(err, auth.ErrUserNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels, one per kind.
var (
	ErrInternal             = &Error{Kind: KindInternal}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrUserNotFound         = &Error{Kind: KindUserNotFound}
	ErrAuthIDNotFound       = &Error{Kind: KindAuthIDNotFound}
	ErrChallengeNotFound    = &Error{Kind: KindChallengeNotFound}
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed}
)

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newError(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
