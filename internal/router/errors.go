package router

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. The concrete types below carry the offending id.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrDuplicateSession   = errors.New("session already exists")
	ErrExternalSideEffect = errors.New("external side effect failed")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// SessionNotFoundError is returned when an operation references a session
// id that does not currently exist. Closed sessions are removed, so a
// second close on the same id lands here too.
type SessionNotFoundError struct {
	ID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.ID)
}

// Is reports whether target is ErrSessionNotFound.
func (e *SessionNotFoundError) Is(target error) bool {
	return target == ErrSessionNotFound
}

// DuplicateSessionError is returned by CreateSession when the id is taken.
type DuplicateSessionError struct {
	ID string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("session %q already exists", e.ID)
}

// Is reports whether target is ErrDuplicateSession.
func (e *DuplicateSessionError) Is(target error) bool {
	return target == ErrDuplicateSession
}

// ExternalSideEffectError wraps a failure talking to the mirror store or the
// group-chat backend. The router never returns it from CreateSession,
// SendMessage or CloseSession; it is logged and counted instead.
type ExternalSideEffectError struct {
	Channel string // "mirror" or "groupchat"
	Op      string
	Err     error
}

func (e *ExternalSideEffectError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Channel, e.Op, e.Err)
}

func (e *ExternalSideEffectError) Unwrap() error { return e.Err }

// Is reports whether target is ErrExternalSideEffect.
func (e *ExternalSideEffectError) Is(target error) bool {
	return target == ErrExternalSideEffect
}
