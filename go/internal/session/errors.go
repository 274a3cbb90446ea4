package session

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for missing or malformed input
	ErrValidation = errors.New("validation failed")
	// ErrSessionNotFound is returned for an unknown session id or code
	ErrSessionNotFound = errors.New("session not found")
	// ErrPlayerNotFound is returned for a player id that is not in the session
	ErrPlayerNotFound = errors.New("player not found")
	// ErrNotHost is returned when a non-host player attempts a host action
	ErrNotHost = errors.New("only the host can perform this action")
	// ErrUnknownAction is returned for a host action the engine does not support
	ErrUnknownAction = errors.New("unknown host action")
	// ErrInvalidTransition is the parent of every rejected state change
	ErrInvalidTransition = errors.New("invalid transition")
)

var (
	ErrRoundNotActive  = fmt.Errorf("%w: no active round", ErrInvalidTransition)
	ErrCountdownActive = fmt.Errorf("%w: countdown in progress", ErrInvalidTransition)
	ErrBuzzersLocked   = fmt.Errorf("%w: buzzers are locked", ErrInvalidTransition)
	ErrAlreadyBuzzed   = fmt.Errorf("%w: buzzer already pressed", ErrInvalidTransition)
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
