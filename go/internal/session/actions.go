package session

import (
	"github.com/google/uuid"
	"github.com/mcdev12/buzzer/go/internal/events"
	"github.com/mcdev12/buzzer/go/internal/models"
)

// HostAction is one of the actions only the session host may perform.
// The set of implementations is closed: SetQuestion, StartQuestion,
// InstantLaunch, StopQuestion, ClearBuzzers, LockBuzzers, UnlockBuzzers,
// RemovePlayer and RenamePlayer.
type HostAction interface {
	Type() events.Type
	isHostAction()
}

// SetQuestion stores the question and time limit without starting a round.
// A non-positive time limit falls back to the configured default.
type SetQuestion struct {
	Question         string
	TimeLimitSeconds int
}

// StartQuestion begins a countdown for the already set question.
// A nil delay falls back to the configured default; zero activates at once.
type StartQuestion struct {
	CountdownDelaySeconds *int
}

// InstantLaunch starts an open buzzer round without a prepared question.
type InstantLaunch struct {
	TimeLimitSeconds      int
	CountdownDelaySeconds *int
}

// StopQuestion force-ends any countdown or active round.
type StopQuestion struct{}

// ClearBuzzers resets every player's buzzer.
type ClearBuzzers struct{}

// LockBuzzers rejects presses until unlocked.
type LockBuzzers struct{}

// UnlockBuzzers accepts presses again.
type UnlockBuzzers struct{}

// RemovePlayer kicks a player. The host cannot remove themselves this way.
type RemovePlayer struct {
	PlayerID uuid.UUID
}

// RenamePlayer changes a player's display name.
type RenamePlayer struct {
	PlayerID uuid.UUID
	NewName  string
}

func (SetQuestion) Type() events.Type   { return events.TypeSetQuestion }
func (StartQuestion) Type() events.Type { return events.TypeStartQuestion }
func (InstantLaunch) Type() events.Type { return events.TypeInstantLaunch }
func (StopQuestion) Type() events.Type  { return events.TypeStopQuestion }
func (ClearBuzzers) Type() events.Type  { return events.TypeClearBuzzers }
func (LockBuzzers) Type() events.Type   { return events.TypeLockBuzzers }
func (UnlockBuzzers) Type() events.Type { return events.TypeUnlockBuzzers }
func (RemovePlayer) Type() events.Type  { return events.TypeRemovePlayer }
func (RenamePlayer) Type() events.Type  { return events.TypeRenamePlayer }

func (SetQuestion) isHostAction()   {}
func (StartQuestion) isHostAction() {}
func (InstantLaunch) isHostAction() {}
func (StopQuestion) isHostAction()  {}
func (ClearBuzzers) isHostAction()  {}
func (LockBuzzers) isHostAction()   {}
func (UnlockBuzzers) isHostAction() {}
func (RemovePlayer) isHostAction()  {}
func (RenamePlayer) isHostAction()  {}

// ActionResult is the outcome of a successful host action
type ActionResult struct {
	Session models.Session
	// Removed is set when the action removed a player
	Removed *uuid.UUID
	// Destroyed is set when the action left the session empty
	Destroyed bool
}
