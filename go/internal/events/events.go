package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/buzzer/go/internal/models"
)

// Event types shared between the session engine, the gateway and the bus

// Type identifies a session update
type Type string

const (
	TypePlayerJoined     Type = "player_joined"
	TypePlayerLeft       Type = "player_left"
	TypeBuzzerPressed    Type = "buzzer_pressed"
	TypeQuestionStarted  Type = "question_started"
	TypeCountdownStarted Type = "countdown_started"
	TypeCountdownTick    Type = "countdown_tick"
	TypeBuzzersLocked    Type = "buzzers_locked"

	// One per host action
	TypeSetQuestion   Type = "set_question"
	TypeStartQuestion Type = "start_question"
	TypeInstantLaunch Type = "instant_launch"
	TypeStopQuestion  Type = "stop_question"
	TypeClearBuzzers  Type = "clear_buzzers"
	TypeLockBuzzers   Type = "lock_buzzers"
	TypeUnlockBuzzers Type = "unlock_buzzers"
	TypeRemovePlayer  Type = "remove_player"
	TypeRenamePlayer  Type = "rename_player"
)

// BuzzerEvent describes one accepted buzzer press
type BuzzerEvent struct {
	PlayerID  uuid.UUID `json:"playerId"`
	Timestamp time.Time `json:"timestamp"`
	Rank      int       `json:"rank"`
}

// Update is one state change of a session, carrying the post-change snapshot.
// Only the extras relevant to Type are set.
type Update struct {
	Type      Type           `json:"type"`
	SessionID uuid.UUID      `json:"sessionId"`
	Session   models.Session `json:"session"`
	At        time.Time      `json:"at"`

	PlayerID       *uuid.UUID   `json:"playerId,omitempty"`
	BuzzerEvent    *BuzzerEvent `json:"buzzerEvent,omitempty"`
	RemainingTime  *int         `json:"remainingTime,omitempty"`
	CountdownDelay *int         `json:"countdownDelay,omitempty"`
}

// Notifier receives every session update. Implementations are called while
// the session is locked and must not block or call back into the engine.
type Notifier interface {
	Notify(update Update)
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(update Update)

func (f NotifierFunc) Notify(update Update) { f(update) }

// Fanout delivers each update to several notifiers in order
type Fanout []Notifier

func (f Fanout) Notify(update Update) {
	for _, n := range f {
		if n != nil {
			n.Notify(update)
		}
	}
}

// Discard drops every update
var Discard Notifier = NotifierFunc(func(Update) {})
