package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/buzzer/go/internal/events"
	"github.com/mcdev12/buzzer/go/internal/models"
	"github.com/mcdev12/buzzer/go/internal/session"
)

// Inbound message types
const (
	MessageJoinSession = "join_session"
	MessagePressBuzzer = "press_buzzer"
	MessageHostAction  = "host_action"
)

// Outbound event names
const (
	EventSessionUpdate = "session_update"
	EventError         = "error"
)

// Private notices sent to a single client
const (
	errInvalidMessage   = "Invalid message"
	errUnknownMessage   = "Unknown message type"
	errInvalidSession   = "Invalid session or player"
	errNotInSession     = "Not in a session"
	errCannotPress      = "Cannot press buzzer"
	errInvalidAction    = "Invalid action"
	errActionFailed     = "Action failed"
	errNotHost          = "Only the host can perform this action"
	errSessionNotActive = "Session no longer exists"
)

// InboundMessage is the envelope of every client message
type InboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinSessionData binds a connection to a player that already joined over HTTP
type JoinSessionData struct {
	SessionID uuid.UUID `json:"sessionId"`
	PlayerID  uuid.UUID `json:"playerId"`
}

// HostActionData carries a host action and its parameters
type HostActionData struct {
	Type events.Type     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// hostActionParams is the union of every host action's parameters
type hostActionParams struct {
	Question       string    `json:"question"`
	TimeLimit      int       `json:"timeLimit"`
	CountdownDelay *int      `json:"countdownDelay"`
	PlayerID       uuid.UUID `json:"playerId"`
	NewName        string    `json:"newName"`
}

// OutboundMessage is the envelope of every server message
type OutboundMessage struct {
	Event   string      `json:"event"`
	Type    events.Type `json:"type,omitempty"`
	Data    *UpdateData `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// UpdateData is the payload of a session_update
type UpdateData struct {
	Session        models.Session      `json:"session"`
	PlayerID       *uuid.UUID          `json:"playerId,omitempty"`
	BuzzerEvent    *events.BuzzerEvent `json:"buzzerEvent,omitempty"`
	RemainingTime  *int                `json:"remainingTime,omitempty"`
	CountdownDelay *int                `json:"countdownDelay,omitempty"`
}

var errMissingPlayer = errors.New("playerId is required")

// NewUpdateMessage wraps a session update for the room
func NewUpdateMessage(u events.Update) *OutboundMessage {
	return &OutboundMessage{
		Event: EventSessionUpdate,
		Type:  u.Type,
		Data: &UpdateData{
			Session:        u.Session,
			PlayerID:       u.PlayerID,
			BuzzerEvent:    u.BuzzerEvent,
			RemainingTime:  u.RemainingTime,
			CountdownDelay: u.CountdownDelay,
		},
	}
}

// NewErrorMessage builds a private error notice
func NewErrorMessage(message string) *OutboundMessage {
	return &OutboundMessage{Event: EventError, Message: message}
}

// DecodeHostAction turns a wire host action into its engine variant
func DecodeHostAction(data HostActionData) (session.HostAction, error) {
	var p hostActionParams
	if len(data.Data) > 0 && string(data.Data) != "null" {
		if err := json.Unmarshal(data.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", data.Type, err)
		}
	}

	switch data.Type {
	case events.TypeSetQuestion:
		return session.SetQuestion{Question: p.Question, TimeLimitSeconds: p.TimeLimit}, nil
	case events.TypeStartQuestion:
		return session.StartQuestion{CountdownDelaySeconds: p.CountdownDelay}, nil
	case events.TypeInstantLaunch:
		return session.InstantLaunch{TimeLimitSeconds: p.TimeLimit, CountdownDelaySeconds: p.CountdownDelay}, nil
	case events.TypeStopQuestion:
		return session.StopQuestion{}, nil
	case events.TypeClearBuzzers:
		return session.ClearBuzzers{}, nil
	case events.TypeLockBuzzers:
		return session.LockBuzzers{}, nil
	case events.TypeUnlockBuzzers:
		return session.UnlockBuzzers{}, nil
	case events.TypeRemovePlayer:
		if p.PlayerID == uuid.Nil {
			return nil, errMissingPlayer
		}
		return session.RemovePlayer{PlayerID: p.PlayerID}, nil
	case events.TypeRenamePlayer:
		if p.PlayerID == uuid.Nil {
			return nil, errMissingPlayer
		}
		return session.RenamePlayer{PlayerID: p.PlayerID, NewName: p.NewName}, nil
	default:
		return nil, fmt.Errorf("%w: %q", session.ErrUnknownAction, data.Type)
	}
}
