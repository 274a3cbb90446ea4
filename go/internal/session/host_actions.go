package session

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/buzzer/go/internal/events"
	"github.com/mcdev12/buzzer/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ExecuteHostAction applies a host action on behalf of requester. Only the
// current host may act; every rejection leaves the session untouched.
// A successful action emits one update whose type is the action type.
func (e *Engine) ExecuteHostAction(sessionID uuid.UUID, action HostAction, requester uuid.UUID) (ActionResult, error) {
	if action == nil {
		return ActionResult{}, ErrUnknownAction
	}

	ent, err := e.acquire(sessionID)
	if err != nil {
		return ActionResult{}, err
	}
	defer ent.mu.Unlock()

	if ent.hostID != requester {
		log.Warn().
			Str("session_id", ent.id.String()).
			Str("requester", requester.String()).
			Str("action", string(action.Type())).
			Msg("host action rejected: requester is not host")
		return ActionResult{}, ErrNotHost
	}

	update := events.Update{Type: action.Type()}

	switch a := action.(type) {
	case SetQuestion:
		question := strings.TrimSpace(a.Question)
		if question == "" {
			return ActionResult{}, validationError("question is required")
		}
		ent.question = question
		ent.timeLimit = e.timeLimitOrDefault(a.TimeLimitSeconds)

	case StartQuestion:
		delay := e.countdownOrDefault(a.CountdownDelaySeconds)
		e.startRoundLocked(ent, delay)
		update.CountdownDelay = &delay

	case InstantLaunch:
		delay := e.countdownOrDefault(a.CountdownDelaySeconds)
		ent.question = models.OpenBuzzerQuestion
		ent.timeLimit = e.timeLimitOrDefault(a.TimeLimitSeconds)
		e.startRoundLocked(ent, delay)
		update.CountdownDelay = &delay

	case StopQuestion:
		e.stopRoundLocked(ent)

	case ClearBuzzers:
		ent.clearBuzzers()

	case LockBuzzers:
		ent.locked = true

	case UnlockBuzzers:
		ent.locked = false

	case RemovePlayer:
		if a.PlayerID == requester {
			break
		}
		if _, ok := ent.players[a.PlayerID]; !ok {
			break
		}
		snap, destroyed, err := e.removePlayerLocked(ent, a.PlayerID, action.Type())
		if err != nil {
			return ActionResult{}, err
		}
		removed := a.PlayerID
		// removePlayerLocked has already emitted the update
		return ActionResult{Session: snap, Removed: &removed, Destroyed: destroyed}, nil

	case RenamePlayer:
		name := strings.TrimSpace(a.NewName)
		if name == "" {
			return ActionResult{}, validationError("new name is required")
		}
		if p, ok := ent.players[a.PlayerID]; ok {
			p.name = name
		}

	default:
		return ActionResult{}, fmt.Errorf("%w: %T", ErrUnknownAction, action)
	}

	snap := e.snapshot(ent)
	update.Session = snap
	e.emit(update)

	log.Info().
		Str("session_id", ent.id.String()).
		Str("action", string(action.Type())).
		Msg("host action applied")

	return ActionResult{Session: snap}, nil
}
