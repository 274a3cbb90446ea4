package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/buzzer/go/internal/events"
	"github.com/rs/zerolog/log"
)

// startRoundLocked clears buzzers and begins the countdown. A zero delay
// activates the round without any tick.
func (e *Engine) startRoundLocked(ent *entry, delay int) {
	e.cancelTimersLocked(ent)
	ent.round++
	gen := ent.round

	ent.active = false
	ent.questionStart = time.Time{}
	ent.roundStart = time.Time{}
	ent.clearBuzzers()

	if delay <= 0 {
		ent.countdownActive = false
		e.activateLocked(ent, gen)
		return
	}

	ent.countdownActive = true
	ent.countdownStart = e.clock.Now()
	ent.countdownDuration = delay
	ent.countdownRemaining = delay

	e.emit(events.Update{
		Type:           events.TypeCountdownStarted,
		Session:        e.snapshot(ent),
		CountdownDelay: &delay,
	})

	id := ent.id
	ent.countdownTimer = e.scheduler.Every(e.config.TickInterval, func() bool {
		return e.countdownTick(id, gen)
	})

	log.Info().
		Str("session_id", ent.id.String()).
		Int("countdown", delay).
		Int("time_limit", ent.timeLimit).
		Uint64("round", gen).
		Msg("countdown started")
}

// countdownTick runs once per tick interval and reports whether the countdown
// should keep ticking
func (e *Engine) countdownTick(id uuid.UUID, gen uint64) bool {
	ent, err := e.acquire(id)
	if err != nil {
		return false
	}
	defer ent.mu.Unlock()

	if ent.round != gen || !ent.countdownActive {
		return false
	}

	ent.countdownRemaining--
	if ent.countdownRemaining > 0 {
		remaining := ent.countdownRemaining
		e.emit(events.Update{
			Type:          events.TypeCountdownTick,
			Session:       e.snapshot(ent),
			RemainingTime: &remaining,
		})
		return true
	}

	ent.countdownTimer = nil
	e.activateLocked(ent, gen)
	return false
}

// activateLocked ends the countdown, opens the buzzers and arms the expiry timer
func (e *Engine) activateLocked(ent *entry, gen uint64) {
	now := e.clock.Now()
	ent.countdownActive = false
	ent.countdownStart = time.Time{}
	ent.countdownDuration = 0
	ent.countdownRemaining = 0

	ent.active = true
	ent.questionStart = now
	ent.roundStart = now
	ent.locked = false

	id := ent.id
	ent.expiryTimer = e.scheduler.After(e.roundLength(ent), func() {
		e.expire(id, gen)
	})

	e.emit(events.Update{Type: events.TypeQuestionStarted, Session: e.snapshot(ent)})

	log.Info().
		Str("session_id", ent.id.String()).
		Str("question", ent.question).
		Int("time_limit", ent.timeLimit).
		Uint64("round", gen).
		Msg("question started")
}

// expire is the primary round timer. It is a no-op when the round was already
// locked by the sweep, stopped, restarted or destroyed.
func (e *Engine) expire(id uuid.UUID, gen uint64) {
	ent, err := e.acquire(id)
	if err != nil {
		return
	}
	defer ent.mu.Unlock()

	if ent.round != gen || !ent.active {
		return
	}
	ent.expiryTimer = nil
	e.lockRoundLocked(ent, "timer")
}

// lockRoundLocked closes an active round and locks the buzzers
func (e *Engine) lockRoundLocked(ent *entry, source string) {
	ent.locked = true
	ent.active = false
	ent.questionStart = time.Time{}

	e.emit(events.Update{Type: events.TypeBuzzersLocked, Session: e.snapshot(ent)})

	log.Info().
		Str("session_id", ent.id.String()).
		Str("source", source).
		Int("time_limit", ent.timeLimit).
		Msg("round expired, buzzers locked")
}

// stopRoundLocked force-ends any countdown or active round
func (e *Engine) stopRoundLocked(ent *entry) {
	e.cancelTimersLocked(ent)
	ent.round++

	ent.active = false
	ent.questionStart = time.Time{}
	ent.countdownActive = false
	ent.countdownStart = time.Time{}
	ent.countdownDuration = 0
	ent.countdownRemaining = 0
}

// cancelTimersLocked stops both round timers of the session
func (e *Engine) cancelTimersLocked(ent *entry) {
	ent.countdownTimer.Stop()
	ent.countdownTimer = nil
	ent.expiryTimer.Stop()
	ent.expiryTimer = nil
}

func (e *Engine) roundLength(ent *entry) time.Duration {
	return time.Duration(ent.timeLimit) * e.config.TickInterval
}

func (e *Engine) timeLimitOrDefault(seconds int) int {
	if seconds > 0 {
		return seconds
	}
	return e.config.DefaultTimeLimitSec
}

func (e *Engine) countdownOrDefault(seconds *int) int {
	if seconds == nil {
		return e.config.DefaultCountdownSec
	}
	if *seconds < 0 {
		return 0
	}
	return *seconds
}
