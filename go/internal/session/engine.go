package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzer/go/internal/codes"
	"github.com/mcdev12/buzzer/go/internal/events"
	"github.com/mcdev12/buzzer/go/internal/models"
	"github.com/mcdev12/buzzer/go/internal/timers"
	"github.com/rs/zerolog/log"
)

// Config holds the game defaults and timing of the engine
type Config struct {
	// DefaultTimeLimitSec applies when a question has no positive time limit
	DefaultTimeLimitSec int
	// DefaultCountdownSec applies when a start request omits the delay
	DefaultCountdownSec int
	// TickInterval is the length of one countdown step and of one time limit unit
	TickInterval time.Duration
	// SweepInterval is how often the backup sweep scans for overdue rounds
	SweepInterval time.Duration
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		DefaultTimeLimitSec: 30,
		DefaultCountdownSec: 3,
		TickInterval:        time.Second,
		SweepInterval:       time.Second,
	}
}

// CodeGenerator allocates session codes that are not yet taken
type CodeGenerator interface {
	GenerateUnique(taken func(code string) bool) (string, error)
}

// Engine is the in-memory authority over every live session.
//
// Each session is guarded by its own mutex; the table mutex only guards
// membership. When both are needed the session lock is taken first.
// Updates are emitted to the notifier while the session lock is held so
// subscribers observe them in mutation order.
type Engine struct {
	config    Config
	clock     clockwork.Clock
	scheduler *timers.Scheduler
	codes     CodeGenerator
	notifier  events.Notifier

	mu       sync.RWMutex
	sessions map[uuid.UUID]*entry
	byCode   map[string]uuid.UUID
}

// NewEngine creates a session engine
func NewEngine(config Config, clock clockwork.Clock, codes CodeGenerator, notifier events.Notifier) *Engine {
	if notifier == nil {
		notifier = events.Discard
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Second
	}
	return &Engine{
		config:    config,
		clock:     clock,
		scheduler: timers.NewScheduler(clock),
		codes:     codes,
		notifier:  notifier,
		sessions:  make(map[uuid.UUID]*entry),
		byCode:    make(map[string]uuid.UUID),
	}
}

// CreateSession creates a session hosted by a new player
func (e *Engine) CreateSession(name, hostName string) (models.Session, uuid.UUID, error) {
	name = strings.TrimSpace(name)
	hostName = strings.TrimSpace(hostName)
	if name == "" {
		return models.Session{}, uuid.Nil, validationError("session name is required")
	}
	if hostName == "" {
		return models.Session{}, uuid.Nil, validationError("host name is required")
	}

	now := e.clock.Now()
	ent := &entry{
		id:        uuid.New(),
		name:      name,
		timeLimit: e.config.DefaultTimeLimitSec,
		players:   make(map[uuid.UUID]*player),
		createdAt: now,
	}
	host := ent.addPlayer(hostName, now)
	ent.hostID = host.id

	// Hold the entry lock until the snapshot is taken so a concurrent join
	// cannot interleave with creation.
	ent.mu.Lock()
	defer ent.mu.Unlock()

	e.mu.Lock()
	code, err := e.codes.GenerateUnique(func(c string) bool {
		_, taken := e.byCode[c]
		return taken
	})
	if err != nil {
		e.mu.Unlock()
		return models.Session{}, uuid.Nil, fmt.Errorf("allocate session code: %w", err)
	}
	ent.code = code
	e.sessions[ent.id] = ent
	e.byCode[code] = ent.id
	e.mu.Unlock()

	log.Info().
		Str("session_id", ent.id.String()).
		Str("code", code).
		Str("host_id", host.id.String()).
		Msg("session created")

	return e.snapshot(ent), host.id, nil
}

// JoinSession adds a new non-host player to the session with the given code
func (e *Engine) JoinSession(code, playerName string) (models.Session, uuid.UUID, error) {
	code = NormalizeCode(code)
	playerName = strings.TrimSpace(playerName)
	if code == "" {
		return models.Session{}, uuid.Nil, validationError("session code is required")
	}
	if playerName == "" {
		return models.Session{}, uuid.Nil, validationError("player name is required")
	}

	id, err := e.lookupCode(code)
	if err != nil {
		return models.Session{}, uuid.Nil, err
	}

	ent, err := e.acquire(id)
	if err != nil {
		return models.Session{}, uuid.Nil, err
	}
	defer ent.mu.Unlock()

	p := ent.addPlayer(playerName, e.clock.Now())
	snap := e.snapshot(ent)
	e.emit(events.Update{Type: events.TypePlayerJoined, Session: snap, PlayerID: &p.id})

	log.Info().
		Str("session_id", ent.id.String()).
		Str("player_id", p.id.String()).
		Int("players", len(ent.players)).
		Msg("player joined")

	return snap, p.id, nil
}

// GetSession returns a snapshot of a session
func (e *Engine) GetSession(id uuid.UUID) (models.Session, error) {
	ent, err := e.acquire(id)
	if err != nil {
		return models.Session{}, err
	}
	defer ent.mu.Unlock()
	return e.snapshot(ent), nil
}

// GetSessionByCode returns a snapshot of the session with the given code
func (e *Engine) GetSessionByCode(code string) (models.Session, error) {
	id, err := e.lookupCode(NormalizeCode(code))
	if err != nil {
		return models.Session{}, err
	}
	return e.GetSession(id)
}

// Attach calls fn with the current snapshot of a session while the session
// is locked, after checking that the player belongs to it. No update can be
// emitted for the session while fn runs, so anything fn hands to the
// notifier's consumers is ordered with the session's updates. fn must not
// block or call back into the engine.
func (e *Engine) Attach(sessionID, playerID uuid.UUID, fn func(models.Session) error) error {
	ent, err := e.acquire(sessionID)
	if err != nil {
		return err
	}
	defer ent.mu.Unlock()

	if _, ok := ent.players[playerID]; !ok {
		return ErrPlayerNotFound
	}
	return fn(e.snapshot(ent))
}

// RemovePlayer deletes a player. When the last player leaves the session is
// destroyed and destroyed is true; nothing is broadcast in that case.
func (e *Engine) RemovePlayer(sessionID, playerID uuid.UUID) (snap models.Session, destroyed bool, err error) {
	ent, err := e.acquire(sessionID)
	if err != nil {
		return models.Session{}, false, err
	}
	defer ent.mu.Unlock()

	return e.removePlayerLocked(ent, playerID, events.TypePlayerLeft)
}

// PressBuzzer records a buzz for the player. observedAt is the server receive
// time; a zero value is stamped with the engine clock at the mutation point.
// Rejections never mutate state.
func (e *Engine) PressBuzzer(sessionID, playerID uuid.UUID, observedAt time.Time) (models.Session, events.BuzzerEvent, error) {
	ent, err := e.acquire(sessionID)
	if err != nil {
		return models.Session{}, events.BuzzerEvent{}, err
	}
	defer ent.mu.Unlock()

	p, ok := ent.players[playerID]
	if !ok {
		return models.Session{}, events.BuzzerEvent{}, ErrPlayerNotFound
	}

	var reject error
	switch {
	case ent.countdownActive:
		reject = ErrCountdownActive
	case !ent.active:
		reject = ErrRoundNotActive
	case ent.locked:
		reject = ErrBuzzersLocked
	case p.pressed:
		reject = ErrAlreadyBuzzed
	}
	if reject != nil {
		log.Debug().
			Err(reject).
			Str("session_id", ent.id.String()).
			Str("player_id", playerID.String()).
			Msg("buzzer press rejected")
		return models.Session{}, events.BuzzerEvent{}, reject
	}

	if observedAt.IsZero() {
		observedAt = e.clock.Now()
	}
	ent.buzzSeq++
	p.pressed = true
	p.pressedAt = observedAt
	p.buzzSeq = ent.buzzSeq

	snap := e.snapshot(ent)
	ev := events.BuzzerEvent{
		PlayerID:  playerID,
		Timestamp: observedAt,
		Rank:      snap.RankOf(playerID),
	}
	e.emit(events.Update{Type: events.TypeBuzzerPressed, Session: snap, PlayerID: &p.id, BuzzerEvent: &ev})

	log.Info().
		Str("session_id", ent.id.String()).
		Str("player_id", playerID.String()).
		Int("rank", ev.Rank).
		Time("at", observedAt).
		Msg("buzzer press accepted")

	return snap, ev, nil
}

// NormalizeCode trims and upper-cases a user supplied session code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// lookupCode resolves a normalized code to its session id
func (e *Engine) lookupCode(code string) (uuid.UUID, error) {
	if !codes.Valid(code) {
		return uuid.Nil, fmt.Errorf("malformed code %q: %w", code, ErrSessionNotFound)
	}
	e.mu.RLock()
	id, ok := e.byCode[code]
	e.mu.RUnlock()
	if !ok {
		return uuid.Nil, fmt.Errorf("code %s: %w", code, ErrSessionNotFound)
	}
	return id, nil
}

// acquire returns the live entry for id with its lock held
func (e *Engine) acquire(id uuid.UUID) (*entry, error) {
	e.mu.RLock()
	ent, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	ent.mu.Lock()
	if ent.closed {
		ent.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	return ent, nil
}

// removePlayerLocked deletes a player, hands off the host role and destroys
// the session when it becomes empty
func (e *Engine) removePlayerLocked(ent *entry, playerID uuid.UUID, updateType events.Type) (models.Session, bool, error) {
	if _, ok := ent.players[playerID]; !ok {
		return models.Session{}, false, ErrPlayerNotFound
	}
	delete(ent.players, playerID)

	if len(ent.players) == 0 {
		e.destroyLocked(ent)
		return e.snapshot(ent), true, nil
	}

	if ent.hostID == playerID {
		next := ent.earliestPlayer()
		ent.hostID = next.id
		log.Info().
			Str("session_id", ent.id.String()).
			Str("new_host_id", next.id.String()).
			Msg("host handed off")
	}

	snap := e.snapshot(ent)
	e.emit(events.Update{Type: updateType, Session: snap, PlayerID: &playerID})

	log.Info().
		Str("session_id", ent.id.String()).
		Str("player_id", playerID.String()).
		Int("players", len(ent.players)).
		Msg("player removed")

	return snap, false, nil
}

// destroyLocked cancels every timer of the session and drops it from the table
func (e *Engine) destroyLocked(ent *entry) {
	e.cancelTimersLocked(ent)
	ent.closed = true

	e.mu.Lock()
	if cur, ok := e.sessions[ent.id]; ok && cur == ent {
		delete(e.sessions, ent.id)
	}
	if id, ok := e.byCode[ent.code]; ok && id == ent.id {
		delete(e.byCode, ent.code)
	}
	e.mu.Unlock()

	log.Info().
		Str("session_id", ent.id.String()).
		Str("code", ent.code).
		Msg("session destroyed")
}

func (e *Engine) emit(update events.Update) {
	update.SessionID = update.Session.ID
	update.At = e.clock.Now()
	e.notifier.Notify(update)
}
