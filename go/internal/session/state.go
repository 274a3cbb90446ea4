package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/buzzer/go/internal/models"
	"github.com/mcdev12/buzzer/go/internal/timers"
)

type player struct {
	id       uuid.UUID
	name     string
	joinedAt time.Time
	joinSeq  uint64

	pressed   bool
	pressedAt time.Time
	buzzSeq   uint64
}

// entry is the mutable state of one session. Every field is guarded by mu.
type entry struct {
	mu sync.Mutex

	id        uuid.UUID
	code      string
	name      string
	hostID    uuid.UUID
	players   map[uuid.UUID]*player
	createdAt time.Time

	question      string
	timeLimit     int
	questionStart time.Time
	// roundStart survives expiry so elapsed times stay visible after lock
	roundStart time.Time
	active     bool
	locked     bool

	countdownActive    bool
	countdownStart     time.Time
	countdownDuration  int
	countdownRemaining int

	joinSeq uint64
	buzzSeq uint64

	// round is bumped every time a countdown or round is started or stopped;
	// timer callbacks carry the value they were armed with
	round          uint64
	countdownTimer *timers.Handle
	expiryTimer    *timers.Handle

	closed bool
}

func (ent *entry) addPlayer(name string, now time.Time) *player {
	ent.joinSeq++
	p := &player{
		id:       uuid.New(),
		name:     name,
		joinedAt: now,
		joinSeq:  ent.joinSeq,
	}
	ent.players[p.id] = p
	return p
}

// earliestPlayer returns the remaining player who joined first
func (ent *entry) earliestPlayer() *player {
	var first *player
	for _, p := range ent.players {
		if first == nil || p.joinSeq < first.joinSeq {
			first = p
		}
	}
	return first
}

func (ent *entry) clearBuzzers() {
	for _, p := range ent.players {
		p.pressed = false
		p.pressedAt = time.Time{}
		p.buzzSeq = 0
	}
}

// snapshot copies the entry into an immutable session value
func (e *Engine) snapshot(ent *entry) models.Session {
	s := models.Session{
		ID:               ent.id,
		Code:             ent.code,
		Name:             ent.name,
		HostPlayerID:     ent.hostID,
		Players:          make(map[uuid.UUID]models.Player, len(ent.players)),
		CurrentQuestion:  ent.question,
		TimeLimitSeconds: ent.timeLimit,
		IsActive:         ent.active,
		BuzzersLocked:    ent.locked,
		CountdownActive:  ent.countdownActive,
		Rankings:         []models.Ranking{},
		CreatedAt:        ent.createdAt,
	}
	if ent.active {
		start := ent.questionStart
		s.QuestionStartTime = &start
	}
	if ent.countdownActive {
		start := ent.countdownStart
		duration := ent.countdownDuration
		s.CountdownStartTime = &start
		s.CountdownDurationSeconds = &duration
	}

	buzzed := make([]*player, 0, len(ent.players))
	for id, p := range ent.players {
		mp := models.Player{
			ID:            p.id,
			Name:          p.name,
			IsHost:        id == ent.hostID,
			BuzzerPressed: p.pressed,
			JoinedAt:      p.joinedAt,
		}
		if p.pressed {
			at := p.pressedAt
			mp.BuzzerTimestamp = &at
			buzzed = append(buzzed, p)
		}
		s.Players[id] = mp
	}

	sort.Slice(buzzed, func(i, j int) bool {
		a, b := buzzed[i], buzzed[j]
		if !a.pressedAt.Equal(b.pressedAt) {
			return a.pressedAt.Before(b.pressedAt)
		}
		return a.buzzSeq < b.buzzSeq
	})
	for i, p := range buzzed {
		r := models.Ranking{
			Rank:      i + 1,
			PlayerID:  p.id,
			Name:      p.name,
			Timestamp: p.pressedAt,
		}
		if !ent.roundStart.IsZero() {
			elapsed := p.pressedAt.Sub(ent.roundStart).Milliseconds()
			r.ElapsedMs = &elapsed
		}
		s.Rankings = append(s.Rankings, r)
	}

	return s
}
