package models

import (
	"time"

	"github.com/google/uuid"
)

// OpenBuzzerQuestion is the question text used by an instant launch round.
const OpenBuzzerQuestion = "Open Buzzer Session"

// Player is one participant of a session.
type Player struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	IsHost          bool       `json:"isHost"`
	BuzzerPressed   bool       `json:"buzzerPressed"`
	BuzzerTimestamp *time.Time `json:"buzzerTimestamp,omitempty"`
	JoinedAt        time.Time  `json:"joinedAt"`
}

// Ranking is one accepted buzz in arrival order.
type Ranking struct {
	Rank      int       `json:"rank"`
	PlayerID  uuid.UUID `json:"playerId"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	ElapsedMs *int64    `json:"elapsedMs,omitempty"`
}

// Session is an immutable snapshot of one hosted buzzer game.
type Session struct {
	ID                       uuid.UUID            `json:"id"`
	Code                     string               `json:"code"`
	Name                     string               `json:"name"`
	HostPlayerID             uuid.UUID            `json:"hostPlayerId"`
	Players                  map[uuid.UUID]Player `json:"players"`
	CurrentQuestion          string               `json:"currentQuestion"`
	TimeLimitSeconds         int                  `json:"timeLimitSeconds"`
	QuestionStartTime        *time.Time           `json:"questionStartTime,omitempty"`
	IsActive                 bool                 `json:"isActive"`
	BuzzersLocked            bool                 `json:"buzzersLocked"`
	CountdownActive          bool                 `json:"countdownActive"`
	CountdownStartTime       *time.Time           `json:"countdownStartTime,omitempty"`
	CountdownDurationSeconds *int                 `json:"countdownDurationSeconds,omitempty"`
	Rankings                 []Ranking            `json:"rankings"`
	CreatedAt                time.Time            `json:"createdAt"`
}

// Player returns the player with the given id
func (s Session) Player(id uuid.UUID) (Player, bool) {
	p, ok := s.Players[id]
	return p, ok
}

// RankOf returns the 1-based buzz rank of a player, or 0 if they have not buzzed
func (s Session) RankOf(id uuid.UUID) int {
	for _, r := range s.Rankings {
		if r.PlayerID == id {
			return r.Rank
		}
	}
	return 0
}
