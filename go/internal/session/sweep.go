package session

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Stats is a point-in-time summary of the engine
type Stats struct {
	Sessions     int `json:"sessions"`
	Players      int `json:"players"`
	ActiveRounds int `json:"activeRounds"`
	Countdowns   int `json:"countdowns"`
}

// Sweep force-locks every round that outlived its time limit without being
// locked by its expiry timer. It returns how many rounds it locked.
func (e *Engine) Sweep() int {
	now := e.clock.Now()
	locked := 0

	for _, ent := range e.entries() {
		ent.mu.Lock()
		if !ent.closed && ent.active && !ent.locked &&
			now.Sub(ent.questionStart) >= e.roundLength(ent) {
			ent.expiryTimer.Stop()
			ent.expiryTimer = nil
			e.lockRoundLocked(ent, "sweep")
			locked++
		}
		ent.mu.Unlock()
	}

	return locked
}

// RunSweeper runs Sweep on the configured interval until ctx is done
func (e *Engine) RunSweeper(ctx context.Context) {
	ticker := e.clock.NewTicker(e.config.SweepInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", e.config.SweepInterval).Msg("session sweeper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session sweeper stopped")
			return
		case <-ticker.Chan():
			if n := e.Sweep(); n > 0 {
				log.Debug().Int("locked", n).Msg("sweep locked overdue rounds")
			}
		}
	}
}

// Close cancels every pending timer and drops all sessions
func (e *Engine) Close() {
	all := e.entries()
	for _, ent := range all {
		ent.mu.Lock()
		e.cancelTimersLocked(ent)
		ent.round++
		ent.closed = true
		ent.mu.Unlock()
	}

	e.mu.Lock()
	clear(e.sessions)
	clear(e.byCode)
	e.mu.Unlock()

	log.Info().Int("sessions", len(all)).Msg("session engine closed")
}

// Stats returns counts across all live sessions
func (e *Engine) Stats() Stats {
	var s Stats
	for _, ent := range e.entries() {
		ent.mu.Lock()
		if !ent.closed {
			s.Sessions++
			s.Players += len(ent.players)
			if ent.active {
				s.ActiveRounds++
			}
			if ent.countdownActive {
				s.Countdowns++
			}
		}
		ent.mu.Unlock()
	}
	return s
}

// entries snapshots the table so callers can lock entries without holding
// the table lock
func (e *Engine) entries() []*entry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*entry, 0, len(e.sessions))
	for _, ent := range e.sessions {
		out = append(out, ent)
	}
	return out
}
