package bus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/buzzer/go/internal/events"
	"github.com/rs/zerolog/log"
)

// Envelope is the message published for every session update
type Envelope struct {
	EventID   uuid.UUID     `json:"eventId"`
	EventType events.Type   `json:"eventType"`
	SessionID uuid.UUID     `json:"sessionId"`
	Timestamp time.Time     `json:"timestamp"`
	Payload   events.Update `json:"payload"`
}

// NewEnvelope wraps an update with a fresh event id
func NewEnvelope(u events.Update) Envelope {
	return Envelope{
		EventID:   uuid.New(),
		EventType: u.Type,
		SessionID: u.SessionID,
		Timestamp: u.At.UTC(),
		Payload:   u,
	}
}

// Subject returns the subject an update type is published on
func Subject(prefix string, t events.Type) string {
	return fmt.Sprintf("%s.%s", prefix, t)
}

// Mirror forwards session updates to a publisher from a background loop so
// the engine never waits on the broker
type Mirror struct {
	publisher      Publisher
	queue          chan Envelope
	publishTimeout time.Duration
	dropped        atomic.Int64
	published      atomic.Int64
}

// NewMirror creates a mirror with the given queue size
func NewMirror(publisher Publisher, queueSize int) *Mirror {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Mirror{
		publisher:      publisher,
		queue:          make(chan Envelope, queueSize),
		publishTimeout: 5 * time.Second,
	}
}

// Notify queues an update. It drops the update when the queue is full.
func (m *Mirror) Notify(u events.Update) {
	select {
	case m.queue <- NewEnvelope(u):
	default:
		m.dropped.Add(1)
		log.Warn().
			Str("session_id", u.SessionID.String()).
			Str("event_type", string(u.Type)).
			Msg("event mirror queue full, dropping update")
	}
}

// Run publishes queued updates until ctx is done, then flushes what is left
func (m *Mirror) Run(ctx context.Context) {
	log.Info().Msg("event mirror started")
	for {
		select {
		case <-ctx.Done():
			m.flush()
			log.Info().
				Int64("published", m.published.Load()).
				Int64("dropped", m.dropped.Load()).
				Msg("event mirror stopped")
			return
		case env := <-m.queue:
			m.publish(context.Background(), env)
		}
	}
}

func (m *Mirror) flush() {
	for {
		select {
		case env := <-m.queue:
			m.publish(context.Background(), env)
		default:
			return
		}
	}
}

func (m *Mirror) publish(ctx context.Context, env Envelope) {
	ctx, cancel := context.WithTimeout(ctx, m.publishTimeout)
	defer cancel()

	if err := m.publisher.Publish(ctx, env); err != nil {
		log.Error().
			Err(err).
			Str("event_id", env.EventID.String()).
			Str("event_type", string(env.EventType)).
			Msg("failed to mirror session update")
		return
	}
	m.published.Add(1)
}

// Close releases the publisher
func (m *Mirror) Close() error {
	return m.publisher.Close()
}
