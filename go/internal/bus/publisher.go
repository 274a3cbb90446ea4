package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const streamDescription = "Buzzer session updates"

// JetStreamConfig configures the connection and the mirror stream
type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	// MaxAge bounds how long mirrored updates are retained
	MaxAge time.Duration
	// DuplicateWindow is how long an event id is remembered for dedup
	DuplicateWindow time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "BUZZER_EVENTS",
		SubjectPrefix:   "buzzer.sessions",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
	}
}

// Publisher sends session update envelopes to a broker
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// JetStreamPublisher publishes envelopes to one stream, using the event id
// as the JetStream message id so retried publishes are deduplicated
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamPublisher(cfg JetStreamConfig) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("buzzer-coordinator"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, config: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.StreamName, err)
	}

	return p, nil
}

// streamConfig is the stream layout this publisher expects
func (p *JetStreamPublisher) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: streamDescription,
		Subjects:    []string{p.config.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.MemoryStorage,
		MaxAge:      p.config.MaxAge,
		Duplicates:  p.config.DuplicateWindow,
	}
}

// ensureStream creates the stream or brings an existing one in line with the
// configured subjects and limits
func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	want := p.streamConfig()

	stream, err := p.js.Stream(ctx, want.Name)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		if _, err := p.js.CreateStream(ctx, want); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", want.Name).
			Strs("subjects", want.Subjects).
			Msg("created JetStream stream")
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up stream: %w", err)
	}

	have := stream.CachedInfo().Config
	if streamConfigMatches(have, want) {
		return nil
	}
	if _, err := p.js.UpdateStream(ctx, want); err != nil {
		return fmt.Errorf("update stream: %w", err)
	}
	log.Info().
		Str("stream", want.Name).
		Strs("old_subjects", have.Subjects).
		Strs("subjects", want.Subjects).
		Msg("updated JetStream stream")
	return nil
}

// streamConfigMatches reports whether an existing stream already has the
// subjects and limits we need. Subjects are compared as sets.
func streamConfigMatches(have, want jetstream.StreamConfig) bool {
	return have.Name == want.Name &&
		have.Description == want.Description &&
		sameSubjects(have.Subjects, want.Subjects) &&
		have.MaxAge == want.MaxAge &&
		have.Duplicates == want.Duplicates
}

func sameSubjects(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

func (p *JetStreamPublisher) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := nats.NewMsg(Subject(p.config.SubjectPrefix, env.EventType))
	msg.Data = data
	msg.Header.Set("Event-Type", string(env.EventType))
	msg.Header.Set("Session-ID", env.SessionID.String())

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(env.EventID.String()),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", env.EventID.String()).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("session update mirrored")

	return nil
}

// Close drains the connection so in-flight publishes complete
func (p *JetStreamPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
