package main

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzer/go/internal/api"
	"github.com/mcdev12/buzzer/go/internal/bus"
	"github.com/mcdev12/buzzer/go/internal/codes"
	"github.com/mcdev12/buzzer/go/internal/config"
	"github.com/mcdev12/buzzer/go/internal/events"
	"github.com/mcdev12/buzzer/go/internal/gateway"
	"github.com/mcdev12/buzzer/go/internal/session"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Engine  *session.Engine
	Gateway *gateway.Service
	API     *api.Handler
	Mirror  *bus.Mirror

	wg sync.WaitGroup
}

func setupServices(cfg config.Config, clock clockwork.Clock) (*Services, error) {
	// Wire up dependency chain
	// Connection manager → (mirror) → Engine → Gateway → HTTP API

	connections := gateway.NewConnectionManager(gateway.DefaultConfig().ConnectionConfig)
	notifiers := events.Fanout{connections}

	var mirror *bus.Mirror
	if cfg.NATS.URL != "" {
		jsCfg := bus.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		jsCfg.StreamName = cfg.NATS.StreamName
		jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix

		publisher, err := bus.NewJetStreamPublisher(jsCfg)
		if err != nil {
			return nil, err
		}
		mirror = bus.NewMirror(publisher, 1024)
		notifiers = append(notifiers, mirror)
		log.Info().
			Str("nats_url", jsCfg.URL).
			Str("subject_prefix", jsCfg.SubjectPrefix).
			Msg("event mirror enabled")
	}

	engineCfg := session.Config{
		DefaultTimeLimitSec: cfg.Game.DefaultTimeLimitSec,
		DefaultCountdownSec: cfg.Game.DefaultCountdownSec,
		TickInterval:        session.DefaultConfig().TickInterval,
		SweepInterval:       cfg.Game.SweepInterval(),
	}
	engine := session.NewEngine(engineCfg, clock, codes.NewGenerator(), notifiers)

	gw := gateway.NewService(connections, engine)
	handler := api.NewHandler(engine, func() int {
		return gw.Stats().TotalConnections
	}, clock)

	return &Services{
		Engine:  engine,
		Gateway: gw,
		API:     handler,
		Mirror:  mirror,
	}, nil
}

// start launches the background loops; they stop when ctx is cancelled
func (s *Services) start(ctx context.Context) {
	go s.Gateway.Start(ctx)
	go s.Engine.RunSweeper(ctx)
	if s.Mirror != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Mirror.Run(ctx)
		}()
	}
}

// stop releases everything the services hold. The start context must
// already be cancelled.
func (s *Services) stop() {
	s.Gateway.Stop()
	s.Engine.Close()
	s.wg.Wait()
	if s.Mirror != nil {
		if err := s.Mirror.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event mirror")
		}
	}
}
