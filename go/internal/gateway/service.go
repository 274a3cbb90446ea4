package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mcdev12/buzzer/go/internal/events"
	"github.com/mcdev12/buzzer/go/internal/models"
	"github.com/mcdev12/buzzer/go/internal/session"
	"github.com/rs/zerolog/log"
)

// SessionEngine is the part of the session engine the gateway drives
type SessionEngine interface {
	Attach(sessionID, playerID uuid.UUID, fn func(models.Session) error) error
	PressBuzzer(sessionID, playerID uuid.UUID, observedAt time.Time) (models.Session, events.BuzzerEvent, error)
	ExecuteHostAction(sessionID uuid.UUID, action session.HostAction, requester uuid.UUID) (session.ActionResult, error)
	RemovePlayer(sessionID, playerID uuid.UUID) (models.Session, bool, error)
}

// Service is the broadcast gateway: it turns client messages into engine
// calls and session updates into room broadcasts
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	engine            SessionEngine
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates the gateway on top of an existing connection manager.
// The manager is created first so it can be handed to the engine as its
// notifier.
func NewService(cm *ConnectionManager, engine SessionEngine) *Service {
	s := &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
		engine:            engine,
	}
	cm.SetHandler(s)
	return s
}

// Start runs the broadcast loop until ctx is cancelled
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting broadcast gateway")
	s.connectionManager.Start(ctx)
}

// Stop closes every client connection
func (s *Service) Stop() {
	s.connectionManager.CloseAll()
	log.Info().Msg("broadcast gateway stopped")
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(r chi.Router) {
	s.wsHandler.RegisterRoutes(r)
	log.Info().Msg("gateway routes registered")
}

// Stats returns statistics about open connections
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

// HandleMessage dispatches one inbound client message
func (s *Service) HandleMessage(conn *Connection, message []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().Err(err).Str("connection_id", conn.ID).Msg("malformed client message")
		s.connectionManager.SendError(conn, errInvalidMessage)
		return
	}

	switch msg.Type {
	case MessageJoinSession:
		s.handleJoin(conn, msg.Data)
	case MessagePressBuzzer:
		s.handlePress(conn)
	case MessageHostAction:
		s.handleHostAction(conn, msg.Data)
	default:
		log.Debug().Str("connection_id", conn.ID).Str("type", msg.Type).Msg("unknown client message type")
		s.connectionManager.SendError(conn, errUnknownMessage)
	}
}

// HandleDisconnect removes the player of a closed connection
func (s *Service) HandleDisconnect(conn *Connection, sessionID, playerID uuid.UUID) {
	_, destroyed, err := s.engine.RemovePlayer(sessionID, playerID)
	if err != nil {
		// Already removed by the host or the session is gone
		log.Debug().
			Err(err).
			Str("connection_id", conn.ID).
			Str("session_id", sessionID.String()).
			Str("player_id", playerID.String()).
			Msg("disconnect of player not in session")
		return
	}
	if destroyed {
		s.connectionManager.DropRoom(sessionID)
	}
}

func (s *Service) handleJoin(conn *Connection, raw json.RawMessage) {
	var data JoinSessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		s.connectionManager.SendError(conn, errInvalidMessage)
		return
	}

	// Binding and queueing the snapshot under the session lock keeps the
	// joiner's snapshot behind every update emitted before it
	err := s.engine.Attach(data.SessionID, data.PlayerID, func(snap models.Session) error {
		if err := s.connectionManager.Bind(conn, data.SessionID, data.PlayerID); err != nil {
			return err
		}
		playerID := data.PlayerID
		s.connectionManager.NotifyConnection(conn, events.Update{
			Type:      events.TypePlayerJoined,
			SessionID: snap.ID,
			Session:   snap,
			PlayerID:  &playerID,
		})
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrPlayerNotFound):
		s.connectionManager.SendError(conn, errInvalidSession)
	default:
		log.Debug().Err(err).Str("connection_id", conn.ID).Msg("bind failed")
	}
}

func (s *Service) handlePress(conn *Connection) {
	sessionID, playerID, ok := s.connectionManager.Binding(conn)
	if !ok {
		s.connectionManager.SendError(conn, errNotInSession)
		return
	}

	// A zero receive time is stamped by the engine under the session lock
	_, _, err := s.engine.PressBuzzer(sessionID, playerID, time.Time{})
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionNotFound):
		s.connectionManager.SendError(conn, errSessionNotActive)
	default:
		s.connectionManager.SendError(conn, errCannotPress)
	}
}

func (s *Service) handleHostAction(conn *Connection, raw json.RawMessage) {
	sessionID, playerID, ok := s.connectionManager.Binding(conn)
	if !ok {
		s.connectionManager.SendError(conn, errNotInSession)
		return
	}

	var data HostActionData
	if err := json.Unmarshal(raw, &data); err != nil {
		s.connectionManager.SendError(conn, errInvalidAction)
		return
	}
	action, err := DecodeHostAction(data)
	if err != nil {
		log.Debug().Err(err).Str("connection_id", conn.ID).Msg("undecodable host action")
		s.connectionManager.SendError(conn, errInvalidAction)
		return
	}

	result, err := s.engine.ExecuteHostAction(sessionID, action, playerID)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotHost):
		s.connectionManager.SendError(conn, errNotHost)
		return
	default:
		s.connectionManager.SendError(conn, errActionFailed)
		return
	}

	if result.Destroyed {
		s.connectionManager.DropRoom(sessionID)
		return
	}
	if result.Removed != nil {
		s.connectionManager.Evict(sessionID, *result.Removed)
	}
}
