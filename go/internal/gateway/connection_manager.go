package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/buzzer/go/internal/events"
	"github.com/rs/zerolog/log"
)

// MessageHandler receives inbound client traffic from the connection manager
type MessageHandler interface {
	HandleMessage(conn *Connection, message []byte)
	HandleDisconnect(conn *Connection, sessionID, playerID uuid.UUID)
}

// ConnectionManager manages WebSocket connections and session rooms
type ConnectionManager struct {
	// Every open connection, bound or not
	connections map[*Connection]bool
	// Room membership keyed by session ID
	rooms map[uuid.UUID]map[*Connection]bool
	// The connection currently bound to each player
	players map[uuid.UUID]*Connection
	mu      sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  MessageHandler

	broadcastCh chan BroadcastMessage
	// closed when the broadcast loop exits
	done chan struct{}
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time

	// Guarded by Manager.mu
	sessionID uuid.UUID
	playerID  uuid.UUID
	bound     bool
	closed    bool
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastKind int

const (
	broadcastUpdate broadcastKind = iota
	broadcastEvict
	broadcastDropRoom
	broadcastDirect
)

// BroadcastMessage is one unit of work for the broadcast loop. Messages are
// handled strictly in order, so an eviction queued after an update is applied
// only once that update has been delivered.
type BroadcastMessage struct {
	kind      broadcastKind
	SessionID uuid.UUID
	Update    *events.Update
	PlayerID  uuid.UUID
	// Conn is the target of a direct message
	Conn *Connection
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		rooms:       make(map[uuid.UUID]map[*Connection]bool),
		players:     make(map[uuid.UUID]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
		done:        make(chan struct{}),
	}
}

// SetHandler installs the inbound message handler. Must be called before
// connections are accepted.
func (cm *ConnectionManager) SetHandler(h MessageHandler) {
	cm.handler = h
}

// Start begins processing broadcast messages. It must be called once.
func (cm *ConnectionManager) Start(ctx context.Context) {
	defer close(cm.done)
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Notify queues a session update for its room. It never blocks.
func (cm *ConnectionManager) Notify(update events.Update) {
	cm.enqueue(BroadcastMessage{kind: broadcastUpdate, SessionID: update.SessionID, Update: &update})
}

// NotifyConnection queues an update for a single connection behind every
// message already queued
func (cm *ConnectionManager) NotifyConnection(conn *Connection, update events.Update) {
	cm.enqueue(BroadcastMessage{kind: broadcastDirect, SessionID: update.SessionID, Update: &update, Conn: conn})
}

// Evict unbinds a player's connection once every update queued before it
// has been delivered
func (cm *ConnectionManager) Evict(sessionID, playerID uuid.UUID) {
	cm.enqueue(BroadcastMessage{kind: broadcastEvict, SessionID: sessionID, PlayerID: playerID})
}

// DropRoom unbinds every connection of a destroyed session
func (cm *ConnectionManager) DropRoom(sessionID uuid.UUID) {
	cm.enqueue(BroadcastMessage{kind: broadcastDropRoom, SessionID: sessionID})
}

// enqueue hands a message to the broadcast loop. Room updates are dropped when
// the channel is full; every other kind waits for room until the loop exits.
func (cm *ConnectionManager) enqueue(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
		return
	default:
	}

	if message.kind == broadcastUpdate {
		log.Warn().Str("session_id", message.SessionID.String()).Msg("broadcast channel full, dropping update")
		return
	}

	log.Warn().Str("session_id", message.SessionID.String()).Msg("broadcast channel full, waiting")
	select {
	case cm.broadcastCh <- message:
	case <-cm.done:
		log.Debug().Str("session_id", message.SessionID.String()).Msg("broadcast loop stopped, message discarded")
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.mu.Lock()
	cm.connections[connection] = true
	cm.mu.Unlock()

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

// Bind attaches a connection to a player of a session and joins the room.
// A player bound on another connection is moved to this one.
func (cm *ConnectionManager) Bind(conn *Connection, sessionID, playerID uuid.UUID) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if conn.closed {
		return fmt.Errorf("connection %s is closed", conn.ID)
	}

	cm.unbindLocked(conn)
	if prev, ok := cm.players[playerID]; ok && prev != conn {
		cm.unbindLocked(prev)
		log.Info().
			Str("connection_id", prev.ID).
			Str("player_id", playerID.String()).
			Msg("player rebound to a new connection")
	}

	conn.sessionID = sessionID
	conn.playerID = playerID
	conn.bound = true

	if cm.rooms[sessionID] == nil {
		cm.rooms[sessionID] = make(map[*Connection]bool)
	}
	cm.rooms[sessionID][conn] = true
	cm.players[playerID] = conn

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", sessionID.String()).
		Str("player_id", playerID.String()).
		Int("room_connections", len(cm.rooms[sessionID])).
		Msg("connection bound")

	return nil
}

// Binding returns the session and player a connection is bound to
func (cm *ConnectionManager) Binding(conn *Connection) (sessionID, playerID uuid.UUID, ok bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return conn.sessionID, conn.playerID, conn.bound
}

// unbindLocked removes a connection from its room; the caller holds cm.mu
func (cm *ConnectionManager) unbindLocked(conn *Connection) {
	if !conn.bound {
		return
	}
	if room, ok := cm.rooms[conn.sessionID]; ok {
		delete(room, conn)
		if len(room) == 0 {
			delete(cm.rooms, conn.sessionID)
		}
	}
	if cm.players[conn.playerID] == conn {
		delete(cm.players, conn.playerID)
	}
	conn.sessionID = uuid.Nil
	conn.playerID = uuid.Nil
	conn.bound = false
}

// unregisterConnection removes a connection from the manager and reports the
// binding it had, if this call was the one that removed it
func (cm *ConnectionManager) unregisterConnection(conn *Connection) (sessionID, playerID uuid.UUID, wasBound bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if conn.closed {
		return uuid.Nil, uuid.Nil, false
	}
	conn.closed = true
	sessionID, playerID, wasBound = conn.sessionID, conn.playerID, conn.bound

	cm.unbindLocked(conn)
	delete(cm.connections, conn)
	close(conn.Send)

	log.Info().
		Str("connection_id", conn.ID).
		Str("session_id", sessionID.String()).
		Str("player_id", playerID.String()).
		Msg("connection unregistered")

	return sessionID, playerID, wasBound
}

// disconnect unregisters a connection and tells the handler about the player
// that went away
func (cm *ConnectionManager) disconnect(conn *Connection) {
	sessionID, playerID, wasBound := cm.unregisterConnection(conn)
	if wasBound && cm.handler != nil {
		cm.handler.HandleDisconnect(conn, sessionID, playerID)
	}
}

// SendToConnection writes a message to a single connection
func (cm *ConnectionManager) SendToConnection(conn *Connection, message *OutboundMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal direct message")
		return
	}

	cm.mu.RLock()
	full := false
	if !conn.closed {
		select {
		case conn.Send <- data:
		default:
			full = true
		}
	}
	cm.mu.RUnlock()

	if full {
		log.Warn().Str("connection_id", conn.ID).Msg("connection send buffer full, closing connection")
		cm.drop(conn)
	}
}

// SendError writes a private error notice to a single connection
func (cm *ConnectionManager) SendError(conn *Connection, message string) {
	cm.SendToConnection(conn, NewErrorMessage(message))
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	switch message.kind {
	case broadcastEvict:
		cm.mu.Lock()
		if conn, ok := cm.players[message.PlayerID]; ok && conn.sessionID == message.SessionID {
			cm.unbindLocked(conn)
			log.Info().
				Str("connection_id", conn.ID).
				Str("player_id", message.PlayerID.String()).
				Msg("removed player evicted from room")
		}
		cm.mu.Unlock()
		return

	case broadcastDropRoom:
		cm.mu.Lock()
		for conn := range cm.rooms[message.SessionID] {
			cm.unbindLocked(conn)
		}
		delete(cm.rooms, message.SessionID)
		cm.mu.Unlock()
		log.Info().Str("session_id", message.SessionID.String()).Msg("room dropped")
		return

	case broadcastDirect:
		// The connection may have left or switched sessions since
		if sessionID, _, ok := cm.Binding(message.Conn); ok && sessionID == message.SessionID {
			cm.SendToConnection(message.Conn, NewUpdateMessage(*message.Update))
		}
		return
	}

	if message.Update == nil {
		return
	}

	// Marshal the event once
	eventData, err := json.Marshal(NewUpdateMessage(*message.Update))
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	cm.mu.RLock()
	room := cm.rooms[message.SessionID]
	for conn := range room {
		select {
		case conn.Send <- eventData:
		default:
			slow = append(slow, conn)
		}
	}
	delivered := len(room) - len(slow)
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.drop(conn)
	}

	log.Debug().
		Str("event_type", string(message.Update.Type)).
		Str("session_id", message.SessionID.String()).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// drop closes a connection; the read pump then reports the disconnect
func (cm *ConnectionManager) drop(conn *Connection) {
	conn.Conn.Close()
}

// CloseAll closes every open connection
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		conn.Conn.Close()
	}
}

// ConnectionStats summarises the open connections
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	BoundConnections int            `json:"bound_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		TotalConnections: len(cm.connections),
		ActiveRooms:      len(cm.rooms),
		RoomConnections:  make(map[string]int, len(cm.rooms)),
	}
	for sessionID, conns := range cm.rooms {
		stats.BoundConnections += len(conns)
		stats.RoomConnections[sessionID.String()] = len(conns)
	}
	return stats
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.disconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.Manager.handler != nil {
			c.Manager.handler.HandleMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
