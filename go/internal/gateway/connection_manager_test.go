package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/buzzer/go/internal/events"
	"github.com/mcdev12/buzzer/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newLocalConn registers a connection with no socket behind it; tests read
// its Send channel directly
func newLocalConn(cm *ConnectionManager, id string) *Connection {
	conn := &Connection{ID: id, Send: make(chan []byte, 16), Manager: cm, ConnectedAt: time.Now()}
	cm.mu.Lock()
	cm.connections[conn] = true
	cm.mu.Unlock()
	return conn
}

func roomUpdate(sessionID uuid.UUID, t events.Type) events.Update {
	return events.Update{Type: t, SessionID: sessionID, Session: models.Session{ID: sessionID}}
}

func receive(t *testing.T, conn *Connection) OutboundMessage {
	t.Helper()
	select {
	case data := <-conn.Send:
		var msg OutboundMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no message for connection %s", conn.ID)
		return OutboundMessage{}
	}
}

func startLoop(t *testing.T, cm *ConnectionManager) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		cm.Start(ctx)
		close(stopped)
	}()
	stop = func() {
		cancel()
		<-stopped
	}
	t.Cleanup(stop)
	return stop
}

func TestNotifyConnection_OrderedBehindQueuedUpdates(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	sessionID := uuid.New()

	host := newLocalConn(cm, "host")
	require.NoError(t, cm.Bind(host, sessionID, uuid.New()))

	// Queued before the joiner binds, delivered after
	cm.Notify(roomUpdate(sessionID, events.TypeCountdownStarted))

	joiner := newLocalConn(cm, "joiner")
	joinerID := uuid.New()
	require.NoError(t, cm.Bind(joiner, sessionID, joinerID))
	joined := roomUpdate(sessionID, events.TypePlayerJoined)
	joined.PlayerID = &joinerID
	cm.NotifyConnection(joiner, joined)

	startLoop(t, cm)

	assert.Equal(t, events.TypeCountdownStarted, receive(t, joiner).Type)
	last := receive(t, joiner)
	assert.Equal(t, events.TypePlayerJoined, last.Type, "the join snapshot is the newest state the joiner sees")
	require.NotNil(t, last.Data.PlayerID)
	assert.Equal(t, joinerID, *last.Data.PlayerID)

	assert.Equal(t, events.TypeCountdownStarted, receive(t, host).Type)
	assert.Never(t, func() bool { return len(host.Send) > 0 }, 50*time.Millisecond, 5*time.Millisecond,
		"direct messages never reach the room")
}

func TestNotifyConnection_SkipsUnboundConnection(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	sessionID := uuid.New()

	conn := newLocalConn(cm, "leaver")
	require.NoError(t, cm.Bind(conn, sessionID, uuid.New()))
	cm.NotifyConnection(conn, roomUpdate(sessionID, events.TypePlayerJoined))
	cm.DropRoom(sessionID)
	cm.NotifyConnection(conn, roomUpdate(sessionID, events.TypePlayerJoined))

	startLoop(t, cm)

	assert.Equal(t, events.TypePlayerJoined, receive(t, conn).Type)
	assert.Never(t, func() bool { return len(conn.Send) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestEnqueue_ControlMessagesSurviveFullChannel(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	sessionID, playerID := uuid.New(), uuid.New()

	victim := newLocalConn(cm, "victim")
	require.NoError(t, cm.Bind(victim, sessionID, playerID))

	// Fill the channel with updates for a room nobody is in
	other := uuid.New()
	for range cap(cm.broadcastCh) {
		cm.Notify(roomUpdate(other, events.TypeCountdownTick))
	}
	cm.Notify(roomUpdate(other, events.TypeCountdownTick)) // dropped, does not block

	evicted := make(chan struct{})
	go func() {
		cm.Evict(sessionID, playerID)
		close(evicted)
	}()
	assert.Never(t, func() bool {
		select {
		case <-evicted:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond, "eviction waits for room instead of being dropped")

	stop := startLoop(t, cm)

	<-evicted
	require.Eventually(t, func() bool {
		_, _, bound := cm.Binding(victim)
		return !bound
	}, time.Second, 5*time.Millisecond, "the eviction is applied")

	// Once the loop has exited a blocked control message gives up
	stop()
	for range cap(cm.broadcastCh) {
		cm.Notify(roomUpdate(other, events.TypeCountdownTick))
	}
	dropped := make(chan struct{})
	go func() {
		cm.DropRoom(other)
		close(dropped)
	}()
	select {
	case <-dropped:
	case <-time.After(time.Second):
		t.Fatal("DropRoom blocked after the broadcast loop stopped")
	}
}
