package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzer/go/internal/codes"
	"github.com/mcdev12/buzzer/go/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	engine := session.NewEngine(session.DefaultConfig(), clock, codes.NewGenerator(), nil)
	t.Cleanup(engine.Close)

	h := NewHandler(engine, func() int { return 7 }, clock)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r, clock
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func createSession(t *testing.T, router http.Handler) CreateSessionResponse {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/sessions", CreateSessionRequest{Name: "Trivia Night", HostName: "Alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[CreateSessionResponse](t, rec)
}

func TestCreateSession(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := createSession(t, router)
	assert.Len(t, resp.Session.Code, codes.Length)
	assert.Equal(t, "Trivia Night", resp.Session.Name)
	assert.Equal(t, resp.HostPlayerID, resp.Session.HostPlayerID)
	host, ok := resp.Session.Players[resp.HostPlayerID]
	require.True(t, ok)
	assert.True(t, host.IsHost)
}

func TestCreateSession_BadRequests(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name    string
		body    any
		wantErr string
	}{
		{name: "missing host", body: CreateSessionRequest{Name: "Quiz"}, wantErr: "hostName is required"},
		{name: "missing name", body: CreateSessionRequest{HostName: "Alice"}, wantErr: "name is required"},
		{name: "blank name", body: CreateSessionRequest{Name: "   ", HostName: "Alice"}, wantErr: "session name is required"},
		{name: "too long", body: CreateSessionRequest{Name: strings.Repeat("x", 101), HostName: "Alice"}, wantErr: "at most 100"},
		{name: "not json", body: "{", wantErr: "invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/sessions", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeBody[ErrorResponse](t, rec).Error, tt.wantErr)
		})
	}
}

func TestJoinSession(t *testing.T) {
	router, _ := newTestRouter(t)
	created := createSession(t, router)

	rec := do(t, router, http.MethodPost, "/sessions/join", JoinSessionRequest{
		Code:       strings.ToLower(created.Session.Code),
		PlayerName: "Bob",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[JoinSessionResponse](t, rec)
	assert.Equal(t, created.Session.ID, resp.Session.ID)
	assert.Len(t, resp.Session.Players, 2)
	bob, ok := resp.Session.Players[resp.PlayerID]
	require.True(t, ok)
	assert.Equal(t, "Bob", bob.Name)
	assert.False(t, bob.IsHost)
}

func TestJoinSession_Errors(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/sessions/join", JoinSessionRequest{Code: "ZZZZZZ", PlayerName: "Bob"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session not found", decodeBody[ErrorResponse](t, rec).Error)

	rec = do(t, router, http.MethodPost, "/sessions/join", JoinSessionRequest{Code: "ABCDEF"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Error, "playerName is required")
}

func TestGetSession(t *testing.T) {
	router, _ := newTestRouter(t)
	created := createSession(t, router)

	rec := do(t, router, http.MethodGet, "/sessions/"+created.Session.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.Session.ID, decodeBody[SessionResponse](t, rec).Session.ID)

	rec = do(t, router, http.MethodGet, "/sessions/code/"+created.Session.Code, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.Session.ID, decodeBody[SessionResponse](t, rec).Session.ID)

	rec = do(t, router, http.MethodGet, "/sessions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/sessions/code/NOPE00", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	router, clock := newTestRouter(t)
	createSession(t, router)
	clock.Advance(90 * time.Second)

	rec := do(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.InDelta(t, 90, resp.UptimeSeconds, 0.001)
	assert.Equal(t, 1, resp.Sessions)
	assert.Equal(t, 7, resp.Connections)
}
