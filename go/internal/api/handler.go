package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzer/go/internal/models"
	"github.com/mcdev12/buzzer/go/internal/session"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 16

// SessionService is the part of the session engine the HTTP API needs
type SessionService interface {
	CreateSession(name, hostName string) (models.Session, uuid.UUID, error)
	JoinSession(code, playerName string) (models.Session, uuid.UUID, error)
	GetSession(id uuid.UUID) (models.Session, error)
	GetSessionByCode(code string) (models.Session, error)
	Stats() session.Stats
}

// ConnectionCounter reports how many WebSocket clients are connected
type ConnectionCounter func() int

// CreateSessionRequest is the body of POST /sessions
type CreateSessionRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	HostName string `json:"hostName" validate:"required,max=50"`
}

// CreateSessionResponse is returned by POST /sessions
type CreateSessionResponse struct {
	Session      models.Session `json:"session"`
	HostPlayerID uuid.UUID      `json:"hostPlayerId"`
}

// JoinSessionRequest is the body of POST /sessions/join
type JoinSessionRequest struct {
	Code       string `json:"code" validate:"required,max=16"`
	PlayerName string `json:"playerName" validate:"required,max=50"`
}

// JoinSessionResponse is returned by POST /sessions/join
type JoinSessionResponse struct {
	Session  models.Session `json:"session"`
	PlayerID uuid.UUID      `json:"playerId"`
}

// SessionResponse wraps a single session snapshot
type SessionResponse struct {
	Session models.Session `json:"session"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds float64   `json:"uptimeSeconds"`
	Sessions      int       `json:"sessions"`
	Connections   int       `json:"connections"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler serves the session HTTP API
type Handler struct {
	sessions    SessionService
	connections ConnectionCounter
	validate    *validator.Validate
	clock       clockwork.Clock
	startedAt   time.Time
}

// NewHandler creates the HTTP API handler
func NewHandler(sessions SessionService, connections ConnectionCounter, clock clockwork.Clock) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if connections == nil {
		connections = func() int { return 0 }
	}

	return &Handler{
		sessions:    sessions,
		connections: connections,
		validate:    v,
		clock:       clock,
		startedAt:   clock.Now(),
	}
}

// RegisterRoutes registers the API routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.HandleCreateSession)
		r.Post("/join", h.HandleJoinSession)
		r.Get("/code/{code}", h.HandleGetSessionByCode)
		r.Get("/{id}", h.HandleGetSession)
	})
}

// HandleCreateSession handles POST /sessions
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	s, hostID, err := h.sessions.CreateSession(req.Name, req.HostName)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateSessionResponse{Session: s, HostPlayerID: hostID})
}

// HandleJoinSession handles POST /sessions/join
func (h *Handler) HandleJoinSession(w http.ResponseWriter, r *http.Request) {
	var req JoinSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	s, playerID, err := h.sessions.JoinSession(req.Code, req.PlayerName)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, JoinSessionResponse{Session: s, PlayerID: playerID})
}

// HandleGetSession handles GET /sessions/{id}
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid session id format"})
		return
	}

	s, err := h.sessions.GetSession(id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{Session: s})
}

// HandleGetSessionByCode handles GET /sessions/code/{code}
func (h *Handler) HandleGetSessionByCode(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.GetSessionByCode(chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{Session: s})
}

// HandleHealth handles GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC(),
		UptimeSeconds: now.Sub(h.startedAt).Seconds(),
		Sessions:      h.sessions.Stats().Sessions,
		Connections:   h.connections(),
	})
}

// decode reads and validates a JSON body, writing a 400 on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: validationMessage(err)})
		return false
	}
	return true
}

// validationMessage turns validator errors into a short client message
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(msgs, "; ")
}

// writeError maps engine errors to HTTP status codes
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, session.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "session not found"})
	default:
		log.Error().Err(err).Msg("session request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
