// Package server exposes the match engine over an HTTP JSON API plus
// a WebSocket snapshot push. The API is a thin boundary: handlers
// validate input, resolve the session, and forward to the engine;
// every rule decision stays inside internal/game.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/cloisterworks/cloister-server-go/internal/game"
	"github.com/cloisterworks/cloister-server-go/internal/session"
)

// Server is the HTTP server.
type Server struct {
	logger   *zap.Logger
	engine   *game.Engine
	sessions *session.Manager
	defaults game.Config
	mux      *http.ServeMux
}

// New creates a server with all routes registered. defaults seeds the
// configuration of every created match before request overrides;
// invalid defaults fall back to game.DefaultConfig. A nil logger
// disables logging.
func New(logger *zap.Logger, engine *game.Engine, sessions *session.Manager, defaults game.Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.Validate() != nil {
		defaults = game.DefaultConfig()
	}
	s := &Server{
		logger:   logger,
		engine:   engine,
		sessions: sessions,
		defaults: defaults,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("POST /api/sessions/heartbeat", s.handleHeartbeat)
	s.mux.HandleFunc("DELETE /api/sessions", s.handleDeleteSession)

	s.mux.HandleFunc("POST /api/matches", s.handleCreateMatch)
	s.mux.HandleFunc("GET /api/matches", s.handleListMatches)
	s.mux.HandleFunc("GET /api/matches/{id}", s.handleGetMatch)
	s.mux.HandleFunc("POST /api/matches/{id}/join", s.handleJoinMatch)
	s.mux.HandleFunc("POST /api/matches/{id}/place", s.handlePlace)
	s.mux.HandleFunc("POST /api/matches/{id}/intent", s.handleIntent)
	s.mux.HandleFunc("POST /api/matches/{id}/resign", s.handleResign)

	s.mux.HandleFunc("POST /api/matches/{id}/pick", s.handlePick)
	s.mux.HandleFunc("POST /api/matches/{id}/parallel-intent", s.handleParallelIntent)
	s.mux.HandleFunc("POST /api/matches/{id}/resolve", s.handleResolve)
	s.mux.HandleFunc("POST /api/matches/{id}/meeple", s.handleMeeple)

	s.mux.HandleFunc("GET /api/matches/{id}/watch", s.handleWatch)
}

// ServeHTTP dispatches through the mux behind a panic guard, so an
// invariant violation in one request cannot take the process down.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("handler panic",
				zap.String("path", r.URL.Path),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			writeJSON(w, http.StatusInternalServerError, errorBody("internal server error"))
		}
	}()
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorBody(msg string) map[string]any {
	return map[string]any{"ok": false, "error": msg}
}

// fail writes a user-level error response.
func (s *Server) fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody(msg))
}

// failErr maps an engine error to a response status.
func (s *Server) failErr(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, game.ErrMatchNotFound):
		status = http.StatusNotFound
	case errors.Is(err, game.ErrNotSeated):
		status = http.StatusForbidden
	}
	s.logger.Debug("request rejected",
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	)
	writeJSON(w, status, errorBody(err.Error()))
}

// decode parses the JSON request body into v.
func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// liveSession requires a session that has not expired. Used where the
// token gets bound to a seat; later match operations authorize by
// seat alone, so a lapsed lease never locks a player out of a match
// they already joined.
func (s *Server) liveSession(w http.ResponseWriter, token string) (session.Session, bool) {
	sess, ok := s.sessions.Get(token)
	if !ok {
		s.fail(w, http.StatusUnauthorized, "unknown or expired session")
		return session.Session{}, false
	}
	return sess, true
}

// touch extends the session lease as a side effect of any authorized
// request. Best effort: a lapsed session does not fail the request.
func (s *Server) touch(token string) {
	if token != "" {
		s.sessions.Touch(token)
	}
}
