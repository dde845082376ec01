package server

import (
	"net/http"
	"strings"
)

type sessionRequest struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess := s.sessions.Create(req.Name)
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		s.fail(w, http.StatusBadRequest, "token is required")
		return
	}

	if !s.sessions.Touch(req.Token) {
		s.fail(w, http.StatusUnauthorized, "unknown or expired session")
		return
	}
	sess, _ := s.sessions.Get(req.Token)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"name":          sess.Name,
		"lease_seconds": int(s.sessions.Lease().Seconds()),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		s.fail(w, http.StatusBadRequest, "token is required")
		return
	}

	s.sessions.Remove(req.Token)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
