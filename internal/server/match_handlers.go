package server

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/cloisterworks/cloister-server-go/internal/game"
)

type createMatchRequest struct {
	Token         string `json:"token"`
	Mode          string `json:"mode"`
	MeepleBudget  int    `json:"meeple_budget"`
	MoveLimit     int    `json:"move_limit"`
	SelectionSize int    `json:"selection_size"`
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, ok := s.liveSession(w, req.Token)
	if !ok {
		return
	}

	cfg := s.defaults
	if strings.TrimSpace(req.Mode) != "" {
		mode, err := game.ParseMode(req.Mode)
		if err != nil {
			s.fail(w, http.StatusBadRequest, err.Error())
			return
		}
		cfg.Mode = mode
	}
	if req.MeepleBudget != 0 {
		cfg.MeepleBudget = req.MeepleBudget
	}
	if req.MoveLimit != 0 {
		cfg.MoveLimit = req.MoveLimit
	}
	if req.SelectionSize != 0 {
		cfg.SelectionSize = req.SelectionSize
	}

	view, err := s.engine.CreateMatch(cfg, sess.Token, sess.Name)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ListMatches())
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	token := r.URL.Query().Get("token")
	s.touch(token)

	view, err := s.engine.View(id, token)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type joinMatchRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleJoinMatch(w http.ResponseWriter, r *http.Request) {
	var req joinMatchRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, ok := s.liveSession(w, req.Token)
	if !ok {
		return
	}

	view, err := s.engine.JoinMatch(r.PathValue("id"), sess.Token, sess.Name)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type placeRequest struct {
	Token    string `json:"token"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Rotation int    `json:"rotation"`
	Meeple   string `json:"meeple"`
}

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		s.fail(w, http.StatusBadRequest, "token is required")
		return
	}
	s.touch(req.Token)

	view, err := s.engine.SubmitTurn(r.PathValue("id"), req.Token, req.X, req.Y, req.Rotation, req.Meeple)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.logger.Debug("tile placed",
		zap.String("match_id", view.ID),
		zap.Int("x", req.X),
		zap.Int("y", req.Y),
	)
	writeJSON(w, http.StatusOK, view)
}

type intentRequest struct {
	Token    string `json:"token"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Rotation int    `json:"rotation"`
	Meeple   string `json:"meeple"`
	Clear    bool   `json:"clear"`
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		s.fail(w, http.StatusBadRequest, "token is required")
		return
	}
	s.touch(req.Token)

	var (
		view *game.MatchView
		err  error
	)
	if req.Clear {
		view, err = s.engine.ClearIntent(r.PathValue("id"), req.Token)
	} else {
		view, err = s.engine.PublishIntent(r.PathValue("id"), req.Token, req.X, req.Y, req.Rotation, req.Meeple)
	}
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type resignRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleResign(w http.ResponseWriter, r *http.Request) {
	var req resignRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		s.fail(w, http.StatusBadRequest, "token is required")
		return
	}
	s.touch(req.Token)

	view, err := s.engine.Resign(r.PathValue("id"), req.Token)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
