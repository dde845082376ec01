package server

import (
	"net/http"

	"github.com/cloisterworks/cloister-server-go/internal/game"
)

type pickRequest struct {
	Token string `json:"token"`
	Index int    `json:"index"`
}

func (s *Server) handlePick(w http.ResponseWriter, r *http.Request) {
	var req pickRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		s.fail(w, http.StatusBadRequest, "token is required")
		return
	}
	s.touch(req.Token)

	view, err := s.engine.PickTile(r.PathValue("id"), req.Token, req.Index)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type parallelIntentRequest struct {
	Token    string `json:"token"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Rotation int    `json:"rotation"`
	Lock     bool   `json:"lock"`
	Clear    bool   `json:"clear"`
}

func (s *Server) handleParallelIntent(w http.ResponseWriter, r *http.Request) {
	var req parallelIntentRequest
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
		view, err = s.engine.PublishParallelIntent(r.PathValue("id"), req.Token, req.X, req.Y, req.Rotation, req.Lock)
	}
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type resolveRequest struct {
	Token  string `json:"token"`
	Action string `json:"action"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		s.fail(w, http.StatusBadRequest, "token is required")
		return
	}
	action, err := game.ParseResolveAction(req.Action)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	s.touch(req.Token)

	view, err := s.engine.ResolveConflict(r.PathValue("id"), req.Token, action)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type meepleRequest struct {
	Token   string `json:"token"`
	Feature string `json:"feature"`
	Confirm bool   `json:"confirm"`
}

// handleMeeple covers both halves of the meeple phase: a request
// without confirm records the claim, one with confirm finalizes it.
// Sending a feature together with confirm does both in one call.
func (s *Server) handleMeeple(w http.ResponseWriter, r *http.Request) {
	var req meepleRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		s.fail(w, http.StatusBadRequest, "token is required")
		return
	}
	s.touch(req.Token)

	id := r.PathValue("id")
	var (
		view *game.MatchView
		err  error
	)
	if req.Feature != "" || !req.Confirm {
		view, err = s.engine.ChooseMeeple(id, req.Token, req.Feature)
		if err != nil {
			s.failErr(w, r, err)
			return
		}
	}
	if req.Confirm {
		view, err = s.engine.ConfirmMeeple(id, req.Token)
		if err != nil {
			s.failErr(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, view)
}
