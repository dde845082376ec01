package game

import (
	"time"
)

// PlayerView is the public face of a seat.
type PlayerView struct {
	Number      int    `json:"number"`
	Name        string `json:"name"`
	Score       int    `json:"score"`
	MeeplesLeft int    `json:"meeples_left"`
}

type MeepleView struct {
	Player  int    `json:"player"`
	Feature string `json:"feature"`
}

type CellView struct {
	X        int          `json:"x"`
	Y        int          `json:"y"`
	Tile     string       `json:"tile"`
	Rotation int          `json:"rotation"`
	Instance int          `json:"instance"`
	Meeples  []MeepleView `json:"meeples,omitempty"`
}

// PoolView describes the draw pool. Unlimited pools report the base
// counts they draw from.
type PoolView struct {
	Remaining map[string]int `json:"remaining"`
	Total     int            `json:"total"`
	Unlimited bool           `json:"unlimited,omitempty"`
}

type IntentView struct {
	Player   int    `json:"player"`
	Tile     string `json:"tile"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Rotation int    `json:"rotation"`
	Meeple   string `json:"meeple,omitempty"`
}

type ParallelIntentView struct {
	Tile     string `json:"tile"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Rotation int    `json:"rotation"`
	Locked   bool   `json:"locked"`
}

type ConflictView struct {
	Kind    string `json:"kind"`
	Players []int  `json:"players"`
	Detail  string `json:"detail"`
}

// ChoiceView is the viewer's own meeple claim for the round.
type ChoiceView struct {
	Feature   string `json:"feature"`
	Confirmed bool   `json:"confirmed"`
}

// RoundView is the parallel round as one viewer sees it. Offer,
// YourTile and Choice are private to the viewer; picks and intents
// are public once made.
type RoundView struct {
	Number      int                         `json:"number"`
	Phase       string                      `json:"phase"`
	TokenHolder int                         `json:"token_holder"`
	Offer       []string                    `json:"offer,omitempty"`
	YourTile    string                      `json:"your_tile,omitempty"`
	Intents     map[int]*ParallelIntentView `json:"intents,omitempty"`
	Conflict    *ConflictView               `json:"conflict,omitempty"`
	Choice      *ChoiceView                 `json:"choice,omitempty"`
	Waiting     []int                       `json:"waiting,omitempty"`
}

// MatchView is a full snapshot of a match rendered for one viewer.
// Fields marked omitempty drop out when they do not apply to the
// mode, the phase or the viewer.
type MatchView struct {
	ID          string       `json:"id"`
	Mode        string       `json:"mode"`
	Status      string       `json:"status"`
	Players     []PlayerView `json:"players"`
	Board       []CellView   `json:"board"`
	Pool        PoolView     `json:"pool"`
	TurnPlayer  int          `json:"turn_player,omitempty"`
	TurnNumber  int          `json:"turn_number,omitempty"`
	CurrentTile string       `json:"current_tile,omitempty"`
	Burned      []string     `json:"burned,omitempty"`
	Intent      *IntentView  `json:"intent,omitempty"`
	Round       *RoundView   `json:"round,omitempty"`
	You         int          `json:"you,omitempty"`
	NextTile    string       `json:"next_tile,omitempty"`
	Winners     []int        `json:"winners,omitempty"`
	LastEvent   string       `json:"last_event,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// view renders the match for one viewer. The token decides whose
// private fields are filled in; an unknown or empty token gets the
// spectator view. Call with the match lock held.
func (m *matchState) view(token string) *MatchView {
	you := 0
	if p, err := m.playerByToken(token); err == nil {
		you = p.Number
	}

	v := &MatchView{
		ID:         m.id,
		Mode:       m.cfg.Mode.String(),
		Status:     m.status.String(),
		TurnNumber: m.turnNumber,
		You:        you,
		LastEvent:  m.lastEvent,
		UpdatedAt:  m.updatedAt,
	}
	for _, p := range m.players {
		v.Players = append(v.Players, PlayerView{
			Number:      p.Number,
			Name:        p.Name,
			Score:       p.Score,
			MeeplesLeft: p.MeeplesLeft,
		})
	}
	for _, c := range m.board.Cells() {
		pt := m.board[c]
		cell := CellView{
			X:        c.X,
			Y:        c.Y,
			Tile:     pt.TileID,
			Rotation: pt.Rotation,
			Instance: pt.Instance,
		}
		for _, mp := range pt.Meeples {
			cell.Meeples = append(cell.Meeples, MeepleView{Player: mp.Player, Feature: mp.FeatureID})
		}
		v.Board = append(v.Board, cell)
	}
	v.Pool = m.poolView()
	v.Burned = append([]string(nil), m.burned...)
	v.Winners = append([]int(nil), m.winners...)

	if m.cfg.Mode != ModeParallel {
		v.TurnPlayer = m.turnPlayer
		v.CurrentTile = m.currentTile
		if m.intent != nil {
			v.Intent = &IntentView{
				Player:   m.intent.Player,
				Tile:     m.intent.TileID,
				X:        m.intent.X,
				Y:        m.intent.Y,
				Rotation: m.intent.Rotation,
				Meeple:   m.intent.Meeple,
			}
		}
		if you != 0 {
			v.NextTile = m.reserved[you]
		}
	}
	if m.round != nil {
		v.Round = m.roundView(you)
	}
	return v
}

func (m *matchState) poolView() PoolView {
	if m.cfg.Mode != ModeStandard {
		return PoolView{Remaining: copyCounts(m.remaining), Total: m.poolTotal(), Unlimited: true}
	}
	return PoolView{Remaining: copyCounts(m.remaining), Total: m.poolTotal()}
}

func copyCounts(counts map[string]int) map[string]int {
	out := make(map[string]int, len(counts))
	for id, n := range counts {
		out[id] = n
	}
	return out
}

func (m *matchState) roundView(you int) *RoundView {
	r := m.round
	rv := &RoundView{
		Number:      r.Number,
		Phase:       r.Phase.String(),
		TokenHolder: r.TokenHolder,
	}
	if you != 0 {
		if r.Phase == PhasePick {
			rv.Offer = append([]string(nil), r.Offers[you]...)
		}
		rv.YourTile = r.Picks[you]
		if c := r.Choices[you]; c != nil {
			rv.Choice = &ChoiceView{Feature: c.Feature, Confirmed: c.Confirmed}
		}
	}
	if len(r.Intents) > 0 {
		rv.Intents = make(map[int]*ParallelIntentView, len(r.Intents))
		for p, in := range r.Intents {
			rv.Intents[p] = &ParallelIntentView{
				Tile:     r.Picks[p],
				X:        in.X,
				Y:        in.Y,
				Rotation: in.Rotation,
				Locked:   in.Locked,
			}
		}
	}
	if r.Conflict != nil {
		rv.Conflict = &ConflictView{
			Kind:    r.Conflict.Kind.String(),
			Players: append([]int(nil), r.Conflict.Players...),
			Detail:  r.Conflict.Detail,
		}
	}
	rv.Waiting = m.roundWaiting()
	return rv
}

// roundWaiting lists the players the round is blocked on in its
// current phase.
func (m *matchState) roundWaiting() []int {
	r := m.round
	var out []int
	switch r.Phase {
	case PhasePick:
		for _, p := range m.players {
			if _, done := r.Picks[p.Number]; !done {
				out = append(out, p.Number)
			}
		}
	case PhasePlace:
		for _, p := range m.players {
			if in := r.Intents[p.Number]; in == nil || !in.Locked {
				out = append(out, p.Number)
			}
		}
	case PhaseResolve:
		out = append(out, r.TokenHolder)
	case PhaseMeeple:
		for _, p := range m.players {
			if c := r.Choices[p.Number]; c == nil || !c.Confirmed {
				out = append(out, p.Number)
			}
		}
	}
	return out
}
