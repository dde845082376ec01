package game

import (
	"github.com/cloisterworks/cloister-server-go/internal/catalog"
	"github.com/cloisterworks/cloister-server-go/internal/game/rules"
)

// scoreCompleted awards every newly completed road, city and cloister
// group and lifts the meeples standing on them. Each group key is
// scored at most once per match; a group that completes with nobody
// on it still consumes its key.
func (m *matchState) scoreCompleted(cat *catalog.Catalog) {
	analysis := rules.Analyze(cat, m.board)
	scoredNow := make(map[string]bool)
	for _, g := range analysis.Groups() {
		if g.Kind == catalog.KindField || !g.Complete || m.scoredKeys[g.Key] {
			continue
		}
		m.scoredKeys[g.Key] = true
		scoredNow[g.Key] = true
		winners := rules.Winners(g)
		if len(winners) == 0 {
			continue
		}
		points := rules.Score(g, true)
		for _, p := range winners {
			m.players[p-1].Score += points
			m.emit(Event{Type: EventGroupScored, Player: p, GroupKey: g.Key, Points: points})
		}
	}
	if len(scoredNow) > 0 {
		m.returnMeeples(analysis, scoredNow)
	}
}

// returnMeeples hands the meeples on just-scored groups back to their
// owners, never past the per-player budget.
func (m *matchState) returnMeeples(analysis *rules.Analysis, scoredNow map[string]bool) {
	for _, cell := range m.board.Cells() {
		pt := m.board[cell]
		if len(pt.Meeples) == 0 {
			continue
		}
		kept := pt.Meeples[:0]
		for _, mp := range pt.Meeples {
			node := rules.FeatureNode{Instance: pt.Instance, Feature: mp.FeatureID}
			g, ok := analysis.GroupOf(node)
			if !ok || !scoredNow[g.Key] {
				kept = append(kept, mp)
				continue
			}
			slot := m.players[mp.Player-1]
			if slot.MeeplesLeft < m.cfg.MeepleBudget {
				slot.MeeplesLeft++
			}
			m.emit(Event{Type: EventMeepleReturned, Player: mp.Player, TileID: pt.TileID, Data: mp.FeatureID})
		}
		pt.Meeples = kept
	}
}

// finish applies final scoring and marks the match finished. Groups
// already scored during play keep their consumed keys; everything
// else on the board is valued by its end-of-match rule, fields
// included.
func (m *matchState) finish(cat *catalog.Catalog) {
	analysis := rules.Analyze(cat, m.board)
	for _, g := range analysis.Groups() {
		winners := rules.Winners(g)
		if len(winners) == 0 {
			continue
		}
		if g.Kind != catalog.KindField && g.Complete && m.scoredKeys[g.Key] {
			continue
		}
		points := rules.EndValue(g)
		if points == 0 {
			continue
		}
		for _, p := range winners {
			m.players[p-1].Score += points
			m.emit(Event{Type: EventGroupScored, Player: p, GroupKey: g.Key, Points: points})
		}
	}
	m.status = StatusFinished
	m.currentTile = ""
	m.reserved = make(map[int]string)
	m.intent = nil
	m.round = nil
	m.winners = m.leaders()
	m.lastEvent = "match finished"
	m.emit(Event{Type: EventMatchFinished})
}

// leaders returns the players holding the top score. Ties share the
// win.
func (m *matchState) leaders() []int {
	if len(m.players) == 0 {
		return nil
	}
	best := m.players[0].Score
	for _, p := range m.players[1:] {
		if p.Score > best {
			best = p.Score
		}
	}
	var out []int
	for _, p := range m.players {
		if p.Score == best {
			out = append(out, p.Number)
		}
	}
	return out
}
