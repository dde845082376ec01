package game

import (
	"fmt"

	"github.com/cloisterworks/cloister-server-go/internal/catalog"
	"github.com/cloisterworks/cloister-server-go/internal/game/rules"
)

// placementError turns a failed verdict into the error surfaced to
// the caller, folding in the offending edge when there is one.
func placementError(v rules.PlacementVerdict) error {
	if edge, ok := v.Details["edge"]; ok {
		return fmt.Errorf("%s (%s edge)", v.Reason, edge)
	}
	return fmt.Errorf("%s", v.Reason)
}

// placeTile commits the current tile for the turn player, optionally
// claiming a feature on it, then scores, advances the turn and draws
// for the next player. The board is only changed when every check has
// passed.
func (m *matchState) placeTile(cat *catalog.Catalog, player, x, y, deg int, meeple string) error {
	if m.cfg.Mode == ModeParallel {
		return fmt.Errorf("match runs in parallel rounds")
	}
	if player != m.turnPlayer {
		return fmt.Errorf("not your turn")
	}
	if m.currentTile == "" {
		return fmt.Errorf("no tile to place")
	}
	norm, err := catalog.NormalizeRotation(deg)
	if err != nil {
		return err
	}
	verdict := rules.CanPlace(cat, m.board, m.currentTile, norm, x, y)
	if !verdict.OK {
		return placementError(verdict)
	}
	cell := rules.Coord{X: x, Y: y}
	placed := &rules.PlacedTile{
		Instance: m.nextInstance,
		TileID:   m.currentTile,
		Rotation: norm,
	}
	m.board[cell] = placed
	m.nextInstance++
	if meeple != "" {
		if err := m.claimFeature(cat, player, placed, meeple); err != nil {
			delete(m.board, cell)
			m.nextInstance--
			return err
		}
	}
	m.emit(Event{Type: EventTilePlaced, Player: player, TileID: placed.TileID, X: x, Y: y, Rotation: norm})
	m.lastEvent = fmt.Sprintf("P%d placed %s at %d,%d", player, placed.TileID, x, y)
	m.scoreCompleted(cat)
	m.intent = nil
	m.burned = nil
	m.currentTile = ""
	m.advanceTurn(cat)
	return nil
}

// claimFeature puts one of the player's meeples on a feature of the
// tile just placed. The feature's whole connected group must be
// empty.
func (m *matchState) claimFeature(cat *catalog.Catalog, player int, placed *rules.PlacedTile, featureID string) error {
	slot := m.players[player-1]
	if slot.MeeplesLeft <= 0 {
		return fmt.Errorf("no meeples left")
	}
	rt := rules.Rotated(cat, placed.TileID, placed.Rotation)
	if rt.Feature(featureID) == nil {
		return fmt.Errorf("tile %s has no feature %s", placed.TileID, featureID)
	}
	analysis := rules.Analyze(cat, m.board)
	node := rules.FeatureNode{Instance: placed.Instance, Feature: featureID}
	if g, ok := analysis.GroupOf(node); ok && groupOccupied(g) {
		return fmt.Errorf("feature is already claimed")
	}
	placed.Meeples = append(placed.Meeples, rules.Meeple{Player: player, FeatureID: featureID})
	slot.MeeplesLeft--
	m.emit(Event{Type: EventMeeplePlaced, Player: player, TileID: placed.TileID, Data: featureID})
	return nil
}

func groupOccupied(g *rules.FeatureGroup) bool {
	for _, n := range g.MeeplesByPlayer {
		if n > 0 {
			return true
		}
	}
	return false
}

// advanceTurn hands the turn to the other player and draws their
// tile, finishing the match when the move limit hits.
func (m *matchState) advanceTurn(cat *catalog.Catalog) {
	m.turnNumber++
	if m.cfg.Mode == ModeRandomized && m.cfg.MoveLimit > 0 && m.turnNumber > m.cfg.MoveLimit {
		m.finish(cat)
		return
	}
	m.turnPlayer = otherPlayer(m.turnPlayer)
	m.beginTurn(cat)
}

// setIntent publishes an advisory placement preview for the turn
// player. Beyond rotation normalization nothing is validated; an
// intent may hover over an illegal cell.
func (m *matchState) setIntent(player, x, y, deg int, meeple string) error {
	if m.cfg.Mode == ModeParallel {
		return fmt.Errorf("match runs in parallel rounds")
	}
	if player != m.turnPlayer {
		return fmt.Errorf("not your turn")
	}
	norm, err := catalog.NormalizeRotation(deg)
	if err != nil {
		return err
	}
	m.intent = &turnIntent{
		Player:   player,
		TileID:   m.currentTile,
		X:        x,
		Y:        y,
		Rotation: norm,
		Meeple:   meeple,
	}
	m.emit(Event{Type: EventIntentUpdated, Player: player, TileID: m.currentTile, X: x, Y: y, Rotation: norm})
	return nil
}

// clearIntent withdraws the player's published intent. In parallel
// mode only unlocked intents can be withdrawn.
func (m *matchState) clearIntent(player int) error {
	if m.cfg.Mode == ModeParallel {
		return m.clearParallelIntent(player)
	}
	if m.intent != nil && m.intent.Player == player {
		m.intent = nil
		m.emit(Event{Type: EventIntentCleared, Player: player})
	}
	return nil
}

// resign aborts the match. Either player may resign at any point
// before the match ends, including while it is still waiting.
func (m *matchState) resign(player int) error {
	if m.status == StatusFinished || m.status == StatusAborted {
		return fmt.Errorf("match is already over")
	}
	m.status = StatusAborted
	m.currentTile = ""
	m.reserved = make(map[int]string)
	m.intent = nil
	m.round = nil
	m.lastEvent = fmt.Sprintf("P%d resigned", player)
	m.emit(Event{Type: EventMatchAborted, Player: player})
	return nil
}
