package game

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloisterworks/cloister-server-go/internal/game/rules"
)

func parallelConfig() Config {
	return Config{
		Mode:          ModeParallel,
		MeepleBudget:  DefaultMeepleBudget,
		SelectionSize: 1,
	}
}

// forceRound pins the round's offers and token holder so tests do not
// depend on the shuffle.
func forceRound(t *testing.T, e *Engine, matchID string, offers map[int][]string, holder int) {
	t.Helper()
	m, err := e.match(matchID)
	require.NoError(t, err)
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotNil(t, m.round)
	require.Equal(t, PhasePick, m.round.Phase)
	m.round.Offers = offers
	m.round.TokenHolder = holder
}

func forceBoardTile(t *testing.T, e *Engine, matchID, tileID string, x, y, rot int) {
	t.Helper()
	m, err := e.match(matchID)
	require.NoError(t, err)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.board[rules.Coord{X: x, Y: y}] = &rules.PlacedTile{
		Instance: m.nextInstance,
		TileID:   tileID,
		Rotation: rot,
	}
	m.nextInstance++
}

func TestParallelRoundFlow(t *testing.T) {
	e := newTestEngine(t, 31)
	id, toks := startMatch(t, e, parallelConfig())

	view, err := e.View(id, toks[1])
	require.NoError(t, err)
	require.NotNil(t, view.Round)
	require.Equal(t, 1, view.Round.Number)
	require.Equal(t, "pick", view.Round.Phase)
	require.Equal(t, []int{1, 2}, view.Round.Waiting)
	require.Len(t, view.Round.Offer, 1)
	require.Zero(t, view.TurnPlayer)
	require.Empty(t, view.CurrentTile)

	forceRound(t, e, id, map[int][]string{1: {"A"}, 2: {"A"}}, 1)

	// Picking is bounds-checked and one-shot.
	_, err = e.PickTile(id, toks[1], 5)
	require.ErrorContains(t, err, "out of range")
	view, err = e.PickTile(id, toks[1], 0)
	require.NoError(t, err)
	require.Equal(t, "A", view.Round.YourTile)
	require.Equal(t, []int{2}, view.Round.Waiting)
	_, err = e.PickTile(id, toks[1], 0)
	require.ErrorContains(t, err, "already picked")

	// Placement stays closed until both have picked.
	_, err = e.PublishParallelIntent(id, toks[1], 1, 0, 90, true)
	require.ErrorContains(t, err, "placement is not open")

	view, err = e.PickTile(id, toks[2], 0)
	require.NoError(t, err)
	require.Equal(t, "place", view.Round.Phase)

	// Locking an illegal placement is refused outright.
	_, err = e.PublishParallelIntent(id, toks[1], 1, 0, 0, true)
	require.ErrorContains(t, err, "terrain mismatch")

	// An unlocked preview is shared but withdrawable.
	view, err = e.PublishParallelIntent(id, toks[1], 1, 0, 90, false)
	require.NoError(t, err)
	require.False(t, view.Round.Intents[1].Locked)
	view, err = e.ClearIntent(id, toks[1])
	require.NoError(t, err)
	require.Empty(t, view.Round.Intents)

	view, err = e.PublishParallelIntent(id, toks[1], 1, 0, 90, true)
	require.NoError(t, err)
	require.True(t, view.Round.Intents[1].Locked)
	require.Equal(t, "A", view.Round.Intents[1].Tile)
	require.Equal(t, []int{2}, view.Round.Waiting)

	// A locked intent cannot be moved or withdrawn.
	_, err = e.PublishParallelIntent(id, toks[1], 0, 1, 0, false)
	require.ErrorContains(t, err, "already locked")
	_, err = e.ClearIntent(id, toks[1])
	require.ErrorContains(t, err, "already locked")

	// Second lock settles the round: no conflict, both tiles commit.
	view, err = e.PublishParallelIntent(id, toks[2], -1, 0, 270, true)
	require.NoError(t, err)
	require.Equal(t, "meeple", view.Round.Phase)
	require.Len(t, view.Board, 3)

	// Empty confirms close the round and the next one opens.
	_, err = e.ConfirmMeeple(id, toks[1])
	require.NoError(t, err)
	view, err = e.ConfirmMeeple(id, toks[2])
	require.NoError(t, err)
	require.Equal(t, 2, view.Round.Number)
	require.Equal(t, "pick", view.Round.Phase)
	require.Equal(t, 2, view.TurnNumber)
	require.Zero(t, view.Players[0].Score)
	require.Zero(t, view.Players[1].Score)
}

func TestParallelSameCellConflictBurn(t *testing.T) {
	e := newTestEngine(t, 37)
	id, toks := startMatch(t, e, parallelConfig())
	forceRound(t, e, id, map[int][]string{1: {"A"}, 2: {"A"}}, 1)

	var conflicts []Event
	e.Bus().SubscribeTyped(EventConflictDetected, func(ev Event) {
		conflicts = append(conflicts, ev)
	})

	_, err := e.PickTile(id, toks[1], 0)
	require.NoError(t, err)
	_, err = e.PickTile(id, toks[2], 0)
	require.NoError(t, err)

	_, err = e.PublishParallelIntent(id, toks[1], 0, 1, 0, true)
	require.NoError(t, err)
	view, err := e.PublishParallelIntent(id, toks[2], 0, 1, 0, true)
	require.NoError(t, err)

	require.Equal(t, "resolve", view.Round.Phase)
	require.NotNil(t, view.Round.Conflict)
	require.Equal(t, "same_cell", view.Round.Conflict.Kind)
	require.Equal(t, []int{1, 2}, view.Round.Conflict.Players)
	require.Equal(t, []int{1}, view.Round.Waiting)
	require.Len(t, conflicts, 1)

	// Placement is frozen while the conflict stands.
	_, err = e.PublishParallelIntent(id, toks[2], 1, 0, 90, true)
	require.ErrorContains(t, err, "placement is not open")

	// Only the token holder may rule.
	_, err = e.ResolveConflict(id, toks[2], ResolveBurn)
	require.ErrorContains(t, err, "priority token required")

	// Burn reopens the opponent's placement and hands over the token.
	view, err = e.ResolveConflict(id, toks[1], ResolveBurn)
	require.NoError(t, err)
	require.Equal(t, "place", view.Round.Phase)
	require.Nil(t, view.Round.Conflict)
	require.Equal(t, 2, view.Round.TokenHolder)
	require.NotNil(t, view.Round.Intents[1])
	require.Nil(t, view.Round.Intents[2])

	_, err = e.ResolveConflict(id, toks[1], ResolveBurn)
	require.ErrorContains(t, err, "no conflict to resolve")

	// The displaced player relocates and the round commits.
	view, err = e.PublishParallelIntent(id, toks[2], 1, 0, 90, true)
	require.NoError(t, err)
	require.Equal(t, "meeple", view.Round.Phase)
	require.Len(t, view.Board, 3)

	// The token survives into the next round.
	_, err = e.ConfirmMeeple(id, toks[1])
	require.NoError(t, err)
	view, err = e.ConfirmMeeple(id, toks[2])
	require.NoError(t, err)
	require.Equal(t, 2, view.Round.Number)
	require.Equal(t, 2, view.Round.TokenHolder)
}

func TestParallelEdgeMismatchConflictRetreat(t *testing.T) {
	e := newTestEngine(t, 41)
	id, toks := startMatch(t, e, parallelConfig())

	// Grow the board east so two separately legal placements can still
	// disagree about their shared edge.
	forceBoardTile(t, e, id, "U", 1, 0, 90)
	forceRound(t, e, id, map[int][]string{1: {"V"}, 2: {"B"}}, 1)

	_, err := e.PickTile(id, toks[1], 0)
	require.NoError(t, err)
	_, err = e.PickTile(id, toks[2], 0)
	require.NoError(t, err)

	// V at 1,1 turns a road toward 0,1; B there is all field. Each
	// placement alone is legal against the board.
	_, err = e.PublishParallelIntent(id, toks[1], 1, 1, 0, true)
	require.NoError(t, err)
	view, err := e.PublishParallelIntent(id, toks[2], 0, 1, 0, true)
	require.NoError(t, err)

	require.Equal(t, "resolve", view.Round.Phase)
	require.Equal(t, "edge_mismatch", view.Round.Conflict.Kind)
	require.Equal(t, []int{1, 2}, view.Round.Conflict.Players)

	// Retreat reopens the holder's own placement; the token stays.
	view, err = e.ResolveConflict(id, toks[1], ResolveRetreat)
	require.NoError(t, err)
	require.Equal(t, "place", view.Round.Phase)
	require.Equal(t, 1, view.Round.TokenHolder)
	require.Nil(t, view.Round.Intents[1])
	require.NotNil(t, view.Round.Intents[2])

	view, err = e.PublishParallelIntent(id, toks[1], 2, 0, 0, true)
	require.NoError(t, err)
	require.Equal(t, "meeple", view.Round.Phase)
	require.Len(t, view.Board, 4)
	require.Equal(t, 1, view.Round.TokenHolder)
}

func TestParallelMeepleSharedGroupScoresBoth(t *testing.T) {
	e := newTestEngine(t, 43)
	id, toks := startMatch(t, e, parallelConfig())
	forceRound(t, e, id, map[int][]string{1: {"A"}, 2: {"A"}}, 2)

	_, err := e.PickTile(id, toks[1], 0)
	require.NoError(t, err)
	_, err = e.PickTile(id, toks[2], 0)
	require.NoError(t, err)
	_, err = e.PublishParallelIntent(id, toks[1], 1, 0, 90, true)
	require.NoError(t, err)
	view, err := e.PublishParallelIntent(id, toks[2], -1, 0, 270, true)
	require.NoError(t, err)

	// Committing both caps closed the start tile's road.
	require.Equal(t, "meeple", view.Round.Phase)
	require.Len(t, view.Board, 3)
	require.Equal(t, []int{1, 2}, view.Round.Waiting)

	_, err = e.ChooseMeeple(id, toks[1], "nope")
	require.ErrorContains(t, err, "has no feature")

	// Choices may change until confirmed.
	view, err = e.ChooseMeeple(id, toks[1], "m1")
	require.NoError(t, err)
	require.Equal(t, "m1", view.Round.Choice.Feature)
	require.False(t, view.Round.Choice.Confirmed)
	view, err = e.ChooseMeeple(id, toks[1], "r1")
	require.NoError(t, err)
	require.Equal(t, "r1", view.Round.Choice.Feature)

	// The opponent's claim of the same road is accepted: claims are
	// checked against the committed board, not each other.
	_, err = e.ChooseMeeple(id, toks[2], "r1")
	require.NoError(t, err)

	view, err = e.ConfirmMeeple(id, toks[1])
	require.NoError(t, err)
	require.True(t, view.Round.Choice.Confirmed)
	_, err = e.ChooseMeeple(id, toks[1], "m1")
	require.ErrorContains(t, err, "already confirmed")

	// Re-confirming while the round is open is a no-op.
	_, err = e.ConfirmMeeple(id, toks[1])
	require.NoError(t, err)

	// Second confirm applies both claims; the shared road scores both
	// players and returns both meeples.
	view, err = e.ConfirmMeeple(id, toks[2])
	require.NoError(t, err)
	require.Equal(t, 3, view.Players[0].Score)
	require.Equal(t, 3, view.Players[1].Score)
	require.Equal(t, DefaultMeepleBudget, view.Players[0].MeeplesLeft)
	require.Equal(t, DefaultMeepleBudget, view.Players[1].MeeplesLeft)
	for _, cell := range view.Board {
		require.Empty(t, cell.Meeples)
	}
	require.Equal(t, 2, view.Round.Number)
}

func TestParallelRoundLimitFinishes(t *testing.T) {
	e := newTestEngine(t, 47)
	cfg := parallelConfig()
	cfg.MoveLimit = 1
	id, toks := startMatch(t, e, cfg)
	forceRound(t, e, id, map[int][]string{1: {"A"}, 2: {"A"}}, 1)

	_, err := e.PickTile(id, toks[1], 0)
	require.NoError(t, err)
	_, err = e.PickTile(id, toks[2], 0)
	require.NoError(t, err)
	_, err = e.PublishParallelIntent(id, toks[1], 1, 0, 90, true)
	require.NoError(t, err)
	_, err = e.PublishParallelIntent(id, toks[2], -1, 0, 270, true)
	require.NoError(t, err)
	_, err = e.ConfirmMeeple(id, toks[1])
	require.NoError(t, err)

	view, err := e.ConfirmMeeple(id, toks[2])
	require.NoError(t, err)
	require.Equal(t, "finished", view.Status)
	require.Nil(t, view.Round)
	require.Equal(t, []int{1, 2}, view.Winners)
}

func TestParallelGuards(t *testing.T) {
	e := newTestEngine(t, 53)
	id, toks := startMatch(t, e, parallelConfig())

	// Turn-based moves have no meaning in parallel mode.
	_, err := e.SubmitTurn(id, toks[1], 0, 1, 0, "")
	require.ErrorContains(t, err, "parallel rounds")
	_, err = e.PublishIntent(id, toks[1], 0, 1, 0, "")
	require.ErrorContains(t, err, "parallel rounds")

	_, err = e.ChooseMeeple(id, toks[1], "r1")
	require.ErrorContains(t, err, "meeple selection is not open")
	_, err = e.ConfirmMeeple(id, toks[1])
	require.ErrorContains(t, err, "meeple selection is not open")

	// And round moves have none in a turn-based match.
	sid, stoks := startMatch(t, e, DefaultConfig())
	_, err = e.PickTile(sid, stoks[1], 0)
	require.ErrorContains(t, err, "no tile pick is open")
	_, err = e.PublishParallelIntent(sid, stoks[1], 0, 1, 0, true)
	require.ErrorContains(t, err, "placement is not open")
	_, err = e.ResolveConflict(sid, stoks[1], ResolveRetreat)
	require.ErrorContains(t, err, "no conflict to resolve")
}
