package integration

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/cloisterworks/cloister-server-go/internal/catalog"
	"github.com/cloisterworks/cloister-server-go/internal/game"
	"github.com/cloisterworks/cloister-server-go/internal/game/rules"
)

func parallelConfig(rounds int) game.Config {
	cfg := game.DefaultConfig()
	cfg.Mode = game.ModeParallel
	cfg.MoveLimit = rounds
	return cfg
}

func otherSeat(n int) int {
	return 3 - n
}

func viewOn(t testing.TB, eng *game.Engine, id, token string) *game.MatchView {
	t.Helper()
	v, err := eng.View(id, token)
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
	return v
}

// lockSpot picks a random legal placement for the viewer's picked
// tile. With a standing opposing intent given, its target cell is
// treated as occupied so the result cannot collide with it.
func (env *matchEnv) lockSpot(mine *game.MatchView, avoid *game.ParallelIntentView) (rules.Placement, bool) {
	b := env.boardOf(mine)
	if avoid != nil {
		b[rules.Coord{X: avoid.X, Y: avoid.Y}] = &rules.PlacedTile{
			Instance: -1, TileID: avoid.Tile, Rotation: avoid.Rotation,
		}
	}
	spots := rules.Placements(env.cat, b, mine.Round.YourTile)
	if len(spots) == 0 {
		return rules.Placement{}, false
	}
	return spots[env.rng.Intn(len(spots))], true
}

// collideSpot finds a legal rotation for the tile on the exact cell a
// standing intent already targets.
func collideSpot(cat *catalog.Catalog, b rules.Board, tile string, other *game.ParallelIntentView) (rules.Placement, bool) {
	for _, sp := range rules.Placements(cat, b, tile) {
		if sp.Cell.X == other.X && sp.Cell.Y == other.Y {
			return sp, true
		}
	}
	return rules.Placement{}, false
}

// stepRound advances whatever the round is blocked on by one batch of
// player actions. The second player to lock steers onto the standing
// intent's cell once per round when geometry allows, so conflict
// resolution gets exercised; forced remembers which rounds already
// collided so the re-placement after a resolution stays clean.
func (env *matchEnv) stepRound(t testing.TB, id string, tokens map[int]string, v *game.MatchView, forced map[int]bool) {
	t.Helper()
	r := v.Round
	if r == nil {
		t.Fatal("active parallel match without a round")
	}
	switch r.Phase {
	case "pick":
		for _, n := range r.Waiting {
			mine := viewOn(t, env.engine, id, tokens[n])
			if _, err := env.engine.PickTile(id, tokens[n], env.rng.Intn(len(mine.Round.Offer))); err != nil {
				t.Fatalf("round %d: pick failed for player %d: %v", r.Number, n, err)
			}
		}
	case "place":
		n := r.Waiting[0]
		mine := viewOn(t, env.engine, id, tokens[n])
		other := mine.Round.Intents[otherSeat(n)]
		if other != nil && other.Locked && !forced[r.Number] {
			if sp, ok := collideSpot(env.cat, env.boardOf(mine), mine.Round.YourTile, other); ok {
				forced[r.Number] = true
				if _, err := env.engine.PublishParallelIntent(id, tokens[n], sp.Cell.X, sp.Cell.Y, sp.Rotation, true); err != nil {
					t.Fatalf("round %d: colliding lock failed for player %d: %v", r.Number, n, err)
				}
				return
			}
		}
		sp, ok := env.lockSpot(mine, other)
		if !ok {
			sp, ok = env.lockSpot(mine, nil)
		}
		if !ok {
			t.Fatalf("round %d: no legal placement for %s", r.Number, mine.Round.YourTile)
		}
		if _, err := env.engine.PublishParallelIntent(id, tokens[n], sp.Cell.X, sp.Cell.Y, sp.Rotation, true); err != nil {
			t.Fatalf("round %d: lock failed for player %d: %v", r.Number, n, err)
		}
	case "resolve":
		action := game.ResolveRetreat
		if env.rng.Intn(2) == 0 {
			action = game.ResolveBurn
		}
		if _, err := env.engine.ResolveConflict(id, tokens[r.TokenHolder], action); err != nil {
			t.Fatalf("round %d: %s failed: %v", r.Number, action, err)
		}
	case "meeple":
		for _, n := range r.Waiting {
			mine := viewOn(t, env.engine, id, tokens[n])
			if def, ok := env.cat.Tile(mine.Round.YourTile); ok && len(def.Features) > 0 && env.rng.Intn(2) == 0 {
				feature := def.Features[env.rng.Intn(len(def.Features))].ID
				if _, err := env.engine.ChooseMeeple(id, tokens[n], feature); err != nil {
					// Claim refused, the group is taken; pass instead.
					if _, err := env.engine.ChooseMeeple(id, tokens[n], ""); err != nil {
						t.Fatalf("round %d: empty claim failed for player %d: %v", r.Number, n, err)
					}
				}
			}
			if _, err := env.engine.ConfirmMeeple(id, tokens[n]); err != nil {
				t.Fatalf("round %d: confirm failed for player %d: %v", r.Number, n, err)
			}
		}
	default:
		t.Fatalf("unexpected round phase %q", r.Phase)
	}
}

// finishRound plays the numbered round out without staging any new
// collision.
func (env *matchEnv) finishRound(t testing.TB, id string, tokens map[int]string, number int) {
	t.Helper()
	forced := map[int]bool{number: true}
	for step := 0; step < 50; step++ {
		v := viewOn(t, env.engine, id, tokens[1])
		if v.Status != "active" || v.Round == nil || v.Round.Number != number {
			return
		}
		env.stepRound(t, id, tokens, v, forced)
	}
	t.Fatalf("round %d did not finish within 50 steps", number)
}

// TestParallelMatchRunsToRoundLimit drives a full parallel match with
// random picks and placements, colliding where geometry allows, and
// checks the round accounting at the limit.
func TestParallelMatchRunsToRoundLimit(t *testing.T) {
	env := newMatchEnv(t)

	var opened, committed, conflicts int
	bus := env.engine.Bus()
	handles := []int{
		bus.SubscribeTyped(game.EventRoundOpened, func(game.Event) { opened++ }),
		bus.SubscribeTyped(game.EventRoundCommitted, func(game.Event) { committed++ }),
		bus.SubscribeTyped(game.EventConflictDetected, func(game.Event) { conflicts++ }),
	}
	defer func() {
		for _, h := range handles {
			bus.Unsubscribe(h)
		}
	}()

	cfg := parallelConfig(6)
	id, tokens := startTwoSeatMatch(t, env, cfg)

	forced := make(map[int]bool)
	var final *game.MatchView
	for step := 0; step < 600; step++ {
		v := viewOn(t, env.engine, id, tokens[1])
		if v.Status != "active" {
			final = v
			break
		}
		env.stepRound(t, id, tokens, v, forced)
	}
	if final == nil {
		t.Fatal("parallel match did not finish within 600 steps")
	}

	if final.Status != "finished" {
		t.Fatalf("expected finished match, got %s", final.Status)
	}
	if final.TurnNumber != cfg.MoveLimit {
		t.Errorf("match ended on round %d, limit is %d", final.TurnNumber, cfg.MoveLimit)
	}
	if want := 1 + game.MaxPlayers*cfg.MoveLimit; len(final.Board) != want {
		t.Errorf("board holds %d tiles after %d committed rounds, want %d",
			len(final.Board), cfg.MoveLimit, want)
	}
	if opened != cfg.MoveLimit || committed != cfg.MoveLimit {
		t.Errorf("saw %d rounds opened and %d committed, want %d of each",
			opened, committed, cfg.MoveLimit)
	}
	if len(final.Winners) == 0 {
		t.Error("finished match has no winners")
	}
	meepleConservation(t, final, game.DefaultMeepleBudget)
	t.Logf("match finished with %d conflicts resolved along the way", conflicts)
}

type stagedPick struct {
	index int
	spot  rules.Placement
}

// retreatEscape reports whether the holder's tile still fits somewhere
// once the other intent is treated as placed on its contested cell.
func retreatEscape(cat *catalog.Catalog, b rules.Board, holderTile, otherTile string, otherSpot rules.Placement) bool {
	nb := b.Clone()
	nb[otherSpot.Cell] = &rules.PlacedTile{
		Instance: -1, TileID: otherTile, Rotation: otherSpot.Rotation,
	}
	return len(rules.Placements(cat, nb, holderTile)) > 0
}

// findCollision scans both offers for a tile pair that can legally
// target one shared cell, keeping only pairs the token holder can
// still back out of afterwards.
func findCollision(cat *catalog.Catalog, b rules.Board, offer1, offer2 []string, holder int) (stagedPick, stagedPick, bool) {
	for i, t1 := range offer1 {
		spots1 := rules.Placements(cat, b, t1)
		for j, t2 := range offer2 {
			for _, s2 := range rules.Placements(cat, b, t2) {
				for _, s1 := range spots1 {
					if s1.Cell != s2.Cell {
						continue
					}
					escape := retreatEscape(cat, b, t1, t2, s2)
					if holder == 2 {
						escape = retreatEscape(cat, b, t2, t1, s1)
					}
					if escape {
						return stagedPick{i, s1}, stagedPick{j, s2}, true
					}
				}
			}
		}
	}
	return stagedPick{}, stagedPick{}, false
}

// stageSameCellConflict plays rounds until both offers can legally
// target one cell, then locks both players onto it. The match is left
// in the resolve phase; the contested cell is returned.
func (env *matchEnv) stageSameCellConflict(t testing.TB, id string, tokens map[int]string, maxRounds int) rules.Coord {
	t.Helper()
	for i := 0; i < maxRounds; i++ {
		v := viewOn(t, env.engine, id, tokens[1])
		if v.Status != "active" {
			t.Fatal("match ended before a collision could be staged")
		}
		r := v.Round
		if r.Phase != "pick" {
			t.Fatalf("round %d opened in phase %s", r.Number, r.Phase)
		}
		offer2 := viewOn(t, env.engine, id, tokens[2]).Round.Offer
		board := env.boardOf(v)

		p1, p2, ok := findCollision(env.cat, board, r.Offer, offer2, r.TokenHolder)
		if !ok {
			env.finishRound(t, id, tokens, r.Number)
			continue
		}
		if _, err := env.engine.PickTile(id, tokens[1], p1.index); err != nil {
			t.Fatalf("staged pick failed for player 1: %v", err)
		}
		if _, err := env.engine.PickTile(id, tokens[2], p2.index); err != nil {
			t.Fatalf("staged pick failed for player 2: %v", err)
		}
		if _, err := env.engine.PublishParallelIntent(id, tokens[1], p1.spot.Cell.X, p1.spot.Cell.Y, p1.spot.Rotation, true); err != nil {
			t.Fatalf("staged lock failed for player 1: %v", err)
		}
		if _, err := env.engine.PublishParallelIntent(id, tokens[2], p2.spot.Cell.X, p2.spot.Cell.Y, p2.spot.Rotation, true); err != nil {
			t.Fatalf("staged lock failed for player 2: %v", err)
		}
		return p1.spot.Cell
	}
	t.Fatalf("no same-cell collision found in %d rounds", maxRounds)
	return rules.Coord{}
}

// TestConflictRoundSurvivesRestore parks a match in the resolve phase,
// reloads it from the store into a fresh engine, and plays the round
// to completion across two restore hops.
func TestConflictRoundSurvivesRestore(t *testing.T) {
	env := newMatchEnv(t)
	id, tokens := startTwoSeatMatch(t, env, parallelConfig(40))

	at := env.stageSameCellConflict(t, id, tokens, 30)

	mid := viewOn(t, env.engine, id, tokens[1])
	r := mid.Round
	if r.Phase != "resolve" || r.Conflict == nil {
		t.Fatalf("staging left the round in phase %s", r.Phase)
	}
	if r.Conflict.Kind != "same_cell" {
		t.Fatalf("staged conflict came out as %s", r.Conflict.Kind)
	}

	rec, err := env.store.LoadMatch(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to load stored record: %v", err)
	}
	if err := game.ValidateRecordRoundtrip(rec); err != nil {
		t.Errorf("mid-round record does not round-trip: %v", err)
	}

	second := game.NewEngine(zaptest.NewLogger(t), env.cat)
	second.SetRecorder(env.store)
	if err := second.RestoreMatch(rec); err != nil {
		t.Fatalf("failed to restore mid-round match: %v", err)
	}

	after := viewOn(t, second, id, tokens[1])
	ar := after.Round
	if ar == nil {
		t.Fatal("restored match lost its round")
	}
	if ar.Phase != r.Phase || ar.Number != r.Number || ar.TokenHolder != r.TokenHolder {
		t.Fatalf("restored round is %d/%s with holder %d, want %d/%s with holder %d",
			ar.Number, ar.Phase, ar.TokenHolder, r.Number, r.Phase, r.TokenHolder)
	}
	if ar.Conflict == nil || ar.Conflict.Kind != r.Conflict.Kind ||
		fmt.Sprint(ar.Conflict.Players) != fmt.Sprint(r.Conflict.Players) {
		t.Fatalf("conflict changed across restore: %+v vs %+v", ar.Conflict, r.Conflict)
	}
	if len(after.Board) != len(mid.Board) {
		t.Fatalf("board changed across restore: %d vs %d tiles", len(after.Board), len(mid.Board))
	}
	for n := 1; n <= game.MaxPlayers; n++ {
		in := ar.Intents[n]
		if in == nil || !in.Locked || in.X != at.X || in.Y != at.Y {
			t.Fatalf("player %d intent not restored onto %s: %+v", n, at, in)
		}
		mine := viewOn(t, second, id, tokens[n])
		if mine.Round.YourTile != in.Tile {
			t.Errorf("player %d pick %q does not match intent tile %q", n, mine.Round.YourTile, in.Tile)
		}
	}

	// The holder backs out and re-places; the round commits.
	holder := ar.TokenHolder
	if _, err := second.ResolveConflict(id, tokens[holder], game.ResolveRetreat); err != nil {
		t.Fatalf("resolve failed on restored engine: %v", err)
	}
	mine := viewOn(t, second, id, tokens[holder])
	sp, ok := env.lockSpot(mine, mine.Round.Intents[otherSeat(holder)])
	if !ok {
		t.Fatal("holder has no conflict-free placement after retreating")
	}
	if _, err := second.PublishParallelIntent(id, tokens[holder], sp.Cell.X, sp.Cell.Y, sp.Rotation, true); err != nil {
		t.Fatalf("relock failed after retreat: %v", err)
	}

	committed := viewOn(t, second, id, tokens[1])
	if committed.Round == nil || committed.Round.Phase != "meeple" {
		t.Fatalf("round did not commit after the relock: %+v", committed.Round)
	}
	if len(committed.Board) != len(mid.Board)+game.MaxPlayers {
		t.Errorf("board grew from %d to %d tiles, want +%d",
			len(mid.Board), len(committed.Board), game.MaxPlayers)
	}

	// Park an unconfirmed claim and hop engines once more.
	chosen := ""
	if def, ok := env.cat.Tile(viewOn(t, second, id, tokens[holder]).Round.YourTile); ok {
		for _, f := range def.Features {
			if _, err := second.ChooseMeeple(id, tokens[holder], f.ID); err == nil {
				chosen = f.ID
				break
			}
		}
	}
	if chosen == "" {
		if _, err := second.ChooseMeeple(id, tokens[holder], ""); err != nil {
			t.Fatalf("empty claim rejected: %v", err)
		}
	}

	rec2, err := env.store.LoadMatch(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to load mid-meeple record: %v", err)
	}
	third := game.NewEngine(zaptest.NewLogger(t), env.cat)
	if err := third.RestoreMatch(rec2); err != nil {
		t.Fatalf("failed to restore mid-meeple match: %v", err)
	}
	hv := viewOn(t, third, id, tokens[holder])
	if hv.Round == nil || hv.Round.Phase != "meeple" {
		t.Fatalf("meeple phase lost across restore: %+v", hv.Round)
	}
	if hv.Round.Choice == nil || hv.Round.Choice.Feature != chosen || hv.Round.Choice.Confirmed {
		t.Fatalf("holder claim %q lost across restore: %+v", chosen, hv.Round.Choice)
	}

	for n := 1; n <= game.MaxPlayers; n++ {
		if _, err := third.ConfirmMeeple(id, tokens[n]); err != nil {
			t.Fatalf("confirm failed for player %d: %v", n, err)
		}
	}
	next := viewOn(t, third, id, tokens[1])
	if next.Round == nil || next.Round.Number != r.Number+1 || next.Round.Phase != "pick" {
		t.Fatalf("round did not advance after confirms: %+v", next.Round)
	}
	meepleConservation(t, next, game.DefaultMeepleBudget)
}
