package integration

import (
	"context"
	"testing"
	"time"

	"github.com/cloisterworks/cloister-server-go/internal/game"
	"github.com/cloisterworks/cloister-server-go/internal/session"
)

// TestSessionRemoveWithdrawsAdvisoryIntent ends a session mid-match
// and checks the published intent goes away while the seat keeps its
// place.
func TestSessionRemoveWithdrawsAdvisoryIntent(t *testing.T) {
	env := newMatchEnv(t)
	id, tokens := startTwoSeatMatch(t, env, game.DefaultConfig())

	var cleared *game.Event
	handle := env.engine.Bus().SubscribeTyped(game.EventIntentCleared, func(ev game.Event) { cleared = &ev })
	defer env.engine.Bus().Unsubscribe(handle)

	v := viewOn(t, env.engine, id, tokens[1])
	turn := v.TurnPlayer
	if _, err := env.engine.PublishIntent(id, tokens[turn], 0, 1, 90, ""); err != nil {
		t.Fatalf("intent publish failed: %v", err)
	}
	if v = viewOn(t, env.engine, id, tokens[1]); v.Intent == nil {
		t.Fatal("published intent not visible")
	}

	env.sessions.Remove(tokens[turn])

	v = viewOn(t, env.engine, id, tokens[1])
	if v.Intent != nil {
		t.Errorf("intent still standing after session removal: %+v", v.Intent)
	}
	if cleared == nil || cleared.Player != turn || cleared.MatchID != id {
		t.Errorf("wrong intent clear event: %+v", cleared)
	}
	if _, ok := env.sessions.Get(tokens[turn]); ok {
		t.Error("removed session still resolves")
	}

	// The seat token stays the credential for match play.
	mine := viewOn(t, env.engine, id, tokens[turn])
	if mine.You != turn {
		t.Errorf("seat lost after session removal: you=%d", mine.You)
	}
	if mine.CurrentTile == "" {
		t.Error("turn state lost after session removal")
	}
}

// TestSessionExpirySweepClearsUnlockedIntents runs the expiry sweeper
// against a live parallel round: the hover of an expired player is
// withdrawn while the locked placement stands.
func TestSessionExpirySweepClearsUnlockedIntents(t *testing.T) {
	env := newMatchEnv(t)

	sessions := session.NewManager(env.logger, 200*time.Millisecond, env.engine)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sessions.CleanupExpired(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	clearedCh := make(chan game.Event, game.MaxPlayers)
	handle := env.engine.Bus().SubscribeTyped(game.EventIntentCleared, func(ev game.Event) { clearedCh <- ev })
	defer env.engine.Bus().Unsubscribe(handle)

	alice := sessions.Create("Alice")
	bob := sessions.Create("Bob")
	created, err := env.engine.CreateMatch(parallelConfig(0), alice.Token, alice.Name)
	if err != nil {
		t.Fatalf("failed to create match: %v", err)
	}
	id := created.ID
	if _, err := env.engine.JoinMatch(id, bob.Token, bob.Name); err != nil {
		t.Fatalf("failed to join match: %v", err)
	}
	tokens := map[int]string{1: alice.Token, 2: bob.Token}

	for n := 1; n <= game.MaxPlayers; n++ {
		if _, err := env.engine.PickTile(id, tokens[n], 0); err != nil {
			t.Fatalf("pick failed for player %d: %v", n, err)
		}
	}

	// Player 1 hovers; player 2 locks a validated placement.
	if _, err := env.engine.PublishParallelIntent(id, tokens[1], 4, 4, 0, false); err != nil {
		t.Fatalf("hover failed: %v", err)
	}
	mine := viewOn(t, env.engine, id, tokens[2])
	sp, ok := env.lockSpot(mine, nil)
	if !ok {
		t.Fatalf("no legal placement for %s", mine.Round.YourTile)
	}
	if _, err := env.engine.PublishParallelIntent(id, tokens[2], sp.Cell.X, sp.Cell.Y, sp.Rotation, true); err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	select {
	case ev := <-clearedCh:
		if ev.Player != 1 || ev.MatchID != id {
			t.Fatalf("wrong intent cleared by sweep: %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expiry sweep never cleared the hover intent")
	}

	v := viewOn(t, env.engine, id, tokens[1])
	r := v.Round
	if r == nil || r.Phase != "place" {
		t.Fatalf("round moved while sessions expired: %+v", r)
	}
	if r.Intents[1] != nil {
		t.Errorf("expired player's hover still standing: %+v", r.Intents[1])
	}
	if in := r.Intents[2]; in == nil || !in.Locked {
		t.Errorf("locked intent should survive expiry: %+v", in)
	}
	if _, ok := sessions.Get(tokens[1]); ok {
		t.Error("expired session still resolves")
	}
	if v.You != 1 {
		t.Error("seat lost to session expiry")
	}
}
