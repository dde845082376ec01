// Command simulate plays a full match against itself through the
// public engine API. Useful for eyeballing scoring and for smoke
// testing rule changes without a network peer.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"go.uber.org/zap"

	"github.com/cloisterworks/cloister-server-go/internal/catalog"
	"github.com/cloisterworks/cloister-server-go/internal/game"
	"github.com/cloisterworks/cloister-server-go/internal/game/rules"
)

var (
	mode      = flag.String("mode", "standard", "match mode: standard, randomized or parallel")
	moveLimit = flag.Int("moves", 0, "move/round limit (0 = standard default, parallel falls back to 24)")
	seed      = flag.Int64("seed", 0, "seed for the simulated players' choices (0 = random)")
	meeples   = flag.Int("meeples", game.DefaultMeepleBudget, "meeple budget per player")
	verbose   = flag.Bool("v", false, "log every move")
)

const maxSteps = 5000

func main() {
	flag.Parse()

	logger, err := buildLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	m, err := game.ParseMode(*mode)
	if err != nil {
		logger.Fatal("bad mode", zap.Error(err))
	}
	cfg := game.DefaultConfig()
	cfg.Mode = m
	cfg.MeepleBudget = *meeples
	cfg.MoveLimit = *moveLimit
	if m == game.ModeParallel && cfg.MoveLimit == 0 {
		cfg.MoveLimit = 24
	}

	if *seed == 0 {
		*seed = rand.Int63()
	}
	sim := &simulator{
		logger: logger,
		cat:    catalog.Default(),
		rng:    rand.New(rand.NewSource(*seed)),
		tokens: map[int]string{1: "sim-north", 2: "sim-south"},
	}
	sim.engine = game.NewEngine(logger, sim.cat)

	logger.Info("simulation starting",
		zap.String("mode", m.String()),
		zap.Int64("seed", *seed),
		zap.Int("move_limit", cfg.MoveLimit),
	)

	final, err := sim.run(cfg)
	if err != nil {
		logger.Fatal("simulation failed", zap.Error(err))
	}

	for _, p := range final.Players {
		logger.Info("final score",
			zap.Int("player", p.Number),
			zap.String("name", p.Name),
			zap.Int("score", p.Score),
			zap.Int("meeples_left", p.MeeplesLeft),
		)
	}
	logger.Info("simulation finished",
		zap.String("status", final.Status),
		zap.Ints("winners", final.Winners),
		zap.Int("tiles_on_board", len(final.Board)),
		zap.Strings("burned", final.Burned),
	)
}

type simulator struct {
	logger *zap.Logger
	engine *game.Engine
	cat    *catalog.Catalog
	rng    *rand.Rand
	tokens map[int]string
	id     string
}

func (s *simulator) run(cfg game.Config) (*game.MatchView, error) {
	created, err := s.engine.CreateMatch(cfg, s.tokens[1], "North")
	if err != nil {
		return nil, err
	}
	s.id = created.ID
	if _, err := s.engine.JoinMatch(s.id, s.tokens[2], "South"); err != nil {
		return nil, err
	}

	for step := 0; step < maxSteps; step++ {
		v, err := s.engine.View(s.id, s.tokens[1])
		if err != nil {
			return nil, err
		}
		if v.Status != "active" {
			return v, nil
		}
		if cfg.Mode == game.ModeParallel {
			err = s.stepParallel(v)
		} else {
			err = s.stepTurn(v)
		}
		if err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("match did not finish within %d steps", maxSteps)
}

// stepTurn plays one standard or randomized turn for whichever seat
// holds it.
func (s *simulator) stepTurn(v *game.MatchView) error {
	tok := s.tokens[v.TurnPlayer]
	mine, err := s.engine.View(s.id, tok)
	if err != nil {
		return err
	}
	sp, ok := s.pickSpot(boardOf(mine), mine.CurrentTile, nil)
	if !ok {
		return fmt.Errorf("turn %d: no legal placement for %s", mine.TurnNumber, mine.CurrentTile)
	}

	meeple := s.pickFeature(mine.CurrentTile)
	_, err = s.engine.SubmitTurn(s.id, tok, sp.x, sp.y, sp.rot, meeple)
	if err != nil && meeple != "" {
		// The chosen feature may be occupied; place plain instead.
		_, err = s.engine.SubmitTurn(s.id, tok, sp.x, sp.y, sp.rot, "")
	}
	if err != nil {
		return err
	}
	s.logger.Debug("placed",
		zap.Int("player", v.TurnPlayer),
		zap.String("tile", mine.CurrentTile),
		zap.Int("x", sp.x), zap.Int("y", sp.y), zap.Int("rot", sp.rot),
		zap.String("meeple", meeple),
	)
	return nil
}

// stepParallel advances whatever the round is waiting on by one batch
// of player actions.
func (s *simulator) stepParallel(v *game.MatchView) error {
	r := v.Round
	if r == nil {
		return fmt.Errorf("parallel match without a round")
	}
	switch r.Phase {
	case "pick":
		for _, n := range r.Waiting {
			mine, err := s.engine.View(s.id, s.tokens[n])
			if err != nil {
				return err
			}
			if _, err := s.engine.PickTile(s.id, s.tokens[n], s.rng.Intn(len(mine.Round.Offer))); err != nil {
				return err
			}
		}
	case "place":
		// Lock one player at a time so conflict detection sees fresh
		// state between locks.
		n := r.Waiting[0]
		mine, err := s.engine.View(s.id, s.tokens[n])
		if err != nil {
			return err
		}
		other := mine.Round.Intents[otherSeat(n)]
		sp, ok := s.pickSpot(boardOf(mine), mine.Round.YourTile, other)
		if !ok {
			// Nowhere conflict-free; collide and let the protocol
			// sort it out.
			sp, ok = s.pickSpot(boardOf(mine), mine.Round.YourTile, nil)
			if !ok {
				return fmt.Errorf("round %d: no legal placement for %s", r.Number, mine.Round.YourTile)
			}
		}
		if _, err := s.engine.PublishParallelIntent(s.id, s.tokens[n], sp.x, sp.y, sp.rot, true); err != nil {
			return err
		}
	case "resolve":
		action := game.ResolveRetreat
		if s.rng.Intn(2) == 0 {
			action = game.ResolveBurn
		}
		s.logger.Debug("conflict",
			zap.String("kind", r.Conflict.Kind),
			zap.Int("holder", r.TokenHolder),
			zap.String("action", action.String()),
		)
		if _, err := s.engine.ResolveConflict(s.id, s.tokens[r.TokenHolder], action); err != nil {
			return err
		}
	case "meeple":
		for _, n := range r.Waiting {
			mine, err := s.engine.View(s.id, s.tokens[n])
			if err != nil {
				return err
			}
			if feature := s.pickFeature(mine.Round.YourTile); feature != "" {
				if _, err := s.engine.ChooseMeeple(s.id, s.tokens[n], feature); err != nil {
					if _, err := s.engine.ChooseMeeple(s.id, s.tokens[n], ""); err != nil {
						return err
					}
				}
			}
			if _, err := s.engine.ConfirmMeeple(s.id, s.tokens[n]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unexpected round phase %q", r.Phase)
	}
	return nil
}

type spot struct {
	x, y, rot int
}

// pickSpot chooses a random legal frontier placement. With a standing
// opposing intent given, placements that would collide with it are
// avoided.
func (s *simulator) pickSpot(b rules.Board, tile string, avoid *game.ParallelIntentView) (spot, bool) {
	if avoid != nil {
		b = b.Clone()
		b[rules.Coord{X: avoid.X, Y: avoid.Y}] = &rules.PlacedTile{
			Instance: -1, TileID: avoid.Tile, Rotation: avoid.Rotation,
		}
	}
	spots := rules.Placements(s.cat, b, tile)
	if len(spots) == 0 {
		return spot{}, false
	}
	p := spots[s.rng.Intn(len(spots))]
	return spot{p.Cell.X, p.Cell.Y, p.Rotation}, true
}

// pickFeature claims a random feature of the tile about half the time.
func (s *simulator) pickFeature(tile string) string {
	def, ok := s.cat.Tile(tile)
	if !ok || len(def.Features) == 0 || s.rng.Intn(2) == 0 {
		return ""
	}
	return def.Features[s.rng.Intn(len(def.Features))].ID
}

func boardOf(v *game.MatchView) rules.Board {
	b := make(rules.Board, len(v.Board))
	for _, c := range v.Board {
		b[rules.Coord{X: c.X, Y: c.Y}] = &rules.PlacedTile{
			Instance: c.Instance,
			TileID:   c.Tile,
			Rotation: c.Rotation,
		}
	}
	return b
}

func otherSeat(n int) int {
	return 3 - n
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}
