package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cloisterworks/cloister-server-go/internal/catalog"
	"github.com/cloisterworks/cloister-server-go/internal/game/rules"
)

// MaxPlayers is the number of seats in a match.
const MaxPlayers = 2

type playerSlot struct {
	Token       string
	Name        string
	Number      int
	Score       int
	MeeplesLeft int
}

// turnIntent is the advisory placement preview the turn player may
// publish in the turn-based modes. It is display state only and never
// constrains the placement that actually gets submitted.
type turnIntent struct {
	Player   int
	TileID   string
	X, Y     int
	Rotation int
	Meeple   string
}

// matchState holds everything about one match. All access goes
// through mu; the engine locks it for the duration of each operation.
type matchState struct {
	mu  sync.Mutex
	id  string
	cfg Config

	status    MatchStatus
	createdAt time.Time
	updatedAt time.Time

	players []*playerSlot

	board        rules.Board
	nextInstance int

	// remaining is the depleting pool in standard mode. The other
	// modes draw with replacement from the base counts and leave it
	// untouched.
	remaining map[string]int
	drawQueue []string

	turnPlayer  int
	turnNumber  int
	currentTile string
	reserved    map[int]string // prefetched draw per waiting player
	burned      []string       // unplaceable tiles discarded this turn

	scoredKeys map[string]bool
	intent     *turnIntent
	round      *parallelRound

	lastEvent string
	winners   []int
	rng       *rand.Rand
	pending   []Event
}

// newMatchState creates a waiting match with the start tile already
// on the origin cell as instance 1.
func newMatchState(id string, cfg Config, cat *catalog.Catalog, seed int64) *matchState {
	m := &matchState{
		id:         id,
		cfg:        cfg,
		status:     StatusWaiting,
		createdAt:  time.Now().UTC(),
		board:      rules.Board{},
		remaining:  make(map[string]int),
		reserved:   make(map[int]string),
		scoredKeys: make(map[string]bool),
		rng:        rand.New(rand.NewSource(seed)),
	}
	m.updatedAt = m.createdAt
	for tileID, n := range cat.Counts() {
		m.remaining[tileID] = n
	}
	start := cat.StartTileID()
	if cfg.Mode == ModeStandard && m.remaining[start] > 0 {
		m.remaining[start]--
		if m.remaining[start] == 0 {
			delete(m.remaining, start)
		}
	}
	m.board[rules.Coord{}] = &rules.PlacedTile{Instance: 1, TileID: start}
	m.nextInstance = 2
	return m
}

func (m *matchState) emit(ev Event) {
	ev.MatchID = m.id
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	m.pending = append(m.pending, ev)
}

func (m *matchState) takeEvents() []Event {
	evs := m.pending
	m.pending = nil
	return evs
}

func (m *matchState) touch() {
	m.updatedAt = time.Now().UTC()
}

// seat adds a player to the next free seat.
func (m *matchState) seat(token, name string) (*playerSlot, error) {
	if len(m.players) >= MaxPlayers {
		return nil, fmt.Errorf("match is full")
	}
	for _, p := range m.players {
		if p.Token == token {
			return nil, fmt.Errorf("session already seated")
		}
	}
	slot := &playerSlot{
		Token:       token,
		Name:        name,
		Number:      len(m.players) + 1,
		MeeplesLeft: m.cfg.MeepleBudget,
	}
	m.players = append(m.players, slot)
	return slot, nil
}

func (m *matchState) playerByToken(token string) (*playerSlot, error) {
	if token != "" {
		for _, p := range m.players {
			if p.Token == token {
				return p, nil
			}
		}
	}
	return nil, ErrNotSeated
}

// actingPlayer resolves the token to a seat and requires a running
// match.
func (m *matchState) actingPlayer(token string) (*playerSlot, error) {
	p, err := m.playerByToken(token)
	if err != nil {
		return nil, err
	}
	if m.status != StatusActive {
		return nil, fmt.Errorf("match is %s", m.status)
	}
	return p, nil
}

// otherPlayer is the opposing seat in a two-seat match.
func otherPlayer(n int) int {
	return MaxPlayers + 1 - n
}

// activate starts play once both seats are filled. The opening player
// is drawn at random.
func (m *matchState) activate(cat *catalog.Catalog) {
	m.status = StatusActive
	m.emit(Event{Type: EventMatchStarted})
	first := 1 + m.rng.Intn(len(m.players))
	if m.cfg.Mode == ModeParallel {
		m.openRound(cat, 1, first)
		return
	}
	m.turnPlayer = first
	m.turnNumber = 1
	m.beginTurn(cat)
}

// beginTurn draws the turn player's tile and prefetches for the ones
// waiting. Runs the match to its end when the pool is exhausted.
func (m *matchState) beginTurn(cat *catalog.Catalog) {
	tile, ok := m.nextPlaceableTile(cat, m.turnPlayer)
	if !ok {
		m.finish(cat)
		return
	}
	m.currentTile = tile
	m.prefetch(cat)
	m.emit(Event{Type: EventTurnStarted, Player: m.turnPlayer, TileID: tile})
}
