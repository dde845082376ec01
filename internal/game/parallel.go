package game

import (
	"fmt"
	"sort"

	"github.com/cloisterworks/cloister-server-go/internal/catalog"
	"github.com/cloisterworks/cloister-server-go/internal/game/rules"
)

// parallelIntent is a placement a player publishes for their picked
// tile during a round. A locked intent has passed board validation
// and only reopens through conflict resolution.
type parallelIntent struct {
	X, Y     int
	Rotation int
	Locked   bool
}

type conflictState struct {
	Kind    ConflictKind
	Players []int
	Detail  string
}

// meepleChoice tracks one player's claim for the round. The choice
// may change freely until confirmed.
type meepleChoice struct {
	Feature   string
	Confirmed bool
}

// parallelRound is one simultaneous placement round. Phases move
// pick -> place -> resolve (when needed) -> meeple, and only the
// transition functions below may advance them.
type parallelRound struct {
	Number      int
	Phase       RoundPhase
	TokenHolder int

	Offers   map[int][]string
	Picks    map[int]string
	Intents  map[int]*parallelIntent
	Conflict *conflictState

	Committed bool
	Instances map[int]int // player -> committed tile instance
	Choices   map[int]*meepleChoice
}

func (r *parallelRound) playerNumbers() []int {
	nums := make([]int, 0, len(r.Intents))
	for n := range r.Intents {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func (r *parallelRound) allLocked(players int) bool {
	if len(r.Intents) < players {
		return false
	}
	for _, in := range r.Intents {
		if !in.Locked {
			return false
		}
	}
	return true
}

// openRound starts the numbered round, dealing fresh offers. The
// match finishes instead when the round limit is reached or no tile
// fits the board any more.
func (m *matchState) openRound(cat *catalog.Catalog, number, tokenHolder int) {
	if m.cfg.MoveLimit > 0 && number > m.cfg.MoveLimit {
		m.finish(cat)
		return
	}
	offers, ok := m.dealOffers(cat)
	if !ok {
		m.finish(cat)
		return
	}
	m.turnNumber = number
	m.round = &parallelRound{
		Number:      number,
		Phase:       PhasePick,
		TokenHolder: tokenHolder,
		Offers:      offers,
		Picks:       make(map[int]string),
		Intents:     make(map[int]*parallelIntent),
		Instances:   make(map[int]int),
		Choices:     make(map[int]*meepleChoice),
	}
	m.emit(Event{Type: EventRoundOpened, Data: fmt.Sprintf("round %d", number)})
	m.lastEvent = fmt.Sprintf("round %d: pick tiles", number)
}

// pickTile fixes the player's tile for the round. Picking is
// one-shot; the round moves to placement once every player has
// picked.
func (m *matchState) pickTile(player, index int) error {
	r := m.round
	if r == nil || r.Phase != PhasePick {
		return fmt.Errorf("no tile pick is open")
	}
	if _, done := r.Picks[player]; done {
		return fmt.Errorf("tile already picked")
	}
	offer := r.Offers[player]
	if index < 0 || index >= len(offer) {
		return fmt.Errorf("offer index %d out of range", index)
	}
	r.Picks[player] = offer[index]
	m.emit(Event{Type: EventTilePicked, Player: player, TileID: offer[index]})
	if len(r.Picks) == len(m.players) {
		r.Phase = PhasePlace
		m.lastEvent = fmt.Sprintf("round %d: place tiles", r.Number)
	}
	return nil
}

// setParallelIntent publishes or locks the player's placement for
// their picked tile. Locking validates against the shared board;
// conflicts are evaluated once every intent is locked.
func (m *matchState) setParallelIntent(cat *catalog.Catalog, player, x, y, deg int, lock bool) error {
	r := m.round
	if r == nil || r.Phase != PhasePlace {
		return fmt.Errorf("placement is not open")
	}
	tile := r.Picks[player]
	if tile == "" {
		return fmt.Errorf("no tile picked")
	}
	if in := r.Intents[player]; in != nil && in.Locked {
		return fmt.Errorf("intent is already locked")
	}
	norm, err := catalog.NormalizeRotation(deg)
	if err != nil {
		return err
	}
	if lock {
		verdict := rules.CanPlace(cat, m.board, tile, norm, x, y)
		if !verdict.OK {
			return placementError(verdict)
		}
	}
	r.Intents[player] = &parallelIntent{X: x, Y: y, Rotation: norm, Locked: lock}
	if !lock {
		m.emit(Event{Type: EventIntentUpdated, Player: player, TileID: tile, X: x, Y: y, Rotation: norm})
		return nil
	}
	m.emit(Event{Type: EventIntentLocked, Player: player, TileID: tile, X: x, Y: y, Rotation: norm})
	if r.allLocked(len(m.players)) {
		m.settleIntents(cat)
	}
	return nil
}

// clearParallelIntent withdraws an unlocked intent.
func (m *matchState) clearParallelIntent(player int) error {
	r := m.round
	if r == nil || r.Phase != PhasePlace {
		return fmt.Errorf("placement is not open")
	}
	in := r.Intents[player]
	if in == nil {
		return nil
	}
	if in.Locked {
		return fmt.Errorf("intent is already locked")
	}
	delete(r.Intents, player)
	m.emit(Event{Type: EventIntentCleared, Player: player})
	return nil
}

// settleIntents runs conflict detection over the locked intents. A
// clean set commits immediately; otherwise the round parks in the
// resolve phase until the token holder rules on it.
func (m *matchState) settleIntents(cat *catalog.Catalog) {
	r := m.round
	if c := m.detectConflict(cat); c != nil {
		r.Conflict = c
		r.Phase = PhaseResolve
		m.emit(Event{Type: EventConflictDetected, Data: c.Detail})
		m.lastEvent = fmt.Sprintf("round %d: conflict, P%d holds the token", r.Number, r.TokenHolder)
		return
	}
	m.commitRound(cat)
}

func edgeToward(dx, dy int) (catalog.Edge, bool) {
	for e := catalog.Edge(0); e < catalog.EdgeCount; e++ {
		ex, ey := e.Delta()
		if ex == dx && ey == dy {
			return e, true
		}
	}
	return 0, false
}

// detectConflict reports the first conflict between locked intents in
// a fixed order: same-cell collisions over ascending player pairs
// first, then incompatible shared edges.
func (m *matchState) detectConflict(cat *catalog.Catalog) *conflictState {
	r := m.round
	nums := r.playerNumbers()
	for i := 0; i < len(nums); i++ {
		for j := i + 1; j < len(nums); j++ {
			a, b := r.Intents[nums[i]], r.Intents[nums[j]]
			if a.X == b.X && a.Y == b.Y {
				return &conflictState{
					Kind:    ConflictSameCell,
					Players: []int{nums[i], nums[j]},
					Detail:  fmt.Sprintf("both tiles target %d,%d", a.X, a.Y),
				}
			}
		}
	}
	for i := 0; i < len(nums); i++ {
		for j := i + 1; j < len(nums); j++ {
			pa, pb := nums[i], nums[j]
			a, b := r.Intents[pa], r.Intents[pb]
			side, ok := edgeToward(b.X-a.X, b.Y-a.Y)
			if !ok {
				continue
			}
			ta := rules.Rotated(cat, r.Picks[pa], a.Rotation)
			tb := rules.Rotated(cat, r.Picks[pb], b.Rotation)
			if ta.Edges[side] != tb.Edges[side.Opposite()] {
				return &conflictState{
					Kind:    ConflictEdgeMismatch,
					Players: []int{pa, pb},
					Detail:  fmt.Sprintf("%s edge of %d,%d does not match", side, a.X, a.Y),
				}
			}
		}
	}
	return nil
}

// resolveConflict lets the token holder settle the standing conflict.
// Retreat reopens the holder's own placement and keeps the token;
// burn passes the token to the other conflicted player and reopens
// theirs.
func (m *matchState) resolveConflict(player int, action ResolveAction) error {
	r := m.round
	if r == nil || r.Phase != PhaseResolve || r.Conflict == nil {
		return fmt.Errorf("no conflict to resolve")
	}
	if player != r.TokenHolder {
		return fmt.Errorf("priority token required")
	}
	other := 0
	for _, p := range r.Conflict.Players {
		if p != player {
			other = p
		}
	}
	switch action {
	case ResolveRetreat:
		delete(r.Intents, player)
	case ResolveBurn:
		if other == 0 {
			return fmt.Errorf("no opponent in conflict")
		}
		delete(r.Intents, other)
		r.TokenHolder = other
	default:
		return fmt.Errorf("unknown resolve action %d", int(action))
	}
	r.Conflict = nil
	r.Phase = PhasePlace
	m.emit(Event{Type: EventConflictResolved, Player: player, Data: action.String()})
	m.lastEvent = fmt.Sprintf("round %d: conflict resolved by %s", r.Number, action)
	return nil
}

// commitRound writes both picked tiles onto the board in one step, in
// ascending player order, then opens meeple selection. The intents
// were each validated against the shared board and vetted against
// each other, so writing them together cannot produce an illegal
// board.
func (m *matchState) commitRound(cat *catalog.Catalog) {
	r := m.round
	for _, p := range r.playerNumbers() {
		in := r.Intents[p]
		placed := &rules.PlacedTile{
			Instance: m.nextInstance,
			TileID:   r.Picks[p],
			Rotation: in.Rotation,
		}
		m.board[rules.Coord{X: in.X, Y: in.Y}] = placed
		r.Instances[p] = placed.Instance
		m.nextInstance++
		m.emit(Event{Type: EventTilePlaced, Player: p, TileID: placed.TileID, X: in.X, Y: in.Y, Rotation: in.Rotation})
	}
	r.Committed = true
	r.Phase = PhaseMeeple
	m.emit(Event{Type: EventRoundCommitted, Data: fmt.Sprintf("round %d", r.Number)})
	m.lastEvent = fmt.Sprintf("round %d: choose meeples", r.Number)
}

// chooseMeeple records the player's claim for their committed tile.
// The claim may be changed or emptied until confirmed; an empty
// feature id means no meeple this round.
func (m *matchState) chooseMeeple(cat *catalog.Catalog, player int, featureID string) error {
	r := m.round
	if r == nil || r.Phase != PhaseMeeple {
		return fmt.Errorf("meeple selection is not open")
	}
	if mc := r.Choices[player]; mc != nil && mc.Confirmed {
		return fmt.Errorf("meeple already confirmed")
	}
	if featureID != "" {
		if err := m.checkMeepleClaim(cat, player, featureID); err != nil {
			return err
		}
	}
	r.Choices[player] = &meepleChoice{Feature: featureID}
	return nil
}

// checkMeepleClaim validates a claim against the board as committed.
// The other player's unconfirmed choice is not held against it, so
// both players may end up sharing a group.
func (m *matchState) checkMeepleClaim(cat *catalog.Catalog, player int, featureID string) error {
	r := m.round
	slot := m.players[player-1]
	if slot.MeeplesLeft <= 0 {
		return fmt.Errorf("no meeples left")
	}
	in := r.Intents[player]
	tile := r.Picks[player]
	rt := rules.Rotated(cat, tile, in.Rotation)
	if rt.Feature(featureID) == nil {
		return fmt.Errorf("tile %s has no feature %s", tile, featureID)
	}
	analysis := rules.Analyze(cat, m.board)
	node := rules.FeatureNode{Instance: r.Instances[player], Feature: featureID}
	if g, ok := analysis.GroupOf(node); ok && groupOccupied(g) {
		return fmt.Errorf("feature is already claimed")
	}
	return nil
}

// confirmMeeple finalizes the player's claim. Confirming twice is a
// no-op. Once both players have confirmed, the claims are applied in
// ascending player order, completed groups are scored and the next
// round opens.
func (m *matchState) confirmMeeple(cat *catalog.Catalog, player int) error {
	r := m.round
	if r == nil || r.Phase != PhaseMeeple {
		return fmt.Errorf("meeple selection is not open")
	}
	mc := r.Choices[player]
	if mc == nil {
		mc = &meepleChoice{}
		r.Choices[player] = mc
	}
	if mc.Confirmed {
		return nil
	}
	if mc.Feature != "" {
		if err := m.checkMeepleClaim(cat, player, mc.Feature); err != nil {
			return err
		}
	}
	mc.Confirmed = true
	m.emit(Event{Type: EventMeepleConfirmed, Player: player, Data: mc.Feature})
	for _, p := range m.players {
		c := r.Choices[p.Number]
		if c == nil || !c.Confirmed {
			return nil
		}
	}
	m.applyMeeples(cat)
	return nil
}

// applyMeeples places every confirmed claim, scores the round and
// opens the next one. Claims were validated at confirm time; two
// claims landing in one group stand as a shared claim.
func (m *matchState) applyMeeples(cat *catalog.Catalog) {
	r := m.round
	for _, p := range m.players {
		c := r.Choices[p.Number]
		if c == nil || c.Feature == "" {
			continue
		}
		placed := m.tileByInstance(r.Instances[p.Number])
		slot := m.players[p.Number-1]
		if placed == nil || slot.MeeplesLeft <= 0 {
			continue
		}
		placed.Meeples = append(placed.Meeples, rules.Meeple{Player: p.Number, FeatureID: c.Feature})
		slot.MeeplesLeft--
		m.emit(Event{Type: EventMeeplePlaced, Player: p.Number, TileID: placed.TileID, Data: c.Feature})
	}
	m.scoreCompleted(cat)
	if m.status != StatusActive {
		return
	}
	number, holder := r.Number+1, r.TokenHolder
	m.round = nil
	m.openRound(cat, number, holder)
}

func (m *matchState) tileByInstance(instance int) *rules.PlacedTile {
	for _, pt := range m.board {
		if pt.Instance == instance {
			return pt
		}
	}
	return nil
}
