package game

import (
	"sort"

	"github.com/cloisterworks/cloister-server-go/internal/catalog"
	"github.com/cloisterworks/cloister-server-go/internal/game/rules"
)

// burnRetryLimit caps with-replacement redraws before the draw falls
// back to the placeable subset of the pool.
const burnRetryLimit = 32

// poolTotal is the number of undrawn tiles in the depleting pool.
func (m *matchState) poolTotal() int {
	total := 0
	for _, n := range m.remaining {
		total += n
	}
	return total
}

func sortedTileIDs(counts map[string]int) []string {
	ids := make([]string, 0, len(counts))
	for id, n := range counts {
		if n > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// weightedPick draws one tile id with probability proportional to its
// count. Iteration runs over sorted ids so the same rng state always
// produces the same pick.
func (m *matchState) weightedPick(counts map[string]int) (string, bool) {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total <= 0 {
		return "", false
	}
	k := m.rng.Intn(total)
	for _, id := range sortedTileIDs(counts) {
		k -= counts[id]
		if k < 0 {
			return id, true
		}
	}
	return "", false
}

// rebuildQueue reshuffles the undrawn remainder into a fresh draw
// order. The queue is a cache over the remaining counts: dropping it
// and rebuilding changes nothing observable.
func (m *matchState) rebuildQueue() {
	queue := make([]string, 0, m.poolTotal())
	for _, id := range sortedTileIDs(m.remaining) {
		for i := 0; i < m.remaining[id]; i++ {
			queue = append(queue, id)
		}
	}
	m.rng.Shuffle(len(queue), func(i, j int) {
		queue[i], queue[j] = queue[j], queue[i]
	})
	m.drawQueue = queue
}

// drawTile takes one tile from the pool. Standard mode depletes the
// remaining counts; the other modes draw with replacement from the
// base weights.
func (m *matchState) drawTile(cat *catalog.Catalog) (string, bool) {
	if m.cfg.Mode != ModeStandard {
		return m.weightedPick(cat.Counts())
	}
	if m.poolTotal() == 0 {
		return "", false
	}
	if len(m.drawQueue) == 0 {
		m.rebuildQueue()
	}
	id := m.drawQueue[0]
	m.drawQueue = m.drawQueue[1:]
	m.remaining[id]--
	if m.remaining[id] <= 0 {
		delete(m.remaining, id)
	}
	return id, true
}

func (m *matchState) takeReserved(player int) (string, bool) {
	tile, ok := m.reserved[player]
	if ok {
		delete(m.reserved, player)
	}
	return tile, ok
}

// nextPlaceableTile produces the tile the player will place this
// turn, consuming their reserved draw first. Tiles with no legal
// placement anywhere are burned publicly and drawing continues.
func (m *matchState) nextPlaceableTile(cat *catalog.Catalog, player int) (string, bool) {
	for attempt := 0; ; attempt++ {
		tile, ok := m.takeReserved(player)
		if !ok {
			tile, ok = m.drawTile(cat)
		}
		if !ok {
			return "", false
		}
		if rules.HasAnyPlacement(cat, m.board, tile) {
			return tile, true
		}
		m.burned = append(m.burned, tile)
		m.emit(Event{Type: EventTileBurned, Player: player, TileID: tile})
		if m.cfg.Mode != ModeStandard && attempt >= burnRetryLimit {
			return m.placeableByWeight(cat)
		}
	}
}

// placeableByWeight draws from the placeable subset of the base pool,
// still weighted by count. Returns false only when nothing fits the
// board at all.
func (m *matchState) placeableByWeight(cat *catalog.Catalog) (string, bool) {
	counts := make(map[string]int)
	for id, n := range cat.Counts() {
		if n > 0 && rules.HasAnyPlacement(cat, m.board, id) {
			counts[id] = n
		}
	}
	return m.weightedPick(counts)
}

// prefetch reserves the next draw for players waiting on their turn
// so the client can show it ahead of time. Reservations come out of
// the same pool as live draws.
func (m *matchState) prefetch(cat *catalog.Catalog) {
	for _, p := range m.players {
		if p.Number == m.turnPlayer {
			continue
		}
		if _, ok := m.reserved[p.Number]; ok {
			continue
		}
		if tile, ok := m.drawTile(cat); ok {
			m.reserved[p.Number] = tile
		}
	}
}

// dealOffers draws a placement-feasible offer of the configured size
// for each player. Offers repeat ids when the weights say so.
func (m *matchState) dealOffers(cat *catalog.Catalog) (map[int][]string, bool) {
	feasible := make(map[string]int)
	for id, n := range cat.Counts() {
		if n > 0 && rules.HasAnyPlacement(cat, m.board, id) {
			feasible[id] = n
		}
	}
	if len(feasible) == 0 {
		return nil, false
	}
	offers := make(map[int][]string, len(m.players))
	for _, p := range m.players {
		offer := make([]string, 0, m.cfg.SelectionSize)
		for i := 0; i < m.cfg.SelectionSize; i++ {
			id, ok := m.weightedPick(feasible)
			if !ok {
				break
			}
			offer = append(offer, id)
		}
		offers[p.Number] = offer
	}
	return offers, true
}
