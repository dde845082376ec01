// Package rules implements the shared placement, connectivity and
// scoring rules for tile matches. Everything here is pure: functions
// take a catalog and a board snapshot and return verdicts or analysis
// results without touching any match state. The same code backs live
// legality checks, provisional what-if evaluation and final scoring,
// so the three can never disagree.
package rules

import (
	"fmt"
	"sort"

	"github.com/cloisterworks/cloister-server-go/internal/catalog"
)

// BoardHalfSpan bounds the play area to a square of
// (2*BoardHalfSpan+1)^2 cells centered on the origin.
const BoardHalfSpan = 12

// Coord addresses a board cell. The y axis grows downward, so the
// northern neighbor of (0,0) is (0,-1).
type Coord struct {
	X int
	Y int
}

func (c Coord) String() string {
	return fmt.Sprintf("%d,%d", c.X, c.Y)
}

// Neighbor returns the cell across the given edge.
func (c Coord) Neighbor(e catalog.Edge) Coord {
	dx, dy := e.Delta()
	return Coord{X: c.X + dx, Y: c.Y + dy}
}

// InBounds reports whether the cell lies inside the play area.
func (c Coord) InBounds() bool {
	return c.X >= -BoardHalfSpan && c.X <= BoardHalfSpan &&
		c.Y >= -BoardHalfSpan && c.Y <= BoardHalfSpan
}

// Meeple is a follower standing on one feature of a placed tile.
type Meeple struct {
	Player    int
	FeatureID string
}

// PlacedTile is one tile instance on the board. Instance numbers are
// assigned by the match in placement order and never reused, so a
// (instance, feature) pair identifies a feature for the lifetime of
// the match.
type PlacedTile struct {
	Instance int
	TileID   string
	Rotation int
	Meeples  []Meeple
}

// Board maps occupied cells to placed tiles.
type Board map[Coord]*PlacedTile

// Cells returns the occupied cells in deterministic order (y, then x).
func (b Board) Cells() []Coord {
	out := make([]Coord, 0, len(b))
	for c := range b {
		out = append(out, c)
	}
	sortCoords(out)
	return out
}

func sortCoords(cs []Coord) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Y != cs[j].Y {
			return cs[i].Y < cs[j].Y
		}
		return cs[i].X < cs[j].X
	})
}

// Clone returns a deep copy of the board.
func (b Board) Clone() Board {
	out := make(Board, len(b))
	for c, pt := range b {
		cp := *pt
		if len(pt.Meeples) > 0 {
			cp.Meeples = make([]Meeple, len(pt.Meeples))
			copy(cp.Meeples, pt.Meeples)
		}
		out[c] = &cp
	}
	return out
}
