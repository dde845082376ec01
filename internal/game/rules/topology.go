package rules

import (
	"fmt"

	"github.com/cloisterworks/cloister-server-go/internal/catalog"
)

// RotatedFeature is one feature of a tile type viewed under a rotation.
// Ports are mapped into world orientation; the anchor stays tile-local.
type RotatedFeature struct {
	ID       string
	Kind     catalog.FeatureKind
	Edges    []catalog.Edge
	Halves   []catalog.HalfEdge
	Pennants int
	Anchor   [2]float64
}

// RotatedTile is a tile type viewed under a rotation: edge terrains and
// feature ports in world orientation.
type RotatedTile struct {
	TileID   string
	Rotation int
	Edges    [catalog.EdgeCount]catalog.Terrain
	Features []RotatedFeature
}

// Feature returns the rotated feature with the given ID, or nil.
func (rt *RotatedTile) Feature(id string) *RotatedFeature {
	for i := range rt.Features {
		if rt.Features[i].ID == id {
			return &rt.Features[i]
		}
	}
	return nil
}

// Rotated returns the given tile type under deg degrees of clockwise
// rotation. Tile IDs come from the validated catalog, so an unknown ID
// is a programming error and panics.
func Rotated(cat *catalog.Catalog, tileID string, deg int) RotatedTile {
	def, ok := cat.Tile(tileID)
	if !ok {
		panic(fmt.Sprintf("rotate of unknown tile type %q", tileID))
	}
	norm, err := catalog.NormalizeRotation(deg)
	if err != nil {
		panic(err.Error())
	}

	rt := RotatedTile{TileID: tileID, Rotation: norm}
	for e := catalog.Edge(0); e < catalog.EdgeCount; e++ {
		rt.Edges[e.Rotate(norm)] = def.Edges[e]
	}
	rt.Features = make([]RotatedFeature, 0, len(def.Features))
	for i := range def.Features {
		src := &def.Features[i]
		feat := RotatedFeature{
			ID:       src.ID,
			Kind:     src.Kind,
			Pennants: src.Pennants,
			Anchor:   src.Anchor,
		}
		for _, edge := range src.Edges {
			feat.Edges = append(feat.Edges, edge.Rotate(norm))
		}
		for _, half := range src.Halves {
			feat.Halves = append(feat.Halves, half.Rotate(norm))
		}
		rt.Features = append(rt.Features, feat)
	}
	return rt
}

// PlacementVerdict is the result of a placement legality check.
type PlacementVerdict struct {
	OK      bool
	Reason  string
	Details map[string]string
}

var edgeCheckOrder = [catalog.EdgeCount]catalog.Edge{
	catalog.EdgeNorth, catalog.EdgeEast, catalog.EdgeSouth, catalog.EdgeWest,
}

// CanPlace checks whether the tile may be placed at the cell under the
// given rotation: the cell must be in bounds and empty, every edge
// shared with a neighbor must present the same primary terrain on both
// sides, and on a non-empty board the tile must touch at least one
// placed tile. Checks run in a fixed order so the verdict for a given
// position is deterministic.
func CanPlace(cat *catalog.Catalog, b Board, tileID string, deg, x, y int) PlacementVerdict {
	cell := Coord{X: x, Y: y}
	if !cell.InBounds() {
		return PlacementVerdict{Reason: "Out of board bounds"}
	}
	if _, occupied := b[cell]; occupied {
		return PlacementVerdict{Reason: "Cell occupied"}
	}

	rt := Rotated(cat, tileID, deg)
	touches := false
	for _, e := range edgeCheckOrder {
		neighbor, ok := b[cell.Neighbor(e)]
		if !ok {
			continue
		}
		touches = true
		opp := e.Opposite()
		nt := Rotated(cat, neighbor.TileID, neighbor.Rotation)
		if rt.Edges[e] != nt.Edges[opp] {
			return PlacementVerdict{
				Reason: "Edge terrain mismatch",
				Details: map[string]string{
					"edge":             e.String(),
					"terrain":          rt.Edges[e].String(),
					"neighbor_edge":    opp.String(),
					"neighbor_terrain": nt.Edges[opp].String(),
				},
			}
		}
	}
	if len(b) > 0 && !touches {
		return PlacementVerdict{Reason: "Tile must touch at least one placed tile"}
	}
	return PlacementVerdict{OK: true}
}

// Frontier returns the candidate cells for the next placement: the
// origin on an empty board, otherwise every empty in-bounds neighbor
// of an occupied cell. Cells come back in deterministic board order.
func Frontier(b Board) []Coord {
	if len(b) == 0 {
		return []Coord{{X: 0, Y: 0}}
	}
	seen := make(map[Coord]bool, len(b)*2)
	var frontier []Coord
	for cell := range b {
		for _, e := range edgeCheckOrder {
			n := cell.Neighbor(e)
			if seen[n] {
				continue
			}
			seen[n] = true
			if !n.InBounds() {
				continue
			}
			if _, occupied := b[n]; occupied {
				continue
			}
			frontier = append(frontier, n)
		}
	}
	sortCoords(frontier)
	return frontier
}

var rotationChoices = [4]int{0, 90, 180, 270}

// HasAnyPlacement reports whether the tile can legally go anywhere on
// the board under any rotation. The draw loop uses this to burn tiles
// that cannot be played.
func HasAnyPlacement(cat *catalog.Catalog, b Board, tileID string) bool {
	for _, cell := range Frontier(b) {
		for _, deg := range rotationChoices {
			if CanPlace(cat, b, tileID, deg, cell.X, cell.Y).OK {
				return true
			}
		}
	}
	return false
}

// Placement is one legal way to put a tile on a board.
type Placement struct {
	Cell     Coord
	Rotation int
}

// Placements lists every legal frontier placement for the tile, in
// deterministic board order.
func Placements(cat *catalog.Catalog, b Board, tileID string) []Placement {
	var out []Placement
	for _, cell := range Frontier(b) {
		for _, deg := range rotationChoices {
			if CanPlace(cat, b, tileID, deg, cell.X, cell.Y).OK {
				out = append(out, Placement{Cell: cell, Rotation: deg})
			}
		}
	}
	return out
}
