package catalog

import "fmt"

// Edge identifies one of the four full tile edges.
type Edge int

const (
	EdgeNorth Edge = iota
	EdgeEast
	EdgeSouth
	EdgeWest
)

// EdgeCount is the number of full edges on a tile.
const EdgeCount = 4

var edgeNames = map[Edge]string{
	EdgeNorth: "N",
	EdgeEast:  "E",
	EdgeSouth: "S",
	EdgeWest:  "W",
}

func (e Edge) String() string {
	if name, ok := edgeNames[e]; ok {
		return name
	}
	return fmt.Sprintf("EDGE_%d", int(e))
}

// ParseEdge converts an edge code ("N", "E", "S", "W") to an Edge.
func ParseEdge(code string) (Edge, error) {
	for e, name := range edgeNames {
		if name == code {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown edge code %q", code)
}

// Opposite returns the edge a neighboring tile presents across this one.
func (e Edge) Opposite() Edge {
	return (e + 2) % EdgeCount
}

// RotateCW returns the edge this edge maps to under one 90-degree
// clockwise rotation of the tile.
func (e Edge) RotateCW() Edge {
	return (e + 1) % EdgeCount
}

// Rotate applies deg degrees of clockwise rotation. deg must be a
// multiple of 90; callers validate user-supplied rotations first.
func (e Edge) Rotate(deg int) Edge {
	return (e + Edge(rotationSteps(deg))) % EdgeCount
}

// Delta returns the board-coordinate offset of the neighbor across this
// edge. The y axis grows downward, so north is (0, -1).
func (e Edge) Delta() (dx, dy int) {
	switch e {
	case EdgeNorth:
		return 0, -1
	case EdgeEast:
		return 1, 0
	case EdgeSouth:
		return 0, 1
	case EdgeWest:
		return -1, 0
	}
	panic(fmt.Sprintf("delta of invalid edge %d", int(e)))
}

// HalfEdge identifies one half of a tile edge. The first letter names
// the edge, the second the end of that edge the half sits on ("En" is
// the east edge, north half). Field features attach to half edges so
// that a road or city running through an edge can split the farmland
// on either side of it.
type HalfEdge int

const (
	HalfNw HalfEdge = iota
	HalfNe
	HalfEn
	HalfEs
	HalfSe
	HalfSw
	HalfWs
	HalfWn
)

// HalfEdgeCount is the number of half edges on a tile.
const HalfEdgeCount = 8

var halfEdgeNames = map[HalfEdge]string{
	HalfNw: "Nw",
	HalfNe: "Ne",
	HalfEn: "En",
	HalfEs: "Es",
	HalfSe: "Se",
	HalfSw: "Sw",
	HalfWs: "Ws",
	HalfWn: "Wn",
}

func (h HalfEdge) String() string {
	if name, ok := halfEdgeNames[h]; ok {
		return name
	}
	return fmt.Sprintf("HALF_%d", int(h))
}

// ParseHalfEdge converts a half-edge code ("Nw", "En", ...) to a HalfEdge.
func ParseHalfEdge(code string) (HalfEdge, error) {
	for h, name := range halfEdgeNames {
		if name == code {
			return h, nil
		}
	}
	return 0, fmt.Errorf("unknown half-edge code %q", code)
}

// Edge returns the full edge this half belongs to. The constant order
// groups the two halves of each edge together, so the mapping is a
// simple division.
func (h HalfEdge) Edge() Edge {
	return Edge(h / 2)
}

// RotateCW returns the half edge this half maps to under one 90-degree
// clockwise rotation. The declaration order makes clockwise rotation a
// uniform +2 step: Nw->En->Se->Ws and Ne->Es->Sw->Wn.
func (h HalfEdge) RotateCW() HalfEdge {
	return (h + 2) % HalfEdgeCount
}

// Rotate applies deg degrees of clockwise rotation. deg must be a
// multiple of 90.
func (h HalfEdge) Rotate(deg int) HalfEdge {
	return (h + HalfEdge(2*rotationSteps(deg))) % HalfEdgeCount
}

var facingHalves = [HalfEdgeCount]HalfEdge{
	HalfNw: HalfSw,
	HalfNe: HalfSe,
	HalfEn: HalfWn,
	HalfEs: HalfWs,
	HalfSe: HalfNe,
	HalfSw: HalfNw,
	HalfWs: HalfEs,
	HalfWn: HalfEn,
}

// Facing returns the half edge of the neighboring tile that touches
// this half across the shared edge. Both halves sit at the same end of
// the edge: En on one tile touches Wn on its east neighbor.
func (h HalfEdge) Facing() HalfEdge {
	return facingHalves[h]
}

// NormalizeRotation reduces an arbitrary degree value to the canonical
// 0, 90, 180 or 270. It reports an error for values that are not a
// multiple of 90, which is the validation entry point for rotations
// arriving from outside the process.
func NormalizeRotation(deg int) (int, error) {
	norm := ((deg % 360) + 360) % 360
	if norm%90 != 0 {
		return 0, fmt.Errorf("rotation %d is not a multiple of 90", deg)
	}
	return norm, nil
}

func rotationSteps(deg int) int {
	norm, err := NormalizeRotation(deg)
	if err != nil {
		panic(err.Error())
	}
	return norm / 90
}

// RotateAnchor maps a normalized tile-local anchor point into the
// world-space orientation of a tile rotated deg degrees clockwise.
// Anchors in the catalog are stored unrotated; rendering callers apply
// this transform themselves.
func RotateAnchor(x, y float64, deg int) (float64, float64) {
	switch rotationSteps(deg) {
	case 1:
		return 1 - y, x
	case 2:
		return 1 - x, 1 - y
	case 3:
		return y, 1 - x
	default:
		return x, y
	}
}
