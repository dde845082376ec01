package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cloisterworks/cloister-server-go/internal/catalog"
)

// FeatureNode identifies one feature on one placed tile instance.
// Nodes are never merged or renamed; connectivity between them lives
// only in the analysis that produced them.
type FeatureNode struct {
	Instance int
	Feature  string
}

func (n FeatureNode) String() string {
	return fmt.Sprintf("%d:%s", n.Instance, n.Feature)
}

// FeatureGroup is one connected component of same-kind features.
type FeatureGroup struct {
	Kind catalog.FeatureKind

	// Key is the stable identity of the group: the kind plus the sorted
	// member nodes. Any placement that changes the member set changes
	// the key, which is what makes score-once bookkeeping safe.
	Key string

	Nodes           []FeatureNode
	Tiles           []int
	Pennants        int
	MeeplesByPlayer map[int]int

	Complete  bool
	OpenPorts []string

	// AdjacentTiles is the occupied count of the eight cells around a
	// cloister's tile.
	AdjacentTiles int

	// AdjacentCompletedCities holds the keys of the distinct completed
	// city groups a field group touches.
	AdjacentCompletedCities []string
}

// Analysis is the result of a full-board connectivity pass. It is
// rebuilt from scratch on demand and never updated incrementally.
type Analysis struct {
	groups []*FeatureGroup
	byNode map[FeatureNode]*FeatureGroup
}

// Groups returns all feature groups ordered by key.
func (a *Analysis) Groups() []*FeatureGroup {
	return a.groups
}

// GroupOf returns the group containing the given feature node.
func (a *Analysis) GroupOf(n FeatureNode) (*FeatureGroup, bool) {
	g, ok := a.byNode[n]
	return g, ok
}

// GroupsOfKind returns the groups of one kind, ordered by key.
func (a *Analysis) GroupsOfKind(kind catalog.FeatureKind) []*FeatureGroup {
	var out []*FeatureGroup
	for _, g := range a.groups {
		if g.Kind == kind {
			out = append(out, g)
		}
	}
	return out
}

type nodeMeta struct {
	node     FeatureNode
	kind     catalog.FeatureKind
	cell     Coord
	tileID   string
	edges    []catalog.Edge
	halves   []catalog.HalfEdge
	pennants int
}

var (
	eastHalves  = [2]catalog.HalfEdge{catalog.HalfEn, catalog.HalfEs}
	southHalves = [2]catalog.HalfEdge{catalog.HalfSw, catalog.HalfSe}
)

// Analyze computes the connected feature groups of a board: one node
// per feature per placed tile, unioned across shared edges (full edges
// for roads and cities, half edges for fields), with completion state
// and meeple occupancy per group. Two calls on the same board always
// produce the same partition, keys and flags.
func Analyze(cat *catalog.Catalog, b Board) *Analysis {
	cells := b.Cells()

	// Register one node per feature and build per-cell port lookups in
	// world orientation.
	var metas []nodeMeta
	index := make(map[FeatureNode]int)
	roadAt := make(map[Coord]map[catalog.Edge]int, len(cells))
	cityAt := make(map[Coord]map[catalog.Edge]int, len(cells))
	fieldAt := make(map[Coord]map[catalog.HalfEdge]int, len(cells))

	for _, cell := range cells {
		pt := b[cell]
		rt := Rotated(cat, pt.TileID, pt.Rotation)
		for fi := range rt.Features {
			feat := &rt.Features[fi]
			node := FeatureNode{Instance: pt.Instance, Feature: feat.ID}
			idx := len(metas)
			index[node] = idx
			metas = append(metas, nodeMeta{
				node:     node,
				kind:     feat.Kind,
				cell:     cell,
				tileID:   pt.TileID,
				edges:    feat.Edges,
				halves:   feat.Halves,
				pennants: feat.Pennants,
			})
			switch feat.Kind {
			case catalog.KindRoad:
				for _, e := range feat.Edges {
					portMap(roadAt, cell)[e] = idx
				}
			case catalog.KindCity:
				for _, e := range feat.Edges {
					portMap(cityAt, cell)[e] = idx
				}
			case catalog.KindField:
				for _, h := range feat.Halves {
					halfMap(fieldAt, cell)[h] = idx
				}
			}
		}
	}

	// Union across each shared edge. Only the east and south neighbors
	// are visited so every adjacency is handled exactly once.
	d := newDisjointSet(len(metas))
	for _, cell := range cells {
		if east := cell.Neighbor(catalog.EdgeEast); has(b, east) {
			unionPort(d, roadAt[cell], catalog.EdgeEast, roadAt[east], catalog.EdgeWest)
			unionPort(d, cityAt[cell], catalog.EdgeEast, cityAt[east], catalog.EdgeWest)
			for _, h := range eastHalves {
				unionHalf(d, fieldAt[cell], h, fieldAt[east], h.Facing())
			}
		}
		if south := cell.Neighbor(catalog.EdgeSouth); has(b, south) {
			unionPort(d, roadAt[cell], catalog.EdgeSouth, roadAt[south], catalog.EdgeNorth)
			unionPort(d, cityAt[cell], catalog.EdgeSouth, cityAt[south], catalog.EdgeNorth)
			for _, h := range southHalves {
				unionHalf(d, fieldAt[cell], h, fieldAt[south], h.Facing())
			}
		}
	}

	// Collect components.
	byRoot := make(map[int]*FeatureGroup)
	var groups []*FeatureGroup
	byNode := make(map[FeatureNode]*FeatureGroup, len(metas))
	for i := range metas {
		root := d.find(i)
		g, ok := byRoot[root]
		if !ok {
			g = &FeatureGroup{Kind: metas[i].kind, MeeplesByPlayer: make(map[int]int)}
			byRoot[root] = g
			groups = append(groups, g)
		}
		g.Nodes = append(g.Nodes, metas[i].node)
		if metas[i].kind == catalog.KindCity {
			g.Pennants += metas[i].pennants
		}
		byNode[metas[i].node] = g
	}
	for _, g := range groups {
		sort.Slice(g.Nodes, func(i, j int) bool {
			if g.Nodes[i].Instance != g.Nodes[j].Instance {
				return g.Nodes[i].Instance < g.Nodes[j].Instance
			}
			return g.Nodes[i].Feature < g.Nodes[j].Feature
		})
		g.Tiles = uniqueInstances(g.Nodes)
		g.Key = groupKey(g.Kind, g.Nodes)
	}

	// Meeple occupancy.
	for _, cell := range cells {
		pt := b[cell]
		for _, m := range pt.Meeples {
			if g, ok := byNode[FeatureNode{Instance: pt.Instance, Feature: m.FeatureID}]; ok {
				g.MeeplesByPlayer[m.Player]++
			}
		}
	}

	// Completion. Roads, cities and cloisters first; fields read the
	// completed city groups and so come last.
	for _, g := range groups {
		switch g.Kind {
		case catalog.KindRoad, catalog.KindCity:
			lookup := roadAt
			if g.Kind == catalog.KindCity {
				lookup = cityAt
			}
			var open []string
			for _, node := range g.Nodes {
				m := &metas[index[node]]
				for _, e := range m.edges {
					ncell := m.cell.Neighbor(e)
					if !has(b, ncell) {
						open = append(open, m.cell.String()+":"+e.String())
						continue
					}
					if _, ok := lookup[ncell][e.Opposite()]; !ok {
						open = append(open, m.cell.String()+":"+e.String())
					}
				}
			}
			sort.Strings(open)
			g.OpenPorts = open
			g.Complete = len(open) == 0
		case catalog.KindCloister:
			m := &metas[index[g.Nodes[0]]]
			count := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					if has(b, Coord{X: m.cell.X + dx, Y: m.cell.Y + dy}) {
						count++
					}
				}
			}
			g.AdjacentTiles = count
			g.Complete = count == 8
		}
	}
	for _, g := range groups {
		if g.Kind != catalog.KindField {
			continue
		}
		seen := make(map[string]bool)
		var cities []string
		for _, node := range g.Nodes {
			m := &metas[index[node]]
			for _, cityID := range cat.FieldCityNeighbors(m.tileID, node.Feature) {
				cg, ok := byNode[FeatureNode{Instance: node.Instance, Feature: cityID}]
				if !ok || !cg.Complete || seen[cg.Key] {
					continue
				}
				seen[cg.Key] = true
				cities = append(cities, cg.Key)
			}
		}
		sort.Strings(cities)
		g.AdjacentCompletedCities = cities
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return &Analysis{groups: groups, byNode: byNode}
}

func has(b Board, c Coord) bool {
	_, ok := b[c]
	return ok
}

func portMap(m map[Coord]map[catalog.Edge]int, c Coord) map[catalog.Edge]int {
	inner, ok := m[c]
	if !ok {
		inner = make(map[catalog.Edge]int, 4)
		m[c] = inner
	}
	return inner
}

func halfMap(m map[Coord]map[catalog.HalfEdge]int, c Coord) map[catalog.HalfEdge]int {
	inner, ok := m[c]
	if !ok {
		inner = make(map[catalog.HalfEdge]int, 8)
		m[c] = inner
	}
	return inner
}

func unionPort(d *disjointSet, a map[catalog.Edge]int, ea catalog.Edge, b map[catalog.Edge]int, eb catalog.Edge) {
	ia, ok := a[ea]
	if !ok {
		return
	}
	ib, ok := b[eb]
	if !ok {
		return
	}
	d.union(ia, ib)
}

func unionHalf(d *disjointSet, a map[catalog.HalfEdge]int, ha catalog.HalfEdge, b map[catalog.HalfEdge]int, hb catalog.HalfEdge) {
	ia, ok := a[ha]
	if !ok {
		return
	}
	ib, ok := b[hb]
	if !ok {
		return
	}
	d.union(ia, ib)
}

func uniqueInstances(nodes []FeatureNode) []int {
	seen := make(map[int]bool, len(nodes))
	var out []int
	for _, n := range nodes {
		if !seen[n.Instance] {
			seen[n.Instance] = true
			out = append(out, n.Instance)
		}
	}
	sort.Ints(out)
	return out
}

func groupKey(kind catalog.FeatureKind, sortedNodes []FeatureNode) string {
	parts := make([]string, len(sortedNodes))
	for i, n := range sortedNodes {
		parts[i] = n.String()
	}
	return kind.String() + "|" + strings.Join(parts, "/")
}
