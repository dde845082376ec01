// Package catalog loads and validates tile sets. A Catalog is an
// immutable description of every tile type in play: edge terrains,
// the features printed on each tile with their edge and half-edge
// ports, pennant tags, marker anchors and per-type draw counts. It is
// built once at startup and injected by value wherever tile data is
// needed; nothing in the engine mutates it.
package catalog

import (
	"fmt"
	"sort"
)

// Terrain is the primary terrain of a full tile edge.
type Terrain int

const (
	TerrainField Terrain = iota
	TerrainRoad
	TerrainCity
)

var terrainNames = map[Terrain]string{
	TerrainField: "field",
	TerrainRoad:  "road",
	TerrainCity:  "city",
}

func (t Terrain) String() string {
	if name, ok := terrainNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TERRAIN_%d", int(t))
}

// ParseTerrain converts a terrain code ("field", "road", "city") to a Terrain.
func ParseTerrain(code string) (Terrain, error) {
	for t, name := range terrainNames {
		if name == code {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown terrain %q", code)
}

// FeatureKind classifies a tile feature.
type FeatureKind int

const (
	KindField FeatureKind = iota
	KindRoad
	KindCity
	KindCloister
)

var featureKindNames = map[FeatureKind]string{
	KindField:    "field",
	KindRoad:     "road",
	KindCity:     "city",
	KindCloister: "cloister",
}

func (k FeatureKind) String() string {
	if name, ok := featureKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND_%d", int(k))
}

// ParseFeatureKind converts a feature kind code to a FeatureKind.
func ParseFeatureKind(code string) (FeatureKind, error) {
	for k, name := range featureKindNames {
		if name == code {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown feature kind %q", code)
}

// FeatureDef is one feature printed on a tile type. Roads and cities
// expose full-edge ports, fields expose half-edge ports, cloisters
// expose none. The anchor is the normalized tile-local point a client
// draws a placed marker at; it is stored unrotated.
type FeatureDef struct {
	ID       string
	Kind     FeatureKind
	Edges    []Edge
	Halves   []HalfEdge
	Pennants int
	Anchor   [2]float64
}

// TileDef is one tile type: four edge terrains plus the feature list.
type TileDef struct {
	ID       string
	Start    bool
	Edges    [EdgeCount]Terrain
	Features []FeatureDef
}

// Feature returns the feature with the given ID, or nil.
func (t *TileDef) Feature(id string) *FeatureDef {
	for i := range t.Features {
		if t.Features[i].ID == id {
			return &t.Features[i]
		}
	}
	return nil
}

// Catalog is a validated, immutable tile set.
type Catalog struct {
	defs        map[string]*TileDef
	ids         []string
	counts      map[string]int
	total       int
	startID     string
	fieldCities map[string]map[string][]string
}

// Tile returns the definition for a tile type ID.
func (c *Catalog) Tile(id string) (*TileDef, bool) {
	def, ok := c.defs[id]
	return def, ok
}

// TileIDs returns all tile type IDs in sorted order.
func (c *Catalog) TileIDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// Count returns the number of copies of a tile type in a fresh pool.
func (c *Catalog) Count(id string) int {
	return c.counts[id]
}

// Counts returns a copy of the full per-type draw counts.
func (c *Catalog) Counts() map[string]int {
	out := make(map[string]int, len(c.counts))
	for id, n := range c.counts {
		out[id] = n
	}
	return out
}

// TotalTiles returns the size of a fresh draw pool.
func (c *Catalog) TotalTiles() int {
	return c.total
}

// StartTileID returns the tile type seeded at the origin of every new
// match: the first tile flagged as a start type that has a positive
// count, falling back to the first ID in sorted order.
func (c *Catalog) StartTileID() string {
	return c.startID
}

// FieldCityNeighbors returns the IDs of city features on the same tile
// that border the given field feature. Field scoring uses this table to
// find the completed cities a field group feeds.
func (c *Catalog) FieldCityNeighbors(tileID, fieldID string) []string {
	byField, ok := c.fieldCities[tileID]
	if !ok {
		return nil
	}
	return byField[fieldID]
}

// cityEdgeFieldHalves lists, for a city occupying a full edge, the
// half-edge ports a field must hold to count as bordering that city:
// the near halves of the two flanking edges plus the edge's own halves.
var cityEdgeFieldHalves = [EdgeCount][]HalfEdge{
	EdgeNorth: {HalfNw, HalfNe, HalfWn, HalfEn},
	EdgeEast:  {HalfEn, HalfEs, HalfNe, HalfSe},
	EdgeSouth: {HalfSw, HalfSe, HalfWs, HalfEs},
	EdgeWest:  {HalfWn, HalfWs, HalfNw, HalfSw},
}

func buildFieldCityAdjacency(defs map[string]*TileDef) map[string]map[string][]string {
	adj := make(map[string]map[string][]string, len(defs))
	for tileID, def := range defs {
		byField := make(map[string][]string)
		for fi := range def.Features {
			field := &def.Features[fi]
			if field.Kind != KindField || len(field.Halves) == 0 {
				continue
			}
			halves := make(map[HalfEdge]bool, len(field.Halves))
			for _, h := range field.Halves {
				halves[h] = true
			}
			var cities []string
			for ci := range def.Features {
				city := &def.Features[ci]
				if city.Kind != KindCity {
					continue
				}
				if fieldBordersCity(halves, city.Edges) {
					cities = append(cities, city.ID)
				}
			}
			if len(cities) > 0 {
				sort.Strings(cities)
				byField[field.ID] = cities
			}
		}
		if len(byField) > 0 {
			adj[tileID] = byField
		}
	}
	return adj
}

func fieldBordersCity(fieldHalves map[HalfEdge]bool, cityEdges []Edge) bool {
	for _, e := range cityEdges {
		for _, h := range cityEdgeFieldHalves[e] {
			if fieldHalves[h] {
				return true
			}
		}
	}
	return false
}
