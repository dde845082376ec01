package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

//go:embed base_tileset.json
var baseTilesetJSON []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded base tile set. The data ships inside the
// binary and is covered by the package tests, so a parse failure here
// is a build defect and panics.
func Default() *Catalog {
	defaultOnce.Do(func() {
		cat, err := Parse(baseTilesetJSON)
		if err != nil {
			panic(fmt.Sprintf("embedded tile set invalid: %v", err))
		}
		defaultCatalog = cat
	})
	return defaultCatalog
}

// Load reads and parses a tile set file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tile set: %w", err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("tile set %s: %w", path, err)
	}
	return cat, nil
}

type tilesetFile struct {
	Tiles      []tileJSON     `json:"tiles"`
	TileCounts map[string]int `json:"tile_counts"`
}

type tileJSON struct {
	ID            string              `json:"id"`
	StartTileType bool                `json:"is_start_tile_type"`
	Edges         map[string]edgeJSON `json:"edges"`
	Features      []featureJSON       `json:"features"`
}

type edgeJSON struct {
	Primary string `json:"primary"`
}

type featureJSON struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Ports           []string       `json:"ports"`
	Tags            map[string]int `json:"tags"`
	MeeplePlacement []float64      `json:"meeple_placement"`
}

// Parse decodes and validates a tile set. All structural problems are
// reported at load time so the rules engine can treat catalog data as
// trusted from then on.
func Parse(data []byte) (*Catalog, error) {
	var file tilesetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode tile set: %w", err)
	}
	if len(file.Tiles) == 0 {
		return nil, fmt.Errorf("tile set has no tiles")
	}

	defs := make(map[string]*TileDef, len(file.Tiles))
	ids := make([]string, 0, len(file.Tiles))
	startID := ""
	for i := range file.Tiles {
		def, err := parseTile(&file.Tiles[i])
		if err != nil {
			return nil, err
		}
		if _, dup := defs[def.ID]; dup {
			return nil, fmt.Errorf("duplicate tile id %q", def.ID)
		}
		defs[def.ID] = def
		ids = append(ids, def.ID)
		if startID == "" && def.Start && file.TileCounts[def.ID] > 0 {
			startID = def.ID
		}
	}
	sort.Strings(ids)

	counts := make(map[string]int, len(file.TileCounts))
	total := 0
	for id, n := range file.TileCounts {
		if _, ok := defs[id]; !ok {
			return nil, fmt.Errorf("tile_counts references unknown tile %q", id)
		}
		if n < 0 {
			return nil, fmt.Errorf("tile %q has negative count %d", id, n)
		}
		counts[id] = n
		total += n
	}
	if total == 0 {
		return nil, fmt.Errorf("tile set draw pool is empty")
	}
	if startID == "" {
		startID = ids[0]
	}

	return &Catalog{
		defs:        defs,
		ids:         ids,
		counts:      counts,
		total:       total,
		startID:     startID,
		fieldCities: buildFieldCityAdjacency(defs),
	}, nil
}

func parseTile(src *tileJSON) (*TileDef, error) {
	if src.ID == "" {
		return nil, fmt.Errorf("tile with empty id")
	}
	def := &TileDef{ID: src.ID, Start: src.StartTileType}

	if len(src.Edges) != EdgeCount {
		return nil, fmt.Errorf("tile %q: expected %d edges, got %d", src.ID, EdgeCount, len(src.Edges))
	}
	for code, ej := range src.Edges {
		edge, err := ParseEdge(code)
		if err != nil {
			return nil, fmt.Errorf("tile %q: %w", src.ID, err)
		}
		terrain, err := ParseTerrain(ej.Primary)
		if err != nil {
			return nil, fmt.Errorf("tile %q edge %s: %w", src.ID, edge, err)
		}
		def.Edges[edge] = terrain
	}

	seen := make(map[string]bool, len(src.Features))
	for fi := range src.Features {
		feat, err := parseFeature(src.ID, &src.Features[fi])
		if err != nil {
			return nil, err
		}
		if seen[feat.ID] {
			return nil, fmt.Errorf("tile %q: duplicate feature id %q", src.ID, feat.ID)
		}
		seen[feat.ID] = true
		def.Features = append(def.Features, feat)
	}

	if err := checkPortCoverage(def); err != nil {
		return nil, err
	}
	return def, nil
}

func parseFeature(tileID string, src *featureJSON) (FeatureDef, error) {
	var feat FeatureDef
	if src.ID == "" {
		return feat, fmt.Errorf("tile %q: feature with empty id", tileID)
	}
	kind, err := ParseFeatureKind(src.Type)
	if err != nil {
		return feat, fmt.Errorf("tile %q feature %q: %w", tileID, src.ID, err)
	}
	feat.ID = src.ID
	feat.Kind = kind
	feat.Pennants = src.Tags["pennants"]
	feat.Anchor = [2]float64{0.5, 0.5}
	if len(src.MeeplePlacement) != 0 {
		if len(src.MeeplePlacement) != 2 {
			return feat, fmt.Errorf("tile %q feature %q: anchor needs two coordinates", tileID, src.ID)
		}
		feat.Anchor = [2]float64{src.MeeplePlacement[0], src.MeeplePlacement[1]}
	}

	switch kind {
	case KindRoad, KindCity:
		for _, code := range src.Ports {
			edge, err := ParseEdge(code)
			if err != nil {
				return feat, fmt.Errorf("tile %q feature %q: %w", tileID, src.ID, err)
			}
			feat.Edges = append(feat.Edges, edge)
		}
	case KindField:
		for _, code := range src.Ports {
			half, err := ParseHalfEdge(code)
			if err != nil {
				return feat, fmt.Errorf("tile %q feature %q: %w", tileID, src.ID, err)
			}
			feat.Halves = append(feat.Halves, half)
		}
	case KindCloister:
		if len(src.Ports) != 0 {
			return feat, fmt.Errorf("tile %q feature %q: cloisters take no ports", tileID, src.ID)
		}
	}
	return feat, nil
}

// checkPortCoverage enforces that the feature ports agree with the edge
// terrains: every road and city edge is claimed by exactly one feature
// of the matching kind, and no field half sits on a city edge or is
// claimed twice.
func checkPortCoverage(def *TileDef) error {
	roadEdges := make(map[Edge]string)
	cityEdges := make(map[Edge]string)
	fieldHalves := make(map[HalfEdge]string)

	for fi := range def.Features {
		feat := &def.Features[fi]
		switch feat.Kind {
		case KindRoad, KindCity:
			owners := roadEdges
			want := TerrainRoad
			if feat.Kind == KindCity {
				owners = cityEdges
				want = TerrainCity
			}
			for _, e := range feat.Edges {
				if def.Edges[e] != want {
					return fmt.Errorf("tile %q feature %q: port %s crosses a %s edge", def.ID, feat.ID, e, def.Edges[e])
				}
				if prev, taken := owners[e]; taken {
					return fmt.Errorf("tile %q: edge %s claimed by both %q and %q", def.ID, e, prev, feat.ID)
				}
				owners[e] = feat.ID
			}
		case KindField:
			for _, h := range feat.Halves {
				if def.Edges[h.Edge()] == TerrainCity {
					return fmt.Errorf("tile %q feature %q: field half %s sits on a city edge", def.ID, feat.ID, h)
				}
				if prev, taken := fieldHalves[h]; taken {
					return fmt.Errorf("tile %q: half %s claimed by both %q and %q", def.ID, h, prev, feat.ID)
				}
				fieldHalves[h] = feat.ID
			}
		}
	}

	for e, terrain := range def.Edges {
		switch terrain {
		case TerrainRoad:
			if _, ok := roadEdges[Edge(e)]; !ok {
				return fmt.Errorf("tile %q: road edge %s has no road feature", def.ID, Edge(e))
			}
		case TerrainCity:
			if _, ok := cityEdges[Edge(e)]; !ok {
				return fmt.Errorf("tile %q: city edge %s has no city feature", def.ID, Edge(e))
			}
		}
	}
	return nil
}
