package rules

import (
	"sort"

	"github.com/cloisterworks/cloister-server-go/internal/catalog"
)

// CloisterValue is the score of a cloister whose eight neighbors are
// all occupied.
const CloisterValue = 9

// FieldCityValue is the score a field earns per adjacent completed city.
const FieldCityValue = 3

// Score returns the value of a group scored in the given completion
// state. Completed roads score one point per tile; cities score two per
// tile and two per pennant when complete, one and one otherwise;
// cloisters score nine complete and one plus occupied neighbors
// otherwise; fields score three per adjacent completed city regardless.
func Score(g *FeatureGroup, completed bool) int {
	switch g.Kind {
	case catalog.KindRoad:
		return len(g.Tiles)
	case catalog.KindCity:
		tiles := len(g.Tiles)
		if completed {
			return 2*tiles + 2*g.Pennants
		}
		return tiles + g.Pennants
	case catalog.KindCloister:
		if completed {
			return CloisterValue
		}
		return 1 + g.AdjacentTiles
	case catalog.KindField:
		return FieldCityValue * len(g.AdjacentCompletedCities)
	}
	return 0
}

// EndValue returns what a group is worth during the final scoring
// pass: cities at their actual completion state, roads always at full
// tile value, cloisters and fields at their incomplete value.
func EndValue(g *FeatureGroup) int {
	switch g.Kind {
	case catalog.KindCity:
		return Score(g, g.Complete)
	case catalog.KindRoad:
		return Score(g, true)
	default:
		return Score(g, false)
	}
}

// Winners returns the players holding the positive maximum meeple
// count on the group, in ascending player order. A tie awards every
// tied player the full group value.
func Winners(g *FeatureGroup) []int {
	max := 0
	for _, n := range g.MeeplesByPlayer {
		if n > max {
			max = n
		}
	}
	if max == 0 {
		return nil
	}
	var out []int
	for player, n := range g.MeeplesByPlayer {
		if n == max {
			out = append(out, player)
		}
	}
	sort.Ints(out)
	return out
}
