package game

import "fmt"

// Limits on match configuration. The HTTP layer clamps requests into
// these ranges; Validate rejects anything that slips past.
const (
	DefaultMeepleBudget  = 7
	MaxMeepleBudget      = 15
	DefaultSelectionSize = 3
	MaxSelectionSize     = 6
)

// Config fixes the variant and numeric limits of a single match. It
// is immutable once the match is created.
type Config struct {
	Mode Mode

	// MeepleBudget is the number of meeples each player starts with.
	MeepleBudget int

	// MoveLimit ends randomized matches after that many placements
	// and parallel matches after that many rounds. Zero means no
	// limit; standard matches end when the pool runs out instead.
	MoveLimit int

	// SelectionSize is how many tiles each parallel-round offer
	// holds.
	SelectionSize int
}

// DefaultConfig is a standard match with the usual meeple budget.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeStandard,
		MeepleBudget:  DefaultMeepleBudget,
		SelectionSize: DefaultSelectionSize,
	}
}

// Validate rejects configurations the engine cannot run.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeStandard, ModeRandomized, ModeParallel:
	default:
		return fmt.Errorf("unknown match mode %d", int(c.Mode))
	}
	if c.MeepleBudget < 1 || c.MeepleBudget > MaxMeepleBudget {
		return fmt.Errorf("meeple budget %d out of range 1..%d", c.MeepleBudget, MaxMeepleBudget)
	}
	if c.MoveLimit < 0 {
		return fmt.Errorf("move limit %d is negative", c.MoveLimit)
	}
	if c.Mode == ModeParallel && (c.SelectionSize < 1 || c.SelectionSize > MaxSelectionSize) {
		return fmt.Errorf("selection size %d out of range 1..%d", c.SelectionSize, MaxSelectionSize)
	}
	return nil
}
