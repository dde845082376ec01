package game

import "fmt"

// MatchStatus tracks where a match is in its lifecycle. Matches move
// waiting -> active -> finished, or to aborted from either live state.
type MatchStatus int

const (
	StatusWaiting MatchStatus = iota
	StatusActive
	StatusFinished
	StatusAborted
)

var matchStatusNames = map[MatchStatus]string{
	StatusWaiting:  "waiting",
	StatusActive:   "active",
	StatusFinished: "finished",
	StatusAborted:  "aborted",
}

func (s MatchStatus) String() string {
	if name, ok := matchStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("MatchStatus(%d)", int(s))
}

// ParseMatchStatus maps a wire code back to a status.
func ParseMatchStatus(code string) (MatchStatus, error) {
	for s, name := range matchStatusNames {
		if name == code {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown match status %q", code)
}

// Mode selects the match variant.
type Mode int

const (
	// ModeStandard alternates turns over a depleting tile pool.
	ModeStandard Mode = iota
	// ModeRandomized alternates turns but draws with replacement and
	// ends at a move limit.
	ModeRandomized
	// ModeParallel has both players place simultaneously in rounds.
	ModeParallel
)

var modeNames = map[Mode]string{
	ModeStandard:   "standard",
	ModeRandomized: "randomized",
	ModeParallel:   "parallel",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode maps a wire code back to a mode.
func ParseMode(code string) (Mode, error) {
	for m, name := range modeNames {
		if name == code {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown match mode %q", code)
}

// RoundPhase is the stage a parallel round is in. Phases only move
// forward, except that resolving a conflict reopens placement.
type RoundPhase int

const (
	PhasePick RoundPhase = iota
	PhasePlace
	PhaseResolve
	PhaseMeeple
)

var roundPhaseNames = map[RoundPhase]string{
	PhasePick:    "pick",
	PhasePlace:   "place",
	PhaseResolve: "resolve",
	PhaseMeeple:  "meeple",
}

func (p RoundPhase) String() string {
	if name, ok := roundPhaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("RoundPhase(%d)", int(p))
}

// ParseRoundPhase maps a wire code back to a phase.
func ParseRoundPhase(code string) (RoundPhase, error) {
	for p, name := range roundPhaseNames {
		if name == code {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown round phase %q", code)
}

// ConflictKind classifies why two locked intents cannot both stand.
type ConflictKind int

const (
	// ConflictSameCell means both intents target the same cell.
	ConflictSameCell ConflictKind = iota
	// ConflictEdgeMismatch means the intents sit on adjacent cells
	// with different terrain on the shared edge.
	ConflictEdgeMismatch
)

var conflictKindNames = map[ConflictKind]string{
	ConflictSameCell:     "same_cell",
	ConflictEdgeMismatch: "edge_mismatch",
}

func (k ConflictKind) String() string {
	if name, ok := conflictKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ConflictKind(%d)", int(k))
}

// ParseConflictKind maps a wire code back to a conflict kind.
func ParseConflictKind(code string) (ConflictKind, error) {
	for k, name := range conflictKindNames {
		if name == code {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown conflict kind %q", code)
}

// ResolveAction is the token holder's ruling on a conflict.
type ResolveAction int

const (
	// ResolveRetreat reopens the holder's own placement; the token
	// stays put.
	ResolveRetreat ResolveAction = iota
	// ResolveBurn passes the token to the other conflicted player and
	// reopens their placement.
	ResolveBurn
)

var resolveActionNames = map[ResolveAction]string{
	ResolveRetreat: "retreat",
	ResolveBurn:    "burn",
}

func (a ResolveAction) String() string {
	if name, ok := resolveActionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("ResolveAction(%d)", int(a))
}

// ParseResolveAction maps a wire code back to a resolve action.
func ParseResolveAction(code string) (ResolveAction, error) {
	for a, name := range resolveActionNames {
		if name == code {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown resolve action %q", code)
}
