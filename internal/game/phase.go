package game

import "fmt"

// TurnPhase represents the combat-phase steps a duel turn cycles through.
// The numeric values are part of the canonical string form and must not be
// reordered.
type TurnPhase int

const (
	PhaseDeclareAttackers TurnPhase = iota
	PhaseDeclareBlockers
	PhaseCombatStep
)

var phaseNames = map[TurnPhase]string{
	PhaseDeclareAttackers: "DECLARE_ATTACKERS",
	PhaseDeclareBlockers:  "DECLARE_BLOCKERS",
	PhaseCombatStep:       "COMBAT_STEP",
}

func (p TurnPhase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

// Outcome is the result of a finished duel from the perspective of the
// player who is next to act.
type Outcome int

const (
	OutcomeWin Outcome = iota
	OutcomeLoss
	OutcomeDraw
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWin:
		return "WIN"
	case OutcomeLoss:
		return "LOSS"
	case OutcomeDraw:
		return "DRAW"
	default:
		return "UNKNOWN"
	}
}
