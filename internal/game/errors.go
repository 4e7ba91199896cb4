package game

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the rules engine. Callers match them with
// errors.Is; the wrapped message carries the offending creature or
// assignment detail.
var (
	// ErrInvalidPhase is returned when an operation is invoked outside the
	// turn phase it belongs to.
	ErrInvalidPhase = errors.New("invalid turn phase")

	// ErrInvalidAttack is returned when a declared attacker is tapped or not
	// controlled by the attacking player.
	ErrInvalidAttack = errors.New("invalid attack")

	// ErrInvalidBlock is returned when a blocking declaration violates a
	// legality rule.
	ErrInvalidBlock = errors.New("invalid blocking assignment")

	// ErrInvalidCombatAssignment is returned when a supplied damage order is
	// not a reordering of the assignment derived from the battleground.
	ErrInvalidCombatAssignment = errors.New("invalid combat assignment")

	// ErrNotOver is returned when the outcome is queried before either
	// player's life total has dropped to zero.
	ErrNotOver = errors.New("game is not over")

	// ErrUnknownCreature is returned when a creature id is not present on
	// the battleground.
	ErrUnknownCreature = errors.New("unknown creature")
)

// ParseError reports a malformed canonical state or battleground string.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Input, e.Reason)
}
