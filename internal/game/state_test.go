package game

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStateDefaults(t *testing.T) {
	state := NewState()
	assert.Equal(t, 20, state.Life(0))
	assert.Equal(t, 20, state.Life(1))
	assert.Equal(t, 0, state.ActivePlayer())
	assert.Equal(t, PhaseDeclareAttackers, state.Phase())
	assert.False(t, state.IsOver())
}

func TestDerivedPlayers(t *testing.T) {
	state := NewState()
	assert.Equal(t, 0, state.AttackingPlayer())
	assert.Equal(t, 1, state.DefendingPlayer())
	assert.Equal(t, 0, state.NextToAct())

	attackerID := state.Battleground().Add(0, 1, 1)
	require.NoError(t, state.DeclareAttackers([]string{attackerID}))

	// During DeclareBlockers the defender acts.
	assert.Equal(t, PhaseDeclareBlockers, state.Phase())
	assert.Equal(t, 1, state.NextToAct())

	require.NoError(t, state.DeclareBlockers(nil))
	assert.Equal(t, PhaseCombatStep, state.Phase())
	assert.Equal(t, 0, state.NextToAct())
}

func TestOperationsRejectWrongPhase(t *testing.T) {
	state := NewState()

	err := state.DeclareBlockers(nil)
	assert.ErrorIs(t, err, ErrInvalidPhase)
	err = state.ResolveCombat()
	assert.ErrorIs(t, err, ErrInvalidPhase)

	attackerID := state.Battleground().Add(0, 1, 1)
	require.NoError(t, state.DeclareAttackers([]string{attackerID}))

	err = state.DeclareAttackers([]string{attackerID})
	assert.ErrorIs(t, err, ErrInvalidPhase)
	err = state.ResolveCombat()
	assert.ErrorIs(t, err, ErrInvalidPhase)
}

func TestDeclareAttackersValidation(t *testing.T) {
	state := NewState()
	ground := state.Battleground()
	ownID := ground.Add(0, 2, 2)
	enemyID := ground.Add(1, 2, 2)
	tappedID := ground.Add(0, 2, 2)
	tapped, err := ground.Get(tappedID)
	require.NoError(t, err)
	tapped.Tap()

	before := state.Key()

	err = state.DeclareAttackers([]string{tappedID})
	assert.ErrorIs(t, err, ErrInvalidAttack)
	assert.Equal(t, before, state.Key(), "rejected attack must not mutate")

	err = state.DeclareAttackers([]string{enemyID})
	assert.ErrorIs(t, err, ErrInvalidAttack)
	assert.Equal(t, before, state.Key())

	err = state.DeclareAttackers([]string{"no-such-creature"})
	assert.ErrorIs(t, err, ErrUnknownCreature)
	assert.Equal(t, before, state.Key())

	// A single bad id poisons the whole declaration.
	err = state.DeclareAttackers([]string{ownID, tappedID})
	assert.ErrorIs(t, err, ErrInvalidAttack)
	assert.Equal(t, before, state.Key())
	assert.Equal(t, PhaseDeclareAttackers, state.Phase())
}

func TestDeclareBlockersValidation(t *testing.T) {
	state := NewState()
	ground := state.Battleground()
	attackerID := ground.Add(0, 2, 2)
	idleID := ground.Add(0, 2, 2)
	blockerID := ground.Add(1, 2, 2)
	tappedID := ground.Add(1, 2, 2)
	tapped, err := ground.Get(tappedID)
	require.NoError(t, err)
	tapped.Tap()

	require.NoError(t, state.DeclareAttackers([]string{attackerID}))
	before := state.Key()

	err = state.DeclareBlockers(map[string]string{tappedID: attackerID})
	assert.ErrorIs(t, err, ErrInvalidBlock)
	assert.Equal(t, before, state.Key())

	// Blocking a creature that is not attacking.
	err = state.DeclareBlockers(map[string]string{blockerID: idleID})
	assert.ErrorIs(t, err, ErrInvalidBlock)
	assert.Equal(t, before, state.Key())

	// An attacker cannot block.
	err = state.DeclareBlockers(map[string]string{attackerID: attackerID})
	assert.ErrorIs(t, err, ErrInvalidBlock)
	assert.Equal(t, before, state.Key())

	require.NoError(t, state.DeclareBlockers(map[string]string{blockerID: attackerID}))
	assert.Equal(t, PhaseCombatStep, state.Phase())
}

func TestEmptyAttackEndsTurn(t *testing.T) {
	state := NewState()
	ground := state.Battleground()
	opponentID := ground.Add(1, 2, 2)
	opponent, err := ground.Get(opponentID)
	require.NoError(t, err)
	opponent.Tap()

	require.NoError(t, state.DeclareAttackers(nil))

	assert.Equal(t, 1, state.ActivePlayer())
	assert.Equal(t, PhaseDeclareAttackers, state.Phase())
	assert.False(t, opponent.Tapped(), "new active player's creatures untap at turn start")
}

func TestAttackerUntapsOnItsNextTurn(t *testing.T) {
	state := NewState()
	attackerID := state.Battleground().Add(0, 1, 1)

	require.NoError(t, state.DeclareAttackers([]string{attackerID}))
	require.NoError(t, state.DeclareBlockers(nil))
	require.NoError(t, state.ResolveCombat())

	attacker, err := state.Battleground().Get(attackerID)
	require.NoError(t, err)
	assert.True(t, attacker.Tapped(), "attacker stays tapped through the opponent's turn")

	// Opponent passes; the attacker's controller untaps.
	require.NoError(t, state.DeclareAttackers(nil))
	assert.False(t, attacker.Tapped())
}

func TestOutcome(t *testing.T) {
	state := NewState()
	_, err := state.Outcome()
	assert.ErrorIs(t, err, ErrNotOver)

	// Player 0 dead and next to act: loss.
	dead0, err := ParseState("0/5 (0/0): vs")
	require.NoError(t, err)
	outcome, err := dead0.Outcome()
	require.NoError(t, err)
	assert.Equal(t, OutcomeLoss, outcome)

	// Player 1 dead while player 0 acts: win.
	dead1, err := ParseState("5/0 (0/0): vs")
	require.NoError(t, err)
	outcome, err = dead1.Outcome()
	require.NoError(t, err)
	assert.Equal(t, OutcomeWin, outcome)

	// Both dead: draw, regardless of who acts.
	draw, err := ParseState("0/-2 (1/0): vs")
	require.NoError(t, err)
	outcome, err = draw.Outcome()
	require.NoError(t, err)
	assert.Equal(t, OutcomeDraw, outcome)
}

func TestCopyIsIndependent(t *testing.T) {
	state := NewState()
	attackerID := state.Battleground().Add(0, 3, 3)
	state.Battleground().Add(1, 2, 2)

	clone := state.Copy()
	require.True(t, state.Equal(clone))
	require.Equal(t, state.Hash(), clone.Hash())

	// Drive the clone a full turn; the original must be untouched.
	require.NoError(t, clone.DeclareAttackers([]string{attackerID}))
	require.NoError(t, clone.DeclareBlockers(nil))
	require.NoError(t, clone.ResolveCombat())

	assert.False(t, state.Equal(clone))
	assert.Equal(t, 20, state.Life(1))
	assert.Equal(t, PhaseDeclareAttackers, state.Phase())
	assert.Equal(t, 0, state.ActivePlayer())

	attacker, err := state.Battleground().Get(attackerID)
	require.NoError(t, err)
	assert.False(t, attacker.Tapped(), "copy mutation leaked into the original")
}

func TestEqualityIgnoresInsertionOrderAndIDs(t *testing.T) {
	a := NewState()
	a.Battleground().Add(0, 2, 2)
	a.Battleground().Add(0, 3, 3)
	a.Battleground().Add(1, 4, 4)

	b := NewState()
	b.Battleground().Add(1, 4, 4)
	b.Battleground().Add(0, 3, 3)
	b.Battleground().Add(0, 2, 2)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, a.Hash(), b.Hash())

	b.Battleground().Add(1, 1, 1)
	assert.False(t, a.Equal(b))
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestEqualityDistinguishesCombatGrouping(t *testing.T) {
	// Two identical attackers, each blocked by one 2/2...
	a := NewState()
	a1 := a.Battleground().Add(0, 4, 4)
	a2 := a.Battleground().Add(0, 4, 4)
	ba1 := a.Battleground().Add(1, 2, 2)
	ba2 := a.Battleground().Add(1, 2, 2)
	require.NoError(t, a.DeclareAttackers([]string{a1, a2}))
	require.NoError(t, a.DeclareBlockers(map[string]string{ba1: a1, ba2: a2}))

	// ...is not the same state as one attacker double-blocked and one free.
	b := NewState()
	b1 := b.Battleground().Add(0, 4, 4)
	b2 := b.Battleground().Add(0, 4, 4)
	bb1 := b.Battleground().Add(1, 2, 2)
	bb2 := b.Battleground().Add(1, 2, 2)
	require.NoError(t, b.DeclareAttackers([]string{b1, b2}))
	require.NoError(t, b.DeclareBlockers(map[string]string{bb1: b1, bb2: b1}))

	assert.False(t, a.Equal(b))
}

func TestUnknownCreatureLookup(t *testing.T) {
	state := NewState()
	_, err := state.Battleground().Get("nope")
	assert.ErrorIs(t, err, ErrUnknownCreature)

	err = state.Battleground().Remove("nope")
	assert.ErrorIs(t, err, ErrUnknownCreature)

	var parseErr *ParseError
	_, err = ParseState("garbage")
	require.Error(t, err)
	assert.True(t, errors.As(err, &parseErr))
}
