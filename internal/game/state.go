package game

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

const startingLife = 20

// State is the authoritative duel state: both life totals, whose turn it is,
// the current combat phase and the battleground. It is mutated in place by
// the phase operations and is not safe for concurrent use; parallel search
// workers must each operate on their own Copy.
//
// A turn runs DeclareAttackers -> DeclareBlockers -> ResolveCombat, after
// which the turn passes to the other player. Declaring no attackers ends the
// turn immediately.
type State struct {
	life   [2]int
	active int
	phase  TurnPhase
	ground *Battleground
}

// NewState creates a fresh duel: 20 life each, player 0 to move, empty
// battleground.
func NewState() *State {
	return NewStateWith(NewBattleground())
}

// NewStateWith creates a fresh duel over the given battleground. The state
// takes exclusive ownership of it.
func NewStateWith(ground *Battleground) *State {
	return &State{
		life:   [2]int{startingLife, startingLife},
		active: 0,
		phase:  PhaseDeclareAttackers,
		ground: ground,
	}
}

// Battleground returns the battleground owned by this state.
func (s *State) Battleground() *Battleground { return s.ground }

// Life returns the given player's life total.
func (s *State) Life(player int) int { return s.life[player] }

// Phase returns the current turn phase.
func (s *State) Phase() TurnPhase { return s.phase }

// ActivePlayer returns the player whose turn it is.
func (s *State) ActivePlayer() int { return s.active }

// AttackingPlayer returns the player declaring attacks this turn.
func (s *State) AttackingPlayer() int { return s.active }

// DefendingPlayer returns the player being attacked this turn.
func (s *State) DefendingPlayer() int { return 1 - s.active }

// NextToAct returns the player expected to submit the next operation: the
// defender during DeclareBlockers, the attacker otherwise.
func (s *State) NextToAct() int {
	if s.phase == PhaseDeclareBlockers {
		return s.DefendingPlayer()
	}
	return s.AttackingPlayer()
}

// AttackingPlayerCreatures returns the attacking player's creatures.
func (s *State) AttackingPlayerCreatures() []*Creature {
	return s.ground.Creatures(s.AttackingPlayer())
}

// DefendingPlayerCreatures returns the defending player's creatures.
func (s *State) DefendingPlayerCreatures() []*Creature {
	return s.ground.Creatures(s.DefendingPlayer())
}

// IsOver reports whether either player's life total has dropped to zero.
func (s *State) IsOver() bool {
	return s.life[0] <= 0 || s.life[1] <= 0
}

// Outcome returns the result for the player who is next to act. It returns
// ErrNotOver while both players are alive and Draw when both are dead.
func (s *State) Outcome() (Outcome, error) {
	if !s.IsOver() {
		return 0, ErrNotOver
	}
	if s.life[0] <= 0 && s.life[1] <= 0 {
		return OutcomeDraw, nil
	}
	dead := 1
	if s.life[0] <= 0 {
		dead = 0
	}
	if dead == s.NextToAct() {
		return OutcomeLoss, nil
	}
	return OutcomeWin, nil
}

// Copy returns a deep copy of the state. The copy owns its own battleground;
// mutating it never affects the original.
func (s *State) Copy() *State {
	return &State{
		life:   s.life,
		active: s.active,
		phase:  s.phase,
		ground: s.ground.Copy(),
	}
}

// Key returns the canonical comparison form. Two states are semantically
// equal iff their keys are equal, regardless of creature ids or insertion
// order. Keys are suitable as map keys for deduplication in search.
func (s *State) Key() string {
	return fmt.Sprintf("%d/%d (%d/%d): %s", s.life[0], s.life[1], s.active, int(s.phase), s.ground.Key())
}

// Hash returns a 64-bit hash derived from Key. Collisions are possible;
// equality-critical code paths must compare Key instead.
func (s *State) Hash() uint64 {
	sum := sha256.Sum256([]byte(s.Key()))
	return binary.BigEndian.Uint64(sum[:8])
}

// Equal reports whether both states have the same canonical form.
func (s *State) Equal(other *State) bool {
	return other != nil && s.Key() == other.Key()
}

func (s *State) expectPhase(phase TurnPhase) error {
	if s.phase != phase {
		return fmt.Errorf("%w: in %s, operation requires %s", ErrInvalidPhase, s.phase, phase)
	}
	return nil
}

// DeclareAttackers declares the given creatures as attackers, taps them and
// advances to DeclareBlockers. Declaring no attackers ends the turn
// immediately. Every id must name an untapped creature controlled by the
// attacking player; on any violation nothing is mutated.
func (s *State) DeclareAttackers(attackerIDs []string) error {
	if err := s.expectPhase(PhaseDeclareAttackers); err != nil {
		return err
	}
	for _, id := range attackerIDs {
		creature, err := s.ground.Get(id)
		if err != nil {
			return err
		}
		if creature.Tapped() {
			return fmt.Errorf("%w: creature %s is tapped", ErrInvalidAttack, id)
		}
		if creature.Controller() != s.AttackingPlayer() {
			return fmt.Errorf("%w: creature %s is not controlled by player %d", ErrInvalidAttack, id, s.AttackingPlayer())
		}
	}

	if len(attackerIDs) == 0 {
		s.endTurn()
		return nil
	}
	for _, id := range attackerIDs {
		creature, _ := s.ground.Get(id)
		creature.Attack()
		creature.Tap()
	}
	s.phase = PhaseDeclareBlockers
	return nil
}

// DeclareBlockers declares blocks as a blocker id -> attacker id mapping and
// advances to CombatStep. A nil or empty map means no blocks. Each blocker
// must be an untapped creature of the defending player, each target must
// currently be attacking, and a blocker blocks exactly one attacker (the
// mapping direction enforces that); on any violation nothing is mutated.
// Several blockers may map to the same attacker.
func (s *State) DeclareBlockers(blocks map[string]string) error {
	if err := s.expectPhase(PhaseDeclareBlockers); err != nil {
		return err
	}
	for blockerID, attackerID := range blocks {
		blocker, err := s.ground.Get(blockerID)
		if err != nil {
			return err
		}
		attacker, err := s.ground.Get(attackerID)
		if err != nil {
			return err
		}
		if blocker.Tapped() {
			return fmt.Errorf("%w: blocker %s is tapped", ErrInvalidBlock, blockerID)
		}
		if blocker.Controller() != s.DefendingPlayer() {
			return fmt.Errorf("%w: blocker %s is not controlled by player %d", ErrInvalidBlock, blockerID, s.DefendingPlayer())
		}
		if !attacker.Attacking() {
			return fmt.Errorf("%w: creature %s is not attacking", ErrInvalidBlock, attackerID)
		}
	}

	for blockerID, attackerID := range blocks {
		blocker, _ := s.ground.Get(blockerID)
		blocker.Block(attackerID)
	}
	s.phase = PhaseCombatStep
	return nil
}

// ResolveCombat resolves combat using the assignment derived from the
// battleground (blockers in the order they entered play) and ends the turn.
func (s *State) ResolveCombat() error {
	if err := s.expectPhase(PhaseCombatStep); err != nil {
		return err
	}
	return s.resolve(s.ground.CombatAssignment())
}

// ResolveCombatOrdered resolves combat using an explicitly ordered
// assignment. This is how the attacking player chooses the damage order
// among an attacker's blockers: the assignment must be a reordering of the
// derived one (same attackers, same blocker sets), otherwise
// ErrInvalidCombatAssignment is returned and nothing is mutated.
func (s *State) ResolveCombatOrdered(assignment *CombatAssignment) error {
	if err := s.expectPhase(PhaseCombatStep); err != nil {
		return err
	}
	derived := s.ground.CombatAssignment()
	if assignment == nil || !assignment.IsReorderOf(derived) {
		return fmt.Errorf("%w: %v is not a reorder of %v", ErrInvalidCombatAssignment, assignment, derived)
	}
	return s.resolve(assignment)
}

func (s *State) resolve(assignment *CombatAssignment) error {
	// Attackers do not interact with each other, so cross-attacker order is
	// immaterial; blocker order within one attacker is what matters.
	for _, attackerID := range assignment.Attackers() {
		blockerIDs := assignment.Blockers(attackerID)
		if len(blockerIDs) == 0 {
			if err := s.resolveUnblocked(attackerID); err != nil {
				return err
			}
			continue
		}
		if err := s.resolveBlocked(attackerID, blockerIDs); err != nil {
			return err
		}
	}
	s.endTurn()
	return nil
}

// resolveUnblocked routes the attacker's full power to the defending
// player's life total and takes the attacker out of combat (it stays tapped
// and in play).
func (s *State) resolveUnblocked(attackerID string) error {
	attacker, err := s.ground.Get(attackerID)
	if err != nil {
		return err
	}
	s.life[s.DefendingPlayer()] -= attacker.Power()
	attacker.RemoveFromCombat()
	return nil
}

// resolveBlocked walks the ordered blockers, carrying remaining attack
// damage forward: each blocker whose toughness is covered dies and its
// toughness is subtracted; the first blocker it cannot kill stops the walk
// untouched. Excess damage never spills onto the defending player. The
// attacker itself dies iff the blockers' pooled power covers its toughness;
// blockers hit the attacker simultaneously, independent of the walk.
func (s *State) resolveBlocked(attackerID string, blockerIDs []string) error {
	attacker, err := s.ground.Get(attackerID)
	if err != nil {
		return err
	}
	blockers := make([]*Creature, len(blockerIDs))
	blockersTotalPower := 0
	for i, id := range blockerIDs {
		blocker, err := s.ground.Get(id)
		if err != nil {
			return err
		}
		blockers[i] = blocker
		blockersTotalPower += blocker.Power()
	}

	remaining := attacker.Power()
	for _, blocker := range blockers {
		if remaining < blocker.Toughness() {
			break
		}
		remaining -= blocker.Toughness()
		if err := s.ground.Remove(blocker.ID()); err != nil {
			return err
		}
	}

	if blockersTotalPower >= attacker.Toughness() {
		if err := s.ground.Remove(attackerID); err != nil {
			return err
		}
	}

	attacker.RemoveFromCombat()
	for _, blocker := range blockers {
		blocker.RemoveFromCombat()
	}
	return nil
}

// endTurn passes the turn to the other player and untaps the new active
// player's creatures.
func (s *State) endTurn() {
	s.active = 1 - s.active
	s.phase = PhaseDeclareAttackers
	for _, creature := range s.ground.Creatures(s.active) {
		creature.Untap()
	}
}

// String renders the canonical string form (version 1):
//
//	<life0>/<life1> (<active>/<phase>): <battleground>
//
// e.g. "20/16 (1/0): 4/4 (T) vs 0/7". The form round-trips through
// ParseState to a Key-equal state, but is documented as weaker than Key:
// creature ids are not preserved.
func (s *State) String() string {
	return fmt.Sprintf("%d/%d (%d/%d): %s", s.life[0], s.life[1], s.active, int(s.phase), s.ground)
}

// ParseState parses the canonical string form.
func ParseState(input string) (*State, error) {
	open := strings.Index(input, " (")
	end := strings.Index(input, "): ")
	if open < 0 || end < open {
		return nil, &ParseError{Input: input, Reason: "missing header"}
	}

	lives := strings.Split(input[:open], "/")
	if len(lives) != 2 {
		return nil, &ParseError{Input: input, Reason: "malformed life totals"}
	}
	life0, err := strconv.Atoi(lives[0])
	if err != nil {
		return nil, &ParseError{Input: input, Reason: "bad life total for player 0"}
	}
	life1, err := strconv.Atoi(lives[1])
	if err != nil {
		return nil, &ParseError{Input: input, Reason: "bad life total for player 1"}
	}

	header := strings.Split(input[open+2:end], "/")
	if len(header) != 2 {
		return nil, &ParseError{Input: input, Reason: "malformed active player and phase"}
	}
	active, err := strconv.Atoi(header[0])
	if err != nil || active < 0 || active > 1 {
		return nil, &ParseError{Input: input, Reason: "bad active player"}
	}
	phase, err := strconv.Atoi(header[1])
	if err != nil || phase < int(PhaseDeclareAttackers) || phase > int(PhaseCombatStep) {
		return nil, &ParseError{Input: input, Reason: "bad phase"}
	}

	ground, err := ParseBattleground(input[end+3:])
	if err != nil {
		return nil, err
	}

	return &State{
		life:   [2]int{life0, life1},
		active: active,
		phase:  TurnPhase(phase),
		ground: ground,
	}, nil
}
