package game

import (
	"fmt"
	"strings"
)

// CombatAssignment is an ordered mapping from attacker id to an ordered list
// of blocker ids. Attacker order is the order attackers were declared in;
// blocker order is the damage assignment order the attacking player chose.
// Only attackers that received at least one blocker need to carry blockers,
// but every attacker in combat appears as a key.
type CombatAssignment struct {
	attackers []string
	blockers  map[string][]string
}

// NewCombatAssignment creates an empty assignment.
func NewCombatAssignment() *CombatAssignment {
	return &CombatAssignment{
		attackers: make([]string, 0),
		blockers:  make(map[string][]string),
	}
}

// Declare adds an attacker with no blockers. Declaring an attacker twice is
// a no-op.
func (ca *CombatAssignment) Declare(attackerID string) {
	if _, ok := ca.blockers[attackerID]; ok {
		return
	}
	ca.attackers = append(ca.attackers, attackerID)
	ca.blockers[attackerID] = make([]string, 0)
}

// AddBlocker appends a blocker to an attacker's ordered blocker list,
// declaring the attacker first if needed.
func (ca *CombatAssignment) AddBlocker(attackerID, blockerID string) {
	ca.Declare(attackerID)
	ca.blockers[attackerID] = append(ca.blockers[attackerID], blockerID)
}

// Attackers returns the attacker ids in declaration order.
func (ca *CombatAssignment) Attackers() []string {
	return append([]string(nil), ca.attackers...)
}

// Blockers returns the ordered blocker ids assigned to the given attacker.
func (ca *CombatAssignment) Blockers(attackerID string) []string {
	return append([]string(nil), ca.blockers[attackerID]...)
}

// Len returns the number of attackers in the assignment.
func (ca *CombatAssignment) Len() int { return len(ca.attackers) }

// IsReorderOf reports whether this assignment has exactly the same attackers
// and, per attacker, the same multiset of blockers as other. Blocker order is
// free: this is the check that lets the attacking player choose damage order
// without adding, removing or repeating participants.
func (ca *CombatAssignment) IsReorderOf(other *CombatAssignment) bool {
	if other == nil || len(ca.blockers) != len(other.blockers) {
		return false
	}
	for attackerID, mine := range ca.blockers {
		theirs, ok := other.blockers[attackerID]
		if !ok || len(mine) != len(theirs) {
			return false
		}
		counts := make(map[string]int, len(theirs))
		for _, id := range theirs {
			counts[id]++
		}
		for _, id := range mine {
			counts[id]--
			if counts[id] < 0 {
				return false
			}
		}
	}
	return true
}

// Copy returns an independent copy of the assignment.
func (ca *CombatAssignment) Copy() *CombatAssignment {
	clone := NewCombatAssignment()
	for _, attackerID := range ca.attackers {
		clone.Declare(attackerID)
		clone.blockers[attackerID] = append([]string(nil), ca.blockers[attackerID]...)
	}
	return clone
}

func (ca *CombatAssignment) String() string {
	parts := make([]string, 0, len(ca.attackers))
	for _, attackerID := range ca.attackers {
		parts = append(parts, fmt.Sprintf("%s<-[%s]", attackerID, strings.Join(ca.blockers[attackerID], " ")))
	}
	return strings.Join(parts, ", ")
}
