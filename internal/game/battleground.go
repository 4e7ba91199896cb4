package game

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Battleground owns the creatures in play. Creatures are kept in insertion
// order, which also defines the derived combat assignment order (attackers
// and their blockers resolve in the order they entered play).
type Battleground struct {
	order     []string
	creatures map[string]*Creature
	nextID    int
}

// NewBattleground creates an empty battleground.
func NewBattleground() *Battleground {
	return &Battleground{
		order:     make([]string, 0),
		creatures: make(map[string]*Creature),
	}
}

// Add puts a new untapped creature in play for the given player and returns
// its generated id.
func (bg *Battleground) Add(controller, power, toughness int) string {
	bg.nextID++
	id := fmt.Sprintf("c%d", bg.nextID)
	bg.order = append(bg.order, id)
	bg.creatures[id] = NewCreature(id, controller, power, toughness)
	return id
}

// Get returns the creature with the given id, or ErrUnknownCreature.
func (bg *Battleground) Get(id string) (*Creature, error) {
	creature, ok := bg.creatures[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCreature, id)
	}
	return creature, nil
}

// Len returns the number of creatures in play.
func (bg *Battleground) Len() int { return len(bg.order) }

// Creatures returns the given player's creatures in insertion order.
func (bg *Battleground) Creatures(player int) []*Creature {
	result := make([]*Creature, 0)
	for _, id := range bg.order {
		if c := bg.creatures[id]; c.Controller() == player {
			result = append(result, c)
		}
	}
	return result
}

// CombatAssignment derives the current assignment from the attacking and
// blocking flags: attackers in insertion order, each with its blockers in
// insertion order.
func (bg *Battleground) CombatAssignment() *CombatAssignment {
	ca := NewCombatAssignment()
	for _, id := range bg.order {
		if bg.creatures[id].Attacking() {
			ca.Declare(id)
		}
	}
	for _, id := range bg.order {
		if target := bg.creatures[id].Blocking(); target != "" {
			ca.AddBlocker(target, id)
		}
	}
	return ca
}

// Remove destroys the creature with the given id.
func (bg *Battleground) Remove(id string) error {
	if _, ok := bg.creatures[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCreature, id)
	}
	delete(bg.creatures, id)
	for i, existing := range bg.order {
		if existing == id {
			bg.order = append(bg.order[:i], bg.order[i+1:]...)
			break
		}
	}
	return nil
}

// Copy returns a deep copy; mutating the copy never affects the original.
func (bg *Battleground) Copy() *Battleground {
	clone := NewBattleground()
	clone.order = append([]string(nil), bg.order...)
	clone.nextID = bg.nextID
	for id, creature := range bg.creatures {
		clone.creatures[id] = creature.Copy()
	}
	return clone
}

// Key returns a deterministic, id-independent canonical form. Creatures not
// in combat are listed per controller, sorted by stats; combat participants
// are grouped per attacker with each group's blockers sorted, and the groups
// themselves sorted. Two battlegrounds that differ only in creature ids or
// insertion order produce the same key.
func (bg *Battleground) Key() string {
	idle := [2][]string{}
	groups := make([]string, 0)

	for _, id := range bg.order {
		c := bg.creatures[id]
		if c.Attacking() || c.Blocking() != "" {
			continue
		}
		idle[c.Controller()] = append(idle[c.Controller()], creatureKey(c))
	}
	for _, id := range bg.order {
		attacker := bg.creatures[id]
		if !attacker.Attacking() {
			continue
		}
		blockers := make([]string, 0)
		for _, bid := range bg.order {
			if bg.creatures[bid].Blocking() == id {
				blockers = append(blockers, creatureKey(bg.creatures[bid]))
			}
		}
		sort.Strings(blockers)
		groups = append(groups, creatureKey(attacker)+"<-["+strings.Join(blockers, " ")+"]")
	}

	sort.Strings(idle[0])
	sort.Strings(idle[1])
	sort.Strings(groups)

	return "0:" + strings.Join(idle[0], " ") +
		"|1:" + strings.Join(idle[1], " ") +
		"|combat:" + strings.Join(groups, " ")
}

func creatureKey(c *Creature) string {
	return fmt.Sprintf("%d.%d/%d/t=%t", c.Controller(), c.Power(), c.Toughness(), c.Tapped())
}

// Battleground string grammar (version 1):
//
//	battleground = p0-list " vs " p1-list    (side omitted when empty)
//	list         = creature *(", " creature)
//	creature     = power "/" toughness [" (" flags ")"]
//	flags        = flag *("," flag)
//	flag         = "T" | "A" | "B" position
//
// position is the 1-based position of the blocked attacker in the full
// printed order (player 0's creatures first, then player 1's). Parsing
// reconstructs creatures with fresh ids, so the round trip preserves the
// canonical Key but not id identity. This form is weaker than Key and must
// not back equality-critical code paths.

// String renders the battleground in the documented grammar.
func (bg *Battleground) String() string {
	position := make(map[string]int, len(bg.order))
	printed := make([]*Creature, 0, len(bg.order))
	for player := 0; player < 2; player++ {
		for _, c := range bg.Creatures(player) {
			printed = append(printed, c)
			position[c.ID()] = len(printed)
		}
	}

	sides := [2][]string{}
	for _, c := range printed {
		flags := make([]string, 0, 3)
		if c.Tapped() {
			flags = append(flags, "T")
		}
		if c.Attacking() {
			flags = append(flags, "A")
		}
		if target := c.Blocking(); target != "" {
			flags = append(flags, "B"+strconv.Itoa(position[target]))
		}
		token := fmt.Sprintf("%d/%d", c.Power(), c.Toughness())
		if len(flags) > 0 {
			token += " (" + strings.Join(flags, ",") + ")"
		}
		sides[c.Controller()] = append(sides[c.Controller()], token)
	}

	left := strings.Join(sides[0], ", ")
	right := strings.Join(sides[1], ", ")
	switch {
	case left == "" && right == "":
		return "vs"
	case left == "":
		return "vs " + right
	case right == "":
		return left + " vs"
	default:
		return left + " vs " + right
	}
}

// ParseBattleground parses the documented battleground grammar.
func ParseBattleground(s string) (*Battleground, error) {
	var left, right string
	switch {
	case s == "vs":
		// both sides empty
	case strings.HasPrefix(s, "vs "):
		right = s[len("vs "):]
	case strings.HasSuffix(s, " vs"):
		left = s[:len(s)-len(" vs")]
	default:
		idx := strings.Index(s, " vs ")
		if idx < 0 {
			return nil, &ParseError{Input: s, Reason: "missing \" vs \" separator"}
		}
		left, right = s[:idx], s[idx+len(" vs "):]
	}

	bg := NewBattleground()
	type pendingBlock struct {
		blockerID string
		position  int
	}
	pending := make([]pendingBlock, 0)

	parseSide := func(side string, controller int) error {
		if side == "" {
			return nil
		}
		for _, token := range strings.Split(side, ", ") {
			power, toughness, flags, err := parseCreatureToken(token)
			if err != nil {
				return err
			}
			id := bg.Add(controller, power, toughness)
			creature := bg.creatures[id]
			for _, flag := range flags {
				switch {
				case flag == "T":
					creature.Tap()
				case flag == "A":
					creature.Attack()
				case strings.HasPrefix(flag, "B"):
					pos, err := strconv.Atoi(flag[1:])
					if err != nil || pos < 1 {
						return &ParseError{Input: token, Reason: "bad blocker target " + flag}
					}
					pending = append(pending, pendingBlock{blockerID: id, position: pos})
				default:
					return &ParseError{Input: token, Reason: "unknown flag " + flag}
				}
			}
		}
		return nil
	}

	if err := parseSide(left, 0); err != nil {
		return nil, err
	}
	if err := parseSide(right, 1); err != nil {
		return nil, err
	}

	// Blocker targets reference printed positions, which match insertion
	// order here because sides were parsed player 0 first.
	for _, pb := range pending {
		if pb.position > len(bg.order) {
			return nil, &ParseError{Input: s, Reason: fmt.Sprintf("blocker target position %d out of range", pb.position)}
		}
		target := bg.creatures[bg.order[pb.position-1]]
		if !target.Attacking() {
			return nil, &ParseError{Input: s, Reason: fmt.Sprintf("blocker target at position %d is not attacking", pb.position)}
		}
		blocker := bg.creatures[pb.blockerID]
		if blocker.Controller() == target.Controller() {
			return nil, &ParseError{Input: s, Reason: fmt.Sprintf("blocker target at position %d has the same controller", pb.position)}
		}
		blocker.Block(target.ID())
	}

	return bg, nil
}

func parseCreatureToken(token string) (power, toughness int, flags []string, err error) {
	stats := token
	if idx := strings.Index(token, " ("); idx >= 0 {
		if !strings.HasSuffix(token, ")") {
			return 0, 0, nil, &ParseError{Input: token, Reason: "unterminated flag list"}
		}
		stats = token[:idx]
		flags = strings.Split(token[idx+2:len(token)-1], ",")
	}
	slash := strings.Index(stats, "/")
	if slash < 0 {
		return 0, 0, nil, &ParseError{Input: token, Reason: "missing power/toughness separator"}
	}
	power, err = strconv.Atoi(stats[:slash])
	if err != nil {
		return 0, 0, nil, &ParseError{Input: token, Reason: "bad power"}
	}
	toughness, err = strconv.Atoi(stats[slash+1:])
	if err != nil {
		return 0, 0, nil, &ParseError{Input: token, Reason: "bad toughness"}
	}
	return power, toughness, flags, nil
}
