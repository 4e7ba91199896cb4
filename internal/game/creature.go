package game

// Creature is a creature in play. It is owned by a Battleground and referred
// to by its unique id everywhere else. A creature's combat role (attacking or
// blocking) is meaningful only within the turn that set it; combat resolution
// clears it.
type Creature struct {
	id         string
	controller int
	power      int
	toughness  int
	tapped     bool
	attacking  bool
	blocking   string // id of the blocked attacker, empty when not blocking
}

// NewCreature creates an untapped creature with no combat role.
func NewCreature(id string, controller, power, toughness int) *Creature {
	return &Creature{
		id:         id,
		controller: controller,
		power:      power,
		toughness:  toughness,
	}
}

func (c *Creature) ID() string      { return c.id }
func (c *Creature) Controller() int { return c.controller }
func (c *Creature) Power() int      { return c.power }
func (c *Creature) Toughness() int  { return c.toughness }
func (c *Creature) Tapped() bool    { return c.tapped }
func (c *Creature) Attacking() bool { return c.attacking }

// Blocking returns the id of the attacker this creature is blocking, or the
// empty string when it is not blocking.
func (c *Creature) Blocking() string { return c.blocking }

func (c *Creature) Tap()   { c.tapped = true }
func (c *Creature) Untap() { c.tapped = false }

// Attack marks the creature as attacking. Tapping is a separate step owned
// by the declaration logic.
func (c *Creature) Attack() { c.attacking = true }

// Block marks the creature as blocking the given attacker.
func (c *Creature) Block(attackerID string) { c.blocking = attackerID }

// RemoveFromCombat clears the creature's combat role. Tapped state is
// unaffected; attackers stay tapped until their controller's next turn.
func (c *Creature) RemoveFromCombat() {
	c.attacking = false
	c.blocking = ""
}

// Copy returns an independent copy of the creature.
func (c *Creature) Copy() *Creature {
	clone := *c
	return &clone
}
