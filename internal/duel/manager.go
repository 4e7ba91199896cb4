package duel

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openduel/duel-server-go/internal/game"
	"go.uber.org/zap"
)

// Seat identifies a player's side in a duel.
type Seat int

const (
	SeatPlayer0 Seat = 0
	SeatPlayer1 Seat = 1
	SeatNone    Seat = -1
)

// Duel is one live two-player duel and its seat bookkeeping. The embedded
// engine state is guarded by the duel's mutex; the websocket layer and the
// repository both act through the manager.
type Duel struct {
	ID        string
	State     *game.State
	CreatedAt time.Time

	mu    sync.Mutex
	seats [2]string // usernames, empty while a seat is open
}

// Manager owns all live duels.
type Manager struct {
	mu     sync.RWMutex
	duels  map[string]*Duel
	logger *zap.Logger
}

// NewManager creates a new duel manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		duels:  make(map[string]*Duel),
		logger: logger,
	}
}

// Create starts a new duel over the given battleground with the creator in
// seat 0 and returns it.
func (m *Manager) Create(creator string, ground *game.Battleground) *Duel {
	d := &Duel{
		ID:        uuid.New().String(),
		State:     game.NewStateWith(ground),
		CreatedAt: time.Now(),
	}
	d.seats[0] = creator

	m.mu.Lock()
	m.duels[d.ID] = d
	m.mu.Unlock()

	m.logger.Info("duel created",
		zap.String("duel_id", d.ID),
		zap.String("creator", creator),
	)
	return d
}

// Get returns the duel with the given id.
func (m *Manager) Get(duelID string) (*Duel, error) {
	m.mu.RLock()
	d, ok := m.duels[duelID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("duel %s not found", duelID)
	}
	return d, nil
}

// Join seats a second player in the duel.
func (m *Manager) Join(duelID, username string) (*Duel, error) {
	d, err := m.Get(duelID)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seats[1] != "" {
		return nil, fmt.Errorf("duel %s is full", duelID)
	}
	if d.seats[0] == username {
		return nil, fmt.Errorf("player %s already seated in duel %s", username, duelID)
	}
	d.seats[1] = username

	m.logger.Info("player joined duel",
		zap.String("duel_id", duelID),
		zap.String("username", username),
	)
	return d, nil
}

// Remove drops a duel from the manager (after it finished or was abandoned).
func (m *Manager) Remove(duelID string) {
	m.mu.Lock()
	delete(m.duels, duelID)
	m.mu.Unlock()
}

// List returns the ids of all live duels.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.duels))
	for id := range m.duels {
		ids = append(ids, id)
	}
	return ids
}

// SeatOf returns the seat the given player occupies in the duel.
func (d *Duel) SeatOf(username string) Seat {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, name := range d.seats {
		if name != "" && name == username {
			return Seat(i)
		}
	}
	return SeatNone
}

// Full reports whether both seats are taken.
func (d *Duel) Full() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seats[0] != "" && d.seats[1] != ""
}

// Players returns the seated usernames in seat order.
func (d *Duel) Players() [2]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seats
}

// Act runs a mutation against the duel's engine state under its lock,
// enforcing that only the player whose turn it is may act. The engine itself
// rejects out-of-phase operations, so fn only needs the rules call.
func (d *Duel) Act(username string, fn func(*game.State) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	seat := SeatNone
	for i, name := range d.seats {
		if name != "" && name == username {
			seat = Seat(i)
		}
	}
	if seat == SeatNone {
		return fmt.Errorf("player %s is not seated in duel %s", username, d.ID)
	}
	if int(seat) != d.State.NextToAct() {
		return fmt.Errorf("player %s acted out of turn in duel %s", username, d.ID)
	}
	return fn(d.State)
}

// Snapshot returns an independent copy of the duel's engine state for
// rendering or persistence without holding the duel lock afterwards.
func (d *Duel) Snapshot() *game.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.State.Copy()
}
