package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/openduel/duel-server-go/internal/game"
)

// ErrDuelNotFound is returned when a duel id has no saved record.
var ErrDuelNotFound = errors.New("duel not found")

// SavedDuel is a persisted duel snapshot. State holds the engine's canonical
// string form, which round-trips through game.ParseState.
type SavedDuel struct {
	ID        string
	Player0   string
	Player1   string
	State     string
	Finished  bool
	UpdatedAt time.Time
}

// DuelRepository persists duel snapshots.
type DuelRepository struct {
	db *DB
}

// NewDuelRepository creates a duel repository over the shared pool.
func NewDuelRepository(db *DB) *DuelRepository {
	return &DuelRepository{db: db}
}

// Save upserts a duel snapshot.
func (r *DuelRepository) Save(ctx context.Context, id, player0, player1 string, state *game.State) error {
	_, err := r.db.Pool().Exec(ctx,
		`INSERT INTO duels (id, player0, player1, state, finished, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (id) DO UPDATE
		 SET state = EXCLUDED.state, finished = EXCLUDED.finished, updated_at = now()`,
		id, player0, player1, state.String(), state.IsOver(),
	)
	if err != nil {
		return fmt.Errorf("failed to save duel %s: %w", id, err)
	}
	return nil
}

// Load returns a saved duel and its reconstructed engine state.
func (r *DuelRepository) Load(ctx context.Context, id string) (*SavedDuel, *game.State, error) {
	var saved SavedDuel
	err := r.db.Pool().QueryRow(ctx,
		`SELECT id, player0, player1, state, finished, updated_at FROM duels WHERE id = $1`,
		id,
	).Scan(&saved.ID, &saved.Player0, &saved.Player1, &saved.State, &saved.Finished, &saved.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrDuelNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load duel %s: %w", id, err)
	}

	state, err := game.ParseState(saved.State)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to restore duel %s: %w", id, err)
	}
	return &saved, state, nil
}

// ListByPlayer returns the saved duels a player took part in, newest first.
func (r *DuelRepository) ListByPlayer(ctx context.Context, username string) ([]SavedDuel, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT id, player0, player1, state, finished, updated_at
		 FROM duels WHERE player0 = $1 OR player1 = $1
		 ORDER BY updated_at DESC`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list duels for %s: %w", username, err)
	}
	defer rows.Close()

	var result []SavedDuel
	for rows.Next() {
		var saved SavedDuel
		if err := rows.Scan(&saved.ID, &saved.Player0, &saved.Player1, &saved.State, &saved.Finished, &saved.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan duel row: %w", err)
		}
		result = append(result, saved)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate duel rows: %w", err)
	}
	return result, nil
}
