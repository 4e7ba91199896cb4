package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/openduel/duel-server-go/internal/game"
	"go.uber.org/zap"
)

var (
	playouts = flag.Int("playouts", 1000, "number of random playouts to run")
	maxTurns = flag.Int("max-turns", 200, "turn limit per playout before calling it stalled")
	seed     = flag.Int64("seed", 1, "random seed")
	verbose  = flag.Bool("verbose", false, "log every playout result")
)

// simulate plays random legal moves from a fixed opening board until the
// duel ends, exercising the engine contract a game-tree search relies on:
// cheap deep copies and collision-free canonical keys for deduplication.
func main() {
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	rng := rand.New(rand.NewSource(*seed))
	visited := make(map[string]bool)
	tallies := map[string]int{}

	for i := 0; i < *playouts; i++ {
		result := playout(rng, visited, *maxTurns)
		tallies[result]++
		if *verbose {
			logger.Info("playout finished",
				zap.Int("playout", i),
				zap.String("result", result),
			)
		}
	}

	logger.Info("simulation complete",
		zap.Int("playouts", *playouts),
		zap.Int("distinct_states", len(visited)),
		zap.Int("p0_wins", tallies["p0"]),
		zap.Int("p1_wins", tallies["p1"]),
		zap.Int("draws", tallies["draw"]),
		zap.Int("stalled", tallies["stalled"]),
	)
}

func openingBoard() *game.Battleground {
	ground := game.NewBattleground()
	ground.Add(0, 2, 2)
	ground.Add(0, 4, 4)
	ground.Add(0, 1, 3)
	ground.Add(1, 3, 3)
	ground.Add(1, 5, 5)
	ground.Add(1, 2, 1)
	return ground
}

func playout(rng *rand.Rand, visited map[string]bool, maxTurns int) string {
	state := game.NewStateWith(openingBoard())

	for turn := 0; turn < maxTurns; turn++ {
		if state.IsOver() {
			return resultOf(state)
		}
		visited[state.Key()] = true

		if err := playTurn(rng, state); err != nil {
			panic(fmt.Sprintf("illegal move generated: %v", err))
		}
	}
	return "stalled"
}

// playTurn drives one full turn with random legal declarations.
func playTurn(rng *rand.Rand, state *game.State) error {
	var attackers []string
	for _, creature := range state.AttackingPlayerCreatures() {
		if !creature.Tapped() && rng.Intn(2) == 0 {
			attackers = append(attackers, creature.ID())
		}
	}
	if err := state.DeclareAttackers(attackers); err != nil {
		return err
	}
	if len(attackers) == 0 {
		return nil
	}

	blocks := make(map[string]string)
	for _, creature := range state.DefendingPlayerCreatures() {
		if creature.Tapped() || rng.Intn(2) == 0 {
			continue
		}
		blocks[creature.ID()] = attackers[rng.Intn(len(attackers))]
	}
	if err := state.DeclareBlockers(blocks); err != nil {
		return err
	}

	// Half the time exercise the explicit reorder path with a shuffled
	// blocker order.
	derived := state.Battleground().CombatAssignment()
	if rng.Intn(2) == 0 {
		return state.ResolveCombat()
	}
	shuffled := game.NewCombatAssignment()
	for _, attackerID := range derived.Attackers() {
		shuffled.Declare(attackerID)
		blockers := derived.Blockers(attackerID)
		rng.Shuffle(len(blockers), func(i, j int) {
			blockers[i], blockers[j] = blockers[j], blockers[i]
		})
		for _, blockerID := range blockers {
			shuffled.AddBlocker(attackerID, blockerID)
		}
	}
	return state.ResolveCombatOrdered(shuffled)
}

func resultOf(state *game.State) string {
	outcome, err := state.Outcome()
	if err != nil {
		return "stalled"
	}
	if outcome == game.OutcomeDraw {
		return "draw"
	}
	// Outcome is relative to the player next to act; translate to a seat.
	winner := state.NextToAct()
	if outcome == game.OutcomeLoss {
		winner = 1 - winner
	}
	if winner == 0 {
		return "p0"
	}
	return "p1"
}
