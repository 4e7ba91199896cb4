package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openduel/duel-server-go/internal/config"
	"github.com/openduel/duel-server-go/internal/duel"
	"go.uber.org/zap/zaptest"
)

// newGuestServer starts an in-memory server with no repositories, so every
// connection authenticates as a distinct guest.
func newGuestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t)
	srv := NewServer(config.ServerConfig{}, nil, nil, nil, duel.NewManager(logger), logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, env Envelope) {
	t.Helper()
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write %s: %v", env.Type, err)
	}
}

// recvType reads frames until one of the wanted type arrives. Error frames
// received while waiting fail the test.
func recvType(t *testing.T, conn *websocket.Conn, want string) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if env.Type == "error" && want != "error" {
			var ed errorData
			_ = json.Unmarshal(env.Data, &ed)
			t.Fatalf("waiting for %s, got error: %s", want, ed.Message)
		}
		if env.Type == want {
			return env
		}
	}
}

// recvStateUntil reads duel_state broadcasts until one satisfies the
// predicate. Broadcasts can queue up on a connection, so state assertions
// always go through a predicate rather than reading a single frame.
func recvStateUntil(t *testing.T, conn *websocket.Conn, describe string, ok func(StateView) bool) StateView {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		env := recvType(t, conn, "duel_state")
		var view StateView
		if err := json.Unmarshal(env.Data, &view); err != nil {
			t.Fatalf("decode duel_state: %v", err)
		}
		if ok(view) {
			return view
		}
		t.Logf("skipping stale state while waiting for %s: %s", describe, view.Canonical)
	}
}

func marshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return data
}

func TestDuelOverWebsocket(t *testing.T) {
	ts := newGuestServer(t)
	alice := dialWS(t, ts)
	bob := dialWS(t, ts)

	// Alice creates a duel with one attacker for seat 0 and one potential
	// blocker for seat 1.
	sendEnvelope(t, alice, Envelope{
		Type: "create_duel",
		Data: marshal(t, createDuelRequest{Creatures: []CreatureSetup{
			{Controller: 0, Power: 4, Toughness: 4},
			{Controller: 1, Power: 2, Toughness: 2},
		}}),
	})
	created := recvStateUntil(t, alice, "created duel", func(v StateView) bool { return v.DuelID != "" })
	if created.Life != [2]int{20, 20} {
		t.Fatalf("unexpected starting life: %v", created.Life)
	}
	if len(created.Creatures) != 2 {
		t.Fatalf("expected 2 creatures, got %d", len(created.Creatures))
	}
	attackerID := created.Creatures[0].ID

	// Acting before the opponent joins is rejected.
	sendEnvelope(t, alice, Envelope{
		Type:   "declare_attackers",
		DuelID: created.DuelID,
		Data:   marshal(t, declareAttackersRequest{Attackers: []string{attackerID}}),
	})
	recvType(t, alice, "error")

	sendEnvelope(t, bob, Envelope{Type: "join_duel", DuelID: created.DuelID})
	joined := recvStateUntil(t, bob, "joined duel", func(v StateView) bool {
		return v.Players[0] != "" && v.Players[1] != ""
	})
	if joined.Players[0] == joined.Players[1] {
		t.Fatalf("expected distinct guests, got %v", joined.Players)
	}

	// Alice attacks with her 4/4, Bob declines to block.
	sendEnvelope(t, alice, Envelope{
		Type:   "declare_attackers",
		DuelID: created.DuelID,
		Data:   marshal(t, declareAttackersRequest{Attackers: []string{attackerID}}),
	})
	attacked := recvStateUntil(t, alice, "attack declared", func(v StateView) bool {
		return v.Phase == "DECLARE_BLOCKERS"
	})
	if attacked.NextToAct != 1 {
		t.Fatalf("expected seat 1 to act, got %d", attacked.NextToAct)
	}

	sendEnvelope(t, bob, Envelope{
		Type:   "declare_blockers",
		DuelID: created.DuelID,
		Data:   marshal(t, declareBlockersRequest{}),
	})
	recvStateUntil(t, bob, "blockers declared", func(v StateView) bool {
		return v.Phase == "COMBAT_STEP"
	})

	sendEnvelope(t, alice, Envelope{Type: "resolve_combat", DuelID: created.DuelID})
	resolved := recvStateUntil(t, alice, "combat resolved", func(v StateView) bool {
		return v.Life == [2]int{20, 16}
	})
	if resolved.Active != 1 {
		t.Fatalf("expected turn to pass to seat 1, got active %d", resolved.Active)
	}

	// The other seat sees the same broadcast.
	recvStateUntil(t, bob, "combat resolved broadcast", func(v StateView) bool {
		return v.Canonical == resolved.Canonical
	})
}

func TestWebsocketRejectsBadRequests(t *testing.T) {
	ts := newGuestServer(t)
	conn := dialWS(t, ts)

	sendEnvelope(t, conn, Envelope{Type: "no_such_type"})
	recvType(t, conn, "error")

	sendEnvelope(t, conn, Envelope{Type: "state", DuelID: "missing"})
	recvType(t, conn, "error")

	sendEnvelope(t, conn, Envelope{Type: "register"})
	recvType(t, conn, "error") // registration disabled without a user repository

	sendEnvelope(t, conn, Envelope{
		Type: "create_duel",
		Data: marshal(t, createDuelRequest{Creatures: []CreatureSetup{
			{Controller: 7, Power: 1, Toughness: 1},
		}}),
	})
	recvType(t, conn, "error")
}

func TestWebsocketOutcome(t *testing.T) {
	ts := newGuestServer(t)
	alice := dialWS(t, ts)
	bob := dialWS(t, ts)

	sendEnvelope(t, alice, Envelope{
		Type: "create_duel",
		Data: marshal(t, createDuelRequest{Creatures: []CreatureSetup{
			{Controller: 0, Power: 20, Toughness: 20},
		}}),
	})
	created := recvStateUntil(t, alice, "created duel", func(v StateView) bool { return v.DuelID != "" })
	attackerID := created.Creatures[0].ID

	sendEnvelope(t, bob, Envelope{Type: "join_duel", DuelID: created.DuelID})
	recvStateUntil(t, bob, "joined duel", func(v StateView) bool {
		return v.Players[1] != ""
	})

	// The outcome of an unfinished duel is an error.
	sendEnvelope(t, alice, Envelope{Type: "outcome", DuelID: created.DuelID})
	recvType(t, alice, "error")

	sendEnvelope(t, alice, Envelope{
		Type:   "declare_attackers",
		DuelID: created.DuelID,
		Data:   marshal(t, declareAttackersRequest{Attackers: []string{attackerID}}),
	})
	recvStateUntil(t, bob, "attack declared", func(v StateView) bool {
		return v.Phase == "DECLARE_BLOCKERS"
	})
	sendEnvelope(t, bob, Envelope{
		Type:   "declare_blockers",
		DuelID: created.DuelID,
		Data:   marshal(t, declareBlockersRequest{}),
	})
	recvStateUntil(t, bob, "blockers declared", func(v StateView) bool {
		return v.Phase == "COMBAT_STEP"
	})
	sendEnvelope(t, alice, Envelope{Type: "resolve_combat", DuelID: created.DuelID})

	recvStateUntil(t, alice, "lethal combat", func(v StateView) bool { return v.IsOver })

	sendEnvelope(t, alice, Envelope{Type: "outcome", DuelID: created.DuelID})
	env := recvType(t, alice, "outcome")
	var data map[string]string
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	// Player 1 is dead and on move after the turn passed, so the engine
	// reports a loss for the player on move.
	if data["outcome"] != "LOSS" {
		t.Fatalf("expected LOSS for the player on move, got %s", data["outcome"])
	}
}
