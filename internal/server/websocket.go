package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/openduel/duel-server-go/internal/config"
	"github.com/openduel/duel-server-go/internal/duel"
	"github.com/openduel/duel-server-go/internal/game"
	"github.com/openduel/duel-server-go/internal/repository"
	"github.com/openduel/duel-server-go/internal/session"
	"go.uber.org/zap"
)

// Envelope is the wire frame for every websocket message in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	DuelID    string          `json:"duel_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// CreatureSetup describes one creature when creating a duel.
type CreatureSetup struct {
	Controller int `json:"controller"`
	Power      int `json:"power"`
	Toughness  int `json:"toughness"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createDuelRequest struct {
	Creatures []CreatureSetup `json:"creatures"`
}

type declareAttackersRequest struct {
	Attackers []string `json:"attackers"`
}

type declareBlockersRequest struct {
	Blocks map[string]string `json:"blocks"`
}

type resolveCombatRequest struct {
	// Order maps attacker id to the chosen blocker damage order. When
	// omitted the assignment derived from the battleground is used.
	Order map[string][]string `json:"order,omitempty"`
}

// CreatureView is the wire rendering of one creature.
type CreatureView struct {
	ID         string `json:"id"`
	Controller int    `json:"controller"`
	Power      int    `json:"power"`
	Toughness  int    `json:"toughness"`
	Tapped     bool   `json:"tapped"`
	Attacking  bool   `json:"attacking"`
	Blocking   string `json:"blocking,omitempty"`
}

// StateView is the wire rendering of a duel state.
type StateView struct {
	DuelID    string         `json:"duel_id"`
	Players   [2]string      `json:"players"`
	Life      [2]int         `json:"life"`
	Active    int            `json:"active_player"`
	Phase     string         `json:"phase"`
	NextToAct int            `json:"next_to_act"`
	IsOver    bool           `json:"is_over"`
	Outcome   string         `json:"outcome,omitempty"`
	Creatures []CreatureView `json:"creatures"`
	Canonical string         `json:"canonical"`
}

type errorData struct {
	Message string `json:"message"`
}

type sessionData struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
}

// Server serves the duel protocol over websocket.
type Server struct {
	cfg      config.ServerConfig
	logger   *zap.Logger
	sessions *session.Manager
	users    *repository.UserRepository
	duelRepo *repository.DuelRepository
	duels    *duel.Manager

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	watchers map[string]map[*client]bool // duel id -> connected clients

	httpServer *http.Server
}

type client struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	username string
}

// NewServer creates a websocket duel server. The repositories may be nil for
// an in-memory (unauthenticated persistence-free) server, used in tests.
func NewServer(
	cfg config.ServerConfig,
	sessions *session.Manager,
	users *repository.UserRepository,
	duelRepo *repository.DuelRepository,
	duels *duel.Manager,
	logger *zap.Logger,
) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		users:    users,
		duelRepo: duelRepo,
		duels:    duels,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		watchers: make(map[string]map[*client]bool),
	}
}

// Handler returns the HTTP handler serving the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Start runs the server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("websocket server listening", zap.String("address", s.cfg.Address))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn}
	defer func() {
		s.dropWatcher(c)
		conn.Close()
	}()

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		s.dispatch(r.Context(), c, env)
	}
}

func (s *Server) dispatch(ctx context.Context, c *client, env Envelope) {
	switch env.Type {
	case "register":
		s.handleRegister(ctx, c, env)
	case "login":
		s.handleLogin(ctx, c, env)
	default:
		username, ok := s.authenticate(c, env)
		if !ok {
			return
		}
		switch env.Type {
		case "create_duel":
			s.handleCreateDuel(ctx, c, username, env)
		case "join_duel":
			s.handleJoinDuel(ctx, c, username, env)
		case "state":
			s.handleState(c, env)
		case "declare_attackers":
			s.handleDeclareAttackers(ctx, c, username, env)
		case "declare_blockers":
			s.handleDeclareBlockers(ctx, c, username, env)
		case "resolve_combat":
			s.handleResolveCombat(ctx, c, username, env)
		case "outcome":
			s.handleOutcome(c, env)
		default:
			s.sendError(c, "unknown message type: "+env.Type)
		}
	}
}

// authenticate resolves the session token on an envelope. When the server
// runs without repositories every connection is treated as a guest.
func (s *Server) authenticate(c *client, env Envelope) (string, bool) {
	if s.sessions == nil {
		if c.username == "" {
			c.username = "guest-" + uuid.New().String()[:8]
		}
		return c.username, true
	}
	sess, err := s.sessions.Validate(env.SessionID)
	if err != nil {
		s.sendError(c, "not authenticated: "+err.Error())
		return "", false
	}
	c.username = sess.Username
	return sess.Username, true
}

func (s *Server) handleRegister(ctx context.Context, c *client, env Envelope) {
	if s.users == nil {
		s.sendError(c, "registration disabled")
		return
	}
	var req credentialsRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		s.sendError(c, "malformed register request")
		return
	}
	if req.Username == "" || req.Password == "" {
		s.sendError(c, "username and password required")
		return
	}
	if err := s.users.Create(ctx, req.Username, req.Password); err != nil {
		s.sendError(c, "registration failed: "+err.Error())
		return
	}
	s.send(c, Envelope{Type: "registered"})
}

func (s *Server) handleLogin(ctx context.Context, c *client, env Envelope) {
	if s.users == nil || s.sessions == nil {
		s.sendError(c, "login disabled")
		return
	}
	var req credentialsRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		s.sendError(c, "malformed login request")
		return
	}
	user, err := s.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		s.sendError(c, "login failed")
		return
	}
	sess := s.sessions.Create(user.Username)
	c.username = user.Username
	s.sendData(c, "session", sessionData{SessionID: sess.ID, Username: user.Username})
}

func (s *Server) handleCreateDuel(ctx context.Context, c *client, username string, env Envelope) {
	var req createDuelRequest
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &req); err != nil {
			s.sendError(c, "malformed create_duel request")
			return
		}
	}
	ground := game.NewBattleground()
	for _, spec := range req.Creatures {
		if spec.Controller < 0 || spec.Controller > 1 {
			s.sendError(c, "creature controller must be 0 or 1")
			return
		}
		ground.Add(spec.Controller, spec.Power, spec.Toughness)
	}

	d := s.duels.Create(username, ground)
	s.watch(d.ID, c)
	s.persist(ctx, d)
	s.broadcastState(d)
}

func (s *Server) handleJoinDuel(ctx context.Context, c *client, username string, env Envelope) {
	d, err := s.duels.Join(env.DuelID, username)
	if err != nil {
		s.sendError(c, err.Error())
		return
	}
	s.watch(d.ID, c)
	s.persist(ctx, d)
	s.broadcastState(d)
}

func (s *Server) handleState(c *client, env Envelope) {
	d, err := s.duels.Get(env.DuelID)
	if err != nil {
		s.sendError(c, err.Error())
		return
	}
	s.watch(d.ID, c)
	s.sendState(c, d)
}

func (s *Server) handleDeclareAttackers(ctx context.Context, c *client, username string, env Envelope) {
	var req declareAttackersRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		s.sendError(c, "malformed declare_attackers request")
		return
	}
	s.act(ctx, c, username, env.DuelID, func(st *game.State) error {
		return st.DeclareAttackers(req.Attackers)
	})
}

func (s *Server) handleDeclareBlockers(ctx context.Context, c *client, username string, env Envelope) {
	var req declareBlockersRequest
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &req); err != nil {
			s.sendError(c, "malformed declare_blockers request")
			return
		}
	}
	s.act(ctx, c, username, env.DuelID, func(st *game.State) error {
		return st.DeclareBlockers(req.Blocks)
	})
}

func (s *Server) handleResolveCombat(ctx context.Context, c *client, username string, env Envelope) {
	var req resolveCombatRequest
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &req); err != nil {
			s.sendError(c, "malformed resolve_combat request")
			return
		}
	}
	s.act(ctx, c, username, env.DuelID, func(st *game.State) error {
		if req.Order == nil {
			return st.ResolveCombat()
		}
		assignment := game.NewCombatAssignment()
		for _, attackerID := range st.Battleground().CombatAssignment().Attackers() {
			assignment.Declare(attackerID)
			for _, blockerID := range req.Order[attackerID] {
				assignment.AddBlocker(attackerID, blockerID)
			}
		}
		return st.ResolveCombatOrdered(assignment)
	})
}

func (s *Server) handleOutcome(c *client, env Envelope) {
	d, err := s.duels.Get(env.DuelID)
	if err != nil {
		s.sendError(c, err.Error())
		return
	}
	outcome, err := d.Snapshot().Outcome()
	if err != nil {
		s.sendError(c, err.Error())
		return
	}
	s.sendData(c, "outcome", map[string]string{"outcome": outcome.String()})
}

// act routes a mutation through the duel manager, persists the new snapshot
// and broadcasts it to both seats.
func (s *Server) act(ctx context.Context, c *client, username, duelID string, fn func(*game.State) error) {
	d, err := s.duels.Get(duelID)
	if err != nil {
		s.sendError(c, err.Error())
		return
	}
	if !d.Full() {
		s.sendError(c, "duel is waiting for an opponent")
		return
	}
	if err := d.Act(username, fn); err != nil {
		s.sendError(c, err.Error())
		return
	}
	s.persist(ctx, d)
	s.broadcastState(d)
}

func (s *Server) persist(ctx context.Context, d *duel.Duel) {
	if s.duelRepo == nil {
		return
	}
	players := d.Players()
	saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.duelRepo.Save(saveCtx, d.ID, players[0], players[1], d.Snapshot()); err != nil {
		s.logger.Warn("failed to persist duel",
			zap.String("duel_id", d.ID),
			zap.Error(err),
		)
	}
}

func (s *Server) watch(duelID string, c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchers[duelID] == nil {
		s.watchers[duelID] = make(map[*client]bool)
	}
	s.watchers[duelID][c] = true
}

func (s *Server) dropWatcher(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, clients := range s.watchers {
		delete(clients, c)
	}
}

func (s *Server) broadcastState(d *duel.Duel) {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.watchers[d.ID]))
	for c := range s.watchers[d.ID] {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		s.sendState(c, d)
	}
}

func (s *Server) sendState(c *client, d *duel.Duel) {
	s.sendData(c, "duel_state", buildStateView(d))
}

func buildStateView(d *duel.Duel) StateView {
	st := d.Snapshot()
	view := StateView{
		DuelID:    d.ID,
		Players:   d.Players(),
		Life:      [2]int{st.Life(0), st.Life(1)},
		Active:    st.ActivePlayer(),
		Phase:     st.Phase().String(),
		NextToAct: st.NextToAct(),
		IsOver:    st.IsOver(),
		Canonical: st.String(),
	}
	if outcome, err := st.Outcome(); err == nil {
		view.Outcome = outcome.String()
	}
	for player := 0; player < 2; player++ {
		for _, creature := range st.Battleground().Creatures(player) {
			view.Creatures = append(view.Creatures, CreatureView{
				ID:         creature.ID(),
				Controller: creature.Controller(),
				Power:      creature.Power(),
				Toughness:  creature.Toughness(),
				Tapped:     creature.Tapped(),
				Attacking:  creature.Attacking(),
				Blocking:   creature.Blocking(),
			})
		}
	}
	return view
}

func (s *Server) sendError(c *client, message string) {
	s.sendData(c, "error", errorData{Message: message})
}

func (s *Server) sendData(c *client, msgType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal response", zap.Error(err))
		return
	}
	s.send(c, Envelope{Type: msgType, Data: payload})
}

func (s *Server) send(c *client, env Envelope) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(env); err != nil {
		s.logger.Debug("websocket write failed", zap.Error(err))
	}
}
