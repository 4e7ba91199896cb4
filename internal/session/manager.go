package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is one authenticated connection lease.
type Session struct {
	ID        string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Manager issues and validates lease-expiring session tokens.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	leasePeriod time.Duration
	logger      *zap.Logger
}

// NewManager creates a session manager. Sessions expire leasePeriod after
// their last renewal.
func NewManager(leasePeriod time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		leasePeriod: leasePeriod,
		logger:      logger,
	}
}

// Create issues a new session for the given user.
func (m *Manager) Create(username string) *Session {
	now := time.Now()
	s := &Session{
		ID:        uuid.New().String(),
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(m.leasePeriod),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("session created",
		zap.String("session_id", s.ID),
		zap.String("username", username),
	)
	return s
}

// Validate checks a session token and renews its lease.
func (m *Manager) Validate(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	if time.Now().After(s.ExpiresAt) {
		delete(m.sessions, sessionID)
		return nil, fmt.Errorf("session %s expired", sessionID)
	}
	s.ExpiresAt = time.Now().Add(m.leasePeriod)
	return s, nil
}

// Close removes a session.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// CloseAll removes every session, used during shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupExpiredSessions periodically drops expired sessions until the
// context is cancelled.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) {
	ticker := time.NewTicker(m.leasePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reap()
		}
	}
}

func (m *Manager) reap() {
	now := time.Now()
	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, id)
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.logger.Debug("session expired", zap.String("session_id", id))
	}
}
