// Package session issues and tracks the anonymous player identities
// the HTTP layer hands out. A session is a bearer token with a display
// name and a lease; the lease is refreshed by any authenticated
// request and by heartbeats.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultLease is how long a session stays valid without a
	// heartbeat.
	DefaultLease = 60 * time.Second

	maxNameRunes = 28
	fallbackName = "Player"
)

// Session is one issued identity. The token is the bearer secret, so
// it never appears in logs.
type Session struct {
	Token    string    `json:"token"`
	Name     string    `json:"name"`
	LastSeen time.Time `json:"last_seen"`
}

// IntentClearer withdraws a player's pending intents across matches.
// Locked parallel commitments are not touched; those belong to the
// conflict protocol regardless of who is still connected.
type IntentClearer interface {
	ClearIntents(token string)
}

// Manager owns the live session table. Safe for concurrent use.
type Manager struct {
	logger  *zap.Logger
	lease   time.Duration
	clearer IntentClearer

	mu       sync.RWMutex
	sessions map[string]*Session
	names    map[string]bool // lowercased display names in use
}

// NewManager creates a session manager with the given lease. A nil
// logger disables logging; a nil clearer disables intent cleanup.
func NewManager(logger *zap.Logger, lease time.Duration, clearer IntentClearer) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lease <= 0 {
		lease = DefaultLease
	}
	return &Manager{
		logger:   logger,
		lease:    lease,
		clearer:  clearer,
		sessions: make(map[string]*Session),
		names:    make(map[string]bool),
	}
}

// Lease returns the configured lease duration.
func (m *Manager) Lease() time.Duration {
	return m.lease
}

// Create issues a fresh session. The requested name is sanitized and
// made unique among live sessions.
func (m *Manager) Create(name string) Session {
	base := sanitizeName(name)

	m.mu.Lock()
	unique := m.claimName(base)
	s := &Session{
		Token:    uuid.NewString(),
		Name:     unique,
		LastSeen: time.Now(),
	}
	m.sessions[s.Token] = s
	m.mu.Unlock()

	m.logger.Info("session created", zap.String("name", unique))
	return *s
}

// Get returns the session for the token if it exists and its lease has
// not run out.
func (m *Manager) Get(token string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	if !ok || time.Since(s.LastSeen) > m.lease {
		return Session{}, false
	}
	return *s, true
}

// Touch refreshes the session's lease. An expired or unknown token
// cannot be refreshed; the player has to join again.
func (m *Manager) Touch(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok || time.Since(s.LastSeen) > m.lease {
		return false
	}
	s.LastSeen = time.Now()
	return true
}

// Remove ends the session and withdraws its pending intents.
func (m *Manager) Remove(token string) {
	m.mu.Lock()
	s, ok := m.sessions[token]
	if ok {
		delete(m.sessions, token)
		delete(m.names, strings.ToLower(s.Name))
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if m.clearer != nil {
		m.clearer.ClearIntents(token)
	}
	m.logger.Info("session removed", zap.String("name", s.Name))
}

// Len reports the number of live sessions, expired ones included
// until the sweeper gets to them.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupExpired sweeps expired sessions until the context is
// cancelled. Run it as a goroutine next to the server.
func (m *Manager) CleanupExpired(ctx context.Context) {
	interval := m.lease / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	var expired []*Session
	m.mu.Lock()
	for token, s := range m.sessions {
		if time.Since(s.LastSeen) > m.lease {
			delete(m.sessions, token)
			delete(m.names, strings.ToLower(s.Name))
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		if m.clearer != nil {
			m.clearer.ClearIntents(s.Token)
		}
		m.logger.Info("session expired", zap.String("name", s.Name))
	}
}

// sanitizeName collapses whitespace and caps the length. Empty input
// falls back to a generic name.
func sanitizeName(raw string) string {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return fallbackName
	}
	if runes := []rune(name); len(runes) > maxNameRunes {
		name = strings.TrimSpace(string(runes[:maxNameRunes]))
	}
	return name
}

// claimName reserves a display name, suffixing a counter when the
// requested one is taken. Uniqueness is case-insensitive. Call with
// the manager lock held.
func (m *Manager) claimName(base string) string {
	name := base
	for i := 2; m.names[strings.ToLower(name)]; i++ {
		name = fmt.Sprintf("%s (%d)", base, i)
	}
	m.names[strings.ToLower(name)] = true
	return name
}
