// Package ussd implements the menu-driven session protocol for feature
// phones. The gateway posts every keypress chain with a session ID; replies
// starting with CON keep the session open, END closes it.
package ussd

import (
	"context"
	"sync"
	"time"

	"github.com/ent0n29/mamashield/internal/observability"
)

const defaultSessionTimeout = 90 * time.Second

// Session is one live USSD dialog, keyed by the gateway's session ID.
type Session struct {
	ID             string
	Phone          string
	StartedAt      time.Time
	LastActivityAt time.Time
}

// Manager tracks live sessions and expires the ones the gateway abandoned
// without a terminal screen.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	timeout  time.Duration
	obs      *observability.Metrics
	onExpire func(Session)
}

func NewManager(timeout time.Duration, obs *observability.Metrics) *Manager {
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}
	return &Manager{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		obs:      obs,
	}
}

// SetExpireHook registers a callback invoked once per expired session,
// outside the manager lock.
func (m *Manager) SetExpireHook(hook func(Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Ensure returns the session for sessionID, creating it on the first
// keypress and refreshing its activity timestamp on every later one.
func (m *Manager) Ensure(sessionID, phone string) Session {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		s = &Session{ID: sessionID, Phone: phone, StartedAt: now}
		m.sessions[sessionID] = s
	}
	s.LastActivityAt = now
	m.setGauge()
	return *s
}

// End removes the session after a terminal screen. The gateway never
// reuses a session ID, so ending an unknown one reports false.
func (m *Manager) End(sessionID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	delete(m.sessions, sessionID)
	m.setGauge()
	return *s, true
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartJanitor expires idle sessions until ctx is cancelled.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActivityAt) < m.timeout {
			continue
		}
		expired = append(expired, *s)
		delete(m.sessions, id)
	}
	m.setGauge()
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

// setGauge runs under the manager lock.
func (m *Manager) setGauge() {
	if m.obs != nil {
		m.obs.ActiveSessions.Set(float64(len(m.sessions)))
	}
}
