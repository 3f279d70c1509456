package memory

import (
	"context"
	"sync"

	"github.com/m3rciful/meterdesk/internal/conversation"
)

// Sessions is an in-process conversation.SessionStore; state is lost on restart.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[conversation.Key]conversation.Session
}

// NewSessions constructs an empty store.
func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[conversation.Key]conversation.Session)}
}

// Load returns the stored session, if any.
func (m *Sessions) Load(_ context.Context, key conversation.Key) (conversation.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return conversation.Session{}, false, nil
	}
	s.Prompt = append([]conversation.Option(nil), s.Prompt...)
	return s, true, nil
}

// Save stores s when its version matches the stored one.
func (m *Sessions) Save(_ context.Context, s *conversation.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.Key]
	switch {
	case !ok && s.Version != 0, ok && cur.Version != s.Version:
		return conversation.ErrSessionConflict
	}
	s.Version++
	cp := *s
	cp.Prompt = append([]conversation.Option(nil), s.Prompt...)
	m.sessions[s.Key] = cp
	return nil
}

// Len reports how many sessions are held.
func (m *Sessions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
