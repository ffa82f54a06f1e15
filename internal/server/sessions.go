package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Session represents a logged-in web user session.
type Session struct {
	Token     string
	Username  string
	Role      string
	ExpiresAt time.Time
}

// SessionStore handles in-memory web sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewSessionStore creates a session store with the given lifetime.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Create issues a fresh session token for a user.
func (s *SessionStore) Create(username, role string) Session {
	b := make([]byte, 16)
	rand.Read(b)
	token := hex.EncodeToString(b)

	session := Session{
		Token:     token,
		Username:  username,
		Role:      role,
		ExpiresAt: time.Now().Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[token] = &session
	s.mu.Unlock()

	return session
}

// Get returns a live session by token. Expired sessions are dropped.
func (s *SessionStore) Get(token string) (Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return Session{}, false
	}
	if time.Now().After(session.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return Session{}, false
	}
	return *session, true
}

// Delete removes a session by token.
func (s *SessionStore) Delete(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// PruneExpired removes sessions past their expiry.
func (s *SessionStore) PruneExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for token, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, token)
			count++
		}
	}
	return count
}

// StartCleanupLoop starts a background goroutine to prune expired sessions.
func (s *SessionStore) StartCleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.PruneExpired()
			case <-ctx.Done():
				return
			}
		}
	}()
}
