package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"pkt.systems/agentdeck/internal/logx"
)

type session struct {
	id        string
	username  string
	expiresAt time.Time
}

type sessionStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]session
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{
		ttl:   ttl,
		items: make(map[string]session),
	}
}

func (s *sessionStore) create(username string) (string, session) {
	token := randomToken(32)
	entry := session{
		id:        randomToken(12),
		username:  username,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Lock()
	s.items[token] = entry
	s.mu.Unlock()
	logx.Ctx(context.Background()).With("user", username, "http_session", entry.id).
		Info("session created", "expires", entry.expiresAt.Format(time.RFC3339))
	return token, entry
}

func (s *sessionStore) get(token string) (session, bool) {
	s.mu.Lock()
	entry, ok := s.items[token]
	if !ok {
		s.mu.Unlock()
		return session{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.items, token)
		s.mu.Unlock()
		logx.Ctx(context.Background()).With("user", entry.username, "http_session", entry.id).
			Info("session expired")
		return session{}, false
	}
	s.mu.Unlock()
	return entry, true
}

func (s *sessionStore) delete(token string) {
	s.mu.Lock()
	entry, ok := s.items[token]
	if ok {
		delete(s.items, token)
	}
	s.mu.Unlock()
	if ok {
		logx.Ctx(context.Background()).With("user", entry.username, "http_session", entry.id).
			Info("session deleted")
	}
}

func randomToken(size int) string {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
