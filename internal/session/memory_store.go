package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bbsfolio/api/internal/content"
)

type memorySession struct {
	played    map[string]bool
	expiresAt time.Time
}

// MemoryStore is the single-process fallback used when no Redis URL is configured.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*memorySession
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, sessions: make(map[string]*memorySession)}
}

func (s *MemoryStore) live(sessionID string) *memorySession {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if !s.now().Before(sess.expiresAt) {
		delete(s.sessions, sessionID)
		return nil
	}
	return sess
}

func (s *MemoryStore) Played(_ context.Context, sessionID string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	played := map[string]bool{}
	if sess := s.live(sessionID); sess != nil {
		for key, value := range sess.played {
			played[key] = value
		}
	}
	return played, nil
}

func (s *MemoryStore) MarkPlayed(_ context.Context, sessionID, sectionKey string) error {
	key := content.NormalizeKey(sectionKey)
	if key == "" {
		return fmt.Errorf("%w: key must be a single character", content.ErrInvalidSection)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.live(sessionID)
	if sess == nil {
		sess = &memorySession{played: map[string]bool{}}
		s.sessions[sessionID] = sess
	}
	sess.played[key] = true
	sess.expiresAt = s.now().Add(s.ttl)
	return nil
}

func (s *MemoryStore) End(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
