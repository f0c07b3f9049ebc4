package possession

import (
	"context"
	"sync"
	"time"

	id "biogate/pkg/domain"
	"biogate/pkg/platform/sentinel"
)

// InMemoryStore keeps sessions in a mutexed map. Critical sections are
// single map operations with no internal waiting, so the shared lock stays
// uncontended in practice while giving Consume its per-id atomicity.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[id.SessionID]*Session
	now      func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[id.SessionID]*Session),
		now:      time.Now,
	}
}

func (s *InMemoryStore) Create(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return sentinel.ErrConflict
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *InMemoryStore) Consume(_ context.Context, sessionID id.SessionID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	delete(s.sessions, sessionID)
	return session, nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context) (int, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for sid, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, sid)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored sessions, expired or not.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
