package profile

import (
	"context"
	"maps"
	"sync"

	id "biogate/pkg/domain"
	"biogate/pkg/platform/sentinel"
)

// InMemoryStore keeps profiles in a mutexed map. FindByID hands out deep
// copies so read-then-mutate races go through Update instead.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[id.UserID]*Profile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[id.UserID]*Profile)}
}

func (s *InMemoryStore) Save(_ context.Context, profile *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = clone(profile)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.profiles[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(stored), nil
}

func (s *InMemoryStore) Update(_ context.Context, userID id.UserID, fn func(*Profile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.profiles[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	updated := clone(stored)
	if err := fn(updated); err != nil {
		return err
	}
	s.profiles[userID] = updated
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, userID)
	return nil
}

func clone(p *Profile) *Profile {
	copied := *p
	copied.Modalities = maps.Clone(p.Modalities)
	copied.Rights = maps.Clone(p.Rights)
	return &copied
}
