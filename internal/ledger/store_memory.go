package ledger

import (
	"context"
	"sync"

	id "biogate/pkg/domain"
)

// InMemoryStore is the default ledger backend and the one tests use.
// Access entries stay indexed under their original user key even after
// anonymization, so an export following erasure still returns the
// de-identified entries (the payload no longer names the user, the index
// key never leaves the process).
type InMemoryStore struct {
	mu       sync.RWMutex
	consents map[id.UserID][]ConsentRecord
	access   map[id.UserID][]*AccessLogEntry
	total    int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		consents: make(map[id.UserID][]ConsentRecord),
		access:   make(map[id.UserID][]*AccessLogEntry),
	}
}

func (s *InMemoryStore) AppendConsent(_ context.Context, record ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consents[record.UserID] = append(s.consents[record.UserID], record)
	return nil
}

func (s *InMemoryStore) ConsentsByUser(_ context.Context, userID id.UserID) ([]ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ConsentRecord{}, s.consents[userID]...), nil
}

func (s *InMemoryStore) AppendAccess(_ context.Context, entry AccessLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := entry
	s.access[id.UserID(entry.Subject)] = append(s.access[id.UserID(entry.Subject)], &stored)
	s.total++
	return nil
}

func (s *InMemoryStore) AccessByUser(_ context.Context, userID id.UserID) ([]AccessLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]AccessLogEntry, 0, len(s.access[userID]))
	for _, entry := range s.access[userID] {
		entries = append(entries, *entry)
	}
	return entries, nil
}

func (s *InMemoryStore) DeleteConsents(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := len(s.consents[userID])
	delete(s.consents, userID)
	return removed, nil
}

func (s *InMemoryStore) AnonymizeAccess(_ context.Context, userID id.UserID, pseudonym string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for _, entry := range s.access[userID] {
		if entry.Anonymized {
			continue
		}
		entry.Subject = pseudonym
		entry.Anonymized = true
		changed++
	}
	return changed, nil
}

func (s *InMemoryStore) CountAccess(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total, nil
}
