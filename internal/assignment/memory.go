package assignment

import (
	"context"
	"sync"
)

// MemoryStore keeps assignments in process. It backs the router when no
// PostgreSQL database is configured, in which case every lookup misses.
type MemoryStore struct {
	mu          sync.RWMutex
	assignments map[string]BrokerAssignment
	released    map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assignments: make(map[string]BrokerAssignment),
		released:    make(map[string]string),
	}
}

func (s *MemoryStore) Put(a BrokerAssignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[a.ConversationID] = a
	delete(s.released, a.ConversationID)
}

func (s *MemoryStore) Lookup(_ context.Context, conversationID string) (*BrokerAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[conversationID]
	if !ok {
		return nil, ErrNoBroker
	}
	return &a, nil
}

func (s *MemoryStore) ReleaseEngagement(_ context.Context, conversationID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released[conversationID] = reason
	return nil
}

// ReleaseReason returns the reason recorded by the last release, if any.
func (s *MemoryStore) ReleaseReason(conversationID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.released[conversationID]
	return r, ok
}
