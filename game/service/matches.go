package service

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/couchplay/server/game/session"
)

// Match is a completed game kept for the post-game screen and simple
// history queries.
type Match struct {
	ID string `json:"id"`
	session.MatchRecord
}

// MatchStore persists completed matches.
type MatchStore interface {
	RecordMatch(rec session.MatchRecord) error
	Get(id string) (*Match, bool)
	ListByRoom(roomID string) []*Match
	List(limit int) []*Match
}

// InMemoryMatchStore keeps match history in process memory.
type InMemoryMatchStore struct {
	mu      sync.RWMutex
	matches map[string]*Match
	order   []string
}

// NewInMemoryMatchStore creates an empty store.
func NewInMemoryMatchStore() *InMemoryMatchStore {
	return &InMemoryMatchStore{matches: make(map[string]*Match)}
}

// RecordMatch stores a finished match. Implements the registry's recorder
// hook.
func (s *InMemoryMatchStore) RecordMatch(rec session.MatchRecord) error {
	match := &Match{
		ID:          uuid.NewString(),
		MatchRecord: rec,
	}

	s.mu.Lock()
	s.matches[match.ID] = match
	s.order = append(s.order, match.ID)
	s.mu.Unlock()

	return nil
}

// Get returns one match by id.
func (s *InMemoryMatchStore) Get(id string) (*Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	match, ok := s.matches[id]
	return match, ok
}

// ListByRoom returns matches played in a room, oldest first.
func (s *InMemoryMatchStore) ListByRoom(roomID string) []*Match {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Match
	for _, id := range s.order {
		if m := s.matches[id]; m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out
}

// List returns the most recent matches, newest first, at most limit.
func (s *InMemoryMatchStore) List(limit int) []*Match {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Match, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.matches[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
