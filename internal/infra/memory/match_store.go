package memory

import (
	"fmt"
	"sort"
	"sync"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

// MatchStore is an in-memory implementation of app.MatchRepository.
type MatchStore struct {
	mu       sync.RWMutex
	matches  map[string]*app.Match
	byPlayer map[string]map[string]struct{}
}

func NewMatchStore() *MatchStore {
	return &MatchStore{
		matches:  make(map[string]*app.Match),
		byPlayer: make(map[string]map[string]struct{}),
	}
}

func (s *MatchStore) Add(m *app.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[m.ID()]; ok {
		return fmt.Errorf("%w: %s", domain.ErrMatchExists, m.ID())
	}
	s.matches[m.ID()] = m
	for _, p := range m.Players() {
		ids, ok := s.byPlayer[p]
		if !ok {
			ids = make(map[string]struct{})
			s.byPlayer[p] = ids
		}
		ids[m.ID()] = struct{}{}
	}
	return nil
}

func (s *MatchStore) Get(matchID string) (*app.Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[matchID]
	return m, ok
}

func (s *MatchStore) Delete(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return
	}
	delete(s.matches, matchID)
	for _, p := range m.Players() {
		delete(s.byPlayer[p], matchID)
		if len(s.byPlayer[p]) == 0 {
			delete(s.byPlayer, p)
		}
	}
}

func (s *MatchStore) ForPlayer(playerID string) []*app.Match {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Match, 0, len(s.byPlayer[playerID]))
	for id := range s.byPlayer[playerID] {
		out = append(out, s.matches[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (s *MatchStore) All() []*app.Match {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Match, 0, len(s.matches))
	for _, m := range s.matches {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
