package memory

import (
	"context"
	"sync"
	"time"
)

type flagEntry struct {
	matchID string
	at      time.Time
}

// FlagStore is an in-memory anticheat.FlagStore. A match counts once per player.
type FlagStore struct {
	mu    sync.RWMutex
	flags map[string][]flagEntry
}

func NewFlagStore() *FlagStore {
	return &FlagStore{flags: make(map[string][]flagEntry)}
}

func (s *FlagStore) RecordFlag(_ context.Context, playerID, matchID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.flags[playerID]
	for i := range entries {
		if entries[i].matchID == matchID {
			entries[i].at = at
			return nil
		}
	}
	s.flags[playerID] = append(entries, flagEntry{matchID: matchID, at: at})
	return nil
}

func (s *FlagStore) CountFlags(_ context.Context, playerID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, e := range s.flags[playerID] {
		if !e.at.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *FlagStore) ClearFlags(_ context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, playerID)
	return nil
}

// SignalStore is an in-memory anticheat.SignalStore.
type SignalStore struct {
	mu      sync.Mutex
	signals map[string]map[string]struct{}
}

func NewSignalStore() *SignalStore {
	return &SignalStore{signals: make(map[string]map[string]struct{})}
}

func (s *SignalStore) Link(_ context.Context, kind, value, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := kind + ":" + value
	accounts, ok := s.signals[key]
	if !ok {
		accounts = make(map[string]struct{})
		s.signals[key] = accounts
	}
	accounts[accountID] = struct{}{}
	return len(accounts), nil
}
