package memory

import (
	"context"
	"sync"

	"quiz-battle-service/internal/domain"
)

// Recorder is an in-memory app.EventSink that keeps every delivered event.
type Recorder struct {
	mu         sync.Mutex
	answers    []domain.AnswerEvent
	suspicious []domain.SuspiciousActivity
	results    []domain.MatchResult
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) AnswerRecorded(_ context.Context, ev domain.AnswerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers = append(r.answers, ev)
	return nil
}

func (r *Recorder) SuspiciousActivityFlagged(_ context.Context, act domain.SuspiciousActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspicious = append(r.suspicious, act)
	return nil
}

func (r *Recorder) MatchCompleted(_ context.Context, result domain.MatchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *Recorder) Answers() []domain.AnswerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AnswerEvent(nil), r.answers...)
}

func (r *Recorder) Suspicious() []domain.SuspiciousActivity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.SuspiciousActivity(nil), r.suspicious...)
}

func (r *Recorder) Results() []domain.MatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.MatchResult(nil), r.results...)
}

// StreakStore tracks win streaks from completed matches. It is both an
// app.StreakSource and an app.EventSink.
type StreakStore struct {
	mu      sync.RWMutex
	streaks map[string]int
}

func NewStreakStore() *StreakStore {
	return &StreakStore{streaks: make(map[string]int)}
}

func (s *StreakStore) WinStreak(_ context.Context, playerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streaks[playerID], nil
}

func (s *StreakStore) Set(playerID string, streak int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaks[playerID] = streak
}

func (s *StreakStore) AnswerRecorded(context.Context, domain.AnswerEvent) error { return nil }

func (s *StreakStore) SuspiciousActivityFlagged(context.Context, domain.SuspiciousActivity) error {
	return nil
}

func (s *StreakStore) MatchCompleted(_ context.Context, result domain.MatchResult) error {
	s.Observe(result)
	return nil
}

// Observe updates streaks from a terminal result. Aborted matches leave streaks alone.
func (s *StreakStore) Observe(result domain.MatchResult) {
	if result.Status == domain.PhaseAborted || len(result.Players) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range result.Players {
		if domain.IsBot(p) {
			continue
		}
		won := (i == 0 && result.Status == domain.PhaseVictory) || (i == 1 && result.Status == domain.PhaseDefeat)
		if won {
			s.streaks[p]++
		} else {
			s.streaks[p] = 0
		}
	}
}
