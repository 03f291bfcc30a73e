package app_test

import (
	"fmt"
	"sync"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 22, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	mu      sync.Mutex
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

func (t *fakeTimer) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped && !t.fired
}

// fire runs the callback even when stopped, like a time.AfterFunc that already started.
func (t *fakeTimer) fire() {
	t.mu.Lock()
	t.fired = true
	t.mu.Unlock()
	t.f()
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) app.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// pending returns the active timers scheduled with duration d.
func (s *fakeScheduler) pending(d time.Duration) []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if t.d == d && t.active() {
			out = append(out, t)
		}
	}
	return out
}

func (s *fakeScheduler) all(d time.Duration) []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if t.d == d {
			out = append(out, t)
		}
	}
	return out
}

const (
	questionTime = 10 * time.Second
	revealDelay  = 3 * time.Second
	gracePeriod  = 15 * time.Second
)

func testMatchConfig(clock *fakeClock, sched *fakeScheduler) app.MatchConfig {
	cfg := app.DefaultMatchConfig()
	cfg.Clock = clock.Now
	cfg.AfterFunc = sched.AfterFunc
	cfg.RevealDelay = revealDelay
	cfg.GracePeriod = gracePeriod
	return cfg
}

func testQuestions(n int) []domain.Question {
	out := make([]domain.Question, n)
	for i := range out {
		out[i] = domain.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			Text:          fmt.Sprintf("question %d", i+1),
			Alternatives:  []string{"a", "b", "c", "d"},
			CorrectAnswer: "a",
			Category:      "general",
			Difficulty:    1,
		}
	}
	return out
}

func testRuleset(n int) domain.Ruleset {
	return domain.Ruleset{TimePerQuestion: questionTime, QuestionCount: n}
}

func countEvents(events []domain.Event, typ domain.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
