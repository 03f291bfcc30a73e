// Package anticheat separates plausible human answer timing from scripted play.
package anticheat

import (
	"fmt"
	"time"

	"quiz-battle-service/internal/domain"
)

// Config holds timing thresholds for a monitor.
type Config struct {
	HardFloor       time.Duration // answers faster than this are rejected outright
	MinAnswerTime   time.Duration // correct answers below this are suspicious
	FastFactor      float64       // streak counts answers below MinAnswerTime*FastFactor
	StreakThreshold int
	WindowSize      int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		HardFloor:       200 * time.Millisecond,
		MinAnswerTime:   2 * time.Second,
		FastFactor:      1.5,
		StreakThreshold: 5,
		WindowSize:      10,
	}
}

// Sample is one recorded answer timing.
type Sample struct {
	AnswerTime time.Duration
	Correct    bool
	At         time.Time
}

// Profile is the timing history of one player within one match.
type Profile struct {
	PlayerID          string
	Window            []Sample
	FastCorrectStreak int
	SuspiciousEvents  int
	Flagged           bool
	FlaggedAt         time.Time
}

// Verdict summarizes what a single Record call observed.
type Verdict struct {
	Suspicious   bool
	NewlyFlagged bool
	Streak       int
}

// Monitor tracks profiles for the players of a single match.
// It is not safe for concurrent use; the owning match serializes access.
type Monitor struct {
	config   Config
	profiles map[string]*Profile
}

func NewMonitor(config Config) *Monitor {
	if config.FastFactor <= 0 {
		config.FastFactor = 1.5
	}
	if config.WindowSize <= 0 {
		config.WindowSize = 10
	}
	return &Monitor{
		config:   config,
		profiles: make(map[string]*Profile),
	}
}

// Check runs before scoring. Slow answers always pass; impossible ones are rejected.
func (m *Monitor) Check(elapsed time.Duration, clientElapsedMs int64) error {
	if clientElapsedMs < 0 {
		return fmt.Errorf("%w: negative client elapsed %dms", domain.ErrAnswerTimingViolation, clientElapsedMs)
	}
	if elapsed < m.config.HardFloor {
		return fmt.Errorf("%w: answered after %s, floor is %s", domain.ErrAnswerTimingViolation, elapsed, m.config.HardFloor)
	}
	return nil
}

// Record appends an accepted answer and updates the fast-correct streak. A
// question the player let time out is recorded as incorrect.
func (m *Monitor) Record(playerID string, elapsed time.Duration, correct bool, at time.Time) Verdict {
	p, ok := m.profiles[playerID]
	if !ok {
		p = &Profile{PlayerID: playerID}
		m.profiles[playerID] = p
	}

	p.Window = append(p.Window, Sample{AnswerTime: elapsed, Correct: correct, At: at})
	if len(p.Window) > m.config.WindowSize {
		p.Window = p.Window[len(p.Window)-m.config.WindowSize:]
	}

	var v Verdict
	if correct && elapsed < m.config.MinAnswerTime {
		p.SuspiciousEvents++
		v.Suspicious = true
	}

	fastLimit := time.Duration(float64(m.config.MinAnswerTime) * m.config.FastFactor)
	if correct && elapsed < fastLimit {
		p.FastCorrectStreak++
	} else {
		p.FastCorrectStreak = 0
	}
	v.Streak = p.FastCorrectStreak

	if !p.Flagged && m.config.StreakThreshold > 0 && p.FastCorrectStreak >= m.config.StreakThreshold {
		p.Flagged = true
		p.FlaggedAt = at
		v.NewlyFlagged = true
	}
	return v
}

// Profile returns a copy of the player's profile.
func (m *Monitor) Profile(playerID string) (Profile, bool) {
	p, ok := m.profiles[playerID]
	if !ok {
		return Profile{}, false
	}
	cp := *p
	cp.Window = append([]Sample(nil), p.Window...)
	return cp, true
}

// Reset discards every profile, used when the match is archived.
func (m *Monitor) Reset() {
	m.profiles = make(map[string]*Profile)
}
