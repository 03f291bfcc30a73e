package bot

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"quiz-battle-service/internal/domain"
)

// Level selects a bot policy. The level is the suffix of the bot identity, e.g. "bot:hard".
type Level string

const (
	LevelEasy   Level = "easy"
	LevelMedium Level = "medium"
	LevelHard   Level = "hard"
)

// Policy is a scripted answering behaviour.
type Policy struct {
	Accuracy float64
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultPolicies keep every bot above the anti-cheat floors a human would trip.
func DefaultPolicies() map[Level]Policy {
	return map[Level]Policy{
		LevelEasy:   {Accuracy: 0.5, MinDelay: 4 * time.Second, MaxDelay: 9 * time.Second},
		LevelMedium: {Accuracy: 0.7, MinDelay: 2500 * time.Millisecond, MaxDelay: 6 * time.Second},
		LevelHard:   {Accuracy: 0.9, MinDelay: 1500 * time.Millisecond, MaxDelay: 4 * time.Second},
	}
}

// ParseLevel extracts the level from a bot identity. Unknown suffixes map to medium.
func ParseLevel(playerID string) (Level, error) {
	if !domain.IsBot(playerID) {
		return "", fmt.Errorf("not a bot identity: %q", playerID)
	}
	switch l := Level(strings.TrimPrefix(playerID, domain.BotPrefix)); l {
	case LevelEasy, LevelMedium, LevelHard:
		return l, nil
	}
	return LevelMedium, nil
}

// Choose picks the correct answer with probability Accuracy, otherwise a wrong alternative.
func (p Policy) Choose(q domain.Question, rnd *rand.Rand) string {
	if rnd.Float64() < p.Accuracy {
		return q.CorrectAnswer
	}
	var wrong []string
	for _, a := range q.Alternatives {
		if a != q.CorrectAnswer {
			wrong = append(wrong, a)
		}
	}
	if len(wrong) == 0 {
		return ""
	}
	return wrong[rnd.IntN(len(wrong))]
}

// Delay draws a think time in [MinDelay, MaxDelay].
func (p Policy) Delay(rnd *rand.Rand) time.Duration {
	if p.MaxDelay <= p.MinDelay {
		return p.MinDelay
	}
	return p.MinDelay + time.Duration(rnd.Int64N(int64(p.MaxDelay-p.MinDelay)+1))
}
