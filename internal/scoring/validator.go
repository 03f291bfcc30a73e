package scoring

import (
	"math"
	"time"

	"quiz-battle-service/internal/domain"
)

// Config holds the scoring constants.
type Config struct {
	BaseScore        int           // default: 100
	MaxTimeBonus     int           // default: 50
	MinAnswerTime    time.Duration // full bonus at or below
	MaxAnswerTime    time.Duration // zero bonus at or above
	DifficultyWeight float64       // default: 0.25 per difficulty level
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BaseScore:        100,
		MaxTimeBonus:     50,
		MinAnswerTime:    2 * time.Second,
		MaxAnswerTime:    30 * time.Second,
		DifficultyWeight: 0.25,
	}
}

// Input is everything needed to score one answer.
type Input struct {
	Question        domain.Question
	Answer          string
	StartedAt       time.Time
	Now             time.Time
	Difficulty      int
	TimePerQuestion time.Duration
}

// Result is the outcome of a single validation.
type Result struct {
	Correct   bool
	TimeBonus int
	Score     int
	Elapsed   time.Duration
}

// Validator scores answers. It has no state and performs no I/O.
type Validator struct {
	config Config
}

func NewValidator(config Config) Validator {
	return Validator{config: config}
}

// Validate computes correctness, time bonus and points for one answer.
func (v Validator) Validate(in Input) Result {
	elapsed := Elapsed(in.StartedAt, in.Now, in.TimePerQuestion)
	correct := in.Answer == in.Question.CorrectAnswer
	if !correct {
		return Result{Elapsed: elapsed}
	}

	bonus := v.TimeBonus(elapsed)
	multiplier := 1 + float64(in.Difficulty)*v.config.DifficultyWeight
	score := int(math.Round(float64(v.config.BaseScore+bonus) * multiplier))
	return Result{
		Correct:   true,
		TimeBonus: bonus,
		Score:     score,
		Elapsed:   elapsed,
	}
}

// TimeBonus interpolates linearly between MaxTimeBonus at MinAnswerTime and 0 at MaxAnswerTime.
func (v Validator) TimeBonus(elapsed time.Duration) int {
	lo, hi := v.config.MinAnswerTime, v.config.MaxAnswerTime
	switch {
	case elapsed <= lo:
		return v.config.MaxTimeBonus
	case elapsed >= hi:
		return 0
	}
	ratio := float64(hi-elapsed) / float64(hi-lo)
	return int(math.Round(float64(v.config.MaxTimeBonus) * ratio))
}

// Elapsed returns now-startedAt clamped to [0, limit]. A non-positive limit disables the upper clamp.
func Elapsed(startedAt, now time.Time, limit time.Duration) time.Duration {
	elapsed := now.Sub(startedAt)
	if elapsed < 0 {
		return 0
	}
	if limit > 0 && elapsed > limit {
		return limit
	}
	return elapsed
}
