package app

import (
	"context"
	"errors"
	"time"

	"quiz-battle-service/internal/domain"
)

// MatchRepository abstracts where live matches are registered (in-memory, Redis-aware, etc).
type MatchRepository interface {
	Add(m *Match) error
	Get(matchID string) (*Match, bool)
	Delete(matchID string)
	ForPlayer(playerID string) []*Match
	All() []*Match
}

// QuestionProvider returns an ordered list of questions for a ruleset.
type QuestionProvider interface {
	GetQuestions(ctx context.Context, ruleset domain.Ruleset) ([]domain.Question, error)
}

// QuestionSource loads the question pool of one category ("" means every category).
type QuestionSource interface {
	LoadQuestions(ctx context.Context, category string) ([]domain.Question, error)
}

// EventSink is the persistence/audit collaborator. The engine never writes durably itself.
type EventSink interface {
	AnswerRecorded(ctx context.Context, ev domain.AnswerEvent) error
	SuspiciousActivityFlagged(ctx context.Context, act domain.SuspiciousActivity) error
	MatchCompleted(ctx context.Context, result domain.MatchResult) error
}

// StreakSource exposes the external win-streak counter used for reward bonuses.
type StreakSource interface {
	WinStreak(ctx context.Context, playerID string) (int, error)
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

// RealAfterFunc is backed by time.AfterFunc.
func RealAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type noStreaks struct{}

func (noStreaks) WinStreak(context.Context, string) (int, error) { return 0, nil }

type discardSink struct{}

func (discardSink) AnswerRecorded(context.Context, domain.AnswerEvent) error { return nil }

func (discardSink) SuspiciousActivityFlagged(context.Context, domain.SuspiciousActivity) error {
	return nil
}

func (discardSink) MatchCompleted(context.Context, domain.MatchResult) error { return nil }

// MultiSink fans collaborator events out to several sinks and joins their errors.
type MultiSink []EventSink

func (s MultiSink) AnswerRecorded(ctx context.Context, ev domain.AnswerEvent) error {
	var errs []error
	for _, sink := range s {
		errs = append(errs, sink.AnswerRecorded(ctx, ev))
	}
	return errors.Join(errs...)
}

func (s MultiSink) SuspiciousActivityFlagged(ctx context.Context, act domain.SuspiciousActivity) error {
	var errs []error
	for _, sink := range s {
		errs = append(errs, sink.SuspiciousActivityFlagged(ctx, act))
	}
	return errors.Join(errs...)
}

func (s MultiSink) MatchCompleted(ctx context.Context, result domain.MatchResult) error {
	var errs []error
	for _, sink := range s {
		errs = append(errs, sink.MatchCompleted(ctx, result))
	}
	return errors.Join(errs...)
}
