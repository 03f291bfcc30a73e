package logger

import (
	"context"

	"github.com/sirupsen/logrus"

	"quiz-battle-service/internal/domain"
)

// Sink is an app.EventSink that writes collaborator events to the log.
type Sink struct {
	log logrus.FieldLogger
}

func NewSink(log logrus.FieldLogger) *Sink {
	return &Sink{log: log.WithField("component", "events")}
}

func (s *Sink) AnswerRecorded(_ context.Context, ev domain.AnswerEvent) error {
	s.log.WithFields(logrus.Fields{
		"match":    ev.MatchID,
		"player":   ev.PlayerID,
		"question": ev.QuestionIndex,
		"correct":  ev.Correct,
		"elapsed":  ev.ElapsedMs,
		"points":   ev.Points,
	}).Debug("answer recorded")
	return nil
}

func (s *Sink) SuspiciousActivityFlagged(_ context.Context, act domain.SuspiciousActivity) error {
	s.log.WithFields(logrus.Fields{
		"match":  act.MatchID,
		"player": act.PlayerID,
		"kind":   act.Kind,
		"streak": act.Streak,
		"detail": act.Detail,
	}).Warn("suspicious activity")
	return nil
}

func (s *Sink) MatchCompleted(_ context.Context, result domain.MatchResult) error {
	s.log.WithFields(logrus.Fields{
		"match":   result.MatchID,
		"status":  result.Status,
		"players": result.Players,
		"reason":  result.AbortReason,
	}).Info("match result")
	return nil
}
