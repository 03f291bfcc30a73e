package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"quiz-battle-service/internal/anticheat"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/metrics"
)

// Config tunes the engine as a whole.
type Config struct {
	Match        MatchConfig
	ReadyTimeout time.Duration // 0 keeps ready matches until aborted
	Retention    time.Duration
	Workers      int
	QueueSize    int
}

func DefaultConfig() Config {
	return Config{
		Match:        DefaultMatchConfig(),
		ReadyTimeout: 2 * time.Minute,
		Retention:    5 * time.Minute,
		Workers:      2,
		QueueSize:    256,
	}
}

// Deps are the collaborators of the engine. Only Matches is required.
type Deps struct {
	Matches   MatchRepository
	Questions QuestionProvider
	Escalator *anticheat.Escalator
	Signals   *anticheat.SignalChecker
	Streaks   StreakSource
	Sink      EventSink
	Metrics   *metrics.Metrics
	Logger    logrus.FieldLogger
}

// MatchRequest is one tournament hand-off tuple.
type MatchRequest struct {
	MatchID   string
	Players   []string
	Ruleset   domain.Ruleset
	Questions []domain.Question // when set the question provider is skipped
	AutoStart bool
}

// Engine owns the live matches and routes their collaborator events.
type Engine struct {
	config     Config
	matches    MatchRepository
	questions  QuestionProvider
	escalator  *anticheat.Escalator
	signals    *anticheat.SignalChecker
	streaks    StreakSource
	sink       EventSink
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
	dispatcher *Dispatcher

	mu        sync.RWMutex
	listeners []func(*Match)
}

func NewEngine(config Config, deps Deps) *Engine {
	if deps.Streaks == nil {
		deps.Streaks = noStreaks{}
	}
	if deps.Sink == nil {
		deps.Sink = discardSink{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if deps.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		deps.Logger = l
	}
	if config.Match.Clock == nil {
		config.Match.Clock = time.Now
	}
	e := &Engine{
		config:    config,
		matches:   deps.Matches,
		questions: deps.Questions,
		escalator: deps.Escalator,
		signals:   deps.Signals,
		streaks:   deps.Streaks,
		sink:      deps.Sink,
		metrics:   deps.Metrics,
		log:       deps.Logger.WithField("component", "engine"),
	}
	e.dispatcher = NewDispatcher(config.Workers, config.QueueSize, e.log, func(name string, _ error) {
		e.metrics.DispatchErrors.WithLabelValues(name).Inc()
	})
	return e
}

// OnCreate registers a hook run for every new match before it starts.
func (e *Engine) OnCreate(fn func(*Match)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// CreateMatch initializes a match from a hand-off request.
func (e *Engine) CreateMatch(ctx context.Context, req MatchRequest) (*Match, error) {
	if req.MatchID == "" {
		req.MatchID = uuid.NewString()
	}
	if _, ok := e.matches.Get(req.MatchID); ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrMatchExists, req.MatchID)
	}
	if e.escalator != nil {
		for _, p := range req.Players {
			if domain.IsBot(p) {
				continue
			}
			if err := e.escalator.Guard(ctx, p); err != nil {
				return nil, err
			}
		}
	}

	questions := req.Questions
	if len(questions) == 0 && e.questions != nil {
		var err error
		questions, err = e.questions.GetQuestions(ctx, req.Ruleset)
		if err != nil {
			return nil, fmt.Errorf("load questions: %w", err)
		}
	}

	m, err := NewMatch(req.MatchID, req.Players, questions, req.Ruleset, e.config.Match)
	if err != nil {
		return nil, err
	}
	m.attach(e, e.winStreaks(ctx, req.Players))

	if err := e.matches.Add(m); err != nil {
		return nil, err
	}
	e.metrics.MatchesStarted.Inc()
	e.metrics.ActiveMatches.Inc()
	e.log.WithFields(logrus.Fields{
		"match":     m.ID(),
		"players":   req.Players,
		"questions": len(m.questions),
	}).Info("match initialized")

	e.mu.RLock()
	listeners := append([]func(*Match)(nil), e.listeners...)
	e.mu.RUnlock()
	for _, fn := range listeners {
		fn(m)
	}

	if req.AutoStart {
		if err := m.Start(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Initialize registers a match with caller-supplied questions and leaves it ready.
func (e *Engine) Initialize(ctx context.Context, matchID string, players []string, questions []domain.Question, ruleset domain.Ruleset) (*Match, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", domain.ErrInvalidRuleset)
	}
	return e.CreateMatch(ctx, MatchRequest{
		MatchID:   matchID,
		Players:   players,
		Ruleset:   ruleset,
		Questions: questions,
	})
}

func (e *Engine) winStreaks(ctx context.Context, players []string) map[string]int {
	out := make(map[string]int, len(players))
	for _, p := range players {
		if domain.IsBot(p) {
			continue
		}
		streak, err := e.streaks.WinStreak(ctx, p)
		if err != nil {
			e.log.WithFields(logrus.Fields{"player": p, "error": err}).Warn("win streak unavailable")
			continue
		}
		out[p] = streak
	}
	return out
}

// Match looks up a live match.
func (e *Engine) Match(matchID string) (*Match, error) {
	m, ok := e.matches.Get(matchID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrMatchNotFound, matchID)
	}
	return m, nil
}

func (e *Engine) Snapshot(matchID string) (domain.MatchSnapshot, error) {
	m, err := e.Match(matchID)
	if err != nil {
		return domain.MatchSnapshot{}, err
	}
	return m.Snapshot(), nil
}

func (e *Engine) Acknowledge(matchID, playerID string) error {
	m, err := e.Match(matchID)
	if err != nil {
		return err
	}
	return m.Acknowledge(playerID)
}

func (e *Engine) Start(matchID string) error {
	m, err := e.Match(matchID)
	if err != nil {
		return err
	}
	return m.Start()
}

// SubmitAnswer forwards an answer to its match. Replayed inbound messages come
// back as ErrDuplicateMessage.
func (e *Engine) SubmitAnswer(matchID, playerID string, sub domain.AnswerSubmission) (domain.AnswerEvent, error) {
	m, err := e.Match(matchID)
	if err != nil {
		return domain.AnswerEvent{}, err
	}
	ev, err := m.SubmitAnswer(playerID, sub)
	switch {
	case errors.Is(err, domain.ErrDuplicateMessage):
		e.metrics.Answers.WithLabelValues("duplicate").Inc()
		return ev, err
	case err != nil:
		e.metrics.Answers.WithLabelValues("rejected").Inc()
		if errors.Is(err, domain.ErrAnswerTimingViolation) {
			e.log.WithFields(logrus.Fields{"match": matchID, "player": playerID, "error": err}).Warn("answer rejected")
		}
		return ev, err
	}
	result := "incorrect"
	if ev.Correct {
		result = "correct"
	}
	e.metrics.Answers.WithLabelValues(result).Inc()
	e.metrics.AnswerLatency.Observe(float64(ev.ElapsedMs) / 1000)
	return ev, nil
}

func (e *Engine) Advance(matchID string) error {
	m, err := e.Match(matchID)
	if err != nil {
		return err
	}
	return m.Advance()
}

func (e *Engine) Abort(matchID, reason string) error {
	m, err := e.Match(matchID)
	if err != nil {
		return err
	}
	m.Abort(reason)
	return nil
}

func (e *Engine) Subscribe(matchID string, afterSeq uint64) (*Subscription, error) {
	m, err := e.Match(matchID)
	if err != nil {
		return nil, err
	}
	return m.Channel().Subscribe(afterSeq), nil
}

// Join connects a player and runs the multi-account check on its signals. Each
// successful Join must be paired with one Leave.
func (e *Engine) Join(ctx context.Context, matchID, playerID, ip, fingerprint string) error {
	m, err := e.Match(matchID)
	if err != nil {
		return err
	}
	if !m.HasPlayer(playerID) {
		return domain.ErrPlayerNotInMatch
	}
	if e.escalator != nil {
		if err := e.escalator.Guard(ctx, playerID); err != nil {
			return err
		}
	}
	if e.signals != nil {
		finding, err := e.signals.Observe(ctx, playerID, ip, fingerprint)
		if err != nil {
			e.log.WithFields(logrus.Fields{"player": playerID, "error": err}).Warn("signal check failed")
		} else if finding.Suspicious {
			e.suspicious(domain.SuspiciousActivity{
				MatchID:  matchID,
				PlayerID: playerID,
				Kind:     domain.ActivityMultiAccount,
				Detail:   finding.Detail,
				At:       e.config.Match.Clock(),
			})
		}
	}
	return m.Reconnect(playerID)
}

// Leave releases a connection taken by Join; the last one starts the grace period.
func (e *Engine) Leave(matchID, playerID string) error {
	m, err := e.Match(matchID)
	if err != nil {
		return err
	}
	return m.Disconnect(playerID)
}

// ClearSuspension lifts a suspension.
func (e *Engine) ClearSuspension(ctx context.Context, playerID string) error {
	if e.escalator == nil {
		return nil
	}
	if err := e.escalator.Clear(ctx, playerID); err != nil {
		return fmt.Errorf("clear suspension: %w", err)
	}
	e.log.WithField("player", playerID).Info("suspension cleared")
	return nil
}

func (e *Engine) suspend(playerID string) {
	e.metrics.Suspensions.Inc()
	e.log.WithField("player", playerID).Warn("player suspended")
	for _, m := range e.matches.ForPlayer(playerID) {
		m.Abort(fmt.Sprintf("%s: %s", domain.ErrSuspensionActive, playerID))
	}
}

// Sweep aborts matches stuck in the ready phase and archives terminal matches
// past retention. It returns the number archived.
func (e *Engine) Sweep(now time.Time) int {
	archived := 0
	for _, m := range e.matches.All() {
		snap := m.Snapshot()
		switch {
		case snap.Phase == domain.PhaseReady && e.config.ReadyTimeout > 0 && now.Sub(snap.CreatedAt) >= e.config.ReadyTimeout:
			m.Abort("ready timeout")
		case snap.Phase.Terminal() && now.Sub(snap.EndedAt) >= e.config.Retention:
			m.archive()
			e.matches.Delete(m.ID())
			e.metrics.ActiveMatches.Dec()
			archived++
		}
	}
	if archived > 0 {
		e.log.WithField("archived", archived).Debug("matches archived")
	}
	return archived
}

// Flush waits for queued collaborator deliveries.
func (e *Engine) Flush() {
	e.dispatcher.Flush()
}

// Close aborts live matches and drains the dispatcher.
func (e *Engine) Close() {
	for _, m := range e.matches.All() {
		m.Abort("shutdown")
	}
	e.dispatcher.Close()
}

func (e *Engine) answerRecorded(ev domain.AnswerEvent) {
	e.dispatcher.Enqueue("answer_recorded", func(ctx context.Context) error {
		return e.sink.AnswerRecorded(ctx, ev)
	})
}

func (e *Engine) suspicious(act domain.SuspiciousActivity) {
	e.metrics.SuspiciousFlags.WithLabelValues(act.Kind).Inc()
	e.dispatcher.Enqueue("suspicious_activity", func(ctx context.Context) error {
		sinkErr := e.sink.SuspiciousActivityFlagged(ctx, act)
		// single fast answers are audited only
		if act.Kind == domain.ActivityFastAnswer || e.escalator == nil {
			return sinkErr
		}
		suspended, err := e.escalator.Flag(ctx, act.PlayerID, act.MatchID)
		if err != nil {
			return errors.Join(sinkErr, err)
		}
		if suspended {
			e.suspend(act.PlayerID)
		}
		return sinkErr
	})
}

func (e *Engine) completed(result domain.MatchResult) {
	e.metrics.MatchesCompleted.WithLabelValues(string(result.Status)).Inc()
	e.log.WithFields(logrus.Fields{
		"match":  result.MatchID,
		"status": result.Status,
		"score":  fmt.Sprintf("%d-%d", result.Score.Player, result.Score.Opponent),
	}).Info("match completed")
	e.dispatcher.Enqueue("match_completed", func(ctx context.Context) error {
		return e.sink.MatchCompleted(ctx, result)
	})
}
