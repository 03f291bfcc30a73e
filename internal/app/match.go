package app

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"quiz-battle-service/internal/anticheat"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/scoring"
)

// MatchConfig carries the tunables every match of an engine shares.
type MatchConfig struct {
	Scoring     scoring.Config
	AntiCheat   anticheat.Config
	Rewards     scoring.RewardConfig
	RevealDelay time.Duration // 0 disables automatic advance after a reveal
	GracePeriod time.Duration
	Clock       func() time.Time
	AfterFunc   AfterFunc
}

// DefaultMatchConfig returns production defaults.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		Scoring:     scoring.DefaultConfig(),
		AntiCheat:   anticheat.DefaultConfig(),
		Rewards:     scoring.DefaultRewardConfig(),
		RevealDelay: 3 * time.Second,
		GracePeriod: 15 * time.Second,
		Clock:       time.Now,
		AfterFunc:   RealAfterFunc,
	}
}

// matchObserver receives collaborator events. Calls happen under the match
// lock and must not block.
type matchObserver interface {
	answerRecorded(ev domain.AnswerEvent)
	suspicious(act domain.SuspiciousActivity)
	completed(result domain.MatchResult)
}

type nopObserver struct{}

func (nopObserver) answerRecorded(domain.AnswerEvent)    {}
func (nopObserver) suspicious(domain.SuspiciousActivity) {}
func (nopObserver) completed(domain.MatchResult)         {}

type graceTimer struct {
	timer Timer
	gen   uint64
}

// Match is the authoritative state machine of one match. Every mutation holds
// mu; readers use Snapshot, which never blocks.
type Match struct {
	id        string
	players   []string
	questions []domain.Question
	ruleset   domain.Ruleset
	config    MatchConfig
	validator scoring.Validator
	rewards   scoring.Calculator
	channel   *Channel
	observer  matchObserver
	streaks   map[string]int

	mu          sync.Mutex
	phase       domain.Phase
	index       int
	startedAt   time.Time
	createdAt   time.Time
	endedAt     time.Time
	score       domain.Score
	states      map[string]*domain.PlayerState
	history     []domain.AnswerEvent
	monitor     *anticheat.Monitor
	results     map[string]domain.RewardResult
	abortReason string
	timer       Timer
	timerGen    uint64
	grace       map[string]graceTimer
	graceGen    uint64

	snap atomic.Pointer[domain.MatchSnapshot]
}

// NewMatch validates the configuration and returns a match in the ready phase.
func NewMatch(matchID string, players []string, questions []domain.Question, ruleset domain.Ruleset, config MatchConfig) (*Match, error) {
	if err := validateMatch(matchID, players, questions, ruleset); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.AfterFunc == nil {
		config.AfterFunc = RealAfterFunc
	}

	count := ruleset.QuestionCount
	if count == 0 {
		count = len(questions)
	}
	ruleset.QuestionCount = count

	m := &Match{
		id:        matchID,
		players:   append([]string(nil), players...),
		questions: append([]domain.Question(nil), questions[:count]...),
		ruleset:   ruleset,
		config:    config,
		validator: scoring.NewValidator(config.Scoring),
		rewards:   scoring.NewCalculator(config.Rewards),
		channel:   NewChannel(matchID, config.Clock),
		observer:  nopObserver{},
		streaks:   make(map[string]int),
		phase:     domain.PhaseReady,
		createdAt: config.Clock(),
		states:    make(map[string]*domain.PlayerState, len(players)),
		monitor:   anticheat.NewMonitor(config.AntiCheat),
		grace:     make(map[string]graceTimer),
	}
	for _, p := range players {
		bot := domain.IsBot(p)
		m.states[p] = &domain.PlayerState{
			PlayerID:  p,
			Bot:       bot,
			Ready:     bot,
			Connected: bot,
		}
	}
	m.publishSnapshotLocked()
	return m, nil
}

func validateMatch(matchID string, players []string, questions []domain.Question, ruleset domain.Ruleset) error {
	switch {
	case matchID == "":
		return fmt.Errorf("%w: empty match id", domain.ErrInvalidRuleset)
	case len(questions) == 0:
		return fmt.Errorf("%w: no questions", domain.ErrInvalidRuleset)
	case ruleset.TimePerQuestion <= 0:
		return fmt.Errorf("%w: time per question must be positive", domain.ErrInvalidRuleset)
	case ruleset.QuestionCount < 0 || ruleset.QuestionCount > len(questions):
		return fmt.Errorf("%w: question count %d with %d questions", domain.ErrInvalidRuleset, ruleset.QuestionCount, len(questions))
	case len(players) < 1 || len(players) > 2:
		return fmt.Errorf("%w: %d players", domain.ErrInvalidRuleset, len(players))
	}
	seen := make(map[string]bool, len(players))
	for _, p := range players {
		if p == "" || seen[p] {
			return fmt.Errorf("%w: players must be distinct and non-empty", domain.ErrInvalidRuleset)
		}
		seen[p] = true
	}
	return nil
}

func (m *Match) ID() string        { return m.id }
func (m *Match) Channel() *Channel { return m.channel }
func (m *Match) Players() []string { return append([]string(nil), m.players...) }

func (m *Match) HasPlayer(p string) bool {
	for _, id := range m.players {
		if id == p {
			return true
		}
	}
	return false
}

// Snapshot returns the latest immutable view without taking the match lock.
func (m *Match) Snapshot() domain.MatchSnapshot {
	return *m.snap.Load()
}

// Question returns the full question at index, answer included, for server-side
// collaborators such as bots.
func (m *Match) Question(index int) (domain.Question, bool) {
	if index < 0 || index >= len(m.questions) {
		return domain.Question{}, false
	}
	return m.questions[index], true
}

// Profile exposes a copy of the anti-cheat profile of a player.
func (m *Match) Profile(playerID string) (anticheat.Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitor.Profile(playerID)
}

// History returns the accepted answer events in order.
func (m *Match) History() []domain.AnswerEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AnswerEvent(nil), m.history...)
}

func (m *Match) attach(o matchObserver, streaks map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = o
	for p, s := range streaks {
		m.streaks[p] = s
	}
}

// Acknowledge is the ready handshake. The first question starts once every
// player is ready; bots are ready from the start.
func (m *Match) Acknowledge(playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[playerID]
	if !ok {
		return domain.ErrPlayerNotInMatch
	}
	if m.phase != domain.PhaseReady {
		if st.Ready {
			return nil
		}
		return fmt.Errorf("%w: acknowledge in phase %s", domain.ErrIllegalTransition, m.phase)
	}
	if !st.Ready {
		st.Ready = true
		m.channel.Publish(domain.EventPlayerReady, domain.PeerPayload{PlayerID: playerID})
	}
	for _, s := range m.states {
		if !s.Ready {
			m.publishSnapshotLocked()
			return nil
		}
	}
	m.startQuestionLocked(0)
	m.publishSnapshotLocked()
	return nil
}

// Start skips the ready handshake.
func (m *Match) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != domain.PhaseReady {
		return fmt.Errorf("%w: start in phase %s", domain.ErrIllegalTransition, m.phase)
	}
	for _, s := range m.states {
		s.Ready = true
	}
	m.startQuestionLocked(0)
	m.publishSnapshotLocked()
	return nil
}

func (m *Match) startQuestionLocked(index int) {
	m.stopTimerLocked()
	m.phase = domain.PhaseAwaitingAnswers
	m.index = index
	m.startedAt = m.config.Clock()
	for _, s := range m.states {
		s.Answered = false
		s.Answer = nil
	}

	gen := m.timerGen
	m.timer = m.config.AfterFunc(m.ruleset.TimePerQuestion, func() {
		m.onQuestionTimeout(gen, index)
	})

	m.channel.Publish(domain.EventQuestionAdvanced, domain.QuestionAdvancedPayload{
		QuestionIndex:   index,
		TimePerQuestion: m.ruleset.TimePerQuestion.Milliseconds(),
		Question:        m.questions[index].Public(),
	})
}

// SubmitAnswer validates and scores one answer. A rejected answer leaves the
// match untouched, its seq included, so the player may submit again before the
// timer fires. A seq at or below the last accepted one is a replay.
func (m *Match) SubmitAnswer(playerID string, sub domain.AnswerSubmission) (domain.AnswerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[playerID]
	if !ok {
		return domain.AnswerEvent{}, domain.ErrPlayerNotInMatch
	}
	if m.channel.DuplicateInbound(playerID, sub.Seq) {
		return domain.AnswerEvent{}, fmt.Errorf("%w: seq %d", domain.ErrDuplicateMessage, sub.Seq)
	}
	if m.phase != domain.PhaseAwaitingAnswers {
		return domain.AnswerEvent{}, fmt.Errorf("%w: answer in phase %s", domain.ErrIllegalTransition, m.phase)
	}
	if sub.QuestionIndex != m.index {
		return domain.AnswerEvent{}, fmt.Errorf("%w: answer for question %d, current is %d", domain.ErrIllegalTransition, sub.QuestionIndex, m.index)
	}
	if st.Answered {
		return domain.AnswerEvent{}, fmt.Errorf("%w: question %d already answered", domain.ErrIllegalTransition, m.index)
	}

	now := m.config.Clock()
	if !st.Bot {
		if err := m.monitor.Check(now.Sub(m.startedAt), sub.ClientElapsedMs); err != nil {
			return domain.AnswerEvent{}, err
		}
	}

	res := m.validator.Validate(scoring.Input{
		Question:        m.questions[m.index],
		Answer:          sub.Answer,
		StartedAt:       m.startedAt,
		Now:             now,
		Difficulty:      m.ruleset.Difficulty,
		TimePerQuestion: m.ruleset.TimePerQuestion,
	})
	var verdict anticheat.Verdict
	if !st.Bot {
		verdict = m.monitor.Record(playerID, res.Elapsed, res.Correct, now)
	}

	ev := domain.AnswerEvent{
		MatchID:          m.id,
		PlayerID:         playerID,
		QuestionIndex:    m.index,
		Answer:           sub.Answer,
		ClientElapsedMs:  sub.ClientElapsedMs,
		ServerReceivedAt: now,
		ElapsedMs:        res.Elapsed.Milliseconds(),
		Correct:          res.Correct,
		TimeBonus:        res.TimeBonus,
		Points:           res.Score,
	}
	m.history = append(m.history, ev)

	answer := sub.Answer
	st.Answered = true
	st.Answer = &answer
	st.InboundSeq = m.channel.CommitInbound(playerID, sub.Seq)
	if res.Correct {
		st.CorrectCount++
		st.TimeBonusAccum += res.TimeBonus
		st.Score += res.Score
		if playerID == m.players[0] {
			m.score.Player += res.Score
		} else {
			m.score.Opponent += res.Score
		}
	}
	m.observer.answerRecorded(ev)

	if verdict.Suspicious {
		m.observer.suspicious(domain.SuspiciousActivity{
			MatchID:  m.id,
			PlayerID: playerID,
			Kind:     domain.ActivityFastAnswer,
			Detail:   fmt.Sprintf("correct after %s", res.Elapsed),
			Streak:   verdict.Streak,
			At:       now,
		})
	}
	if verdict.NewlyFlagged {
		st.Flagged = true
		m.observer.suspicious(domain.SuspiciousActivity{
			MatchID:  m.id,
			PlayerID: playerID,
			Kind:     domain.ActivityTimingStreak,
			Detail:   fmt.Sprintf("%d consecutive fast correct answers", verdict.Streak),
			Streak:   verdict.Streak,
			At:       now,
		})
	}

	m.channel.Publish(domain.EventPlayerAnswer, domain.PlayerAnsweredPayload{
		PlayerID:      playerID,
		QuestionIndex: m.index,
	})

	if m.allRequiredAnsweredLocked() {
		m.revealLocked(false)
	}
	m.publishSnapshotLocked()
	return ev, nil
}

// allRequiredAnsweredLocked: humans only when a bot takes part, every player otherwise.
func (m *Match) allRequiredAnsweredLocked() bool {
	humans := 0
	for _, s := range m.states {
		if !s.Bot {
			humans++
		}
	}
	for _, s := range m.states {
		if s.Bot && humans > 0 {
			continue
		}
		if !s.Answered {
			return false
		}
	}
	return true
}

func (m *Match) onQuestionTimeout(gen uint64, index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.timerGen || m.phase != domain.PhaseAwaitingAnswers || m.index != index {
		return
	}
	m.revealLocked(true)
	m.publishSnapshotLocked()
}

func (m *Match) revealLocked(timedOut bool) {
	m.stopTimerLocked()
	m.phase = domain.PhaseRevealingResult

	now := m.config.Clock()
	for id, s := range m.states {
		if !s.Bot && !s.Answered {
			// no answer counts as an incorrect one and breaks the fast streak
			m.monitor.Record(id, m.ruleset.TimePerQuestion, false, now)
		}
	}

	answers := make(map[string]*string, len(m.states))
	for id, s := range m.states {
		if s.Answer != nil {
			a := *s.Answer
			answers[id] = &a
		} else {
			answers[id] = nil
		}
	}
	m.channel.Publish(domain.EventQuestionRevealed, domain.QuestionRevealedPayload{
		QuestionIndex:    m.index,
		CorrectAnswer:    m.questions[m.index].CorrectAnswer,
		PerPlayerAnswers: answers,
		Score:            m.score,
		TimedOut:         timedOut,
	})

	if m.config.RevealDelay > 0 {
		gen := m.timerGen
		index := m.index
		m.timer = m.config.AfterFunc(m.config.RevealDelay, func() {
			m.onRevealElapsed(gen, index)
		})
	}
}

func (m *Match) onRevealElapsed(gen uint64, index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.timerGen || m.phase != domain.PhaseRevealingResult || m.index != index {
		return
	}
	m.advanceLocked()
	m.publishSnapshotLocked()
}

// Advance moves to the next question or finishes the match. Called while
// answers are still open, it closes the question as a timeout first. Called in
// ready, it skips the handshake and closes the first question the same way, so
// len(questions) calls always finish the match.
func (m *Match) Advance() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.phase {
	case domain.PhaseReady:
		for _, s := range m.states {
			s.Ready = true
		}
		m.startQuestionLocked(0)
		m.revealLocked(true)
	case domain.PhaseAwaitingAnswers:
		m.revealLocked(true)
	case domain.PhaseRevealingResult:
	default:
		return fmt.Errorf("%w: advance in phase %s", domain.ErrIllegalTransition, m.phase)
	}
	m.advanceLocked()
	m.publishSnapshotLocked()
	return nil
}

func (m *Match) advanceLocked() {
	if m.index+1 < len(m.questions) {
		m.startQuestionLocked(m.index + 1)
		return
	}
	status := domain.PhaseDraw
	switch {
	case m.score.Player > m.score.Opponent:
		status = domain.PhaseVictory
	case m.score.Player < m.score.Opponent:
		status = domain.PhaseDefeat
	}
	m.finishLocked(status, "")
}

// Abort ends the match from any non-terminal phase. It is idempotent.
func (m *Match) Abort(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase.Terminal() {
		return
	}
	m.finishLocked(domain.PhaseAborted, reason)
	m.publishSnapshotLocked()
}

func (m *Match) finishLocked(status domain.Phase, reason string) {
	m.stopTimerLocked()
	for p, g := range m.grace {
		g.timer.Stop()
		delete(m.grace, p)
	}
	m.phase = status
	m.abortReason = reason
	m.endedAt = m.config.Clock()

	m.results = make(map[string]domain.RewardResult, len(m.players))
	for i, p := range m.players {
		st := m.states[p]
		if st.Bot {
			continue
		}
		m.results[p] = m.rewards.Calculate(scoring.RewardInput{
			Outcome:        outcomeFor(status, i),
			Score:          st.Score,
			CorrectCount:   st.CorrectCount,
			TimeBonusAccum: st.TimeBonusAccum,
			WinStreak:      m.streaks[p],
		})
	}

	rewards := copyRewards(m.results)
	m.channel.Publish(domain.EventMatchCompleted, domain.MatchCompletedPayload{
		Status:  status,
		Score:   m.score,
		Rewards: rewards,
		Reason:  reason,
	})
	m.observer.completed(domain.MatchResult{
		MatchID:     m.id,
		Players:     append([]string(nil), m.players...),
		Status:      status,
		Score:       m.score,
		Rewards:     copyRewards(m.results),
		AbortReason: reason,
		StartedAt:   m.createdAt,
		EndedAt:     m.endedAt,
	})
}

// outcomeFor flips victory and defeat for the opponent seat.
func outcomeFor(status domain.Phase, seat int) domain.Phase {
	if seat == 0 {
		return status
	}
	switch status {
	case domain.PhaseVictory:
		return domain.PhaseDefeat
	case domain.PhaseDefeat:
		return domain.PhaseVictory
	}
	return status
}

// Disconnect releases one connection of a player. When the last one goes, it
// starts the grace timer; the match aborts when it expires.
func (m *Match) Disconnect(playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[playerID]
	if !ok {
		return domain.ErrPlayerNotInMatch
	}
	if st.Connections > 0 {
		st.Connections--
	}
	if st.Connections > 0 || m.phase.Terminal() || !st.Connected {
		m.publishSnapshotLocked()
		return nil
	}
	st.Connected = false
	m.channel.Publish(domain.EventPeerDisconnected, domain.PeerPayload{PlayerID: playerID})

	m.graceGen++
	gen := m.graceGen
	m.grace[playerID] = graceTimer{
		gen: gen,
		timer: m.config.AfterFunc(m.config.GracePeriod, func() {
			m.onGraceExpired(playerID, gen)
		}),
	}
	m.publishSnapshotLocked()
	return nil
}

// Reconnect adds a connection for a player and cancels a pending grace timer.
// Every Reconnect is paired with one Disconnect; a seat stays connected while
// any of its connections is open.
func (m *Match) Reconnect(playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[playerID]
	if !ok {
		return domain.ErrPlayerNotInMatch
	}
	st.Connections++
	if st.Connected {
		m.publishSnapshotLocked()
		return nil
	}
	st.Connected = true
	if g, ok := m.grace[playerID]; ok {
		g.timer.Stop()
		delete(m.grace, playerID)
		m.channel.Publish(domain.EventPeerReconnected, domain.PeerPayload{PlayerID: playerID})
	}
	m.publishSnapshotLocked()
	return nil
}

func (m *Match) onGraceExpired(playerID string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grace[playerID]
	if !ok || g.gen != gen || m.phase.Terminal() {
		return
	}
	delete(m.grace, playerID)
	m.finishLocked(domain.PhaseAborted, fmt.Sprintf("%s: %s", domain.ErrPeerDisconnected, playerID))
	m.publishSnapshotLocked()
}

func (m *Match) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
}

// archive releases per-match anti-cheat state and closes the sync channel.
func (m *Match) archive() {
	m.mu.Lock()
	m.monitor.Reset()
	m.mu.Unlock()
	m.channel.Close()
}

func (m *Match) publishSnapshotLocked() {
	states := make(map[string]domain.PlayerState, len(m.states))
	for id, s := range m.states {
		cp := *s
		switch {
		case m.phase == domain.PhaseAwaitingAnswers:
			// Answered stays visible, the content waits for the reveal
			cp.Answer = nil
		case s.Answer != nil:
			a := *s.Answer
			cp.Answer = &a
		}
		states[id] = cp
	}
	snap := &domain.MatchSnapshot{
		MatchID:              m.id,
		Players:              append([]string(nil), m.players...),
		Ruleset:              m.ruleset,
		Phase:                m.phase,
		CurrentQuestionIndex: m.index,
		QuestionCount:        len(m.questions),
		QuestionStartedAt:    m.startedAt,
		Score:                m.score,
		PlayerStates:         states,
		Rewards:              copyRewards(m.results),
		AbortReason:          m.abortReason,
		CreatedAt:            m.createdAt,
		EndedAt:              m.endedAt,
		LastSeq:              m.channel.LastSeq(),
	}
	if m.phase.Active() {
		q := m.questions[m.index].Public()
		snap.Question = &q
	}
	m.snap.Store(snap)
}

func copyRewards(in map[string]domain.RewardResult) map[string]domain.RewardResult {
	if in == nil {
		return nil
	}
	out := make(map[string]domain.RewardResult, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
