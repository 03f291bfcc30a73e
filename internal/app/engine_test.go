package app_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"quiz-battle-service/internal/anticheat"
	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
)

type engineFixture struct {
	engine   *app.Engine
	clock    *fakeClock
	sched    *fakeScheduler
	recorder *memory.Recorder
	flags    *memory.FlagStore
}

func newEngineFixture(t *testing.T, limit int) *engineFixture {
	t.Helper()
	clock := newFakeClock()
	sched := &fakeScheduler{}
	recorder := memory.NewRecorder()
	flags := memory.NewFlagStore()

	cfg := app.DefaultConfig()
	cfg.Match = testMatchConfig(clock, sched)
	cfg.Match.RevealDelay = 0

	escalation := anticheat.DefaultEscalationConfig()
	escalation.FlaggedMatchLimit = limit

	engine := app.NewEngine(cfg, app.Deps{
		Matches:   memory.NewMatchStore(),
		Questions: app.NewSeededQuestionPicker(memory.NewStaticQuestionLoader(testQuestions(10)), 1),
		Escalator: anticheat.NewEscalatorWithClock(flags, escalation, clock.Now),
		Signals:   anticheat.NewSignalChecker(memory.NewSignalStore(), anticheat.DefaultSignalConfig()),
		Sink:      recorder,
	})
	t.Cleanup(engine.Close)
	return &engineFixture{engine: engine, clock: clock, sched: sched, recorder: recorder, flags: flags}
}

func TestEngineCreateMatchFromProvider(t *testing.T) {
	f := newEngineFixture(t, 3)
	ctx := context.Background()

	m, err := f.engine.CreateMatch(ctx, app.MatchRequest{
		Players:   []string{"alice", "bob"},
		Ruleset:   testRuleset(4),
		AutoStart: true,
	})
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	if m.ID() == "" {
		t.Fatalf("expected a generated match id")
	}

	snap, err := f.engine.Snapshot(m.ID())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Phase != domain.PhaseAwaitingAnswers || snap.QuestionCount != 4 || snap.Question == nil {
		t.Fatalf("expected first of 4 questions open, got %s/%d question=%v", snap.Phase, snap.QuestionCount, snap.Question)
	}

	if _, err := f.engine.Initialize(ctx, m.ID(), []string{"carol"}, testQuestions(1), testRuleset(1)); !errors.Is(err, domain.ErrMatchExists) {
		t.Fatalf("expected ErrMatchExists, got %v", err)
	}
	if _, err := f.engine.CreateMatch(ctx, app.MatchRequest{Players: []string{"carol"}, Ruleset: testRuleset(11)}); !errors.Is(err, domain.ErrQuestionsUnavailable) {
		t.Fatalf("expected ErrQuestionsUnavailable, got %v", err)
	}
	if _, err := f.engine.Snapshot("missing"); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestEngineDuplicateSubmissionIsIgnored(t *testing.T) {
	f := newEngineFixture(t, 3)
	m, err := f.engine.Initialize(context.Background(), "m1", []string{"alice", "bob"}, testQuestions(2), testRuleset(2))
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := f.engine.Start(m.ID()); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.clock.Advance(4 * time.Second)
	sub := domain.AnswerSubmission{Seq: 1, QuestionIndex: 0, Answer: "a", ClientElapsedMs: 3900}
	if _, err := f.engine.SubmitAnswer("m1", "alice", sub); err != nil {
		t.Fatalf("submit: %v", err)
	}
	before := m.Snapshot()

	for i := 0; i < 3; i++ {
		if _, err := f.engine.SubmitAnswer("m1", "alice", sub); !errors.Is(err, domain.ErrDuplicateMessage) {
			t.Fatalf("replay %d: expected ErrDuplicateMessage, got %v", i, err)
		}
	}
	if after := m.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("replays must not change the match:\n%+v\n%+v", before, after)
	}

	if _, err := f.engine.SubmitAnswer("m1", "mallory", sub); !errors.Is(err, domain.ErrPlayerNotInMatch) {
		t.Fatalf("expected ErrPlayerNotInMatch, got %v", err)
	}

	f.engine.Flush()
	if got := len(f.recorder.Answers()); got != 1 {
		t.Fatalf("expected one recorded answer, got %d", got)
	}
}

func TestEngineFastCorrectAnswerAgainstBot(t *testing.T) {
	f := newEngineFixture(t, 3)
	m, err := f.engine.Initialize(context.Background(), "m1", []string{"alice", "bot:easy"}, testQuestions(1), testRuleset(1))
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := f.engine.Start("m1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.clock.Advance(400 * time.Millisecond)
	if _, err := f.engine.SubmitAnswer("m1", "bot:easy", domain.AnswerSubmission{Answer: "b"}); err != nil {
		t.Fatalf("bot answer: %v", err)
	}
	f.clock.Advance(600 * time.Millisecond)
	ev, err := f.engine.SubmitAnswer("m1", "alice", domain.AnswerSubmission{Seq: 1, Answer: "a", ClientElapsedMs: 1000})
	if err != nil {
		t.Fatalf("a fast but possible answer must be scored, got %v", err)
	}
	if !ev.Correct || ev.Points <= 0 || ev.ElapsedMs != 1000 {
		t.Fatalf("unexpected answer event %+v", ev)
	}
	if m.Snapshot().Phase != domain.PhaseRevealingResult {
		t.Fatalf("expected reveal, got %s", m.Snapshot().Phase)
	}

	if err := f.engine.Advance("m1"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	f.engine.Flush()

	snap := m.Snapshot()
	if snap.Phase != domain.PhaseVictory {
		t.Fatalf("expected victory, got %s", snap.Phase)
	}
	if snap.Rewards["alice"].XPEarned <= 0 {
		t.Fatalf("expected xp for alice, got %+v", snap.Rewards["alice"])
	}

	acts := f.recorder.Suspicious()
	if len(acts) != 1 {
		t.Fatalf("expected exactly one suspicious activity, got %+v", acts)
	}
	if acts[0].Kind != domain.ActivityFastAnswer || acts[0].PlayerID != "alice" {
		t.Fatalf("expected fast_answer for alice, got %+v", acts[0])
	}
	if p, _ := m.Profile("alice"); p.Flagged {
		t.Fatalf("a single fast answer must not flag the profile")
	}
}

func TestEngineRefusesSuspendedPlayer(t *testing.T) {
	f := newEngineFixture(t, 3)
	ctx := context.Background()
	for _, id := range []string{"x1", "x2", "x3"} {
		if err := f.flags.RecordFlag(ctx, "alice", id, f.clock.Now()); err != nil {
			t.Fatalf("record flag: %v", err)
		}
	}

	if _, err := f.engine.Initialize(ctx, "m1", []string{"alice", "bob"}, testQuestions(2), testRuleset(2)); !errors.Is(err, domain.ErrSuspensionActive) {
		t.Fatalf("expected ErrSuspensionActive, got %v", err)
	}

	if err := f.engine.ClearSuspension(ctx, "alice"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := f.engine.Initialize(ctx, "m1", []string{"alice", "bob"}, testQuestions(2), testRuleset(2)); err != nil {
		t.Fatalf("initialize after clear: %v", err)
	}
}

func TestEngineSuspensionAbortsLiveMatches(t *testing.T) {
	f := newEngineFixture(t, 1)
	ctx := context.Background()

	m, err := f.engine.Initialize(ctx, "m1", []string{"alice", "bot:easy"}, testQuestions(6), testRuleset(6))
	if err != nil {
		t.Fatalf("initialize m1: %v", err)
	}
	other, err := f.engine.Initialize(ctx, "m2", []string{"alice", "bob"}, testQuestions(2), testRuleset(2))
	if err != nil {
		t.Fatalf("initialize m2: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < 5; i++ {
		f.clock.Advance(500 * time.Millisecond)
		if _, err := f.engine.SubmitAnswer("m1", "alice", domain.AnswerSubmission{Seq: uint64(i + 1), QuestionIndex: i, Answer: "a"}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		// the suspension may already have aborted m1 after the fifth answer
		_ = f.engine.Advance("m1")
	}
	f.engine.Flush()

	for _, match := range []*app.Match{m, other} {
		snap := match.Snapshot()
		if snap.Phase != domain.PhaseAborted || !strings.Contains(snap.AbortReason, domain.ErrSuspensionActive.Error()) {
			t.Fatalf("%s: expected suspension abort, got %s/%q", match.ID(), snap.Phase, snap.AbortReason)
		}
	}

	kinds := map[string]int{}
	for _, act := range f.recorder.Suspicious() {
		kinds[act.Kind]++
	}
	if kinds[domain.ActivityFastAnswer] != 5 || kinds[domain.ActivityTimingStreak] != 1 {
		t.Fatalf("expected 5 fast answers and 1 streak flag, got %v", kinds)
	}

	if _, err := f.engine.Initialize(ctx, "m3", []string{"alice"}, testQuestions(1), testRuleset(1)); !errors.Is(err, domain.ErrSuspensionActive) {
		t.Fatalf("expected ErrSuspensionActive, got %v", err)
	}
}

func TestEngineMultiAccountJoin(t *testing.T) {
	f := newEngineFixture(t, 3)
	ctx := context.Background()

	for _, p := range []string{"acc1", "acc2", "acc3"} {
		if _, err := f.engine.Initialize(ctx, "m"+p, []string{p}, testQuestions(1), testRuleset(1)); err != nil {
			t.Fatalf("initialize %s: %v", p, err)
		}
		if err := f.engine.Join(ctx, "m"+p, p, "10.0.0.1", "fp-1"); err != nil {
			t.Fatalf("join %s: %v", p, err)
		}
	}
	f.engine.Flush()

	acts := f.recorder.Suspicious()
	if len(acts) != 1 || acts[0].Kind != domain.ActivityMultiAccount || acts[0].PlayerID != "acc3" {
		t.Fatalf("expected one multi_account finding for acc3, got %+v", acts)
	}

	snap, err := f.engine.Snapshot("macc3")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.PlayerStates["acc3"].Connected {
		t.Fatalf("expected acc3 connected")
	}

	if err := f.engine.Join(ctx, "macc1", "acc2", "", ""); !errors.Is(err, domain.ErrPlayerNotInMatch) {
		t.Fatalf("expected ErrPlayerNotInMatch, got %v", err)
	}
}

func TestEngineSweep(t *testing.T) {
	f := newEngineFixture(t, 3)
	ctx := context.Background()

	done, err := f.engine.Initialize(ctx, "done", []string{"alice"}, testQuestions(1), testRuleset(1))
	if err != nil {
		t.Fatalf("initialize done: %v", err)
	}
	if _, err := f.engine.Initialize(ctx, "stale", []string{"bob"}, testQuestions(1), testRuleset(1)); err != nil {
		t.Fatalf("initialize stale: %v", err)
	}
	if err := f.engine.Abort("done", "test"); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if done.Snapshot().Phase != domain.PhaseAborted {
		t.Fatalf("expected aborted")
	}

	if got := f.engine.Sweep(f.clock.Now()); got != 0 {
		t.Fatalf("nothing is due yet, archived %d", got)
	}

	cfg := app.DefaultConfig()
	f.clock.Advance(cfg.ReadyTimeout)
	// stale ready match is aborted, the finished one is not yet past retention
	if got := f.engine.Sweep(f.clock.Now()); got != 0 {
		t.Fatalf("expected no archive yet, got %d", got)
	}
	snap, err := f.engine.Snapshot("stale")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Phase != domain.PhaseAborted || snap.AbortReason != "ready timeout" {
		t.Fatalf("expected ready timeout abort, got %s/%q", snap.Phase, snap.AbortReason)
	}

	f.clock.Advance(cfg.Retention)
	if got := f.engine.Sweep(f.clock.Now()); got != 2 {
		t.Fatalf("expected 2 archived, got %d", got)
	}
	if _, err := f.engine.Snapshot("done"); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("expected archived match gone, got %v", err)
	}

	f.engine.Flush()
	if got := len(f.recorder.Results()); got != 2 {
		t.Fatalf("expected 2 results, got %d", got)
	}
}

func TestEngineOnCreateHook(t *testing.T) {
	f := newEngineFixture(t, 3)
	var seen []string
	f.engine.OnCreate(func(m *app.Match) { seen = append(seen, m.ID()) })

	if _, err := f.engine.Initialize(context.Background(), "m1", []string{"alice", "bot:easy"}, testQuestions(1), testRuleset(1)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if len(seen) != 1 || seen[0] != "m1" {
		t.Fatalf("expected hook for m1, got %v", seen)
	}
}
