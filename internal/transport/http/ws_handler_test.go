package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"quiz-battle-service/internal/anticheat"
	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
	"quiz-battle-service/internal/logger"
	"quiz-battle-service/internal/metrics"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine *app.Engine
	clock  *testClock
	flags  *memory.FlagStore
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 11, 22, 12, 0, 0, 0, time.UTC)}
	cfg := app.DefaultConfig()
	cfg.Match.Clock = clock.Now
	cfg.Match.RevealDelay = 0
	cfg.Match.GracePeriod = time.Minute

	reg := prometheus.NewRegistry()
	flags := memory.NewFlagStore()
	engine := app.NewEngine(cfg, app.Deps{
		Matches:   memory.NewMatchStore(),
		Escalator: anticheat.NewEscalatorWithClock(flags, anticheat.DefaultEscalationConfig(), clock.Now),
		Metrics:   metrics.New(reg),
		Logger:    logger.Discard(),
	})
	server := httptest.NewServer(NewRouter(engine, reg, logger.Discard()))
	t.Cleanup(func() {
		server.Close()
		engine.Close()
	})
	return &testEnv{engine: engine, clock: clock, flags: flags, server: server}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Text: "What is 2 + 2?", Alternatives: []string{"3", "4", "5", "22"}, CorrectAnswer: "4", Difficulty: 1},
		{ID: "q2", Text: "Capital of France?", Alternatives: []string{"Paris", "Rome", "Lyon", "Nice"}, CorrectAnswer: "Paris", Difficulty: 1},
	}
}

func (e *testEnv) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + e.server.URL[len("http"):] + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketMatchFlow(t *testing.T) {
	env := newTestEnv(t)
	ruleset := domain.Ruleset{TimePerQuestion: 10 * time.Second}
	if _, err := env.engine.Initialize(context.Background(), "m1", []string{"alice", "bot:easy"}, sampleQuestions(), ruleset); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	conn := env.dial(t, "matchId=m1&playerId=alice")

	_, payload := readNext(conn, t, "snapshot")
	if payload["phase"] != string(domain.PhaseReady) {
		t.Fatalf("expected ready snapshot, got %v", payload["phase"])
	}

	if err := conn.WriteJSON(map[string]any{"type": "ready"}); err != nil {
		t.Fatalf("write ready: %v", err)
	}
	readNext(conn, t, string(domain.EventPlayerReady))
	_, advanced := readNext(conn, t, string(domain.EventQuestionAdvanced))
	if advanced["questionIndex"] != float64(0) {
		t.Fatalf("expected question 0, got %v", advanced["questionIndex"])
	}
	question, _ := advanced["question"].(map[string]any)
	if _, leaked := question["correctAnswer"]; leaked {
		t.Fatalf("question leaked the correct answer: %v", question)
	}

	env.clock.Advance(3 * time.Second)
	answer := map[string]any{
		"type": "player_answer",
		"payload": map[string]any{
			"seq":             1,
			"questionIndex":   0,
			"answer":          "4",
			"clientElapsedMs": 2900,
		},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		typ, _ := readNext(conn, t, "")
		seen[typ] = true
	}
	for _, want := range []string{"answer_accepted", string(domain.EventPlayerAnswer), string(domain.EventQuestionRevealed)} {
		if !seen[want] {
			t.Fatalf("expected %s, got %v", want, seen)
		}
	}

	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write replay: %v", err)
	}
	_, dup := readNext(conn, t, "answer_duplicate")
	if dup["seq"] != float64(1) {
		t.Fatalf("expected duplicate reply for seq 1, got %v", dup)
	}
	late := map[string]any{
		"type":    "player_answer",
		"payload": map[string]any{"seq": 2, "questionIndex": 0, "answer": "3"},
	}
	if err := conn.WriteJSON(late); err != nil {
		t.Fatalf("write late answer: %v", err)
	}
	_, rejected := readNext(conn, t, "answer_rejected")
	if rejected["seq"] != float64(2) {
		t.Fatalf("expected rejection for seq 2, got %v", rejected)
	}

	snap, err := env.engine.Snapshot("m1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Score.Player == 0 {
		t.Fatalf("expected alice to score, got %+v", snap.Score)
	}
	// the rejected seq 2 is not committed
	if got := snap.PlayerStates["alice"].InboundSeq; got != 1 {
		t.Fatalf("expected inbound seq 1, got %d", got)
	}
}

func TestWebSocketSecondConnectionKeepsSeat(t *testing.T) {
	env := newTestEnv(t)
	ruleset := domain.Ruleset{TimePerQuestion: 10 * time.Second}
	if _, err := env.engine.Initialize(context.Background(), "m3", []string{"alice", "bob"}, sampleQuestions(), ruleset); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := env.engine.Start("m3"); err != nil {
		t.Fatalf("start: %v", err)
	}
	connections := func() int {
		snap, _ := env.engine.Snapshot("m3")
		return snap.PlayerStates["bob"].Connections
	}

	first := env.dial(t, "matchId=m3&playerId=bob")
	readNext(first, t, "snapshot")
	second := env.dial(t, "matchId=m3&playerId=bob")
	readNext(second, t, "snapshot")
	waitFor(t, func() bool { return connections() == 2 })

	// the old socket dies after the client already reconnected
	first.Close()
	waitFor(t, func() bool { return connections() == 1 })

	snap, err := env.engine.Snapshot("m3")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.PlayerStates["bob"].Connected || snap.Phase != domain.PhaseAwaitingAnswers {
		t.Fatalf("expected bob still connected in a live match, got %+v phase %s", snap.PlayerStates["bob"], snap.Phase)
	}

	second.Close()
	waitFor(t, func() bool {
		snap, _ := env.engine.Snapshot("m3")
		return !snap.PlayerStates["bob"].Connected
	})
}

func TestWebSocketResumeAfterReconnect(t *testing.T) {
	env := newTestEnv(t)
	ruleset := domain.Ruleset{TimePerQuestion: 10 * time.Second}
	if _, err := env.engine.Initialize(context.Background(), "m2", []string{"alice", "bob"}, sampleQuestions(), ruleset); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := env.engine.Start("m2"); err != nil {
		t.Fatalf("start: %v", err)
	}

	conn := env.dial(t, "matchId=m2&playerId=bob&lastSeq=0")
	readNext(conn, t, "snapshot")
	readNext(conn, t, string(domain.EventQuestionAdvanced))
	conn.Close()

	waitFor(t, func() bool {
		snap, _ := env.engine.Snapshot("m2")
		return !snap.PlayerStates["bob"].Connected
	})

	again := env.dial(t, "matchId=m2&playerId=bob&lastSeq=1")
	readNext(again, t, "snapshot")
	// seq 1 was already delivered; the backlog starts at the disconnect
	readNext(again, t, string(domain.EventPeerDisconnected))
	readNext(again, t, string(domain.EventPeerReconnected))
}

func TestWebSocketRejectsUnknownMatch(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "matchId=missing&playerId=alice")
	_, payload := readNext(conn, t, "error")
	msg, _ := payload["message"].(string)
	if !strings.Contains(msg, domain.ErrMatchNotFound.Error()) {
		t.Fatalf("expected not found error, got %q", msg)
	}
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/ws?matchId=m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met")
}
