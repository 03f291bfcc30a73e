package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"

	"quiz-battle-service/internal/anticheat"
	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/postgres"
	pgmigrations "quiz-battle-service/internal/infra/postgres/migrations"
	infraredis "quiz-battle-service/internal/infra/redis"
	"quiz-battle-service/internal/logger"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMatchEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := postgres.NewQuestionLoader(pool)
	if err := loader.SaveQuestions(ctx, sampleQuestions()); err != nil {
		t.Fatalf("seed questions: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	c := &clock{now: time.Date(2024, 11, 22, 12, 0, 0, 0, time.UTC)}
	cfg := app.DefaultConfig()
	cfg.Match.Clock = c.Now
	cfg.Match.RevealDelay = 0

	audit := postgres.NewAuditSink(db)
	streaks := infraredis.NewStreakStore(redisClient)
	matches := infraredis.NewMatchStore(redisClient, 5*time.Minute, logger.Discard())
	engine := app.NewEngine(cfg, app.Deps{
		Matches:   matches,
		Questions: app.NewSeededQuestionPicker(infraredis.NewQuestionRepository(redisClient, loader, 5*time.Minute), 7),
		Escalator: anticheat.NewEscalatorWithClock(infraredis.NewFlagStore(redisClient, 24*time.Hour), anticheat.DefaultEscalationConfig(), c.Now),
		Signals:   anticheat.NewSignalChecker(infraredis.NewSignalStore(redisClient, time.Hour), anticheat.DefaultSignalConfig()),
		Streaks:   streaks,
		Sink:      app.MultiSink{audit, streaks},
		Logger:    logger.Discard(),
	})
	defer engine.Close()

	m, err := engine.CreateMatch(ctx, app.MatchRequest{
		MatchID:   "it-1",
		Players:   []string{"alice", "bob"},
		Ruleset:   domain.Ruleset{TimePerQuestion: 10 * time.Second, QuestionCount: 2, Difficulty: 1, Categories: []string{"science"}},
		AutoStart: true,
	})
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	ids, err := matches.PlayerMatches(ctx, "alice")
	if err != nil || len(ids) != 1 || ids[0] != "it-1" {
		t.Fatalf("expected redis player index, got %v err=%v", ids, err)
	}

	for i := 0; i < 2; i++ {
		q, ok := m.Question(i)
		if !ok {
			t.Fatalf("question %d missing", i)
		}
		if q.Category != "science" {
			t.Fatalf("expected science question, got %+v", q)
		}
		c.Advance(4 * time.Second)
		if _, err := engine.SubmitAnswer("it-1", "alice", domain.AnswerSubmission{Seq: uint64(i + 1), QuestionIndex: i, Answer: q.CorrectAnswer, ClientElapsedMs: 3900}); err != nil {
			t.Fatalf("alice answer %d: %v", i, err)
		}
		if _, err := engine.SubmitAnswer("it-1", "bob", domain.AnswerSubmission{Seq: uint64(i + 1), QuestionIndex: i, Answer: "wrong", ClientElapsedMs: 3900}); err != nil {
			t.Fatalf("bob answer %d: %v", i, err)
		}
		if err := engine.Advance("it-1"); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	engine.Flush()

	result, err := audit.Result(ctx, "it-1")
	if err != nil {
		t.Fatalf("load result: %v", err)
	}
	if result.Status != domain.PhaseVictory {
		t.Fatalf("expected victory for alice, got %s", result.Status)
	}
	if result.Rewards["alice"].XPEarned <= result.Rewards["bob"].XPEarned {
		t.Fatalf("expected alice to earn more xp, got %+v", result.Rewards)
	}

	answers, err := db.NewSelect().Table("answer_events").Where("match_id = ?", "it-1").Count(ctx)
	if err != nil {
		t.Fatalf("count answers: %v", err)
	}
	if answers != 4 {
		t.Fatalf("expected 4 audited answers, got %d", answers)
	}

	streak, err := streaks.WinStreak(ctx, "alice")
	if err != nil || streak != 1 {
		t.Fatalf("expected alice streak 1, got %d err=%v", streak, err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "sci-1", Text: "Chemical symbol for water?", Alternatives: []string{"H2O", "CO2", "O2", "NaCl"}, CorrectAnswer: "H2O", Category: "science", Difficulty: 1},
		{ID: "sci-2", Text: "The Red Planet?", Alternatives: []string{"Venus", "Mars", "Jupiter", "Mercury"}, CorrectAnswer: "Mars", Category: "science", Difficulty: 1},
		{ID: "sci-3", Text: "Gas absorbed by plants?", Alternatives: []string{"Oxygen", "Nitrogen", "Carbon dioxide", "Helium"}, CorrectAnswer: "Carbon dioxide", Category: "science", Difficulty: 2},
		{ID: "geo-1", Text: "Capital of France?", Alternatives: []string{"Paris", "Rome", "Madrid", "Berlin"}, CorrectAnswer: "Paris", Category: "geography", Difficulty: 1},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
