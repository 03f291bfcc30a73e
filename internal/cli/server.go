package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-battle-service/internal/anticheat"
	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/bot"
	"quiz-battle-service/internal/config"
	"quiz-battle-service/internal/infra/amqp"
	"quiz-battle-service/internal/infra/memory"
	"quiz-battle-service/internal/infra/postgres"
	redisstore "quiz-battle-service/internal/infra/redis"
	"quiz-battle-service/internal/logger"
	"quiz-battle-service/internal/metrics"
	transport "quiz-battle-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the match engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New("quiz-battle", cfg.Log.Level, cfg.Log.Format)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader app.QuestionSource = memory.NewStaticQuestionLoader(sampleQuestions())
	if pool != nil {
		loader = postgres.NewQuestionLoader(pool)
	}
	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var questions app.QuestionSource
	if redisClient != nil {
		questions = redisstore.NewQuestionRepository(redisClient, loader, questionTTL)
	} else {
		questions = memory.NewQuestionRepository(loader, questionTTL)
	}

	flagWindow := config.TTLDuration(cfg.AntiCheat.FlagWindow, 24*time.Hour)
	var (
		matches    app.MatchRepository
		liveness   *redisstore.MatchStore
		flags      anticheat.FlagStore
		signals    anticheat.SignalStore
		streaks    app.StreakSource
		streakSink app.EventSink
		sinks      app.MultiSink
	)
	if redisClient != nil {
		liveness = redisstore.NewMatchStore(redisClient, redisTTL, log)
		matches = liveness
		flags = redisstore.NewFlagStore(redisClient, flagWindow)
		signals = redisstore.NewSignalStore(redisClient, 7*24*time.Hour)
		s := redisstore.NewStreakStore(redisClient)
		streaks, streakSink = s, s
	} else {
		matches = memory.NewMatchStore()
		flags = memory.NewFlagStore()
		signals = memory.NewSignalStore()
		s := memory.NewStreakStore()
		streaks, streakSink = s, s
	}

	sinks = append(sinks, logger.NewSink(log), streakSink)
	if cfg.Postgres.URL != "" && cfg.Postgres.Audit {
		db := postgres.Open(cfg.Postgres.URL)
		defer db.Close()
		sinks = append(sinks, postgres.NewAuditSink(db))
	}
	if cfg.AMQP.URL != "" {
		exchange := cfg.AMQP.Exchange
		if exchange == "" {
			exchange = "quizbattle.events"
		}
		publisher, err := amqp.Dial(cfg.AMQP.URL, exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	engine := app.NewEngine(engineConfig(cfg), app.Deps{
		Matches:   matches,
		Questions: app.NewQuestionPicker(questions),
		Escalator: anticheat.NewEscalator(flags, anticheat.EscalationConfig{
			FlaggedMatchLimit: config.IntOr(cfg.AntiCheat.FlaggedMatchLimit, 3),
			Window:            flagWindow,
		}),
		Signals: anticheat.NewSignalChecker(signals, anticheat.SignalConfig{
			MaxAccountsPerIP:          config.IntOr(cfg.AntiCheat.MaxAccountsPerIP, 3),
			MaxAccountsPerFingerprint: config.IntOr(cfg.AntiCheat.MaxAccountsPerFingerprint, 2),
		}),
		Streaks: streaks,
		Sink:    sinks,
		Metrics: metrics.New(reg),
		Logger:  log,
	})

	var driver *bot.Driver
	if cfg.Bot.Enabled {
		var opts []bot.Option
		if cfg.Bot.Seed != 0 {
			opts = append(opts, bot.WithSeed(cfg.Bot.Seed))
		}
		driver = bot.NewDriver(engine, nil, log, opts...)
		engine.OnCreate(driver.Attach)
	}

	sweepPeriod := config.TTLDuration(cfg.Engine.SweepInterval, 30*time.Second)
	janitor, err := newJanitor(engine, liveness, sweepPeriod, log)
	if err != nil {
		return err
	}
	janitor.Start()

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(engine, reg, log),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("port", finalPort).Info("starting match engine")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("error", err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancel()
	err = server.Shutdown(shutdownCtx)

	if jerr := janitor.Shutdown(); jerr != nil {
		log.WithField("error", jerr).Warn("janitor shutdown")
	}
	engine.Close()
	if driver != nil {
		driver.Wait()
	}
	return err
}

func engineConfig(cfg config.Config) app.Config {
	ec := app.DefaultConfig()
	ec.Retention = config.TTLDuration(cfg.Engine.Retention, ec.Retention)
	ec.ReadyTimeout = config.TTLDuration(cfg.Engine.ReadyTimeout, ec.ReadyTimeout)
	ec.Workers = config.IntOr(cfg.Engine.Workers, ec.Workers)
	ec.QueueSize = config.IntOr(cfg.Engine.QueueSize, ec.QueueSize)

	m := &ec.Match
	m.RevealDelay = config.TTLDuration(cfg.Engine.RevealDelay, m.RevealDelay)
	m.GracePeriod = config.TTLDuration(cfg.Engine.GracePeriod, m.GracePeriod)

	m.Scoring.BaseScore = config.IntOr(cfg.Scoring.BaseScore, m.Scoring.BaseScore)
	m.Scoring.MaxTimeBonus = config.IntOr(cfg.Scoring.MaxTimeBonus, m.Scoring.MaxTimeBonus)
	m.Scoring.MinAnswerTime = config.TTLDuration(cfg.Scoring.MinAnswerTime, m.Scoring.MinAnswerTime)
	m.Scoring.MaxAnswerTime = config.TTLDuration(cfg.Scoring.MaxAnswerTime, m.Scoring.MaxAnswerTime)
	m.Scoring.DifficultyWeight = config.FloatOr(cfg.Scoring.DifficultyWeight, m.Scoring.DifficultyWeight)

	m.AntiCheat.HardFloor = config.TTLDuration(cfg.AntiCheat.HardFloor, m.AntiCheat.HardFloor)
	m.AntiCheat.MinAnswerTime = m.Scoring.MinAnswerTime
	m.AntiCheat.FastFactor = config.FloatOr(cfg.AntiCheat.FastFactor, m.AntiCheat.FastFactor)
	m.AntiCheat.StreakThreshold = config.IntOr(cfg.AntiCheat.StreakThreshold, m.AntiCheat.StreakThreshold)
	m.AntiCheat.WindowSize = config.IntOr(cfg.AntiCheat.WindowSize, m.AntiCheat.WindowSize)

	m.Rewards.BaseXP = config.IntOr(cfg.Rewards.BaseXP, m.Rewards.BaseXP)
	m.Rewards.XPPerCorrect = config.IntOr(cfg.Rewards.XPPerCorrect, m.Rewards.XPPerCorrect)
	m.Rewards.BaseCoins = config.IntOr(cfg.Rewards.BaseCoins, m.Rewards.BaseCoins)
	m.Rewards.CoinsPerPoint = config.FloatOr(cfg.Rewards.CoinsPerPoint, m.Rewards.CoinsPerPoint)
	m.Rewards.TimeBonusXPRate = config.FloatOr(cfg.Rewards.TimeBonusXPRate, m.Rewards.TimeBonusXPRate)
	m.Rewards.VictoryFraction = config.FractionOr(cfg.Rewards.VictoryFraction, m.Rewards.VictoryFraction)
	m.Rewards.DrawFraction = config.FractionOr(cfg.Rewards.DrawFraction, m.Rewards.DrawFraction)
	m.Rewards.DefeatFraction = config.FractionOr(cfg.Rewards.DefeatFraction, m.Rewards.DefeatFraction)
	m.Rewards.AbortedFraction = config.FractionOr(cfg.Rewards.AbortedFraction, m.Rewards.AbortedFraction)
	m.Rewards.StreakStep = config.FloatOr(cfg.Rewards.StreakStep, m.Rewards.StreakStep)
	m.Rewards.MaxStreakMultiplier = config.FloatOr(cfg.Rewards.MaxStreak, m.Rewards.MaxStreakMultiplier)
	return ec
}
