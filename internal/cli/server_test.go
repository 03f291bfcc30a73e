package cli

import (
	"testing"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/config"
)

func TestEngineConfigMapsRewardsAndAntiCheat(t *testing.T) {
	var cfg config.Config
	draw, aborted := 0.0, 0.2
	cfg.Rewards.DrawFraction = &draw
	cfg.Rewards.AbortedFraction = &aborted
	cfg.AntiCheat.FastFactor = 1.25
	cfg.Scoring.MinAnswerTime = "3s"
	cfg.Engine.GracePeriod = "40s"

	ec := engineConfig(cfg)
	defaults := app.DefaultConfig()

	if ec.Match.Rewards.DrawFraction != 0 || ec.Match.Rewards.AbortedFraction != 0.2 {
		t.Fatalf("expected configured fractions, got %+v", ec.Match.Rewards)
	}
	if ec.Match.Rewards.VictoryFraction != defaults.Match.Rewards.VictoryFraction ||
		ec.Match.Rewards.DefeatFraction != defaults.Match.Rewards.DefeatFraction {
		t.Fatalf("unset fractions should keep defaults, got %+v", ec.Match.Rewards)
	}
	if ec.Match.AntiCheat.FastFactor != 1.25 {
		t.Fatalf("expected fast factor 1.25, got %v", ec.Match.AntiCheat.FastFactor)
	}
	// the monitor and the validator share one fast-answer threshold
	if ec.Match.AntiCheat.MinAnswerTime != 3*time.Second || ec.Match.Scoring.MinAnswerTime != 3*time.Second {
		t.Fatalf("expected shared 3s min answer time, got %s/%s", ec.Match.AntiCheat.MinAnswerTime, ec.Match.Scoring.MinAnswerTime)
	}
	if ec.Match.GracePeriod != 40*time.Second || ec.Retention != defaults.Retention {
		t.Fatalf("unexpected engine timings %s/%s", ec.Match.GracePeriod, ec.Retention)
	}
}
