package scoring

import (
	"math"

	"quiz-battle-service/internal/domain"
)

// RewardConfig holds base rates and outcome fractions for match rewards.
type RewardConfig struct {
	BaseXP              int
	XPPerCorrect        int
	BaseCoins           int
	CoinsPerPoint       float64
	TimeBonusXPRate     float64
	VictoryFraction     float64
	DrawFraction        float64
	DefeatFraction      float64
	AbortedFraction     float64
	StreakStep          float64 // multiplier gained per consecutive win
	MaxStreakMultiplier float64
}

// DefaultRewardConfig returns production defaults.
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		BaseXP:              100,
		XPPerCorrect:        10,
		BaseCoins:           50,
		CoinsPerPoint:       0.01,
		TimeBonusXPRate:     0.1,
		VictoryFraction:     1,
		DrawFraction:        0.5,
		DefeatFraction:      0.1,
		AbortedFraction:     0,
		StreakStep:          0.1,
		MaxStreakMultiplier: 2,
	}
}

// RewardInput describes one player's finished match.
type RewardInput struct {
	Outcome        domain.Phase // victory, defeat, draw or aborted, from this player's perspective
	Score          int
	CorrectCount   int
	TimeBonusAccum int
	WinStreak      int
}

// Calculator maps match outcomes to XP and coin deltas.
type Calculator struct {
	config RewardConfig
}

func NewCalculator(config RewardConfig) Calculator {
	return Calculator{config: config}
}

// Calculate is deterministic; an unknown outcome yields a zero result.
func (c Calculator) Calculate(in RewardInput) domain.RewardResult {
	factor := c.fraction(in.Outcome)
	if factor <= 0 {
		return domain.RewardResult{}
	}

	baseXP := float64(c.config.BaseXP+in.CorrectCount*c.config.XPPerCorrect) * factor
	timeBonus := roundInt(float64(in.TimeBonusAccum) * c.config.TimeBonusXPRate * factor)

	streakBonus := 0
	if in.Outcome == domain.PhaseVictory {
		streakBonus = roundInt(baseXP * (c.StreakMultiplier(in.WinStreak) - 1))
	}

	coins := (float64(c.config.BaseCoins) + float64(in.Score)*c.config.CoinsPerPoint) * factor
	return domain.RewardResult{
		XPEarned:    roundInt(baseXP) + streakBonus + timeBonus,
		CoinsEarned: roundInt(coins),
		StreakBonus: streakBonus,
		TimeBonus:   timeBonus,
	}
}

// StreakMultiplier grows with the win streak and is capped at MaxStreakMultiplier.
func (c Calculator) StreakMultiplier(streak int) float64 {
	if streak <= 0 {
		return 1
	}
	m := 1 + float64(streak)*c.config.StreakStep
	if c.config.MaxStreakMultiplier > 0 && m > c.config.MaxStreakMultiplier {
		return c.config.MaxStreakMultiplier
	}
	return m
}

func (c Calculator) fraction(outcome domain.Phase) float64 {
	switch outcome {
	case domain.PhaseVictory:
		return c.config.VictoryFraction
	case domain.PhaseDraw:
		return c.config.DrawFraction
	case domain.PhaseDefeat:
		return c.config.DefeatFraction
	case domain.PhaseAborted:
		return c.config.AbortedFraction
	}
	return 0
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
