package domain

import (
	"strings"
	"time"
)

// BotPrefix marks player identities driven by a scripted policy.
const BotPrefix = "bot:"

// IsBot reports whether the player id belongs to a bot.
func IsBot(playerID string) bool {
	return strings.HasPrefix(playerID, BotPrefix)
}

// Question is one multiple-choice question as delivered by the question provider.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Alternatives  []string `json:"alternatives"`
	CorrectAnswer string   `json:"correctAnswer"`
	Category      string   `json:"category"`
	Difficulty    int      `json:"difficulty"`
}

// PublicQuestion is the client-safe view of a question.
type PublicQuestion struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Alternatives []string `json:"alternatives"`
	Category     string   `json:"category"`
}

// Public strips the correct answer.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:           q.ID,
		Text:         q.Text,
		Alternatives: append([]string(nil), q.Alternatives...),
		Category:     q.Category,
	}
}

// Ruleset configures a single match.
type Ruleset struct {
	TimePerQuestion time.Duration `json:"timePerQuestion"`
	QuestionCount   int           `json:"questionCount"` // 0 means all supplied questions
	Difficulty      int           `json:"difficulty"`
	Categories      []string      `json:"categories,omitempty"`
}

// Phase is a named state of the match lifecycle.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseMatchmaking     Phase = "matchmaking"
	PhaseReady           Phase = "ready"
	PhaseAwaitingAnswers Phase = "awaiting_answers"
	PhaseRevealingResult Phase = "revealing_result"
	PhaseVictory         Phase = "victory"
	PhaseDefeat          Phase = "defeat"
	PhaseDraw            Phase = "draw"
	PhaseAborted         Phase = "aborted"
)

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseVictory, PhaseDefeat, PhaseDraw, PhaseAborted:
		return true
	}
	return false
}

// Active reports whether a question cycle is running.
func (p Phase) Active() bool {
	return p == PhaseAwaitingAnswers || p == PhaseRevealingResult
}

// Score is the aggregate from the perspective of players[0].
type Score struct {
	Player   int `json:"player"`
	Opponent int `json:"opponent"`
}

// PlayerState is the per-player sub-state inside a match.
type PlayerState struct {
	PlayerID       string  `json:"playerId"`
	Bot            bool    `json:"bot"`
	Ready          bool    `json:"ready"`
	Connected      bool    `json:"connected"`
	Connections    int     `json:"connections"`
	Answered       bool    `json:"answered"`
	Answer         *string `json:"answer"` // hidden from snapshots until the reveal
	CorrectCount   int     `json:"correctCount"`
	TimeBonusAccum int     `json:"timeBonusAccum"`
	Score          int     `json:"score"`
	Flagged        bool    `json:"flagged"`
	InboundSeq     uint64  `json:"inboundSeq"` // last accepted inbound message seq
}

// AnswerEvent records one accepted submission. It is never mutated after creation.
type AnswerEvent struct {
	MatchID          string    `json:"matchId"`
	PlayerID         string    `json:"playerId"`
	QuestionIndex    int       `json:"questionIndex"`
	Answer           string    `json:"answer"`
	ClientElapsedMs  int64     `json:"clientElapsedMs"`
	ServerReceivedAt time.Time `json:"serverReceivedAt"`
	ElapsedMs        int64     `json:"elapsedMs"`
	Correct          bool      `json:"correct"`
	TimeBonus        int       `json:"timeBonus"`
	Points           int       `json:"points"`
}

// RewardResult is handed to the external economy once per player at match end.
type RewardResult struct {
	XPEarned    int `json:"xpEarned"`
	CoinsEarned int `json:"coinsEarned"`
	StreakBonus int `json:"streakBonus"`
	TimeBonus   int `json:"timeBonus"`
}

// MatchSnapshot is an immutable read view of a match.
type MatchSnapshot struct {
	MatchID              string                  `json:"matchId"`
	Players              []string                `json:"players"`
	Ruleset              Ruleset                 `json:"ruleset"`
	Phase                Phase                   `json:"phase"`
	CurrentQuestionIndex int                     `json:"currentQuestionIndex"`
	QuestionCount        int                     `json:"questionCount"`
	Question             *PublicQuestion         `json:"question,omitempty"`
	QuestionStartedAt    time.Time               `json:"questionStartedAt"`
	Score                Score                   `json:"score"`
	PlayerStates         map[string]PlayerState  `json:"playerStates"`
	Rewards              map[string]RewardResult `json:"rewards,omitempty"`
	AbortReason          string                  `json:"abortReason,omitempty"`
	CreatedAt            time.Time               `json:"createdAt"`
	EndedAt              time.Time               `json:"endedAt"`
	LastSeq              uint64                  `json:"lastSeq"`
}

// SuspiciousActivity is emitted to the audit collaborator.
type SuspiciousActivity struct {
	MatchID  string    `json:"matchId"`
	PlayerID string    `json:"playerId"`
	Kind     string    `json:"kind"`
	Detail   string    `json:"detail"`
	Streak   int       `json:"streak"`
	At       time.Time `json:"at"`
}

// Suspicious activity kinds.
const (
	ActivityFastAnswer   = "fast_answer"
	ActivityTimingStreak = "timing_streak"
	ActivityMultiAccount = "multi_account"
)

// MatchResult is emitted once a match reaches a terminal phase.
type MatchResult struct {
	MatchID     string                  `json:"matchId"`
	Players     []string                `json:"players"`
	Status      Phase                   `json:"status"`
	Score       Score                   `json:"score"`
	Rewards     map[string]RewardResult `json:"rewards"`
	AbortReason string                  `json:"abortReason,omitempty"`
	StartedAt   time.Time               `json:"startedAt"`
	EndedAt     time.Time               `json:"endedAt"`
}
