package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-battle-service/internal/domain"
)

type answerEventRow struct {
	bun.BaseModel `bun:"table:answer_events"`

	ID               int64     `bun:"id,pk,autoincrement"`
	MatchID          string    `bun:"match_id"`
	PlayerID         string    `bun:"player_id"`
	QuestionIndex    int       `bun:"question_index"`
	Answer           string    `bun:"answer"`
	ClientElapsedMs  int64     `bun:"client_elapsed_ms"`
	ElapsedMs        int64     `bun:"elapsed_ms"`
	Correct          bool      `bun:"correct"`
	TimeBonus        int       `bun:"time_bonus"`
	Points           int       `bun:"points"`
	ServerReceivedAt time.Time `bun:"server_received_at"`
}

type suspiciousActivityRow struct {
	bun.BaseModel `bun:"table:suspicious_activities"`

	ID       int64     `bun:"id,pk,autoincrement"`
	MatchID  string    `bun:"match_id"`
	PlayerID string    `bun:"player_id"`
	Kind     string    `bun:"kind"`
	Detail   string    `bun:"detail"`
	Streak   int       `bun:"streak"`
	At       time.Time `bun:"at"`
}

type matchResultRow struct {
	bun.BaseModel `bun:"table:match_results"`

	MatchID       string                         `bun:"match_id,pk"`
	Players       []string                       `bun:"players,type:jsonb"`
	Status        string                         `bun:"status"`
	ScorePlayer   int                            `bun:"score_player"`
	ScoreOpponent int                            `bun:"score_opponent"`
	Rewards       map[string]domain.RewardResult `bun:"rewards,type:jsonb"`
	AbortReason   string                         `bun:"abort_reason"`
	StartedAt     time.Time                      `bun:"started_at"`
	EndedAt       time.Time                      `bun:"ended_at"`
}

// AuditSink writes collaborator events to Postgres through bun.
type AuditSink struct {
	db *bun.DB
}

func NewAuditSink(db *bun.DB) *AuditSink {
	return &AuditSink{db: db}
}

func (s *AuditSink) AnswerRecorded(ctx context.Context, ev domain.AnswerEvent) error {
	row := &answerEventRow{
		MatchID:          ev.MatchID,
		PlayerID:         ev.PlayerID,
		QuestionIndex:    ev.QuestionIndex,
		Answer:           ev.Answer,
		ClientElapsedMs:  ev.ClientElapsedMs,
		ElapsedMs:        ev.ElapsedMs,
		Correct:          ev.Correct,
		TimeBonus:        ev.TimeBonus,
		Points:           ev.Points,
		ServerReceivedAt: ev.ServerReceivedAt,
	}
	// replays of the same answer are ignored
	if _, err := s.db.NewInsert().Model(row).On("CONFLICT (match_id, player_id, question_index) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert answer event: %w", err)
	}
	return nil
}

func (s *AuditSink) SuspiciousActivityFlagged(ctx context.Context, act domain.SuspiciousActivity) error {
	row := &suspiciousActivityRow{
		MatchID:  act.MatchID,
		PlayerID: act.PlayerID,
		Kind:     act.Kind,
		Detail:   act.Detail,
		Streak:   act.Streak,
		At:       act.At,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert suspicious activity: %w", err)
	}
	return nil
}

func (s *AuditSink) MatchCompleted(ctx context.Context, result domain.MatchResult) error {
	rewards := result.Rewards
	if rewards == nil {
		rewards = map[string]domain.RewardResult{}
	}
	row := &matchResultRow{
		MatchID:       result.MatchID,
		Players:       result.Players,
		Status:        string(result.Status),
		ScorePlayer:   result.Score.Player,
		ScoreOpponent: result.Score.Opponent,
		Rewards:       rewards,
		AbortReason:   result.AbortReason,
		StartedAt:     result.StartedAt,
		EndedAt:       result.EndedAt,
	}
	if _, err := s.db.NewInsert().Model(row).On("CONFLICT (match_id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert match result: %w", err)
	}
	return nil
}

// SuspiciousCount returns how many findings were stored for a player since a time.
func (s *AuditSink) SuspiciousCount(ctx context.Context, playerID string, since time.Time) (int, error) {
	return s.db.NewSelect().
		Model((*suspiciousActivityRow)(nil)).
		Where("player_id = ?", playerID).
		Where("at >= ?", since).
		Count(ctx)
}

// Result loads a stored match result.
func (s *AuditSink) Result(ctx context.Context, matchID string) (domain.MatchResult, error) {
	row := new(matchResultRow)
	if err := s.db.NewSelect().Model(row).Where("match_id = ?", matchID).Scan(ctx); err != nil {
		return domain.MatchResult{}, fmt.Errorf("load match result: %w", err)
	}
	return domain.MatchResult{
		MatchID:     row.MatchID,
		Players:     row.Players,
		Status:      domain.Phase(row.Status),
		Score:       domain.Score{Player: row.ScorePlayer, Opponent: row.ScoreOpponent},
		Rewards:     row.Rewards,
		AbortReason: row.AbortReason,
		StartedAt:   row.StartedAt,
		EndedAt:     row.EndedAt,
	}, nil
}

// Open connects bun to a Postgres DSN.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}
