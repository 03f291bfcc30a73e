package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-battle-service/internal/domain"
)

// FlagStore keeps flagged matches in a sorted set per player, scored by flag time.
//
//	ZADD quizbattle:flags:{playerID} <unix ms> {matchID}
type FlagStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewFlagStore keeps flags for retention; use at least the escalation window.
func NewFlagStore(client *redis.Client, retention time.Duration) *FlagStore {
	return &FlagStore{client: client, retention: retention}
}

func (s *FlagStore) RecordFlag(ctx context.Context, playerID, matchID string, at time.Time) error {
	key := s.key(playerID)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: matchID})
	if s.retention > 0 {
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(at.Add(-s.retention).UnixMilli(), 10))
		pipe.Expire(ctx, key, s.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record flag: %w", err)
	}
	return nil
}

func (s *FlagStore) CountFlags(ctx context.Context, playerID string, since time.Time) (int, error) {
	n, err := s.client.ZCount(ctx, s.key(playerID), strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count flags: %w", err)
	}
	return int(n), nil
}

func (s *FlagStore) ClearFlags(ctx context.Context, playerID string) error {
	return s.client.Del(ctx, s.key(playerID)).Err()
}

func (s *FlagStore) key(playerID string) string {
	return "quizbattle:flags:" + playerID
}

// SignalStore links accounts to join signals with one set per signal value.
//
//	SADD quizbattle:signal:{kind}:{value} {accountID}
type SignalStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSignalStore(client *redis.Client, ttl time.Duration) *SignalStore {
	return &SignalStore{client: client, ttl: ttl}
}

func (s *SignalStore) Link(ctx context.Context, kind, value, accountID string) (int, error) {
	key := "quizbattle:signal:" + kind + ":" + value
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, accountID)
	card := pipe.SCard(ctx, key)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("link signal: %w", err)
	}
	return int(card.Val()), nil
}

// StreakStore keeps win streaks as plain counters. It is an app.StreakSource
// and an app.EventSink that updates streaks on MatchCompleted.
//
//	INCR quizbattle:streak:{playerID}
type StreakStore struct {
	client *redis.Client
}

func NewStreakStore(client *redis.Client) *StreakStore {
	return &StreakStore{client: client}
}

func (s *StreakStore) WinStreak(ctx context.Context, playerID string) (int, error) {
	n, err := s.client.Get(ctx, s.key(playerID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (s *StreakStore) AnswerRecorded(context.Context, domain.AnswerEvent) error { return nil }

func (s *StreakStore) SuspiciousActivityFlagged(context.Context, domain.SuspiciousActivity) error {
	return nil
}

func (s *StreakStore) MatchCompleted(ctx context.Context, result domain.MatchResult) error {
	if result.Status == domain.PhaseAborted {
		return nil
	}
	pipe := s.client.TxPipeline()
	for i, p := range result.Players {
		if domain.IsBot(p) {
			continue
		}
		won := (i == 0 && result.Status == domain.PhaseVictory) || (i == 1 && result.Status == domain.PhaseDefeat)
		if won {
			pipe.Incr(ctx, s.key(p))
		} else {
			pipe.Set(ctx, s.key(p), 0, 0)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *StreakStore) key(playerID string) string {
	return "quizbattle:streak:" + playerID
}
