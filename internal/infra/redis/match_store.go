package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/infra/memory"
)

// MatchStore is a Redis-aware implementation of app.MatchRepository.
// Notes:
//   - Match state machines stay in process; the local memory.MatchStore owns them.
//   - Redis carries a liveness key per match and a per-player index so other
//     instances and operators can see which matches a player is in.
type MatchStore struct {
	*memory.MatchStore
	client *redis.Client
	ttl    time.Duration
	log    logrus.FieldLogger
}

func NewMatchStore(client *redis.Client, ttl time.Duration, log logrus.FieldLogger) *MatchStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MatchStore{
		MatchStore: memory.NewMatchStore(),
		client:     client,
		ttl:        ttl,
		log:        log.WithField("component", "redis_match_store"),
	}
}

func (s *MatchStore) Add(m *app.Match) error {
	if err := s.MatchStore.Add(m); err != nil {
		return err
	}
	// liveness marker only, the local registry stays authoritative
	ctx := context.Background()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(m.ID()), "1", s.ttl)
	for _, p := range m.Players() {
		pipe.SAdd(ctx, s.playerKey(p), m.ID())
		if s.ttl > 0 {
			pipe.Expire(ctx, s.playerKey(p), s.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.WithFields(logrus.Fields{"match": m.ID(), "error": err}).Warn("liveness registration failed")
	}
	return nil
}

func (s *MatchStore) Delete(matchID string) {
	m, ok := s.MatchStore.Get(matchID)
	if !ok {
		return
	}
	s.MatchStore.Delete(matchID)

	ctx := context.Background()
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(matchID))
	for _, p := range m.Players() {
		pipe.SRem(ctx, s.playerKey(p), matchID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.WithFields(logrus.Fields{"match": matchID, "error": err}).Warn("liveness cleanup failed")
	}
}

// Touch refreshes the liveness key of a live match.
func (s *MatchStore) Touch(ctx context.Context, matchID string) error {
	if _, ok := s.MatchStore.Get(matchID); !ok {
		return nil
	}
	return s.client.Expire(ctx, s.key(matchID), s.ttl).Err()
}

// PlayerMatches lists match ids a player is registered in across instances.
func (s *MatchStore) PlayerMatches(ctx context.Context, playerID string) ([]string, error) {
	return s.client.SMembers(ctx, s.playerKey(playerID)).Result()
}

func (s *MatchStore) key(matchID string) string {
	return "quizbattle:match:" + matchID
}

func (s *MatchStore) playerKey(playerID string) string {
	return "quizbattle:player:" + playerID + ":matches"
}
