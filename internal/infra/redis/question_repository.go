package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

// QuestionRepository caches question pools in Redis (one JSON blob per category)
// and falls back to a loader on cache miss.
// Pools are stored as: SET quizbattle:questions:{category} <json>
type QuestionRepository struct {
	client *redis.Client
	loader app.QuestionSource
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader app.QuestionSource, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) LoadQuestions(ctx context.Context, category string) ([]domain.Question, error) {
	key := r.key(category)
	if qs, ok := r.cached(ctx, key); ok {
		return qs, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if qs, ok := r.cached(ctx, key); ok {
			return qs, nil
		}

		qs, err := r.loader.LoadQuestions(ctx, category)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(qs); err == nil {
			_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) cached(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var qs []domain.Question
	if err := json.Unmarshal(raw, &qs); err != nil || len(qs) == 0 {
		return nil, false
	}
	return qs, true
}

// Invalidate drops a cached category.
func (r *QuestionRepository) Invalidate(ctx context.Context, category string) error {
	return r.client.Del(ctx, r.key(category)).Err()
}

func (r *QuestionRepository) key(category string) string {
	if category == "" {
		category = "_all"
	}
	return "quizbattle:questions:" + category
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
