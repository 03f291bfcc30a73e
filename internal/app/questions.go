package app

import (
	"context"
	"fmt"
	"math/rand/v2"

	"quiz-battle-service/internal/domain"
)

// QuestionPicker draws a random question list for a ruleset from a QuestionSource.
type QuestionPicker struct {
	source  QuestionSource
	shuffle func(n int, swap func(i, j int))
}

func NewQuestionPicker(source QuestionSource) *QuestionPicker {
	return &QuestionPicker{source: source, shuffle: rand.Shuffle}
}

// NewSeededQuestionPicker returns a picker with a reproducible order.
func NewSeededQuestionPicker(source QuestionSource, seed uint64) *QuestionPicker {
	r := rand.New(rand.NewPCG(seed, seed))
	return &QuestionPicker{source: source, shuffle: r.Shuffle}
}

// GetQuestions prefers questions of the ruleset difficulty and tops up from the
// rest of the pool when there are not enough of them.
func (p *QuestionPicker) GetQuestions(ctx context.Context, ruleset domain.Ruleset) ([]domain.Question, error) {
	categories := ruleset.Categories
	if len(categories) == 0 {
		categories = []string{""}
	}

	var pool []domain.Question
	seen := make(map[string]bool)
	for _, c := range categories {
		qs, err := p.source.LoadQuestions(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("%w: category %q: %v", domain.ErrQuestionsUnavailable, c, err)
		}
		for _, q := range qs {
			if seen[q.ID] {
				continue
			}
			seen[q.ID] = true
			pool = append(pool, q)
		}
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: empty pool", domain.ErrQuestionsUnavailable)
	}

	count := ruleset.QuestionCount
	if count == 0 {
		count = len(pool)
	}
	if count > len(pool) {
		return nil, fmt.Errorf("%w: want %d, have %d", domain.ErrQuestionsUnavailable, count, len(pool))
	}

	var preferred, rest []domain.Question
	for _, q := range pool {
		if ruleset.Difficulty == 0 || q.Difficulty == ruleset.Difficulty {
			preferred = append(preferred, q)
		} else {
			rest = append(rest, q)
		}
	}
	p.shuffle(len(preferred), func(i, j int) { preferred[i], preferred[j] = preferred[j], preferred[i] })
	p.shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })

	out := append(preferred, rest...)
	return out[:count], nil
}
