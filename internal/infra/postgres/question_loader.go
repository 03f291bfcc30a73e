package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-battle-service/internal/domain"
)

// QuestionLoader loads question pools from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

// LoadQuestions returns every question of a category; an empty category means all.
func (l *QuestionLoader) LoadQuestions(ctx context.Context, category string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, text, alternatives, correct_answer, category, difficulty
		FROM questions
		WHERE $1 = '' OR category = $1
		ORDER BY id`, category)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var (
			q   domain.Question
			raw []byte
		)
		if err := rows.Scan(&q.ID, &q.Text, &raw, &q.CorrectAnswer, &q.Category, &q.Difficulty); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(raw, &q.Alternatives); err != nil {
			return nil, fmt.Errorf("unmarshal alternatives of %s: %w", q.ID, err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: category %q", domain.ErrQuestionsUnavailable, category)
	}
	return out, nil
}

// SaveQuestions upserts a question bank, used for seeding.
func (l *QuestionLoader) SaveQuestions(ctx context.Context, questions []domain.Question) error {
	for _, q := range questions {
		raw, err := json.Marshal(q.Alternatives)
		if err != nil {
			return err
		}
		_, err = l.pool.Exec(ctx, `
			INSERT INTO questions (id, text, alternatives, correct_answer, category, difficulty)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				text = EXCLUDED.text,
				alternatives = EXCLUDED.alternatives,
				correct_answer = EXCLUDED.correct_answer,
				category = EXCLUDED.category,
				difficulty = EXCLUDED.difficulty`,
			q.ID, q.Text, raw, q.CorrectAnswer, q.Category, q.Difficulty)
		if err != nil {
			return fmt.Errorf("save question %s: %w", q.ID, err)
		}
	}
	return nil
}
