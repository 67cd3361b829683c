package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"studyhub-quiz-service/internal/domain"
)

// QuizLoader loads course quiz JSONB from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, courseID string) (domain.Quiz, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE course_id=$1`, courseID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, domain.Unavailable("load quiz", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w: %v", domain.ErrInvalidQuiz, err)
	}
	if quiz.CourseID == "" {
		quiz.CourseID = courseID
	}
	return quiz, nil
}

// ListCourses reads the catalog straight from the quiz documents.
func (l *QuizLoader) ListCourses(ctx context.Context) ([]domain.Course, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT course_id, COALESCE(data->>'title', ''), COALESCE(jsonb_array_length(data->'questions'), 0)
		 FROM quizzes ORDER BY course_id`)
	if err != nil {
		return nil, domain.Unavailable("list courses", err)
	}
	defer rows.Close()

	out := make([]domain.Course, 0)
	for rows.Next() {
		var c domain.Course
		if err := rows.Scan(&c.CourseID, &c.Title, &c.Questions); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("list courses", err)
	}
	return out, nil
}

// SaveQuiz upserts course content; used by seeding and content tooling.
func (l *QuizLoader) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := domain.ValidateQuiz(quiz); err != nil {
		return err
	}
	data, err := json.Marshal(quiz)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO quizzes (course_id, data, updated_at) VALUES ($1, $2::jsonb, now())
		 ON CONFLICT (course_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		quiz.CourseID, string(data))
	if err != nil {
		return domain.Unavailable("save quiz", err)
	}
	return nil
}
