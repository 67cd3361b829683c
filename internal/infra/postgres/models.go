package postgres

import (
	"time"

	"github.com/uptrace/bun"
	"studyhub-quiz-service/internal/domain"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:quiz_sessions"`

	ID             string    `bun:"id,pk"`
	UserID         string    `bun:"user_id,notnull"`
	CourseID       string    `bun:"course_id,notnull"`
	Score          int       `bun:"score,notnull"`
	TotalQuestions int       `bun:"total_questions,notnull"`
	ElapsedSeconds int       `bun:"elapsed_seconds,notnull"`
	Violations     int       `bun:"violations,notnull"`
	IntegrityScore int       `bun:"integrity_score,notnull"`
	CompletedAt    time.Time `bun:"completed_at,notnull"`
	ProgressMerged bool      `bun:"progress_merged,notnull"`
	ClaimedUntil   time.Time `bun:"claimed_until,nullzero"`
}

func newSessionRow(r domain.SessionRecord) *sessionRow {
	return &sessionRow{
		ID:             r.ID,
		UserID:         r.Result.UserID,
		CourseID:       r.Result.CourseID,
		Score:          r.Result.Score,
		TotalQuestions: r.Result.TotalQuestions,
		ElapsedSeconds: r.Result.ElapsedSeconds,
		Violations:     r.Result.Violations,
		IntegrityScore: r.Result.IntegrityScore,
		CompletedAt:    r.CompletedAt,
		ProgressMerged: r.ProgressMerged,
	}
}

func (r sessionRow) record() domain.SessionRecord {
	return domain.SessionRecord{
		ID: r.ID,
		Result: domain.QuizResult{
			SessionID:      r.ID,
			UserID:         r.UserID,
			CourseID:       r.CourseID,
			Score:          r.Score,
			TotalQuestions: r.TotalQuestions,
			ElapsedSeconds: r.ElapsedSeconds,
			Violations:     r.Violations,
			IntegrityScore: r.IntegrityScore,
		},
		CompletedAt:    r.CompletedAt.UTC(),
		ProgressMerged: r.ProgressMerged,
	}
}

type progressRow struct {
	bun.BaseModel `bun:"table:user_progress"`

	UserID               string    `bun:"user_id,pk"`
	CourseID             string    `bun:"course_id,pk"`
	CompletionPercentage float64   `bun:"completion_percentage,notnull"`
	TotalStudyTime       int       `bun:"total_study_time,notnull"`
	StudyStreak          int       `bun:"study_streak,notnull"`
	LastActivity         time.Time `bun:"last_activity,notnull"`
	Version              int64     `bun:"version,notnull"`
}

func newProgressRow(p domain.ProgressRecord) *progressRow {
	return &progressRow{
		UserID:               p.UserID,
		CourseID:             p.CourseID,
		CompletionPercentage: p.CompletionPercentage,
		TotalStudyTime:       p.TotalStudyTime,
		StudyStreak:          p.StudyStreak,
		LastActivity:         p.LastActivity,
		Version:              p.Version,
	}
}

func (r progressRow) record() domain.ProgressRecord {
	return domain.ProgressRecord{
		UserID:               r.UserID,
		CourseID:             r.CourseID,
		CompletionPercentage: r.CompletionPercentage,
		TotalStudyTime:       r.TotalStudyTime,
		StudyStreak:          r.StudyStreak,
		LastActivity:         r.LastActivity.UTC(),
		Version:              r.Version,
	}
}

type certificateRow struct {
	bun.BaseModel `bun:"table:certificates"`

	ID               string    `bun:"id,pk"`
	UserID           string    `bun:"user_id,notnull"`
	CourseID         string    `bun:"course_id,notnull"`
	VerificationCode string    `bun:"verification_code,notnull,unique"`
	IssuedAt         time.Time `bun:"issued_at,notnull"`
}

func (r certificateRow) record() domain.Certificate {
	return domain.Certificate{
		ID:               r.ID,
		UserID:           r.UserID,
		CourseID:         r.CourseID,
		VerificationCode: r.VerificationCode,
		IssuedAt:         r.IssuedAt.UTC(),
	}
}

type flashcardRow struct {
	bun.BaseModel `bun:"table:flashcards"`

	ID         string    `bun:"id,pk"`
	UserID     string    `bun:"user_id,notnull"`
	CourseID   string    `bun:"course_id,notnull"`
	FrontText  string    `bun:"front_text,notnull"`
	BackText   string    `bun:"back_text,notnull"`
	Difficulty int       `bun:"difficulty,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

func (r flashcardRow) record() domain.Flashcard {
	return domain.Flashcard{
		ID:         r.ID,
		UserID:     r.UserID,
		CourseID:   r.CourseID,
		FrontText:  r.FrontText,
		BackText:   r.BackText,
		Difficulty: r.Difficulty,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}
