package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/uptrace/bun/driver/pgdriver"
	"studyhub-quiz-service/internal/domain"
)

func TestWrapClassifiesErrors(t *testing.T) {
	if wrap("op", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	if err := wrap("list progress", fmt.Errorf("dial: %w", context.DeadlineExceeded)); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected transport failure to be unavailable, got %v", err)
	}
	if err := wrap("insert certificate", pgdriver.Error{}); errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("server rejections are not unavailability: %v", err)
	}
}

func TestRowsRoundTripDomainRecords(t *testing.T) {
	at := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	session := domain.SessionRecord{
		ID: "s1",
		Result: domain.QuizResult{
			SessionID: "s1", UserID: "u1", CourseID: "biology-101",
			Score: 1, TotalQuestions: 2, ElapsedSeconds: 12, Violations: 3, IntegrityScore: 70,
		},
		CompletedAt: at,
	}
	if got := newSessionRow(session).record(); got != session {
		t.Fatalf("session row mismatch: %+v", got)
	}

	progress := domain.ProgressRecord{
		UserID: "u1", CourseID: "biology-101", CompletionPercentage: 50,
		TotalStudyTime: 12, StudyStreak: 1, LastActivity: at, Version: 3,
	}
	if got := newProgressRow(progress).record(); got != progress {
		t.Fatalf("progress row mismatch: %+v", got)
	}
}
