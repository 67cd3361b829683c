package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studyhub-quiz-service/internal/domain"
)

// SessionRepository tracks running quiz sessions (in-memory, Redis-marked, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// QuizRepository loads course quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, courseID string) (domain.Quiz, error)
}

// ResultStore persists finished quiz sessions. InsertSession returns
// domain.ErrSessionExists for a session id that is already stored.
//
// ClaimSession reserves an unmerged session for one merge until now+lease and
// reports false when the session is merged, unknown, or held by an unexpired
// claim. MarkSessionMerged and ReleaseSession both drop the claim.
type ResultStore interface {
	InsertSession(ctx context.Context, record domain.SessionRecord) error
	ClaimSession(ctx context.Context, sessionID string, now time.Time, lease time.Duration) (bool, error)
	ReleaseSession(ctx context.Context, sessionID string) error
	MarkSessionMerged(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context, userID string) ([]domain.SessionRecord, error)
}

// ProgressStore persists progress with optimistic concurrency. SaveProgress
// treats record.Version as the version that was read (0 for a new record) and
// returns domain.ErrVersionConflict when the stored version differs.
type ProgressStore interface {
	GetProgress(ctx context.Context, userID, courseID string) (domain.ProgressRecord, bool, error)
	SaveProgress(ctx context.Context, record domain.ProgressRecord) (domain.ProgressRecord, error)
	ListProgress(ctx context.Context, userID string) ([]domain.ProgressRecord, error)
}

// CertificateStore persists issued certificates.
type CertificateStore interface {
	InsertCertificate(ctx context.Context, cert domain.Certificate) error
	FindCertificate(ctx context.Context, verificationCode string) (domain.Certificate, error)
	ListCertificates(ctx context.Context, userID string) ([]domain.Certificate, error)
}

// FlashcardStore persists generated flashcards.
type FlashcardStore interface {
	InsertFlashcards(ctx context.Context, cards []domain.Flashcard) error
	ListFlashcards(ctx context.Context, userID, courseID string) ([]domain.Flashcard, error)
}

// AnalyticsStore answers platform-wide counts over the half-open window [from, to).
type AnalyticsStore interface {
	SessionActivity(ctx context.Context, from, to time.Time) (domain.SessionActivity, error)
	CountCertificates(ctx context.Context, from, to time.Time) (int, error)
}

// CourseCatalog lists the courses that have quiz content.
type CourseCatalog interface {
	ListCourses(ctx context.Context) ([]domain.Course, error)
}

// Store is the full durable store.
type Store interface {
	ResultStore
	ProgressStore
	CertificateStore
	FlashcardStore
	AnalyticsStore
}

// DefaultStoreTimeout bounds every store call made by the services.
const DefaultStoreTimeout = 5 * time.Second

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, d)
}

// storeErr turns deadline and cancellation failures into ErrStoreUnavailable and
// annotates everything else with op.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
