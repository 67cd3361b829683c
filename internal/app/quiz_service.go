package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"studyhub-quiz-service/internal/domain"
)

// DefaultClaimLease bounds how long one merge holds a recorded session before
// another caller may pick it up.
const DefaultClaimLease = time.Minute

// ServiceOptions configure a QuizService. Zero values fall back to defaults.
type ServiceOptions struct {
	SettleDelay  time.Duration
	StoreTimeout time.Duration
	ClaimLease   time.Duration
	Now          func() time.Time
	Schedule     Scheduler
	NewID        func() string
}

// QuizService contains the quiz session use cases and the completion pipeline:
// record the session, merge progress, then mark the session merged.
type QuizService struct {
	sessions  SessionRepository
	quizzes   QuizRepository
	results   ResultStore
	progress  *ProgressAggregator
	telemetry *Telemetry
	opts      ServiceOptions
}

func NewQuizService(sessions SessionRepository, quizzes QuizRepository, results ResultStore, progress *ProgressAggregator, telemetry *Telemetry, opts ServiceOptions) *QuizService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = DefaultClaimLease
	}
	return &QuizService{
		sessions:  sessions,
		quizzes:   quizzes,
		results:   results,
		progress:  progress,
		telemetry: telemetry,
		opts:      opts,
	}
}

// Start loads the course quiz, registers a new session and presents the first question.
func (s *QuizService) Start(ctx context.Context, userID, courseID string) (*Session, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, courseID)
	if err != nil {
		return nil, err
	}

	session, err := NewSession(s.opts.NewID(), userID, quiz, SessionOptions{
		SettleDelay: s.opts.SettleDelay,
		Now:         s.opts.Now,
		Schedule:    s.opts.Schedule,
		Telemetry:   s.telemetry,
		OnFinish:    s.finished,
	})
	if err != nil {
		return nil, err
	}
	s.sessions.Put(session)

	if err := session.Start(); err != nil {
		s.sessions.Delete(session.ID())
		return nil, err
	}
	s.telemetry.Track("course_started", map[string]any{"courseId": courseID, "userId": userID})
	return session, nil
}

// Answer submits an answer for the current question of a running session.
func (s *QuizService) Answer(_ context.Context, sessionID string, option int) (domain.AnswerView, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.AnswerView{}, domain.ErrSessionNotFound
	}
	return session.Answer(option)
}

// ReportViolation feeds a tamper signal into a running session.
func (s *QuizService) ReportViolation(_ context.Context, sessionID string, kind domain.SignalKind) (int, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return 0, domain.ErrSessionNotFound
	}
	session.Violation(kind)
	return session.Violations(), nil
}

// Subscribe returns a channel that receives events for a running session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, sessionID string) (<-chan domain.SessionEvent, func(), error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// Abandon tears down a session that has not finished; nothing is persisted.
func (s *QuizService) Abandon(_ context.Context, sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	if session.Abandon() {
		s.sessions.Delete(sessionID)
	}
}

// finished runs on the settle timer once a session reaches Finished. The writes
// are detached from any request context so they complete even if the client leaves.
func (s *QuizService) finished(session *Session, result domain.QuizResult) {
	defer s.sessions.Delete(session.ID())

	event := domain.SessionEvent{Type: domain.EventFinished, Result: &result, Violations: result.Violations}
	_, progress, err := s.Complete(context.Background(), result)
	switch {
	case err == nil:
		event.Progress = &progress
	case errors.Is(err, domain.ErrProgressNotMerged):
		event.Warning = err.Error()
	default:
		event.Error = err.Error()
	}
	session.Publish(event)
}

// Complete records a finished result and merges it into progress. A failure to
// record the session is returned as is. When only the merge fails the session
// stays recorded as unmerged and the error wraps domain.ErrProgressNotMerged;
// Reconcile picks such sessions up later.
func (s *QuizService) Complete(ctx context.Context, result domain.QuizResult) (domain.SessionRecord, domain.ProgressRecord, error) {
	if result.SessionID == "" {
		result.SessionID = s.opts.NewID()
	}
	record := domain.SessionRecord{
		ID:          result.SessionID,
		Result:      result,
		CompletedAt: s.opts.Now().UTC(),
	}

	insertCtx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	err := s.results.InsertSession(insertCtx, record)
	cancel()
	if err != nil {
		log.Printf("record session %s failed: %v", record.ID, err)
		return domain.SessionRecord{}, domain.ProgressRecord{}, storeErr("record quiz session", err)
	}

	progress, claimed, err := s.mergeRecorded(ctx, &record)
	if err != nil {
		return record, domain.ProgressRecord{}, err
	}
	if !claimed {
		// A concurrent Reconcile owns the merge of this session.
		log.Printf("session %s claimed elsewhere, returning current progress", record.ID)
		current, _, err := s.progress.Get(ctx, result.UserID, result.CourseID)
		if err != nil {
			return record, domain.ProgressRecord{}, fmt.Errorf("%w: %w", domain.ErrProgressNotMerged, err)
		}
		return record, current, nil
	}

	s.telemetry.Track("quiz_completed", map[string]any{
		"courseId":       result.CourseID,
		"userId":         result.UserID,
		"score":          result.Score,
		"total":          result.TotalQuestions,
		"timeTaken":      result.ElapsedSeconds,
		"integrityScore": result.IntegrityScore,
	})
	return record, progress, nil
}

// mergeRecorded claims record and merges it into progress. It reports false
// without merging when the session is already merged or claimed by another caller.
func (s *QuizService) mergeRecorded(ctx context.Context, record *domain.SessionRecord) (domain.ProgressRecord, bool, error) {
	claimCtx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	claimed, err := s.results.ClaimSession(claimCtx, record.ID, s.opts.Now(), s.opts.ClaimLease)
	cancel()
	if err != nil {
		log.Printf("claim session %s failed: %v", record.ID, err)
		return domain.ProgressRecord{}, false, fmt.Errorf("%w: %w", domain.ErrProgressNotMerged, storeErr("claim quiz session", err))
	}
	if !claimed {
		return domain.ProgressRecord{}, false, nil
	}

	progress, err := s.progress.Merge(ctx, record.Result)
	if err != nil {
		log.Printf("merge progress for session %s failed: %v", record.ID, err)
		releaseCtx, cancel := withTimeout(context.Background(), s.opts.StoreTimeout)
		if rerr := s.results.ReleaseSession(releaseCtx, record.ID); rerr != nil {
			log.Printf("release session %s failed: %v", record.ID, rerr)
		}
		cancel()
		return domain.ProgressRecord{}, true, fmt.Errorf("%w: %w", domain.ErrProgressNotMerged, err)
	}

	markCtx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if err := s.results.MarkSessionMerged(markCtx, record.ID); err != nil {
		// Progress already holds this session; once the claim expires a later
		// Reconcile would add its study time twice.
		log.Printf("mark session %s merged failed: %v", record.ID, err)
	} else {
		record.ProgressMerged = true
	}
	return progress, true, nil
}

// Reconcile merges every recorded but unmerged session of a user, oldest first,
// and returns how many were merged. Sessions claimed by an in-flight merge are skipped.
func (s *QuizService) Reconcile(ctx context.Context, userID string) (int, error) {
	listCtx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	records, err := s.results.ListSessions(listCtx, userID)
	cancel()
	if err != nil {
		return 0, storeErr("list quiz sessions", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CompletedAt.Before(records[j].CompletedAt)
	})

	merged := 0
	for i := range records {
		if records[i].ProgressMerged {
			continue
		}
		_, claimed, err := s.mergeRecorded(ctx, &records[i])
		if err != nil {
			return merged, err
		}
		if claimed {
			merged++
		}
	}
	return merged, nil
}
