package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/domain"
	"studyhub-quiz-service/internal/infra/memory"
)

type serviceHarness struct {
	service   *app.QuizService
	sessions  *memory.SessionStore
	store     *memory.Store
	progress  *app.ProgressAggregator
	scheduler *manualScheduler
	clock     *fakeClock
	sink      *recordingSink
	telemetry *app.Telemetry
}

func newServiceHarness(t *testing.T, results app.ResultStore, progressStore app.ProgressStore) *serviceHarness {
	t.Helper()
	store := memory.NewStore()
	if results == nil {
		results = store
	}
	if progressStore == nil {
		progressStore = store
	}
	h := &serviceHarness{
		sessions:  memory.NewSessionStore(),
		store:     store,
		scheduler: &manualScheduler{},
		clock:     newFakeClock(),
		sink:      &recordingSink{},
	}
	h.telemetry = app.NewTelemetry(h.sink, 32, time.Second)
	h.progress = app.NewProgressAggregatorWithClock(progressStore, 0, h.clock.Now)
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"biology-101": twoQuestionQuiz(),
	}), time.Minute)

	var seq int64
	h.service = app.NewQuizService(h.sessions, quizzes, results, h.progress, h.telemetry, app.ServiceOptions{
		Now:      h.clock.Now,
		Schedule: h.scheduler.schedule,
		NewID: func() string {
			return fmt.Sprintf("session-%d", atomic.AddInt64(&seq, 1))
		},
	})
	return h
}

// play answers both questions with the given options and fires the settle timers.
func (h *serviceHarness) play(t *testing.T, sessionID string, options ...int) {
	t.Helper()
	for _, option := range options {
		if _, err := h.service.Answer(context.Background(), sessionID, option); err != nil {
			t.Fatalf("answer %d: %v", option, err)
		}
		h.clock.Advance(2 * time.Second)
		h.scheduler.fire()
	}
}

func lastFinished(t *testing.T, events []domain.SessionEvent) domain.SessionEvent {
	t.Helper()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == domain.EventFinished {
			return events[i]
		}
	}
	t.Fatalf("no finished event in %+v", events)
	return domain.SessionEvent{}
}

func TestQuizServiceCompletesAndMergesProgress(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t, nil, nil)

	session, err := h.service.Start(ctx, "u1", "biology-101")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events, cancel, err := h.service.Subscribe(ctx, session.ID())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	h.play(t, session.ID(), 0, 1)

	finished := lastFinished(t, drain(events))
	if finished.Error != "" || finished.Warning != "" {
		t.Fatalf("unexpected failure on finished event %+v", finished)
	}
	if finished.Progress == nil || finished.Progress.CompletionPercentage != 100 {
		t.Fatalf("expected merged progress of 100, got %+v", finished.Progress)
	}
	if finished.Result == nil || finished.Result.Score != 2 || finished.Result.IntegrityScore != 100 {
		t.Fatalf("unexpected result %+v", finished.Result)
	}

	if _, ok := h.sessions.Get(session.ID()); ok {
		t.Fatalf("finished session must be removed from the registry")
	}
	records, _ := h.store.ListSessions(ctx, "u1")
	if len(records) != 1 || !records[0].ProgressMerged {
		t.Fatalf("expected one merged session record, got %+v", records)
	}

	issuer := app.NewCertificateIssuer(h.store, h.store, nil, app.IssuerOptions{})
	if _, err := issuer.Issue(ctx, "u1", "biology-101"); err != nil {
		t.Fatalf("expected certificate after full completion, got %v", err)
	}

	h.telemetry.Close()
	if len(h.sink.named("course_started")) != 1 || len(h.sink.named("quiz_completed")) != 1 {
		t.Fatalf("expected course_started and quiz_completed telemetry, got %+v", h.sink.events)
	}
}

func TestQuizServiceReportsViolations(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t, nil, nil)
	session, err := h.service.Start(ctx, "u1", "biology-101")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := h.service.ReportViolation(ctx, session.ID(), domain.SignalTabSwitch); err != nil {
			t.Fatalf("report violation: %v", err)
		}
	}
	h.play(t, session.ID(), 0, 1)

	records, _ := h.store.ListSessions(ctx, "u1")
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if got := records[0].Result; got.Violations != 3 || got.IntegrityScore != 70 || got.Score != 2 {
		t.Fatalf("unexpected recorded result %+v", got)
	}
	progress, _, _ := h.store.GetProgress(ctx, "u1", "biology-101")
	if progress.CompletionPercentage != 100 {
		t.Fatalf("violations must not lower completion, got %v", progress.CompletionPercentage)
	}

	h.telemetry.Close()
	if len(h.sink.named("integrity_violation")) != 3 {
		t.Fatalf("expected three integrity_violation events")
	}
}

func TestQuizServiceUnknownSessionAndQuiz(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t, nil, nil)

	if _, err := h.service.Start(ctx, "u1", "chemistry-201"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
	if _, err := h.service.Answer(ctx, "missing", 0); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	if _, err := h.service.ReportViolation(ctx, "missing", domain.SignalTabSwitch); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	if _, _, err := h.service.Subscribe(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestQuizServiceAbandonPersistsNothing(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t, nil, nil)
	session, err := h.service.Start(ctx, "u1", "biology-101")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.service.Answer(ctx, session.ID(), 0); err != nil {
		t.Fatalf("answer: %v", err)
	}

	h.service.Abandon(ctx, session.ID())
	h.scheduler.fire()

	if session.State() != app.StateAbandoned {
		t.Fatalf("expected abandoned, got %s", session.State())
	}
	if h.sessions.Len() != 0 {
		t.Fatalf("expected registry to be empty")
	}
	records, _ := h.store.ListSessions(ctx, "u1")
	if len(records) != 0 {
		t.Fatalf("abandoned session must not be recorded, got %+v", records)
	}
	if _, ok, _ := h.store.GetProgress(ctx, "u1", "biology-101"); ok {
		t.Fatalf("abandoned session must not touch progress")
	}
}

type failingResults struct{ *memory.Store }

func (failingResults) InsertSession(context.Context, domain.SessionRecord) error {
	return context.DeadlineExceeded
}

func TestQuizServiceSessionWriteFailure(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t, failingResults{memory.NewStore()}, nil)
	session, _ := h.service.Start(ctx, "u1", "biology-101")
	events, cancel, _ := h.service.Subscribe(ctx, session.ID())
	defer cancel()

	h.play(t, session.ID(), 0, 1)

	finished := lastFinished(t, drain(events))
	if finished.Error == "" || finished.Progress != nil {
		t.Fatalf("expected error on finished event, got %+v", finished)
	}
	if _, ok, _ := h.store.GetProgress(ctx, "u1", "biology-101"); ok {
		t.Fatalf("progress must not be merged without a recorded session")
	}
}

func TestQuizServiceCompleteSessionWriteError(t *testing.T) {
	h := newServiceHarness(t, failingResults{memory.NewStore()}, nil)
	_, _, err := h.service.Complete(context.Background(), domain.QuizResult{UserID: "u1", CourseID: "c1", Score: 1, TotalQuestions: 2})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if errors.Is(err, domain.ErrProgressNotMerged) {
		t.Fatalf("session write failure is not a merge failure: %v", err)
	}
}

// toggledProgress fails every progress call while down is set.
type toggledProgress struct {
	app.ProgressStore
	down atomic.Bool
}

func (p *toggledProgress) GetProgress(ctx context.Context, userID, courseID string) (domain.ProgressRecord, bool, error) {
	if p.down.Load() {
		return domain.ProgressRecord{}, false, domain.Unavailable("get progress", errors.New("connection reset"))
	}
	return p.ProgressStore.GetProgress(ctx, userID, courseID)
}

func TestQuizServiceMergeFailureIsReconciled(t *testing.T) {
	ctx := context.Background()
	backing := memory.NewStore()
	progress := &toggledProgress{ProgressStore: backing}
	progress.down.Store(true)

	h := newServiceHarness(t, backing, progress)
	session, _ := h.service.Start(ctx, "u1", "biology-101")
	events, cancel, _ := h.service.Subscribe(ctx, session.ID())
	defer cancel()

	h.play(t, session.ID(), 0, 2)

	finished := lastFinished(t, drain(events))
	if finished.Warning == "" || finished.Error != "" || finished.Progress != nil {
		t.Fatalf("expected merge warning, got %+v", finished)
	}
	records, _ := backing.ListSessions(ctx, "u1")
	if len(records) != 1 || records[0].ProgressMerged {
		t.Fatalf("expected one unmerged record, got %+v", records)
	}

	if _, err := h.service.Reconcile(ctx, "u1"); !errors.Is(err, domain.ErrProgressNotMerged) {
		t.Fatalf("expected reconcile to fail while progress is down, got %v", err)
	}

	progress.down.Store(false)
	merged, err := h.service.Reconcile(ctx, "u1")
	if err != nil || merged != 1 {
		t.Fatalf("expected one merged session, got %d, %v", merged, err)
	}
	stored, ok, _ := backing.GetProgress(ctx, "u1", "biology-101")
	if !ok || stored.CompletionPercentage != 50 || stored.TotalStudyTime != 4 {
		t.Fatalf("unexpected reconciled progress %+v", stored)
	}

	merged, err = h.service.Reconcile(ctx, "u1")
	if err != nil || merged != 0 {
		t.Fatalf("second reconcile must be a no-op, got %d, %v", merged, err)
	}
}

// stallingProgress holds the first progress read until release is closed.
type stallingProgress struct {
	app.ProgressStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newStallingProgress(inner app.ProgressStore) *stallingProgress {
	return &stallingProgress{ProgressStore: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (p *stallingProgress) GetProgress(ctx context.Context, userID, courseID string) (domain.ProgressRecord, bool, error) {
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.entered)
		<-p.release
	}
	return p.ProgressStore.GetProgress(ctx, userID, courseID)
}

func TestQuizServiceReconcileSkipsInFlightMerge(t *testing.T) {
	ctx := context.Background()
	backing := memory.NewStore()
	progress := newStallingProgress(backing)
	h := newServiceHarness(t, backing, progress)

	done := make(chan error, 1)
	go func() {
		_, _, err := h.service.Complete(ctx, domain.QuizResult{
			SessionID: "s1", UserID: "u1", CourseID: "biology-101",
			Score: 1, TotalQuestions: 2, ElapsedSeconds: 30,
		})
		done <- err
	}()
	<-progress.entered

	merged, err := h.service.Reconcile(ctx, "u1")
	if err != nil || merged != 0 {
		t.Fatalf("reconcile must skip a session whose merge is in flight, got %d, %v", merged, err)
	}

	close(progress.release)
	if err := <-done; err != nil {
		t.Fatalf("complete: %v", err)
	}

	stored, ok, _ := backing.GetProgress(ctx, "u1", "biology-101")
	if !ok || stored.TotalStudyTime != 30 {
		t.Fatalf("expected study time merged once, got %+v", stored)
	}
	merged, err = h.service.Reconcile(ctx, "u1")
	if err != nil || merged != 0 {
		t.Fatalf("merged session must not be reconciled again, got %d, %v", merged, err)
	}
}

// contendedResults claims each session right after storing it, the way a
// concurrent reconcile would.
type contendedResults struct {
	*memory.Store
	now func() time.Time
}

func (r contendedResults) InsertSession(ctx context.Context, record domain.SessionRecord) error {
	if err := r.Store.InsertSession(ctx, record); err != nil {
		return err
	}
	_, err := r.Store.ClaimSession(ctx, record.ID, r.now(), time.Minute)
	return err
}

func TestQuizServiceCompleteLeavesClaimedSessionAlone(t *testing.T) {
	ctx := context.Background()
	backing := memory.NewStore()
	clock := newFakeClock()
	h := newServiceHarness(t, contendedResults{Store: backing, now: clock.Now}, backing)

	record, progress, err := h.service.Complete(ctx, domain.QuizResult{
		SessionID: "s1", UserID: "u1", CourseID: "biology-101",
		Score: 2, TotalQuestions: 2, ElapsedSeconds: 30,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if record.ProgressMerged || progress.Version != 0 {
		t.Fatalf("claimed session must not be merged here, got %+v %+v", record, progress)
	}
	if _, ok, _ := backing.GetProgress(ctx, "u1", "biology-101"); ok {
		t.Fatalf("progress must be left to the claim holder")
	}
}

func TestQuizServiceRejectsDuplicateSession(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t, nil, nil)
	result := domain.QuizResult{SessionID: "s1", UserID: "u1", CourseID: "biology-101", Score: 1, TotalQuestions: 2, ElapsedSeconds: 30}

	if _, _, err := h.service.Complete(ctx, result); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, _, err := h.service.Complete(ctx, result); !errors.Is(err, domain.ErrSessionExists) {
		t.Fatalf("expected duplicate session error, got %v", err)
	}
	stored, _, _ := h.store.GetProgress(ctx, "u1", "biology-101")
	if stored.TotalStudyTime != 30 {
		t.Fatalf("duplicate submission must not merge twice, got %d", stored.TotalStudyTime)
	}
}
