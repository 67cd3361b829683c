package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studyhub-quiz-service/internal/domain"
)

// DefaultMergeRetries bounds optimistic retries of one progress merge.
const DefaultMergeRetries = 5

// ProgressAggregator merges finished sessions into durable progress. Each merge
// is a read, a pure merge and a version-checked save; a conflicting concurrent
// save causes a fresh read, so the stored completion is the maximum over all
// merged sessions regardless of write order.
type ProgressAggregator struct {
	store   ProgressStore
	now     func() time.Time
	retries int
	timeout time.Duration
}

func NewProgressAggregator(store ProgressStore, retries int, timeout time.Duration) *ProgressAggregator {
	if retries <= 0 {
		retries = DefaultMergeRetries
	}
	return &ProgressAggregator{store: store, now: time.Now, retries: retries, timeout: timeout}
}

// NewProgressAggregatorWithClock is test-only for deterministic timestamps.
func NewProgressAggregatorWithClock(store ProgressStore, retries int, now func() time.Time) *ProgressAggregator {
	a := NewProgressAggregator(store, retries, 0)
	a.now = now
	return a
}

// Merge applies result to the stored progress for its user and course.
func (a *ProgressAggregator) Merge(ctx context.Context, result domain.QuizResult) (domain.ProgressRecord, error) {
	for attempt := 0; attempt < a.retries; attempt++ {
		saved, err := a.mergeOnce(ctx, result)
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		return saved, err
	}
	return domain.ProgressRecord{}, domain.Unavailable("merge progress",
		fmt.Errorf("%w after %d attempts", domain.ErrVersionConflict, a.retries))
}

func (a *ProgressAggregator) mergeOnce(ctx context.Context, result domain.QuizResult) (domain.ProgressRecord, error) {
	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	existing, ok, err := a.store.GetProgress(ctx, result.UserID, result.CourseID)
	if err != nil {
		return domain.ProgressRecord{}, storeErr("read progress", err)
	}
	var base *domain.ProgressRecord
	if ok {
		base = &existing
	}

	merged := domain.MergeProgress(base, result, a.now())
	saved, err := a.store.SaveProgress(ctx, merged)
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return domain.ProgressRecord{}, err
		}
		return domain.ProgressRecord{}, storeErr("save progress", err)
	}
	return saved, nil
}

// Get returns the progress for one course.
func (a *ProgressAggregator) Get(ctx context.Context, userID, courseID string) (domain.ProgressRecord, bool, error) {
	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()
	record, ok, err := a.store.GetProgress(ctx, userID, courseID)
	return record, ok, storeErr("read progress", err)
}

// List returns all progress records of a user.
func (a *ProgressAggregator) List(ctx context.Context, userID string) ([]domain.ProgressRecord, error) {
	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()
	records, err := a.store.ListProgress(ctx, userID)
	return records, storeErr("list progress", err)
}
