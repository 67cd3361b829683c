package app

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"studyhub-quiz-service/internal/domain"
)

// StatsService aggregates a user's activity for the dashboard and the
// platform-wide daily analytics.
type StatsService struct {
	results   ResultStore
	progress  ProgressStore
	certs     CertificateStore
	analytics AnalyticsStore
	timeout   time.Duration
}

func NewStatsService(results ResultStore, progress ProgressStore, certs CertificateStore, analytics AnalyticsStore, timeout time.Duration) *StatsService {
	return &StatsService{results: results, progress: progress, certs: certs, analytics: analytics, timeout: timeout}
}

// UserStats reads sessions, progress and certificates concurrently.
func (s *StatsService) UserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var (
		sessions []domain.SessionRecord
		progress []domain.ProgressRecord
		certs    []domain.Certificate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sessions, err = s.results.ListSessions(gctx, userID)
		return storeErr("list quiz sessions", err)
	})
	g.Go(func() (err error) {
		progress, err = s.progress.ListProgress(gctx, userID)
		return storeErr("list progress", err)
	})
	g.Go(func() (err error) {
		certs, err = s.certs.ListCertificates(gctx, userID)
		return storeErr("list certificates", err)
	})
	if err := g.Wait(); err != nil {
		return domain.UserStats{}, err
	}

	stats := domain.UserStats{TotalQuizzes: len(sessions), Certificates: len(certs)}
	for _, p := range progress {
		stats.TotalStudyTime += p.TotalStudyTime
		if p.StudyStreak > stats.StudyStreak {
			stats.StudyStreak = p.StudyStreak
		}
	}
	if len(sessions) > 0 {
		var sum float64
		for _, rec := range sessions {
			sum += rec.Result.Completion()
		}
		stats.AverageScore = math.Round(sum/float64(len(sessions))*10) / 10
	}
	return stats, nil
}

// DailyAnalytics counts the quiz attempts and certificates recorded on the UTC
// day containing now. AverageIntegrity is 100 when no session was recorded.
func (s *StatsService) DailyAnalytics(ctx context.Context, now time.Time) (domain.Analytics, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	next := day.AddDate(0, 0, 1)

	var (
		activity domain.SessionActivity
		certs    int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		activity, err = s.analytics.SessionActivity(gctx, day, next)
		return storeErr("session activity", err)
	})
	g.Go(func() (err error) {
		certs, err = s.analytics.CountCertificates(gctx, day, next)
		return storeErr("count certificates", err)
	})
	if err := g.Wait(); err != nil {
		return domain.Analytics{}, err
	}

	out := domain.Analytics{
		Day:              day.Format(time.DateOnly),
		QuizAttempts:     activity.Attempts,
		Certificates:     certs,
		AverageIntegrity: 100,
	}
	if activity.Attempts > 0 {
		avg := float64(activity.IntegrityTotal) / float64(activity.Attempts)
		out.AverageIntegrity = math.Round(avg*10) / 10
	}
	return out, nil
}
