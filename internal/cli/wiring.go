package cli

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/config"
	"studyhub-quiz-service/internal/domain"
	"studyhub-quiz-service/internal/infra/memory"
	pgstore "studyhub-quiz-service/internal/infra/postgres"
	redisstore "studyhub-quiz-service/internal/infra/redis"
)

// services is the wired application graph shared by the CLI commands.
type services struct {
	quizzes    *app.QuizService
	progress   *app.ProgressAggregator
	issuer     *app.CertificateIssuer
	flashcards *app.FlashcardService
	stats      *app.StatsService
	courses    *app.CourseService
	telemetry  *app.Telemetry
	closers    []func()
}

func (s *services) Close() {
	s.telemetry.Close()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// courseLoader loads quiz content and lists the courses it covers.
type courseLoader interface {
	memory.QuizLoader
	app.CourseCatalog
}

// buildServices picks Redis and Postgres when configured and falls back to
// in-memory implementations otherwise.
func buildServices(ctx context.Context, cfg config.Config) (*services, error) {
	svc := &services{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		svc.closers = append(svc.closers, func() { _ = redisClient.Close() })
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)

	var (
		pool  *pgxpool.Pool
		bunDB *bun.DB
		err   error
	)
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.closers = append(svc.closers, pool.Close)
		bunDB = openBunDB(cfg.Postgres.URL)
		svc.closers = append(svc.closers, func() { _ = bunDB.Close() })
	}

	var sink app.TelemetrySink = app.LogSink{}
	if redisClient != nil && cfg.Telemetry.Stream != "" {
		sink = redisstore.NewTelemetrySink(redisClient, cfg.Telemetry.Stream, 100000)
	}
	svc.telemetry = app.NewTelemetry(sink, cfg.Telemetry.Buffer, 0)

	var loader courseLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = redisstore.NewSessionStore(redisClient, redisTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	var store app.Store
	if bunDB != nil {
		store = pgstore.NewStore(bunDB)
	} else {
		log.Printf("postgres url not configured; progress and certificates are kept in memory")
		store = memory.NewStore()
	}

	storeTimeout := config.Duration(cfg.Quiz.StoreTimeout, app.DefaultStoreTimeout)
	svc.progress = app.NewProgressAggregator(store, cfg.Quiz.MergeRetries, storeTimeout)
	svc.quizzes = app.NewQuizService(sessions, quizRepo, store, svc.progress, svc.telemetry, app.ServiceOptions{
		SettleDelay:  config.Duration(cfg.Quiz.SettleDelay, app.DefaultSettleDelay),
		StoreTimeout: storeTimeout,
	})
	svc.issuer = app.NewCertificateIssuer(store, store, svc.telemetry, app.IssuerOptions{
		OnePerCourse: cfg.Certificates.OnePerCourse,
		Timeout:      storeTimeout,
	})
	svc.flashcards = app.NewFlashcardService(store, svc.telemetry, storeTimeout)
	svc.stats = app.NewStatsService(store, store, store, store, storeTimeout)
	svc.courses = app.NewCourseService(loader, storeTimeout)
	return svc, nil
}

// sampleQuizzes provides the built-in course content used without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"biology-101": {
			CourseID: "biology-101",
			Title:    "Cell biology",
			Questions: []domain.Question{
				{
					Prompt:  "What is the primary function of mitochondria in cells?",
					Options: []string{"Energy production (ATP synthesis)", "Protein synthesis", "DNA replication", "Waste removal"},
					Correct: 0,
				},
				{
					Prompt:  "Which process converts light energy into chemical energy?",
					Options: []string{"Cellular respiration", "Photosynthesis", "Fermentation", "Glycolysis"},
					Correct: 1,
				},
			},
		},
	}
}
