package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"studyhub-quiz-service/internal/domain"
)

// QuizLoader fetches course quiz content from a backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, courseID string) (domain.Quiz, error)
}

// QuizRepository caches course quizzes with TTL to avoid repeated DB hits.
// Content that fails validation is never cached.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, courseID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(courseID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(courseID, func() (interface{}, error) {
		if quiz, ok := r.cached(courseID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, courseID)
		if err != nil {
			return domain.Quiz{}, err
		}
		if err := domain.ValidateQuiz(quiz); err != nil {
			return domain.Quiz{}, err
		}

		r.mu.Lock()
		r.cache[courseID] = cachedQuiz{
			quiz:      quiz,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops a cached quiz so the next read goes to the loader.
func (r *QuizRepository) Invalidate(courseID string) {
	r.mu.Lock()
	delete(r.cache, courseID)
	r.mu.Unlock()
}

func (r *QuizRepository) cached(courseID string) (domain.Quiz, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[courseID]; ok && entry.expiresAt.After(now) {
		return entry.quiz, true
	}
	return domain.Quiz{}, false
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuizLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, courseID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[courseID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

// ListCourses returns one entry per loaded quiz, ordered by course id.
func (l *StaticQuizLoader) ListCourses(_ context.Context) ([]domain.Course, error) {
	out := make([]domain.Course, 0, len(l.quizzes))
	for id, quiz := range l.quizzes {
		out = append(out, domain.Course{CourseID: id, Title: quiz.Title, Questions: len(quiz.Questions)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}
