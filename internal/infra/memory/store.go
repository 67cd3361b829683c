package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"studyhub-quiz-service/internal/domain"
)

type progressKey struct {
	userID   string
	courseID string
}

// Store is an in-memory implementation of app.Store. Progress saves are
// version-checked under the store mutex.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]domain.SessionRecord
	claims       map[string]time.Time
	progress     map[progressKey]domain.ProgressRecord
	certificates []domain.Certificate
	flashcards   []domain.Flashcard
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]domain.SessionRecord),
		claims:   make(map[string]time.Time),
		progress: make(map[progressKey]domain.ProgressRecord),
	}
}

func (s *Store) InsertSession(ctx context.Context, record domain.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[record.ID]; ok {
		return domain.ErrSessionExists
	}
	s.sessions[record.ID] = record
	return nil
}

func (s *Store) ClaimSession(ctx context.Context, sessionID string, now time.Time, lease time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.sessions[sessionID]
	if !ok || record.ProgressMerged {
		return false, nil
	}
	if until, held := s.claims[sessionID]; held && now.Before(until) {
		return false, nil
	}
	s.claims[sessionID] = now.Add(lease)
	return true, nil
}

func (s *Store) ReleaseSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, sessionID)
	return nil
}

func (s *Store) MarkSessionMerged(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	record.ProgressMerged = true
	s.sessions[sessionID] = record
	delete(s.claims, sessionID)
	return nil
}

func (s *Store) ListSessions(ctx context.Context, userID string) ([]domain.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SessionRecord, 0)
	for _, record := range s.sessions {
		if record.Result.UserID == userID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	return out, nil
}

func (s *Store) GetProgress(ctx context.Context, userID, courseID string) (domain.ProgressRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProgressRecord{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.progress[progressKey{userID, courseID}]
	return record, ok, nil
}

func (s *Store) SaveProgress(ctx context.Context, record domain.ProgressRecord) (domain.ProgressRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProgressRecord{}, err
	}
	key := progressKey{record.UserID, record.CourseID}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.progress[key]
	switch {
	case !ok && record.Version != 0:
		return domain.ProgressRecord{}, domain.ErrVersionConflict
	case ok && current.Version != record.Version:
		return domain.ProgressRecord{}, domain.ErrVersionConflict
	}
	record.Version++
	s.progress[key] = record
	return record, nil
}

func (s *Store) ListProgress(ctx context.Context, userID string) ([]domain.ProgressRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ProgressRecord, 0)
	for key, record := range s.progress {
		if key.userID == userID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}

func (s *Store) InsertCertificate(ctx context.Context, cert domain.Certificate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certificates = append(s.certificates, cert)
	return nil
}

func (s *Store) FindCertificate(ctx context.Context, verificationCode string) (domain.Certificate, error) {
	if err := ctx.Err(); err != nil {
		return domain.Certificate{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cert := range s.certificates {
		if cert.VerificationCode == verificationCode {
			return cert, nil
		}
	}
	return domain.Certificate{}, domain.ErrCertificateNotFound
}

func (s *Store) ListCertificates(ctx context.Context, userID string) ([]domain.Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Certificate, 0)
	for _, cert := range s.certificates {
		if cert.UserID == userID {
			out = append(out, cert)
		}
	}
	return out, nil
}

func (s *Store) InsertFlashcards(ctx context.Context, cards []domain.Flashcard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flashcards = append(s.flashcards, cards...)
	return nil
}

func (s *Store) ListFlashcards(ctx context.Context, userID, courseID string) ([]domain.Flashcard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Flashcard, 0)
	// newest first; cards inserted later come first on equal timestamps
	for i := len(s.flashcards) - 1; i >= 0; i-- {
		card := s.flashcards[i]
		if card.UserID != userID || (courseID != "" && card.CourseID != courseID) {
			continue
		}
		out = append(out, card)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SessionActivity(ctx context.Context, from, to time.Time) (domain.SessionActivity, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionActivity{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out domain.SessionActivity
	for _, record := range s.sessions {
		if record.CompletedAt.Before(from) || !record.CompletedAt.Before(to) {
			continue
		}
		out.Attempts++
		out.IntegrityTotal += record.Result.IntegrityScore
	}
	return out, nil
}

func (s *Store) CountCertificates(ctx context.Context, from, to time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, cert := range s.certificates {
		if !cert.IssuedAt.Before(from) && cert.IssuedAt.Before(to) {
			n++
		}
	}
	return n, nil
}
