package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"studyhub-quiz-service/internal/domain"
)

// Store persists sessions, progress, certificates and flashcards with bun.
// Progress writes are guarded by the version column: an update only applies
// to the row version that was read, and a create only applies when no row exists.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InsertSession(ctx context.Context, record domain.SessionRecord) error {
	_, err := s.db.NewInsert().Model(newSessionRow(record)).Exec(ctx)
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation {
		return fmt.Errorf("insert quiz session %s: %w", record.ID, domain.ErrSessionExists)
	}
	return wrap("insert quiz session", err)
}

// ClaimSession sets claimed_until on an unmerged row whose previous claim is
// missing or expired.
func (s *Store) ClaimSession(ctx context.Context, sessionID string, now time.Time, lease time.Duration) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("claimed_until = ?", now.Add(lease)).
		Where("id = ?", sessionID).
		Where("progress_merged = FALSE").
		Where("(claimed_until IS NULL OR claimed_until <= ?)", now).
		Exec(ctx)
	if err != nil {
		return false, wrap("claim quiz session", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *Store) ReleaseSession(ctx context.Context, sessionID string) error {
	_, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("claimed_until = NULL").
		Where("id = ?", sessionID).
		Where("progress_merged = FALSE").
		Exec(ctx)
	return wrap("release quiz session", err)
}

func (s *Store) MarkSessionMerged(ctx context.Context, sessionID string) error {
	res, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("progress_merged = TRUE").
		Set("claimed_until = NULL").
		Where("id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return wrap("mark session merged", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context, userID string) ([]domain.SessionRecord, error) {
	var rows []sessionRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("completed_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, wrap("list quiz sessions", err)
	}
	out := make([]domain.SessionRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

func (s *Store) GetProgress(ctx context.Context, userID, courseID string) (domain.ProgressRecord, bool, error) {
	var row progressRow
	err := s.db.NewSelect().
		Model(&row).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProgressRecord{}, false, nil
	}
	if err != nil {
		return domain.ProgressRecord{}, false, wrap("get progress", err)
	}
	return row.record(), true, nil
}

func (s *Store) SaveProgress(ctx context.Context, record domain.ProgressRecord) (domain.ProgressRecord, error) {
	read := record.Version
	row := newProgressRow(record)
	row.Version = read + 1

	var (
		res sql.Result
		err error
	)
	if read == 0 {
		res, err = s.db.NewInsert().
			Model(row).
			On("CONFLICT (user_id, course_id) DO NOTHING").
			Exec(ctx)
	} else {
		res, err = s.db.NewUpdate().
			Model(row).
			Column("completion_percentage", "total_study_time", "study_streak", "last_activity", "version").
			WherePK().
			Where("version = ?", read).
			Exec(ctx)
	}
	if err != nil {
		return domain.ProgressRecord{}, wrap("save progress", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ProgressRecord{}, domain.ErrVersionConflict
	}
	return row.record(), nil
}

func (s *Store) ListProgress(ctx context.Context, userID string) ([]domain.ProgressRecord, error) {
	var rows []progressRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("course_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrap("list progress", err)
	}
	out := make([]domain.ProgressRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

func (s *Store) InsertCertificate(ctx context.Context, cert domain.Certificate) error {
	row := &certificateRow{
		ID:               cert.ID,
		UserID:           cert.UserID,
		CourseID:         cert.CourseID,
		VerificationCode: cert.VerificationCode,
		IssuedAt:         cert.IssuedAt,
	}
	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	return wrap("insert certificate", err)
}

func (s *Store) FindCertificate(ctx context.Context, verificationCode string) (domain.Certificate, error) {
	var row certificateRow
	err := s.db.NewSelect().
		Model(&row).
		Where("verification_code = ?", verificationCode).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	if err != nil {
		return domain.Certificate{}, wrap("find certificate", err)
	}
	return row.record(), nil
}

func (s *Store) ListCertificates(ctx context.Context, userID string) ([]domain.Certificate, error) {
	var rows []certificateRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("issued_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrap("list certificates", err)
	}
	out := make([]domain.Certificate, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

func (s *Store) InsertFlashcards(ctx context.Context, cards []domain.Flashcard) error {
	if len(cards) == 0 {
		return nil
	}
	rows := make([]flashcardRow, 0, len(cards))
	for _, c := range cards {
		rows = append(rows, flashcardRow{
			ID:         c.ID,
			UserID:     c.UserID,
			CourseID:   c.CourseID,
			FrontText:  c.FrontText,
			BackText:   c.BackText,
			Difficulty: c.Difficulty,
			CreatedAt:  c.CreatedAt,
		})
	}
	_, err := s.db.NewInsert().Model(&rows).Exec(ctx)
	return wrap("insert flashcards", err)
}

func (s *Store) ListFlashcards(ctx context.Context, userID, courseID string) ([]domain.Flashcard, error) {
	var rows []flashcardRow
	q := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if courseID != "" {
		q = q.Where("course_id = ?", courseID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, wrap("list flashcards", err)
	}
	out := make([]domain.Flashcard, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

func (s *Store) SessionActivity(ctx context.Context, from, to time.Time) (domain.SessionActivity, error) {
	var out domain.SessionActivity
	err := s.db.NewSelect().
		Model((*sessionRow)(nil)).
		ColumnExpr("COUNT(*)").
		ColumnExpr("COALESCE(SUM(integrity_score), 0)").
		Where("completed_at >= ?", from).
		Where("completed_at < ?", to).
		Scan(ctx, &out.Attempts, &out.IntegrityTotal)
	if err != nil {
		return domain.SessionActivity{}, wrap("session activity", err)
	}
	return out, nil
}

func (s *Store) CountCertificates(ctx context.Context, from, to time.Time) (int, error) {
	n, err := s.db.NewSelect().
		Model((*certificateRow)(nil)).
		Where("issued_at >= ?", from).
		Where("issued_at < ?", to).
		Count(ctx)
	if err != nil {
		return 0, wrap("count certificates", err)
	}
	return n, nil
}

const uniqueViolation = "23505"

// wrap keeps server-side rejections (constraint violations and the like) as
// plain errors and reports everything else as the store being unavailable.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.Unavailable(op, err)
}
