package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a quiz session is not running.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionExists is returned when a session record with the same id was already stored.
	ErrSessionExists = errors.New("quiz session already recorded")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz indicates quiz content that cannot be played.
	ErrInvalidQuiz = errors.New("invalid quiz content")
	// ErrInvalidOption indicates a submitted option index is out of range.
	ErrInvalidOption = errors.New("option not found")
	// ErrInvalidSessionState is returned for out-of-sequence transitions, such as
	// answering a locked question or advancing past the last one.
	ErrInvalidSessionState = errors.New("invalid quiz session state")
	// ErrStoreUnavailable wraps transient persistence failures; callers may retry with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrVersionConflict is returned by progress stores when the expected version is stale.
	ErrVersionConflict = errors.New("progress version conflict")
	// ErrProgressNotMerged means the session was recorded but the progress merge failed.
	ErrProgressNotMerged = errors.New("session recorded but progress not merged")
	// ErrIneligible is matched by IneligibleError.
	ErrIneligible = errors.New("course completion requirement not met")
	// ErrCertificateNotFound is returned when a verification code is unknown.
	ErrCertificateNotFound = errors.New("certificate not found")
	// ErrUnknownSignal indicates a tamper signal kind the monitor does not know.
	ErrUnknownSignal = errors.New("unknown violation signal")
	// ErrEmptyNotes is returned when flashcard generation receives no text.
	ErrEmptyNotes = errors.New("notes are empty")
)

// IneligibleError reports a certificate request below the completion threshold.
type IneligibleError struct {
	UserID     string
	CourseID   string
	Completion float64
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("%s: completion %.2f%% is below %.0f%% for course %s",
		ErrIneligible.Error(), e.Completion, CertificateThreshold, e.CourseID)
}

func (e *IneligibleError) Is(target error) bool {
	return target == ErrIneligible
}

// Unavailable wraps err as a transient store failure.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
