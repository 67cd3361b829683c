package domain

import "time"

// Question models an MCQ question with exactly one correct option.
type Question struct {
	Prompt  string   `json:"prompt" validate:"required"`
	Options []string `json:"options" validate:"min=2,dive,required"`
	Correct int      `json:"correct" validate:"min=0"`
}

// Quiz is the ordered question set attached to a course.
type Quiz struct {
	CourseID  string     `json:"courseId" validate:"required"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions" validate:"min=1,dive"`
}

// QuizResult is produced once, when a session reaches Finished.
type QuizResult struct {
	SessionID      string `json:"sessionId"`
	UserID         string `json:"userId"`
	CourseID       string `json:"courseId"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"totalQuestions"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
	Violations     int    `json:"violations"`
	IntegrityScore int    `json:"integrityScore"`
}

// Completion returns the score ratio as a percentage in [0, 100].
func (r QuizResult) Completion() float64 {
	if r.TotalQuestions <= 0 {
		return 0
	}
	return 100 * float64(r.Score) / float64(r.TotalQuestions)
}

// SessionRecord is a persisted quiz submission.
type SessionRecord struct {
	ID             string     `json:"id"`
	Result         QuizResult `json:"result"`
	CompletedAt    time.Time  `json:"completedAt"`
	ProgressMerged bool       `json:"progressMerged"`
}

// ProgressRecord is the durable per user and course progress.
// Version is bumped on every successful save and guards concurrent merges.
type ProgressRecord struct {
	UserID               string    `json:"userId"`
	CourseID             string    `json:"courseId"`
	CompletionPercentage float64   `json:"completionPercentage"`
	TotalStudyTime       int       `json:"totalStudyTime"`
	StudyStreak          int       `json:"studyStreak"`
	LastActivity         time.Time `json:"lastActivity"`
	Version              int64     `json:"version"`
}

// Certificate is an append-only credential for a completed course.
type Certificate struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	CourseID         string    `json:"courseId"`
	VerificationCode string    `json:"verificationCode"`
	IssuedAt         time.Time `json:"issuedAt"`
}

// Flashcard is a study card derived from user notes.
type Flashcard struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	CourseID   string    `json:"courseId,omitempty"`
	FrontText  string    `json:"frontText"`
	BackText   string    `json:"backText"`
	Difficulty int       `json:"difficulty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UserStats summarizes a user's activity across courses.
type UserStats struct {
	TotalStudyTime int     `json:"totalStudyTime"`
	StudyStreak    int     `json:"studyStreak"`
	TotalQuizzes   int     `json:"totalQuizzes"`
	AverageScore   float64 `json:"averageScore"`
	Certificates   int     `json:"certificates"`
}

// Course is a catalog entry derived from stored quiz content.
type Course struct {
	CourseID  string `json:"courseId"`
	Title     string `json:"title"`
	Questions int    `json:"questions"`
}

// SessionActivity totals the sessions recorded in a time window.
type SessionActivity struct {
	Attempts       int
	IntegrityTotal int
}

// Analytics is the platform-wide activity for one UTC day.
type Analytics struct {
	Day              string  `json:"day"`
	QuizAttempts     int     `json:"quizAttempts"`
	Certificates     int     `json:"certificates"`
	AverageIntegrity float64 `json:"averageIntegrity"`
}
