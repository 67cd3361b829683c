package domain

import "time"

// SessionEventType names the events a running quiz session publishes.
type SessionEventType string

const (
	EventQuestion     SessionEventType = "question"
	EventAnswerResult SessionEventType = "answerResult"
	EventViolation    SessionEventType = "violation"
	EventFinished     SessionEventType = "finished"
	EventAbandoned    SessionEventType = "abandoned"
)

// QuestionView is a question as shown to the participant (no correct index).
type QuestionView struct {
	Index   int      `json:"index"`
	Total   int      `json:"total"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// AnswerView is the locked outcome of one answer.
type AnswerView struct {
	Index         int  `json:"index"`
	Selected      int  `json:"selected"`
	Correct       bool `json:"correct"`
	CorrectOption int  `json:"correctOption"`
	Score         int  `json:"score"`
}

// SessionEvent is pushed to session subscribers.
type SessionEvent struct {
	Type       SessionEventType `json:"type"`
	SessionID  string           `json:"sessionId"`
	Question   *QuestionView    `json:"question,omitempty"`
	Answer     *AnswerView      `json:"answer,omitempty"`
	Violations int              `json:"violations"`
	Result     *QuizResult      `json:"result,omitempty"`
	Progress   *ProgressRecord  `json:"progress,omitempty"`
	Warning    string           `json:"warning,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// TelemetryEvent is a fire-and-forget analytics event.
type TelemetryEvent struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
	At         time.Time      `json:"at"`
}
