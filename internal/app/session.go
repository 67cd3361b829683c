package app

import (
	"fmt"
	"log"
	"sync"
	"time"

	"studyhub-quiz-service/internal/domain"
)

// State is a quiz session lifecycle state.
type State string

const (
	StateIdle              State = "idle"
	StateQuestionPresented State = "question_presented"
	StateAnswerLocked      State = "answer_locked"
	StateFinished          State = "finished"
	StateAbandoned         State = "abandoned"
)

// DefaultSettleDelay is the pause between locking an answer and presenting the next question.
const DefaultSettleDelay = 1500 * time.Millisecond

// Timer is a pending scheduled transition.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d.
type Scheduler func(d time.Duration, fn func()) Timer

// AfterFunc schedules on the runtime timer.
func AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SessionOptions configure a Session. Zero values fall back to defaults.
type SessionOptions struct {
	SettleDelay time.Duration
	Now         func() time.Time
	Schedule    Scheduler
	Telemetry   *Telemetry
	// OnFinish receives the result exactly once. Without it the session publishes
	// the finished event itself.
	OnFinish func(s *Session, result domain.QuizResult)
}

// Session is one timed quiz attempt. All counters are owned by the session; the
// violation monitor only touches its own atomic counter.
type Session struct {
	id        string
	userID    string
	courseID  string
	questions []domain.Question
	settle    time.Duration
	now       func() time.Time
	schedule  Scheduler
	onFinish  func(s *Session, result domain.QuizResult)
	signals   *SignalBus
	monitor   *Monitor

	mu        sync.Mutex
	state     State
	index     int
	score     int
	startedAt time.Time
	pending   Timer
	result    *domain.QuizResult

	subMu       sync.Mutex
	subscribers map[chan domain.SessionEvent]struct{}
}

// NewSession builds an idle session over a validated copy of quiz.
func NewSession(id, userID string, quiz domain.Quiz, opts SessionOptions) (*Session, error) {
	if err := domain.ValidateQuiz(quiz); err != nil {
		return nil, err
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Schedule == nil {
		opts.Schedule = AfterFunc
	}

	questions := make([]domain.Question, len(quiz.Questions))
	for i, q := range quiz.Questions {
		q.Options = append([]string(nil), q.Options...)
		questions[i] = q
	}

	s := &Session{
		id:          id,
		userID:      userID,
		courseID:    quiz.CourseID,
		questions:   questions,
		settle:      opts.SettleDelay,
		now:         opts.Now,
		schedule:    opts.Schedule,
		onFinish:    opts.OnFinish,
		signals:     NewSignalBus(),
		state:       StateIdle,
		subscribers: make(map[chan domain.SessionEvent]struct{}),
	}
	s.monitor = NewMonitor(opts.Telemetry, MonitorTags{SessionID: id, UserID: userID, CourseID: quiz.CourseID}, s.violated)
	return s, nil
}

func (s *Session) ID() string       { return s.id }
func (s *Session) UserID() string   { return s.userID }
func (s *Session) CourseID() string { return s.courseID }

// Signals is the source the violation monitor listens on.
func (s *Session) Signals() *SignalBus { return s.signals }

// Violations returns the current violation count.
func (s *Session) Violations() int { return s.monitor.Count() }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the result once the session has finished.
func (s *Session) Result() (domain.QuizResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return domain.QuizResult{}, false
	}
	return *s.result, true
}

// Start presents the first question, starts the clock and arms the monitor.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return stateErr("start", state)
	}
	s.startedAt = s.now()
	s.state = StateQuestionPresented
	view := s.questionViewLocked()
	// armed under s.mu so a concurrent Abandon always finds the handler attached
	s.monitor.Arm(s.signals)
	s.mu.Unlock()

	s.publish(domain.SessionEvent{Type: domain.EventQuestion, Question: &view, Violations: s.monitor.Count()})
	return nil
}

// Answer locks the current question with the selected option and schedules the
// settle transition. Only one answer per question is accepted.
func (s *Session) Answer(option int) (domain.AnswerView, error) {
	s.mu.Lock()
	if s.state != StateQuestionPresented {
		state := s.state
		s.mu.Unlock()
		return domain.AnswerView{}, stateErr("answer", state)
	}
	q := s.questions[s.index]
	if option < 0 || option >= len(q.Options) {
		s.mu.Unlock()
		return domain.AnswerView{}, domain.ErrInvalidOption
	}

	correct := option == q.Correct
	if correct {
		s.score++
	}
	s.state = StateAnswerLocked
	view := domain.AnswerView{
		Index:         s.index,
		Selected:      option,
		Correct:       correct,
		CorrectOption: q.Correct,
		Score:         s.score,
	}
	s.pending = s.schedule(s.settle, s.settled)
	s.mu.Unlock()

	s.publish(domain.SessionEvent{Type: domain.EventAnswerResult, Answer: &view, Violations: s.monitor.Count()})
	return view, nil
}

// Advance moves past a locked answer: either to the next question or to Finished.
// It is normally fired by the settle timer.
func (s *Session) Advance() error {
	s.mu.Lock()
	if s.state != StateAnswerLocked {
		state := s.state
		s.mu.Unlock()
		return stateErr("advance", state)
	}
	s.pending = nil
	s.index++

	if s.index < len(s.questions) {
		s.state = StateQuestionPresented
		view := s.questionViewLocked()
		s.mu.Unlock()
		s.publish(domain.SessionEvent{Type: domain.EventQuestion, Question: &view, Violations: s.monitor.Count()})
		return nil
	}

	s.state = StateFinished
	violations := s.monitor.Count()
	result := domain.QuizResult{
		SessionID:      s.id,
		UserID:         s.userID,
		CourseID:       s.courseID,
		Score:          s.score,
		TotalQuestions: len(s.questions),
		ElapsedSeconds: int(s.now().Sub(s.startedAt) / time.Second),
		Violations:     violations,
		IntegrityScore: domain.IntegrityScore(violations),
	}
	s.result = &result
	s.mu.Unlock()

	s.monitor.Disarm()
	if s.onFinish != nil {
		s.onFinish(s, result)
	} else {
		s.Publish(domain.SessionEvent{Type: domain.EventFinished, Result: &result, Violations: violations})
	}
	return nil
}

// Abandon tears the session down before it finishes. No result is produced.
// It reports whether the session was still running.
func (s *Session) Abandon() bool {
	s.mu.Lock()
	if s.state == StateFinished || s.state == StateAbandoned {
		s.mu.Unlock()
		return false
	}
	s.state = StateAbandoned
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.mu.Unlock()

	s.monitor.Disarm()
	s.publish(domain.SessionEvent{Type: domain.EventAbandoned, Violations: s.monitor.Count()})
	return true
}

// Violation emits a tamper signal into the session's signal source.
func (s *Session) Violation(kind domain.SignalKind) {
	s.signals.Emit(domain.Signal{Kind: kind, ObservedAt: s.now()})
}

func (s *Session) settled() {
	if err := s.Advance(); err != nil {
		if s.State() == StateAbandoned {
			return
		}
		log.Printf("session %s: settle transition: %v", s.id, err)
	}
}

func (s *Session) violated(count int) {
	s.publish(domain.SessionEvent{Type: domain.EventViolation, Violations: count})
}

func (s *Session) questionViewLocked() domain.QuestionView {
	q := s.questions[s.index]
	return domain.QuestionView{
		Index:   s.index,
		Total:   len(s.questions),
		Prompt:  q.Prompt,
		Options: append([]string(nil), q.Options...),
	}
}

// Subscribe returns a channel of session events. The first value is the current
// question when one is presented. The caller must invoke cancel to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.SessionEvent, func()) {
	ch := make(chan domain.SessionEvent, 16)

	s.mu.Lock()
	var initial *domain.SessionEvent
	if s.state == StateQuestionPresented {
		view := s.questionViewLocked()
		initial = &domain.SessionEvent{Type: domain.EventQuestion, SessionID: s.id, Question: &view, Violations: s.monitor.Count()}
	}
	s.mu.Unlock()

	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	if initial != nil {
		ch <- *initial
	}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

// Publish broadcasts an event to subscribers. Slow subscribers lose their oldest
// pending event rather than blocking the session.
func (s *Session) Publish(event domain.SessionEvent) {
	s.publish(event)
}

func (s *Session) publish(event domain.SessionEvent) {
	event.SessionID = s.id
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}

func stateErr(op string, state State) error {
	return fmt.Errorf("cannot %s in state %s: %w", op, state, domain.ErrInvalidSessionState)
}
