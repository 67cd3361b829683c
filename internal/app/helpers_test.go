package app_test

import (
	"context"
	"sync"
	"time"

	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/domain"
)

// manualScheduler captures settle timers so tests fire them explicitly.
type manualScheduler struct {
	mu      sync.Mutex
	pending []*manualTimer
}

type manualTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (m *manualScheduler) schedule(d time.Duration, fn func()) app.Timer {
	timer := &manualTimer{delay: d, fn: fn}
	m.mu.Lock()
	m.pending = append(m.pending, timer)
	m.mu.Unlock()
	return timer
}

// fire runs every pending timer that has not been stopped and returns how many ran.
func (m *manualScheduler) fire() int {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	ran := 0
	for _, timer := range pending {
		if timer.Stop() {
			timer.fn()
			ran++
		}
	}
	return ran
}

func (m *manualScheduler) lastDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return 0
	}
	return m.pending[len(m.pending)-1].delay
}

// fakeClock advances only when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.TelemetryEvent
}

func (r *recordingSink) Send(_ context.Context, event domain.TelemetryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) named(name string) []domain.TelemetryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TelemetryEvent
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func twoQuestionQuiz() domain.Quiz {
	return domain.Quiz{
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
	}
}

func drain(ch <-chan domain.SessionEvent) []domain.SessionEvent {
	var out []domain.SessionEvent
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func clockNow() time.Time {
	return newFakeClock().Now()
}
