package app

import (
	"context"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"studyhub-quiz-service/internal/domain"
)

const (
	maxConcepts       = 3
	minSentenceLength = 10
	minSentenceWords  = 5
	termWords         = 3
	fallbackTerm      = "Key Concept"
	fallbackLength    = 100
)

var sentenceBreak = regexp.MustCompile(`[.!?]+`)

// FlashcardService turns study notes into flashcards with a simple sentence
// heuristic.
type FlashcardService struct {
	store      FlashcardStore
	telemetry  *Telemetry
	timeout    time.Duration
	now        func() time.Time
	difficulty func() int
}

func NewFlashcardService(store FlashcardStore, telemetry *Telemetry, timeout time.Duration) *FlashcardService {
	return &FlashcardService{
		store:      store,
		telemetry:  telemetry,
		timeout:    timeout,
		now:        time.Now,
		difficulty: func() int { return rand.Intn(3) + 1 },
	}
}

// Generate extracts concepts from notes and stores one card per concept.
func (s *FlashcardService) Generate(ctx context.Context, userID, courseID, notes string) ([]domain.Flashcard, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, domain.ErrEmptyNotes
	}

	now := s.now().UTC()
	concepts := extractConcepts(notes)
	cards := make([]domain.Flashcard, 0, len(concepts))
	for _, c := range concepts {
		cards = append(cards, domain.Flashcard{
			ID:         uuid.NewString(),
			UserID:     userID,
			CourseID:   courseID,
			FrontText:  "What is " + c.term + "?",
			BackText:   c.definition,
			Difficulty: s.difficulty(),
			CreatedAt:  now,
		})
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.InsertFlashcards(ctx, cards); err != nil {
		return nil, storeErr("insert flashcards", err)
	}
	s.telemetry.Track("flashcards_generated", map[string]any{"count": len(cards), "userId": userID})
	return cards, nil
}

// List returns a user's flashcards, newest first. An empty courseID lists all courses.
func (s *FlashcardService) List(ctx context.Context, userID, courseID string) ([]domain.Flashcard, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	cards, err := s.store.ListFlashcards(ctx, userID, courseID)
	return cards, storeErr("list flashcards", err)
}

type concept struct {
	term       string
	definition string
}

func extractConcepts(notes string) []concept {
	var sentences []string
	for _, raw := range sentenceBreak.Split(notes, -1) {
		if s := strings.TrimSpace(raw); len(s) > minSentenceLength {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) > maxConcepts {
		sentences = sentences[:maxConcepts]
	}

	concepts := make([]concept, 0, len(sentences))
	for _, sentence := range sentences {
		words := strings.Fields(sentence)
		if len(words) <= minSentenceWords {
			continue
		}
		concepts = append(concepts, concept{
			term:       strings.Join(words[:termWords], " "),
			definition: sentence,
		})
	}
	if len(concepts) > 0 {
		return concepts
	}

	definition := notes
	if runes := []rune(notes); len(runes) > fallbackLength {
		definition = string(runes[:fallbackLength])
	}
	return []concept{{term: fallbackTerm, definition: definition + "..."}}
}
