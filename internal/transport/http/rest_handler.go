package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/domain"
)

var validate = validator.New()

// RESTServices are the use cases served by RESTHandler.
type RESTServices struct {
	Quizzes    *app.QuizService
	Progress   *app.ProgressAggregator
	Issuer     *app.CertificateIssuer
	Flashcards *app.FlashcardService
	Stats      *app.StatsService
	Courses    *app.CourseService
}

// RESTHandler exposes courses, progress, certificates, flashcards, stats and
// analytics over JSON.
type RESTHandler struct {
	quizzes    *app.QuizService
	progress   *app.ProgressAggregator
	issuer     *app.CertificateIssuer
	flashcards *app.FlashcardService
	stats      *app.StatsService
	courses    *app.CourseService
	now        func() time.Time
}

func NewRESTHandler(svc RESTServices) *RESTHandler {
	return &RESTHandler{
		quizzes:    svc.Quizzes,
		progress:   svc.Progress,
		issuer:     svc.Issuer,
		flashcards: svc.Flashcards,
		stats:      svc.Stats,
		courses:    svc.Courses,
		now:        time.Now,
	}
}

// Register mounts the routes on mux.
func (h *RESTHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /certificates", h.issueCertificate)
	mux.HandleFunc("GET /certificates", h.listCertificates)
	mux.HandleFunc("GET /certificates/verify", h.verifyCertificate)
	mux.HandleFunc("GET /progress", h.getProgress)
	mux.HandleFunc("POST /progress/reconcile", h.reconcile)
	mux.HandleFunc("POST /flashcards", h.generateFlashcards)
	mux.HandleFunc("GET /flashcards", h.listFlashcards)
	mux.HandleFunc("GET /stats", h.userStats)
	mux.HandleFunc("GET /analytics", h.dailyAnalytics)
	mux.HandleFunc("GET /courses", h.listCourses)
}

type certificateRequest struct {
	UserID   string `json:"userId" validate:"required"`
	CourseID string `json:"courseId" validate:"required"`
}

type flashcardRequest struct {
	UserID   string `json:"userId" validate:"required"`
	CourseID string `json:"courseId"`
	Notes    string `json:"notes" validate:"required"`
}

type reconcileRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type ineligiblePayload struct {
	Error      string  `json:"error"`
	Completion float64 `json:"completion"`
	Required   float64 `json:"required"`
}

func (h *RESTHandler) issueCertificate(w http.ResponseWriter, r *http.Request) {
	var req certificateRequest
	if !readJSON(w, r, &req) {
		return
	}
	cert, err := h.issuer.Issue(r.Context(), req.UserID, req.CourseID)
	var ineligible *domain.IneligibleError
	if errors.As(err, &ineligible) {
		writeJSON(w, http.StatusUnprocessableEntity, ineligiblePayload{
			Error:      err.Error(),
			Completion: ineligible.Completion,
			Required:   domain.CertificateThreshold,
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cert)
}

func (h *RESTHandler) listCertificates(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireQuery(w, r, "userId")
	if !ok {
		return
	}
	certs, err := h.issuer.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, certs)
}

func (h *RESTHandler) verifyCertificate(w http.ResponseWriter, r *http.Request) {
	code, ok := requireQuery(w, r, "code")
	if !ok {
		return
	}
	cert, err := h.issuer.Verify(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

func (h *RESTHandler) getProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireQuery(w, r, "userId")
	if !ok {
		return
	}
	courseID := r.URL.Query().Get("courseId")
	if courseID == "" {
		records, err := h.progress.List(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
		return
	}

	record, found, err := h.progress.Get(r.Context(), userID, courseID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		http.Error(w, "progress not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *RESTHandler) reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if !readJSON(w, r, &req) {
		return
	}
	merged, err := h.quizzes.Reconcile(r.Context(), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"merged": merged})
}

func (h *RESTHandler) generateFlashcards(w http.ResponseWriter, r *http.Request) {
	var req flashcardRequest
	if !readJSON(w, r, &req) {
		return
	}
	cards, err := h.flashcards.Generate(r.Context(), req.UserID, req.CourseID, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cards)
}

func (h *RESTHandler) listFlashcards(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireQuery(w, r, "userId")
	if !ok {
		return
	}
	cards, err := h.flashcards.List(r.Context(), userID, r.URL.Query().Get("courseId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (h *RESTHandler) userStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireQuery(w, r, "userId")
	if !ok {
		return
	}
	stats, err := h.stats.UserStats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *RESTHandler) dailyAnalytics(w http.ResponseWriter, r *http.Request) {
	day := h.now()
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			http.Error(w, "invalid day, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		day = parsed
	}
	analytics, err := h.stats.DailyAnalytics(r.Context(), day)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (h *RESTHandler) listCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	if err := decodePayload(raw, dst); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func requireQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := r.URL.Query().Get(name)
	if value == "" {
		http.Error(w, "missing "+name, http.StatusBadRequest)
		return "", false
	}
	return value, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrIneligible):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrCertificateNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrEmptyNotes),
		errors.Is(err, domain.ErrInvalidOption),
		errors.Is(err, domain.ErrInvalidQuiz):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrProgressNotMerged):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrSessionExists):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	http.Error(w, err.Error(), status)
}
