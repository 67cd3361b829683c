package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studyhub-quiz-service/internal/domain"
)

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestCertificateEndpoints(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	resp := postJSON(t, server.URL+"/certificates", map[string]string{"userId": "u1", "courseId": "biology-101"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without progress, got %d", resp.StatusCode)
	}

	if _, err := server.store.SaveProgress(ctx, domain.ProgressRecord{UserID: "u1", CourseID: "biology-101", CompletionPercentage: 79.999}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	resp = postJSON(t, server.URL+"/certificates", map[string]string{"userId": "u1", "courseId": "biology-101"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 below threshold, got %d", resp.StatusCode)
	}
	if body := decode[ineligiblePayload](t, resp); body.Completion != 79.999 || body.Required != 80 {
		t.Fatalf("unexpected ineligible body %+v", body)
	}

	current, _, _ := server.store.GetProgress(ctx, "u1", "biology-101")
	current.CompletionPercentage = 80
	if _, err := server.store.SaveProgress(ctx, current); err != nil {
		t.Fatalf("update: %v", err)
	}
	resp = postJSON(t, server.URL+"/certificates", map[string]string{"userId": "u1", "courseId": "biology-101"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	cert := decode[domain.Certificate](t, resp)

	resp = get(t, server.URL+"/certificates/verify?code="+cert.VerificationCode)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 verifying, got %d", resp.StatusCode)
	}
	if got := decode[domain.Certificate](t, resp); got.ID != cert.ID {
		t.Fatalf("verified wrong certificate %+v", got)
	}
	if resp := get(t, server.URL+"/certificates/verify?code=CERT-NOPE"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if resp := get(t, server.URL+"/certificates?userId=u1"); len(decode[[]domain.Certificate](t, resp)) != 1 {
		t.Fatalf("expected one listed certificate")
	}
	if resp := postJSON(t, server.URL+"/certificates", map[string]string{"userId": "u1"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing course, got %d", resp.StatusCode)
	}
}

func TestProgressAndStatsEndpoints(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	if resp := get(t, server.URL+"/progress?userId=u1&courseId=biology-101"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before any progress, got %d", resp.StatusCode)
	}

	result := domain.QuizResult{SessionID: "s1", UserID: "u1", CourseID: "biology-101", Score: 1, TotalQuestions: 2, ElapsedSeconds: 40}
	if err := server.store.InsertSession(ctx, domain.SessionRecord{ID: "s1", Result: result}); err != nil {
		t.Fatalf("insert session: %v", err)
	}
	resp := postJSON(t, server.URL+"/progress/reconcile", map[string]string{"userId": "u1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 reconciling, got %d", resp.StatusCode)
	}
	if body := decode[map[string]int](t, resp); body["merged"] != 1 {
		t.Fatalf("expected one merged session, got %+v", body)
	}

	resp = get(t, server.URL+"/progress?userId=u1&courseId=biology-101")
	if got := decode[domain.ProgressRecord](t, resp); got.CompletionPercentage != 50 || got.TotalStudyTime != 40 {
		t.Fatalf("unexpected progress %+v", got)
	}
	if resp := get(t, server.URL+"/progress?userId=u1"); len(decode[[]domain.ProgressRecord](t, resp)) != 1 {
		t.Fatalf("expected one progress record")
	}

	stats := decode[domain.UserStats](t, get(t, server.URL+"/stats?userId=u1"))
	if stats.TotalQuizzes != 1 || stats.AverageScore != 50 || stats.TotalStudyTime != 40 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if resp := get(t, server.URL+"/stats"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without user, got %d", resp.StatusCode)
	}
}

func TestFlashcardEndpoints(t *testing.T) {
	server := newTestServer(t)
	notes := "Mitochondria produce energy for the cell through respiration."
	resp := postJSON(t, server.URL+"/flashcards", map[string]string{"userId": "u1", "courseId": "biology-101", "notes": notes})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if cards := decode[[]domain.Flashcard](t, resp); len(cards) != 1 {
		t.Fatalf("expected one card, got %+v", cards)
	}

	if resp := postJSON(t, server.URL+"/flashcards", map[string]string{"userId": "u1", "notes": "   "}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank notes, got %d", resp.StatusCode)
	}
	if cards := decode[[]domain.Flashcard](t, get(t, server.URL+"/flashcards?userId=u1")); len(cards) != 1 {
		t.Fatalf("expected one listed card, got %d", len(cards))
	}
}

func TestCourseAndAnalyticsEndpoints(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	courses := decode[[]domain.Course](t, get(t, server.URL+"/courses"))
	if len(courses) != 1 || courses[0].CourseID != "biology-101" || courses[0].Questions != 2 {
		t.Fatalf("unexpected catalog %+v", courses)
	}

	day := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	for i, integrity := range []int{100, 80} {
		rec := domain.SessionRecord{
			ID:          fmt.Sprintf("s%d", i),
			Result:      domain.QuizResult{UserID: "u1", CourseID: "biology-101", IntegrityScore: integrity},
			CompletedAt: day.Add(time.Duration(i) * time.Hour),
		}
		if err := server.store.InsertSession(ctx, rec); err != nil {
			t.Fatalf("insert session: %v", err)
		}
	}
	if err := server.store.InsertCertificate(ctx, domain.Certificate{ID: "c1", UserID: "u1", CourseID: "biology-101", VerificationCode: "CERT-A", IssuedAt: day}); err != nil {
		t.Fatalf("insert certificate: %v", err)
	}

	resp := get(t, server.URL+"/analytics?day=2024-11-22")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	want := domain.Analytics{Day: "2024-11-22", QuizAttempts: 2, Certificates: 1, AverageIntegrity: 90}
	if got := decode[domain.Analytics](t, resp); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if got := decode[domain.Analytics](t, get(t, server.URL+"/analytics?day=2024-11-23")); got.QuizAttempts != 0 || got.AverageIntegrity != 100 {
		t.Fatalf("expected a quiet next day, got %+v", got)
	}
	if resp := get(t, server.URL+"/analytics?day=22-11-2024"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed day, got %d", resp.StatusCode)
	}
}

func TestWriteErrorMapsDuplicateSession(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, fmt.Errorf("record quiz session: %w", domain.ErrSessionExists))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}
