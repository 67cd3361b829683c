package redis

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"studyhub-quiz-service/internal/app"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewSessionStore(newClient(mr), time.Minute)
	session, err := app.NewSession("s1", "u1", sampleQuiz(), app.SessionOptions{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	store.Put(session)
	if !mr.Exists("quiz:session:s1") {
		t.Fatalf("expected redis key to be set")
	}
	if got := mr.HGet("quiz:session:s1", "courseId"); got != "biology-101" {
		t.Fatalf("expected course on marker, got %q", got)
	}
	if mr.TTL("quiz:session:s1") != time.Minute {
		t.Fatalf("expected marker ttl")
	}
	if got, ok := store.Get("s1"); !ok || got != session {
		t.Fatalf("expected session from local map")
	}

	store.Delete("s1")
	if mr.Exists("quiz:session:s1") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, ok := store.Get("s1"); ok {
		t.Fatalf("expected session removed")
	}
}
