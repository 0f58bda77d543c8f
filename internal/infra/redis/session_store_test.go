package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewSessionStore(newClient(mr), time.Minute, "node-a")
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}), time.Minute)
	registry := app.NewRegistry(store, quizzes, app.NewBroadcaster(nil), app.WithIDGenerator(func() string { return "s1" }))

	if _, err := registry.Create(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("quiz:session:s1") {
		t.Fatalf("expected redis key to be set")
	}
	if got := mr.HGet("quiz:session:s1", "quiz_id"); got != "quiz-1" {
		t.Fatalf("expected quiz_id marker, got %q", got)
	}
	if got := mr.HGet("quiz:session:s1", "instance"); got != "node-a" {
		t.Fatalf("expected instance marker, got %q", got)
	}
	if _, ok := store.Get("s1"); !ok {
		t.Fatalf("expected session in local map")
	}

	store.Delete("s1")
	if mr.Exists("quiz:session:s1") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, ok := store.Get("s1"); ok {
		t.Fatalf("expected session removed locally")
	}
}

func TestSessionStoreRefreshKeepsLiveMarkers(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewSessionStore(newClient(mr), time.Minute, "node-a")
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}), time.Minute)
	registry := app.NewRegistry(store, quizzes, app.NewBroadcaster(nil), app.WithIDGenerator(func() string { return "s1" }))

	session, err := registry.Create(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := mr.HGet("quiz:session:s1", "state"); got != string(domain.SessionCreated) {
		t.Fatalf("expected CREATED marker, got %q", got)
	}
	_ = session.Admit("P1")
	_ = session.Start()

	mr.FastForward(45 * time.Second)
	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if ttl := mr.TTL("quiz:session:s1"); ttl != time.Minute {
		t.Fatalf("expected marker ttl reset to 1m, got %s", ttl)
	}
	if got := mr.HGet("quiz:session:s1", "state"); got != string(domain.SessionRunning) {
		t.Fatalf("expected RUNNING marker, got %q", got)
	}

	mr.FastForward(45 * time.Second)
	if !mr.Exists("quiz:session:s1") {
		t.Fatalf("refreshed marker must outlive the original ttl")
	}
}
