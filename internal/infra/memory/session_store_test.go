package memory

import (
	"context"
	"testing"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	repo := NewQuizRepository(NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}), 0)
	registry := app.NewRegistry(store, repo, app.NewBroadcaster(nil))

	session, err := registry.Create(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := store.Get(session.ID()); !ok {
		t.Fatalf("expected session present")
	}

	seen := 0
	store.Range(func(*app.Session) bool {
		seen++
		return true
	})
	if seen != 1 || store.Len() != 1 {
		t.Fatalf("expected one session, saw %d", seen)
	}

	store.Delete(session.ID())
	if _, ok := store.Get(session.ID()); ok {
		t.Fatalf("expected session removed")
	}
}
