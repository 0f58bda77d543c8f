package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"live-quiz-service/internal/domain"
)

// SessionRepository abstracts where live sessions are kept (in-memory, Redis-marked, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
	Range(fn func(session *Session) bool)
}

// QuizRepository loads quiz definitions (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Registry creates sessions from quiz definitions and looks them up by id.
type Registry struct {
	sessions SessionRepository
	quizzes  QuizRepository
	events   *Broadcaster
	newID    func() string
	now      func() time.Time
	schedule Scheduler
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithClock replaces time.Now, for deterministic tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithScheduler replaces the timer used for question expiry.
func WithScheduler(s Scheduler) RegistryOption {
	return func(r *Registry) { r.schedule = s }
}

// WithIDGenerator replaces the session id source.
func WithIDGenerator(fn func() string) RegistryOption {
	return func(r *Registry) { r.newID = fn }
}

func NewRegistry(sessions SessionRepository, quizzes QuizRepository, events *Broadcaster, opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions: sessions,
		quizzes:  quizzes,
		events:   events,
		newID:    uuid.NewString,
		now:      time.Now,
		schedule: timerScheduler,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create allocates a CREATED session for quizID.
func (r *Registry) Create(ctx context.Context, quizID string) (*Session, error) {
	quiz, err := r.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("create session for %q: %w", quizID, err)
	}
	if err := quiz.Validate(); err != nil {
		return nil, err
	}
	session := newSession(r.newID(), quiz, r.events, r.now, r.schedule)
	r.sessions.Put(session)
	return session, nil
}

// Get returns the live session with sessionID.
func (r *Registry) Get(sessionID string) (*Session, error) {
	session, ok := r.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Reap removes sessions that finished more than ttl ago and drops their
// subscribers. Unfinished sessions are left alone.
func (r *Registry) Reap(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)
	var expired []string
	r.sessions.Range(func(session *Session) bool {
		finished := session.FinishedAt()
		if !finished.IsZero() && !finished.After(cutoff) {
			expired = append(expired, session.ID())
		}
		return true
	})
	for _, id := range expired {
		r.sessions.Delete(id)
		r.events.Drop(id)
	}
	return len(expired)
}
