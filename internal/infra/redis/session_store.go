package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"live-quiz-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions themselves stay in a local map: their state and locks are
//     process-local, and a crash loses in-flight sessions.
//   - Redis holds a liveness marker per session (quiz id, state, creation
//     time) so operators and other instances can see which sessions exist
//     and where. Markers expire after ttl unless KeepAlive refreshes them,
//     so a crashed instance's sessions disappear on their own.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	instance string
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration, instance string) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		instance: instance,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	// best-effort liveness marker
	ctx := context.Background()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(session.ID()),
		"quiz_id", session.QuizID(),
		"instance", s.instance,
		"state", string(session.State()),
		"created_at", time.Now().UTC().Format(time.RFC3339),
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(session.ID()), s.ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
}

func (s *SessionStore) Range(fn func(*app.Session) bool) {
	s.mu.RLock()
	snapshot := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		snapshot = append(snapshot, session)
	}
	s.mu.RUnlock()

	for _, session := range snapshot {
		if !fn(session) {
			return
		}
	}
}

// KeepAlive refreshes every local marker each interval until ctx is done.
// interval should be well below the marker ttl.
func (s *SessionStore) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Refresh(ctx)
		}
	}
}

// Refresh rewrites the state field and resets the expiry of every local
// session marker in one pipeline.
func (s *SessionStore) Refresh(ctx context.Context) error {
	pipe := s.client.Pipeline()
	queued := 0
	s.Range(func(session *app.Session) bool {
		key := s.key(session.ID())
		pipe.HSet(ctx, key, "state", string(session.State()))
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		queued++
		return true
	})
	if queued == 0 {
		return nil
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}
