package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
)

// QuizService contains the core quiz session use cases.
type QuizService struct {
	registry *Registry
	events   *Broadcaster
	logger   *zap.Logger
	relay    Sink
	catalog  QuizCatalog
}

// QuizCatalog lists the quiz definitions available for new sessions.
type QuizCatalog interface {
	ListQuizIDs(ctx context.Context, owner string) ([]string, error)
}

// ServiceOption customises a QuizService.
type ServiceOption func(*QuizService)

// WithRelay subscribes sink to every session the service creates.
func WithRelay(sink Sink) ServiceOption {
	return func(s *QuizService) { s.relay = sink }
}

// WithCatalog enables ListQuizzes.
func WithCatalog(c QuizCatalog) ServiceOption {
	return func(s *QuizService) { s.catalog = c }
}

func NewQuizService(registry *Registry, events *Broadcaster, logger *zap.Logger, opts ...ServiceOption) *QuizService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &QuizService{registry: registry, events: events, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession loads quizID and returns the opaque id of a new CREATED session.
func (s *QuizService) CreateSession(ctx context.Context, quizID string) (string, error) {
	session, err := s.registry.Create(ctx, quizID)
	if err != nil {
		return "", err
	}
	if s.relay != nil {
		s.events.Subscribe(session.ID(), s.relay)
	}
	s.logger.Info("session created", zap.String("session_id", session.ID()), zap.String("quiz_id", quizID))
	return session.ID(), nil
}

// ListQuizzes returns quiz ids owned by owner (all when empty).
func (s *QuizService) ListQuizzes(ctx context.Context, owner string) ([]string, error) {
	if s.catalog == nil {
		return nil, nil
	}
	return s.catalog.ListQuizIDs(ctx, owner)
}

// StartSession moves the session to RUNNING.
func (s *QuizService) StartSession(_ context.Context, sessionID string) error {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if err := session.Start(); err != nil {
		return err
	}
	s.logger.Info("session started", zap.String("session_id", sessionID))
	return nil
}

// AddParticipant admits nickname. A taken nickname or a finished session is a
// soft rejection reported as false; only an unknown session is an error.
func (s *QuizService) AddParticipant(_ context.Context, sessionID, nickname string) (bool, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return false, err
	}
	return s.soften(session.Admit(nickname), sessionID, nickname, "admission rejected")
}

// SubmitAnswer scores answerID for nickname on the current question. Late,
// repeated or otherwise invalid submissions are reported as false.
func (s *QuizService) SubmitAnswer(_ context.Context, sessionID, nickname, answerID string) (bool, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return false, err
	}
	_, err = session.Submit(nickname, answerID)
	return s.soften(err, sessionID, nickname, "answer rejected")
}

func (s *QuizService) soften(err error, sessionID, nickname, msg string) (bool, error) {
	if err == nil {
		return true, nil
	}
	if domain.IsRejection(err) {
		s.logger.Debug(msg,
			zap.String("session_id", sessionID),
			zap.String("nickname", nickname),
			zap.Error(err),
		)
		return false, nil
	}
	return false, err
}

// Session returns a snapshot of the session.
func (s *QuizService) Session(_ context.Context, sessionID string) (domain.SessionView, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

// Subscribe returns a channel that receives the session's events from now on.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(ctx context.Context, sessionID string) (<-chan domain.QuizEvent, func(), error) {
	sink := NewChannelSink(64)
	unsubscribe, err := s.SubscribeSink(ctx, sessionID, sink)
	if err != nil {
		return nil, nil, err
	}
	cancel := func() {
		unsubscribe()
		sink.Close()
	}
	return sink.Events(), cancel, nil
}

// SubscribeSink registers an arbitrary push target for the session.
func (s *QuizService) SubscribeSink(_ context.Context, sessionID string, sink Sink) (func(), error) {
	if _, err := s.registry.Get(sessionID); err != nil {
		return nil, err
	}
	return s.events.Subscribe(sessionID, sink), nil
}

// RunReaper drops finished sessions older than ttl every interval until ctx is done.
func (s *QuizService) RunReaper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.registry.Reap(ttl); n > 0 {
				s.logger.Info("reaped finished sessions", zap.Int("count", n))
			}
		}
	}
}

// IsNotFound reports whether err means an unknown quiz or session.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
