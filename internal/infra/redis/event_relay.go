package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
)

// ErrRelayBacklog is returned when the relay queue is full.
var ErrRelayBacklog = errors.New("event relay backlog full")

const publishTimeout = 5 * time.Second

// EventRelay republishes session events to Redis channels for consumers
// outside this process. Deliver only enqueues; a single worker publishes in
// FIFO order, so per-session ordering is preserved without holding the
// session lock across network calls.
type EventRelay struct {
	client *redis.Client
	logger *zap.Logger
	queue  chan domain.QuizEvent
	done   chan struct{}
}

func NewEventRelay(client *redis.Client, logger *zap.Logger, backlog int) *EventRelay {
	if backlog <= 0 {
		backlog = 1024
	}
	return &EventRelay{
		client: client,
		logger: logger,
		queue:  make(chan domain.QuizEvent, backlog),
		done:   make(chan struct{}),
	}
}

// Channel is the Redis channel events of sessionID are published on.
func Channel(sessionID string) string {
	return "quiz:session:" + sessionID + ":events"
}

func (r *EventRelay) Deliver(event domain.QuizEvent) error {
	select {
	case r.queue <- event:
		return nil
	default:
		return ErrRelayBacklog
	}
}

// Run publishes queued events until ctx is done, then drains what is left.
func (r *EventRelay) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case ev := <-r.queue:
			r.publish(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-r.queue:
					r.publish(ev)
				default:
					return
				}
			}
		}
	}
}

// Done is closed when Run returns.
func (r *EventRelay) Done() <-chan struct{} {
	return r.done
}

func (r *EventRelay) publish(ev domain.QuizEvent) {
	body, err := domain.MarshalEvent(ev)
	if err != nil {
		r.logger.Error("encode relayed event", zap.String("session_id", ev.Session()), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, Channel(ev.Session()), body).Err(); err != nil {
		r.logger.Warn("relay publish failed",
			zap.String("session_id", ev.Session()),
			zap.String("event", string(ev.Type())),
			zap.Error(err),
		)
	}
}
