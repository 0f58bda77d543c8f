package app

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
)

var (
	// ErrSinkFull is returned by a ChannelSink whose buffer is exhausted.
	ErrSinkFull = errors.New("subscriber buffer full")
	// ErrSinkClosed is returned by a ChannelSink after Close.
	ErrSinkClosed = errors.New("subscriber closed")
)

// Sink is a push target for the events of a session.
// Deliver is called while the session is locked and must not block.
type Sink interface {
	Deliver(event domain.QuizEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event domain.QuizEvent) error

func (f SinkFunc) Deliver(event domain.QuizEvent) error { return f(event) }

// Broadcaster fans out session events to every current subscriber of that session.
// There is no replay: a sink only sees events published after it subscribed.
type Broadcaster struct {
	logger *zap.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]Sink
}

func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		logger: logger,
		subs:   make(map[string]map[uint64]Sink),
	}
}

// Subscribe registers sink for sessionID. The returned cancel is idempotent.
func (b *Broadcaster) Subscribe(sessionID string, sink Sink) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[uint64]Sink)
	}
	b.subs[sessionID][id] = sink
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if m, ok := b.subs[sessionID]; ok {
				delete(m, id)
				if len(m) == 0 {
					delete(b.subs, sessionID)
				}
			}
		})
	}
}

// Publish delivers event to every subscriber of sessionID. A failing sink is
// logged and skipped; it never affects the other sinks or the caller.
func (b *Broadcaster) Publish(sessionID string, event domain.QuizEvent) {
	b.mu.RLock()
	sinks := make([]Sink, 0, len(b.subs[sessionID]))
	for _, sink := range b.subs[sessionID] {
		sinks = append(sinks, sink)
	}
	b.mu.RUnlock()

	for _, sink := range sinks {
		if err := b.deliver(sink, event); err != nil {
			b.logger.Warn("event delivery failed",
				zap.String("session_id", sessionID),
				zap.String("event", string(event.Type())),
				zap.Error(err),
			)
		}
	}
}

func (b *Broadcaster) deliver(sink Sink, event domain.QuizEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return sink.Deliver(event)
}

// Drop removes every subscriber of sessionID.
func (b *Broadcaster) Drop(sessionID string) {
	b.mu.Lock()
	delete(b.subs, sessionID)
	b.mu.Unlock()
}

// SubscriberCount returns the number of sinks registered for sessionID.
func (b *Broadcaster) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

// ChannelSink buffers events in a channel for a single consumer goroutine.
type ChannelSink struct {
	mu     sync.Mutex
	ch     chan domain.QuizEvent
	closed bool
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan domain.QuizEvent, buffer)}
}

// Events is closed once Close has been called.
func (c *ChannelSink) Events() <-chan domain.QuizEvent {
	return c.ch
}

func (c *ChannelSink) Deliver(event domain.QuizEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSinkClosed
	}
	select {
	case c.ch <- event:
		return nil
	default:
		return ErrSinkFull
	}
}

func (c *ChannelSink) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
