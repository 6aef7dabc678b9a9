// Package event carries match lifecycle notifications from the reconcile
// engine to in-process consumers such as the activity journal.
package event

import (
	"log/slog"
	"sync"
	"time"
)

// Type identifies a category of event.
type Type string

// Match lifecycle events.
const (
	MatchApplied  Type = "match.applied"
	MatchSkipped  Type = "match.skipped"
	ParentCreated Type = "parent.created"
	BatchMatched  Type = "batch.matched"
	AutoApplied   Type = "batch.auto_applied"
	SkipsCleared  Type = "skips.cleared"
)

// AllTypes returns every event type in a stable order.
func AllTypes() []Type {
	return []Type{MatchApplied, MatchSkipped, ParentCreated, BatchMatched, AutoApplied, SkipsCleared}
}

// Event is something that happened to an entity or a batch.
type Event struct {
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// String returns the value stored under key, or "" when it is absent or not
// a string.
func (e Event) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// Handler is a function that processes an event.
type Handler func(Event)

// Bus dispatches events on a single goroutine in publish order.
type Bus struct {
	ch     chan Event
	mu     sync.RWMutex
	subs   map[Type][]Handler
	logger *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	drained   chan struct{}
	started   bool
}

// NewBus creates a bus buffering up to bufSize undelivered events.
func NewBus(logger *slog.Logger, bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{
		ch:      make(chan Event, bufSize),
		subs:    make(map[Type][]Handler),
		logger:  logger.With(slog.String("component", "event-bus")),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
}

// Subscribe registers a handler for the given event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// SubscribeAll registers h for every type in AllTypes.
func (b *Bus) SubscribeAll(h Handler) {
	for _, t := range AllTypes() {
		b.Subscribe(t, h)
	}
}

// Publish queues e without blocking. The event is dropped with a warning
// when the buffer is full. Publishing on a nil bus is a no-op.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case b.ch <- e:
	default:
		b.logger.Warn("event bus full, dropping event", slog.String("type", string(e.Type)))
	}
}

// Start launches the dispatch goroutine. Calling it more than once has no
// further effect.
func (b *Bus) Start() {
	b.startOnce.Do(func() {
		b.mu.Lock()
		b.started = true
		b.mu.Unlock()
		go b.run()
	})
}

func (b *Bus) run() {
	defer close(b.drained)
	for {
		select {
		case e := <-b.ch:
			b.dispatch(e)
		case <-b.done:
			for {
				select {
				case e := <-b.ch:
					b.dispatch(e)
				default:
					return
				}
			}
		}
	}
}

// Stop delivers every queued event and returns once the last handler has
// finished. Events published after Stop are not delivered.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.done) })

	b.mu.RLock()
	started := b.started
	b.mu.RUnlock()
	if started {
		<-b.drained
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	handlers := b.subs[e.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						slog.String("type", string(e.Type)),
						slog.Any("panic", r))
				}
			}()
			h(e)
		}()
	}
}
