// Package emitter fans recognized words out to persistent and remote sinks.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Event is one word surfaced to a client.
type Event struct {
	SessionID  string    `json:"session_id"`
	Language   string    `json:"language"`
	Mode       string    `json:"mode"`
	Gloss      string    `json:"gloss"`
	ClassID    int       `json:"class_id"`
	Confidence float64   `json:"confidence"`
	// TargetGloss is the active training gloss, empty in LIVE mode.
	TargetGloss string    `json:"target_gloss,omitempty"`
	Correct     bool      `json:"correct"`
	At          time.Time `json:"at"`
}

// JSON encodes the event.
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Emitter delivers word events.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }
func (Nop) Close() error                     { return nil }

// Multi delivers every event to each emitter in order.
type Multi []Emitter

// Emit sends ev to all emitters and joins their errors.
func (m Multi) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all emitters.
func (m Multi) Close() error {
	var errs []error
	for _, e := range m {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async delivers events from a background goroutine so callers never block
// on slow sinks. Events are dropped when the queue is full.
type Async struct {
	next   Emitter
	logger *slog.Logger
	queue  chan Event
	done   chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// NewAsync wraps next with a queue of the given size.
func NewAsync(next Emitter, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Async{
		next:   next,
		logger: logger,
		queue:  make(chan Event, size),
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for ev := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.next.Emit(ctx, ev); err != nil {
			a.logger.Warn("word event delivery failed", "session_id", ev.SessionID, "gloss", ev.Gloss, "error", err)
		}
		cancel()
	}
}

// Emit queues ev.
func (a *Async) Emit(_ context.Context, ev Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errors.New("emitter closed")
	}

	select {
	case a.queue <- ev:
		return nil
	default:
		a.dropped++
		a.logger.Warn("word event queue full, dropping", "session_id", ev.SessionID, "dropped", a.dropped)
		return errors.New("event queue full")
	}
}

// Close drains the queue and closes the wrapped emitter.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}

// Dropped returns how many events were discarded.
func (a *Async) Dropped() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}
