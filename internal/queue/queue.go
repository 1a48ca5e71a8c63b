// Package queue is the single ordered channel between change detection and
// note processing. Admission is gated by the lock manager: an event whose key
// is already in flight is dropped, not queued. That reject-on-collision rule
// is the system's dedup and backpressure mechanism; a later rescan or
// reconciliation picks up anything dropped.
package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kerbin-io/notarius/internal/locker"
	"github.com/kerbin-io/notarius/internal/watch"
)

// KeyFunc derives the lock key for an event: the note id when the store
// already tracks the path, otherwise the canonical path.
type KeyFunc func(ev watch.Event) string

// Item is one admitted event plus the lock key held for it.
type Item struct {
	Event watch.Event
	Key   string
}

// Queue is a bounded FIFO with lock-gated admission and one consumer.
type Queue struct {
	items  chan Item
	locks  *locker.Manager
	keyFn  KeyFunc
	logger *slog.Logger
}

// New returns a Queue holding at most capacity admitted events.
func New(capacity int, locks *locker.Manager, keyFn KeyFunc, logger *slog.Logger) *Queue {
	return &Queue{
		items:  make(chan Item, capacity),
		locks:  locks,
		keyFn:  keyFn,
		logger: logger,
	}
}

// Enqueue admits ev if its lock key is free, and reports whether it was
// accepted. A full queue also drops the event, releasing the key so the next
// occurrence can get in.
func (q *Queue) Enqueue(ev watch.Event) bool {
	key := q.keyFn(ev)
	if !q.locks.Acquire(key) {
		q.logger.Debug("queue: dropped, key in flight",
			slog.String("key", key),
			slog.String("path", ev.Path),
			slog.String("action", ev.Action.String()))
		return false
	}
	select {
	case q.items <- Item{Event: ev, Key: key}:
		return true
	default:
		q.locks.Release(key)
		q.logger.Warn("queue: dropped, queue full",
			slog.String("path", ev.Path),
			slog.String("action", ev.Action.String()))
		return false
	}
}

// Depth returns the number of admitted events waiting to be consumed.
func (q *Queue) Depth() int {
	return len(q.items)
}

// Consume drains the queue strictly in order until ctx is cancelled, calling
// handle for each event. The lock key is released on every exit path of the
// handler, including panics, so a crashing note can never wedge its key.
func (q *Queue) Consume(ctx context.Context, handle func(ctx context.Context, ev watch.Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case item := <-q.items:
			q.process(ctx, item, handle)
		}
	}
}

func (q *Queue) process(ctx context.Context, item Item, handle func(ctx context.Context, ev watch.Event) error) {
	defer q.locks.Release(item.Key)
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queue: handler panic",
				slog.String("path", item.Event.Path),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	if err := handle(ctx, item.Event); err != nil {
		q.logger.Error("queue: handler failed",
			slog.String("path", item.Event.Path),
			slog.String("action", item.Event.Action.String()),
			slog.String("error", err.Error()))
	}
}
