package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/classmesh/sfu/internal/domain"
	"github.com/classmesh/sfu/internal/metrics"
)

type task struct {
	name string
	fn   func()
	done chan struct{}
}

// TaskQueue executes every signaling task for one room strictly one at a
// time. Concurrent messages from different clients of the same room are
// serialized here, so the session model never observes interleaved partial
// state updates.
type TaskQueue struct {
	tasks     chan task
	warnAfter time.Duration
	log       zerolog.Logger

	mu     sync.Mutex
	closed bool
	wake   chan struct{}
}

func NewTaskQueue(room domain.RoomID, warnAfter time.Duration) *TaskQueue {
	q := &TaskQueue{
		tasks:     make(chan task, 64),
		warnAfter: warnAfter,
		log:       log.With().Str("module", "session.queue").Str("room", string(room)).Logger(),
		wake:      make(chan struct{}),
	}
	go q.run()
	return q
}

// Do enqueues fn and waits until it has run. The per-task timeout only logs
// a warning; the task is never cancelled or retried and the queue proceeds
// once it returns.
func (q *TaskQueue) Do(ctx context.Context, name string, fn func()) error {
	t := task{name: name, fn: fn, done: make(chan struct{})}

	// The mutex spans the closed check and the send, so Close cannot slip in
	// between them: once a task is accepted the runner is guaranteed to drain
	// it, and after Close no send can land.
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	select {
	case q.tasks <- t:
		q.mu.Unlock()
	case <-ctx.Done():
		q.mu.Unlock()
		return ctx.Err()
	}

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		// The task still runs; only the caller stops waiting.
		return ctx.Err()
	}
}

func (q *TaskQueue) run() {
	for {
		select {
		case t := <-q.tasks:
			q.exec(t)
		case <-q.wake:
			// Drain what was already accepted, then stop.
			for {
				select {
				case t := <-q.tasks:
					q.exec(t)
				default:
					return
				}
			}
		}
	}
}

func (q *TaskQueue) exec(t task) {
	start := time.Now()
	timer := time.AfterFunc(q.warnAfter, func() {
		metrics.TaskTimeouts.Inc()
		q.log.Warn().Str("task", t.name).Dur("after", q.warnAfter).Msg("task still running")
	})
	t.fn()
	timer.Stop()
	if d := time.Since(start); d > q.warnAfter {
		q.log.Warn().Str("task", t.name).Dur("took", d).Msg("slow task finished")
	}
	close(t.done)
}

func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.wake)
}
