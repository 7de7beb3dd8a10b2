package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ftpmanager/metrics"
)

// Work is one unit submitted to the Queue.
type Work func(ctx context.Context) error

// Handle is the completion handle of a submitted unit.
type Handle struct {
	done chan struct{}
	err  error
}

// resolved returns a Handle that has already finished with err.
func resolved(err error) *Handle {
	h := &Handle{done: make(chan struct{}), err: err}
	close(h.done)
	return h
}

// Done is closed once the unit has finished or was skipped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the unit's result. Only valid after Done is closed.
func (h *Handle) Err() error { return h.err }

// Wait blocks until the unit finishes or ctx ends. Giving up on the wait does
// not remove the unit; a unit whose context has ended by the time it reaches
// the head of the queue is skipped.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type queueEntry struct {
	ctx    context.Context
	op     string
	work   Work
	handle *Handle
}

// Queue executes submitted units one at a time in submission order. A drain
// goroutine runs only while there is work; the next Submit restarts it.
type Queue struct {
	logger *zap.Logger

	mu        sync.Mutex
	pending   []*queueEntry
	draining  bool
	executing bool
	idle      chan struct{} // closed while no drain goroutine is running
}

func NewQueue(logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue{logger: logger, idle: idle}
}

// Submit appends work to the tail of the queue and returns immediately.
func (q *Queue) Submit(ctx context.Context, op string, work Work) *Handle {
	h := &Handle{done: make(chan struct{})}
	q.mu.Lock()
	q.pending = append(q.pending, &queueEntry{ctx: ctx, op: op, work: work, handle: h})
	metrics.SetQueueDepth(len(q.pending))
	if !q.draining {
		q.draining = true
		q.idle = make(chan struct{})
		go q.drain()
	}
	q.mu.Unlock()
	return h
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		e := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.executing = true
		metrics.SetQueueDepth(len(q.pending))
		q.mu.Unlock()

		err := q.execute(e)

		q.mu.Lock()
		q.executing = false
		q.mu.Unlock()

		e.handle.err = err
		close(e.handle.done)
	}
}

func (q *Queue) execute(e *queueEntry) (err error) {
	if cerr := e.ctx.Err(); cerr != nil {
		metrics.RecordOperation(e.op, "skipped", 0)
		return opError(e.op, "", ErrUserCancelled, cerr)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = opError(e.op, "", ErrTransfer, fmt.Errorf("panic: %v", r))
		}
		status := "ok"
		if err != nil {
			status = "error"
			q.logger.Warn("operation failed",
				zap.String("op", e.op),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
		}
		metrics.RecordOperation(e.op, status, time.Since(start))
	}()
	return e.work(e.ctx)
}

// Busy reports whether a unit is executing or waiting.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.executing || q.draining || len(q.pending) > 0
}

// Len returns the number of units waiting to start.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// WhenIdle waits until nothing is executing or pending, then runs fn before
// any further unit can start. Units submitted while waiting extend the wait.
func (q *Queue) WhenIdle(ctx context.Context, fn func()) error {
	for {
		q.mu.Lock()
		if !q.draining {
			defer q.mu.Unlock()
			fn()
			return nil
		}
		idle := q.idle
		q.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
