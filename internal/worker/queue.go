// Package worker drains the per-document job queue and coordinates
// per-donor aggregation cycles.
package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueFull is returned when a non-blocking enqueue finds no capacity.
var ErrQueueFull = errors.New("worker: job queue is full")

// ErrShutdown is returned when enqueueing after shutdown began.
var ErrShutdown = errors.New("worker: queue is shut down")

// Job is one unit of document work. Each uploaded document is enqueued
// exactly once.
type Job struct {
	DocumentID string
}

// Queue is a bounded in-process job queue. Enqueue never blocks; Dequeue
// suspends the caller until work arrives or shutdown is signaled. Jobs
// still queued at shutdown are dropped.
type Queue struct {
	jobs   chan Job
	closed chan struct{}
	once   sync.Once
}

// NewQueue creates a Queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{
		jobs:   make(chan Job, capacity),
		closed: make(chan struct{}),
	}
}

// Enqueue adds a job without blocking. A full queue is an explicit error
// the caller must surface, not a silent drop.
func (q *Queue) Enqueue(job Job) error {
	select {
	case <-q.closed:
		return ErrShutdown
	default:
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until a job is available, the queue shuts down, or the
// context is canceled. The second return reports whether a job was taken.
func (q *Queue) Dequeue(ctx context.Context) (Job, bool) {
	select {
	case <-q.closed:
		return Job{}, false
	case <-ctx.Done():
		return Job{}, false
	default:
	}
	select {
	case job := <-q.jobs:
		return job, true
	case <-q.closed:
		return Job{}, false
	case <-ctx.Done():
		return Job{}, false
	}
}

// Close signals shutdown. Queued-not-started jobs are dropped; in-flight
// jobs are unaffected.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.closed) })
}

// Len reports the number of queued-not-started jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}
