package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

// Job is one queued acquisition request. Higher priority jobs are served
// first.
type Job struct {
	ID        string
	URL       string
	Priority  int
	Retries   int
	CreatedAt time.Time
}

type Queue interface {
	Push(job *Job) error
	Pop(ctx context.Context) (*Job, error)
	Size() int
	Close() error
}

// InMemoryQueue is a priority-ordered job queue. Pop blocks until a job is
// available, the queue is closed, or the context ends. Waiters park on
// channels, never inside a condition variable, so a cancelled Pop leaves no
// goroutine behind and never races the mutex.
type InMemoryQueue struct {
	mu     sync.Mutex
	jobs   []*Job
	closed bool

	// wake carries one token per pending wake-up; done closes on Close.
	wake chan struct{}
	done chan struct{}
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		jobs: make([]*Job, 0),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (q *InMemoryQueue) Push(job *Job) error {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}

	q.jobs = append(q.jobs, job)
	sort.SliceStable(q.jobs, func(i, j int) bool {
		return q.jobs[i].Priority > q.jobs[j].Priority
	})
	q.mu.Unlock()

	q.signal()
	return nil
}

func (q *InMemoryQueue) Pop(ctx context.Context) (*Job, error) {
	for {
		q.mu.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs = q.jobs[1:]
			remaining := len(q.jobs)
			q.mu.Unlock()

			// Pass the baton so one waiter wakes per remaining job.
			if remaining > 0 {
				q.signal()
			}
			return job, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
		case <-q.wake:
		}
	}
}

func (q *InMemoryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close stops accepting new jobs and releases every blocked Pop once the
// remaining jobs drain. Safe to call more than once.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
