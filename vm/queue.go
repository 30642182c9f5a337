package vm

import "sync"

// ---------------------------------------------------------------------------
// Queue: per-worker job queue
// ---------------------------------------------------------------------------

// Queue is the job queue of one worker. The internal part is a deque used
// by its owner, which pushes to the back and pops from the front; other
// workers steal from the back. The external part is an inbox any goroutine
// may push to, used to pin jobs to this worker.
//
// The two parts have separate locks and no method holds both, so a job
// moving between them is briefly in neither, never in both.
type Queue[T any] struct {
	mu       sync.Mutex
	internal []T

	externalMu sync.Mutex
	external   []T
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

// PushInternal appends a job to the internal deque.
func (q *Queue[T]) PushInternal(job T) {
	q.mu.Lock()
	q.internal = append(q.internal, job)
	q.mu.Unlock()
}

// Pop removes the oldest internal job.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return popFront(&q.internal)
}

// Steal removes the newest internal job on behalf of another worker. It
// never blocks: if the owner holds the lock the steal fails, which says
// nothing about whether the queue is empty.
func (q *Queue[T]) Steal() (T, bool) {
	var zero T
	if !q.mu.TryLock() {
		return zero, false
	}
	defer q.mu.Unlock()

	n := len(q.internal)
	if n == 0 {
		return zero, false
	}
	job := q.internal[n-1]
	q.internal[n-1] = zero
	q.internal = q.internal[:n-1]
	return job, true
}

// HasLocalJobs reports whether the internal deque is non-empty.
func (q *Queue[T]) HasLocalJobs() bool {
	return q.Len() > 0
}

// Len returns the number of internal jobs.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.internal)
}

// PushExternal appends a job to the inbox. Safe from any goroutine.
func (q *Queue[T]) PushExternal(job T) {
	q.externalMu.Lock()
	q.external = append(q.external, job)
	q.externalMu.Unlock()
}

// HasExternalJobs reports whether the inbox is non-empty.
func (q *Queue[T]) HasExternalJobs() bool {
	q.externalMu.Lock()
	defer q.externalMu.Unlock()
	return len(q.external) > 0
}

// PopExternalJob removes the oldest inbox job without touching the rest.
func (q *Queue[T]) PopExternalJob() (T, bool) {
	q.externalMu.Lock()
	defer q.externalMu.Unlock()
	return popFront(&q.external)
}

// MoveExternalJobs drains the inbox into the internal deque and reports
// whether anything moved.
func (q *Queue[T]) MoveExternalJobs() bool {
	jobs := q.takeExternal()
	if len(jobs) == 0 {
		return false
	}
	q.mu.Lock()
	q.internal = append(q.internal, jobs...)
	q.mu.Unlock()
	return true
}

func (q *Queue[T]) takeExternal() []T {
	q.externalMu.Lock()
	defer q.externalMu.Unlock()
	jobs := q.external
	q.external = nil
	return jobs
}

func (q *Queue[T]) takeInternal() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := q.internal
	q.internal = nil
	return jobs
}

func popFront[T any](s *[]T) (T, bool) {
	var zero T
	if len(*s) == 0 {
		return zero, false
	}
	job := (*s)[0]
	(*s)[0] = zero
	*s = (*s)[1:]
	return job, true
}
