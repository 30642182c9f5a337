package vm

import (
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// PoolState: state shared by every worker of a pool
// ---------------------------------------------------------------------------

// PoolState holds the pool's liveness flag, its global queue, the queues
// of all workers and the park/wake primitive.
//
// Wakeups cannot be lost: ParkWhile evaluates its condition with parkMu
// held right before waiting, and every producer publishes its job before
// broadcasting under the same mutex.
type PoolState[T any] struct {
	alive atomic.Bool

	globalMu sync.Mutex
	global   []T

	// Queues is indexed by worker and never changes after construction.
	Queues []*Queue[T]

	parkMu sync.Mutex
	park   *sync.Cond
}

// NewPoolState creates a live pool state with one queue per worker.
func NewPoolState[T any](workers int) *PoolState[T] {
	s := &PoolState[T]{
		Queues: make([]*Queue[T], workers),
	}
	for i := range s.Queues {
		s.Queues[i] = NewQueue[T]()
	}
	s.park = sync.NewCond(&s.parkMu)
	s.alive.Store(true)
	return s
}

// PushGlobal adds an unpinned job to the global queue and wakes parked
// workers.
func (s *PoolState[T]) PushGlobal(job T) {
	s.globalMu.Lock()
	s.global = append(s.global, job)
	s.globalMu.Unlock()
	s.notify()
}

func (s *PoolState[T]) pushGlobalMany(jobs []T) {
	if len(jobs) == 0 {
		return
	}
	s.globalMu.Lock()
	s.global = append(s.global, jobs...)
	s.globalMu.Unlock()
	s.notify()
}

// PopGlobal removes the oldest global job.
func (s *PoolState[T]) PopGlobal() (T, bool) {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()
	return popFront(&s.global)
}

// HasGlobalJobs reports whether the global queue is non-empty.
func (s *PoolState[T]) HasGlobalJobs() bool {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()
	return len(s.global) > 0
}

// GlobalLen returns the number of global jobs.
func (s *PoolState[T]) GlobalLen() int {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()
	return len(s.global)
}

// PushExternal pins a job to a worker and wakes parked workers.
func (s *PoolState[T]) PushExternal(worker int, job T) {
	s.Queues[worker].PushExternal(job)
	s.notify()
}

// IsAlive reports whether the pool is still running.
func (s *PoolState[T]) IsAlive() bool {
	return s.alive.Load()
}

// Terminate marks the pool as stopped and wakes every parked worker so it
// can notice.
func (s *PoolState[T]) Terminate() {
	s.alive.Store(false)
	s.notify()
}

// ParkWhile blocks the caller while the pool is alive and cond holds.
// cond is evaluated with the park mutex held.
func (s *PoolState[T]) ParkWhile(cond func() bool) {
	s.parkMu.Lock()
	for s.IsAlive() && cond() {
		s.park.Wait()
	}
	s.parkMu.Unlock()
}

func (s *PoolState[T]) notify() {
	s.parkMu.Lock()
	s.park.Broadcast()
	s.parkMu.Unlock()
}
