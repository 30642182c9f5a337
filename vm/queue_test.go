package vm

import (
	"sync"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Queue
// ---------------------------------------------------------------------------

func TestQueuePopIsFIFO(t *testing.T) {
	q := NewQueue[int]()
	for i := 1; i <= 3; i++ {
		q.PushInternal(i)
	}
	for want := 1; want <= 3; want++ {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Fatalf("Pop() = %d, %v; want %d", got, ok, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop on an empty queue should fail")
	}
}

func TestQueueStealTakesNewest(t *testing.T) {
	a, b := NewQueue[string](), NewQueue[string]()
	a.PushInternal("J1")
	a.PushInternal("J2")
	a.PushInternal("J3")

	job, ok := a.Steal()
	if !ok {
		t.Fatal("Steal failed on a non-empty queue")
	}
	b.PushInternal(job)

	if job != "J3" {
		t.Errorf("stole %s, want J3", job)
	}
	if a.Len() != 2 || b.Len() != 1 {
		t.Errorf("lengths = %d, %d; want 2, 1", a.Len(), b.Len())
	}
}

func TestQueueStealFailsWhileLocked(t *testing.T) {
	q := NewQueue[int]()
	q.PushInternal(1)

	q.mu.Lock()
	_, ok := q.Steal()
	q.mu.Unlock()

	if ok {
		t.Error("Steal should not block on or bypass the owner's lock")
	}
	if q.Len() != 1 {
		t.Errorf("Expected 1 job, got %d", q.Len())
	}
}

func TestQueueExternalJobs(t *testing.T) {
	q := NewQueue[int]()
	if q.HasExternalJobs() || q.MoveExternalJobs() {
		t.Fatal("new queue should have no external jobs")
	}

	q.PushExternal(1)
	q.PushExternal(2)
	q.PushExternal(3)

	if job, ok := q.PopExternalJob(); !ok || job != 1 {
		t.Errorf("PopExternalJob() = %d, %v; want 1", job, ok)
	}
	if !q.MoveExternalJobs() {
		t.Fatal("MoveExternalJobs reported nothing moved")
	}
	if q.HasExternalJobs() {
		t.Error("inbox should be empty after the move")
	}
	if !q.HasLocalJobs() || q.Len() != 2 {
		t.Errorf("Expected 2 local jobs, got %d", q.Len())
	}
	if job, _ := q.Pop(); job != 2 {
		t.Errorf("Pop() = %d, want 2", job)
	}
}

func TestQueueConcurrentStealConservesJobs(t *testing.T) {
	const jobs = 1000
	q := NewQueue[int]()
	for i := 0; i < jobs; i++ {
		q.PushInternal(i)
	}

	var (
		mu   sync.Mutex
		seen = make(map[int]int)
		wg   sync.WaitGroup
	)
	take := func(pop func() (int, bool)) {
		defer wg.Done()
		deadline := time.Now().Add(5 * time.Second)
		for q.Len() > 0 && time.Now().Before(deadline) {
			if job, ok := pop(); ok {
				mu.Lock()
				seen[job]++
				mu.Unlock()
			}
		}
	}

	wg.Add(4)
	go take(q.Pop)
	for range 3 {
		go take(q.Steal)
	}
	wg.Wait()

	if len(seen) != jobs {
		t.Errorf("Expected %d distinct jobs, got %d", jobs, len(seen))
	}
	for job, n := range seen {
		if n != 1 {
			t.Errorf("job %d taken %d times", job, n)
		}
	}
}

// ---------------------------------------------------------------------------
// PoolState
// ---------------------------------------------------------------------------

func TestPoolStateGlobalQueue(t *testing.T) {
	s := NewPoolState[int](2)
	if len(s.Queues) != 2 {
		t.Fatalf("Expected 2 queues, got %d", len(s.Queues))
	}
	if s.HasGlobalJobs() {
		t.Error("new pool state has global jobs")
	}

	s.PushGlobal(1)
	s.pushGlobalMany([]int{2, 3})
	if s.GlobalLen() != 3 {
		t.Errorf("Expected 3 global jobs, got %d", s.GlobalLen())
	}
	if job, ok := s.PopGlobal(); !ok || job != 1 {
		t.Errorf("PopGlobal() = %d, %v; want 1", job, ok)
	}

	s.PushExternal(1, 9)
	if !s.Queues[1].HasExternalJobs() || s.Queues[0].HasExternalJobs() {
		t.Error("PushExternal delivered to the wrong worker")
	}
}

func parkAsync(s *PoolState[int], cond func() bool) <-chan struct{} {
	woke := make(chan struct{})
	go func() {
		s.ParkWhile(cond)
		close(woke)
	}()
	return woke
}

func TestParkWhileWokenByPush(t *testing.T) {
	s := NewPoolState[int](1)
	woke := parkAsync(s, func() bool { return !s.HasGlobalJobs() })

	select {
	case <-woke:
		t.Fatal("ParkWhile returned with no work")
	case <-time.After(20 * time.Millisecond):
	}

	s.PushGlobal(1)
	select {
	case <-woke:
	case <-time.After(5 * time.Second):
		t.Fatal("PushGlobal did not wake the parked worker")
	}
}

func TestParkWhileWokenByExternalPush(t *testing.T) {
	s := NewPoolState[int](2)
	woke := parkAsync(s, func() bool { return !s.Queues[1].HasExternalJobs() })

	s.PushExternal(1, 7)
	select {
	case <-woke:
	case <-time.After(5 * time.Second):
		t.Fatal("PushExternal did not wake the parked worker")
	}
}

func TestParkWhileWokenByTerminate(t *testing.T) {
	s := NewPoolState[int](1)
	woke := parkAsync(s, func() bool { return true })

	s.Terminate()
	select {
	case <-woke:
	case <-time.After(5 * time.Second):
		t.Fatal("Terminate did not wake the parked worker")
	}
	if s.IsAlive() {
		t.Error("pool state still alive after Terminate")
	}
}

func TestParkWhileReturnsImmediatelyWhenDead(t *testing.T) {
	s := NewPoolState[int](1)
	s.Terminate()
	s.ParkWhile(func() bool { return true })
}
