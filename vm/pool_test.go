package vm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chazu/skein/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Pool
// ---------------------------------------------------------------------------

func yieldingCode(t *testing.T) *CompiledCode {
	u := bytecode.NewUnit("yield")
	u.Emit(bytecode.OpProcessSuspend)
	u.Emit(bytecode.OpSetLiteral, 0, u.AddLiteral(bytecode.Int(1)))
	u.Emit(bytecode.OpReturn, 0)
	return mustCode(t, u)
}

// TestPoolRunsEveryJobOnce spreads processes over the global queue, the
// inboxes and the local queues and checks each one runs to completion
// exactly once.
func TestPoolRunsEveryJobOnce(t *testing.T) {
	const workers, jobs = 4, 200
	pool := NewPool(nil, PoolOptions{Workers: workers, TracerThreads: 1})
	code := yieldingCode(t)

	procs := make([]*Process, jobs)
	for i := range procs {
		procs[i] = newTestProcess(t, uint64(i+1), code)
		switch i % 3 {
		case 0:
			pool.Schedule(procs[i])
		case 1:
			pool.State().PushExternal(i%workers, procs[i])
		default:
			pool.State().Queues[i%workers].PushInternal(procs[i])
		}
	}

	pool.Start(context.Background())
	for _, p := range procs {
		waitDone(t, p)
		if result, err := p.Result(); err != nil || result != int64(1) {
			t.Fatalf("process %d: result = %v, %v", p.ID(), result, err)
		}
	}
	pool.Terminate()
	if err := pool.Wait(); err != nil {
		t.Fatalf("Wait() = %v", err)
	}

	var slices uint64
	for _, w := range pool.Workers() {
		slices += w.Processed()
	}
	if slices != 2*jobs {
		t.Errorf("Expected %d slices, got %d", 2*jobs, slices)
	}
}

func TestPoolScheduleRespectsPin(t *testing.T) {
	pool := NewPool(nil, PoolOptions{Workers: 2})
	defer pool.Wait()

	p := returnProcess(t, 1)
	p.pinTo(1)
	pool.Schedule(p)

	if pool.State().HasGlobalJobs() {
		t.Error("pinned process went to the global queue")
	}
	if !pool.State().Queues[1].HasExternalJobs() {
		t.Error("pinned process not in its worker's inbox")
	}
}

func TestPoolStopsWhenContextCancelled(t *testing.T) {
	pool := NewPool(nil, PoolOptions{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	cancel()

	done := make(chan error, 1)
	go func() { done <- pool.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
	if pool.State().IsAlive() {
		t.Error("pool state still alive")
	}
}

func TestPoolCorruptionStopsAllWorkers(t *testing.T) {
	pool := NewPool(nil, PoolOptions{Workers: 3})
	p := returnProcess(t, 1)
	p.claim()
	pool.Schedule(p)
	pool.Start(context.Background())

	done := make(chan error, 1)
	go func() { done <- pool.Wait() }()
	select {
	case err := <-done:
		var corruption *PoolCorruption
		if !errors.As(err, &corruption) {
			t.Errorf("Wait() = %v, want *PoolCorruption", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool kept running after corruption")
	}
}
