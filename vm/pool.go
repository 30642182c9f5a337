package vm

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ---------------------------------------------------------------------------
// Pool: a set of process workers sharing one PoolState
// ---------------------------------------------------------------------------

// Pool runs one goroutine per ProcessWorker. The first worker to fail
// terminates the whole pool.
type Pool struct {
	state   *PoolState[*Process]
	workers []*ProcessWorker
	tracers []*TracerPool

	group   *errgroup.Group
	stopped chan struct{}
	once    sync.Once
}

// PoolOptions sizes a pool.
type PoolOptions struct {
	Workers       int
	TracerThreads int
	Reductions    int
	GCThreshold   int
}

// NewPool creates a pool whose workers run processes of vm. Workers do not
// start until Start is called.
func NewPool(vm *VM, opts PoolOptions) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	p := &Pool{
		state:   NewPoolState[*Process](opts.Workers),
		workers: make([]*ProcessWorker, opts.Workers),
		tracers: make([]*TracerPool, opts.Workers),
		stopped: make(chan struct{}),
	}
	for i := range p.workers {
		p.tracers[i] = NewTracerPool(opts.TracerThreads)
		p.workers[i] = newProcessWorker(i, p.state, vm, p.tracers[i], opts.Reductions, opts.GCThreshold)
	}
	return p
}

// State returns the shared pool state.
func (p *Pool) State() *PoolState[*Process] {
	return p.state
}

// Workers returns the pool's workers.
func (p *Pool) Workers() []*ProcessWorker {
	return p.workers
}

// Start launches the workers. Cancelling ctx terminates the pool.
func (p *Pool) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	p.group = g

	for _, w := range p.workers {
		g.Go(w.Run)
	}

	// A failed worker cancels gctx; stop the rest of the pool with it.
	g.Go(func() error {
		select {
		case <-gctx.Done():
			p.state.Terminate()
		case <-p.stopped:
		}
		return nil
	})
}

// Schedule queues a waiting process: on the worker it is pinned to, or on
// the global queue.
func (p *Pool) Schedule(proc *Process) {
	if w, ok := proc.PinnedTo(); ok && w < len(p.workers) {
		p.state.PushExternal(w, proc)
		return
	}
	p.state.PushGlobal(proc)
}

// Terminate asks every worker to stop after its current iteration.
func (p *Pool) Terminate() {
	p.once.Do(func() { close(p.stopped) })
	p.state.Terminate()
}

// Wait blocks until every worker has stopped, then stops the tracer pools.
// It returns the first worker error, which is always a *PoolCorruption.
func (p *Pool) Wait() error {
	var err error
	if p.group != nil {
		err = p.group.Wait()
	}
	for _, t := range p.tracers {
		t.Close()
	}
	return err
}
