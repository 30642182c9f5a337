package vm

import (
	"fmt"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// ProcessWorker: one goroutine running processes from its queue
// ---------------------------------------------------------------------------

// WorkerMode selects where a worker looks for work.
type WorkerMode int

const (
	// WorkerNormal runs local, stolen, pinned and global jobs.
	WorkerNormal WorkerMode = iota
	// WorkerExclusive runs only the job pinned to the worker.
	WorkerExclusive
)

func (m WorkerMode) String() string {
	if m == WorkerExclusive {
		return "exclusive"
	}
	return "normal"
}

// ProcessWorker owns a queue and a Machine and runs until its pool is
// terminated. All fields except processed are touched only by the worker's
// own goroutine.
type ProcessWorker struct {
	id      int
	queue   *Queue[*Process]
	state   *PoolState[*Process]
	mode    WorkerMode
	machine *Machine

	// next steal victim
	victim int

	processed atomic.Uint64
}

func newProcessWorker(id int, state *PoolState[*Process], vm *VM, tracer *TracerPool, reductions, gcThreshold int) *ProcessWorker {
	w := &ProcessWorker{
		id:     id,
		queue:  state.Queues[id],
		state:  state,
		victim: id,
	}
	w.machine = newMachine(vm, w, tracer, reductions, gcThreshold)
	return w
}

// ID returns the worker's index in its pool.
func (w *ProcessWorker) ID() int {
	return w.id
}

// Mode returns the current mode. Only meaningful from the worker's
// goroutine or while the worker is stopped.
func (w *ProcessWorker) Mode() WorkerMode {
	return w.mode
}

// Processed returns the number of slices the worker has run.
func (w *ProcessWorker) Processed() uint64 {
	return w.processed.Load()
}

// Run loops until the pool is terminated. A panic escaping the loop is
// returned as a *PoolCorruption; so is a job that could not be claimed.
func (w *ProcessWorker) Run() (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = corruptionFromPanic(rec, w.id)
		}
	}()

	schedLog.Debugf("worker %d started", w.id)
	for w.state.IsAlive() {
		if err := w.iterate(); err != nil {
			return err
		}
	}
	schedLog.Debugf("worker %d stopped after %d slices", w.id, w.Processed())
	return nil
}

func corruptionFromPanic(rec any, worker int) *PoolCorruption {
	if pc, ok := rec.(*PoolCorruption); ok {
		return pc
	}
	return &PoolCorruption{Reason: fmt.Sprintf("worker %d panicked", worker), Cause: rec}
}

func (w *ProcessWorker) iterate() error {
	if w.mode == WorkerExclusive {
		return w.exclusiveIteration()
	}
	return w.normalIteration()
}

// normalIteration tries, in order: a local job, a stolen job, the inbox,
// the global queue. With nothing found it parks until a global or pinned
// job shows up.
func (w *ProcessWorker) normalIteration() error {
	if p, ok := w.queue.Pop(); ok {
		return w.processJob(p)
	}
	if w.steal() {
		return nil
	}
	if w.queue.MoveExternalJobs() {
		return nil
	}
	if p, ok := w.state.PopGlobal(); ok {
		return w.processJob(p)
	}

	w.state.ParkWhile(func() bool {
		return !w.state.HasGlobalJobs() && !w.queue.HasExternalJobs()
	})
	return nil
}

// exclusiveIteration runs only the pinned job. The inbox is popped one job
// at a time rather than drained, since draining would expose the pinned
// job to thieves.
func (w *ProcessWorker) exclusiveIteration() error {
	if p, ok := w.queue.Pop(); ok {
		return w.processJob(p)
	}
	if p, ok := w.queue.PopExternalJob(); ok {
		return w.processJob(p)
	}

	w.state.ParkWhile(func() bool {
		return !w.queue.HasExternalJobs()
	})
	return nil
}

// steal takes one job from another worker's internal queue, trying each
// other worker once starting after the last victim. The stolen job goes to
// this worker's internal queue.
func (w *ProcessWorker) steal() bool {
	n := len(w.state.Queues)
	for i := 1; i < n; i++ {
		w.victim = (w.victim + 1) % n
		if w.victim == w.id {
			w.victim = (w.victim + 1) % n
		}
		if p, ok := w.state.Queues[w.victim].Steal(); ok {
			w.queue.PushInternal(p)
			return true
		}
	}
	return false
}

// EnterExclusiveMode hands every queued job to the global queue and then
// restricts the worker to its pinned job.
func (w *ProcessWorker) EnterExclusiveMode() {
	w.queue.MoveExternalJobs()
	w.state.pushGlobalMany(w.queue.takeInternal())
	w.mode = WorkerExclusive
	schedLog.Debugf("worker %d entered exclusive mode", w.id)
}

// LeaveExclusiveMode returns the worker to normal scheduling.
func (w *ProcessWorker) LeaveExclusiveMode() {
	w.mode = WorkerNormal
	schedLog.Debugf("worker %d left exclusive mode", w.id)
}

// processJob runs one slice of p and then requeues or retires it.
func (w *ProcessWorker) processJob(p *Process) error {
	if !p.claim() {
		return &PoolCorruption{Reason: fmt.Sprintf("worker %d dequeued process %d while it was %s", w.id, p.id, p.Status())}
	}
	w.processed.Add(1)

	switch w.runSlice(p) {
	case OutcomeRequeue:
		w.reschedule(p)
	case OutcomeTerminated:
		if pin, ok := p.PinnedTo(); ok && pin == w.id {
			p.unpin()
			w.LeaveExclusiveMode()
		}
	}
	return nil
}

// runSlice runs p on the machine. A runtime panic raised by an instruction
// aborts p alone; pool corruption still propagates to Run.
func (w *ProcessWorker) runSlice(p *Process) (outcome Outcome) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if pc, ok := rec.(*PoolCorruption); ok {
			panic(pc)
		}
		w.machine.abort(p, invariantf("run", "panic: %v", rec))
		outcome = OutcomeTerminated
	}()
	return w.machine.Run(p)
}

// reschedule gives p up and queues it again on this worker: through the
// inbox when pinned, so no other worker can steal it.
func (w *ProcessWorker) reschedule(p *Process) {
	p.release()
	if pin, ok := p.PinnedTo(); ok {
		w.state.PushExternal(pin, p)
		return
	}
	w.queue.PushInternal(p)
}
