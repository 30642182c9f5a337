package vm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Process: a cooperatively scheduled green thread
// ---------------------------------------------------------------------------

// ProcessStatus represents the scheduling state of a process.
type ProcessStatus int32

const (
	// ProcessWaiting means the process sits in a queue.
	ProcessWaiting ProcessStatus = iota
	// ProcessRunning means a worker owns the process for a slice.
	ProcessRunning
	// ProcessTerminated means the process finished; its arena is gone.
	ProcessTerminated
)

func (s ProcessStatus) String() string {
	switch s {
	case ProcessWaiting:
		return "waiting"
	case ProcessRunning:
		return "running"
	case ProcessTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("ProcessStatus(%d)", int32(s))
	}
}

const unpinned int32 = -1

// Process owns a call stack and the arena its values live in. A worker
// takes ownership by claiming the process when it dequeues it and gives
// ownership up by enqueueing it again.
type Process struct {
	id     uint64
	status atomic.Int32 // ProcessStatus
	pin    atomic.Int32 // worker index, or unpinned

	// Owned by the worker running the process.
	context *ExecutionContext
	arena   *Arena

	done   chan struct{}
	mu     sync.Mutex
	result any
	err    error
}

// newProcess creates a waiting process that will run block with no
// arguments. The block's binding must already live in arena.
func newProcess(id uint64, b Block, arena *Arena) (*Process, error) {
	binding, err := bindArguments(arena, b, nil)
	if err != nil {
		return nil, err
	}
	p := &Process{
		id:      id,
		arena:   arena,
		context: newExecutionContext(b, binding, -1, nil),
		done:    make(chan struct{}),
	}
	p.pin.Store(unpinned)
	p.status.Store(int32(ProcessWaiting))
	return p, nil
}

// ID returns the process identifier.
func (p *Process) ID() uint64 {
	return p.id
}

// Status returns the current status.
func (p *Process) Status() ProcessStatus {
	return ProcessStatus(p.status.Load())
}

// IsDone returns true once the process has terminated.
func (p *Process) IsDone() bool {
	return p.Status() == ProcessTerminated
}

// Context returns the top of the call stack. Only the owning worker may
// call it while the process is running.
func (p *Process) Context() *ExecutionContext {
	return p.context
}

// Arena returns the process arena. Same ownership rules as Context.
func (p *Process) Arena() *Arena {
	return p.arena
}

// PinnedTo returns the worker the process is pinned to.
func (p *Process) PinnedTo() (int, bool) {
	w := p.pin.Load()
	return int(w), w != unpinned
}

func (p *Process) pinTo(worker int) {
	p.pin.Store(int32(worker))
}

func (p *Process) unpin() {
	p.pin.Store(unpinned)
}

// claim transfers ownership to the calling worker. It fails if the process
// is not waiting, which means two workers dequeued the same job.
func (p *Process) claim() bool {
	return p.status.CompareAndSwap(int32(ProcessWaiting), int32(ProcessRunning))
}

// release gives ownership up before the process is enqueued again.
func (p *Process) release() {
	p.status.Store(int32(ProcessWaiting))
}

func (p *Process) push(ctx *ExecutionContext) {
	p.context = ctx
}

// finish records the outcome, drops the arena and wakes waiters.
func (p *Process) finish(result any, err error) {
	p.mu.Lock()
	if p.Status() == ProcessTerminated {
		p.mu.Unlock()
		return
	}
	p.result = result
	p.err = err
	p.context = nil
	p.arena.Release()
	p.status.Store(int32(ProcessTerminated))
	p.mu.Unlock()
	close(p.done)
}

// Done returns a channel closed when the process terminates.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process terminates or ctx is done. The result is
// the returned value exported to Go (see Export).
func (p *Process) Wait(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome of a terminated process, or nil values if it
// is still running.
func (p *Process) Result() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, p.err
}

// ---------------------------------------------------------------------------
// Exporting values out of an arena
// ---------------------------------------------------------------------------

// Export converts v into a plain Go value that stays valid after the arena
// is released: nil, bool, int64, float64, string, []any, ErrorObject, or
// *CompiledCode for blocks.
func (a *Arena) Export(v Value) (any, error) {
	switch {
	case v == Nil:
		return nil, nil
	case v.IsBool():
		return v.Bool(), nil
	case v.IsSmallInt():
		return v.SmallInt(), nil
	case v.IsFloat():
		return v.Float64(), nil
	}

	o, err := a.Object(v)
	if err != nil {
		return nil, &InvariantError{Op: "export", Err: err}
	}
	switch o.Kind {
	case KindString:
		return o.Str, nil
	case KindError:
		return ErrorObject{Message: o.Str}, nil
	case KindBlock:
		return o.Block.Code, nil
	case KindArray:
		out := make([]any, len(o.Items))
		for i, item := range o.Items {
			if out[i], err = a.Export(item); err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		return nil, invariantf("export", "unknown object kind %s", o.Kind)
	}
}
