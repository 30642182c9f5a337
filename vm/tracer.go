package vm

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// ---------------------------------------------------------------------------
// TracerPool: helper goroutines that mark a process's live objects
// ---------------------------------------------------------------------------

// TracerPool is a fixed set of goroutines owned by one worker. Trace splits
// a process's roots across them and returns only when all of them are done,
// so the worker never resumes the process while it is being traced.
type TracerPool struct {
	threads int
	jobs    chan traceJob
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

type traceJob struct {
	arena    *Arena
	values   []Value
	bindings []BindingRef
	done     *sync.WaitGroup
	report   func(error)
}

// NewTracerPool starts threads tracer goroutines.
func NewTracerPool(threads int) *TracerPool {
	if threads < 1 {
		threads = 1
	}
	t := &TracerPool{
		threads: threads,
		jobs:    make(chan traceJob),
		stop:    make(chan struct{}),
	}
	t.wg.Add(threads)
	for i := 0; i < threads; i++ {
		go t.loop()
	}
	return t
}

// Threads returns the number of tracer goroutines.
func (t *TracerPool) Threads() int {
	return t.threads
}

func (t *TracerPool) loop() {
	defer t.wg.Done()
	for {
		select {
		case job := <-t.jobs:
			job.run()
		case <-t.stop:
			return
		}
	}
}

// Trace marks every object and binding reachable from p's contexts. The
// caller must own p. References that point nowhere are collected and
// returned together as an *InvariantError.
func (t *TracerPool) Trace(p *Process) error {
	values, bindings := traceRoots(p)

	var (
		mu   sync.Mutex
		errs *multierror.Error
		done sync.WaitGroup
	)
	report := func(err error) {
		mu.Lock()
		errs = multierror.Append(errs, err)
		mu.Unlock()
	}

	for i := 0; i < t.threads; i++ {
		job := traceJob{
			arena:    p.arena,
			values:   partition(values, i, t.threads),
			bindings: partition(bindings, i, t.threads),
			done:     &done,
			report:   report,
		}
		if len(job.values) == 0 && len(job.bindings) == 0 {
			continue
		}

		done.Add(1)
		select {
		case t.jobs <- job:
		case <-t.stop:
			done.Done()
			done.Wait()
			return ErrTracerPoolClosed
		}
	}
	done.Wait()

	if err := errs.ErrorOrNil(); err != nil {
		return &InvariantError{Op: "trace", Err: err}
	}
	return nil
}

// Close stops the tracer goroutines and waits for them to exit.
func (t *TracerPool) Close() {
	t.once.Do(func() {
		close(t.stop)
	})
	t.wg.Wait()
}

// traceRoots gathers the registers and bindings of every context.
func traceRoots(p *Process) ([]Value, []BindingRef) {
	var values []Value
	var bindings []BindingRef
	for ctx := p.context; ctx != nil; ctx = ctx.Parent {
		for _, v := range ctx.registers {
			if v.IsObject() {
				values = append(values, v)
			}
		}
		if ctx.Binding != NoBinding {
			bindings = append(bindings, ctx.Binding)
		}
	}
	return values, bindings
}

// partition returns the i-th of n roughly equal chunks of s.
func partition[T any](s []T, i, n int) []T {
	size := (len(s) + n - 1) / n
	lo := min(i*size, len(s))
	hi := min(lo+size, len(s))
	return s[lo:hi]
}

// run marks everything reachable from the job's roots. Marks are set with
// compare-and-swap, so an object shared between chunks is traversed by
// exactly one tracer.
func (j traceJob) run() {
	defer j.done.Done()
	defer func() {
		if rec := recover(); rec != nil {
			j.report(fmt.Errorf("tracer panicked: %v", rec))
		}
	}()

	values := append([]Value(nil), j.values...)
	bindings := append([]BindingRef(nil), j.bindings...)

	for len(values) > 0 || len(bindings) > 0 {
		if n := len(bindings); n > 0 {
			ref := bindings[n-1]
			bindings = bindings[:n-1]

			b, err := j.arena.Binding(ref)
			if err != nil {
				j.report(err)
				continue
			}
			if !b.marked.CompareAndSwap(false, true) {
				continue
			}
			for _, v := range b.Locals {
				if v.IsObject() {
					values = append(values, v)
				}
			}
			if b.Parent != NoBinding {
				bindings = append(bindings, b.Parent)
			}
			continue
		}

		v := values[len(values)-1]
		values = values[:len(values)-1]

		o, err := j.arena.Object(v)
		if err != nil {
			j.report(err)
			continue
		}
		if !o.marked.CompareAndSwap(false, true) {
			continue
		}
		switch o.Kind {
		case KindArray:
			for _, item := range o.Items {
				if item.IsObject() {
					values = append(values, item)
				}
			}
		case KindBlock:
			if o.Block.Binding != NoBinding {
				bindings = append(bindings, o.Block.Binding)
			}
		}
	}
}
