package vm

import (
	"errors"
	"time"

	"github.com/chazu/skein/config"
	"github.com/chazu/skein/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Machine: the bytecode interpreter driven by one worker
// ---------------------------------------------------------------------------

// instructionHandler executes one instruction. Handlers mutate only the
// process they are given and report what to do next as an Action.
type instructionHandler func(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error)

// handlers is indexed by opcode; filled in by init.
var handlers [256]instructionHandler

// Machine runs processes one slice at a time. Each worker owns exactly one
// Machine and nothing else ever touches it, so it needs no locking.
type Machine struct {
	vm     *VM            // nil when driven outside a VM
	worker *ProcessWorker // nil when driven outside a pool
	tracer *TracerPool    // nil disables collection

	reductions  int
	gcThreshold int

	// value carried from a return or throw to its destination
	value Value

	collections uint64
}

func newMachine(vm *VM, worker *ProcessWorker, tracer *TracerPool, reductions, gcThreshold int) *Machine {
	if reductions < 1 {
		reductions = config.DefaultReductions
	}
	return &Machine{
		vm:          vm,
		worker:      worker,
		tracer:      tracer,
		reductions:  reductions,
		gcThreshold: gcThreshold,
		value:       Nil,
	}
}

// Collections returns how many times this machine collected an arena.
func (m *Machine) Collections() uint64 {
	return m.collections
}

// Run executes p until it terminates, suspends, or exhausts its
// reductions. The caller must own p for the whole call.
func (m *Machine) Run(p *Process) Outcome {
	budget := m.reductions
	for {
		if m.shouldCollect(p) {
			if err := m.collect(p); err != nil {
				m.abort(p, err)
				return OutcomeTerminated
			}
		}
		if budget == 0 {
			return OutcomeRequeue
		}
		budget--

		action, err := m.step(p)
		if err != nil {
			if action, err = m.raise(p, err); err != nil {
				m.abort(p, err)
				return OutcomeTerminated
			}
		}

		switch action {
		case ActionContinue, ActionEnterContext:
		case ActionReturn:
			if m.doReturn(p) {
				return OutcomeTerminated
			}
		case ActionThrow:
			if !m.doThrow(p) {
				m.terminateUncaught(p)
				return OutcomeTerminated
			}
		case ActionTerminate:
			m.value = Nil
			m.finish(p)
			return OutcomeTerminated
		case ActionSuspend:
			return OutcomeRequeue
		}
	}
}

// step executes the next instruction of the current context. Running past
// the last instruction returns nil.
func (m *Machine) step(p *Process) (Action, error) {
	ctx := p.context
	if ctx.ip >= len(ctx.Code.Instructions) {
		m.value = Nil
		return ActionReturn, nil
	}

	in := ctx.Code.Instructions[ctx.ip]
	ctx.ip++

	h := handlers[in.Op]
	if h == nil {
		return ActionContinue, invariantf("dispatch", "no handler for opcode %s", in.Op)
	}
	return h(m, p, ctx, in)
}

// raise turns recoverable instruction errors into thrown error objects.
// Anything else is returned unchanged and ends the process.
func (m *Machine) raise(p *Process, err error) (Action, error) {
	var arity *ArityError
	var load *LoadError
	if errors.As(err, &arity) || errors.As(err, &load) {
		m.value = p.arena.NewError(err.Error())
		return ActionThrow, nil
	}
	return ActionContinue, err
}

// doReturn pops the current context. It reports true when the bottom
// context returned and the process is finished.
func (m *Machine) doReturn(p *Process) bool {
	ctx := p.context
	parent := ctx.Parent
	if parent == nil {
		m.finish(p)
		return true
	}
	if ctx.ReturnRegister >= 0 {
		parent.registers[ctx.ReturnRegister] = m.value
	}
	p.context = parent
	m.value = Nil
	return false
}

// doThrow unwinds to the nearest context whose catch table covers the
// instruction it was executing. It reports false if nothing caught the
// value.
func (m *Machine) doThrow(p *Process) bool {
	for ctx := p.context; ctx != nil; ctx = ctx.Parent {
		entry, ok := ctx.Code.catchEntry(ctx.faultOffset())
		if !ok {
			continue
		}
		ctx.registers[entry.Register] = m.value
		ctx.ip = entry.Jump
		p.context = ctx
		m.value = Nil
		return true
	}
	return false
}

func (m *Machine) finish(p *Process) {
	result, err := p.arena.Export(m.value)
	m.value = Nil
	p.finish(result, err)
}

func (m *Machine) terminateUncaught(p *Process) {
	thrown, err := p.arena.Export(m.value)
	m.value = Nil
	if err != nil {
		p.finish(nil, err)
		return
	}
	vmLog.Debugf("process %d terminated by uncaught throw: %v", p.id, thrown)
	p.finish(nil, &ThrownError{Value: thrown})
}

// abort ends p with an error that bypasses catch tables. Pool corruption
// escalates to the worker.
func (m *Machine) abort(p *Process, err error) {
	var corruption *PoolCorruption
	if errors.As(err, &corruption) {
		panic(corruption)
	}

	var inv *InvariantError
	if !errors.As(err, &inv) {
		err = &InvariantError{Err: err}
	}
	vmLog.Errorf("process %d aborted: %v", p.id, err)
	m.value = Nil
	p.finish(nil, err)
}

func (m *Machine) shouldCollect(p *Process) bool {
	return m.tracer != nil && m.gcThreshold > 0 && p.arena.allocations >= m.gcThreshold
}

// collect traces p's live roots on the tracer pool and then sweeps its
// arena. Tracing finishes before any instruction of p runs again.
func (m *Machine) collect(p *Process) error {
	start := time.Now()
	if err := m.tracer.Trace(p); err != nil {
		return err
	}
	stats := p.arena.Sweep()
	m.collections++
	gcLog.Debugf("process %d: reclaimed %d objects and %d bindings in %s",
		p.id, stats.Objects, stats.Bindings, time.Since(start))
	return nil
}
