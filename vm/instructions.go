package vm

import (
	"github.com/chazu/skein/pkg/bytecode"
)

func init() {
	handlers[bytecode.OpNop] = opNop
	handlers[bytecode.OpSetLiteral] = opSetLiteral
	handlers[bytecode.OpSetArray] = opSetArray

	handlers[bytecode.OpGetLocal] = opGetLocal
	handlers[bytecode.OpSetLocal] = opSetLocal
	handlers[bytecode.OpGetParentLocal] = opGetParentLocal

	handlers[bytecode.OpSetBlock] = opSetBlock
	handlers[bytecode.OpRunBlock] = opRunBlock
	handlers[bytecode.OpReturn] = opReturn
	handlers[bytecode.OpThrow] = opThrow
	handlers[bytecode.OpGoto] = opGoto
	handlers[bytecode.OpGotoIfFalse] = opGotoIfFalse

	handlers[bytecode.OpParseFile] = opParseFile
	handlers[bytecode.OpFileParsed] = opFileParsed

	handlers[bytecode.OpProcessSuspend] = opProcessSuspend
	handlers[bytecode.OpProcessSpawn] = opProcessSpawn
	handlers[bytecode.OpProcessPin] = opProcessPin
	handlers[bytecode.OpProcessUnpin] = opProcessUnpin
	handlers[bytecode.OpProcessTerminate] = opProcessTerminate
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

func opNop(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	return ActionContinue, nil
}

func opSetLiteral(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	lit := ctx.Code.Literals[in.Args[1]]

	var v Value
	switch lit.Kind {
	case bytecode.LiteralNil:
		v = Nil
	case bytecode.LiteralTrue:
		v = True
	case bytecode.LiteralFalse:
		v = False
	case bytecode.LiteralInt:
		var ok bool
		if v, ok = TryFromSmallInt(lit.Int); !ok {
			return ActionContinue, invariantf("set_literal", "integer literal %d out of range", lit.Int)
		}
	case bytecode.LiteralFloat:
		v = FromFloat64(lit.Float)
	case bytecode.LiteralString:
		v = p.arena.NewString(lit.Str)
	default:
		return ActionContinue, invariantf("set_literal", "unknown literal kind %s", lit.Kind)
	}

	ctx.registers[in.Args[0]] = v
	return ActionContinue, nil
}

func opSetArray(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	items := make([]Value, len(in.Args)-1)
	for i, r := range in.Args[1:] {
		items[i] = ctx.registers[r]
	}
	ctx.registers[in.Args[0]] = p.arena.NewArray(items)
	return ActionContinue, nil
}

// ---------------------------------------------------------------------------
// Bindings
// ---------------------------------------------------------------------------

func opGetLocal(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	b, err := p.arena.Binding(ctx.Binding)
	if err != nil {
		return ActionContinue, err
	}
	v, err := b.Get(in.Args[1])
	if err != nil {
		return ActionContinue, err
	}
	ctx.registers[in.Args[0]] = v
	return ActionContinue, nil
}

func opSetLocal(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	b, err := p.arena.Binding(ctx.Binding)
	if err != nil {
		return ActionContinue, err
	}
	return ActionContinue, b.Set(in.Args[0], ctx.registers[in.Args[1]])
}

func opGetParentLocal(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	b, err := p.arena.Ancestor(ctx.Binding, in.Args[1])
	if err != nil {
		return ActionContinue, err
	}
	v, err := b.Get(in.Args[2])
	if err != nil {
		return ActionContinue, err
	}
	ctx.registers[in.Args[0]] = v
	return ActionContinue, nil
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func opSetBlock(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	ctx.registers[in.Args[0]] = p.arena.NewBlock(Block{
		Code:    ctx.Code.Code[in.Args[1]],
		Binding: ctx.Binding,
		Globals: ctx.Globals,
	})
	return ActionContinue, nil
}

func opReturn(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	m.value = Nil
	if len(in.Args) > 0 {
		m.value = ctx.registers[in.Args[0]]
	}
	return ActionReturn, nil
}

func opThrow(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	m.value = ctx.registers[in.Args[0]]
	return ActionThrow, nil
}

func opGoto(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	ctx.ip = in.Args[0]
	return ActionContinue, nil
}

func opGotoIfFalse(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	if ctx.registers[in.Args[1]].IsFalsy() {
		ctx.ip = in.Args[0]
	}
	return ActionContinue, nil
}

// ---------------------------------------------------------------------------
// Processes
// ---------------------------------------------------------------------------

func opProcessSuspend(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	return ActionSuspend, nil
}

func opProcessSpawn(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	if m.vm == nil {
		return ActionContinue, invariantf("process_spawn", "no VM to schedule the process on")
	}
	b, err := p.arena.BlockOf(ctx.registers[in.Args[1]])
	if err != nil {
		return ActionContinue, err
	}
	child, err := m.vm.spawnBlock(p.arena, b)
	if err != nil {
		return ActionContinue, err
	}
	ctx.registers[in.Args[0]] = FromSmallInt(int64(child.ID()))
	return ActionContinue, nil
}

func opProcessPin(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	if m.worker == nil {
		return ActionContinue, invariantf("process_pin", "process is not running on a worker")
	}
	if w, ok := p.PinnedTo(); ok {
		if w == m.worker.id {
			return ActionContinue, nil
		}
		return ActionContinue, invariantf("process_pin", "process %d is pinned to worker %d but runs on %d", p.id, w, m.worker.id)
	}
	p.pinTo(m.worker.id)
	m.worker.EnterExclusiveMode()
	return ActionContinue, nil
}

func opProcessUnpin(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	if _, ok := p.PinnedTo(); !ok {
		return ActionContinue, nil
	}
	p.unpin()
	if m.worker != nil {
		m.worker.LeaveExclusiveMode()
	}
	return ActionContinue, nil
}

func opProcessTerminate(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	return ActionTerminate, nil
}
