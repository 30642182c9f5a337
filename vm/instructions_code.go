package vm

import (
	"github.com/chazu/skein/pkg/bytecode"
)

// opRunBlock invokes the block in register Args[1] with the remaining
// registers as arguments. The arity check runs before anything is
// allocated, so a failed call leaves the stack and registers as they were.
// The destination register is written when the new context returns.
func opRunBlock(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	dest := in.Args[0]
	b, err := p.arena.BlockOf(ctx.registers[in.Args[1]])
	if err != nil {
		return ActionContinue, err
	}

	argRegs := in.Args[2:]
	args := make([]Value, len(argRegs))
	for i, r := range argRegs {
		args[i] = ctx.registers[r]
	}

	binding, err := bindArguments(p.arena, b, args)
	if err != nil {
		return ActionContinue, err
	}
	p.push(newExecutionContext(b, binding, dest, ctx))
	return ActionEnterContext, nil
}

// opParseFile loads the bytecode file named by the string in Args[1] and
// stores a block over its top-level code, with a fresh binding, in Args[0].
func opParseFile(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	if m.vm == nil {
		return ActionContinue, invariantf("parse_file", "no bytecode file registry")
	}
	path, err := p.arena.StringOf(ctx.registers[in.Args[1]])
	if err != nil {
		return ActionContinue, err
	}

	code, err := m.vm.registry.GetOrSet(path)
	if err != nil {
		return ActionContinue, err
	}

	binding := p.arena.NewBinding(code.Locals, NoBinding)
	ctx.registers[in.Args[0]] = p.arena.NewBlock(Block{
		Code:    code,
		Binding: binding,
		Globals: NewGlobalScope(path),
	})
	return ActionContinue, nil
}

// opFileParsed stores whether the file named by Args[1] is cached. It never
// loads anything.
func opFileParsed(m *Machine, p *Process, ctx *ExecutionContext, in bytecode.Instruction) (Action, error) {
	if m.vm == nil {
		return ActionContinue, invariantf("file_parsed", "no bytecode file registry")
	}
	path, err := p.arena.StringOf(ctx.registers[in.Args[1]])
	if err != nil {
		return ActionContinue, err
	}
	ctx.registers[in.Args[0]] = FromBool(m.vm.registry.FileParsed(path))
	return ActionContinue, nil
}
