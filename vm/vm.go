package vm

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/chazu/skein/config"
)

// VM is the runtime root: it owns the configuration, the bytecode file
// registry, the process pool and the process table. The registry is
// created here and closed by Shutdown; nothing in this package keeps
// global state.
type VM struct {
	id        uuid.UUID
	config    *config.Config
	registry  *BytecodeFileRegistry
	pool      *Pool
	processes *ProcessTable
	sweeper   *ProcessSweeper

	// exit is called with status 2 after pool corruption.
	exit func(code int)

	mu       sync.Mutex
	started  bool
	shutdown bool
	cancel   context.CancelFunc
	poolDone chan struct{}
	poolErr  error
}

type options struct {
	parse ParseFunc
	exit  func(int)
}

// Option configures a VM.
type Option func(*options)

// WithParseFunc replaces the function the bytecode file registry parses
// files with.
func WithParseFunc(fn ParseFunc) Option {
	return func(o *options) {
		o.parse = fn
	}
}

// WithExitHandler replaces os.Exit as the reaction to pool corruption.
func WithExitHandler(fn func(code int)) Option {
	return func(o *options) {
		o.exit = fn
	}
}

// NewVM creates a VM from cfg (config.Default() when nil). The pool does
// not run until Start.
func NewVM(cfg *config.Config, opts ...Option) *VM {
	if cfg == nil {
		cfg = config.Default()
	}
	o := &options{exit: os.Exit}
	for _, opt := range opts {
		opt(o)
	}

	vm := &VM{
		id:        uuid.New(),
		config:    cfg,
		registry:  NewBytecodeFileRegistry(o.parse),
		processes: NewProcessTable(),
		exit:      o.exit,
	}
	vm.pool = NewPool(vm, PoolOptions{
		Workers:       cfg.Scheduler.ProcessWorkers,
		TracerThreads: cfg.Scheduler.TracerThreads,
		Reductions:    cfg.Scheduler.Reductions,
		GCThreshold:   cfg.Scheduler.GCThreshold,
	})
	vm.sweeper = NewProcessSweeper(vm.processes, cfg.Scheduler.SweepInterval)
	return vm
}

// ID returns the VM's instance identifier.
func (vm *VM) ID() uuid.UUID {
	return vm.id
}

// Config returns the configuration the VM was built with.
func (vm *VM) Config() *config.Config {
	return vm.config
}

// Registry returns the bytecode file registry.
func (vm *VM) Registry() *BytecodeFileRegistry {
	return vm.registry
}

// Processes returns the process table.
func (vm *VM) Processes() *ProcessTable {
	return vm.processes
}

// Sweeper returns the process table sweeper.
func (vm *VM) Sweeper() *ProcessSweeper {
	return vm.sweeper
}

// Pool returns the process pool.
func (vm *VM) Pool() *Pool {
	return vm.pool
}

// Start launches the process pool and the sweeper. Calling Start again is
// a no-op.
func (vm *VM) Start(ctx context.Context) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.shutdown {
		return ErrVMShutdown
	}
	if vm.started {
		return nil
	}
	vm.started = true

	ctx, vm.cancel = context.WithCancel(ctx)
	vm.poolDone = make(chan struct{})
	vm.pool.Start(ctx)
	go vm.monitor()

	if vm.config.Scheduler.SweepInterval > 0 {
		vm.sweeper.Start()
	}

	vmLog.Infof("vm %s started: %d workers, %d tracer threads each",
		vm.id, len(vm.pool.workers), vm.config.Scheduler.TracerThreads)
	return nil
}

func (vm *VM) monitor() {
	err := vm.pool.Wait()
	vm.poolErr = err
	close(vm.poolDone)

	var corruption *PoolCorruption
	if errors.As(err, &corruption) {
		vm.corrupt(corruption)
	}
}

// corrupt reports unrecoverable pool state and exits.
func (vm *VM) corrupt(pc *PoolCorruption) {
	vm.pool.Terminate()
	vmLog.Criticalf("vm %s: %v", vm.id, pc)
	vm.exit(2)
}

// Spawn validates code, then creates a process running it with no
// arguments and schedules it.
func (vm *VM) Spawn(code *CompiledCode) (*Process, error) {
	if err := code.Validate(); err != nil {
		return nil, err
	}
	b := Block{Code: code, Binding: NoBinding, Globals: NewGlobalScope(code.File)}
	return vm.spawn(NewArena(), b)
}

// SpawnFile loads path through the registry and spawns its top-level code.
func (vm *VM) SpawnFile(path string) (*Process, error) {
	code, err := vm.registry.GetOrSet(path)
	if err != nil {
		return nil, err
	}
	return vm.Spawn(code)
}

// Run spawns the file at path and waits for its result. The VM must be
// started.
func (vm *VM) Run(ctx context.Context, path string) (any, error) {
	vm.mu.Lock()
	started := vm.started
	vm.mu.Unlock()
	if !started {
		return nil, ErrVMNotStarted
	}

	p, err := vm.SpawnFile(path)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// spawnBlock copies b, with everything it references, out of src into a
// fresh arena and runs it as a new process.
func (vm *VM) spawnBlock(src *Arena, b Block) (*Process, error) {
	dst := NewArena()
	copied, err := newArenaCopier(src, dst).block(b)
	if err != nil {
		return nil, err
	}
	return vm.spawn(dst, copied)
}

// spawn registers the process while holding mu, so Shutdown either sees it
// in the table or rejects it.
func (vm *VM) spawn(arena *Arena, b Block) (*Process, error) {
	p, err := newProcess(vm.processes.NextID(), b, arena)
	if err != nil {
		return nil, err
	}

	vm.mu.Lock()
	if vm.shutdown {
		vm.mu.Unlock()
		return nil, ErrVMShutdown
	}
	vm.processes.Register(p)
	vm.mu.Unlock()

	vm.Schedule(p)
	vmLog.Debugf("spawned process %d running %s", p.id, b.Code)
	return p, nil
}

// Schedule queues a waiting process on the pool.
func (vm *VM) Schedule(p *Process) {
	vm.pool.Schedule(p)
}

// Shutdown stops the pool, waits for the workers, and tears down the
// registry. Processes that never finished are terminated with
// ErrVMShutdown. It returns the pool's corruption error, if any.
func (vm *VM) Shutdown() error {
	vm.mu.Lock()
	if vm.shutdown {
		vm.mu.Unlock()
		return nil
	}
	vm.shutdown = true
	started := vm.started
	vm.mu.Unlock()

	vm.sweeper.Stop()
	vm.pool.Terminate()

	var err error
	if started {
		<-vm.poolDone
		err = vm.poolErr
		vm.cancel()
	} else {
		err = vm.pool.Wait()
	}

	if n := vm.processes.abandon(ErrVMShutdown); n > 0 {
		vmLog.Warningf("vm %s: %d processes did not finish before shutdown", vm.id, n)
	}
	vm.registry.Close()
	vmLog.Infof("vm %s shut down", vm.id)
	return err
}
