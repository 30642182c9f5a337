package vm

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/skein/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// VM lifecycle
// ---------------------------------------------------------------------------

func startVM(t *testing.T, workers int, opts ...Option) *VM {
	t.Helper()
	vm := NewVM(testConfig(workers), opts...)
	if err := vm.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return vm
}

func spawnAndWait(t *testing.T, vm *VM, u *bytecode.Unit) (any, error) {
	t.Helper()
	p, err := vm.Spawn(mustCode(t, u))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := p.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("process %d did not finish", p.ID())
	}
	return result, err
}

func TestVMRunFile(t *testing.T) {
	path := writeUnit(t, t.TempDir(), returnUnit("main", 42))
	vm := startVM(t, 2)
	defer vm.Shutdown()

	result, err := vm.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result != int64(42) {
		t.Errorf("result = %v, want 42", result)
	}
	if !vm.Registry().FileParsed(path) {
		t.Error("entry file not cached in the registry")
	}
}

func TestVMRunMissingFile(t *testing.T) {
	vm := startVM(t, 1)
	defer vm.Shutdown()

	_, err := vm.Run(context.Background(), filepath.Join(t.TempDir(), "missing.skbc"))
	var load *LoadError
	if !errors.As(err, &load) {
		t.Errorf("err = %v, want *LoadError", err)
	}
}

func TestVMRunNeedsStart(t *testing.T) {
	vm := NewVM(testConfig(1))
	defer vm.Shutdown()

	if _, err := vm.Run(context.Background(), "main.skbc"); !errors.Is(err, ErrVMNotStarted) {
		t.Errorf("err = %v, want ErrVMNotStarted", err)
	}
}

func TestVMIdentity(t *testing.T) {
	a, b := NewVM(nil), NewVM(nil)
	defer a.Shutdown()
	defer b.Shutdown()

	if a.ID() == uuid.Nil {
		t.Error("VM has a nil ID")
	}
	if a.ID() == b.ID() {
		t.Error("two VMs share an ID")
	}
	if a.Config() == nil {
		t.Error("nil config should fall back to the defaults")
	}
}

func TestVMSpawnArityError(t *testing.T) {
	vm := NewVM(testConfig(1))
	defer vm.Shutdown()

	u := bytecode.NewUnit("needs_one")
	u.Arguments = 1
	u.RequiredArguments = 1
	u.Locals = 1
	u.Emit(bytecode.OpReturn)

	_, err := vm.Spawn(mustCode(t, u))
	if !errors.Is(err, ErrTooFewArguments) {
		t.Errorf("err = %v, want too few arguments", err)
	}
}

func TestVMSpawnRejectsMalformedCode(t *testing.T) {
	vm := startVM(t, 1)
	defer vm.Shutdown()

	if _, err := vm.Spawn(badRegisterCode()); !errors.Is(err, bytecode.ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
	if _, err := vm.Spawn(nil); !errors.Is(err, bytecode.ErrMalformed) {
		t.Errorf("Spawn(nil): err = %v, want ErrMalformed", err)
	}
}

func TestVMFaultyProcessKeepsPoolRunning(t *testing.T) {
	exits := make(chan int, 1)
	vm := startVM(t, 2, WithExitHandler(func(code int) { exits <- code }))
	defer vm.Shutdown()

	code := badRegisterCode()
	bad, err := vm.spawn(NewArena(), Block{Code: code, Binding: NoBinding, Globals: NewGlobalScope(code.File)})
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, bad)
	var inv *InvariantError
	if _, err := bad.Result(); !errors.As(err, &inv) {
		t.Errorf("err = %v, want *InvariantError", err)
	}

	result, err := spawnAndWait(t, vm, returnUnit("after", 3))
	if err != nil || result != int64(3) {
		t.Errorf("result = %v, %v; want 3", result, err)
	}
	select {
	case code := <-exits:
		t.Errorf("exit handler called with %d", code)
	default:
	}
}

func TestVMShutdownAbandonsProcesses(t *testing.T) {
	u := bytecode.NewUnit("forever")
	u.Emit(bytecode.OpGoto, 0)

	vm := startVM(t, 2)
	p, err := vm.Spawn(mustCode(t, u))
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	if err := vm.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !p.IsDone() {
		t.Fatal("process still alive after Shutdown")
	}
	if _, err := p.Result(); !errors.Is(err, ErrVMShutdown) {
		t.Errorf("err = %v, want ErrVMShutdown", err)
	}

	if _, err := vm.Spawn(mustCode(t, returnUnit("late", 1))); !errors.Is(err, ErrVMShutdown) {
		t.Errorf("Spawn after Shutdown: err = %v, want ErrVMShutdown", err)
	}
	if err := vm.Start(context.Background()); !errors.Is(err, ErrVMShutdown) {
		t.Errorf("Start after Shutdown: err = %v, want ErrVMShutdown", err)
	}
	if err := vm.Shutdown(); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestVMSpawnDuringShutdown(t *testing.T) {
	u := bytecode.NewUnit("forever")
	u.Emit(bytecode.OpGoto, 0)

	vm := startVM(t, 2)
	code := mustCode(t, u)

	var mu sync.Mutex
	var spawned []*Process
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 500 {
				p, err := vm.Spawn(code)
				if errors.Is(err, ErrVMShutdown) {
					return
				}
				if err != nil {
					t.Errorf("Spawn: %v", err)
					return
				}
				mu.Lock()
				spawned = append(spawned, p)
				mu.Unlock()
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	if err := vm.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	wg.Wait()

	for _, p := range spawned {
		if !p.IsDone() {
			t.Fatalf("process %d spawned before shutdown was never finished", p.ID())
		}
	}
}

// ---------------------------------------------------------------------------
// Instructions that need a VM
// ---------------------------------------------------------------------------

func TestParseFileInstruction(t *testing.T) {
	lib := writeUnit(t, t.TempDir(), returnUnit("lib", 7))

	u := bytecode.NewUnit("main")
	u.Emit(bytecode.OpSetLiteral, 0, u.AddLiteral(bytecode.String(lib)))
	u.Emit(bytecode.OpFileParsed, 1, 0)
	u.Emit(bytecode.OpParseFile, 2, 0)
	u.Emit(bytecode.OpFileParsed, 3, 0)
	u.Emit(bytecode.OpRunBlock, 4, 2)
	u.Emit(bytecode.OpSetArray, 5, 1, 3, 4)
	u.Emit(bytecode.OpReturn, 5)

	vm := startVM(t, 2)
	defer vm.Shutdown()

	result, err := spawnAndWait(t, vm, u)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	want := []any{false, true, int64(7)}
	if !reflect.DeepEqual(result, want) {
		t.Errorf("result = %#v, want %#v", result, want)
	}
}

func TestParseFileMissingIsCatchable(t *testing.T) {
	u := bytecode.NewUnit("main")
	u.Emit(bytecode.OpSetLiteral, 0, u.AddLiteral(bytecode.String(filepath.Join(t.TempDir(), "nope.skbc"))))
	u.Emit(bytecode.OpParseFile, 1, 0)
	u.Emit(bytecode.OpReturn, 1)
	u.Emit(bytecode.OpReturn, 2)
	u.AddCatch(1, 2, 3, 2)

	vm := startVM(t, 1)
	defer vm.Shutdown()

	result, err := spawnAndWait(t, vm, u)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	obj, ok := result.(ErrorObject)
	if !ok || !strings.Contains(obj.Message, "failed to load") {
		t.Errorf("result = %#v, want a load error object", result)
	}
}

func TestSpawnInstruction(t *testing.T) {
	child := bytecode.NewUnit("child")
	child.Emit(bytecode.OpGetParentLocal, 0, 1, 0)
	child.Emit(bytecode.OpReturn, 0)

	u := bytecode.NewUnit("main")
	u.Locals = 1
	u.Emit(bytecode.OpSetLiteral, 0, u.AddLiteral(bytecode.String("hi")))
	u.Emit(bytecode.OpSetLocal, 0, 0)
	u.Emit(bytecode.OpSetBlock, 1, u.AddCode(child))
	u.Emit(bytecode.OpProcessSpawn, 2, 1)
	u.Emit(bytecode.OpReturn, 2)

	vm := startVM(t, 2)
	defer vm.Shutdown()

	result, err := spawnAndWait(t, vm, u)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	pid, ok := result.(int64)
	if !ok {
		t.Fatalf("result = %#v, want a process ID", result)
	}
	p, ok := vm.Processes().Get(uint64(pid))
	if !ok {
		t.Fatalf("process %d not in the table", pid)
	}
	waitDone(t, p)
	if result, err := p.Result(); err != nil || result != "hi" {
		t.Errorf("child result = %v, %v; want hi", result, err)
	}
}

func TestPinInstructionEndToEnd(t *testing.T) {
	u := bytecode.NewUnit("pinned")
	u.Emit(bytecode.OpProcessPin)
	for range 3 {
		u.Emit(bytecode.OpProcessSuspend)
	}
	u.Emit(bytecode.OpProcessUnpin)
	u.Emit(bytecode.OpSetLiteral, 0, u.AddLiteral(bytecode.Int(1)))
	u.Emit(bytecode.OpReturn, 0)

	vm := startVM(t, 3)
	defer vm.Shutdown()

	var procs []*Process
	for range 10 {
		p, err := vm.Spawn(mustCode(t, u))
		if err != nil {
			t.Fatal(err)
		}
		procs = append(procs, p)
	}
	for _, p := range procs {
		waitDone(t, p)
		if result, err := p.Result(); err != nil || result != int64(1) {
			t.Errorf("process %d: result = %v, %v", p.ID(), result, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Pool corruption
// ---------------------------------------------------------------------------

func TestPoolCorruptionExits(t *testing.T) {
	exits := make(chan int, 1)
	vm := startVM(t, 2,
		WithParseFunc(func(path string) (*CompiledCode, error) {
			panic("parser bug")
		}),
		WithExitHandler(func(code int) { exits <- code }),
	)

	u := bytecode.NewUnit("main")
	u.Emit(bytecode.OpSetLiteral, 0, u.AddLiteral(bytecode.String("any.skbc")))
	u.Emit(bytecode.OpParseFile, 1, 0)
	u.Emit(bytecode.OpReturn, 1)
	p, err := vm.Spawn(mustCode(t, u))
	if err != nil {
		t.Fatal(err)
	}

	select {
	case code := <-exits:
		if code != 2 {
			t.Errorf("exit code = %d, want 2", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool corruption did not reach the exit handler")
	}

	err = vm.Shutdown()
	var corruption *PoolCorruption
	if !errors.As(err, &corruption) {
		t.Errorf("Shutdown() = %v, want *PoolCorruption", err)
	}
	if !p.IsDone() {
		t.Error("process was not terminated by Shutdown")
	}
}
