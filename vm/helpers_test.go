package vm

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/skein/config"
	"github.com/chazu/skein/pkg/bytecode"
)

func testConfig(workers int) *config.Config {
	c := config.Default()
	c.Scheduler.ProcessWorkers = workers
	c.Scheduler.TracerThreads = 2
	c.Scheduler.SweepInterval = 0
	return c
}

func mustCode(t *testing.T, u *bytecode.Unit) *CompiledCode {
	t.Helper()
	code, err := CompiledCodeFromUnit(u, "")
	if err != nil {
		t.Fatalf("CompiledCodeFromUnit(%s): %v", u.Name, err)
	}
	return code
}

// returnUnit builds code that returns the integer n.
func returnUnit(name string, n int64) *bytecode.Unit {
	u := bytecode.NewUnit(name)
	u.Emit(bytecode.OpSetLiteral, 0, u.AddLiteral(bytecode.Int(n)))
	u.Emit(bytecode.OpReturn, 0)
	return u
}

func newTestProcess(t *testing.T, id uint64, code *CompiledCode) *Process {
	t.Helper()
	p, err := newProcess(id, Block{Code: code, Binding: NoBinding}, NewArena())
	if err != nil {
		t.Fatalf("newProcess: %v", err)
	}
	return p
}

// runProcess drives p on m until it terminates.
func runProcess(t *testing.T, m *Machine, p *Process) (any, error) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		if !p.claim() {
			t.Fatalf("process %d could not be claimed (status %s)", p.id, p.Status())
		}
		if m.Run(p) == OutcomeTerminated {
			return p.Result()
		}
		p.release()
	}
	t.Fatal("process did not terminate")
	return nil, nil
}

func runUnit(t *testing.T, u *bytecode.Unit) (any, error) {
	t.Helper()
	m := newMachine(nil, nil, nil, 0, 0)
	return runProcess(t, m, newTestProcess(t, 1, mustCode(t, u)))
}

func waitDone(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("process %d did not finish (status %s)", p.id, p.Status())
	}
}

func writeUnit(t *testing.T, dir string, u *bytecode.Unit) string {
	t.Helper()
	path := filepath.Join(dir, u.Name+".skbc")
	if err := bytecode.WriteFile(path, u); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}
