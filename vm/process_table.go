package vm

import (
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// ProcessTable: every process a VM has spawned, by ID
// ---------------------------------------------------------------------------

// ProcessTable maps process IDs to processes. Terminated processes stay
// until the next sweep so their results can still be looked up.
type ProcessTable struct {
	mu        sync.RWMutex
	processes map[uint64]*Process
	processID atomic.Uint64
}

// NewProcessTable creates an empty table.
func NewProcessTable() *ProcessTable {
	t := &ProcessTable{
		processes: make(map[uint64]*Process),
	}
	// Start IDs at 1 (0 could be confused with an unset ID)
	t.processID.Store(1)
	return t
}

// NextID reserves a process ID.
func (t *ProcessTable) NextID() uint64 {
	return t.processID.Add(1) - 1
}

// Register adds p to the table.
func (t *ProcessTable) Register(p *Process) {
	t.mu.Lock()
	t.processes[p.id] = p
	t.mu.Unlock()
}

// Get returns the process with the given ID.
func (t *ProcessTable) Get(id uint64) (*Process, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.processes[id]
	return p, ok
}

// Count returns the number of processes in the table.
func (t *ProcessTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.processes)
}

// Live returns the number of processes that have not terminated.
func (t *ProcessTable) Live() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, p := range t.processes {
		if !p.IsDone() {
			n++
		}
	}
	return n
}

// Sweep removes terminated processes from the table.
// Returns the number of processes swept.
func (t *ProcessTable) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	swept := 0
	for id, p := range t.processes {
		if p.IsDone() {
			delete(t.processes, id)
			swept++
		}
	}
	return swept
}

// abandon terminates every unfinished process with err. Only safe once no
// worker is running.
func (t *ProcessTable) abandon(err error) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, p := range t.processes {
		if !p.IsDone() {
			p.finish(nil, err)
			n++
		}
	}
	return n
}
