package vm

import (
	"errors"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// ProcessTable
// ---------------------------------------------------------------------------

func TestProcessTableIDsStartAtOne(t *testing.T) {
	table := NewProcessTable()
	if id := table.NextID(); id != 1 {
		t.Errorf("first ID = %d, want 1", id)
	}
	if id := table.NextID(); id != 2 {
		t.Errorf("second ID = %d, want 2", id)
	}
}

func TestProcessTableAbandon(t *testing.T) {
	table := NewProcessTable()
	running, done := returnProcess(t, 1), returnProcess(t, 2)
	done.finish(int64(2), nil)
	table.Register(running)
	table.Register(done)

	if table.Live() != 1 {
		t.Errorf("Expected 1 live process, got %d", table.Live())
	}
	if n := table.abandon(ErrVMShutdown); n != 1 {
		t.Errorf("Expected 1 abandoned process, got %d", n)
	}
	if _, err := running.Result(); !errors.Is(err, ErrVMShutdown) {
		t.Errorf("err = %v, want ErrVMShutdown", err)
	}
	if result, err := done.Result(); result != int64(2) || err != nil {
		t.Error("abandon overwrote a finished process")
	}
}

// ---------------------------------------------------------------------------
// ProcessSweeper
// ---------------------------------------------------------------------------

// TestProcessSweeperRemovesTerminated verifies that only terminated
// processes are swept and that lookups fail afterwards.
func TestProcessSweeperRemovesTerminated(t *testing.T) {
	table := NewProcessTable()
	for i := uint64(1); i <= 5; i++ {
		p := returnProcess(t, i)
		if i%2 == 1 {
			p.finish(nil, nil)
		}
		table.Register(p)
	}

	s := NewProcessSweeper(table, time.Hour)
	stats := s.SweepNow()
	if stats.Processes != 3 {
		t.Errorf("Expected 3 swept processes, got %d", stats.Processes)
	}
	if stats.Remaining != 2 {
		t.Errorf("Expected 2 remaining processes, got %d", stats.Remaining)
	}
	if _, ok := table.Get(1); ok {
		t.Error("terminated process 1 still in the table")
	}
	if _, ok := table.Get(2); !ok {
		t.Error("live process 2 was swept")
	}
	if s.SweepCount() != 1 || s.LastStats() != stats {
		t.Error("sweep statistics not recorded")
	}
}

func TestProcessSweeperDefaults(t *testing.T) {
	s := NewProcessSweeper(NewProcessTable(), 0)
	if s.Interval() <= 0 {
		t.Errorf("Interval() = %v, want the default", s.Interval())
	}
	if !s.IsEnabled() {
		t.Error("new sweeper should be enabled")
	}
	if s.LastStats() != nil {
		t.Error("LastStats should be nil before any sweep")
	}
}

func TestProcessSweeperLoop(t *testing.T) {
	table := NewProcessTable()
	p := returnProcess(t, 1)
	p.finish(nil, nil)
	table.Register(p)

	s := NewProcessSweeper(table, 5*time.Millisecond)
	s.Start()
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for table.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper loop never swept")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Stop()
	s.Stop()
	count := s.SweepCount()
	time.Sleep(20 * time.Millisecond)
	if s.SweepCount() != count {
		t.Error("sweeper kept running after Stop")
	}
}

func TestProcessSweeperDisabled(t *testing.T) {
	table := NewProcessTable()
	p := returnProcess(t, 1)
	p.finish(nil, nil)
	table.Register(p)

	s := NewProcessSweeper(table, 5*time.Millisecond)
	s.SetEnabled(false)
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	if s.SweepCount() != 0 || table.Count() != 1 {
		t.Error("disabled sweeper swept")
	}
}
