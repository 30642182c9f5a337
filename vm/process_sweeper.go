package vm

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/skein/config"
)

// ---------------------------------------------------------------------------
// ProcessSweeper: periodic removal of terminated processes
// ---------------------------------------------------------------------------

// ProcessSweepStats holds statistics from a single sweep.
type ProcessSweepStats struct {
	Processes     int // terminated processes removed
	Remaining     int // processes still in the table
	SweepDuration time.Duration
	Timestamp     time.Time
}

// ProcessSweeper periodically drops terminated processes from a
// ProcessTable so long-running VMs do not accumulate them.
type ProcessSweeper struct {
	table    *ProcessTable
	interval time.Duration
	enabled  atomic.Bool
	stop     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex // protects start/stop lifecycle

	// Statistics
	sweepCount atomic.Uint64
	lastStats  atomic.Value // *ProcessSweepStats
}

// NewProcessSweeper creates a sweeper for table. A non-positive interval
// uses config.DefaultSweepInterval.
func NewProcessSweeper(table *ProcessTable, interval time.Duration) *ProcessSweeper {
	if interval <= 0 {
		interval = config.DefaultSweepInterval
	}
	s := &ProcessSweeper{
		table:    table,
		interval: interval,
	}
	s.enabled.Store(true)
	return s
}

// Start begins the periodic sweep goroutine. It is safe to call Start
// multiple times; only one sweep loop will run.
func (s *ProcessSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})

	// The loop gets its own copies; Stop nils the fields.
	go s.loop(s.stop, s.stopped)
}

// Stop halts the sweep goroutine and waits for it to finish. It is safe to
// call Stop multiple times or on a sweeper that was never started.
func (s *ProcessSweeper) Stop() {
	s.mu.Lock()
	stopCh := s.stop
	stoppedCh := s.stopped
	s.stop = nil
	s.stopped = nil
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

// SetEnabled enables or disables sweeping. When disabled, the goroutine
// still runs but skips sweeps.
func (s *ProcessSweeper) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// IsEnabled returns whether sweeping is currently enabled.
func (s *ProcessSweeper) IsEnabled() bool {
	return s.enabled.Load()
}

// Interval returns the sweep interval.
func (s *ProcessSweeper) Interval() time.Duration {
	return s.interval
}

// SweepCount returns the total number of sweeps performed.
func (s *ProcessSweeper) SweepCount() uint64 {
	return s.sweepCount.Load()
}

// LastStats returns statistics from the most recent sweep, or nil if no
// sweep has been performed yet.
func (s *ProcessSweeper) LastStats() *ProcessSweepStats {
	v := s.lastStats.Load()
	if v == nil {
		return nil
	}
	return v.(*ProcessSweepStats)
}

// SweepNow performs an immediate sweep regardless of the timer.
func (s *ProcessSweeper) SweepNow() *ProcessSweepStats {
	return s.sweep()
}

func (s *ProcessSweeper) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if s.enabled.Load() {
				s.sweep()
			}
		}
	}
}

func (s *ProcessSweeper) sweep() *ProcessSweepStats {
	start := time.Now()
	stats := &ProcessSweepStats{
		Timestamp: start,
		Processes: s.table.Sweep(),
		Remaining: s.table.Count(),
	}
	stats.SweepDuration = time.Since(start)

	s.sweepCount.Add(1)
	s.lastStats.Store(stats)
	if stats.Processes > 0 {
		schedLog.Debugf("swept %d terminated processes, %d remain", stats.Processes, stats.Remaining)
	}
	return stats
}
