// Package config handles skein.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "skein.toml"

// Config is the configuration consumed by the runtime core.
type Config struct {
	Scheduler Scheduler `toml:"scheduler"`
	Log       Log       `toml:"log"`

	// Path is the file the configuration was loaded from (empty for defaults).
	Path string `toml:"-"`
}

// Scheduler configures the process pool and its helpers.
type Scheduler struct {
	ProcessWorkers int           `toml:"process_workers"`
	TracerThreads  int           `toml:"tracer_threads"`
	Reductions     int           `toml:"reductions"`
	GCThreshold    int           `toml:"gc_threshold"`
	SweepInterval  time.Duration `toml:"sweep_interval"`
}

// Log configures the log backend.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Defaults
const (
	DefaultReductions    = 1000
	DefaultGCThreshold   = 4096
	DefaultSweepInterval = 30 * time.Second
)

// Default returns a configuration sized for the current machine.
func Default() *Config {
	cpus := runtime.NumCPU()
	return &Config{
		Scheduler: Scheduler{
			ProcessWorkers: cpus,
			TracerThreads:  max(1, cpus/2),
			Reductions:     DefaultReductions,
			GCThreshold:    DefaultGCThreshold,
			SweepInterval:  DefaultSweepInterval,
		},
	}
}

// Load parses the configuration file at path. Keys missing from the file
// keep their Default values; unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a skein.toml file, then loads
// and returns it. Returns Default() if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}
