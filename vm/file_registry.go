package vm

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/chazu/skein/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// BytecodeFileRegistry: path -> CompiledCode cache shared by all workers
// ---------------------------------------------------------------------------

// ParseFunc turns a bytecode file into compiled code.
type ParseFunc func(path string) (*CompiledCode, error)

// ParseBytecodeFile reads, validates and converts the bytecode file at path.
func ParseBytecodeFile(path string) (*CompiledCode, error) {
	u, err := bytecode.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return CompiledCodeFromUnit(u, path)
}

// BytecodeFileRegistry caches the compiled code of every bytecode file a
// VM has loaded. Lookups share a read lock; only a miss takes the write
// lock, and it checks again before parsing so each file is parsed once.
//
// A panic inside the parse function poisons the registry: the panic is
// re-raised as a *PoolCorruption and so is every later access.
type BytecodeFileRegistry struct {
	mu     sync.RWMutex
	files  map[string]*CompiledCode
	parse  ParseFunc
	closed bool
	poison *PoolCorruption
}

// NewBytecodeFileRegistry creates an empty registry. A nil parse uses
// ParseBytecodeFile.
func NewBytecodeFileRegistry(parse ParseFunc) *BytecodeFileRegistry {
	if parse == nil {
		parse = ParseBytecodeFile
	}
	return &BytecodeFileRegistry{
		files: make(map[string]*CompiledCode),
		parse: parse,
	}
}

// checkLocked must be called with mu held in either mode.
func (r *BytecodeFileRegistry) checkLocked() error {
	r.checkPoisonLocked()
	if r.closed {
		return ErrRegistryClosed
	}
	return nil
}

func (r *BytecodeFileRegistry) checkPoisonLocked() {
	if r.poison != nil {
		panic(r.poison)
	}
}

func (r *BytecodeFileRegistry) lookup(path string) (*CompiledCode, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkLocked(); err != nil {
		return nil, false, err
	}
	code, ok := r.files[path]
	return code, ok, nil
}

// GetOrSet returns the compiled code for path, parsing and caching the
// file on first use. A failed parse returns a *LoadError and caches
// nothing, so a later call retries.
func (r *BytecodeFileRegistry) GetOrSet(path string) (*CompiledCode, error) {
	path = filepath.Clean(path)

	code, ok, err := r.lookup(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if ok {
		return code, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkLocked(); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	// Another caller may have parsed the file while we waited.
	if code, ok := r.files[path]; ok {
		return code, nil
	}

	code, err = r.parseLocked(path)
	if err != nil {
		registryLog.Debugf("failed to parse %s: %v", path, err)
		return nil, &LoadError{Path: path, Err: err}
	}
	r.files[path] = code
	registryLog.Debugf("cached %s", path)
	return code, nil
}

func (r *BytecodeFileRegistry) parseLocked(path string) (code *CompiledCode, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.poison = &PoolCorruption{
				Reason: fmt.Sprintf("bytecode file registry poisoned while parsing %s", path),
				Cause:  rec,
			}
			registryLog.Criticalf("%v", r.poison)
			panic(r.poison)
		}
	}()
	return r.parse(path)
}

// FileParsed reports whether path is cached. It never parses. A closed
// registry holds no files.
func (r *BytecodeFileRegistry) FileParsed(path string) bool {
	_, ok, err := r.lookup(filepath.Clean(path))
	return err == nil && ok
}

// Paths returns the cached paths in sorted order.
func (r *BytecodeFileRegistry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.checkPoisonLocked()
	paths := make([]string, 0, len(r.files))
	for p := range r.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of cached files.
func (r *BytecodeFileRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.checkPoisonLocked()
	return len(r.files)
}

// Close drops every cached file. Later calls to GetOrSet fail with
// ErrRegistryClosed. Closing twice, or closing a poisoned registry, is
// harmless.
func (r *BytecodeFileRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.files = make(map[string]*CompiledCode)
}
