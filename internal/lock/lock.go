// Package lock provides an in-process advisory lock table keyed by absolute
// file path. It is the one mechanism by which the codec and status journal
// serialize concurrent read-modify-write cycles against the same task file
// within a single orchestrator process — a file-system lock is only needed
// if multi-process use on one workspace is ever supported, which is out of
// scope (see "Concurrent orchestrators" in the design notes).
package lock

import (
	"path/filepath"
	"sync"
)

// Table is a registry of per-path mutexes.
type Table struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTable creates an empty lock table.
func NewTable() *Table {
	return &Table{locks: make(map[string]*sync.Mutex)}
}

// lockFor returns the mutex for path, creating it on first use.
func (t *Table) lockFor(path string) *sync.Mutex {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.locks[abs]
	if !ok {
		m = &sync.Mutex{}
		t.locks[abs] = m
	}
	return m
}

// WithLock runs fn while holding the lock for path, blocking until it is
// available. Callers must tolerate a short wait (§4.4's contract).
func (t *Table) WithLock(path string, fn func() error) error {
	m := t.lockFor(path)
	m.Lock()
	defer m.Unlock()
	return fn()
}
