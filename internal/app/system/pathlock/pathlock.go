// internal/app/system/pathlock/pathlock.go
//
// Package pathlock serializes read-modify-write sequences on shared files.
//
// A Locker combines an in-process mutex per key with an advisory file lock on
// a sidecar "<path>.lock" file, so that goroutines in one process and
// separate server processes sharing a data directory both observe the same
// critical section. Sidecars are left in place once created; removing one
// while another process waits on it would split the lock in two.
package pathlock

import (
	"fmt"
	"os"
	"sync"
)

// Locker hands out exclusive locks keyed by file path.
// The zero value is not usable; call New.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry

	// crossProcess enables the sidecar file lock.
	crossProcess bool
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New returns a Locker. When crossProcess is true each lock also takes an
// advisory lock on "<path>.lock" (a no-op on platforms without flock).
func New(crossProcess bool) *Locker {
	return &Locker{
		entries:      make(map[string]*entry),
		crossProcess: crossProcess,
	}
}

// Lock blocks until the caller holds the lock for path and returns the
// function that releases it. The release function must be called exactly once.
func (l *Locker) Lock(path string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[path]
	if !ok {
		e = &entry{}
		l.entries[path] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var f *os.File
	if l.crossProcess {
		var err error
		f, err = lockFile(path + ".lock")
		if err != nil {
			e.mu.Unlock()
			l.release(path, e)
			return nil, fmt.Errorf("pathlock: %w", err)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if f != nil {
				unlockFile(f)
			}
			e.mu.Unlock()
			l.release(path, e)
		})
	}, nil
}

// release drops the entry once no goroutine is holding or waiting on it,
// so the map does not grow with every partition ever touched.
func (l *Locker) release(path string, e *entry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, path)
	}
	l.mu.Unlock()
}

// held reports how many keys currently have holders or waiters.
func (l *Locker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
