// Package memorylocker provides an in-memory locking mechanism.
//
// A session holds a single file handle and is not safe for concurrent use.
// When several Lua states share one session, each dispatched call must hold
// the session's lock for its whole duration, so that a read of one script
// can never observe the handle of another script half-way through an
// operation.
//
// MemoryLocker keeps its locks in memory and is therefore only suitable for
// execution contexts within the same process. Locks exist as long as this
// object is referenced and vanish when the program exits.
package memorylocker

import (
	"context"
	"sync"

	"github.com/tus/flashfile/pkg/session"
)

// MemoryLocker keeps exclusive locks per resource id in memory.
type MemoryLocker struct {
	locks map[string]lockEntry
	mutex sync.RWMutex
}

type lockEntry struct {
	lockReleased   chan struct{}
	requestRelease func()
}

// New creates a new in-memory locker.
func New() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]lockEntry),
	}
}

func (locker *MemoryLocker) NewLock(id string) (session.Lock, error) {
	return memoryLock{locker, id}, nil
}

// Held reports whether the lock for id is currently acquired.
func (locker *MemoryLocker) Held(id string) bool {
	locker.mutex.RLock()
	defer locker.mutex.RUnlock()

	_, ok := locker.locks[id]
	return ok
}

type memoryLock struct {
	locker *MemoryLocker
	id     string
}

// Lock tries to obtain the exclusive lock.
func (lock memoryLock) Lock(ctx context.Context, requestRelease func()) error {
	lock.locker.mutex.RLock()
	entry, ok := lock.locker.locks[lock.id]
	lock.locker.mutex.RUnlock()

requestRelease:
	if ok {
		if entry.requestRelease != nil {
			entry.requestRelease()
		}
		select {
		case <-ctx.Done():
			return session.ErrLockTimeout
		case <-entry.lockReleased:
		}
	}

	lock.locker.mutex.Lock()
	// Another caller may have won the race after the release
	entry, ok = lock.locker.locks[lock.id]
	if ok {
		lock.locker.mutex.Unlock()
		goto requestRelease
	}

	entry = lockEntry{
		lockReleased:   make(chan struct{}),
		requestRelease: requestRelease,
	}

	lock.locker.locks[lock.id] = entry
	lock.locker.mutex.Unlock()

	return nil
}

// Unlock releases a lock. If no such lock exists, no error will be returned.
func (lock memoryLock) Unlock() error {
	lock.locker.mutex.Lock()

	entry, ok := lock.locker.locks[lock.id]
	delete(lock.locker.locks, lock.id)

	lock.locker.mutex.Unlock()

	if ok {
		close(entry.lockReleased)
	}

	return nil
}
