package session

import "context"

// ErrLockTimeout is returned by Lock if the lock could not be acquired before
// the context was done.
var ErrLockTimeout = NewError("ERR_LOCK_TIMEOUT", "failed to acquire lock before timeout", ClassBusy)

// Locker hands out exclusive locks for named resources, such as a session
// shared by several Lua states or a flash image directory shared by several
// processes.
type Locker interface {
	// NewLock creates a new unlocked lock object for the given resource. It
	// does not acquire anything.
	NewLock(id string) (Lock, error)
}

// Lock is an exclusive lock for a single resource.
//
// If another party attempts to acquire a held lock, the requestRelease
// callback passed by the current holder is invoked. The holder should then
// finish its current operation and call Unlock, so that the other party can
// proceed. Whether the holder obeys is up to the holder.
type Lock interface {
	// Lock blocks until the lock is acquired or ctx is done, in which case
	// ErrLockTimeout is returned.
	Lock(ctx context.Context, requestRelease func()) error
	// Unlock releases the lock. Unlocking a lock which is not held must not
	// return an error.
	Unlock() error
}
