// Package filelocker provides a locker for flash images based on the local
// file system.
//
// An on-disk flash image may only be mounted by a single process at a time.
// FileLocker implements this using lock files stored next to the image
// directory. Each of them stores the PID of the process which acquired the
// lock. This allows locks to be automatically freed when a process is unable
// to release it on its own because the process is not alive anymore.
//
// If somebody tries to acquire a lock that is already held, the
// `requestRelease` callback will be invoked that was provided when the lock
// was successfully acquired the first time. The lock holder should then stop
// running scripts against the image and release the lock properly, so
// somebody else can acquire it. Under the hood, this is implemented using an
// additional file. When an already held lock should be released, a `.stop`
// file is created on disk. The lock holder regularly checks if this file
// exists. If so, it will call its `requestRelease` function.
package filelocker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/tus/flashfile/pkg/session"
	"github.com/tus/lockfile"
)

// FileLocker hands out locks for the images stored in Path.
type FileLocker struct {
	// Relative or absolute path to the directory containing the images.
	// FileLocker does not check whether the path exists, use os.MkdirAll in
	// this case on your own.
	Path string

	// HolderPollInterval specifies how often the holder of a lock should check
	// if it should release the lock. The check involves querying if a `.stop`
	// file exists on disk. Defaults to 5 seconds.
	HolderPollInterval time.Duration

	// AcquirerPollInterval specifies how often the acquirer of a lock should
	// check if the lock has already been released. The checks are stopped if
	// the context provided to Lock is cancelled. Defaults to 2 seconds.
	AcquirerPollInterval time.Duration
}

// New creates a new locker for the images inside path.
func New(path string) FileLocker {
	return FileLocker{path, 5 * time.Second, 2 * time.Second}
}

// ForImage creates a locker and the lock id for the image directory dir. The
// lock files are placed next to dir, named after its base name.
func ForImage(dir string) (FileLocker, string) {
	dir = filepath.Clean(dir)
	return New(filepath.Dir(dir)), filepath.Base(dir)
}

func (locker FileLocker) NewLock(id string) (session.Lock, error) {
	path, err := filepath.Abs(filepath.Join(locker.Path, id+".lock"))
	if err != nil {
		return nil, err
	}

	// We use Lockfile directly instead of lockfile.New to bypass the unnecessary
	// check whether the provided path is absolute since we just resolved it
	// on our own.
	return &fileImageLock{
		file: lockfile.Lockfile(path),

		requestReleaseFile:   filepath.Join(locker.Path, id+".stop"),
		holderPollInterval:   locker.HolderPollInterval,
		acquirerPollInterval: locker.AcquirerPollInterval,
		stopHolderPoll:       make(chan struct{}),
	}, nil
}

type fileImageLock struct {
	file lockfile.Lockfile

	requestReleaseFile   string
	holderPollInterval   time.Duration
	acquirerPollInterval time.Duration
	stopHolderPoll       chan struct{}
}

func (lock *fileImageLock) Lock(ctx context.Context, requestRelease func()) error {
	for {
		err := lock.file.TryLock()
		if err == nil {
			break
		}
		if !errors.Is(err, lockfile.ErrBusy) {
			return err
		}

		// The image is held by another process, so ask it to let go.
		file, err := os.Create(lock.requestReleaseFile)
		if err != nil {
			return err
		}
		file.Close()

		select {
		case <-ctx.Done():
			return session.ErrLockTimeout
		case <-time.After(lock.acquirerPollInterval):
			continue
		}
	}

	// A stale request of an earlier acquirer must not stop us right away
	_ = os.Remove(lock.requestReleaseFile)

	go func() {
		for {
			select {
			case <-lock.stopHolderPoll:
				return
			case <-time.After(lock.holderPollInterval):
				_, err := os.Stat(lock.requestReleaseFile)
				if err == nil {
					if requestRelease != nil {
						requestRelease()
					}
					return
				}
			}
		}
	}()

	return nil
}

func (lock *fileImageLock) Unlock() error {
	select {
	case <-lock.stopHolderPoll:
	default:
		close(lock.stopHolderPoll)
	}

	err := lock.file.Unlock()

	// A "no such file or directory" will be returned if no lockfile was found.
	// Since this means that the file has never been locked, we drop the error
	// and continue as if nothing happened.
	if os.IsNotExist(err) {
		err = nil
	}

	_ = os.Remove(lock.requestReleaseFile)

	return err
}
