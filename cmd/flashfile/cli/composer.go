package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/tus/flashfile/pkg/filelocker"
	"github.com/tus/flashfile/pkg/filestore"
	"github.com/tus/flashfile/pkg/luafile"
	"github.com/tus/flashfile/pkg/memorylocker"
	"github.com/tus/flashfile/pkg/session"
	"golang.org/x/exp/slog"
)

// Composer holds the flash driver, the session on top of it and the Lua
// module exposing the session.
type Composer struct {
	Store   *filestore.FileStore
	Session *session.Session
	Module  *luafile.Module

	imageLock session.Lock
}

// CreateComposer sets up the components according to Flags. If an image
// directory is used, it is locked against other processes for the lifetime
// of the composer. requestRelease is called if another process asks for the
// image.
func CreateComposer(ctx context.Context, requestRelease func()) (*Composer, error) {
	c := &Composer{}

	storeConfig := filestore.Config{
		BaseAddress:  Flags.BaseAddress,
		Size:         uint32(Flags.Size),
		PageSize:     uint32(Flags.PageSize),
		MaxOpenFiles: Flags.MaxOpenFiles,
	}

	if Flags.ImageDir == "" {
		slog.Info("UsingInMemoryImage", "size", Flags.Size)
		c.Store = filestore.New(storeConfig)
	} else {
		if err := c.lockImage(ctx, requestRelease); err != nil {
			return nil, err
		}

		store, err := filestore.NewOnDisk(Flags.ImageDir, storeConfig)
		if err != nil {
			c.unlockImage()
			return nil, err
		}
		c.Store = store
	}

	s, err := session.New(session.Config{
		Driver:        c.Store,
		BufferSize:    Flags.BufferSize,
		MaxNameLength: Flags.NameMaxLength,
		Logger:        slog.Default().With("component", "session"),
	})
	if err != nil {
		c.unlockImage()
		return nil, err
	}
	c.Session = s

	module, err := luafile.New(luafile.Config{
		Session:            s,
		Locker:             memorylocker.New(),
		AcquireLockTimeout: Flags.AcquireLockTimeout,
		Logger:             slog.Default().With("component", "luafile"),
	})
	if err != nil {
		c.unlockImage()
		return nil, err
	}
	c.Module = module

	return c, nil
}

func (c *Composer) lockImage(ctx context.Context, requestRelease func()) error {
	slog.Info("UsingImageDirectory", "path", Flags.ImageDir, "size", Flags.Size)
	if err := os.MkdirAll(Flags.ImageDir, os.FileMode(0774)); err != nil {
		return fmt.Errorf("unable to ensure image directory exists: %w", err)
	}

	locker, id := filelocker.ForImage(Flags.ImageDir)
	locker.HolderPollInterval = Flags.FilelockHolderPollInterval
	locker.AcquirerPollInterval = Flags.FilelockAcquirerPollInterval

	lock, err := locker.NewLock(id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, Flags.AcquireLockTimeout)
	defer cancel()

	if err := lock.Lock(ctx, func() {
		slog.Warn("ImageReleaseRequested", "path", Flags.ImageDir)
		if requestRelease != nil {
			requestRelease()
		}
	}); err != nil {
		return fmt.Errorf("unable to lock image %s: %w", Flags.ImageDir, err)
	}

	c.imageLock = lock
	return nil
}

func (c *Composer) unlockImage() {
	if c.imageLock == nil {
		return
	}

	if err := c.imageLock.Unlock(); err != nil {
		slog.Error("ImageUnlockFailed", "path", Flags.ImageDir, "error", err)
	}
	c.imageLock = nil
}

// Close closes the open file of the session and releases the image.
func (c *Composer) Close() {
	c.Session.Shutdown()
	c.unlockImage()
}
