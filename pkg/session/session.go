// Package session implements the single-handle file session which backs the
// Lua file module.
//
// A Session owns at most one open file of a flash file system at any time.
// Opening a file while another one is open closes the previous one, and the
// namespace-changing operations (Format, Remove, Rename) close the handle
// before they run. Operations which need a file (Read, Write, Seek, Flush)
// fail with ErrNoFileOpen while no handle is held.
//
// Results follow three conventions:
//
//   - Precondition and fatal failures are returned as Error values.
//   - Soft I/O failures of the driver (a rejected open, a short write, a
//     failed seek or flush) are reported through a false boolean result and
//     are never retried.
//   - Remove is best-effort and does not report driver failures at all.
//
// A Session is not safe for concurrent use. Hosts running several execution
// contexts must serialise all calls, see package memorylocker.
package session

import (
	"errors"
	"io"
	"math"

	"github.com/tus/flashfile/pkg/flashfs"
	"golang.org/x/exp/slog"
)

// State describes whether the session holds an open file.
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// FSInfo reports the space of the file system in bytes. Free+Used always
// equals Total.
type FSInfo struct {
	Free  uint64
	Used  uint64
	Total uint64
}

// Session is the process-wide file session. Create it using New.
type Session struct {
	config Config
	driver flashfs.Driver
	logger *slog.Logger

	// buf is the scratch buffer for Read. It is allocated once so that a
	// read never needs more than BufferSize bytes of memory.
	buf []byte

	// file is nil while the session is closed.
	file *openFile

	// Metrics provides numbers of the usage for this session.
	Metrics Metrics
}

type openFile struct {
	fd    flashfs.Descriptor
	name  string
	flags flashfs.Flag
}

// New creates a closed session on top of config.Driver.
func New(config Config) (*Session, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &Session{
		config:  config,
		driver:  config.Driver,
		logger:  config.Logger,
		buf:     make([]byte, config.BufferSize),
		Metrics: newMetrics(),
	}, nil
}

// State returns whether a file is currently open.
func (s *Session) State() State {
	if s.file == nil {
		return StateClosed
	}
	return StateOpen
}

// OpenName returns the name of the open file, if any.
func (s *Session) OpenName() (string, bool) {
	if s.file == nil {
		return "", false
	}
	return s.file.name, true
}

// BufferSize returns the maximum number of bytes returned by a single Read.
func (s *Session) BufferSize() int {
	return s.config.BufferSize
}

// CheckName returns ErrInvalidFilename unless name is non-empty, shorter
// than the configured maximum and free of NUL bytes.
func (s *Session) CheckName(name string) error {
	if name == "" || len(name) >= s.config.MaxNameLength {
		return ErrInvalidFilename
	}
	for i := 0; i < len(name); i++ {
		if name[i] == 0 {
			return ErrInvalidFilename
		}
	}
	return nil
}

// Open opens the named file with a C-style mode string ("r", "w", "a", "r+",
// "w+", "a+"). A previously open file is closed first. It returns false if
// the driver rejected the open, in which case the session is closed.
func (s *Session) Open(name, mode string) (bool, error) {
	s.Metrics.incOperationsTotal(OpOpen)

	if err := s.CheckName(name); err != nil {
		return false, s.fail(ErrInvalidFilename)
	}

	s.release()

	flags := flashfs.ParseMode(mode)
	fd, err := s.driver.Open(name, flags)
	if err != nil {
		s.logger.Debug("FileOpenFailed", "name", name, "mode", mode, "error", err)
		s.Metrics.incSoftFailures()
		return false, nil
	}

	s.file = &openFile{fd: fd, name: name, flags: flags}
	s.Metrics.setFileOpen(true)
	s.logger.Debug("FileOpened", "name", name, "mode", flags.String())

	return true, nil
}

// Close closes the open file. It is a no-op if the session is closed.
func (s *Session) Close() {
	s.Metrics.incOperationsTotal(OpClose)
	s.release()
}

// Shutdown releases the open file before the host exits.
func (s *Session) Shutdown() {
	if name, ok := s.OpenName(); ok {
		s.logger.Info("SessionShutdown", "name", name)
	}
	s.release()
}

// release closes the handle without counting an operation. Close errors of
// the driver are ignored since the handle is unusable either way.
func (s *Session) release() {
	if s.file == nil {
		return
	}

	if err := s.driver.Close(s.file.fd); err != nil {
		s.logger.Debug("FileCloseFailed", "name", s.file.name, "error", err)
	} else {
		s.logger.Debug("FileClosed", "name", s.file.name)
	}

	s.file = nil
	s.Metrics.setFileOpen(false)
}

// Write writes p to the open file. It returns true only if the driver
// accepted all bytes.
func (s *Session) Write(p []byte) (bool, error) {
	s.Metrics.incOperationsTotal(OpWrite)
	return s.write(p)
}

// WriteLine writes p followed by a newline. The newline is only written if
// p was written completely, and the result is true only if both writes
// succeeded.
func (s *Session) WriteLine(p []byte) (bool, error) {
	s.Metrics.incOperationsTotal(OpWriteLine)

	ok, err := s.write(p)
	if err != nil || !ok {
		return ok, err
	}
	return s.write([]byte{'\n'})
}

func (s *Session) write(p []byte) (bool, error) {
	if s.file == nil {
		return false, s.fail(ErrNoFileOpen)
	}

	n, err := s.driver.Write(s.file.fd, p)
	if n > 0 {
		s.Metrics.incBytesWritten(uint64(n))
	}
	if n != len(p) {
		s.logger.Debug("FileWriteShort", "name", s.file.name, "requested", len(p), "written", n, "error", err)
		s.Metrics.incSoftFailures()
		return false, nil
	}
	return true, nil
}

// Seek moves the position of the open file and returns the new absolute
// position. ok is false if the driver rejected the seek.
func (s *Session) Seek(whence Whence, offset int64) (pos int64, ok bool, err error) {
	s.Metrics.incOperationsTotal(OpSeek)

	if s.file == nil {
		return 0, false, s.fail(ErrNoFileOpen)
	}

	if _, err := s.driver.Seek(s.file.fd, offset, whence.ioWhence()); err != nil {
		s.logger.Debug("FileSeekFailed", "name", s.file.name, "whence", whence.String(), "offset", offset, "error", err)
		s.Metrics.incSoftFailures()
		return 0, false, nil
	}

	pos, err = s.driver.Tell(s.file.fd)
	if err != nil {
		s.logger.Debug("FileTellFailed", "name", s.file.name, "error", err)
		s.Metrics.incSoftFailures()
		return 0, false, nil
	}
	return pos, true, nil
}

// Flush commits pending writes of the open file.
func (s *Session) Flush() (bool, error) {
	s.Metrics.incOperationsTotal(OpFlush)

	if s.file == nil {
		return false, s.fail(ErrNoFileOpen)
	}

	if err := s.driver.Flush(s.file.fd); err != nil {
		s.logger.Debug("FileFlushFailed", "name", s.file.name, "error", err)
		s.Metrics.incSoftFailures()
		return false, nil
	}
	return true, nil
}

// Format closes the open file and erases the whole file system. A failure
// leaves the file system in an unknown state and is reported as
// ErrFormatFailed.
func (s *Session) Format() error {
	s.Metrics.incOperationsTotal(OpFormat)
	s.release()

	if err := s.driver.Format(); err != nil {
		s.logger.Error("FormatFailed", "error", err, "hint", "the file system might be compromised, re-flash the image")
		return s.fail(ErrFormatFailed)
	}

	s.logger.Info("FormatDone")
	return nil
}

// Remove closes the open file and deletes the named file. Driver failures,
// including a missing file, are ignored.
func (s *Session) Remove(name string) error {
	s.Metrics.incOperationsTotal(OpRemove)

	if err := s.CheckName(name); err != nil {
		return s.fail(ErrInvalidFilename)
	}

	s.release()

	if err := s.driver.Remove(name); err != nil {
		s.logger.Debug("FileRemoveFailed", "name", name, "error", err)
	}
	return nil
}

// Rename closes the open file and renames oldName to newName. It returns
// false if the driver rejected the rename.
func (s *Session) Rename(oldName, newName string) (bool, error) {
	s.Metrics.incOperationsTotal(OpRename)

	if err := s.CheckName(oldName); err != nil {
		return false, s.fail(ErrInvalidFilename)
	}
	if err := s.CheckName(newName); err != nil {
		return false, s.fail(ErrInvalidFilename)
	}

	s.release()

	if err := s.driver.Rename(oldName, newName); err != nil {
		s.logger.Debug("FileRenameFailed", "old", oldName, "new", newName, "error", err)
		s.Metrics.incSoftFailures()
		return false, nil
	}
	return true, nil
}

// List returns the size of every file, keyed by name.
func (s *Session) List() (map[string]int64, error) {
	s.Metrics.incOperationsTotal(OpList)

	dir, err := s.driver.OpenDir()
	if err != nil {
		s.logger.Error("ListFailed", "error", err)
		return nil, s.fail(ErrFilesystemFailed)
	}
	defer dir.Close()

	files := make(map[string]int64)
	for {
		stat, err := dir.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("ListAborted", "error", err)
			}
			break
		}
		files[stat.Name] = stat.Size
	}
	return files, nil
}

// Exists reports whether the named file exists, without opening it.
func (s *Session) Exists(name string) (bool, error) {
	s.Metrics.incOperationsTotal(OpExists)

	if err := s.CheckName(name); err != nil {
		return false, s.fail(ErrInvalidFilename)
	}

	_, err := s.driver.Stat(name)
	return err == nil, nil
}

// FSInfo returns the free, used and total bytes of the file system. It
// fails with ErrFilesystemFailed if the driver cannot tell, and with
// ErrFilesystemInconsistent if the numbers cannot describe a sane file
// system.
func (s *Session) FSInfo() (FSInfo, error) {
	s.Metrics.incOperationsTotal(OpFSInfo)

	total, used, err := s.driver.Info()
	if err != nil {
		s.logger.Error("FSInfoFailed", "error", err)
		return FSInfo{}, s.fail(ErrFilesystemFailed)
	}

	s.logger.Debug("FSInfo", "total", total, "used", used)

	if total > math.MaxInt32 || used > math.MaxInt32 || used > total {
		s.logger.Error("FSInfoInconsistent", "total", total, "used", used)
		return FSInfo{}, s.fail(ErrFilesystemInconsistent)
	}

	return FSInfo{
		Free:  total - used,
		Used:  used,
		Total: total,
	}, nil
}

// FSConfig returns the location of the file system region in flash.
func (s *Session) FSConfig() flashfs.Config {
	s.Metrics.incOperationsTotal(OpFSConfig)
	return s.driver.Config()
}

func (s *Session) fail(err Error) error {
	s.Metrics.incErrorsTotal(err)
	return err
}
