// Package flashfs defines the contract between the file session and a
// flash-resident file system driver.
//
// A driver exposes a flat namespace of files, addressed by short names, and a
// small set of primitives operating on numeric descriptors. The session in
// package session never touches storage directly; everything goes through
// the Driver interface, which allows swapping the SPIFFS-like host
// implementation in package filestore for a real partition or a mock.
package flashfs

import (
	"errors"
	"io"
)

var (
	// ErrNotFound indicates that no file with the given name exists.
	ErrNotFound = errors.New("flashfs: not found")
	// ErrExists indicates that a file with the given name already exists.
	ErrExists = errors.New("flashfs: already exists")
	// ErrNoSpace indicates that the partition is full.
	ErrNoSpace = errors.New("flashfs: no space")
	// ErrInvalidName indicates that the name cannot be stored in the flat namespace.
	ErrInvalidName = errors.New("flashfs: invalid name")
	// ErrBadDescriptor indicates that the descriptor is not open.
	ErrBadDescriptor = errors.New("flashfs: bad descriptor")
	// ErrTooManyOpen indicates that the descriptor table is exhausted.
	ErrTooManyOpen = errors.New("flashfs: too many open files")
	// ErrReadOnly indicates a write on a descriptor opened without write access.
	ErrReadOnly = errors.New("flashfs: descriptor not writable")
	// ErrWriteOnly indicates a read on a descriptor opened without read access.
	ErrWriteOnly = errors.New("flashfs: descriptor not readable")
	// ErrInvalidOffset indicates a seek before the start or past the end of a file.
	ErrInvalidOffset = errors.New("flashfs: invalid offset")
)

// Descriptor identifies an open file. Drivers hand out non-negative values.
type Descriptor int32

// Flag controls how a file is opened.
type Flag uint8

const (
	// ReadOnly opens the file for reading.
	ReadOnly Flag = 1 << iota
	// WriteOnly opens the file for writing.
	WriteOnly
	// Create creates the file if it does not exist.
	Create
	// Truncate discards existing content when opening.
	Truncate
	// Append makes every write go to the end of the file.
	Append

	// ReadWrite opens the file for reading and writing.
	ReadWrite = ReadOnly | WriteOnly
)

// Readable reports whether the flags grant read access.
func (f Flag) Readable() bool { return f&ReadOnly != 0 }

// Writable reports whether the flags grant write access.
func (f Flag) Writable() bool { return f&WriteOnly != 0 }

// Stat describes a single file.
type Stat struct {
	Name string
	Size int64
}

// Config locates the file system region in the physical flash.
type Config struct {
	// BaseAddress is the physical address of the first byte of the region.
	BaseAddress uint32
	// Size is the size of the region in bytes.
	Size uint32
}

// Dir iterates over the entries of the flat namespace. Next returns io.EOF
// once all entries have been visited.
type Dir interface {
	Next() (Stat, error)
	Close() error
}

// Driver is the flash file system consumed by the session. Implementations
// are not required to be safe for concurrent use.
type Driver interface {
	// Open opens the named file and returns its descriptor.
	Open(name string, flags Flag) (Descriptor, error)
	// Close releases the descriptor.
	Close(fd Descriptor) error
	// Read reads up to len(p) bytes. At end of file it returns 0 and io.EOF.
	Read(fd Descriptor, p []byte) (int, error)
	// Write writes p and returns the number of bytes stored, which is less
	// than len(p) only together with a non-nil error.
	Write(fd Descriptor, p []byte) (int, error)
	// Seek moves the file position. whence is one of io.SeekStart,
	// io.SeekCurrent and io.SeekEnd.
	Seek(fd Descriptor, offset int64, whence int) (int64, error)
	// Tell returns the current file position.
	Tell(fd Descriptor) (int64, error)
	// Flush commits cached writes of the descriptor to flash.
	Flush(fd Descriptor) error
	// Format erases the whole file system. All descriptors become invalid.
	Format() error
	// Stat looks up a file without opening it.
	Stat(name string) (Stat, error)
	// Remove deletes the named file.
	Remove(name string) error
	// Rename renames a file. It fails if newName already exists.
	Rename(oldName, newName string) error
	// OpenDir starts an iteration over all files.
	OpenDir() (Dir, error)
	// Info returns the total and used bytes of the file system.
	Info() (total, used uint64, err error)
	// Config returns the static location of the file system region.
	Config() Config
}

// ValidWhence reports whether whence is one of the io.Seek* constants.
func ValidWhence(whence int) bool {
	return whence == io.SeekStart || whence == io.SeekCurrent || whence == io.SeekEnd
}
