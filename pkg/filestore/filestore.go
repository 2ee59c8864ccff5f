// Package filestore provides a SPIFFS-like flash file system driver backed by
// an afero file system.
//
// FileStore implements flashfs.Driver. It emulates the behaviour of a small
// flash partition: a flat namespace without directories, a fixed capacity
// which is consumed in whole pages, a bounded descriptor table and append
// mode writes which always land at the end of the file. The files themselves
// are kept in an afero.Fs, either in memory (New) or in a directory on disk
// (NewOnDisk).
//
// FileStore serialises its own bookkeeping, but the flashfs.Driver contract
// does not promise anything about concurrent use of a single descriptor.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/afero"
	"github.com/tus/flashfile/pkg/flashfs"
)

var defaultFilePerm = os.FileMode(0664)

const (
	// DefaultBaseAddress is the physical address reported by Config when none is set.
	DefaultBaseAddress = 0x00080000
	// DefaultSize is the partition size used when none is set.
	DefaultSize = 512 * 1024
	// DefaultPageSize is the allocation unit used when none is set.
	DefaultPageSize = 256
	// DefaultMaxOpenFiles is the descriptor table size used when none is set.
	DefaultMaxOpenFiles = 4
)

// Config describes the emulated partition.
type Config struct {
	// BaseAddress is the physical address of the partition. It is only
	// reported, never used for addressing.
	BaseAddress uint32
	// Size is the capacity of the partition in bytes.
	Size uint32
	// PageSize is the allocation unit. A file occupies its size rounded up
	// to a multiple of PageSize.
	PageSize uint32
	// MaxOpenFiles bounds the number of simultaneously open descriptors.
	MaxOpenFiles int
}

func (config Config) withDefaults() Config {
	if config.BaseAddress == 0 {
		config.BaseAddress = DefaultBaseAddress
	}
	if config.Size == 0 {
		config.Size = DefaultSize
	}
	if config.PageSize == 0 {
		config.PageSize = DefaultPageSize
	}
	if config.MaxOpenFiles <= 0 {
		config.MaxOpenFiles = DefaultMaxOpenFiles
	}
	return config
}

// FileStore is a flashfs.Driver storing its files in an afero.Fs.
type FileStore struct {
	fs     afero.Fs
	config Config

	mu     sync.Mutex
	files  map[flashfs.Descriptor]*openFile
	nextFD flashfs.Descriptor
}

var _ flashfs.Driver = (*FileStore)(nil)

type openFile struct {
	file  afero.File
	name  string
	flags flashfs.Flag
}

// New creates a store which keeps its files in memory. The content is lost
// once the store is garbage collected.
func New(config Config) *FileStore {
	return NewWithFs(afero.NewMemMapFs(), config)
}

// NewWithFs creates a store on top of an arbitrary afero.Fs. Only the root
// directory of fs is used.
func NewWithFs(fs afero.Fs, config Config) *FileStore {
	return &FileStore{
		fs:     fs,
		config: config.withDefaults(),
		files:  make(map[flashfs.Descriptor]*openFile),
	}
}

func (store *FileStore) Open(name string, flags flashfs.Flag) (flashfs.Descriptor, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if len(store.files) >= store.config.MaxOpenFiles {
		return 0, flashfs.ErrTooManyOpen
	}

	file, err := store.fs.OpenFile(filePath(name), osFlags(flags), defaultFilePerm)
	if err != nil {
		return 0, translate("open", name, err)
	}

	fd := store.nextFD
	store.nextFD++
	store.files[fd] = &openFile{
		file:  file,
		name:  name,
		flags: flags,
	}

	return fd, nil
}

func (store *FileStore) Close(fd flashfs.Descriptor) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	of, ok := store.files[fd]
	if !ok {
		return flashfs.ErrBadDescriptor
	}
	delete(store.files, fd)

	return of.file.Close()
}

func (store *FileStore) Read(fd flashfs.Descriptor, p []byte) (int, error) {
	of, err := store.lookup(fd)
	if err != nil {
		return 0, err
	}
	if !of.flags.Readable() {
		return 0, flashfs.ErrWriteOnly
	}

	n, err := of.file.Read(p)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (store *FileStore) Write(fd flashfs.Descriptor, p []byte) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	of, ok := store.files[fd]
	if !ok {
		return 0, flashfs.ErrBadDescriptor
	}
	if !of.flags.Writable() {
		return 0, flashfs.ErrReadOnly
	}

	if of.flags&flashfs.Append != 0 {
		if _, err := of.file.Seek(0, io.SeekEnd); err != nil {
			return 0, err
		}
	}

	pos, err := of.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	info, err := of.file.Stat()
	if err != nil {
		return 0, err
	}
	used, err := usage(store.fs, store.config.PageSize)
	if err != nil {
		return 0, err
	}

	// The file may grow into the free space plus the unused tail of its
	// last page.
	free := int64(store.config.Size) - used
	if free < 0 {
		free = 0
	}
	maxEnd := pages(info.Size(), store.config.PageSize) + free

	allowed := int64(len(p))
	if pos+allowed > maxEnd {
		allowed = maxEnd - pos
		if allowed < 0 {
			allowed = 0
		}
	}

	n, err := of.file.Write(p[:allowed])
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, flashfs.ErrNoSpace
	}
	return n, nil
}

func (store *FileStore) Seek(fd flashfs.Descriptor, offset int64, whence int) (int64, error) {
	if !flashfs.ValidWhence(whence) {
		return 0, fmt.Errorf("filestore: invalid whence %d", whence)
	}

	of, err := store.lookup(fd)
	if err != nil {
		return 0, err
	}

	info, err := of.file.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		pos, err := of.file.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		target = pos + offset
	case io.SeekEnd:
		target = size + offset
	}

	if target < 0 {
		return 0, flashfs.ErrInvalidOffset
	}
	if target > size {
		// Like SPIFFS, park the position at the end of the file and report
		// the overshoot.
		if _, err := of.file.Seek(size, io.SeekStart); err != nil {
			return 0, err
		}
		return size, flashfs.ErrInvalidOffset
	}

	return of.file.Seek(target, io.SeekStart)
}

func (store *FileStore) Tell(fd flashfs.Descriptor) (int64, error) {
	of, err := store.lookup(fd)
	if err != nil {
		return 0, err
	}
	return of.file.Seek(0, io.SeekCurrent)
}

func (store *FileStore) Flush(fd flashfs.Descriptor) error {
	of, err := store.lookup(fd)
	if err != nil {
		return err
	}
	return of.file.Sync()
}

// Format closes every open descriptor and removes all files.
func (store *FileStore) Format() error {
	store.mu.Lock()
	defer store.mu.Unlock()

	for fd, of := range store.files {
		of.file.Close()
		delete(store.files, fd)
	}

	infos, err := afero.ReadDir(store.fs, root)
	if err != nil {
		return fmt.Errorf("filestore: format: %w", err)
	}
	for _, info := range infos {
		if err := store.fs.RemoveAll(filePath(info.Name())); err != nil {
			return fmt.Errorf("filestore: format: %w", err)
		}
	}

	return nil
}

func (store *FileStore) Stat(name string) (flashfs.Stat, error) {
	if err := checkName(name); err != nil {
		return flashfs.Stat{}, err
	}

	info, err := store.fs.Stat(filePath(name))
	if err != nil {
		return flashfs.Stat{}, translate("stat", name, err)
	}
	if !info.Mode().IsRegular() {
		return flashfs.Stat{}, fmt.Errorf("filestore: stat %s: %w", name, flashfs.ErrNotFound)
	}

	return flashfs.Stat{Name: name, Size: info.Size()}, nil
}

// Remove deletes the named file. Descriptors referring to it are closed.
func (store *FileStore) Remove(name string) error {
	if err := checkName(name); err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	for fd, of := range store.files {
		if of.name == name {
			of.file.Close()
			delete(store.files, fd)
		}
	}

	if err := store.fs.Remove(filePath(name)); err != nil {
		return translate("remove", name, err)
	}
	return nil
}

func (store *FileStore) Rename(oldName, newName string) error {
	if err := checkName(oldName); err != nil {
		return err
	}
	if err := checkName(newName); err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if _, err := store.fs.Stat(filePath(oldName)); err != nil {
		return translate("rename", oldName, err)
	}
	if _, err := store.fs.Stat(filePath(newName)); err == nil {
		return fmt.Errorf("filestore: rename %s: %w", newName, flashfs.ErrExists)
	}

	if err := store.fs.Rename(filePath(oldName), filePath(newName)); err != nil {
		return translate("rename", oldName, err)
	}

	for _, of := range store.files {
		if of.name == oldName {
			of.name = newName
		}
	}
	return nil
}

// OpenDir returns an iterator over a snapshot of the namespace.
func (store *FileStore) OpenDir() (flashfs.Dir, error) {
	infos, err := entries(store.fs)
	if err != nil {
		return nil, fmt.Errorf("filestore: opendir: %w", err)
	}
	return &dir{infos: infos}, nil
}

func (store *FileStore) Info() (total, used uint64, err error) {
	n, err := usage(store.fs, store.config.PageSize)
	if err != nil {
		return 0, 0, fmt.Errorf("filestore: info: %w", err)
	}
	return uint64(store.config.Size), uint64(n), nil
}

func (store *FileStore) Config() flashfs.Config {
	return flashfs.Config{
		BaseAddress: store.config.BaseAddress,
		Size:        store.config.Size,
	}
}

// OpenFiles returns the number of open descriptors.
func (store *FileStore) OpenFiles() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.files)
}

func (store *FileStore) lookup(fd flashfs.Descriptor) (*openFile, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	of, ok := store.files[fd]
	if !ok {
		return nil, flashfs.ErrBadDescriptor
	}
	return of, nil
}

type dir struct {
	infos []os.FileInfo
	pos   int
}

func (d *dir) Next() (flashfs.Stat, error) {
	if d.pos >= len(d.infos) {
		return flashfs.Stat{}, io.EOF
	}
	info := d.infos[d.pos]
	d.pos++
	return flashfs.Stat{Name: info.Name(), Size: info.Size()}, nil
}

func (d *dir) Close() error {
	d.infos = nil
	return nil
}

func osFlags(flags flashfs.Flag) int {
	var flag int
	switch {
	case flags.Readable() && flags.Writable():
		flag = os.O_RDWR
	case flags.Writable():
		flag = os.O_WRONLY
	default:
		flag = os.O_RDONLY
	}
	if flags&flashfs.Create != 0 {
		flag |= os.O_CREATE
	}
	if flags&flashfs.Truncate != 0 {
		flag |= os.O_TRUNC
	}
	// Append is handled by Write so that it behaves the same for every
	// afero backend.
	return flag
}

// translate maps errors of the backing file system onto the driver errors.
func translate(op, name string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("filestore: %s %s: %w", op, name, flashfs.ErrNotFound)
	case errors.Is(err, os.ErrExist):
		return fmt.Errorf("filestore: %s %s: %w", op, name, flashfs.ErrExists)
	}
	return fmt.Errorf("filestore: %s %s: %w", op, name, err)
}
