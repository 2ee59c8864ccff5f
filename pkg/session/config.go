package session

import (
	"errors"

	"github.com/tus/flashfile/pkg/flashfs"
	"golang.org/x/exp/slog"
)

const (
	// DefaultBufferSize is the size of the scratch buffer used by Read.
	DefaultBufferSize = 1024
	// DefaultMaxNameLength is the exclusive upper bound for file name
	// lengths, matching the SPIFFS object name length.
	DefaultMaxNameLength = 32
)

// Config provides a way to configure the Session depending on your needs.
type Config struct {
	// Driver is the flash file system all operations are forwarded to. It
	// must not be nil.
	Driver flashfs.Driver
	// BufferSize bounds the number of bytes a single Read returns. Defaults
	// to DefaultBufferSize.
	BufferSize int
	// MaxNameLength is the exclusive upper bound for the length of file
	// names. Defaults to DefaultMaxNameLength.
	MaxNameLength int
	// Logger is the logger to use internally. Defaults to slog.Default().
	Logger *slog.Logger
}

func (config *Config) validate() error {
	if config.Driver == nil {
		return errors.New("session: Driver must not be nil")
	}

	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}

	if config.MaxNameLength <= 0 {
		config.MaxNameLength = DefaultMaxNameLength
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return nil
}
