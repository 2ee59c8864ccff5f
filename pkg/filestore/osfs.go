package filestore

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// NewOnDisk creates a store whose files live in the directory at path. The
// directory acts as the flash partition: every regular file in it is one
// entry of the namespace. NewOnDisk does not create the directory, use
// os.MkdirAll for that. Use package filelocker to make sure only a single
// process mounts the directory at a time.
func NewOnDisk(path string, config Config) (*FileStore, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("filestore: flash directory %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("filestore: flash directory %s is not a directory", path)
	}

	return NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), path), config), nil
}
