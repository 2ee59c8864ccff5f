package filestore

import (
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/tus/flashfile/pkg/flashfs"
)

// root is the directory of the afero.Fs which holds the flat namespace.
const root = "/"

// filePath maps a flat file name onto its location in the backing afero.Fs.
func filePath(name string) string {
	return root + name
}

// checkName rejects names which cannot be stored as a single entry of the
// backing file system.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return flashfs.ErrInvalidName
	}
	return nil
}

// entries returns all regular files in the namespace, sorted by name.
func entries(fs afero.Fs) ([]os.FileInfo, error) {
	infos, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, err
	}

	files := infos[:0]
	for _, info := range infos {
		if info.Mode().IsRegular() {
			files = append(files, info)
		}
	}
	return files, nil
}

// pages rounds size up to a multiple of pageSize.
func pages(size int64, pageSize uint32) int64 {
	ps := int64(pageSize)
	return (size + ps - 1) / ps * ps
}

// usage returns the number of bytes occupied by all files, counting every
// started page as full.
func usage(fs afero.Fs, pageSize uint32) (int64, error) {
	files, err := entries(fs)
	if err != nil {
		return 0, err
	}

	var used int64
	for _, info := range files {
		used += pages(info.Size(), pageSize)
	}
	return used, nil
}
