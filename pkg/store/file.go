package store

import (
	"fmt"
	"os"
	"path/filepath"
)

type FileStore struct {
	Overwrite bool
}

var _ Store = &FileStore{}

func (f *FileStore) Allocate(dest string, size int64) (Output, error) {
	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("error creating directory for %s: %w", dest, err)
		}
	}
	openFlags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !f.Overwrite {
		openFlags |= os.O_EXCL
	}
	out, err := os.OpenFile(dest, openFlags, 0644)
	if err != nil {
		return nil, fmt.Errorf("error creating file: %w", err)
	}
	if err := out.Truncate(size); err != nil {
		out.Close()
		return nil, fmt.Errorf("error preallocating %s: %w", dest, err)
	}
	return out, nil
}

func (f *FileStore) EnableOverwrite() {
	f.Overwrite = true
}
