package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/replicate/splitget/pkg/extract"
)

// ArchiveStore downloads into a hidden temporary file next to dest and, once
// the download is complete, unpacks the archive into the directory dest.
type ArchiveStore struct {
	Overwrite bool
}

var _ Store = &ArchiveStore{}

func (a *ArchiveStore) Allocate(dest string, size int64) (Output, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating directory for %s: %w", dest, err)
	}
	tmp, err := os.CreateTemp(dir, ".splitget-archive-*")
	if err != nil {
		return nil, fmt.Errorf("error creating temporary file: %w", err)
	}
	if err := tmp.Truncate(size); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("error preallocating %s: %w", tmp.Name(), err)
	}
	return &archiveOutput{File: tmp, dest: dest, size: size, overwrite: a.Overwrite}, nil
}

func (a *ArchiveStore) EnableOverwrite() {
	a.Overwrite = true
}

type archiveOutput struct {
	*os.File
	dest      string
	size      int64
	overwrite bool
}

var _ Finalizer = &archiveOutput{}

func (o *archiveOutput) Finalize() error {
	if err := extract.Archive(o.File, o.size, o.dest, o.overwrite); err != nil {
		return fmt.Errorf("error extracting archive into %s: %w", o.dest, err)
	}
	return nil
}

// Close discards the temporary archive.
func (o *archiveOutput) Close() error {
	closeErr := o.File.Close()
	removeErr := os.Remove(o.File.Name())
	return errors.Join(closeErr, removeErr)
}
