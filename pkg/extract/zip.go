package extract

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

func unzip(r io.ReaderAt, size int64, destDir string, overwrite bool) error {
	zipReader, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("error creating zip reader: %w", err)
	}
	for _, file := range zipReader.File {
		if err := unzipEntry(file, destDir, overwrite); err != nil {
			return fmt.Errorf("error extracting %s: %w", file.Name, err)
		}
	}
	return nil
}

func unzipEntry(file *zip.File, destDir string, overwrite bool) error {
	target, err := safeJoin(destDir, file.Name)
	if err != nil {
		return err
	}
	info := file.FileInfo()
	switch {
	case info.IsDir():
		return os.MkdirAll(target, cleanFileMode(info.Mode().Perm()|0700))
	case info.Mode().IsRegular():
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		rc, err := file.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		return writeFile(target, rc, info.Mode().Perm(), overwrite)
	default:
		return fmt.Errorf("unsupported file type (not dir or regular): %s", info.Mode().Type())
	}
}
