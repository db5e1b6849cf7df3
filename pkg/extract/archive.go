package extract

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/replicate/splitget/pkg/logging"
)

var (
	ErrZipSlip         = errors.New("archive contains file outside of target directory")
	ErrEmptyHeaderName = errors.New("archive contains entry with empty name")
)

// Archive unpacks the size byte archive in r into destDir. Zip archives are
// read in place; anything else must be a tar stream, optionally compressed
// with gzip, bzip2, xz, lz4 or compress(1).
func Archive(r io.ReaderAt, size int64, destDir string, overwrite bool) error {
	logger := logging.GetLogger()
	startTime := time.Now()

	header := make([]byte, headerSize)
	n, err := r.ReadAt(header, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("error reading archive header: %w", err)
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("error creating destination directory: %w", err)
	}

	format := "tar"
	switch c := detectCodec(header); {
	case n >= len(zipMagic) && bytes.HasPrefix(header, zipMagic):
		format = "zip"
		err = unzip(r, size, destDir, overwrite)
	case n >= 2 && c != nil:
		format = "tar+" + c.name
		var stream io.Reader
		stream, err = c.open(bufio.NewReader(io.NewSectionReader(r, 0, size)), header)
		if err != nil {
			return fmt.Errorf("error opening %s stream: %w", c.name, err)
		}
		err = untar(stream, destDir, overwrite)
	default:
		err = untar(io.NewSectionReader(r, 0, size), destDir, overwrite)
	}
	if err != nil {
		return err
	}

	logger.Debug().
		Str("format", format).
		Str("dest", destDir).
		Str("elapsed", fmt.Sprintf("%.3fs", time.Since(startTime).Seconds())).
		Msg("Extract")
	return nil
}

type link struct {
	linkType byte
	oldName  string
	newName  string
}

func untar(reader io.Reader, destDir string, overwrite bool) error {
	var links []*link
	logger := logging.GetLogger()
	tarReader := tar.NewReader(reader)

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading tar: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			logEntry(logger, "dir", target, header.Mode)
			if err := os.MkdirAll(target, cleanFileMode(os.FileMode(header.Mode))); err != nil {
				return err
			}
		case tar.TypeReg:
			logEntry(logger, "file", target, header.Mode)
			if err := writeFile(target, tarReader, os.FileMode(header.Mode), overwrite); err != nil {
				return err
			}
		case tar.TypeSymlink, tar.TypeLink:
			// links may point at entries later in the archive
			links = append(links, &link{linkType: header.Typeflag, oldName: header.Linkname, newName: target})
		default:
			return fmt.Errorf("unsupported file type for %s, typeflag %s", header.Name, string(header.Typeflag))
		}
	}

	if err := createLinks(links, destDir, overwrite); err != nil {
		return fmt.Errorf("error creating links: %w", err)
	}
	return nil
}

func logEntry(logger zerolog.Logger, kind, target string, mode int64) {
	logger.Trace().
		Str("kind", kind).
		Str("target", target).
		Str("perms", fmt.Sprintf("%o", mode)).
		Msg("Extract entry")
}

func writeFile(target string, r io.Reader, mode os.FileMode, overwrite bool) error {
	openFlags := os.O_CREATE | os.O_WRONLY | os.O_EXCL
	if overwrite {
		openFlags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(target, openFlags, cleanFileMode(mode))
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", target, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing file %s: %w", target, err)
	}
	return nil
}

func createLinks(links []*link, destDir string, overwrite bool) error {
	for _, link := range links {
		if err := os.MkdirAll(filepath.Dir(link.newName), 0755); err != nil {
			return err
		}
		if overwrite {
			err := os.Remove(link.newName)
			if err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("error removing existing file: %w", err)
			}
		}
		switch link.linkType {
		case tar.TypeLink:
			oldPath, err := safeJoin(destDir, link.oldName)
			if err != nil {
				return err
			}
			if err := os.Link(oldPath, link.newName); err != nil {
				return fmt.Errorf("error creating hard link from %s to %s: %w", oldPath, link.newName, err)
			}
		case tar.TypeSymlink:
			if err := os.Symlink(link.oldName, link.newName); err != nil {
				return fmt.Errorf("error creating symlink from %s to %s: %w", link.oldName, link.newName, err)
			}
		default:
			return fmt.Errorf("unsupported link type %s", string(link.linkType))
		}
	}
	return nil
}

// safeJoin joins name onto destDir, refusing names that escape it.
func safeJoin(destDir, name string) (string, error) {
	if name == "" {
		return "", ErrEmptyHeaderName
	}
	destAbs, err := filepath.Abs(destDir)
	if err != nil {
		return "", fmt.Errorf("error getting absolute path of %s: %w", destDir, err)
	}
	target := filepath.Join(destAbs, name)
	if target != destAbs && !strings.HasPrefix(target, destAbs+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: `%s` outside of `%s`", ErrZipSlip, target, destAbs)
	}
	return target, nil
}

func cleanFileMode(mode os.FileMode) os.FileMode {
	return mode &^ (os.ModeSticky | os.ModeSetuid | os.ModeSetgid)
}
