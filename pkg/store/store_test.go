package store

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kB = 1024

func TestFileStore_Allocate(t *testing.T) {
	r := require.New(t)
	dest := filepath.Join(t.TempDir(), "nested", "out.bin")

	fileStore := FileStore{}
	out, err := fileStore.Allocate(dest, 4*kB)
	r.NoError(err)

	info, err := os.Stat(dest)
	r.NoError(err)
	r.Equal(int64(4*kB), info.Size())

	// concurrent positioned writes into disjoint ranges
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			block := make([]byte, kB)
			for j := range block {
				block[j] = byte(i)
			}
			_, err := out.WriteAt(block, int64(i*kB))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	r.NoError(out.Close())

	content, err := os.ReadFile(dest)
	r.NoError(err)
	r.Len(content, 4*kB)
	for i := 0; i < 4; i++ {
		r.Equal(byte(i), content[i*kB])
		r.Equal(byte(i), content[(i+1)*kB-1])
	}

	// an existing destination is refused unless overwrite is enabled
	_, err = fileStore.Allocate(dest, kB)
	r.Error(err)

	fileStore.EnableOverwrite()
	out, err = fileStore.Allocate(dest, kB)
	r.NoError(err)
	r.NoError(out.Close())

	content, err = os.ReadFile(dest)
	r.NoError(err)
	r.Equal(make([]byte, kB), content, "overwrite truncates old content")
}

func TestFileStore_AllocateEmpty(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "empty")
	out, err := (&FileStore{}).Allocate(dest, 0)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestNullStore(t *testing.T) {
	out, err := NullStore{}.Allocate("ignored", kB)
	require.NoError(t, err)
	defer out.Close()

	n, err := out.WriteAt(make([]byte, 100), kB-100)
	assert.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, int64(100), out.(*nullOutput).written.Load())

	_, err = out.WriteAt(make([]byte, 2), kB-1)
	assert.Error(t, err)
}

func tarball(t *testing.T, name, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(body))}))
	_, err := tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestArchiveStore(t *testing.T) {
	archive := tarball(t, "weights.bin", "0123456789")
	parent := t.TempDir()
	dest := filepath.Join(parent, "model")

	out, err := (&ArchiveStore{}).Allocate(dest, int64(len(archive)))
	require.NoError(t, err)

	// write the archive back to front, like chunks landing out of order
	half := len(archive) / 2
	_, err = out.WriteAt(archive[half:], int64(half))
	require.NoError(t, err)
	_, err = out.WriteAt(archive[:half], 0)
	require.NoError(t, err)

	finalizer, ok := out.(Finalizer)
	require.True(t, ok)
	require.NoError(t, finalizer.Finalize())
	require.NoError(t, out.Close())

	content, err := os.ReadFile(filepath.Join(dest, "weights.bin"))
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(content))

	// only the extracted directory is left behind
	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "model", entries[0].Name())
}

func TestArchiveStoreCloseWithoutFinalize(t *testing.T) {
	parent := t.TempDir()
	out, err := (&ArchiveStore{}).Allocate(filepath.Join(parent, "model"), kB)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
