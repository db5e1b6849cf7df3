package root

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFS = fstest.MapFS{
	"hello.txt": {Data: []byte("hello, world!")},
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := GetCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootDownloadsFile(t *testing.T) {
	ts := httptest.NewServer(http.FileServer(http.FS(testFS)))
	defer ts.Close()
	dest := filepath.Join(t.TempDir(), "hello.txt")

	out, err := runRoot(t, ts.URL+"/hello.txt", dest, "3", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Downloaded 13 B in ")

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, testFS["hello.txt"].Data, content)
	assert.Equal(t, 3, viper.GetInt("concurrency"))
}

func TestRootRejectsBadConnectionCount(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "hello.txt")
	for _, arg := range []string{"0", "many"} {
		_, err := runRoot(t, "http://example.com/hello.txt", dest, arg, "--log-level", "error")
		assert.ErrorContains(t, err, "invalid connection count", arg)
	}
}

func TestRootRefusesExistingDestination(t *testing.T) {
	ts := httptest.NewServer(http.FileServer(http.FS(testFS)))
	defer ts.Close()
	dest := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(dest, []byte("keep"), 0644))

	_, err := runRoot(t, ts.URL+"/hello.txt", dest, "--log-level", "error")
	assert.ErrorContains(t, err, "already exists")

	_, err = runRoot(t, ts.URL+"/hello.txt", dest, "--force", "--log-level", "error")
	require.NoError(t, err)
	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, testFS["hello.txt"].Data, content)
}

func TestRootNullOutput(t *testing.T) {
	ts := httptest.NewServer(http.FileServer(http.FS(testFS)))
	defer ts.Close()
	dest := filepath.Join(t.TempDir(), "hello.txt")

	_, err := runRoot(t, ts.URL+"/hello.txt", dest, "-o", "null", "--log-level", "error")
	require.NoError(t, err)
	assert.NoFileExists(t, dest)
}
