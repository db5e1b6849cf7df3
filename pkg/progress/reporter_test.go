package progress

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicate/splitget/pkg/chunk"
)

func advance(t *testing.T, n *chunk.Node, bytes int64) {
	t.Helper()
	_, granted, ok := n.Reserve(bytes)
	require.True(t, ok)
	require.Equal(t, bytes, granted)
	n.Commit()
}

func TestSnapshot(t *testing.T) {
	tree := chunk.NewTree(1000, 2)
	roots := tree.Roots()
	advance(t, roots[0], 100)
	left, right, err := tree.Split(roots[0].ID())
	require.NoError(t, err)
	advance(t, left, 50)
	advance(t, right, 25)
	advance(t, roots[1], 500)

	snap := Snapshot(tree)
	require.Len(t, snap, 2)
	assert.Equal(t, RootProgress{Start: 0, End: 499, Downloaded: 175}, snap[0])
	assert.Equal(t, RootProgress{Start: 500, End: 999, Downloaded: 500}, snap[1])
}

// syncBuffer lets the test read what the reporter goroutine writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestReporterRendersBar(t *testing.T) {
	tree := chunk.NewTree(4096, 1)
	out := &syncBuffer{}
	r := NewReporter(tree, out, "file.bin")
	r.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	advance(t, tree.Roots()[0], 4096)
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	assert.Contains(t, out.String(), "file.bin")
}

func TestReporterLogsProgress(t *testing.T) {
	tree := chunk.NewTree(2048, 2)
	advance(t, tree.Roots()[1], 1024)

	logs := &syncBuffer{}
	r := NewReporter(tree, nil, "").WithLogger(zerolog.New(logs).Level(zerolog.DebugLevel))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	assert.Contains(t, logs.String(), `"message":"Progress"`)
	assert.Contains(t, logs.String(), `"chunks":2`)
	assert.Contains(t, logs.String(), "1024-2047:1.0 kB")
}
