package download

import (
	"io"

	"github.com/replicate/splitget/pkg/chunk"
	"github.com/replicate/splitget/pkg/client"
)

// NewFileScheduler lays out a chunk tree for a file of probe.Size bytes and
// returns a scheduler whose workers fetch probe.URL into out.
func NewFileScheduler(c client.Doer, probe Probe, out io.WriterAt, opts Options) *Scheduler {
	tree := chunk.NewTree(probe.Size, opts.concurrency())
	fetcher := &HTTPFetcher{
		Client:     c,
		URL:        probe.URL,
		Output:     out,
		BufferSize: opts.bufferSize(),
		Semaphore:  opts.Semaphore,
	}
	return NewScheduler(tree, fetcher, opts.splitThreshold())
}
