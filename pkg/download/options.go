package download

import (
	"runtime"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/semaphore"

	"github.com/replicate/splitget/pkg/client"
)

const (
	defaultSplitThreshold = 1 * humanize.MiByte
	defaultBufferSize     = 32 * humanize.KiByte
)

type Options struct {
	// Number of connections each download starts with. If set to zero,
	// GOMAXPROCS*4 will be used.
	Concurrency int

	// A chunk in flight is only split when more than this many bytes of it
	// are left. If set to zero, 1 MiB will be used.
	SplitThreshold int64

	// Size of the read buffer of each connection. If set to zero, 32 KiB
	// will be used.
	BufferSize int

	Client client.Options

	// Semaphore, if set, bounds the number of requests in flight across
	// every download sharing it.
	Semaphore *semaphore.Weighted
}

func (o Options) concurrency() int {
	if o.Concurrency <= 0 {
		return runtime.GOMAXPROCS(0) * 4
	}
	return o.Concurrency
}

func (o Options) splitThreshold() int64 {
	if o.SplitThreshold <= 0 {
		return defaultSplitThreshold
	}
	return o.SplitThreshold
}

func (o Options) bufferSize() int {
	if o.BufferSize <= 0 {
		return defaultBufferSize
	}
	return o.BufferSize
}
