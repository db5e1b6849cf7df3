package store

import "io"

// Output receives positioned writes from many workers at once. Writers
// always target disjoint ranges so implementations need no locking of their
// own beyond what io.WriterAt already promises.
type Output interface {
	io.WriterAt
	io.Closer
}

type Store interface {
	// Allocate creates dest with exactly size bytes so every positioned write
	// of the download lands inside the file.
	Allocate(dest string, size int64) (Output, error)
	// EnableOverwrite allows Allocate to replace an existing file
	EnableOverwrite()
}

// Finalizer is implemented by outputs that need a last step once every byte
// of a download has been written. It is not called for failed downloads.
type Finalizer interface {
	Finalize() error
}
