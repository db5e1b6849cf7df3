package store

import "sync/atomic"

// NullStore discards everything written to it. It is used to measure the network side of a download.
type NullStore struct{}

var _ Store = &NullStore{}

func (NullStore) Allocate(_ string, size int64) (Output, error) {
	return &nullOutput{size: size}, nil
}

func (NullStore) EnableOverwrite() {}

type nullOutput struct {
	size    int64
	written atomic.Int64
}

func (n *nullOutput) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > n.size {
		return 0, errOutOfBounds(off, len(p), n.size)
	}
	n.written.Add(int64(len(p)))
	return len(p), nil
}

func (n *nullOutput) Close() error {
	return nil
}
