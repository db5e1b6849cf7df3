package chunk

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ID addresses a Node within its Tree. IDs are stable for the life of the tree.
type ID int

const None ID = -1

var (
	ErrTooSmall     = errors.New("chunk: not enough remaining bytes to split")
	ErrAlreadySplit = errors.New("chunk: node already split")
	ErrUnknownNode  = errors.New("chunk: unknown node")
)

// Node is one contiguous, inclusive byte range of the target file. A node is a
// leaf until it is split; once split it never downloads again and its
// downloaded count stays at the value it had when it was split.
//
// downloaded is only advanced by the node's own worker, via Reserve and Commit.
// Anyone may read it.
type Node struct {
	id    ID
	start int64
	end   int64

	downloaded atomic.Int64
	children   atomic.Pointer[[2]ID]

	// mu orders the worker's reservations against a concurrent split.
	mu       sync.Mutex
	reserved int64
	frozen   bool
}

func newNode(id ID, start, end int64) *Node {
	return &Node{id: id, start: start, end: end}
}

func (n *Node) ID() ID       { return n.id }
func (n *Node) Start() int64 { return n.start }
func (n *Node) End() int64   { return n.end }
func (n *Node) Size() int64  { return n.end - n.start + 1 }

// Downloaded returns the number of bytes of this node's span that have been
// written to the output.
func (n *Node) Downloaded() int64 {
	return n.downloaded.Load()
}

// Remaining returns the bytes of the span that are neither written nor
// currently being written by the node's worker.
func (n *Node) Remaining() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Size() - n.downloaded.Load() - n.reserved
}

func (n *Node) HasChildren() bool {
	return n.children.Load() != nil
}

// Children returns the IDs of the node's children, or None twice for a leaf.
func (n *Node) Children() (left, right ID) {
	c := n.children.Load()
	if c == nil {
		return None, None
	}
	return c[0], c[1]
}

// Reserve claims up to want bytes of the span for a positioned write. It
// returns the absolute file offset to write at and the number of bytes
// granted. ok is false when the node has been split or its span is exhausted,
// in which case the worker must stop without writing.
//
// Every successful Reserve must be followed by Commit once the write landed.
func (n *Node) Reserve(want int64) (offset int64, granted int64, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.frozen || n.reserved != 0 {
		return 0, 0, false
	}
	done := n.downloaded.Load()
	left := n.Size() - done
	if left <= 0 || want <= 0 {
		return 0, 0, false
	}
	granted = min(want, left)
	n.reserved = granted
	return n.start + done, granted, true
}

// Commit publishes the bytes claimed by the last Reserve as downloaded.
func (n *Node) Commit() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.downloaded.Add(n.reserved)
	n.reserved = 0
}

// freeze stops further reservations and returns the first byte not claimed by
// the node's worker. In-flight bytes stay with this node.
func (n *Node) freeze() (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.frozen {
		return 0, ErrAlreadySplit
	}
	splitStart := n.start + n.downloaded.Load() + n.reserved
	if n.end-splitStart+1 < 2 {
		return 0, ErrTooSmall
	}
	n.frozen = true
	return splitStart, nil
}

func (n *Node) String() string {
	return fmt.Sprintf("%d-%d", n.start, n.end)
}
