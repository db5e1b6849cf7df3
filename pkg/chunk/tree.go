package chunk

import (
	"iter"
	"sync"
)

// Tree is an append-only arena of nodes. The roots partition the file; every
// split attaches two children to a leaf. Nodes are never removed.
//
// Split must be serialized by the caller. Reads (Node, Roots, Walk,
// Downloaded) are safe concurrently with a split.
type Tree struct {
	mu    sync.RWMutex
	nodes []*Node
	roots []ID
	size  int64
}

// NewTree partitions totalSize bytes into parallelism root leaves. When the
// file has fewer bytes than requested roots, one root per byte is created; an
// empty file has no roots.
func NewTree(totalSize int64, parallelism int) *Tree {
	return FromSizes(PartitionSizes(totalSize, parallelism)...)
}

// FromSizes returns a tree with one contiguous root per size, in order.
func FromSizes(sizes ...int64) *Tree {
	t := &Tree{}
	for _, size := range sizes {
		if size <= 0 {
			continue
		}
		id := ID(len(t.nodes))
		t.nodes = append(t.nodes, newNode(id, t.size, t.size+size-1))
		t.roots = append(t.roots, id)
		t.size += size
	}
	return t
}

// PartitionSizes splits number into parts spans of number/parts bytes, with
// the last span absorbing the remainder.
func PartitionSizes(number int64, parts int) []int64 {
	if number <= 0 || parts <= 0 {
		return nil
	}
	if int64(parts) > number {
		parts = int(number)
	}
	output := make([]int64, parts)
	avg := number / int64(parts)
	for i := 0; i < parts-1; i++ {
		output[i] = avg
	}
	output[parts-1] = number - avg*int64(parts-1)
	return output
}

// Size is the total number of bytes covered by the roots.
func (t *Tree) Size() int64 {
	return t.size
}

func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

func (t *Tree) Node(id ID) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Roots returns the root nodes in file order. The list never changes.
func (t *Tree) Roots() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	roots := make([]*Node, len(t.roots))
	for i, id := range t.roots {
		roots[i] = t.nodes[id]
	}
	return roots
}

// Split turns the leaf id into an internal node with two children covering
// its unclaimed remainder, halved at the midpoint of that remainder.
func (t *Tree) Split(id ID) (left, right *Node, err error) {
	n := t.Node(id)
	if n == nil {
		return nil, nil, ErrUnknownNode
	}
	if n.HasChildren() {
		return nil, nil, ErrAlreadySplit
	}
	splitStart, err := n.freeze()
	if err != nil {
		return nil, nil, err
	}
	mid := splitStart + (n.end-splitStart)/2

	t.mu.Lock()
	leftID := ID(len(t.nodes))
	left = newNode(leftID, splitStart, mid)
	right = newNode(leftID+1, mid+1, n.end)
	t.nodes = append(t.nodes, left, right)
	t.mu.Unlock()

	n.children.Store(&[2]ID{left.id, right.id})
	return left, right, nil
}

// Walk yields every node below and including root in depth-first order,
// along with its depth relative to root.
func (t *Tree) Walk(root *Node) iter.Seq2[*Node, int] {
	return func(yield func(*Node, int) bool) {
		t.walk(root, 0, yield)
	}
}

func (t *Tree) walk(n *Node, depth int, yield func(*Node, int) bool) bool {
	if n == nil {
		return true
	}
	if !yield(n, depth) {
		return false
	}
	left, right := n.Children()
	if left == None {
		return true
	}
	return t.walk(t.Node(left), depth+1, yield) && t.walk(t.Node(right), depth+1, yield)
}

// All yields every node reachable from the roots.
func (t *Tree) All() iter.Seq2[*Node, int] {
	return func(yield func(*Node, int) bool) {
		for _, root := range t.Roots() {
			if !t.walk(root, 0, yield) {
				return
			}
		}
	}
}

// Leaves yields the nodes reachable from the roots that have not been split.
func (t *Tree) Leaves() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for n := range t.All() {
			if n.HasChildren() {
				continue
			}
			if !yield(n) {
				return
			}
		}
	}
}

// Downloaded sums the bytes written under root: the frozen prefix of every
// internal node plus the progress of every leaf.
func (t *Tree) Downloaded(root *Node) int64 {
	var total int64
	for n := range t.Walk(root) {
		total += n.Downloaded()
	}
	return total
}

// TotalDownloaded is Downloaded summed over all roots.
func (t *Tree) TotalDownloaded() int64 {
	var total int64
	for n := range t.All() {
		total += n.Downloaded()
	}
	return total
}
