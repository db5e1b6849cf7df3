package chunk_test

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicate/splitget/pkg/chunk"
)

type partitionTestCase struct {
	number   int64
	parts    int
	expected []int64
}

var partitionTestCases = []partitionTestCase{
	{
		number:   5,
		parts:    1,
		expected: []int64{5},
	},
	{
		number:   5,
		parts:    5,
		expected: []int64{1, 1, 1, 1, 1},
	},
	{
		number:   32,
		parts:    3,
		expected: []int64{10, 10, 12},
	},
	{
		number:   32,
		parts:    5,
		expected: []int64{6, 6, 6, 6, 8},
	},
	{
		number:   3,
		parts:    8,
		expected: []int64{1, 1, 1},
	},
	{
		number:   0,
		parts:    4,
		expected: nil,
	},
	{
		number:   10_485_760,
		parts:    4,
		expected: []int64{2_621_440, 2_621_440, 2_621_440, 2_621_440},
	},
}

func TestPartitionSizes(t *testing.T) {
	for _, testCase := range partitionTestCases {
		actual := chunk.PartitionSizes(testCase.number, testCase.parts)
		assert.Equal(t, testCase.expected, actual)
	}
}

// assertCoverage checks that the leaves plus the frozen prefixes of internal
// nodes tile [0, size-1] with no gaps and no overlaps.
func assertCoverage(t *testing.T, tree *chunk.Tree) {
	t.Helper()
	type span struct{ start, end int64 }
	var spans []span
	for n := range tree.All() {
		if !n.HasChildren() {
			spans = append(spans, span{n.Start(), n.End()})
			continue
		}
		if n.Downloaded() > 0 {
			spans = append(spans, span{n.Start(), n.Start() + n.Downloaded() - 1})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var next int64
	for _, s := range spans {
		require.Equal(t, next, s.start, "gap or overlap at %d", next)
		require.GreaterOrEqual(t, s.end, s.start)
		next = s.end + 1
	}
	assert.Equal(t, tree.Size(), next)
}

func assertProgressBound(t *testing.T, tree *chunk.Tree) {
	t.Helper()
	for n := range tree.All() {
		assert.GreaterOrEqual(t, n.Downloaded(), int64(0))
		assert.LessOrEqual(t, n.Downloaded(), n.Size())
	}
}

// advance simulates a worker writing n bytes into node.
func advance(t *testing.T, node *chunk.Node, n int64) {
	t.Helper()
	_, granted, ok := node.Reserve(n)
	require.True(t, ok)
	require.Equal(t, n, granted)
	node.Commit()
}

func TestNewTreeRoots(t *testing.T) {
	tree := chunk.NewTree(10_485_760, 4)
	roots := tree.Roots()
	require.Len(t, roots, 4)
	for i, root := range roots {
		assert.Equal(t, int64(2_621_440), root.Size())
		assert.Equal(t, int64(i)*2_621_440, root.Start())
		assert.False(t, root.HasChildren())
	}
	assertCoverage(t, tree)
}

func TestNewTreeEmptyFile(t *testing.T) {
	tree := chunk.NewTree(0, 4)
	assert.Empty(t, tree.Roots())
	assert.Equal(t, 0, tree.Len())
}

func TestSplitResumesAfterDownloadedPrefix(t *testing.T) {
	tree := chunk.NewTree(1_000_000, 1)
	parent := tree.Roots()[0]
	advance(t, parent, 300_000)

	left, right, err := tree.Split(parent.ID())
	require.NoError(t, err)

	assert.Equal(t, parent.Start()+300_000, left.Start())
	assert.Equal(t, parent.End(), right.End())
	assert.Equal(t, left.End()+1, right.Start())
	assert.Equal(t, parent.Size()-300_000, left.Size()+right.Size())
	assert.Equal(t, int64(350_000), left.Size())
	assert.Equal(t, int64(350_000), right.Size())

	l, r := parent.Children()
	assert.Equal(t, left.ID(), l)
	assert.Equal(t, right.ID(), r)
	assertCoverage(t, tree)
}

func TestSplitKeepsInFlightBytesWithVictim(t *testing.T) {
	tree := chunk.NewTree(100, 1)
	parent := tree.Roots()[0]
	advance(t, parent, 10)

	offset, granted, ok := parent.Reserve(20)
	require.True(t, ok)
	assert.Equal(t, int64(10), offset)
	assert.Equal(t, int64(20), granted)

	left, right, err := tree.Split(parent.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(30), left.Start())
	assert.Equal(t, int64(99), right.End())

	// the victim finishes its buffer but may not claim more
	parent.Commit()
	assert.Equal(t, int64(30), parent.Downloaded())
	_, _, ok = parent.Reserve(1)
	assert.False(t, ok)
	assertCoverage(t, tree)
}

func TestSplitOddRemainder(t *testing.T) {
	tree := chunk.NewTree(7, 1)
	left, right, err := tree.Split(tree.Roots()[0].ID())
	require.NoError(t, err)
	assert.Equal(t, int64(0), left.Start())
	assert.Equal(t, int64(3), left.End())
	assert.Equal(t, int64(4), right.Start())
	assert.Equal(t, int64(6), right.End())
}

func TestSplitErrors(t *testing.T) {
	tree := chunk.NewTree(10, 1)
	root := tree.Roots()[0]
	advance(t, root, 9)

	_, _, err := tree.Split(root.ID())
	assert.ErrorIs(t, err, chunk.ErrTooSmall)
	assert.False(t, root.HasChildren())

	// a failed split leaves the worker free to finish
	advance(t, root, 1)
	assert.Equal(t, int64(0), root.Remaining())

	_, _, err = tree.Split(chunk.ID(42))
	assert.ErrorIs(t, err, chunk.ErrUnknownNode)

	tree = chunk.NewTree(10, 1)
	root = tree.Roots()[0]
	_, _, err = tree.Split(root.ID())
	require.NoError(t, err)
	_, _, err = tree.Split(root.ID())
	assert.ErrorIs(t, err, chunk.ErrAlreadySplit)
}

func TestReserveNeverExceedsSpan(t *testing.T) {
	tree := chunk.NewTree(10, 1)
	root := tree.Roots()[0]
	offset, granted, ok := root.Reserve(64)
	require.True(t, ok)
	assert.Equal(t, int64(0), offset)
	assert.Equal(t, int64(10), granted)

	// only one reservation may be outstanding
	_, _, ok = root.Reserve(1)
	assert.False(t, ok)

	root.Commit()
	_, _, ok = root.Reserve(1)
	assert.False(t, ok)
	assertProgressBound(t, tree)
}

func TestWalkDepthFirst(t *testing.T) {
	tree := chunk.NewTree(100, 2)
	roots := tree.Roots()
	left, _, err := tree.Split(roots[0].ID())
	require.NoError(t, err)
	_, _, err = tree.Split(left.ID())
	require.NoError(t, err)

	var got []string
	var depths []int
	for n, depth := range tree.Walk(roots[0]) {
		got = append(got, n.String())
		depths = append(depths, depth)
	}
	assert.Equal(t, []string{"0-49", "0-24", "0-12", "13-24", "25-49"}, got)
	assert.Equal(t, []int{0, 1, 2, 2, 1}, depths)

	var leaves []string
	for n := range tree.Leaves() {
		leaves = append(leaves, n.String())
	}
	assert.Equal(t, []string{"0-12", "13-24", "25-49", "50-99"}, leaves)

	// stopping early is honored
	count := 0
	for range tree.All() {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
	assertCoverage(t, tree)
}

func TestDownloadedAggregatesFrozenPrefixes(t *testing.T) {
	tree := chunk.NewTree(1000, 1)
	root := tree.Roots()[0]
	advance(t, root, 100)
	left, right, err := tree.Split(root.ID())
	require.NoError(t, err)
	advance(t, left, left.Size())
	advance(t, right, right.Size())

	assert.Equal(t, int64(1000), tree.Downloaded(root))
	assert.Equal(t, int64(1000), tree.TotalDownloaded())
	assertCoverage(t, tree)
	assertProgressBound(t, tree)
}

func TestConcurrentReadsDuringSplits(t *testing.T) {
	tree := chunk.NewTree(1<<20, 4)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = tree.TotalDownloaded()
				for range tree.Leaves() {
				}
			}
		}
	}()

	queue := tree.Roots()
	for i := 0; i < 200 && len(queue) > 0; i++ {
		n := queue[0]
		queue = queue[1:]
		left, right, err := tree.Split(n.ID())
		if err != nil {
			continue
		}
		queue = append(queue, left, right)
	}
	close(stop)
	wg.Wait()
	assertCoverage(t, tree)
}
