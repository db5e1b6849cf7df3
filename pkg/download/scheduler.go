package download

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/replicate/splitget/pkg/chunk"
	"github.com/replicate/splitget/pkg/logging"
)

// Scheduler keeps one worker per active leaf of a chunk tree. Whenever a
// worker finishes, the scheduler looks for the biggest chunk still in flight
// and splits its unfetched remainder in two, so the connection that just
// freed up is put back to work.
type Scheduler struct {
	tree      *chunk.Tree
	fetcher   RangeFetcher
	threshold int64
	logger    zerolog.Logger

	// mu guards everything below. It is never held across network or disk
	// I/O.
	mu      sync.Mutex
	active  map[chunk.ID]context.CancelFunc
	group   *errgroup.Group
	ctx     context.Context
	started bool
	splits  int
	peak    int
}

// NewScheduler returns a scheduler for tree. Chunks with threshold or fewer
// bytes left are never split; a threshold below 1 is raised to 1.
func NewScheduler(tree *chunk.Tree, fetcher RangeFetcher, threshold int64) *Scheduler {
	return &Scheduler{
		tree:      tree,
		fetcher:   fetcher,
		threshold: max(threshold, 1),
		logger:    logging.GetLogger(),
		active:    make(map[chunk.ID]context.CancelFunc),
	}
}

// WithLogger sets the logger split decisions are reported to. An
// *HTTPFetcher without a logger of its own logs there too.
func (s *Scheduler) WithLogger(logger zerolog.Logger) *Scheduler {
	s.logger = logger
	if f, ok := s.fetcher.(*HTTPFetcher); ok && f.Logger == nil {
		f.Logger = &logger
	}
	return s
}

// Roots returns the tree's root chunks in file order, for progress reporting.
func (s *Scheduler) Roots() []*chunk.Node {
	return s.tree.Roots()
}

func (s *Scheduler) Tree() *chunk.Tree {
	return s.tree
}

// Start fetches every root concurrently and blocks until every worker,
// including the ones spawned by splits, has returned. The first worker error
// cancels all other workers and is returned as a *ChunkError. Canceling ctx
// aborts the session and returns ctx's error.
func (s *Scheduler) Start(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.group, s.ctx = group, groupCtx
	for _, root := range s.tree.Roots() {
		s.launch(root)
	}
	s.mu.Unlock()

	if err := group.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if downloaded := s.tree.TotalDownloaded(); downloaded != s.tree.Size() {
		return fmt.Errorf("%w: %d of %d bytes", ErrIncomplete, downloaded, s.tree.Size())
	}
	return nil
}

// Splits returns how many times a chunk in flight has been split.
func (s *Scheduler) Splits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.splits
}

// PeakConnections returns the largest number of chunks that were in flight at once.
func (s *Scheduler) PeakConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// launch registers node as active and starts its worker. Callers hold s.mu.
func (s *Scheduler) launch(node *chunk.Node) {
	leafCtx, cancel := context.WithCancel(s.ctx)
	s.active[node.ID()] = cancel
	s.peak = max(s.peak, len(s.active))

	s.group.Go(func() error {
		err := s.fetcher.FetchRange(leafCtx, node)
		if err != nil && leafCtx.Err() != nil && errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			s.retire(node)
			return &ChunkError{Start: node.Start(), End: node.End(), Err: err}
		}
		s.complete(node)
		return nil
	})
}

func (s *Scheduler) retire(node *chunk.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.active[node.ID()]; ok {
		cancel()
		delete(s.active, node.ID())
	}
}

// complete is run by every worker once its fetch has returned.
func (s *Scheduler) complete(node *chunk.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.active[node.ID()]; ok {
		cancel()
		delete(s.active, node.ID())
	}
	s.logger.Trace().Str("chunk", node.String()).Int64("downloaded", node.Downloaded()).Msg("Chunk complete")

	// this node was split while its worker was winding down; its children
	// already have workers
	if node.HasChildren() {
		return
	}
	// the session is being torn down, nothing new may start
	if s.ctx.Err() != nil {
		return
	}

	var skipped []chunk.ID
	for {
		victim := s.selectVictim(skipped...)
		if victim == nil {
			s.logger.Debug().Int("active", len(s.active)).Msg("Retired")
			return
		}
		left, right, err := s.tree.Split(victim.ID())
		if err != nil {
			// the victim's worker claimed the rest of its span after we looked
			s.logger.Debug().Err(err).Str("chunk", victim.String()).Msg("Split skipped")
			skipped = append(skipped, victim.ID())
			continue
		}
		s.split(victim, left, right)
		return
	}
}

// split hands the victim's remainder to two new workers. Callers hold s.mu.
func (s *Scheduler) split(victim, left, right *chunk.Node) {
	// the victim is frozen now, canceling only interrupts its read early
	s.active[victim.ID()]()
	delete(s.active, victim.ID())
	s.splits++

	s.logger.Debug().
		Str("victim", victim.String()).
		Int64("victim_downloaded", victim.Downloaded()).
		Str("left", left.String()).
		Str("right", right.String()).
		Int("active", len(s.active)+2).
		Msg("Split")

	s.launch(left)
	s.launch(right)
}

// selectVictim returns the largest active chunk that still has more than
// threshold bytes left, or nil. Chunks in skip are passed over. Callers hold
// s.mu.
func (s *Scheduler) selectVictim(skip ...chunk.ID) *chunk.Node {
	var victim *chunk.Node
	for id := range s.active {
		if slices.Contains(skip, id) {
			continue
		}
		n := s.tree.Node(id)
		if n == nil || n.HasChildren() {
			continue
		}
		if n.Remaining() <= s.threshold {
			continue
		}
		// prefer fragmenting big spans over ones that are already small
		if victim == nil || n.Size() > victim.Size() {
			victim = n
		}
	}
	return victim
}
