package progress

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/replicate/splitget/pkg/chunk"
	"github.com/replicate/splitget/pkg/logging"
)

const defaultInterval = 500 * time.Millisecond

// RootProgress is the aggregated progress of one root chunk and everything
// split off from it.
type RootProgress struct {
	Start      int64
	End        int64
	Downloaded int64
}

func (r RootProgress) String() string {
	return fmt.Sprintf("%d-%d:%s", r.Start, r.End, humanize.Bytes(uint64(r.Downloaded)))
}

// Snapshot reads the progress of every root of tree. It only loads counters
// and is safe to call while the download is running.
func Snapshot(tree *chunk.Tree) []RootProgress {
	roots := tree.Roots()
	out := make([]RootProgress, 0, len(roots))
	for _, root := range roots {
		out = append(out, RootProgress{
			Start:      root.Start(),
			End:        root.End(),
			Downloaded: tree.Downloaded(root),
		})
	}
	return out
}

// Reporter polls a chunk tree and reports how far the download got, to a
// progress bar and to the debug log.
type Reporter struct {
	Interval time.Duration

	tree   *chunk.Tree
	bar    *progressbar.ProgressBar
	logger zerolog.Logger
}

// NewReporter returns a reporter for tree. A progress bar is drawn to w
// unless w is nil.
func NewReporter(tree *chunk.Tree, w io.Writer, description string) *Reporter {
	r := &Reporter{
		Interval: defaultInterval,
		tree:     tree,
		logger:   logging.GetLogger(),
	}
	if w != nil {
		r.bar = progressbar.NewOptions64(
			tree.Size(),
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowBytes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				_, _ = fmt.Fprintln(w)
			}),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	return r
}

func (r *Reporter) WithLogger(logger zerolog.Logger) *Reporter {
	r.logger = logger
	return r
}

// Run reports progress every Interval until ctx is done, then reports once
// more. The bar is only completed when every byte has been downloaded.
func (r *Reporter) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.report()
			if r.bar != nil && r.tree.TotalDownloaded() == r.tree.Size() {
				_ = r.bar.Finish()
			}
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	total := r.tree.TotalDownloaded()
	if r.bar != nil {
		_ = r.bar.Set64(total)
	}
	if e := r.logger.Debug(); e.Enabled() {
		roots := Snapshot(r.tree)
		perRoot := make([]string, len(roots))
		for i, root := range roots {
			perRoot[i] = root.String()
		}
		e.Str("downloaded", humanize.Bytes(uint64(total))).
			Int("chunks", r.tree.Len()).
			Strs("roots", perRoot).
			Msg("Progress")
	}
}
