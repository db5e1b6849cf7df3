package splitget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/replicate/splitget/pkg/client"
	"github.com/replicate/splitget/pkg/download"
	"github.com/replicate/splitget/pkg/logging"
	"github.com/replicate/splitget/pkg/progress"
	"github.com/replicate/splitget/pkg/store"
)

type Getter struct {
	Options download.Options
	Store   store.Store
	// Client is used for every request. If nil, one is built from
	// Options.Client.
	Client client.Doer
	// ProgressWriter receives a progress bar per download when set.
	ProgressWriter io.Writer
	// MaxConcurrentFiles bounds DownloadFiles. Zero means no limit.
	MaxConcurrentFiles int
}

func (g *Getter) DownloadFile(ctx context.Context, url string, dest string) (int64, time.Duration, error) {
	return g.downloadFile(ctx, g.client(), url, dest)
}

// DownloadFiles downloads every entry of manifest concurrently, each with its
// own scheduler. The first failure cancels the remaining downloads.
func (g *Getter) DownloadFiles(ctx context.Context, manifest Manifest) (int64, time.Duration, error) {
	logger := logging.GetLogger()
	c := g.client()
	start := time.Now()

	eg, ctx := errgroup.WithContext(ctx)
	if g.MaxConcurrentFiles > 0 {
		logger.Debug().Int("concurrent_file_limit", g.MaxConcurrentFiles).Msg("Config")
		eg.SetLimit(g.MaxConcurrentFiles)
	}

	var totalSize atomic.Int64
	for host, entries := range manifest {
		logger.Debug().Str("host", host).Int("files", len(entries)).Msg("Queueing Downloads")
		for _, entry := range entries {
			eg.Go(func() error {
				size, _, err := g.downloadFile(ctx, c, entry.URL, entry.Dest)
				if err != nil {
					return err
				}
				totalSize.Add(size)
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return totalSize.Load(), 0, fmt.Errorf("error downloading files: %w", err)
	}
	return totalSize.Load(), time.Since(start), nil
}

func (g *Getter) downloadFile(ctx context.Context, c client.Doer, url, dest string) (int64, time.Duration, error) {
	logger := logging.WithDownload(uuid.New().String())
	start := time.Now()

	logger.Info().Str("url", url).Str("dest", dest).Msg("Initiating")

	probe, err := download.NewProber(c).WithLogger(logger).ProbeSize(ctx, url)
	if err != nil {
		return -1, 0, err
	}

	out, err := g.store().Allocate(dest, probe.Size)
	if err != nil {
		return probe.Size, 0, err
	}

	scheduler := download.NewFileScheduler(c, probe, out, g.Options).WithLogger(logger)
	tree := scheduler.Tree()
	logger.Info().
		Str("url", probe.URL).
		Str("size", humanize.Bytes(uint64(probe.Size))).
		Int("connections", len(tree.Roots())).
		Msg("Downloading")

	var reporting sync.WaitGroup
	reportCtx, stopReporting := context.WithCancel(ctx)
	if probe.Size > 0 {
		reporter := progress.NewReporter(tree, g.ProgressWriter, dest).WithLogger(logger)
		reporting.Add(1)
		go func() {
			defer reporting.Done()
			reporter.Run(reportCtx)
		}()
	}

	err = scheduler.Start(ctx)
	stopReporting()
	reporting.Wait()
	if finalizer, ok := out.(store.Finalizer); ok && err == nil {
		err = finalizer.Finalize()
	}
	if closeErr := out.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("error closing %s: %w", dest, closeErr))
	}
	if err != nil {
		return probe.Size, 0, err
	}

	elapsed := time.Since(start)
	throughput := humanize.Bytes(uint64(float64(probe.Size) / elapsed.Seconds()))
	logger.Info().
		Str("dest", dest).
		Str("size", humanize.Bytes(uint64(probe.Size))).
		Str("throughput", fmt.Sprintf("%s/s", throughput)).
		Str("elapsed", fmt.Sprintf("%.3fs", elapsed.Seconds())).
		Int("splits", scheduler.Splits()).
		Int("peak_connections", scheduler.PeakConnections()).
		Msg("Complete")
	return probe.Size, elapsed, nil
}

func (g *Getter) client() client.Doer {
	if g.Client != nil {
		return g.Client
	}
	return client.NewHTTPClient(g.Options.Client)
}

func (g *Getter) store() store.Store {
	if g.Store != nil {
		return g.Store
	}
	return &store.FileStore{}
}
