package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/replicate/splitget/pkg/chunk"
	"github.com/replicate/splitget/pkg/client"
	"github.com/replicate/splitget/pkg/logging"
)

// RangeFetcher downloads the span of a single leaf. Implementations must
// advance node progress through Reserve/Commit as bytes land, and must return
// nil, not an error, when ctx is canceled or the node is split underneath
// them.
type RangeFetcher interface {
	FetchRange(ctx context.Context, node *chunk.Node) error
}

// HTTPFetcher fetches a span with one ranged GET and writes it into Output
// at the span's offset.
type HTTPFetcher struct {
	Client     client.Doer
	URL        string
	Output     io.WriterAt
	BufferSize int
	Semaphore  *semaphore.Weighted
	// Logger defaults to the global logger.
	Logger *zerolog.Logger
}

var _ RangeFetcher = &HTTPFetcher{}

func (f *HTTPFetcher) FetchRange(ctx context.Context, node *chunk.Node) error {
	logger := f.logger()
	start, end := node.Start(), node.End()

	if f.Semaphore != nil {
		if err := f.Semaphore.Acquire(ctx, 1); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		defer f.Semaphore.Release(1)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", f.URL, err)
	}
	req.Header.Set("Range", rangeHeader(start, end))

	logger.Trace().Str("url", f.URL).Int64("start", start).Int64("end", end).Msg("request")

	resp, err := f.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("error executing request for %s: %w", f.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("%w: %s", ErrUnexpectedHTTPStatus(resp.StatusCode), f.URL)
	}
	if err := checkContentRange(resp.Header.Get("Content-Range"), start, end); err != nil {
		return err
	}

	buf := make([]byte, f.bufferSize())
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			offset, granted, ok := node.Reserve(int64(n))
			if !ok {
				// split underneath us, or the server sent more than we asked for
				return nil
			}
			_, err := f.Output.WriteAt(buf[:granted], offset)
			if err != nil {
				return fmt.Errorf("error writing bytes %d-%d: %w", offset, offset+granted-1, err)
			}
			node.Commit()
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("error reading response for %s: %w", f.URL, readErr)
		}
		// the buffer is flushed, this is where a canceled chunk stops
		if ctx.Err() != nil {
			return nil
		}
	}

	if remaining := node.Remaining(); remaining > 0 && !node.HasChildren() {
		return fmt.Errorf("downloaded %d bytes instead of %d for %s", node.Downloaded(), node.Size(), f.URL)
	}
	return nil
}

func (f *HTTPFetcher) logger() zerolog.Logger {
	if f.Logger == nil {
		return logging.GetLogger()
	}
	return *f.Logger
}

func (f *HTTPFetcher) bufferSize() int {
	if f.BufferSize <= 0 {
		return defaultBufferSize
	}
	return f.BufferSize
}
