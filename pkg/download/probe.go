package download

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/replicate/splitget/pkg/client"
	"github.com/replicate/splitget/pkg/logging"
)

// Probe is what the prober learned about a remote file.
type Probe struct {
	// URL is the location after following redirects; chunks are fetched from here.
	URL  string
	Size int64
}

// Prober asks the server for the first byte of the file to learn its total
// length and whether it honors range requests.
type Prober struct {
	Client client.Doer
	logger zerolog.Logger
}

func NewProber(c client.Doer) *Prober {
	return &Prober{Client: c, logger: logging.GetLogger()}
}

func (p *Prober) WithLogger(logger zerolog.Logger) *Prober {
	p.logger = logger
	return p
}

func (p *Prober) ProbeSize(ctx context.Context, url string) (Probe, error) {
	logger := p.logger

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Probe{}, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	req.Header.Set("Range", rangeHeader(0, 0))

	resp, err := p.Client.Do(req)
	if err != nil {
		return Probe{}, fmt.Errorf("error executing request for %s: %w", url, err)
	}
	// we never read the body; for a 200 this drops the connection, which is cheaper than draining it
	defer resp.Body.Close()

	trueURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		trueURL = resp.Request.URL.String()
	}
	if trueURL != url {
		logger.Info().Str("url", url).Str("redirect_url", trueURL).Msg("Redirect")
	}

	size, err := sizeFromProbeResponse(resp)
	if err != nil {
		return Probe{}, fmt.Errorf("%s: %w", url, err)
	}
	logger.Debug().
		Str("url", trueURL).
		Int("status", resp.StatusCode).
		Int64("size", size).
		Msg("Probe")
	return Probe{URL: trueURL, Size: size}, nil
}

func sizeFromProbeResponse(resp *http.Response) (int64, error) {
	acceptRanges := strings.ToLower(strings.TrimSpace(resp.Header.Get("Accept-Ranges")))
	if acceptRanges == "none" {
		return -1, ErrRangeUnsupported
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		cr, err := parseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return -1, err
		}
		if cr.Total < 0 {
			return -1, ErrUnknownLength
		}
		return cr.Total, nil
	case http.StatusRequestedRangeNotSatisfiable:
		// the only range a server can refuse for bytes=0-0 is that of an empty file
		size, err := parseUnsatisfiedRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return -1, ErrUnknownLength
		}
		if size != 0 {
			return -1, ErrUnexpectedHTTPStatus(resp.StatusCode)
		}
		return 0, nil
	case http.StatusOK:
		// the server ignored our range, it only counts as range-capable if it says so
		if acceptRanges != "bytes" {
			return -1, ErrRangeUnsupported
		}
		if resp.ContentLength < 0 {
			return -1, ErrUnknownLength
		}
		return resp.ContentLength, nil
	default:
		return -1, ErrUnexpectedHTTPStatus(resp.StatusCode)
	}
}
