package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/replicate/splitget/pkg/logging"
	"github.com/replicate/splitget/pkg/version"
)

const (
	retryMinWait     = 100 * time.Millisecond
	retryMaxWait     = 3000 * time.Millisecond // do not backoff further than 3 seconds
	retrySleepJitter = 500                     // (will add 0-500 additional milliseconds), multiplied by time.Millisecond in backoffFunc

	defaultConnectTimeout = 5 * time.Second
)

// Doer is the part of an HTTP client the downloader needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Options struct {
	ForceHTTP2     bool
	MaxConnPerHost int
	// MaxRetries is the number of times a request that failed before any of
	// its body was read is re-issued. Zero disables retries.
	MaxRetries     int
	ConnectTimeout time.Duration
	// ResolveOverrides maps host:port to the ip:port the dialer should use
	// instead, see config.ResolveOverridesToMap.
	ResolveOverrides map[string]string
}

// HTTPClient is a wrapper around http.Client that sets our transport,
// redirect logging and (optional) retry policy.
type HTTPClient struct {
	*http.Client
}

var _ Doer = &HTTPClient{}

type UserAgentTransport struct {
	Transport http.RoundTripper
}

func (t *UserAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", fmt.Sprintf("splitget/%s", version.GetVersion()))
	return t.Transport.RoundTrip(req)
}

// NewHTTPClient factory function returns a new http.Client with the appropriate settings. The transport limits the
// number of connections per host if the MaxConnPerHost option is set.
func NewHTTPClient(opts Options) *HTTPClient {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = defaultConnectTimeout
	}
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}
	baseTransport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           transportDialContext(dialer, opts.ResolveOverrides),
		ForceAttemptHTTP2:     opts.ForceHTTP2,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableKeepAlives:     false,
	}
	if opts.MaxConnPerHost > 0 {
		baseTransport.MaxConnsPerHost = opts.MaxConnPerHost
	}

	transport := &UserAgentTransport{Transport: baseTransport}

	retryClient := &retryablehttp.Client{
		HTTPClient: &http.Client{
			Transport:     transport,
			CheckRedirect: checkRedirectFunc,
		},
		Logger:       nil,
		RetryWaitMin: retryMinWait,
		RetryWaitMax: retryMaxWait,
		RetryMax:     opts.MaxRetries,
		CheckRetry:   RetryPolicy,
		Backoff:      backoffFunc,
		// hand the last response back to the caller so status errors keep
		// their status code
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	return &HTTPClient{Client: retryClient.StandardClient()}
}

// RetryPolicy wraps retryablehttp.DefaultRetryPolicy. A canceled request is
// never retried: cancellation is how the scheduler stops a chunk that has been
// split.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if errors.Is(err, context.Canceled) {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// backoffFunc is a wrapper around retryablehttp.DefaultBackoff that allows for adding a random jitter to the backoff
// we utilize the jitter to avoid thundering herd issues since many chunks may fail at the same time.
func backoffFunc(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	sleep := time.Duration(rand.Intn(retrySleepJitter)) * time.Millisecond
	sleep += retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
	return sleep
}

// checkRedirectFunc is a wrapper around http.Client.CheckRedirect that allows for printing out redirects
func checkRedirectFunc(req *http.Request, via []*http.Request) error {
	logger := logging.GetLogger()
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	logger.Trace().
		Str("redirect_url", req.URL.String()).
		Str("url", via[0].URL.String()).
		Int("status", req.Response.StatusCode).
		Msg("Redirect")
	return nil
}

// transportDialContext is a wrapper around net.Dialer that allows for overriding DNS lookups via the values passed to
// `--resolve` argument.
func transportDialContext(dialer *net.Dialer, overrides map[string]string) func(context.Context, string, string) (net.Conn, error) {
	// Allow for overriding DNS lookups in the dialer without impacting Host and SSL resolution
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if addrOverride := overrides[addr]; addrOverride != "" {
			logger := logging.GetLogger()
			logger.Debug().Str("addr", addr).Str("override", addrOverride).Msg("DNS Override")
			addr = addrOverride
		}
		return dialer.DialContext(ctx, network, addr)
	}
}

// GetSchemeHostKey returns scheme+host of a URL, the key used to group downloads that may share connections.
func GetSchemeHostKey(urlString string) (string, error) {
	parsedURL, err := url.Parse(urlString)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host), nil
}
