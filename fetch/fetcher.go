// Package fetch downloads release tarballs from npm registries. It
// layers retry with exponential backoff over a DNS-cached transport,
// guards each mirror host with a circuit breaker, and verifies the
// registry's published shasum as the tarball streams through.
package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenk/backoff"
	"github.com/rs/dnscache"
	"go.uber.org/zap"

	"github.com/git-pkgs/npmjs"
)

// Failure classes for one tarball request. Rate limits and upstream
// outages are worth retrying; everything else surfaces immediately.
var (
	ErrNotFound     = errors.New("tarball not found")
	ErrRateLimited  = errors.New("rate limited by upstream")
	ErrUpstreamDown = errors.New("upstream registry unavailable")
	ErrIntegrity    = errors.New("tarball shasum mismatch")
)

// Artifact is one downloaded tarball. The caller owns Body and must
// close it.
type Artifact struct {
	Body        io.ReadCloser
	Size        int64 // -1 if unknown
	ContentType string
	ETag        string
}

// Downloader is implemented by tarball fetchers, with or without
// circuit breaking.
type Downloader interface {
	Fetch(ctx context.Context, url string) (*Artifact, error)
	Head(ctx context.Context, url string) (size int64, contentType string, err error)
}

// Fetcher downloads tarballs from registry mirrors. A Fetcher is
// immutable after construction and safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	userAgent string
	retries   int
	baseDelay time.Duration
	authFn    func(url string) (headerName, headerValue string)
	logger    *zap.Logger
}

var _ Downloader = (*Fetcher)(nil)

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the underlying HTTP client, losing the
// DNS-cached transport.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithUserAgent sets the User-Agent header on outgoing requests.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxRetries sets how many retries follow a transient failure.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) {
		f.retries = n
	}
}

// WithBaseDelay sets the first retry delay; later delays grow
// exponentially from it.
func WithBaseDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.baseDelay = d
	}
}

// WithAuthFunc installs a per-URL credential source. The function
// returns the header to set for a URL, or empty strings to send the
// request unauthenticated. Private mirrors use this to scope tokens to
// their own hosts.
func WithAuthFunc(fn func(url string) (headerName, headerValue string)) Option {
	return func(f *Fetcher) {
		f.authFn = fn
	}
}

// WithLogger sets the logger for retry diagnostics. The default
// discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher returns a fetcher with the DNS-cached transport and the
// default retry budget.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			// Tarballs can be large; the timeout covers the whole stream.
			Timeout:   5 * time.Minute,
			Transport: newTransport(),
		},
		userAgent: "npmjs",
		retries:   3,
		baseDelay: 500 * time.Millisecond,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// newTransport builds the shared transport. Connections resolve hosts
// through a process-wide DNS cache refreshed every five minutes, so
// rotating across mirror hosts does not hammer the resolver.
func newTransport() *http.Transport {
	resolver := &dnscache.Resolver{}
	go func() {
		for range time.Tick(5 * time.Minute) {
			resolver.Refresh(true)
		}
	}()

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var lastErr error
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			if lastErr == nil {
				lastErr = fmt.Errorf("no addresses resolved for %s", host)
			}
			return nil, lastErr
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// retrySchedule yields the delays slept between attempts: exponential
// growth from the base delay with 10% jitter, giving up after the
// retry budget. WithMaxRetries treats zero as unlimited, so a zero
// budget maps to StopBackOff instead.
func (f *Fetcher) retrySchedule() backoff.BackOff {
	if f.retries <= 0 {
		return &backoff.StopBackOff{}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.baseDelay
	b.RandomizationFactor = 0.1
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(f.retries))
}

// Fetch downloads the tarball at url. Rate-limited and 5xx responses
// retry on the fetcher's schedule; 404s and transport failures do not.
// The caller must close the returned Artifact.Body.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Artifact, error) {
	var artifact *Artifact

	operation := func() error {
		a, err := f.fetchOnce(ctx, url)
		if err == nil {
			artifact = a
			return nil
		}
		if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamDown) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, delay time.Duration) {
		f.logger.Debug("tarball fetch failed, retrying",
			zap.String("url", url),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(f.retrySchedule(), ctx), notify); err != nil {
		return nil, err
	}
	return artifact, nil
}

// FetchRelease downloads a release's tarball from the given registry,
// wiring the registry's published shasum into the returned body so a
// corrupted download fails with ErrIntegrity at EOF.
func (f *Fetcher) FetchRelease(ctx context.Context, registry string, release *npmjs.Release) (*Artifact, error) {
	return fetchRelease(ctx, f, registry, release)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	f.setHeaders(req, "*/*")

	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}

	switch {
	case res.StatusCode == http.StatusOK:
		return &Artifact{
			Body:        res.Body,
			Size:        res.ContentLength,
			ContentType: res.Header.Get("Content-Type"),
			ETag:        res.Header.Get("ETag"),
		}, nil

	case res.StatusCode == http.StatusNotFound:
		_ = res.Body.Close()
		return nil, ErrNotFound

	case res.StatusCode == http.StatusTooManyRequests:
		_ = res.Body.Close()
		return nil, ErrRateLimited

	case res.StatusCode >= 500:
		_ = res.Body.Close()
		return nil, ErrUpstreamDown

	default:
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		_ = res.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s: %s", res.StatusCode, url, snippet)
	}
}

// Head reports a tarball's size and content type without downloading
// it. Size is -1 when the mirror does not advertise it.
func (f *Fetcher) Head(ctx context.Context, url string) (size int64, contentType string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("building request for %s: %w", url, err)
	}
	f.setHeaders(req, "")

	res, err := f.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("checking %s: %w", url, err)
	}
	_ = res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
		return res.ContentLength, res.Header.Get("Content-Type"), nil
	case res.StatusCode == http.StatusNotFound:
		return 0, "", ErrNotFound
	default:
		return 0, "", fmt.Errorf("unexpected status %d from %s", res.StatusCode, url)
	}
}

func (f *Fetcher) setHeaders(req *http.Request, accept string) {
	req.Header.Set("User-Agent", f.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if f.authFn != nil {
		if name, value := f.authFn(req.URL.String()); name != "" && value != "" {
			req.Header.Set(name, value)
		}
	}
}

// fetchRelease resolves a release to its tarball URL, downloads it
// through d, and arranges shasum verification when the registry
// published one.
func fetchRelease(ctx context.Context, d Downloader, registry string, release *npmjs.Release) (*Artifact, error) {
	info, err := NewResolver(registry).Resolve(release)
	if err != nil {
		return nil, err
	}

	artifact, err := d.Fetch(ctx, info.URL)
	if err != nil {
		return nil, err
	}

	if info.Shasum != "" {
		artifact.Body = VerifyShasum(artifact.Body, info.Shasum)
	}
	return artifact, nil
}

// VerifyShasum wraps body so its SHA-1 digest is checked against the
// registry's published shasum once the stream is fully read. npm dist
// objects carry SHA-1 checksums, so that is what gets verified.
func VerifyShasum(body io.ReadCloser, shasum string) io.ReadCloser {
	return &shasumReader{
		body:   body,
		hash:   sha1.New(),
		shasum: shasum,
	}
}

type shasumReader struct {
	body   io.ReadCloser
	hash   hash.Hash
	shasum string
}

func (r *shasumReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if n > 0 {
		_, _ = r.hash.Write(p[:n])
	}
	if errors.Is(err, io.EOF) {
		sum := hex.EncodeToString(r.hash.Sum(nil))
		if !strings.EqualFold(sum, r.shasum) {
			return n, fmt.Errorf("%w: got %s, want %s", ErrIntegrity, sum, r.shasum)
		}
	}
	return n, err
}

func (r *shasumReader) Close() error {
	return r.body.Close()
}
