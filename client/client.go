// Package client implements the HTTP request executor for the npm
// registry: a primary registry with ordered mirror fallback, randomized
// exponential backoff between full rotations, optional conditional-GET
// caching, and JSON response handling.
//
// A request walks the mirror pool until one mirror answers 200.
// Transport errors and non-200 statuses rotate to the next mirror; once
// the rotation is exhausted the client sleeps per the backoff policy and
// starts over from the primary, up to the configured retry budget. A 200
// response whose body is not valid JSON fails immediately with a
// ParseError, since a payload the registry itself produced will not be
// repaired by another mirror.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenk/backoff"
	"go.uber.org/zap"
)

const defaultUserAgent = "npmjs"

// Client issues requests against a primary registry with mirror
// fallback. A Client is immutable after construction and safe for
// concurrent use: every request owns its own mirror pool and backoff
// state.
type Client struct {
	registry      string
	mirrors       []string
	userAgent     string
	authorization string
	httpClient    *http.Client

	retries  int
	minDelay time.Duration
	maxDelay time.Duration
	factor   float64

	logger *zap.Logger
	cache  Cache
}

// Option configures a Client.
type Option func(*Client)

// WithRegistry sets the primary registry base URL.
func WithRegistry(url string) Option {
	return func(c *Client) {
		c.registry = url
	}
}

// WithMirrors replaces the fallback mirror rotation. Order is
// significant: mirrors are tried first to last.
func WithMirrors(urls ...string) Option {
	return func(c *Client) {
		c.mirrors = urls
	}
}

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent sets the User-Agent sent when the caller supplies none.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithBasicAuth sets credentials for registries that require them. The
// Authorization value is computed once here, not per request.
func WithBasicAuth(user, password string) Option {
	return func(c *Client) {
		credentials := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
		c.authorization = "Basic " + credentials
	}
}

// WithAuthorization sets a precomputed Authorization header value, for
// bearer tokens and other non-basic schemes.
func WithAuthorization(value string) Option {
	return func(c *Client) {
		c.authorization = value
	}
}

// WithMaxRetries sets how many backoff cycles follow the first pass
// through the mirror rotation.
func WithMaxRetries(retries int) Option {
	return func(c *Client) {
		c.retries = retries
	}
}

// WithBackoff tunes the randomized exponential delays slept between
// mirror rotations.
func WithBackoff(min, max time.Duration, factor float64) Option {
	return func(c *Client) {
		c.minDelay = min
		c.maxDelay = max
		c.factor = factor
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithCache enables conditional-GET caching of responses.
func WithCache(cache Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// New returns a client configured by opts on top of the default
// registry, mirror rotation, and backoff parameters.
func New(opts ...Option) *Client {
	c := &Client{
		registry:   DefaultRegistry,
		mirrors:    DefaultMirrors,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retries:    DefaultRetries,
		minDelay:   DefaultMinDelay,
		maxDelay:   DefaultMaxDelay,
		factor:     DefaultFactor,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultClient returns a client with all defaults.
func DefaultClient() *Client {
	return New()
}

// WithUserAgent returns a copy of the client that sends the given
// User-Agent.
func (c *Client) WithUserAgent(ua string) *Client {
	clone := *c
	clone.userAgent = ua
	return &clone
}

// Registry returns the configured primary registry base URL.
func (c *Client) Registry() string {
	return c.registry
}

// MirrorList returns a copy of the configured mirror rotation.
func (c *Client) MirrorList() []string {
	return append([]string(nil), c.mirrors...)
}

// Request describes one registry request. Zero values mean GET with no
// query, headers, or body.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Send resolves the request against the mirror rotation and returns the
// raw JSON body of the first 200 response. Exhausting every mirror
// through every backoff cycle yields an ExhaustedError wrapping the last
// failure; a malformed 200 body yields a ParseError without touching
// further mirrors.
func (c *Client) Send(ctx context.Context, req *Request) ([]byte, error) {
	pool := NewMirrorPool(c.registry, c.mirrors)
	if pool.Len() == 0 {
		return nil, errors.New("no registry mirrors configured")
	}
	policy := &Policy{
		Retries:  c.retries,
		MinDelay: c.minDelay,
		MaxDelay: c.maxDelay,
		Factor:   c.factor,
	}

	var body []byte
	var lastErr error

	operation := func() error {
		pool.Reset()
		for {
			mirror, ok := pool.Next()
			if !ok {
				return lastErr
			}

			payload, err := c.attempt(ctx, mirror, req)
			if err == nil {
				body = payload
				return nil
			}

			var parseErr *ParseError
			if errors.As(err, &parseErr) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}

			lastErr = err
			c.logger.Debug("registry attempt failed, rotating mirror",
				zap.String("mirror", mirror),
				zap.String("path", req.Path),
				zap.Error(err))
		}
	}

	notify := func(err error, delay time.Duration) {
		c.logger.Debug("mirrors exhausted, backing off",
			zap.Int("attempt", policy.Attempt()),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			return nil, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &ExhaustedError{Attempts: policy.Attempt(), Err: err}
	}
	return body, nil
}

// attempt issues the request against a single mirror.
func (c *Client) attempt(ctx context.Context, mirror string, req *Request) ([]byte, error) {
	target := resolveURL(mirror, req.Path, req.Query)

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", target, err)
	}
	c.setHeaders(httpReq, req.Header)

	var cached *CachedResponse
	if c.cache != nil && method == http.MethodGet {
		cached = c.lookupCache(ctx, target)
		if cached != nil && cached.ETag != "" && httpReq.Header.Get("If-None-Match") == "" {
			httpReq.Header.Set("If-None-Match", cached.ETag)
		}
	}

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", target, err)
	}
	defer func() { _ = res.Body.Close() }()

	if cached != nil && res.StatusCode == http.StatusNotModified {
		return cached.Body, nil
	}

	if res.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return nil, &HTTPError{StatusCode: res.StatusCode, URL: target, Body: string(snippet)}
	}

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", target, err)
	}

	if !json.Valid(payload) {
		return nil, &ParseError{URL: target, Err: errors.New("malformed JSON body")}
	}

	if c.cache != nil && method == http.MethodGet {
		if etag := res.Header.Get("ETag"); etag != "" {
			c.storeCache(ctx, target, &CachedResponse{ETag: etag, Body: payload})
		}
	}
	return payload, nil
}

// setHeaders applies the caller's headers, then fills in defaults
// without overwriting anything the caller set.
func (c *Client) setHeaders(req *http.Request, extra http.Header) {
	for name, values := range extra {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if c.authorization != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", c.authorization)
	}
}

func (c *Client) lookupCache(ctx context.Context, key string) *CachedResponse {
	res, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Debug("cache lookup failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	return res
}

func (c *Client) storeCache(ctx context.Context, key string, res *CachedResponse) {
	if err := c.cache.Set(ctx, key, res); err != nil {
		c.logger.Debug("cache store failed", zap.String("key", key), zap.Error(err))
	}
}

// Get issues a GET for path and decodes the JSON response into v. Pass
// a *any to accept documents of any shape.
func (c *Client) Get(ctx context.Context, path string, v any) error {
	return c.do(ctx, &Request{Method: http.MethodGet, Path: path}, v)
}

// Put issues a PUT with a JSON-encoded body and decodes the response
// into v. v may be nil when the response body does not matter.
func (c *Client) Put(ctx context.Context, path string, body any, v any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding body for %s: %w", path, err)
	}
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return c.do(ctx, &Request{
		Method: http.MethodPut,
		Path:   path,
		Header: header,
		Body:   payload,
	}, v)
}

// View queries a CouchDB view by name. The key is JSON-encoded into the
// query string the way the registry's view engine expects.
func (c *Client) View(ctx context.Context, view, key string, v any) error {
	encoded, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("encoding view key %q: %w", key, err)
	}
	query := url.Values{}
	query.Set("key", string(encoded))
	return c.do(ctx, &Request{
		Method: http.MethodGet,
		Path:   "/-/_view/" + view,
		Query:  query,
	}, v)
}

func (c *Client) do(ctx context.Context, req *Request, v any) error {
	body, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &ParseError{URL: req.Path, Err: err}
	}
	return nil
}

// resolveURL joins a mirror base URL with a request path and query.
func resolveURL(mirror, path string, query url.Values) string {
	target := strings.TrimSuffix(mirror, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target += path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}
