package fetch

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
	"go.uber.org/zap"

	"github.com/git-pkgs/npmjs"
)

const (
	// DefaultTripThreshold is how many consecutive failures open a
	// host's breaker.
	DefaultTripThreshold = 5

	// Cooldown window for a tripped host, doubling on repeat trips.
	breakerCooldownMin = 30 * time.Second
	breakerCooldownMax = 5 * time.Minute
)

// BreakerFetcher guards a Fetcher with one circuit breaker per mirror
// host. A host that keeps failing trips its breaker and sheds tarball
// traffic for a growing cooldown window; the other mirrors keep
// serving.
type BreakerFetcher struct {
	fetcher   *Fetcher
	threshold int64
	logger    *zap.Logger

	mu       sync.Mutex
	breakers map[string]*circuit.Breaker
}

var _ Downloader = (*BreakerFetcher)(nil)

// BreakerOption configures a BreakerFetcher.
type BreakerOption func(*BreakerFetcher)

// WithTripThreshold sets how many consecutive failures trip a host's
// breaker.
func WithTripThreshold(n int64) BreakerOption {
	return func(b *BreakerFetcher) {
		b.threshold = n
	}
}

// WithBreakerLogger sets the logger for breaker state diagnostics.
func WithBreakerLogger(logger *zap.Logger) BreakerOption {
	return func(b *BreakerFetcher) {
		b.logger = logger
	}
}

// NewBreakerFetcher wraps f with per-host circuit breaking.
func NewBreakerFetcher(f *Fetcher, opts ...BreakerOption) *BreakerFetcher {
	b := &BreakerFetcher{
		fetcher:   f,
		threshold: DefaultTripThreshold,
		logger:    zap.NewNop(),
		breakers:  make(map[string]*circuit.Breaker),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Fetch downloads url unless the host's breaker is open.
func (b *BreakerFetcher) Fetch(ctx context.Context, fetchURL string) (*Artifact, error) {
	host := mirrorHost(fetchURL)
	br := b.breaker(host)

	if !br.Ready() {
		b.logger.Debug("mirror breaker open, shedding fetch", zap.String("host", host))
		return nil, fmt.Errorf("mirror %s circuit open: %w", host, ErrUpstreamDown)
	}

	var artifact *Artifact
	err := br.Call(func() error {
		var err error
		artifact, err = b.fetcher.Fetch(ctx, fetchURL)
		return err
	}, 0)
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

// FetchRelease downloads a release's tarball with the host's breaker
// and shasum verification applied.
func (b *BreakerFetcher) FetchRelease(ctx context.Context, registry string, release *npmjs.Release) (*Artifact, error) {
	return fetchRelease(ctx, b, registry, release)
}

// Head checks a tarball unless the host's breaker is open.
func (b *BreakerFetcher) Head(ctx context.Context, fetchURL string) (size int64, contentType string, err error) {
	host := mirrorHost(fetchURL)
	br := b.breaker(host)

	if !br.Ready() {
		return 0, "", fmt.Errorf("mirror %s circuit open: %w", host, ErrUpstreamDown)
	}

	err = br.Call(func() error {
		size, contentType, err = b.fetcher.Head(ctx, fetchURL)
		return err
	}, 0)
	if err != nil {
		return 0, "", err
	}
	return size, contentType, nil
}

// States reports each known host's breaker state, keyed by host. A
// host appears once traffic has been sent its way.
func (b *BreakerFetcher) States() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	states := make(map[string]string, len(b.breakers))
	for host, br := range b.breakers {
		state := "closed"
		if br.Tripped() {
			state = "open"
		}
		states[host] = state
	}
	return states
}

// breaker returns the breaker guarding host, creating it on first use.
func (b *BreakerFetcher) breaker(host string) *circuit.Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if br, ok := b.breakers[host]; ok {
		return br
	}

	cooldown := backoff.NewExponentialBackOff()
	cooldown.InitialInterval = breakerCooldownMin
	cooldown.MaxInterval = breakerCooldownMax
	cooldown.Multiplier = 2
	cooldown.MaxElapsedTime = 0
	cooldown.Reset()

	br := circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    cooldown,
		ShouldTrip: circuit.ThresholdTripFunc(b.threshold),
	})
	b.breakers[host] = br
	return br
}

// mirrorHost reduces a tarball URL to the host its breaker is keyed
// by. Unparseable URLs key on the raw string so they still get a
// breaker.
func mirrorHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
