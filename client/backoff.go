package client

import (
	"math"
	"math/rand"
	"time"

	"github.com/cenk/backoff"
)

// Backoff defaults applied when the corresponding option is not set.
const (
	DefaultRetries  = 3
	DefaultMinDelay = 100 * time.Millisecond
	DefaultMaxDelay = 60 * time.Second
	DefaultFactor   = 2.0
)

// Policy yields the randomized exponential delays slept between full
// mirror-rotation cycles. The delay for cycle n is drawn uniformly from
// [0, min(MaxDelay, MinDelay*Factor^n)] and floored at MinDelay, so
// every delay lands in [MinDelay, MaxDelay]. After Retries delays
// NextBackOff returns backoff.Stop.
//
// Policy implements backoff.BackOff. One Policy serves one logical
// request and is not safe for concurrent use.
type Policy struct {
	Retries  int
	MinDelay time.Duration
	MaxDelay time.Duration
	Factor   float64

	attempt int
}

var _ backoff.BackOff = (*Policy)(nil)

// NewPolicy returns a policy with the default parameters.
func NewPolicy() *Policy {
	return &Policy{
		Retries:  DefaultRetries,
		MinDelay: DefaultMinDelay,
		MaxDelay: DefaultMaxDelay,
		Factor:   DefaultFactor,
	}
}

// NextBackOff returns the next delay to sleep, or backoff.Stop once the
// retry budget is spent.
func (p *Policy) NextBackOff() time.Duration {
	if p.attempt >= p.Retries {
		return backoff.Stop
	}
	ceiling := math.Min(
		float64(p.MinDelay)*math.Pow(p.Factor, float64(p.attempt)),
		float64(p.MaxDelay),
	)
	p.attempt++

	delay := time.Duration(rand.Float64() * ceiling)
	if delay < p.MinDelay {
		delay = p.MinDelay
	}
	return delay
}

// Reset rewinds the attempt counter so the policy can serve another
// request cycle from the first delay.
func (p *Policy) Reset() {
	p.attempt = 0
}

// Attempt reports how many delays have been handed out since the last
// Reset.
func (p *Policy) Attempt() int {
	return p.attempt
}
