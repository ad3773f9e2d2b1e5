// Package pace decides how fast the page driver is allowed to interact with
// the source site. Delays are drawn from bounded uniform ranges that widen
// with scope (request < zone < region), on top of a hard navigation rate
// floor. Motion synthesis for slider challenges lives here too so it can be
// unit-tested without a live browser.
package pace

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// DelayKind classifies the pause being requested.
type DelayKind int

const (
	DelayRequest DelayKind = iota // between page fetches within a zone
	DelayScroll                   // between scroll steps on one page
	DelayZone                     // between zones
	DelayRegion                   // between regions
)

// Bounds is one uniform delay range.
type Bounds struct {
	Min time.Duration
	Max time.Duration
}

// Config holds the delay ranges and the navigation budget.
type Config struct {
	Request Bounds
	Scroll  Bounds
	Zone    Bounds
	Region  Bounds

	// NavPerMinute caps navigations regardless of randomized delays.
	// Zero disables the limiter.
	NavPerMinute int
}

// DefaultConfig mirrors the ranges the source site is known to tolerate.
func DefaultConfig() Config {
	return Config{
		Request:      Bounds{3 * time.Second, 6 * time.Second},
		Scroll:       Bounds{500 * time.Millisecond, 1 * time.Second},
		Zone:         Bounds{3 * time.Second, 6 * time.Second},
		Region:       Bounds{5 * time.Second, 10 * time.Second},
		NavPerMinute: 12,
	}
}

// Policy produces randomized think-time and motion shapes. It is seeded so
// tests can pin its output; production callers seed from the clock.
type Policy struct {
	cfg     Config
	rng     *rand.Rand
	limiter *rate.Limiter
}

// NewPolicy builds a policy from cfg and a seed.
func NewPolicy(cfg Config, seed uint64) *Policy {
	p := &Policy{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	if cfg.NavPerMinute > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(float64(cfg.NavPerMinute)/60.0), 1)
	}
	return p
}

// NextDelay draws a delay for the given kind from its bounded uniform range.
func (p *Policy) NextDelay(kind DelayKind) time.Duration {
	var b Bounds
	switch kind {
	case DelayScroll:
		b = p.cfg.Scroll
	case DelayZone:
		b = p.cfg.Zone
	case DelayRegion:
		b = p.cfg.Region
	default:
		b = p.cfg.Request
	}
	if b.Max <= b.Min {
		return b.Min
	}
	return b.Min + time.Duration(p.rng.Int64N(int64(b.Max-b.Min)))
}

// Sleep blocks for a freshly drawn delay of the given kind, or until ctx is
// done.
func (p *Policy) Sleep(ctx context.Context, kind DelayKind) error {
	t := time.NewTimer(p.NextDelay(kind))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WaitNavigate blocks until the navigation rate budget admits one more page
// load.
func (p *Policy) WaitNavigate(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}
