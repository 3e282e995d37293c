// Package ratelimit gates provider calls behind a per-provider token bucket
// and circuit breaker. The bucket paces requests to stay inside published
// upstream limits; the breaker trips on repeated transport failures so a sick
// provider is short-circuited instead of hammered.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/httpx"
	"github.com/econoflow/econoflow/internal/provider"
)

// Limits is the pacing configuration for one provider.
type Limits struct {
	RPS   float64 // sustained requests per second
	Burst int     // bucket size
}

// DefaultLimits paces providers with no explicit configuration.
var DefaultLimits = Limits{RPS: 2, Burst: 4}

// LimitsFromConfig maps every provider section's rate settings into
// pacing limits. Sections without a rate_rps fall back to DefaultLimits
// at first use.
func LimitsFromConfig(pc config.ProvidersConfig) map[provider.Name]Limits {
	out := make(map[provider.Name]Limits, len(provider.All))
	for _, name := range provider.All {
		if section, ok := pc.ByName(string(name)); ok && section.RateRPS > 0 {
			out[name] = Limits{RPS: section.RateRPS, Burst: section.RateBurst}
		}
	}
	return out
}

const (
	breakerConsecutiveFailures = 5
	breakerCooloff             = 30 * time.Second
	breakerCountingWindow      = 60 * time.Second
)

// StateChangeFunc observes breaker transitions, e.g. for metrics.
type StateChangeFunc func(name provider.Name, from, to gobreaker.State)

// Gate is the combined limiter + breaker front for all providers.
type Gate struct {
	mu       sync.RWMutex
	limiters map[provider.Name]*rate.Limiter
	breakers map[provider.Name]*gobreaker.CircuitBreaker
	limits   map[provider.Name]Limits
	onChange StateChangeFunc
}

// NewGate builds a gate with per-provider limits; providers absent from the
// map get DefaultLimits.
func NewGate(limits map[provider.Name]Limits, onChange StateChangeFunc) *Gate {
	g := &Gate{
		limiters: make(map[provider.Name]*rate.Limiter),
		breakers: make(map[provider.Name]*gobreaker.CircuitBreaker),
		limits:   limits,
		onChange: onChange,
	}
	return g
}

// limiter returns the token bucket for a provider, creating it on first use.
func (g *Gate) limiter(name provider.Name) *rate.Limiter {
	g.mu.RLock()
	l, ok := g.limiters[name]
	g.mu.RUnlock()
	if ok {
		return l
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.limiters[name]; ok {
		return l
	}
	lim := DefaultLimits
	if cfg, ok := g.limits[name]; ok && cfg.RPS > 0 {
		lim = cfg
	}
	if lim.Burst <= 0 {
		lim.Burst = 1
	}
	l = rate.NewLimiter(rate.Limit(lim.RPS), lim.Burst)
	g.limiters[name] = l
	return l
}

// breaker returns the circuit breaker for a provider, creating it on first use.
func (g *Gate) breaker(name provider.Name) *gobreaker.CircuitBreaker {
	g.mu.RLock()
	cb, ok := g.breakers[name]
	g.mu.RUnlock()
	if ok {
		return cb
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if cb, ok := g.breakers[name]; ok {
		return cb
	}
	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(name),
		MaxRequests: 1, // one probe in half-open
		Interval:    breakerCountingWindow,
		Timeout:     breakerCooloff,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			log.Warn().
				Str("provider", string(name)).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			if g.onChange != nil {
				g.onChange(name, from, to)
			}
		},
	})
	g.breakers[name] = cb
	return cb
}

// Wait blocks until the provider's bucket grants a token or ctx is done.
func (g *Gate) Wait(ctx context.Context, name provider.Name) error {
	return g.limiter(name).Wait(ctx)
}

// Do runs fn behind the provider's limiter and breaker. Semantic failures
// (data not available, invalid input) pass through without tripping the
// breaker; only transport-class failures count. An open breaker returns
// *provider.RateLimitedError without calling fn.
func (g *Gate) Do(ctx context.Context, name provider.Name, fn func() error) error {
	if err := g.Wait(ctx, name); err != nil {
		return err
	}

	var opErr error
	_, err := g.breaker(name).Execute(func() (any, error) {
		opErr = fn()
		if opErr != nil && countsAsFailure(opErr) {
			return nil, opErr
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &provider.RateLimitedError{Provider: name, RetryAfter: breakerCooloff}
		}
		return err
	}
	return opErr
}

// State returns the breaker state for one provider.
func (g *Gate) State(name provider.Name) gobreaker.State {
	return g.breaker(name).State()
}

// States snapshots every known breaker, for the admin surface.
func (g *Gate) States() map[provider.Name]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[provider.Name]string, len(g.breakers))
	for name, cb := range g.breakers {
		out[name] = cb.State().String()
	}
	return out
}

// countsAsFailure reports whether an error should damage the breaker.
// No-data and bad-input outcomes describe the query, not provider health.
func countsAsFailure(err error) bool {
	if provider.IsNotAvailable(err) || provider.IsInvalidInput(err) {
		return false
	}
	var de *provider.DecodeError
	if errors.As(err, &de) {
		return false
	}
	if provider.IsRateLimited(err) {
		return true
	}
	return httpx.IsRetryable(err)
}
