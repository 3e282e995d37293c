package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/httpx"
	"github.com/econoflow/econoflow/internal/provider"
)

func TestGateDoPassesThroughSuccess(t *testing.T) {
	g := NewGate(nil, nil)
	calls := 0
	err := g.Do(context.Background(), provider.FRED, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestGateSemanticErrorsDoNotTrip(t *testing.T) {
	g := NewGate(nil, nil)
	nae := provider.NotAvailable(provider.BIS, "WS_TC", "no series")
	for i := 0; i < breakerConsecutiveFailures+2; i++ {
		err := g.Do(context.Background(), provider.BIS, func() error { return nae })
		if !provider.IsNotAvailable(err) {
			t.Fatalf("call %d: got %v, want NotAvailableError", i, err)
		}
	}
	if got := g.State(provider.BIS); got != gobreaker.StateClosed {
		t.Errorf("breaker state = %v, want closed", got)
	}
}

func TestGateTripsOnTransportFailures(t *testing.T) {
	g := NewGate(map[provider.Name]Limits{
		provider.IMF: {RPS: 1000, Burst: 1000},
	}, nil)
	transport := &httpx.Error{StatusCode: 503, URL: "https://api.test/x"}

	for i := 0; i < breakerConsecutiveFailures; i++ {
		if err := g.Do(context.Background(), provider.IMF, func() error { return transport }); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if got := g.State(provider.IMF); got != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", got)
	}

	// Open breaker short-circuits without calling fn.
	called := false
	err := g.Do(context.Background(), provider.IMF, func() error {
		called = true
		return nil
	})
	if called {
		t.Error("fn called while breaker open")
	}
	var rl *provider.RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("got %v, want RateLimitedError", err)
	}
	if rl.Provider != provider.IMF {
		t.Errorf("RateLimitedError.Provider = %s, want IMF", rl.Provider)
	}
}

func TestGateStateChangeCallback(t *testing.T) {
	var transitions []string
	g := NewGate(map[provider.Name]Limits{
		provider.OECD: {RPS: 1000, Burst: 1000},
	}, func(name provider.Name, from, to gobreaker.State) {
		transitions = append(transitions, from.String()+">"+to.String())
	})
	for i := 0; i < breakerConsecutiveFailures; i++ {
		g.Do(context.Background(), provider.OECD, func() error {
			return &httpx.Error{StatusCode: 500}
		})
	}
	if len(transitions) != 1 || transitions[0] != "closed>open" {
		t.Errorf("transitions = %v, want [closed>open]", transitions)
	}
}

func TestGateWaitHonorsContext(t *testing.T) {
	g := NewGate(map[provider.Name]Limits{
		provider.Comtrade: {RPS: 0.001, Burst: 1},
	}, nil)
	// Drain the single burst token.
	if err := g.Wait(context.Background(), provider.Comtrade); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Wait(ctx, provider.Comtrade); err == nil {
		t.Error("expected context error waiting on drained bucket")
	}
}

func TestGateStatesSnapshot(t *testing.T) {
	g := NewGate(nil, nil)
	g.Do(context.Background(), provider.FRED, func() error { return nil })
	g.Do(context.Background(), provider.WorldBank, func() error { return nil })
	states := g.States()
	if states[provider.FRED] != "closed" || states[provider.WorldBank] != "closed" {
		t.Errorf("states = %v, want both closed", states)
	}
}

func TestLimitsFromConfig(t *testing.T) {
	pc := config.ProvidersConfig{
		FRED:      config.ProviderConfig{RateRPS: 0.5, RateBurst: 2},
		WorldBank: config.ProviderConfig{RateBurst: 9}, // no RPS, ignored
	}
	limits := LimitsFromConfig(pc)

	if got := limits[provider.FRED]; got.RPS != 0.5 || got.Burst != 2 {
		t.Errorf("FRED limits = %+v, want {0.5 2}", got)
	}
	if _, ok := limits[provider.WorldBank]; ok {
		t.Error("section without rate_rps should not produce limits")
	}
	if _, ok := limits[provider.CoinGecko]; ok {
		t.Error("unconfigured provider should not produce limits")
	}
}
