package fetch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/econoflow/econoflow/internal/catalog"
	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/httpx"
	"github.com/econoflow/econoflow/internal/params"
	"github.com/econoflow/econoflow/internal/provider"
	"github.com/econoflow/econoflow/internal/ratelimit"
	"github.com/econoflow/econoflow/internal/resolve"
	"github.com/econoflow/econoflow/internal/router"
	"github.com/econoflow/econoflow/pkg/series"
)

// fakeAdapter scripts Fetch by call number.
type fakeAdapter struct {
	name provider.Name
	fn   func(call int, req provider.Request) ([]*series.Series, error)

	mu    sync.Mutex
	calls int
}

func (a *fakeAdapter) Name() provider.Name { return a.name }

func (a *fakeAdapter) Info() provider.Info {
	return provider.Info{Name: a.name, Description: "test double"}
}

func (a *fakeAdapter) Ping(context.Context) error { return nil }

func (a *fakeAdapter) Fetch(_ context.Context, req provider.Request) ([]*series.Series, error) {
	a.mu.Lock()
	call := a.calls
	a.calls++
	a.mu.Unlock()
	return a.fn(call, req)
}

func (a *fakeAdapter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// waitLog replaces the orchestrator's sleep so backoff delays are
// captured instead of served.
type waitLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (w *waitLog) sleep(_ context.Context, d time.Duration) error {
	w.mu.Lock()
	w.waits = append(w.waits, d)
	w.mu.Unlock()
	return nil
}

func (w *waitLog) all() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.waits...)
}

func testSeries(source provider.Name, indicator, country string, vals ...float64) []*series.Series {
	s := series.New(series.Metadata{
		Source:    string(source),
		Indicator: indicator,
		Country:   country,
		SeriesID:  "TEST",
		Frequency: series.FreqAnnual,
		Unit:      "Percent",
	})
	for i, v := range vals {
		s.AddValue(fmt.Sprintf("%d-01-01", 2015+i), v)
	}
	s.Finalize()
	return []*series.Series{s}
}

func testOrchestrator(t *testing.T, cfg config.FetchConfig, adapters ...provider.Adapter) (*Orchestrator, *waitLog) {
	t.Helper()
	store, err := catalog.NewStore()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	res, err := resolve.NewResolver(store, nil)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	reg := provider.NewRegistry()
	for _, a := range adapters {
		if err := reg.Register(a); err != nil {
			t.Fatalf("register %s: %v", a.Name(), err)
		}
	}
	cache, err := NewCache(config.CacheConfig{MemoryEntries: 64}, nil, nil)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	// Generous pacing so tests never block on the token bucket.
	limits := make(map[provider.Name]ratelimit.Limits, len(provider.All))
	for _, p := range provider.All {
		limits[p] = ratelimit.Limits{RPS: 10000, Burst: 10000}
	}
	o := New(Options{
		Registry: reg,
		Resolver: res,
		Router:   router.New(store, nil),
		Catalog:  store,
		Cache:    cache,
		Gate:     ratelimit.NewGate(limits, nil),
		Config:   cfg,
	})
	waits := &waitLog{}
	o.sleep = waits.sleep
	return o, waits
}

func serverError() error {
	return &httpx.Error{StatusCode: http.StatusInternalServerError, URL: "https://upstream.test/data"}
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	fred := &fakeAdapter{name: provider.FRED, fn: func(call int, req provider.Request) ([]*series.Series, error) {
		if call < 3 {
			return nil, serverError()
		}
		return testSeries(provider.FRED, "Unemployment Rate", "United States", 3.9, 4.1), nil
	}}
	o, waits := testOrchestrator(t, config.FetchConfig{MaxRetries: 3}, fred)

	out, err := o.Fetch(context.Background(), provider.Request{
		Provider:  provider.FRED,
		Indicator: "unemployment rate",
		Countries: []string{"US"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(out) != 1 || len(out[0].Points) != 2 {
		t.Fatalf("got %d series, want 1 with 2 points", len(out))
	}
	if got := fred.count(); got != 4 {
		t.Errorf("adapter called %d times, want 4", got)
	}

	ws := waits.all()
	if len(ws) != 3 {
		t.Fatalf("got %d backoff waits, want 3", len(ws))
	}
	for i, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		if ws[i] < base || ws[i] > base+base/5 {
			t.Errorf("wait %d = %v, want within 20%% above %v", i, ws[i], base)
		}
	}
}

func TestRetryBudgetExhaustedBecomesNotAvailable(t *testing.T) {
	fred := &fakeAdapter{name: provider.FRED, fn: func(int, provider.Request) ([]*series.Series, error) {
		return nil, serverError()
	}}
	o, waits := testOrchestrator(t, config.FetchConfig{MaxRetries: 3}, fred)

	_, err := o.Fetch(context.Background(), provider.Request{
		Provider:  provider.FRED,
		Indicator: "unemployment rate",
		Countries: []string{"US"},
	})
	if !provider.IsNotAvailable(err) {
		t.Fatalf("got %v, want NotAvailableError", err)
	}
	if got := fred.count(); got != 4 {
		t.Errorf("adapter called %d times, want 4", got)
	}
	if got := len(waits.all()); got != 3 {
		t.Errorf("got %d backoff waits, want 3", got)
	}
}

func TestRetryAfterHintRespected(t *testing.T) {
	fred := &fakeAdapter{name: provider.FRED, fn: func(call int, req provider.Request) ([]*series.Series, error) {
		if call == 0 {
			return nil, &provider.RateLimitedError{Provider: provider.FRED, RetryAfter: 2 * time.Second}
		}
		return testSeries(provider.FRED, "Unemployment Rate", "United States", 4.0), nil
	}}
	o, waits := testOrchestrator(t, config.FetchConfig{MaxRetries: 3}, fred)

	_, err := o.Fetch(context.Background(), provider.Request{
		Provider:  provider.FRED,
		Indicator: "unemployment rate",
		Countries: []string{"US"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	ws := waits.all()
	if len(ws) != 1 {
		t.Fatalf("got %d waits, want 1", len(ws))
	}
	if ws[0] < 2*time.Second {
		t.Errorf("waited %v before retrying, want at least the 2s hint", ws[0])
	}
}

func TestRateLimitWithoutHintUsesFloor(t *testing.T) {
	fred := &fakeAdapter{name: provider.FRED, fn: func(call int, req provider.Request) ([]*series.Series, error) {
		if call < 2 {
			return nil, &httpx.Error{StatusCode: http.StatusTooManyRequests, URL: "https://upstream.test/data"}
		}
		return testSeries(provider.FRED, "Unemployment Rate", "United States", 4.0), nil
	}}
	o, waits := testOrchestrator(t, config.FetchConfig{MaxRetries: 3}, fred)

	_, err := o.Fetch(context.Background(), provider.Request{
		Provider:  provider.FRED,
		Indicator: "unemployment rate",
		Countries: []string{"US"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	ws := waits.all()
	if len(ws) != 2 {
		t.Fatalf("got %d waits, want 2", len(ws))
	}
	if ws[0] != 5*time.Second || ws[1] != 10*time.Second {
		t.Errorf("got waits %v, want the 5s floor doubling to 10s", ws)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	fred := &fakeAdapter{name: provider.FRED, fn: func(int, provider.Request) ([]*series.Series, error) {
		return nil, &httpx.Error{StatusCode: http.StatusNotFound, URL: "https://upstream.test/data"}
	}}
	o, waits := testOrchestrator(t, config.FetchConfig{MaxRetries: 3}, fred)

	_, err := o.Fetch(context.Background(), provider.Request{
		Provider:  provider.FRED,
		Indicator: "no such series",
		Countries: []string{"US"},
	})
	if !provider.IsNotAvailable(err) {
		t.Fatalf("got %v, want NotAvailableError after the chain dead-ends", err)
	}
	if got := fred.count(); got != 1 {
		t.Errorf("adapter called %d times, want 1 (404 is not retryable)", got)
	}
	if got := len(waits.all()); got != 0 {
		t.Errorf("got %d waits, want none", got)
	}
}

func TestInvalidInputSurfacesWithoutFallback(t *testing.T) {
	fred := &fakeAdapter{name: provider.FRED, fn: func(int, provider.Request) ([]*series.Series, error) {
		return nil, provider.InvalidInput("country", "unknown region %q", "Atlantis")
	}}
	wb := &fakeAdapter{name: provider.WorldBank, fn: func(int, provider.Request) ([]*series.Series, error) {
		return testSeries(provider.WorldBank, "Unemployment", "Atlantis", 1.0), nil
	}}
	o, _ := testOrchestrator(t, config.FetchConfig{}, fred, wb)

	_, attempts, err := o.FetchWithTrace(context.Background(), provider.Request{
		Provider:  provider.FRED,
		Indicator: "unemployment rate",
		Countries: []string{"XX"},
	}, true)
	if !provider.IsInvalidInput(err) {
		t.Fatalf("got %v, want InvalidInputError", err)
	}
	if wb.count() != 0 {
		t.Error("fallback ran for an invalid-input failure")
	}
	if len(attempts) != 1 {
		t.Errorf("got %d attempts, want 1", len(attempts))
	}
}

func TestFallbackSubstitutesProvider(t *testing.T) {
	bis := &fakeAdapter{name: provider.BIS, fn: func(int, provider.Request) ([]*series.Series, error) {
		return nil, provider.NotAvailable(provider.BIS, "policy rate", "no data for ZW")
	}}
	wb := &fakeAdapter{name: provider.WorldBank, fn: func(int, provider.Request) ([]*series.Series, error) {
		return testSeries(provider.WorldBank, "Real interest rate (%)", "Zimbabwe", 8.5, 9.1), nil
	}}
	o, _ := testOrchestrator(t, config.FetchConfig{}, bis, wb)

	out, attempts, err := o.FetchWithTrace(context.Background(), provider.Request{
		Provider:  provider.BIS,
		Indicator: "policy rate",
		Countries: []string{"ZW"},
	}, true)
	if err != nil {
		t.Fatalf("FetchWithTrace: %v", err)
	}
	if len(out) != 1 || out[0].Metadata.Source != string(provider.WorldBank) {
		t.Fatalf("got %+v, want one WorldBank series", out)
	}
	if len(attempts) != 2 || attempts[0].Provider != provider.BIS || attempts[1].Provider != provider.WorldBank {
		t.Errorf("attempt trail = %+v, want BIS then WorldBank", attempts)
	}
}

func TestFallbackRejectsIrrelevantResult(t *testing.T) {
	wb := &fakeAdapter{name: provider.WorldBank, fn: func(int, provider.Request) ([]*series.Series, error) {
		return nil, provider.NotAvailable(provider.WorldBank, "", "no matching indicator")
	}}
	oecd := &fakeAdapter{name: provider.OECD, fn: func(int, provider.Request) ([]*series.Series, error) {
		return testSeries(provider.OECD, "Household debt, % of net disposable income", "France", 120.0), nil
	}}
	o, _ := testOrchestrator(t, config.FetchConfig{}, wb, oecd)

	_, attempts, err := o.FetchWithTrace(context.Background(), provider.Request{
		Provider:  provider.WorldBank,
		Indicator: "non-financial corporations debt to gdp",
		Countries: []string{"FR"},
	}, true)
	if !provider.IsNotAvailable(err) {
		t.Fatalf("got %v, want NotAvailableError after rejecting the household series", err)
	}
	if oecd.count() == 0 {
		t.Fatal("fallback provider was never tried")
	}
	var rejected bool
	for _, a := range attempts {
		if a.Provider == provider.OECD && a.Outcome == outcomeRejected {
			rejected = true
		}
	}
	if !rejected {
		t.Errorf("attempt trail %+v does not record the relevance rejection", attempts)
	}
}

func TestCacheShortCircuitsSecondFetch(t *testing.T) {
	fred := &fakeAdapter{name: provider.FRED, fn: func(int, provider.Request) ([]*series.Series, error) {
		return testSeries(provider.FRED, "Unemployment Rate", "United States", 3.8), nil
	}}
	o, _ := testOrchestrator(t, config.FetchConfig{}, fred)

	req := provider.Request{
		Provider:  provider.FRED,
		Indicator: "unemployment rate",
		Countries: []string{"US"},
		StartDate: "2020-01-01",
		EndDate:   "2024-12-31",
	}
	if _, err := o.Fetch(context.Background(), req); err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	_, attempts, err := o.FetchWithTrace(context.Background(), req, true)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if got := fred.count(); got != 1 {
		t.Errorf("adapter called %d times, want 1", got)
	}
	if len(attempts) != 1 || attempts[0].Outcome != outcomeCache {
		t.Errorf("attempt trail = %+v, want a single cache hit", attempts)
	}
}

func TestConcurrentIdenticalRequestsCollapse(t *testing.T) {
	fred := &fakeAdapter{name: provider.FRED, fn: func(int, provider.Request) ([]*series.Series, error) {
		time.Sleep(80 * time.Millisecond)
		return testSeries(provider.FRED, "Unemployment Rate", "United States", 3.8), nil
	}}
	o, _ := testOrchestrator(t, config.FetchConfig{}, fred)

	req := provider.Request{
		Provider:  provider.FRED,
		Indicator: "unemployment rate",
		Countries: []string{"US"},
		StartDate: "2020-01-01",
		EndDate:   "2024-12-31",
	}
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = o.Fetch(context.Background(), req)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("Fetch %d: %v", i, err)
		}
	}
	if got := fred.count(); got != 1 {
		t.Errorf("adapter called %d times, want 1", got)
	}
}

func TestCatalogRerouteSkippedWhenLocked(t *testing.T) {
	req := provider.Request{
		Provider:  provider.BIS,
		Indicator: "productivity",
		Countries: []string{"DE"},
	}

	// Locked: BIS must be attempted even though the catalog marks it
	// unavailable for productivity; the fallback then rescues.
	bis := &fakeAdapter{name: provider.BIS, fn: func(int, provider.Request) ([]*series.Series, error) {
		return nil, provider.NotAvailable(provider.BIS, "productivity", "concept not covered")
	}}
	oecd := &fakeAdapter{name: provider.OECD, fn: func(int, provider.Request) ([]*series.Series, error) {
		return testSeries(provider.OECD, "Labour productivity", "Germany", 102.3), nil
	}}
	o, _ := testOrchestrator(t, config.FetchConfig{}, bis, oecd)
	if _, _, err := o.FetchWithTrace(context.Background(), req, true); err != nil {
		t.Fatalf("locked fetch: %v", err)
	}
	if bis.count() != 1 {
		t.Errorf("locked: BIS called %d times, want 1", bis.count())
	}

	// Unlocked: the catalog reroutes before any BIS call.
	bis2 := &fakeAdapter{name: provider.BIS, fn: func(int, provider.Request) ([]*series.Series, error) {
		return nil, provider.NotAvailable(provider.BIS, "productivity", "concept not covered")
	}}
	oecd2 := &fakeAdapter{name: provider.OECD, fn: func(int, provider.Request) ([]*series.Series, error) {
		return testSeries(provider.OECD, "Labour productivity", "Germany", 102.3), nil
	}}
	o2, _ := testOrchestrator(t, config.FetchConfig{}, bis2, oecd2)
	if _, _, err := o2.FetchWithTrace(context.Background(), req, false); err != nil {
		t.Fatalf("unlocked fetch: %v", err)
	}
	if bis2.count() != 0 {
		t.Errorf("unlocked: BIS called %d times, want 0", bis2.count())
	}
	if oecd2.count() != 1 {
		t.Errorf("unlocked: OECD called %d times, want 1", oecd2.count())
	}
}

func TestBreakerOpenSkipsProvider(t *testing.T) {
	fred := &fakeAdapter{name: provider.FRED, fn: func(int, provider.Request) ([]*series.Series, error) {
		return testSeries(provider.FRED, "Unemployment Rate", "United States", 4.0), nil
	}}
	o, waits := testOrchestrator(t, config.FetchConfig{MaxRetries: 3}, fred)

	for i := 0; i < 5; i++ {
		_ = o.gate.Do(context.Background(), provider.FRED, func() error { return serverError() })
	}

	_, err := o.Fetch(context.Background(), provider.Request{
		Provider:  provider.FRED,
		Indicator: "unemployment rate",
		Countries: []string{"US"},
	})
	if !provider.IsNotAvailable(err) {
		t.Fatalf("got %v, want NotAvailableError", err)
	}
	if fred.count() != 0 {
		t.Errorf("adapter called %d times behind an open breaker, want 0", fred.count())
	}
	if got := len(waits.all()); got != 0 {
		t.Errorf("got %d retry waits against an open breaker, want 0", got)
	}
}

func TestFetchIntentPreservesEntityOrder(t *testing.T) {
	wb := &fakeAdapter{name: provider.WorldBank, fn: func(_ int, req provider.Request) ([]*series.Series, error) {
		names := map[string]string{"US": "United States", "DE": "Germany", "JP": "Japan"}
		c := req.Countries[0]
		return testSeries(provider.WorldBank, "Unemployment, total (% of labor force)", names[c], 4.2), nil
	}}
	o, _ := testOrchestrator(t, config.FetchConfig{ConcurrentFetches: 3}, wb)

	in := &params.ParsedIntent{
		Provider:      "world bank",
		Indicators:    []string{"unemployment rate"},
		OriginalQuery: "unemployment rate in the United States, Germany and Japan",
		Decomposition: &params.Decomposition{Type: "multi_country", Entities: []string{"United States", "Germany", "Japan"}},
	}
	res, err := o.FetchIntent(context.Background(), in)
	if err != nil {
		t.Fatalf("FetchIntent: %v", err)
	}
	if len(res.Series) != 3 {
		t.Fatalf("got %d series, want 3", len(res.Series))
	}
	want := []string{"United States", "Germany", "Japan"}
	for i, s := range res.Series {
		if s.Metadata.Country != want[i] {
			t.Errorf("series %d country = %q, want %q", i, s.Metadata.Country, want[i])
		}
	}
}

func TestFetchIntentPartialFailureWarns(t *testing.T) {
	wb := &fakeAdapter{name: provider.WorldBank, fn: func(_ int, req provider.Request) ([]*series.Series, error) {
		if req.Countries[0] == "DE" {
			return nil, provider.NotAvailable(provider.WorldBank, req.Indicator, "no data for DE")
		}
		names := map[string]string{"US": "United States", "JP": "Japan"}
		return testSeries(provider.WorldBank, "Unemployment, total (% of labor force)", names[req.Countries[0]], 4.2), nil
	}}
	o, _ := testOrchestrator(t, config.FetchConfig{}, wb)

	in := &params.ParsedIntent{
		Provider:      "world bank",
		Indicators:    []string{"unemployment rate"},
		OriginalQuery: "unemployment rate in the United States, Germany and Japan",
		Decomposition: &params.Decomposition{Type: "multi_country", Entities: []string{"United States", "Germany", "Japan"}},
	}
	res, err := o.FetchIntent(context.Background(), in)
	if err != nil {
		t.Fatalf("FetchIntent: %v", err)
	}
	if len(res.Series) != 2 {
		t.Fatalf("got %d series, want 2", len(res.Series))
	}
	if res.Series[0].Metadata.Country != "United States" || res.Series[1].Metadata.Country != "Japan" {
		t.Errorf("series order = %q, %q; want United States then Japan",
			res.Series[0].Metadata.Country, res.Series[1].Metadata.Country)
	}
	if len(res.Warnings) == 0 {
		t.Error("missing warning for the failed entity")
	}
}

func TestFetchIntentAllFailedReturnsError(t *testing.T) {
	wb := &fakeAdapter{name: provider.WorldBank, fn: func(int, provider.Request) ([]*series.Series, error) {
		return nil, provider.NotAvailable(provider.WorldBank, "", "nothing here")
	}}
	o, _ := testOrchestrator(t, config.FetchConfig{}, wb)

	in := &params.ParsedIntent{
		Provider:      "world bank",
		Indicators:    []string{"unemployment rate"},
		OriginalQuery: "unemployment rate in Germany",
	}
	if _, err := o.FetchIntent(context.Background(), in); !provider.IsNotAvailable(err) {
		t.Fatalf("got %v, want NotAvailableError", err)
	}
}

func TestFetchIntentNeedsClarification(t *testing.T) {
	o, _ := testOrchestrator(t, config.FetchConfig{})
	in := &params.ParsedIntent{
		Indicators:             []string{"it"},
		OriginalQuery:          "how high is it",
		NeedsClarification:     true,
		ClarificationQuestions: []string{"which indicator do you mean?"},
	}
	_, err := o.FetchIntent(context.Background(), in)
	if !provider.IsInvalidInput(err) {
		t.Fatalf("got %v, want InvalidInputError", err)
	}
}
