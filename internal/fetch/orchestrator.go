package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/econoflow/econoflow/internal/catalog"
	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/httpx"
	"github.com/econoflow/econoflow/internal/params"
	"github.com/econoflow/econoflow/internal/provider"
	"github.com/econoflow/econoflow/internal/ratelimit"
	"github.com/econoflow/econoflow/internal/resolve"
	"github.com/econoflow/econoflow/internal/router"
	"github.com/econoflow/econoflow/internal/telemetry"
	"github.com/econoflow/econoflow/internal/validate"
	"github.com/econoflow/econoflow/pkg/series"
)

// fallbackMinConfidence gates resolver candidates offered as fallback
// providers.
const fallbackMinConfidence = 0.6

// rateLimitFloor is the first wait after a 429 that carried no
// Retry-After hint. It doubles per retry.
const rateLimitFloor = 5 * time.Second

// Attempt outcomes beyond the telemetry fetch outcomes.
const (
	outcomeCache    = "cache"
	outcomeRejected = "rejected"
)

// Options wires an Orchestrator. Metrics may be nil.
type Options struct {
	Registry *provider.Registry
	Resolver *resolve.Resolver
	Router   *router.Router
	Catalog  *catalog.Store
	Cache    *Cache
	Gate     *ratelimit.Gate
	Metrics  *telemetry.Metrics
	Config   config.FetchConfig
}

// Orchestrator runs the fetch policy: resolve the indicator, check the
// catalog and cache, call the adapter behind the rate gate with a retry
// budget, and walk the fallback chain when the provider comes up empty.
// Concurrent identical requests collapse onto one upstream call.
type Orchestrator struct {
	registry *provider.Registry
	resolver *resolve.Resolver
	router   *router.Router
	catalog  *catalog.Store
	cache    *Cache
	gate     *ratelimit.Gate
	metrics  *telemetry.Metrics
	cfg      config.FetchConfig

	group singleflight.Group

	// sleep is swapped out by tests so backoff waits can be observed
	// instead of served.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an orchestrator, filling config zero values with the
// defaults documented on FetchConfig.
func New(opts Options) *Orchestrator {
	cfg := opts.Config
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxRetriesCap <= 0 {
		cfg.MaxRetriesCap = 5
	}
	if cfg.MaxRetries > cfg.MaxRetriesCap {
		cfg.MaxRetries = cfg.MaxRetriesCap
	}
	if cfg.BackoffBaseMS <= 0 {
		cfg.BackoffBaseMS = 1000
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2.0
	}
	if cfg.ConcurrentFetches <= 0 {
		cfg.ConcurrentFetches = 5
	}
	return &Orchestrator{
		registry: opts.Registry,
		resolver: opts.Resolver,
		router:   opts.Router,
		catalog:  opts.Catalog,
		cache:    opts.Cache,
		gate:     opts.Gate,
		metrics:  opts.Metrics,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Attempt records one provider tried while serving a request.
type Attempt struct {
	Provider provider.Name `json:"provider"`
	Outcome  string        `json:"outcome"`
	Detail   string        `json:"detail,omitempty"`
}

// Result is one served intent: the routing decision, canonical series
// in the order the user named entities, and the provider trail.
type Result struct {
	RequestID string           `json:"request_id"`
	Decision  router.Decision  `json:"decision"`
	Series    []*series.Series `json:"series"`
	Attempts  []Attempt        `json:"attempts,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
}

// FetchIntent routes a parsed query, expands it into requests, and runs
// them concurrently. Entity order is preserved in the returned series.
// Partial failures become warnings; an error is returned only when
// nothing could be fetched.
func (o *Orchestrator) FetchIntent(ctx context.Context, in *params.ParsedIntent) (*Result, error) {
	if err := params.Validate(in); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	decision := o.router.Route(in)
	log.Info().
		Str("request_id", id).
		Str("query", in.OriginalQuery).
		Str("provider", string(decision.Provider)).
		Str("reasoning", decision.Reasoning).
		Msg("query routed")

	reqs, err := params.BuildRequests(in, decision.Provider, time.Now())
	if err != nil {
		return nil, err
	}

	res := &Result{RequestID: id, Decision: decision}
	if decision.ValidationWarning != "" {
		res.Warnings = append(res.Warnings, decision.ValidationWarning)
	}

	type outcome struct {
		series   []*series.Series
		attempts []Attempt
		err      error
	}
	outcomes := make([]outcome, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.ConcurrentFetches)
	for i, req := range reqs {
		g.Go(func() error {
			s, a, err := o.execute(gctx, req, decision.IsExplicitUserChoice)
			outcomes[i] = outcome{series: s, attempts: a, err: err}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // goroutines never return errors

	var firstErr error
	for i := range outcomes {
		res.Attempts = append(res.Attempts, outcomes[i].attempts...)
		if outcomes[i].err != nil {
			if firstErr == nil {
				firstErr = outcomes[i].err
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", requestLabel(reqs[i]), outcomes[i].err))
			continue
		}
		res.Series = append(res.Series, outcomes[i].series...)
	}

	if len(res.Series) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return res, nil
}

// Fetch runs a single prepared request. Callers that build requests by
// hand have already chosen their provider, so the catalog never moves
// the request elsewhere before the call; fallbacks still apply once the
// provider fails.
func (o *Orchestrator) Fetch(ctx context.Context, req provider.Request) ([]*series.Series, error) {
	out, _, err := o.FetchWithTrace(ctx, req, true)
	return out, err
}

// FetchWithTrace is Fetch plus the attempt trail. locked suppresses the
// pre-call catalog reroute for providers the caller named deliberately.
func (o *Orchestrator) FetchWithTrace(ctx context.Context, req provider.Request, locked bool) ([]*series.Series, []Attempt, error) {
	if req.Provider == "" {
		return nil, nil, provider.InvalidInput("provider", "request names no provider")
	}
	return o.execute(ctx, req, locked)
}

// execute runs the full policy for one request: resolve, catalog check,
// cache, gated call with retries, then the fallback chain.
func (o *Orchestrator) execute(ctx context.Context, req provider.Request, locked bool) ([]*series.Series, []Attempt, error) {
	term := strings.TrimSpace(req.Indicator)
	if term == "" {
		return nil, nil, provider.InvalidInput("indicator", "empty indicator")
	}
	if req.IndicatorName == "" {
		// The raw term survives resolution so relevance checks compare
		// against what the user asked, not a provider code.
		req.IndicatorName = term
	}
	if req.StartDate == "" && req.EndDate == "" {
		req.StartDate, req.EndDate = params.DefaultTimeRange(req.Provider, time.Now())
	}

	concept := o.applyResolution(&req, term)
	if !locked {
		o.rerouteIfUnavailable(&req, concept)
	}

	var attempts []Attempt
	out, err := o.fetchOne(ctx, req, &attempts)
	if err == nil {
		return out, attempts, nil
	}
	if !shouldFallback(err) {
		return nil, attempts, err
	}

	primary := req.Provider
	primaryErr := err
	log.Info().
		Str("provider", string(primary)).
		Str("indicator", term).
		Err(err).
		Msg("primary fetch failed, walking fallback chain")

	for _, cand := range o.fallbackChain(term, concept, primary, req.Countries) {
		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}
		fb := req.Clone()
		fb.Provider = cand.Provider
		fb.Indicator = cand.Code
		if fb.Indicator == "" {
			fb.Indicator = term
		}

		out, err := o.fetchOne(ctx, fb, &attempts)
		if err != nil {
			continue
		}
		if reason := o.irrelevant(req, out); reason != "" {
			if n := len(attempts); n > 0 && attempts[n-1].Provider == cand.Provider {
				attempts[n-1].Outcome = outcomeRejected
				attempts[n-1].Detail = reason
			}
			log.Info().
				Str("provider", string(cand.Provider)).
				Str("indicator", term).
				Str("reason", reason).
				Msg("fallback result rejected")
			continue
		}
		if o.metrics != nil {
			o.metrics.RecordFallback(string(primary), string(cand.Provider))
		}
		log.Info().
			Str("from", string(primary)).
			Str("to", string(cand.Provider)).
			Str("indicator", term).
			Msg("fallback substituted provider")
		return out, attempts, nil
	}

	return nil, attempts, finalNotAvailable(primary, term, attempts, primaryErr)
}

// applyResolution swaps the free-text indicator for a provider-native
// code when the resolver lands on the request's own provider, and
// returns the catalog concept it recognized.
func (o *Orchestrator) applyResolution(req *provider.Request, term string) string {
	concept := ""
	if res := o.resolver.Resolve(term, req.Provider, req.Countries); res != nil {
		concept = res.Concept
		if res.Provider == req.Provider && res.Code != "" {
			req.Indicator = res.Code
			if req.Frequency == "" && res.Frequency != "" {
				req.Frequency = series.NormalizeFrequency(res.Frequency)
			}
			log.Debug().
				Str("provider", string(req.Provider)).
				Str("term", term).
				Str("code", res.Code).
				Str("source", res.Source).
				Float64("confidence", res.Confidence).
				Msg("indicator resolved")
		}
	}
	if concept == "" {
		if name, ok := o.catalog.Current().FindConceptByTerm(term); ok {
			concept = name
		}
	}
	return concept
}

// rerouteIfUnavailable moves the request to the catalog's best provider
// when the current one is marked not_available for the concept. This
// runs before any HTTP so a doomed call is never made.
func (o *Orchestrator) rerouteIfUnavailable(req *provider.Request, concept string) {
	if concept == "" {
		return
	}
	cat := o.catalog.Current()
	con, ok := cat.Concept(concept)
	if !ok || !con.IsNotAvailable(req.Provider) {
		return
	}
	choice, ok := cat.BestProvider(concept, req.Countries, "")
	if !ok || choice.Provider == req.Provider {
		return
	}
	log.Info().
		Str("concept", concept).
		Str("from", string(req.Provider)).
		Str("to", string(choice.Provider)).
		Msg("rerouting, provider has no data for concept")
	if o.metrics != nil {
		o.metrics.RecordFallback(string(req.Provider), string(choice.Provider))
	}
	req.Provider = choice.Provider
	if choice.Code != "" {
		req.Indicator = choice.Code
	}
	if req.Frequency == "" && choice.Frequency != "" {
		req.Frequency = series.NormalizeFrequency(choice.Frequency)
	}
}

// fetchOne serves one (provider, params) pair: cache first, then a
// single-flighted provider call.
func (o *Orchestrator) fetchOne(ctx context.Context, req provider.Request, attempts *[]Attempt) ([]*series.Series, error) {
	if cached, ok := o.cache.Get(ctx, req); ok {
		*attempts = append(*attempts, Attempt{Provider: req.Provider, Outcome: outcomeCache})
		return cached, nil
	}

	v, err, _ := o.group.Do(Key(req), func() (any, error) {
		return o.callProvider(ctx, req)
	})
	a := Attempt{Provider: req.Provider, Outcome: outcomeOf(err)}
	if err != nil {
		a.Detail = err.Error()
	}
	*attempts = append(*attempts, a)
	if err != nil {
		return nil, err
	}
	return v.([]*series.Series), nil
}

// callProvider is the single-flighted body: gated adapter call with the
// retry budget, plausibility audit, then cache write.
func (o *Orchestrator) callProvider(ctx context.Context, req provider.Request) ([]*series.Series, error) {
	adapter, err := o.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	var timer *telemetry.FetchTimer
	if o.metrics != nil {
		timer = o.metrics.StartFetch(string(req.Provider))
	}
	out, err := o.callWithRetry(ctx, adapter, req)
	if timer != nil {
		timer.Stop(outcomeOf(err))
	}
	if err != nil {
		return nil, err
	}

	o.audit(req, out)
	o.cache.Put(ctx, req, out)
	return out, nil
}

// callWithRetry invokes the adapter behind the rate gate until it
// succeeds, fails in a non-retryable way, or the budget runs out. An
// exhausted budget is promoted to data-not-available so the fallback
// chain can take over.
func (o *Orchestrator) callWithRetry(ctx context.Context, adapter provider.Adapter, req provider.Request) ([]*series.Series, error) {
	budget := o.cfg.MaxRetries
	if budget > o.cfg.MaxRetriesCap {
		budget = o.cfg.MaxRetriesCap
	}

	var lastErr error
	for attempt := 0; attempt <= budget; attempt++ {
		if attempt > 0 {
			if o.metrics != nil {
				o.metrics.RecordRetry(string(req.Provider))
			}
			if err := o.sleep(ctx, o.backoffDelay(attempt-1, lastErr)); err != nil {
				return nil, err
			}
		}

		var out []*series.Series
		err := o.gate.Do(ctx, req.Provider, func() error {
			var ferr error
			out, ferr = adapter.Fetch(ctx, req)
			return ferr
		})
		if err == nil {
			if len(out) == 0 {
				return nil, provider.NotAvailable(req.Provider, indicatorLabel(req), "provider returned no observations")
			}
			return out, nil
		}
		lastErr = err
		if !o.retryable(req.Provider, err) {
			return nil, err
		}
		log.Debug().
			Str("provider", string(req.Provider)).
			Int("attempt", attempt+1).
			Err(err).
			Msg("fetch attempt failed")
	}

	reason := fmt.Sprintf("gave up after %d attempts: %v", budget+1, lastErr)
	if provider.IsRateLimited(lastErr) {
		reason = fmt.Sprintf("still rate limited after %d attempts", budget+1)
	}
	return nil, &provider.NotAvailableError{
		Provider:  req.Provider,
		Indicator: indicatorLabel(req),
		Reason:    reason,
	}
}

// backoffDelay computes the wait before retry number retryIdx+1.
// Rate-limit hints win over the exponential schedule; a 429 with no
// hint starts at rateLimitFloor and doubles.
func (o *Orchestrator) backoffDelay(retryIdx int, lastErr error) time.Duration {
	var rl *provider.RateLimitedError
	if errors.As(lastErr, &rl) {
		if rl.RetryAfter > 0 {
			return rl.RetryAfter
		}
		return rateLimitFloor << retryIdx
	}
	if httpx.StatusCode(lastErr) == http.StatusTooManyRequests {
		if ra := httpx.RetryAfter(lastErr); ra > 0 {
			return ra
		}
		return rateLimitFloor << retryIdx
	}
	base := time.Duration(o.cfg.BackoffBaseMS) * time.Millisecond
	d := time.Duration(float64(base) * math.Pow(o.cfg.BackoffFactor, float64(retryIdx)))
	return d + rand.N(d/10+time.Nanosecond)
}

// retryable reports whether the same provider is worth another attempt.
func (o *Orchestrator) retryable(name provider.Name, err error) bool {
	if provider.IsNotAvailable(err) || provider.IsInvalidInput(err) {
		return false
	}
	var de *provider.DecodeError
	if errors.As(err, &de) {
		return false
	}
	if provider.IsRateLimited(err) {
		// An open breaker means the provider already burned through its
		// failure allowance; move to fallbacks instead of sitting out
		// the cooloff.
		return o.gate.State(name) != gobreaker.StateOpen
	}
	return httpx.IsRetryable(err)
}

// shouldFallback classifies which failures justify trying another
// provider. Invalid input describes the query and would fail everywhere
// the same way; cancellation belongs to the caller.
func shouldFallback(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !provider.IsInvalidInput(err)
}

// fallbackCandidate is one alternative provider with an optional
// pre-resolved code.
type fallbackCandidate struct {
	Provider provider.Name
	Code     string
}

// staticFallbacks orders substitutes by coverage overlap with the
// primary. Resolver candidates take precedence; these fill in when the
// resolver does not know the term.
var staticFallbacks = map[provider.Name][]provider.Name{
	provider.FRED:         {provider.WorldBank, provider.OECD},
	provider.WorldBank:    {provider.OECD, provider.IMF, provider.Eurostat},
	provider.IMF:          {provider.WorldBank, provider.OECD},
	provider.BIS:          {provider.WorldBank, provider.OECD, provider.IMF},
	provider.Eurostat:     {provider.OECD, provider.WorldBank},
	provider.OECD:         {provider.WorldBank, provider.IMF, provider.Eurostat},
	provider.Comtrade:     {provider.WorldBank},
	provider.StatsCan:     {provider.OECD, provider.WorldBank},
	provider.ExchangeRate: {provider.FRED},
	provider.CoinGecko:    nil,
}

// fallbackChain builds the ordered, deduplicated list of providers to
// try after the primary: resolver candidates above the confidence bar,
// the static coverage chain, then catalog recommendations.
func (o *Orchestrator) fallbackChain(term, concept string, primary provider.Name, countries []string) []fallbackCandidate {
	seen := map[provider.Name]bool{primary: true}
	var chain []fallbackCandidate
	add := func(p provider.Name, code string) {
		if p == "" || seen[p] || !o.registry.Has(p) {
			return
		}
		seen[p] = true
		chain = append(chain, fallbackCandidate{Provider: p, Code: code})
	}

	for _, cand := range o.resolver.CandidatesAcross(term, primary, countries, fallbackMinConfidence) {
		add(cand.Provider, cand.Code)
	}
	for _, p := range staticFallbacks[primary] {
		code := ""
		if res := o.resolver.Resolve(term, p, countries); res != nil && res.Provider == p {
			code = res.Code
		}
		add(p, code)
	}
	if concept != "" {
		for _, choice := range o.catalog.Current().FallbackProviders(concept, primary) {
			add(choice.Provider, choice.Code)
		}
	}
	return chain
}

// irrelevant reports why a fallback result does not answer the original
// request, empty when it does.
func (o *Orchestrator) irrelevant(req provider.Request, result []*series.Series) string {
	for _, s := range result {
		ok, reason := Relevant(req, ResultMeta{Country: s.Metadata.Country, Indicator: s.Metadata.Indicator})
		if !ok {
			return reason
		}
	}
	return ""
}

// audit runs plausibility checks and logs findings. Findings never
// block the response.
func (o *Orchestrator) audit(req provider.Request, result []*series.Series) {
	for _, s := range result {
		rep := validate.Check(s)
		if rep == nil || len(rep.Issues) == 0 {
			continue
		}
		evt := log.Debug()
		if !rep.OK() {
			evt = log.Warn()
		}
		evt.
			Str("provider", string(req.Provider)).
			Str("series", s.Metadata.SeriesID).
			Str("category", rep.Category).
			Float64("confidence", rep.Confidence).
			Int("issues", len(rep.Issues)).
			Str("first", rep.Issues[0].Message).
			Msg("series plausibility check")
	}
}

// providerSuggestions are offered when a provider chain dead-ends,
// keyed by the provider the user started from.
var providerSuggestions = map[provider.Name][]string{
	provider.FRED:         {"FRED is deepest on US data; for other countries try WorldBank codes such as SL.UEM.TOTL.ZS"},
	provider.WorldBank:    {"check the indicator code on data.worldbank.org, or try OECD for member countries"},
	provider.IMF:          {"IMF DataMapper serves WEO codes such as NGDP_RPCH; WorldBank NY.GDP.MKTP.KD.ZG covers GDP growth"},
	provider.BIS:          {"BIS covers credit, debt service, property prices and policy rates; try OECD or WorldBank for other macro series"},
	provider.Eurostat:     {"Eurostat covers EU members; try OECD or WorldBank for other countries"},
	provider.OECD:         {"OECD covers member countries; try WorldBank for global coverage"},
	provider.Comtrade:     {"Comtrade needs a reporter and partner; for aggregate trade try WorldBank NE.EXP.GNFS.ZS"},
	provider.StatsCan:     {"Statistics Canada covers Canada only; try WorldBank or OECD for other countries"},
	provider.ExchangeRate: {"ExchangeRate serves current rates only; FRED bilateral series such as DEXUSEU carry history"},
	provider.CoinGecko:    {"check the coin id on coingecko.com; unlisted tokens are not served"},
}

// finalNotAvailable assembles the surfaced error once every provider in
// the chain has failed or been rejected.
func finalNotAvailable(primary provider.Name, term string, attempts []Attempt, primaryErr error) error {
	var tried []string
	seen := map[provider.Name]bool{}
	for _, a := range attempts {
		if !seen[a.Provider] {
			seen[a.Provider] = true
			tried = append(tried, string(a.Provider))
		}
	}

	reason := fmt.Sprintf("no provider could serve %q", term)
	var na *provider.NotAvailableError
	if errors.As(primaryErr, &na) && na.Reason != "" {
		reason = na.Reason
	}
	if len(tried) > 1 {
		reason = fmt.Sprintf("%s (tried %s)", reason, strings.Join(tried, ", "))
	}

	out := &provider.NotAvailableError{
		Provider:    primary,
		Indicator:   term,
		Reason:      reason,
		Suggestions: append([]string(nil), providerSuggestions[primary]...),
	}
	if na != nil {
		out.Suggestions = append(out.Suggestions, na.Suggestions...)
	}
	return out
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case provider.IsRateLimited(err):
		return telemetry.OutcomeRateLimited
	case provider.IsNotAvailable(err) || provider.IsInvalidInput(err):
		return telemetry.OutcomeNotAvailable
	default:
		return telemetry.OutcomeError
	}
}

func indicatorLabel(req provider.Request) string {
	if req.IndicatorName != "" {
		return req.IndicatorName
	}
	return req.Indicator
}

func requestLabel(req provider.Request) string {
	label := indicatorLabel(req)
	if len(req.Countries) > 0 {
		return label + " " + strings.Join(req.Countries, ",")
	}
	return label
}
