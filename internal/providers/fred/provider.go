// Package fred implements the FRED (Federal Reserve Economic Data) adapter.
// FRED serves US macroeconomic series and bilateral dollar exchange rates.
// Requires a free API key from https://fred.stlouisfed.org/docs/api/api_key.html.
// Rate limit: 120 requests/minute.
// Docs: https://fred.stlouisfed.org/docs/api/fred/
package fred

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/country"
	"github.com/econoflow/econoflow/internal/httpx"
	"github.com/econoflow/econoflow/internal/provider"
	"github.com/econoflow/econoflow/pkg/series"
)

const (
	defaultBaseURL = "https://api.stlouisfed.org/fred"
	portalURL      = "https://fred.stlouisfed.org/series/"
	credAPIKey     = "api_key"
	searchLimit    = 5
)

// Provider fetches series metadata and observations from the FRED REST API.
type Provider struct {
	baseURL string
	apiKey  string
	hc      *httpx.Client
	learner provider.Learner
}

// New builds the adapter. learner may be nil; when set, identifiers found
// through the search endpoint are recorded for future resolutions.
func New(cfg config.ProviderConfig, hc *httpx.Client, learner provider.Learner) *Provider {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if hc == nil {
		hc = httpx.Default()
	}
	return &Provider{baseURL: base, apiKey: cfg.APIKey, hc: hc, learner: learner}
}

func (p *Provider) Name() provider.Name { return provider.FRED }

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:        provider.FRED,
		Description: "Federal Reserve Economic Data: 800k+ US and international series from the St. Louis Fed",
		Website:     "https://fred.stlouisfed.org",
		Credentials: []provider.Credential{{
			Name:        credAPIKey,
			Description: "free key from https://fred.stlouisfed.org/docs/api/api_key.html",
			Required:    true,
			EnvVar:      "ECONOFLOW_PROVIDERS_FRED_API_KEY",
		}},
	}
}

// Fetch resolves the request to one FRED series id, reads its metadata and
// observations, and returns a single canonical series.
func (p *Provider) Fetch(ctx context.Context, req provider.Request) ([]*series.Series, error) {
	if p.apiKey == "" {
		return nil, &provider.NotAvailableError{
			Provider:    provider.FRED,
			Indicator:   req.Indicator,
			Reason:      "API key not configured (set ECONOFLOW_PROVIDERS_FRED_API_KEY)",
			Suggestions: []string{"WorldBank and IMF cover similar macro indicators without a key"},
		}
	}

	id, err := p.seriesID(ctx, req)
	if err != nil {
		return nil, err
	}

	info, err := p.seriesInfo(ctx, id)
	if err != nil {
		return nil, provider.FromHTTP(provider.FRED, id, err)
	}

	obs, obsURL, err := p.observations(ctx, id, req.StartDate, req.EndDate)
	if err != nil {
		return nil, provider.FromHTTP(provider.FRED, id, err)
	}
	if len(obs.Observations) == 0 {
		return nil, provider.NotAvailable(provider.FRED, id, "no observations between %s and %s", req.StartDate, req.EndDate)
	}

	s := series.New(series.Metadata{
		Source:             string(provider.FRED),
		Indicator:          indicatorLabel(info, req),
		Country:            countryLabel(req),
		SeriesID:           id,
		Frequency:          series.NormalizeFrequency(info.FrequencyShort),
		Unit:               info.Units,
		DataType:           dataTypeFor(info.Units, info.Title),
		PriceType:          priceTypeFor(info.Title),
		SeasonalAdjustment: info.SeasonalAdjustment,
		APIURL:             series.MaskSecrets(obsURL),
		SourceURL:          portalURL + id,
		Notes:              info.Notes,
	})
	for _, o := range obs.Observations {
		if v, ok := parseValue(o.Value); ok {
			s.AddValue(o.Date, v)
		} else {
			// FRED marks missing periods with "."; keep the gap visible.
			s.Add(o.Date, nil)
		}
	}
	s.Finalize()
	s.NormalizePercent()
	return []*series.Series{s}, nil
}

// Ping requests one observation of a rock-solid series to verify both
// connectivity and the configured key.
func (p *Provider) Ping(ctx context.Context) error {
	u := p.fredURL("series/observations", url.Values{"series_id": {"GDP"}, "limit": {"1"}})
	var resp observationsResponse
	return p.hc.GetJSON(ctx, u, &resp)
}

// seriesID picks the FRED series for a request: bilateral FX pairs map to
// the DEX* series, exact-looking codes pass through, common terms hit the
// local table, and anything left goes to the search endpoint.
func (p *Provider) seriesID(ctx context.Context, req provider.Request) (string, error) {
	if req.BaseCurrency != "" && req.TargetCurrency != "" {
		if id, ok := fxSeries(req.BaseCurrency, req.TargetCurrency); ok {
			return id, nil
		}
		return "", &provider.NotAvailableError{
			Provider:    provider.FRED,
			Indicator:   req.BaseCurrency + "/" + req.TargetCurrency,
			Reason:      fmt.Sprintf("no bilateral series for %s/%s", req.BaseCurrency, req.TargetCurrency),
			Suggestions: []string{"FRED carries USD pairs against EUR, JPY, GBP, CAD, CHF, CNY, MXN, KRW, INR and BRL"},
		}
	}

	term := strings.TrimSpace(req.Indicator)
	if term == "" {
		return "", provider.InvalidInput("indicator", "empty indicator")
	}
	if looksLikeSeriesID(term) {
		return strings.ToUpper(term), nil
	}
	if id, ok := indicatorSeries[normalizeTerm(term)]; ok {
		return id, nil
	}
	return p.searchSeries(ctx, term)
}

// searchSeries resolves an unmapped term through /series/search and records
// the hit with the learner so the next resolution is local.
func (p *Provider) searchSeries(ctx context.Context, term string) (string, error) {
	u := p.fredURL("series/search", url.Values{
		"search_text": {term},
		"limit":       {strconv.Itoa(searchLimit)},
		"order_by":    {"popularity"},
		"sort_order":  {"desc"},
	})
	var resp seriesResponse
	if err := p.hc.GetJSON(ctx, u, &resp); err != nil {
		return "", provider.FromHTTP(provider.FRED, term, err)
	}
	if len(resp.Seriess) == 0 {
		return "", provider.NotAvailable(provider.FRED, term, "no series matches %q", term)
	}
	hit := resp.Seriess[0]
	log.Debug().Str("term", term).Str("series", hit.ID).Str("title", hit.Title).Msg("fred search resolved term")
	if p.learner != nil {
		p.learner.Learn(provider.FRED, term, hit.ID, hit.Title)
	}
	return hit.ID, nil
}

func (p *Provider) seriesInfo(ctx context.Context, id string) (seriesWire, error) {
	u := p.fredURL("series", url.Values{"series_id": {id}})
	var resp seriesResponse
	if err := p.hc.GetJSON(ctx, u, &resp); err != nil {
		return seriesWire{}, err
	}
	if len(resp.Seriess) == 0 {
		return seriesWire{}, &provider.NotAvailableError{Provider: provider.FRED, Indicator: id, Reason: "series does not exist"}
	}
	return resp.Seriess[0], nil
}

func (p *Provider) observations(ctx context.Context, id, start, end string) (observationsResponse, string, error) {
	q := url.Values{"series_id": {id}}
	if start != "" {
		q.Set("observation_start", start)
	}
	if end != "" {
		q.Set("observation_end", end)
	}
	u := p.fredURL("series/observations", q)
	var resp observationsResponse
	err := p.hc.GetJSON(ctx, u, &resp)
	return resp, u, err
}

// fredURL appends the API key and JSON format to an endpoint path.
func (p *Provider) fredURL(endpoint string, q url.Values) string {
	q.Set("api_key", p.apiKey)
	q.Set("file_type", "json")
	return p.baseURL + "/" + endpoint + "?" + q.Encode()
}

// parseValue parses an observation value; FRED returns "." for missing.
func parseValue(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "." {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func indicatorLabel(info seriesWire, req provider.Request) string {
	if info.Title != "" {
		return info.Title
	}
	if req.IndicatorName != "" {
		return req.IndicatorName
	}
	return req.Indicator
}

// countryLabel names the geography: the currency pair for FX series,
// otherwise the requested country. FRED holds mostly US data.
func countryLabel(req provider.Request) string {
	if req.BaseCurrency != "" && req.TargetCurrency != "" {
		return req.BaseCurrency + "/" + req.TargetCurrency
	}
	if len(req.Countries) > 0 {
		if name, ok := country.Name(req.Countries[0]); ok {
			return name
		}
		return req.Countries[0]
	}
	return "United States"
}

func dataTypeFor(units, title string) string {
	u, t := strings.ToLower(units), strings.ToLower(title)
	switch {
	case strings.Contains(u, "percent change") || strings.Contains(t, "percent change"):
		return series.TypePercentChange
	case strings.Contains(u, "percent") && (strings.Contains(t, "rate") || strings.Contains(t, "yield")):
		return series.TypeRate
	case strings.Contains(u, "index"):
		return series.TypeIndex
	default:
		return series.TypeLevel
	}
}

func priceTypeFor(title string) string {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "real "):
		return "Real"
	case strings.Contains(t, "nominal "):
		return "Nominal"
	default:
		return ""
	}
}

// looksLikeSeriesID reports whether a term is already a FRED code:
// uppercase letters and digits, no spaces, e.g. UNRATE or DEXUSEU.
func looksLikeSeriesID(term string) bool {
	if len(term) < 2 || len(term) > 30 {
		return false
	}
	hasLetter := false
	for _, c := range term {
		switch {
		case c >= 'A' && c <= 'Z':
			hasLetter = true
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return hasLetter
}

func normalizeTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}

// fxSeries maps a currency pair to FRED's bilateral spot series. Both
// directions resolve to the same series; the unit metadata carries the
// quote direction.
func fxSeries(base, target string) (string, bool) {
	if id, ok := fxPairs[base+target]; ok {
		return id, true
	}
	if id, ok := fxPairs[target+base]; ok {
		return id, true
	}
	return "", false
}

var fxPairs = map[string]string{
	"USDEUR": "DEXUSEU",
	"USDJPY": "DEXJPUS",
	"USDGBP": "DEXUSUK",
	"USDCAD": "DEXCAUS",
	"USDCHF": "DEXSZUS",
	"USDCNY": "DEXCHUS",
	"USDMXN": "DEXMXUS",
	"USDKRW": "DEXKOUS",
	"USDINR": "DEXINUS",
	"USDBRL": "DEXBZUS",
}

// indicatorSeries maps common free-text terms to their usual FRED series.
// The resolver handles most mapping upstream; this table keeps the adapter
// usable on its own.
var indicatorSeries = map[string]string{
	"unemployment rate":       "UNRATE",
	"unemployment":            "UNRATE",
	"inflation":               "CPIAUCSL",
	"cpi":                     "CPIAUCSL",
	"consumer price index":    "CPIAUCSL",
	"core cpi":                "CPILFESL",
	"gdp":                     "GDP",
	"real gdp":                "GDPC1",
	"gdp growth":              "A191RL1Q225SBEA",
	"gdp per capita":          "A939RC0Q052SBEA",
	"federal funds rate":      "FEDFUNDS",
	"interest rate":           "FEDFUNDS",
	"policy rate":             "FEDFUNDS",
	"10 year treasury":        "DGS10",
	"treasury yield":          "DGS10",
	"money supply":            "M2SL",
	"m2":                      "M2SL",
	"nonfarm payrolls":        "PAYEMS",
	"payrolls":                "PAYEMS",
	"initial claims":          "ICSA",
	"jobless claims":          "ICSA",
	"housing starts":          "HOUST",
	"industrial production":   "INDPRO",
	"retail sales":            "RSAFS",
	"consumer credit":         "TOTALSL",
	"household debt":          "HDTGPDUSQ163N",
	"government debt":         "GFDEGDQ188S",
	"home prices":             "CSUSHPINSA",
	"house prices":            "CSUSHPINSA",
	"population":              "POPTHM",
	"employment rate":         "EMRATIO",
	"productivity":            "OPHNFB",
	"trade balance":           "BOPGSTB",
	"exports":                 "EXPGS",
	"imports":                 "IMPGS",
	"wages":                   "CES0500000003",
	"average hourly earnings": "CES0500000003",
}
