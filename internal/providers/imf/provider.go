// Package imf implements the IMF DataMapper adapter. DataMapper serves the
// World Economic Outlook (WEO) indicators as annual series; one call per
// indicator returns every country at once and the adapter filters locally.
// No API key required.
// Docs: https://www.imf.org/external/datamapper/api/help
package imf

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/country"
	"github.com/econoflow/econoflow/internal/httpx"
	"github.com/econoflow/econoflow/internal/provider"
	"github.com/econoflow/econoflow/pkg/series"
)

const (
	defaultBaseURL = "https://www.imf.org/external/datamapper/api/v1"
	portalURL      = "https://www.imf.org/external/datamapper/"
)

// Provider fetches WEO indicators from the DataMapper API.
type Provider struct {
	baseURL string
	hc      *httpx.Client
}

func New(cfg config.ProviderConfig, hc *httpx.Client) *Provider {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if hc == nil {
		hc = httpx.Default()
	}
	return &Provider{baseURL: base, hc: hc}
}

func (p *Provider) Name() provider.Name { return provider.IMF }

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:        provider.IMF,
		Description: "IMF DataMapper: World Economic Outlook indicators for 190+ economies, no key required",
		Website:     "https://www.imf.org/external/datamapper",
	}
}

// Fetch makes the single all-countries DataMapper call for the indicator and
// splits it into one annual series per requested country, in request order.
// Countries that are valid ISO codes but absent from the indicator are
// skipped with a log line; strings that are not country codes at all are
// reported separately so the caller can correct the form.
func (p *Provider) Fetch(ctx context.Context, req provider.Request) ([]*series.Series, error) {
	code, err := indicatorCode(req)
	if err != nil {
		return nil, err
	}
	iso3s, malformed := iso3List(req.Countries)
	if len(iso3s) == 0 {
		return nil, provider.InvalidInput("countries",
			"%s not recognized as ISO-3166 codes or country names", strings.Join(malformed, ", "))
	}

	u := p.baseURL + "/" + code
	var resp dataMapperResponse
	if err := p.hc.GetJSON(ctx, u, &resp); err != nil {
		return nil, provider.FromHTTP(provider.IMF, code, err)
	}
	byCountry := resp.Values[code]
	if len(byCountry) == 0 {
		return nil, &provider.NotAvailableError{
			Provider:    provider.IMF,
			Indicator:   code,
			Reason:      "indicator is not in the DataMapper; WEO codes look like NGDP_RPCH or GGXWDG_NGDP",
			Suggestions: []string{"list valid codes at " + p.baseURL + "/indicators"},
		}
	}

	startYear, endYear := yearOf(req.StartDate), yearOf(req.EndDate)
	var out []*series.Series
	var uncovered []string
	for _, iso3 := range iso3s {
		years := byCountry[iso3]
		s := buildSeries(code, iso3, years, startYear, endYear, req)
		if s == nil || s.Len() == 0 {
			uncovered = append(uncovered, iso3)
			log.Warn().Str("indicator", code).Str("country", iso3).Msg("imf indicator does not cover country")
			continue
		}
		s.Metadata.APIURL = series.MaskSecrets(u)
		out = append(out, s)
	}
	if len(out) == 0 {
		reason := "countries " + strings.Join(uncovered, ", ") + " are valid ISO codes but outside this indicator's coverage"
		if len(malformed) > 0 {
			reason += "; " + strings.Join(malformed, ", ") + " are not country codes at all"
		}
		return nil, &provider.NotAvailableError{Provider: provider.IMF, Indicator: code, Reason: reason}
	}
	return out, nil
}

// Ping lists the indicator catalog, which exercises connectivity without
// pulling a full data payload per country.
func (p *Provider) Ping(ctx context.Context) error {
	var resp indicatorsResponse
	return p.hc.GetJSON(ctx, p.baseURL+"/indicators", &resp)
}

func buildSeries(code, iso3 string, years map[string]*float64, startYear, endYear string, req provider.Request) *series.Series {
	if len(years) == 0 {
		return nil
	}
	meta := weoIndicators[code]
	countryName := iso3
	if n, ok := country.Name(iso3); ok {
		countryName = n
	}
	s := series.New(series.Metadata{
		Source:    string(provider.IMF),
		Indicator: indicatorLabel(meta, req, code),
		Country:   countryName,
		SeriesID:  code,
		Frequency: series.FreqAnnual,
		Unit:      meta.Unit,
		DataType:  dataTypeFor(meta.Unit),
		SourceURL: portalURL + code,
	})
	for year, v := range years {
		if v == nil {
			continue
		}
		if startYear != "" && year < startYear {
			continue
		}
		if endYear != "" && year > endYear {
			continue
		}
		date, err := series.ParsePeriod(year)
		if err != nil {
			log.Warn().Str("period", year).Msg("imf period not parseable, skipping point")
			continue
		}
		s.AddValue(date, *v)
	}
	s.Finalize()
	s.NormalizePercent()
	return s
}

// indicatorCode maps common terms to WEO codes and passes code-shaped input
// through unchanged.
func indicatorCode(req provider.Request) (string, error) {
	term := strings.TrimSpace(req.Indicator)
	if term == "" {
		return "", provider.InvalidInput("indicator", "empty indicator")
	}
	if code, ok := indicatorCodes[normalizeTerm(term)]; ok {
		return code, nil
	}
	if looksLikeWEOCode(term) {
		return strings.ToUpper(term), nil
	}
	return "", provider.NotAvailable(provider.IMF, term,
		"no WEO code known for %q; pass a DataMapper code such as NGDP_RPCH", term)
}

// iso3List converts requested countries to ISO3, keeping request order.
// Unrecognized strings come back in the second slice instead of an error so
// Fetch can report them precisely.
func iso3List(countries []string) (iso3s, malformed []string) {
	if len(countries) == 0 {
		return []string{"USA"}, nil
	}
	for _, c := range countries {
		iso3, ok := country.ToISO3(c)
		if !ok {
			malformed = append(malformed, c)
			continue
		}
		iso3s = append(iso3s, iso3)
	}
	return iso3s, malformed
}

func indicatorLabel(meta weoIndicator, req provider.Request, code string) string {
	if meta.Label != "" {
		return meta.Label
	}
	if req.IndicatorName != "" {
		return req.IndicatorName
	}
	return code
}

func dataTypeFor(unit string) string {
	u := strings.ToLower(unit)
	switch {
	case strings.Contains(u, "percent change"):
		return series.TypePercentChange
	case strings.Contains(u, "percent"):
		return series.TypeRate
	default:
		return series.TypeLevel
	}
}

func yearOf(date string) string {
	if len(date) >= 4 {
		return date[:4]
	}
	return ""
}

// looksLikeWEOCode reports whether a term already is a DataMapper code:
// uppercase letters, digits, underscores, e.g. NGDP_RPCH or BCA_NGDPD.
func looksLikeWEOCode(term string) bool {
	if len(term) < 2 || len(term) > 30 {
		return false
	}
	hasLetter := false
	for _, c := range term {
		switch {
		case c >= 'A' && c <= 'Z':
			hasLetter = true
		case c >= '0' && c <= '9':
		case c == '_':
		default:
			return false
		}
	}
	return hasLetter
}

func normalizeTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}

// weoIndicator carries the display metadata the DataMapper data endpoint
// itself does not return.
type weoIndicator struct {
	Label string
	Unit  string
}

var weoIndicators = map[string]weoIndicator{
	"NGDP_RPCH":   {"Real GDP growth", "Annual percent change"},
	"NGDPD":       {"GDP, current prices", "Billions of U.S. dollars"},
	"NGDPDPC":     {"GDP per capita, current prices", "U.S. dollars per capita"},
	"PCPIPCH":     {"Inflation rate, average consumer prices", "Annual percent change"},
	"PCPIEPCH":    {"Inflation rate, end of period consumer prices", "Annual percent change"},
	"LUR":         {"Unemployment rate", "Percent of total labor force"},
	"LP":          {"Population", "Millions of people"},
	"GGXWDG_NGDP": {"General government gross debt", "Percent of GDP"},
	"GGXCNL_NGDP": {"General government net lending/borrowing", "Percent of GDP"},
	"BCA":         {"Current account balance", "Billions of U.S. dollars"},
	"BCA_NGDPD":   {"Current account balance", "Percent of GDP"},
}

// indicatorCodes maps common free-text terms to WEO codes so the adapter
// stays usable without the resolver.
var indicatorCodes = map[string]string{
	"gdp growth":              "NGDP_RPCH",
	"real gdp growth":         "NGDP_RPCH",
	"economic growth":         "NGDP_RPCH",
	"gdp":                     "NGDPD",
	"gross domestic product":  "NGDPD",
	"gdp per capita":          "NGDPDPC",
	"inflation":               "PCPIPCH",
	"inflation rate":          "PCPIPCH",
	"cpi":                     "PCPIPCH",
	"unemployment":            "LUR",
	"unemployment rate":       "LUR",
	"population":              "LP",
	"government debt":         "GGXWDG_NGDP",
	"public debt":             "GGXWDG_NGDP",
	"debt to gdp":             "GGXWDG_NGDP",
	"fiscal balance":          "GGXCNL_NGDP",
	"budget balance":          "GGXCNL_NGDP",
	"current account":         "BCA",
	"current account balance": "BCA",
}
