// Package worldbank implements the World Bank Open Data adapter. The API
// needs no key and covers development indicators for every economy, which
// makes it the default fallback for multi-country macro queries.
// Docs: https://datahelpdesk.worldbank.org/knowledgebase/articles/889392
package worldbank

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/country"
	"github.com/econoflow/econoflow/internal/httpx"
	"github.com/econoflow/econoflow/internal/provider"
	"github.com/econoflow/econoflow/pkg/series"
)

const (
	defaultBaseURL = "https://api.worldbank.org/v2"
	portalURL      = "https://data.worldbank.org/indicator/"
	perPage        = 1000
	maxPages       = 10
)

// Provider fetches indicator records from the World Bank v2 REST API.
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

func (p *Provider) Name() provider.Name { return provider.WorldBank }

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:        provider.WorldBank,
		Description: "World Bank Open Data: development indicators for 200+ economies, no key required",
		Website:     "https://data.worldbank.org",
	}
}

// Fetch queries one indicator for all requested countries in a single
// semicolon-joined call and splits the response into one series per country,
// preserving the order the countries were asked in.
func (p *Provider) Fetch(ctx context.Context, req provider.Request) ([]*series.Series, error) {
	code, err := indicatorCode(req)
	if err != nil {
		return nil, err
	}
	iso3s, err := iso3List(req.Countries)
	if err != nil {
		return nil, err
	}

	firstURL := p.queryURL(code, iso3s, req, 0)
	records, err := p.fetchAll(ctx, code, iso3s, req)
	if err != nil {
		return nil, provider.FromHTTP(provider.WorldBank, code, err)
	}

	byCountry := make(map[string][]record, len(iso3s))
	for _, r := range records {
		if r.Value == nil {
			continue
		}
		byCountry[r.CountryISO3] = append(byCountry[r.CountryISO3], r)
	}

	var out []*series.Series
	for _, iso3 := range iso3s {
		recs := byCountry[iso3]
		if len(recs) == 0 {
			log.Warn().Str("indicator", code).Str("country", iso3).Msg("worldbank returned no data for country")
			continue
		}
		s := buildSeries(code, iso3, recs, req)
		s.Metadata.APIURL = series.MaskSecrets(firstURL)
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, provider.NotAvailable(provider.WorldBank, code,
			"no data for %s between %s and %s", strings.Join(iso3s, ", "), req.StartDate, req.EndDate)
	}
	return out, nil
}

// Ping pulls a single GDP record for the US.
func (p *Provider) Ping(ctx context.Context) error {
	u := p.baseURL + "/country/USA/indicator/NY.GDP.MKTP.CD?format=json&per_page=1"
	_, _, err := p.fetchPage(ctx, u)
	return err
}

func (p *Provider) fetchAll(ctx context.Context, code string, iso3s []string, req provider.Request) ([]record, error) {
	var all []record
	for page := 1; page <= maxPages; page++ {
		u := p.queryURL(code, iso3s, req, page)
		meta, recs, err := p.fetchPage(ctx, u)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
		if page >= meta.Pages {
			break
		}
	}
	return all, nil
}

// fetchPage decodes the two-element [meta, records] array the API wraps every
// response in. A one-element array is the error envelope.
func (p *Provider) fetchPage(ctx context.Context, u string) (pageMeta, []record, error) {
	body, err := p.hc.GetBody(ctx, u, nil)
	if err != nil {
		return pageMeta{}, nil, err
	}
	meta, recs, apiErr, err := decodeEnvelope(body)
	if err != nil {
		return pageMeta{}, nil, &provider.DecodeError{Provider: provider.WorldBank, Detail: "response envelope", Err: err}
	}
	if apiErr != nil {
		return pageMeta{}, nil, &provider.NotAvailableError{
			Provider: provider.WorldBank,
			Reason:   apiErr.Key + ": " + apiErr.Value,
		}
	}
	return meta, recs, nil
}

func (p *Provider) queryURL(code string, iso3s []string, req provider.Request, page int) string {
	q := url.Values{"format": {"json"}, "per_page": {fmt.Sprint(perPage)}}
	if r := yearRange(req.StartDate, req.EndDate); r != "" {
		q.Set("date", r)
	}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	return p.baseURL + "/country/" + strings.Join(iso3s, ";") + "/indicator/" + code + "?" + q.Encode()
}

func buildSeries(code, iso3 string, recs []record, req provider.Request) *series.Series {
	first := recs[0]
	countryName := first.Country.Value
	if countryName == "" {
		if n, ok := country.Name(iso3); ok {
			countryName = n
		} else {
			countryName = iso3
		}
	}
	indicatorName := first.Indicator.Value
	if indicatorName == "" {
		if req.IndicatorName != "" {
			indicatorName = req.IndicatorName
		} else {
			indicatorName = code
		}
	}

	s := series.New(series.Metadata{
		Source:    string(provider.WorldBank),
		Indicator: indicatorName,
		Country:   countryName,
		SeriesID:  code,
		Unit:      unitFor(first.Unit, indicatorName),
		DataType:  dataTypeFor(indicatorName),
		SourceURL: portalURL + code,
	})
	for _, r := range recs {
		date, err := series.ParsePeriod(r.Date)
		if err != nil {
			log.Warn().Str("period", r.Date).Msg("worldbank period not parseable, skipping point")
			continue
		}
		s.AddValue(date, *r.Value)
	}
	if s.Len() > 0 {
		s.Metadata.Frequency = series.FrequencyOfPeriod(recs[0].Date)
	}
	s.Finalize()
	s.NormalizePercent()
	return s
}

// indicatorCode accepts dotted World Bank codes as-is and maps a handful of
// common terms locally; everything else needs the resolver upstream.
func indicatorCode(req provider.Request) (string, error) {
	term := strings.TrimSpace(req.Indicator)
	if term == "" {
		return "", provider.InvalidInput("indicator", "empty indicator")
	}
	if looksLikeCode(term) {
		return strings.ToUpper(term), nil
	}
	if code, ok := indicatorCodes[normalizeTerm(term)]; ok {
		return code, nil
	}
	return "", provider.NotAvailable(provider.WorldBank, term,
		"no World Bank code known for %q; pass a dotted code such as NY.GDP.MKTP.KD.ZG", term)
}

func iso3List(countries []string) ([]string, error) {
	if len(countries) == 0 {
		// FRED-style default geography.
		return []string{"USA"}, nil
	}
	out := make([]string, 0, len(countries))
	for _, c := range countries {
		iso3, ok := country.ToISO3(c)
		if !ok {
			log.Warn().Str("country", c).Msg("worldbank cannot map country, skipping")
			continue
		}
		out = append(out, iso3)
	}
	if len(out) == 0 {
		return nil, provider.InvalidInput("countries", "no recognizable countries in %v", countries)
	}
	return out, nil
}

// yearRange renders the date filter as YYYY:YYYY. The API filters whole
// years only.
func yearRange(start, end string) string {
	sy, ey := yearOf(start), yearOf(end)
	switch {
	case sy != "" && ey != "":
		return sy + ":" + ey
	case sy != "":
		return sy + ":" + sy
	case ey != "":
		return ey + ":" + ey
	default:
		return ""
	}
}

func yearOf(date string) string {
	if len(date) >= 4 {
		return date[:4]
	}
	return ""
}

// unitFor prefers the record's own unit field, which the API usually leaves
// blank, and otherwise reads the unit out of the indicator name suffix.
func unitFor(recordUnit, indicatorName string) string {
	if recordUnit != "" {
		return recordUnit
	}
	n := strings.ToLower(indicatorName)
	switch {
	case strings.Contains(n, "(% of gdp)"):
		return "Percent of GDP"
	case strings.Contains(n, "(annual %)") || strings.Contains(n, "(%"):
		return "Percent"
	case strings.Contains(n, "us$"):
		return "US Dollars"
	default:
		return ""
	}
}

func dataTypeFor(indicatorName string) string {
	n := strings.ToLower(indicatorName)
	switch {
	case strings.Contains(n, "growth") || strings.Contains(n, "annual %"):
		return series.TypePercentChange
	case strings.Contains(n, "(%") || strings.Contains(n, "% of"):
		return series.TypeRate
	case strings.Contains(n, "index"):
		return series.TypeIndex
	default:
		return series.TypeLevel
	}
}

// looksLikeCode reports whether a term is already a dotted indicator code,
// e.g. NY.GDP.MKTP.KD.ZG or SL.UEM.TOTL.ZS.
func looksLikeCode(term string) bool {
	if !strings.Contains(term, ".") || len(term) < 5 {
		return false
	}
	for _, c := range term {
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '.':
		default:
			return false
		}
	}
	return true
}

func normalizeTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}

var indicatorCodes = map[string]string{
	"gdp":                     "NY.GDP.MKTP.CD",
	"gdp growth":              "NY.GDP.MKTP.KD.ZG",
	"gdp per capita":          "NY.GDP.PCAP.CD",
	"real gdp":                "NY.GDP.MKTP.KD",
	"unemployment":            "SL.UEM.TOTL.ZS",
	"unemployment rate":       "SL.UEM.TOTL.ZS",
	"inflation":               "FP.CPI.TOTL.ZG",
	"cpi":                     "FP.CPI.TOTL.ZG",
	"population":              "SP.POP.TOTL",
	"population growth":       "SP.POP.GROW",
	"real interest rate":      "FR.INR.RINR",
	"interest rate":           "FR.INR.RINR",
	"policy rate":             "FR.INR.RINR",
	"current account":         "BN.CAB.XOKA.GD.ZS",
	"government debt":         "GC.DOD.TOTL.GD.ZS",
	"exports":                 "NE.EXP.GNFS.ZS",
	"imports":                 "NE.IMP.GNFS.ZS",
	"trade":                   "NE.TRD.GNFS.ZS",
	"fdi":                     "BX.KLT.DINV.WD.GD.ZS",
	"life expectancy":         "SP.DYN.LE00.IN",
	"poverty":                 "SI.POV.DDAY",
	"gini":                    "SI.POV.GINI",
	"inequality":              "SI.POV.GINI",
	"labor force":             "SL.TLF.TOTL.IN",
	"gdp per person employed": "SL.GDP.PCAP.EM.KD",
	"productivity":            "SL.GDP.PCAP.EM.KD",
}
