// Package oecd implements the OECD adapter on the SDMX REST API at
// https://sdmx.oecd.org/public/rest/data, reading CSV responses. Each
// indicator maps to a dataflow reference and a key template with one
// REF_AREA slot, so multi-country requests fan out to one call per
// country. No API key required, but the public endpoint throttles
// aggressively. The endpoint still negotiates legacy TLS, so the adapter
// keeps its own transport instead of the shared pool.
package oecd

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/csv"
	"fmt"
	"net/http"
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
	defaultBaseURL = "https://sdmx.oecd.org/public/rest/data"
	portalURL      = "https://data-explorer.oecd.org"

	sdmxCSVAccept = "application/vnd.sdmx.data+csv; charset=utf-8"
)

// Provider fetches SDMX-CSV data from the OECD public API.
type Provider struct {
	baseURL string
	hc      *httpx.Client
}

func New(cfg config.ProviderConfig) *Provider {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS10, //nolint:gosec // upstream requires legacy TLS
		},
	}
	return &Provider{baseURL: base, hc: httpx.New(httpx.Options{Transport: transport})}
}

func (p *Provider) Name() provider.Name { return provider.OECD }

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:        provider.OECD,
		Description: "OECD: comparable indicators for the 38 members plus key partners, no key required",
		Website:     "https://data-explorer.oecd.org",
	}
}

// Fetch fans out one SDMX call per requested country. The calls run
// serially and a 429 aborts the remaining countries immediately so the
// caller can back off instead of digging the hole deeper.
func (p *Provider) Fetch(ctx context.Context, req provider.Request) ([]*series.Series, error) {
	code, err := indicatorCode(req)
	if err != nil {
		return nil, err
	}
	fl := flows[code]
	areas, unknown := refAreas(req.Countries)
	if len(areas) == 0 {
		return nil, provider.InvalidInput("countries",
			"%s not recognized as countries or OECD aggregates", strings.Join(unknown, ", "))
	}
	for _, u := range unknown {
		log.Warn().Str("country", u).Msg("oecd skipping unrecognized country")
	}

	out := make([]*series.Series, 0, len(areas))
	for _, area := range areas {
		s, err := p.fetchArea(ctx, code, fl, area, req)
		if err != nil {
			if provider.IsNotAvailable(err) {
				log.Warn().Str("code", code).Str("area", area).Err(err).Msg("oecd has no data for country")
				continue
			}
			return nil, err
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, provider.NotAvailable(provider.OECD, code,
			"no data for %s", strings.Join(areas, ", "))
	}
	return out, nil
}

// Ping pulls the latest US short-term interest rate observation.
func (p *Provider) Ping(ctx context.Context) error {
	u := p.baseURL + "/" + flows["IR3TIB"].dataflow + "/USA.M.IR3TIB....?lastNObservations=1&detail=dataonly"
	_, err := p.hc.GetBody(ctx, u, map[string]string{"Accept": sdmxCSVAccept})
	return err
}

func (p *Provider) fetchArea(ctx context.Context, code string, fl flowInfo, area string, req provider.Request) (*series.Series, error) {
	key, freq := keyFor(code, fl, area, req)
	u := p.dataURL(fl.dataflow, key, req)
	body, err := p.hc.GetBody(ctx, u, map[string]string{"Accept": sdmxCSVAccept})
	if err != nil {
		return nil, provider.FromHTTP(provider.OECD, code, err)
	}
	rows, err := readCSV(body)
	if err != nil {
		return nil, &provider.DecodeError{Provider: provider.OECD, Detail: "unparseable CSV for " + code, Err: err}
	}
	if len(rows) < 2 {
		return nil, provider.NotAvailable(provider.OECD, code, "no observations for %s", area)
	}

	header := rows[0]
	timeIdx := findColumn(header, "TIME_PERIOD")
	obsIdx := findColumn(header, "OBS_VALUE")
	if timeIdx < 0 || obsIdx < 0 {
		return nil, &provider.DecodeError{Provider: provider.OECD, Detail: "TIME_PERIOD or OBS_VALUE column missing for " + code}
	}

	s := series.New(series.Metadata{
		Source:    string(provider.OECD),
		Indicator: fl.label,
		Country:   areaLabel(area),
		SeriesID:  code,
		Frequency: freq,
		Unit:      fl.unit,
		DataType:  fl.dataType,
		APIURL:    series.MaskSecrets(u),
		SourceURL: portalURL,
	})
	for _, row := range rows[1:] {
		if len(row) <= timeIdx || len(row) <= obsIdx {
			continue
		}
		date, err := series.ParsePeriod(strings.TrimSpace(row[timeIdx]))
		if err != nil {
			log.Warn().Str("period", row[timeIdx]).Msg("oecd period not parseable, skipping point")
			continue
		}
		raw := strings.TrimSpace(row[obsIdx])
		if raw == "" || raw == "NaN" || raw == "NA" {
			// Published period without a figure: a reported gap.
			s.Add(date, nil)
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			log.Warn().Str("value", raw).Msg("oecd observation not numeric, skipping point")
			continue
		}
		s.AddValue(date, v)
	}
	if s.IsEmpty() {
		return nil, provider.NotAvailable(provider.OECD, code, "no observations for %s", area)
	}
	s.Finalize()
	s.NormalizePercent()
	return s, nil
}

// dataURL builds an SDMX data URL. Parameter order is fixed so cache keys
// stay stable across calls.
func (p *Provider) dataURL(dataflow, key string, req provider.Request) string {
	parts := []string{"dimensionAtObservation=TIME_PERIOD", "detail=dataonly", "format=csvfile"}
	if start := periodOf(req.StartDate); start != "" {
		parts = append(parts, "startPeriod="+start)
	}
	if end := periodOf(req.EndDate); end != "" {
		parts = append(parts, "endPeriod="+end)
	}
	return p.baseURL + "/" + dataflow + "/" + key + "?" + strings.Join(parts, "&")
}

// keyFor fills the REF_AREA slot and reports the effective frequency.
// Quarterly national accounts carry the frequency as the leading dimension,
// so an annual request swaps it there.
func keyFor(code string, fl flowInfo, area string, req provider.Request) (string, string) {
	key := fmt.Sprintf(fl.key, area)
	freq := fl.freq
	if code == "B1_GE" && series.FrequencyCode(req.Frequency) == "A" {
		key = "A" + strings.TrimPrefix(key, "Q")
		freq = series.FreqAnnual
	}
	return key, freq
}

// periodOf truncates a date to the YYYY-MM the API accepts.
func periodOf(date string) string {
	if len(date) > 7 {
		return date[:7]
	}
	return date
}

// refAreas maps requested countries to SDMX REF_AREA codes: ISO3 for
// countries, passthrough for aggregates like G20 or EA19. Unrecognized
// entries are returned separately.
func refAreas(countries []string) ([]string, []string) {
	if len(countries) == 0 {
		return []string{"USA"}, nil
	}
	var areas, unknown []string
	for _, c := range countries {
		if iso3, ok := country.ToISO3(c); ok {
			areas = append(areas, iso3)
			continue
		}
		if up := strings.ToUpper(strings.TrimSpace(c)); aggregates[up] {
			areas = append(areas, up)
			continue
		}
		unknown = append(unknown, c)
	}
	return areas, unknown
}

func areaLabel(area string) string {
	if name, ok := country.Name(area); ok {
		return name
	}
	return area
}

func findColumn(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// readCSV parses an SDMX-CSV body. The first row is the header.
func readCSV(body []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

// indicatorCode maps the request term to an indicator tag: the local term
// table first, then codes from the table passed through as-is.
func indicatorCode(req provider.Request) (string, error) {
	term := strings.TrimSpace(req.Indicator)
	if term == "" {
		return "", provider.InvalidInput("indicator", "empty indicator")
	}
	if code, ok := indicatorCodes[normalizeTerm(term)]; ok {
		return code, nil
	}
	if _, ok := flows[strings.ToUpper(term)]; ok {
		return strings.ToUpper(term), nil
	}
	return "", provider.NotAvailable(provider.OECD, term,
		"no OECD dataflow for %q; supported codes include B1_GE, LRHUTTTT, PRICES_CPI, IRLT", term)
}

func normalizeTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}

// aggregates are the non-country REF_AREA codes the dataflows publish.
var aggregates = map[string]bool{
	"G7":        true,
	"G20":       true,
	"OECD":      true,
	"EA19":      true,
	"EA20":      true,
	"EU27_2020": true,
}

// flowInfo binds an indicator tag to its dataflow reference and series-key
// template (one %s slot for REF_AREA), plus display metadata.
type flowInfo struct {
	dataflow string
	key      string
	label    string
	unit     string
	freq     string
	dataType string
}

const (
	keiFlow      = "OECD.SDD.STES,DSD_KEI@DF_KEI,4.0"
	pricesFlow   = "OECD.SDD.TPS,DSD_PRICES@DF_PRICES_ALL,1.0"
	qnaFlow      = "OECD.SDD.NAD,DSD_NAMAIN1@DF_QNA_EXPENDITURE_USD,1.1"
	outlookFlow  = "OECD.ECO.MAD,DSD_EO@DF_EO,1.1"
	cliFlow      = "OECD.SDD.STES,DSD_STES@DF_CLI,4.1"
	housingFlow  = "OECD.ECO.MPD,DSD_AN_HOUSE_PRICES@DF_HOUSE_PRICES,1.0"
	earningsFlow = "OECD.ELS.SAE,DSD_EARNINGS@AV_AN_WAGE,1.0"
	pdbFlow      = "OECD.SDD.TPS,DSD_PDB@DF_PDB_LV,1.0"
)

var flows = map[string]flowInfo{
	"B1_GE": {qnaFlow, "Q..%s.S1..B1GQ.....V..",
		"Gross domestic product, expenditure approach", "US dollars, millions", series.FreqQuarterly, series.TypeLevel},
	"LRHUTTTT": {keiFlow, "%s.M.LRHUTTTT....",
		"Harmonised unemployment rate", "Percent of labour force", series.FreqMonthly, series.TypeRate},
	"LREMTTTT": {keiFlow, "%s.Q.LREMTTTT....",
		"Employment rate", "Percent of working age population", series.FreqQuarterly, series.TypeRate},
	"IRLT": {keiFlow, "%s.M.IRLT....",
		"Long-term interest rates", "Percent per annum", series.FreqMonthly, series.TypeRate},
	"IR3TIB": {keiFlow, "%s.M.IR3TIB....",
		"Short-term interest rates, 3-month interbank", "Percent per annum", series.FreqMonthly, series.TypeRate},
	"PRICES_CPI": {pricesFlow, "%s.M.N.CPI.IX._T.N.",
		"Consumer price index, all items", "Index 2015=100", series.FreqMonthly, series.TypeIndex},
	"PRINTO01": {keiFlow, "%s.M.PRINTO01....",
		"Production of total industry", "Index 2015=100", series.FreqMonthly, series.TypeIndex},
	"SLRTTO01": {keiFlow, "%s.M.SLRTTO01....",
		"Retail trade volume", "Index 2015=100", series.FreqMonthly, series.TypeIndex},
	"HOUSE_PRICES": {housingFlow, "%s.Q.RHP",
		"Real house price index", "Index 2015=100", series.FreqQuarterly, series.TypeIndex},
	"GDPHRWKD": {pdbFlow, "%s.A.GDPHRS.USD_PPP",
		"GDP per hour worked", "US dollars, current PPPs", series.FreqAnnual, series.TypeLevel},
	"AV_AN_WAGE": {earningsFlow, "%s.A.USD_PPP",
		"Average annual wages", "US dollars, constant PPPs", series.FreqAnnual, series.TypeLevel},
	"CLI": {cliFlow, "%s.M.LI...AA.IX..H",
		"Composite leading indicator, amplitude adjusted", "Index, long-term average = 100", series.FreqMonthly, series.TypeIndex},
	"GDPV_ANNPCT": {outlookFlow, "%s.GDPV_ANNPCT.A",
		"Real GDP growth, Economic Outlook projection", "Percent change", series.FreqAnnual, series.TypePercentChange},
}

// indicatorCodes maps common free-text terms to indicator tags so the
// adapter stays usable without the resolver.
var indicatorCodes = map[string]string{
	"gdp":                         "B1_GE",
	"nominal gdp":                 "B1_GE",
	"gdp growth":                  "B1_GE",
	"real gdp growth":             "B1_GE",
	"unemployment":                "LRHUTTTT",
	"unemployment rate":           "LRHUTTTT",
	"employment rate":             "LREMTTTT",
	"interest rates":              "IRLT",
	"long-term interest rates":    "IRLT",
	"long term interest rates":    "IRLT",
	"bond yields":                 "IRLT",
	"short-term interest rates":   "IR3TIB",
	"short term interest rates":   "IR3TIB",
	"inflation":                   "PRICES_CPI",
	"cpi":                         "PRICES_CPI",
	"consumer price index":        "PRICES_CPI",
	"industrial production":       "PRINTO01",
	"retail sales":                "SLRTTO01",
	"retail trade":                "SLRTTO01",
	"house prices":                "HOUSE_PRICES",
	"property prices":             "HOUSE_PRICES",
	"productivity":                "GDPHRWKD",
	"labor productivity":          "GDPHRWKD",
	"labour productivity":         "GDPHRWKD",
	"gdp per hour worked":         "GDPHRWKD",
	"wages":                       "AV_AN_WAGE",
	"average wages":               "AV_AN_WAGE",
	"average annual wages":        "AV_AN_WAGE",
	"composite leading indicator": "CLI",
	"leading indicator":           "CLI",
	"gdp forecast":                "GDPV_ANNPCT",
}
