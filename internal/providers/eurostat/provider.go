// Package eurostat implements the Eurostat adapter. The dissemination API
// serves JSON-stat 2.0 cubes: a sparse flat value map plus id/size vectors
// and per-dimension category indexes that the decoder folds back into time
// series. No API key required.
// Docs: https://wikis.ec.europa.eu/display/EUROSTATHELP/API+Statistics+-+data+query
package eurostat

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/country"
	"github.com/econoflow/econoflow/internal/httpx"
	"github.com/econoflow/econoflow/internal/provider"
	"github.com/econoflow/econoflow/pkg/series"
)

const (
	defaultBaseURL = "https://ec.europa.eu/eurostat/api/dissemination/statistics/1.0/data"
	portalURL      = "https://ec.europa.eu/eurostat/databrowser/view/"

	// defaultGeo is the EU27 aggregate Eurostat publishes under the 2020
	// composition code.
	defaultGeo = "EU27_2020"
)

// Provider fetches JSON-stat datasets from the Eurostat dissemination API.
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

func (p *Provider) Name() provider.Name { return provider.Eurostat }

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:        provider.Eurostat,
		Description: "Eurostat: official statistics for EU and EFTA members, no key required",
		Website:     "https://ec.europa.eu/eurostat",
	}
}

// Fetch requests all geographies in one call (the API accepts repeated geo
// parameters) and decodes one series per requested country, preserving
// request order. Countries the dataset does not carry are skipped with a
// log line.
func (p *Provider) Fetch(ctx context.Context, req provider.Request) ([]*series.Series, error) {
	dataset, err := datasetFor(req)
	if err != nil {
		return nil, err
	}
	info := datasets[dataset]
	geos := geoList(req.Countries)

	u := p.queryURL(dataset, info, geos, req)
	var doc jsonStat
	if err := p.hc.GetJSON(ctx, u, &doc); err != nil {
		return nil, provider.FromHTTP(provider.Eurostat, dataset, err)
	}
	if len(doc.ID) == 0 || len(doc.ID) != len(doc.Size) {
		return nil, &provider.DecodeError{Provider: provider.Eurostat, Detail: "id/size vectors missing or inconsistent"}
	}

	var out []*series.Series
	for _, geo := range geos {
		s, err := p.decodeGeo(&doc, dataset, geo, info, req)
		if err != nil {
			if provider.IsNotAvailable(err) {
				log.Warn().Str("dataset", dataset).Str("geo", geo).Err(err).Msg("eurostat has no data for geography")
				continue
			}
			return nil, err
		}
		s.Metadata.APIURL = series.MaskSecrets(u)
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, provider.NotAvailable(provider.Eurostat, dataset,
			"no data for %s", strings.Join(geos, ", "))
	}
	return out, nil
}

// Ping pulls one recent monthly unemployment slice for Germany.
func (p *Provider) Ping(ctx context.Context) error {
	q := url.Values{
		"format":          {"JSON"},
		"lang":            {"EN"},
		"geo":             {"DE"},
		"sinceTimePeriod": {strconv.Itoa(time.Now().Year() - 1)},
	}
	var doc jsonStat
	return p.hc.GetJSON(ctx, p.baseURL+"/une_rt_m?"+q.Encode(), &doc)
}

func (p *Provider) queryURL(dataset string, info datasetInfo, geos []string, req provider.Request) string {
	q := url.Values{"format": {"JSON"}, "lang": {"EN"}}
	for _, g := range geos {
		q.Add("geo", g)
	}
	if code := freqCode(info, req); code != "" {
		q.Set("freq", code)
	}
	if y := yearOf(req.StartDate); y != "" {
		q.Set("sinceTimePeriod", y)
	}
	for dim, val := range req.Dimensions {
		q.Set(dim, val)
	}
	return p.baseURL + "/" + dataset + "?" + q.Encode()
}

// decodeGeo folds the flat value map back into the time series of one
// geography. Non-time dimensions are pinned to a single category: request
// hints first, then the dataset's preferred unit, then the first category.
func (p *Provider) decodeGeo(doc *jsonStat, dataset, geo string, info datasetInfo, req provider.Request) (*series.Series, error) {
	st := strides(doc.Size)
	timePos := -1
	base := 0
	var unitLabel, geoLabel, freqUsed string

	for i, id := range doc.ID {
		d, ok := doc.Dimension[id]
		if !ok {
			return nil, &provider.DecodeError{Provider: provider.Eurostat, Detail: "dimension " + id + " missing from response"}
		}
		switch id {
		case "time":
			timePos = i
		case "geo":
			idx, ok := d.Category.Index[geo]
			if !ok {
				return nil, provider.NotAvailable(provider.Eurostat, dataset, "dataset does not cover %s", geo)
			}
			base += idx * st[i]
			geoLabel = d.Category.Label[geo]
		default:
			code, idx := chooseCategory(id, d, info, req)
			base += idx * st[i]
			switch id {
			case "unit":
				unitLabel = d.Category.Label[code]
				if unitLabel == "" {
					unitLabel = code
				}
			case "freq":
				freqUsed = code
			}
		}
	}
	if timePos < 0 {
		return nil, &provider.DecodeError{Provider: provider.Eurostat, Detail: "dataset has no time dimension"}
	}

	s := series.New(series.Metadata{
		Source:    string(provider.Eurostat),
		Indicator: indicatorLabel(doc, info, req, dataset),
		Country:   countryLabel(geoLabel, geo),
		SeriesID:  dataset,
		Unit:      unitLabel,
		DataType:  info.dataType,
		SourceURL: portalURL + dataset + "/default/table",
	})
	timeDim := doc.Dimension["time"]
	for _, pi := range sortedPeriods(timeDim.Category.Index) {
		date, err := series.ParsePeriod(pi.period)
		if err != nil {
			log.Warn().Str("period", pi.period).Msg("eurostat period not parseable, skipping point")
			continue
		}
		if req.StartDate != "" && date < req.StartDate {
			continue
		}
		if req.EndDate != "" && date > req.EndDate {
			continue
		}
		key := strconv.Itoa(base + pi.idx*st[timePos])
		if v, ok := doc.Value[key]; ok {
			s.Add(date, v)
		} else if _, flagged := doc.Status[key]; flagged {
			// Period exists with a status flag but no figure: a reported gap.
			s.Add(date, nil)
		}
	}
	if s.IsEmpty() {
		return nil, provider.NotAvailable(provider.Eurostat, dataset, "no observations for %s", geo)
	}
	s.Metadata.Frequency = series.NormalizeFrequency(freqUsed)
	if s.Metadata.Frequency == "" {
		s.Metadata.Frequency = series.FrequencyOfPeriod(firstPeriod(timeDim.Category.Index))
	}
	s.Finalize()
	s.NormalizePercent()
	return s, nil
}

// chooseCategory pins a non-time, non-geo dimension to one category.
func chooseCategory(id string, d jsDimension, info datasetInfo, req provider.Request) (string, int) {
	if hint, ok := req.Dimensions[id]; ok {
		if idx, ok := d.Category.Index[hint]; ok {
			return hint, idx
		}
	}
	if id == "unit" && info.unit != "" {
		if idx, ok := d.Category.Index[info.unit]; ok {
			return info.unit, idx
		}
	}
	bestCode, bestIdx := "", int(^uint(0)>>1)
	for code, idx := range d.Category.Index {
		if idx < bestIdx {
			bestCode, bestIdx = code, idx
		}
	}
	return bestCode, bestIdx
}

// strides converts the size vector to row-major strides: the flat position
// of a cell is the index-weighted sum over dimensions.
func strides(size []int) []int {
	st := make([]int, len(size))
	acc := 1
	for i := len(size) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= size[i]
	}
	return st
}

type periodIdx struct {
	period string
	idx    int
}

func sortedPeriods(index map[string]int) []periodIdx {
	out := make([]periodIdx, 0, len(index))
	for p, i := range index {
		out = append(out, periodIdx{p, i})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].idx < out[b].idx })
	return out
}

func firstPeriod(index map[string]int) string {
	best, bestIdx := "", int(^uint(0)>>1)
	for p, i := range index {
		if i < bestIdx {
			best, bestIdx = p, i
		}
	}
	return best
}

// geoList maps requested countries to Eurostat geo codes. Eurostat keeps
// pre-2004 codes for Greece (EL) and the United Kingdom (UK).
func geoList(countries []string) []string {
	if len(countries) == 0 {
		return []string{defaultGeo}
	}
	out := make([]string, 0, len(countries))
	for _, c := range countries {
		iso2, ok := country.Normalize(c)
		if !ok {
			// Aggregates like EA20 pass through untouched.
			out = append(out, strings.ToUpper(c))
			continue
		}
		out = append(out, eurostatGeo(iso2))
	}
	return out
}

func eurostatGeo(iso2 string) string {
	switch iso2 {
	case "GR":
		return "EL"
	case "GB":
		return "UK"
	}
	return iso2
}

func countryLabel(geoLabel, geo string) string {
	if geoLabel != "" {
		return geoLabel
	}
	if name, ok := country.Name(geo); ok {
		return name
	}
	return geo
}

func indicatorLabel(doc *jsonStat, info datasetInfo, req provider.Request, dataset string) string {
	if doc.Label != "" {
		return doc.Label
	}
	if info.label != "" {
		return info.label
	}
	if req.IndicatorName != "" {
		return req.IndicatorName
	}
	return dataset
}

func freqCode(info datasetInfo, req provider.Request) string {
	if code := series.FrequencyCode(req.Frequency); code != "" {
		return code
	}
	return info.freq
}

func yearOf(date string) string {
	if len(date) >= 4 {
		return date[:4]
	}
	return ""
}

// datasetFor maps the indicator term to an online data code; code-shaped
// terms (lowercase with digits or underscores) pass through.
func datasetFor(req provider.Request) (string, error) {
	term := strings.TrimSpace(req.Indicator)
	if term == "" {
		return "", provider.InvalidInput("indicator", "empty indicator")
	}
	lower := strings.ToLower(term)
	if code, ok := indicatorDatasets[normalizeTerm(term)]; ok {
		return code, nil
	}
	if looksLikeDatasetCode(lower) {
		return lower, nil
	}
	return "", provider.NotAvailable(provider.Eurostat, term,
		"no Eurostat dataset for %q; pass an online data code such as une_rt_m", term)
}

// looksLikeDatasetCode matches Eurostat online data codes: lowercase
// letters, digits and underscores with at least one digit or underscore,
// e.g. une_rt_m or tec00115.
func looksLikeDatasetCode(term string) bool {
	if len(term) < 4 || len(term) > 30 {
		return false
	}
	marked := false
	for _, c := range term {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
			marked = true
		case c == '_':
			marked = true
		default:
			return false
		}
	}
	return marked
}

func normalizeTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}

// datasetInfo carries display metadata, the preferred unit category and the
// default frequency code for a dataset.
type datasetInfo struct {
	label    string
	unit     string
	freq     string
	dataType string
}

var datasets = map[string]datasetInfo{
	"une_rt_m":        {"Unemployment rate", "PC_ACT", "M", series.TypeRate},
	"prc_hicp_manr":   {"HICP, annual rate of change", "RCH_A", "M", series.TypePercentChange},
	"nama_10_gdp":     {"GDP and main components", "CP_MEUR", "A", series.TypeLevel},
	"tec00115":        {"Real GDP growth rate", "CLV_PCH_PRE", "A", series.TypePercentChange},
	"nama_10_pc":      {"GDP per capita", "CP_EUR_HAB", "A", series.TypeLevel},
	"demo_pjan":       {"Population on 1 January", "NR", "A", series.TypeLevel},
	"gov_10dd_edpt1":  {"Government deficit and debt", "PC_GDP", "A", series.TypeRate},
	"sts_inpr_m":      {"Production in industry", "I21", "M", series.TypeIndex},
	"sts_trtu_m":      {"Turnover in retail trade", "I21", "M", series.TypeIndex},
	"prc_hpi_q":       {"House price index", "I15_Q", "Q", series.TypeIndex},
	"lfsi_emp_a":      {"Employment and activity", "PC_POP", "A", series.TypeRate},
	"ext_lt_intertrd": {"International trade, long-term indicators", "MIO_EUR", "M", series.TypeLevel},
	"bop_c6_q":        {"Balance of payments by country", "MIO_EUR", "Q", series.TypeLevel},
	"earn_nt_net":     {"Annual net earnings", "EUR", "A", series.TypeLevel},
}

// indicatorDatasets maps common free-text terms to online data codes so the
// adapter stays usable without the resolver.
var indicatorDatasets = map[string]string{
	"unemployment":          "une_rt_m",
	"unemployment rate":     "une_rt_m",
	"inflation":             "prc_hicp_manr",
	"inflation rate":        "prc_hicp_manr",
	"hicp":                  "prc_hicp_manr",
	"cpi":                   "prc_hicp_manr",
	"consumer price index":  "prc_hicp_manr",
	"gdp":                   "nama_10_gdp",
	"gdp growth":            "tec00115",
	"real gdp growth":       "tec00115",
	"gdp per capita":        "nama_10_pc",
	"population":            "demo_pjan",
	"government debt":       "gov_10dd_edpt1",
	"public debt":           "gov_10dd_edpt1",
	"industrial production": "sts_inpr_m",
	"retail sales":          "sts_trtu_m",
	"retail trade":          "sts_trtu_m",
	"house prices":          "prc_hpi_q",
	"property prices":       "prc_hpi_q",
	"employment rate":       "lfsi_emp_a",
	"trade balance":         "ext_lt_intertrd",
	"current account":       "bop_c6_q",
	"wages":                 "earn_nt_net",
	"net earnings":          "earn_nt_net",
}
