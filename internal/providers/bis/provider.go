// Package bis implements the BIS Statistics adapter. BIS publishes central
// bank policy rates, credit aggregates, property prices and effective
// exchange rates as SDMX-JSON dataflows for its reporting jurisdictions.
// No API key required.
// Docs: https://stats.bis.org/api-doc/v1/
package bis

import (
	"context"
	"fmt"
	"net/url"
	"sort"
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
	defaultBaseURL = "https://stats.bis.org/api/v1"
	portalURL      = "https://data.bis.org/topics"

	// sdmxAccept pins the SDMX-JSON data format version the decoder expects.
	sdmxAccept = "application/vnd.sdmx.data+json;version=1.0.0"

	// prefWeight makes any preference match dominate observation count when
	// choosing among the series a broad key returns.
	prefWeight = 1000
)

// Provider fetches dataflows from the BIS statistics API, one query per
// country, and reduces each multi-series SDMX response to its best series.
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

func (p *Provider) Name() provider.Name { return provider.BIS }

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:        provider.BIS,
		Description: "Bank for International Settlements: policy rates, credit, property prices and FX statistics",
		Website:     "https://data.bis.org",
	}
}

// Fetch queries the dataflow once per requested country. Countries outside
// the BIS reporting set are skipped with a log line; if every requested
// country is unsupported the request fails so the caller can fall back.
func (p *Provider) Fetch(ctx context.Context, req provider.Request) ([]*series.Series, error) {
	dataflow, err := dataflowFor(req)
	if err != nil {
		return nil, err
	}
	freq := coercedFrequency(dataflow, req.Frequency)

	countries, unsupported := partitionCountries(req.Countries)
	if len(countries) == 0 {
		return nil, &provider.NotAvailableError{
			Provider:    provider.BIS,
			Indicator:   dataflow,
			Reason:      fmt.Sprintf("%s not among the BIS reporting jurisdictions", strings.Join(unsupported, ", ")),
			Suggestions: []string{"WorldBank and IMF cover non-BIS countries for most macro indicators"},
		}
	}
	for _, c := range unsupported {
		log.Warn().Str("dataflow", dataflow).Str("country", c).Msg("bis does not report this jurisdiction, skipping")
	}

	var out []*series.Series
	var lastErr error
	for _, iso2 := range countries {
		s, err := p.fetchCountry(ctx, dataflow, freq, iso2, req)
		if err != nil {
			if provider.IsNotAvailable(err) {
				log.Warn().Str("dataflow", dataflow).Str("country", iso2).Err(err).Msg("bis returned no data for country")
				lastErr = err
				continue
			}
			return nil, err
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, provider.NotAvailable(provider.BIS, dataflow, "no data for %s", strings.Join(countries, ", "))
	}
	return out, nil
}

// Ping pulls a one-period slice of the policy-rate dataflow for the US.
func (p *Provider) Ping(ctx context.Context) error {
	u := p.dataURL("WS_CBPOL", "M.US", "2024-01", "2024-02")
	var resp sdmxResponse
	return p.hc.GetJSONHeaders(ctx, u, map[string]string{"Accept": sdmxAccept}, &resp)
}

// fetchCountry requests {freq}.{country} for the dataflow. BIS answers a
// partial key with every matching dimension combination, so the response is
// reduced to the single best-scoring series before decoding.
func (p *Provider) fetchCountry(ctx context.Context, dataflow, freq, iso2 string, req provider.Request) (*series.Series, error) {
	key := freq + "." + iso2
	u := p.dataURL(dataflow, key, req.StartDate, req.EndDate)

	var resp sdmxResponse
	if err := p.hc.GetJSONHeaders(ctx, u, map[string]string{"Accept": sdmxAccept}, &resp); err != nil {
		return nil, provider.FromHTTP(provider.BIS, dataflow, err)
	}

	chosen, dims, ok := bestSeries(dataflow, resp.Data)
	if !ok {
		return nil, provider.NotAvailable(provider.BIS, dataflow, "no series for %s", key)
	}
	times := timeValues(resp.Data.Structure)
	if len(times) == 0 {
		return nil, &provider.DecodeError{Provider: provider.BIS, Detail: "structure has no TIME_PERIOD dimension"}
	}

	info := dataflowInfo[dataflow]
	s := series.New(series.Metadata{
		Source:    string(provider.BIS),
		Indicator: indicatorLabel(info, req, dataflow),
		Country:   countryLabel(dims, iso2),
		SeriesID:  dataflow,
		Frequency: series.NormalizeFrequency(freq),
		Unit:      unitLabel(info, dims),
		DataType:  info.dataType,
		APIURL:    series.MaskSecrets(u),
		SourceURL: portalURL,
		Notes:     seriesNotes(dims),
	})
	for idx, raw := range chosen.Observations {
		i, err := strconv.Atoi(idx)
		if err != nil || i < 0 || i >= len(times) {
			log.Warn().Str("dataflow", dataflow).Str("index", idx).Msg("bis observation index outside time dimension")
			continue
		}
		date, err := series.ParsePeriod(times[i].ID)
		if err != nil {
			log.Warn().Str("period", times[i].ID).Msg("bis period not parseable, skipping point")
			continue
		}
		s.Add(date, obsValue(raw))
	}
	if s.IsEmpty() {
		return nil, provider.NotAvailable(provider.BIS, dataflow, "series for %s has no observations", key)
	}
	s.Finalize()
	s.NormalizePercent()
	return s, nil
}

func (p *Provider) dataURL(dataflow, key, start, end string) string {
	q := url.Values{}
	if start != "" {
		q.Set("startPeriod", start)
	}
	if end != "" {
		q.Set("endPeriod", end)
	}
	u := p.baseURL + "/data/" + dataflow + "/" + key
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// bestSeries scores every series in the response and returns the winner:
// observation count as base score plus prefWeight per matched preference.
// Keys are walked in numeric document order so ties keep the first series.
func bestSeries(dataflow string, data sdmxData) (sdmxSeries, []dimValue, bool) {
	if len(data.DataSets) == 0 || len(data.DataSets[0].Series) == 0 {
		return sdmxSeries{}, nil, false
	}
	ds := data.DataSets[0]
	prefs := seriesPreferences[dataflow]

	var (
		bestKey   string
		bestScore = -1
		bestDims  []dimValue
	)
	for _, key := range sortedSeriesKeys(ds.Series) {
		dims, err := resolveDims(key, data.Structure.Dimensions.Series)
		if err != nil {
			log.Warn().Str("dataflow", dataflow).Str("key", key).Err(err).Msg("bis series key does not match structure")
			continue
		}
		score := len(ds.Series[key].Observations)
		for _, pref := range prefs {
			if matchesPref(dims, pref) {
				score += prefWeight
			}
		}
		if score > bestScore {
			bestKey, bestScore, bestDims = key, score, dims
		}
	}
	if bestScore < 0 {
		return sdmxSeries{}, nil, false
	}
	return ds.Series[bestKey], bestDims, true
}

// sortedSeriesKeys orders colon-separated index keys numerically, which is
// the order the series appear in the SDMX document.
func sortedSeriesKeys(m map[string]sdmxSeries) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessSeriesKey(keys[i], keys[j]) })
	return keys
}

func lessSeriesKey(a, b string) bool {
	as, bs := strings.Split(a, ":"), strings.Split(b, ":")
	for i := 0; i < len(as) && i < len(bs); i++ {
		ai, _ := strconv.Atoi(as[i])
		bi, _ := strconv.Atoi(bs[i])
		if ai != bi {
			return ai < bi
		}
	}
	return len(as) < len(bs)
}

// resolveDims maps a colon-separated series key to its (dimension, value)
// pairs using the structure's series dimension order.
func resolveDims(key string, dims []sdmxDimension) ([]dimValue, error) {
	parts := strings.Split(key, ":")
	if len(parts) != len(dims) {
		return nil, fmt.Errorf("key has %d positions, structure has %d dimensions", len(parts), len(dims))
	}
	out := make([]dimValue, len(parts))
	for i, part := range parts {
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 || idx >= len(dims[i].Values) {
			return nil, fmt.Errorf("position %d index %q out of range for %s", i, part, dims[i].ID)
		}
		v := dims[i].Values[idx]
		out[i] = dimValue{Dim: dims[i].ID, ID: v.ID, Name: v.Name}
	}
	return out, nil
}

func matchesPref(dims []dimValue, pref seriesPref) bool {
	for _, d := range dims {
		if !strings.EqualFold(d.Dim, pref.dim) {
			continue
		}
		if pref.valueID != "" && strings.EqualFold(d.ID, pref.valueID) {
			return true
		}
		if pref.nameFrag != "" && strings.Contains(strings.ToLower(d.Name), pref.nameFrag) {
			return true
		}
	}
	return false
}

// timeValues finds the TIME_PERIOD observation dimension.
func timeValues(st sdmxStructure) []sdmxDimValue {
	for _, d := range st.Dimensions.Observation {
		if strings.EqualFold(d.ID, "TIME_PERIOD") {
			return d.Values
		}
	}
	if len(st.Dimensions.Observation) > 0 {
		return st.Dimensions.Observation[0].Values
	}
	return nil
}

// obsValue reads the first element of an SDMX observation array; elements
// past the value carry status flags the canonical model does not keep.
func obsValue(raw []any) *float64 {
	if len(raw) == 0 || raw[0] == nil {
		return nil
	}
	switch v := raw[0].(type) {
	case float64:
		return &v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// partitionCountries normalizes the request geography to ISO2 and splits it
// into BIS-reporting and non-reporting jurisdictions.
func partitionCountries(countries []string) (supported, unsupported []string) {
	if len(countries) == 0 {
		return []string{"US"}, nil
	}
	for _, c := range countries {
		iso2, ok := country.Normalize(c)
		if !ok {
			unsupported = append(unsupported, c)
			continue
		}
		if bisReporting[iso2] {
			supported = append(supported, iso2)
		} else {
			unsupported = append(unsupported, iso2)
		}
	}
	return supported, unsupported
}

// dataflowFor maps the indicator term to a BIS dataflow; WS_-prefixed codes
// pass through unchanged.
func dataflowFor(req provider.Request) (string, error) {
	term := strings.TrimSpace(req.Indicator)
	if term == "" {
		return "", provider.InvalidInput("indicator", "empty indicator")
	}
	upper := strings.ToUpper(term)
	if strings.HasPrefix(upper, "WS_") {
		return upper, nil
	}
	if df, ok := indicatorDataflows[normalizeTerm(term)]; ok {
		return df, nil
	}
	return "", provider.NotAvailable(provider.BIS, term,
		"no BIS dataflow for %q; BIS covers policy rates, credit, property prices, debt service and exchange rates", term)
}

// coercedFrequency forces the single frequency a dataflow actually supports;
// unrestricted dataflows honor the request and default to monthly.
func coercedFrequency(dataflow, requested string) string {
	if info, ok := dataflowInfo[dataflow]; ok && info.freq != "" {
		return info.freq
	}
	if code := series.FrequencyCode(requested); code != "" {
		return code
	}
	return "M"
}

func indicatorLabel(info flowInfo, req provider.Request, dataflow string) string {
	if info.label != "" {
		return info.label
	}
	if req.IndicatorName != "" {
		return req.IndicatorName
	}
	return dataflow
}

func countryLabel(dims []dimValue, iso2 string) string {
	for _, d := range dims {
		if strings.EqualFold(d.Dim, "REF_AREA") || strings.EqualFold(d.Dim, "BORROWERS_CTY") {
			if d.Name != "" {
				return d.Name
			}
		}
	}
	if name, ok := country.Name(iso2); ok {
		return name
	}
	return iso2
}

// unitLabel prefers the unit dimension of the chosen series over the
// dataflow default.
func unitLabel(info flowInfo, dims []dimValue) string {
	for _, d := range dims {
		if strings.EqualFold(d.Dim, "UNIT_TYPE") || strings.EqualFold(d.Dim, "UNIT_MEASURE") {
			if d.Name != "" {
				return d.Name
			}
		}
	}
	return info.unit
}

// seriesNotes records the non-geographic dimensions of the chosen series so
// callers can see which combination the preference scoring picked.
func seriesNotes(dims []dimValue) string {
	var parts []string
	for _, d := range dims {
		switch strings.ToUpper(d.Dim) {
		case "FREQ", "REF_AREA", "BORROWERS_CTY", "TIME_PERIOD":
			continue
		}
		if d.Name != "" {
			parts = append(parts, d.Dim+"="+d.Name)
		}
	}
	return strings.Join(parts, "; ")
}

func normalizeTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}

// flowInfo carries per-dataflow display metadata and the coerced frequency
// code, empty when the dataflow serves several frequencies.
type flowInfo struct {
	label    string
	unit     string
	dataType string
	freq     string
}

var dataflowInfo = map[string]flowInfo{
	"WS_CBPOL":         {"Central bank policy rate", "Percent per annum", series.TypeRate, "M"},
	"WS_LONG_CPI":      {"Consumer prices, long series", "Index", series.TypeIndex, "M"},
	"WS_XRU":           {"US dollar exchange rate", "Domestic currency per US dollar", series.TypeLevel, "M"},
	"WS_TC":            {"Credit to the non-financial sector", "Percentage of GDP", series.TypeRate, "Q"},
	"WS_SPP":           {"Residential property prices", "Index", series.TypeIndex, "Q"},
	"WS_DSR":           {"Debt service ratio, private non-financial sector", "Percent", series.TypeRate, "Q"},
	"WS_GLI":           {"Global liquidity indicators", "US dollars", series.TypeLevel, "Q"},
	"WS_DEBT_SEC2_PUB": {"Public sector debt securities", "US dollars", series.TypeLevel, "Q"},
	"WS_EER":           {"Effective exchange rate", "Index", series.TypeIndex, ""},
}

// indicatorDataflows maps common free-text terms to dataflows so the adapter
// stays usable without the resolver.
var indicatorDataflows = map[string]string{
	"policy rate":                    "WS_CBPOL",
	"central bank rate":              "WS_CBPOL",
	"central bank policy rate":       "WS_CBPOL",
	"policy interest rate":           "WS_CBPOL",
	"inflation":                      "WS_LONG_CPI",
	"cpi":                            "WS_LONG_CPI",
	"consumer prices":                "WS_LONG_CPI",
	"consumer price index":           "WS_LONG_CPI",
	"exchange rate":                  "WS_XRU",
	"total credit":                   "WS_TC",
	"credit":                         "WS_TC",
	"credit to non-financial sector": "WS_TC",
	"household debt":                 "WS_TC",
	"house prices":                   "WS_SPP",
	"property prices":                "WS_SPP",
	"residential property prices":    "WS_SPP",
	"home prices":                    "WS_SPP",
	"debt service ratio":             "WS_DSR",
	"dsr":                            "WS_DSR",
	"global liquidity":               "WS_GLI",
	"real effective exchange rate":   "WS_EER",
	"effective exchange rate":        "WS_EER",
	"reer":                           "WS_EER",
	"public debt securities":         "WS_DEBT_SEC2_PUB",
	"government debt securities":     "WS_DEBT_SEC2_PUB",
}

// seriesPref is a strong preference for one dimension value, matched by
// exact value id or by a lowercase fragment of the value's display name.
type seriesPref struct {
	dim      string
	valueID  string
	nameFrag string
}

// seriesPreferences drives best-series selection for dataflows whose broad
// keys return many dimension combinations.
var seriesPreferences = map[string][]seriesPref{
	"WS_TC": {
		{dim: "TC_BORROWERS", valueID: "P", nameFrag: "private non-financial"},
		{dim: "UNIT_TYPE", valueID: "770", nameFrag: "percentage of gdp"},
		{dim: "TC_ADJUST", valueID: "A", nameFrag: "adjusted for breaks"},
		{dim: "VALUATION", valueID: "M", nameFrag: "market value"},
	},
	"WS_SPP": {
		{dim: "VALUE", valueID: "R", nameFrag: "real"},
		{dim: "UNIT_MEASURE", nameFrag: "index"},
	},
	"WS_DSR": {
		{dim: "DSR_BORROWERS", valueID: "P", nameFrag: "private non-financial"},
	},
	"WS_EER": {
		{dim: "EER_TYPE", valueID: "R", nameFrag: "real"},
		{dim: "EER_BASKET", valueID: "B", nameFrag: "broad"},
	},
	"WS_LONG_CPI": {
		{dim: "UNIT_MEASURE", nameFrag: "index"},
	},
}

// bisReporting is the set of jurisdictions BIS statistics cover. Requests
// for other countries are refused so the orchestrator can fall back.
var bisReporting = map[string]bool{
	"AR": true, "AU": true, "AT": true, "BE": true, "BR": true, "BG": true,
	"CA": true, "CL": true, "CN": true, "CO": true, "HR": true, "CZ": true,
	"DK": true, "EE": true, "FI": true, "FR": true, "DE": true, "GR": true,
	"HK": true, "HU": true, "IS": true, "IN": true, "ID": true, "IE": true,
	"IL": true, "IT": true, "JP": true, "KR": true, "LV": true, "LT": true,
	"LU": true, "MY": true, "MT": true, "MX": true, "NL": true, "NZ": true,
	"NO": true, "PE": true, "PH": true, "PL": true, "PT": true, "RO": true,
	"RU": true, "SA": true, "RS": true, "SG": true, "SK": true, "SI": true,
	"ZA": true, "ES": true, "SE": true, "CH": true, "TH": true, "TR": true,
	"GB": true, "US": true,
}
