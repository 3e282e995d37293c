// Package statscan implements the Statistics Canada adapter on the Web Data
// Service (WDS). Series are addressed by vector id (v-number) or by cube
// product and coordinate; lookups are POST requests with a JSON body. No
// API key required. Canada-only coverage.
// Docs: https://www.statcan.gc.ca/en/developers/wds/user-guide
package statscan

import (
	"context"
	"encoding/json"
	"fmt"
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
	defaultBaseURL = "https://www150.statcan.gc.ca/t1/wds/rest"
	portalURL      = "https://www150.statcan.gc.ca"

	// defaultLatestN bounds unwindowed fetches: five years of monthly data.
	defaultLatestN = 60
)

// Provider fetches Canadian series from the StatsCan WDS endpoints.
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

func (p *Provider) Name() provider.Name { return provider.StatsCan }

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:        provider.StatsCan,
		Description: "Statistics Canada Web Data Service: Canadian series by vector or cube coordinate",
		Website:     portalURL,
	}
}

// Fetch resolves the request to a vector id (or a cube coordinate when the
// request carries product/coordinate hints), reads the series metadata, and
// returns one canonical series. Only Canada is served.
func (p *Provider) Fetch(ctx context.Context, req provider.Request) ([]*series.Series, error) {
	if err := checkCanada(req.Countries); err != nil {
		return nil, err
	}
	if pid, coord := req.Dimensions["product"], req.Dimensions["coordinate"]; pid != "" && coord != "" {
		return p.fetchCoordinate(ctx, pid, coord, req)
	}

	vec, err := vectorFor(req)
	if err != nil {
		return nil, err
	}
	info, err := p.seriesInfo(ctx, vec)
	if err != nil {
		return nil, err
	}
	points, apiURL, err := p.vectorData(ctx, vec, req)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, provider.NotAvailable(provider.StatsCan, vec, "no observations in the requested window")
	}

	vi := vectors[vec]
	s := series.New(series.Metadata{
		Source:    string(provider.StatsCan),
		Indicator: titleFor(info, vi, req),
		Country:   "Canada",
		SeriesID:  vec,
		Frequency: frequencyName(info.FrequencyCode),
		Unit:      unitFor(info, vi),
		DataType:  vi.dataType,
		APIURL:    series.MaskSecrets(apiURL),
		SourceURL: portalURL,
	})
	addPoints(s, points)
	if s.IsEmpty() {
		return nil, provider.NotAvailable(provider.StatsCan, vec, "no usable observations")
	}
	s.Finalize()
	s.NormalizePercent()
	return []*series.Series{s}, nil
}

// Ping reads the metadata of the all-items CPI vector.
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.seriesInfo(ctx, "v41690973")
	return err
}

// fetchCoordinate serves cube breakdowns (industry, demographic) addressed
// by productId and a dotted coordinate.
func (p *Provider) fetchCoordinate(ctx context.Context, pid, coord string, req provider.Request) ([]*series.Series, error) {
	productID, err := strconv.ParseInt(pid, 10, 64)
	if err != nil {
		return nil, provider.InvalidInput("product", "%q is not a StatsCan product id", pid)
	}
	u := p.baseURL + "/getDataFromCubePidCoordAndLatestNPeriods"
	payload := []map[string]any{{"productId": productID, "coordinate": coord, "latestN": latestN(req)}}
	var envs []wdsEnvelope
	if err := p.hc.PostJSON(ctx, u, payload, &envs); err != nil {
		return nil, provider.FromHTTP(provider.StatsCan, pid, err)
	}
	data, err := unwrapData(envs, pid)
	if err != nil {
		return nil, err
	}

	indicator := req.IndicatorName
	if indicator == "" {
		indicator = fmt.Sprintf("StatsCan product %s, coordinate %s", pid, coord)
	}
	s := series.New(series.Metadata{
		Source:    string(provider.StatsCan),
		Indicator: indicator,
		Country:   "Canada",
		SeriesID:  pid + ":" + coord,
		Frequency: frequencyName(frequencyOf(data.VectorDataPoint)),
		APIURL:    series.MaskSecrets(u),
		SourceURL: portalURL,
	})
	addPoints(s, data.VectorDataPoint)
	if s.IsEmpty() {
		return nil, provider.NotAvailable(provider.StatsCan, pid, "no observations at coordinate %s", coord)
	}
	s.Finalize()
	s.NormalizePercent()
	return []*series.Series{s}, nil
}

// seriesInfo reads title, frequency and scalar metadata for a vector.
func (p *Provider) seriesInfo(ctx context.Context, vec string) (seriesInfo, error) {
	id, err := vectorID(vec)
	if err != nil {
		return seriesInfo{}, err
	}
	u := p.baseURL + "/getSeriesInfoFromVector"
	var envs []wdsEnvelope
	if err := p.hc.PostJSON(ctx, u, []map[string]any{{"vectorId": id}}, &envs); err != nil {
		return seriesInfo{}, provider.FromHTTP(provider.StatsCan, vec, err)
	}
	if len(envs) == 0 || envs[0].Status != "SUCCESS" {
		return seriesInfo{}, provider.NotAvailable(provider.StatsCan, vec, "vector %s does not exist", vec)
	}
	var info seriesInfo
	if err := json.Unmarshal(envs[0].Object, &info); err != nil {
		return seriesInfo{}, &provider.DecodeError{Provider: provider.StatsCan, Detail: "series info for " + vec, Err: err}
	}
	return info, nil
}

// vectorData reads observations: an explicit window uses the reference
// period range endpoint (a GET, so the query is reproducible), otherwise
// the latest-N endpoint.
func (p *Provider) vectorData(ctx context.Context, vec string, req provider.Request) ([]dataPoint, string, error) {
	if req.StartDate != "" || req.EndDate != "" {
		start, end := window(req)
		// The WDS really does mix startRefPeriod with endReferencePeriod.
		u := fmt.Sprintf("%s/getDataFromVectorByReferencePeriodRange?vectorIds=%s&startRefPeriod=%s&endReferencePeriod=%s",
			p.baseURL, vec, start, end)
		var envs []wdsEnvelope
		if err := p.hc.GetJSON(ctx, u, &envs); err != nil {
			return nil, "", provider.FromHTTP(provider.StatsCan, vec, err)
		}
		data, err := unwrapData(envs, vec)
		if err != nil {
			return nil, "", err
		}
		return data.VectorDataPoint, u, nil
	}

	id, err := vectorID(vec)
	if err != nil {
		return nil, "", err
	}
	u := p.baseURL + "/getDataFromVectorsAndLatestNPeriods"
	payload := []map[string]any{{"vectorId": id, "latestN": latestN(req)}}
	var envs []wdsEnvelope
	if err := p.hc.PostJSON(ctx, u, payload, &envs); err != nil {
		return nil, "", provider.FromHTTP(provider.StatsCan, vec, err)
	}
	data, err := unwrapData(envs, vec)
	if err != nil {
		return nil, "", err
	}
	return data.VectorDataPoint, u, nil
}

func unwrapData(envs []wdsEnvelope, subject string) (vectorData, error) {
	if len(envs) == 0 || envs[0].Status != "SUCCESS" {
		return vectorData{}, provider.NotAvailable(provider.StatsCan, subject, "WDS returned no data for %s", subject)
	}
	var data vectorData
	if err := json.Unmarshal(envs[0].Object, &data); err != nil {
		return vectorData{}, &provider.DecodeError{Provider: provider.StatsCan, Detail: "vector data for " + subject, Err: err}
	}
	return data, nil
}

func addPoints(s *series.Series, points []dataPoint) {
	for _, dp := range points {
		date, err := series.ParsePeriod(dp.RefPer)
		if err != nil {
			log.Warn().Str("refPer", dp.RefPer).Msg("statscan reference period not parseable, skipping point")
			continue
		}
		// A null value with a symbol code is a reported gap.
		s.Add(date, dp.Value)
	}
}

// checkCanada rejects requests for countries the WDS cannot serve.
func checkCanada(countries []string) error {
	for _, c := range countries {
		iso2, ok := country.Normalize(c)
		if !ok || iso2 != "CA" {
			return provider.NotAvailable(provider.StatsCan, c,
				"StatsCan covers Canada only; WorldBank or OECD carry %s", c)
		}
	}
	return nil
}

// vectorFor maps the indicator term to a vector id; v-numbers pass through.
func vectorFor(req provider.Request) (string, error) {
	term := strings.TrimSpace(req.Indicator)
	if term == "" {
		return "", provider.InvalidInput("indicator", "empty indicator")
	}
	if looksLikeVector(term) {
		return strings.ToLower(term), nil
	}
	if vec, ok := indicatorVectors[normalizeTerm(term)]; ok {
		return vec, nil
	}
	return "", provider.NotAvailable(provider.StatsCan, term,
		"no StatsCan vector for %q; pass a vector id such as v41690973", term)
}

// looksLikeVector matches WDS vector ids: a v followed by digits.
func looksLikeVector(term string) bool {
	if len(term) < 2 || (term[0] != 'v' && term[0] != 'V') {
		return false
	}
	for _, c := range term[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func vectorID(vec string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(vec), "v"), 10, 64)
	if err != nil {
		return 0, provider.InvalidInput("indicator", "%q is not a WDS vector id", vec)
	}
	return id, nil
}

func latestN(req provider.Request) int {
	if req.Days > 0 {
		return req.Days
	}
	return defaultLatestN
}

func window(req provider.Request) (string, string) {
	start := req.StartDate
	end := req.EndDate
	if end == "" {
		end = time.Now().Format("2006-01-02")
	}
	if start == "" {
		start = time.Now().AddDate(-5, 0, 0).Format("2006-01-02")
	}
	return start, end
}

func titleFor(info seriesInfo, vi vectorInfo, req provider.Request) string {
	if info.SeriesTitleEn != "" {
		return info.SeriesTitleEn
	}
	if vi.label != "" {
		return vi.label
	}
	if req.IndicatorName != "" {
		return req.IndicatorName
	}
	return req.Indicator
}

func unitFor(info seriesInfo, vi vectorInfo) string {
	unit := vi.unit
	if name := scalarName(info.ScalarFactorCode); name != "" {
		if unit == "" {
			return name
		}
		return unit + ", " + name
	}
	return unit
}

// frequencyName maps WDS frequency codes to canonical names.
func frequencyName(code int) string {
	switch code {
	case 1:
		return series.FreqDaily
	case 2:
		return series.FreqWeekly
	case 6:
		return series.FreqMonthly
	case 7:
		return series.FreqQuarterly
	case 9:
		return series.FreqSemiannual
	case 12:
		return series.FreqAnnual
	}
	return series.FreqMonthly
}

func frequencyOf(points []dataPoint) int {
	if len(points) == 0 {
		return 0
	}
	return points[0].FrequencyCode
}

// scalarName maps WDS scalar factor codes to magnitude words.
func scalarName(code int) string {
	switch code {
	case 3:
		return "thousands"
	case 6:
		return "millions"
	case 9:
		return "billions"
	}
	return ""
}

func normalizeTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}

// vectorInfo carries display metadata for the curated vectors.
type vectorInfo struct {
	label    string
	unit     string
	dataType string
}

var vectors = map[string]vectorInfo{
	"v2062815":   {"Unemployment rate, Canada, seasonally adjusted", "Percent", series.TypeRate},
	"v41690973":  {"Consumer Price Index, all-items, Canada", "Index 2002=100", series.TypeIndex},
	"v65201210":  {"Gross domestic product at basic prices", "Chained (2017) dollars", series.TypeLevel},
	"v111955442": {"New housing price index, total (house and land)", "Index 201612=100", series.TypeIndex},
}

// indicatorVectors maps common free-text terms to vector ids so the adapter
// stays usable without the resolver.
var indicatorVectors = map[string]string{
	"unemployment":            "v2062815",
	"unemployment rate":       "v2062815",
	"inflation":               "v41690973",
	"cpi":                     "v41690973",
	"consumer price index":    "v41690973",
	"gdp":                     "v65201210",
	"gross domestic product":  "v65201210",
	"house prices":            "v111955442",
	"housing prices":          "v111955442",
	"new housing price index": "v111955442",
	"property prices":         "v111955442",
}
