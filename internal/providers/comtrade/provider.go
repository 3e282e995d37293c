// Package comtrade implements the UN Comtrade adapter for bilateral trade
// flows. Queries are typed by reporter, partner, commodity (HS) and flow;
// the API takes UN M49 numeric codes and an explicit period list capped at
// twelve per call. Requires a subscription key from
// https://comtradedeveloper.un.org. Taiwan is a non-reporting territory
// (filed as code 490, "Other Asia, nes") and is served from its trading
// partners' records with the flow inverted.
package comtrade

import (
	"context"
	"fmt"
	"math"
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
	defaultBaseURL = "https://comtradeapi.un.org/data/v1/get"
	portalURL      = "https://comtradeplus.un.org"
	credAPIKey     = "subscription-key"

	worldPartner = "0"
	taiwanCode   = "490"
	totalCmd     = "TOTAL"

	// maxPeriods is the API ceiling on periods per request.
	maxPeriods = 12

	defaultWindowYears = 10
)

// mirrorEconomies are the reporters queried when Taiwan's own side of the
// flow is requested without a partner: its largest trading partners, in
// fixed order.
var mirrorEconomies = []string{"156", "842", "392", "410", "344", "702"}

// Provider fetches bilateral trade series from the UN Comtrade API.
type Provider struct {
	baseURL string
	apiKey  string
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
	return &Provider{baseURL: base, apiKey: cfg.APIKey, hc: hc}
}

func (p *Provider) Name() provider.Name { return provider.Comtrade }

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:        provider.Comtrade,
		Description: "UN Comtrade: bilateral goods trade by reporter, partner, commodity and flow",
		Website:     portalURL,
		Credentials: []provider.Credential{{
			Name:        credAPIKey,
			Description: "free key from https://comtradedeveloper.un.org",
			Required:    true,
			EnvVar:      "ECONOFLOW_PROVIDERS_COMTRADE_API_KEY",
		}},
	}
}

// query is one upstream call: a single reporter and partner pair. flipped
// marks partner-perspective queries standing in for a non-reporter.
type query struct {
	reporter string
	partner  string
	flow     string
	flipped  bool
}

// Fetch expands reporters and partners to UN numeric codes (regions fan out
// to their members), runs one call per pair, and returns one series per
// (pair, flow). Calls run serially; the free tier throttles hard.
func (p *Provider) Fetch(ctx context.Context, req provider.Request) ([]*series.Series, error) {
	if p.apiKey == "" {
		return nil, &provider.NotAvailableError{
			Provider:    provider.Comtrade,
			Indicator:   req.Indicator,
			Reason:      "API key not configured (set ECONOFLOW_PROVIDERS_COMTRADE_API_KEY)",
			Suggestions: []string{"WorldBank carries trade aggregates (NE.EXP.GNFS.ZS, NE.IMP.GNFS.ZS) without a key"},
		}
	}
	flow, err := flowCode(req.Flow)
	if err != nil {
		return nil, err
	}
	cmd, err := commodityCode(req.Commodity)
	if err != nil {
		return nil, err
	}
	queries, err := p.plan(req, flow)
	if err != nil {
		return nil, err
	}
	freq := frequencyCode(req.Frequency)
	periods := periodList(freq, req.StartDate, req.EndDate)

	var out []*series.Series
	for _, q := range queries {
		ss, err := p.fetchQuery(ctx, q, cmd, freq, periods)
		if err != nil {
			if provider.IsNotAvailable(err) {
				log.Warn().Str("reporter", q.reporter).Str("partner", q.partner).Err(err).Msg("comtrade has no records for pair")
				continue
			}
			return nil, err
		}
		out = append(out, ss...)
	}
	if len(out) == 0 {
		return nil, provider.NotAvailable(provider.Comtrade, cmd,
			"no trade records for the requested reporter/partner pairs")
	}
	return out, nil
}

// Ping requests one year of US total exports.
func (p *Provider) Ping(ctx context.Context) error {
	if p.apiKey == "" {
		return &provider.NotAvailableError{Provider: provider.Comtrade, Reason: "API key not configured"}
	}
	year := strconv.Itoa(time.Now().Year() - 1)
	u := p.dataURL(query{reporter: "842", partner: worldPartner, flow: "X"}, totalCmd, "A", []string{year})
	var resp getResponse
	return p.hc.GetJSON(ctx, u, &resp)
}

// plan expands the request into per-pair queries. Region labels fan out to
// member lists. A Taiwan reporter cannot be queried directly: the plan
// substitutes its partners as reporters, sets Taiwan as the partner, and
// inverts the flow.
func (p *Provider) plan(req provider.Request, flow string) ([]query, error) {
	partners, err := partnerCodes(req.Partner)
	if err != nil {
		return nil, err
	}

	var qs []query
	for _, rin := range reporterInputs(req) {
		if isTaiwan(rin) {
			mirrors := partners
			if len(mirrors) == 1 && mirrors[0] == worldPartner {
				mirrors = mirrorEconomies
			}
			for _, m := range mirrors {
				qs = append(qs, query{reporter: m, partner: taiwanCode, flow: invertFlow(flow), flipped: true})
			}
			continue
		}
		if members, ok := country.ExpandRegion(rin, country.UNNumeric); ok {
			for _, code := range members {
				for _, pt := range partners {
					qs = append(qs, query{reporter: statisticalCode(code), partner: pt, flow: flow})
				}
			}
			continue
		}
		code, ok := country.ToUNNumeric(rin)
		if !ok {
			return nil, provider.InvalidInput("reporter", "%q is not a recognized country or region", rin)
		}
		for _, pt := range partners {
			qs = append(qs, query{reporter: statisticalCode(code), partner: pt, flow: flow})
		}
	}
	return qs, nil
}

func (p *Provider) fetchQuery(ctx context.Context, q query, cmd, freq string, periods []string) ([]*series.Series, error) {
	u := p.dataURL(q, cmd, freq, periods)
	var resp getResponse
	if err := p.hc.GetJSON(ctx, u, &resp); err != nil {
		return nil, provider.FromHTTP(provider.Comtrade, cmd, err)
	}
	if resp.Error != "" {
		return nil, provider.NotAvailable(provider.Comtrade, cmd, "upstream error: %s", resp.Error)
	}
	if len(resp.Data) == 0 {
		return nil, provider.NotAvailable(provider.Comtrade, cmd,
			"no records for reporter %s and partner %s", q.reporter, q.partner)
	}

	// Revisions and estimates can repeat a (period, flow, commodity) key;
	// keep the maximum-magnitude value.
	best := map[string]tradeRecord{}
	for _, rec := range resp.Data {
		k := rec.Period.String() + "|" + rec.FlowCode + "|" + rec.CmdCode
		if prev, ok := best[k]; !ok || math.Abs(rec.PrimaryValue) > math.Abs(prev.PrimaryValue) {
			best[k] = rec
		}
	}
	byFlow := map[string][]tradeRecord{}
	for _, rec := range best {
		byFlow[rec.FlowCode] = append(byFlow[rec.FlowCode], rec)
	}

	var out []*series.Series
	for _, fc := range flowOrder(byFlow) {
		s, err := p.buildSeries(q, fc, cmd, freq, byFlow[fc], u)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (p *Provider) buildSeries(q query, flowCode, cmd, freq string, recs []tradeRecord, apiURL string) (*series.Series, error) {
	s := series.New(series.Metadata{
		Source:    string(provider.Comtrade),
		Indicator: indicatorLabel(q, flowCode, cmd, recs[0]),
		Country:   reporterLabel(q, recs[0]),
		SeriesID:  q.reporter + "-" + q.partner + "-" + cmd + "-" + flowCode,
		Frequency: frequencyName(freq),
		Unit:      "US dollars",
		DataType:  series.TypeLevel,
		APIURL:    series.MaskSecrets(apiURL),
		SourceURL: portalURL,
		Notes:     flipNote(q, flowCode, recs[0]),
	})
	for _, rec := range recs {
		date, err := series.ParsePeriod(rec.Period.String())
		if err != nil {
			log.Warn().Str("period", rec.Period.String()).Msg("comtrade period not parseable, skipping point")
			continue
		}
		s.AddValue(date, rec.PrimaryValue)
	}
	if s.IsEmpty() {
		return nil, provider.NotAvailable(provider.Comtrade, cmd, "no usable records for reporter %s", q.reporter)
	}
	s.Finalize()
	return s, nil
}

// dataURL builds /C/{freq}/HS with the pair, commodity, flow, period list
// and subscription key.
func (p *Provider) dataURL(q query, cmd, freq string, periods []string) string {
	v := url.Values{
		"reporterCode":     {q.reporter},
		"partnerCode":      {q.partner},
		"period":           {strings.Join(periods, ",")},
		"cmdCode":          {cmd},
		"flowCode":         {q.flow},
		"subscription-key": {p.apiKey},
	}
	return p.baseURL + "/C/" + freq + "/HS?" + v.Encode()
}

// reporterInputs picks the raw reporter inputs: the explicit reporter,
// otherwise the requested countries, otherwise the US.
func reporterInputs(req provider.Request) []string {
	if r := strings.TrimSpace(req.Reporter); r != "" {
		return []string{r}
	}
	if len(req.Countries) > 0 {
		return req.Countries
	}
	return []string{"US"}
}

// partnerCodes resolves the partner input to UN numeric codes: empty means
// the world aggregate, region labels fan out to members (the EU becomes 27
// pair queries), single countries resolve directly.
func partnerCodes(partner string) ([]string, error) {
	pt := strings.TrimSpace(partner)
	if pt == "" || strings.EqualFold(pt, "world") || pt == worldPartner {
		return []string{worldPartner}, nil
	}
	if isTaiwan(pt) {
		return []string{taiwanCode}, nil
	}
	if members, ok := country.ExpandRegion(pt, country.UNNumeric); ok {
		out := make([]string, len(members))
		for i, m := range members {
			out[i] = statisticalCode(m)
		}
		return out, nil
	}
	if code, ok := country.ToUNNumeric(pt); ok {
		return []string{statisticalCode(code)}, nil
	}
	return nil, provider.InvalidInput("partner", "%q is not a recognized country or region", pt)
}

// statisticalCode maps ISO numerics to the M49 statistical codes Comtrade
// files data under where the two differ.
func statisticalCode(unNumeric string) string {
	if s, ok := statisticalCodes[unNumeric]; ok {
		return s
	}
	return unNumeric
}

var statisticalCodes = map[string]string{
	"840": "842", // United States, incl. Puerto Rico and US Virgin Islands
	"250": "251", // France, incl. Monaco and overseas departments
	"380": "381", // Italy, incl. San Marino
	"578": "579", // Norway, incl. Svalbard and Jan Mayen
	"756": "757", // Switzerland, incl. Liechtenstein
	"356": "699", // India, incl. Sikkim
}

// isTaiwan recognizes Taiwan by name, ISO code, ISO numeric 158 or the
// Comtrade code 490.
func isTaiwan(s string) bool {
	t := strings.TrimSpace(s)
	if t == taiwanCode || t == "158" {
		return true
	}
	iso2, ok := country.Normalize(t)
	return ok && iso2 == "TW"
}

func invertFlow(flow string) string {
	switch flow {
	case "X":
		return "M"
	case "M":
		return "X"
	}
	return flow
}

// flowCode maps flow terms to the API codes: X for exports, M for imports,
// "M,X" for both sides.
func flowCode(flow string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(flow)) {
	case "", "x", "export", "exports":
		return "X", nil
	case "m", "import", "imports":
		return "M", nil
	case "all", "both", "trade", "total trade", "m,x", "x,m":
		return "M,X", nil
	}
	return "", provider.InvalidInput("flow", "%q is not a trade flow; use exports, imports or both", flow)
}

// commodityCode resolves the commodity input: empty means total trade,
// HS chapter/heading codes pass through, common goods terms hit the table.
func commodityCode(commodity string) (string, error) {
	c := strings.TrimSpace(commodity)
	if c == "" {
		return totalCmd, nil
	}
	if strings.EqualFold(c, totalCmd) {
		return totalCmd, nil
	}
	if looksLikeHSCode(c) {
		return c, nil
	}
	if code, ok := commodityCodes[normalizeTerm(c)]; ok {
		return code, nil
	}
	return "", provider.NotAvailable(provider.Comtrade, c,
		"no HS mapping for %q; pass an HS chapter or heading code such as 85 or 8542", c)
}

// looksLikeHSCode matches HS chapter (2), heading (4) and subheading (6)
// digit codes.
func looksLikeHSCode(s string) bool {
	if len(s) != 2 && len(s) != 4 && len(s) != 6 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func frequencyCode(freq string) string {
	if series.FrequencyCode(freq) == "M" {
		return "M"
	}
	return "A"
}

func frequencyName(code string) string {
	if code == "M" {
		return series.FreqMonthly
	}
	return series.FreqAnnual
}

// periodList builds the explicit period list the API requires. Without a
// window the last ten calendar years are requested. The API accepts at most
// twelve periods per call; older periods are dropped first.
func periodList(freq, startDate, endDate string) []string {
	endYear := time.Now().Year() - 1
	if y := yearOf(endDate); y > 0 {
		endYear = y
	}
	startYear := endYear - defaultWindowYears + 1
	if y := yearOf(startDate); y > 0 {
		startYear = y
	}
	if startYear > endYear {
		startYear = endYear
	}

	var periods []string
	if freq == "M" {
		start := time.Date(startYear, monthOf(startDate, 1), 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(endYear, monthOf(endDate, 12), 1, 0, 0, 0, 0, time.UTC)
		for t := start; !t.After(end); t = t.AddDate(0, 1, 0) {
			periods = append(periods, t.Format("200601"))
		}
	} else {
		for y := startYear; y <= endYear; y++ {
			periods = append(periods, strconv.Itoa(y))
		}
	}
	if len(periods) > maxPeriods {
		log.Warn().Int("requested", len(periods)).Int("kept", maxPeriods).Msg("comtrade period list truncated to API ceiling")
		periods = periods[len(periods)-maxPeriods:]
	}
	return periods
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}

func monthOf(date string, fallback int) time.Month {
	if len(date) >= 7 {
		if m, err := strconv.Atoi(date[5:7]); err == nil && m >= 1 && m <= 12 {
			return time.Month(m)
		}
	}
	return time.Month(fallback)
}

// flowOrder returns the flow codes present, exports first.
func flowOrder(byFlow map[string][]tradeRecord) []string {
	var order []string
	for _, fc := range []string{"X", "M"} {
		if _, ok := byFlow[fc]; ok {
			order = append(order, fc)
		}
	}
	var rest []string
	for fc := range byFlow {
		if fc != "X" && fc != "M" {
			rest = append(rest, fc)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

func flowWord(code string) string {
	switch code {
	case "X":
		return "Exports"
	case "M":
		return "Imports"
	}
	return "Trade"
}

func indicatorLabel(q query, flowCode, cmd string, rec tradeRecord) string {
	cmdLabel := commodityLabel(cmd, rec)
	if q.flipped {
		// Display the user's side of the flow, not the mirror's.
		return fmt.Sprintf("%s of %s (Taiwan, partner perspective)", flowWord(invertFlow(flowCode)), cmdLabel)
	}
	label := flowWord(flowCode) + " of " + cmdLabel
	if q.partner != worldPartner {
		label += partnerSuffix(flowCode) + partnerName(q.partner, rec)
	}
	return label
}

func partnerSuffix(flowCode string) string {
	if flowCode == "M" {
		return " from "
	}
	return " to "
}

func commodityLabel(cmd string, rec tradeRecord) string {
	if cmd == totalCmd {
		return "all commodities"
	}
	if rec.CmdDesc != "" {
		return rec.CmdDesc
	}
	return "HS " + cmd
}

func reporterLabel(q query, rec tradeRecord) string {
	if rec.ReporterDesc != "" {
		return rec.ReporterDesc
	}
	if name, ok := country.Name(q.reporter); ok {
		return name
	}
	return q.reporter
}

func partnerName(code string, rec tradeRecord) string {
	if rec.PartnerDesc != "" {
		return rec.PartnerDesc
	}
	if name, ok := country.Name(code); ok {
		return name
	}
	return code
}

func flipNote(q query, flowCode string, rec tradeRecord) string {
	if !q.flipped {
		return ""
	}
	return fmt.Sprintf("Taiwan (code 490) does not report to UN Comtrade; values are %s %s with Taiwan.",
		reporterLabel(q, rec), strings.ToLower(flowWord(flowCode)))
}

func normalizeTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}

// commodityCodes maps common goods terms to HS chapters/headings.
var commodityCodes = map[string]string{
	"cereals":              "10",
	"grain":                "10",
	"mineral fuels":        "27",
	"oil":                  "27",
	"fuel":                 "27",
	"energy":               "27",
	"pharmaceuticals":      "30",
	"medicines":            "30",
	"plastics":             "39",
	"iron and steel":       "72",
	"steel":                "72",
	"machinery":            "84",
	"electronics":          "85",
	"electrical machinery": "85",
	"semiconductors":       "8542",
	"chips":                "8542",
	"vehicles":             "87",
	"cars":                 "87",
	"automobiles":          "87",
	"aircraft":             "88",
}
