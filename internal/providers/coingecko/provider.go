// Package coingecko implements the CoinGecko adapter for cryptocurrency
// prices, market capitalization and trading volume. Demo and Pro plans use
// different hostnames and different key parameter names, and demo keys cap
// market_chart history at 365 days. Keys: https://www.coingecko.com/en/api
package coingecko

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/httpx"
	"github.com/econoflow/econoflow/internal/provider"
	"github.com/econoflow/econoflow/pkg/series"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"
	proBaseURL     = "https://pro-api.coingecko.com/api/v3"
	portalURL      = "https://www.coingecko.com"

	demoKeyParam = "x_cg_demo_api_key"
	proKeyParam  = "x_cg_pro_api_key"

	// freeHistoryDays is the deepest market_chart window a demo key can read.
	freeHistoryDays = 365
	defaultDays     = 30
	defaultVs       = "usd"
	defaultCoin     = "bitcoin"
	topCoinsLimit   = 10
)

// metric selects which market_chart column (or simple/price field) a
// request is after.
type metric int

const (
	metricPrice metric = iota
	metricMarketCap
	metricVolume
)

// Provider fetches crypto market data from CoinGecko.
type Provider struct {
	baseURL  string
	apiKey   string
	keyParam string
	pro      bool
	hc       *httpx.Client
}

func New(cfg config.ProviderConfig, hc *httpx.Client) *Provider {
	pro := strings.EqualFold(cfg.Plan, "pro")
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
		if pro {
			base = proBaseURL
		}
	}
	keyParam := demoKeyParam
	if pro {
		keyParam = proKeyParam
	}
	if hc == nil {
		hc = httpx.Default()
	}
	return &Provider{baseURL: base, apiKey: cfg.APIKey, keyParam: keyParam, pro: pro, hc: hc}
}

func (p *Provider) Name() provider.Name { return provider.CoinGecko }

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:        provider.CoinGecko,
		Description: "CoinGecko: cryptocurrency prices, market caps and volumes",
		Website:     portalURL,
		Credentials: []provider.Credential{{
			Name:        demoKeyParam,
			Description: "optional demo key from https://www.coingecko.com/en/api; raises the rate limit",
			Required:    false,
			EnvVar:      "ECONOFLOW_PROVIDERS_COINGECKO_API_KEY",
		}},
	}
}

// Fetch serves three shapes of request: a top-N market listing, a history
// window per coin via market_chart, or the current snapshot via
// simple/price when no window is asked for.
func (p *Provider) Fetch(ctx context.Context, req provider.Request) ([]*series.Series, error) {
	vs := vsCurrency(req.VsCurrency)

	if n, ok := topListing(req.Indicator); ok && len(req.CoinIDs) == 0 {
		return p.fetchMarkets(ctx, vs, n)
	}

	coins, err := coinList(req)
	if err != nil {
		return nil, err
	}
	m := metricFor(req.Indicator)

	days, current, err := p.window(req)
	if err != nil {
		return nil, err
	}
	if current {
		return p.fetchCurrent(ctx, coins, vs, m)
	}

	out := make([]*series.Series, 0, len(coins))
	for _, coin := range coins {
		s, err := p.fetchChart(ctx, coin, vs, days, m)
		if err != nil {
			if provider.IsNotAvailable(err) {
				log.Warn().Str("coin", coin).Err(err).Msg("coingecko has no chart for coin, skipping")
				continue
			}
			return nil, err
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, provider.NotAvailable(provider.CoinGecko, strings.Join(coins, ","),
			"no chart data for the requested coins")
	}
	return out, nil
}

// Ping hits the dedicated health endpoint.
func (p *Provider) Ping(ctx context.Context) error {
	var resp struct {
		GeckoSays string `json:"gecko_says"`
	}
	if err := p.hc.GetJSON(ctx, p.withKey(p.baseURL+"/ping", nil), &resp); err != nil {
		return provider.FromHTTP(provider.CoinGecko, "", err)
	}
	return nil
}

// fetchChart reads one coin's history from /coins/{id}/market_chart.
func (p *Provider) fetchChart(ctx context.Context, coin, vs string, days int, m metric) (*series.Series, error) {
	q := url.Values{}
	q.Set("vs_currency", vs)
	q.Set("days", strconv.Itoa(days))
	if days > 1 {
		// Without this the granularity degrades to hourly or finer.
		q.Set("interval", "daily")
	}
	u := p.withKey(fmt.Sprintf("%s/coins/%s/market_chart", p.baseURL, url.PathEscape(coin)), q)

	var resp chartResponse
	if err := p.hc.GetJSON(ctx, u, &resp); err != nil {
		return nil, provider.FromHTTP(provider.CoinGecko, coin, err)
	}
	rows := resp.rows(m)
	if len(rows) == 0 {
		return nil, provider.NotAvailable(provider.CoinGecko, coin, "no %s data for %q", metricName(m), coin)
	}

	s := series.New(series.Metadata{
		Source:    string(provider.CoinGecko),
		Indicator: indicatorLabel(coin, vs, m),
		SeriesID:  seriesID(coin, vs, m),
		Frequency: series.FreqDaily,
		Unit:      strings.ToUpper(vs),
		DataType:  series.TypeLevel,
		APIURL:    series.MaskSecrets(u),
		SourceURL: fmt.Sprintf("%s/en/coins/%s", portalURL, coin),
	})
	for _, row := range rows {
		s.AddValue(msDate(row[0]), row[1])
	}
	s.Finalize()
	return s, nil
}

// fetchCurrent reads the latest snapshot for all coins in one call.
func (p *Provider) fetchCurrent(ctx context.Context, coins []string, vs string, m metric) ([]*series.Series, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(coins, ","))
	q.Set("vs_currencies", vs)
	q.Set("include_market_cap", "true")
	q.Set("include_24hr_vol", "true")
	u := p.withKey(p.baseURL+"/simple/price", q)

	var resp map[string]map[string]float64
	if err := p.hc.GetJSON(ctx, u, &resp); err != nil {
		return nil, provider.FromHTTP(provider.CoinGecko, strings.Join(coins, ","), err)
	}

	field := vs
	switch m {
	case metricMarketCap:
		field = vs + "_market_cap"
	case metricVolume:
		field = vs + "_24h_vol"
	}
	today := time.Now().UTC().Format("2006-01-02")

	out := make([]*series.Series, 0, len(coins))
	for _, coin := range coins {
		values, ok := resp[coin]
		if !ok {
			log.Warn().Str("coin", coin).Msg("coingecko does not know coin id, skipping")
			continue
		}
		v, ok := values[field]
		if !ok {
			log.Warn().Str("coin", coin).Str("field", field).Msg("coingecko snapshot lacks field, skipping")
			continue
		}
		s := series.New(series.Metadata{
			Source:    string(provider.CoinGecko),
			Indicator: indicatorLabel(coin, vs, m),
			SeriesID:  seriesID(coin, vs, m),
			Frequency: series.FreqDaily,
			Unit:      strings.ToUpper(vs),
			DataType:  series.TypeLevel,
			APIURL:    series.MaskSecrets(u),
			SourceURL: fmt.Sprintf("%s/en/coins/%s", portalURL, coin),
			Notes:     "latest snapshot",
		})
		s.AddValue(today, v)
		s.Finalize()
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, provider.NotAvailable(provider.CoinGecko, strings.Join(coins, ","),
			"none of the requested coin ids exist; ids are lowercase slugs such as bitcoin or wrapped-bitcoin")
	}
	return out, nil
}

// fetchMarkets serves "top N" listings from /coins/markets, one single-point
// series per coin ordered by market cap.
func (p *Provider) fetchMarkets(ctx context.Context, vs string, n int) ([]*series.Series, error) {
	q := url.Values{}
	q.Set("vs_currency", vs)
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(n))
	q.Set("page", "1")
	q.Set("sparkline", "false")
	u := p.withKey(p.baseURL+"/coins/markets", q)

	var rows []marketRow
	if err := p.hc.GetJSON(ctx, u, &rows); err != nil {
		return nil, provider.FromHTTP(provider.CoinGecko, "markets", err)
	}
	if len(rows) == 0 {
		return nil, provider.NotAvailable(provider.CoinGecko, "markets", "empty market listing")
	}

	today := time.Now().UTC().Format("2006-01-02")
	out := make([]*series.Series, 0, len(rows))
	for _, row := range rows {
		s := series.New(series.Metadata{
			Source:    string(provider.CoinGecko),
			Indicator: fmt.Sprintf("%s price (%s)", row.Name, strings.ToUpper(vs)),
			SeriesID:  seriesID(row.ID, vs, metricPrice),
			Frequency: series.FreqDaily,
			Unit:      strings.ToUpper(vs),
			DataType:  series.TypeLevel,
			APIURL:    series.MaskSecrets(u),
			SourceURL: fmt.Sprintf("%s/en/coins/%s", portalURL, row.ID),
			Notes:     fmt.Sprintf("market cap rank %d", row.MarketCapRank),
		})
		s.AddValue(today, row.CurrentPrice)
		s.Finalize()
		out = append(out, s)
	}
	return out, nil
}

// window derives the chart depth in days. A request with no window at all
// means the current snapshot; demo keys cannot reach past 365 days.
func (p *Provider) window(req provider.Request) (days int, current bool, err error) {
	switch {
	case req.Days > 0:
		days = req.Days
	case req.StartDate != "":
		start, perr := time.Parse("2006-01-02", req.StartDate)
		if perr != nil {
			return 0, false, provider.InvalidInput("start_date", "%q is not an ISO date", req.StartDate)
		}
		days = int(math.Ceil(time.Since(start).Hours() / 24))
		if days < 1 {
			days = 1
		}
	default:
		return 0, true, nil
	}
	if days > freeHistoryDays && !p.pro {
		return 0, false, &provider.NotAvailableError{
			Provider:  provider.CoinGecko,
			Indicator: req.Indicator,
			Reason:    fmt.Sprintf("%d days of history exceeds the %d-day demo limit", days, freeHistoryDays),
			Suggestions: []string{
				fmt.Sprintf("narrow the window to %d days", freeHistoryDays),
				"a Pro key lifts the limit; set plan: pro for coingecko",
			},
		}
	}
	return days, false, nil
}

// withKey appends query parameters plus the plan's key parameter.
func (p *Provider) withKey(base string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	if p.apiKey != "" {
		q.Set(p.keyParam, p.apiKey)
	}
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}

// coinList resolves the coins to fetch: explicit ids win, then the term
// table, then slug-shaped terms pass through.
func coinList(req provider.Request) ([]string, error) {
	if len(req.CoinIDs) > 0 {
		coins := make([]string, 0, len(req.CoinIDs))
		for _, c := range req.CoinIDs {
			c = strings.ToLower(strings.TrimSpace(c))
			if c != "" {
				coins = append(coins, c)
			}
		}
		if len(coins) > 0 {
			return coins, nil
		}
	}

	key := strings.Join(meaningfulWords(req.Indicator), " ")
	if key == "" {
		return []string{defaultCoin}, nil
	}
	if id, ok := coinIDs[key]; ok {
		return []string{id}, nil
	}
	if looksLikeCoinID(key) {
		return []string{key}, nil
	}
	return nil, provider.NotAvailable(provider.CoinGecko, req.Indicator,
		"no coin matches %q; pass CoinGecko ids such as bitcoin or wrapped-bitcoin", req.Indicator)
}

// meaningfulWords strips metric and filler words so "bitcoin market cap"
// resolves the same coin as "bitcoin".
func meaningfulWords(term string) []string {
	words := strings.Fields(strings.ToLower(term))
	kept := words[:0]
	for _, w := range words {
		if !fillerWords[w] {
			kept = append(kept, w)
		}
	}
	return kept
}

// looksLikeCoinID matches CoinGecko slugs: lowercase letters, digits and
// hyphens.
func looksLikeCoinID(term string) bool {
	if len(term) < 3 {
		return false
	}
	for _, c := range term {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return false
		}
	}
	return true
}

// topListing reports whether the term asks for a market ranking, and for
// how many coins.
func topListing(term string) (int, bool) {
	words := strings.Fields(strings.ToLower(term))
	for i, w := range words {
		if w != "top" && w != "largest" {
			continue
		}
		if i+1 < len(words) {
			if n, err := strconv.Atoi(words[i+1]); err == nil && n > 0 && n <= 250 {
				return n, true
			}
		}
		return topCoinsLimit, true
	}
	return 0, false
}

func metricFor(term string) metric {
	t := strings.ToLower(term)
	switch {
	case strings.Contains(t, "market cap"), strings.Contains(t, "marketcap"), strings.Contains(t, "capitalization"):
		return metricMarketCap
	case strings.Contains(t, "volume"):
		return metricVolume
	}
	return metricPrice
}

func metricName(m metric) string {
	switch m {
	case metricMarketCap:
		return "market cap"
	case metricVolume:
		return "volume"
	}
	return "price"
}

func indicatorLabel(coin, vs string, m metric) string {
	name := coin
	if n, ok := coinNames[coin]; ok {
		name = n
	}
	return fmt.Sprintf("%s %s (%s)", name, metricName(m), strings.ToUpper(vs))
}

func seriesID(coin, vs string, m metric) string {
	return coin + ":" + vs + ":" + strings.ReplaceAll(metricName(m), " ", "_")
}

func vsCurrency(raw string) string {
	vs := strings.ToLower(strings.TrimSpace(raw))
	if vs == "" {
		return defaultVs
	}
	return vs
}

func msDate(ms float64) string {
	return time.UnixMilli(int64(ms)).UTC().Format("2006-01-02")
}

// fillerWords are stripped before coin resolution.
var fillerWords = map[string]bool{
	"price": true, "prices": true, "market": true, "cap": true,
	"capitalization": true, "marketcap": true, "volume": true,
	"trading": true, "crypto": true, "cryptocurrency": true,
	"current": true, "in": true, "of": true, "the": true,
	"usd": true, "eur": true, "value": true, "history": true,
}

// coinIDs maps common names and tickers to CoinGecko ids.
var coinIDs = map[string]string{
	"bitcoin":  "bitcoin",
	"btc":      "bitcoin",
	"xbt":      "bitcoin",
	"ethereum": "ethereum",
	"eth":      "ethereum",
	"ether":    "ethereum",
	"tether":   "tether",
	"usdt":     "tether",
	"bnb":      "binancecoin",
	"solana":   "solana",
	"sol":      "solana",
	"xrp":      "ripple",
	"ripple":   "ripple",
	"cardano":  "cardano",
	"ada":      "cardano",
	"dogecoin": "dogecoin",
	"doge":     "dogecoin",
	"polkadot": "polkadot",
	"dot":      "polkadot",
	"litecoin": "litecoin",
	"ltc":      "litecoin",
}

// coinNames gives display names for the curated ids; unknown ids use the
// slug itself.
var coinNames = map[string]string{
	"bitcoin":     "Bitcoin",
	"ethereum":    "Ethereum",
	"tether":      "Tether",
	"binancecoin": "BNB",
	"solana":      "Solana",
	"ripple":      "XRP",
	"cardano":     "Cardano",
	"dogecoin":    "Dogecoin",
	"polkadot":    "Polkadot",
	"litecoin":    "Litecoin",
}
