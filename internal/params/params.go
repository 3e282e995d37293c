// Package params turns parsed query intents into typed provider
// requests: geography resolution, default time windows, frequency
// canonicalization, currency-pair extraction and multi-indicator
// splitting. Defaults are applied here, before cache lookup, so two
// phrasings of the same request produce the same cache key.
package params

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/econoflow/econoflow/internal/country"
	"github.com/econoflow/econoflow/internal/provider"
	"github.com/econoflow/econoflow/pkg/series"
)

// Decomposition asks the orchestrator to split one query into one
// subquery per entity. Results come back in entity order.
type Decomposition struct {
	Type     string   `json:"type"`
	Entities []string `json:"entities"`
}

// ParsedIntent is the structured form of a user query, produced by an
// external parser. Parameters carries loosely typed values straight
// from JSON; the accessors below coerce them.
type ParsedIntent struct {
	Provider               string         `json:"provider,omitempty"`
	Indicators             []string       `json:"indicators"`
	Parameters             map[string]any `json:"parameters,omitempty"`
	OriginalQuery          string         `json:"original_query"`
	Confidence             float64        `json:"confidence,omitempty"`
	NeedsClarification     bool           `json:"needs_clarification,omitempty"`
	ClarificationQuestions []string       `json:"clarification_questions,omitempty"`
	Decomposition          *Decomposition `json:"decomposition,omitempty"`
}

// Param returns a parameter as a trimmed string, accepting snake_case
// and camelCase spellings of the key.
func (in *ParsedIntent) Param(key string) string {
	v, ok := in.lookup(key)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// ParamList returns a parameter as a string list. JSON arrays and
// comma-separated strings both work.
func (in *ParsedIntent) ParamList(key string) []string {
	v, ok := in.lookup(key)
	if !ok {
		return nil
	}
	var out []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range t {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(t, ",") {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}

// ParamInt returns a parameter as an int, 0 when absent or malformed.
func (in *ParsedIntent) ParamInt(key string) int {
	s := in.Param(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func (in *ParsedIntent) lookup(key string) (any, bool) {
	if in == nil || in.Parameters == nil {
		return nil, false
	}
	if v, ok := in.Parameters[key]; ok {
		return v, true
	}
	// start_date <-> startDate.
	for k, v := range in.Parameters {
		if foldKey(k) == foldKey(key) {
			return v, true
		}
	}
	return nil, false
}

func foldKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(k, "_", ""))
}

// Validate rejects intents that cannot become requests. Clarification
// questions from the parser ride along on the error.
func Validate(in *ParsedIntent) error {
	if in == nil {
		return provider.InvalidInput("query", "empty intent")
	}
	if in.NeedsClarification {
		return &provider.InvalidInputError{
			Field:          "query",
			Reason:         "query needs clarification",
			Clarifications: in.ClarificationQuestions,
		}
	}
	if len(in.Indicators) == 0 {
		return &provider.InvalidInputError{
			Field:          "indicators",
			Reason:         "no indicator in query",
			Clarifications: []string{"name an economic indicator, e.g. \"unemployment rate\" or \"gdp growth\""},
		}
	}
	return nil
}

// Countries resolves the intent's geography to ISO2 codes, first
// occurrence order preserved. Group labels expand in member order.
// With no explicit parameters the original query is scanned.
func Countries(in *ParsedIntent) []string {
	var raw []string
	raw = append(raw, in.ParamList("countries")...)
	if c := in.Param("country"); c != "" {
		raw = append(raw, c)
	}

	if len(raw) == 0 {
		detected := country.DetectAllCountriesInQuery(in.OriginalQuery)
		regions := country.ExpandRegionsInQuery(in.OriginalQuery)
		raw = append(raw, detected...)
		raw = append(raw, regions...)
	}

	seen := make(map[string]bool)
	var out []string
	add := func(code string) {
		if code == "" || seen[code] {
			return
		}
		seen[code] = true
		out = append(out, code)
	}
	for _, r := range raw {
		if members, ok := country.ExpandRegion(r, country.ISO2); ok {
			for _, m := range members {
				add(m)
			}
			continue
		}
		if iso2, ok := country.Normalize(r); ok {
			add(iso2)
			continue
		}
		// Unknown geography passes through for the adapter to reject
		// with a precise message.
		add(strings.ToUpper(strings.TrimSpace(r)))
	}
	return out
}

// DefaultTimeRange is the window used when the intent names none.
// ExchangeRate and CoinGecko are excluded: the former is current-only,
// the latter is day-count based.
func DefaultTimeRange(p provider.Name, now time.Time) (start, end string) {
	var years int
	switch p {
	case provider.ExchangeRate, provider.CoinGecko:
		return "", ""
	case provider.BIS, provider.Eurostat:
		years = 5
	default:
		years = 10
	}
	return now.AddDate(-years, 0, 0).Format("2006-01-02"), now.Format("2006-01-02")
}

// TimeWindow resolves the intent's window for a provider: explicit
// dates (any period form) win, bare years expand to full years, and
// the provider default fills the gaps.
func TimeWindow(in *ParsedIntent, p provider.Name, now time.Time) (start, end string) {
	defStart, defEnd := DefaultTimeRange(p, now)

	start = parseDateParam(in.Param("startDate"))
	if start == "" {
		if y := in.ParamInt("startYear"); y > 0 {
			start = strconv.Itoa(y) + "-01-01"
		}
	}
	end = parseDateParam(in.Param("endDate"))
	if end == "" {
		if y := in.ParamInt("endYear"); y > 0 {
			end = strconv.Itoa(y) + "-12-31"
		}
	}

	if start == "" {
		start = defStart
	}
	if end == "" {
		if start != "" {
			end = now.Format("2006-01-02")
		} else {
			end = defEnd
		}
	}
	return start, end
}

func parseDateParam(s string) string {
	if s == "" {
		return ""
	}
	iso, err := series.ParsePeriod(s)
	if err != nil {
		return ""
	}
	return iso
}

// BuildRequests expands an intent into one request per indicator, or
// per (indicator, entity) when a decomposition is present. Entity
// order is preserved so the orchestrator can return results in the
// order the user named them.
func BuildRequests(in *ParsedIntent, p provider.Name, now time.Time) ([]provider.Request, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	countries := Countries(in)
	start, end := TimeWindow(in, p, now)
	freq := ""
	if f := in.Param("frequency"); f != "" {
		freq = series.NormalizeFrequency(f)
	}

	base := provider.Request{
		Provider:  p,
		Countries: countries,
		StartDate: start,
		EndDate:   end,
		Frequency: freq,
	}
	if dims := in.ParamList("dimensions"); len(dims) > 0 {
		base.Dimensions = make(map[string]string, len(dims))
		for _, d := range dims {
			if k, v, ok := strings.Cut(d, "="); ok {
				base.Dimensions[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}
		}
	}

	switch p {
	case provider.ExchangeRate:
		fillCurrencyPair(&base, in)
	case provider.FRED:
		// Bilateral FX series also key on the pair.
		if looksLikeCurrencyQuery(in.OriginalQuery) {
			fillCurrencyPair(&base, in)
		}
	case provider.Comtrade:
		fillTradeParams(&base, in)
	case provider.CoinGecko:
		fillCryptoParams(&base, in, now)
	}

	var entities []string
	if in.Decomposition != nil && len(in.Decomposition.Entities) > 0 {
		entities = in.Decomposition.Entities
	}

	var out []provider.Request
	for _, indicator := range in.Indicators {
		indicator = strings.TrimSpace(indicator)
		if indicator == "" {
			continue
		}
		if len(entities) == 0 {
			req := base.Clone()
			req.Indicator = indicator
			out = append(out, req)
			continue
		}
		for _, entity := range entities {
			req := base.Clone()
			req.Indicator = indicator
			if iso2, ok := country.Normalize(entity); ok {
				req.Countries = []string{iso2}
			} else if members, ok := country.ExpandRegion(entity, country.ISO2); ok {
				req.Countries = members
			} else {
				req.Countries = []string{strings.ToUpper(strings.TrimSpace(entity))}
			}
			out = append(out, req)
		}
	}
	if len(out) == 0 {
		return nil, provider.InvalidInput("indicators", "no usable indicator terms")
	}
	return out, nil
}

// fillCurrencyPair populates base/target currency from parameters or,
// failing that, from the query text. This happens before cache keys
// are built so distinct pairs can never collide on one key.
func fillCurrencyPair(req *provider.Request, in *ParsedIntent) {
	req.BaseCurrency = strings.ToUpper(in.Param("baseCurrency"))
	req.TargetCurrency = strings.ToUpper(in.Param("targetCurrency"))
	if req.BaseCurrency != "" && req.TargetCurrency != "" {
		return
	}
	base, target, ok := ExtractCurrencyPair(in.OriginalQuery)
	if ok {
		if req.BaseCurrency == "" {
			req.BaseCurrency = base
		}
		if req.TargetCurrency == "" {
			req.TargetCurrency = target
		}
		return
	}
	if req.BaseCurrency == "" {
		if c, ok := extractSingleCurrency(in.OriginalQuery); ok {
			req.BaseCurrency = c
		} else {
			req.BaseCurrency = "USD"
		}
	}
}

func fillTradeParams(req *provider.Request, in *ParsedIntent) {
	req.Reporter = in.Param("reporter")
	req.Partner = in.Param("partner")
	req.Commodity = in.Param("commodity")
	req.Flow = strings.ToLower(in.Param("flow"))

	if req.Reporter == "" && len(req.Countries) > 0 {
		req.Reporter = req.Countries[0]
	}
	if req.Partner == "" {
		req.Partner = "World"
	}
	if req.Commodity == "" {
		req.Commodity = "TOTAL"
	}
	if req.Flow == "" {
		req.Flow = flowFromQuery(in.OriginalQuery)
	}
}

func flowFromQuery(q string) string {
	lower := strings.ToLower(q)
	switch {
	case strings.Contains(lower, "import"):
		return "import"
	case strings.Contains(lower, "balance"):
		return "balance"
	default:
		return "export"
	}
}

func fillCryptoParams(req *provider.Request, in *ParsedIntent, now time.Time) {
	req.CoinIDs = in.ParamList("coinIds")
	if len(req.CoinIDs) == 0 {
		req.CoinIDs = detectCoins(in.OriginalQuery)
	}
	if len(req.CoinIDs) == 0 {
		req.CoinIDs = []string{"bitcoin"}
	}
	req.VsCurrency = strings.ToLower(in.Param("vsCurrency"))
	if req.VsCurrency == "" {
		req.VsCurrency = "usd"
	}
	// Time references in the query override parser-supplied dates.
	if d, ok := DaysFromQuery(in.OriginalQuery); ok {
		req.Days = d
	} else if d := in.ParamInt("days"); d > 0 {
		req.Days = d
	} else if start := parseDateParam(in.Param("startDate")); start != "" {
		if t, err := time.Parse("2006-01-02", start); err == nil {
			req.Days = int(now.Sub(t).Hours() / 24)
		}
	}
	if req.Days <= 0 {
		req.Days = 30
	}
}

var coinAliases = []struct {
	alias string
	id    string
}{
	{"bitcoin", "bitcoin"}, {"btc", "bitcoin"},
	{"ethereum", "ethereum"}, {"eth", "ethereum"}, {"ether", "ethereum"},
	{"tether", "tether"}, {"usdt", "tether"},
	{"solana", "solana"}, {"sol", "solana"},
	{"cardano", "cardano"}, {"ada", "cardano"},
	{"dogecoin", "dogecoin"}, {"doge", "dogecoin"},
	{"ripple", "ripple"}, {"xrp", "ripple"},
	{"polkadot", "polkadot"}, {"litecoin", "litecoin"},
	{"binance coin", "binancecoin"}, {"bnb", "binancecoin"},
}

func detectCoins(q string) []string {
	lower := " " + strings.ToLower(q) + " "
	seen := make(map[string]bool)
	var out []string
	for _, c := range coinAliases {
		if !containsWord(lower, c.alias) || seen[c.id] {
			continue
		}
		seen[c.id] = true
		out = append(out, c.id)
	}
	return out
}

func containsWord(padded, word string) bool {
	i := strings.Index(padded, word)
	for i >= 0 {
		before := padded[i-1]
		after := byte(' ')
		if i+len(word) < len(padded) {
			after = padded[i+len(word)]
		}
		if !isWordByte(before) && !isWordByte(after) {
			return true
		}
		next := strings.Index(padded[i+1:], word)
		if next < 0 {
			return false
		}
		i += 1 + next
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

var (
	codePairRe   = regexp.MustCompile(`\b([A-Z]{3})\s*[/-]\s*([A-Z]{3})\b`)
	codePairWord = regexp.MustCompile(`\b([A-Z]{3})\s+(?:to|vs\.?|in|against|per)\s+([A-Z]{3})\b`)
	singleCodeRe = regexp.MustCompile(`\b([A-Z]{3})\b`)

	daysRe = regexp.MustCompile(`(?i)\b(?:last|past)\s+(\d+)\s*(day|week|month|year)s?\b`)
	spanRe = regexp.MustCompile(`(?i)\b(?:last|past)\s+(day|week|month|year)\b`)
)

// currencyNames maps spoken currency names to ISO-4217 codes. Longest
// alias first so "canadian dollar" wins over "dollar".
var currencyNames = []struct {
	name string
	code string
}{
	{"new zealand dollar", "NZD"},
	{"australian dollar", "AUD"},
	{"hong kong dollar", "HKD"},
	{"singapore dollar", "SGD"},
	{"canadian dollar", "CAD"},
	{"american dollar", "USD"},
	{"british pound", "GBP"},
	{"japanese yen", "JPY"},
	{"swiss franc", "CHF"},
	{"chinese yuan", "CNY"},
	{"us dollar", "USD"},
	{"renminbi", "CNY"},
	{"sterling", "GBP"},
	{"rupiah", "IDR"},
	{"ringgit", "MYR"},
	{"dollar", "USD"},
	{"krona", "SEK"},
	{"krone", "NOK"},
	{"franc", "CHF"},
	{"pound", "GBP"},
	{"ruble", "RUB"},
	{"rouble", "RUB"},
	{"rupee", "INR"},
	{"euro", "EUR"},
	{"yuan", "CNY"},
	{"peso", "MXN"},
	{"baht", "THB"},
	{"lira", "TRY"},
	{"rand", "ZAR"},
	{"real", "BRL"},
	{"yen", "JPY"},
	{"won", "KRW"},
	{"rmb", "CNY"},
}

// ExtractCurrencyPair finds a (base, target) currency pair in query
// text: uppercase ISO codes joined by a separator or connector word,
// or spoken currency names ("dollar to euro").
func ExtractCurrencyPair(q string) (base, target string, ok bool) {
	if m := codePairRe.FindStringSubmatch(q); m != nil {
		return m[1], m[2], true
	}
	if m := codePairWord.FindStringSubmatch(q); m != nil {
		return m[1], m[2], true
	}

	lower := strings.ToLower(q)
	type hit struct {
		pos  int
		end  int
		code string
	}
	var hits []hit
	claimed := make([]bool, len(lower))
	for _, cn := range currencyNames {
		from := 0
		for {
			i := strings.Index(lower[from:], cn.name)
			if i < 0 {
				break
			}
			pos := from + i
			end := pos + len(cn.name)
			from = pos + 1
			if pos > 0 && isWordByte(lower[pos-1]) {
				continue
			}
			if end < len(lower) && isWordByte(lower[end]) {
				continue
			}
			overlap := false
			for j := pos; j < end; j++ {
				if claimed[j] {
					overlap = true
					break
				}
			}
			if overlap {
				continue
			}
			for j := pos; j < end; j++ {
				claimed[j] = true
			}
			hits = append(hits, hit{pos: pos, end: end, code: cn.code})
		}
	}
	if len(hits) < 2 {
		return "", "", false
	}
	// First two mentions in text order form the pair.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	return hits[0].code, hits[1].code, true
}

func extractSingleCurrency(q string) (string, bool) {
	if m := singleCodeRe.FindStringSubmatch(q); m != nil && isKnownCurrency(m[1]) {
		return m[1], true
	}
	lower := strings.ToLower(q)
	for _, cn := range currencyNames {
		if containsWord(" "+lower+" ", cn.name) {
			return cn.code, true
		}
	}
	return "", false
}

var knownCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CNY": true,
	"CAD": true, "AUD": true, "CHF": true, "INR": true, "BRL": true,
	"KRW": true, "MXN": true, "SEK": true, "NOK": true, "RUB": true,
	"ZAR": true, "TRY": true, "PLN": true, "THB": true, "MYR": true,
	"IDR": true, "SGD": true, "HKD": true, "NZD": true, "DKK": true,
}

func isKnownCurrency(code string) bool { return knownCurrencies[code] }

// looksLikeCurrencyQuery reports whether the query mentions an FX
// conversion, which makes the currency pair part of the cache key.
func looksLikeCurrencyQuery(q string) bool {
	if _, _, ok := ExtractCurrencyPair(q); ok {
		return true
	}
	lower := strings.ToLower(q)
	return strings.Contains(lower, "exchange rate") || strings.Contains(lower, "fx rate")
}

// DaysFromQuery extracts a day count from time references like
// "last 90 days", "past 6 months" or "last year".
func DaysFromQuery(q string) (int, bool) {
	if m := daysRe.FindStringSubmatch(q); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return 0, false
		}
		return n * unitDays(m[2]), true
	}
	if m := spanRe.FindStringSubmatch(q); m != nil {
		return unitDays(m[1]), true
	}
	return 0, false
}

func unitDays(unit string) int {
	switch strings.ToLower(unit) {
	case "week":
		return 7
	case "month":
		return 30
	case "year":
		return 365
	default:
		return 1
	}
}
