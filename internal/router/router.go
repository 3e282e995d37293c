// Package router picks the single primary provider for a parsed query.
//
// Precedence is strict: a provider the user named in the query text is
// locked and nothing downstream may override it; then the parser's
// provider hint; then deterministic keyword rules; then the catalog's
// availability override. An optional ranker hook may reorder the final
// pick but never an explicit user choice. Routing never hard-fails --
// suspicious decisions carry an informational warning instead.
package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/econoflow/econoflow/internal/catalog"
	"github.com/econoflow/econoflow/internal/country"
	"github.com/econoflow/econoflow/internal/params"
	"github.com/econoflow/econoflow/internal/provider"
)

// Decision is the routing outcome for one query.
type Decision struct {
	Provider             provider.Name `json:"provider"`
	Reasoning            string        `json:"reasoning"`
	Concept              string        `json:"concept,omitempty"`
	IsExplicitUserChoice bool          `json:"is_explicit_user_choice"`
	ValidationWarning    string        `json:"validation_warning,omitempty"`
}

// Ranker is the optional hybrid hook. Implementations may return a
// different provider than the deterministic pick; returning false keeps
// the pick. The router never consults the ranker for explicit choices.
type Ranker interface {
	Best(query string, pick provider.Name, candidates []provider.Name) (provider.Name, bool)
}

// Router routes parsed intents to providers using the active catalog
// snapshot. Safe for concurrent use.
type Router struct {
	store  *catalog.Store
	hybrid Ranker
}

// New builds a router. hybrid may be nil to disable the ranker stage.
func New(store *catalog.Store, hybrid Ranker) *Router {
	return &Router{store: store, hybrid: hybrid}
}

// Route decides the primary provider for an intent.
func (r *Router) Route(in *params.ParsedIntent) Decision {
	query := in.OriginalQuery
	countries := params.Countries(in)
	indicator := firstIndicator(in)
	cat := r.store.Current()
	concept := r.conceptFor(cat, indicator, query)

	if p, ok := ExplicitProvider(query); ok {
		d := Decision{
			Provider:             p,
			Reasoning:            fmt.Sprintf("user named %s in the query", p),
			Concept:              concept,
			IsExplicitUserChoice: true,
		}
		d.ValidationWarning = ValidateRouting(d, query, indicator, countries)
		return d
	}

	var pick provider.Name
	var reason string

	if in.Provider != "" {
		if p, ok := provider.ParseName(in.Provider); ok {
			pick, reason = p, "provider declared by the query parser"
		}
	}
	if pick == "" {
		pick, reason = deterministic(in, query, indicator, countries)
	}
	if pick == "" {
		pick, reason = r.defaultPick(cat, concept, countries)
	}

	// Availability override: the catalog knows which providers cannot
	// serve a concept at all. Never applied to explicit user choices.
	if concept != "" {
		if con, ok := cat.Concept(concept); ok && con.IsNotAvailable(pick) {
			if choice, ok := cat.BestProvider(concept, countries, ""); ok && choice.Provider != pick {
				log.Debug().
					Str("concept", concept).
					Str("from", string(pick)).
					Str("to", string(choice.Provider)).
					Msg("rerouted: provider not available for concept")
				reason = fmt.Sprintf("%s cannot serve %s; catalog picked %s", pick, concept, choice.Provider)
				pick = choice.Provider
			}
		}
	}

	if r.hybrid != nil {
		if p, ok := r.hybrid.Best(query, pick, candidatesFor(cat, concept, pick)); ok && p != pick {
			reason = fmt.Sprintf("ranker preferred %s over %s", p, pick)
			pick = p
		}
	}

	d := Decision{Provider: pick, Reasoning: reason, Concept: concept}
	d.ValidationWarning = ValidateRouting(d, query, indicator, countries)
	return d
}

// firstIndicator returns the first non-empty indicator term, falling
// back to the whole query text.
func firstIndicator(in *params.ParsedIntent) string {
	for _, ind := range in.Indicators {
		if s := strings.TrimSpace(ind); s != "" {
			return s
		}
	}
	return in.OriginalQuery
}

// conceptFor identifies the catalog concept behind a query. The
// indicator term is tried verbatim first; otherwise the concept with
// the most synonym hits in the full query wins. Exclusions veto.
func (r *Router) conceptFor(cat *catalog.Catalog, indicator, query string) string {
	if name, ok := cat.FindConceptByTerm(indicator); ok {
		if cat.IsExcludedTerm(indicator, name) {
			return ""
		}
		return name
	}
	best, bestHits := "", 0
	for _, name := range cat.Concepts() {
		if cat.IsExcludedTerm(query, name) {
			continue
		}
		if hits := cat.SynonymHits(query, name); hits > bestHits {
			best, bestHits = name, hits
		}
	}
	return best
}

// defaultPick is the rule-less fallback: the catalog's best provider
// for the concept, else WorldBank for non-US geography, else FRED.
func (r *Router) defaultPick(cat *catalog.Catalog, concept string, countries []string) (provider.Name, string) {
	if concept != "" {
		if choice, ok := cat.BestProvider(concept, countries, ""); ok {
			return choice.Provider, fmt.Sprintf("catalog best provider for %s", concept)
		}
	}
	for _, c := range countries {
		if c != "US" {
			return provider.WorldBank, "non-US geography defaults to WorldBank"
		}
	}
	return provider.FRED, "default provider"
}

// candidatesFor lists the providers a ranker may choose between.
func candidatesFor(cat *catalog.Catalog, concept string, pick provider.Name) []provider.Name {
	out := []provider.Name{pick}
	if concept == "" {
		return out
	}
	for _, choice := range cat.FallbackProviders(concept, pick) {
		out = append(out, choice.Provider)
	}
	return out
}

// --- explicit provider detection ---

// providerAliases maps spoken provider names to tags. Longer aliases
// first so "statistics canada" wins over "statcan" prefix scans.
var providerAliases = []struct {
	alias string
	name  provider.Name
}{
	{"federal reserve economic data", provider.FRED},
	{"bank for international settlements", provider.BIS},
	{"international monetary fund", provider.IMF},
	{"statistics canada", provider.StatsCan},
	{"exchangerate-api", provider.ExchangeRate},
	{"exchangerate api", provider.ExchangeRate},
	{"exchange rate api", provider.ExchangeRate},
	{"un comtrade", provider.Comtrade},
	{"world bank", provider.WorldBank},
	{"exchangerate", provider.ExchangeRate},
	{"coingecko", provider.CoinGecko},
	{"worldbank", provider.WorldBank},
	{"comtrade", provider.Comtrade},
	{"eurostat", provider.Eurostat},
	{"statscan", provider.StatsCan},
	{"statcan", provider.StatsCan},
	{"fred", provider.FRED},
	{"oecd", provider.OECD},
	{"imf", provider.IMF},
	{"bis", provider.BIS},
}

var explicitRe = buildExplicitRe()

func buildExplicitRe() *regexp.Regexp {
	alts := make([]string, len(providerAliases))
	for i, a := range providerAliases {
		alts[i] = regexp.QuoteMeta(a.alias)
	}
	// "from OECD", "via FRED", "according to IMF", "on CoinGecko".
	return regexp.MustCompile(`(?i)\b(?:from|via|using|per|on|according\s+to|source[:=]?)\s+(?:the\s+)?(` + strings.Join(alts, "|") + `)\b`)
}

// ExplicitProvider detects a provider the user named in the query text,
// e.g. "unemployment from OECD". Bare mentions without a source marker
// do not count: "oecd countries" is a region, not a provider choice.
func ExplicitProvider(query string) (provider.Name, bool) {
	m := explicitRe.FindStringSubmatch(query)
	if m == nil {
		return "", false
	}
	folded := strings.Join(strings.Fields(strings.ToLower(m[1])), " ")
	for _, a := range providerAliases {
		if a.alias == folded {
			return a.name, true
		}
	}
	return "", false
}

// --- deterministic rules ---

var cryptoTokens = []string{
	"bitcoin", "btc", "ethereum", "eth", "crypto", "cryptocurrency",
	"nft", "coingecko", "dogecoin", "solana", "cardano", "stablecoin",
	"altcoin", "defi",
}

var bisConcepts = []string{
	"policy rate", "central bank rate", "property price", "house price",
	"housing price", "residential property", "global liquidity",
	"credit to", "total credit", "debt service ratio",
	"effective exchange rate",
}

var usOnlyTerms = []string{
	"fed funds", "federal funds", "payems", "nonfarm payroll",
	"napm", "ism", "icsa", "initial claims", "jobless claims",
	"housing starts", "case-shiller",
}

var developmentTerms = []string{
	"gdp", "population", "development", "poverty", "life expectancy",
	"literacy", "mortality", "school enrollment",
}

var fiscalTerms = []string{
	"fiscal", "government debt", "public debt", "budget deficit",
	"budget balance", "balance of payments", "current account",
	"government revenue", "government expenditure",
}

// deterministic applies the keyword rules in documented order. The
// first rule that fires wins; returns "" when none do.
func deterministic(in *params.ParsedIntent, query, indicator string, countries []string) (provider.Name, string) {
	lower := strings.ToLower(query + " " + indicator)

	if hasAnyToken(lower, cryptoTokens) {
		return provider.CoinGecko, "crypto asset query"
	}

	if _, _, ok := params.ExtractCurrencyPair(query); ok {
		if historicalIntent(in, lower) {
			return provider.FRED, "historical currency pair uses FRED bilateral series"
		}
		return provider.ExchangeRate, "current currency conversion"
	}

	if isTradeQuery(lower) && hasPartnerSignal(in, lower, countries) {
		return provider.Comtrade, "bilateral trade flow query"
	}

	if len(countries) == 1 && countries[0] == "CA" {
		return provider.StatsCan, "Canada-specific query"
	}

	if len(countries) > 0 && allEUMembers(countries) {
		return provider.Eurostat, "all requested countries are EU members"
	}

	if hasAnyPhrase(lower, bisConcepts) {
		return provider.BIS, "BIS statistical domain"
	}

	if hasAnyPhrase(lower, usOnlyTerms) {
		return provider.FRED, "US-only series"
	}

	if len(countries) >= 2 && hasAnyToken(lower, developmentTerms) {
		return provider.WorldBank, "multi-country development indicator"
	}

	if hasAnyPhrase(lower, fiscalTerms) {
		return provider.IMF, "fiscal and external-balance domain"
	}

	return "", ""
}

// historicalIntent reports whether a currency query asks about the
// past: an explicit window or a time reference in the text.
func historicalIntent(in *params.ParsedIntent, lower string) bool {
	if in.Param("startDate") != "" || in.Param("endDate") != "" ||
		in.ParamInt("startYear") > 0 || in.ParamInt("endYear") > 0 {
		return true
	}
	for _, w := range []string{"history", "historical", "since", "over the last", "over the past", "past year", "last year", "trend", "evolution"} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return yearRe.MatchString(lower)
}

var yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

func isTradeQuery(lower string) bool {
	return strings.Contains(lower, "export") ||
		strings.Contains(lower, "import") ||
		strings.Contains(lower, "trade balance") ||
		strings.Contains(lower, "trade flow")
}

// hasPartnerSignal reports whether a trade query names a counterparty:
// an explicit partner parameter, partner phrasing, or two geographies.
func hasPartnerSignal(in *params.ParsedIntent, lower string, countries []string) bool {
	if in.Param("partner") != "" {
		return true
	}
	if len(countries) >= 2 {
		return true
	}
	for _, w := range []string{"trade with", "exports to", "imports from", "partner", "bilateral"} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func allEUMembers(countries []string) bool {
	for _, c := range countries {
		if !country.IsEUMember(c) {
			return false
		}
	}
	return true
}

func hasAnyPhrase(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// hasAnyToken is hasAnyPhrase with word boundaries, for short tokens
// like "eth" that appear inside ordinary words.
func hasAnyToken(lower string, tokens []string) bool {
	padded := " " + lower + " "
	for _, t := range tokens {
		if containsWord(padded, t) {
			return true
		}
	}
	return false
}

func containsWord(padded, word string) bool {
	from := 0
	for {
		i := strings.Index(padded[from:], word)
		if i < 0 {
			return false
		}
		pos := from + i
		end := pos + len(word)
		from = pos + 1
		if pos > 0 && isWordByte(padded[pos-1]) {
			continue
		}
		if end < len(padded) && isWordByte(padded[end]) {
			continue
		}
		return true
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// ValidateRouting flags decisions that look wrong for the query. The
// warning is informational; routing is never failed here.
func ValidateRouting(d Decision, query, indicator string, countries []string) string {
	lower := strings.ToLower(query + " " + indicator)

	if isTradeQuery(lower) && strings.Contains(lower, "balance") &&
		d.Provider != provider.Comtrade && d.Provider != provider.IMF && d.Provider != provider.WorldBank {
		return fmt.Sprintf("trade balance routed to %s; Comtrade covers bilateral flows", d.Provider)
	}
	if hasAnyToken(lower, cryptoTokens) && d.Provider != provider.CoinGecko {
		return fmt.Sprintf("crypto query routed to %s instead of CoinGecko", d.Provider)
	}
	if _, _, ok := params.ExtractCurrencyPair(query); ok &&
		d.Provider != provider.ExchangeRate && d.Provider != provider.FRED {
		return fmt.Sprintf("currency pair routed to %s; ExchangeRate or FRED expected", d.Provider)
	}
	if len(countries) >= 3 && d.Provider == provider.FRED {
		return "multi-country query routed to FRED, which serves mostly US series"
	}
	return ""
}
