package resolve

import (
	"sort"
	"strings"

	"github.com/econoflow/econoflow/internal/provider"
)

// UniversalConcept maps one economic concept to the native codes of
// every provider that carries it. Aliases are the phrasings users
// reach for; IMFCodes let a WEO code stand in for the concept so that
// "NGDP_RPCH for Germany from WorldBank" still lands on the right
// World Bank series.
type UniversalConcept struct {
	Name     string
	Aliases  []string
	IMFCodes []string
	Codes    map[provider.Name][]string
}

// Translation is a successful concept translation for one provider.
type Translation struct {
	Code    string
	Name    string
	Concept string
}

// Translator resolves universal concept terms to provider codes. The
// table is static; learned per-deployment mappings live in Learned.
type Translator struct {
	concepts []UniversalConcept
	byAlias  map[string]int
	imfCodes map[string]int
}

// NewTranslator builds the translator from the built-in concept table.
func NewTranslator() *Translator {
	tr := &Translator{
		concepts: universalConcepts,
		byAlias:  make(map[string]int),
		imfCodes: make(map[string]int),
	}
	for i, c := range tr.concepts {
		tr.byAlias[c.Name] = i
		for _, a := range c.Aliases {
			tr.byAlias[strings.ToLower(a)] = i
		}
		for _, code := range c.IMFCodes {
			tr.imfCodes[strings.ToUpper(code)] = i
		}
	}
	return tr
}

// IsIMFCode reports whether the term is a known IMF DataMapper code.
func (tr *Translator) IsIMFCode(term string) bool {
	_, ok := tr.imfCodes[strings.ToUpper(strings.TrimSpace(term))]
	return ok
}

// Concepts returns the known concept names, sorted.
func (tr *Translator) Concepts() []string {
	out := make([]string, len(tr.concepts))
	for i, c := range tr.concepts {
		out[i] = c.Name
	}
	sort.Strings(out)
	return out
}

// Translate maps term to target's native code. Match order: IMF code
// passthrough, exact alias, fuzzy alias with a stricter ratio for
// short terms. ok is false when no concept matches or the concept has
// no code for target.
func (tr *Translator) Translate(term string, target provider.Name) (Translation, bool) {
	norm := strings.ToLower(strings.TrimSpace(term))
	if norm == "" {
		return Translation{}, false
	}

	if i, ok := tr.imfCodes[strings.ToUpper(norm)]; ok {
		return tr.translation(i, target)
	}
	if i, ok := tr.byAlias[norm]; ok {
		return tr.translation(i, target)
	}

	threshold := fuzzyThreshold(norm)
	best, bestScore := -1, 0.0
	for alias, i := range tr.byAlias {
		score := fuzzyRatio(norm, alias)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 && bestScore >= threshold {
		return tr.translation(best, target)
	}
	return Translation{}, false
}

// ConceptFor is Translate without a target provider: it identifies
// the concept only.
func (tr *Translator) ConceptFor(term string) (string, bool) {
	norm := strings.ToLower(strings.TrimSpace(term))
	if norm == "" {
		return "", false
	}
	if i, ok := tr.imfCodes[strings.ToUpper(norm)]; ok {
		return tr.concepts[i].Name, true
	}
	if i, ok := tr.byAlias[norm]; ok {
		return tr.concepts[i].Name, true
	}
	threshold := fuzzyThreshold(norm)
	best, bestScore := -1, 0.0
	for alias, i := range tr.byAlias {
		score := fuzzyRatio(norm, alias)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 && bestScore >= threshold {
		return tr.concepts[best].Name, true
	}
	return "", false
}

func (tr *Translator) translation(i int, target provider.Name) (Translation, bool) {
	c := tr.concepts[i]
	codes := c.Codes[target]
	if len(codes) == 0 {
		return Translation{}, false
	}
	return Translation{Code: codes[0], Name: conceptTitle(c.Name), Concept: c.Name}, true
}

func conceptTitle(name string) string {
	words := strings.Split(strings.ReplaceAll(name, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		if w == "gdp" || w == "cpi" || w == "imf" {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// fuzzyThreshold is stricter for short terms, where a one-word
// difference flips the meaning ("M2 growth" vs "GDP growth").
func fuzzyThreshold(term string) float64 {
	if len(term) < 15 {
		return 0.85
	}
	return 0.70
}

// fuzzyRatio is the Ratcliff/Obershelp similarity in [0,1]: twice the
// matched character count over the combined length.
func fuzzyRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	m := matchingChars(a, b)
	return 2 * float64(m) / float64(len(a)+len(b))
}

func matchingChars(a, b string) int {
	ai, bi, size := longestCommonRun(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingChars(a[:ai], b[:bi])
	total += matchingChars(a[ai+size:], b[bi+size:])
	return total
}

func longestCommonRun(a, b string) (ai, bi, size int) {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] != b[j-1] {
				cur[j] = 0
				continue
			}
			cur[j] = prev[j-1] + 1
			if cur[j] > size {
				size = cur[j]
				ai = i - size
				bi = j - size
			}
		}
		prev, cur = cur, prev
		for j := range cur {
			cur[j] = 0
		}
	}
	return ai, bi, size
}

var universalConcepts = []UniversalConcept{
	{
		Name:     "gdp",
		Aliases:  []string{"gdp", "gross domestic product", "economic output", "national output", "economy size"},
		IMFCodes: []string{"NGDPD"},
		Codes: map[provider.Name][]string{
			provider.FRED:      {"GDP", "GDPC1"},
			provider.WorldBank: {"NY.GDP.MKTP.CD"},
			provider.IMF:       {"NGDPD"},
			provider.Eurostat:  {"nama_10_gdp"},
			provider.OECD:      {"B1_GE"},
			provider.StatsCan:  {"v65201210"},
		},
	},
	{
		Name:     "gdp_growth",
		Aliases:  []string{"gdp growth", "economic growth", "real gdp growth", "growth rate", "gdp growth rate"},
		IMFCodes: []string{"NGDP_RPCH"},
		Codes: map[provider.Name][]string{
			provider.FRED:      {"A191RL1Q225SBEA"},
			provider.WorldBank: {"NY.GDP.MKTP.KD.ZG"},
			provider.IMF:       {"NGDP_RPCH"},
			provider.Eurostat:  {"tec00115"},
		},
	},
	{
		Name:     "gdp_per_capita",
		Aliases:  []string{"gdp per capita", "income per person", "gdp per person", "per capita gdp", "per capita income"},
		IMFCodes: []string{"NGDPDPC"},
		Codes: map[provider.Name][]string{
			provider.FRED:      {"A939RC0Q052SBEA"},
			provider.WorldBank: {"NY.GDP.PCAP.CD"},
			provider.IMF:       {"NGDPDPC"},
			provider.Eurostat:  {"nama_10_pc"},
		},
	},
	{
		Name:     "inflation",
		Aliases:  []string{"inflation", "inflation rate", "consumer prices", "cpi", "price growth", "cost of living", "consumer price index"},
		IMFCodes: []string{"PCPIPCH", "PCPIEPCH"},
		Codes: map[provider.Name][]string{
			provider.FRED:      {"CPIAUCSL"},
			provider.WorldBank: {"FP.CPI.TOTL.ZG"},
			provider.IMF:       {"PCPIPCH"},
			provider.BIS:       {"WS_LONG_CPI"},
			provider.Eurostat:  {"prc_hicp_manr"},
			provider.OECD:      {"PRICES_CPI"},
			provider.StatsCan:  {"v41690973"},
		},
	},
	{
		Name:     "unemployment",
		Aliases:  []string{"unemployment", "unemployment rate", "jobless rate", "joblessness", "out of work"},
		IMFCodes: []string{"LUR"},
		Codes: map[provider.Name][]string{
			provider.FRED:      {"UNRATE"},
			provider.WorldBank: {"SL.UEM.TOTL.ZS"},
			provider.IMF:       {"LUR"},
			provider.Eurostat:  {"une_rt_m"},
			provider.OECD:      {"LRHUTTTT"},
			provider.StatsCan:  {"v2062815"},
		},
	},
	{
		Name:    "employment",
		Aliases: []string{"employment", "employment rate", "jobs", "payrolls", "employment to population"},
		Codes: map[provider.Name][]string{
			provider.FRED:      {"PAYEMS", "EMRATIO"},
			provider.WorldBank: {"SL.EMP.TOTL.SP.ZS"},
			provider.Eurostat:  {"lfsi_emp_a"},
			provider.OECD:      {"LREMTTTT"},
		},
	},
	{
		Name:    "policy_rate",
		Aliases: []string{"policy rate", "central bank rate", "central bank policy rate", "fed funds rate", "federal funds rate", "base rate", "key rate"},
		Codes: map[provider.Name][]string{
			provider.FRED: {"FEDFUNDS", "DFF"},
			provider.BIS:  {"WS_CBPOL"},
		},
	},
	{
		Name:    "interest_rate",
		Aliases: []string{"interest rate", "interest rates", "bond yield", "10 year yield", "long term interest rate", "government bond yield"},
		Codes: map[provider.Name][]string{
			provider.FRED:      {"DGS10"},
			provider.WorldBank: {"FR.INR.RINR", "FR.INR.LEND"},
			provider.OECD:      {"IRLT"},
		},
	},
	{
		Name:    "exchange_rate",
		Aliases: []string{"exchange rate", "currency rate", "fx rate", "foreign exchange", "conversion rate", "currency conversion"},
		Codes: map[provider.Name][]string{
			provider.ExchangeRate: {"latest"},
			provider.FRED:         {"DEXUSEU"},
			provider.BIS:          {"WS_XRU"},
		},
	},
	{
		Name:    "effective_exchange_rate",
		Aliases: []string{"effective exchange rate", "real effective exchange rate", "reer", "neer", "trade weighted exchange rate"},
		Codes: map[provider.Name][]string{
			provider.BIS: {"WS_EER"},
		},
	},
	{
		Name:     "population",
		Aliases:  []string{"population", "total population", "number of people", "inhabitants"},
		IMFCodes: []string{"LP"},
		Codes: map[provider.Name][]string{
			provider.FRED:      {"POPTHM"},
			provider.WorldBank: {"SP.POP.TOTL"},
			provider.IMF:       {"LP"},
			provider.Eurostat:  {"demo_pjan"},
		},
	},
	{
		Name:    "population_growth",
		Aliases: []string{"population growth", "population growth rate", "demographic growth"},
		Codes: map[provider.Name][]string{
			provider.WorldBank: {"SP.POP.GROW"},
		},
	},
	{
		Name:     "government_debt",
		Aliases:  []string{"government debt", "public debt", "national debt", "sovereign debt", "debt to gdp", "federal debt"},
		IMFCodes: []string{"GGXWDG_NGDP"},
		Codes: map[provider.Name][]string{
			provider.FRED:      {"GFDEGDQ188S"},
			provider.WorldBank: {"GC.DOD.TOTL.GD.ZS"},
			provider.IMF:       {"GGXWDG_NGDP"},
			provider.BIS:       {"WS_DEBT_SEC2_PUB"},
			provider.Eurostat:  {"gov_10dd_edpt1"},
		},
	},
	{
		Name:     "fiscal_balance",
		Aliases:  []string{"fiscal balance", "budget balance", "budget deficit", "government deficit", "net lending", "fiscal deficit"},
		IMFCodes: []string{"GGXCNL_NGDP"},
		Codes: map[provider.Name][]string{
			provider.IMF:      {"GGXCNL_NGDP"},
			provider.Eurostat: {"gov_10dd_edpt1"},
		},
	},
	{
		Name:     "current_account",
		Aliases:  []string{"current account", "current account balance", "external balance", "balance of payments"},
		IMFCodes: []string{"BCA", "BCA_NGDPD"},
		Codes: map[provider.Name][]string{
			provider.IMF:       {"BCA"},
			provider.WorldBank: {"BN.CAB.XOKA.GD.ZS"},
			provider.Eurostat:  {"bop_c6_q"},
		},
	},
	{
		Name:    "trade_balance",
		Aliases: []string{"trade balance", "trade deficit", "trade surplus", "net exports", "merchandise trade balance"},
		Codes: map[provider.Name][]string{
			provider.FRED:      {"BOPGSTB"},
			provider.WorldBank: {"NE.RSB.GNFS.ZS"},
			provider.Comtrade:  {"TOTAL"},
			provider.Eurostat:  {"ext_lt_intertrd"},
		},
	},
	{
		Name:    "exports",
		Aliases: []string{"exports", "export", "goods exported", "outbound trade"},
		Codes: map[provider.Name][]string{
			provider.FRED:      {"EXPGS"},
			provider.WorldBank: {"NE.EXP.GNFS.ZS"},
			provider.Comtrade:  {"TOTAL"},
		},
	},
	{
		Name:    "imports",
		Aliases: []string{"imports", "import", "goods imported", "inbound trade"},
		Codes: map[provider.Name][]string{
			provider.FRED:      {"IMPGS"},
			provider.WorldBank: {"NE.IMP.GNFS.ZS"},
			provider.Comtrade:  {"TOTAL"},
		},
	},
	{
		Name:    "money_supply",
		Aliases: []string{"money supply", "m2", "m2 money stock", "broad money", "monetary aggregate"},
		Codes: map[provider.Name][]string{
			provider.FRED:      {"M2SL"},
			provider.WorldBank: {"FM.LBL.BMNY.GD.ZS"},
		},
	},
	{
		Name:    "house_prices",
		Aliases: []string{"house prices", "home prices", "property prices", "housing market", "real estate prices", "house price index"},
		Codes: map[provider.Name][]string{
			provider.FRED:     {"CSUSHPINSA"},
			provider.BIS:      {"WS_SPP"},
			provider.Eurostat: {"prc_hpi_q"},
			provider.OECD:     {"HOUSE_PRICES"},
			provider.StatsCan: {"v111955442"},
		},
	},
	{
		Name:    "industrial_production",
		Aliases: []string{"industrial production", "factory output", "manufacturing output", "industrial output"},
		Codes: map[provider.Name][]string{
			provider.FRED:     {"INDPRO"},
			provider.Eurostat: {"sts_inpr_m"},
			provider.OECD:     {"PRINTO01"},
		},
	},
	{
		Name:    "retail_sales",
		Aliases: []string{"retail sales", "consumer spending", "retail trade", "retail turnover"},
		Codes: map[provider.Name][]string{
			provider.FRED:     {"RSAFS"},
			provider.Eurostat: {"sts_trtu_m"},
			provider.OECD:     {"SLRTTO01"},
		},
	},
	{
		Name:    "productivity",
		Aliases: []string{"productivity", "labor productivity", "labour productivity", "output per hour", "output per worker"},
		Codes: map[provider.Name][]string{
			provider.FRED:      {"OPHNFB"},
			provider.WorldBank: {"SL.GDP.PCAP.EM.KD"},
			provider.OECD:      {"GDPHRWKD"},
		},
	},
	{
		Name:    "wages",
		Aliases: []string{"wages", "earnings", "average wages", "hourly earnings", "salaries", "wage growth"},
		Codes: map[provider.Name][]string{
			provider.FRED:     {"CES0500000003"},
			provider.Eurostat: {"earn_nt_net"},
			provider.OECD:     {"AV_AN_WAGE"},
		},
	},
	{
		Name:    "credit",
		Aliases: []string{"credit", "total credit", "private credit", "credit to non financial sector", "bank credit", "lending"},
		Codes: map[provider.Name][]string{
			provider.BIS:       {"WS_TC"},
			provider.WorldBank: {"FS.AST.PRVT.GD.ZS"},
			provider.FRED:      {"TOTBKCR"},
		},
	},
	{
		Name:    "household_debt",
		Aliases: []string{"household debt", "consumer debt", "family debt", "household borrowing"},
		Codes: map[provider.Name][]string{
			provider.BIS:  {"WS_TC"},
			provider.FRED: {"HDTGPDUSQ163N"},
		},
	},
	{
		Name:    "consumer_credit",
		Aliases: []string{"consumer credit", "consumer loans", "credit card debt"},
		Codes: map[provider.Name][]string{
			provider.FRED: {"TOTALSL"},
		},
	},
	{
		Name:    "debt_service_ratio",
		Aliases: []string{"debt service ratio", "debt service", "dsr", "debt burden"},
		Codes: map[provider.Name][]string{
			provider.BIS: {"WS_DSR"},
		},
	},
	{
		Name:    "global_liquidity",
		Aliases: []string{"global liquidity", "cross border credit", "dollar credit", "foreign currency credit"},
		Codes: map[provider.Name][]string{
			provider.BIS: {"WS_GLI"},
		},
	},
	{
		Name:    "crypto_prices",
		Aliases: []string{"crypto prices", "cryptocurrency", "bitcoin price", "crypto market", "coin price", "bitcoin", "ethereum"},
		Codes: map[provider.Name][]string{
			provider.CoinGecko: {"market_chart"},
		},
	},
	{
		Name:    "housing_starts",
		Aliases: []string{"housing starts", "new housing", "residential construction"},
		Codes: map[provider.Name][]string{
			provider.FRED: {"HOUST"},
		},
	},
	{
		Name:    "initial_claims",
		Aliases: []string{"initial claims", "jobless claims", "unemployment claims", "weekly claims"},
		Codes: map[provider.Name][]string{
			provider.FRED: {"ICSA"},
		},
	},
}
