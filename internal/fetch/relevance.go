package fetch

import (
	"fmt"
	"strings"

	"github.com/econoflow/econoflow/internal/country"
	"github.com/econoflow/econoflow/internal/provider"
	"github.com/econoflow/econoflow/internal/resolve"
)

// minTermOverlap is the fraction of informative request terms a
// fallback result must share to be accepted.
const minTermOverlap = 0.30

// subject is a sector entity a request can be about. A fallback result
// about a different subject answers a different question, whatever the
// metric: household debt is not corporate debt.
type subject struct {
	name     string
	keywords []string
}

var subjects = []subject{
	{"corporations", []string{"non-financial corporation", "nonfinancial corporation", "corporation", "corporate", "firms", "business sector"}},
	{"households", []string{"household", "families"}},
	{"government", []string{"general government", "government", "public sector", "sovereign"}},
	{"banks", []string{"bank", "monetary financial institution", "depository"}},
	{"private", []string{"private non-financial", "private nonfinancial", "private sector"}},
}

// subjectCompat lists which result subjects can stand in for a request
// subject. The private non-financial sector aggregates households and
// corporations, so either side of that pair is acceptable.
var subjectCompat = map[string][]string{
	"corporations": {"corporations", "private"},
	"households":   {"households", "private"},
	"government":   {"government"},
	"banks":        {"banks"},
	"private":      {"private", "corporations", "households"},
}

// metricCategory groups indicator metrics. A request naming one
// category must not be answered with another.
type metricCategory struct {
	name     string
	keywords []string
}

var metricCategories = []metricCategory{
	{"debt", []string{"debt", "liabilities", "borrowing", "indebtedness"}},
	{"credit", []string{"credit", "loans", "lending"}},
	{"assets", []string{"assets"}},
	{"income", []string{"income", "earnings", "wages", "compensation", "salaries"}},
	{"exports", []string{"export"}},
	{"imports", []string{"import"}},
	{"prices", []string{"price", "inflation", "cpi"}},
	{"production", []string{"production", "output", "manufacturing"}},
	{"employment", []string{"employment", "unemployment", "jobs", "payroll"}},
	{"rates", []string{"interest rate", "policy rate", "yield"}},
	{"population", []string{"population"}},
	{"trade", []string{"trade balance", "trade flow", "merchandise trade"}},
}

// qualifierOpposites pairs metric qualifiers that contradict each
// other. A request for "fixed assets" is not answered by "current
// assets"; an unqualified result stays acceptable.
var qualifierOpposites = map[string]string{
	"fixed":      "current",
	"current":    "fixed",
	"tangible":   "intangible",
	"intangible": "tangible",
	"gross":      "net",
	"net":        "gross",
	"real":       "nominal",
	"nominal":    "real",
}

// Relevant decides whether a fallback result from a different provider
// is semantically close enough to the original request to stand in for
// it. The reason explains rejections for the operator log; rejection
// means "try the next fallback", never "return with a warning".
func Relevant(req provider.Request, meta ResultMeta) (bool, string) {
	if ok, reason := countryMatches(req.Countries, meta.Country); !ok {
		return false, reason
	}

	want := requestText(req)
	got := meta.Indicator

	if ok, reason := subjectMatches(want, got); !ok {
		return false, reason
	}
	if ok, reason := metricMatches(want, got); !ok {
		return false, reason
	}
	if ok, reason := qualifiersAgree(want, got); !ok {
		return false, reason
	}
	if ok, reason := termsOverlap(want, got); !ok {
		return false, reason
	}
	return true, ""
}

// ResultMeta is the slice of series metadata relevance cares about.
type ResultMeta struct {
	Country   string
	Indicator string
}

// requestText is the human-readable request: the original term when
// the orchestrator preserved one, else the indicator field itself.
func requestText(req provider.Request) string {
	if req.IndicatorName != "" {
		return req.IndicatorName
	}
	return req.Indicator
}

// countryMatches canonicalizes both sides and rejects provable
// mismatches. Unverifiable result geography passes: some providers
// label aggregates ("Euro area") the resolver has no code for.
func countryMatches(requested []string, got string) (bool, string) {
	if len(requested) == 0 || got == "" {
		return true, ""
	}
	gotISO, ok := country.Normalize(got)
	if !ok {
		lower := strings.ToLower(strings.TrimSpace(got))
		for _, want := range requested {
			if name, ok := country.Name(want); ok && strings.ToLower(name) == lower {
				return true, ""
			}
		}
		// Cannot canonicalize; do not reject what we cannot check.
		return true, ""
	}
	for _, want := range requested {
		wantISO, ok := country.Normalize(want)
		if ok && wantISO == gotISO {
			return true, ""
		}
	}
	return false, fmt.Sprintf("country mismatch: requested %v, result covers %s", requested, got)
}

// institutionPhrases name institutions, not sector subjects: "central
// bank policy rate" is about rates, not about banks as borrowers.
var institutionPhrases = []string{"central bank", "world bank"}

// subjectsIn lists every sector subject a text references. Keyword
// order within a subject puts specific phrases first so "private
// non-financial" is found before the bare "corporation".
func subjectsIn(text string) []string {
	lower := strings.ToLower(text)
	for _, phrase := range institutionPhrases {
		lower = strings.ReplaceAll(lower, phrase, " ")
	}
	var out []string
	for _, s := range subjects {
		for _, kw := range s.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, s.name)
				break
			}
		}
	}
	return out
}

func subjectMatches(want, got string) (bool, string) {
	wantSubjects := subjectsIn(want)
	if len(wantSubjects) == 0 {
		return true, ""
	}
	gotSubjects := subjectsIn(got)
	if len(gotSubjects) == 0 {
		return false, fmt.Sprintf("request is about %v but result names no sector subject: %q", wantSubjects, got)
	}
	for _, w := range wantSubjects {
		for _, compatible := range subjectCompat[w] {
			for _, g := range gotSubjects {
				if g == compatible {
					return true, ""
				}
			}
		}
	}
	return false, fmt.Sprintf("subject mismatch: requested %v, result is about %v", wantSubjects, gotSubjects)
}

func categoriesIn(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, mc := range metricCategories {
		for _, kw := range mc.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, mc.name)
				break
			}
		}
	}
	return out
}

func metricMatches(want, got string) (bool, string) {
	wantCats := categoriesIn(want)
	if len(wantCats) == 0 {
		return true, ""
	}
	gotCats := categoriesIn(got)
	for _, w := range wantCats {
		for _, g := range gotCats {
			if w == g {
				return true, ""
			}
		}
	}
	return false, fmt.Sprintf("metric mismatch: requested %v, result measures %v", wantCats, gotCats)
}

// qualifiersAgree rejects results whose metric qualifier contradicts
// the request's. Missing qualifiers on the result side are tolerated.
func qualifiersAgree(want, got string) (bool, string) {
	wantTokens := tokenSet(want)
	gotTokens := tokenSet(got)
	for q, opposite := range qualifierOpposites {
		if wantTokens[q] && gotTokens[opposite] && !gotTokens[q] {
			return false, fmt.Sprintf("qualifier mismatch: requested %q, result says %q", q, opposite)
		}
	}
	return true, ""
}

func termsOverlap(want, got string) (bool, string) {
	wantTerms := resolve.Tokenize(want)
	if len(wantTerms) == 0 {
		return true, ""
	}
	gotTokens := tokenSet(got)
	matched := 0
	for _, term := range wantTerms {
		if gotTokens[term] {
			matched++
		}
	}
	overlap := float64(matched) / float64(len(wantTerms))
	if overlap >= minTermOverlap {
		return true, ""
	}
	return false, fmt.Sprintf("term overlap %.0f%% below %.0f%% (request %q vs result %q)",
		overlap*100, minTermOverlap*100, want, got)
}

func tokenSet(text string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range resolve.Tokenize(text) {
		out[t] = true
	}
	return out
}
