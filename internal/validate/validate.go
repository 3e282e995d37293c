// Package validate sanity-checks fetched series against per-category
// expected value ranges. Findings are observational: the orchestrator
// logs them and returns the upstream data unchanged. Bounded rates
// above 100% and negative values on nonnegative concepts are errors;
// values two orders of magnitude outside the expected envelope are
// warnings; mild excursions are informational.
package validate

import (
	"fmt"
	"strings"

	"github.com/econoflow/econoflow/pkg/series"
)

// Severity grades a validation issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Confidence penalties per issue severity.
const (
	penaltyCritical = 0.5
	penaltyError    = 0.3
	penaltyWarning  = 0.1
	penaltyInfo     = 0.02
)

// maxIssues caps the issues kept per series so a malformed upstream
// payload cannot flood the report; the remainder is summarized.
const maxIssues = 8

// Issue is one finding against one observation or the series itself.
type Issue struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Date     string   `json:"date,omitempty"`
	Value    float64  `json:"value,omitempty"`
}

// Report collects the findings for one series.
type Report struct {
	Category   string  `json:"category,omitempty"`
	Issues     []Issue `json:"issues,omitempty"`
	Confidence float64 `json:"confidence"`
	suppressed int
}

// OK reports whether the series passed without errors. Warnings and
// informational findings do not fail a report.
func (r *Report) OK() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityCritical || is.Severity == SeverityError {
			return false
		}
	}
	return true
}

func (r *Report) add(sev Severity, date string, value float64, format string, args ...any) {
	switch sev {
	case SeverityCritical:
		r.Confidence -= penaltyCritical
	case SeverityError:
		r.Confidence -= penaltyError
	case SeverityWarning:
		r.Confidence -= penaltyWarning
	case SeverityInfo:
		r.Confidence -= penaltyInfo
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if len(r.Issues) >= maxIssues {
		r.suppressed++
		return
	}
	r.Issues = append(r.Issues, Issue{
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		Date:     date,
		Value:    value,
	})
}

// Range is the plausible value envelope for one indicator category.
type Range struct {
	Min float64
	Max float64
	// BoundedRate marks percentages with a hard 100 ceiling
	// (unemployment, employment rate, interest rates).
	BoundedRate bool
	// NonNegative marks concepts that cannot dip below zero
	// (population, GDP levels, trade turnover).
	NonNegative bool
}

// category pairs name keywords with an expected range. First match in
// table order wins, so more specific phrases come before generic ones.
type category struct {
	name     string
	keywords []string
	r        Range
}

var categories = []category{
	{"unemployment_rate", []string{"unemployment"}, Range{Min: 0, Max: 40, BoundedRate: true, NonNegative: true}},
	{"employment_rate", []string{"employment rate", "employment to population"}, Range{Min: 0, Max: 100, BoundedRate: true, NonNegative: true}},
	{"interest_rate", []string{"interest rate", "policy rate", "central bank rate", "bond yield", "treasury yield", "fed funds", "federal funds"}, Range{Min: -2, Max: 30, BoundedRate: true}},
	{"inflation", []string{"inflation"}, Range{Min: -15, Max: 100}},
	{"price_index", []string{"consumer price index", "price index", "cpi"}, Range{Min: 0, Max: 5000, NonNegative: true}},
	{"gdp_growth", []string{"gdp growth", "growth rate", "percent change"}, Range{Min: -30, Max: 30}},
	{"debt_ratio", []string{"debt to gdp", "% of gdp", "percent of gdp", "debt service ratio"}, Range{Min: 0, Max: 400, NonNegative: true}},
	{"population", []string{"population"}, Range{Min: 1e4, Max: 2e9, NonNegative: true}},
	// Per-unit GDP measures sit far below economy-wide levels and carry
	// their own envelope; must precede the gdp_level keywords.
	{"per_unit_gdp", []string{"per capita", "per hour", "per person", "per worker", "per head"}, Range{Min: 1, Max: 1e6, NonNegative: true}},
	{"gdp_level", []string{"gdp", "gross domestic product"}, Range{Max: 1e14, NonNegative: true}},
	{"trade_value", []string{"export", "import", "trade", "merchandise"}, Range{Min: 0, Max: 1e13, NonNegative: true}},
	{"exchange_rate", []string{"exchange rate", "currency"}, Range{Min: 1e-6, Max: 1e6, NonNegative: true}},
	{"house_prices", []string{"house price", "property price", "housing price", "real estate"}, Range{Min: 0, Max: 1000, NonNegative: true}},
	{"crypto_price", []string{"bitcoin", "ethereum", "coin", "crypto"}, Range{Min: 0, Max: 1e7, NonNegative: true}},
}

// CategoryFor matches an indicator label to its expected-range
// category. Returns false when no table entry applies.
func CategoryFor(indicator string) (string, Range, bool) {
	lower := strings.ToLower(indicator)
	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.name, c.r, true
			}
		}
	}
	return "", Range{}, false
}

// Check validates every observation of a series against its category
// range. An uncategorized indicator passes with full confidence; there
// is nothing to measure it against.
func Check(s *series.Series) *Report {
	rep := &Report{Confidence: 1.0}
	if s == nil {
		rep.add(SeverityCritical, "", 0, "nil series")
		return rep
	}

	name, rng, ok := CategoryFor(s.Metadata.Indicator)
	if !ok {
		name, rng, ok = CategoryFor(s.Metadata.SeriesID)
	}
	if !ok {
		return rep
	}
	rep.Category = name

	percentUnit := isPercent(s.Metadata.Unit)

	for _, p := range s.Points {
		if p.Value == nil {
			continue
		}
		v := *p.Value

		if rng.BoundedRate && percentUnit && v > 100 {
			rep.add(SeverityError, p.Date, v, "%s of %.2f%% exceeds the 100%% ceiling", name, v)
			continue
		}
		if rng.NonNegative && v < 0 {
			rep.add(SeverityError, p.Date, v, "negative value %.2f on nonnegative concept %s", v, name)
			continue
		}
		if v > rng.Max*100 {
			rep.add(SeverityWarning, p.Date, v, "value %.4g is 100x above expected maximum %.4g for %s", v, rng.Max, name)
			continue
		}
		if rng.Min > 0 && v < rng.Min/100 && v != 0 {
			rep.add(SeverityWarning, p.Date, v, "value %.4g is 100x below expected minimum %.4g for %s", v, rng.Min, name)
			continue
		}
		if v > rng.Max || v < rng.Min {
			rep.add(SeverityInfo, p.Date, v, "value %.4g outside expected range [%.4g, %.4g] for %s", v, rng.Min, rng.Max, name)
		}
	}

	if rep.suppressed > 0 {
		rep.Issues = append(rep.Issues, Issue{
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("%d further issues suppressed", rep.suppressed),
		})
	}
	return rep
}

func isPercent(unit string) bool {
	u := strings.ToLower(unit)
	return strings.Contains(u, "percent") || strings.Contains(u, "per cent") || strings.Contains(u, "%")
}
