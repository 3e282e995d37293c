package validate

import (
	"fmt"
	"math"
	"testing"

	"github.com/econoflow/econoflow/pkg/series"
)

func mkSeries(indicator, unit string, values ...float64) *series.Series {
	s := series.New(series.Metadata{
		Source:    "FRED",
		Indicator: indicator,
		Country:   "United States",
		Unit:      unit,
		Frequency: series.FreqAnnual,
	})
	for i, v := range values {
		s.AddValue(fmt.Sprintf("%d-01-01", 2010+i), v)
	}
	return s.Finalize()
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		indicator string
		want      string
		ok        bool
	}{
		{"Unemployment Rate", "unemployment_rate", true},
		{"Inflation, consumer prices (annual %)", "inflation", true},
		{"Consumer Price Index: All Items", "price_index", true},
		{"GDP growth (annual %)", "gdp_growth", true},
		{"GDP per hour worked", "per_unit_gdp", true},
		{"GDP per capita (current US$)", "per_unit_gdp", true},
		{"Gross domestic product, current prices", "gdp_level", true},
		{"Population, total", "population", true},
		{"Federal Funds Effective Rate", "interest_rate", true},
		{"Residential property prices", "house_prices", true},
		{"Some novel indicator", "", false},
	}
	for _, tt := range tests {
		got, _, ok := CategoryFor(tt.indicator)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CategoryFor(%q) = (%q, %v), want (%q, %v)", tt.indicator, got, ok, tt.want, tt.ok)
		}
	}
}

func TestBoundedRateAbove100IsError(t *testing.T) {
	s := mkSeries("Unemployment Rate", "Percent", 5.2, 150.0, 6.1)
	rep := Check(s)

	if rep.OK() {
		t.Fatal("150% unemployment must fail validation")
	}
	if len(rep.Issues) != 1 {
		t.Fatalf("issues = %d, want 1", len(rep.Issues))
	}
	if rep.Issues[0].Severity != SeverityError {
		t.Errorf("severity = %s, want error", rep.Issues[0].Severity)
	}
	if !approx(rep.Confidence, 0.7) {
		t.Errorf("confidence = %v, want 0.7", rep.Confidence)
	}
}

func TestNegativeOnNonnegativeIsError(t *testing.T) {
	s := mkSeries("Population, total", "Persons", 3.3e8, -1000)
	rep := Check(s)

	if rep.OK() {
		t.Fatal("negative population must fail validation")
	}
	if rep.Issues[0].Severity != SeverityError {
		t.Errorf("severity = %s, want error", rep.Issues[0].Severity)
	}
}

func TestFarOutOfRangeIsWarning(t *testing.T) {
	// gdp_growth expects [-30, 30]; 3001 is beyond 100x the maximum.
	s := mkSeries("GDP growth (annual %)", "Percent", 2.5, 3001)
	rep := Check(s)

	if !rep.OK() {
		t.Fatal("warnings must not fail the report")
	}
	if len(rep.Issues) != 1 || rep.Issues[0].Severity != SeverityWarning {
		t.Fatalf("issues = %+v, want one warning", rep.Issues)
	}
	if !approx(rep.Confidence, 0.9) {
		t.Errorf("confidence = %v, want 0.9", rep.Confidence)
	}
}

func TestMildExcursionIsInfo(t *testing.T) {
	s := mkSeries("GDP growth (annual %)", "Percent", 2.5, 35)
	rep := Check(s)

	if len(rep.Issues) != 1 || rep.Issues[0].Severity != SeverityInfo {
		t.Fatalf("issues = %+v, want one info", rep.Issues)
	}
	if !approx(rep.Confidence, 0.98) {
		t.Errorf("confidence = %v, want 0.98", rep.Confidence)
	}
}

func TestCleanSeriesPasses(t *testing.T) {
	s := mkSeries("Unemployment Rate", "Percent", 3.5, 3.6, 14.7, 6.9)
	rep := Check(s)

	if !rep.OK() || len(rep.Issues) != 0 {
		t.Fatalf("clean series flagged: %+v", rep.Issues)
	}
	if !approx(rep.Confidence, 1.0) {
		t.Errorf("confidence = %v, want 1.0", rep.Confidence)
	}
}

func TestUncategorizedIndicatorPasses(t *testing.T) {
	s := mkSeries("Some novel indicator", "Units", -5, 1e20)
	rep := Check(s)

	if !rep.OK() || len(rep.Issues) != 0 {
		t.Fatalf("uncategorized series flagged: %+v", rep.Issues)
	}
	if rep.Category != "" {
		t.Errorf("category = %q, want empty", rep.Category)
	}
}

func TestIssueCapSummarizesRest(t *testing.T) {
	vals := make([]float64, 12)
	for i := range vals {
		vals[i] = 200 // all above the 100% ceiling
	}
	s := mkSeries("Unemployment Rate", "Percent", vals...)
	rep := Check(s)

	// 8 detailed issues plus the suppression summary.
	if len(rep.Issues) != maxIssues+1 {
		t.Fatalf("issues = %d, want %d", len(rep.Issues), maxIssues+1)
	}
	last := rep.Issues[len(rep.Issues)-1]
	if last.Severity != SeverityInfo {
		t.Errorf("summary severity = %s, want info", last.Severity)
	}
	// 12 errors exhaust the confidence budget.
	if rep.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", rep.Confidence)
	}
}

func TestNilGapsAreIgnored(t *testing.T) {
	s := series.New(series.Metadata{Source: "FRED", Indicator: "Unemployment Rate", Unit: "Percent"})
	s.AddValue("2020-01-01", 3.5)
	s.Add("2020-02-01", nil)
	s.AddValue("2020-03-01", 4.4)
	s.Finalize()

	rep := Check(s)
	if !rep.OK() || len(rep.Issues) != 0 {
		t.Fatalf("nil gap flagged: %+v", rep.Issues)
	}
}
