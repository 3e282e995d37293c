package catalog

import (
	"testing"

	"github.com/econoflow/econoflow/internal/provider"
)

func mustLoad(t *testing.T) *Catalog {
	t.Helper()
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c
}

func TestFindConceptByTerm(t *testing.T) {
	c := mustLoad(t)

	tests := []struct {
		term string
		want string
		ok   bool
	}{
		{"unemployment rate", "unemployment_rate", true},
		{"UNEMPLOYMENT RATE", "unemployment_rate", true},
		{"jobless rate", "unemployment_rate", true},
		{"gdp growth", "gdp_growth", true},
		{"economic growth", "gdp_growth", true},
		{"gross domestic product", "gdp", true},
		{"cpi", "inflation", true},
		{"policy rate", "policy_rate", true},
		{"house prices", "house_prices", true},
		{"reer", "real_effective_exchange_rate", true},
		{"definitely not a concept", "", false},
	}
	for _, tt := range tests {
		got, ok := c.FindConceptByTerm(tt.term)
		if ok != tt.ok || got != tt.want {
			t.Errorf("FindConceptByTerm(%q) = (%q, %v), want (%q, %v)", tt.term, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsExcludedTerm(t *testing.T) {
	c := mustLoad(t)

	tests := []struct {
		term    string
		concept string
		want    bool
	}{
		{"production index", "productivity", true},
		{"industrial production", "productivity", true},
		{"labor productivity", "productivity", false},
		{"gdp deflator", "inflation", true},
		{"consumer price index", "inflation", false},
		{"population growth", "population", true},
		{"total population", "population", false},
		{"household debt", "government_debt", true},
	}
	for _, tt := range tests {
		if got := c.IsExcludedTerm(tt.term, tt.concept); got != tt.want {
			t.Errorf("IsExcludedTerm(%q, %q) = %v, want %v", tt.term, tt.concept, got, tt.want)
		}
	}
}

// Exclusions must reject a term even when the term also contains a synonym.
func TestExclusionPrecedesSynonym(t *testing.T) {
	c := mustLoad(t)

	// "industrial production productivity" contains the productivity synonym
	// and an exclusion phrase; the exclusion wins.
	ok, reason := c.ValidateIndicatorMatch("industrial production productivity index", "productivity")
	if ok {
		t.Errorf("expected exclusion to reject, got accept (%s)", reason)
	}

	ok, _ = c.ValidateIndicatorMatch("gdp deflator inflation measure", "inflation")
	if ok {
		t.Error("expected exclusion to reject deflator even with inflation synonym present")
	}
}

func TestValidateIndicatorMatchPermissive(t *testing.T) {
	c := mustLoad(t)

	// Synonym hit accepts.
	if ok, _ := c.ValidateIndicatorMatch("Harmonised unemployment rate (monthly)", "unemployment_rate"); !ok {
		t.Error("synonym hit should accept")
	}
	// Novel name with no exclusion is accepted permissively.
	if ok, _ := c.ValidateIndicatorMatch("Registered jobseekers, thousands", "unemployment_rate"); !ok {
		t.Error("novel indicator name should be accepted permissively")
	}
}

func TestIndicatorCode(t *testing.T) {
	c := mustLoad(t)

	tests := []struct {
		concept string
		prov    provider.Name
		variant string
		want    string
		ok      bool
	}{
		{"unemployment_rate", provider.FRED, VariantPrimary, "UNRATE", true},
		{"gdp_growth", provider.WorldBank, VariantPrimary, "NY.GDP.MKTP.KD.ZG", true},
		{"gdp_growth", provider.IMF, VariantPrimary, "NGDP_RPCH", true},
		{"gdp", provider.WorldBank, VariantGrowth, "NY.GDP.MKTP.KD.ZG", true},
		{"inflation", provider.FRED, VariantCore, "CPILFESL", true},
		{"policy_rate", provider.BIS, VariantPrimary, "WS_CBPOL", true},
		// Unknown variant falls back to primary.
		{"unemployment_rate", provider.FRED, "nonsense", "UNRATE", true},
		// Provider marked not_available yields nothing.
		{"population", provider.BIS, VariantPrimary, "", false},
		{"crypto_prices", provider.FRED, VariantPrimary, "", false},
		// Provider without an entry yields nothing.
		{"debt_service_ratio", provider.CoinGecko, VariantPrimary, "", false},
	}
	for _, tt := range tests {
		info, ok := c.IndicatorCode(tt.concept, tt.prov, tt.variant)
		if ok != tt.ok {
			t.Errorf("IndicatorCode(%q, %s, %s) ok = %v, want %v", tt.concept, tt.prov, tt.variant, ok, tt.ok)
			continue
		}
		if ok && info.Code != tt.want {
			t.Errorf("IndicatorCode(%q, %s, %s) = %q, want %q", tt.concept, tt.prov, tt.variant, info.Code, tt.want)
		}
	}
}

func TestBestProviderRespectsCoverage(t *testing.T) {
	c := mustLoad(t)

	// FRED has the highest confidence for unemployment but only covers the
	// US; a German query must pick a global/EU provider instead.
	choice, ok := c.BestProvider("unemployment_rate", []string{"DE"}, "")
	if !ok {
		t.Fatal("expected a provider for German unemployment")
	}
	if choice.Provider == provider.FRED {
		t.Errorf("FRED covers only the US, got %s", choice.Provider)
	}

	// For the US, FRED's 0.98 confidence should win.
	choice, ok = c.BestProvider("unemployment_rate", []string{"US"}, "")
	if !ok {
		t.Fatal("expected a provider for US unemployment")
	}
	if choice.Provider != provider.FRED || choice.Code != "UNRATE" {
		t.Errorf("got (%s, %s), want (FRED, UNRATE)", choice.Provider, choice.Code)
	}
}

func TestBestProviderPreferred(t *testing.T) {
	c := mustLoad(t)

	// A qualified preferred provider wins even with lower confidence.
	choice, ok := c.BestProvider("gdp_growth", []string{"US"}, provider.IMF)
	if !ok || choice.Provider != provider.IMF {
		t.Errorf("preferred IMF should win, got %v ok=%v", choice.Provider, ok)
	}

	// A preferred provider that does not cover the countries is ignored.
	choice, ok = c.BestProvider("unemployment_rate", []string{"JP"}, provider.Eurostat)
	if !ok {
		t.Fatal("expected a provider")
	}
	if choice.Provider == provider.Eurostat {
		t.Error("Eurostat does not cover Japan, preferred must be ignored")
	}
}

func TestFallbackProvidersSkipExcluded(t *testing.T) {
	c := mustLoad(t)

	for _, concept := range c.Concepts() {
		for _, p := range provider.All {
			for _, choice := range c.FallbackProviders(concept, p) {
				if choice.Provider == p {
					t.Errorf("FallbackProviders(%q, %s) contains excluded provider", concept, p)
				}
			}
		}
	}
}

func TestFallbackProvidersSorted(t *testing.T) {
	c := mustLoad(t)

	chain := c.FallbackProviders("inflation", provider.FRED)
	if len(chain) < 2 {
		t.Fatalf("expected several fallbacks for inflation, got %d", len(chain))
	}
	for i := 1; i < len(chain); i++ {
		if chain[i].Confidence > chain[i-1].Confidence {
			t.Errorf("chain not sorted by confidence at %d: %f > %f", i, chain[i].Confidence, chain[i-1].Confidence)
		}
	}
}

// The snapshots are derived views of the catalog; every code visible through
// the compatibility snapshot must equal the one the catalog itself reports.
func TestSnapshotsAgreeWithCatalog(t *testing.T) {
	c := mustLoad(t)

	compat := c.CompatibilitySnapshot()
	for concept, codes := range compat {
		for prov, code := range codes {
			info, ok := c.IndicatorCode(concept, provider.Name(prov), VariantPrimary)
			if !ok {
				t.Errorf("compat snapshot has %s/%s but IndicatorCode returned nothing", concept, prov)
				continue
			}
			if info.Code != code {
				t.Errorf("%s/%s: snapshot %q != catalog %q", concept, prov, code, info.Code)
			}
		}
	}

	syns := c.SynonymsSnapshot()
	for concept, list := range syns {
		for _, term := range list {
			got, ok := c.FindConceptByTerm(term)
			if !ok || got != concept {
				t.Errorf("synonym %q of %s resolves to (%q, %v)", term, concept, got, ok)
			}
		}
	}
}

func TestStoreReload(t *testing.T) {
	s, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	before := s.Current()
	if before == nil {
		t.Fatal("nil snapshot")
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	after := s.Current()
	if after == nil {
		t.Fatal("nil snapshot after reload")
	}
	// Old snapshot stays usable.
	if _, ok := before.FindConceptByTerm("gdp"); !ok {
		t.Error("old snapshot should remain valid")
	}
	if _, ok := after.FindConceptByTerm("gdp"); !ok {
		t.Error("new snapshot should resolve gdp")
	}
}
