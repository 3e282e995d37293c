package comtrade

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/httpx"
	"github.com/econoflow/econoflow/internal/provider"
)

func record(period, reporterCode int, reporterDesc, flow string, partnerCode int, partnerDesc string, value float64) map[string]any {
	return map[string]any{
		"period":       period,
		"reporterCode": reporterCode,
		"reporterDesc": reporterDesc,
		"flowCode":     flow,
		"partnerCode":  partnerCode,
		"partnerDesc":  partnerDesc,
		"cmdCode":      "TOTAL",
		"cmdDesc":      "All Commodities",
		"primaryValue": value,
	}
}

func envelope(recs ...map[string]any) map[string]any {
	return map[string]any{"count": len(recs), "data": recs, "error": ""}
}

type capture struct {
	queries []url.Values
}

func newTestProvider(t *testing.T, rec *capture, respond func(q url.Values) map[string]any) *Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if rec != nil {
			rec.queries = append(rec.queries, q)
		}
		json.NewEncoder(w).Encode(respond(q))
	}))
	t.Cleanup(srv.Close)
	return New(config.ProviderConfig{BaseURL: srv.URL, APIKey: "sekret"}, httpx.Default())
}

// Taiwan does not report to Comtrade, so requesting its exports must flip
// to the partners' import records with Taiwan (490) as partner.
func TestFetchTaiwanFlipsToPartnerPerspective(t *testing.T) {
	names := map[string]string{
		"156": "China", "842": "USA", "392": "Japan",
		"410": "Rep. of Korea", "344": "China, Hong Kong SAR", "702": "Singapore",
	}
	var rec capture
	p := newTestProvider(t, &rec, func(q url.Values) map[string]any {
		code, _ := strconv.Atoi(q.Get("reporterCode"))
		return envelope(record(2023, code, names[q.Get("reporterCode")], q.Get("flowCode"), 490, "Other Asia, nes", 2.5e10))
	})

	got, err := p.Fetch(context.Background(), provider.Request{
		Provider: provider.Comtrade,
		Reporter: "Taiwan",
		Flow:     "EXPORT",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != len(mirrorEconomies) {
		t.Fatalf("expected %d series, got %d", len(mirrorEconomies), len(got))
	}
	for i, q := range rec.queries {
		if q.Get("reporterCode") != mirrorEconomies[i] {
			t.Errorf("call %d reporter = %s, want %s", i, q.Get("reporterCode"), mirrorEconomies[i])
		}
		if q.Get("partnerCode") != "490" {
			t.Errorf("call %d partner = %s, want 490", i, q.Get("partnerCode"))
		}
		if q.Get("flowCode") != "M" {
			t.Errorf("call %d flow = %s, want M (inverted from exports)", i, q.Get("flowCode"))
		}
	}
	for i, s := range got {
		if want := names[mirrorEconomies[i]]; s.Metadata.Country != want {
			t.Errorf("series %d country = %s, want %s", i, s.Metadata.Country, want)
		}
		if s.Metadata.Indicator != "Exports of all commodities (Taiwan, partner perspective)" {
			t.Errorf("indicator = %q, want the user's flow direction", s.Metadata.Indicator)
		}
		if !strings.Contains(s.Metadata.Notes, "does not report") {
			t.Errorf("notes = %q, want the non-reporting explanation", s.Metadata.Notes)
		}
	}
}

func TestFetchEUPartnerFansOut(t *testing.T) {
	var rec capture
	p := newTestProvider(t, &rec, func(q url.Values) map[string]any {
		pc, _ := strconv.Atoi(q.Get("partnerCode"))
		return envelope(record(2023, 842, "USA", "M", pc, "Partner "+q.Get("partnerCode"), 1e9))
	})

	got, err := p.Fetch(context.Background(), provider.Request{
		Reporter: "US",
		Partner:  "EU",
		Flow:     "imports",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(rec.queries) != 27 {
		t.Fatalf("expected 27 partner calls for the EU, got %d", len(rec.queries))
	}
	if len(got) != 27 {
		t.Fatalf("expected 27 series, got %d", len(got))
	}
	partners := map[string]bool{}
	for _, q := range rec.queries {
		if q.Get("reporterCode") != "842" {
			t.Errorf("reporter = %s, want 842 (Comtrade statistical code for the US)", q.Get("reporterCode"))
		}
		partners[q.Get("partnerCode")] = true
	}
	if !partners["276"] || !partners["251"] {
		t.Errorf("partners %v should include Germany (276) and France under its statistical code (251)", partners)
	}
}

func TestFetchDedupKeepsMaxMagnitude(t *testing.T) {
	p := newTestProvider(t, nil, func(q url.Values) map[string]any {
		return envelope(
			record(2022, 842, "USA", "X", 0, "World", 100),
			record(2022, 842, "USA", "X", 0, "World", 120),
			record(2021, 842, "USA", "X", 0, "World", 90),
		)
	})

	got, err := p.Fetch(context.Background(), provider.Request{Reporter: "US", Flow: "exports"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	s := got[0]
	if s.Len() != 2 {
		t.Fatalf("expected 2 points after dedup, got %d", s.Len())
	}
	if *s.Points[1].Value != 120 {
		t.Errorf("2022 = %v, want 120 (maximum magnitude wins)", *s.Points[1].Value)
	}
}

func TestFetchBothFlowsSplitIntoSeries(t *testing.T) {
	p := newTestProvider(t, nil, func(q url.Values) map[string]any {
		if q.Get("flowCode") != "M,X" {
			t.Errorf("flowCode = %s, want M,X", q.Get("flowCode"))
		}
		return envelope(
			record(2022, 276, "Germany", "M", 0, "World", 4e11),
			record(2022, 276, "Germany", "X", 0, "World", 5e11),
		)
	})

	got, err := p.Fetch(context.Background(), provider.Request{Reporter: "Germany", Flow: "both"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 series (one per flow), got %d", len(got))
	}
	if got[0].Metadata.Indicator != "Exports of all commodities" {
		t.Errorf("first series = %q, want exports first", got[0].Metadata.Indicator)
	}
	if got[1].Metadata.Indicator != "Imports of all commodities" {
		t.Errorf("second series = %q, want imports", got[1].Metadata.Indicator)
	}
	if *got[0].Points[0].Value != 5e11 || *got[1].Points[0].Value != 4e11 {
		t.Errorf("values crossed between flows")
	}
}

func TestFetchPartnerLabel(t *testing.T) {
	p := newTestProvider(t, nil, func(q url.Values) map[string]any {
		return envelope(record(2022, 842, "USA", "X", 276, "Germany", 7e10))
	})

	got, err := p.Fetch(context.Background(), provider.Request{
		Reporter: "US",
		Partner:  "Germany",
		Flow:     "exports",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got[0].Metadata.Indicator != "Exports of all commodities to Germany" {
		t.Errorf("indicator = %q", got[0].Metadata.Indicator)
	}
	if got[0].Metadata.Country != "USA" {
		t.Errorf("country = %s, want USA", got[0].Metadata.Country)
	}
}

func TestFetchRequiresKey(t *testing.T) {
	p := New(config.ProviderConfig{}, httpx.Default())

	_, err := p.Fetch(context.Background(), provider.Request{Reporter: "US"})
	var na *provider.NotAvailableError
	if !errors.As(err, &na) {
		t.Fatalf("expected NotAvailableError, got %v", err)
	}
	if !strings.Contains(na.Reason, "ECONOFLOW_PROVIDERS_COMTRADE_API_KEY") {
		t.Errorf("reason %q should name the key env var", na.Reason)
	}
}

func TestFetchMasksSubscriptionKey(t *testing.T) {
	p := newTestProvider(t, nil, func(q url.Values) map[string]any {
		return envelope(record(2022, 842, "USA", "X", 0, "World", 1e9))
	})

	got, err := p.Fetch(context.Background(), provider.Request{Reporter: "US", Flow: "exports"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	apiURL := got[0].Metadata.APIURL
	if strings.Contains(apiURL, "sekret") {
		t.Fatalf("APIURL %q leaks the key", apiURL)
	}
	if !strings.Contains(apiURL, "subscription-key=***") {
		t.Errorf("APIURL %q should carry the masked key", apiURL)
	}
}

func TestFetchRejectsUnknownReporter(t *testing.T) {
	p := newTestProvider(t, nil, func(q url.Values) map[string]any { return envelope() })

	_, err := p.Fetch(context.Background(), provider.Request{Reporter: "Atlantis"})
	var inv *provider.InvalidInputError
	if !errors.As(err, &inv) {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
}

func TestPeriodList(t *testing.T) {
	periods := periodList("A", "2019-01-01", "2021-12-31")
	want := []string{"2019", "2020", "2021"}
	if len(periods) != len(want) {
		t.Fatalf("periods = %v, want %v", periods, want)
	}
	for i := range want {
		if periods[i] != want[i] {
			t.Fatalf("periods = %v, want %v", periods, want)
		}
	}

	capped := periodList("A", "2000-01-01", "2020-12-31")
	if len(capped) != maxPeriods {
		t.Fatalf("expected the cap of %d periods, got %d", maxPeriods, len(capped))
	}
	if capped[0] != "2009" || capped[len(capped)-1] != "2020" {
		t.Errorf("capped window = %s..%s, want 2009..2020 (newest kept)", capped[0], capped[len(capped)-1])
	}

	months := periodList("M", "2023-10-01", "2024-02-28")
	wantMonths := []string{"202310", "202311", "202312", "202401", "202402"}
	if len(months) != len(wantMonths) {
		t.Fatalf("months = %v, want %v", months, wantMonths)
	}
	for i := range wantMonths {
		if months[i] != wantMonths[i] {
			t.Fatalf("months = %v, want %v", months, wantMonths)
		}
	}
}

func TestFlowCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "X", true},
		{"EXPORT", "X", true},
		{"imports", "M", true},
		{"both", "M,X", true},
		{"sideways", "", false},
	}
	for _, c := range cases {
		got, err := flowCode(c.in)
		if c.ok && (err != nil || got != c.want) {
			t.Errorf("flowCode(%q) = %q, %v; want %q", c.in, got, err, c.want)
		}
		if !c.ok && err == nil {
			t.Errorf("flowCode(%q) succeeded with %q, want error", c.in, got)
		}
	}
}

func TestCommodityCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "TOTAL", true},
		{"total", "TOTAL", true},
		{"electronics", "85", true},
		{"8542", "8542", true},
		{"85427", "", false},
		{"bananas", "", false},
	}
	for _, c := range cases {
		got, err := commodityCode(c.in)
		if c.ok && (err != nil || got != c.want) {
			t.Errorf("commodityCode(%q) = %q, %v; want %q", c.in, got, err, c.want)
		}
		if !c.ok && err == nil {
			t.Errorf("commodityCode(%q) succeeded with %q, want error", c.in, got)
		}
	}
}

func TestStatisticalCode(t *testing.T) {
	if got := statisticalCode("840"); got != "842" {
		t.Errorf("statisticalCode(840) = %s, want 842", got)
	}
	if got := statisticalCode("276"); got != "276" {
		t.Errorf("statisticalCode(276) = %s, want 276 (unchanged)", got)
	}
}

func TestPing(t *testing.T) {
	var rec capture
	p := newTestProvider(t, &rec, func(q url.Values) map[string]any {
		return envelope(record(2024, 842, "USA", "X", 0, "World", 1e9))
	})
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if rec.queries[0].Get("reporterCode") != "842" {
		t.Errorf("ping reporter = %s, want 842", rec.queries[0].Get("reporterCode"))
	}
}
