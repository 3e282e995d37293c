package worldbank

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/httpx"
	"github.com/econoflow/econoflow/internal/provider"
)

func f(v float64) *float64 { return &v }

func wbRecord(label, countryName, iso3, date string, value *float64) map[string]any {
	return map[string]any{
		"indicator":       map[string]string{"id": "X", "value": label},
		"country":         map[string]string{"id": iso3[:2], "value": countryName},
		"countryiso3code": iso3,
		"date":            date,
		"value":           value,
		"unit":            "",
	}
}

func wbPage(page, pages int, recs ...map[string]any) []any {
	meta := map[string]int{"page": page, "pages": pages, "total": len(recs)}
	if recs == nil {
		recs = []map[string]any{}
	}
	return []any{meta, recs}
}

type capture struct {
	paths   []string
	queries []url.Values
}

func newTestProvider(t *testing.T, rec *capture, respond func(q url.Values) any) *Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec != nil {
			rec.paths = append(rec.paths, r.URL.Path)
			rec.queries = append(rec.queries, r.URL.Query())
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(respond(r.URL.Query())); err != nil {
			t.Errorf("encoding payload: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return New(config.ProviderConfig{BaseURL: srv.URL}, httpx.Default())
}

func TestFetchSplitsCountriesPreservingOrder(t *testing.T) {
	const label = "GDP growth (annual %)"
	rec := &capture{}
	p := newTestProvider(t, rec, func(url.Values) any {
		return wbPage(1, 1,
			wbRecord(label, "United States", "USA", "2021", f(5.9)),
			wbRecord(label, "United States", "USA", "2020", f(-2.8)),
			wbRecord(label, "Germany", "DEU", "2021", f(2.6)),
			wbRecord(label, "Germany", "DEU", "2020", f(-3.8)),
		)
	})

	got, err := p.Fetch(context.Background(), provider.Request{
		Indicator: "gdp growth",
		Countries: []string{"DE", "US"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d series, want 2", len(got))
	}
	if got[0].Metadata.Country != "Germany" || got[1].Metadata.Country != "United States" {
		t.Errorf("country order = %q, %q; want request order", got[0].Metadata.Country, got[1].Metadata.Country)
	}
	if got[0].Metadata.SeriesID != "NY.GDP.MKTP.KD.ZG" {
		t.Errorf("series id = %q", got[0].Metadata.SeriesID)
	}
	if got[0].Len() != 2 {
		t.Fatalf("Germany has %d points, want 2", got[0].Len())
	}
	// Finalize sorts ascending.
	if got[0].Points[0].Date != "2020-01-01" {
		t.Errorf("first date = %q, want 2020-01-01", got[0].Points[0].Date)
	}

	if !strings.Contains(rec.paths[0], "/country/DEU;USA/indicator/NY.GDP.MKTP.KD.ZG") {
		t.Errorf("path = %q, want semicolon-joined ISO3 list", rec.paths[0])
	}
	if rec.queries[0].Get("format") != "json" {
		t.Errorf("format = %q", rec.queries[0].Get("format"))
	}
}

func TestFetchSkipsNullValues(t *testing.T) {
	const label = "Unemployment, total (% of total labor force)"
	p := newTestProvider(t, nil, func(url.Values) any {
		return wbPage(1, 1,
			wbRecord(label, "United States", "USA", "2023", nil),
			wbRecord(label, "United States", "USA", "2022", f(3.6)),
			wbRecord(label, "United States", "USA", "2021", f(5.3)),
		)
	})

	got, err := p.Fetch(context.Background(), provider.Request{Indicator: "SL.UEM.TOTL.ZS"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got[0].Len() != 2 {
		t.Errorf("got %d points, want nulls dropped", got[0].Len())
	}
}

func TestFetchPaginates(t *testing.T) {
	const label = "Population, total"
	rec := &capture{}
	p := newTestProvider(t, rec, func(q url.Values) any {
		if q.Get("page") == "2" {
			return wbPage(2, 2, wbRecord(label, "United States", "USA", "2020", f(331e6)))
		}
		return wbPage(1, 2, wbRecord(label, "United States", "USA", "2021", f(332e6)))
	})

	got, err := p.Fetch(context.Background(), provider.Request{Indicator: "population"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(rec.paths) != 2 {
		t.Fatalf("made %d requests, want 2 pages", len(rec.paths))
	}
	if got[0].Len() != 2 {
		t.Errorf("got %d points, want both pages merged", got[0].Len())
	}
}

func TestFetchSendsYearRange(t *testing.T) {
	rec := &capture{}
	p := newTestProvider(t, rec, func(url.Values) any {
		return wbPage(1, 1, wbRecord("GDP (current US$)", "United States", "USA", "2018", f(2.05e13)))
	})

	_, err := p.Fetch(context.Background(), provider.Request{
		Indicator: "gdp",
		StartDate: "2015-03-01",
		EndDate:   "2020-06-05",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if d := rec.queries[0].Get("date"); d != "2015:2020" {
		t.Errorf("date = %q, want whole-year range 2015:2020", d)
	}
}

func TestFetchSurfacesAPIErrorEnvelope(t *testing.T) {
	p := newTestProvider(t, nil, func(url.Values) any {
		return []any{map[string]any{
			"message": []map[string]string{{
				"id":    "120",
				"key":   "Invalid value",
				"value": "The provided parameter value is not valid",
			}},
		}}
	})

	_, err := p.Fetch(context.Background(), provider.Request{Indicator: "NY.GDP.MKTP.CD"})
	var na *provider.NotAvailableError
	if !errors.As(err, &na) {
		t.Fatalf("got %v, want NotAvailableError", err)
	}
	if !strings.Contains(na.Reason, "Invalid value") {
		t.Errorf("reason %q does not carry the API message", na.Reason)
	}
}

func TestFetchAllNullsNotAvailable(t *testing.T) {
	p := newTestProvider(t, nil, func(url.Values) any {
		return wbPage(1, 1, wbRecord("GDP (current US$)", "Eritrea", "ERI", "2021", nil))
	})

	_, err := p.Fetch(context.Background(), provider.Request{
		Indicator: "gdp",
		Countries: []string{"ER"},
	})
	var na *provider.NotAvailableError
	if !errors.As(err, &na) {
		t.Fatalf("got %v, want NotAvailableError", err)
	}
}

func TestFetchDefaultsToUSA(t *testing.T) {
	rec := &capture{}
	p := newTestProvider(t, rec, func(url.Values) any {
		return wbPage(1, 1, wbRecord("GDP (current US$)", "United States", "USA", "2021", f(2.33e13)))
	})

	if _, err := p.Fetch(context.Background(), provider.Request{Indicator: "gdp"}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(rec.paths[0], "/country/USA/") {
		t.Errorf("path = %q, want USA default", rec.paths[0])
	}
}

func TestFetchInfersUnitAndDataType(t *testing.T) {
	p := newTestProvider(t, nil, func(url.Values) any {
		return wbPage(1, 1,
			wbRecord("Inflation, consumer prices (annual %)", "United States", "USA", "2022", f(8.0)),
		)
	})

	got, err := p.Fetch(context.Background(), provider.Request{Indicator: "inflation"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got[0].Metadata.Unit != "Percent" {
		t.Errorf("unit = %q, want Percent from the name suffix", got[0].Metadata.Unit)
	}
	if got[0].Metadata.DataType != "Percent Change" {
		t.Errorf("data type = %q, want Percent Change", got[0].Metadata.DataType)
	}
	if got[0].Metadata.Frequency != "annual" {
		t.Errorf("frequency = %q, want annual from the period shape", got[0].Metadata.Frequency)
	}
}

func TestIndicatorCode(t *testing.T) {
	tests := []struct {
		term    string
		want    string
		wantErr bool
	}{
		{"NY.GDP.MKTP.KD.ZG", "NY.GDP.MKTP.KD.ZG", false},
		{"ny.gdp.mktp.cd", "NY.GDP.MKTP.CD", false},
		{"gdp growth", "NY.GDP.MKTP.KD.ZG", false},
		{"Unemployment Rate", "SL.UEM.TOTL.ZS", false},
		{"flux capacitance", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := indicatorCode(provider.Request{Indicator: tt.term})
		if (err != nil) != tt.wantErr {
			t.Errorf("indicatorCode(%q) error = %v, wantErr %v", tt.term, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("indicatorCode(%q) = %q, want %q", tt.term, got, tt.want)
		}
	}
}

func TestYearRange(t *testing.T) {
	tests := []struct {
		start, end string
		want       string
	}{
		{"2015-03-01", "2020-06-05", "2015:2020"},
		{"2015-03-01", "", "2015:2015"},
		{"", "2020-06-05", "2020:2020"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := yearRange(tt.start, tt.end); got != tt.want {
			t.Errorf("yearRange(%q, %q) = %q, want %q", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestPing(t *testing.T) {
	rec := &capture{}
	p := newTestProvider(t, rec, func(url.Values) any {
		return wbPage(1, 1, wbRecord("GDP (current US$)", "United States", "USA", "2021", f(2.33e13)))
	})

	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !strings.Contains(rec.paths[0], "/country/USA/indicator/NY.GDP.MKTP.CD") {
		t.Errorf("ping path = %q", rec.paths[0])
	}
}
