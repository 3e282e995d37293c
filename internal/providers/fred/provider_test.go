package fred

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/httpx"
	"github.com/econoflow/econoflow/internal/provider"
)

type recordingLearner struct {
	calls int
	p     provider.Name
	term  string
	code  string
	title string
}

func (l *recordingLearner) Learn(p provider.Name, term, code, name string) {
	l.calls++
	l.p, l.term, l.code, l.title = p, term, code, name
}

// fredHandler serves /series, /series/observations and /series/search for a
// single canned series.
func fredHandler(t *testing.T, id string, info map[string]string, obs []map[string]string) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/series", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("series_id"); got != id {
			http.Error(w, `{"error_message":"Bad Request. The series does not exist."}`, http.StatusBadRequest)
			return
		}
		full := map[string]string{"id": id}
		for k, v := range info {
			full[k] = v
		}
		json.NewEncoder(w).Encode(map[string]any{"seriess": []map[string]string{full}})
	})
	mux.HandleFunc("/series/observations", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("series_id"); got != id {
			http.Error(w, `{"error_message":"Bad Request. The series does not exist."}`, http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"count": len(obs), "observations": obs})
	})
	return mux
}

func newTestProvider(t *testing.T, handler http.Handler, learner provider.Learner) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.ProviderConfig{BaseURL: srv.URL, APIKey: "testkey"}, httpx.Default(), learner)
}

func TestFetchMapsTermAndReturnsWindow(t *testing.T) {
	obs := []map[string]string{
		{"date": "2020-01-01", "value": "3.6"},
		{"date": "2020-02-01", "value": "3.5"},
		{"date": "2020-03-01", "value": "4.4"},
		{"date": "2020-04-01", "value": "14.8"},
		{"date": "2020-05-01", "value": "13.2"},
		{"date": "2020-06-01", "value": "11.0"},
	}
	info := map[string]string{
		"title":               "Unemployment Rate",
		"frequency_short":     "M",
		"units":               "Percent",
		"seasonal_adjustment": "Seasonally Adjusted",
	}
	p := newTestProvider(t, fredHandler(t, "UNRATE", info, obs), nil)

	got, err := p.Fetch(context.Background(), provider.Request{
		Provider:  provider.FRED,
		Indicator: "unemployment rate",
		StartDate: "2020-01-01",
		EndDate:   "2020-06-01",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 series, got %d", len(got))
	}
	s := got[0]
	if s.Metadata.SeriesID != "UNRATE" {
		t.Errorf("series id = %s, want UNRATE", s.Metadata.SeriesID)
	}
	if s.Metadata.Frequency != "monthly" {
		t.Errorf("frequency = %s, want monthly", s.Metadata.Frequency)
	}
	if !strings.Contains(s.Metadata.Unit, "Percent") {
		t.Errorf("unit = %q, want something containing Percent", s.Metadata.Unit)
	}
	if s.Len() != 6 {
		t.Fatalf("expected 6 points, got %d", s.Len())
	}
	if s.Points[0].Date != "2020-01-01" || s.Points[5].Date != "2020-06-01" {
		t.Errorf("window = %s..%s, want 2020-01-01..2020-06-01", s.Points[0].Date, s.Points[5].Date)
	}
	if s.Points[3].Value == nil || *s.Points[3].Value != 14.8 {
		t.Errorf("april value = %v, want 14.8", s.Points[3].Value)
	}
}

func TestFetchMasksKeyInAPIURL(t *testing.T) {
	obs := []map[string]string{{"date": "2024-01-01", "value": "1"}}
	p := newTestProvider(t, fredHandler(t, "GDP", map[string]string{"title": "Gross Domestic Product"}, obs), nil)

	got, err := p.Fetch(context.Background(), provider.Request{Indicator: "GDP"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	u := got[0].Metadata.APIURL
	if !strings.Contains(u, "api_key=***") {
		t.Errorf("APIURL %q should mask the key", u)
	}
	if strings.Contains(u, "testkey") {
		t.Errorf("APIURL %q leaks the key", u)
	}
}

func TestFetchBilateralPairUsesDEXSeries(t *testing.T) {
	obs := []map[string]string{
		{"date": "2020-01-02", "value": "1.1224"},
		{"date": "2020-01-03", "value": "1.1163"},
	}
	info := map[string]string{
		"title":           "U.S. Dollars to Euro Spot Exchange Rate",
		"frequency_short": "D",
		"units":           "U.S. Dollars to One Euro",
	}
	p := newTestProvider(t, fredHandler(t, "DEXUSEU", info, obs), nil)

	got, err := p.Fetch(context.Background(), provider.Request{
		BaseCurrency:   "USD",
		TargetCurrency: "EUR",
		StartDate:      "2020-01-01",
		EndDate:        "2020-01-31",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got[0].Metadata.SeriesID != "DEXUSEU" {
		t.Errorf("series id = %s, want DEXUSEU", got[0].Metadata.SeriesID)
	}
	if got[0].Metadata.Country != "USD/EUR" {
		t.Errorf("country = %s, want USD/EUR", got[0].Metadata.Country)
	}
}

func TestFetchMissingValueBecomesGap(t *testing.T) {
	obs := []map[string]string{
		{"date": "2024-01-01", "value": "5.33"},
		{"date": "2024-01-02", "value": "."},
		{"date": "2024-01-03", "value": "5.34"},
	}
	p := newTestProvider(t, fredHandler(t, "DFF", map[string]string{"title": "Federal Funds Effective Rate (Daily)"}, obs), nil)

	got, err := p.Fetch(context.Background(), provider.Request{Indicator: "DFF"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	s := got[0]
	if s.Len() != 3 {
		t.Fatalf("expected 3 points, got %d", s.Len())
	}
	if s.Points[1].Value != nil {
		t.Errorf("expected nil gap for \".\", got %v", *s.Points[1].Value)
	}
}

func TestFetchDecimalPercentNormalized(t *testing.T) {
	obs := []map[string]string{
		{"date": "2020-01-01", "value": "0.025"},
		{"date": "2020-02-01", "value": "0.031"},
	}
	p := newTestProvider(t, fredHandler(t, "TESTPCT", map[string]string{"title": "Test Share", "units": "Percent", "frequency_short": "M"}, obs), nil)

	got, err := p.Fetch(context.Background(), provider.Request{Indicator: "TESTPCT"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	v := *got[0].Points[0].Value
	if v < 2.49 || v > 2.51 {
		t.Errorf("normalized value = %v, want 2.5", v)
	}
}

func TestFetchUnknownSeriesNotAvailable(t *testing.T) {
	p := newTestProvider(t, fredHandler(t, "GDP", nil, nil), nil)

	_, err := p.Fetch(context.Background(), provider.Request{Indicator: "NOSUCHSERIES1"})
	if !provider.IsNotAvailable(err) {
		t.Fatalf("expected NotAvailable, got %v", err)
	}
}

func TestFetchWithoutKeyNotAvailable(t *testing.T) {
	p := New(config.ProviderConfig{BaseURL: "http://localhost:0"}, httpx.Default(), nil)
	_, err := p.Fetch(context.Background(), provider.Request{Indicator: "GDP"})
	if !provider.IsNotAvailable(err) {
		t.Fatalf("expected NotAvailable for missing key, got %v", err)
	}
}

func TestSearchFallbackLearnsMapping(t *testing.T) {
	mux := http.NewServeMux()
	inner := fredHandler(t, "TRUCKD11", map[string]string{"title": "Truck Tonnage Index", "units": "Index 2015=100", "frequency_short": "M"},
		[]map[string]string{{"date": "2024-01-01", "value": "114.9"}})
	mux.Handle("/series", inner)
	mux.Handle("/series/observations", inner)
	mux.HandleFunc("/series/search", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("search_text"); got != "truck tonnage" {
			t.Errorf("search_text = %q, want %q", got, "truck tonnage")
		}
		json.NewEncoder(w).Encode(map[string]any{"seriess": []map[string]string{
			{"id": "TRUCKD11", "title": "Truck Tonnage Index"},
		}})
	})

	learner := &recordingLearner{}
	p := newTestProvider(t, mux, learner)

	got, err := p.Fetch(context.Background(), provider.Request{Indicator: "truck tonnage"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got[0].Metadata.SeriesID != "TRUCKD11" {
		t.Errorf("series id = %s, want TRUCKD11", got[0].Metadata.SeriesID)
	}
	if learner.calls != 1 || learner.code != "TRUCKD11" || learner.term != "truck tonnage" {
		t.Errorf("learner not called as expected: %+v", learner)
	}
}

func TestPing(t *testing.T) {
	p := newTestProvider(t, fredHandler(t, "GDP", nil, []map[string]string{{"date": "2024-01-01", "value": "1"}}), nil)
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	down := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}), nil)
	if err := down.Ping(context.Background()); err == nil {
		t.Error("Ping against failing upstream should error")
	}
}

func TestLooksLikeSeriesID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"UNRATE", true},
		{"DEXUSEU", true},
		{"A191RL1Q225SBEA", true},
		{"unemployment rate", false},
		{"GDP growth", false},
		{"unrate", false},
		{"X", false},
		{"123", false},
	}
	for _, tt := range tests {
		if got := looksLikeSeriesID(tt.in); got != tt.want {
			t.Errorf("looksLikeSeriesID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFXSeriesBothDirections(t *testing.T) {
	for _, pair := range [][2]string{{"USD", "EUR"}, {"EUR", "USD"}} {
		id, ok := fxSeries(pair[0], pair[1])
		if !ok || id != "DEXUSEU" {
			t.Errorf("fxSeries(%s, %s) = %s, %v; want DEXUSEU", pair[0], pair[1], id, ok)
		}
	}
	if _, ok := fxSeries("USD", "ZWL"); ok {
		t.Error("fxSeries should not know USD/ZWL")
	}
}
