// Package series defines the canonical time-series shape returned by every
// provider adapter. All upstream wire formats (SDMX-JSON, JSON-stat, FRED
// observations, World Bank paginated arrays, ...) decode into Series so that
// callers see one contract regardless of origin.
package series

import (
	"fmt"
	"sort"
	"strings"
)

// Frequency values for SeriesMetadata.Frequency.
const (
	FreqDaily      = "daily"
	FreqWeekly     = "weekly"
	FreqMonthly    = "monthly"
	FreqQuarterly  = "quarterly"
	FreqSemiannual = "semiannual"
	FreqAnnual     = "annual"
	FreqRealTime   = "real-time"
	FreqCategory   = "categorical"
)

// DataType values for SeriesMetadata.DataType.
const (
	TypeLevel         = "Level"
	TypeRate          = "Rate"
	TypeIndex         = "Index"
	TypePercentChange = "Percent Change"
	TypeChange        = "Change"
)

// Point is a single dated observation. Date is ISO-8601 (YYYY-MM-DD) at the
// first day of the reporting period. A nil Value marks a gap the provider
// itself reported, as opposed to a period that was never fetched.
type Point struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// Metadata describes where a series came from and what its values mean.
type Metadata struct {
	Source             string `json:"source"`                        // provider name, e.g. "FRED"
	Indicator          string `json:"indicator"`                     // human-readable indicator label
	Country            string `json:"country"`                       // display name or ISO code
	SeriesID           string `json:"series_id"`                     // provider-native code, e.g. "UNRATE"
	Frequency          string `json:"frequency"`                     // one of the Freq* constants
	Unit               string `json:"unit,omitempty"`                // e.g. "Percent", "US Dollars"
	DataType           string `json:"data_type,omitempty"`           // one of the Type* constants
	PriceType          string `json:"price_type,omitempty"`          // "Real", "Nominal", or empty
	SeasonalAdjustment string `json:"seasonal_adjustment,omitempty"` // provider wording
	StartDate          string `json:"start_date,omitempty"`          // first point date
	EndDate            string `json:"end_date,omitempty"`            // last point date
	APIURL             string `json:"api_url,omitempty"`             // exact upstream request, secrets masked
	SourceURL          string `json:"source_url,omitempty"`          // human-readable portal page
	Description        string `json:"description,omitempty"`
	Notes              string `json:"notes,omitempty"`
}

// Series is a canonical time series: immutable metadata plus date-ordered points.
type Series struct {
	Metadata Metadata `json:"metadata"`
	Points   []Point  `json:"points"`
}

// New returns an empty series for the given metadata.
func New(meta Metadata) *Series {
	return &Series{Metadata: meta}
}

// Add appends an observation. Call Finalize before returning the series.
func (s *Series) Add(date string, value *float64) {
	s.Points = append(s.Points, Point{Date: date, Value: value})
}

// AddValue appends a non-null observation.
func (s *Series) AddValue(date string, value float64) {
	v := value
	s.Points = append(s.Points, Point{Date: date, Value: &v})
}

// Len returns the number of points.
func (s *Series) Len() int { return len(s.Points) }

// Finalize sorts points by date ascending, drops exact duplicate dates
// (keeping the first occurrence), and sets StartDate/EndDate from the points.
// ISO dates sort lexicographically, so string comparison is a date comparison.
func (s *Series) Finalize() *Series {
	sort.SliceStable(s.Points, func(i, j int) bool {
		return s.Points[i].Date < s.Points[j].Date
	})
	deduped := s.Points[:0]
	var prev string
	for i, p := range s.Points {
		if i > 0 && p.Date == prev {
			continue
		}
		deduped = append(deduped, p)
		prev = p.Date
	}
	s.Points = deduped
	if len(s.Points) > 0 {
		s.Metadata.StartDate = s.Points[0].Date
		s.Metadata.EndDate = s.Points[len(s.Points)-1].Date
	}
	return s
}

// IsEmpty reports whether the series has no non-null observations.
func (s *Series) IsEmpty() bool {
	for _, p := range s.Points {
		if p.Value != nil {
			return false
		}
	}
	return true
}

// NormalizePercent corrects decimal-encoded percentages in place. When the
// unit denotes a percentage and every value is tiny (max absolute value
// < 1.5), the provider encoded 2.5% as 0.025 and all non-null values are
// multiplied by 100. Ratios without percent units are left alone.
func (s *Series) NormalizePercent() bool {
	if !isPercentUnit(s.Metadata.Unit) && s.Metadata.DataType != TypeRate {
		return false
	}
	maxAbs := 0.0
	any := false
	for _, p := range s.Points {
		if p.Value == nil {
			continue
		}
		any = true
		v := *p.Value
		if v < 0 {
			v = -v
		}
		if v > maxAbs {
			maxAbs = v
		}
	}
	if !any || maxAbs >= 1.5 {
		return false
	}
	for i := range s.Points {
		if s.Points[i].Value != nil {
			v := *s.Points[i].Value * 100
			s.Points[i].Value = &v
		}
	}
	return true
}

// isPercentUnit reports whether a unit string denotes percentage values.
func isPercentUnit(unit string) bool {
	u := strings.ToLower(unit)
	return strings.Contains(u, "percent") || strings.Contains(u, "per cent") || strings.Contains(u, "%")
}

// MaskSecrets replaces the value of known secret query parameters in a URL
// with "***" so that APIURL stays reproducible without leaking keys.
func MaskSecrets(rawURL string) string {
	masked := rawURL
	for _, key := range []string{"api_key", "apikey", "subscription-key", "x_cg_demo_api_key", "x_cg_pro_api_key", "token"} {
		masked = maskParam(masked, key)
	}
	// ExchangeRate-API embeds the key as a path segment: /v6/{key}/latest/...
	if i := strings.Index(masked, "/v6/"); i >= 0 {
		rest := masked[i+4:]
		if j := strings.IndexByte(rest, '/'); j > 0 {
			masked = masked[:i+4] + "***" + rest[j:]
		}
	}
	return masked
}

func maskParam(rawURL, key string) string {
	marker := key + "="
	i := strings.Index(strings.ToLower(rawURL), marker)
	if i < 0 {
		return rawURL
	}
	start := i + len(marker)
	end := start
	for end < len(rawURL) && rawURL[end] != '&' && rawURL[end] != '#' {
		end++
	}
	return rawURL[:start] + "***" + rawURL[end:]
}

// Validate reports structural problems: unsorted points or missing metadata.
func (s *Series) Validate() error {
	if s.Metadata.Source == "" {
		return fmt.Errorf("series missing source")
	}
	for i := 1; i < len(s.Points); i++ {
		if s.Points[i].Date < s.Points[i-1].Date {
			return fmt.Errorf("points out of order at index %d: %s < %s", i, s.Points[i].Date, s.Points[i-1].Date)
		}
	}
	return nil
}
