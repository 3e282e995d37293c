package fred

// Wire shapes for the three FRED endpoints the adapter consumes. The series
// array really is spelled "seriess" upstream.

type seriesResponse struct {
	Seriess []seriesWire `json:"seriess"`
}

type seriesWire struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	Frequency          string `json:"frequency"`
	FrequencyShort     string `json:"frequency_short"`
	Units              string `json:"units"`
	UnitsShort         string `json:"units_short"`
	SeasonalAdjustment string `json:"seasonal_adjustment"`
	Notes              string `json:"notes"`
}

type observationsResponse struct {
	Count        int           `json:"count"`
	Observations []observation `json:"observations"`
}

type observation struct {
	Date  string `json:"date"`
	Value string `json:"value"` // "." marks a value FRED does not have
}
