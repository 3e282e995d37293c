package statscan

import "encoding/json"

// wdsEnvelope is the per-item wrapper every WDS endpoint returns. Object is
// decoded lazily because its shape depends on the endpoint.
type wdsEnvelope struct {
	Status string          `json:"status"`
	Object json.RawMessage `json:"object"`
}

// seriesInfo is the object of getSeriesInfoFromVector.
type seriesInfo struct {
	ProductID        int64  `json:"productId"`
	Coordinate       string `json:"coordinate"`
	VectorID         int64  `json:"vectorId"`
	SeriesTitleEn    string `json:"SeriesTitleEn"`
	FrequencyCode    int    `json:"frequencyCode"`
	ScalarFactorCode int    `json:"scalarFactorCode"`
	Terminated       int    `json:"terminated"`
}

// vectorData is the object of the data endpoints.
type vectorData struct {
	ProductID       int64       `json:"productId"`
	Coordinate      string      `json:"coordinate"`
	VectorID        int64       `json:"vectorId"`
	VectorDataPoint []dataPoint `json:"vectorDataPoint"`
}

// dataPoint is one observation. Value is a pointer: suppressed or not yet
// released periods come back null with a symbol code.
type dataPoint struct {
	RefPer           string   `json:"refPer"`
	Value            *float64 `json:"value"`
	Decimals         int      `json:"decimals"`
	ScalarFactorCode int      `json:"scalarFactorCode"`
	SymbolCode       int      `json:"symbolCode"`
	StatusCode       int      `json:"statusCode"`
	FrequencyCode    int      `json:"frequencyCode"`
}
