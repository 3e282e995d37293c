package bis

// SDMX-JSON 1.0 data message, reduced to the parts the adapter reads.
// Series are keyed by colon-separated indices into the structure's series
// dimensions; observations are keyed by the index into the TIME_PERIOD
// observation dimension, with the value first and status flags after it.

type sdmxResponse struct {
	Data sdmxData `json:"data"`
}

type sdmxData struct {
	DataSets  []sdmxDataSet `json:"dataSets"`
	Structure sdmxStructure `json:"structure"`
}

type sdmxDataSet struct {
	Series map[string]sdmxSeries `json:"series"`
}

type sdmxSeries struct {
	Observations map[string][]any `json:"observations"`
}

type sdmxStructure struct {
	Name       string         `json:"name"`
	Dimensions sdmxDimensions `json:"dimensions"`
}

type sdmxDimensions struct {
	Series      []sdmxDimension `json:"series"`
	Observation []sdmxDimension `json:"observation"`
}

type sdmxDimension struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Values []sdmxDimValue `json:"values"`
}

type sdmxDimValue struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// dimValue is a resolved (dimension, value) pair of one series key position.
type dimValue struct {
	Dim  string
	ID   string
	Name string
}
