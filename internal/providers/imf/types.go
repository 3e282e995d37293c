package imf

// dataMapperResponse is the envelope of a data call: values keyed by
// indicator code, then ISO3 country, then year. Null years appear for
// countries the WEO tracks but has no figure for.
type dataMapperResponse struct {
	Values map[string]map[string]map[string]*float64 `json:"values"`
}

// indicatorsResponse is the envelope of the /indicators catalog call.
type indicatorsResponse struct {
	Indicators map[string]indicatorEntry `json:"indicators"`
}

type indicatorEntry struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Unit        string `json:"unit"`
}
