package coingecko

// chartResponse is the market_chart payload: parallel [timestamp_ms, value]
// rows per metric.
type chartResponse struct {
	Prices       [][2]float64 `json:"prices"`
	MarketCaps   [][2]float64 `json:"market_caps"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

func (r chartResponse) rows(m metric) [][2]float64 {
	switch m {
	case metricMarketCap:
		return r.MarketCaps
	case metricVolume:
		return r.TotalVolumes
	}
	return r.Prices
}

// marketRow is one entry of the /coins/markets listing.
type marketRow struct {
	ID            string  `json:"id"`
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	CurrentPrice  float64 `json:"current_price"`
	MarketCap     float64 `json:"market_cap"`
	TotalVolume   float64 `json:"total_volume"`
	MarketCapRank int     `json:"market_cap_rank"`
}
