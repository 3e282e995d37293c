package comtrade

import "encoding/json"

// getResponse is the /data/v1/get envelope.
type getResponse struct {
	Count int           `json:"count"`
	Data  []tradeRecord `json:"data"`
	Error string        `json:"error"`
}

// tradeRecord is one (period, reporter, partner, commodity, flow) cell.
// Period is numeric on the wire: 2022 for annual, 202206 for monthly.
type tradeRecord struct {
	Period       json.Number `json:"period"`
	ReporterCode int         `json:"reporterCode"`
	ReporterDesc string      `json:"reporterDesc"`
	FlowCode     string      `json:"flowCode"`
	FlowDesc     string      `json:"flowDesc"`
	PartnerCode  int         `json:"partnerCode"`
	PartnerDesc  string      `json:"partnerDesc"`
	CmdCode      string      `json:"cmdCode"`
	CmdDesc      string      `json:"cmdDesc"`
	PrimaryValue float64     `json:"primaryValue"`
}
