package exchangerate

// latestResponse is the /latest/{base} payload. On failure Result is "error"
// and ErrorType carries a machine-readable cause such as "quota-reached".
type latestResponse struct {
	Result             string             `json:"result"`
	ErrorType          string             `json:"error-type"`
	TimeLastUpdateUnix int64              `json:"time_last_update_unix"`
	BaseCode           string             `json:"base_code"`
	ConversionRates    map[string]float64 `json:"conversion_rates"`
}
