package worldbank

import (
	"encoding/json"
	"fmt"
)

// The API wraps every response in a top-level JSON array: [meta, records] on
// success, [error-envelope] on failure.

type pageMeta struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Total int `json:"total"`
}

type record struct {
	Indicator   ref      `json:"indicator"`
	Country     ref      `json:"country"`
	CountryISO3 string   `json:"countryiso3code"`
	Date        string   `json:"date"`
	Value       *float64 `json:"value"`
	Unit        string   `json:"unit"`
	ObsStatus   string   `json:"obs_status"`
}

type ref struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

type apiMessage struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// decodeEnvelope splits a response body into meta and records, or surfaces
// the API's own error message when the array has a single element.
func decodeEnvelope(body []byte) (pageMeta, []record, *apiMessage, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return pageMeta{}, nil, nil, err
	}
	if len(raw) < 2 {
		var env struct {
			Message []apiMessage `json:"message"`
		}
		if len(raw) == 1 {
			if err := json.Unmarshal(raw[0], &env); err == nil && len(env.Message) > 0 {
				return pageMeta{}, nil, &env.Message[0], nil
			}
		}
		return pageMeta{}, nil, nil, fmt.Errorf("expected [meta, records], got %d element(s)", len(raw))
	}
	var meta pageMeta
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return pageMeta{}, nil, nil, err
	}
	var recs []record
	if err := json.Unmarshal(raw[1], &recs); err != nil {
		return pageMeta{}, nil, nil, err
	}
	return meta, recs, nil, nil
}
