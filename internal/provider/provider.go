// Package provider defines the contract every upstream data source adapter
// implements: a closed set of provider tags, a typed fetch request, and a
// registry mapping tags to adapters. Adapters own provider-specific
// identifier mapping and wire-format decoding; everything upstream of them
// sees canonical series only.
package provider

import (
	"context"
	"strings"

	"github.com/econoflow/econoflow/pkg/series"
)

// Name identifies an upstream provider. The set is closed: routing, catalogs,
// and caches all key on these exact tags.
type Name string

const (
	FRED         Name = "FRED"
	WorldBank    Name = "WorldBank"
	IMF          Name = "IMF"
	BIS          Name = "BIS"
	Eurostat     Name = "Eurostat"
	OECD         Name = "OECD"
	Comtrade     Name = "Comtrade"
	StatsCan     Name = "StatsCan"
	ExchangeRate Name = "ExchangeRate"
	CoinGecko    Name = "CoinGecko"
)

// All lists every provider tag in stable order.
var All = []Name{FRED, WorldBank, IMF, BIS, Eurostat, OECD, Comtrade, StatsCan, ExchangeRate, CoinGecko}

// nameAliases maps lowercase spellings and common aliases to provider tags.
var nameAliases = map[string]Name{
	"fred":               FRED,
	"federal reserve":    FRED,
	"st louis fed":       FRED,
	"worldbank":          WorldBank,
	"world bank":         WorldBank,
	"world_bank":         WorldBank,
	"wb":                 WorldBank,
	"imf":                IMF,
	"datamapper":         IMF,
	"bis":                BIS,
	"eurostat":           Eurostat,
	"oecd":               OECD,
	"comtrade":           Comtrade,
	"un comtrade":        Comtrade,
	"uncomtrade":         Comtrade,
	"statscan":           StatsCan,
	"statcan":            StatsCan,
	"statistics canada":  StatsCan,
	"exchangerate":       ExchangeRate,
	"exchangerate-api":   ExchangeRate,
	"exchange rate api":  ExchangeRate,
	"exchangerate_api":   ExchangeRate,
	"coingecko":          CoinGecko,
	"coin gecko":         CoinGecko,
}

// ParseName resolves a free-form provider spelling to its tag.
func ParseName(s string) (Name, bool) {
	n, ok := nameAliases[strings.ToLower(strings.TrimSpace(s))]
	return n, ok
}

// Credential describes a key or token an adapter needs.
type Credential struct {
	Name        string `json:"name"`        // e.g. "api_key"
	Description string `json:"description"` // where to obtain it
	Required    bool   `json:"required"`
	EnvVar      string `json:"env_var"` // e.g. "ECONOFLOW_PROVIDERS_FRED_API_KEY"
}

// Info holds metadata about a registered adapter.
type Info struct {
	Name        Name         `json:"name"`
	Description string       `json:"description"`
	Website     string       `json:"website"`
	Credentials []Credential `json:"credentials,omitempty"`
}

// Request is the normalized fetch request handed to adapters. Parameter
// defaulting (internal/params) guarantees Countries is always the populated
// field for geography, dates are ISO YYYY-MM-DD, and Frequency is one of the
// canonical series.Freq* names. Adapters may ignore fields that do not apply.
type Request struct {
	Provider       Name              `json:"provider"`
	Indicator      string            `json:"indicator"`                 // provider-native code when resolved, else the raw term
	IndicatorName  string            `json:"indicator_name,omitempty"`  // human label for metadata/relevance checks
	Countries      []string          `json:"countries,omitempty"`       // ISO2, request order preserved
	StartDate      string            `json:"start_date,omitempty"`
	EndDate        string            `json:"end_date,omitempty"`
	Frequency      string            `json:"frequency,omitempty"`
	BaseCurrency   string            `json:"base_currency,omitempty"` // ExchangeRate / FRED bilateral
	TargetCurrency string            `json:"target_currency,omitempty"`
	Reporter       string            `json:"reporter,omitempty"` // Comtrade
	Partner        string            `json:"partner,omitempty"`
	Commodity      string            `json:"commodity,omitempty"`
	Flow           string            `json:"flow,omitempty"`
	CoinIDs        []string          `json:"coin_ids,omitempty"` // CoinGecko
	VsCurrency     string            `json:"vs_currency,omitempty"`
	Days           int               `json:"days,omitempty"`
	Dimensions     map[string]string `json:"dimensions,omitempty"` // StatsCan/BIS/Eurostat breakdowns
}

// Clone returns a deep copy so fallback attempts can retarget the request
// without mutating the original.
func (r Request) Clone() Request {
	cp := r
	cp.Countries = append([]string(nil), r.Countries...)
	cp.CoinIDs = append([]string(nil), r.CoinIDs...)
	if r.Dimensions != nil {
		cp.Dimensions = make(map[string]string, len(r.Dimensions))
		for k, v := range r.Dimensions {
			cp.Dimensions[k] = v
		}
	}
	return cp
}

// Learner records indicator mappings an adapter discovered through a
// provider search endpoint, so later resolutions can reuse them without
// another search round-trip. Adapters treat it as an optional collaborator;
// a nil Learner disables recording.
type Learner interface {
	Learn(p Name, term, code, name string)
}

// Adapter is implemented once per upstream provider.
type Adapter interface {
	// Name returns the provider tag.
	Name() Name

	// Info returns adapter metadata for listings and key reports.
	Info() Info

	// Fetch retrieves one series per requested country (or one series total
	// for single-geography requests). It fails with *NotAvailableError when
	// the upstream has no data for the request, *InvalidInputError when the
	// request cannot be mapped to provider identifiers, and transport or
	// decode errors otherwise. Never returns an empty, error-free result.
	Fetch(ctx context.Context, req Request) ([]*series.Series, error)

	// Ping verifies connectivity and credentials.
	Ping(ctx context.Context) error
}
