// Package exchangerate implements the ExchangeRate-API adapter for current
// fiat currency rates. The v6 API embeds the key in the URL path and the
// free tier serves the latest snapshot only; historical rates live on FRED
// as bilateral series. Keys: https://www.exchangerate-api.com
package exchangerate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/httpx"
	"github.com/econoflow/econoflow/internal/provider"
	"github.com/econoflow/econoflow/pkg/series"
)

const (
	defaultBaseURL = "https://v6.exchangerate-api.com/v6"
	portalURL      = "https://www.exchangerate-api.com"
)

// Provider fetches the latest conversion rates from ExchangeRate-API.
type Provider struct {
	baseURL string
	apiKey  string
	hc      *httpx.Client
}

func New(cfg config.ProviderConfig, hc *httpx.Client) *Provider {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if hc == nil {
		hc = httpx.Default()
	}
	return &Provider{baseURL: base, apiKey: cfg.APIKey, hc: hc}
}

func (p *Provider) Name() provider.Name { return provider.ExchangeRate }

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:        provider.ExchangeRate,
		Description: "ExchangeRate-API: current fiat exchange rates for 160+ currencies",
		Website:     portalURL,
		Credentials: []provider.Credential{{
			Name:        "api_key",
			Description: "free key from https://www.exchangerate-api.com",
			Required:    true,
			EnvVar:      "ECONOFLOW_PROVIDERS_EXCHANGERATE_API_KEY",
		}},
	}
}

// Fetch returns a single-point series with the latest rate for the requested
// currency pair. Requests with an explicit time window are refused: the free
// tier has no history, FRED does.
func (p *Provider) Fetch(ctx context.Context, req provider.Request) ([]*series.Series, error) {
	if p.apiKey == "" {
		return nil, &provider.NotAvailableError{
			Provider:  provider.ExchangeRate,
			Indicator: req.Indicator,
			Reason:    "ExchangeRate-API key not configured; set ECONOFLOW_PROVIDERS_EXCHANGERATE_API_KEY",
			Suggestions: []string{
				"free keys at https://www.exchangerate-api.com",
				"FRED serves exchange rates without a pair limit",
			},
		}
	}
	if req.StartDate != "" || req.EndDate != "" {
		return nil, &provider.NotAvailableError{
			Provider:  provider.ExchangeRate,
			Indicator: req.Indicator,
			Reason:    "historical rates require a paid ExchangeRate-API plan",
			Suggestions: []string{
				"FRED carries daily bilateral history, e.g. DEXUSEU for USD/EUR",
			},
		}
	}

	base, err := currencyCode("base_currency", req.BaseCurrency, "USD")
	if err != nil {
		return nil, err
	}
	target, err := currencyCode("target_currency", req.TargetCurrency, "")
	if err != nil {
		return nil, err
	}
	if target == "" {
		return nil, &provider.InvalidInputError{
			Field:  "target_currency",
			Reason: "no target currency in the request",
			Clarifications: []string{
				fmt.Sprintf("which currency should %s be quoted in? e.g. EUR, JPY, GBP", base),
			},
		}
	}

	u := fmt.Sprintf("%s/%s/latest/%s", p.baseURL, p.apiKey, base)
	var resp latestResponse
	if err := p.hc.GetJSON(ctx, u, &resp); err != nil {
		return nil, provider.FromHTTP(provider.ExchangeRate, req.Indicator, err)
	}
	if resp.Result != "success" {
		return nil, upstreamError(resp.ErrorType, base)
	}
	rate, ok := resp.ConversionRates[target]
	if !ok {
		return nil, provider.NotAvailable(provider.ExchangeRate, target,
			"currency code %s is not in the %s rate table", target, base)
	}

	s := series.New(series.Metadata{
		Source:    string(provider.ExchangeRate),
		Indicator: fmt.Sprintf("%s to %s exchange rate", base, target),
		SeriesID:  base + target,
		Frequency: series.FreqDaily,
		Unit:      fmt.Sprintf("%s per %s", target, base),
		DataType:  series.TypeLevel,
		APIURL:    series.MaskSecrets(u),
		SourceURL: portalURL,
		Notes:     "latest snapshot only; the free tier has no history",
	})
	s.AddValue(updateDate(resp.TimeLastUpdateUnix), rate)
	s.Finalize()
	return []*series.Series{s}, nil
}

// Ping fetches the USD table, which every plan can read.
func (p *Provider) Ping(ctx context.Context) error {
	if p.apiKey == "" {
		return provider.NotAvailable(provider.ExchangeRate, "",
			"ExchangeRate-API key not configured; set ECONOFLOW_PROVIDERS_EXCHANGERATE_API_KEY")
	}
	u := fmt.Sprintf("%s/%s/latest/USD", p.baseURL, p.apiKey)
	var resp latestResponse
	if err := p.hc.GetJSON(ctx, u, &resp); err != nil {
		return provider.FromHTTP(provider.ExchangeRate, "", err)
	}
	if resp.Result != "success" {
		return upstreamError(resp.ErrorType, "USD")
	}
	return nil
}

// currencyCode validates a three-letter ISO 4217 code, applying a default
// when the request leaves the field empty.
func currencyCode(field, raw, fallback string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return fallback, nil
	}
	if len(code) != 3 {
		return "", provider.InvalidInput(field, "%q is not a three-letter currency code", raw)
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return "", provider.InvalidInput(field, "%q is not a three-letter currency code", raw)
		}
	}
	return code, nil
}

// upstreamError maps the API's error-type strings onto the adapter taxonomy.
func upstreamError(errorType, base string) error {
	switch errorType {
	case "quota-reached":
		return &provider.RateLimitedError{Provider: provider.ExchangeRate}
	case "unsupported-code":
		return provider.NotAvailable(provider.ExchangeRate, base, "currency code %s is not supported", base)
	case "invalid-key", "inactive-account":
		return provider.NotAvailable(provider.ExchangeRate, base, "ExchangeRate-API rejected the key (%s)", errorType)
	}
	return provider.NotAvailable(provider.ExchangeRate, base, "upstream error %q", errorType)
}

func updateDate(unix int64) string {
	if unix == 0 {
		return time.Now().UTC().Format("2006-01-02")
	}
	return time.Unix(unix, 0).UTC().Format("2006-01-02")
}
