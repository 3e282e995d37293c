// Package providers assembles the adapter registry from configuration.
// Every adapter is registered regardless of whether its key is configured:
// key checks happen at fetch time so that missing credentials surface as
// actionable not-available errors instead of silently absent providers.
package providers

import (
	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/httpx"
	"github.com/econoflow/econoflow/internal/provider"
	"github.com/econoflow/econoflow/internal/providers/bis"
	"github.com/econoflow/econoflow/internal/providers/coingecko"
	"github.com/econoflow/econoflow/internal/providers/comtrade"
	"github.com/econoflow/econoflow/internal/providers/eurostat"
	"github.com/econoflow/econoflow/internal/providers/exchangerate"
	"github.com/econoflow/econoflow/internal/providers/fred"
	"github.com/econoflow/econoflow/internal/providers/imf"
	"github.com/econoflow/econoflow/internal/providers/oecd"
	"github.com/econoflow/econoflow/internal/providers/statscan"
	"github.com/econoflow/econoflow/internal/providers/worldbank"
)

// Build wires all ten adapters into a fresh registry. hc is the shared HTTP
// client; OECD builds its own because that endpoint needs a legacy TLS
// floor. learner receives indicator mappings discovered through provider
// search endpoints and may be nil.
func Build(cfg config.ProvidersConfig, hc *httpx.Client, learner provider.Learner) (*provider.Registry, error) {
	if hc == nil {
		hc = httpx.Default()
	}
	reg := provider.NewRegistry()
	adapters := []provider.Adapter{
		fred.New(cfg.FRED, hc, learner),
		worldbank.New(cfg.WorldBank, hc),
		imf.New(cfg.IMF, hc),
		bis.New(cfg.BIS, hc),
		eurostat.New(cfg.Eurostat, hc),
		oecd.New(cfg.OECD),
		comtrade.New(cfg.Comtrade, hc),
		statscan.New(cfg.StatsCan, hc),
		exchangerate.New(cfg.ExchangeRate, hc),
		coingecko.New(cfg.CoinGecko, hc),
	}
	for _, a := range adapters {
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
