package api

// Configuration inspection endpoints. Read-only: keys are reported by
// status, never by value.

import (
	"net/http"

	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/provider"
)

// ConfigView is the redacted running configuration returned by
// GET /admin/config.
type ConfigView struct {
	API       APIView        `json:"api"`
	Cache     CacheView      `json:"cache"`
	Fetch     FetchView      `json:"fetch"`
	Providers []ProviderView `json:"providers"`
}

// APIView summarizes the listener settings.
type APIView struct {
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
}

// CacheView summarizes the result cache tiers.
type CacheView struct {
	Disabled      bool `json:"disabled"`
	RedisEnabled  bool `json:"redis_enabled"`
	MemoryEntries int  `json:"memory_entries"`
	DefaultTTLSec int  `json:"default_ttl_sec"`
}

// FetchView summarizes the retry and concurrency policy.
type FetchView struct {
	MaxRetries        int     `json:"max_retries"`
	BackoffBaseMS     int     `json:"backoff_base_ms"`
	BackoffFactor     float64 `json:"backoff_factor"`
	ConcurrentFetches int     `json:"concurrent_fetches"`
}

// ProviderView is one provider section with its key reduced to a flag.
type ProviderView struct {
	Name        provider.Name `json:"name"`
	BaseURL     string        `json:"base_url,omitempty"`
	KeySet      bool          `json:"key_set"`
	RateRPS     float64       `json:"rate_rps,omitempty"`
	RateBurst   int           `json:"rate_burst,omitempty"`
	CacheTTLSec int           `json:"cache_ttl_sec,omitempty"`
}

// handleConfig returns the running configuration with secrets redacted.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if s.cfg == nil {
		writeError(w, http.StatusServiceUnavailable, "configuration not loaded")
		return
	}

	view := ConfigView{
		API: APIView{
			Host:        s.cfg.API.Host,
			Port:        s.cfg.API.Port,
			CORSOrigins: s.cfg.API.CORSOrigins,
		},
		Cache: CacheView{
			Disabled:      s.cfg.Cache.Disabled,
			RedisEnabled:  s.cfg.Cache.RedisAddr != "",
			MemoryEntries: s.cfg.Cache.MemoryEntries,
			DefaultTTLSec: s.cfg.Cache.DefaultTTL,
		},
		Fetch: FetchView{
			MaxRetries:        s.cfg.Fetch.MaxRetries,
			BackoffBaseMS:     s.cfg.Fetch.BackoffBaseMS,
			BackoffFactor:     s.cfg.Fetch.BackoffFactor,
			ConcurrentFetches: s.cfg.Fetch.ConcurrentFetches,
		},
	}
	for _, name := range provider.All {
		section, ok := s.cfg.Providers.ByName(string(name))
		if !ok {
			continue
		}
		view.Providers = append(view.Providers, ProviderView{
			Name:        name,
			BaseURL:     section.BaseURL,
			KeySet:      section.APIKey != "",
			RateRPS:     section.RateRPS,
			RateBurst:   section.RateBurst,
			CacheTTLSec: section.CacheTTL,
		})
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: view})
}

// handleKeys returns the status of every key-gated provider credential.
func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	if s.cfg == nil {
		writeError(w, http.StatusServiceUnavailable, "configuration not loaded")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    config.CheckAPIKeys(s.cfg),
	})
}
