// Package config handles configuration loading for econoflow.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	Cache     CacheConfig     `mapstructure:"cache"     yaml:"cache"`
	Fetch     FetchConfig     `mapstructure:"fetch"     yaml:"fetch"`
	Router    RouterConfig    `mapstructure:"router"    yaml:"router"`
	Releases  ReleasesConfig  `mapstructure:"releases"  yaml:"releases"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
}

// ProviderConfig holds the settings for one upstream data source.
type ProviderConfig struct {
	BaseURL   string  `mapstructure:"base_url"   yaml:"base_url"`
	APIKey    string  `mapstructure:"api_key"    yaml:"api_key"`
	Plan      string  `mapstructure:"plan"       yaml:"plan"` // coingecko: "demo" (default) or "pro"
	RateRPS   float64 `mapstructure:"rate_rps"   yaml:"rate_rps"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
	CacheTTL  int     `mapstructure:"cache_ttl"  yaml:"cache_ttl"` // seconds
}

// ProvidersConfig holds per-provider settings for every supported source.
type ProvidersConfig struct {
	FRED         ProviderConfig `mapstructure:"fred"         yaml:"fred"`
	WorldBank    ProviderConfig `mapstructure:"worldbank"    yaml:"worldbank"`
	IMF          ProviderConfig `mapstructure:"imf"          yaml:"imf"`
	BIS          ProviderConfig `mapstructure:"bis"          yaml:"bis"`
	Eurostat     ProviderConfig `mapstructure:"eurostat"     yaml:"eurostat"`
	OECD         ProviderConfig `mapstructure:"oecd"         yaml:"oecd"`
	Comtrade     ProviderConfig `mapstructure:"comtrade"     yaml:"comtrade"`
	StatsCan     ProviderConfig `mapstructure:"statscan"     yaml:"statscan"`
	ExchangeRate ProviderConfig `mapstructure:"exchangerate" yaml:"exchangerate"`
	CoinGecko    ProviderConfig `mapstructure:"coingecko"    yaml:"coingecko"`
}

// ByName looks up a provider section by its tag (case-insensitive).
func (p *ProvidersConfig) ByName(name string) (ProviderConfig, bool) {
	switch strings.ToLower(name) {
	case "fred":
		return p.FRED, true
	case "worldbank":
		return p.WorldBank, true
	case "imf":
		return p.IMF, true
	case "bis":
		return p.BIS, true
	case "eurostat":
		return p.Eurostat, true
	case "oecd":
		return p.OECD, true
	case "comtrade":
		return p.Comtrade, true
	case "statscan":
		return p.StatsCan, true
	case "exchangerate":
		return p.ExchangeRate, true
	case "coingecko":
		return p.CoinGecko, true
	}
	return ProviderConfig{}, false
}

// CacheConfig holds the two-tier result cache settings.
type CacheConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"     yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"       yaml:"redis_db"`
	MemoryEntries int    `mapstructure:"memory_entries" yaml:"memory_entries"`
	DefaultTTL    int    `mapstructure:"default_ttl"    yaml:"default_ttl"` // seconds
	Disabled      bool   `mapstructure:"disabled"       yaml:"disabled"`
}

// FetchConfig holds retry, concurrency and HTTP pool settings.
type FetchConfig struct {
	MaxRetries        int     `mapstructure:"max_retries"         yaml:"max_retries"`
	MaxRetriesCap     int     `mapstructure:"max_retries_cap"     yaml:"max_retries_cap"`
	BackoffBaseMS     int     `mapstructure:"backoff_base_ms"     yaml:"backoff_base_ms"`
	BackoffFactor     float64 `mapstructure:"backoff_factor"      yaml:"backoff_factor"`
	ConcurrentFetches int     `mapstructure:"concurrent_fetches"  yaml:"concurrent_fetches"`
	TimeoutSec        int     `mapstructure:"timeout_sec"         yaml:"timeout_sec"`
	ConnectTimeoutSec int     `mapstructure:"connect_timeout_sec" yaml:"connect_timeout_sec"`
	MaxConns          int     `mapstructure:"max_conns"           yaml:"max_conns"`
	MaxIdleConns      int     `mapstructure:"max_idle_conns"      yaml:"max_idle_conns"`
}

// RouterConfig holds routing feature toggles. The flags mirror the names
// accepted in the environment; the deterministic router works with all of
// them off.
type RouterConfig struct {
	UseHybridRouter        bool `mapstructure:"use_hybrid_router"         yaml:"use_hybrid_router"`
	UseLanggraph           bool `mapstructure:"use_langgraph"             yaml:"use_langgraph"`
	UseDeepAgents          bool `mapstructure:"use_deep_agents"           yaml:"use_deep_agents"`
	UseLangchainReactAgent bool `mapstructure:"use_langchain_react_agent" yaml:"use_langchain_react_agent"`
}

// ReleasesConfig holds the statistical release feed settings.
type ReleasesConfig struct {
	Feeds    []string `mapstructure:"feeds"     yaml:"feeds"`
	MaxItems int      `mapstructure:"max_items" yaml:"max_items"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.econoflow/config.yaml (home directory)
//  3. /etc/econoflow/config.yaml (system)
//
// Environment variables override config file values.
// Format: ECONOFLOW_<SECTION>_<KEY>, e.g., ECONOFLOW_PROVIDERS_FRED_API_KEY
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".econoflow"))
	v.AddConfigPath("/etc/econoflow")

	// Environment variable settings
	v.SetEnvPrefix("ECONOFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override sensitive values from environment
	overrideFromEnv(&cfg)

	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("ECONOFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Provider endpoints. Each source gets a conservative pace below its
	// published limit; configured values win.
	v.SetDefault("providers.fred.base_url", "https://api.stlouisfed.org/fred")
	v.SetDefault("providers.fred.rate_rps", 2.0)
	v.SetDefault("providers.fred.rate_burst", 4)
	v.SetDefault("providers.fred.cache_ttl", 21600) // 6 hours

	v.SetDefault("providers.worldbank.base_url", "https://api.worldbank.org/v2")
	v.SetDefault("providers.worldbank.rate_rps", 5.0)
	v.SetDefault("providers.worldbank.rate_burst", 10)
	v.SetDefault("providers.worldbank.cache_ttl", 86400) // mostly annual data

	v.SetDefault("providers.imf.base_url", "https://www.imf.org/external/datamapper/api/v1")
	v.SetDefault("providers.imf.rate_rps", 2.0)
	v.SetDefault("providers.imf.rate_burst", 4)
	v.SetDefault("providers.imf.cache_ttl", 86400)

	v.SetDefault("providers.bis.base_url", "https://stats.bis.org/api/v1")
	v.SetDefault("providers.bis.rate_rps", 1.0)
	v.SetDefault("providers.bis.rate_burst", 2)
	v.SetDefault("providers.bis.cache_ttl", 86400)

	v.SetDefault("providers.eurostat.base_url", "https://ec.europa.eu/eurostat/api/dissemination/statistics/1.0/data")
	v.SetDefault("providers.eurostat.rate_rps", 2.0)
	v.SetDefault("providers.eurostat.rate_burst", 4)
	v.SetDefault("providers.eurostat.cache_ttl", 21600)

	v.SetDefault("providers.oecd.base_url", "https://sdmx.oecd.org/public/rest/data")
	v.SetDefault("providers.oecd.rate_rps", 1.0)
	v.SetDefault("providers.oecd.rate_burst", 2)
	v.SetDefault("providers.oecd.cache_ttl", 86400)

	v.SetDefault("providers.comtrade.base_url", "https://comtradeapi.un.org/data/v1/get")
	v.SetDefault("providers.comtrade.rate_rps", 0.5) // free tier is tight
	v.SetDefault("providers.comtrade.rate_burst", 1)
	v.SetDefault("providers.comtrade.cache_ttl", 86400)

	v.SetDefault("providers.statscan.base_url", "https://www150.statcan.gc.ca/t1/wds/rest")
	v.SetDefault("providers.statscan.rate_rps", 2.0)
	v.SetDefault("providers.statscan.rate_burst", 4)
	v.SetDefault("providers.statscan.cache_ttl", 21600)

	v.SetDefault("providers.exchangerate.base_url", "https://v6.exchangerate-api.com/v6")
	v.SetDefault("providers.exchangerate.rate_rps", 1.0)
	v.SetDefault("providers.exchangerate.rate_burst", 2)
	v.SetDefault("providers.exchangerate.cache_ttl", 3600) // current rates, 1 hour

	v.SetDefault("providers.coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("providers.coingecko.plan", "demo")
	v.SetDefault("providers.coingecko.rate_rps", 0.5)
	v.SetDefault("providers.coingecko.rate_burst", 2)
	v.SetDefault("providers.coingecko.cache_ttl", 1800) // 30 minutes

	// Cache defaults
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.memory_entries", 512)
	v.SetDefault("cache.default_ttl", 21600)
	v.SetDefault("cache.disabled", false)

	// Fetch defaults
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.max_retries_cap", 5)
	v.SetDefault("fetch.backoff_base_ms", 1000)
	v.SetDefault("fetch.backoff_factor", 2.0)
	v.SetDefault("fetch.concurrent_fetches", 5)
	v.SetDefault("fetch.timeout_sec", 30)
	v.SetDefault("fetch.connect_timeout_sec", 10)
	v.SetDefault("fetch.max_conns", 100)
	v.SetDefault("fetch.max_idle_conns", 50)

	// Router defaults (deterministic rules only)
	v.SetDefault("router.use_hybrid_router", false)
	v.SetDefault("router.use_langgraph", false)
	v.SetDefault("router.use_deep_agents", false)
	v.SetDefault("router.use_langchain_react_agent", false)

	// Release feed defaults
	v.SetDefault("releases.feeds", []string{
		"https://fredblog.stlouisfed.org/feed/",
		"https://www.ecb.europa.eu/rss/press.html",
		"https://www.bis.org/doclist/press_releases.rss",
	})
	v.SetDefault("releases.max_items", 20)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
// Both the ECONOFLOW_ prefixed form and the bare conventional name of each
// upstream are accepted.
func overrideFromEnv(cfg *Config) {
	if key := firstEnv("ECONOFLOW_PROVIDERS_FRED_API_KEY", "FRED_API_KEY"); key != "" {
		cfg.Providers.FRED.APIKey = key
	}
	if key := firstEnv("ECONOFLOW_PROVIDERS_COMTRADE_API_KEY", "COMTRADE_API_KEY"); key != "" {
		cfg.Providers.Comtrade.APIKey = key
	}
	if key := firstEnv("ECONOFLOW_PROVIDERS_EXCHANGERATE_API_KEY", "EXCHANGERATE_API_KEY"); key != "" {
		cfg.Providers.ExchangeRate.APIKey = key
	}
	if key := firstEnv("ECONOFLOW_PROVIDERS_COINGECKO_API_KEY", "COINGECKO_API_KEY"); key != "" {
		cfg.Providers.CoinGecko.APIKey = key
	}
	if addr := os.Getenv("ECONOFLOW_CACHE_REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}

	// Router toggles are also accepted by their bare legacy names.
	if v, ok := boolEnv("USE_HYBRID_ROUTER"); ok {
		cfg.Router.UseHybridRouter = v
	}
	if v, ok := boolEnv("USE_LANGGRAPH"); ok {
		cfg.Router.UseLanggraph = v
	}
	if v, ok := boolEnv("USE_DEEP_AGENTS"); ok {
		cfg.Router.UseDeepAgents = v
	}
	if v, ok := boolEnv("USE_LANGCHAIN_REACT_AGENT"); ok {
		cfg.Router.UseLangchainReactAgent = v
	}
}

// firstEnv returns the first non-empty value among the named variables.
func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// boolEnv parses a boolean environment variable; ok is false when unset
// or unparseable.
func boolEnv(name string) (value, ok bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return false, false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return b, true
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
