package config

import (
	"os"
	"path/filepath"
	"testing"
)

// ── Load / Defaults ──

func TestLoadReturnsDefaults(t *testing.T) {
	// Unset any env vars that would interfere
	envVars := []string{
		"ECONOFLOW_PROVIDERS_FRED_API_KEY", "FRED_API_KEY",
		"ECONOFLOW_PROVIDERS_COMTRADE_API_KEY", "COMTRADE_API_KEY",
		"ECONOFLOW_PROVIDERS_EXCHANGERATE_API_KEY", "EXCHANGERATE_API_KEY",
		"ECONOFLOW_PROVIDERS_COINGECKO_API_KEY", "COINGECKO_API_KEY",
		"USE_HYBRID_ROUTER", "USE_LANGGRAPH", "USE_DEEP_AGENTS", "USE_LANGCHAIN_REACT_AGENT",
	}
	for _, e := range envVars {
		os.Unsetenv(e)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Provider defaults
	if cfg.Providers.FRED.BaseURL != "https://api.stlouisfed.org/fred" {
		t.Errorf("Providers.FRED.BaseURL: got %q", cfg.Providers.FRED.BaseURL)
	}
	if cfg.Providers.FRED.CacheTTL != 21600 {
		t.Errorf("Providers.FRED.CacheTTL: got %d, want 21600", cfg.Providers.FRED.CacheTTL)
	}
	if cfg.Providers.WorldBank.BaseURL != "https://api.worldbank.org/v2" {
		t.Errorf("Providers.WorldBank.BaseURL: got %q", cfg.Providers.WorldBank.BaseURL)
	}
	if cfg.Providers.ExchangeRate.CacheTTL != 3600 {
		t.Errorf("Providers.ExchangeRate.CacheTTL: got %d, want 3600", cfg.Providers.ExchangeRate.CacheTTL)
	}
	if cfg.Providers.Comtrade.RateRPS != 0.5 {
		t.Errorf("Providers.Comtrade.RateRPS: got %f, want 0.5", cfg.Providers.Comtrade.RateRPS)
	}

	// Cache defaults
	if cfg.Cache.RedisAddr != "localhost:6379" {
		t.Errorf("Cache.RedisAddr: got %q", cfg.Cache.RedisAddr)
	}
	if cfg.Cache.MemoryEntries != 512 {
		t.Errorf("Cache.MemoryEntries: got %d, want 512", cfg.Cache.MemoryEntries)
	}
	if cfg.Cache.DefaultTTL != 21600 {
		t.Errorf("Cache.DefaultTTL: got %d, want 21600", cfg.Cache.DefaultTTL)
	}
	if cfg.Cache.Disabled {
		t.Error("Cache.Disabled should be false by default")
	}

	// Fetch defaults
	if cfg.Fetch.MaxRetries != 3 {
		t.Errorf("Fetch.MaxRetries: got %d, want 3", cfg.Fetch.MaxRetries)
	}
	if cfg.Fetch.MaxRetriesCap != 5 {
		t.Errorf("Fetch.MaxRetriesCap: got %d, want 5", cfg.Fetch.MaxRetriesCap)
	}
	if cfg.Fetch.BackoffBaseMS != 1000 {
		t.Errorf("Fetch.BackoffBaseMS: got %d, want 1000", cfg.Fetch.BackoffBaseMS)
	}
	if cfg.Fetch.BackoffFactor != 2.0 {
		t.Errorf("Fetch.BackoffFactor: got %f, want 2.0", cfg.Fetch.BackoffFactor)
	}
	if cfg.Fetch.ConcurrentFetches != 5 {
		t.Errorf("Fetch.ConcurrentFetches: got %d, want 5", cfg.Fetch.ConcurrentFetches)
	}
	if cfg.Fetch.TimeoutSec != 30 {
		t.Errorf("Fetch.TimeoutSec: got %d, want 30", cfg.Fetch.TimeoutSec)
	}
	if cfg.Fetch.MaxConns != 100 {
		t.Errorf("Fetch.MaxConns: got %d, want 100", cfg.Fetch.MaxConns)
	}
	if cfg.Fetch.MaxIdleConns != 50 {
		t.Errorf("Fetch.MaxIdleConns: got %d, want 50", cfg.Fetch.MaxIdleConns)
	}

	// Router defaults: everything off
	if cfg.Router.UseHybridRouter || cfg.Router.UseLanggraph ||
		cfg.Router.UseDeepAgents || cfg.Router.UseLangchainReactAgent {
		t.Error("router toggles should all default to false")
	}

	// Release defaults
	if len(cfg.Releases.Feeds) != 3 {
		t.Errorf("Releases.Feeds: got %d feeds, want 3", len(cfg.Releases.Feeds))
	}
	if cfg.Releases.MaxItems != 20 {
		t.Errorf("Releases.MaxItems: got %d, want 20", cfg.Releases.MaxItems)
	}

	// API defaults
	if cfg.API.Host != "0.0.0.0" {
		t.Errorf("API.Host: got %q, want %q", cfg.API.Host, "0.0.0.0")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port: got %d, want 8080", cfg.API.Port)
	}

	// Logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format: got %q, want %q", cfg.Logging.Format, "text")
	}
}

// ── LoadFromFile ──

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "test_config.yaml")
	content := []byte(`
providers:
  fred:
    api_key: "fredkey1234567890abc"
    cache_ttl: 7200
  comtrade:
    rate_rps: 1.0
cache:
  redis_addr: "redis.internal:6380"
  memory_entries: 2048
fetch:
  max_retries: 4
  concurrent_fetches: 8
router:
  use_hybrid_router: true
api:
  port: 9090
logging:
  level: "debug"
  format: "json"
`)
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	os.Unsetenv("ECONOFLOW_PROVIDERS_FRED_API_KEY")
	os.Unsetenv("FRED_API_KEY")
	os.Unsetenv("USE_HYBRID_ROUTER")

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if cfg.Providers.FRED.APIKey != "fredkey1234567890abc" {
		t.Errorf("Providers.FRED.APIKey: got %q", cfg.Providers.FRED.APIKey)
	}
	if cfg.Providers.FRED.CacheTTL != 7200 {
		t.Errorf("Providers.FRED.CacheTTL: got %d, want 7200", cfg.Providers.FRED.CacheTTL)
	}
	// Defaults survive for keys the file does not set.
	if cfg.Providers.FRED.BaseURL != "https://api.stlouisfed.org/fred" {
		t.Errorf("Providers.FRED.BaseURL default lost: got %q", cfg.Providers.FRED.BaseURL)
	}
	if cfg.Providers.Comtrade.RateRPS != 1.0 {
		t.Errorf("Providers.Comtrade.RateRPS: got %f, want 1.0", cfg.Providers.Comtrade.RateRPS)
	}
	if cfg.Cache.RedisAddr != "redis.internal:6380" {
		t.Errorf("Cache.RedisAddr: got %q", cfg.Cache.RedisAddr)
	}
	if cfg.Cache.MemoryEntries != 2048 {
		t.Errorf("Cache.MemoryEntries: got %d, want 2048", cfg.Cache.MemoryEntries)
	}
	if cfg.Fetch.MaxRetries != 4 {
		t.Errorf("Fetch.MaxRetries: got %d, want 4", cfg.Fetch.MaxRetries)
	}
	if cfg.Fetch.ConcurrentFetches != 8 {
		t.Errorf("Fetch.ConcurrentFetches: got %d, want 8", cfg.Fetch.ConcurrentFetches)
	}
	if !cfg.Router.UseHybridRouter {
		t.Error("Router.UseHybridRouter should be true from file")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port: got %d, want 9090", cfg.API.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format: got %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoadFromFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("LoadFromFile() with nonexistent path should return error")
	}
}

// ── overrideFromEnv ──

func TestOverrideFromEnv(t *testing.T) {
	cfg := &Config{}

	os.Setenv("FRED_API_KEY", "fred-env-key-123456")
	os.Setenv("ECONOFLOW_PROVIDERS_COMTRADE_API_KEY", "comtrade-env-key-789")
	os.Setenv("EXCHANGERATE_API_KEY", "xr-env-key-abcdef")
	os.Setenv("USE_HYBRID_ROUTER", "true")
	defer func() {
		os.Unsetenv("FRED_API_KEY")
		os.Unsetenv("ECONOFLOW_PROVIDERS_COMTRADE_API_KEY")
		os.Unsetenv("EXCHANGERATE_API_KEY")
		os.Unsetenv("USE_HYBRID_ROUTER")
	}()

	overrideFromEnv(cfg)

	if cfg.Providers.FRED.APIKey != "fred-env-key-123456" {
		t.Errorf("FRED.APIKey: got %q", cfg.Providers.FRED.APIKey)
	}
	if cfg.Providers.Comtrade.APIKey != "comtrade-env-key-789" {
		t.Errorf("Comtrade.APIKey: got %q", cfg.Providers.Comtrade.APIKey)
	}
	if cfg.Providers.ExchangeRate.APIKey != "xr-env-key-abcdef" {
		t.Errorf("ExchangeRate.APIKey: got %q", cfg.Providers.ExchangeRate.APIKey)
	}
	if !cfg.Router.UseHybridRouter {
		t.Error("UseHybridRouter should be true from USE_HYBRID_ROUTER env")
	}
}

func TestOverrideFromEnvPrefixedWinsOverBare(t *testing.T) {
	cfg := &Config{}
	os.Setenv("ECONOFLOW_PROVIDERS_FRED_API_KEY", "prefixed-key-12345")
	os.Setenv("FRED_API_KEY", "bare-key-12345")
	defer func() {
		os.Unsetenv("ECONOFLOW_PROVIDERS_FRED_API_KEY")
		os.Unsetenv("FRED_API_KEY")
	}()

	overrideFromEnv(cfg)
	if cfg.Providers.FRED.APIKey != "prefixed-key-12345" {
		t.Errorf("prefixed env should win, got %q", cfg.Providers.FRED.APIKey)
	}
}

func TestOverrideFromEnvNoEnvSet(t *testing.T) {
	os.Unsetenv("ECONOFLOW_PROVIDERS_FRED_API_KEY")
	os.Unsetenv("FRED_API_KEY")

	cfg := &Config{}
	cfg.Providers.FRED.APIKey = "from-config"
	overrideFromEnv(cfg)

	// Should retain the original value when env is not set
	if cfg.Providers.FRED.APIKey != "from-config" {
		t.Errorf("APIKey should stay as 'from-config' when env is unset, got %q", cfg.Providers.FRED.APIKey)
	}
}

func TestBoolEnvParsing(t *testing.T) {
	os.Unsetenv("ECONOFLOW_TEST_BOOL")
	if _, ok := boolEnv("ECONOFLOW_TEST_BOOL"); ok {
		t.Error("unset variable should not be ok")
	}

	os.Setenv("ECONOFLOW_TEST_BOOL", "1")
	defer os.Unsetenv("ECONOFLOW_TEST_BOOL")
	v, ok := boolEnv("ECONOFLOW_TEST_BOOL")
	if !ok || !v {
		t.Errorf("boolEnv(\"1\") = %v, %v, want true, true", v, ok)
	}

	os.Setenv("ECONOFLOW_TEST_BOOL", "maybe")
	if _, ok := boolEnv("ECONOFLOW_TEST_BOOL"); ok {
		t.Error("unparseable value should not be ok")
	}
}

// ── ByName ──

func TestProvidersByName(t *testing.T) {
	cfg := &Config{}
	cfg.Providers.BIS.BaseURL = "https://stats.bis.org/api/v2"

	pc, ok := cfg.Providers.ByName("BIS")
	if !ok {
		t.Fatal("ByName(BIS) not found")
	}
	if pc.BaseURL != "https://stats.bis.org/api/v2" {
		t.Errorf("BaseURL: got %q", pc.BaseURL)
	}

	if _, ok := cfg.Providers.ByName("worldbank"); !ok {
		t.Error("ByName should be case-insensitive")
	}
	if _, ok := cfg.Providers.ByName("bloomberg"); ok {
		t.Error("ByName(bloomberg) should not be found")
	}
}

// ── maskKey ──

func TestMaskKeyShort(t *testing.T) {
	// Keys with 8 or fewer characters should be fully masked
	tests := []struct {
		input string
		want  string
	}{
		{"", "***"},
		{"a", "***"},
		{"abcd", "***"},
		{"12345678", "***"},
	}
	for _, tc := range tests {
		got := maskKey(tc.input)
		if got != tc.want {
			t.Errorf("maskKey(%q): got %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestMaskKeyLong(t *testing.T) {
	// Keys with more than 8 characters show first 3 + ... + last 3
	tests := []struct {
		input string
		want  string
	}{
		{"123456789", "123...789"},
		{"abcdef1234567890xyz", "abc...xyz"},
		{"ABCDEFGHIJKLMNOP", "ABC...NOP"},
	}
	for _, tc := range tests {
		got := maskKey(tc.input)
		if got != tc.want {
			t.Errorf("maskKey(%q): got %q, want %q", tc.input, got, tc.want)
		}
	}
}

// ── CheckAPIKeys / checkKey ──

func TestCheckAPIKeysAllEmpty(t *testing.T) {
	envVars := []string{
		"FRED_API_KEY", "ECONOFLOW_PROVIDERS_FRED_API_KEY",
		"COMTRADE_API_KEY", "ECONOFLOW_PROVIDERS_COMTRADE_API_KEY",
		"EXCHANGERATE_API_KEY", "ECONOFLOW_PROVIDERS_EXCHANGERATE_API_KEY",
		"COINGECKO_API_KEY", "ECONOFLOW_PROVIDERS_COINGECKO_API_KEY",
	}
	for _, e := range envVars {
		os.Unsetenv(e)
	}

	cfg := &Config{}
	statuses := CheckAPIKeys(cfg)

	if len(statuses) != 4 {
		t.Fatalf("CheckAPIKeys: got %d statuses, want 4", len(statuses))
	}
	for _, s := range statuses {
		if s.IsSet {
			t.Errorf("Key %q should not be set", s.Name)
		}
		if s.Source != KeySourceNone {
			t.Errorf("Key %q source: got %q, want %q", s.Name, s.Source, KeySourceNone)
		}
	}
}

func TestCheckAPIKeysFromConfig(t *testing.T) {
	os.Unsetenv("FRED_API_KEY")
	os.Unsetenv("ECONOFLOW_PROVIDERS_FRED_API_KEY")

	cfg := &Config{}
	cfg.Providers.FRED.APIKey = "fred-test-very-long-key-value"
	statuses := CheckAPIKeys(cfg)

	found := false
	for _, s := range statuses {
		if s.Name == "FRED API Key" {
			found = true
			if !s.IsSet {
				t.Error("FRED key should be set")
			}
			if !s.Required {
				t.Error("FRED key should be required")
			}
			if s.Source != KeySourceConfig {
				t.Errorf("Source: got %q, want %q", s.Source, KeySourceConfig)
			}
			if s.Masked != "fre...lue" {
				t.Errorf("Masked: got %q, want %q", s.Masked, "fre...lue")
			}
		}
	}
	if !found {
		t.Error("FRED API Key status not found")
	}
}

func TestCheckAPIKeysFromEnv(t *testing.T) {
	os.Setenv("FRED_API_KEY", "fred-env-key-for-testing")
	defer os.Unsetenv("FRED_API_KEY")

	cfg := &Config{}
	cfg.Providers.FRED.APIKey = "fred-env-key-for-testing"
	statuses := CheckAPIKeys(cfg)

	for _, s := range statuses {
		if s.Name == "FRED API Key" {
			if s.Source != KeySourceEnv {
				t.Errorf("Source: got %q, want %q", s.Source, KeySourceEnv)
			}
		}
	}
}

func TestCheckAPIKeysOptionalCoinGecko(t *testing.T) {
	cfg := &Config{}
	for _, s := range CheckAPIKeys(cfg) {
		if s.Name == "CoinGecko API Key" && s.Required {
			t.Error("CoinGecko key should be optional")
		}
	}
}

func TestCheckKeySourceDetection(t *testing.T) {
	// No env, no value
	os.Unsetenv("TEST_VAR")
	os.Unsetenv("ECONOFLOW_PROVIDERS_TEST_VAR")
	s := checkKey("Test", "", "TEST_VAR", true)
	if s.Source != KeySourceNone {
		t.Errorf("empty value: got source %q, want %q", s.Source, KeySourceNone)
	}
	if s.IsSet {
		t.Error("empty value should not be set")
	}

	// Value from config (no env)
	s = checkKey("Test", "config-value-long-enough", "TEST_VAR", true)
	if s.Source != KeySourceConfig {
		t.Errorf("config value: got source %q, want %q", s.Source, KeySourceConfig)
	}
	if !s.IsSet {
		t.Error("config value should be set")
	}

	// Value from env
	os.Setenv("TEST_VAR", "env-value-long-enough")
	defer os.Unsetenv("TEST_VAR")
	s = checkKey("Test", "env-value-long-enough", "TEST_VAR", true)
	if s.Source != KeySourceEnv {
		t.Errorf("env value: got source %q, want %q", s.Source, KeySourceEnv)
	}
}

// ── homeDir ──

func TestHomeDirReturnsNonEmpty(t *testing.T) {
	h := homeDir()
	if h == "" {
		t.Error("homeDir() should not return empty string")
	}
}
