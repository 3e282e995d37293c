package config

import "os"

// APIKeySource represents where an API key comes from.
type APIKeySource string

const (
	KeySourceEnv    APIKeySource = "env"
	KeySourceConfig APIKeySource = "config"
	KeySourceNone   APIKeySource = "none"
)

// KeyStatus represents the status of an API key.
type KeyStatus struct {
	Name     string       `json:"name"`
	Source   APIKeySource `json:"source"`
	IsSet    bool         `json:"is_set"`
	Required bool         `json:"required"`
	Masked   string       `json:"masked,omitempty"` // e.g., "abc...xyz"
}

// CheckAPIKeys returns the status of every key-gated provider. Sources
// without an entry here are keyless.
func CheckAPIKeys(cfg *Config) []KeyStatus {
	return []KeyStatus{
		checkKey("FRED API Key", cfg.Providers.FRED.APIKey, "FRED_API_KEY", true),
		checkKey("UN Comtrade Subscription Key", cfg.Providers.Comtrade.APIKey, "COMTRADE_API_KEY", true),
		checkKey("ExchangeRate API Key", cfg.Providers.ExchangeRate.APIKey, "EXCHANGERATE_API_KEY", true),
		checkKey("CoinGecko API Key", cfg.Providers.CoinGecko.APIKey, "COINGECKO_API_KEY", false),
	}
}

// checkKey checks if a key is set and where it came from.
func checkKey(name, value, envVar string, required bool) KeyStatus {
	status := KeyStatus{
		Name:     name,
		IsSet:    value != "",
		Required: required,
	}

	if value != "" {
		// Check if it came from env (bare or prefixed form)
		if os.Getenv(envVar) != "" || os.Getenv("ECONOFLOW_PROVIDERS_"+envVar) != "" {
			status.Source = KeySourceEnv
		} else {
			status.Source = KeySourceConfig
		}
		status.Masked = maskKey(value)
	} else {
		status.Source = KeySourceNone
	}

	return status
}

// maskKey masks an API key for display, showing only first 3 and last 3 chars.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}
