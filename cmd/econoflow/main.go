// econoflow — federated access to economic statistics.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"

	"github.com/econoflow/econoflow/api"
	"github.com/econoflow/econoflow/internal/catalog"
	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/country"
	"github.com/econoflow/econoflow/internal/fetch"
	"github.com/econoflow/econoflow/internal/httpx"
	"github.com/econoflow/econoflow/internal/params"
	"github.com/econoflow/econoflow/internal/provider"
	"github.com/econoflow/econoflow/internal/providers"
	"github.com/econoflow/econoflow/internal/ratelimit"
	"github.com/econoflow/econoflow/internal/releases"
	"github.com/econoflow/econoflow/internal/resolve"
	"github.com/econoflow/econoflow/internal/router"
	"github.com/econoflow/econoflow/internal/telemetry"
	"github.com/econoflow/econoflow/pkg/series"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "econoflow",
	Short: "econoflow — federated access to economic statistics",
	Long: `econoflow resolves economic data queries to the right statistical
provider (FRED, World Bank, IMF, BIS, Eurostat, OECD, UN Comtrade,
Statistics Canada, ExchangeRate, CoinGecko), fetches the series with
retry, fallback and cache discipline, and returns one canonical
time-series shape regardless of origin.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		config.ConfigureLogging(cfg.Logging)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(countriesCmd)
	rootCmd.AddCommand(releasesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("econoflow %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Fetch Command ---

var fetchCmd = &cobra.Command{
	Use:   "fetch [query]",
	Short: "Fetch economic series for a query",
	Long: `Fetch routes the query to a provider, resolves the indicator to a
provider-native code, and prints the canonical series.

Examples:
  econoflow fetch "unemployment rate in Germany since 2015"
  econoflow fetch "gdp growth for G7 from worldbank"
  econoflow fetch "inflation" --countries US,CA --start 2020-01-01 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		providerFlag, _ := cmd.Flags().GetString("provider")
		indicators, _ := cmd.Flags().GetStringSlice("indicator")
		countryList, _ := cmd.Flags().GetStringSlice("countries")
		start, _ := cmd.Flags().GetString("start")
		end, _ := cmd.Flags().GetString("end")
		freq, _ := cmd.Flags().GetString("frequency")
		asJSON, _ := cmd.Flags().GetBool("json")

		if providerFlag != "" {
			if _, ok := provider.ParseName(providerFlag); !ok {
				return fmt.Errorf("unknown provider %q", providerFlag)
			}
		}

		in := &params.ParsedIntent{
			OriginalQuery: query,
			Indicators:    indicators,
			Provider:      providerFlag,
		}
		if len(in.Indicators) == 0 {
			in.Indicators = []string{query}
		}
		p := map[string]any{}
		if len(countryList) > 0 {
			p["countries"] = countryList
		}
		if start != "" {
			p["startDate"] = start
		}
		if end != "" {
			p["endDate"] = end
		}
		if freq != "" {
			p["frequency"] = freq
		}
		if len(p) > 0 {
			in.Parameters = p
		}

		st, err := buildStack(cfg, false)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		res, err := st.orch.FetchIntent(ctx, in)
		if err != nil {
			printSuggestions(err)
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		printResult(res)
		return nil
	},
}

func init() {
	fetchCmd.Flags().String("provider", "", "preferred provider (the catalog may still reroute; name it in the query to lock)")
	fetchCmd.Flags().StringSlice("indicator", nil, "indicator terms (default: the whole query)")
	fetchCmd.Flags().StringSlice("countries", nil, "country names or ISO codes")
	fetchCmd.Flags().String("start", "", "start date (YYYY, YYYY-MM, or YYYY-MM-DD)")
	fetchCmd.Flags().String("end", "", "end date (YYYY, YYYY-MM, or YYYY-MM-DD)")
	fetchCmd.Flags().String("frequency", "", "preferred frequency (monthly, quarterly, annual)")
	fetchCmd.Flags().Bool("json", false, "print the full result as JSON")
}

// --- Resolve Command ---

var resolveCmd = &cobra.Command{
	Use:   "resolve [term]",
	Short: "Resolve an indicator term to a provider-native code",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		term := strings.Join(args, " ")
		providerFlag, _ := cmd.Flags().GetString("provider")
		countryList, _ := cmd.Flags().GetStringSlice("countries")

		var target provider.Name
		if providerFlag != "" {
			p, ok := provider.ParseName(providerFlag)
			if !ok {
				return fmt.Errorf("unknown provider %q", providerFlag)
			}
			target = p
		}

		store, err := catalog.NewStore()
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		resolver, err := resolve.NewResolver(store, nil)
		if err != nil {
			return fmt.Errorf("load indicator index: %w", err)
		}

		res := resolver.Resolve(term, target, countryList)
		if res == nil {
			fmt.Printf("❌ no indicator code matched %q\n", term)
			return nil
		}

		fmt.Printf("✅ %s → %s on %s\n", term, res.Code, res.Provider)
		if res.Name != "" {
			fmt.Printf("   Name:        %s\n", res.Name)
		}
		if res.Unit != "" {
			fmt.Printf("   Unit:        %s\n", res.Unit)
		}
		if res.Frequency != "" {
			fmt.Printf("   Frequency:   %s\n", res.Frequency)
		}
		fmt.Printf("   Confidence:  %.2f (%s)\n", res.Confidence, res.Source)

		if alts := resolver.Alternatives(res.Provider, res.Code, 5); len(alts) > 0 {
			fmt.Println("   Alternatives:")
			for _, alt := range alts {
				fmt.Printf("     %-24s %s\n", alt.Code, alt.Name)
			}
		}
		return nil
	},
}

func init() {
	resolveCmd.Flags().String("provider", "", "resolve against one provider only")
	resolveCmd.Flags().StringSlice("countries", nil, "country context for coverage-aware scoring")
}

// --- Route Command ---

var routeCmd = &cobra.Command{
	Use:   "route [query]",
	Short: "Show which provider a query would be routed to",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		store, err := catalog.NewStore()
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		rt := router.New(store, nil)

		d := rt.Route(&params.ParsedIntent{
			OriginalQuery: query,
			Indicators:    []string{query},
		})

		fmt.Printf("🧭 Provider:  %s\n", d.Provider)
		fmt.Printf("   Reasoning: %s\n", d.Reasoning)
		if d.Concept != "" {
			fmt.Printf("   Concept:   %s\n", d.Concept)
		}
		if d.IsExplicitUserChoice {
			fmt.Println("   Explicit user choice: yes")
		}
		if d.ValidationWarning != "" {
			fmt.Printf("⚠️  %s\n", d.ValidationWarning)
		}
		return nil
	},
}

// --- Countries Command ---

var countriesCmd = &cobra.Command{
	Use:   "countries [region]",
	Short: "Expand a region or group label into member countries",
	Long: `Expand a region or group label (G7, G20, EU, Eurozone, BRICS, ASEAN,
OECD, ...) into its member country codes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := strings.Join(args, " ")
		formatFlag, _ := cmd.Flags().GetString("format")

		format, err := parseCountryFormat(formatFlag)
		if err != nil {
			return err
		}

		members, ok := country.ExpandRegion(label, format)
		if !ok {
			return fmt.Errorf("unknown region or group %q", label)
		}

		fmt.Printf("🌍 %s — %d members (%s)\n", label, len(members), format)
		fmt.Println("   " + strings.Join(members, " "))
		return nil
	},
}

func init() {
	countriesCmd.Flags().String("format", "iso2", "code format: iso2, iso3, or un_numeric")
}

func parseCountryFormat(s string) (country.Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "iso2":
		return country.ISO2, nil
	case "iso3":
		return country.ISO3, nil
	case "un", "un_numeric", "m49":
		return country.UNNumeric, nil
	}
	return "", fmt.Errorf("format must be iso2, iso3, or un_numeric")
}

// --- Releases Command ---

var releasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "Show recent statistical releases and press items",
	RunE: func(cmd *cobra.Command, args []string) error {
		providerFlags, _ := cmd.Flags().GetStringSlice("provider")
		limit, _ := cmd.Flags().GetInt("limit")

		var names []provider.Name
		for _, raw := range providerFlags {
			p, ok := provider.ParseName(raw)
			if !ok {
				return fmt.Errorf("unknown provider %q", raw)
			}
			names = append(names, p)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		items, err := releases.New(cfg.Releases).Fetch(ctx, names, limit)
		if err != nil {
			return fmt.Errorf("fetch release feeds: %w", err)
		}
		if len(items) == 0 {
			fmt.Println("📰 no release items")
			return nil
		}

		fmt.Printf("📰 %d release items\n", len(items))
		for _, it := range items {
			src := it.Source
			if it.Provider != "" {
				src = string(it.Provider)
			}
			fmt.Printf("  %s  %-12s %s\n", it.Published.Format("2006-01-02"), src, it.Title)
			if it.URL != "" {
				fmt.Printf("              %s\n", it.URL)
			}
		}
		return nil
	},
}

func init() {
	releasesCmd.Flags().StringSlice("provider", nil, "filter by provider")
	releasesCmd.Flags().Int("limit", 0, "maximum items (default: configured max)")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, key status, and provider health",
	RunE: func(cmd *cobra.Command, args []string) error {
		offline, _ := cmd.Flags().GetBool("offline")

		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  econoflow — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:  %s (%s)\n", version, commit)
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Printf("    Cache:         %s\n", cacheSummary(cfg.Cache))
		fmt.Printf("    Fetch:         %d retries, %d concurrent\n", cfg.Fetch.MaxRetries, cfg.Fetch.ConcurrentFetches)
		fmt.Printf("    Release Feeds: %d\n", len(cfg.Releases.Feeds))
		fmt.Println()

		fmt.Println("  API Keys:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "❌ not set"
			switch {
			case k.IsSet:
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			case !k.Required:
				status = "⚪ optional, not set"
			}
			fmt.Printf("    %-30s %s\n", k.Name+":", status)
		}

		if !offline {
			fmt.Println()
			fmt.Println("  Providers:")
			hc := httpx.New(httpx.Options{
				Timeout:        10 * time.Second,
				ConnectTimeout: 5 * time.Second,
			})
			reg, err := providers.Build(cfg.Providers, hc, nil)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			results := reg.PingAll(ctx)
			for _, name := range reg.Names() {
				if err := results[name]; err != nil {
					fmt.Printf("    %-14s ❌ %s\n", name, oneLine(err.Error(), 60))
				} else {
					fmt.Printf("    %-14s ✅ reachable\n", name)
				}
			}
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("offline", false, "skip provider reachability checks")
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack(cfg, true)
		if err != nil {
			return err
		}

		learnedFile, _ := cmd.Flags().GetString("learned")
		if learnedFile != "" {
			n, err := st.resolver.LearnedStore().LoadFile(learnedFile)
			if err != nil {
				return fmt.Errorf("load learned mappings: %w", err)
			}
			if n > 0 {
				log.Info().Int("mappings", n).Str("file", learnedFile).Msg("learned mappings loaded")
			}
		}

		srv := api.NewServer(api.Options{
			Config:   cfg,
			Registry: st.registry,
			Orch:     st.orch,
			Resolver: st.resolver,
			Router:   st.router,
			Catalog:  st.catalog,
			Releases: st.releases,
			Gate:     st.gate,
			Metrics:  st.metrics,
			Version:  version,
		})

		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		fmt.Printf("🌐 econoflow API listening on %s\n", addr)
		serveErr := srv.ListenAndServe(addr)

		if learnedFile != "" && st.resolver.LearnedStore().Len() > 0 {
			if err := st.resolver.LearnedStore().SaveFile(learnedFile); err != nil {
				log.Warn().Err(err).Str("file", learnedFile).Msg("failed to persist learned mappings")
			}
		}
		return serveErr
	},
}

func init() {
	serveCmd.Flags().String("learned", "", "JSON file for persisting learned indicator mappings")
}

// --- Stack Assembly ---

// stack holds the wired fetch pipeline shared by the serve and fetch
// commands.
type stack struct {
	registry *provider.Registry
	resolver *resolve.Resolver
	router   *router.Router
	catalog  *catalog.Store
	cache    *fetch.Cache
	gate     *ratelimit.Gate
	metrics  *telemetry.Metrics
	orch     *fetch.Orchestrator
	releases *releases.Client
}

// buildStack assembles every component from configuration. Metrics are
// optional; one-shot commands skip them.
func buildStack(cfg *config.Config, withMetrics bool) (*stack, error) {
	store, err := catalog.NewStore()
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	var metrics *telemetry.Metrics
	if withMetrics {
		metrics = telemetry.New()
	}

	resolver, err := resolve.NewResolver(store, metrics)
	if err != nil {
		return nil, fmt.Errorf("load indicator index: %w", err)
	}

	hc := httpx.New(httpx.Options{
		MaxConns:       cfg.Fetch.MaxConns,
		MaxIdleConns:   cfg.Fetch.MaxIdleConns,
		Timeout:        time.Duration(cfg.Fetch.TimeoutSec) * time.Second,
		ConnectTimeout: time.Duration(cfg.Fetch.ConnectTimeoutSec) * time.Second,
	})

	registry, err := providers.Build(cfg.Providers, hc, resolver.LearnedStore())
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}

	cache, err := fetch.NewCache(cfg.Cache, fetch.TTLsFromConfig(cfg.Providers), metrics)
	if err != nil {
		return nil, fmt.Errorf("build cache: %w", err)
	}

	var onChange ratelimit.StateChangeFunc
	if metrics != nil {
		onChange = func(name provider.Name, _, to gobreaker.State) {
			metrics.SetBreakerState(string(name), to.String())
		}
	}
	gate := ratelimit.NewGate(ratelimit.LimitsFromConfig(cfg.Providers), onChange)
	rt := router.New(store, nil)

	orch := fetch.New(fetch.Options{
		Registry: registry,
		Resolver: resolver,
		Router:   rt,
		Catalog:  store,
		Cache:    cache,
		Gate:     gate,
		Metrics:  metrics,
		Config:   cfg.Fetch,
	})

	return &stack{
		registry: registry,
		resolver: resolver,
		router:   rt,
		catalog:  store,
		cache:    cache,
		gate:     gate,
		metrics:  metrics,
		orch:     orch,
		releases: releases.New(cfg.Releases),
	}, nil
}

// --- Output Helpers ---

const pointTail = 12

func printResult(res *fetch.Result) {
	fmt.Printf("✅ %d series via %s", len(res.Series), res.Decision.Provider)
	if res.Decision.Reasoning != "" {
		fmt.Printf(" (%s)", res.Decision.Reasoning)
	}
	fmt.Println()
	for _, w := range res.Warnings {
		fmt.Printf("⚠️  %s\n", w)
	}
	for _, s := range res.Series {
		fmt.Println()
		printSeries(s)
	}
}

func printSeries(s *series.Series) {
	head := s.Metadata.Indicator
	if s.Metadata.Country != "" {
		head += " — " + s.Metadata.Country
	}
	detail := []string{s.Metadata.Source, s.Metadata.SeriesID}
	if s.Metadata.Frequency != "" {
		detail = append(detail, s.Metadata.Frequency)
	}
	if s.Metadata.Unit != "" {
		detail = append(detail, s.Metadata.Unit)
	}
	fmt.Printf("📊 %s (%s)\n", head, strings.Join(detail, ", "))

	pts := s.Points
	if len(pts) > pointTail {
		fmt.Printf("   … %d earlier observations\n", len(pts)-pointTail)
		pts = pts[len(pts)-pointTail:]
	}
	for _, p := range pts {
		fmt.Printf("   %-12s %s\n", p.Date, valueString(p.Value))
	}
}

func valueString(v *float64) string {
	if v == nil {
		return "·"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// printSuggestions surfaces provider suggestions attached to a failed
// fetch before the error itself is printed.
func printSuggestions(err error) {
	var na *provider.NotAvailableError
	if !errors.As(err, &na) || len(na.Suggestions) == 0 {
		return
	}
	fmt.Println("💡 Suggestions:")
	for _, s := range na.Suggestions {
		fmt.Printf("   • %s\n", s)
	}
}

func cacheSummary(cfg config.CacheConfig) string {
	if cfg.Disabled {
		return "disabled"
	}
	if cfg.RedisAddr != "" {
		return fmt.Sprintf("redis (%s) + memory (%d entries)", cfg.RedisAddr, cfg.MemoryEntries)
	}
	return fmt.Sprintf("memory only (%d entries)", cfg.MemoryEntries)
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		return s[:max-1] + "…"
	}
	return s
}
