// Package releases reads the statistical release and press RSS feeds the
// upstream providers publish. It is a convenience surface for "what came out
// this week" questions; it never participates in routing or fetching.
package releases

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"

	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/provider"
)

const (
	defaultMaxItems = 20
	feedMemoTTL     = 10 * time.Minute
)

// Source is one release or press feed. Provider may be empty for feeds
// that cover the ecosystem rather than a single upstream.
type Source struct {
	Provider provider.Name
	Name     string
	FeedURL  string
}

// DefaultSources lists the feeds polled when the configuration names none.
var DefaultSources = []Source{
	{
		Provider: provider.FRED,
		Name:     "FRED Blog",
		FeedURL:  "https://fredblog.stlouisfed.org/feed/",
	},
	{
		Provider: provider.BIS,
		Name:     "BIS Press Releases",
		FeedURL:  "https://www.bis.org/doclist/press_releases.rss",
	},
	{
		Provider: provider.Eurostat,
		Name:     "Eurostat News",
		FeedURL:  "https://ec.europa.eu/eurostat/api/dissemination/catalogue/rss/en/statistics-update.rss",
	},
	{
		Provider: provider.IMF,
		Name:     "IMF Press Center",
		FeedURL:  "https://www.imf.org/en/News/RSS?Language=ENG",
	},
	{
		Provider: provider.StatsCan,
		Name:     "StatsCan The Daily",
		FeedURL:  "https://www150.statcan.gc.ca/n1/rss/dai-quo/rss-en.xml",
	},
	{
		Name:    "ECB Press",
		FeedURL: "https://www.ecb.europa.eu/rss/press.html",
	},
}

// Item is one dated release or press entry.
type Item struct {
	Provider  provider.Name `json:"provider,omitempty"`
	Source    string        `json:"source"`
	Title     string        `json:"title"`
	URL       string        `json:"url"`
	Summary   string        `json:"summary,omitempty"`
	Published time.Time     `json:"published"`
}

// Client polls the configured feeds and memoizes the merged result so
// repeated API calls do not hammer the publishers.
type Client struct {
	sources  []Source
	parser   *gofeed.Parser
	maxItems int

	mu      sync.Mutex
	memo    []Item
	fetched time.Time
}

// New builds a client from configuration. Configured feed URLs replace
// the default source list; their display name is the feed host.
func New(cfg config.ReleasesConfig) *Client {
	sources := DefaultSources
	if len(cfg.Feeds) > 0 {
		sources = make([]Source, 0, len(cfg.Feeds))
		for _, feed := range cfg.Feeds {
			feed = strings.TrimSpace(feed)
			if feed == "" {
				continue
			}
			sources = append(sources, Source{Name: hostOf(feed), FeedURL: feed})
		}
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	return &Client{
		sources:  sources,
		parser:   gofeed.NewParser(),
		maxItems: maxItems,
	}
}

// NewWithSources builds a client over an explicit source list.
func NewWithSources(sources []Source, maxItems int) *Client {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	return &Client{sources: sources, parser: gofeed.NewParser(), maxItems: maxItems}
}

// Fetch returns release items newest first, optionally filtered to the
// given providers. limit 0 means the configured maximum. An error is
// returned only when every feed failed and nothing is memoized.
func (c *Client) Fetch(ctx context.Context, providers []provider.Name, limit int) ([]Item, error) {
	items, err := c.all(ctx)
	if err != nil {
		return nil, err
	}

	if len(providers) > 0 {
		want := make(map[provider.Name]bool, len(providers))
		for _, p := range providers {
			want[p] = true
		}
		filtered := make([]Item, 0, len(items))
		for _, it := range items {
			if want[it.Provider] {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	if limit <= 0 || limit > c.maxItems {
		limit = c.maxItems
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// all polls every source, skipping the ones that fail, and keeps the
// merged list for feedMemoTTL.
func (c *Client) all(ctx context.Context) ([]Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.memo != nil && time.Since(c.fetched) < feedMemoTTL {
		return c.memo, nil
	}

	var merged []Item
	var lastErr error
	for _, src := range c.sources {
		items, err := c.fetchFeed(ctx, src)
		if err != nil {
			lastErr = err
			log.Warn().Str("source", src.Name).Err(err).Msg("release feed unavailable, skipping")
			continue
		}
		merged = append(merged, items...)
	}
	if len(merged) == 0 && lastErr != nil {
		return nil, lastErr
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Published.After(merged[j].Published)
	})

	c.memo = merged
	c.fetched = time.Now()
	return merged, nil
}

func (c *Client) fetchFeed(ctx context.Context, src Source) ([]Item, error) {
	feed, err := c.parser.ParseURLWithContext(src.FeedURL, ctx)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		it := Item{
			Provider: src.Provider,
			Source:   src.Name,
			Title:    strings.TrimSpace(entry.Title),
			URL:      entry.Link,
			Summary:  cleanHTML(entry.Description),
		}
		if entry.PublishedParsed != nil {
			it.Published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			it.Published = *entry.UpdatedParsed
		}
		items = append(items, it)
	}
	return items, nil
}

// cleanHTML strips markup from feed descriptions.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}

func hostOf(feed string) string {
	u, err := url.Parse(feed)
	if err != nil || u.Host == "" {
		return feed
	}
	return u.Host
}
