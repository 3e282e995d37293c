// Package catalog loads the canonical economic concept definitions and
// answers four questions: what concept does a term denote, what terms are
// explicitly excluded from a concept, what indicator code does a (concept,
// provider, variant) map to, and which providers cannot serve a concept.
//
// Definitions live in YAML under data/ and are embedded at build time. The
// catalog is immutable once loaded; hot reload swaps the whole snapshot
// atomically. It is the single source of truth for concept->code mappings --
// the synonym and compatibility snapshots are derived views, never inputs.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/econoflow/econoflow/internal/country"
	"github.com/econoflow/econoflow/internal/provider"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Variant names for IndicatorCode.
const (
	VariantPrimary   = "primary"
	VariantGrowth    = "growth"
	VariantCore      = "core"
	VariantAlternate = "alternate"
)

// Coverage tokens. Anything else is treated as an explicit country list
// (comma-separated) or a single country code.
const (
	CoverageGlobal = "global"
	CoverageOECD   = "oecd_members"
	CoverageEU     = "eu_members"
)

// CodeInfo is one provider-specific indicator code with its metadata.
type CodeInfo struct {
	Code       string  `yaml:"code"`
	Name       string  `yaml:"name"`
	Confidence float64 `yaml:"confidence"`
	Coverage   string  `yaml:"coverage"`
	Frequency  string  `yaml:"frequency"`
}

// Synonyms groups the terms that denote a concept. Primary synonyms are the
// established names; secondary ones are looser colloquial phrases.
type Synonyms struct {
	Primary   []string `yaml:"primary"`
	Secondary []string `yaml:"secondary"`
}

// All returns primary and secondary synonyms as one list.
func (s Synonyms) All() []string {
	out := make([]string, 0, len(s.Primary)+len(s.Secondary))
	out = append(out, s.Primary...)
	out = append(out, s.Secondary...)
	return out
}

// ProviderCodes holds the primary code and named variants for one provider.
type ProviderCodes struct {
	Primary  CodeInfo            `yaml:"primary"`
	Variants map[string]CodeInfo `yaml:"variants"`
}

// Concept is one canonical economic concept.
type Concept struct {
	Name         string
	Synonyms     Synonyms                 `yaml:"synonyms"`
	Exclusions   []string                 `yaml:"exclusions"`
	Providers    map[string]ProviderCodes `yaml:"providers"`
	NotAvailable []string                 `yaml:"not_available"`
}

// ProviderChoice is one (provider, code, confidence) answer from the catalog.
type ProviderChoice struct {
	Provider   provider.Name
	Code       string
	Name       string
	Confidence float64
	Frequency  string
}

// Catalog is an immutable snapshot of every loaded concept.
type Catalog struct {
	concepts map[string]*Concept // keyed by concept name
	byTerm   map[string]string   // lowercase synonym/name -> concept name
}

type conceptsFile struct {
	Concepts map[string]*Concept `yaml:"concepts"`
}

// Load parses every embedded YAML file into a catalog snapshot.
func Load() (*Catalog, error) {
	return loadFrom(dataFS)
}

func loadFrom(fsys fs.FS) (*Catalog, error) {
	entries, err := fs.Glob(fsys, "data/*.yaml")
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog: no data files embedded")
	}
	sort.Strings(entries)

	c := &Catalog{
		concepts: make(map[string]*Concept),
		byTerm:   make(map[string]string),
	}
	for _, path := range entries {
		raw, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", path, err)
		}
		var file conceptsFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
		}
		for name, concept := range file.Concepts {
			concept.Name = name
			if _, dup := c.concepts[name]; dup {
				return nil, fmt.Errorf("catalog: concept %q defined twice", name)
			}
			c.concepts[name] = concept
			c.byTerm[strings.ToLower(name)] = name
			for _, syn := range concept.Synonyms.All() {
				c.byTerm[strings.ToLower(syn)] = name
			}
		}
	}
	return c, nil
}

// Concepts returns the concept names in sorted order.
func (c *Catalog) Concepts() []string {
	names := make([]string, 0, len(c.concepts))
	for name := range c.concepts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Concept returns a concept definition by name.
func (c *Catalog) Concept(name string) (*Concept, bool) {
	concept, ok := c.concepts[name]
	return concept, ok
}

// FindConceptByTerm resolves a free-text term to a concept name by
// case-insensitive match against concept names and all synonyms.
func (c *Catalog) FindConceptByTerm(term string) (string, bool) {
	name, ok := c.byTerm[strings.ToLower(strings.TrimSpace(term))]
	return name, ok
}

// IsExcludedTerm reports whether term contains any of the concept's
// exclusion phrases. Exclusions encode known false positives ("production
// index" must never match productivity) and always win over synonyms.
func (c *Catalog) IsExcludedTerm(term, conceptName string) bool {
	concept, ok := c.concepts[conceptName]
	if !ok {
		return false
	}
	lower := strings.ToLower(term)
	for _, phrase := range concept.Exclusions {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// IndicatorCode returns the provider code for (concept, provider, variant).
// Falls back to the primary code when the variant is unknown; returns false
// when the provider is listed as unavailable or has no entry.
func (c *Catalog) IndicatorCode(conceptName string, p provider.Name, variant string) (CodeInfo, bool) {
	concept, ok := c.concepts[conceptName]
	if !ok {
		return CodeInfo{}, false
	}
	if concept.IsNotAvailable(p) {
		return CodeInfo{}, false
	}
	codes, ok := concept.Providers[string(p)]
	if !ok {
		return CodeInfo{}, false
	}
	if variant != "" && variant != VariantPrimary {
		if v, ok := codes.Variants[variant]; ok {
			return v, true
		}
	}
	if codes.Primary.Code == "" {
		return CodeInfo{}, false
	}
	return codes.Primary, true
}

// IsNotAvailable reports whether the concept marks p as unavailable.
func (con *Concept) IsNotAvailable(p provider.Name) bool {
	for _, name := range con.NotAvailable {
		if strings.EqualFold(name, string(p)) {
			return true
		}
	}
	return false
}

// coversAll reports whether a coverage declaration includes every requested
// country. Countries are any form the country resolver accepts.
func coversAll(coverage string, countries []string) bool {
	if len(countries) == 0 {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(coverage)) {
	case CoverageGlobal:
		return true
	case CoverageOECD:
		for _, cc := range countries {
			if !country.IsOECDMember(cc) {
				return false
			}
		}
		return true
	case CoverageEU:
		for _, cc := range countries {
			if !country.IsEUMember(cc) {
				return false
			}
		}
		return true
	case "":
		return false
	}

	// Explicit list: "US" or "US,CA".
	allowed := map[string]bool{}
	for _, tok := range strings.Split(coverage, ",") {
		if iso2, ok := country.Normalize(tok); ok {
			allowed[iso2] = true
		}
	}
	for _, cc := range countries {
		iso2, ok := country.Normalize(cc)
		if !ok || !allowed[iso2] {
			return false
		}
	}
	return true
}

// BestProvider picks the provider with the highest confidence whose coverage
// includes every requested country. A preferred provider wins outright when
// it qualifies. This is the single best-provider authority: the router and
// the orchestrator's fallback logic both defer to it.
func (c *Catalog) BestProvider(conceptName string, countries []string, preferred provider.Name) (ProviderChoice, bool) {
	concept, ok := c.concepts[conceptName]
	if !ok {
		return ProviderChoice{}, false
	}

	if preferred != "" && !concept.IsNotAvailable(preferred) {
		if codes, ok := concept.Providers[string(preferred)]; ok && coversAll(codes.Primary.Coverage, countries) {
			return choiceFor(preferred, codes.Primary), true
		}
	}

	var best ProviderChoice
	found := false
	for _, name := range provider.All {
		if concept.IsNotAvailable(name) {
			continue
		}
		codes, ok := concept.Providers[string(name)]
		if !ok || codes.Primary.Code == "" {
			continue
		}
		if !coversAll(codes.Primary.Coverage, countries) {
			continue
		}
		if !found || codes.Primary.Confidence > best.Confidence {
			best = choiceFor(name, codes.Primary)
			found = true
		}
	}
	return best, found
}

// FallbackProviders lists every qualifying provider for a concept sorted by
// descending confidence, excluding the given provider. Ties keep the stable
// provider.All order so repeated calls return the same chain.
func (c *Catalog) FallbackProviders(conceptName string, exclude provider.Name) []ProviderChoice {
	concept, ok := c.concepts[conceptName]
	if !ok {
		return nil
	}
	var out []ProviderChoice
	for _, name := range provider.All {
		if name == exclude || concept.IsNotAvailable(name) {
			continue
		}
		codes, ok := concept.Providers[string(name)]
		if !ok || codes.Primary.Code == "" {
			continue
		}
		out = append(out, choiceFor(name, codes.Primary))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// ValidateIndicatorMatch decides whether an indicator name plausibly belongs
// to a concept. Exclusions are rejected first, even when a synonym is also
// present; any synonym hit accepts; everything else is accepted permissively
// because the indicator name space is open and downstream search layers
// disambiguate novel matches.
func (c *Catalog) ValidateIndicatorMatch(indicatorName, conceptName string) (bool, string) {
	concept, ok := c.concepts[conceptName]
	if !ok {
		return true, "unknown concept, accepted permissively"
	}
	lower := strings.ToLower(indicatorName)
	for _, phrase := range concept.Exclusions {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return false, fmt.Sprintf("excluded: contains %q", phrase)
		}
	}
	for _, syn := range concept.Synonyms.All() {
		if syn != "" && strings.Contains(lower, strings.ToLower(syn)) {
			return true, fmt.Sprintf("matches synonym %q", syn)
		}
	}
	return true, "no exclusion matched, accepted permissively"
}

// SynonymHits counts how many of the concept's synonyms appear in the text.
func (c *Catalog) SynonymHits(text, conceptName string) int {
	concept, ok := c.concepts[conceptName]
	if !ok {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, syn := range concept.Synonyms.All() {
		if syn != "" && strings.Contains(lower, strings.ToLower(syn)) {
			hits++
		}
	}
	return hits
}

// SynonymsSnapshot builds the plain concept->synonyms map once held by the
// legacy proxy table. It is derived from the catalog, never the reverse.
func (c *Catalog) SynonymsSnapshot() map[string][]string {
	out := make(map[string][]string, len(c.concepts))
	for name, concept := range c.concepts {
		out[name] = append([]string(nil), concept.Synonyms.All()...)
	}
	return out
}

// CompatibilitySnapshot builds the plain concept->provider->code map once
// held by the legacy compatibility table.
func (c *Catalog) CompatibilitySnapshot() map[string]map[string]string {
	out := make(map[string]map[string]string, len(c.concepts))
	for name, concept := range c.concepts {
		codes := make(map[string]string, len(concept.Providers))
		for prov, pc := range concept.Providers {
			if concept.IsNotAvailable(provider.Name(prov)) {
				continue
			}
			if pc.Primary.Code != "" {
				codes[prov] = pc.Primary.Code
			}
		}
		out[name] = codes
	}
	return out
}

func choiceFor(name provider.Name, info CodeInfo) ProviderChoice {
	return ProviderChoice{
		Provider:   name,
		Code:       info.Code,
		Name:       info.Name,
		Confidence: info.Confidence,
		Frequency:  info.Frequency,
	}
}

// Store holds the current catalog snapshot and supports atomic hot reload.
// Reads never block behind a reload.
type Store struct {
	current atomic.Pointer[Catalog]
}

// NewStore loads the embedded catalog into a fresh store.
func NewStore() (*Store, error) {
	c, err := Load()
	if err != nil {
		return nil, err
	}
	s := &Store{}
	s.current.Store(c)
	return s, nil
}

// Current returns the active snapshot.
func (s *Store) Current() *Catalog {
	return s.current.Load()
}

// Reload re-parses the embedded data and swaps the snapshot. The old
// snapshot stays valid for callers still holding it.
func (s *Store) Reload() error {
	c, err := Load()
	if err != nil {
		return err
	}
	s.current.Store(c)
	return nil
}
