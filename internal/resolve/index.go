// Package resolve turns free-form indicator text into concrete provider
// series codes. Resolution walks a fixed ladder: exact code lookup,
// learned mappings, the universal translator, catalog preferred codes,
// then ranked search over the local indicator index.
package resolve

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/econoflow/econoflow/internal/provider"
)

//go:embed data/*.yaml
var indexFS embed.FS

// Entry is one row of the local indicator index.
type Entry struct {
	Provider    provider.Name `yaml:"provider"`
	Code        string        `yaml:"code"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Frequency   string        `yaml:"frequency"`
	Unit        string        `yaml:"unit"`
}

// Scored pairs an index entry with its search score. Lexical is the
// fraction of informative query terms covered by the entry text; Score
// adds the phrase and rank bonuses on top.
type Scored struct {
	Entry   Entry
	Score   float64
	Lexical float64
}

// Index holds the embedded indicator table with an exact-lookup map
// keyed by (provider, upper(code)).
type Index struct {
	entries []Entry
	exact   map[string]int
	byProv  map[provider.Name][]int
}

type indexFile struct {
	Indicators []Entry `yaml:"indicators"`
}

// LoadIndex parses the embedded indicator index.
func LoadIndex() (*Index, error) {
	raw, err := indexFS.ReadFile("data/indicators.yaml")
	if err != nil {
		return nil, fmt.Errorf("read indicator index: %w", err)
	}
	var file indexFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse indicator index: %w", err)
	}
	ix := &Index{
		entries: file.Indicators,
		exact:   make(map[string]int, len(file.Indicators)),
		byProv:  make(map[provider.Name][]int),
	}
	for i, e := range file.Indicators {
		if e.Code == "" {
			return nil, fmt.Errorf("indicator index row %d: empty code", i)
		}
		key := exactKey(e.Provider, e.Code)
		if _, dup := ix.exact[key]; dup {
			return nil, fmt.Errorf("indicator index: duplicate entry %s/%s", e.Provider, e.Code)
		}
		ix.exact[key] = i
		ix.byProv[e.Provider] = append(ix.byProv[e.Provider], i)
	}
	return ix, nil
}

func exactKey(p provider.Name, code string) string {
	return string(p) + "\x00" + strings.ToUpper(code)
}

// Len reports the number of indexed indicators.
func (ix *Index) Len() int { return len(ix.entries) }

// Lookup finds an entry by provider and code, case-insensitive on the
// code. ok is false when the pair is not indexed.
func (ix *Index) Lookup(p provider.Name, code string) (Entry, bool) {
	i, ok := ix.exact[exactKey(p, code)]
	if !ok {
		return Entry{}, false
	}
	return ix.entries[i], true
}

// LookupAny finds entries matching a code across all providers,
// in provider.All order.
func (ix *Index) LookupAny(code string) []Entry {
	var out []Entry
	for _, p := range provider.All {
		if e, ok := ix.Lookup(p, code); ok {
			out = append(out, e)
		}
	}
	return out
}

// Search ranks index entries against a free-form query. When p is
// empty, all providers are searched. Entries sharing no informative
// term with the query are skipped. Results are ordered best first and
// carry a small rank bonus so that downstream tie-breaks stay stable.
func (ix *Index) Search(query string, p provider.Name, limit int) []Scored {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil
	}
	phrase := strings.ToLower(strings.TrimSpace(query))

	var candidates []int
	if p != "" {
		candidates = ix.byProv[p]
	} else {
		candidates = make([]int, len(ix.entries))
		for i := range ix.entries {
			candidates[i] = i
		}
	}

	scored := make([]Scored, 0, len(candidates))
	for _, i := range candidates {
		e := ix.entries[i]
		text := entryTerms(e)
		matched := 0
		for _, t := range terms {
			if text[t] {
				matched++
			}
		}
		name := strings.ToLower(e.Name)
		containsPhrase := strings.Contains(name, phrase)
		if matched == 0 && !containsPhrase {
			continue
		}
		coverage := float64(matched) / float64(len(terms))
		if containsPhrase {
			coverage = 1.0
		}
		score := 0.5 * coverage
		if containsPhrase {
			score += 0.30
		}
		scored = append(scored, Scored{Entry: e, Score: score, Lexical: coverage})
	}

	if len(scored) == 0 {
		return nil
	}
	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].Score != scored[b].Score {
			return scored[a].Score > scored[b].Score
		}
		return scored[a].Entry.Code < scored[b].Entry.Code
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	for rank := range scored {
		bonus := 0.10 - 0.02*float64(rank)
		if bonus > 0 {
			scored[rank].Score += bonus
		}
	}
	return scored
}

// Alternatives returns up to limit sibling codes from the same
// provider whose names overlap the given entry, best overlap first.
// Used to retry a fetch when the primary code yields no data.
func (ix *Index) Alternatives(p provider.Name, code string, limit int) []Entry {
	base, ok := ix.Lookup(p, code)
	if !ok {
		return nil
	}
	baseTerms := Tokenize(base.Name)
	type cand struct {
		entry   Entry
		overlap int
	}
	var cands []cand
	for _, i := range ix.byProv[p] {
		e := ix.entries[i]
		if strings.EqualFold(e.Code, base.Code) {
			continue
		}
		text := entryTerms(e)
		overlap := 0
		for _, t := range baseTerms {
			if text[t] {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		cands = append(cands, cand{entry: e, overlap: overlap})
	}
	sort.SliceStable(cands, func(a, b int) bool {
		if cands[a].overlap != cands[b].overlap {
			return cands[a].overlap > cands[b].overlap
		}
		return cands[a].entry.Code < cands[b].entry.Code
	})
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	out := make([]Entry, len(cands))
	for i, c := range cands {
		out[i] = c.entry
	}
	return out
}

func entryTerms(e Entry) map[string]bool {
	text := e.Name + " " + e.Code + " " + e.Description
	set := make(map[string]bool)
	for _, t := range Tokenize(text) {
		set[t] = true
	}
	// Dotted and underscored codes also match on their fragments,
	// so "NY.GDP.MKTP.CD" answers for "gdp".
	set[strings.ToLower(e.Code)] = true
	return set
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true,
	"for": true, "to": true, "and": true, "or": true, "by": true,
	"with": true, "on": true, "at": true, "from": true, "is": true,
	"are": true, "as": true,
}

// Tokenize lowercases text, splits on non-alphanumeric runs and drops
// stop words. Single letters are kept only when digits follow them in
// the source (M2, G7), which the splitter preserves as one token.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) == 1 && f[0] >= 'a' && f[0] <= 'z' {
			continue
		}
		if stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}
