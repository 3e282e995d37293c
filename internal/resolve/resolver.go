package resolve

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/econoflow/econoflow/internal/catalog"
	"github.com/econoflow/econoflow/internal/country"
	"github.com/econoflow/econoflow/internal/provider"
	"github.com/econoflow/econoflow/internal/telemetry"
)

// Resolution sources, in ladder order. Exact and search hits both
// come from the local indicator database; fallback means the catalog
// chose a different provider than the one asked for.
const (
	SourceDatabase   = "database"
	SourceLearned    = "learned"
	SourceTranslator = "translator"
	SourceCatalog    = "catalog"
	SourceFallback   = "fallback"
	SourceNone       = "none"
)

const (
	cacheSize = 1024

	// Minimum combined score for a search or catalog-code hit.
	acceptScore = 0.35

	// A search winner below this score yields to the catalog code
	// for the same concept.
	catalogPreferScore = 0.70

	// Fixed confidences for the upper ladder rungs.
	confExact      = 1.0
	confLearned    = 0.9
	confTranslator = 0.75
)

// ResolvedIndicator is the resolver's answer: a concrete code on a
// concrete provider with how sure we are and which rung produced it.
type ResolvedIndicator struct {
	Code       string        `json:"code"`
	Name       string        `json:"name"`
	Provider   provider.Name `json:"provider"`
	Confidence float64       `json:"confidence"`
	Source     string        `json:"source"`
	Concept    string        `json:"concept,omitempty"`
	Frequency  string        `json:"frequency,omitempty"`
	Unit       string        `json:"unit,omitempty"`
}

// Resolver walks the resolution ladder: exact index lookup, learned
// mappings, universal translator, catalog preferred codes, ranked
// index search, catalog best-provider fallback. Results, including
// misses, sit in a fixed-size LRU keyed by provider, query and
// country scope.
type Resolver struct {
	store      *catalog.Store
	index      *Index
	translator *Translator
	learned    *Learned
	metrics    *telemetry.Metrics
	cache      *lru.Cache[string, *ResolvedIndicator]
}

// NewResolver loads the embedded indicator index and wires the
// resolver against the given catalog store. metrics may be nil.
func NewResolver(store *catalog.Store, metrics *telemetry.Metrics) (*Resolver, error) {
	index, err := LoadIndex()
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, *ResolvedIndicator](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		store:      store,
		index:      index,
		translator: NewTranslator(),
		learned:    NewLearned(),
		metrics:    metrics,
		cache:      cache,
	}, nil
}

// Index exposes the local indicator index for alternatives lookups.
func (r *Resolver) Index() *Index { return r.index }

// LearnedStore exposes the learned-mapping store for export/import.
func (r *Resolver) LearnedStore() *Learned { return r.learned }

// Translator exposes the universal concept translator.
func (r *Resolver) Translator() *Translator { return r.translator }

// Resolve maps a free-form indicator query to a code for target. An
// empty target means any provider may answer. Returns nil when no
// rung of the ladder produces a match; nil results are cached too.
func (r *Resolver) Resolve(query string, target provider.Name, countries []string) *ResolvedIndicator {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	key := cacheKey(target, query, countries)
	if hit, ok := r.cache.Get(key); ok {
		return hit
	}
	res := r.resolve(query, target, countries)
	r.cache.Add(key, res)
	if r.metrics != nil {
		if res == nil {
			r.metrics.RecordResolution(SourceNone)
		} else {
			r.metrics.RecordResolution(res.Source)
		}
	}
	return res
}

func (r *Resolver) resolve(query string, target provider.Name, countries []string) *ResolvedIndicator {
	cat := r.store.Current()

	// Exact code hit wins unconditionally.
	if target != "" {
		if e, ok := r.index.Lookup(target, query); ok {
			return fromEntry(e, confExact, SourceDatabase)
		}
	} else if entries := r.index.LookupAny(query); len(entries) > 0 {
		return fromEntry(entries[0], confExact, SourceDatabase)
	}

	if res := r.fromLearned(query, target); res != nil {
		return res
	}

	if target != "" {
		if t, ok := r.translator.Translate(query, target); ok {
			res := &ResolvedIndicator{
				Code:       t.Code,
				Name:       t.Name,
				Provider:   target,
				Confidence: confTranslator,
				Source:     SourceTranslator,
				Concept:    t.Concept,
			}
			r.fillFromIndex(res)
			return res
		}
	}

	conceptName := r.conceptFor(cat, query)

	// Catalog preferred codes. With no target the catalog picks the
	// provider outright; with a target its codes are scored lexically.
	var catalogBest *ResolvedIndicator
	var catalogBestScore float64
	var catalogCodes map[string]bool
	if conceptName != "" && target == "" {
		if choice, ok := cat.BestProvider(conceptName, countries, ""); ok {
			res := &ResolvedIndicator{
				Code:       choice.Code,
				Name:       choice.Name,
				Provider:   choice.Provider,
				Confidence: bound(choice.Confidence),
				Source:     SourceCatalog,
				Concept:    conceptName,
				Frequency:  choice.Frequency,
			}
			r.fillFromIndex(res)
			return res
		}
	}
	if conceptName != "" && target != "" {
		catalogBest, catalogBestScore, catalogCodes = r.scoreCatalogCodes(cat, conceptName, query, target)
		if catalogBest != nil && catalogBestScore >= acceptScore {
			return catalogBest
		}
	}

	if res := r.fromSearch(cat, query, target, conceptName, catalogBest, catalogBestScore, catalogCodes); res != nil {
		return res
	}

	// Last rung: let the catalog pick whichever provider serves the
	// concept best for these countries, even if it is not target.
	if conceptName != "" {
		if choice, ok := cat.BestProvider(conceptName, countries, target); ok {
			res := &ResolvedIndicator{
				Code:       choice.Code,
				Name:       choice.Name,
				Provider:   choice.Provider,
				Confidence: bound(choice.Confidence),
				Source:     SourceFallback,
				Concept:    conceptName,
				Frequency:  choice.Frequency,
			}
			r.fillFromIndex(res)
			return res
		}
	}
	return nil
}

func (r *Resolver) fromLearned(query string, target provider.Name) *ResolvedIndicator {
	lookup := func(p provider.Name) *ResolvedIndicator {
		m, ok := r.learned.Get(p, query)
		if !ok {
			return nil
		}
		res := &ResolvedIndicator{
			Code:       m.Code,
			Name:       m.Name,
			Provider:   p,
			Confidence: confLearned,
			Source:     SourceLearned,
		}
		r.fillFromIndex(res)
		return res
	}
	if target != "" {
		return lookup(target)
	}
	for _, p := range provider.All {
		if res := lookup(p); res != nil {
			return res
		}
	}
	return nil
}

// conceptFor identifies the catalog concept behind a query, letting
// exclusion phrases veto the match. The translator's concept table
// backs up the catalog for phrasings the catalog does not list.
func (r *Resolver) conceptFor(cat *catalog.Catalog, query string) string {
	if name, ok := cat.FindConceptByTerm(query); ok {
		if cat.IsExcludedTerm(query, name) {
			return ""
		}
		return name
	}
	if name, ok := r.translator.ConceptFor(query); ok {
		if _, exists := cat.Concept(name); exists {
			if cat.IsExcludedTerm(query, name) {
				return ""
			}
			return name
		}
	}
	return ""
}

// scoreCatalogCodes tries the concept's primary code and every variant
// for target, scoring each name against the query. Returns the best
// candidate, its raw score, and the full code set; the caller applies
// the acceptance threshold so the below-threshold best can still serve
// as the catalog-preference fallback during search.
func (r *Resolver) scoreCatalogCodes(cat *catalog.Catalog, conceptName, query string, target provider.Name) (*ResolvedIndicator, float64, map[string]bool) {
	con, ok := cat.Concept(conceptName)
	if !ok || con.IsNotAvailable(target) {
		return nil, 0, nil
	}
	codes, ok := con.Providers[string(target)]
	if !ok {
		return nil, 0, nil
	}

	var infos []catalog.CodeInfo
	if codes.Primary.Code != "" {
		infos = append(infos, codes.Primary)
	}
	for _, v := range codes.Variants {
		if v.Code != "" {
			infos = append(infos, v)
		}
	}

	var best *ResolvedIndicator
	bestScore := 0.0
	codeSet := make(map[string]bool, len(infos))
	for _, info := range infos {
		codeSet[strings.ToUpper(info.Code)] = true
		score := r.scoreName(cat, query, info.Name, conceptName)
		if best != nil && score <= bestScore {
			continue
		}
		bestScore = score
		best = &ResolvedIndicator{
			Code:       info.Code,
			Name:       info.Name,
			Provider:   target,
			Confidence: bound(0.5*score + 0.5*info.Confidence),
			Source:     SourceCatalog,
			Concept:    conceptName,
			Frequency:  info.Frequency,
		}
	}
	if best != nil {
		r.fillFromIndex(best)
	}
	return best, bestScore, codeSet
}

// fromSearch runs the ranked index search with the lexical gate and
// concept alignment. A winner below catalogPreferScore whose code is
// off-catalog yields to the concept's own code for the provider.
func (r *Resolver) fromSearch(cat *catalog.Catalog, query string, target provider.Name, conceptName string, catalogBest *ResolvedIndicator, catalogBestScore float64, catalogCodes map[string]bool) *ResolvedIndicator {
	results := r.index.Search(query, target, 10)
	if len(results) == 0 {
		return nil
	}
	gate := lexicalGate(query)

	var best *Scored
	bestScore := 0.0
	for i := range results {
		s := results[i]
		if s.Lexical < gate {
			continue
		}
		score := s.Score
		if conceptName != "" {
			score += alignmentBonus(cat.SynonymHits(s.Entry.Name, conceptName))
			if cat.IsExcludedTerm(s.Entry.Name, conceptName) {
				score -= 0.45
			}
		}
		score = bound(score)
		if score < acceptScore {
			continue
		}
		if best == nil || score > bestScore {
			best = &results[i]
			bestScore = score
		}
	}
	if best == nil {
		return nil
	}

	// A weak off-catalog winner loses to the concept's curated code.
	if conceptName != "" && catalogBest != nil && bestScore < catalogPreferScore &&
		!catalogCodes[strings.ToUpper(best.Entry.Code)] {
		catalogBest.Confidence = bound(maxFloat(0.5, catalogBestScore))
		return catalogBest
	}

	res := fromEntry(best.Entry, bestScore, SourceDatabase)
	res.Concept = conceptName
	return res
}

// CandidatesAcross resolves the query against every provider except
// skip and keeps matches at or above minConfidence, best first. The
// orchestrator uses this to build resolver-driven fallback chains.
func (r *Resolver) CandidatesAcross(query string, skip provider.Name, countries []string, minConfidence float64) []*ResolvedIndicator {
	var out []*ResolvedIndicator
	for _, p := range provider.All {
		if p == skip {
			continue
		}
		res := r.Resolve(query, p, countries)
		if res == nil || res.Confidence < minConfidence {
			continue
		}
		if res.Provider != p {
			// Fallback rung answered with a different provider;
			// it will get its own turn in the loop.
			continue
		}
		out = append(out, res)
	}
	// Stable by confidence; provider.All order breaks ties.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Confidence > out[j-1].Confidence; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Alternatives lists sibling codes for a resolved indicator, for
// retrying a fetch that returned no observations.
func (r *Resolver) Alternatives(p provider.Name, code string, limit int) []Entry {
	return r.index.Alternatives(p, code, limit)
}

// Learn remembers a resolution that produced data. The whole result
// cache is dropped so stale misses cannot shadow the new mapping.
func (r *Resolver) Learn(p provider.Name, term, code, name string) {
	if r.learned.PutIfAbsent(p, term, code, name) {
		r.cache.Purge()
	}
}

// CacheLen reports how many resolutions are currently cached.
func (r *Resolver) CacheLen() int { return r.cache.Len() }

func (r *Resolver) fillFromIndex(res *ResolvedIndicator) {
	e, ok := r.index.Lookup(res.Provider, res.Code)
	if !ok {
		return
	}
	if res.Name == "" {
		res.Name = e.Name
	}
	if res.Frequency == "" {
		res.Frequency = e.Frequency
	}
	if res.Unit == "" {
		res.Unit = e.Unit
	}
}

// scoreName scores a candidate series name against the query: term
// coverage, a phrase bonus, synonym alignment for the concept, and an
// exclusion penalty. Bounded to [0,1].
func (r *Resolver) scoreName(cat *catalog.Catalog, query, name, conceptName string) float64 {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return 0
	}
	nameTerms := make(map[string]bool)
	for _, t := range Tokenize(name) {
		nameTerms[t] = true
	}
	matched := 0
	for _, t := range terms {
		if nameTerms[t] {
			matched++
		}
	}
	coverage := float64(matched) / float64(len(terms))
	score := 0.5 * coverage
	if strings.Contains(strings.ToLower(name), strings.ToLower(strings.TrimSpace(query))) {
		score += 0.30
	}
	if conceptName != "" {
		score += alignmentBonus(cat.SynonymHits(name, conceptName))
		if cat.IsExcludedTerm(name, conceptName) {
			score -= 0.45
		}
	}
	return bound(score)
}

// lexicalGate is the minimum query-term coverage a search candidate
// needs. Short queries demand near-total coverage so that "M2 growth"
// cannot ride its one shared term onto "GDP growth".
func lexicalGate(query string) float64 {
	if len(strings.TrimSpace(query)) < 15 {
		return 0.85
	}
	return 0.70
}

// alignmentBonus rewards synonym hits, capped at +0.40.
func alignmentBonus(hits int) float64 {
	bonus := 0.20 * float64(hits)
	if bonus > 0.40 {
		return 0.40
	}
	return bonus
}

func fromEntry(e Entry, confidence float64, source string) *ResolvedIndicator {
	return &ResolvedIndicator{
		Code:       e.Code,
		Name:       e.Name,
		Provider:   e.Provider,
		Confidence: bound(confidence),
		Source:     source,
		Frequency:  e.Frequency,
		Unit:       e.Unit,
	}
}

func cacheKey(target provider.Name, query string, countries []string) string {
	prov := "any"
	if target != "" {
		prov = string(target)
	}
	scope := "any"
	if len(countries) > 0 {
		norm := make([]string, 0, len(countries))
		for _, c := range countries {
			if iso2, ok := country.Normalize(c); ok {
				norm = append(norm, iso2)
			} else {
				norm = append(norm, strings.ToUpper(strings.TrimSpace(c)))
			}
		}
		scope = strings.Join(norm, ",")
	}
	return prov + "|" + strings.ToLower(query) + "|" + scope
}

func bound(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
