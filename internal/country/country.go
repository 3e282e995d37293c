// Package country is the single source of truth for country identifiers and
// region groups. It converts names, aliases, ISO2, ISO3 and UN numeric codes
// into each other and expands group labels (G7, EU, Eurozone, ...) into
// member lists. Provider adapters must not duplicate this logic; each keeps
// only a small fallback map for its own quirks.
package country

import (
	"sort"
	"strings"
)

// Format selects the code scheme ExpandRegion emits.
type Format string

const (
	ISO2      Format = "iso2"
	ISO3      Format = "iso3"
	UNNumeric Format = "un_numeric"
)

// Lookup indexes, built once from the tables at package init.
var (
	byISO2  = map[string]Info{}
	byISO3  = map[string]string{} // ISO3 -> ISO2
	byUN    = map[string]string{} // UN numeric -> ISO2
	byAlias = map[string]string{} // lowercase name/alias -> ISO2

	oecdMembers = map[string]bool{}
	euMembers   = map[string]bool{}

	countryMatchers []matcher
	groupMatchers   []matcher
)

type matcher struct {
	text      string // what to look for, lowercase
	iso2      string // set for country matchers
	group     string // set for group matchers
	exactCase bool   // bare codes must appear uppercase in the query
}

func init() {
	for _, c := range countries {
		byISO2[c.ISO2] = c
		byISO3[c.ISO3] = c.ISO2
		byUN[c.UN] = c.ISO2
		byAlias[strings.ToLower(c.Name)] = c.ISO2
	}
	for alias, iso2 := range extraAliases {
		byAlias[alias] = iso2
	}
	for _, iso2 := range groups["OECD38"] {
		oecdMembers[iso2] = true
	}
	for _, iso2 := range groups["EU27"] {
		euMembers[iso2] = true
	}

	// Names and multi-word aliases match case-insensitively; bare ISO2/ISO3
	// codes only match uppercase so that "show us gdp" does not become a
	// query about the United States.
	for _, c := range countries {
		countryMatchers = append(countryMatchers,
			matcher{text: strings.ToLower(c.Name), iso2: c.ISO2},
			matcher{text: strings.ToLower(c.ISO3), iso2: c.ISO2, exactCase: true},
			matcher{text: strings.ToLower(c.ISO2), iso2: c.ISO2, exactCase: true},
		)
	}
	for alias, iso2 := range extraAliases {
		countryMatchers = append(countryMatchers, matcher{text: alias, iso2: iso2})
	}
	for alias, label := range groupAliases {
		groupMatchers = append(groupMatchers, matcher{text: alias, group: label})
	}
	sortMatchers(countryMatchers)
	sortMatchers(groupMatchers)
}

// sortMatchers orders longest-first so that "south korea" claims its span
// before "korea" can; ties break alphabetically for determinism.
func sortMatchers(ms []matcher) {
	sort.Slice(ms, func(i, j int) bool {
		if len(ms[i].text) != len(ms[j].text) {
			return len(ms[i].text) > len(ms[j].text)
		}
		return ms[i].text < ms[j].text
	})
}

// Normalize converts a country name, alias, ISO2, ISO3 or UN numeric code
// to ISO2. Case-insensitive. Returns false for unknown inputs.
func Normalize(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	upper := strings.ToUpper(s)
	if len(upper) == 2 {
		if _, ok := byISO2[upper]; ok {
			return upper, true
		}
	}
	if len(upper) == 3 {
		if iso2, ok := byISO3[upper]; ok {
			return iso2, true
		}
		if iso2, ok := byUN[upper]; ok { // "840"
			return iso2, true
		}
	}
	if iso2, ok := byAlias[strings.ToLower(s)]; ok {
		return iso2, true
	}
	return "", false
}

// ToISO3 converts any accepted country input to ISO3.
func ToISO3(s string) (string, bool) {
	iso2, ok := Normalize(s)
	if !ok {
		return "", false
	}
	return byISO2[iso2].ISO3, true
}

// ToUNNumeric converts any accepted country input to the UN M49 numeric
// code, zero-padded to three digits.
func ToUNNumeric(s string) (string, bool) {
	iso2, ok := Normalize(s)
	if !ok {
		return "", false
	}
	return byISO2[iso2].UN, true
}

// Name returns the display name for any accepted country input.
func Name(s string) (string, bool) {
	iso2, ok := Normalize(s)
	if !ok {
		return "", false
	}
	return byISO2[iso2].Name, true
}

// IsOECDMember reports whether the input resolves to an OECD member.
func IsOECDMember(s string) bool {
	iso2, ok := Normalize(s)
	return ok && oecdMembers[iso2]
}

// IsEUMember reports whether the input resolves to an EU member.
func IsEUMember(s string) bool {
	iso2, ok := Normalize(s)
	return ok && euMembers[iso2]
}

// IsGroup reports whether a label names a known region group.
func IsGroup(label string) bool {
	_, ok := canonicalGroup(label)
	return ok
}

// Groups returns the canonical group labels, sorted.
func Groups() []string {
	out := make([]string, 0, len(groups))
	for label := range groups {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// ExpandRegion expands a group label into member codes in the requested
// scheme. The returned slice is a fresh copy; the group sets themselves are
// immutable.
func ExpandRegion(label string, format Format) ([]string, bool) {
	canonical, ok := canonicalGroup(label)
	if !ok {
		return nil, false
	}
	members := groups[canonical]
	out := make([]string, 0, len(members))
	for _, iso2 := range members {
		switch format {
		case ISO3:
			out = append(out, byISO2[iso2].ISO3)
		case UNNumeric:
			out = append(out, byISO2[iso2].UN)
		default:
			out = append(out, iso2)
		}
	}
	return out, true
}

// canonicalGroup resolves any accepted group spelling to its canonical label.
func canonicalGroup(label string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	if canonical, ok := groupAliases[key]; ok {
		return canonical, true
	}
	for canonical := range groups {
		if strings.ToLower(canonical) == key {
			return canonical, true
		}
	}
	return "", false
}

// DetectRegionsInQuery returns the group labels mentioned in free text, in
// first-occurrence order. A span already claimed by a country mention never
// produces a group (country beats group).
func DetectRegionsInQuery(query string) []string {
	_, regions := scan(query)
	return regions
}

// DetectAllCountriesInQuery returns the ISO2 codes of every country
// mentioned in free text, preserving first-occurrence order.
func DetectAllCountriesInQuery(query string) []string {
	cs, _ := scan(query)
	return cs
}

// ExpandRegionsInQuery unions the members of every group mentioned in free
// text into one ISO2 list, deduplicated, in group-then-member order.
func ExpandRegionsInQuery(query string) []string {
	_, regions := scan(query)
	var out []string
	seen := map[string]bool{}
	for _, label := range regions {
		for _, iso2 := range groups[label] {
			if !seen[iso2] {
				seen[iso2] = true
				out = append(out, iso2)
			}
		}
	}
	return out
}

type hit struct {
	pos   int
	value string
}

// scan runs the country matchers, then the group matchers, over the query.
// Spans are claimed greedily longest-first, so "BRICS+" cannot also yield
// "BRICS" and a country mention shadows any group reading of the same span.
// ASCII-only lowering keeps byte offsets identical across both haystacks.
func scan(query string) (countryHits []string, groupHits []string) {
	lower := asciiLower(query)
	claimed := make([]bool, len(query))

	cHits := scanMatchers(query, lower, claimed, countryMatchers)
	gHits := scanMatchers(query, lower, claimed, groupMatchers)

	countryHits = dedupeByOrder(cHits)
	groupHits = dedupeByOrder(gHits)
	return countryHits, groupHits
}

func scanMatchers(query, lower string, claimed []bool, ms []matcher) []hit {
	var hits []hit
	for _, m := range ms {
		haystack := lower
		needle := m.text
		if m.exactCase {
			haystack = query
			needle = strings.ToUpper(m.text)
		}
		from := 0
		for {
			i := strings.Index(haystack[from:], needle)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(needle)
			from = end
			if !wordBoundary(lower, start, end) || spanClaimed(claimed, start, end) {
				continue
			}
			claimSpan(claimed, start, end)
			value := m.iso2
			if value == "" {
				value = m.group
			}
			hits = append(hits, hit{pos: start, value: value})
		}
	}
	return hits
}

func wordBoundary(s string, start, end int) bool {
	if start > 0 && isWordChar(s[start-1]) {
		return false
	}
	if end < len(s) && isWordChar(s[end]) {
		return false
	}
	return true
}

func isWordChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

func spanClaimed(claimed []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

func claimSpan(claimed []bool, start, end int) {
	for i := start; i < end; i++ {
		claimed[i] = true
	}
}

func dedupeByOrder(hits []hit) []string {
	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	var out []string
	seen := map[string]bool{}
	for _, h := range hits {
		if !seen[h.value] {
			seen[h.value] = true
			out = append(out, h.value)
		}
	}
	return out
}
