package resolve

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/econoflow/econoflow/internal/provider"
)

// LearnedMapping is one remembered resolution: a term a user actually
// asked for and the code that satisfied it.
type LearnedMapping struct {
	Provider provider.Name `json:"provider"`
	Term     string        `json:"term"`
	Code     string        `json:"code"`
	Name     string        `json:"name,omitempty"`
}

// Learned accumulates successful resolutions at runtime so repeated
// queries skip translation and search. First mapping for a term wins;
// later writes never overwrite an existing entry.
type Learned struct {
	mu       sync.RWMutex
	mappings map[string]LearnedMapping
}

// NewLearned returns an empty store.
func NewLearned() *Learned {
	return &Learned{mappings: make(map[string]LearnedMapping)}
}

func learnedKey(p provider.Name, term string) string {
	return string(p) + "\x00" + strings.ToLower(strings.TrimSpace(term))
}

// Get looks up a remembered mapping.
func (l *Learned) Get(p provider.Name, term string) (LearnedMapping, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.mappings[learnedKey(p, term)]
	return m, ok
}

// PutIfAbsent remembers term → code for p unless the term is already
// mapped. Reports whether the mapping was stored.
func (l *Learned) PutIfAbsent(p provider.Name, term, code, name string) bool {
	term = strings.TrimSpace(term)
	if term == "" || code == "" {
		return false
	}
	key := learnedKey(p, term)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.mappings[key]; exists {
		return false
	}
	l.mappings[key] = LearnedMapping{Provider: p, Term: strings.ToLower(term), Code: code, Name: name}
	return true
}

// Len reports the number of stored mappings.
func (l *Learned) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.mappings)
}

// Snapshot returns all mappings sorted by provider then term.
func (l *Learned) Snapshot() []LearnedMapping {
	l.mu.RLock()
	out := make([]LearnedMapping, 0, len(l.mappings))
	for _, m := range l.mappings {
		out = append(out, m)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// Export writes the mappings as a JSON array.
func (l *Learned) Export(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(l.Snapshot())
}

// Import merges mappings from a JSON array produced by Export.
// Existing entries keep precedence.
func (l *Learned) Import(r io.Reader) (int, error) {
	var mappings []LearnedMapping
	if err := json.NewDecoder(r).Decode(&mappings); err != nil {
		return 0, err
	}
	added := 0
	for _, m := range mappings {
		if l.PutIfAbsent(m.Provider, m.Term, m.Code, m.Name) {
			added++
		}
	}
	return added, nil
}

// SaveFile exports the store to path, creating or truncating it.
func (l *Learned) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return l.Export(f)
}

// LoadFile imports mappings from path. A missing file is not an
// error; the store simply starts empty.
func (l *Learned) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()
	return l.Import(f)
}
