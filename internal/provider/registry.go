package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry is a thread-safe table from provider tag to adapter. It is
// assembled explicitly at startup; there is no hidden first-use loading.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Name]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[Name]Adapter)}
}

// Register adds an adapter. Duplicate registrations overwrite.
func (r *Registry) Register(a Adapter) error {
	name := a.Name()
	if name == "" {
		return fmt.Errorf("adapter name cannot be empty")
	}
	if _, ok := ParseName(string(name)); !ok {
		return fmt.Errorf("adapter name %q is not a known provider tag", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = a
	return nil
}

// Get returns the adapter for a tag.
func (r *Registry) Get(name Name) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, &NotAvailableError{Provider: name, Reason: "provider not registered"}
	}
	return a, nil
}

// Has reports whether a tag is registered.
func (r *Registry) Has(name Name) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[name]
	return ok
}

// Names returns registered tags in stable (All) order.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]Name, 0, len(r.adapters))
	for _, n := range All {
		if _, ok := r.adapters[n]; ok {
			names = append(names, n)
		}
	}
	return names
}

// List returns adapter info sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.adapters))
	for _, a := range r.adapters {
		infos = append(infos, a.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// PingAll checks every registered adapter concurrently and returns the
// per-provider outcome. A nil map value means the ping succeeded.
func (r *Registry) PingAll(ctx context.Context) map[Name]error {
	r.mu.RLock()
	adapters := make(map[Name]Adapter, len(r.adapters))
	for n, a := range r.adapters {
		adapters[n] = a
	}
	r.mu.RUnlock()

	var mu sync.Mutex
	results := make(map[Name]error, len(adapters))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for name, a := range adapters {
		g.Go(func() error {
			err := a.Ping(ctx)
			mu.Lock()
			results[name] = err
			mu.Unlock()
			return nil
		})
	}
	g.Wait() //nolint:errcheck // goroutines never return errors
	return results
}
