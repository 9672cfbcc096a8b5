package fetch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"scout/internal/services"
	"scout/internal/store"
)

// RawItem is one piece of content as reported by a source, before
// normalization and deduplication.
type RawItem struct {
	ExternalID  string
	URL         string
	Title       string
	Description string
	Author      string
	PublishedAt *time.Time
	Tags        []string

	// Sub-scores in [0, 1] estimated by the adapter from whatever signal the
	// source exposes. Nil means the adapter has no signal for that dimension;
	// ingestion substitutes the configured default. A zero value is a real
	// score and is stored as reported.
	Relevance  *float64
	Engagement *float64
	Freshness  float64
}

// Score wraps a sub-score value for RawItem's optional fields.
func Score(value float64) *float64 {
	return &value
}

// Adapter retrieves the current set of items from one source. Implementations
// classify their failures: transient errors (timeouts, 5xx) keep the source
// scheduled with backoff, permanent ones (bad config, 404) count toward
// auto-deactivation the same way but are logged as permanent.
type Adapter interface {
	Type() string
	Fetch(ctx context.Context, source *store.Source) ([]RawItem, error)
}

// Registry maps source types to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry builds an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter. Registering a duplicate type is a wiring bug.
func (r *Registry) Register(adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[adapter.Type()]; exists {
		return services.Wrap(services.ErrConfiguration, "fetch", "register adapter",
			fmt.Sprintf("adapter for source type %q already registered", adapter.Type()), nil)
	}
	r.adapters[adapter.Type()] = adapter
	return nil
}

// Resolve returns the adapter for a source type.
func (r *Registry) Resolve(sourceType string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[sourceType]
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "fetch", "resolve adapter",
			fmt.Sprintf("no adapter registered for source type %q", sourceType), nil)
	}
	return adapter, nil
}

// Types lists the registered source types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.adapters))
	for sourceType := range r.adapters {
		types = append(types, sourceType)
	}
	sort.Strings(types)
	return types
}
