package translator

import (
	"fmt"
	"sort"
	"sync"
)

// Service identifies a translation backend. The set is closed; unknown
// names are rejected at parse time rather than discovered dynamically.
type Service string

const (
	ServiceGoogle Service = "google"
	ServiceOpenAI Service = "openai"
)

// ParseService validates a service name from configuration or the CLI.
func ParseService(name string) (Service, error) {
	switch Service(name) {
	case ServiceGoogle, ServiceOpenAI:
		return Service(name), nil
	}
	return "", fmt.Errorf("unknown translation service %q", name)
}

// Factory builds a provider from its parameter map (API keys, model,
// endpoint overrides, language pair).
type Factory func(params map[string]any) (Translator, error)

// Registry maps service ids to provider factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[Service]Factory
}

// NewRegistry returns a registry preloaded with the built-in services.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[Service]Factory)}
	r.Register(ServiceGoogle, func(params map[string]any) (Translator, error) {
		return NewGoogle(params), nil
	})
	r.Register(ServiceOpenAI, func(params map[string]any) (Translator, error) {
		return NewOpenAI(params)
	})
	return r
}

// Register installs or replaces a factory.
func (r *Registry) Register(id Service, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// New builds a provider for the given service.
func (r *Registry) New(id Service, params map[string]any) (Translator, error) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no factory for service %q", id)
	}
	return f(params)
}

// List returns the registered service ids in stable order.
func (r *Registry) List() []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]Service, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// stringParam fetches a string value with a default.
func stringParam(params map[string]any, key, def string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}
