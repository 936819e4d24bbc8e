package provider

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Config carries everything a factory needs to construct a client.
// Values are copied on Resolve; the constructed client never observes
// later configuration changes.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Version    string
	Project    string
	Region     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Factory constructs a client bound to the resolved configuration.
type Factory func(cfg Config) (Client, error)

var (
	builtinMu sync.RWMutex
	builtins  = make(map[string]Factory)
)

// RegisterFactory adds a factory to the built-in table. Vendor packages
// call this from init(); NewRegistry snapshots the table.
func RegisterFactory(name string, factory Factory) {
	builtinMu.Lock()
	defer builtinMu.Unlock()
	builtins[name] = factory
}

type clientKey struct {
	provider string
	model    string
	version  string
}

// Registry resolves logical provider names to client instances, caching
// one instance per distinct (provider, model, version) triple. The cache
// is never invalidated implicitly; Clear is the explicit administrative
// reset.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	configs   map[string]Config
	clients   map[clientKey]Client
}

// NewRegistry creates a registry seeded with the built-in factories.
func NewRegistry() *Registry {
	builtinMu.RLock()
	defer builtinMu.RUnlock()

	factories := make(map[string]Factory, len(builtins))
	for name, f := range builtins {
		factories[name] = f
	}
	return &Registry{
		factories: factories,
		configs:   make(map[string]Config),
		clients:   make(map[clientKey]Client),
	}
}

// Register adds or replaces a factory on this registry instance.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Configure sets the configuration used when constructing clients for
// the named provider. It does not touch already-cached instances.
func (r *Registry) Configure(name string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = cfg
}

// Resolve returns the client for the named provider, constructing and
// caching it on first use. modelOverride, when non-empty, selects a model
// other than the configured default and yields a distinct instance.
func (r *Registry) Resolve(name, modelOverride string) (Client, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	cfg := r.configs[name]
	if !ok {
		available := providerNames(r.factories)
		r.mu.RUnlock()
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownProvider, name, available)
	}

	if modelOverride != "" {
		cfg.Model = modelOverride
	}
	key := clientKey{provider: name, model: cfg.Model, version: cfg.Version}

	if client, ok := r.clients[key]; ok {
		r.mu.RUnlock()
		return client, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock so a construction race on the same
	// key never produces two live instances.
	if client, ok := r.clients[key]; ok {
		return client, nil
	}

	client, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("constructing provider %q: %w", name, err)
	}
	r.clients[key] = client
	return client, nil
}

// Providers returns the sorted names of all registered providers.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return providerNames(r.factories)
}

// Clear drops all cached client instances. Configuration and factories
// are kept; subsequent resolutions reconstruct lazily.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = make(map[clientKey]Client)
}

func providerNames(factories map[string]Factory) []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
