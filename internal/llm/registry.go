package llm

import (
	"fmt"
	"sync"

	"github.com/ki-autoagent/engine/internal/apperr"
	"github.com/ki-autoagent/engine/internal/config"
	"github.com/ki-autoagent/engine/internal/observability"
)

// Registry holds one Provider client per configured provider, shared
// across agents that bind to the same provider.
type Registry struct {
	mu        sync.RWMutex
	providers map[config.Provider]Provider
	metrics   *observability.Metrics
	rec       *callRecorder
}

// NewRegistry constructs an empty registry. Use InitializeProviders to
// populate it from a loaded config.Config.
func NewRegistry(metrics *observability.Metrics) *Registry {
	return &Registry{
		providers: make(map[config.Provider]Provider),
		metrics:   metrics,
		rec:       &callRecorder{},
	}
}

// Metrics returns every LLM call recorded by providers in this registry
// since startup, in call order.
func (r *Registry) Metrics() []LLMCallMetrics {
	return r.rec.snapshot()
}

// Register adds or replaces the client for a provider.
func (r *Registry) Register(name config.Provider, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get retrieves the client for a provider.
func (r *Registry) Get(name config.Provider) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, apperr.New(apperr.KindConfiguration,
			fmt.Sprintf("no LLM provider registered for %q", name), nil)
	}
	return p, nil
}

// Close closes every registered provider client, collecting errors.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var firstErr error
	for _, p := range r.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// InitializeProviders constructs a Registry from cfg, instantiating only
// the providers actually referenced by agent bindings, each wrapped in the
// shared instrumentation decorator (metrics.go).
func InitializeProviders(cfg *config.Config, metrics *observability.Metrics) (*Registry, error) {
	registry := NewRegistry(metrics)

	for providerName := range config.BindingsByProvider(cfg) {
		apiKey, err := config.APIKey(providerName)
		if err != nil {
			return nil, apperr.New(apperr.KindConfiguration,
				fmt.Sprintf("resolving credentials for provider %q", providerName), err)
		}

		var client Provider
		switch providerName {
		case config.ProviderAnthropic:
			client, err = NewAnthropicProvider(AnthropicConfig{APIKey: apiKey})
		case config.ProviderOpenAI:
			client, err = NewOpenAIProvider(OpenAIConfig{APIKey: apiKey})
		case config.ProviderPerplexity:
			client, err = NewPerplexityProvider(PerplexityConfig{APIKey: apiKey})
		default:
			err = apperr.New(apperr.KindConfiguration,
				fmt.Sprintf("unknown provider %q", providerName), nil)
		}
		if err != nil {
			return nil, err
		}

		registry.Register(providerName, Instrumented(client, metrics, registry.rec))
	}

	return registry, nil
}
