package agent

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrUnknownProvider is returned when a requested provider is not registered.
var ErrUnknownProvider = errors.New("agent: unknown provider") //nolint:gochecknoglobals // sentinel error

// ErrMissingAPIKey is returned by hosted providers configured without a key.
var ErrMissingAPIKey = errors.New("agent: api key required") //nolint:gochecknoglobals // sentinel error

// Provider names.
const (
	ProviderStatic    = "static"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

// ProviderConfig carries the settings a factory may need.
type ProviderConfig struct {
	Model   string
	APIKey  string
	BaseURL string
}

// Backend is the pair of capabilities a provider supplies.
type Backend interface {
	Classifier
	Responder
}

// BackendFactory creates a Backend for a given provider.
type BackendFactory func(cfg ProviderConfig) (Backend, error)

// Registry manages backend factories keyed by provider name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]BackendFactory),
	}
}

// DefaultRegistry returns a registry with the static and langchaingo
// providers registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ProviderStatic, func(ProviderConfig) (Backend, error) {
		return NewStatic(), nil
	})
	r.Register(ProviderOpenAI, func(cfg ProviderConfig) (Backend, error) {
		if cfg.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return wrapModel(openai.New(opts...))
	})
	r.Register(ProviderOllama, func(cfg ProviderConfig) (Backend, error) {
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		return wrapModel(ollama.New(opts...))
	})
	r.Register(ProviderAnthropic, func(cfg ProviderConfig) (Backend, error) {
		if cfg.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		return wrapModel(anthropic.New(anthropic.WithToken(cfg.APIKey), anthropic.WithModel(cfg.Model)))
	})
	return r
}

func wrapModel(m llms.Model, err error) (Backend, error) {
	if err != nil {
		return nil, err
	}
	return NewLLM(m), nil
}

// Register adds a backend factory for a provider.
func (r *Registry) Register(provider string, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = factory
}

// Create instantiates a backend for the given provider.
func (r *Registry) Create(provider string, cfg ProviderConfig) (Backend, error) {
	r.mu.RLock()
	factory, ok := r.factories[provider]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("agent.Registry.Create(%q): %w", provider, ErrUnknownProvider)
	}

	backend, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("agent.Registry.Create(%q): %w", provider, err)
	}

	return backend, nil
}

// Available returns registered provider names in sorted order.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := slices.Collect(func(yield func(string) bool) {
		for name := range r.factories {
			if !yield(name) {
				return
			}
		}
	})
	sort.Strings(names)

	return names
}
