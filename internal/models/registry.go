package models

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/mask/internal/config"
)

// FactoryFunc builds a chat model from a provider config.
type FactoryFunc func(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error)

// ProviderEntry holds a lazily-initialized model instance.
type ProviderEntry struct {
	Config config.ProviderConfig
	model  model.ToolCallingChatModel
	once   sync.Once
	err    error
}

// Registry manages named model providers with lazy initialization.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]*ProviderEntry
	defaultName string
	factory     FactoryFunc
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithFactory replaces CreateModel as the model constructor.
func WithFactory(f FactoryFunc) RegistryOption {
	return func(r *Registry) { r.factory = f }
}

// NewRegistry creates a model registry from config.
func NewRegistry(cfg config.ModelsConfig, opts ...RegistryOption) *Registry {
	r := &Registry{
		providers:   make(map[string]*ProviderEntry),
		defaultName: cfg.Default,
		factory:     CreateModel,
	}
	for _, o := range opts {
		o(r)
	}

	for name, provCfg := range cfg.Providers {
		r.providers[name] = &ProviderEntry{Config: provCfg}
	}

	return r
}

// Get returns the named model, initializing it lazily. A failed
// initialization is cached like a successful one.
func (r *Registry) Get(ctx context.Context, name string) (model.ToolCallingChatModel, error) {
	r.mu.RLock()
	entry, ok := r.providers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}

	entry.once.Do(func() {
		entry.model, entry.err = r.factory(ctx, entry.Config)
	})

	return entry.model, entry.err
}

// Default returns the default model.
func (r *Registry) Default(ctx context.Context) (model.ToolCallingChatModel, error) {
	if r.defaultName == "" {
		return nil, ErrNoDefaultModel
	}
	return r.Get(ctx, r.defaultName)
}

// Resolve returns the named model, or the default one when name is empty.
func (r *Registry) Resolve(ctx context.Context, name string) (model.ToolCallingChatModel, error) {
	if name == "" {
		return r.Default(ctx)
	}
	return r.Get(ctx, name)
}

// DefaultName returns the name of the default provider.
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// Names returns the configured provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
