package skills

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ProviderOptions is passed to a Provider when building its skill.
type ProviderOptions struct {
	Dir    string            // skill directory, empty for built-in registration
	Source Source            // discovery source
	Config map[string]string // manifest config merged over provider config
}

// Provider builds a programmatic skill. Providers are linked into the
// binary and referenced by name from skill.jsonc.
type Provider interface {
	NewSkill(ctx context.Context, opts ProviderOptions) (Skill, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, opts ProviderOptions) (Skill, error)

func (f ProviderFunc) NewSkill(ctx context.Context, opts ProviderOptions) (Skill, error) {
	return f(ctx, opts)
}

// ProviderSet maps provider names to providers.
type ProviderSet struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    map[string]map[string]string
}

// NewProviderSet creates an empty provider set.
func NewProviderSet() *ProviderSet {
	return &ProviderSet{
		providers: make(map[string]Provider),
		config:    make(map[string]map[string]string),
	}
}

// Register adds a provider under name.
func (s *ProviderSet) Register(name string, p Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	s.providers[name] = p
	return nil
}

// Configure sets base config handed to a provider. Manifest config takes
// precedence over it.
func (s *ProviderSet) Configure(name string, cfg map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[name] = maps.Clone(cfg)
}

// Lookup returns the provider registered under name.
func (s *ProviderSet) Lookup(name string) (Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[name]
	return p, ok
}

// Names returns the registered provider names sorted alphabetically.
func (s *ProviderSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.providers))
}

// Build instantiates the named provider's skill.
func (s *ProviderSet) Build(ctx context.Context, name string, opts ProviderOptions) (Skill, error) {
	p, ok := s.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}

	s.mu.RLock()
	merged := maps.Clone(s.config[name])
	s.mu.RUnlock()
	if merged == nil {
		merged = make(map[string]string)
	}
	maps.Copy(merged, opts.Config)
	opts.Config = merged
	if opts.Source == "" {
		opts.Source = SourceLocal
	}

	skill, err := p.NewSkill(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", name, err)
	}
	if skill == nil {
		return nil, fmt.Errorf("provider %q returned no skill", name)
	}
	return skill, nil
}
