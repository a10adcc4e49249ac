package skills

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/tool"

	"github.com/dohr-michael/mask/internal/events"
)

// Registry holds skills in registration order and answers which tools and
// instructions are visible for a set of active skills. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	skills    map[string]Skill
	order     []string
	enabled   map[string]bool
	providers *ProviderSet
	bus       *events.Bus
}

// Option configures a Registry.
type Option func(*Registry)

// WithProviders sets the linked providers used for skill.jsonc manifests.
func WithProviders(p *ProviderSet) Option {
	return func(r *Registry) {
		if p != nil {
			r.providers = p
		}
	}
}

// WithEventBus publishes registry events on bus.
func WithEventBus(bus *events.Bus) Option {
	return func(r *Registry) { r.bus = bus }
}

// NewRegistry creates an empty skill registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		skills:    make(map[string]Skill),
		enabled:   make(map[string]bool),
		providers: NewProviderSet(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Providers returns the provider set used by discovery.
func (r *Registry) Providers() *ProviderSet { return r.providers }

// Register adds a skill. A skill whose name is already registered is
// rejected and the existing entry is kept.
func (r *Registry) Register(skill Skill) error {
	if skill == nil || skill.Metadata() == nil {
		return fmt.Errorf("register skill: missing metadata")
	}
	meta := skill.Metadata()

	r.mu.Lock()
	if _, exists := r.skills[meta.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSkillAlreadyRegistered, meta.Name)
	}
	r.skills[meta.Name] = skill
	r.order = append(r.order, meta.Name)
	r.enabled[meta.Name] = meta.Enabled
	r.mu.Unlock()

	r.bus.Publish(events.NewTypedEvent(events.SourceRegistry, events.SkillRegisteredPayload{
		Name:   meta.Name,
		Kind:   string(skill.Kind()),
		Source: string(meta.Source),
	}))
	return nil
}

// RegisterProvider builds the named linked provider's skill and registers
// it without a skill directory.
func (r *Registry) RegisterProvider(ctx context.Context, name string, source Source) error {
	skill, err := r.providers.Build(ctx, name, ProviderOptions{Source: source})
	if err != nil {
		return err
	}
	if err := r.Register(skill); err != nil {
		closeSkill(ctx, skill)
		return err
	}
	return nil
}

// Unregister removes a skill and releases its resources.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	skill, ok := r.skills[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSkillNotFound, name)
	}
	delete(r.skills, name)
	delete(r.enabled, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	r.mu.Unlock()

	closeSkill(ctx, skill)
	r.bus.Publish(events.NewTypedEvent(events.SourceRegistry, events.SkillUnregisteredPayload{Name: name}))
	return nil
}

// Get returns the skill registered under name.
func (r *Registry) Get(name string) (Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	skill, ok := r.skills[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSkillNotFound, name)
	}
	return skill, nil
}

// Has reports whether a skill is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.skills[name]
	return ok
}

// Len returns the number of registered skills.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Names returns registered skill names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// All returns registered skills in registration order.
func (r *Registry) All() []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Skill, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.skills[name])
	}
	return result
}

// Enabled reports whether name is registered and enabled.
func (r *Registry) Enabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[name]
}

// SetEnabled enables or disables a registered skill. Disabled skills stay
// registered but expose no tools, instructions or prompt entry.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.skills[name]; !ok {
		return fmt.Errorf("%w: %q", ErrSkillNotFound, name)
	}
	r.enabled[name] = enabled
	return nil
}

// EnabledSkills returns enabled skills in registration order.
func (r *Registry) EnabledSkills() []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabledLocked()
}

func (r *Registry) enabledLocked() []Skill {
	result := make([]Skill, 0, len(r.order))
	for _, name := range r.order {
		if r.enabled[name] {
			result = append(result, r.skills[name])
		}
	}
	return result
}

// LoaderTools returns the loader tool of every enabled skill.
func (r *Registry) LoaderTools() []tool.InvokableTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var tools []tool.InvokableTool
	for _, s := range r.enabledLocked() {
		tools = append(tools, s.LoaderTool())
	}
	return tools
}

// ToolsForActiveSkills returns, for each enabled skill in registration
// order, its loader tool followed by its capability tools when the skill
// is named in active. Unknown names in active are ignored.
func (r *Registry) ToolsForActiveSkills(active []string) []tool.InvokableTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var tools []tool.InvokableTool
	for _, s := range r.enabledLocked() {
		tools = append(tools, s.LoaderTool())
		if slices.Contains(active, s.Metadata().Name) {
			tools = append(tools, s.Tools()...)
		}
	}
	return tools
}

// SkillInstructions returns the instructions of the named skill.
func (r *Registry) SkillInstructions(name string) (string, error) {
	skill, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return skill.Instructions(), nil
}

// ActiveInstructions concatenates, in the order of active, the
// instructions of each enabled skill as a "## <name>" section. Unknown,
// disabled and instruction-less skills are skipped.
func (r *Registry) ActiveInstructions(active []string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var parts []string
	for _, name := range active {
		skill, ok := r.skills[name]
		if !ok || !r.enabled[name] {
			continue
		}
		instr := skill.Instructions()
		if instr == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", name, instr))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// SkillForTool maps a loader tool name back to its skill name.
func (r *Registry) SkillForTool(toolName string) (string, bool) {
	if !strings.HasPrefix(toolName, LoaderToolPrefix) {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		if LoaderToolName(name) == toolName {
			return name, true
		}
	}
	return "", false
}

// Summary describes a registered skill for listings.
type Summary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Version     string   `json:"version"`
	Tags        []string `json:"tags,omitempty"`
	Source      Source   `json:"source"`
	Path        string   `json:"path,omitempty"`
	Enabled     bool     `json:"enabled"`
	Kind        Kind     `json:"kind"`
	Loader      string   `json:"loader"`
	Tools       []string `json:"tools,omitempty"`
}

// Summary lists every registered skill, enabled or not, in registration order.
func (r *Registry) Summary() []Summary {
	ctx := context.Background()
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Summary, 0, len(r.order))
	for _, name := range r.order {
		s := r.skills[name]
		meta := s.Metadata()
		sum := Summary{
			Name:        meta.Name,
			Description: meta.Description,
			Version:     meta.Version,
			Tags:        meta.Tags,
			Source:      meta.Source,
			Path:        meta.Path,
			Enabled:     r.enabled[name],
			Kind:        s.Kind(),
			Loader:      LoaderToolName(meta.Name),
		}
		for _, t := range s.Tools() {
			sum.Tools = append(sum.Tools, ToolName(ctx, t))
		}
		result = append(result, sum)
	}
	return result
}

// Close releases resources held by registered skills.
func (r *Registry) Close(ctx context.Context) {
	for _, s := range r.All() {
		closeSkill(ctx, s)
	}
}
