package builtin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dohr-michael/mask/internal/config"
	"github.com/dohr-michael/mask/internal/events"
	"github.com/dohr-michael/mask/internal/skills"
)

// Load builds a registry from cfg: built-in providers are linked, the
// skills listed in skills.builtin are registered, the configured roots are
// discovered and skills.disabled is applied.
func Load(ctx context.Context, cfg *config.Config, bus *events.Bus) (*skills.Registry, error) {
	set := skills.NewProviderSet()
	if err := Register(set, cfg); err != nil {
		return nil, err
	}
	reg := skills.NewRegistry(skills.WithProviders(set), skills.WithEventBus(bus))

	for _, name := range cfg.Skills.Builtin {
		if err := reg.RegisterProvider(ctx, name, skills.SourceLocal); err != nil {
			reg.Close(ctx)
			return nil, fmt.Errorf("builtin skill %q: %w", name, err)
		}
	}

	dirs := make([]skills.Dir, 0, len(cfg.Skills.Dirs))
	for _, d := range cfg.Skills.Dirs {
		src, err := skills.ParseSource(d.Source)
		if err != nil {
			reg.Close(ctx)
			return nil, fmt.Errorf("skill dir %s: %w", d.Path, err)
		}
		dirs = append(dirs, skills.Dir{Path: d.Path, Source: src})
	}
	n := reg.DiscoverFromDirectories(ctx, dirs)

	for _, name := range cfg.Skills.Disabled {
		if err := reg.SetEnabled(name, false); err != nil {
			slog.Warn("disabled skill not registered", "skill", name)
		}
	}

	slog.Debug("skills loaded", "discovered", n, "total", reg.Len())
	return reg, nil
}
