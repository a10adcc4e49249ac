// Package builtin provides the skills linked into the mask binary. They are
// referenced by provider name from skill.jsonc or registered directly via
// the skills.builtin config list.
package builtin

import (
	"fmt"

	"github.com/dohr-michael/mask/internal/config"
	"github.com/dohr-michael/mask/internal/skills"
)

const (
	PDFProcessing = "pdf-processing"
	WebSearch     = "web-search"
)

// Register adds every built-in provider to set.
func Register(set *skills.ProviderSet, cfg *config.Config) error {
	if err := set.Register(PDFProcessing, skills.ProviderFunc(newPDFSkill)); err != nil {
		return err
	}
	if err := set.Register(WebSearch, &webSearchProvider{defaults: cfg.WebSearch}); err != nil {
		return err
	}
	for name, pc := range cfg.Skills.Providers {
		if _, ok := set.Lookup(name); !ok {
			return fmt.Errorf("config for unknown skill provider %q", name)
		}
		set.Configure(name, pc)
	}
	return nil
}
