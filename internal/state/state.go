// Package state holds the per-conversation skill state and the reducer that
// merges activation deltas into it.
package state

import "github.com/cloudwego/eino/schema"

// SkillState is the slice of conversation state the disclosure middleware
// reads: the message history and the ordered list of activated skills.
type SkillState struct {
	Messages        []*schema.Message `json:"messages"`
	ActivatedSkills []string          `json:"activated_skills"`
}

// Delta is a partial state update produced by the activation callback.
type Delta struct {
	ActivatedSkills []string `json:"activated_skills,omitempty"`
}

// IsEmpty reports whether applying d would leave any state unchanged.
func (d Delta) IsEmpty() bool {
	return len(d.ActivatedSkills) == 0
}

// MergeActivated returns current followed by every name of added not already
// present, in first-seen order. Neither input is modified. Names are never
// removed, so repeated merges of the same delta are no-ops.
func MergeActivated(current, added []string) []string {
	merged := make([]string, 0, len(current)+len(added))
	seen := make(map[string]struct{}, len(current)+len(added))
	for _, name := range current {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		merged = append(merged, name)
	}
	for _, name := range added {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		merged = append(merged, name)
	}
	return merged
}

// Apply returns a copy of s with the delta merged in.
func (s SkillState) Apply(d Delta) SkillState {
	return SkillState{
		Messages:        s.Messages,
		ActivatedSkills: MergeActivated(s.ActivatedSkills, d.ActivatedSkills),
	}
}

// IsActive reports whether name is in the activated list.
func (s SkillState) IsActive(name string) bool {
	for _, n := range s.ActivatedSkills {
		if n == name {
			return true
		}
	}
	return false
}
