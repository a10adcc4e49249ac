// Package sessions provides conversation sessions and their stores.
package sessions

import (
	"slices"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/mask/internal/state"
)

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// Session holds metadata about a conversation session, including the skills
// the agent has activated so far.
type Session struct {
	ID              string         `json:"id"`
	Title           string         `json:"title,omitempty"`
	UserID          string         `json:"user_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty"`
	Status          SessionStatus  `json:"status"`
	Model           string         `json:"model,omitempty"`
	MessageCount    int            `json:"message_count"`
	ActivatedSkills []string       `json:"activated_skills"`
	Data            map[string]any `json:"data,omitempty"`
}

// Touch bumps UpdatedAt.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}

// IsExpired reports whether the session TTL has elapsed.
func (s *Session) IsExpired() bool {
	return s.ExpiresAt != nil && time.Now().After(*s.ExpiresAt)
}

// SetTTL sets the expiry d from now. A non-positive d removes the expiry.
func (s *Session) SetTTL(d time.Duration) {
	if d <= 0 {
		s.ExpiresAt = nil
		return
	}
	exp := time.Now().Add(d)
	s.ExpiresAt = &exp
}

// ActivateSkill merges name into the activated skills through the state
// reducer. Returns true when the skill was not active before.
func (s *Session) ActivateSkill(name string) bool {
	if slices.Contains(s.ActivatedSkills, name) {
		return false
	}
	s.ActivatedSkills = state.MergeActivated(s.ActivatedSkills, []string{name})
	s.Touch()
	return true
}

// DeactivateSkill removes name from the activated skills. It is an
// administrative operation: agent turns only ever add skills.
func (s *Session) DeactivateSkill(name string) bool {
	i := slices.Index(s.ActivatedSkills, name)
	if i < 0 {
		return false
	}
	s.ActivatedSkills = slices.Delete(slices.Clone(s.ActivatedSkills), i, i+1)
	s.Touch()
	return true
}

// SkillState returns the reducer view of the session.
func (s *Session) SkillState(messages []*schema.Message) state.SkillState {
	return state.SkillState{
		Messages:        messages,
		ActivatedSkills: slices.Clone(s.ActivatedSkills),
	}
}

// SetData stores a custom value on the session.
func (s *Session) SetData(key string, value any) {
	if s.Data == nil {
		s.Data = make(map[string]any)
	}
	s.Data[key] = value
	s.Touch()
}

// GetData returns a custom value previously stored with SetData.
func (s *Session) GetData(key string) (any, bool) {
	v, ok := s.Data[key]
	return v, ok
}

// Clone returns a deep enough copy for stores that keep sessions in memory.
func (s *Session) Clone() *Session {
	c := *s
	c.ActivatedSkills = slices.Clone(s.ActivatedSkills)
	if s.ExpiresAt != nil {
		exp := *s.ExpiresAt
		c.ExpiresAt = &exp
	}
	if s.Data != nil {
		c.Data = make(map[string]any, len(s.Data))
		for k, v := range s.Data {
			c.Data[k] = v
		}
	}
	return &c
}

// Message is a single turn in a conversation, serializable to JSONL.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Ts      time.Time `json:"ts"`
}

// ToSchemaMessage converts a session Message to an Eino schema.Message.
func (m Message) ToSchemaMessage() *schema.Message {
	return &schema.Message{
		Role:    schema.RoleType(m.Role),
		Content: m.Content,
	}
}

// NewMessageFromSchema converts an Eino schema.Message to a session Message.
func NewMessageFromSchema(msg *schema.Message) Message {
	return Message{
		Role:    string(msg.Role),
		Content: msg.Content,
		Ts:      time.Now(),
	}
}

// ToSchemaMessages converts a slice of session messages.
func ToSchemaMessages(msgs []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ToSchemaMessage())
	}
	return out
}
