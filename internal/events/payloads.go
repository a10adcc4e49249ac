package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// SKILL EVENTS
// =============================================================================

type SkillRegisteredPayload struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Source string `json:"source"`
}

func (SkillRegisteredPayload) EventType() EventType { return EventSkillRegistered }

type SkillUnregisteredPayload struct {
	Name string `json:"name"`
}

func (SkillUnregisteredPayload) EventType() EventType { return EventSkillUnregistered }

type SkillDiscoveredPayload struct {
	Dir    string `json:"dir"`
	Source string `json:"source"`
	Count  int    `json:"count"`
}

func (SkillDiscoveredPayload) EventType() EventType { return EventSkillDiscovered }

type SkillActivatedPayload struct {
	Name   string   `json:"name"`
	Active []string `json:"active"`
}

func (SkillActivatedPayload) EventType() EventType { return EventSkillActivated }

type SkillDeactivatedPayload struct {
	Name   string   `json:"name"`
	Active []string `json:"active"`
}

func (SkillDeactivatedPayload) EventType() EventType { return EventSkillDeactivated }

// =============================================================================
// SESSION EVENTS
// =============================================================================

type SessionCreatedPayload struct {
	UserID string `json:"user_id,omitempty"`
}

func (SessionCreatedPayload) EventType() EventType { return EventSessionCreated }

type SessionDeletedPayload struct{}

func (SessionDeletedPayload) EventType() EventType { return EventSessionDeleted }

// =============================================================================
// CONVERSATION EVENTS
// =============================================================================

type UserMessagePayload struct {
	Content string `json:"content"`
}

func (UserMessagePayload) EventType() EventType { return EventUserMessage }

type AssistantMessagePayload struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

func (AssistantMessagePayload) EventType() EventType { return EventAssistantMessage }

type ToolStatus string

const (
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusFailed    ToolStatus = "failed"
)

type ToolCallPayload struct {
	Status   ToolStatus    `json:"status"`
	Name     string        `json:"name"`
	Loader   bool          `json:"loader,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

func (ToolCallPayload) EventType() EventType { return EventToolCall }

type ModelCallPhase string

const (
	ModelCallRequest  ModelCallPhase = "request"
	ModelCallResponse ModelCallPhase = "response"
	ModelCallError    ModelCallPhase = "error"
)

// ModelCallPayload reports one chat model call. Tools lists the tool names
// visible to the model for that call.
type ModelCallPayload struct {
	Phase        ModelCallPhase `json:"phase"`
	Model        string         `json:"model,omitempty"`
	MessageCount int            `json:"message_count,omitempty"`
	Tools        []string       `json:"tools,omitempty"`
	TokensInput  int            `json:"tokens_input,omitempty"`
	TokensOutput int            `json:"tokens_output,omitempty"`
	Error        string         `json:"error,omitempty"`
}

func (ModelCallPayload) EventType() EventType { return EventModelCall }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return NewEvent(payload.EventType(), source, toMap(payload))
}

func NewTypedEventWithSession(source EventSource, payload EventPayload, sessionID string) Event {
	e := NewTypedEvent(source, payload)
	e.SessionID = sessionID
	return e
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	if e.Type != result.EventType() {
		return result, false
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
