package events

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Skill lifecycle
	EventSkillRegistered   EventType = "skill.registered"
	EventSkillUnregistered EventType = "skill.unregistered"
	EventSkillDiscovered   EventType = "skill.discovered"
	EventSkillActivated    EventType = "skill.activated"
	EventSkillDeactivated  EventType = "skill.deactivated"

	// Session lifecycle
	EventSessionCreated EventType = "session.created"
	EventSessionDeleted EventType = "session.deleted"

	// Conversation
	EventUserMessage      EventType = "user.message"
	EventAssistantMessage EventType = "assistant.message"
	EventToolCall         EventType = "tool.call"
	EventModelCall        EventType = "model.call"
)

// EventSource identifies the component that emitted an event.
type EventSource string

const (
	SourceRegistry EventSource = "registry"
	SourceAgent    EventSource = "agent"
	SourceGateway  EventSource = "gateway"
	SourceMCP      EventSource = "mcp"
	SourceCLI      EventSource = "cli"
	SourceWasm     EventSource = "wasm"
)

// Event represents an event in the system.
type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id,omitempty"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    EventSource    `json:"source"`
	Payload   map[string]any `json:"payload"`
}

var eventIDCounter uint64

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, source EventSource, payload map[string]any) Event {
	return Event{
		ID:        generateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Payload:   payload,
	}
}

func generateEventID() string {
	seq := atomic.AddUint64(&eventIDCounter, 1)
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq)
}

type sessionIDKey struct{}

// ContextWithSessionID returns a new context carrying the session ID.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionIDFromContext extracts the session ID from the context, or "" if absent.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return id
	}
	return ""
}
