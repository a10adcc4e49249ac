package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dohr-michael/mask/internal/config"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Store defines the persistence interface for sessions.
type Store interface {
	Create(ctx context.Context, opts ...CreateOption) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
	// Save creates or replaces the session metadata.
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, id string, msg Message) error
	// LoadMessages returns messages after skipping offset; limit <= 0 means all.
	LoadMessages(ctx context.Context, id string, limit, offset int) ([]Message, error)
	// CleanupExpired deletes expired sessions and returns how many were removed.
	CleanupExpired(ctx context.Context) (int, error)
	Close() error
}

type createOptions struct {
	title  string
	userID string
	model  string
	ttl    time.Duration
	skills []string
}

// CreateOption customizes a new session.
type CreateOption func(*createOptions)

func WithTitle(title string) CreateOption   { return func(o *createOptions) { o.title = title } }
func WithUserID(userID string) CreateOption { return func(o *createOptions) { o.userID = userID } }
func WithModel(model string) CreateOption   { return func(o *createOptions) { o.model = model } }

// WithTTL makes the session expire d after creation.
func WithTTL(d time.Duration) CreateOption { return func(o *createOptions) { o.ttl = d } }

// WithSkills pre-activates skills on the new session.
func WithSkills(names ...string) CreateOption {
	return func(o *createOptions) { o.skills = append(o.skills, names...) }
}

func newSession(opts []CreateOption) *Session {
	var o createOptions
	for _, opt := range opts {
		opt(&o)
	}
	now := time.Now()
	s := &Session{
		ID:              generateSessionID(),
		Title:           o.title,
		UserID:          o.userID,
		Model:           o.model,
		CreatedAt:       now,
		UpdatedAt:       now,
		Status:          SessionActive,
		ActivatedSkills: []string{},
	}
	s.SetTTL(o.ttl)
	for _, name := range o.skills {
		s.ActivateSkill(name)
	}
	s.UpdatedAt = now
	return s
}

func generateSessionID() string {
	u := uuid.New().String()
	return "sess_" + strings.ReplaceAll(u[:8], "-", "")
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

func expired(id string) error {
	return fmt.Errorf("%w: %s", ErrSessionExpired, id)
}

func paginate(msgs []Message, limit, offset int) []Message {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(msgs) {
		return nil
	}
	msgs = msgs[offset:]
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	return msgs
}

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.SessionsConfig) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(config.ExpandHome(cfg.Dir)), nil
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(ctx, config.ExpandHome(cfg.DSN))
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
