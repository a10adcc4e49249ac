package sessions

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MemoryStore keeps sessions in process memory. Expired sessions are dropped
// when they are read.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	messages map[string][]Message
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]Message),
	}
}

func (m *MemoryStore) Create(_ context.Context, opts ...CreateOption) (*Session, error) {
	s := newSession(opts)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return s, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.live(id)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// live returns the stored session, dropping it when expired. Caller holds mu.
func (m *MemoryStore) live(id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	if s.IsExpired() {
		delete(m.sessions, id)
		delete(m.messages, id)
		return nil, expired(id)
	}
	return s, nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.IsExpired() {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return errors.New("save session: missing id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return notFound(id)
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, id string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.live(id)
	if err != nil {
		return err
	}
	m.messages[id] = append(m.messages[id], msg)
	s.MessageCount++
	s.Touch()
	return nil
}

func (m *MemoryStore) LoadMessages(_ context.Context, id string, limit, offset int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.live(id); err != nil {
		return nil, err
	}
	page := paginate(m.messages[id], limit, offset)
	return append([]Message(nil), page...), nil
}

// CleanupExpired drops every expired session.
func (m *MemoryStore) CleanupExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.IsExpired() {
			delete(m.sessions, id)
			delete(m.messages, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Close() error { return nil }
