package sessions

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileStore persists sessions as directories with meta.json + messages.jsonl.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

func (fs *FileStore) sessionDir(id string) string {
	return filepath.Join(fs.baseDir, id)
}

func (fs *FileStore) metaPath(id string) string {
	return filepath.Join(fs.sessionDir(id), "meta.json")
}

func (fs *FileStore) messagesPath(id string) string {
	return filepath.Join(fs.sessionDir(id), "messages.jsonl")
}

// Create initialises a new session directory with meta.json.
func (fs *FileStore) Create(_ context.Context, opts ...CreateOption) (*Session, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	s := newSession(opts)
	if err := os.MkdirAll(fs.sessionDir(s.ID), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	if err := fs.writeMeta(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get reads session metadata by ID. Expired sessions yield ErrSessionExpired.
func (fs *FileStore) Get(_ context.Context, id string) (*Session, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	s, err := fs.readMeta(id)
	if err != nil {
		return nil, err
	}
	if s.IsExpired() {
		return nil, expired(id)
	}
	return s, nil
}

// List returns all live sessions sorted by UpdatedAt descending.
func (fs *FileStore) List(_ context.Context) ([]*Session, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	all, err := fs.readAll()
	if err != nil {
		return nil, err
	}
	sessions := all[:0]
	for _, s := range all {
		if !s.IsExpired() {
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}

func (fs *FileStore) readAll() ([]*Session, error) {
	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions dir: %w", err)
	}

	var sessions []*Session
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		s, err := fs.readMeta(entry.Name())
		if err != nil {
			slog.Debug("skip unreadable session", "id", entry.Name(), "error", err)
			continue
		}
		sessions = append(sessions, s)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Save atomically rewrites a session's meta.json, creating its directory if needed.
func (fs *FileStore) Save(_ context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return errors.New("save session: missing id")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(fs.sessionDir(s.ID), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	return fs.writeMeta(s)
}

// Delete removes the session directory.
func (fs *FileStore) Delete(_ context.Context, id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, err := os.Stat(fs.metaPath(id)); err != nil {
		if os.IsNotExist(err) {
			return notFound(id)
		}
		return fmt.Errorf("stat session: %w", err)
	}
	if err := os.RemoveAll(fs.sessionDir(id)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// AppendMessage appends a message to the session's JSONL file and updates meta.
func (fs *FileStore) AppendMessage(_ context.Context, id string, msg Message) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	s, err := fs.readMeta(id)
	if err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	f, err := os.OpenFile(fs.messagesPath(id), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	s.MessageCount++
	s.Touch()
	return fs.writeMeta(s)
}

// LoadMessages reads messages from a session's JSONL file.
func (fs *FileStore) LoadMessages(_ context.Context, id string, limit, offset int) ([]Message, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if _, err := os.Stat(fs.metaPath(id)); os.IsNotExist(err) {
		return nil, notFound(id)
	}
	msgs, err := fs.loadMessages(id)
	if err != nil {
		return nil, err
	}
	return paginate(msgs, limit, offset), nil
}

// CleanupExpired removes the directories of expired sessions.
func (fs *FileStore) CleanupExpired(_ context.Context) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	all, err := fs.readAll()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, s := range all {
		if !s.IsExpired() {
			continue
		}
		if err := os.RemoveAll(fs.sessionDir(s.ID)); err != nil {
			return removed, fmt.Errorf("delete session %s: %w", s.ID, err)
		}
		removed++
	}
	return removed, nil
}

// Close is a no-op for the file store.
func (fs *FileStore) Close() error { return nil }

func (fs *FileStore) loadMessages(id string) ([]Message, error) {
	f, err := os.Open(fs.messagesPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	var messages []Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			continue // skip corrupted lines
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}

	return messages, nil
}

// writeMeta atomically writes meta.json using a temp file + rename.
func (fs *FileStore) writeMeta(s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	path := fs.metaPath(s.ID)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write meta tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename meta: %w", err)
	}
	return nil
}

func (fs *FileStore) readMeta(id string) (*Session, error) {
	if id == "" || filepath.Base(id) != id {
		return nil, notFound(id)
	}
	data, err := os.ReadFile(fs.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("read meta: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	return &s, nil
}
