package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL DEFAULT '',
	user_id          TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	model            TEXT NOT NULL DEFAULT '',
	message_count    INTEGER NOT NULL DEFAULT 0,
	activated_skills TEXT NOT NULL DEFAULT '[]',
	data             TEXT NOT NULL DEFAULT '{}',
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL,
	expires_at       INTEGER
);
CREATE TABLE IF NOT EXISTS messages (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	ts         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
`

// SQLiteStore persists sessions in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dsn and applies the schema.
// ":memory:" keeps everything in process.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite session store: empty dsn")
	}
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (st *SQLiteStore) Create(ctx context.Context, opts ...CreateOption) (*Session, error) {
	s := newSession(opts)
	if err := st.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

const selectSession = `SELECT id, title, user_id, status, model, message_count, activated_skills, data,
	created_at, updated_at, expires_at FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s                    Session
		status, skills, data string
		created, updated     int64
		expiresAt            sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Title, &s.UserID, &status, &s.Model, &s.MessageCount,
		&skills, &data, &created, &updated, &expiresAt); err != nil {
		return nil, err
	}
	s.Status = SessionStatus(status)
	if err := json.Unmarshal([]byte(skills), &s.ActivatedSkills); err != nil {
		return nil, fmt.Errorf("decode activated skills: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &s.Data); err != nil {
		return nil, fmt.Errorf("decode session data: %w", err)
	}
	if s.ActivatedSkills == nil {
		s.ActivatedSkills = []string{}
	}
	s.CreatedAt = time.UnixMilli(created)
	s.UpdatedAt = time.UnixMilli(updated)
	if expiresAt.Valid {
		exp := time.UnixMilli(expiresAt.Int64)
		s.ExpiresAt = &exp
	}
	return &s, nil
}

func (st *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	s, err := scanSession(st.db.QueryRowContext(ctx, selectSession+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s.IsExpired() {
		return nil, expired(id)
	}
	return s, nil
}

func (st *SQLiteStore) List(ctx context.Context) ([]*Session, error) {
	rows, err := st.db.QueryContext(ctx, selectSession+
		" WHERE expires_at IS NULL OR expires_at > ? ORDER BY updated_at DESC", time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (st *SQLiteStore) Save(ctx context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return errors.New("save session: missing id")
	}
	skills := s.ActivatedSkills
	if skills == nil {
		skills = []string{}
	}
	skillsJSON, err := json.Marshal(skills)
	if err != nil {
		return fmt.Errorf("encode activated skills: %w", err)
	}
	data := s.Data
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session data: %w", err)
	}
	var expiresAt sql.NullInt64
	if s.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: s.ExpiresAt.UnixMilli(), Valid: true}
	}

	_, err = st.db.ExecContext(ctx, `
	INSERT INTO sessions (id, title, user_id, status, model, message_count, activated_skills, data,
		created_at, updated_at, expires_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		user_id = excluded.user_id,
		status = excluded.status,
		model = excluded.model,
		message_count = excluded.message_count,
		activated_skills = excluded.activated_skills,
		data = excluded.data,
		updated_at = excluded.updated_at,
		expires_at = excluded.expires_at`,
		s.ID, s.Title, s.UserID, string(s.Status), s.Model, s.MessageCount, string(skillsJSON),
		string(dataJSON), s.CreatedAt.UnixMilli(), s.UpdatedAt.UnixMilli(), expiresAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (st *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := st.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	return nil
}

func (st *SQLiteStore) AppendMessage(ctx context.Context, id string, msg Message) error {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		"UPDATE sessions SET message_count = message_count + 1, updated_at = ? WHERE id = ?",
		time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	ts := msg.Ts
	if ts.IsZero() {
		ts = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO messages (session_id, role, content, ts) VALUES (?, ?, ?, ?)",
		id, msg.Role, msg.Content, ts.UnixMilli()); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return tx.Commit()
}

func (st *SQLiteStore) LoadMessages(ctx context.Context, id string, limit, offset int) ([]Message, error) {
	var exists bool
	if err := st.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM sessions WHERE id = ?)", id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return nil, notFound(id)
	}

	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := st.db.QueryContext(ctx,
		"SELECT role, content, ts FROM messages WHERE session_id = ? ORDER BY seq LIMIT ? OFFSET ?",
		id, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m  Message
			ts int64
		)
		if err := rows.Scan(&m.Role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Ts = time.UnixMilli(ts)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (st *SQLiteStore) CleanupExpired(ctx context.Context) (int, error) {
	res, err := st.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= ?", time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (st *SQLiteStore) Close() error {
	return st.db.Close()
}
