package sessions

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dohr-michael/mask/internal/config"
)

func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			return NewFileStore(t.TempDir())
		},
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			st, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "sessions.db"))
			if err != nil {
				t.Fatalf("NewSQLiteStore: %v", err)
			}
			t.Cleanup(func() { st.Close() })
			return st
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Helper()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func TestStoreCreateGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		s, err := store.Create(ctx, WithTitle("demo"), WithUserID("u1"), WithSkills("pdf", "pdf", "web"))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if s.Status != SessionActive {
			t.Errorf("Status = %q", s.Status)
		}

		got, err := store.Get(ctx, s.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Title != "demo" || got.UserID != "u1" {
			t.Errorf("got = %+v", got)
		}
		if len(got.ActivatedSkills) != 2 || got.ActivatedSkills[0] != "pdf" || got.ActivatedSkills[1] != "web" {
			t.Errorf("ActivatedSkills = %v, want [pdf web]", got.ActivatedSkills)
		}
	})
}

func TestStoreGetNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		_, err := store.Get(context.Background(), "sess_missing")
		if !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("err = %v, want ErrSessionNotFound", err)
		}
	})
}

func TestStoreSavePersistsSkillsAndData(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		s, err := store.Create(ctx)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		s.ActivateSkill("alpha")
		s.ActivateSkill("beta")
		s.SetData("lang", "fr")
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("Save: %v", err)
		}

		got, err := store.Get(ctx, s.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(got.ActivatedSkills) != 2 || got.ActivatedSkills[1] != "beta" {
			t.Errorf("ActivatedSkills = %v", got.ActivatedSkills)
		}
		if v, ok := got.GetData("lang"); !ok || v != "fr" {
			t.Errorf("GetData(lang) = %v, %v", v, ok)
		}
	})
}

func TestStoreMessagesPagination(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		s, err := store.Create(ctx)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		contents := []string{"m0", "m1", "m2", "m3", "m4"}
		for _, c := range contents {
			if err := store.AppendMessage(ctx, s.ID, Message{Role: "user", Content: c, Ts: time.Now()}); err != nil {
				t.Fatalf("AppendMessage: %v", err)
			}
		}

		tests := []struct {
			limit, offset int
			want          []string
		}{
			{0, 0, contents},
			{2, 0, []string{"m0", "m1"}},
			{2, 3, []string{"m3", "m4"}},
			{10, 4, []string{"m4"}},
			{0, 5, nil},
		}
		for _, tt := range tests {
			got, err := store.LoadMessages(ctx, s.ID, tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("LoadMessages(%d, %d): %v", tt.limit, tt.offset, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("LoadMessages(%d, %d) len = %d, want %d", tt.limit, tt.offset, len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Content != tt.want[i] {
					t.Errorf("LoadMessages(%d, %d)[%d] = %q, want %q", tt.limit, tt.offset, i, got[i].Content, tt.want[i])
				}
			}
		}

		meta, err := store.Get(ctx, s.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if meta.MessageCount != len(contents) {
			t.Errorf("MessageCount = %d, want %d", meta.MessageCount, len(contents))
		}
	})
}

func TestStoreAppendMissingSession(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		err := store.AppendMessage(context.Background(), "sess_missing", Message{Role: "user", Content: "x"})
		if !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("err = %v, want ErrSessionNotFound", err)
		}
	})
}

func TestStoreDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		s, err := store.Create(ctx)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.Delete(ctx, s.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := store.Get(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Get after delete err = %v", err)
		}
		if err := store.Delete(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("second Delete err = %v", err)
		}
	})
}

func TestStoreExpiry(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		live, err := store.Create(ctx)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		old, err := store.Create(ctx, WithTTL(time.Hour))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		past := time.Now().Add(-time.Minute)
		old.ExpiresAt = &past
		if err := store.Save(ctx, old); err != nil {
			t.Fatalf("Save: %v", err)
		}

		if _, err := store.Get(ctx, old.ID); !errors.Is(err, ErrSessionExpired) {
			t.Errorf("Get expired err = %v, want ErrSessionExpired", err)
		}
		list, err := store.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(list) != 1 || list[0].ID != live.ID {
			t.Errorf("List = %v, want only %s", list, live.ID)
		}

		if _, err := store.CleanupExpired(ctx); err != nil {
			t.Fatalf("CleanupExpired: %v", err)
		}
		if _, err := store.Get(ctx, old.ID); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Get after cleanup err = %v, want ErrSessionNotFound", err)
		}
	})
}

func TestStoreListOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		first, err := store.Create(ctx)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		second, err := store.Create(ctx)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		first.UpdatedAt = time.Now().Add(time.Minute)
		if err := store.Save(ctx, first); err != nil {
			t.Fatalf("Save: %v", err)
		}

		list, err := store.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
			t.Errorf("List order wrong: %v", list)
		}
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		cfg     config.SessionsConfig
		want    string
		wantErr bool
	}{
		{cfg: config.SessionsConfig{Backend: "file", Dir: dir}, want: "*sessions.FileStore"},
		{cfg: config.SessionsConfig{Backend: "memory"}, want: "*sessions.MemoryStore"},
		{cfg: config.SessionsConfig{Backend: "sqlite", DSN: filepath.Join(dir, "s.db")}, want: "*sessions.SQLiteStore"},
		{cfg: config.SessionsConfig{Backend: "redis"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Backend, func(t *testing.T) {
			st, err := Open(ctx, tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer st.Close()
			if got := typeName(st); got != tt.want {
				t.Errorf("type = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *FileStore:
		return "*sessions.FileStore"
	case *MemoryStore:
		return "*sessions.MemoryStore"
	case *SQLiteStore:
		return "*sessions.SQLiteStore"
	}
	return "unknown"
}
