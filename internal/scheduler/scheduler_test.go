package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dohr-michael/mask/internal/sessions"
)

func TestSchedulerAddAndRunNow(t *testing.T) {
	s := New()
	defer s.Stop()

	calls := 0
	if err := s.Add("count", "@every 1h", func(ctx context.Context) error {
		if ctx.Err() != nil {
			t.Error("job context already cancelled")
		}
		calls++
		return nil
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("count", "@hourly", func(context.Context) error { return nil }); err == nil {
		t.Error("expected duplicate name error")
	}
	if err := s.Add("bad", "nope", func(context.Context) error { return nil }); err == nil {
		t.Error("expected parse error")
	}

	if err := s.RunNow("count"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if err := s.RunNow("missing"); err == nil {
		t.Error("expected error for unknown job")
	}
	if got := strings.Join(s.Jobs(), ","); got != "count" {
		t.Errorf("Jobs = %q", got)
	}
}

func TestSchedulerRunNowReturnsJobError(t *testing.T) {
	s := New()
	defer s.Stop()

	boom := errors.New("boom")
	if err := s.Add("fail", "@daily", func(context.Context) error { return boom }); err != nil {
		t.Fatal(err)
	}
	if err := s.RunNow("fail"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	s := New()
	s.Start()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestCleanupSessions(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemoryStore()

	expired, err := store.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Minute)
	expired.ExpiresAt = &past
	if err := store.Save(ctx, expired); err != nil {
		t.Fatal(err)
	}
	live, err := store.Create(ctx, sessions.WithTTL(time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	s := New()
	defer s.Stop()
	if err := s.Add("sessions.cleanup", "*/15 * * * *", CleanupSessions(store)); err != nil {
		t.Fatal(err)
	}
	if err := s.RunNow("sessions.cleanup"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	if n, _ := store.CleanupExpired(ctx); n != 0 {
		t.Errorf("job left %d expired sessions", n)
	}
	if _, err := store.Get(ctx, live.ID); err != nil {
		t.Errorf("live session removed: %v", err)
	}
}
