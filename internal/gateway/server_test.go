package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/mask/internal/agent"
	"github.com/dohr-michael/mask/internal/events"
	"github.com/dohr-michael/mask/internal/sessions"
	"github.com/dohr-michael/mask/internal/skills"
)

func newSkills(t *testing.T, names ...string) *agent.SkillMiddleware {
	t.Helper()
	reg := skills.NewRegistry()
	for _, name := range names {
		meta, err := skills.NewMetadata(name, strings.ToUpper(name)+" skill")
		if err != nil {
			t.Fatal(err)
		}
		toolName := name + "_one"
		tl := skills.NewFuncTool(skills.ToolSpec{Name: toolName, Description: toolName},
			func(_ context.Context, _ string) (string, error) { return "ok", nil })
		if err := reg.Register(skills.NewToolSkill(meta, name+" instructions", tl)); err != nil {
			t.Fatal(err)
		}
	}
	return agent.NewSkillMiddleware(reg)
}

// replyModel answers every call with a fixed text.
type replyModel struct{ text string }

func (m replyModel) WithTools([]*schema.ToolInfo) (model.ToolCallingChatModel, error) { return m, nil }

func (m replyModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(m.text, nil), nil
}

func (m replyModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, _ := m.Generate(ctx, in, opts...)
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

type testEnv struct {
	srv   *Server
	bus   *events.Bus
	store sessions.Store
}

func newTestServer(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	bus := events.NewBus(64)
	t.Cleanup(bus.Close)
	store := sessions.NewMemoryStore()

	opts := Options{Host: "127.0.0.1", Bus: bus, Store: store, Skills: newSkills(t, "alpha", "beta")}
	if mutate != nil {
		mutate(&opts)
	}
	srv := NewServer(opts)
	t.Cleanup(srv.hub.Close)
	return &testEnv{srv: srv, bus: bus, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

// waitForEvents polls the bus history until at least n events are present.
func waitForEvents(bus *events.Bus, n int) []events.Event {
	for i := 0; i < 200; i++ {
		if h := bus.History(100); len(h) >= n {
			return h
		}
		time.Sleep(time.Millisecond)
	}
	return bus.History(100)
}

func TestHandleHealth(t *testing.T) {
	env := newTestServer(t, nil)
	w := env.do(t, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode[map[string]any](t, w)
	if body["status"] != "ok" || body["skills"] != float64(2) {
		t.Errorf("body = %v", body)
	}
}

func TestHandleEvents(t *testing.T) {
	env := newTestServer(t, nil)

	if got := decode[[]any](t, env.do(t, http.MethodGet, "/api/events", nil)); len(got) != 0 {
		t.Fatalf("expected empty history, got %d", len(got))
	}

	env.bus.Publish(events.NewTypedEvent(events.SourceCLI, events.UserMessagePayload{Content: "hello"}))
	waitForEvents(env.bus, 1)

	got := decode[[]events.Event](t, env.do(t, http.MethodGet, "/api/events?limit=10", nil))
	if len(got) != 1 || got[0].Type != events.EventUserMessage {
		t.Errorf("history = %+v", got)
	}

	if w := env.do(t, http.MethodGet, "/api/events?limit=abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", w.Code)
	}
}

func TestHandleSkills(t *testing.T) {
	env := newTestServer(t, nil)

	list := decode[[]skills.Summary](t, env.do(t, http.MethodGet, "/api/skills", nil))
	if len(list) != 2 || list[0].Name != "alpha" || list[0].Loader != "use_alpha" {
		t.Errorf("list = %+v", list)
	}

	detail := decode[SkillDetail](t, env.do(t, http.MethodGet, "/api/skills/beta", nil))
	if detail.Name != "beta" || detail.Instructions != "beta instructions" {
		t.Errorf("detail = %+v", detail)
	}

	if w := env.do(t, http.MethodGet, "/api/skills/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown skill status = %d", w.Code)
	}
}

func TestSessionSkillLifecycle(t *testing.T) {
	env := newTestServer(t, nil)

	w := env.do(t, http.MethodPost, "/api/sessions", map[string]any{"title": "t", "skills": []string{"alpha"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body)
	}
	sess := decode[sessions.Session](t, w)
	base := "/api/sessions/" + sess.ID

	tools := decode[SessionTools](t, env.do(t, http.MethodGet, base+"/tools", nil))
	if strings.Join(tools.Tools, ",") != "use_alpha,alpha_one,use_beta" {
		t.Errorf("tools = %v", tools.Tools)
	}

	change := decode[SkillChange](t, env.do(t, http.MethodPost, base+"/skills/beta", nil))
	if !change.Changed || strings.Join(change.Active, ",") != "alpha,beta" {
		t.Errorf("activate = %+v", change)
	}
	change = decode[SkillChange](t, env.do(t, http.MethodPost, base+"/skills/beta", nil))
	if change.Changed || len(change.Active) != 2 {
		t.Errorf("repeat activate = %+v", change)
	}
	if w := env.do(t, http.MethodPost, base+"/skills/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown skill status = %d", w.Code)
	}

	prompt := decode[SessionPrompt](t, env.do(t, http.MethodGet, base+"/prompt", nil))
	if !strings.Contains(prompt.Prompt, "- **beta** (ACTIVE): BETA skill") {
		t.Errorf("prompt = %q", prompt.Prompt)
	}

	change = decode[SkillChange](t, env.do(t, http.MethodDelete, base+"/skills/alpha", nil))
	if !change.Changed || strings.Join(change.Active, ",") != "beta" {
		t.Errorf("deactivate = %+v", change)
	}
	tools = decode[SessionTools](t, env.do(t, http.MethodGet, base+"/tools", nil))
	if slices.Contains(tools.Tools, "alpha_one") {
		t.Errorf("deactivated tools still visible: %v", tools.Tools)
	}

	stored, err := env.store.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(stored.ActivatedSkills, ",") != "beta" {
		t.Errorf("stored = %v", stored.ActivatedSkills)
	}

	types := map[events.EventType]bool{}
	for _, e := range waitForEvents(env.bus, 3) {
		types[e.Type] = true
	}
	for _, want := range []events.EventType{events.EventSessionCreated, events.EventSkillActivated, events.EventSkillDeactivated} {
		if !types[want] {
			t.Errorf("missing event %s", want)
		}
	}
}

// slowGetStore delays reads so concurrent read-modify-write cycles overlap.
type slowGetStore struct {
	sessions.Store
}

func (s slowGetStore) Get(ctx context.Context, id string) (*sessions.Session, error) {
	time.Sleep(time.Millisecond)
	return s.Store.Get(ctx, id)
}

func TestConcurrentActivationsAreKept(t *testing.T) {
	names := []string{"s0", "s1", "s2", "s3"}
	env := newTestServer(t, func(o *Options) {
		o.Store = slowGetStore{o.Store}
		o.Skills = newSkills(t, names...)
	})
	ctx := context.Background()
	sess, err := env.store.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			change, err := env.srv.activateSkill(ctx, sess.ID, name)
			if err != nil || !change.Changed {
				t.Errorf("activate %s: change=%+v err=%v", name, change, err)
			}
		}(name)
	}
	wg.Wait()

	stored, err := env.store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if !slices.Contains(stored.ActivatedSkills, name) {
			t.Errorf("activation of %s lost: stored = %v", name, stored.ActivatedSkills)
		}
	}
}

func TestSessionErrors(t *testing.T) {
	env := newTestServer(t, nil)

	tests := []struct {
		method, path string
		body         any
		want         int
	}{
		{http.MethodGet, "/api/sessions/sess_missing", nil, http.StatusNotFound},
		{http.MethodGet, "/api/sessions/sess_missing/tools", nil, http.StatusNotFound},
		{http.MethodPost, "/api/sessions/sess_missing/skills/alpha", nil, http.StatusNotFound},
		{http.MethodDelete, "/api/sessions/sess_missing", nil, http.StatusNotFound},
		{http.MethodPost, "/api/sessions", map[string]any{"skills": []string{"nope"}}, http.StatusNotFound},
		{http.MethodPost, "/api/sessions", map[string]any{"ttl": "forever"}, http.StatusBadRequest},
		{http.MethodPost, "/api/reload", nil, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		if w := env.do(t, tt.method, tt.path, tt.body); w.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, w.Code, tt.want)
		}
	}
}

func TestSendMessage(t *testing.T) {
	t.Run("disabled without model", func(t *testing.T) {
		env := newTestServer(t, nil)
		sess, _ := env.store.Create(context.Background())
		w := env.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/messages", map[string]string{"content": "hi"})
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("runs a turn", func(t *testing.T) {
		env := newTestServer(t, func(o *Options) { o.Turn = agent.TurnConfig{Model: replyModel{text: "hello back"}} })
		sess, _ := env.store.Create(context.Background())
		base := "/api/sessions/" + sess.ID

		w := env.do(t, http.MethodPost, base+"/messages", map[string]string{"content": "hi"})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body)
		}
		if res := decode[agent.TurnResult](t, w); res.Content != "hello back" {
			t.Errorf("result = %+v", res)
		}

		got := decode[sessionResponse](t, env.do(t, http.MethodGet, base, nil))
		if len(got.Messages) != 2 || got.Messages[1].Content != "hello back" {
			t.Errorf("messages = %+v", got.Messages)
		}

		if w := env.do(t, http.MethodPost, base+"/messages", map[string]string{}); w.Code != http.StatusBadRequest {
			t.Errorf("empty content status = %d", w.Code)
		}
	})
}

func TestReload(t *testing.T) {
	env := newTestServer(t, func(o *Options) {
		o.Reload = func(context.Context) (*agent.SkillMiddleware, error) {
			return newSkills(t, "gamma"), nil
		}
	})

	w := env.do(t, http.MethodPost, "/api/reload", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	list := decode[[]skills.Summary](t, env.do(t, http.MethodGet, "/api/skills", nil))
	if len(list) != 1 || list[0].Name != "gamma" {
		t.Errorf("skills after reload = %+v", list)
	}
}

func TestHandleRequest(t *testing.T) {
	env := newTestServer(t, nil)
	ctx := context.Background()
	sess, _ := env.store.Create(ctx)

	params, _ := json.Marshal(map[string]string{"session_id": sess.ID, "skill": "alpha"})
	out, err := env.srv.HandleRequest(ctx, "activate_skill", params)
	if err != nil {
		t.Fatal(err)
	}
	if c, ok := out.(*SkillChange); !ok || !c.Changed {
		t.Errorf("activate = %#v", out)
	}

	out, err = env.srv.HandleRequest(ctx, "list_tools", params)
	if err != nil {
		t.Fatal(err)
	}
	if st, ok := out.(*SessionTools); !ok || !slices.Contains(st.Tools, "alpha_one") {
		t.Errorf("tools = %#v", out)
	}

	if _, err := env.srv.HandleRequest(ctx, "list_tools", nil); statusFor(err) != http.StatusBadRequest {
		t.Errorf("missing session_id err = %v", err)
	}
	if _, err := env.srv.HandleRequest(ctx, "bogus", params); statusFor(err) != http.StatusBadRequest {
		t.Errorf("unknown method err = %v", err)
	}
}
