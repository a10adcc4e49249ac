package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/mask/internal/skills"
	"github.com/dohr-michael/mask/internal/state"
)

type testSkill struct {
	name     string
	desc     string
	instr    string
	tools    []string
	disabled bool
}

func newTestRegistry(t *testing.T, defs ...testSkill) *skills.Registry {
	t.Helper()
	reg := skills.NewRegistry()
	for _, d := range defs {
		meta, err := skills.NewMetadata(d.name, d.desc, skills.WithEnabled(!d.disabled))
		if err != nil {
			t.Fatalf("NewMetadata(%s): %v", d.name, err)
		}
		var tools []tool.InvokableTool
		for _, tn := range d.tools {
			tools = append(tools, skills.NewFuncTool(skills.ToolSpec{Name: tn, Description: tn},
				func(_ context.Context, _ string) (string, error) { return tn + " ok", nil }))
		}
		if err := reg.Register(skills.NewToolSkill(meta, d.instr, tools...)); err != nil {
			t.Fatalf("Register(%s): %v", d.name, err)
		}
	}
	return reg
}

func toolNamesOf(t *testing.T, tools []tool.InvokableTool) []string {
	t.Helper()
	var names []string
	for _, tl := range tools {
		info, err := tl.Info(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, info.Name)
	}
	return names
}

func TestBuildSkillsPrompt(t *testing.T) {
	reg := newTestRegistry(t,
		testSkill{name: "pdf-processing", desc: "Work with PDFs", instr: "Use pdf tools."},
		testSkill{name: "web-search", desc: "Search the web", instr: "Search first."},
		testSkill{name: "hidden", desc: "Disabled skill", instr: "nope", disabled: true},
	)

	intro := "## Available Skills\n\n" +
		"You have access to the following skills. Use the corresponding \n" +
		"`use_<skill_name>` tool to activate a skill and receive detailed \n" +
		"instructions for its use.\n\n"

	tests := []struct {
		name    string
		active  []string
		include bool
		want    string
	}{
		{
			name:    "nothing active",
			include: true,
			want: intro +
				"- **pdf-processing** (available): Work with PDFs\n" +
				"- **web-search** (available): Search the web\n",
		},
		{
			name:    "one active with instructions",
			active:  []string{"web-search"},
			include: true,
			want: intro +
				"- **pdf-processing** (available): Work with PDFs\n" +
				"- **web-search** (ACTIVE): Search the web\n" +
				"\n## Active Skill Instructions\n\n" +
				"## web-search\n\nSearch first.\n",
		},
		{
			name:    "one active without instructions",
			active:  []string{"pdf-processing"},
			include: false,
			want: intro +
				"- **pdf-processing** (ACTIVE): Work with PDFs\n" +
				"- **web-search** (available): Search the web\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildSkillsPrompt(reg, tt.active, tt.include)
			if got != tt.want {
				t.Errorf("BuildSkillsPrompt() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestBuildSkillsPromptEmptyRegistry(t *testing.T) {
	if got := BuildSkillsPrompt(skills.NewRegistry(), nil, true); got != "" {
		t.Errorf("prompt = %q, want empty", got)
	}
}

func TestInjectSkillsPrompt(t *testing.T) {
	sys := schema.SystemMessage("You are helpful.")
	user := schema.UserMessage("hi")

	t.Run("merges into leading system message", func(t *testing.T) {
		in := []*schema.Message{sys, user}
		out := InjectSkillsPrompt(in, "SKILLS")
		if len(out) != 2 {
			t.Fatalf("len = %d, want 2", len(out))
		}
		if out[0].Content != "SKILLS\n\n---\n\nYou are helpful." {
			t.Errorf("system content = %q", out[0].Content)
		}
		if out[0] == sys || sys.Content != "You are helpful." {
			t.Error("original system message must not be mutated")
		}
		if in[0] != sys {
			t.Error("input slice must not be modified")
		}
	})

	t.Run("prepends when no system message", func(t *testing.T) {
		out := InjectSkillsPrompt([]*schema.Message{user}, "SKILLS")
		if len(out) != 2 || out[0].Role != schema.System || out[0].Content != "SKILLS" || out[1] != user {
			t.Errorf("out = %+v", out)
		}
	})

	t.Run("empty prompt copies", func(t *testing.T) {
		in := []*schema.Message{sys, user}
		out := InjectSkillsPrompt(in, "")
		if len(out) != 2 || out[0] != sys {
			t.Errorf("out = %+v", out)
		}
		out[0] = user
		if in[0] != sys {
			t.Error("returned slice aliases input")
		}
	})

	t.Run("empty history", func(t *testing.T) {
		out := InjectSkillsPrompt(nil, "SKILLS")
		if len(out) != 1 || out[0].Content != "SKILLS" {
			t.Errorf("out = %+v", out)
		}
	})
}

func TestSkillMiddlewareTools(t *testing.T) {
	reg := newTestRegistry(t,
		testSkill{name: "alpha", desc: "A", tools: []string{"alpha_one", "alpha_two"}},
		testSkill{name: "beta", desc: "B", tools: []string{"beta_one"}},
		testSkill{name: "gamma", desc: "G", tools: []string{"gamma_one"}, disabled: true},
	)
	extra := skills.NewFuncTool(skills.ToolSpec{Name: "clock", Description: "time"},
		func(_ context.Context, _ string) (string, error) { return "now", nil })
	mw := NewSkillMiddleware(reg)

	tests := []struct {
		name   string
		active []string
		want   []string
	}{
		{"none active", nil, []string{"use_alpha", "use_beta", "clock"}},
		{"alpha active", []string{"alpha"}, []string{"use_alpha", "alpha_one", "alpha_two", "use_beta", "clock"}},
		{"disabled stays hidden", []string{"gamma"}, []string{"use_alpha", "use_beta", "clock"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toolNamesOf(t, mw.Tools(state.SkillState{ActivatedSkills: tt.active}, extra))
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Tools = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSkillMiddlewarePrepareMessages(t *testing.T) {
	reg := newTestRegistry(t, testSkill{name: "alpha", desc: "A", instr: "Do alpha things."})
	st := state.SkillState{
		Messages:        []*schema.Message{schema.UserMessage("hello")},
		ActivatedSkills: []string{"alpha"},
	}

	msgs := NewSkillMiddleware(reg).PrepareMessages(st)
	if len(msgs) != 2 || msgs[0].Role != schema.System {
		t.Fatalf("msgs = %+v", msgs)
	}
	if !strings.Contains(msgs[0].Content, "- **alpha** (ACTIVE): A") {
		t.Errorf("missing ACTIVE line: %q", msgs[0].Content)
	}
	if !strings.Contains(msgs[0].Content, "Do alpha things.") {
		t.Errorf("missing instructions: %q", msgs[0].Content)
	}
	if len(st.Messages) != 1 {
		t.Error("state messages must not change")
	}

	noInstr := NewSkillMiddleware(reg, WithInstructions(false)).PrepareMessages(st)
	if strings.Contains(noInstr[0].Content, "Do alpha things.") {
		t.Error("instructions included despite WithInstructions(false)")
	}
}

func TestActivationCallback(t *testing.T) {
	reg := newTestRegistry(t, testSkill{name: "alpha", desc: "A"})
	activate := NewSkillMiddleware(reg).ActivationCallback()

	if d := activate("alpha"); len(d.ActivatedSkills) != 1 || d.ActivatedSkills[0] != "alpha" {
		t.Errorf("known delta = %+v", d)
	}
	if d := activate("nope"); !d.IsEmpty() {
		t.Errorf("unknown delta = %+v, want empty", d)
	}
}

func TestStripFrontmatter(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"---\ntitle: x\n---\n\nBody text\n", "Body text"},
		{"Plain prompt\n", "Plain prompt"},
		{"---\nunterminated", "---\nunterminated"},
	}
	for _, tt := range tests {
		if got := stripFrontmatter(tt.in); got != tt.want {
			t.Errorf("stripFrontmatter(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
