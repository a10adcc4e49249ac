package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dohr-michael/mask/internal/config"
	"github.com/dohr-michael/mask/internal/skills"
)

// pdfText is a string drawn at an absolute position with the F1 font.
type pdfText struct {
	x, y float64
	s    string
}

// buildPDF writes a minimal uncompressed PDF with one content stream per
// page and a correct xref table.
func buildPDF(pages ...[]pdfText) []byte {
	var objs []string
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	var kids []string
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	objs = append(objs, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	esc := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	for i, texts := range pages {
		var content strings.Builder
		for _, tx := range texts {
			fmt.Fprintf(&content, "BT /F1 12 Tf 1 0 0 1 %.1f %.1f Tm (%s) Tj ET\n", tx.x, tx.y, esc.Replace(tx.s))
		}
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

// samplePDF has an inventory table on page 1 and a sentence on page 2.
var samplePDF = buildPDF(
	[]pdfText{
		{72, 740, "Inventory"},
		{72, 700, "Name"}, {200, 700, "Qty"},
		{72, 680, "Apple"}, {200, 680, "3"},
		{72, 660, "Pear"}, {200, 660, "12"},
	},
	[]pdfText{
		{72, 700, "Hello (world)"},
	},
)

func writePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.pdf")
	if err := os.WriteFile(path, samplePDF, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newSet(t *testing.T, cfg *config.Config) *skills.ProviderSet {
	t.Helper()
	set := skills.NewProviderSet()
	if err := Register(set, cfg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return set
}

func findTool(t *testing.T, s skills.Skill, name string) func(string) (string, error) {
	t.Helper()
	for _, tl := range s.Tools() {
		if skills.ToolName(context.Background(), tl) == name {
			return func(args string) (string, error) {
				return tl.InvokableRun(context.Background(), args)
			}
		}
	}
	t.Fatalf("tool %q not found", name)
	return nil
}

func TestRegister(t *testing.T) {
	set := newSet(t, &config.Config{})
	names := set.Names()
	if len(names) != 2 || names[0] != PDFProcessing || names[1] != WebSearch {
		t.Errorf("unexpected providers %v", names)
	}

	cfg := &config.Config{}
	cfg.Skills.Providers = map[string]map[string]string{"nope": {}}
	if err := Register(skills.NewProviderSet(), cfg); err == nil {
		t.Error("expected error for config of unknown provider")
	}
}

func TestPDFSkill(t *testing.T) {
	set := newSet(t, &config.Config{})
	s, err := set.Build(context.Background(), PDFProcessing, skills.ProviderOptions{Source: skills.SourceLocal})
	if err != nil {
		t.Fatal(err)
	}
	if s.Metadata().Name != PDFProcessing || s.Kind() != skills.KindProgrammatic {
		t.Errorf("unexpected skill %+v", s.Metadata())
	}
	if len(s.Tools()) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(s.Tools()))
	}
	if !strings.Contains(s.Instructions(), "pdf_get_page_count") {
		t.Errorf("unexpected instructions %q", s.Instructions())
	}

	path := writePDF(t)
	args, _ := json.Marshal(map[string]string{"file_path": path})

	out, err := findTool(t, s, "pdf_get_page_count")(string(args))
	if err != nil {
		t.Fatal(err)
	}
	if out != "sample.pdf has 2 pages" {
		t.Errorf("unexpected page count %q", out)
	}

	out, err = findTool(t, s, "pdf_extract_text")(string(args))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"--- Page 1 ---\nInventory\nName Qty\nApple 3\nPear 12\n", "--- Page 2 ---\nHello (world)\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("text missing %q:\n%s", want, out)
		}
	}

	out, err = findTool(t, s, "pdf_extract_tables")(string(args))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Page 1:", "| Name | Qty |", "| Apple | 3 |", "| Pear | 12 |"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}

	jsonArgs, _ := json.Marshal(map[string]string{"file_path": path, "output_format": "json"})
	out, err = findTool(t, s, "pdf_extract_tables")(string(jsonArgs))
	if err != nil {
		t.Fatal(err)
	}
	var tables []pdfTable
	if err := json.Unmarshal([]byte(out), &tables); err != nil {
		t.Fatalf("decode tables %q: %v", out, err)
	}
	if len(tables) != 1 || tables[0].Page != 1 || strings.Join(tables[0].Headers, ",") != "Name,Qty" || len(tables[0].Rows) != 2 {
		t.Errorf("unexpected json tables %+v", tables)
	}
}

func TestPDFSkill_PageSelection(t *testing.T) {
	set := newSet(t, &config.Config{})
	s, err := set.Build(context.Background(), PDFProcessing, skills.ProviderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	text := findTool(t, s, "pdf_extract_text")
	tables := findTool(t, s, "pdf_extract_tables")
	path := writePDF(t)
	args := func(pages string) string {
		b, _ := json.Marshal(map[string]string{"file_path": path, "page_numbers": pages})
		return string(b)
	}

	out, err := text(args("2"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Hello (world)") || strings.Contains(out, "Inventory") {
		t.Errorf("page 2 only: %q", out)
	}

	out, err = text(args("2, 1-2"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Index(out, "--- Page 2 ---") > strings.Index(out, "--- Page 1 ---") || strings.Count(out, "--- Page 2 ---") != 1 {
		t.Errorf("selection order or dedup wrong: %q", out)
	}

	out, err = tables(args("2"))
	if err != nil {
		t.Fatal(err)
	}
	if out != "No tables found in sample.pdf" {
		t.Errorf("tables on page 2 = %q", out)
	}

	for _, bad := range []string{"0", "3", "x", "2-1", "1-9"} {
		if _, err := text(args(bad)); err == nil {
			t.Errorf("expected error for page_numbers %q", bad)
		}
	}
}

func TestPDFSkill_NoText(t *testing.T) {
	set := newSet(t, &config.Config{})
	s, _ := set.Build(context.Background(), PDFProcessing, skills.ProviderOptions{})
	path := filepath.Join(t.TempDir(), "blank.pdf")
	if err := os.WriteFile(path, buildPDF([]pdfText{}), 0o644); err != nil {
		t.Fatal(err)
	}
	args, _ := json.Marshal(map[string]string{"file_path": path})

	out, err := findTool(t, s, "pdf_get_page_count")(string(args))
	if err != nil || out != "blank.pdf has 1 pages" {
		t.Errorf("count = %q, %v", out, err)
	}
	out, err = findTool(t, s, "pdf_extract_text")(string(args))
	if err != nil || !strings.HasPrefix(out, "No extractable text in blank.pdf") {
		t.Errorf("text = %q, %v", out, err)
	}
}

func TestPDFSkill_Errors(t *testing.T) {
	set := newSet(t, &config.Config{})
	s, _ := set.Build(context.Background(), PDFProcessing, skills.ProviderOptions{})
	count := findTool(t, s, "pdf_get_page_count")

	notPDF := filepath.Join(t.TempDir(), "notes.txt")
	_ = os.WriteFile(notPDF, []byte("hello"), 0o644)
	fakePDF := filepath.Join(t.TempDir(), "fake.pdf")
	_ = os.WriteFile(fakePDF, []byte("hello"), 0o644)

	for _, args := range []string{
		`{}`,
		`not json`,
		`{"file_path": "` + notPDF + `"}`,
		`{"file_path": "` + fakePDF + `"}`,
		`{"file_path": "/does/not/exist.pdf"}`,
	} {
		if _, err := count(args); err == nil {
			t.Errorf("expected error for %s", args)
		}
	}
}

func TestPDFSkill_InstructionsFromDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), PDFProcessing)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "---\nname: pdf-processing\ndescription: PDFs\n---\nCustom PDF guide.\n"
	if err := os.WriteFile(filepath.Join(dir, skills.SkillFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	set := newSet(t, &config.Config{})
	s, err := set.Build(context.Background(), PDFProcessing, skills.ProviderOptions{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if s.Instructions() != "Custom PDF guide." {
		t.Errorf("unexpected instructions %q", s.Instructions())
	}
}

func TestWebSearchSkill_Providers(t *testing.T) {
	ctx := context.Background()
	set := newSet(t, &config.Config{})

	s, err := set.Build(ctx, WebSearch, skills.ProviderOptions{})
	if err != nil {
		t.Fatalf("duckduckgo: %v", err)
	}
	got := []string{}
	for _, tl := range s.Tools() {
		got = append(got, skills.ToolName(ctx, tl))
	}
	if strings.Join(got, ",") != "web_search,web_fetch" {
		t.Errorf("unexpected tools %v", got)
	}

	tests := []map[string]string{
		{"provider": "google"},
		{"provider": "bing"},
		{"provider": "altavista"},
		{"max_results": "many"},
		{"timeout": "soon"},
	}
	for _, cfg := range tests {
		if _, err := set.Build(ctx, WebSearch, skills.ProviderOptions{Config: cfg}); err == nil {
			t.Errorf("expected error for config %v", cfg)
		}
	}
}

func TestWebFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><head><title>Doc</title><style>p{}</style></head>
<body><p>Hello</p>
<script>var x = 1;</script>
<div>skills   world</div></body></html>`))
		default:
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("plain text"))
		}
	}))
	defer srv.Close()

	fetch := newWebFetchTool(srv.Client(), 64)
	ctx := context.Background()

	out, err := fetch.InvokableRun(ctx, `{"url": "`+srv.URL+`/page"}`)
	if err != nil {
		t.Fatal(err)
	}
	var res webFetchOutput
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Status != http.StatusOK || res.Title != "Doc" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Content != "Hello skills world" {
		t.Errorf("unexpected content %q", res.Content)
	}

	out, err = fetch.InvokableRun(ctx, `{"url": "`+srv.URL+`/raw"}`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "plain text") {
		t.Errorf("unexpected raw output %q", out)
	}

	if _, err := fetch.InvokableRun(ctx, `{"url": "file:///etc/passwd"}`); err == nil {
		t.Error("expected error for non-http url")
	}
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "greeter")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	md := "---\nname: greeter\ndescription: Greets people\n---\n\nSay hello.\n"
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(md), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{Skills: config.SkillsConfig{
		Dirs:     []config.SkillDirConfig{{Path: root, Source: "project"}},
		Builtin:  []string{PDFProcessing},
		Disabled: []string{"greeter", "missing"},
	}}
	reg, err := Load(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer reg.Close(context.Background())

	if reg.Len() != 2 || !reg.Has("greeter") || !reg.Enabled(PDFProcessing) {
		t.Errorf("names = %v", reg.Names())
	}
	if reg.Enabled("greeter") {
		t.Error("greeter should be disabled")
	}
}

func TestLoadBadInput(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SkillsConfig
	}{
		{"unknown builtin", config.SkillsConfig{Builtin: []string{"nope"}}},
		{"bad source", config.SkillsConfig{Dirs: []config.SkillDirConfig{{Path: t.TempDir(), Source: "galaxy"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(context.Background(), &config.Config{Skills: tt.cfg}, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}
