package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/dohr-michael/mask/internal/skills"
)

const pdfInstructions = `# PDF processing

Use these tools to inspect PDF documents on the local filesystem.

1. Call pdf_get_page_count first to check the document size.
2. Use pdf_extract_text with page_numbers for large documents.
3. Use pdf_extract_tables when the user asks for tabular data.

Always pass absolute paths. Report tool errors to the user verbatim.`

func newPDFSkill(_ context.Context, opts skills.ProviderOptions) (skills.Skill, error) {
	meta, err := skills.NewMetadata(PDFProcessing, "Extract and analyze content from PDF documents",
		skills.WithTags("document", "pdf", "extraction"),
		skills.WithSource(opts.Source),
		skills.WithPath(opts.Dir),
	)
	if err != nil {
		return nil, err
	}

	instructions := pdfInstructions
	if opts.Dir != "" {
		if p := filepath.Join(opts.Dir, skills.SkillFileName); fileExists(p) {
			_, body, err := skills.ParseSkillMD(p, opts.Source)
			if err != nil {
				return nil, err
			}
			instructions = body
		}
	}

	return skills.NewToolSkill(meta, instructions,
		skills.NewFuncTool(skills.ToolSpec{
			Name:        "pdf_extract_text",
			Description: "Extract text content from a PDF file.",
			Parameters: map[string]skills.ParamSpec{
				"file_path":    {Type: "string", Description: "Path to the PDF file", Required: true},
				"page_numbers": {Type: "string", Description: "Optional pages, comma-separated with ranges (e.g. \"1,3-5\")"},
			},
		}, pdfExtractText),
		skills.NewFuncTool(skills.ToolSpec{
			Name:        "pdf_extract_tables",
			Description: "Extract tables from a PDF file.",
			Parameters: map[string]skills.ParamSpec{
				"file_path":     {Type: "string", Description: "Path to the PDF file", Required: true},
				"page_numbers":  {Type: "string", Description: "Optional pages, comma-separated with ranges (e.g. \"1,3-5\")"},
				"output_format": {Type: "string", Description: "Output format", Enum: []string{"markdown", "json"}, Default: "markdown"},
			},
		}, pdfExtractTables),
		skills.NewFuncTool(skills.ToolSpec{
			Name:        "pdf_get_page_count",
			Description: "Get the number of pages in a PDF file.",
			Parameters: map[string]skills.ParamSpec{
				"file_path": {Type: "string", Description: "Path to the PDF file", Required: true},
			},
		}, pdfGetPageCount),
	), nil
}

type pdfArgs struct {
	FilePath     string `json:"file_path"`
	PageNumbers  string `json:"page_numbers,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
}

// pdfDoc is an open PDF. The reader panics on some malformed files, so
// every access goes through do.
type pdfDoc struct {
	name   string
	file   *os.File
	reader *pdf.Reader
}

func openPDF(argumentsInJSON string) (args pdfArgs, doc *pdfDoc, err error) {
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return args, nil, fmt.Errorf("parse arguments: %w", err)
	}
	if args.FilePath == "" {
		return args, nil, fmt.Errorf("file_path is required")
	}
	if !strings.EqualFold(filepath.Ext(args.FilePath), ".pdf") {
		return args, nil, fmt.Errorf("%s is not a PDF file", args.FilePath)
	}
	if _, err := os.Stat(args.FilePath); err != nil {
		return args, nil, fmt.Errorf("read %s: %w", args.FilePath, err)
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("read %s: malformed PDF: %v", args.FilePath, p)
		}
	}()
	f, r, err := pdf.Open(args.FilePath)
	if err != nil {
		if f != nil {
			f.Close()
		}
		return args, nil, fmt.Errorf("read %s: %w", args.FilePath, err)
	}
	return args, &pdfDoc{name: filepath.Base(args.FilePath), file: f, reader: r}, nil
}

func (d *pdfDoc) Close() error { return d.file.Close() }

func (d *pdfDoc) numPage() (n int, err error) {
	err = d.do(func() error {
		n = d.reader.NumPage()
		return nil
	})
	return n, err
}

func (d *pdfDoc) do(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s: malformed PDF: %v", d.name, p)
		}
	}()
	return fn()
}

// pages resolves a page selection such as "1,3-5" against the document.
// An empty selection means every page.
func (d *pdfDoc) pages(selection string) ([]int, error) {
	total, err := d.numPage()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(selection) == "" {
		all := make([]int, total)
		for i := range all {
			all[i] = i + 1
		}
		return all, nil
	}

	var out []int
	seen := map[int]bool{}
	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid page %q", part)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil || last < first {
				return nil, fmt.Errorf("invalid page range %q", part)
			}
		}
		for n := first; n <= last; n++ {
			if n < 1 || n > total {
				return nil, fmt.Errorf("page %d out of range (document has %d pages)", n, total)
			}
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out, nil
}

// rows returns the text of page n grouped by baseline, top to bottom, with
// each shown string as one cell.
func (d *pdfDoc) rows(n int) ([][]string, error) {
	var out [][]string
	err := d.do(func() error {
		page := d.reader.Page(n)
		if page.V.IsNull() {
			return nil
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return err
		}
		for _, row := range rows {
			var cells []string
			for _, text := range row.Content {
				if s := strings.TrimSpace(text.S); s != "" {
					cells = append(cells, s)
				}
			}
			if len(cells) > 0 {
				out = append(out, cells)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", n, err)
	}
	return out, nil
}

func pdfGetPageCount(_ context.Context, argumentsInJSON string) (string, error) {
	_, doc, err := openPDF(argumentsInJSON)
	if err != nil {
		return "", err
	}
	defer doc.Close()

	n, err := doc.numPage()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s has %d pages", doc.name, n), nil
}

func pdfExtractText(_ context.Context, argumentsInJSON string) (string, error) {
	args, doc, err := openPDF(argumentsInJSON)
	if err != nil {
		return "", err
	}
	defer doc.Close()

	pages, err := doc.pages(args.PageNumbers)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	found := false
	for _, n := range pages {
		rows, err := doc.rows(n)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "--- Page %d ---\n", n)
		for _, cells := range rows {
			sb.WriteString(strings.Join(cells, " "))
			sb.WriteByte('\n')
			found = true
		}
	}
	if !found {
		return fmt.Sprintf("No extractable text in %s (scanned pages need OCR)", doc.name), nil
	}
	return "Text from " + doc.name + ":\n\n" + sb.String(), nil
}

type pdfTable struct {
	Page    int        `json:"page"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// pdfExtractTables treats consecutive multi-cell rows of a page as a table,
// the first row being the header.
func pdfExtractTables(_ context.Context, argumentsInJSON string) (string, error) {
	args, doc, err := openPDF(argumentsInJSON)
	if err != nil {
		return "", err
	}
	defer doc.Close()

	pages, err := doc.pages(args.PageNumbers)
	if err != nil {
		return "", err
	}

	tables := []pdfTable{}
	for _, n := range pages {
		rows, err := doc.rows(n)
		if err != nil {
			return "", err
		}
		var cur *pdfTable
		for _, cells := range rows {
			if len(cells) < 2 {
				cur = nil
				continue
			}
			if cur == nil {
				tables = append(tables, pdfTable{Page: n, Headers: cells, Rows: [][]string{}})
				cur = &tables[len(tables)-1]
				continue
			}
			cur.Rows = append(cur.Rows, cells)
		}
	}

	if args.OutputFormat == "json" {
		out, err := json.Marshal(tables)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}

	if len(tables) == 0 {
		return fmt.Sprintf("No tables found in %s", doc.name), nil
	}
	var sb strings.Builder
	for i, tbl := range tables {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "Page %d:\n\n", tbl.Page)
		sb.WriteString("| " + strings.Join(tbl.Headers, " | ") + " |\n")
		sb.WriteString("|" + strings.Repeat("---|", len(tbl.Headers)) + "\n")
		for _, r := range tbl.Rows {
			sb.WriteString("| " + strings.Join(r, " | ") + " |\n")
		}
	}
	return sb.String(), nil
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
