package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/gardar/ocrreflow/pkg/heuristic"
	"github.com/gardar/ocrreflow/pkg/pageocr"
	"github.com/gardar/ocrreflow/pkg/render"
)

// fakeRunner returns canned page texts per file name.
type fakeRunner struct {
	pages map[string][]string
	errs  map[string]error
	panic map[string]bool
	calls []string
}

func (f *fakeRunner) Run(_ context.Context, job pageocr.Job) (*pageocr.Document, error) {
	name := filepath.Base(job.Path)
	f.calls = append(f.calls, name)
	if f.panic[name] {
		panic("runner exploded")
	}
	if err := f.errs[name]; err != nil {
		return nil, fmt.Errorf("%w: %s: %w", pageocr.ErrPageCount, name, err)
	}

	texts := f.pages[name]
	if job.Started != nil {
		job.Started(len(texts))
	}
	doc := &pageocr.Document{Path: job.Path, PageCount: len(texts)}
	for i, text := range texts {
		doc.Pages = append(doc.Pages, pageocr.Result{PageIndex: i, Text: text})
		if job.Progress != nil {
			job.Progress(pageocr.Progress{Document: name, Page: i + 1, Total: len(texts)})
		}
	}
	return doc, nil
}

type fakeRenderer struct {
	requests []render.Request
	fail     map[string]error
}

func (f *fakeRenderer) Render(_ context.Context, req render.Request) error {
	f.requests = append(f.requests, req)
	if err := f.fail[req.Document]; err != nil {
		return err
	}
	return os.WriteFile(req.OutputPath, []byte("%PDF-1.4 fake"), 0o644)
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.OutputDir = t.TempDir()
	return cfg
}

type statusRecorder struct {
	statuses []Status
}

func (s *statusRecorder) record(st Status) { s.statuses = append(s.statuses, st) }

func (s *statusRecorder) messages() []string {
	out := make([]string, len(s.statuses))
	for i, st := range s.statuses {
		out[i] = st.Message
	}
	return out
}

func TestProcessWritesArtifacts(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{pages: map[string][]string{
		"book.pdf": {"CHAPTER 1 Origins\nIt began.", `See C:\data for more.`},
	}}
	renderer := &fakeRenderer{}
	var rec statusRecorder

	report := New(cfg, runner, renderer, arbor.NewLogger(), rec.record).
		Process(context.Background(), []string{"/scans/book.pdf"})

	require.Len(t, report.Documents, 1)
	d := report.Documents[0]
	assert.True(t, d.OK())
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, d.Pages)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "book_ocr.pdf"), d.PDFPath)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "book_ocr.txt"), d.TextPath)

	raw := "CHAPTER 1 Origins\nIt began.\n\n" + `See C:\data for more.`
	txt, err := os.ReadFile(d.TextPath)
	require.NoError(t, err)
	assert.Equal(t, raw, string(txt))

	require.Len(t, renderer.requests, 1)
	req := renderer.requests[0]
	assert.Equal(t, render.EscapeBackslashes(heuristic.Format(raw)), req.Markup)
	assert.Equal(t, "# ORIGINS\nIt began.\n\n"+`See C:\\data for more.`, req.Markup)
	assert.Equal(t, "book.pdf", req.Document)
	assert.Equal(t, render.XeLaTeX, req.PDFEngine)
	assert.Equal(t, "Liberation Serif", req.MainFont)
	assert.Equal(t, "11pt", req.FontSize)
	assert.Equal(t, "0.7in", req.Margin)
	assert.Equal(t, "1.0", req.LineSpacing)

	assert.Equal(t, []string{
		"Processing: book.pdf (1/1)",
		"Starting OCR: book.pdf - 2 pages",
		"OCR: book.pdf - Page 1/2",
		"OCR: book.pdf - Page 2/2",
		"Done: book.pdf (1/1)",
		"All files processed!",
	}, rec.messages())
}

func TestProcessProgressIsMonotonic(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{
		pages: map[string][]string{
			"a.pdf": {"one", "two", "three"},
			"c.pdf": {"only"},
		},
		errs: map[string]error{"b.pdf": errors.New("broken xref")},
	}
	renderer := &fakeRenderer{fail: map[string]error{"c.pdf": errors.New("latex failed")}}
	var rec statusRecorder

	New(cfg, runner, renderer, arbor.NewLogger(), rec.record).
		Process(context.Background(), []string{"a.pdf", "b.pdf", "c.pdf"})

	require.NotEmpty(t, rec.statuses)
	last := 0.0
	for _, st := range rec.statuses {
		assert.GreaterOrEqual(t, st.Progress, last, st.Message)
		assert.LessOrEqual(t, st.Progress, 1.0)
		last = st.Progress
	}
	final := rec.statuses[len(rec.statuses)-1]
	assert.Equal(t, Status{Message: "All files processed!", Progress: 1}, final)
}

func TestProcessPageCountFailure(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{
		pages: map[string][]string{"good.pdf": {"Fine text."}},
		errs:  map[string]error{"bad.pdf": errors.New("not a PDF")},
	}
	renderer := &fakeRenderer{}
	var rec statusRecorder

	report := New(cfg, runner, renderer, arbor.NewLogger(), rec.record).
		Process(context.Background(), []string{"bad.pdf", "good.pdf"})

	require.Len(t, report.Documents, 2)
	bad := report.Documents[0]
	assert.ErrorIs(t, bad.Err, pageocr.ErrPageCount)
	assert.Empty(t, bad.PDFPath)
	assert.False(t, bad.OK())

	txt, err := os.ReadFile(filepath.Join(cfg.OutputDir, "bad_ocr.txt"))
	require.NoError(t, err)
	assert.Equal(t, pageocr.OpenFailureText(bad.Err), string(txt))
	assert.Contains(t, string(txt), "[Could not open document or read page count: ")

	require.Len(t, renderer.requests, 1)
	assert.Equal(t, "good.pdf", renderer.requests[0].Document)
	assert.True(t, report.Documents[1].OK())
	assert.Equal(t, 1, report.Failed())
	assert.Contains(t, rec.messages(), "Error (page count): bad.pdf")
}

func TestProcessEmptyDocument(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{pages: map[string][]string{"empty.pdf": nil}}
	renderer := &fakeRenderer{}
	var rec statusRecorder

	report := New(cfg, runner, renderer, arbor.NewLogger(), rec.record).
		Process(context.Background(), []string{"empty.pdf"})

	require.Len(t, report.Documents, 1)
	assert.True(t, report.Documents[0].OK())
	txt, err := os.ReadFile(filepath.Join(cfg.OutputDir, "empty_ocr.txt"))
	require.NoError(t, err)
	assert.Equal(t, pageocr.EmptyDocumentMarker+"\n\n", string(txt))
	require.Len(t, renderer.requests, 1)
	assert.NotContains(t, rec.messages(), "Starting OCR: empty.pdf - 0 pages")
}

func TestProcessRenderFailureContinuesBatch(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{pages: map[string][]string{
		"first.pdf":  {"First."},
		"second.pdf": {"Second."},
	}}
	renderErr := fmt.Errorf("%w: Pandoc error (first.pdf): exit status 43", render.ErrRender)
	renderer := &fakeRenderer{fail: map[string]error{"first.pdf": renderErr}}
	var rec statusRecorder

	report := New(cfg, runner, renderer, arbor.NewLogger(), rec.record).
		Process(context.Background(), []string{"first.pdf", "second.pdf"})

	require.Len(t, report.Documents, 2)
	assert.ErrorIs(t, report.Documents[0].Err, render.ErrRender)
	assert.Empty(t, report.Documents[0].PDFPath)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "first_ocr.txt"))
	assert.True(t, report.Documents[1].OK())
	assert.Contains(t, rec.messages(), "Pandoc error: first.pdf")
	assert.Equal(t, "All files processed!", rec.messages()[len(rec.statuses)-1])
}

func TestProcessTextWriteFailureIsNotFatal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDir = filepath.Join(t.TempDir(), "missing", "dir")
	runner := &fakeRunner{pages: map[string][]string{"doc.pdf": {"Text."}}}
	renderer := &fakeRenderer{fail: map[string]error{}}
	var rec statusRecorder

	report := New(cfg, runner, renderer, arbor.NewLogger(), rec.record).
		Process(context.Background(), []string{"doc.pdf"})

	require.Len(t, report.Documents, 1)
	d := report.Documents[0]
	assert.Error(t, d.TextErr)
	assert.Empty(t, d.TextPath)
	require.Len(t, renderer.requests, 1, "rendering still runs")
	assert.Contains(t, rec.messages(), "TXT Write Error: doc.pdf")
}

func TestProcessDeduplicatesInputs(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "same.pdf")
	runner := &fakeRunner{pages: map[string][]string{"same.pdf": {"Text."}}}

	report := New(cfg, runner, &fakeRenderer{}, arbor.NewLogger(), nil).
		Process(context.Background(), []string{path, path, filepath.Join(dir, ".", "same.pdf")})

	assert.Len(t, report.Documents, 1)
	assert.Equal(t, []string{"same.pdf"}, runner.calls)
}

func TestProcessRecoversFromPanics(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{
		pages: map[string][]string{"ok.pdf": {"Text."}},
		panic: map[string]bool{"boom.pdf": true},
	}

	report := New(cfg, runner, &fakeRenderer{}, arbor.NewLogger(), nil).
		Process(context.Background(), []string{"boom.pdf", "ok.pdf"})

	require.Len(t, report.Documents, 2)
	assert.ErrorIs(t, report.Documents[0].Err, ErrPanic)
	assert.True(t, report.Documents[1].OK())
}

func TestProcessEmptyBatch(t *testing.T) {
	var rec statusRecorder
	report := New(testConfig(t), &fakeRunner{}, &fakeRenderer{}, arbor.NewLogger(), rec.record).
		Process(context.Background(), nil)

	assert.Empty(t, report.Documents)
	assert.Equal(t, []Status{{Message: "All files processed!", Progress: 1}}, rec.statuses)
}

func TestProcessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &fakeRunner{pages: map[string][]string{"a.pdf": {"Text."}}}

	report := New(testConfig(t), runner, &fakeRenderer{}, arbor.NewLogger(), nil).
		Process(ctx, []string{"a.pdf"})

	require.Len(t, report.Documents, 1)
	assert.ErrorIs(t, report.Documents[0].Err, context.Canceled)
	assert.Empty(t, runner.calls)
}

func TestFraction(t *testing.T) {
	assert.Equal(t, 0.0, fraction(0, 0, 4))
	assert.Equal(t, 0.125, fraction(0, 0.5, 4))
	assert.Equal(t, 0.75, fraction(2, 1, 4))
	assert.Equal(t, 1.0, fraction(0, 0, 0))
}

func TestNewNormalizesRenderSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.Render.LineSpacing = "abc"
	cfg.Render.Margin = "  "
	runner := &fakeRunner{pages: map[string][]string{"a.pdf": {"text"}}}
	renderer := &fakeRenderer{}

	New(cfg, runner, renderer, arbor.NewLogger(), nil).
		Process(context.Background(), []string{"/scans/a.pdf"})

	require.Len(t, renderer.requests, 1)
	assert.Equal(t, DefaultLineSpacing, renderer.requests[0].LineSpacing)
	assert.Equal(t, DefaultMargin, renderer.requests[0].Margin)
	// The caller's copy is untouched.
	assert.Equal(t, "abc", cfg.Render.LineSpacing)
}
