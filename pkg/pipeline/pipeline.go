// Package pipeline converts a batch of scanned PDFs into reflowed PDFs.
//
// Documents are processed one after another. For each one the Pipeline
// counts the pages, runs page OCR through a Runner, writes the raw text next
// to the output, formats the text into Markdown with the heading heuristics
// and hands the result to a render.Renderer. A failing document is recorded
// in the Report and the batch moves on; Process always returns a report for
// every input.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/gardar/ocrreflow/pkg/heuristic"
	"github.com/gardar/ocrreflow/pkg/pageocr"
	"github.com/gardar/ocrreflow/pkg/render"
)

const (
	TextSuffix = "_ocr.txt"
	PDFSuffix  = "_ocr.pdf"

	finishedMessage = "All files processed!"
)

// ErrPanic wraps a panic recovered while processing a document.
var ErrPanic = errors.New("unexpected error while processing document")

// Runner runs page OCR over one document. *pageocr.Orchestrator implements
// it.
type Runner interface {
	Run(ctx context.Context, job pageocr.Job) (*pageocr.Document, error)
}

// Status is a human readable progress update. Progress is the fraction of
// the batch done, in [0, 1].
type Status struct {
	Message  string
	Progress float64
}

// StatusFunc receives status updates on the goroutine calling Process.
type StatusFunc func(Status)

// DocumentReport is the outcome of one input file.
type DocumentReport struct {
	Path        string
	Pages       int
	FailedPages []int  // 1-based page numbers that degraded to placeholders
	TextPath    string // Empty when the text artifact could not be written
	PDFPath     string // Empty unless rendering succeeded
	TextErr     error
	Err         error // Page count or render failure
}

// OK reports whether the document was rendered.
func (r DocumentReport) OK() bool { return r.Err == nil && r.PDFPath != "" }

// Report is the outcome of a batch.
type Report struct {
	RunID     string
	Documents []DocumentReport
}

// Failed returns the number of documents that were not rendered.
func (r Report) Failed() int {
	n := 0
	for _, d := range r.Documents {
		if !d.OK() {
			n++
		}
	}
	return n
}

// Pipeline drives a batch.
type Pipeline struct {
	cfg      Config
	runner   Runner
	renderer render.Renderer
	logger   arbor.ILogger
	status   StatusFunc
	last     float64
}

// New creates a Pipeline. cfg is copied and normalized; later changes to the
// caller's value do not reach a running batch. status may be nil.
func New(cfg Config, runner Runner, renderer render.Renderer, logger arbor.ILogger, status StatusFunc) *Pipeline {
	if status == nil {
		status = func(Status) {}
	}
	cfg.Normalize(logger)
	return &Pipeline{
		cfg:      cfg,
		runner:   runner,
		renderer: renderer,
		logger:   logger,
		status:   status,
	}
}

// Process converts every path in order. The same path given twice is only
// processed once. It always ends with the finished status at progress 1.
func (p *Pipeline) Process(ctx context.Context, paths []string) Report {
	paths = dedupe(paths)
	report := Report{RunID: uuid.New().String()}
	p.last = 0

	p.logger.Info().
		Str("run_id", report.RunID).
		Int("documents", len(paths)).
		Str("font_size", p.cfg.Render.FontSize).
		Str("main_font", p.cfg.Render.MainFont).
		Str("margin", p.cfg.Render.Margin).
		Str("pdf_engine", p.cfg.Render.PDFEngine).
		Str("line_spacing", p.cfg.Render.LineSpacing).
		Msg("Settings")

	total := len(paths)
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			report.Documents = append(report.Documents, DocumentReport{Path: path, Err: err})
			continue
		}

		name := filepath.Base(path)
		p.emit(fmt.Sprintf("Processing: %s (%d/%d)", name, i+1, total), fraction(i, 0, total))

		report.Documents = append(report.Documents, p.processDocument(ctx, path, i, total))
		p.emit(fmt.Sprintf("Done: %s (%d/%d)", name, i+1, total), fraction(i+1, 0, total))
	}

	p.logger.Info().
		Str("run_id", report.RunID).
		Int("documents", total).
		Int("failed", report.Failed()).
		Msg(finishedMessage)
	p.emit(finishedMessage, 1)
	return report
}

// processDocument runs the whole chain for one file. It never panics.
func (p *Pipeline) processDocument(ctx context.Context, path string, index, total int) (rep DocumentReport) {
	name := filepath.Base(path)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	textPath := filepath.Join(p.cfg.OutputDir, base+TextSuffix)
	pdfPath := filepath.Join(p.cfg.OutputDir, base+PDFSuffix)
	rep.Path = path

	defer func() {
		if r := recover(); r != nil {
			rep.Err = fmt.Errorf("%w (%s): %v", ErrPanic, name, r)
			p.logger.Error().Err(rep.Err).Str("document", name).Msg("General error while processing file")
			p.emit("Error: "+name, -1)
		}
	}()

	doc, err := p.runner.Run(ctx, pageocr.Job{
		Path:     path,
		Language: p.cfg.Language,
		DPI:      p.cfg.DPI,
		Started: func(pages int) {
			if pages > 0 {
				p.emit(fmt.Sprintf("Starting OCR: %s - %d pages", name, pages), fraction(index, 0, total))
			}
		},
		Progress: func(pr pageocr.Progress) {
			p.emit(
				fmt.Sprintf("OCR: %s - Page %d/%d", name, pr.Page, pr.Total),
				fraction(index, float64(pr.Page)/float64(pr.Total), total),
			)
		},
	})
	if err != nil {
		rep.Err = err
		p.emit("Error (page count): "+name, -1)
		rep.TextPath, rep.TextErr = p.writeText(name, textPath, pageocr.OpenFailureText(err))
		return rep
	}

	rep.Pages = doc.PageCount
	rep.FailedPages = doc.FailedPages()
	raw := doc.Text()
	rep.TextPath, rep.TextErr = p.writeText(name, textPath, raw)

	markup := render.EscapeBackslashes(heuristic.Format(raw))
	req := p.cfg.RenderRequest(name, markup, pdfPath)
	if err := p.renderer.Render(ctx, req); err != nil {
		rep.Err = err
		p.logger.Error().Err(err).Str("document", name).Msg("Render failed")
		label := "Render error: "
		if p.cfg.Render.Renderer == "pandoc" {
			label = "Pandoc error: "
		}
		p.emit(label+name, fraction(index, 1, total))
		return rep
	}
	rep.PDFPath = pdfPath
	return rep
}

// writeText stores the raw text artifact. Failures are logged and reported
// but never stop the document.
func (p *Pipeline) writeText(name, path, text string) (string, error) {
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		p.logger.Error().Err(err).Str("document", name).Str("path", path).Msg("Could not write TXT file")
		p.emit("TXT Write Error: "+name, -1)
		return "", err
	}
	p.logger.Info().Str("document", name).Str("path", path).Msg("Text output saved")
	return path, nil
}

// emit sends a status. A negative progress repeats the last value sent.
func (p *Pipeline) emit(message string, progress float64) {
	if progress < 0 {
		progress = p.last
	}
	p.last = progress
	p.status(Status{Message: message, Progress: progress})
}

// fraction maps the progress of document index (done in [0,1]) to the
// progress of the batch.
func fraction(index int, done float64, total int) float64 {
	if total == 0 {
		return 1
	}
	return min(1, (float64(index)+done)/float64(total))
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		key := filepath.Clean(path)
		if abs, err := filepath.Abs(path); err == nil {
			key = abs
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, path)
	}
	return out
}
