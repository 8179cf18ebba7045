// Package render typesets the Markdown produced by the heuristic formatter
// into a PDF.
//
// The main Renderer runs pandoc as an external process: the Markdown is
// written to its stdin and pandoc drives a LaTeX engine (xelatex, lualatex or
// pdflatex) to produce the output file. NativeRenderer is a pure Go fallback
// built on fpdf for machines without a TeX installation; it honours the
// same Request but only supports the core PDF fonts.
package render

import (
	"context"
	"errors"
	"strings"
)

// ErrRender is wrapped by every rendering failure.
var ErrRender = errors.New("render failed")

// PDFEngine selects the LaTeX engine pandoc uses.
type PDFEngine string

const (
	XeLaTeX  PDFEngine = "xelatex"
	LuaLaTeX PDFEngine = "lualatex"
	PDFLaTeX PDFEngine = "pdflatex"
)

// SupportsMainFont reports whether the engine can load system fonts by
// name. pdflatex cannot; it gets font/input encoding options instead.
func (e PDFEngine) SupportsMainFont() bool {
	return e == XeLaTeX || e == LuaLaTeX
}

const (
	PaperSize     = "a4"
	DocumentClass = "scrartcl"
)

// Request is the immutable input of one rendering. It is built once per
// document from the configuration snapshot.
type Request struct {
	Document    string // Source document name, used in errors and logs
	Markup      string // Markdown, already escaped with EscapeBackslashes
	OutputPath  string
	FontSize    string // e.g. "11pt"
	Margin      string // e.g. "0.7in", "2cm"
	MainFont    string // Only used by engines that SupportsMainFont
	PDFEngine   PDFEngine
	LineSpacing string // e.g. "1.0"
}

// Renderer produces req.OutputPath from req.Markup.
type Renderer interface {
	Render(ctx context.Context, req Request) error
}

// EscapeBackslashes doubles every backslash. LaTeX based renderers read a
// backslash as the start of a command, so OCR text must not reach them with
// single backslashes.
func EscapeBackslashes(s string) string {
	return strings.ReplaceAll(s, `\`, `\\`)
}
