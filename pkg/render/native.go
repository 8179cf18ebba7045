package render

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"codeberg.org/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/encoding/charmap"
)

const (
	ptToMM = 25.4 / 72

	defaultFontSize = 11.0
	defaultMarginMM = 0.7 * 25.4
)

var lengthPattern = regexp.MustCompile(`^\s*([0-9]*\.?[0-9]+)\s*(pt|mm|cm|in)?\s*$`)

// headingScale is the font size multiplier per heading level.
var headingScale = map[int]float64{1: 1.6, 2: 1.3, 3: 1.15}

// NativeRenderer typesets Markdown with fpdf, without pandoc or LaTeX. Only
// the PDF core fonts are available; MainFont picks the closest one and text
// is encoded as Windows-1252 with '?' for characters outside it.
type NativeRenderer struct {
	logger arbor.ILogger
}

// NewNativeRenderer creates a NativeRenderer.
func NewNativeRenderer(logger arbor.ILogger) *NativeRenderer {
	return &NativeRenderer{logger: logger}
}

// Render writes req.OutputPath. ctx is only checked before starting; fpdf
// does not block on I/O until the final write.
func (n *NativeRenderer) Render(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRender, req.Document, err)
	}

	size := parseFontSize(req.FontSize)
	margin := parseLength(req.Margin, defaultMarginMM)
	spacing, err := strconv.ParseFloat(req.LineSpacing, 64)
	if err != nil || spacing <= 0 {
		spacing = 1.0
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetTitle(req.Document, true)
	pdf.AddPage()

	source := []byte(req.Markup)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	r := &pdfWriter{
		pdf:     pdf,
		source:  source,
		font:    coreFont(req.MainFont),
		size:    size,
		spacing: spacing,
	}
	r.updateFont()
	if err := ast.Walk(doc, r.walk); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRender, req.Document, err)
	}

	if err := pdf.OutputFileAndClose(req.OutputPath); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRender, req.Document, err)
	}
	if r.replaced > 0 {
		n.logger.Warn().
			Str("document", req.Document).
			Int("characters", r.replaced).
			Msg("Characters outside Windows-1252 replaced")
	}
	n.logger.Info().Str("document", req.Document).Str("output", req.OutputPath).Msg("PDF successfully converted")
	return nil
}

// pdfWriter walks a goldmark AST and writes it to a page.
type pdfWriter struct {
	pdf      *fpdf.Fpdf
	source   []byte
	font     string
	size     float64
	spacing  float64
	bold     bool
	italic   bool
	replaced int
}

func (r *pdfWriter) lineHeight(size float64) float64 {
	return size * 1.2 * r.spacing * ptToMM
}

func (r *pdfWriter) updateFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(r.font, style, r.size)
}

func (r *pdfWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		r.heading(node, entering)
	case *ast.Paragraph:
		if !entering {
			r.pdf.Ln(r.lineHeight(r.size) * 1.5)
		}
	case *ast.Text:
		if entering {
			r.write(string(node.Segment.Value(r.source)))
			if node.SoftLineBreak() {
				r.write(" ")
			}
			if node.HardLineBreak() {
				r.pdf.Ln(r.lineHeight(r.size))
			}
		}
	case *ast.String:
		if entering {
			r.write(string(node.Value))
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.updateFont()
	case *ast.CodeSpan:
		if entering {
			r.write(string(node.Text(r.source)))
		}
		return ast.WalkSkipChildren, nil
	case *ast.AutoLink:
		if entering {
			r.write(string(node.URL(r.source)))
		}
	case *ast.CodeBlock, *ast.FencedCodeBlock:
		if entering {
			r.codeBlock(n.Lines())
		}
		return ast.WalkSkipChildren, nil
	case *ast.ListItem:
		if entering {
			r.pdf.Ln(r.lineHeight(r.size))
			r.write("- ")
		}
	case *ast.ThematicBreak:
		if entering {
			left, _, right, _ := r.pdf.GetMargins()
			w, _ := r.pdf.GetPageSize()
			y := r.pdf.GetY()
			r.pdf.Line(left, y, w-right, y)
			r.pdf.Ln(r.lineHeight(r.size))
		}
	}
	return ast.WalkContinue, nil
}

func (r *pdfWriter) heading(n *ast.Heading, entering bool) {
	scale, ok := headingScale[n.Level]
	if !ok {
		scale = 1
	}
	if entering {
		r.pdf.Ln(r.lineHeight(r.size) / 2)
		r.pdf.SetFont(r.font, "B", r.size*scale)
		return
	}
	r.pdf.Ln(r.lineHeight(r.size * scale))
	r.pdf.Ln(r.lineHeight(r.size) / 2)
	r.updateFont()
}

func (r *pdfWriter) codeBlock(lines *text.Segments) {
	r.pdf.SetFont("Courier", "", r.size*0.9)
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		r.pdf.MultiCell(0, r.lineHeight(r.size*0.9), r.encode(strings.TrimRight(string(line.Value(r.source)), "\n")), "", "L", false)
	}
	r.updateFont()
	r.pdf.Ln(r.lineHeight(r.size) / 2)
}

func (r *pdfWriter) write(s string) {
	size, _ := r.pdf.GetFontSize()
	r.pdf.Write(r.lineHeight(size), r.encode(s))
}

// encode converts s to the single byte encoding of the core fonts.
func (r *pdfWriter) encode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if e, ok := charmap.Windows1252.EncodeRune(c); ok {
			b.WriteByte(e)
			continue
		}
		r.replaced++
		b.WriteByte('?')
	}
	return b.String()
}

// coreFont maps a system font name to a core PDF font family.
func coreFont(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "mono"), strings.Contains(lower, "courier"):
		return "Courier"
	case strings.Contains(lower, "sans"), strings.Contains(lower, "helvetica"), strings.Contains(lower, "arial"):
		return "Helvetica"
	default:
		return "Times"
	}
}

// parseFontSize reads "11pt" or "11" as points.
func parseFontSize(s string) float64 {
	m := lengthPattern.FindStringSubmatch(s)
	if m == nil || (m[2] != "" && m[2] != "pt") {
		return defaultFontSize
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return defaultFontSize
	}
	return v
}

// parseLength reads a TeX style length and returns millimetres.
func parseLength(s string, fallback float64) float64 {
	m := lengthPattern.FindStringSubmatch(s)
	if m == nil {
		return fallback
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return fallback
	}
	switch m[2] {
	case "pt":
		return v * ptToMM
	case "cm":
		return v * 10
	case "in":
		return v * 25.4
	default:
		return v
	}
}
