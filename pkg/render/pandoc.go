package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ternarybob/arbor"
)

// DefaultPandocCommand is the pandoc executable looked up on PATH.
const DefaultPandocCommand = "pandoc"

// PandocRenderer renders through the pandoc command line tool.
type PandocRenderer struct {
	command string
	logger  arbor.ILogger
}

// NewPandocRenderer returns a renderer running command, or
// DefaultPandocCommand when command is empty.
func NewPandocRenderer(command string, logger arbor.ILogger) *PandocRenderer {
	if command == "" {
		command = DefaultPandocCommand
	}
	return &PandocRenderer{command: command, logger: logger}
}

// Args returns the pandoc arguments for req. Paper size and document class
// are fixed.
func (r *PandocRenderer) Args(req Request) []string {
	args := []string{
		"-s", "--pdf-engine=" + string(req.PDFEngine),
		"-V", "fontsize=" + req.FontSize,
		"-V", "geometry:margin=" + req.Margin,
		"-V", "papersize=" + PaperSize,
		"-V", "linestretch=" + req.LineSpacing,
		"-f", "markdown",
		"-o", req.OutputPath,
		"-V", "documentclass=" + DocumentClass,
	}
	switch {
	case req.PDFEngine.SupportsMainFont():
		args = append(args, "-V", "mainfont="+req.MainFont, "-V", "lang=en-US")
	case req.PDFEngine == PDFLaTeX:
		args = append(args, "-V", "fontenc=T1", "-V", "inputenc=utf8")
	}
	return args
}

// Render feeds req.Markup to pandoc on stdin and waits for it to exit. A
// non-zero exit becomes an ErrRender naming the document and carrying
// pandoc's stderr and stdout. Diagnostics printed on success are logged as
// warnings.
func (r *PandocRenderer) Render(ctx context.Context, req Request) error {
	args := r.Args(req)
	r.logger.Debug().
		Str("document", req.Document).
		Str("command", r.command+" "+strings.Join(args, " ")).
		Msg("Executing pandoc")

	cmd := exec.CommandContext(ctx, r.command, args...)
	cmd.Stdin = strings.NewReader(req.Markup)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: Pandoc error (%s): %v:\n%s\n\nStdout:\n%s",
			ErrRender, req.Document, err,
			strings.TrimSpace(stderr.String()),
			strings.TrimSpace(stdout.String()))
	}

	if warnings := strings.TrimSpace(stderr.String()); warnings != "" {
		r.logger.Warn().Str("document", req.Document).Str("warnings", warnings).Msg("Pandoc warnings")
	}
	r.logger.Info().Str("document", req.Document).Str("output", req.OutputPath).Msg("PDF successfully converted")
	return nil
}
