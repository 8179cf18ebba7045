package raster

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultPopplerCommand is the pdftoppm executable looked up on PATH.
const DefaultPopplerCommand = "pdftoppm"

// PopplerRasterizer renders pages with pdftoppm.
type PopplerRasterizer struct {
	command string
}

// NewPopplerRasterizer returns a rasterizer running command, or
// DefaultPopplerCommand when command is empty.
func NewPopplerRasterizer(command string) *PopplerRasterizer {
	if command == "" {
		command = DefaultPopplerCommand
	}
	return &PopplerRasterizer{command: command}
}

// Args returns the pdftoppm arguments for one page. Without an output root
// pdftoppm writes the single page to stdout.
func (r *PopplerRasterizer) Args(path string, pageIndex, dpi int) []string {
	page := strconv.Itoa(pageIndex + 1)
	return []string{
		"-f", page,
		"-l", page,
		"-r", strconv.Itoa(dpi),
		"-png",
		"-singlefile",
		path,
	}
}

// Rasterize renders the page at dpi and returns the PNG bytes.
func (r *PopplerRasterizer) Rasterize(ctx context.Context, path string, pageIndex, dpi int) ([]byte, error) {
	if pageIndex < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPage, pageIndex)
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	cmd := exec.CommandContext(ctx, r.command, r.Args(path, pageIndex, dpi)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "Wrong page range") {
			return nil, fmt.Errorf("%w: page %d: %s", ErrInvalidPage, pageIndex+1, msg)
		}
		return nil, fmt.Errorf("%w: pdftoppm: %v: %s", ErrOpen, err, msg)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: pdftoppm produced no image for page %d", ErrOpen, pageIndex+1)
	}
	return stdout.Bytes(), nil
}
