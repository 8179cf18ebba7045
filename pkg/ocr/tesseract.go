package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/gardar/ocrreflow/pkg/hocr"
)

// DefaultPageSegMode is tesseract's fully automatic page segmentation.
const DefaultPageSegMode = 3

// TesseractConfig holds the options for the tesseract command line engine.
type TesseractConfig struct {
	Command     string // Path to the tesseract binary (resolved at startup)
	PageSegMode int    // --psm value
	HOCR        bool   // Request hOCR output and rebuild the text from its lines
}

// TesseractEngine runs the tesseract binary once per page.
type TesseractEngine struct {
	command string
	psm     int
	hocr    bool
}

// NewTesseractEngine checks that the command exists and returns an engine
// for it.
func NewTesseractEngine(cfg TesseractConfig) (*TesseractEngine, error) {
	command, err := ResolveCommand(cfg.Command)
	if err != nil {
		return nil, err
	}
	return &TesseractEngine{
		command: command,
		psm:     cfg.PageSegMode,
		hocr:    cfg.HOCR,
	}, nil
}

// NewTesseractFactory returns a Factory building tesseract engines from the
// command carried by each task.
func NewTesseractFactory(cfg TesseractConfig) Factory {
	return func(_ context.Context, command string) (Engine, error) {
		c := cfg
		if command != "" {
			c.Command = command
		}
		e, err := NewTesseractEngine(c)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Args returns the tesseract arguments used for one page.
func (e *TesseractEngine) Args(language string) []string {
	args := []string{"stdin", "stdout", "--psm", strconv.Itoa(e.psm)}
	if language != "" {
		args = append(args, "-l", language)
	}
	if e.hocr {
		args = append(args, "hocr")
	}
	return args
}

// Recognize pipes the image into tesseract and returns the recognized text
// in NFC form.
func (e *TesseractEngine) Recognize(ctx context.Context, image []byte, language string) (string, error) {
	cmd := exec.CommandContext(ctx, e.command, e.Args(language)...)
	cmd.Stdin = bytes.NewReader(image)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s: %v", ErrEngineNotFound, e.command, err)
		}
		return "", fmt.Errorf("%w: %v: %s", ErrRecognition, err, strings.TrimSpace(stderr.String()))
	}

	text := stdout.String()
	if e.hocr {
		lines, err := hocr.Lines(stdout.Bytes())
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrRecognition, err)
		}
		text = strings.Join(lines, "\n")
	}
	return norm.NFC.String(text), nil
}

// Close is a no-op; every page runs its own process.
func (e *TesseractEngine) Close() error { return nil }
