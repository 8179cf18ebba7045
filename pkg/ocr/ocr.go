// Package ocr defines the OCR engine contract used by the page workers and
// provides the engines that implement it.
//
// Engines:
//
// - TesseractEngine: runs the tesseract command line tool, feeding the page
// image on stdin. This is the default engine.
// - GosseractEngine: in-process tesseract through gosseract (cgo). Only
// available when built with the "gosseract" build tag.
// - DocumentAIEngine: Google Document AI OCR processor, one request per page.
//
// An engine instance is owned by exactly one worker at a time and is never
// shared between goroutines. Workers build engines through a Factory, passing
// the engine command resolved at startup, and close them when they are
// recycled.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

var (
	// ErrEngineNotFound is returned when the OCR engine binary or library
	// cannot be located.
	ErrEngineNotFound = errors.New("OCR engine not found")

	// ErrRecognition is returned when the engine was found but failed while
	// recognizing an image.
	ErrRecognition = errors.New("recognition error")
)

// DefaultCommand is the tesseract executable looked up on PATH.
const DefaultCommand = "tesseract"

// windowsCommand is where the tesseract installer puts the binary by default.
const windowsCommand = `C:\Program Files\Tesseract-OCR\tesseract.exe`

// Engine recognizes text in a single page image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, language string) (string, error)
	Close() error
}

// Factory builds a fresh engine. command is the engine command resolved at
// startup; engines that do not run an external binary ignore it.
type Factory func(ctx context.Context, command string) (Engine, error)

// ResolveCommand locates the tesseract executable. An empty command means
// DefaultCommand. On Windows the installer's default location is tried when
// the command is not on PATH.
func ResolveCommand(command string) (string, error) {
	if command == "" {
		command = DefaultCommand
	}
	if path, err := exec.LookPath(command); err == nil {
		return path, nil
	}
	if runtime.GOOS == "windows" {
		if _, err := os.Stat(windowsCommand); err == nil {
			return windowsCommand, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrEngineNotFound, command)
}
