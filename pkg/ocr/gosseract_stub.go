//go:build !gosseract

package ocr

import (
	"context"
	"errors"
	"fmt"
)

// ErrGosseractNotEnabled is returned when the gosseract engine is requested
// but was not compiled in. Rebuild with -tags gosseract (requires the
// tesseract and leptonica development libraries).
var ErrGosseractNotEnabled = errors.New("gosseract support not enabled; rebuild with -tags gosseract")

// GosseractEngine is the stub used without the gosseract build tag.
type GosseractEngine struct{}

// NewGosseractEngine always fails with ErrEngineNotFound.
func NewGosseractEngine(cfg GosseractConfig) (*GosseractEngine, error) {
	return nil, fmt.Errorf("%w: %w", ErrEngineNotFound, ErrGosseractNotEnabled)
}

func (e *GosseractEngine) Name() string { return "gosseract" }

func (e *GosseractEngine) Recognize(ctx context.Context, image []byte, language string) (string, error) {
	return "", fmt.Errorf("%w: %w", ErrEngineNotFound, ErrGosseractNotEnabled)
}

// Close is safe to call on a nil engine.
func (e *GosseractEngine) Close() error { return nil }
