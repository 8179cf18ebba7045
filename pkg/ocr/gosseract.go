//go:build gosseract

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/text/unicode/norm"
)

// GosseractEngine wraps a gosseract client. The client holds native
// tesseract state, so workers recycle the engine after a bounded number of
// pages.
type GosseractEngine struct {
	client   *gosseract.Client
	language string
}

// NewGosseractEngine creates a client configured with the page segmentation
// mode from cfg.
func NewGosseractEngine(cfg GosseractConfig) (*GosseractEngine, error) {
	client := gosseract.NewClient()
	if cfg.TessdataPrefix != "" {
		client.TessdataPrefix = cfg.TessdataPrefix
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: set page segmentation mode: %v", ErrRecognition, err)
	}
	return &GosseractEngine{client: client}, nil
}

func (e *GosseractEngine) Name() string { return "gosseract" }

// Recognize runs OCR on the encoded image. Languages use tesseract's
// "eng+tur" notation.
func (e *GosseractEngine) Recognize(ctx context.Context, image []byte, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if language != "" && language != e.language {
		if err := e.client.SetLanguage(strings.Split(language, "+")...); err != nil {
			return "", fmt.Errorf("%w: set language %q: %v", ErrRecognition, language, err)
		}
		e.language = language
	}
	if err := e.client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("%w: set image: %v", ErrRecognition, err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRecognition, err)
	}
	return norm.NFC.String(text), nil
}

// Close releases the native client.
func (e *GosseractEngine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
