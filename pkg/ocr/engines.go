package ocr

import "context"

// GosseractConfig holds the options for the in-process engine.
type GosseractConfig struct {
	PageSegMode    int
	TessdataPrefix string // Overrides TESSDATA_PREFIX when set
}

// NewGosseractFactory returns a Factory for in-process engines. The command
// argument is ignored.
func NewGosseractFactory(cfg GosseractConfig) Factory {
	return func(_ context.Context, _ string) (Engine, error) {
		e, err := NewGosseractEngine(cfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

// NewDocumentAIFactory returns a Factory that opens one Document AI client
// per engine instance.
func NewDocumentAIFactory(cfg DocumentAIConfig) Factory {
	return func(ctx context.Context, _ string) (Engine, error) {
		e, err := NewDocumentAIEngine(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}
