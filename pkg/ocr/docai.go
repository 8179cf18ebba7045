package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
	"google.golang.org/api/option"
)

// DocumentAIConfig identifies the Document AI OCR processor.
type DocumentAIConfig struct {
	ProjectID       string
	Location        string
	ProcessorID     string
	CredentialsFile string // Falls back to GOOGLE_APPLICATION_CREDENTIALS
}

// ProcessorName returns the processor resource name.
func (c DocumentAIConfig) ProcessorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
}

// DocumentAIEngine sends each page image to a Document AI OCR processor.
type DocumentAIEngine struct {
	client *documentai.DocumentProcessorClient
	name   string
}

// NewDocumentAIEngine opens a Document AI client against the regional
// endpoint of cfg.Location.
func NewDocumentAIEngine(ctx context.Context, cfg DocumentAIConfig) (*DocumentAIEngine, error) {
	if cfg.ProjectID == "" || cfg.Location == "" || cfg.ProcessorID == "" {
		return nil, fmt.Errorf("%w: document ai project, location and processor are required", ErrEngineNotFound)
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	opts := []option.ClientOption{option.WithEndpoint(endpoint)}

	credentials := cfg.CredentialsFile
	if credentials == "" {
		credentials = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if credentials != "" {
		opts = append(opts, option.WithCredentialsFile(credentials))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Document AI client: %v", ErrEngineNotFound, err)
	}
	return &DocumentAIEngine{client: client, name: cfg.ProcessorName()}, nil
}

func (e *DocumentAIEngine) Name() string { return "docai" }

// Recognize processes one PNG page image and returns the document text.
func (e *DocumentAIEngine) Recognize(ctx context.Context, image []byte, lang string) (string, error) {
	req := &documentaipb.ProcessRequest{
		Name: e.name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  image,
				MimeType: "image/png",
			},
		},
		SkipHumanReview: true,
	}
	if hints := LanguageHints(lang); len(hints) > 0 {
		req.ProcessOptions = &documentaipb.ProcessOptions{
			OcrConfig: &documentaipb.OcrConfig{
				Hints: &documentaipb.OcrConfig_Hints{LanguageHints: hints},
			},
		}
	}

	resp, err := e.client.ProcessDocument(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: failed to process document: %v", ErrRecognition, err)
	}
	return norm.NFC.String(resp.GetDocument().GetText()), nil
}

// Close closes the underlying gRPC connection.
func (e *DocumentAIEngine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// LanguageHints converts tesseract language codes ("eng+tur", "chi_sim")
// into BCP-47 tags ("en", "tr", "zh-Hans"). Codes that do not parse are
// dropped.
func LanguageHints(codes string) []string {
	var hints []string
	seen := make(map[string]bool)
	for _, code := range strings.Split(codes, "+") {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		base, script, _ := strings.Cut(code, "_")
		tag, err := language.Parse(base)
		if err != nil {
			continue
		}
		if s, ok := tesseractScripts[script]; ok {
			if withScript, err := language.Compose(tag, s); err == nil {
				tag = withScript
			}
		}
		hint := tag.String()
		if !seen[hint] {
			seen[hint] = true
			hints = append(hints, hint)
		}
	}
	return hints
}

var tesseractScripts = map[string]language.Script{
	"sim": language.MustParseScript("Hans"),
	"tra": language.MustParseScript("Hant"),
}
