package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/gardar/ocrreflow/pkg/ocr"
	"github.com/gardar/ocrreflow/pkg/pageocr"
	"github.com/gardar/ocrreflow/pkg/raster"
	"github.com/gardar/ocrreflow/pkg/render"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultLanguage    = "eng+tur"
	DefaultFontSize    = "11pt"
	DefaultMargin      = "0.7in"
	DefaultMainFont    = "Liberation Serif"
	DefaultLineSpacing = "1.0"
)

// Languages lists the tesseract language codes offered by default. Other
// installed codes work as well.
var Languages = []string{"eng", "tur", "eng+tur", "deu", "fra", "ara", "rus", "spa", "jpn", "chi_sim"}

// Config holds every setting of a batch. It is read once when the batch
// starts; a running batch never sees later changes.
type Config struct {
	OutputDir         string       `yaml:"output_dir" toml:"output_dir" validate:"required"`
	Language          string       `yaml:"language" toml:"language" validate:"required"`
	DPI               int          `yaml:"dpi" toml:"dpi" validate:"min=72"`
	Workers           int          `yaml:"workers" toml:"workers" validate:"min=0"`
	MaxTasksPerWorker int          `yaml:"max_tasks_per_worker" toml:"max_tasks_per_worker" validate:"min=0"`
	LogLevel          string       `yaml:"log_level" toml:"log_level" validate:"oneof=trace debug info warn error"`
	OCR               OCRConfig    `yaml:"ocr" toml:"ocr"`
	Raster            RasterConfig `yaml:"raster" toml:"raster"`
	Render            RenderConfig `yaml:"render" toml:"render"`
}

// OCRConfig selects and configures the OCR engine.
type OCRConfig struct {
	Engine         string           `yaml:"engine" toml:"engine" validate:"oneof=tesseract gosseract docai"`
	Command        string           `yaml:"command" toml:"command"`
	PageSegMode    int              `yaml:"psm" toml:"psm" validate:"min=0,max=13"`
	HOCR           bool             `yaml:"hocr" toml:"hocr"`
	TessdataPrefix string           `yaml:"tessdata_prefix" toml:"tessdata_prefix"`
	DocumentAI     DocumentAIConfig `yaml:"documentai" toml:"documentai"`
}

// DocumentAIConfig mirrors ocr.DocumentAIConfig for the config file.
type DocumentAIConfig struct {
	ProjectID       string `yaml:"project_id" toml:"project_id"`
	Location        string `yaml:"location" toml:"location"`
	ProcessorID     string `yaml:"processor_id" toml:"processor_id"`
	CredentialsFile string `yaml:"credentials_file" toml:"credentials_file"`
}

// RasterConfig selects how pages become images.
type RasterConfig struct {
	Mode    string `yaml:"mode" toml:"mode" validate:"oneof=poppler embedded"`
	Command string `yaml:"command" toml:"command"`
}

// RenderConfig holds the typesetting settings copied into every
// render.Request.
type RenderConfig struct {
	Renderer      string `yaml:"renderer" toml:"renderer" validate:"oneof=pandoc native"`
	PandocCommand string `yaml:"pandoc_command" toml:"pandoc_command"`
	PDFEngine     string `yaml:"pdf_engine" toml:"pdf_engine" validate:"oneof=xelatex lualatex pdflatex"`
	FontSize      string `yaml:"font_size" toml:"font_size" validate:"required"`
	Margin        string `yaml:"margin" toml:"margin"`
	MainFont      string `yaml:"main_font" toml:"main_font"`
	LineSpacing   string `yaml:"line_spacing" toml:"line_spacing"`
}

// DefaultConfig returns a config with the defaults of the desktop tool.
func DefaultConfig() Config {
	return Config{
		Language:          DefaultLanguage,
		DPI:               raster.DefaultDPI,
		Workers:           pageocr.DefaultWorkers(),
		MaxTasksPerWorker: pageocr.DefaultMaxTasksPerWorker,
		LogLevel:          "info",
		OCR: OCRConfig{
			Engine:      "tesseract",
			PageSegMode: ocr.DefaultPageSegMode,
		},
		Raster: RasterConfig{
			Mode:    "poppler",
			Command: raster.DefaultPopplerCommand,
		},
		Render: RenderConfig{
			Renderer:      "pandoc",
			PandocCommand: render.DefaultPandocCommand,
			PDFEngine:     string(render.XeLaTeX),
			FontSize:      DefaultFontSize,
			Margin:        DefaultMargin,
			MainFont:      DefaultMainFont,
			LineSpacing:   DefaultLineSpacing,
		},
	}
}

// LoadConfig reads path over the defaults. Files ending in .toml are read as
// TOML, everything else as YAML. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Normalize replaces unusable render values with their defaults and logs
// each replacement. It never fails.
func (c *Config) Normalize(logger arbor.ILogger) {
	c.Render.Margin = strings.TrimSpace(c.Render.Margin)
	if c.Render.Margin == "" {
		c.Render.Margin = DefaultMargin
	}

	spacing := strings.TrimSpace(c.Render.LineSpacing)
	switch v, err := strconv.ParseFloat(spacing, 64); {
	case spacing == "":
		spacing = DefaultLineSpacing
	case err != nil:
		logger.Warn().Str("line_spacing", spacing).Msg("Invalid line spacing format, using default '1.0'")
		spacing = DefaultLineSpacing
	case v <= 0:
		logger.Warn().Str("line_spacing", spacing).Msg("Invalid line spacing, using default '1.0'")
		spacing = DefaultLineSpacing
	}
	c.Render.LineSpacing = spacing
}

// Validate checks the struct tags and the settings that depend on the
// selected engine.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.OCR.Engine == "docai" {
		d := c.OCR.DocumentAI
		if d.ProjectID == "" || d.Location == "" || d.ProcessorID == "" {
			return fmt.Errorf("%w: documentai engine needs project_id, location and processor_id", ErrInvalidConfig)
		}
	}
	return nil
}

// DocumentAI converts the file settings into the engine config.
func (c Config) DocumentAI() ocr.DocumentAIConfig {
	return ocr.DocumentAIConfig{
		ProjectID:       c.OCR.DocumentAI.ProjectID,
		Location:        c.OCR.DocumentAI.Location,
		ProcessorID:     c.OCR.DocumentAI.ProcessorID,
		CredentialsFile: c.OCR.DocumentAI.CredentialsFile,
	}
}

// RenderRequest builds the request for one document from the render
// settings.
func (c Config) RenderRequest(document, markup, outputPath string) render.Request {
	return render.Request{
		Document:    document,
		Markup:      markup,
		OutputPath:  outputPath,
		FontSize:    c.Render.FontSize,
		Margin:      c.Render.Margin,
		MainFont:    c.Render.MainFont,
		PDFEngine:   render.PDFEngine(c.Render.PDFEngine),
		LineSpacing: c.Render.LineSpacing,
	}
}
