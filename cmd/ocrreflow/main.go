// ocrreflow is a command-line tool that turns scanned PDFs into reflowed,
// searchable PDFs.
//
// Every page is rasterized and run through OCR in parallel, the recognized
// text is saved next to the output, headings are guessed from the text and
// the result is typeset again with pandoc (or the built-in renderer).
//
// Usage:
//
//	ocrreflow -out DIR [options] file.pdf [file.pdf ...]
//
// Required flags:
//
//	-out string           Output directory for <name>_ocr.txt and <name>_ocr.pdf
//
// OCR options:
//
//	-lang string          Tesseract language code(s), e.g. eng, eng+tur (default "eng+tur")
//	-dpi int              Rasterization resolution (default 300)
//	-workers int          Parallel page workers (default min(CPUs, 8))
//	-ocr-engine string    tesseract, gosseract or docai (default "tesseract")
//	-raster string        poppler or embedded (default "poppler")
//
// Render options:
//
//	-renderer string      pandoc or native (default "pandoc")
//	-pdf-engine string    xelatex, lualatex or pdflatex (default "xelatex")
//	-font-size string     Font size (default "11pt")
//	-margin string        Page margin (default "0.7in")
//	-main-font string     Main font for xelatex/lualatex (default "Liberation Serif")
//	-line-spacing string  Line stretch (default "1.0")
//
// Other options:
//
//	-config string        YAML or TOML configuration file; flags override it
//	-log-level string     trace, debug, info, warn or error (default "info")
//
// Example:
//
//	ocrreflow -out ./converted -lang eng -pdf-engine pdflatex scans/*.pdf
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"

	"github.com/gardar/ocrreflow/pkg/ocr"
	"github.com/gardar/ocrreflow/pkg/pageocr"
	"github.com/gardar/ocrreflow/pkg/pipeline"
	"github.com/gardar/ocrreflow/pkg/raster"
	"github.com/gardar/ocrreflow/pkg/render"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to a YAML or TOML configuration file")
	outDir := flag.String("out", "", "Output directory")
	lang := flag.String("lang", pipeline.DefaultLanguage, "Tesseract language code(s)")
	dpi := flag.Int("dpi", raster.DefaultDPI, "Rasterization resolution")
	workers := flag.Int("workers", pageocr.DefaultWorkers(), "Parallel page workers")
	ocrEngine := flag.String("ocr-engine", "tesseract", "OCR engine: tesseract, gosseract or docai")
	rasterMode := flag.String("raster", "poppler", "Page rasterization: poppler or embedded")
	renderer := flag.String("renderer", "pandoc", "Renderer: pandoc or native")
	pdfEngine := flag.String("pdf-engine", string(render.XeLaTeX), "Pandoc PDF engine: xelatex, lualatex or pdflatex")
	fontSize := flag.String("font-size", pipeline.DefaultFontSize, "Font size")
	margin := flag.String("margin", pipeline.DefaultMargin, "Page margin")
	mainFont := flag.String("main-font", pipeline.DefaultMainFont, "Main font (xelatex and lualatex only)")
	lineSpacing := flag.String("line-spacing", pipeline.DefaultLineSpacing, "Line spacing")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -out DIR [options] file.pdf ...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := pipeline.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	// Flags given on the command line override the configuration file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.OutputDir = *outDir
		case "lang":
			cfg.Language = *lang
		case "dpi":
			cfg.DPI = *dpi
		case "workers":
			cfg.Workers = *workers
		case "ocr-engine":
			cfg.OCR.Engine = *ocrEngine
		case "raster":
			cfg.Raster.Mode = *rasterMode
		case "renderer":
			cfg.Render.Renderer = *renderer
		case "pdf-engine":
			cfg.Render.PDFEngine = *pdfEngine
		case "font-size":
			cfg.Render.FontSize = *fontSize
		case "margin":
			cfg.Render.Margin = *margin
		case "main-font":
			cfg.Render.MainFont = *mainFont
		case "line-spacing":
			cfg.Render.LineSpacing = *lineSpacing
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	files := flag.Args()
	if len(files) == 0 {
		fmt.Println("Error: Must provide at least one PDF file")
		flag.Usage()
		os.Exit(2)
	}

	logger := newLogger(cfg.LogLevel)
	cfg.Normalize(logger)
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(2)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		fmt.Printf("Error: could not create output directory: %v\n", err)
		os.Exit(1)
	}

	banner.PrintSimple("ocrreflow", "v"+version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := build(ctx, cfg, logger, printStatus)
	report := p.Process(ctx, files)
	printReport(report)
}

// build wires the pipeline for cfg.
func build(ctx context.Context, cfg pipeline.Config, logger arbor.ILogger, status pipeline.StatusFunc) *pipeline.Pipeline {
	factory, command := engine(ctx, cfg, logger)

	var rasterizer raster.Rasterizer
	switch cfg.Raster.Mode {
	case "embedded":
		rasterizer = raster.NewEmbeddedRasterizer()
	default:
		rasterizer = raster.NewPopplerRasterizer(cfg.Raster.Command)
	}

	var r render.Renderer
	switch cfg.Render.Renderer {
	case "native":
		r = render.NewNativeRenderer(logger)
	default:
		r = render.NewPandocRenderer(cfg.Render.PandocCommand, logger)
	}

	orchestrator := pageocr.New(raster.NewPDFCounter(), rasterizer, factory, logger, pageocr.Options{
		Workers:           cfg.Workers,
		MaxTasksPerWorker: cfg.MaxTasksPerWorker,
		EngineCommand:     command,
	})
	logger.Info().
		Int("workers", orchestrator.Workers()).
		Int("max_tasks_per_worker", orchestrator.MaxTasksPerWorker()).
		Str("ocr_engine", cfg.OCR.Engine).
		Str("raster", cfg.Raster.Mode).
		Str("renderer", cfg.Render.Renderer).
		Msg("Pipeline ready")

	return pipeline.New(cfg, orchestrator, r, logger, status)
}

// engine picks the OCR factory and the command copied into every task. A
// missing engine is only a warning: every page then degrades to an
// engine-not-found placeholder and the batch still completes.
func engine(ctx context.Context, cfg pipeline.Config, logger arbor.ILogger) (ocr.Factory, string) {
	var (
		factory ocr.Factory
		command string
	)
	switch cfg.OCR.Engine {
	case "gosseract":
		factory = ocr.NewGosseractFactory(ocr.GosseractConfig{
			PageSegMode:    cfg.OCR.PageSegMode,
			TessdataPrefix: cfg.OCR.TessdataPrefix,
		})
	case "docai":
		factory = ocr.NewDocumentAIFactory(cfg.DocumentAI())
	default:
		command = cfg.OCR.Command
		if command == "" {
			command = ocr.DefaultCommand
		}
		if resolved, err := ocr.ResolveCommand(command); err != nil {
			logger.Warn().Err(err).Str("command", command).Msg("Tesseract is not installed or not on PATH, pages will not be recognized")
		} else {
			logger.Info().Str("command", resolved).Msg("Using tesseract")
			command = resolved
		}
		factory = ocr.NewTesseractFactory(ocr.TesseractConfig{
			Command:     command,
			PageSegMode: cfg.OCR.PageSegMode,
			HOCR:        cfg.OCR.HOCR,
		})
	}

	probe, err := factory(ctx, command)
	if err != nil {
		logger.Warn().Err(err).Str("ocr_engine", cfg.OCR.Engine).Msg("OCR engine unavailable")
		return factory, command
	}
	if err := probe.Close(); err != nil {
		logger.Debug().Err(err).Msg("Closing probe engine")
	}
	return factory, command
}

func printStatus(s pipeline.Status) {
	fmt.Printf("[%3.0f%%] %s\n", s.Progress*100, s.Message)
}

func printReport(report pipeline.Report) {
	fmt.Println()
	for _, d := range report.Documents {
		name := filepath.Base(d.Path)
		switch {
		case d.OK() && len(d.FailedPages) > 0:
			fmt.Printf("⚠️  %s: %s (%d pages, OCR failed on pages %v)\n", name, d.PDFPath, d.Pages, d.FailedPages)
		case d.OK():
			fmt.Printf("✅ %s: %s (%d pages)\n", name, d.PDFPath, d.Pages)
		default:
			fmt.Printf("❌ %s: %v\n", name, d.Err)
		}
		if d.TextErr != nil {
			fmt.Printf("   text output not written: %v\n", d.TextErr)
		}
	}
	fmt.Printf("\n%d of %d documents converted (run %s)\n",
		len(report.Documents)-report.Failed(), len(report.Documents), report.RunID)
}
