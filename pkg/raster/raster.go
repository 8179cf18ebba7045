// Package raster discovers page counts and turns PDF pages into images for
// OCR.
//
// Two rasterizers are provided:
//
// - PopplerRasterizer renders a page at the requested resolution with
// poppler's pdftoppm and returns a PNG.
// - EmbeddedRasterizer extracts the scanned image embedded in the page with
// pdfcpu and normalizes it to a grayscale PNG. It does not render vector
// content and ignores the requested resolution, which makes it suitable
// only for image-only scans.
//
// Page counts always come from pdfcpu (PDFCounter).
package raster

import (
	"context"
	"errors"
)

var (
	// ErrOpen is returned when the document cannot be opened or parsed.
	ErrOpen = errors.New("open/parse error")

	// ErrInvalidPage is returned for a page index outside the document.
	ErrInvalidPage = errors.New("invalid page index")
)

// DefaultDPI is the resolution pages are rendered at unless configured.
const DefaultDPI = 300

// PageCounter reads the number of pages in a document.
type PageCounter interface {
	PageCount(path string) (int, error)
}

// Rasterizer produces an encoded image of one page. pageIndex is zero-based.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string, pageIndex, dpi int) ([]byte, error)
}
