package raster

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PDFCounter discovers page counts with pdfcpu.
type PDFCounter struct{}

// NewPDFCounter returns a pdfcpu backed PageCounter.
func NewPDFCounter() *PDFCounter {
	return &PDFCounter{}
}

// PageCount opens the document once and returns its page count.
func (PDFCounter) PageCount(path string) (int, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return pdfCtx.PageCount, nil
}
