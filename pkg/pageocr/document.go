package pageocr

import (
	"fmt"
	"strings"
)

// EmptyDocumentMarker is the raw text of a document without pages.
const EmptyDocumentMarker = "[Document is empty or contains no pages]"

// Document is the reassembled OCR output of one file.
type Document struct {
	Path      string
	PageCount int
	// Pages has exactly PageCount entries, ordered by page index.
	Pages []Result
}

// Text joins the page texts in page order with a blank line between pages.
func (d *Document) Text() string {
	if d.PageCount == 0 {
		return EmptyDocumentMarker + "\n\n"
	}
	parts := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		parts[i] = p.Text
	}
	return strings.Join(parts, "\n\n")
}

// FailedPages returns the 1-based numbers of the pages that degraded to a
// placeholder.
func (d *Document) FailedPages() []int {
	var pages []int
	for _, p := range d.Pages {
		if p.Failed() {
			pages = append(pages, p.PageIndex+1)
		}
	}
	return pages
}

// OpenFailureText is the one-line artifact written for a document whose
// page count could not be read.
func OpenFailureText(err error) string {
	return fmt.Sprintf("[Could not open document or read page count: %v]\n\n", err)
}
