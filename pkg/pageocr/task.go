package pageocr

import (
	"errors"
	"fmt"

	"github.com/gardar/ocrreflow/pkg/ocr"
)

// Task is one page of work. It is passed to workers by value and carries
// everything a worker needs; workers share nothing else.
type Task struct {
	DocumentPath  string
	PageIndex     int // zero-based
	Language      string
	DPI           int
	EngineCommand string // resolved once at startup
}

// PageNumber returns the 1-based page number.
func (t Task) PageNumber() int { return t.PageIndex + 1 }

// Result is the outcome of one Task. Text always holds the page content:
// the recognized text, or a placeholder naming the page and the failure
// when Err is set.
type Result struct {
	PageIndex int
	Text      string
	Err       error
}

// Failed reports whether the page degraded to a placeholder.
func (r Result) Failed() bool { return r.Err != nil }

// failed builds the placeholder result for a page.
func failed(pageIndex int, err error) Result {
	return Result{
		PageIndex: pageIndex,
		Text:      Placeholder(pageIndex, err),
		Err:       err,
	}
}

// Placeholder is the text that replaces a page whose OCR failed.
func Placeholder(pageIndex int, err error) string {
	if errors.Is(err, ocr.ErrEngineNotFound) {
		return fmt.Sprintf("[OCR engine not found for page %d]", pageIndex+1)
	}
	return fmt.Sprintf("[OCR error for page %d: %v]", pageIndex+1, err)
}
