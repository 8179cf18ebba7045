// Package hocr reads the text of hOCR documents, the HTML based format
// tesseract emits with the "hocr" output config.
//
// Only the reading order of the text is kept: pages, paragraphs and lines
// are flattened into a list of lines with an empty line between paragraphs
// and pages. Bounding boxes and confidences are ignored.
//
// Recognised hOCR classes:
//
// - ocr_page: a page
// - ocr_par: a paragraph
// - ocr_line, ocr_header, ocr_caption, ocr_textfloat: a text line
// - ocrx_word: a word inside a line
package hocr

import "errors"

// ErrNoPages is returned when the document contains no ocr_page element.
var ErrNoPages = errors.New("no ocr_page elements found in hOCR data")

// lineClasses are the hOCR classes tesseract uses for a single line of text.
var lineClasses = []string{"ocr_line", "ocr_header", "ocr_caption", "ocr_textfloat"}
