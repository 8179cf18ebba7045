package hocr

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Lines parses hOCR data and returns its text lines in document order.
// Words of a line are joined with single spaces. An empty line separates
// paragraphs and pages; no empty line is emitted at the start or end.
func Lines(data []byte) ([]string, error) {
	decoded, err := decode(data)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(decoded))
	if err != nil {
		return nil, fmt.Errorf("failed to parse hOCR: %w", err)
	}

	w := &walker{}
	w.walk(doc)
	if w.pages == 0 {
		return nil, ErrNoPages
	}
	for len(w.lines) > 0 && w.lines[len(w.lines)-1] == "" {
		w.lines = w.lines[:len(w.lines)-1]
	}
	return w.lines, nil
}

type walker struct {
	lines []string
	pages int
}

func (w *walker) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		class := attr(n, "class")
		switch {
		case hasClass(class, "ocr_page"):
			w.pages++
			w.paragraphBreak()
		case hasClass(class, "ocr_par"):
			w.paragraphBreak()
		case isLine(class):
			w.lines = append(w.lines, lineText(n))
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *walker) paragraphBreak() {
	if len(w.lines) > 0 && w.lines[len(w.lines)-1] != "" {
		w.lines = append(w.lines, "")
	}
}

// lineText joins the ocrx_word descendants of a line. Lines without word
// markup fall back to their raw text content.
func lineText(n *html.Node) string {
	var words []string
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.ElementNode && hasClass(attr(node, "class"), "ocrx_word") {
			if word := strings.TrimSpace(textContent(node)); word != "" {
				words = append(words, word)
			}
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	if len(words) == 0 {
		return strings.Join(strings.Fields(textContent(n)), " ")
	}
	return strings.Join(words, " ")
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(class, want string) bool {
	for _, c := range strings.Fields(class) {
		if c == want {
			return true
		}
	}
	return false
}

func isLine(class string) bool {
	for _, c := range lineClasses {
		if hasClass(class, c) {
			return true
		}
	}
	return false
}

// decode converts data to UTF-8 using the charset declared in the document.
func decode(data []byte) ([]byte, error) {
	enc := declaredEncoding(data)
	if enc == nil {
		return data, nil
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hOCR charset: %w", err)
	}
	return decoded, nil
}

// declaredEncoding returns the encoding named by a charset= declaration
// using the WHATWG label table, or nil for UTF-8 and unknown charsets.
func declaredEncoding(data []byte) encoding.Encoding {
	const marker = "charset="
	content := string(data)
	idx := strings.Index(strings.ToLower(content), marker)
	if idx < 0 {
		return nil
	}
	rest := content[idx+len(marker):]
	fields := strings.FieldsFunc(rest, func(r rune) bool {
		return r == '"' || r == ';' || r == '\'' || r == '>' || r == ' ' || r == '/'
	})
	if len(fields) == 0 {
		return nil
	}
	enc, err := htmlindex.Get(fields[0])
	if err != nil {
		return nil
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return nil
	}
	return enc
}
