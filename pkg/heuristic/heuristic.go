// Package heuristic turns raw OCR text into Markdown by guessing which lines
// are headings.
//
// Format looks at one line at a time together with the line before and the
// line after it. Each non-blank line is tested against a fixed, ordered list
// of rules and the first rule that claims the line decides its output. Lines
// no rule claims, and blank lines, are copied unchanged.
//
// The rules only use typographic hints available in plain text: numbering,
// the word "chapter", capitalization, a small vocabulary of section names
// and running headers ending in a page number. Heading ranks are not checked
// for consistent nesting; a rank 3 heading may appear without a rank 2
// heading before it.
package heuristic

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var blankRun = regexp.MustCompile(`\n{3,}`)

// Format rewrites raw OCR text into Markdown. It is pure and deterministic.
// Runs of two or more blank lines in the output collapse to one.
func Format(text string) string {
	lines := splitLines(text)
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		c := lineContext{
			Line:    line,
			Text:    strings.TrimSpace(line),
			HasPrev: i > 0,
			HasNext: i+1 < len(lines),
		}
		if c.HasPrev {
			c.Prev = lines[i-1]
			c.PrevOutput = out[i-1]
		}
		if c.HasNext {
			c.Next = lines[i+1]
		}

		if c.Text == "" {
			out = append(out, line)
			continue
		}
		out = append(out, classify(c))
	}

	return blankRun.ReplaceAllString(strings.Join(out, "\n"), "\n\n")
}

// classify runs the rules in order; the first claim wins.
func classify(c lineContext) string {
	for _, r := range rules {
		if out, ok := r.apply(c); ok {
			return out
		}
	}
	return c.Line
}

// splitLines splits on the same line boundaries as tesseract output can
// contain (\n, \r\n, \r, form feed, vertical tab and the Unicode separators).
// A trailing boundary does not produce an extra empty line.
func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isLineBoundary(r) {
			i += size
			continue
		}
		lines = append(lines, s[start:i])
		i += size
		if r == '\r' && i < len(s) && s[i] == '\n' {
			i++
		}
		start = i
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func isLineBoundary(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}
