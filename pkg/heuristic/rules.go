package heuristic

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rank is the nesting depth of a heading, 1 being the highest.
type Rank int

const (
	RankChapter    Rank = 1
	RankSection    Rank = 2
	RankSubsection Rank = 3
)

// Marker returns the Markdown heading prefix for the rank.
func (r Rank) Marker() string {
	return strings.Repeat("#", int(r))
}

func heading(r Rank, text string) string {
	return r.Marker() + " " + text
}

// lineContext is everything a rule may look at.
type lineContext struct {
	Line       string // raw input line
	Text       string // Line without surrounding whitespace, never empty
	Prev       string // raw previous input line
	Next       string // raw next input line
	PrevOutput string // what was emitted for the previous line
	HasPrev    bool
	HasNext    bool
}

// rule claims a line by returning ok. The returned string is emitted as is.
type rule struct {
	name  string
	apply func(c lineContext) (string, bool)
}

// rules is evaluated top to bottom. Order matters: a line that matches
// several rules gets the first one.
var rules = []rule{
	{name: "numbered", apply: numberedHeading},
	{name: "chapter", apply: chapterHeading},
	{name: "all-caps", apply: allCapsHeading},
	{name: "section-keyword", apply: sectionKeyword},
	{name: "text-dash-number", apply: textDashNumber},
}

var (
	numberedPattern = regexp.MustCompile(`^\s*(\d+(\.\d+)*\.?)\s+(\p{Lu}[\p{L}\p{N}_\s:,()-]+)$`)
	chapterPattern  = regexp.MustCompile(`(?i)^(?:\d+\s*[-–—]?\s*)?CHAPTER\s*\d*[:\-\s]*([A-Z0-9].*)$`)
	endsInPunct     = regexp.MustCompile(`[.,;:!?]$`)
	keywordPattern  = regexp.MustCompile(`(?i)^\s*(` + strings.Join(sectionKeywords, "|") + `)[:.]?\s*$`)
	dashNumber      = regexp.MustCompile(`^\s*(\p{L}[\p{L}\p{N}_\s'-]+?)\s*[-–—]\s*\d+\s*$`)
)

var sectionKeywords = []string{
	"introduction", "conclusion", "summary", "abstract", "references",
	"appendix", "acknowledgements", "contents", "figure", "table",
}

// numberedHeading: "3.2 Background Of The Work" -> "## 3.2 Background Of The Work".
func numberedHeading(c lineContext) (string, bool) {
	m := numberedPattern.FindStringSubmatch(c.Text)
	if m == nil {
		return "", false
	}
	title := strings.TrimSpace(m[3])
	if title == "" || len(strings.Fields(title)) >= 10 {
		return "", false
	}
	return heading(RankSection, c.Text), true
}

// chapterHeading: "CHAPTER 4 - The Turning Point" -> "# THE TURNING POINT".
func chapterHeading(c lineContext) (string, bool) {
	m := chapterPattern.FindStringSubmatch(c.Text)
	if m == nil {
		return "", false
	}
	title := strings.TrimSpace(m[1])
	if title == "" {
		return "", false
	}
	return heading(RankChapter, strings.ToUpper(title)), true
}

// allCapsHeading claims short upper-case lines. A line with the right shape
// but the wrong surroundings is claimed unchanged, so later rules never see
// it.
func allCapsHeading(c lineContext) (string, bool) {
	words := len(strings.Fields(c.Text))
	if !isUpper(c.Text) || words == 0 || words > 7 || endsInPunct.MatchString(c.Text) {
		return "", false
	}
	letters := 0
	for _, r := range c.Text {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if float64(letters) <= float64(utf8.RuneCountInString(c.Text))*0.6 {
		return "", false
	}

	if prev := strings.TrimSpace(c.Prev); c.HasPrev && prev != "" {
		if !strings.ContainsAny(lastRune(prev), ".!?:") {
			return c.Line, true
		}
	}
	if next := strings.TrimSpace(c.Next); c.HasNext && next != "" {
		first, _ := utf8.DecodeRuneInString(next)
		if !unicode.IsUpper(first) {
			return c.Line, true
		}
	}
	return heading(RankSubsection, c.Text), true
}

// sectionKeyword: "INTRODUCTION:" after a blank line -> "## Introduction:".
func sectionKeyword(c lineContext) (string, bool) {
	if !keywordPattern.MatchString(c.Text) {
		return "", false
	}
	if c.HasPrev && strings.TrimSpace(c.PrevOutput) != "" && !strings.HasPrefix(strings.TrimSpace(c.PrevOutput), "#") {
		return "", false
	}
	return heading(RankSection, capitalize(c.Text)), true
}

// textDashNumber: "Running Header Text - 12" -> "### Running Header Text".
func textDashNumber(c lineContext) (string, bool) {
	m := dashNumber.FindStringSubmatch(c.Text)
	if m == nil {
		return "", false
	}
	title := strings.TrimSpace(m[1])
	if len(strings.Fields(title)) >= 8 || utf8.RuneCountInString(title) <= 5 {
		return "", false
	}
	return heading(RankSubsection, title), true
}

// isUpper reports whether s has at least one cased letter and no lower-case
// ones.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		switch {
		case unicode.IsLower(r), unicode.IsTitle(r):
			return false
		case unicode.IsUpper(r):
			cased = true
		}
	}
	return cased
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func lastRune(s string) string {
	r, _ := utf8.DecodeLastRuneInString(s)
	return string(r)
}
