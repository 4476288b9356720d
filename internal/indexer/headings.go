package indexer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Heading is a structural heading recognised in plain text.
type Heading struct {
	Section    string // normalised label such as "PHẦN 4", "II" or "4.1"
	Text       string // the full heading line
	Main       bool   // top-level part, chapter or roman numeral section
	Subsection bool   // dotted number such as 4.1 or 4.1.2
}

// wordEnd ends a section number. RE2's \b is ASCII-only, so "phần cứng" would
// otherwise read as section C.
const wordEnd = `(?:[^\p{L}\p{N}]|$)`

var (
	mainSectionLine = regexp.MustCompile(`(?i)^(phần|chương|part|chapter|mục)\s+(\d+|[ivxlc]+)` + wordEnd)
	romanLine       = regexp.MustCompile(`^([IVXLC]+)[.)]\s+\S`)
	subsectionLine  = regexp.MustCompile(`^(\d+(?:\.\d+)+)\.?\s+\S`)
	numberedLine    = regexp.MustCompile(`^(\d+)[.)]\s+\S`)
	markdownLine    = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
)

const maxHeadingRunes = 120

// DetectHeading reports whether line looks like a section heading.
func DetectHeading(line string) (Heading, bool) {
	line = strings.TrimSpace(line)
	if line == "" || utf8.RuneCountInString(line) > maxHeadingRunes {
		return Heading{}, false
	}

	if m := markdownLine.FindStringSubmatch(line); m != nil {
		text := strings.TrimSpace(m[2])
		h, ok := DetectHeading(text)
		if !ok {
			h = Heading{Section: text, Main: len(m[1]) == 1, Subsection: len(m[1]) >= 3}
		}
		h.Text = text
		return h, true
	}

	if m := mainSectionLine.FindStringSubmatch(line); m != nil {
		return Heading{
			Section: strings.ToUpper(m[1]) + " " + strings.ToUpper(m[2]),
			Text:    line,
			Main:    true,
		}, true
	}
	if m := romanLine.FindStringSubmatch(line); m != nil && utf8.RuneCountInString(line) <= 80 {
		return Heading{Section: m[1], Text: line, Main: true}, true
	}
	if m := subsectionLine.FindStringSubmatch(line); m != nil && utf8.RuneCountInString(line) <= 100 {
		return Heading{Section: m[1], Text: line, Subsection: true}, true
	}
	if m := numberedLine.FindStringSubmatch(line); m != nil && utf8.RuneCountInString(line) <= 60 && !strings.HasSuffix(line, ".") {
		return Heading{Section: m[1], Text: line}, true
	}
	if isUpperHeading(line) {
		return Heading{Section: line, Text: line}, true
	}
	return Heading{}, false
}

// isUpperHeading matches short lines written entirely in capitals.
func isUpperHeading(line string) bool {
	if utf8.RuneCountInString(line) > 60 {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 3
}
