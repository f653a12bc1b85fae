package formatter

import (
	"regexp"
	"strings"
	"unicode"
)

// TextProcessor cleans page text captured from the reader
type TextProcessor struct {
	TrimLines          bool
	CollapseBlankLines bool
	StripControl       bool
}

// NewTextProcessor creates a processor with default settings
func NewTextProcessor() *TextProcessor {
	return &TextProcessor{
		TrimLines:          true,
		CollapseBlankLines: true,
		StripControl:       true,
	}
}

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

// Process applies text processing transformations
func (p *TextProcessor) Process(text string) string {
	text = NormalizeWhitespace(text)
	if p.StripControl {
		text = RemoveControlCharacters(text)
	}
	if p.TrimLines {
		text = trimLines(text)
	}
	if p.CollapseBlankLines {
		text = blankLinesRe.ReplaceAllString(text, "\n\n")
	}
	return strings.TrimSpace(text)
}

func trimLines(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}

var spacesRe = regexp.MustCompile(` +`)

// NormalizeWhitespace maps exotic spaces to plain spaces and line endings to \n
func NormalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	text = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) && r != '\n' {
			return ' '
		}
		return r
	}, text)

	return spacesRe.ReplaceAllString(text, " ")
}

// CollapseWhitespace folds every run of whitespace, newlines included, into one space
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// RemoveControlCharacters removes non-printable control characters
func RemoveControlCharacters(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r >= 32 {
			return r
		}
		return -1
	}, text)
}

// TruncateText truncates text to a maximum length with ellipsis
func TruncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}

	truncated := text[:maxLen-3]
	lastSpace := strings.LastIndex(truncated, " ")
	if lastSpace > maxLen/2 {
		truncated = truncated[:lastSpace]
	}

	return truncated + "..."
}

// CleanTitle cleans a title or author string reported by a source
func CleanTitle(title string) string {
	title = ExtractTextContent(title)
	title = CollapseWhitespace(title)
	title = RemoveControlCharacters(title)

	if len(title) > 200 {
		title = TruncateText(title, 200)
	}

	return title
}

// SplitIntoParagraphs splits text into paragraphs
func SplitIntoParagraphs(text string) []string {
	re := regexp.MustCompile(`\n\s*\n`)
	parts := re.Split(text, -1)

	paragraphs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	return paragraphs
}

// WordCount returns word count for text
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Preview returns the first n characters of text on one line
func Preview(text string, n int) string {
	text = CollapseWhitespace(text)
	if len(text) <= n {
		return text
	}
	return TruncateText(text, n)
}
