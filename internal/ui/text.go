package ui

import (
	"strings"
	"unicode/utf8"
)

// Truncation defaults for description display.
const (
	DefaultMaxLines = 15
	DefaultMaxChars = 500
)

// TruncateSimple performs end truncation with a "..." suffix. UTF-8 safe.
func TruncateSimple(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}

// TruncateLines caps text at maxLines, appending a muted hidden-line count.
func TruncateLines(text string, maxLines int) string {
	if text == "" || maxLines <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= maxLines {
		return text
	}
	hidden := len(lines) - maxLines
	return strings.Join(lines[:maxLines], "\n") + "\n" +
		RenderMuted("... ("+itoa(hidden)+" more lines)")
}

// WrapText wraps text at word boundaries to fit within maxWidth,
// preserving existing line breaks.
func WrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = 80
	}
	var result strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			result.WriteString("\n")
		}
		result.WriteString(wrapLine(line, maxWidth))
	}
	return result.String()
}

func wrapLine(line string, maxWidth int) string {
	if utf8.RuneCountInString(line) <= maxWidth {
		return line
	}
	var result strings.Builder
	currentLen := 0
	for _, word := range strings.Fields(line) {
		wordLen := utf8.RuneCountInString(word)
		switch {
		case currentLen == 0:
			result.WriteString(word)
			currentLen = wordLen
		case currentLen+1+wordLen <= maxWidth:
			result.WriteString(" ")
			result.WriteString(word)
			currentLen += 1 + wordLen
		default:
			result.WriteString("\n")
			result.WriteString(word)
			currentLen = wordLen
		}
	}
	return result.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
