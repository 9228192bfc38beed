// Package pagetext derives the heading map and line windows that
// read_page returns, operating purely on the page's plain-text content
// (no Markdown rendering or HTML parsing — out of scope per the fetcher's
// non-goals).
package pagetext

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
)

// headingPattern matches a Markdown ATX heading ("#" through "######").
// A Setext-style underline heading is intentionally not handled: the corpus
// of llms.txt/docs content this serves is ATX-only in practice.
var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// ExtractHeadings returns a plain-text map of every heading in content, one
// "<line>: <heading text>" entry per line, joined by newlines. Line numbers
// are 1-based. Returns "" when content has no headings.
func ExtractHeadings(content string) string {
	var out []string
	lineNo := 0
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			heading := strings.TrimSpace(m[2])
			out = append(out, fmt.Sprintf("%d: %s", lineNo, heading))
		}
	}
	return strings.Join(out, "\n")
}

// Lines splits content into its constituent lines, not counting a trailing
// newline as an extra empty line. Used to compute total_lines and to slice
// the requested [offset, offset+limit) window.
func Lines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" && strings.HasSuffix(content, "\n") {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Window returns the 1-based, inclusive-lower/exclusive-upper slice
// [offset, offset+limit) of lines, clamped to the available range. offset
// and limit are assumed already validated (>= 1) by the caller.
func Window(lines []string, offset, limit int) []string {
	total := len(lines)
	start := offset - 1
	if start < 0 {
		start = 0
	}
	if start >= total {
		return nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return lines[start:end]
}
