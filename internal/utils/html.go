package utils

import (
	"regexp"
	"strings"
)

var (
	fencedHTML = regexp.MustCompile("(?s)```(?:html)?\\s*(.*?)```")
	docSpan    = regexp.MustCompile(`(?is)<!DOCTYPE html>.*</html>`)
)

// ExtractHTML pulls a self-contained HTML document out of raw model
// output. Models tend to wrap the document in a fenced code block or
// surround it with commentary; prefer a fenced block, then the
// DOCTYPE..</html> span, then the text as-is.
func ExtractHTML(text string) string {
	if m := fencedHTML.FindStringSubmatch(text); m != nil {
		if doc := strings.TrimSpace(m[1]); doc != "" {
			return doc
		}
	}
	if m := docSpan.FindString(text); m != "" {
		return m
	}
	return strings.TrimSpace(text)
}
