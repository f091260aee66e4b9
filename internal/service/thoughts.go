package service

import (
	"regexp"
	"strings"
)

var boldToken = regexp.MustCompile(`\*\*([^*]+)\*\*`)

// thoughtTracker folds incremental thought fragments into a single
// displayable status line. The backend's commentary marks section
// headings with **bold** tokens; the last complete token seen so far is
// the current heading. Because matching always runs over the whole
// accumulated buffer, a heading never regresses to an older one within
// the same generation.
type thoughtTracker struct {
	buf     strings.Builder
	current string
}

// Feed appends a fragment and reports the new heading, if it changed.
func (t *thoughtTracker) Feed(fragment string) (string, bool) {
	t.buf.WriteString(fragment)

	matches := boldToken.FindAllStringSubmatch(t.buf.String(), -1)
	if len(matches) == 0 {
		return "", false
	}

	header := strings.TrimSpace(matches[len(matches)-1][1])
	if header == "" || header == t.current {
		return "", false
	}
	t.current = header
	return header, true
}
