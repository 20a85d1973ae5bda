package ocr

import (
	"regexp"
	"strings"
)

var (
	reSpaceRun = regexp.MustCompile(`[ \t\f\v]+`)
	// lines made only of underscores/dashes are table borders, not text
	reRuleLine = regexp.MustCompile(`^[_\-=]{3,}$`)
)

// CleanText tidies raw recognizer output: unified line endings, single
// spaces, no border lines, and at most one blank line between blocks.
func CleanText(raw string) string {
	if raw == "" {
		return raw
	}
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	var b strings.Builder
	blank := 0
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(reSpaceRun.ReplaceAllString(line, " "))
		if reRuleLine.MatchString(line) {
			continue
		}
		if line == "" {
			blank++
			continue
		}
		if b.Len() > 0 {
			if blank > 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		blank = 0
		b.WriteString(line)
	}
	return b.String()
}
