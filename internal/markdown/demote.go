package markdown

import (
	"regexp"
	"strings"
)

var headingRe = regexp.MustCompile(`^(#{1,6}) `)

// DemoteHeadings lowers every ATX heading in the content by one level
// so concatenated documents stay semantically valid under a new
// top-level title. Headings are capped at level six. A line counts as
// a heading only when one to six leading hashes are followed by a
// space; anything else (seven hashes, or hashes glued to text) passes
// through unchanged. Demoted headings are wrapped in blank lines to
// preserve block separation.
func DemoteHeadings(content string) string {
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			level := len(m[1]) + 1
			if level > 6 {
				level = 6
			}
			b.WriteByte('\n')
			b.WriteString(strings.Repeat("#", level))
			b.WriteString(line[len(m[1]):])
			b.WriteByte('\n')
		} else {
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// CollapseBlankLines reduces every run of three or more consecutive
// newlines to exactly two, removing redundant blank lines.
func CollapseBlankLines(content string) string {
	for strings.Contains(content, "\n\n\n") {
		content = strings.ReplaceAll(content, "\n\n\n", "\n\n")
	}
	return content
}
