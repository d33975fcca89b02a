// Package markdown implements the text transforms applied to scraped
// pages on export: minification, heading demotion, and blank-line
// collapsing. All transforms are pure string functions.
package markdown

import (
	"regexp"
	"strings"
)

var thematicBreakRe = regexp.MustCompile(`^-{3,}$`)

// Minify compacts a Markdown document line by line: HTML comments are
// stripped (including comments spanning multiple lines), trailing
// whitespace is removed except for exactly-two-space hard breaks,
// blank lines and thematic-break lines are dropped. Lines inside
// fenced code blocks pass through verbatim. Minify is idempotent:
// Minify(Minify(x)) == Minify(x).
func Minify(content string) string {
	hadTrailingNewline := strings.HasSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))

	inFence := false
	var fenceChar byte
	inComment := false

	for _, line := range lines {
		if inFence {
			out = append(out, line)
			if lineClosesFence(line, fenceChar) {
				inFence = false
				fenceChar = 0
			}
			continue
		}

		if ch := lineStartsFence(line); ch != 0 {
			inFence = true
			fenceChar = ch
			out = append(out, line)
			continue
		}

		stripped, next := stripHTMLComments(line, inComment)
		inComment = next

		var normalized string
		if strings.HasSuffix(stripped, "  ") && !strings.HasSuffix(stripped, "   ") {
			// Exactly two trailing spaces are a Markdown hard break.
			normalized = stripped
		} else {
			normalized = strings.TrimRight(stripped, " \t")
		}

		trimmed := strings.TrimSpace(normalized)
		if trimmed == "" {
			continue
		}
		if thematicBreakRe.MatchString(trimmed) {
			continue
		}

		out = append(out, normalized)
	}

	minified := strings.Join(out, "\n")
	if hadTrailingNewline && minified != "" {
		minified += "\n"
	}
	return minified
}

// lineStartsFence returns the fence character when the line's leading
// non-space content opens a fenced code block, or 0 otherwise.
func lineStartsFence(line string) byte {
	stripped := strings.TrimLeft(line, " ")
	if strings.HasPrefix(stripped, "```") {
		return '`'
	}
	if strings.HasPrefix(stripped, "~~~") {
		return '~'
	}
	return 0
}

// lineClosesFence reports whether the line closes a fence opened with
// fenceChar. A backtick fence is only closed by backticks and a tilde
// fence only by tildes.
func lineClosesFence(line string, fenceChar byte) bool {
	stripped := strings.TrimLeft(line, " ")
	if fenceChar == '`' {
		return strings.HasPrefix(stripped, "```")
	}
	return strings.HasPrefix(stripped, "~~~")
}

// stripHTMLComments removes the parts of line that fall between <!--
// and --> markers, carrying open-comment state across lines. It
// returns the remaining text and whether a comment is still open at
// end of line.
func stripHTMLComments(line string, inComment bool) (string, bool) {
	var b strings.Builder
	i := 0
	for i < len(line) {
		if inComment {
			end := strings.Index(line[i:], "-->")
			if end == -1 {
				return b.String(), true
			}
			i += end + 3
			inComment = false
			continue
		}

		start := strings.Index(line[i:], "<!--")
		if start == -1 {
			b.WriteString(line[i:])
			break
		}
		b.WriteString(line[i : i+start])
		i += start + 4
		inComment = true
	}
	return b.String(), inComment
}
