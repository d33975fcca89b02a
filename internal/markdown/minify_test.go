package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "drops blank lines comments and trailing whitespace",
			in:   "A   \n\n\n<!-- c -->\nB\t\n",
			want: "A\nB\n",
		},
		{
			name: "thematic break inside fence is verbatim",
			in:   "```\n---\n```\n",
			want: "```\n---\n```\n",
		},
		{
			name: "thematic break outside fence is dropped",
			in:   "before\n---\nafter\n",
			want: "before\nafter\n",
		},
		{
			name: "indented thematic break is dropped",
			in:   "a\n  ----  \nb\n",
			want: "a\nb\n",
		},
		{
			name: "dashes with text are kept",
			in:   "--- note\n----x\n",
			want: "--- note\n----x\n",
		},
		{
			name: "fence contents are untouched",
			in:   "```\n  indented   \n\n<!-- not a comment here -->\n```\n",
			want: "```\n  indented   \n\n<!-- not a comment here -->\n```\n",
		},
		{
			name: "indented fence marker still fences",
			in:   "   ```\ncode   \n   ```\n",
			want: "   ```\ncode   \n   ```\n",
		},
		{
			name: "tilde fence is not closed by backticks",
			in:   "~~~\n```\ntext\n~~~\n",
			want: "~~~\n```\ntext\n~~~\n",
		},
		{
			name: "backtick fence is not closed by tildes",
			in:   "```\n~~~\ntext\n```\n",
			want: "```\n~~~\ntext\n```\n",
		},
		{
			name: "comment spanning lines",
			in:   "a<!-- start\nmiddle\nend -->b\n",
			want: "a\nb\n",
		},
		{
			name: "unterminated comment drops the rest",
			in:   "keep\n<!-- open\nlost\nalso lost\n",
			want: "keep\n",
		},
		{
			name: "two comments on one line",
			in:   "a<!-- x -->b<!-- y -->c\n",
			want: "abc\n",
		},
		{
			name: "no trailing newline in means none out",
			in:   "a\n\nb",
			want: "a\nb",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
		{
			name: "only blank lines",
			in:   "\n\n\n",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Minify(tt.in))
		})
	}
}

func TestMinifyHardBreaks(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"two spaces kept", "line  \nnext\n", "line  \nnext\n"},
		{"one space trimmed", "line \nnext\n", "line\nnext\n"},
		{"three spaces trimmed", "line   \nnext\n", "line\nnext\n"},
		{"tab trimmed", "line\t\nnext\n", "line\nnext\n"},
		{"two spaces exposed by comment strip are kept", "line  <!-- c -->\nnext\n", "line  \nnext\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Minify(tt.in))
		})
	}
}

func TestMinifyIdempotent(t *testing.T) {
	inputs := []string{
		"A   \n\n\n<!-- c -->\nB\t\n",
		"```\n---\n```\n",
		"# Title\n\ntext  \nmore\n\n---\n\n~~~\nraw   \n~~~\n",
		"a<!-- open\nstill open\nclosed -->b\n",
		"plain",
		"",
	}
	for _, in := range inputs {
		once := Minify(in)
		assert.Equal(t, once, Minify(once), "minify must be idempotent for %q", in)
	}
}

func TestStripHTMLComments(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		inComment bool
		want      string
		wantOpen  bool
	}{
		{"no comment", "plain text", false, "plain text", false},
		{"inline comment", "a<!-- c -->b", false, "ab", false},
		{"opens comment", "a<!-- c", false, "a", true},
		{"continues comment", "anything", true, "", true},
		{"closes comment", "c -->tail", true, "tail", false},
		{"closes and reopens", "x -->mid<!-- y", true, "mid", true},
		{"empty comment", "a<!---->b", false, "ab", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, open := stripHTMLComments(tt.line, tt.inComment)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOpen, open)
		})
	}
}
