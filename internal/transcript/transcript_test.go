package transcript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "# Title\n\nBody", want: "# Title\n\nBody"},
		{name: "surrounding whitespace", in: "\n\n  # Title  \n", want: "# Title"},
		{name: "markdown fence", in: "```markdown\n# Title\n```", want: "# Title"},
		{name: "md fence", in: "```md\n| a | b |\n```", want: "| a | b |"},
		{name: "bare fence kept", in: "```\ntext\n```", want: "```\ntext\n```"},
		{name: "code block page kept", in: "```go\nx := 1\n```", want: "```go\nx := 1\n```"},
		{name: "other info string kept", in: "```mdx\n<A />\n```", want: "```mdx\n<A />\n```"},
		{name: "unterminated fence kept", in: "```markdown\n# Title", want: "```markdown\n# Title"},
		{name: "inner fence kept", in: "intro\n```go\nx := 1\n```", want: "intro\n```go\nx := 1\n```"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestIsRefusal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{name: "canned refusal", in: "I am unable to read this image.", want: true},
		{name: "apology prefix", in: "I'm sorry, but I can't help with transcribing this document.", want: true},
		{name: "language model disclaimer", in: "As a large language model, I cannot provide that.", want: true},
		{name: "page content", in: "# Invoice\n\nTotal: 12.00", want: false},
		{name: "empty", in: "", want: false},
		{name: "letter opening with a phrase", in: "Dear Board,\n\nI am unable to attend the meeting on Friday.", want: false},
		{name: "short page opening with a phrase", in: "I am unable to attend.\n\nRegards,\nAnn", want: false},
		{name: "phrase mid sentence", in: "The tenant said I cannot provide a deposit.", want: false},
		{
			name: "long page opening with a phrase",
			in:   "I am unable to attend the hearing. " + strings.Repeat("lorem ipsum ", 30),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRefusal(tt.in))
		})
	}
}
