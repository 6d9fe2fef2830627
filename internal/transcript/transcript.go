// Package transcript post-processes raw model output into page Markdown.
package transcript

import "strings"

// maxRefusalLen bounds the responses considered for refusal detection. A real
// page transcription is rarely this short; a canned refusal always is.
const maxRefusalLen = 280

var refusalOpeners = []string{
	"i am unable to",
	"i'm unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"i can't help",
	"i can't assist",
	"as a large language model",
	"as an ai language model",
}

var apologies = []string{
	"i'm sorry, but ",
	"i am sorry, but ",
	"sorry, but ",
	"sorry, ",
}

var markdownFences = []string{"```markdown", "```md"}

// Clean trims surrounding whitespace and strips a wrapping ```markdown or ```md
// fence. Any other fenced block is content and is returned as is.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	for _, fence := range markdownFences {
		rest, ok := strings.CutPrefix(s, fence)
		if !ok || !strings.HasSuffix(rest, "```") {
			continue
		}
		// "```markdownfoo" is some other info string
		if rest != "" && rest[0] != '\n' && rest[0] != '\r' && rest[0] != ' ' {
			continue
		}
		return strings.TrimSpace(strings.TrimSuffix(rest, "```"))
	}
	return s
}

// IsRefusal reports whether the whole response is a short canned refusal,
// such as "I'm sorry, but I am unable to transcribe this image." Text that
// merely contains one of the phrases, or a longer page opening with one, is
// not a refusal.
func IsRefusal(md string) bool {
	s := strings.ToLower(strings.TrimSpace(md))
	if s == "" || len(s) > maxRefusalLen || strings.Contains(s, "\n\n") {
		return false
	}
	for _, apology := range apologies {
		if rest, ok := strings.CutPrefix(s, apology); ok {
			s = rest
			break
		}
	}
	for _, opener := range refusalOpeners {
		if strings.HasPrefix(s, opener) {
			return true
		}
	}
	return false
}
