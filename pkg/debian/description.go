package debian

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	leadingArticle = regexp.MustCompile(`^(?i)(a|an|the)\s+`)
	leadingKind    = regexp.MustCompile(`^(?i)(rust\s+)?(implementation|library|tool|crate)\s+(of|to|for)\s+`)
)

// SummaryDescription derives a Debian short summary and long description
// from a crate's free-form description text.
//
// Crate descriptions tend to be hand-wrapped, so single newlines are
// unwrapped while blank lines stay paragraph breaks. Boilerplate openers
// ("serde is a ...", "A library for ...") are stripped and the first
// sentence or line becomes the summary, with the remainder as the long
// description. Both results may be empty.
func SummaryDescription(name, text string) (summary, description string) {
	if text == "" {
		return "", ""
	}

	// \n\n is a real paragraph break; lone newlines are wrapping.
	d := strings.ReplaceAll(text, "\n\n", "\r")
	d = strings.ReplaceAll(d, "\n", " ")
	d = strings.ReplaceAll(d, "\r", "\n")
	d = strings.TrimSpace(d)

	selfRef := regexp.MustCompile(fmt.Sprintf(`^(?i)(%s|This(\s+\w+)?)(\s*,|\s+is|\s+provides)\s+`,
		regexp.QuoteMeta(name)))
	d = selfRef.ReplaceAllString(d, "")
	d = leadingArticle.ReplaceAllString(d, "")
	d = leadingKind.ReplaceAllString(d, "")
	d = capitalize(d)

	cut := -1
	if p := strings.Index(d, "\n"); p >= 0 {
		cut = p
	}
	if p := strings.Index(d, ". "); p >= 0 && (cut < 0 || p < cut) {
		cut = p
	}
	if cut < 0 {
		return strings.TrimRight(d, "."), ""
	}

	summary = strings.TrimRight(d[:cut], ".")
	description = strings.TrimSpace(d[cut+1:])
	return summary, description
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
