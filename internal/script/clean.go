package script

import (
	"regexp"
	"strings"
)

var (
	bracketSpan  = regexp.MustCompile(`\[[^\]]*\]`)
	parenSpan    = regexp.MustCompile(`\([^)]*\)`)
	asteriskSpan = regexp.MustCompile(`\*[^*]*\*`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Clean removes stage directions from utterance text: bracketed spans
// ("[laughs]"), parenthesised spans ("(pause)") and asterisk-delimited spans
// ("*sighs*", leftover "**" emphasis). Whitespace runs collapse to one space.
//
// Whitespace is collapsed before the spans are removed so that a direction
// broken across lines is treated the same as one on a single line. This keeps
// Clean idempotent.
func Clean(text string) string {
	cleaned := collapse(text)
	cleaned = bracketSpan.ReplaceAllString(cleaned, "")
	cleaned = parenSpan.ReplaceAllString(cleaned, "")
	cleaned = asteriskSpan.ReplaceAllString(cleaned, "")
	return collapse(cleaned)
}

func collapse(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}
