// Package strings holds small text helpers shared by the gateway and the CLI.
package strings

import (
	"strings"
)

// DefaultDescriptionMaxLen is the width used for descriptions in CLI tables.
const DefaultDescriptionMaxLen = 60

// MaxErrorMessageLen bounds ServerRecord.error_message.
const MaxErrorMessageLen = 512

// minTruncateLen leaves room for one character plus "...".
const minTruncateLen = 4

// Truncate collapses all whitespace into single spaces and cuts the result
// to maxLen runes, ending with "..." when shortened. maxLen below 4 is
// treated as 4.
func Truncate(s string, maxLen int) string {
	if maxLen < minTruncateLen {
		maxLen = minTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

// ErrorMessage renders err for storage in a record. nil yields "".
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return Truncate(err.Error(), MaxErrorMessageLen)
}

// SplitList splits a comma separated query value, trimming blanks and
// dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
