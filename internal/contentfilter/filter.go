// Package contentfilter removes internal reasoning blocks and tool-status
// annotations from assistant text before it is persisted, and enforces a
// maximum size bound on the result.
package contentfilter

import (
	"regexp"
	"strings"

	"github.com/lumenai/conduit/internal/errkind"
)

// ErrContentTooLong is returned when the filtered text exceeds MaxLength.
var ErrContentTooLong = errkind.ErrContentTooLong

// DefaultMaxLength is the default bound on filtered content, in codepoints.
const DefaultMaxLength = 10000

var thinkBlockPattern = regexp.MustCompile(`(?is)<think>.*?</think>`)

// toolStatusLiterals are the first tokens of bracketed tool-status
// annotations that must be stripped before persistence, matched literally
// (case-insensitively). Longer, more specific phrases are listed before
// their prefixes so the alternation prefers the longest match.
var toolStatusLiterals = []string{
	"Calling tool",
	"Executing tool(s)",
	"Tool execution failed",
	"Tool execution",
	"Tool result",
	"Tool error",
	"Tool failed",
	"Continuing conversation",
	"Using tool",
	"Task complete",
	"Task started",
	"Processing",
	"Tool thinking",
	"Tool output",
	"Result",
	"Executing",
}

func buildToolStatusPattern() *regexp.Regexp {
	alts := make([]string, 0, len(toolStatusLiterals)+1)
	for _, lit := range toolStatusLiterals {
		alts = append(alts, regexp.QuoteMeta(lit))
	}
	// "Step <n>" matches any digits after "Step".
	alts = append(alts, `Step\s+\d+`)
	return regexp.MustCompile(`(?is)\[\s*(?:` + strings.Join(alts, "|") + `)[^\]]*\]`)
}

var toolStatusPattern = buildToolStatusPattern()

var whitespaceRun = regexp.MustCompile(`\s+`)

// Filter holds the configuration for FilterForPersistence; a zero-value
// Filter uses DefaultMaxLength.
type Filter struct {
	MaxLength int
}

// New returns a Filter with the given maximum length. A non-positive
// maxLength falls back to DefaultMaxLength.
func New(maxLength int) Filter {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return Filter{MaxLength: maxLength}
}

// FilterForPersistence removes <think>...</think> blocks and bracketed
// tool-status annotations from raw, collapses whitespace, and trims the
// result. It satisfies the round-trip law FilterForPersistence(x) ==
// FilterForPersistence(FilterForPersistence(x)) for all x.
func (f Filter) FilterForPersistence(raw string) (string, error) {
	out := thinkBlockPattern.ReplaceAllString(raw, "")
	out = toolStatusPattern.ReplaceAllString(out, "")
	out = whitespaceRun.ReplaceAllString(out, " ")
	out = strings.TrimSpace(out)

	maxLen := f.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	if len([]rune(out)) > maxLen {
		return "", ErrContentTooLong
	}
	return out, nil
}

// FilterForPersistence runs the default Filter over raw. It is the
// package-level convenience used by callers that don't need a custom
// length bound.
func FilterForPersistence(raw string) (string, error) {
	return New(DefaultMaxLength).FilterForPersistence(raw)
}
