// Package input parses a raw chat line into an instruction and options.
//
// Literal spans enclosed in code fences, triple quotes, or backticks are
// lifted out before flag parsing so that flag-looking text inside them is
// never consumed as an option, then restored by position afterwards.
package input

import (
	"fmt"
	"regexp"
	"strings"
)

// Delimiter identifies the kind of span a literal was extracted from.
type Delimiter string

const (
	// DelimiterFence is a triple-backtick code fence.
	DelimiterFence Delimiter = "```"
	// DelimiterTripleQuote is a triple double-quote block.
	DelimiterTripleQuote Delimiter = `"""`
	// DelimiterBacktick is a single inline backtick span.
	DelimiterBacktick Delimiter = "`"
)

// literal records one extracted span in arrival order.
type literal struct {
	// content is the span text without its delimiters.
	content string
	// delimiter is the pair the span was enclosed in.
	delimiter Delimiter
}

// literalPattern matches the three delimiter pairs in priority order.
// Each alternative is non-greedy so content containing shorter delimiter
// substrings does not extend the span, and (?s) lets spans cross newlines.
var literalPattern = regexp.MustCompile(`(?s)` + "```(.*?)```" + `|"""(.*?)"""` + "|`(.*?)`")

// flagPattern matches --NAME with an optional =VALUE or whitespace VALUE.
var flagPattern = regexp.MustCompile(`--(\w+)(?:=(\S+)|\s+(\S+))?`)

// placeholder returns the positional token substituted for literal i.
func placeholder(index int) string {
	return fmt.Sprintf("__EXTRACTED_PART_%d__", index)
}

// Extract splits a raw input line into a cleaned instruction string and an
// option map. Quoted and fenced spans are preserved intact; flag tokens
// inside them are not treated as options. Later duplicate flags overwrite
// earlier ones. Extract never fails: unmatched delimiters are left in place
// and parsed like ordinary text.
func Extract(line string) (string, map[string]string) {
	var literals []literal

	// First pass: lift literal spans out and replace them with positional
	// placeholders so the flag grammar cannot see their contents.
	masked := literalPattern.ReplaceAllStringFunc(line, func(match string) string {
		groups := literalPattern.FindStringSubmatch(match)
		for groupIndex, delimiter := range []Delimiter{DelimiterFence, DelimiterTripleQuote, DelimiterBacktick} {
			// A matched alternative has a non-empty span including its
			// delimiters; the submatch may legitimately be empty.
			if strings.HasPrefix(match, string(delimiter)) {
				literals = append(literals, literal{content: groups[groupIndex+1], delimiter: delimiter})
				break
			}
		}
		return placeholder(len(literals) - 1)
	})

	// Second pass: collect options from the masked text.
	options := map[string]string{}
	matches := flagPattern.FindAllStringSubmatch(masked, -1)
	if len(matches) > 0 {
		for _, match := range matches {
			value := match[2]
			if value == "" {
				value = match[3]
			}
			options[match[1]] = strings.Trim(value, `"'`)
		}
		masked = strings.TrimSpace(flagPattern.ReplaceAllString(masked, ""))
	}

	// Restore literal spans by position, trimmed once at each end.
	for index, item := range literals {
		restored := string(item.delimiter) + strings.TrimSpace(item.content) + string(item.delimiter)
		masked = strings.ReplaceAll(masked, placeholder(index), restored)
	}

	return masked, options
}
