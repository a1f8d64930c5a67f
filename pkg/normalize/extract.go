package normalize

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \t]*\\r?\\n?(.*?)```")

// ExtractJSON pulls the JSON object out of model text. Fenced content wins
// over brace scanning; otherwise the span from the first '{' to the last '}'
// is used. A leading byte-order mark is dropped and trailing commas before
// '}' or ']' are removed.
func ExtractJSON(text string) string {
	text = strings.TrimPrefix(strings.TrimSpace(text), "\ufeff")

	candidate := text
	if m := fencePattern.FindStringSubmatch(text); m != nil && strings.Contains(m[1], "{") {
		candidate = m[1]
	}

	candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "\ufeff")
	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start >= 0 && end > start {
		candidate = candidate[start : end+1]
	}

	return removeTrailingCommas(candidate)
}

// ParseObject extracts and decodes a JSON object. Anything that does not
// decode to an object yields an empty map.
func ParseObject(text string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(ExtractJSON(text)), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

// removeTrailingCommas drops commas that are followed only by whitespace and
// a closing bracket. String literals are left untouched.
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			b.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			b.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}
