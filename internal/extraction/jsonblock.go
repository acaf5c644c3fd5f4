package extraction

import (
	"encoding/json"
	"regexp"
	"strings"
)

var codeFence = regexp.MustCompile("(?i)```(?:json)?\\n?")

// stripCodeFences removes Markdown fence markers wherever the model put them.
func stripCodeFences(raw string) string {
	return strings.TrimSpace(codeFence.ReplaceAllString(raw, ""))
}

// findObject returns the first {...} block in s that decodes as a JSON object.
// Candidates are balanced blocks in order of their opening brace; the greedy
// first-'{'-to-last-'}' span is tried last.
func findObject(s string) (map[string]any, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := matchingBrace(s, start); end > start {
			if obj, ok := decodeObject(s[start : end+1]); ok {
				return obj, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	first, last := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if first >= 0 && last > first {
		return decodeObject(s[first : last+1])
	}
	return nil, false
}

// matchingBrace returns the index of the '}' closing the '{' at start, or -1.
// Braces inside JSON string literals are ignored.
func matchingBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decodeObject(block string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(block), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
