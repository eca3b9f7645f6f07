// Package jsonx extracts JSON objects from model output that may wrap them
// in markdown fences or prose.
package jsonx

import "strings"

// ExtractObject returns the widest {...} span in s: everything from the
// first '{' to the last '}'. It performs no validation beyond locating the
// braces; callers unmarshal the result themselves. ok is false when either
// brace is missing or they are inverted.
func ExtractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return "", false
	}
	return s[start : end+1], true
}
