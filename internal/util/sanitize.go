package util

import (
	"regexp"
	"strings"
)

// RedactedMarker replaces the value of any sensitive field.
const RedactedMarker = "[REDACTED]"

var controlChars = regexp.MustCompile(`[\x00-\x1F\x7F]+`)

// SanitizeForLog removes control characters and newlines from user content before logging.
func SanitizeForLog(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return controlChars.ReplaceAllString(s, " ")
}

// RedactFields returns a deep copy of m where every key matching one of
// fields (case-insensitive) has its value replaced by RedactedMarker. Nested
// maps and maps inside slices are walked; everything else is copied as is.
func RedactFields(m map[string]any, fields []string) map[string]any {
	if m == nil {
		return nil
	}
	sensitive := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		sensitive[strings.ToLower(strings.TrimSpace(f))] = struct{}{}
	}
	return redactMap(m, sensitive)
}

func redactMap(m map[string]any, sensitive map[string]struct{}) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, ok := sensitive[strings.ToLower(k)]; ok {
			out[k] = RedactedMarker
			continue
		}
		out[k] = redactValue(v, sensitive)
	}
	return out
}

func redactValue(v any, sensitive map[string]struct{}) any {
	switch t := v.(type) {
	case map[string]any:
		return redactMap(t, sensitive)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = redactValue(item, sensitive)
		}
		return out
	default:
		return v
	}
}
