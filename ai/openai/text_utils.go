package openai

import "strings"

// cleanCompletion trims whitespace and a leading "Summary:" label from model output.
func cleanCompletion(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= len("summary:") && strings.EqualFold(s[:len("summary:")], "summary:") {
		s = strings.TrimSpace(s[len("summary:"):])
	}
	return s
}
