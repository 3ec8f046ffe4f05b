package chat

import "strings"

// NormalizeSessionID keeps the caller supplied id as given and falls back to
// the demo session only when it is blank.
func NormalizeSessionID(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return DefaultSessionID
	}
	return raw
}
