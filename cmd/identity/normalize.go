package identity

import "strings"

// NormalizeUsername trims surrounding whitespace.
// Case is preserved: the backend treats usernames as case-sensitive.
func NormalizeUsername(s string) string {
	return strings.TrimSpace(s)
}
