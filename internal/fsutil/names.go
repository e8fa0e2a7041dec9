package fsutil

import "strings"

// maxNameLen bounds names derived from tree IDs.
const maxNameLen = 128

// SanitizeName turns a tree ID into something safe to embed in a file
// name. Characters other than ASCII letters, digits, dot, underscore and
// dash become a single underscore; leading and trailing dots and
// underscores are trimmed. An empty result is "unknown".
func SanitizeName(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxNameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
