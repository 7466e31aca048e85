package chat

import (
	"regexp"
	"strings"
)

var mentionRe = regexp.MustCompile(`(^|[\s(])@([a-zA-Z0-9_\-]+)`)

// extractMentions pulls @names out of message text. Names are deduplicated
// case-insensitively so mentioning someone twice yields one entry.
func extractMentions(content string) []string {
	matches := mentionRe.FindAllStringSubmatch(content, -1)
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[2]
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	return names
}
