package export

import "strings"

const maxFilenameRunes = 100

// SanitizeFilename makes a title safe to use as a file or directory name:
// characters illegal on common filesystems become underscores, surrounding
// whitespace and dots are trimmed, length is capped, and an empty result
// falls back to a fixed placeholder.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
	}

	s := strings.TrimSpace(b.String())
	s = strings.Trim(s, ". ")

	runes := []rune(s)
	if len(runes) > maxFilenameRunes {
		s = string(runes[:maxFilenameRunes])
	}
	if s == "" {
		s = "untitled"
	}
	return s
}
