package helpers

import "strings"

// Slugify lowercases a label and collapses runs of non-alphanumerics into
// single hyphens, for use in object storage key prefixes.
func Slugify(label string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
