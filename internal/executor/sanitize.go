package executor

import "strings"

// sanitizeText normalizes text before it is submitted as a comment or
// message. Em dashes become commas and en dashes become hyphens, then the
// punctuation artifacts the substitution can leave behind are collapsed.
func sanitizeText(s string) string {
	s = strings.ReplaceAll(s, " — ", ", ")
	s = strings.ReplaceAll(s, "—", ", ")
	s = strings.ReplaceAll(s, " – ", ", ")
	s = strings.ReplaceAll(s, "–", "-")

	for {
		collapsed := s
		collapsed = strings.ReplaceAll(collapsed, " ,", ",")
		collapsed = strings.ReplaceAll(collapsed, ",,", ",")
		collapsed = strings.ReplaceAll(collapsed, ", .", ".")
		collapsed = strings.ReplaceAll(collapsed, ",.", ".")
		collapsed = strings.ReplaceAll(collapsed, ",  ", ", ")
		if collapsed == s {
			break
		}
		s = collapsed
	}
	return strings.TrimSpace(s)
}
