package recipe

import "strings"

// NormalizeIngredient reduces a free-text ingredient line to a comparison key:
// lowercased, truncated at the first comma (quantity and prep detail live
// after it), periods stripped, whitespace trimmed. An empty input yields an
// empty key, which callers must skip.
func NormalizeIngredient(s string) string {
	s = strings.ToLower(s)
	if idx := strings.Index(s, ","); idx >= 0 {
		s = s[:idx]
	}
	s = strings.ReplaceAll(s, ".", "")
	return strings.TrimSpace(s)
}

// ComputeSubstitutions compares an edited ingredient list against the original
// list position by position and returns the sparse map of replacements, keyed
// by the normalized original line.
//
// Indices past the end of the original list are user additions, not
// substitutions, and are excluded. An edited entry that trims to empty is a
// pending deletion and is also excluded. The diff is strictly positional:
// reordering two otherwise unchanged lines reports both as substitutions.
func ComputeSubstitutions(original, edited []string) map[string]string {
	subs := make(map[string]string)

	n := len(original)
	if len(edited) < n {
		n = len(edited)
	}

	for i := 0; i < n; i++ {
		key := NormalizeIngredient(original[i])
		if key == "" {
			continue
		}

		replacement := strings.TrimSpace(edited[i])
		if replacement == "" {
			continue
		}

		if NormalizeIngredient(edited[i]) == key {
			continue
		}
		subs[key] = replacement
	}

	return subs
}
