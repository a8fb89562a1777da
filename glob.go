package cyre

import "strings"

// globMatch reports whether id matches pattern using `/`-segment glob
// semantics for group membership (spec §4.5): "*" matches exactly one
// segment, "**" matches zero or more segments, any other segment must
// match literally. This is deliberately narrower than filesystem glob
// (no "?", no character classes) since channel ids are opaque tokens.
func globMatch(pattern, id string) bool {
	return matchSegments(splitSegments(pattern), splitSegments(id))
}

func splitSegments(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "/")
}

func matchSegments(pat, seg []string) bool {
	if len(pat) == 0 {
		return len(seg) == 0
	}

	head := pat[0]

	if head == "**" {
		if matchSegments(pat[1:], seg) {
			return true
		}
		for i := 1; i <= len(seg); i++ {
			if matchSegments(pat[1:], seg[i:]) {
				return true
			}
		}
		return false
	}

	if len(seg) == 0 {
		return false
	}
	if head != "*" && head != seg[0] {
		return false
	}
	return matchSegments(pat[1:], seg[1:])
}
