package filter

import "strings"

// match reports whether r matches actionType and, when applicable, returns
// the length of the matched portion (used for tie-breaking among same-kind
// rules).
func (r *Rule) match(actionType string) (matched bool, length int) {
	switch r.kind {
	case kindExact:
		if actionType == r.pattern {
			return true, len(r.pattern)
		}
	case kindPrefix:
		if strings.HasPrefix(actionType, r.pattern) {
			return true, len(r.pattern)
		}
	case kindGlob:
		if globs.match(r.pattern, actionType) {
			return true, len(r.pattern)
		}
	case kindRegex:
		if r.re == nil {
			return false, 0
		}
		if loc := r.re.FindStringIndex(actionType); loc != nil {
			return true, loc[1] - loc[0]
		}
	}
	return false, 0
}

// matchSegments walks pattern and subject segments in lockstep.
func matchSegments(pattern, subject []string) bool {
	for i, p := range pattern {
		switch p {
		case "**":
			if i == len(pattern)-1 {
				return true
			}
			for j := i; j <= len(subject); j++ {
				if matchSegments(pattern[i+1:], subject[j:]) {
					return true
				}
			}
			return false
		case "*":
			if i >= len(subject) {
				return false
			}
		default:
			if i >= len(subject) || subject[i] != p {
				return false
			}
		}
	}
	return len(pattern) == len(subject)
}
