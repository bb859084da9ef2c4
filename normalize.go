package kaybee

import "strings"

// Normalize converts an arbitrary string into a canonical node name:
// lowercase, alphanumeric/underscore/dot runs preserved, every other run
// of characters collapsed to a single '-', and leading/trailing '-'
// trimmed. Empty results canonicalize to "item".
//
// Normalize is a pure total function: it is used everywhere a
// user-supplied identifier enters the engine, so the same input always
// yields the same name.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder

	prevSep := false

	for _, r := range s {
		if isIdentRune(r) {
			b.WriteRune(r)
			prevSep = false

			continue
		}

		if !prevSep && b.Len() > 0 {
			b.WriteByte('-')
			prevSep = true
		}
	}

	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "item"
	}

	return out
}

func isIdentRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r == '_' || r == '.':
		return true
	default:
		return false
	}
}
