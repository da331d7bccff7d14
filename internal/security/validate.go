package security

import "errors"

// ValidateAccount checks a target-account handle: 1-64 chars, letters,
// digits, dot and underscore only. Handles reach SQL filters and file
// names, so anything else is rejected up front.
func ValidateAccount(s string) error {
	if s == "" {
		return errors.New("empty account")
	}
	if len(s) > 64 {
		return errors.New("account too long")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_':
		default:
			return errors.New("account contains invalid characters")
		}
	}
	return nil
}
