package session

import "fmt"

// ValidateName checks a session name. Names become directory names under
// ~/.parley/sessions, so only lowercase letters, digits, '-' and '_' are
// allowed, at most 64 characters.
func ValidateName(name string) error {
	if name == "" || len(name) > 64 {
		return fmt.Errorf("invalid session name %q: must be 1 to 64 characters", name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return fmt.Errorf("invalid session name %q: only lowercase letters, digits, '-' and '_' are allowed", name)
		}
	}
	return nil
}
