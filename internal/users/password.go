package users

import "strings"

const specialChars = `!@#$%^&*(),.?":{}|<>`

// bcrypt rejects longer inputs
const maxPasswordBytes = 72

// ValidatePassword enforces the registration policy: at least 8 characters
// with an upper-case letter, a lower-case letter, a digit and one of
// specialChars.
func ValidatePassword(p string) error {
	if len(p) < 8 {
		return invalid("password must be at least 8 characters long")
	}
	if len(p) > maxPasswordBytes {
		return invalid("password must be at most 72 bytes long")
	}
	var upper, lower, digit, special bool
	for _, r := range p {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return invalid("password must contain at least one uppercase letter, one lowercase letter, one number, and one special character")
	}
	return nil
}
