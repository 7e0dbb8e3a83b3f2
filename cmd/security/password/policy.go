package password

import (
	"errors"
	"unicode/utf8"
)

// Policy and format errors. Callers compare with errors.Is.
var (
	ErrPasswordTooShort = errors.New("password: shorter than policy minimum")
	ErrPasswordTooLong  = errors.New("password: longer than policy maximum")
	ErrInvalidHash      = errors.New("password: malformed argon2id hash")
)

// Validate checks the length policy, counted in runes.
func (c Config) Validate(password string) error {
	switch n := utf8.RuneCountInString(password); {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	}
	return nil
}
