package validation

import (
	"errors"
	"strings"

	"github.com/badoux/checkmail"
)

// ErrInvalidEmail возвращается для адреса с некорректным форматом.
var ErrInvalidEmail = errors.New("invalid email address")

// ValidateEmail проверяет формат адреса электронной почты.
func ValidateEmail(email string) error {
	if err := checkmail.ValidateFormat(strings.TrimSpace(email)); err != nil {
		return ErrInvalidEmail
	}
	return nil
}
