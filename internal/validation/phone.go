// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidPhone возвращается, если номер телефона не похож на кенийский мобильный номер.
var ErrInvalidPhone = errors.New("enter a valid Kenyan phone number (e.g., 0712345678)")

const countryCode = "254"

var (
	localPhone         = regexp.MustCompile(`^0[71]\d{8}$`)
	internationalPhone = regexp.MustCompile(`^254[71]\d{8}$`)
	subscriberPhone    = regexp.MustCompile(`^[71]\d{8}$`)
)

// IsValidPhone проверяет, что номер записан в одном из допустимых форматов:
// 0712345678, 254712345678 или 712345678.
func IsValidPhone(phone string) bool {
	cleaned := digits(phone)
	return localPhone.MatchString(cleaned) ||
		internationalPhone.MatchString(cleaned) ||
		subscriberPhone.MatchString(cleaned)
}

// NormalizePhone приводит номер к каноническому виду 254XXXXXXXXX.
func NormalizePhone(phone string) (string, error) {
	cleaned := digits(phone)

	switch {
	case localPhone.MatchString(cleaned):
		return countryCode + cleaned[1:], nil
	case subscriberPhone.MatchString(cleaned):
		return countryCode + cleaned, nil
	case internationalPhone.MatchString(cleaned):
		return cleaned, nil
	}

	return "", ErrInvalidPhone
}

// MaskPhone скрывает абонентскую часть номера.
func MaskPhone(phone string) string {
	if len(phone) <= 6 {
		return phone
	}
	return phone[:6] + "***"
}

func digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
