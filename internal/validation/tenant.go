package validation

import (
	"errors"
	"strings"
	"time"

	"github.com/mmeshcher/rentportal/internal/model"
)

const dateLayout = "2006-01-02"

var (
	// ErrTenantName возвращается для арендатора без имени.
	ErrTenantName = errors.New("tenant name is required")
	// ErrTenantProperty возвращается, если не указан объект недвижимости.
	ErrTenantProperty = errors.New("property is required")
	// ErrRentAmount возвращается для неположительной арендной платы.
	ErrRentAmount = errors.New("rent amount must be positive")
	// ErrInvalidDate возвращается для даты не в формате YYYY-MM-DD.
	ErrInvalidDate = errors.New("dates must be in YYYY-MM-DD format")
	// ErrDateOrder возвращается, если конец периода раньше начала.
	ErrDateOrder = errors.New("end date must not be before start date")
)

// ValidateNewTenant проверяет и нормализует данные нового арендатора.
// Телефон необязателен; указанный номер приводится к виду 254XXXXXXXXX.
func ValidateNewTenant(t *model.NewTenant) error {
	t.Name = strings.TrimSpace(t.Name)
	t.Email = strings.TrimSpace(t.Email)
	t.Phone = strings.TrimSpace(t.Phone)

	if t.Name == "" {
		return ErrTenantName
	}
	if err := ValidateEmail(t.Email); err != nil {
		return err
	}
	if t.Phone != "" {
		phone, err := NormalizePhone(t.Phone)
		if err != nil {
			return err
		}
		t.Phone = phone
	}
	if t.PropertyID <= 0 {
		return ErrTenantProperty
	}
	if !t.RentAmount.IsPositive() {
		return ErrRentAmount
	}
	if t.LeaseStart == "" || t.LeaseEnd == "" {
		return ErrInvalidDate
	}
	return ValidateDateRange(t.LeaseStart, t.LeaseEnd)
}

// ValidateDateRange проверяет границы периода. Пустая граница допустима.
func ValidateDateRange(start, end string) error {
	var from, to time.Time
	var err error
	if start != "" {
		if from, err = time.Parse(dateLayout, start); err != nil {
			return ErrInvalidDate
		}
	}
	if end != "" {
		if to, err = time.Parse(dateLayout, end); err != nil {
			return ErrInvalidDate
		}
	}
	if start != "" && end != "" && to.Before(from) {
		return ErrDateOrder
	}
	return nil
}
