package validation

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrAmountTooSmall возвращается для суммы меньше минимальной.
	ErrAmountTooSmall = errors.New("minimum amount is KES 1")
	// ErrAmountTooLarge возвращается для суммы больше максимальной.
	ErrAmountTooLarge = errors.New("maximum amount is KES 500,000")
)

var (
	MinAmount = decimal.NewFromInt(1)
	MaxAmount = decimal.NewFromInt(500000)
)

// ValidateAmount проверяет, что сумма платежа лежит в допустимых границах.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThan(MinAmount) {
		return ErrAmountTooSmall
	}
	if amount.GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}
