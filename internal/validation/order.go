// Package validation содержит проверки параметров заявок и займов.
package validation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/denver-lending-system/internal/model"
)

const maxDurationDays = 3650

var maxRate = decimal.NewFromInt(100)

// ValidateOrderParams проверяет сумму, ставку и срок перед отправкой команды
// в систему учёта.
func ValidateOrderParams(amount, rate decimal.Decimal, durationDays int) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %s", model.ErrValidation, amount)
	}
	if rate.Sign() <= 0 || rate.GreaterThan(maxRate) {
		return fmt.Errorf("%w: interest rate must be within (0, %s], got %s", model.ErrValidation, maxRate, rate)
	}
	if durationDays <= 0 || durationDays > maxDurationDays {
		return fmt.Errorf("%w: duration must be within [1, %d] days, got %d", model.ErrValidation, maxDurationDays, durationDays)
	}
	return nil
}
