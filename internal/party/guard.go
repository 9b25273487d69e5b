// Package party реализует проверку полномочий действующей стороны.
package party

import (
	"fmt"

	"github.com/mmeshcher/denver-lending-system/internal/model"
)

// Role — роль, требуемая переходом воркфлоу.
type Role string

const (
	RoleLender   Role = "lender"
	RoleBorrower Role = "borrower"
)

// Authorize сверяет действующую сторону с ролью, записанной на сущности.
// Проверка выполняется до отправки команды в систему учёта, чтобы исключить
// частичные побочные эффекты.
func Authorize(acting string, role Role, lender, borrower string) error {
	var want string
	switch role {
	case RoleLender:
		want = lender
	case RoleBorrower:
		want = borrower
	default:
		return fmt.Errorf("%w: unknown role %q", model.ErrUnauthorized, role)
	}

	if acting == "" || acting != want {
		return fmt.Errorf("%w: only the %s (%s) can perform this action, acting party is %q",
			model.ErrUnauthorized, role, want, acting)
	}

	return nil
}
