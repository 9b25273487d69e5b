// Package command выдаёт идемпотентные идентификаторы команд системы учёта.
package command

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID — идемпотентный токен мутирующей команды. Система учёта гарантирует,
// что повторная отправка команды с тем же ID не применит эффект дважды.
type ID string

const defaultPrefix = "denver"

// Issuer генерирует уникальные идентификаторы команд.
type Issuer struct {
	prefix string
}

// NewIssuer создаёт генератор идентификаторов с указанным префиксом.
func NewIssuer(prefix string) *Issuer {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Issuer{prefix: prefix}
}

// Issue возвращает новый идентификатор команды. Он выдаётся один раз на
// логическое действие пользователя, до начала отправки, и переиспользуется
// всеми повторами этой отправки; вызов внутри цикла повторов недопустим.
func (i *Issuer) Issue() ID {
	return ID(fmt.Sprintf("%s-%d-%s", i.prefix, time.Now().UnixMilli(), uuid.NewString()))
}
