package model

import "errors"

var (
	// ErrUnauthorized возвращается, когда действующая сторона не совпадает
	// с ролью, требуемой переходом.
	ErrUnauthorized = errors.New("party is not authorized for this action")

	// ErrDeadlinePassed возвращается при попытке перехода после истечения
	// окна подготовки или расчёта.
	ErrDeadlinePassed = errors.New("deadline passed")

	// ErrNotFound возвращается, когда целевая сущность больше не существует.
	ErrNotFound = errors.New("not found")

	// ErrConflict возвращается, когда состояние уже продвинуто другим
	// участником или аллокация уже использована.
	ErrConflict = errors.New("state conflict")

	// ErrValidation возвращается при недопустимых параметрах команды.
	ErrValidation = errors.New("validation failed")

	// ErrTransport возвращается при сетевой ошибке обращения к системе учёта.
	ErrTransport = errors.New("transport failure")
)
