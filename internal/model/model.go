// Package model содержит доменные сущности сервиса кредитования денвер.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Система учёта и дашборд обмениваются суммами и ставками как числами JSON.
	decimal.MarshalJSONWithoutQuotes = true
}

// Side указывает сторону стакана, к которой относится заявка.
type Side string

const (
	// SideBid — заявка кредитора (предложение разместить средства).
	SideBid Side = "bid"
	// SideAsk — заявка заёмщика (запрос на привлечение средств).
	SideAsk Side = "ask"
)

// OrderStatus описывает состояние исполнения заявки.
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order описывает лимитную заявку в стакане. Для заявки кредитора Rate —
// минимально приемлемая ставка, Duration — максимальный срок в днях; для
// заявки заёмщика Rate — максимально допустимая ставка, Duration —
// фиксированный срок займа.
type Order struct {
	ID              string          `json:"id"`
	Owner           string          `json:"owner"`
	Side            Side            `json:"side"`
	Amount          decimal.Decimal `json:"amount"`
	RemainingAmount decimal.Decimal `json:"remainingAmount"`
	Rate            decimal.Decimal `json:"interestRate"`
	Duration        int             `json:"duration"`
	CreatedAt       time.Time       `json:"createdAt"`
	Cancelled       bool            `json:"-"`
}

// Status выводит состояние заявки из остатка: filled при нулевом остатке,
// partial при частичном исполнении, active иначе. Отмена имеет приоритет.
func (o Order) Status() OrderStatus {
	switch {
	case o.Cancelled:
		return OrderStatusCancelled
	case o.RemainingAmount.Sign() <= 0:
		return OrderStatusFilled
	case o.RemainingAmount.LessThan(o.Amount):
		return OrderStatusPartial
	default:
		return OrderStatusActive
	}
}

// OrderBookTier — ценовой ярус стакана: все заявки с одинаковой ставкой и сроком.
type OrderBookTier struct {
	Rate        decimal.Decimal `json:"interestRate"`
	Duration    int             `json:"duration"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	OrderCount  int             `json:"orderCount"`
}

// OrderBook — агрегированный стакан. Spread отсутствует (nil), если хотя бы
// одна из сторон пуста; отсутствие данных не равно нулевому спреду.
type OrderBook struct {
	AskTiers []OrderBookTier  `json:"asks"`
	BidTiers []OrderBookTier  `json:"bids"`
	Spread   *decimal.Decimal `json:"spread"`
}

// LoanRequest — запрос заёмщика на получение займа.
type LoanRequest struct {
	ID           string          `json:"id"`
	Borrower     string          `json:"borrower"`
	Amount       decimal.Decimal `json:"amount"`
	InterestRate decimal.Decimal `json:"interestRate"`
	DurationDays int             `json:"durationDays"`
	Purpose      string          `json:"purpose"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// LoanOffer — оферта кредитора по конкретному запросу займа.
type LoanOffer struct {
	ID            string          `json:"id"`
	LoanRequestID string          `json:"loanRequestId"`
	Lender        string          `json:"lender"`
	Borrower      string          `json:"borrower"`
	Amount        decimal.Decimal `json:"amount"`
	InterestRate  decimal.Decimal `json:"interestRate"`
	DurationDays  int             `json:"durationDays"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// FundingIntent создаётся, когда заёмщик принимает оферту с токенным расчётом.
// Подтвердить намерение может только кредитор, и только до PrepareUntil.
type FundingIntent struct {
	ID              string          `json:"id"`
	OfferID         string          `json:"offerId"`
	Lender          string          `json:"lender"`
	Borrower        string          `json:"borrower"`
	Principal       decimal.Decimal `json:"principal"`
	InterestRate    decimal.Decimal `json:"interestRate"`
	DurationDays    int             `json:"durationDays"`
	CreditProfileID string          `json:"creditProfileId"`
	PrepareUntil    time.Time       `json:"prepareUntil"`
	SettleBefore    time.Time       `json:"settleBefore"`
	RequestedAt     time.Time       `json:"requestedAt"`

	// Флаги системы учёта; при отсутствии вычисляются по настенным часам.
	PrepareDeadlinePassed *bool `json:"-"`
	SettleDeadlinePassed  *bool `json:"-"`
}

// PrepareExpired сообщает, истёк ли срок подготовки. Флаг системы учёта,
// если он получен, считается авторитетным.
func (f FundingIntent) PrepareExpired(now time.Time) bool {
	return deadlinePassed(f.PrepareDeadlinePassed, f.PrepareUntil, now)
}

// SettleExpired сообщает, истёк ли срок расчёта.
func (f FundingIntent) SettleExpired(now time.Time) bool {
	return deadlinePassed(f.SettleDeadlinePassed, f.SettleBefore, now)
}

// PrincipalRequest создаётся после подтверждения FundingIntent кредитором.
// AllocationRef появляется после принятия аллокации кошельком контрагента.
type PrincipalRequest struct {
	ID           string          `json:"id"`
	IntentID     string          `json:"intentId"`
	Lender       string          `json:"lender"`
	Borrower     string          `json:"borrower"`
	Principal    decimal.Decimal `json:"principal"`
	InterestRate decimal.Decimal `json:"interestRate"`
	DurationDays int             `json:"durationDays"`
	PrepareUntil time.Time       `json:"prepareUntil"`
	SettleBefore time.Time       `json:"settleBefore"`
	AllocationRef *string        `json:"allocationRef"`

	PrepareDeadlinePassed *bool `json:"-"`
	SettleDeadlinePassed  *bool `json:"-"`
}

// PrepareExpired сообщает, истёк ли срок подготовки запроса.
func (p PrincipalRequest) PrepareExpired(now time.Time) bool {
	return deadlinePassed(p.PrepareDeadlinePassed, p.PrepareUntil, now)
}

// SettleExpired сообщает, истёк ли срок расчёта запроса.
func (p PrincipalRequest) SettleExpired(now time.Time) bool {
	return deadlinePassed(p.SettleDeadlinePassed, p.SettleBefore, now)
}

// LoanStatus описывает состояние выданного займа.
type LoanStatus string

const (
	LoanStatusActive    LoanStatus = "Active"
	LoanStatusRepaid    LoanStatus = "Repaid"
	LoanStatusDefaulted LoanStatus = "Defaulted"
)

// Loan — выданный заём, терминальный артефакт успешного фондирования.
type Loan struct {
	ID           string          `json:"id"`
	Lender       string          `json:"lender"`
	Borrower     string          `json:"borrower"`
	Principal    decimal.Decimal `json:"principal"`
	InterestRate decimal.Decimal `json:"interestRate"`
	DurationDays int             `json:"durationDays"`
	DueDate      time.Time       `json:"dueDate"`
	Status       LoanStatus      `json:"status"`
}

// RepaymentRequest — зеркальный PrincipalRequest для направления погашения.
type RepaymentRequest struct {
	ID              string          `json:"id"`
	LoanID          string          `json:"loanId"`
	Borrower        string          `json:"borrower"`
	Lender          string          `json:"lender"`
	RepaymentAmount decimal.Decimal `json:"repaymentAmount"`
	PrepareUntil    time.Time       `json:"prepareUntil"`
	SettleBefore    time.Time       `json:"settleBefore"`
	AllocationRef   *string         `json:"allocationRef"`

	PrepareDeadlinePassed *bool `json:"-"`
	SettleDeadlinePassed  *bool `json:"-"`
}

// PrepareExpired сообщает, истёк ли срок подготовки погашения.
func (r RepaymentRequest) PrepareExpired(now time.Time) bool {
	return deadlinePassed(r.PrepareDeadlinePassed, r.PrepareUntil, now)
}

// SettleExpired сообщает, истёк ли срок расчёта погашения.
func (r RepaymentRequest) SettleExpired(now time.Time) bool {
	return deadlinePassed(r.SettleDeadlinePassed, r.SettleBefore, now)
}

// MatchedProposal — пара заявок, сведённая маркет-мейкером и ожидающая
// решения сторон.
type MatchedProposal struct {
	ID           string          `json:"id"`
	Lender       string          `json:"lender"`
	Borrower     string          `json:"borrower"`
	Amount       decimal.Decimal `json:"amount"`
	InterestRate decimal.Decimal `json:"interestRate"`
	DurationDays int             `json:"durationDays"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// CreditProfile — кредитный профиль заёмщика. Изменяется только системой
// учёта как следствие завершённого погашения или зафиксированного дефолта.
type CreditProfile struct {
	ID                   string `json:"id"`
	Owner                string `json:"owner"`
	Score                int    `json:"score"`
	TotalLoans           int    `json:"totalLoans"`
	SuccessfulRepayments int    `json:"successfulRepayments"`
	Defaults             int    `json:"defaults"`
}

// deadlinePassed сравнивает дедлайн с настенными часами на момент чтения.
// Срок считается истёкшим начиная с самого момента дедлайна.
func deadlinePassed(reported *bool, deadline, now time.Time) bool {
	if reported != nil {
		return *reported
	}
	return !deadline.After(now)
}
