package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/denver-lending-system/internal/model"
)

// DTO-типы повторяют поля ответов системы учёта; маппинг в доменную модель
// выполняется на границе клиента, внутрь ядра сырые ответы не проникают.

type lenderBidDTO struct {
	ContractID      string           `json:"contractId"`
	Lender          string           `json:"lender"`
	Amount          decimal.Decimal  `json:"amount"`
	RemainingAmount *decimal.Decimal `json:"remainingAmount"`
	MinInterestRate decimal.Decimal  `json:"minInterestRate"`
	MaxDuration     int              `json:"maxDuration"`
	CreatedAt       time.Time        `json:"createdAt"`
}

func (d lenderBidDTO) toOrder() model.Order {
	remaining := d.Amount
	if d.RemainingAmount != nil {
		remaining = *d.RemainingAmount
	}
	return model.Order{
		ID:              d.ContractID,
		Owner:           d.Lender,
		Side:            model.SideBid,
		Amount:          d.Amount,
		RemainingAmount: remaining,
		Rate:            d.MinInterestRate,
		Duration:        d.MaxDuration,
		CreatedAt:       d.CreatedAt,
	}
}

type borrowerAskDTO struct {
	ContractID      string           `json:"contractId"`
	Borrower        string           `json:"borrower"`
	Amount          decimal.Decimal  `json:"amount"`
	RemainingAmount *decimal.Decimal `json:"remainingAmount"`
	MaxInterestRate decimal.Decimal  `json:"maxInterestRate"`
	Duration        int              `json:"duration"`
	CreatedAt       time.Time        `json:"createdAt"`
}

func (d borrowerAskDTO) toOrder() model.Order {
	remaining := d.Amount
	if d.RemainingAmount != nil {
		remaining = *d.RemainingAmount
	}
	return model.Order{
		ID:              d.ContractID,
		Owner:           d.Borrower,
		Side:            model.SideAsk,
		Amount:          d.Amount,
		RemainingAmount: remaining,
		Rate:            d.MaxInterestRate,
		Duration:        d.Duration,
		CreatedAt:       d.CreatedAt,
	}
}

type loanRequestDTO struct {
	ContractID   string          `json:"contractId"`
	Borrower     string          `json:"borrower"`
	Amount       decimal.Decimal `json:"amount"`
	InterestRate decimal.Decimal `json:"interestRate"`
	DurationDays int             `json:"durationDays"`
	Purpose      string          `json:"purpose"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func (d loanRequestDTO) toModel() model.LoanRequest {
	return model.LoanRequest{
		ID:           d.ContractID,
		Borrower:     d.Borrower,
		Amount:       d.Amount,
		InterestRate: d.InterestRate,
		DurationDays: d.DurationDays,
		Purpose:      d.Purpose,
		CreatedAt:    d.CreatedAt,
	}
}

type loanOfferDTO struct {
	ContractID    string          `json:"contractId"`
	LoanRequestID string          `json:"loanRequestId"`
	Lender        string          `json:"lender"`
	Borrower      string          `json:"borrower"`
	Amount        decimal.Decimal `json:"amount"`
	InterestRate  decimal.Decimal `json:"interestRate"`
	DurationDays  int             `json:"durationDays"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func (d loanOfferDTO) toModel() model.LoanOffer {
	return model.LoanOffer{
		ID:            d.ContractID,
		LoanRequestID: d.LoanRequestID,
		Lender:        d.Lender,
		Borrower:      d.Borrower,
		Amount:        d.Amount,
		InterestRate:  d.InterestRate,
		DurationDays:  d.DurationDays,
		CreatedAt:     d.CreatedAt,
	}
}

type loanDTO struct {
	ContractID   string          `json:"contractId"`
	Lender       string          `json:"lender"`
	Borrower     string          `json:"borrower"`
	Principal    decimal.Decimal `json:"principal"`
	InterestRate decimal.Decimal `json:"interestRate"`
	DurationDays int             `json:"durationDays"`
	DueDate      time.Time       `json:"dueDate"`
	Status       string          `json:"status"`
}

func (d loanDTO) toModel() model.Loan {
	return model.Loan{
		ID:           d.ContractID,
		Lender:       d.Lender,
		Borrower:     d.Borrower,
		Principal:    d.Principal,
		InterestRate: d.InterestRate,
		DurationDays: d.DurationDays,
		DueDate:      d.DueDate,
		Status:       model.LoanStatus(d.Status),
	}
}

type fundingIntentDTO struct {
	ContractID            string          `json:"contractId"`
	OfferID               string          `json:"offerId"`
	Lender                string          `json:"lender"`
	Borrower              string          `json:"borrower"`
	Principal             decimal.Decimal `json:"principal"`
	InterestRate          decimal.Decimal `json:"interestRate"`
	DurationDays          int             `json:"durationDays"`
	CreditProfileID       string          `json:"creditProfileId"`
	PrepareUntil          time.Time       `json:"prepareUntil"`
	SettleBefore          time.Time       `json:"settleBefore"`
	RequestedAt           time.Time       `json:"requestedAt"`
	PrepareDeadlinePassed *bool           `json:"prepareDeadlinePassed"`
	SettleDeadlinePassed  *bool           `json:"settleDeadlinePassed"`
}

func (d fundingIntentDTO) toModel() model.FundingIntent {
	return model.FundingIntent{
		ID:                    d.ContractID,
		OfferID:               d.OfferID,
		Lender:                d.Lender,
		Borrower:              d.Borrower,
		Principal:             d.Principal,
		InterestRate:          d.InterestRate,
		DurationDays:          d.DurationDays,
		CreditProfileID:       d.CreditProfileID,
		PrepareUntil:          d.PrepareUntil,
		SettleBefore:          d.SettleBefore,
		RequestedAt:           d.RequestedAt,
		PrepareDeadlinePassed: d.PrepareDeadlinePassed,
		SettleDeadlinePassed:  d.SettleDeadlinePassed,
	}
}

type principalRequestDTO struct {
	ContractID            string          `json:"contractId"`
	IntentID              string          `json:"intentId"`
	Lender                string          `json:"lender"`
	Borrower              string          `json:"borrower"`
	Principal             decimal.Decimal `json:"principal"`
	InterestRate          decimal.Decimal `json:"interestRate"`
	DurationDays          int             `json:"durationDays"`
	PrepareUntil          time.Time       `json:"prepareUntil"`
	SettleBefore          time.Time       `json:"settleBefore"`
	AllocationCid         *string         `json:"allocationCid"`
	PrepareDeadlinePassed *bool           `json:"prepareDeadlinePassed"`
	SettleDeadlinePassed  *bool           `json:"settleDeadlinePassed"`
}

func (d principalRequestDTO) toModel() model.PrincipalRequest {
	return model.PrincipalRequest{
		ID:                    d.ContractID,
		IntentID:              d.IntentID,
		Lender:                d.Lender,
		Borrower:              d.Borrower,
		Principal:             d.Principal,
		InterestRate:          d.InterestRate,
		DurationDays:          d.DurationDays,
		PrepareUntil:          d.PrepareUntil,
		SettleBefore:          d.SettleBefore,
		AllocationRef:         d.AllocationCid,
		PrepareDeadlinePassed: d.PrepareDeadlinePassed,
		SettleDeadlinePassed:  d.SettleDeadlinePassed,
	}
}

type repaymentRequestDTO struct {
	ContractID            string          `json:"contractId"`
	LoanID                string          `json:"loanId"`
	Borrower              string          `json:"borrower"`
	Lender                string          `json:"lender"`
	RepaymentAmount       decimal.Decimal `json:"repaymentAmount"`
	PrepareUntil          time.Time       `json:"prepareUntil"`
	SettleBefore          time.Time       `json:"settleBefore"`
	AllocationCid         *string         `json:"allocationCid"`
	PrepareDeadlinePassed *bool           `json:"prepareDeadlinePassed"`
	SettleDeadlinePassed  *bool           `json:"settleDeadlinePassed"`
}

func (d repaymentRequestDTO) toModel() model.RepaymentRequest {
	return model.RepaymentRequest{
		ID:                    d.ContractID,
		LoanID:                d.LoanID,
		Borrower:              d.Borrower,
		Lender:                d.Lender,
		RepaymentAmount:       d.RepaymentAmount,
		PrepareUntil:          d.PrepareUntil,
		SettleBefore:          d.SettleBefore,
		AllocationRef:         d.AllocationCid,
		PrepareDeadlinePassed: d.PrepareDeadlinePassed,
		SettleDeadlinePassed:  d.SettleDeadlinePassed,
	}
}

type matchedProposalDTO struct {
	ContractID   string          `json:"contractId"`
	Lender       string          `json:"lender"`
	Borrower     string          `json:"borrower"`
	Amount       decimal.Decimal `json:"amount"`
	InterestRate decimal.Decimal `json:"interestRate"`
	DurationDays int             `json:"durationDays"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func (d matchedProposalDTO) toModel() model.MatchedProposal {
	return model.MatchedProposal{
		ID:           d.ContractID,
		Lender:       d.Lender,
		Borrower:     d.Borrower,
		Amount:       d.Amount,
		InterestRate: d.InterestRate,
		DurationDays: d.DurationDays,
		CreatedAt:    d.CreatedAt,
	}
}

type creditProfileDTO struct {
	ContractID      string `json:"contractId"`
	Borrower        string `json:"borrower"`
	CreditScore     int    `json:"creditScore"`
	TotalLoans      int    `json:"totalLoans"`
	SuccessfulLoans int    `json:"successfulLoans"`
	DefaultedLoans  int    `json:"defaultedLoans"`
}

func (d creditProfileDTO) toModel() *model.CreditProfile {
	return &model.CreditProfile{
		ID:                   d.ContractID,
		Owner:                d.Borrower,
		Score:                d.CreditScore,
		TotalLoans:           d.TotalLoans,
		SuccessfulRepayments: d.SuccessfulLoans,
		Defaults:             d.DefaultedLoans,
	}
}
