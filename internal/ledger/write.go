package ledger

import (
	"context"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/denver-lending-system/internal/command"
	"github.com/mmeshcher/denver-lending-system/internal/model"
)

// LenderBidParams — параметры размещения заявки кредитора.
type LenderBidParams struct {
	Amount          decimal.Decimal
	MinInterestRate decimal.Decimal
	MaxDurationDays int
}

// BorrowerAskParams — параметры размещения заявки заёмщика.
type BorrowerAskParams struct {
	Amount          decimal.Decimal
	MaxInterestRate decimal.Decimal
	DurationDays    int
	CreditProfileID string
}

// LoanRequestParams — параметры запроса займа.
type LoanRequestParams struct {
	Amount       decimal.Decimal
	InterestRate decimal.Decimal
	DurationDays int
	Purpose      string
}

// LoanOfferParams — параметры оферты по запросу займа.
type LoanOfferParams struct {
	LoanRequestID string
	Amount        decimal.Decimal
	InterestRate  decimal.Decimal
	DurationDays  int
}

// AcceptOfferParams — параметры принятия оферты с токенным расчётом.
type AcceptOfferParams struct {
	CreditProfileID string
	PrepareWindow   time.Duration
	SettleWindow    time.Duration
	Description     string
}

// CreateLenderBid размещает заявку кредитора.
func (c *Client) CreateLenderBid(ctx context.Context, commandID command.ID, p LenderBidParams) (model.Order, error) {
	body := struct {
		Amount          decimal.Decimal `json:"amount"`
		MinInterestRate decimal.Decimal `json:"minInterestRate"`
		MaxDuration     int             `json:"maxDuration"`
	}{p.Amount, p.MinInterestRate, p.MaxDurationDays}

	var raw lenderBidDTO
	if err := c.post(ctx, "/market/lender-bids", commandID, body, &raw); err != nil {
		return model.Order{}, err
	}
	return raw.toOrder(), nil
}

// CreateBorrowerAsk размещает заявку заёмщика.
func (c *Client) CreateBorrowerAsk(ctx context.Context, commandID command.ID, p BorrowerAskParams) (model.Order, error) {
	body := struct {
		Amount          decimal.Decimal `json:"amount"`
		MaxInterestRate decimal.Decimal `json:"maxInterestRate"`
		Duration        int             `json:"duration"`
		CreditProfileID string          `json:"creditProfileId"`
	}{p.Amount, p.MaxInterestRate, p.DurationDays, p.CreditProfileID}

	var raw borrowerAskDTO
	if err := c.post(ctx, "/market/borrower-asks", commandID, body, &raw); err != nil {
		return model.Order{}, err
	}
	return raw.toOrder(), nil
}

// CancelLenderBid отменяет заявку кредитора.
func (c *Client) CancelLenderBid(ctx context.Context, commandID command.ID, id string) error {
	return c.delete(ctx, "/market/lender-bids/"+url.PathEscape(id), commandID)
}

// CancelBorrowerAsk отменяет заявку заёмщика.
func (c *Client) CancelBorrowerAsk(ctx context.Context, commandID command.ID, id string) error {
	return c.delete(ctx, "/market/borrower-asks/"+url.PathEscape(id), commandID)
}

// CreateLoanRequest создаёт запрос займа от имени заёмщика.
func (c *Client) CreateLoanRequest(ctx context.Context, commandID command.ID, p LoanRequestParams) (model.LoanRequest, error) {
	body := struct {
		Amount       decimal.Decimal `json:"amount"`
		InterestRate decimal.Decimal `json:"interestRate"`
		DurationDays int             `json:"durationDays"`
		Purpose      string          `json:"purpose"`
	}{p.Amount, p.InterestRate, p.DurationDays, p.Purpose}

	var raw loanRequestDTO
	if err := c.post(ctx, "/loans/request", commandID, body, &raw); err != nil {
		return model.LoanRequest{}, err
	}
	return raw.toModel(), nil
}

// CreateLoanOffer создаёт оферту кредитора по запросу займа.
func (c *Client) CreateLoanOffer(ctx context.Context, commandID command.ID, p LoanOfferParams) (model.LoanOffer, error) {
	body := struct {
		LoanRequestID string          `json:"loanRequestId"`
		Amount        decimal.Decimal `json:"amount"`
		InterestRate  decimal.Decimal `json:"interestRate"`
		DurationDays  int             `json:"durationDays"`
	}{p.LoanRequestID, p.Amount, p.InterestRate, p.DurationDays}

	var raw loanOfferDTO
	if err := c.post(ctx, "/loans/offer", commandID, body, &raw); err != nil {
		return model.LoanOffer{}, err
	}
	return raw.toModel(), nil
}

// AcceptOfferWithToken принимает оферту с токенным расчётом и возвращает
// идентификатор созданного FundingIntent.
func (c *Client) AcceptOfferWithToken(ctx context.Context, commandID command.ID, offerID string, p AcceptOfferParams) (string, error) {
	body := struct {
		CreditProfileID      string `json:"creditProfileId"`
		PrepareUntilDuration string `json:"prepareUntilDuration"`
		SettleBeforeDuration string `json:"settleBeforeDuration"`
		Description          string `json:"description,omitempty"`
	}{p.CreditProfileID, isoDuration(p.PrepareWindow), isoDuration(p.SettleWindow), p.Description}

	var res struct {
		FundingIntentID string `json:"fundingIntentId"`
	}
	if err := c.post(ctx, "/loans/offer/"+url.PathEscape(offerID)+":accept-with-token", commandID, body, &res); err != nil {
		return "", err
	}
	return res.FundingIntentID, nil
}

// FundLoan принимает оферту с немедленным фондированием, минуя токенный
// расчёт, и возвращает идентификатор созданного займа.
func (c *Client) FundLoan(ctx context.Context, commandID command.ID, offerID, creditProfileID string) (string, error) {
	body := struct {
		CreditProfileID string `json:"creditProfileId"`
	}{creditProfileID}

	var res struct {
		LoanID string `json:"loanId"`
	}
	if err := c.post(ctx, "/loans/offers/"+url.PathEscape(offerID)+"/fund", commandID, body, &res); err != nil {
		return "", err
	}
	return res.LoanID, nil
}

// RepayLoan гасит заём напрямую, минуя токенный расчёт.
func (c *Client) RepayLoan(ctx context.Context, commandID command.ID, loanID string) error {
	return c.post(ctx, "/loans/"+url.PathEscape(loanID)+"/repay", commandID, nil, nil)
}

// ConfirmFundingIntent подтверждает намерение от имени кредитора и возвращает
// идентификатор созданного PrincipalRequest.
func (c *Client) ConfirmFundingIntent(ctx context.Context, commandID command.ID, intentID string) (string, error) {
	var res struct {
		PrincipalRequestID string `json:"principalRequestId"`
	}
	if err := c.post(ctx, "/loans/funding-intent/"+url.PathEscape(intentID)+":confirm", commandID, nil, &res); err != nil {
		return "", err
	}
	return res.PrincipalRequestID, nil
}

// CompleteFunding завершает фондирование: потребляет аллокацию и возвращает
// идентификатор созданного займа.
func (c *Client) CompleteFunding(ctx context.Context, commandID command.ID, requestID, allocationRef string) (string, error) {
	body := struct {
		AllocationContractID string `json:"allocationContractId"`
	}{allocationRef}

	var res struct {
		LoanID string `json:"loanId"`
	}
	if err := c.post(ctx, "/loans/principal-requests/"+url.PathEscape(requestID)+":complete-funding", commandID, body, &res); err != nil {
		return "", err
	}
	return res.LoanID, nil
}

// RequestRepayment создаёт запрос токенного погашения от имени заёмщика.
func (c *Client) RequestRepayment(ctx context.Context, commandID command.ID, loanID string) (string, error) {
	var res struct {
		RepaymentRequestID string `json:"repaymentRequestId"`
	}
	if err := c.post(ctx, "/loans/"+url.PathEscape(loanID)+":request-repayment", commandID, nil, &res); err != nil {
		return "", err
	}
	return res.RepaymentRequestID, nil
}

// CompleteRepayment завершает погашение: потребляет аллокацию, закрывает заём
// и возвращает идентификатор обновлённого кредитного профиля.
func (c *Client) CompleteRepayment(ctx context.Context, commandID command.ID, requestID, allocationRef string) (string, error) {
	body := struct {
		AllocationContractID string `json:"allocationContractId"`
	}{allocationRef}

	var res struct {
		CreditProfileID string `json:"creditProfileId"`
	}
	if err := c.post(ctx, "/loans/repayment-requests/"+url.PathEscape(requestID)+":complete-repayment", commandID, body, &res); err != nil {
		return "", err
	}
	return res.CreditProfileID, nil
}

// MarkLoanDefault фиксирует дефолт по активному займу.
func (c *Client) MarkLoanDefault(ctx context.Context, commandID command.ID, loanID string) error {
	return c.post(ctx, "/loans/"+url.PathEscape(loanID)+":mark-default", commandID, nil, nil)
}

// WithdrawFundingIntent отзывает истёкшее намерение фондирования.
func (c *Client) WithdrawFundingIntent(ctx context.Context, commandID command.ID, intentID string) error {
	return c.delete(ctx, "/loans/funding-intents/"+url.PathEscape(intentID), commandID)
}

// AcceptMatchedProposal принимает сведённую пару заявок и возвращает
// идентификатор созданного займа.
func (c *Client) AcceptMatchedProposal(ctx context.Context, commandID command.ID, proposalID string) (string, error) {
	var res struct {
		LoanID string `json:"loanId"`
	}
	if err := c.post(ctx, "/market/matched-proposals/"+url.PathEscape(proposalID)+":accept", commandID, nil, &res); err != nil {
		return "", err
	}
	return res.LoanID, nil
}

// RejectMatchedProposal отклоняет сведённую пару заявок.
func (c *Client) RejectMatchedProposal(ctx context.Context, commandID command.ID, proposalID string) error {
	return c.post(ctx, "/market/matched-proposals/"+url.PathEscape(proposalID)+":reject", commandID, nil, nil)
}
