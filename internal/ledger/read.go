package ledger

import (
	"context"
	"errors"

	"github.com/mmeshcher/denver-lending-system/internal/model"
)

// ListLenderBids возвращает активные заявки кредиторов.
func (c *Client) ListLenderBids(ctx context.Context) ([]model.Order, error) {
	var raw []lenderBidDTO
	if err := c.get(ctx, "/market/lender-bids", &raw, NotFoundIsError); err != nil {
		return nil, err
	}
	orders := make([]model.Order, 0, len(raw))
	for _, d := range raw {
		orders = append(orders, d.toOrder())
	}
	return orders, nil
}

// ListBorrowerAsks возвращает активные заявки заёмщиков.
func (c *Client) ListBorrowerAsks(ctx context.Context) ([]model.Order, error) {
	var raw []borrowerAskDTO
	if err := c.get(ctx, "/market/borrower-asks", &raw, NotFoundIsError); err != nil {
		return nil, err
	}
	orders := make([]model.Order, 0, len(raw))
	for _, d := range raw {
		orders = append(orders, d.toOrder())
	}
	return orders, nil
}

// ListLoanRequests возвращает запросы займов, видимые текущей сессии.
func (c *Client) ListLoanRequests(ctx context.Context) ([]model.LoanRequest, error) {
	var raw []loanRequestDTO
	if err := c.get(ctx, "/loan-requests", &raw, NotFoundIsError); err != nil {
		return nil, err
	}
	out := make([]model.LoanRequest, 0, len(raw))
	for _, d := range raw {
		out = append(out, d.toModel())
	}
	return out, nil
}

// ListLoanOffers возвращает оферты, видимые текущей сессии.
func (c *Client) ListLoanOffers(ctx context.Context) ([]model.LoanOffer, error) {
	var raw []loanOfferDTO
	if err := c.get(ctx, "/loan-offers", &raw, NotFoundIsError); err != nil {
		return nil, err
	}
	out := make([]model.LoanOffer, 0, len(raw))
	for _, d := range raw {
		out = append(out, d.toModel())
	}
	return out, nil
}

// ListLoans возвращает займы, видимые текущей сессии.
func (c *Client) ListLoans(ctx context.Context) ([]model.Loan, error) {
	var raw []loanDTO
	if err := c.get(ctx, "/loans", &raw, NotFoundIsError); err != nil {
		return nil, err
	}
	out := make([]model.Loan, 0, len(raw))
	for _, d := range raw {
		out = append(out, d.toModel())
	}
	return out, nil
}

// ListFundingIntents возвращает намерения фондирования.
func (c *Client) ListFundingIntents(ctx context.Context) ([]model.FundingIntent, error) {
	var raw []fundingIntentDTO
	if err := c.get(ctx, "/loans/funding-intents", &raw, NotFoundIsError); err != nil {
		return nil, err
	}
	out := make([]model.FundingIntent, 0, len(raw))
	for _, d := range raw {
		out = append(out, d.toModel())
	}
	return out, nil
}

// ListPrincipalRequests возвращает запросы на перечисление тела займа.
func (c *Client) ListPrincipalRequests(ctx context.Context) ([]model.PrincipalRequest, error) {
	var raw []principalRequestDTO
	if err := c.get(ctx, "/loans/principal-requests", &raw, NotFoundIsError); err != nil {
		return nil, err
	}
	out := make([]model.PrincipalRequest, 0, len(raw))
	for _, d := range raw {
		out = append(out, d.toModel())
	}
	return out, nil
}

// ListRepaymentRequests возвращает запросы на погашение.
func (c *Client) ListRepaymentRequests(ctx context.Context) ([]model.RepaymentRequest, error) {
	var raw []repaymentRequestDTO
	if err := c.get(ctx, "/loans/repayment-requests", &raw, NotFoundIsError); err != nil {
		return nil, err
	}
	out := make([]model.RepaymentRequest, 0, len(raw))
	for _, d := range raw {
		out = append(out, d.toModel())
	}
	return out, nil
}

// ListMatchedProposals возвращает сведённые маркет-мейкером пары заявок.
func (c *Client) ListMatchedProposals(ctx context.Context) ([]model.MatchedProposal, error) {
	var raw []matchedProposalDTO
	if err := c.get(ctx, "/market/matched-proposals", &raw, NotFoundIsError); err != nil {
		return nil, err
	}
	out := make([]model.MatchedProposal, 0, len(raw))
	for _, d := range raw {
		out = append(out, d.toModel())
	}
	return out, nil
}

// GetCreditProfile возвращает кредитный профиль текущей сессии. Политика
// задаёт судьбу 404: у нового заёмщика профиля ещё нет, и это не ошибка.
func (c *Client) GetCreditProfile(ctx context.Context, policy NotFoundPolicy) (*model.CreditProfile, error) {
	var raw creditProfileDTO
	if err := c.get(ctx, "/credit-profile", &raw, policy); err != nil {
		if errors.Is(err, errEmptyResult) {
			return nil, nil
		}
		return nil, err
	}
	return raw.toModel(), nil
}

// GetOrderBook возвращает агрегированный стакан, построенный системой учёта.
func (c *Client) GetOrderBook(ctx context.Context) (*model.OrderBook, error) {
	var book model.OrderBook
	if err := c.get(ctx, "/orderbook", &book, NotFoundIsError); err != nil {
		return nil, err
	}
	return &book, nil
}
