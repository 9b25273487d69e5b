// Package workflow реализует бизнес-логику расчётного цикла займа: от принятия
// оферты через фондирование к погашению или дефолту. Система учёта остаётся
// единственным источником истины; здесь выполняются только проверки ролей и
// сроков по последнему снимку, после чего команда с идемпотентным токеном
// отправляется в систему учёта.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/denver-lending-system/internal/command"
	"github.com/mmeshcher/denver-lending-system/internal/ledger"
	"github.com/mmeshcher/denver-lending-system/internal/model"
	"github.com/mmeshcher/denver-lending-system/internal/party"
	"github.com/mmeshcher/denver-lending-system/internal/validation"
)

const (
	defaultPrepareWindow = 2 * time.Hour
	defaultSettleWindow  = 24 * time.Hour
)

// Commander описывает мутирующие команды системы учёта, используемые сервисом.
type Commander interface {
	CreateLenderBid(ctx context.Context, commandID command.ID, p ledger.LenderBidParams) (model.Order, error)
	CreateBorrowerAsk(ctx context.Context, commandID command.ID, p ledger.BorrowerAskParams) (model.Order, error)
	CancelLenderBid(ctx context.Context, commandID command.ID, id string) error
	CancelBorrowerAsk(ctx context.Context, commandID command.ID, id string) error
	CreateLoanRequest(ctx context.Context, commandID command.ID, p ledger.LoanRequestParams) (model.LoanRequest, error)
	CreateLoanOffer(ctx context.Context, commandID command.ID, p ledger.LoanOfferParams) (model.LoanOffer, error)
	AcceptOfferWithToken(ctx context.Context, commandID command.ID, offerID string, p ledger.AcceptOfferParams) (string, error)
	FundLoan(ctx context.Context, commandID command.ID, offerID, creditProfileID string) (string, error)
	RepayLoan(ctx context.Context, commandID command.ID, loanID string) error
	ConfirmFundingIntent(ctx context.Context, commandID command.ID, intentID string) (string, error)
	CompleteFunding(ctx context.Context, commandID command.ID, requestID, allocationRef string) (string, error)
	RequestRepayment(ctx context.Context, commandID command.ID, loanID string) (string, error)
	CompleteRepayment(ctx context.Context, commandID command.ID, requestID, allocationRef string) (string, error)
	MarkLoanDefault(ctx context.Context, commandID command.ID, loanID string) error
	WithdrawFundingIntent(ctx context.Context, commandID command.ID, intentID string) error
	AcceptMatchedProposal(ctx context.Context, commandID command.ID, proposalID string) (string, error)
	RejectMatchedProposal(ctx context.Context, commandID command.ID, proposalID string) error
}

// Store описывает доступ к последнему снимку состояния системы учёта.
// Проверки ролей и сроков выполняются по снимку до отправки команды, но
// финальное слово всегда за системой учёта.
type Store interface {
	LenderBid(id string) (model.Order, bool)
	BorrowerAsk(id string) (model.Order, bool)
	LoanRequest(id string) (model.LoanRequest, bool)
	LoanOffer(id string) (model.LoanOffer, bool)
	FundingIntent(id string) (model.FundingIntent, bool)
	PrincipalRequest(id string) (model.PrincipalRequest, bool)
	Loan(id string) (model.Loan, bool)
	RepaymentRequest(id string) (model.RepaymentRequest, bool)
	MatchedProposal(id string) (model.MatchedProposal, bool)
	CreditProfile() *model.CreditProfile
}

// Refresher запрашивает внеочередное обновление снимка после успешной команды.
type Refresher interface {
	TriggerRefresh()
}

// Service содержит бизнес-логику расчётного цикла.
type Service struct {
	ledger        Commander
	store         Store
	issuer        *command.Issuer
	refresher     Refresher
	prepareWindow time.Duration
	settleWindow  time.Duration
	now           func() time.Time
}

// NewService создаёт сервис расчётного цикла. Нулевые окна заменяются
// значениями по умолчанию: 2 часа на подготовку и 24 часа на расчёт.
func NewService(ledgerClient Commander, store Store, issuer *command.Issuer, refresher Refresher, prepareWindow, settleWindow time.Duration) *Service {
	if prepareWindow <= 0 {
		prepareWindow = defaultPrepareWindow
	}
	if settleWindow <= 0 {
		settleWindow = defaultSettleWindow
	}
	return &Service{
		ledger:        ledgerClient,
		store:         store,
		issuer:        issuer,
		refresher:     refresher,
		prepareWindow: prepareWindow,
		settleWindow:  settleWindow,
		now:           time.Now,
	}
}

func (s *Service) triggerRefresh() {
	if s.refresher != nil {
		s.refresher.TriggerRefresh()
	}
}

// PlaceBid размещает заявку кредитора в стакане.
func (s *Service) PlaceBid(ctx context.Context, acting string, p ledger.LenderBidParams) (model.Order, error) {
	if err := validation.ValidateOrderParams(p.Amount, p.MinInterestRate, p.MaxDurationDays); err != nil {
		return model.Order{}, err
	}

	order, err := s.ledger.CreateLenderBid(ctx, s.issuer.Issue(), p)
	if err != nil {
		return model.Order{}, fmt.Errorf("place lender bid: %w", err)
	}
	s.triggerRefresh()
	return order, nil
}

// PlaceAsk размещает заявку заёмщика в стакане.
func (s *Service) PlaceAsk(ctx context.Context, acting string, p ledger.BorrowerAskParams) (model.Order, error) {
	if err := validation.ValidateOrderParams(p.Amount, p.MaxInterestRate, p.DurationDays); err != nil {
		return model.Order{}, err
	}

	order, err := s.ledger.CreateBorrowerAsk(ctx, s.issuer.Issue(), p)
	if err != nil {
		return model.Order{}, fmt.Errorf("place borrower ask: %w", err)
	}
	s.triggerRefresh()
	return order, nil
}

// CancelBid отменяет заявку кредитора. Отменить заявку может только её владелец.
func (s *Service) CancelBid(ctx context.Context, acting, bidID string) error {
	bid, ok := s.store.LenderBid(bidID)
	if !ok {
		return fmt.Errorf("%w: lender bid %s", model.ErrNotFound, bidID)
	}
	if err := party.Authorize(acting, party.RoleLender, bid.Owner, ""); err != nil {
		return err
	}

	if err := s.ledger.CancelLenderBid(ctx, s.issuer.Issue(), bidID); err != nil {
		return fmt.Errorf("cancel lender bid: %w", err)
	}
	s.triggerRefresh()
	return nil
}

// CancelAsk отменяет заявку заёмщика. Отменить заявку может только её владелец.
func (s *Service) CancelAsk(ctx context.Context, acting, askID string) error {
	ask, ok := s.store.BorrowerAsk(askID)
	if !ok {
		return fmt.Errorf("%w: borrower ask %s", model.ErrNotFound, askID)
	}
	if err := party.Authorize(acting, party.RoleBorrower, "", ask.Owner); err != nil {
		return err
	}

	if err := s.ledger.CancelBorrowerAsk(ctx, s.issuer.Issue(), askID); err != nil {
		return fmt.Errorf("cancel borrower ask: %w", err)
	}
	s.triggerRefresh()
	return nil
}

// CreateLoanRequest создаёт запрос займа от имени заёмщика.
func (s *Service) CreateLoanRequest(ctx context.Context, acting string, p ledger.LoanRequestParams) (model.LoanRequest, error) {
	if err := validation.ValidateOrderParams(p.Amount, p.InterestRate, p.DurationDays); err != nil {
		return model.LoanRequest{}, err
	}

	req, err := s.ledger.CreateLoanRequest(ctx, s.issuer.Issue(), p)
	if err != nil {
		return model.LoanRequest{}, fmt.Errorf("create loan request: %w", err)
	}
	s.triggerRefresh()
	return req, nil
}

// CreateLoanOffer создаёт оферту кредитора по запросу займа. Кредитор не может
// сделать оферту по собственному запросу.
func (s *Service) CreateLoanOffer(ctx context.Context, acting string, p ledger.LoanOfferParams) (model.LoanOffer, error) {
	if p.LoanRequestID == "" {
		return model.LoanOffer{}, fmt.Errorf("%w: loan request id is required", model.ErrValidation)
	}
	if err := validation.ValidateOrderParams(p.Amount, p.InterestRate, p.DurationDays); err != nil {
		return model.LoanOffer{}, err
	}
	if req, ok := s.store.LoanRequest(p.LoanRequestID); ok && req.Borrower == acting {
		return model.LoanOffer{}, fmt.Errorf("%w: cannot offer on own loan request", model.ErrValidation)
	}

	offer, err := s.ledger.CreateLoanOffer(ctx, s.issuer.Issue(), p)
	if err != nil {
		return model.LoanOffer{}, fmt.Errorf("create loan offer: %w", err)
	}
	s.triggerRefresh()
	return offer, nil
}

// AcceptOffer принимает оферту с токенным расчётом от имени заёмщика и
// возвращает идентификатор созданного намерения фондирования.
func (s *Service) AcceptOffer(ctx context.Context, acting, offerID, creditProfileID, description string) (string, error) {
	offer, ok := s.store.LoanOffer(offerID)
	if !ok {
		return "", fmt.Errorf("%w: loan offer %s", model.ErrNotFound, offerID)
	}
	if err := party.Authorize(acting, party.RoleBorrower, offer.Lender, offer.Borrower); err != nil {
		return "", err
	}

	profile := s.store.CreditProfile()
	if creditProfileID == "" {
		if profile == nil {
			return "", fmt.Errorf("%w: credit profile id is required", model.ErrValidation)
		}
		creditProfileID = profile.ID
	} else if profile != nil && profile.ID == creditProfileID && profile.Owner != acting {
		return "", fmt.Errorf("%w: credit profile %s belongs to another party", model.ErrUnauthorized, creditProfileID)
	}

	intentID, err := s.ledger.AcceptOfferWithToken(ctx, s.issuer.Issue(), offerID, ledger.AcceptOfferParams{
		CreditProfileID: creditProfileID,
		PrepareWindow:   s.prepareWindow,
		SettleWindow:    s.settleWindow,
		Description:     description,
	})
	if err != nil {
		return "", fmt.Errorf("accept loan offer: %w", err)
	}
	s.triggerRefresh()
	return intentID, nil
}

// FundLoan принимает оферту с немедленным фондированием от имени заёмщика:
// заём создаётся сразу, без намерения и окон подготовки и расчёта.
func (s *Service) FundLoan(ctx context.Context, acting, offerID, creditProfileID string) (string, error) {
	offer, ok := s.store.LoanOffer(offerID)
	if !ok {
		return "", fmt.Errorf("%w: loan offer %s", model.ErrNotFound, offerID)
	}
	if err := party.Authorize(acting, party.RoleBorrower, offer.Lender, offer.Borrower); err != nil {
		return "", err
	}

	profile := s.store.CreditProfile()
	if creditProfileID == "" {
		if profile == nil {
			return "", fmt.Errorf("%w: credit profile id is required", model.ErrValidation)
		}
		creditProfileID = profile.ID
	} else if profile != nil && profile.ID == creditProfileID && profile.Owner != acting {
		return "", fmt.Errorf("%w: credit profile %s belongs to another party", model.ErrUnauthorized, creditProfileID)
	}

	loanID, err := s.ledger.FundLoan(ctx, s.issuer.Issue(), offerID, creditProfileID)
	if err != nil {
		return "", fmt.Errorf("fund loan: %w", err)
	}
	s.triggerRefresh()
	return loanID, nil
}

// RepayLoan гасит заём напрямую от имени заёмщика, минуя запрос на погашение.
func (s *Service) RepayLoan(ctx context.Context, acting, loanID string) error {
	loan, ok := s.store.Loan(loanID)
	if !ok {
		return fmt.Errorf("%w: loan %s", model.ErrNotFound, loanID)
	}
	if err := party.Authorize(acting, party.RoleBorrower, loan.Lender, loan.Borrower); err != nil {
		return err
	}
	if loan.Status != model.LoanStatusActive {
		return fmt.Errorf("%w: loan %s is %s", model.ErrConflict, loanID, loan.Status)
	}

	if err := s.ledger.RepayLoan(ctx, s.issuer.Issue(), loanID); err != nil {
		return fmt.Errorf("repay loan: %w", err)
	}
	s.triggerRefresh()
	return nil
}

// ConfirmIntent подтверждает намерение фондирования от имени кредитора и
// возвращает идентификатор созданного запроса на перечисление тела займа.
func (s *Service) ConfirmIntent(ctx context.Context, acting, intentID string) (string, error) {
	intent, ok := s.store.FundingIntent(intentID)
	if !ok {
		return "", fmt.Errorf("%w: funding intent %s", model.ErrNotFound, intentID)
	}
	if err := party.Authorize(acting, party.RoleLender, intent.Lender, intent.Borrower); err != nil {
		return "", err
	}
	if intent.PrepareExpired(s.now()) {
		return "", fmt.Errorf("%w: prepare window for intent %s elapsed at %s", model.ErrDeadlinePassed, intentID, intent.PrepareUntil.Format(time.RFC3339))
	}

	requestID, err := s.ledger.ConfirmFundingIntent(ctx, s.issuer.Issue(), intentID)
	if err != nil {
		return "", fmt.Errorf("confirm funding intent: %w", err)
	}
	s.triggerRefresh()
	return requestID, nil
}

// CompleteFunding завершает фондирование от имени кредитора: аллокация средств
// потребляется, создаётся заём. Пустая ссылка на аллокацию берётся из запроса.
func (s *Service) CompleteFunding(ctx context.Context, acting, requestID, allocationRef string) (string, error) {
	req, ok := s.store.PrincipalRequest(requestID)
	if !ok {
		return "", fmt.Errorf("%w: principal request %s", model.ErrNotFound, requestID)
	}
	if err := party.Authorize(acting, party.RoleLender, req.Lender, req.Borrower); err != nil {
		return "", err
	}
	if req.SettleExpired(s.now()) {
		return "", fmt.Errorf("%w: settle window for principal request %s elapsed at %s", model.ErrDeadlinePassed, requestID, req.SettleBefore.Format(time.RFC3339))
	}
	if allocationRef == "" {
		if req.AllocationRef == nil || *req.AllocationRef == "" {
			return "", fmt.Errorf("%w: allocation reference is required", model.ErrValidation)
		}
		allocationRef = *req.AllocationRef
	}

	loanID, err := s.ledger.CompleteFunding(ctx, s.issuer.Issue(), requestID, allocationRef)
	if err != nil {
		return "", fmt.Errorf("complete funding: %w", err)
	}
	s.triggerRefresh()
	return loanID, nil
}

// RequestRepayment создаёт запрос токенного погашения от имени заёмщика.
// Погашение возможно только по активному займу.
func (s *Service) RequestRepayment(ctx context.Context, acting, loanID string) (string, error) {
	loan, ok := s.store.Loan(loanID)
	if !ok {
		return "", fmt.Errorf("%w: loan %s", model.ErrNotFound, loanID)
	}
	if err := party.Authorize(acting, party.RoleBorrower, loan.Lender, loan.Borrower); err != nil {
		return "", err
	}
	if loan.Status != model.LoanStatusActive {
		return "", fmt.Errorf("%w: loan %s is %s", model.ErrConflict, loanID, loan.Status)
	}

	requestID, err := s.ledger.RequestRepayment(ctx, s.issuer.Issue(), loanID)
	if err != nil {
		return "", fmt.Errorf("request repayment: %w", err)
	}
	s.triggerRefresh()
	return requestID, nil
}

// CompleteRepayment завершает погашение от имени кредитора: аллокация средств
// потребляется, заём закрывается, кредитный профиль обновляется. Зеркально
// CompleteFunding, где получатель денег подтверждает расчёт.
func (s *Service) CompleteRepayment(ctx context.Context, acting, requestID, allocationRef string) (string, error) {
	req, ok := s.store.RepaymentRequest(requestID)
	if !ok {
		return "", fmt.Errorf("%w: repayment request %s", model.ErrNotFound, requestID)
	}
	if err := party.Authorize(acting, party.RoleLender, req.Lender, req.Borrower); err != nil {
		return "", err
	}
	if req.SettleExpired(s.now()) {
		return "", fmt.Errorf("%w: settle window for repayment request %s elapsed at %s", model.ErrDeadlinePassed, requestID, req.SettleBefore.Format(time.RFC3339))
	}
	if allocationRef == "" {
		if req.AllocationRef == nil || *req.AllocationRef == "" {
			return "", fmt.Errorf("%w: allocation reference is required", model.ErrValidation)
		}
		allocationRef = *req.AllocationRef
	}

	profileID, err := s.ledger.CompleteRepayment(ctx, s.issuer.Issue(), requestID, allocationRef)
	if err != nil {
		return "", fmt.Errorf("complete repayment: %w", err)
	}
	s.triggerRefresh()
	return profileID, nil
}

// MarkDefault фиксирует дефолт по активному займу от имени кредитора.
func (s *Service) MarkDefault(ctx context.Context, acting, loanID string) error {
	loan, ok := s.store.Loan(loanID)
	if !ok {
		return fmt.Errorf("%w: loan %s", model.ErrNotFound, loanID)
	}
	if err := party.Authorize(acting, party.RoleLender, loan.Lender, loan.Borrower); err != nil {
		return err
	}
	if loan.Status != model.LoanStatusActive {
		return fmt.Errorf("%w: loan %s is %s", model.ErrConflict, loanID, loan.Status)
	}

	if err := s.ledger.MarkLoanDefault(ctx, s.issuer.Issue(), loanID); err != nil {
		return fmt.Errorf("mark loan default: %w", err)
	}
	s.triggerRefresh()
	return nil
}

// WithdrawIntent отзывает намерение фондирования от имени кредитора. Отзыв
// разрешён только после истечения окна подготовки: живое намерение ждёт
// либо подтверждения, либо дедлайна.
func (s *Service) WithdrawIntent(ctx context.Context, acting, intentID string) error {
	intent, ok := s.store.FundingIntent(intentID)
	if !ok {
		return fmt.Errorf("%w: funding intent %s", model.ErrNotFound, intentID)
	}
	if err := party.Authorize(acting, party.RoleLender, intent.Lender, intent.Borrower); err != nil {
		return err
	}
	if !intent.PrepareExpired(s.now()) {
		return fmt.Errorf("%w: funding intent %s is still live until %s", model.ErrConflict, intentID, intent.PrepareUntil.Format(time.RFC3339))
	}

	if err := s.ledger.WithdrawFundingIntent(ctx, s.issuer.Issue(), intentID); err != nil {
		return fmt.Errorf("withdraw funding intent: %w", err)
	}
	s.triggerRefresh()
	return nil
}

// AcceptProposal принимает сведённую пару заявок от имени заёмщика и
// возвращает идентификатор созданного займа.
func (s *Service) AcceptProposal(ctx context.Context, acting, proposalID string) (string, error) {
	proposal, ok := s.store.MatchedProposal(proposalID)
	if !ok {
		return "", fmt.Errorf("%w: matched proposal %s", model.ErrNotFound, proposalID)
	}
	if err := party.Authorize(acting, party.RoleBorrower, proposal.Lender, proposal.Borrower); err != nil {
		return "", err
	}

	loanID, err := s.ledger.AcceptMatchedProposal(ctx, s.issuer.Issue(), proposalID)
	if err != nil {
		return "", fmt.Errorf("accept matched proposal: %w", err)
	}
	s.triggerRefresh()
	return loanID, nil
}

// RejectProposal отклоняет сведённую пару заявок. Отклонить может любая из
// двух названных сторон.
func (s *Service) RejectProposal(ctx context.Context, acting, proposalID string) error {
	proposal, ok := s.store.MatchedProposal(proposalID)
	if !ok {
		return fmt.Errorf("%w: matched proposal %s", model.ErrNotFound, proposalID)
	}
	if acting != proposal.Lender && acting != proposal.Borrower {
		return fmt.Errorf("%w: only the lender (%s) or the borrower (%s) can reject the proposal, acting party is %q", model.ErrUnauthorized, proposal.Lender, proposal.Borrower, acting)
	}

	if err := s.ledger.RejectMatchedProposal(ctx, s.issuer.Issue(), proposalID); err != nil {
		return fmt.Errorf("reject matched proposal: %w", err)
	}
	s.triggerRefresh()
	return nil
}
