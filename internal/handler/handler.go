// Package handler содержит HTTP-обработчики API сервиса денвер.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/denver-lending-system/internal/ledger"
	"github.com/mmeshcher/denver-lending-system/internal/middleware"
	"github.com/mmeshcher/denver-lending-system/internal/model"
	"github.com/mmeshcher/denver-lending-system/internal/reconcile"
)

// Workflow определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Workflow interface {
	PlaceBid(ctx context.Context, acting string, p ledger.LenderBidParams) (model.Order, error)
	PlaceAsk(ctx context.Context, acting string, p ledger.BorrowerAskParams) (model.Order, error)
	CancelBid(ctx context.Context, acting, bidID string) error
	CancelAsk(ctx context.Context, acting, askID string) error
	CreateLoanRequest(ctx context.Context, acting string, p ledger.LoanRequestParams) (model.LoanRequest, error)
	CreateLoanOffer(ctx context.Context, acting string, p ledger.LoanOfferParams) (model.LoanOffer, error)
	AcceptOffer(ctx context.Context, acting, offerID, creditProfileID, description string) (string, error)
	FundLoan(ctx context.Context, acting, offerID, creditProfileID string) (string, error)
	RepayLoan(ctx context.Context, acting, loanID string) error
	ConfirmIntent(ctx context.Context, acting, intentID string) (string, error)
	CompleteFunding(ctx context.Context, acting, requestID, allocationRef string) (string, error)
	RequestRepayment(ctx context.Context, acting, loanID string) (string, error)
	CompleteRepayment(ctx context.Context, acting, requestID, allocationRef string) (string, error)
	MarkDefault(ctx context.Context, acting, loanID string) error
	WithdrawIntent(ctx context.Context, acting, intentID string) error
	AcceptProposal(ctx context.Context, acting, proposalID string) (string, error)
	RejectProposal(ctx context.Context, acting, proposalID string) error
}

// Store отдаёт последний снимок состояния для читающих запросов.
type Store interface {
	Snapshot() reconcile.Snapshot
}

// Handler реализует HTTP-обработчики API сервиса денвер.
type Handler struct {
	workflow        Workflow
	store           Store
	logger          *zap.Logger
	partyMiddleware *middleware.PartyMiddleware
	now             func() time.Time
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(workflow Workflow, store Store, logger *zap.Logger, pm *middleware.PartyMiddleware) *Handler {
	return &Handler{
		workflow:        workflow,
		store:           store,
		logger:          logger,
		partyMiddleware: pm,
		now:             time.Now,
	}
}

// writeError переводит доменные ошибки в HTTP-статусы. Конфликты состояния и
// истёкшие сроки — ожидаемые исходы гонки с другим участником, они не
// считаются ошибками сервиса.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, model.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrDeadlinePassed):
		h.logger.Warn(msg, zap.Error(err))
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrTransport):
		h.logger.Error(msg, zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	default:
		h.logger.Error(msg, zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func acting(w http.ResponseWriter, r *http.Request) (string, bool) {
	party, ok := middleware.GetPartyFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return "", false
	}
	return party, true
}

// GetOrderBook возвращает агрегированный стакан. Доступен без аутентификации.
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	h.writeJSON(w, http.StatusOK, snap.Book)
}

type orderResponse struct {
	model.Order
	Status model.OrderStatus `json:"status"`
}

func toOrderResponse(o model.Order) orderResponse {
	return orderResponse{Order: o, Status: o.Status()}
}

// GetBids возвращает заявки кредиторов из снимка.
func (h *Handler) GetBids(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	resp := make([]orderResponse, 0, len(snap.Bids))
	for _, o := range snap.Bids {
		resp = append(resp, toOrderResponse(o))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetAsks возвращает заявки заёмщиков из снимка.
func (h *Handler) GetAsks(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	resp := make([]orderResponse, 0, len(snap.Asks))
	for _, o := range snap.Asks {
		resp = append(resp, toOrderResponse(o))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type placeBidRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	MinInterestRate decimal.Decimal `json:"minInterestRate"`
	MaxDuration     int             `json:"maxDuration"`
}

// PlaceBid размещает заявку кредитора.
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.workflow.PlaceBid(r.Context(), party, ledger.LenderBidParams{
		Amount:          req.Amount,
		MinInterestRate: req.MinInterestRate,
		MaxDurationDays: req.MaxDuration,
	})
	if err != nil {
		h.writeError(w, err, "place bid error")
		return
	}
	h.writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

type placeAskRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	MaxInterestRate decimal.Decimal `json:"maxInterestRate"`
	Duration        int             `json:"duration"`
	CreditProfileID string          `json:"creditProfileId"`
}

// PlaceAsk размещает заявку заёмщика.
func (h *Handler) PlaceAsk(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	var req placeAskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.workflow.PlaceAsk(r.Context(), party, ledger.BorrowerAskParams{
		Amount:          req.Amount,
		MaxInterestRate: req.MaxInterestRate,
		DurationDays:    req.Duration,
		CreditProfileID: req.CreditProfileID,
	})
	if err != nil {
		h.writeError(w, err, "place ask error")
		return
	}
	h.writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// CancelBid отменяет заявку кредитора.
func (h *Handler) CancelBid(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	if err := h.workflow.CancelBid(r.Context(), party, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err, "cancel bid error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelAsk отменяет заявку заёмщика.
func (h *Handler) CancelAsk(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	if err := h.workflow.CancelAsk(r.Context(), party, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err, "cancel ask error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetLoanRequests возвращает запросы займов из снимка.
func (h *Handler) GetLoanRequests(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	h.writeJSON(w, http.StatusOK, snap.Requests)
}

type loanRequestRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	InterestRate decimal.Decimal `json:"interestRate"`
	DurationDays int             `json:"durationDays"`
	Purpose      string          `json:"purpose"`
}

// CreateLoanRequest создаёт запрос займа.
func (h *Handler) CreateLoanRequest(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	var req loanRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	created, err := h.workflow.CreateLoanRequest(r.Context(), party, ledger.LoanRequestParams{
		Amount:       req.Amount,
		InterestRate: req.InterestRate,
		DurationDays: req.DurationDays,
		Purpose:      req.Purpose,
	})
	if err != nil {
		h.writeError(w, err, "create loan request error")
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// GetLoanOffers возвращает оферты из снимка.
func (h *Handler) GetLoanOffers(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	h.writeJSON(w, http.StatusOK, snap.Offers)
}

type loanOfferRequest struct {
	LoanRequestID string          `json:"loanRequestId"`
	Amount        decimal.Decimal `json:"amount"`
	InterestRate  decimal.Decimal `json:"interestRate"`
	DurationDays  int             `json:"durationDays"`
}

// CreateLoanOffer создаёт оферту по запросу займа.
func (h *Handler) CreateLoanOffer(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	var req loanOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	created, err := h.workflow.CreateLoanOffer(r.Context(), party, ledger.LoanOfferParams{
		LoanRequestID: req.LoanRequestID,
		Amount:        req.Amount,
		InterestRate:  req.InterestRate,
		DurationDays:  req.DurationDays,
	})
	if err != nil {
		h.writeError(w, err, "create loan offer error")
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

type acceptOfferRequest struct {
	CreditProfileID string `json:"creditProfileId"`
	Description     string `json:"description"`
}

// AcceptOffer принимает оферту с токенным расчётом.
func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	var req acceptOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	intentID, err := h.workflow.AcceptOffer(r.Context(), party, chi.URLParam(r, "id"), req.CreditProfileID, req.Description)
	if err != nil {
		h.writeError(w, err, "accept offer error")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"fundingIntentId": intentID})
}

type fundLoanRequest struct {
	CreditProfileID string `json:"creditProfileId"`
}

// FundLoan принимает оферту с немедленным фондированием, без токенного
// расчёта: заём создаётся сразу.
func (h *Handler) FundLoan(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	var req fundLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	loanID, err := h.workflow.FundLoan(r.Context(), party, chi.URLParam(r, "id"), req.CreditProfileID)
	if err != nil {
		h.writeError(w, err, "fund loan error")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"loanId": loanID})
}

type fundingIntentResponse struct {
	model.FundingIntent
	PrepareDeadlinePassed bool `json:"prepareDeadlinePassed"`
	SettleDeadlinePassed  bool `json:"settleDeadlinePassed"`
}

// GetFundingIntents возвращает намерения фондирования. Флаги истечения сроков
// пересчитываются на момент чтения.
func (h *Handler) GetFundingIntents(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	now := h.now()

	resp := make([]fundingIntentResponse, 0, len(snap.FundingIntents))
	for _, fi := range snap.FundingIntents {
		resp = append(resp, fundingIntentResponse{
			FundingIntent:         fi,
			PrepareDeadlinePassed: fi.PrepareExpired(now),
			SettleDeadlinePassed:  fi.SettleExpired(now),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ConfirmIntent подтверждает намерение фондирования.
func (h *Handler) ConfirmIntent(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	requestID, err := h.workflow.ConfirmIntent(r.Context(), party, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "confirm intent error")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"principalRequestId": requestID})
}

// WithdrawIntent отзывает истёкшее намерение фондирования.
func (h *Handler) WithdrawIntent(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	if err := h.workflow.WithdrawIntent(r.Context(), party, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err, "withdraw intent error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type principalRequestResponse struct {
	model.PrincipalRequest
	PrepareDeadlinePassed bool `json:"prepareDeadlinePassed"`
	SettleDeadlinePassed  bool `json:"settleDeadlinePassed"`
}

// GetPrincipalRequests возвращает запросы на перечисление тела займа.
func (h *Handler) GetPrincipalRequests(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	now := h.now()

	resp := make([]principalRequestResponse, 0, len(snap.PrincipalRequests))
	for _, pr := range snap.PrincipalRequests {
		resp = append(resp, principalRequestResponse{
			PrincipalRequest:      pr,
			PrepareDeadlinePassed: pr.PrepareExpired(now),
			SettleDeadlinePassed:  pr.SettleExpired(now),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type completeRequest struct {
	AllocationRef string `json:"allocationRef"`
}

// CompleteFunding завершает фондирование и создаёт заём.
func (h *Handler) CompleteFunding(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	loanID, err := h.workflow.CompleteFunding(r.Context(), party, chi.URLParam(r, "id"), req.AllocationRef)
	if err != nil {
		h.writeError(w, err, "complete funding error")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"loanId": loanID})
}

// GetLoans возвращает займы из снимка.
func (h *Handler) GetLoans(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	h.writeJSON(w, http.StatusOK, snap.Loans)
}

// RequestRepayment создаёт запрос токенного погашения займа.
func (h *Handler) RequestRepayment(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	requestID, err := h.workflow.RequestRepayment(r.Context(), party, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "request repayment error")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"repaymentRequestId": requestID})
}

// RepayLoan гасит заём напрямую, без запроса на погашение.
func (h *Handler) RepayLoan(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	if err := h.workflow.RepayLoan(r.Context(), party, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err, "repay loan error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// MarkDefault фиксирует дефолт по займу.
func (h *Handler) MarkDefault(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	if err := h.workflow.MarkDefault(r.Context(), party, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err, "mark default error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

type repaymentRequestResponse struct {
	model.RepaymentRequest
	PrepareDeadlinePassed bool `json:"prepareDeadlinePassed"`
	SettleDeadlinePassed  bool `json:"settleDeadlinePassed"`
}

// GetRepaymentRequests возвращает запросы погашения.
func (h *Handler) GetRepaymentRequests(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	now := h.now()

	resp := make([]repaymentRequestResponse, 0, len(snap.RepaymentRequests))
	for _, rr := range snap.RepaymentRequests {
		resp = append(resp, repaymentRequestResponse{
			RepaymentRequest:      rr,
			PrepareDeadlinePassed: rr.PrepareExpired(now),
			SettleDeadlinePassed:  rr.SettleExpired(now),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CompleteRepayment завершает погашение и закрывает заём.
func (h *Handler) CompleteRepayment(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	profileID, err := h.workflow.CompleteRepayment(r.Context(), party, chi.URLParam(r, "id"), req.AllocationRef)
	if err != nil {
		h.writeError(w, err, "complete repayment error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"creditProfileId": profileID})
}

// GetMatchedProposals возвращает сведённые пары заявок.
func (h *Handler) GetMatchedProposals(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	h.writeJSON(w, http.StatusOK, snap.MatchedProposals)
}

// AcceptProposal принимает сведённую пару заявок.
func (h *Handler) AcceptProposal(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	loanID, err := h.workflow.AcceptProposal(r.Context(), party, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "accept proposal error")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"loanId": loanID})
}

// RejectProposal отклоняет сведённую пару заявок.
func (h *Handler) RejectProposal(w http.ResponseWriter, r *http.Request) {
	party, ok := acting(w, r)
	if !ok {
		return
	}

	if err := h.workflow.RejectProposal(r.Context(), party, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err, "reject proposal error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetCreditProfile возвращает кредитный профиль стороны. 204, если профиля ещё нет.
func (h *Handler) GetCreditProfile(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	if snap.CreditProfile == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, snap.CreditProfile)
}
