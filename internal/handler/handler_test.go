package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/denver-lending-system/internal/ledger"
	"github.com/mmeshcher/denver-lending-system/internal/middleware"
	"github.com/mmeshcher/denver-lending-system/internal/model"
	"github.com/mmeshcher/denver-lending-system/internal/reconcile"
)

type stubWorkflow struct {
	err         error
	lastActing  string
	lastRequest any
}

func (s *stubWorkflow) PlaceBid(_ context.Context, acting string, p ledger.LenderBidParams) (model.Order, error) {
	s.lastActing, s.lastRequest = acting, p
	return model.Order{ID: "bid-1", Owner: acting, Side: model.SideBid, Amount: p.Amount, RemainingAmount: p.Amount}, s.err
}

func (s *stubWorkflow) PlaceAsk(_ context.Context, acting string, p ledger.BorrowerAskParams) (model.Order, error) {
	s.lastActing, s.lastRequest = acting, p
	return model.Order{ID: "ask-1", Owner: acting, Side: model.SideAsk}, s.err
}

func (s *stubWorkflow) CancelBid(_ context.Context, acting, id string) error {
	s.lastActing, s.lastRequest = acting, id
	return s.err
}

func (s *stubWorkflow) CancelAsk(_ context.Context, acting, id string) error {
	s.lastActing, s.lastRequest = acting, id
	return s.err
}

func (s *stubWorkflow) CreateLoanRequest(_ context.Context, acting string, p ledger.LoanRequestParams) (model.LoanRequest, error) {
	s.lastActing, s.lastRequest = acting, p
	return model.LoanRequest{ID: "req-1", Borrower: acting}, s.err
}

func (s *stubWorkflow) CreateLoanOffer(_ context.Context, acting string, p ledger.LoanOfferParams) (model.LoanOffer, error) {
	s.lastActing, s.lastRequest = acting, p
	return model.LoanOffer{ID: "offer-1", Lender: acting}, s.err
}

func (s *stubWorkflow) AcceptOffer(_ context.Context, acting, offerID, creditProfileID, description string) (string, error) {
	s.lastActing, s.lastRequest = acting, offerID
	return "fi-1", s.err
}

func (s *stubWorkflow) FundLoan(_ context.Context, acting, offerID, creditProfileID string) (string, error) {
	s.lastActing, s.lastRequest = acting, offerID
	return "loan-1", s.err
}

func (s *stubWorkflow) RepayLoan(_ context.Context, acting, loanID string) error {
	s.lastActing, s.lastRequest = acting, loanID
	return s.err
}

func (s *stubWorkflow) ConfirmIntent(_ context.Context, acting, intentID string) (string, error) {
	s.lastActing, s.lastRequest = acting, intentID
	return "pr-1", s.err
}

func (s *stubWorkflow) CompleteFunding(_ context.Context, acting, requestID, allocationRef string) (string, error) {
	s.lastActing, s.lastRequest = acting, requestID
	return "loan-1", s.err
}

func (s *stubWorkflow) RequestRepayment(_ context.Context, acting, loanID string) (string, error) {
	s.lastActing, s.lastRequest = acting, loanID
	return "rr-1", s.err
}

func (s *stubWorkflow) CompleteRepayment(_ context.Context, acting, requestID, allocationRef string) (string, error) {
	s.lastActing, s.lastRequest = acting, requestID
	return "cp-1", s.err
}

func (s *stubWorkflow) MarkDefault(_ context.Context, acting, loanID string) error {
	s.lastActing, s.lastRequest = acting, loanID
	return s.err
}

func (s *stubWorkflow) WithdrawIntent(_ context.Context, acting, intentID string) error {
	s.lastActing, s.lastRequest = acting, intentID
	return s.err
}

func (s *stubWorkflow) AcceptProposal(_ context.Context, acting, proposalID string) (string, error) {
	s.lastActing, s.lastRequest = acting, proposalID
	return "loan-2", s.err
}

func (s *stubWorkflow) RejectProposal(_ context.Context, acting, proposalID string) error {
	s.lastActing, s.lastRequest = acting, proposalID
	return s.err
}

type stubStore struct {
	snap reconcile.Snapshot
}

func (s *stubStore) Snapshot() reconcile.Snapshot { return s.snap }

func newTestHandler(wf Workflow, store Store) (*Handler, *middleware.PartyMiddleware) {
	pm := middleware.NewPartyMiddleware("test-secret")
	return NewHandler(wf, store, zap.NewNop(), pm), pm
}

func TestGetOrderBook_Public(t *testing.T) {
	spread := decimal.RequireFromString("1.5")
	store := &stubStore{snap: reconcile.Snapshot{
		Book: model.OrderBook{
			AskTiers: []model.OrderBookTier{{Rate: decimal.RequireFromString("6.5"), Duration: 30, TotalAmount: decimal.NewFromInt(500), OrderCount: 1}},
			BidTiers: []model.OrderBookTier{{Rate: decimal.RequireFromString("5.0"), Duration: 30, TotalAmount: decimal.NewFromInt(1000), OrderCount: 2}},
			Spread:   &spread,
		},
	}}
	h, _ := newTestHandler(&stubWorkflow{}, store)
	router := h.SetupRouter()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/orderbook", nil)
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var book struct {
		Asks   []map[string]any `json:"asks"`
		Bids   []map[string]any `json:"bids"`
		Spread *float64         `json:"spread"`
	}
	if err := json.NewDecoder(w.Body).Decode(&book); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(book.Asks) != 1 || len(book.Bids) != 1 {
		t.Fatalf("tiers = %d asks, %d bids, want 1 each", len(book.Asks), len(book.Bids))
	}
	if book.Spread == nil || *book.Spread != 1.5 {
		t.Fatalf("spread = %v, want 1.5", book.Spread)
	}
}

func TestGetOrderBook_EmptySideOmitsSpread(t *testing.T) {
	store := &stubStore{snap: reconcile.Snapshot{Book: model.OrderBook{
		BidTiers: []model.OrderBookTier{{Rate: decimal.RequireFromString("5.0"), Duration: 30}},
	}}}
	h, _ := newTestHandler(&stubWorkflow{}, store)
	router := h.SetupRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orderbook", nil))

	var book map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&book); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if string(book["spread"]) != "null" {
		t.Fatalf("spread = %s, want null", book["spread"])
	}
}

func TestPlaceBid(t *testing.T) {
	wf := &stubWorkflow{}
	h, pm := newTestHandler(wf, &stubStore{})
	router := h.SetupRouter()

	body := `{"amount": 1000, "minInterestRate": 5.5, "maxDuration": 30}`
	r := httptest.NewRequest(http.MethodPost, "/api/market/bids", strings.NewReader(body))
	r.Header.Set(middleware.PartyHeader, pm.SignParty("bank"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body: %s", w.Code, w.Body.String())
	}
	if wf.lastActing != "bank" {
		t.Fatalf("acting party = %q, want bank", wf.lastActing)
	}
	params, ok := wf.lastRequest.(ledger.LenderBidParams)
	if !ok {
		t.Fatalf("unexpected request type %T", wf.lastRequest)
	}
	if !params.Amount.Equal(decimal.NewFromInt(1000)) || params.MaxDurationDays != 30 {
		t.Fatalf("params = %+v", params)
	}
}

func TestPlaceBid_WithoutParty(t *testing.T) {
	h, _ := newTestHandler(&stubWorkflow{}, &stubStore{})
	router := h.SetupRouter()

	r := httptest.NewRequest(http.MethodPost, "/api/market/bids", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestConfirmIntent_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", model.ErrValidation, http.StatusBadRequest},
		{"unauthorized", model.ErrUnauthorized, http.StatusForbidden},
		{"not found", model.ErrNotFound, http.StatusNotFound},
		{"conflict", model.ErrConflict, http.StatusConflict},
		{"deadline passed", model.ErrDeadlinePassed, http.StatusConflict},
		{"transport", model.ErrTransport, http.StatusBadGateway},
		{"success", nil, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, pm := newTestHandler(&stubWorkflow{err: tt.err}, &stubStore{})
			router := h.SetupRouter()

			r := httptest.NewRequest(http.MethodPost, "/api/loans/funding-intents/fi-1/confirm", nil)
			r.Header.Set(middleware.PartyHeader, pm.SignParty("bank"))

			w := httptest.NewRecorder()
			router.ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestGetFundingIntents_RecomputesDeadlines(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &stubStore{snap: reconcile.Snapshot{FundingIntents: []model.FundingIntent{
		{ID: "expired", PrepareUntil: now.Add(-time.Minute), SettleBefore: now.Add(time.Hour)},
		{ID: "live", PrepareUntil: now.Add(time.Minute), SettleBefore: now.Add(time.Hour)},
	}}}

	h, pm := newTestHandler(&stubWorkflow{}, store)
	h.now = func() time.Time { return now }
	router := h.SetupRouter()

	r := httptest.NewRequest(http.MethodGet, "/api/loans/funding-intents", nil)
	r.Header.Set(middleware.PartyHeader, pm.SignParty("bank"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp []struct {
		ID                    string `json:"id"`
		PrepareDeadlinePassed bool   `json:"prepareDeadlinePassed"`
		SettleDeadlinePassed  bool   `json:"settleDeadlinePassed"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("intents = %d, want 2", len(resp))
	}
	if !resp[0].PrepareDeadlinePassed || resp[0].ID != "expired" {
		t.Fatalf("expired intent flags: %+v", resp[0])
	}
	if resp[1].PrepareDeadlinePassed || resp[1].SettleDeadlinePassed {
		t.Fatalf("live intent flags: %+v", resp[1])
	}
}

func TestGetCreditProfile(t *testing.T) {
	t.Run("no profile yet", func(t *testing.T) {
		h, pm := newTestHandler(&stubWorkflow{}, &stubStore{})
		router := h.SetupRouter()

		r := httptest.NewRequest(http.MethodGet, "/api/credit-profile", nil)
		r.Header.Set(middleware.PartyHeader, pm.SignParty("alice"))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		if w.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", w.Code)
		}
	})

	t.Run("existing profile", func(t *testing.T) {
		store := &stubStore{snap: reconcile.Snapshot{
			CreditProfile: &model.CreditProfile{ID: "cp-1", Owner: "alice", Score: 640},
		}}
		h, pm := newTestHandler(&stubWorkflow{}, store)
		router := h.SetupRouter()

		r := httptest.NewRequest(http.MethodGet, "/api/credit-profile", nil)
		r.Header.Set(middleware.PartyHeader, pm.SignParty("alice"))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}

		var profile model.CreditProfile
		if err := json.NewDecoder(w.Body).Decode(&profile); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if profile.Score != 640 {
			t.Fatalf("score = %d, want 640", profile.Score)
		}
	})
}

func TestRequestRepayment(t *testing.T) {
	wf := &stubWorkflow{}
	h, pm := newTestHandler(wf, &stubStore{})
	router := h.SetupRouter()

	r := httptest.NewRequest(http.MethodPost, "/api/loans/loan-1/request-repayment", nil)
	r.Header.Set(middleware.PartyHeader, pm.SignParty("alice"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if wf.lastRequest != "loan-1" {
		t.Fatalf("loan id = %v, want loan-1", wf.lastRequest)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp["repaymentRequestId"] != "rr-1" {
		t.Fatalf("response = %v", resp)
	}
}

func TestFundLoan(t *testing.T) {
	wf := &stubWorkflow{}
	h, pm := newTestHandler(wf, &stubStore{})
	router := h.SetupRouter()

	body := strings.NewReader(`{"creditProfileId":"cp-1"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/loans/offers/offer-1/fund", body)
	r.Header.Set(middleware.PartyHeader, pm.SignParty("alice"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if wf.lastRequest != "offer-1" {
		t.Fatalf("offer id = %v, want offer-1", wf.lastRequest)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp["loanId"] != "loan-1" {
		t.Fatalf("response = %v", resp)
	}
}

func TestRepayLoan(t *testing.T) {
	wf := &stubWorkflow{}
	h, pm := newTestHandler(wf, &stubStore{})
	router := h.SetupRouter()

	r := httptest.NewRequest(http.MethodPost, "/api/loans/loan-1/repay", nil)
	r.Header.Set(middleware.PartyHeader, pm.SignParty("alice"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if wf.lastActing != "alice" || wf.lastRequest != "loan-1" {
		t.Fatalf("acting = %q, request = %v", wf.lastActing, wf.lastRequest)
	}
}

func TestGetBids_IncludesDerivedStatus(t *testing.T) {
	store := &stubStore{snap: reconcile.Snapshot{Bids: []model.Order{{
		ID:              "bid-1",
		Side:            model.SideBid,
		Amount:          decimal.NewFromInt(1000),
		RemainingAmount: decimal.NewFromInt(400),
	}}}}

	h, pm := newTestHandler(&stubWorkflow{}, store)
	router := h.SetupRouter()

	r := httptest.NewRequest(http.MethodGet, "/api/market/bids", nil)
	r.Header.Set(middleware.PartyHeader, pm.SignParty("bank"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	var resp []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(resp) != 1 || resp[0].Status != "partial" {
		t.Fatalf("response = %+v, want partial status", resp)
	}
}
