package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/denver-lending-system/internal/command"
	"github.com/mmeshcher/denver-lending-system/internal/model"
)

func TestCreateLenderBid_SendsCommandID(t *testing.T) {
	var gotCommandID, gotAuth string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/market/lender-bids" {
			t.Fatalf("path = %s, want /market/lender-bids", r.URL.Path)
		}
		gotCommandID = r.URL.Query().Get("commandId")
		gotAuth = r.Header.Get("Authorization")

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["amount"] != float64(1000) {
			t.Fatalf("amount = %v, want 1000", body["amount"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"contractId":      "bid-1",
			"lender":          "bank",
			"amount":          1000,
			"minInterestRate": 5.5,
			"maxDuration":     30,
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "session-token")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	order, err := client.CreateLenderBid(ctx, "denver-1-abc", LenderBidParams{
		Amount:          decimal.NewFromInt(1000),
		MinInterestRate: decimal.RequireFromString("5.5"),
		MaxDurationDays: 30,
	})
	if err != nil {
		t.Fatalf("CreateLenderBid error: %v", err)
	}
	if gotCommandID != "denver-1-abc" {
		t.Fatalf("commandId = %q, want %q", gotCommandID, "denver-1-abc")
	}
	if gotAuth != "Bearer session-token" {
		t.Fatalf("authorization = %q, want bearer token", gotAuth)
	}
	if order.ID != "bid-1" || order.Side != model.SideBid {
		t.Fatalf("unexpected order: %+v", order)
	}
	if !order.RemainingAmount.Equal(order.Amount) {
		t.Fatalf("remaining = %s, want full amount %s", order.RemainingAmount, order.Amount)
	}
}

func TestRetryKeepsCommandID(t *testing.T) {
	var mu sync.Mutex
	var attempts int
	seen := map[string]int{}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		seen[r.URL.Query().Get("commandId")]++
		first := attempts == 1
		mu.Unlock()

		if first {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"fundingIntentId": "fi-1"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := client.AcceptOfferWithToken(ctx, command.ID("denver-2-retry"), "offer-1", AcceptOfferParams{
		CreditProfileID: "cp-1",
		PrepareWindow:   2 * time.Hour,
		SettleWindow:    24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("AcceptOfferWithToken error: %v", err)
	}
	if id != "fi-1" {
		t.Fatalf("fundingIntentId = %q, want fi-1", id)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if len(seen) != 1 || seen["denver-2-retry"] != 2 {
		t.Fatalf("retry changed commandId: %v", seen)
	}
}

func TestCompleteFunding_DuplicateCommandIDReturnsSameLoan(t *testing.T) {
	var mu sync.Mutex
	loans := map[string]string{}
	created := 0

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		cmdID := r.URL.Query().Get("commandId")
		loanID, ok := loans[cmdID]
		if !ok {
			created++
			loanID = "loan-" + cmdID
			loans[cmdID] = loanID
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"loanId": loanID})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, err := client.CompleteFunding(ctx, command.ID("denver-3-dup"), "pr-1", "alloc-1")
	if err != nil {
		t.Fatalf("first CompleteFunding error: %v", err)
	}
	second, err := client.CompleteFunding(ctx, command.ID("denver-3-dup"), "pr-1", "alloc-1")
	if err != nil {
		t.Fatalf("second CompleteFunding error: %v", err)
	}

	if first != second {
		t.Fatalf("duplicate command produced different loans: %q vs %q", first, second)
	}
	mu.Lock()
	defer mu.Unlock()
	if created != 1 {
		t.Fatalf("loans created = %d, want 1", created)
	}
}

func TestAcceptOfferWithToken_ISODurations(t *testing.T) {
	var body map[string]string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"fundingIntentId": "fi-2"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "")

	_, err := client.AcceptOfferWithToken(context.Background(), "cmd", "offer/2", AcceptOfferParams{
		CreditProfileID: "cp-1",
		PrepareWindow:   2 * time.Hour,
		SettleWindow:    24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("AcceptOfferWithToken error: %v", err)
	}
	if body["prepareUntilDuration"] != "PT7200S" {
		t.Fatalf("prepareUntilDuration = %q, want PT7200S", body["prepareUntilDuration"])
	}
	if body["settleBeforeDuration"] != "PT86400S" {
		t.Fatalf("settleBeforeDuration = %q, want PT86400S", body["settleBeforeDuration"])
	}
}

func TestGetCreditProfile_NotFoundIsEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "")

	profile, err := client.GetCreditProfile(context.Background(), NotFoundIsEmpty)
	if err != nil {
		t.Fatalf("GetCreditProfile error: %v", err)
	}
	if profile != nil {
		t.Fatalf("expected nil profile, got %+v", profile)
	}

	_, err = client.GetCreditProfile(context.Background(), NotFoundIsError)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestConfirmFundingIntent_TargetGone(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "NOT_FOUND",
			"message": "funding intent fi-9 not found",
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "")

	_, err := client.ConfirmFundingIntent(context.Background(), "cmd", "fi-9")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"code unauthorized", http.StatusForbidden, `{"code":"UNAUTHORIZED","message":"not your contract"}`, model.ErrUnauthorized},
		{"code conflict", http.StatusConflict, `{"code":"CONFLICT","message":"offer no longer valid"}`, model.ErrConflict},
		{"code deadline", http.StatusConflict, `{"code":"DEADLINE_PASSED","message":"prepare window elapsed"}`, model.ErrDeadlinePassed},
		{"code validation", http.StatusBadRequest, `{"code":"VALIDATION_FAILED","message":"amount must be positive"}`, model.ErrValidation},
		{"code not found", http.StatusNotFound, `{"code":"NOT_FOUND","message":"gone"}`, model.ErrNotFound},
		{"status 401", http.StatusUnauthorized, "", model.ErrUnauthorized},
		{"status 403", http.StatusForbidden, "nope", model.ErrUnauthorized},
		{"status 404", http.StatusNotFound, "", model.ErrNotFound},
		{"status 409", http.StatusConflict, "", model.ErrConflict},
		{"status 400", http.StatusBadRequest, "bad input", model.ErrValidation},
		{"status 422", http.StatusUnprocessableEntity, "", model.ErrValidation},
		{"status 502", http.StatusBadGateway, "", model.ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyError(tt.status, []byte(tt.body))
			if !errors.Is(err, tt.want) {
				t.Fatalf("classifyError(%d, %q) = %v, want %v", tt.status, tt.body, err, tt.want)
			}
		})
	}
}

func TestTransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	client := NewClient(ts.URL, "")
	client.httpClient.RetryMax = 0

	_, err := client.ListLoans(context.Background())
	if !errors.Is(err, model.ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
}

func TestMarkLoanDefault_NoBodyExpected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loans/loan-1:mark-default" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "")

	if err := client.MarkLoanDefault(context.Background(), "cmd", "loan-1"); err != nil {
		t.Fatalf("MarkLoanDefault error: %v", err)
	}
}
