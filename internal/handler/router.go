package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/denver-lending-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса денвер.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		// Стакан публичен: дашборд показывает его до входа.
		r.Get("/orderbook", h.GetOrderBook)

		r.Group(func(r chi.Router) {
			r.Use(h.partyMiddleware.Middleware)

			r.Route("/market", func(r chi.Router) {
				r.Get("/bids", h.GetBids)
				r.Post("/bids", h.PlaceBid)
				r.Delete("/bids/{id}", h.CancelBid)

				r.Get("/asks", h.GetAsks)
				r.Post("/asks", h.PlaceAsk)
				r.Delete("/asks/{id}", h.CancelAsk)

				r.Get("/proposals", h.GetMatchedProposals)
				r.Post("/proposals/{id}/accept", h.AcceptProposal)
				r.Post("/proposals/{id}/reject", h.RejectProposal)
			})

			r.Route("/loans", func(r chi.Router) {
				r.Get("/", h.GetLoans)

				r.Get("/requests", h.GetLoanRequests)
				r.Post("/requests", h.CreateLoanRequest)

				r.Get("/offers", h.GetLoanOffers)
				r.Post("/offers", h.CreateLoanOffer)
				r.Post("/offers/{id}/accept", h.AcceptOffer)
				r.Post("/offers/{id}/fund", h.FundLoan)

				r.Get("/funding-intents", h.GetFundingIntents)
				r.Post("/funding-intents/{id}/confirm", h.ConfirmIntent)
				r.Delete("/funding-intents/{id}", h.WithdrawIntent)

				r.Get("/principal-requests", h.GetPrincipalRequests)
				r.Post("/principal-requests/{id}/complete", h.CompleteFunding)

				r.Get("/repayment-requests", h.GetRepaymentRequests)
				r.Post("/repayment-requests/{id}/complete", h.CompleteRepayment)

				r.Post("/{id}/request-repayment", h.RequestRepayment)
				r.Post("/{id}/repay", h.RepayLoan)
				r.Post("/{id}/mark-default", h.MarkDefault)
			})

			r.Get("/credit-profile", h.GetCreditProfile)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
