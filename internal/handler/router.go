package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/circulation-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса книговыдачи.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Post("/checkout", h.Checkout)
		r.Post("/checkin", h.Checkin)
		r.Post("/renew", h.Renew)
		r.Post("/loans/{loanID}/renew", h.RenewLoan)

		r.Post("/holds", h.PlaceHold)
		r.Delete("/holds/{holdID}", h.CancelHold)

		r.Post("/fines/{fineID}/pay", h.PayFine)
		r.Get("/fines/{fineID}/payments", h.GetFinePayments)

		r.Get("/patrons/{patronID}", h.GetPatron)
		r.Get("/patrons/{patronID}/loans", h.GetPatronLoans)
		r.Get("/patrons/{patronID}/holds", h.GetPatronHolds)
		r.Get("/patrons/{patronID}/fines", h.GetPatronFines)

		r.Get("/items/barcode/{barcode}", h.GetItem)
		r.Get("/policies/{categoryID}", h.GetPolicy)

		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.RequireStaff)

			r.Post("/loans/{loanID}/lost", h.MarkLost)
			r.Get("/loans/overdue", h.GetOverdueLoans)

			r.Post("/holds/expire", h.ExpireHolds)

			r.Post("/fines/{fineID}/waive", h.WaiveFine)

			r.Put("/patrons/{patronID}", h.RegisterPatron)
			r.Put("/patrons/{patronID}/status", h.SetPatronStatus)

			r.Put("/items", h.UpsertItem)
			r.Post("/items/barcode/{barcode}/sync", h.SyncItem)
			r.Get("/items/{itemID}/holds", h.GetItemHolds)
			r.Get("/items/{itemID}/history", h.GetItemHistory)

			r.Put("/policies/{categoryID}", h.UpsertPolicy)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "NOT_FOUND", Message: http.StatusText(http.StatusNotFound)})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "METHOD_NOT_ALLOWED", Message: http.StatusText(http.StatusMethodNotAllowed)})
	})

	return r
}
