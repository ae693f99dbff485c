package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/circulation-system/internal/model"
	"github.com/mmeshcher/circulation-system/internal/service"
)

type payFineRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"omitempty,max=32"`
	Reference string          `json:"reference" validate:"omitempty,max=128"`
}

// PayFine принимает платёж по штрафу.
func (h *Handler) PayFine(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	fineID, ok := pathUUID(w, r, "fineID")
	if !ok {
		return
	}

	var req payFineRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, ok := toMinor(req.Amount)
	if !ok || amount <= 0 {
		h.writeError(w, r, model.ErrInvalidAmount)
		return
	}

	fine, err := h.service.PayFine(r.Context(), actor, fineID, service.Payment{
		Amount:    amount,
		Method:    req.Method,
		Reference: req.Reference,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFineResponse(fine))
}

type waiveFineRequest struct {
	Reason string `json:"reason" validate:"max=512"`
}

// WaiveFine списывает штраф.
func (h *Handler) WaiveFine(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	fineID, ok := pathUUID(w, r, "fineID")
	if !ok {
		return
	}

	var req waiveFineRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	fine, err := h.service.WaiveFine(r.Context(), actor, fineID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFineResponse(fine))
}

// GetFinePayments возвращает историю платежей по штрафу.
func (h *Handler) GetFinePayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	fineID, ok := pathUUID(w, r, "fineID")
	if !ok {
		return
	}

	payments, err := h.service.FinePayments(r.Context(), actor, fineID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, paymentResponse{
			ID:        p.ID.String(),
			Amount:    fromMinor(p.Amount),
			Method:    p.Method,
			Reference: p.Reference,
			PaidAt:    p.PaidAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
