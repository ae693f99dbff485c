package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/circulation-system/internal/model"
	"github.com/mmeshcher/circulation-system/internal/service"
)

var (
	errNoItemReference = errors.New("either barcode or item_id is required")
	errNoLoanReference = errors.New("either loan_id or barcode is required")
)

type checkoutRequest struct {
	PatronID string `json:"patron_id" validate:"required,uuid"`
	Barcode  string `json:"barcode" validate:"omitempty,barcode"`
	ItemID   string `json:"item_id" validate:"omitempty,uuid"`
}

// Checkout выдаёт экземпляр читателю по штрихкоду или идентификатору издания.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Barcode == "" && req.ItemID == "" {
		writeValidationError(w, errNoItemReference)
		return
	}
	patronID := uuid.MustParse(req.PatronID)

	var (
		loan model.Loan
		err  error
	)
	if req.ItemID != "" {
		loan, err = h.service.Checkout(r.Context(), actor, patronID, uuid.MustParse(req.ItemID))
	} else {
		loan, err = h.service.CheckoutByBarcode(r.Context(), actor, patronID, req.Barcode)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newLoanResponse(loan))
}

type checkinRequest struct {
	LoanID   string `json:"loan_id" validate:"omitempty,uuid"`
	Barcode  string `json:"barcode" validate:"omitempty,barcode"`
	PatronID string `json:"patron_id" validate:"omitempty,uuid"`
}

type checkinResponse struct {
	Loan         loanResponse  `json:"loan"`
	Fine         *fineResponse `json:"fine,omitempty"`
	HoldPromoted *holdResponse `json:"hold_promoted,omitempty"`
}

// Checkin принимает экземпляр от читателя.
func (h *Handler) Checkin(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req checkinRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Barcode == "" && req.LoanID == "" {
		writeValidationError(w, errNoLoanReference)
		return
	}

	in := service.CheckinRequest{Barcode: req.Barcode}
	if req.LoanID != "" {
		id := uuid.MustParse(req.LoanID)
		in.LoanID = &id
	}
	if req.PatronID != "" {
		id := uuid.MustParse(req.PatronID)
		in.PatronID = &id
	}

	res, err := h.service.Checkin(r.Context(), actor, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := checkinResponse{Loan: newLoanResponse(res.Loan)}
	if res.Fine != nil {
		fine := newFineResponse(*res.Fine)
		resp.Fine = &fine
	}
	if res.HoldPromoted != nil {
		hold := newHoldResponse(*res.HoldPromoted)
		resp.HoldPromoted = &hold
	}
	writeJSON(w, http.StatusOK, resp)
}

type renewRequest struct {
	LoanID string `json:"loan_id" validate:"required,uuid"`
}

// Renew продлевает выдачу, идентификатор которой передан в теле запроса.
func (h *Handler) Renew(w http.ResponseWriter, r *http.Request) {
	var req renewRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.renew(w, r, uuid.MustParse(req.LoanID))
}

// RenewLoan продлевает выдачу из пути запроса.
func (h *Handler) RenewLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathUUID(w, r, "loanID")
	if !ok {
		return
	}
	h.renew(w, r, loanID)
}

func (h *Handler) renew(w http.ResponseWriter, r *http.Request, loanID uuid.UUID) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	loan, err := h.service.Renew(r.Context(), actor, loanID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanResponse(loan))
}

type lostResponse struct {
	Loan loanResponse  `json:"loan"`
	Fine *fineResponse `json:"fine,omitempty"`
}

// MarkLost списывает экземпляр по выдаче как утерянный.
func (h *Handler) MarkLost(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	loanID, ok := pathUUID(w, r, "loanID")
	if !ok {
		return
	}

	res, err := h.service.MarkLost(r.Context(), actor, loanID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := lostResponse{Loan: newLoanResponse(res.Loan)}
	if res.Fine != nil {
		fine := newFineResponse(*res.Fine)
		resp.Fine = &fine
	}
	writeJSON(w, http.StatusOK, resp)
}

type placeHoldRequest struct {
	PatronID string `json:"patron_id" validate:"required,uuid"`
	ItemID   string `json:"item_id" validate:"required,uuid"`
}

// PlaceHold ставит читателя в очередь на издание.
func (h *Handler) PlaceHold(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req placeHoldRequest
	if !h.decode(w, r, &req) {
		return
	}

	hold, err := h.service.PlaceHold(r.Context(), actor, uuid.MustParse(req.PatronID), uuid.MustParse(req.ItemID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newHoldResponse(hold))
}

// CancelHold отменяет бронь.
func (h *Handler) CancelHold(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	holdID, ok := pathUUID(w, r, "holdID")
	if !ok {
		return
	}

	if err := h.service.CancelHold(r.Context(), actor, holdID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExpireHolds запускает внеочередную очистку просроченных броней.
func (h *Handler) ExpireHolds(w http.ResponseWriter, r *http.Request) {
	expired, err := h.service.ExpireStaleHolds(r.Context())
	if err != nil && len(expired) == 0 {
		h.writeError(w, r, err)
		return
	}
	if err != nil {
		h.logger.Warn("partial hold expiry", zap.Int("expired", len(expired)), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, newHoldResponses(expired))
}
