package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/circulation-system/internal/validation"
)

// GetItem возвращает издание по штрихкоду.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")
	if !validation.IsValidBarcode(barcode) {
		writeBadRequest(w, "invalid barcode")
		return
	}

	item, err := h.service.Item(r.Context(), barcode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemResponse(item))
}

type upsertItemRequest struct {
	Barcode     string `json:"barcode" validate:"required,barcode"`
	Title       string `json:"title" validate:"max=512"`
	TotalCopies *int   `json:"total_copies" validate:"required,gte=0"`
}

// UpsertItem заводит издание или меняет число экземпляров.
func (h *Handler) UpsertItem(w http.ResponseWriter, r *http.Request) {
	var req upsertItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	item, err := h.service.UpsertItem(r.Context(), req.Barcode, req.Title, *req.TotalCopies)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemResponse(item))
}

// SyncItem обновляет издание по данным внешнего каталога.
func (h *Handler) SyncItem(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")
	if !validation.IsValidBarcode(barcode) {
		writeBadRequest(w, "invalid barcode")
		return
	}

	item, err := h.service.SyncItem(r.Context(), barcode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemResponse(item))
}

// GetItemHolds возвращает очередь броней на издание.
func (h *Handler) GetItemHolds(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathUUID(w, r, "itemID")
	if !ok {
		return
	}

	holds, err := h.service.ItemHolds(r.Context(), itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newHoldResponses(holds))
}

// GetItemHistory возвращает историю выдач издания.
func (h *Handler) GetItemHistory(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathUUID(w, r, "itemID")
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	loans, err := h.service.ItemHistory(r.Context(), itemID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanResponses(loans))
}

// GetOverdueLoans возвращает просроченные выдачи.
func (h *Handler) GetOverdueLoans(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	loans, err := h.service.OverdueLoans(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanResponses(loans))
}

// GetPolicy возвращает правила категории читателей.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.service.Policy(r.Context(), chi.URLParam(r, "categoryID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPolicyResponse(policy))
}

// UpsertPolicy сохраняет правила категории читателей.
func (h *Handler) UpsertPolicy(w http.ResponseWriter, r *http.Request) {
	categoryID := chi.URLParam(r, "categoryID")

	var req policyBody
	if !h.decode(w, r, &req) {
		return
	}
	policy, ok := req.toPolicy(categoryID)
	if !ok {
		writeValidationError(w, errFractionalCents)
		return
	}

	if err := h.service.UpsertPolicy(r.Context(), policy); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPolicyResponse(policy))
}
