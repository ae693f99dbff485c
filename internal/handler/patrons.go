package handler

import (
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/mmeshcher/circulation-system/internal/model"
)

// ownPatron возвращает идентификатор читателя из пути, если субъект запроса
// вправе видеть его данные.
func (h *Handler) ownPatron(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return uuid.Nil, false
	}
	patronID, ok := pathUUID(w, r, "patronID")
	if !ok {
		return uuid.Nil, false
	}
	if !actor.CanActFor(patronID) {
		h.writeError(w, r, model.ErrForbidden)
		return uuid.Nil, false
	}
	return patronID, true
}

// queryStatuses разбирает параметр status=a,b и проверяет значения по списку допустимых.
func queryStatuses[S ~string](w http.ResponseWriter, r *http.Request, allowed ...S) ([]S, bool) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil, true
	}

	var out []S
	for part := range strings.SplitSeq(raw, ",") {
		s := S(strings.TrimSpace(part))
		if !slices.Contains(allowed, s) {
			writeBadRequest(w, "unknown status "+string(s))
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// GetPatron возвращает карточку читателя.
func (h *Handler) GetPatron(w http.ResponseWriter, r *http.Request) {
	patronID, ok := h.ownPatron(w, r)
	if !ok {
		return
	}

	summary, err := h.service.PatronSummary(r.Context(), patronID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPatronSummaryResponse(summary))
}

// GetPatronLoans возвращает выдачи читателя.
func (h *Handler) GetPatronLoans(w http.ResponseWriter, r *http.Request) {
	patronID, ok := h.ownPatron(w, r)
	if !ok {
		return
	}
	statuses, ok := queryStatuses(w, r, loanStatuses...)
	if !ok {
		return
	}

	loans, err := h.service.PatronLoans(r.Context(), patronID, statuses)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanResponses(loans))
}

// GetPatronHolds возвращает брони читателя.
func (h *Handler) GetPatronHolds(w http.ResponseWriter, r *http.Request) {
	patronID, ok := h.ownPatron(w, r)
	if !ok {
		return
	}
	statuses, ok := queryStatuses(w, r, holdStatuses...)
	if !ok {
		return
	}

	holds, err := h.service.PatronHolds(r.Context(), patronID, statuses)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newHoldResponses(holds))
}

// GetPatronFines возвращает штрафы читателя.
func (h *Handler) GetPatronFines(w http.ResponseWriter, r *http.Request) {
	patronID, ok := h.ownPatron(w, r)
	if !ok {
		return
	}
	statuses, ok := queryStatuses(w, r, fineStatuses...)
	if !ok {
		return
	}

	fines, err := h.service.PatronFines(r.Context(), patronID, statuses)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFineResponses(fines))
}

type registerPatronRequest struct {
	CategoryID string `json:"category_id" validate:"required,max=64"`
}

// RegisterPatron заводит читателя или меняет его категорию.
func (h *Handler) RegisterPatron(w http.ResponseWriter, r *http.Request) {
	patronID, ok := pathUUID(w, r, "patronID")
	if !ok {
		return
	}

	var req registerPatronRequest
	if !h.decode(w, r, &req) {
		return
	}

	patron, err := h.service.RegisterPatron(r.Context(), patronID, req.CategoryID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPatronResponse(patron))
}

type patronStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended"`
	Reason string `json:"reason" validate:"max=256"`
}

// SetPatronStatus вручную блокирует или разблокирует читателя.
func (h *Handler) SetPatronStatus(w http.ResponseWriter, r *http.Request) {
	patronID, ok := pathUUID(w, r, "patronID")
	if !ok {
		return
	}

	var req patronStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	patron, err := h.service.SetPatronStatus(r.Context(), patronID, model.PatronStatus(req.Status), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPatronResponse(patron))
}
