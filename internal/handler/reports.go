package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/circulation-system/internal/model"
)

var (
	loanStatuses = []model.LoanStatus{model.LoanStatusActive, model.LoanStatusReturned, model.LoanStatusLost}
	holdStatuses = []model.HoldStatus{
		model.HoldStatusWaiting, model.HoldStatusReady, model.HoldStatusFulfilled,
		model.HoldStatusCancelled, model.HoldStatusExpired,
	}
	fineStatuses = []model.FineStatus{model.FineStatusUnpaid, model.FineStatusPaid, model.FineStatusWaived}
)

// GetLoans возвращает выдачи всех читателей.
func (h *Handler) GetLoans(w http.ResponseWriter, r *http.Request) {
	statuses, ok := queryStatuses(w, r, loanStatuses...)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	loans, err := h.service.Loans(r.Context(), statuses, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanResponses(loans))
}

// GetHolds возвращает брони всех читателей.
func (h *Handler) GetHolds(w http.ResponseWriter, r *http.Request) {
	statuses, ok := queryStatuses(w, r, holdStatuses...)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	holds, err := h.service.Holds(r.Context(), statuses, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newHoldResponses(holds))
}

// GetFines возвращает штрафы всех читателей.
func (h *Handler) GetFines(w http.ResponseWriter, r *http.Request) {
	statuses, ok := queryStatuses(w, r, fineStatuses...)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	fines, err := h.service.Fines(r.Context(), statuses, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFineResponses(fines))
}

type fineTotalsResponse struct {
	Kind        string          `json:"kind"`
	Status      string          `json:"status"`
	Count       int             `json:"count"`
	Assessed    decimal.Decimal `json:"total_assessed"`
	Paid        decimal.Decimal `json:"total_paid"`
	Outstanding decimal.Decimal `json:"total_outstanding"`
}

type finesSummaryResponse struct {
	Groups []fineTotalsResponse `json:"groups"`
	Unpaid decimal.Decimal      `json:"unpaid"`
	Paid   decimal.Decimal      `json:"paid"`
	Waived decimal.Decimal      `json:"waived"`
}

// GetFinesSummary возвращает свод штрафов по основанию и состоянию с итогами.
// Unpaid считает неоплаченные остатки, Paid все внесённые платежи,
// Waived списанные остатки.
func (h *Handler) GetFinesSummary(w http.ResponseWriter, r *http.Request) {
	statuses, ok := queryStatuses(w, r, fineStatuses...)
	if !ok {
		return
	}

	totals, err := h.service.FineTotals(r.Context(), statuses)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var unpaid, paid, waived int64
	groups := make([]fineTotalsResponse, 0, len(totals))
	for _, t := range totals {
		groups = append(groups, fineTotalsResponse{
			Kind:        string(t.Kind),
			Status:      string(t.Status),
			Count:       t.Count,
			Assessed:    fromMinor(t.Assessed),
			Paid:        fromMinor(t.Paid),
			Outstanding: fromMinor(t.Outstanding),
		})
		unpaid += t.Outstanding
		paid += t.Paid
		if t.Status == model.FineStatusWaived {
			waived += t.Assessed - t.Paid
		}
	}

	writeJSON(w, http.StatusOK, finesSummaryResponse{
		Groups: groups,
		Unpaid: fromMinor(unpaid),
		Paid:   fromMinor(paid),
		Waived: fromMinor(waived),
	})
}

type overdueSummaryResponse struct {
	TotalOverdue     int     `json:"total_overdue"`
	TotalDaysOverdue int     `json:"total_days_overdue"`
	AvgDaysOverdue   float64 `json:"avg_days_overdue"`
	MaxDaysOverdue   int     `json:"max_days_overdue"`
}

// GetOverdueSummary возвращает свод по просроченным выдачам.
func (h *Handler) GetOverdueSummary(w http.ResponseWriter, r *http.Request) {
	totals, err := h.service.OverdueTotals(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overdueSummaryResponse{
		TotalOverdue:     totals.Loans,
		TotalDaysOverdue: totals.TotalDaysOverdue,
		AvgDaysOverdue:   totals.AverageDaysOverdue(),
		MaxDaysOverdue:   totals.MaxDaysOverdue,
	})
}
