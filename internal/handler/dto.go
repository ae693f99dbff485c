package handler

import (
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/circulation-system/internal/model"
)

// Денежные суммы в API передаются десятичными числами в основных единицах
// валюты, внутри сервиса хранятся в копейках.
const minorUnitExp = 2

var errFractionalCents = errors.New("amounts must not contain fractions of a cent")

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

func fromMinor(cents int64) decimal.Decimal {
	return decimal.New(cents, -minorUnitExp)
}

// toMinor переводит сумму в копейки. Возвращает false, если сумма содержит
// доли копейки или не помещается в int64.
func toMinor(d decimal.Decimal) (int64, bool) {
	shifted := d.Shift(minorUnitExp)
	if !shifted.IsInteger() {
		return 0, false
	}
	if shifted.GreaterThan(maxMinor) || shifted.LessThan(minMinor) {
		return 0, false
	}
	return shifted.IntPart(), true
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

type loanResponse struct {
	ID           string  `json:"id"`
	PatronID     string  `json:"patron_id"`
	ItemID       string  `json:"item_id"`
	CheckoutDate string  `json:"checkout_date"`
	DueDate      string  `json:"due_date"`
	CheckinDate  *string `json:"checkin_date,omitempty"`
	RenewalCount int     `json:"renewal_count"`
	Status       string  `json:"status"`
}

func newLoanResponse(l model.Loan) loanResponse {
	return loanResponse{
		ID:           l.ID.String(),
		PatronID:     l.PatronID.String(),
		ItemID:       l.ItemID.String(),
		CheckoutDate: l.CheckoutDate.Format(time.RFC3339),
		DueDate:      l.DueDate.Format(time.RFC3339),
		CheckinDate:  formatTime(l.CheckinDate),
		RenewalCount: l.RenewalCount,
		Status:       string(l.Status),
	}
}

func newLoanResponses(loans []model.Loan) []loanResponse {
	resp := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		resp = append(resp, newLoanResponse(l))
	}
	return resp
}

type holdResponse struct {
	ID            string  `json:"id"`
	PatronID      string  `json:"patron_id"`
	ItemID        string  `json:"item_id"`
	PlacedAt      string  `json:"placed_at"`
	QueuePosition int     `json:"queue_position,omitempty"`
	Status        string  `json:"status"`
	ReadySince    *string `json:"ready_since,omitempty"`
	ExpiresAt     *string `json:"expires_at,omitempty"`
}

func newHoldResponse(h model.Hold) holdResponse {
	return holdResponse{
		ID:            h.ID.String(),
		PatronID:      h.PatronID.String(),
		ItemID:        h.ItemID.String(),
		PlacedAt:      h.PlacedAt.Format(time.RFC3339),
		QueuePosition: h.QueuePosition,
		Status:        string(h.Status),
		ReadySince:    formatTime(h.ReadySince),
		ExpiresAt:     formatTime(h.ExpiresAt),
	}
}

func newHoldResponses(holds []model.Hold) []holdResponse {
	resp := make([]holdResponse, 0, len(holds))
	for _, h := range holds {
		resp = append(resp, newHoldResponse(h))
	}
	return resp
}

type fineResponse struct {
	ID             string          `json:"id"`
	LoanID         string          `json:"loan_id"`
	PatronID       string          `json:"patron_id"`
	Kind           string          `json:"kind"`
	AmountAssessed decimal.Decimal `json:"amount_assessed"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	DaysOverdue    int             `json:"days_overdue"`
	Status         string          `json:"status"`
	AssessedAt     string          `json:"assessed_at"`
	WaivedBy       string          `json:"waived_by,omitempty"`
	WaiveReason    string          `json:"waive_reason,omitempty"`
}

func newFineResponse(f model.Fine) fineResponse {
	return fineResponse{
		ID:             f.ID.String(),
		LoanID:         f.LoanID.String(),
		PatronID:       f.PatronID.String(),
		Kind:           string(f.Kind),
		AmountAssessed: fromMinor(f.AmountAssessed),
		AmountPaid:     fromMinor(f.AmountPaid),
		Outstanding:    fromMinor(f.Outstanding()),
		DaysOverdue:    f.DaysOverdue,
		Status:         string(f.Status),
		AssessedAt:     f.AssessedAt.Format(time.RFC3339),
		WaivedBy:       f.WaivedBy,
		WaiveReason:    f.WaiveReason,
	}
}

func newFineResponses(fines []model.Fine) []fineResponse {
	resp := make([]fineResponse, 0, len(fines))
	for _, f := range fines {
		resp = append(resp, newFineResponse(f))
	}
	return resp
}

type paymentResponse struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method,omitempty"`
	Reference string          `json:"reference,omitempty"`
	PaidAt    string          `json:"paid_at"`
}

type itemResponse struct {
	ID              string `json:"id"`
	Barcode         string `json:"barcode"`
	Title           string `json:"title"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
}

func newItemResponse(it model.Item) itemResponse {
	return itemResponse{
		ID:              it.ID.String(),
		Barcode:         it.Barcode,
		Title:           it.Title,
		TotalCopies:     it.TotalCopies,
		AvailableCopies: it.AvailableCopies,
	}
}

type patronResponse struct {
	ID               string          `json:"id"`
	CategoryID       string          `json:"category_id"`
	Status           string          `json:"status"`
	SuspensionReason string          `json:"suspension_reason,omitempty"`
	ActiveLoans      *int            `json:"active_loans,omitempty"`
	OpenHolds        *int            `json:"open_holds,omitempty"`
	UnpaidAmount     decimal.Decimal `json:"unpaid_amount"`
}

func newPatronResponse(p model.Patron) patronResponse {
	return patronResponse{
		ID:               p.ID.String(),
		CategoryID:       p.CategoryID,
		Status:           string(p.Status),
		SuspensionReason: p.SuspensionReason,
		UnpaidAmount:     decimal.Zero,
	}
}

func newPatronSummaryResponse(s model.PatronSummary) patronResponse {
	resp := newPatronResponse(s.Patron)
	resp.ActiveLoans = &s.ActiveLoans
	resp.OpenHolds = &s.OpenHolds
	resp.UnpaidAmount = fromMinor(s.UnpaidAmount)
	return resp
}

type policyBody struct {
	BorrowLimit    int             `json:"borrow_limit" validate:"gte=0"`
	LoanPeriodDays int             `json:"loan_period_days" validate:"gt=0"`
	RenewalLimit   int             `json:"renewal_limit" validate:"gte=0"`
	FineRatePerDay decimal.Decimal `json:"fine_rate_per_day"`
	FineCap        decimal.Decimal `json:"fine_cap"`
	HoldExpiryDays int             `json:"hold_expiry_days" validate:"gt=0"`
	FineCeiling    decimal.Decimal `json:"fine_ceiling"`
}

type policyResponse struct {
	CategoryID string `json:"category_id"`
	policyBody
}

func newPolicyResponse(p model.Policy) policyResponse {
	return policyResponse{
		CategoryID: p.CategoryID,
		policyBody: policyBody{
			BorrowLimit:    p.BorrowLimit,
			LoanPeriodDays: p.LoanPeriodDays,
			RenewalLimit:   p.RenewalLimit,
			FineRatePerDay: fromMinor(p.FineRatePerDay),
			FineCap:        fromMinor(p.FineCap),
			HoldExpiryDays: p.HoldExpiryDays,
			FineCeiling:    fromMinor(p.FineCeiling),
		},
	}
}

// toPolicy переводит тело запроса в политику. Возвращает false при долях копейки.
func (b policyBody) toPolicy(categoryID string) (model.Policy, bool) {
	rate, ok1 := toMinor(b.FineRatePerDay)
	limit, ok2 := toMinor(b.FineCap)
	ceiling, ok3 := toMinor(b.FineCeiling)
	if !ok1 || !ok2 || !ok3 {
		return model.Policy{}, false
	}
	return model.Policy{
		CategoryID:     categoryID,
		BorrowLimit:    b.BorrowLimit,
		LoanPeriodDays: b.LoanPeriodDays,
		RenewalLimit:   b.RenewalLimit,
		FineRatePerDay: rate,
		FineCap:        limit,
		HoldExpiryDays: b.HoldExpiryDays,
		FineCeiling:    ceiling,
	}, true
}
