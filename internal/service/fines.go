package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/circulation-system/internal/model"
)

// Payment описывает платёж по штрафу.
type Payment struct {
	Amount    int64
	Method    string
	Reference string
}

// FineLedger ведёт журнал штрафов. Выдачи и фонд он не изменяет,
// но по итогам начислений блокирует и разблокирует читателей.
type FineLedger struct {
	repo    FineRepository
	patrons PatronRepository
	now     func() time.Time
}

// NewFineLedger создаёт журнал штрафов.
func NewFineLedger(repo FineRepository, patrons PatronRepository, now func() time.Time) *FineLedger {
	return &FineLedger{repo: repo, patrons: patrons, now: now}
}

// Outstanding возвращает неоплаченный остаток читателя.
func (f *FineLedger) Outstanding(ctx context.Context, patronID uuid.UUID) (int64, error) {
	return f.repo.UnpaidFineTotal(ctx, patronID)
}

// AssessIfOverdue начисляет штраф за возврат после срока. Возвращает nil, если просрочки нет.
func (f *FineLedger) AssessIfOverdue(ctx context.Context, loan model.Loan, policy model.Policy) (*model.Fine, error) {
	fine, ok := model.NewOverdueFine(loan, policy)
	if !ok {
		return nil, nil
	}
	if err := f.repo.CreateFine(ctx, fine); err != nil {
		return nil, err
	}
	return &fine, nil
}

// AssessLost начисляет штраф за утерянный экземпляр.
func (f *FineLedger) AssessLost(ctx context.Context, loan model.Loan, policy model.Policy) (*model.Fine, error) {
	fine, ok := model.NewLostFine(loan, policy, f.now())
	if !ok {
		return nil, nil
	}
	if err := f.repo.CreateFine(ctx, fine); err != nil {
		return nil, err
	}
	return &fine, nil
}

// Pay учитывает платёж и записывает его в журнал платежей.
func (f *FineLedger) Pay(ctx context.Context, fine *model.Fine, p Payment) error {
	if err := fine.Pay(p.Amount); err != nil {
		return err
	}
	if err := f.repo.UpdateFine(ctx, *fine); err != nil {
		return err
	}
	return f.repo.AddFinePayment(ctx, model.FinePayment{
		ID:        uuid.New(),
		FineID:    fine.ID,
		Amount:    p.Amount,
		Method:    p.Method,
		Reference: p.Reference,
		PaidAt:    f.now(),
	})
}

// Waive списывает штраф.
func (f *FineLedger) Waive(ctx context.Context, fine *model.Fine, by, reason string) error {
	if err := fine.Waive(by, reason); err != nil {
		return err
	}
	return f.repo.UpdateFine(ctx, *fine)
}

// Reconcile приводит статус читателя в соответствие с остатком по штрафам:
// блокирует при превышении потолка и снимает блокировку, поставленную за штрафы.
// Блокировки по другим причинам не снимаются.
func (f *FineLedger) Reconcile(ctx context.Context, patron model.Patron, policy model.Policy) (model.Patron, error) {
	unpaid, err := f.Outstanding(ctx, patron.ID)
	if err != nil {
		return patron, err
	}

	switch {
	case patron.Status == model.PatronStatusActive && unpaid > policy.FineCeiling:
		patron.Status = model.PatronStatusSuspended
		patron.SuspensionReason = model.SuspensionReasonFines
	case patron.Status == model.PatronStatusSuspended &&
		patron.SuspensionReason == model.SuspensionReasonFines &&
		unpaid <= policy.FineCeiling:
		patron.Status = model.PatronStatusActive
		patron.SuspensionReason = ""
	default:
		return patron, nil
	}

	if err := f.patrons.UpdatePatronStatus(ctx, patron.ID, patron.Status, patron.SuspensionReason); err != nil {
		return patron, err
	}
	return patron, nil
}
