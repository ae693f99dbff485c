package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/circulation-system/internal/model"
)

// FineBalance сообщает неоплаченный остаток читателя.
type FineBalance interface {
	Outstanding(ctx context.Context, patronID uuid.UUID) (int64, error)
}

// LoanLedger ведёт журнал выдач: выдача, продление, возврат и утеря.
type LoanLedger struct {
	repo      LoanRepository
	inventory *Inventory
	fines     FineBalance
	now       func() time.Time
}

// NewLoanLedger создаёт журнал выдач.
func NewLoanLedger(repo LoanRepository, inventory *Inventory, fines FineBalance, now func() time.Time) *LoanLedger {
	return &LoanLedger{repo: repo, inventory: inventory, fines: fines, now: now}
}

// CheckEligibility проверяет допуск читателя к новой выдаче.
func (l *LoanLedger) CheckEligibility(ctx context.Context, patron model.Patron, policy model.Policy) error {
	if !patron.CanBorrow() {
		return model.ErrPatronSuspended
	}

	active, err := l.repo.CountActiveLoans(ctx, patron.ID)
	if err != nil {
		return err
	}
	if active >= policy.BorrowLimit {
		return model.ErrLoanLimitExceeded
	}

	unpaid, err := l.fines.Outstanding(ctx, patron.ID)
	if err != nil {
		return err
	}
	if unpaid > policy.FineCeiling {
		return model.ErrFinesOutstanding
	}
	return nil
}

// Checkout выдаёт экземпляр читателю. Если earmarked, экземпляр уже отложен
// под готовую бронь этого читателя и повторно не резервируется.
func (l *LoanLedger) Checkout(ctx context.Context, patron model.Patron, itemID uuid.UUID, policy model.Policy, earmarked bool) (model.Loan, error) {
	if err := l.CheckEligibility(ctx, patron, policy); err != nil {
		return model.Loan{}, err
	}

	if !earmarked {
		if err := l.inventory.Reserve(ctx, itemID); err != nil {
			if errors.Is(err, model.ErrOutOfStock) {
				return model.Loan{}, model.ErrItemUnavailable
			}
			return model.Loan{}, err
		}
	}

	loan := model.NewLoan(patron.ID, itemID, l.now(), policy)
	if err := l.repo.CreateLoan(ctx, loan); err != nil {
		return model.Loan{}, err
	}
	return loan, nil
}

// Renew продлевает выдачу. openHolds: число открытых броней на издание.
func (l *LoanLedger) Renew(ctx context.Context, loan *model.Loan, patron model.Patron, policy model.Policy, openHolds int) error {
	if !loan.IsActive() {
		return model.ErrLoanNotActive
	}
	if !patron.CanBorrow() {
		return model.ErrPatronSuspended
	}
	if loan.RenewalCount >= policy.RenewalLimit {
		return model.ErrRenewalLimitExceeded
	}
	if openHolds > 0 {
		return model.ErrHoldPending
	}
	if err := loan.Renew(l.now(), policy); err != nil {
		return err
	}
	return l.repo.UpdateLoan(ctx, *loan)
}

// Return закрывает выдачу возвратом. Экземпляр освобождает вызывающий код
// после начисления штрафа.
func (l *LoanLedger) Return(ctx context.Context, loan *model.Loan) error {
	if err := loan.Return(l.now()); err != nil {
		return err
	}
	return l.repo.UpdateLoan(ctx, *loan)
}

// MarkLost переводит активную выдачу в утерянные и списывает экземпляр из фонда.
func (l *LoanLedger) MarkLost(ctx context.Context, loan *model.Loan, item model.Item) error {
	if err := loan.MarkLost(l.now()); err != nil {
		return err
	}
	if err := l.repo.UpdateLoan(ctx, *loan); err != nil {
		return err
	}
	_, err := l.inventory.Withdraw(ctx, item)
	return err
}
