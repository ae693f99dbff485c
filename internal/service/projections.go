package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/mmeshcher/circulation-system/internal/model"
)

// PatronLoans возвращает выдачи читателя, новые первыми.
func (s *Service) PatronLoans(ctx context.Context, patronID uuid.UUID, statuses []model.LoanStatus) ([]model.Loan, error) {
	return s.repo.ListLoans(ctx, model.LoanFilter{PatronID: &patronID, Statuses: statuses})
}

// PatronHolds возвращает брони читателя.
func (s *Service) PatronHolds(ctx context.Context, patronID uuid.UUID, statuses []model.HoldStatus) ([]model.Hold, error) {
	return s.repo.ListHolds(ctx, model.HoldFilter{PatronID: &patronID, Statuses: statuses})
}

// PatronFines возвращает штрафы читателя.
func (s *Service) PatronFines(ctx context.Context, patronID uuid.UUID, statuses []model.FineStatus) ([]model.Fine, error) {
	return s.repo.ListFines(ctx, model.FineFilter{PatronID: &patronID, Statuses: statuses})
}

// FinePayments возвращает платежи по штрафу.
func (s *Service) FinePayments(ctx context.Context, actor model.Actor, fineID uuid.UUID) ([]model.FinePayment, error) {
	fine, err := s.repo.GetFine(ctx, fineID)
	if err != nil {
		return nil, err
	}
	if !actor.CanActFor(fine.PatronID) {
		return nil, model.ErrForbidden
	}
	return s.repo.ListFinePayments(ctx, fineID)
}

// ItemHolds возвращает открытые брони на издание в порядке очереди.
func (s *Service) ItemHolds(ctx context.Context, itemID uuid.UUID) ([]model.Hold, error) {
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.repo.ListHolds(ctx, model.HoldFilter{ItemID: &itemID, Statuses: model.OpenHoldStatuses})
}

// ItemHistory возвращает все выдачи издания, новые первыми.
func (s *Service) ItemHistory(ctx context.Context, itemID uuid.UUID, limit int) ([]model.Loan, error) {
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.repo.ListLoans(ctx, model.LoanFilter{ItemID: &itemID, Limit: limit})
}

// OverdueLoans возвращает активные выдачи с истёкшим сроком возврата.
func (s *Service) OverdueLoans(ctx context.Context, limit int) ([]model.Loan, error) {
	now := s.now()
	return s.repo.ListLoans(ctx, model.LoanFilter{
		Statuses:  []model.LoanStatus{model.LoanStatusActive},
		OverdueAt: &now,
		Limit:     limit,
	})
}

// PatronSummary возвращает карточку читателя для портала.
func (s *Service) PatronSummary(ctx context.Context, patronID uuid.UUID) (model.PatronSummary, error) {
	patron, err := s.repo.GetPatron(ctx, patronID)
	if err != nil {
		return model.PatronSummary{}, err
	}
	active, err := s.repo.CountActiveLoans(ctx, patronID)
	if err != nil {
		return model.PatronSummary{}, err
	}
	holds, err := s.repo.ListHolds(ctx, model.HoldFilter{PatronID: &patronID, Statuses: model.OpenHoldStatuses})
	if err != nil {
		return model.PatronSummary{}, err
	}
	unpaid, err := s.fines.Outstanding(ctx, patronID)
	if err != nil {
		return model.PatronSummary{}, err
	}
	return model.PatronSummary{
		Patron:       patron,
		ActiveLoans:  active,
		OpenHolds:    len(holds),
		UnpaidAmount: unpaid,
	}, nil
}

// Item возвращает издание по штрихкоду.
func (s *Service) Item(ctx context.Context, barcode string) (model.Item, error) {
	return s.repo.GetItemByBarcode(ctx, barcode)
}

// Loans возвращает выдачи всех читателей, новые первыми.
func (s *Service) Loans(ctx context.Context, statuses []model.LoanStatus, limit int) ([]model.Loan, error) {
	return s.repo.ListLoans(ctx, model.LoanFilter{Statuses: statuses, Limit: limit})
}

// Holds возвращает брони всех читателей.
func (s *Service) Holds(ctx context.Context, statuses []model.HoldStatus, limit int) ([]model.Hold, error) {
	return s.repo.ListHolds(ctx, model.HoldFilter{Statuses: statuses, Limit: limit})
}

// Fines возвращает штрафы всех читателей, новые первыми.
func (s *Service) Fines(ctx context.Context, statuses []model.FineStatus, limit int) ([]model.Fine, error) {
	return s.repo.ListFines(ctx, model.FineFilter{Statuses: statuses, Limit: limit})
}

// FineTotals возвращает свод штрафов по основанию и состоянию.
func (s *Service) FineTotals(ctx context.Context, statuses []model.FineStatus) ([]model.FineTotals, error) {
	return s.repo.FineTotals(ctx, statuses)
}

// OverdueTotals возвращает свод по просроченным выдачам на текущий момент.
func (s *Service) OverdueTotals(ctx context.Context) (model.OverdueTotals, error) {
	return s.repo.OverdueTotals(ctx, s.now())
}
