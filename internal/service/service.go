// Package service реализует бизнес-логику книговыдачи.
package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/circulation-system/internal/catalog"
	"github.com/mmeshcher/circulation-system/internal/model"
)

// CatalogClient запрашивает данные изданий во внешнем каталоге.
type CatalogClient interface {
	GetItem(ctx context.Context, barcode string) (*catalog.Record, int, time.Duration, error)
}

// CheckinRequest задаёт возвращаемую выдачу: по идентификатору либо по штрихкоду издания.
type CheckinRequest struct {
	LoanID   *uuid.UUID
	Barcode  string
	PatronID *uuid.UUID
}

// CheckinResult описывает итог возврата.
type CheckinResult struct {
	Loan         model.Loan
	Fine         *model.Fine
	HoldPromoted *model.Hold
}

// LostResult описывает итог списания утерянного экземпляра.
type LostResult struct {
	Loan model.Loan
	Fine *model.Fine
}

// Service объединяет компоненты книговыдачи. Каждая операция выполняется
// в одной транзакции; строки блокируются в порядке: читатель, издание,
// затем выдача, бронь или штраф.
type Service struct {
	repo      Repository
	catalog   CatalogClient
	logger    *zap.Logger
	now       func() time.Time
	policies  *PolicyCatalog
	inventory *Inventory
	loans     *LoanLedger
	holds     *HoldQueue
	fines     *FineLedger
}

// Option настраивает сервис.
type Option func(*Service)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithCatalog подключает внешний каталог изданий.
func WithCatalog(c CatalogClient) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	s.policies = NewPolicyCatalog(repo)
	s.inventory = NewInventory(repo, s.now)
	s.fines = NewFineLedger(repo, repo, s.now)
	s.loans = NewLoanLedger(repo, s.inventory, s.fines, s.now)
	s.holds = NewHoldQueue(repo, repo, s.policies, s.inventory, s.now)
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Checkout выдаёт экземпляр издания читателю.
func (s *Service) Checkout(ctx context.Context, actor model.Actor, patronID, itemID uuid.UUID) (model.Loan, error) {
	if !actor.CanActFor(patronID) {
		return model.Loan{}, model.ErrForbidden
	}

	var loan model.Loan
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		patron, err := s.repo.LockPatron(ctx, patronID)
		if err != nil {
			return err
		}
		if _, err := s.inventory.Lock(ctx, itemID); err != nil {
			return err
		}
		policy, err := s.policies.For(ctx, patron)
		if err != nil {
			return err
		}

		earmarked, err := s.holds.ConsumeReady(ctx, patron.ID, itemID)
		if err != nil {
			return err
		}

		loan, err = s.loans.Checkout(ctx, patron, itemID, policy, earmarked)
		return err
	})
	if err != nil {
		return model.Loan{}, err
	}

	s.logger.Info("checkout",
		zap.String("loan_id", loan.ID.String()),
		zap.String("patron_id", patronID.String()),
		zap.String("item_id", itemID.String()),
		zap.Time("due_date", loan.DueDate),
	)
	return loan, nil
}

// CheckoutByBarcode выдаёт экземпляр издания, найденного по штрихкоду.
func (s *Service) CheckoutByBarcode(ctx context.Context, actor model.Actor, patronID uuid.UUID, barcode string) (model.Loan, error) {
	item, err := s.repo.GetItemByBarcode(ctx, barcode)
	if err != nil {
		return model.Loan{}, err
	}
	return s.Checkout(ctx, actor, patronID, item.ID)
}

// Checkin принимает экземпляр, начисляет штраф за просрочку и продвигает очередь броней.
func (s *Service) Checkin(ctx context.Context, actor model.Actor, req CheckinRequest) (CheckinResult, error) {
	var res CheckinResult
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		candidate, err := s.resolveLoan(ctx, req)
		if err != nil {
			return err
		}
		if !actor.CanActFor(candidate.PatronID) {
			return model.ErrForbidden
		}

		patron, err := s.repo.LockPatron(ctx, candidate.PatronID)
		if err != nil {
			return err
		}
		if _, err := s.inventory.Lock(ctx, candidate.ItemID); err != nil {
			return err
		}
		loan, err := s.repo.LockLoan(ctx, candidate.ID)
		if err != nil {
			return err
		}
		if !loan.IsActive() {
			return model.ErrLoanNotFound
		}

		policy, err := s.policies.For(ctx, patron)
		if err != nil {
			return err
		}

		if err := s.loans.Return(ctx, &loan); err != nil {
			return err
		}
		fine, err := s.fines.AssessIfOverdue(ctx, loan, policy)
		if err != nil {
			return err
		}
		if err := s.inventory.Release(ctx, loan.ItemID); err != nil {
			return err
		}
		promoted, err := s.holds.TryFulfilNext(ctx, loan.ItemID)
		if err != nil {
			return err
		}
		if fine != nil {
			if _, err := s.fines.Reconcile(ctx, patron, policy); err != nil {
				return err
			}
		}

		res = CheckinResult{Loan: loan, Fine: fine, HoldPromoted: promoted}
		return nil
	})
	if err != nil {
		return CheckinResult{}, err
	}

	fields := []zap.Field{
		zap.String("loan_id", res.Loan.ID.String()),
		zap.String("item_id", res.Loan.ItemID.String()),
	}
	if res.Fine != nil {
		fields = append(fields, zap.Int64("fine_amount", res.Fine.AmountAssessed))
	}
	if res.HoldPromoted != nil {
		fields = append(fields, zap.String("hold_promoted", res.HoldPromoted.ID.String()))
	}
	s.logger.Info("checkin", fields...)
	return res, nil
}

func (s *Service) resolveLoan(ctx context.Context, req CheckinRequest) (model.Loan, error) {
	if req.LoanID != nil {
		loan, err := s.repo.GetLoan(ctx, *req.LoanID)
		if err != nil {
			return model.Loan{}, err
		}
		if !loan.IsActive() {
			return model.Loan{}, model.ErrLoanNotFound
		}
		return loan, nil
	}
	if req.Barcode == "" {
		return model.Loan{}, model.ErrInvalidInput
	}
	item, err := s.repo.GetItemByBarcode(ctx, req.Barcode)
	if err != nil {
		return model.Loan{}, err
	}
	return s.repo.FindActiveLoan(ctx, item.ID, req.PatronID)
}

// Renew продлевает выдачу на один срок.
func (s *Service) Renew(ctx context.Context, actor model.Actor, loanID uuid.UUID) (model.Loan, error) {
	var loan model.Loan
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		candidate, err := s.repo.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if !actor.CanActFor(candidate.PatronID) {
			return model.ErrForbidden
		}

		patron, err := s.repo.LockPatron(ctx, candidate.PatronID)
		if err != nil {
			return err
		}
		if _, err := s.inventory.Lock(ctx, candidate.ItemID); err != nil {
			return err
		}
		loan, err = s.repo.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}

		policy, err := s.policies.For(ctx, patron)
		if err != nil {
			return err
		}
		pending, err := s.holds.Pending(ctx, loan.ItemID)
		if err != nil {
			return err
		}
		return s.loans.Renew(ctx, &loan, patron, policy, pending)
	})
	if err != nil {
		return model.Loan{}, err
	}

	s.logger.Info("renew",
		zap.String("loan_id", loan.ID.String()),
		zap.Int("renewal_count", loan.RenewalCount),
		zap.Time("due_date", loan.DueDate),
	)
	return loan, nil
}

// MarkLost списывает экземпляр по активной выдаче как утерянный и начисляет штраф.
func (s *Service) MarkLost(ctx context.Context, actor model.Actor, loanID uuid.UUID) (LostResult, error) {
	if !actor.IsStaff() {
		return LostResult{}, model.ErrForbidden
	}

	var res LostResult
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		candidate, err := s.repo.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		patron, err := s.repo.LockPatron(ctx, candidate.PatronID)
		if err != nil {
			return err
		}
		item, err := s.inventory.Lock(ctx, candidate.ItemID)
		if err != nil {
			return err
		}
		loan, err := s.repo.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		policy, err := s.policies.For(ctx, patron)
		if err != nil {
			return err
		}

		if err := s.loans.MarkLost(ctx, &loan, item); err != nil {
			return err
		}
		fine, err := s.fines.AssessLost(ctx, loan, policy)
		if err != nil {
			return err
		}
		if fine != nil {
			if _, err := s.fines.Reconcile(ctx, patron, policy); err != nil {
				return err
			}
		}
		res = LostResult{Loan: loan, Fine: fine}
		return nil
	})
	if err != nil {
		return LostResult{}, err
	}

	s.logger.Info("loan marked lost", zap.String("loan_id", loanID.String()))
	return res, nil
}

// PlaceHold ставит читателя в очередь на полностью выданное издание.
func (s *Service) PlaceHold(ctx context.Context, actor model.Actor, patronID, itemID uuid.UUID) (model.Hold, error) {
	if !actor.CanActFor(patronID) {
		return model.Hold{}, model.ErrForbidden
	}

	var hold model.Hold
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.LockPatron(ctx, patronID); err != nil {
			return err
		}
		item, err := s.inventory.Lock(ctx, itemID)
		if err != nil {
			return err
		}
		hold, err = s.holds.Place(ctx, patronID, item)
		return err
	})
	if err != nil {
		return model.Hold{}, err
	}

	s.logger.Info("hold placed",
		zap.String("hold_id", hold.ID.String()),
		zap.Int("queue_position", hold.QueuePosition),
	)
	return hold, nil
}

// CancelHold отменяет открытую бронь.
func (s *Service) CancelHold(ctx context.Context, actor model.Actor, holdID uuid.UUID) error {
	var promoted *model.Hold
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		candidate, err := s.repo.GetHold(ctx, holdID)
		if err != nil {
			return err
		}
		if !actor.CanActFor(candidate.PatronID) {
			return model.ErrForbidden
		}
		if _, err := s.repo.LockPatron(ctx, candidate.PatronID); err != nil {
			return err
		}
		if _, err := s.inventory.Lock(ctx, candidate.ItemID); err != nil {
			return err
		}
		hold, err := s.repo.LockHold(ctx, holdID)
		if err != nil {
			return err
		}
		promoted, err = s.holds.Cancel(ctx, &hold)
		return err
	})
	if err != nil {
		return err
	}

	fields := []zap.Field{zap.String("hold_id", holdID.String())}
	if promoted != nil {
		fields = append(fields, zap.String("hold_promoted", promoted.ID.String()))
	}
	s.logger.Info("hold cancelled", fields...)
	return nil
}

// PayFine учитывает платёж по штрафу.
func (s *Service) PayFine(ctx context.Context, actor model.Actor, fineID uuid.UUID, p Payment) (model.Fine, error) {
	var fine model.Fine
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		candidate, err := s.repo.GetFine(ctx, fineID)
		if err != nil {
			return err
		}
		if !actor.CanActFor(candidate.PatronID) {
			return model.ErrForbidden
		}
		patron, err := s.repo.LockPatron(ctx, candidate.PatronID)
		if err != nil {
			return err
		}
		fine, err = s.repo.LockFine(ctx, fineID)
		if err != nil {
			return err
		}
		if err := s.fines.Pay(ctx, &fine, p); err != nil {
			return err
		}
		return s.reconcile(ctx, patron)
	})
	if err != nil {
		return model.Fine{}, err
	}

	s.logger.Info("fine payment",
		zap.String("fine_id", fineID.String()),
		zap.Int64("amount", p.Amount),
		zap.String("status", string(fine.Status)),
	)
	return fine, nil
}

// WaiveFine списывает штраф. Доступно только сотрудникам.
func (s *Service) WaiveFine(ctx context.Context, actor model.Actor, fineID uuid.UUID, reason string) (model.Fine, error) {
	if !actor.IsStaff() {
		return model.Fine{}, model.ErrForbidden
	}

	var fine model.Fine
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		candidate, err := s.repo.GetFine(ctx, fineID)
		if err != nil {
			return err
		}
		patron, err := s.repo.LockPatron(ctx, candidate.PatronID)
		if err != nil {
			return err
		}
		fine, err = s.repo.LockFine(ctx, fineID)
		if err != nil {
			return err
		}
		if err := s.fines.Waive(ctx, &fine, actor.ID.String(), reason); err != nil {
			return err
		}
		return s.reconcile(ctx, patron)
	})
	if err != nil {
		return model.Fine{}, err
	}

	s.logger.Info("fine waived", zap.String("fine_id", fineID.String()), zap.String("by", actor.ID.String()))
	return fine, nil
}

func (s *Service) reconcile(ctx context.Context, patron model.Patron) error {
	policy, err := s.policies.For(ctx, patron)
	if err != nil {
		return err
	}
	_, err = s.fines.Reconcile(ctx, patron, policy)
	return err
}

// UpsertItem заводит издание или меняет число экземпляров и раздаёт
// освободившиеся экземпляры ожидающим броням.
func (s *Service) UpsertItem(ctx context.Context, barcode, title string, total int) (model.Item, error) {
	var (
		item     model.Item
		promoted []model.Hold
	)
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		item, err = s.inventory.Upsert(ctx, barcode, title, total)
		if err != nil {
			return err
		}
		promoted, err = s.holds.FulfilAll(ctx, item.ID)
		if err != nil {
			return err
		}
		if len(promoted) > 0 {
			item, err = s.repo.GetItem(ctx, item.ID)
		}
		return err
	})
	if err != nil {
		return model.Item{}, err
	}

	s.logger.Info("item stock updated",
		zap.String("barcode", barcode),
		zap.Int("total_copies", item.TotalCopies),
		zap.Int("available_copies", item.AvailableCopies),
		zap.Int("holds_promoted", len(promoted)),
	)
	return item, nil
}

// SyncItem обновляет число экземпляров издания по данным внешнего каталога.
func (s *Service) SyncItem(ctx context.Context, barcode string) (model.Item, error) {
	if s.catalog == nil {
		return model.Item{}, fmt.Errorf("%w: catalog not configured", model.ErrCatalogUnavailable)
	}

	rec, code, retryAfter, err := s.catalog.GetItem(ctx, barcode)
	if err != nil {
		s.logger.Warn("catalog request failed", zap.String("barcode", barcode), zap.Error(err))
		return model.Item{}, fmt.Errorf("%w: %v", model.ErrCatalogUnavailable, err)
	}
	switch code {
	case http.StatusNotFound:
		return model.Item{}, model.ErrItemNotFound
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return model.Item{}, fmt.Errorf("%w: retry after %s", model.ErrCatalogUnavailable, retryAfter)
	}
	if rec == nil {
		return model.Item{}, model.ErrCatalogUnavailable
	}

	return s.UpsertItem(ctx, barcode, rec.Title, rec.TotalCopies)
}

// UpsertPolicy сохраняет правила категории читателей.
func (s *Service) UpsertPolicy(ctx context.Context, p model.Policy) error {
	return s.policies.Upsert(ctx, p)
}

// Policy возвращает правила категории читателей.
func (s *Service) Policy(ctx context.Context, categoryID string) (model.Policy, error) {
	return s.policies.Policy(ctx, categoryID)
}

// RegisterPatron регистрирует читателя или меняет его категорию.
func (s *Service) RegisterPatron(ctx context.Context, id uuid.UUID, categoryID string) (model.Patron, error) {
	var patron model.Patron
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.policies.Policy(ctx, categoryID); err != nil {
			return err
		}
		err := s.repo.UpsertPatron(ctx, model.Patron{
			ID:         id,
			CategoryID: categoryID,
			Status:     model.PatronStatusActive,
			CreatedAt:  s.now(),
		})
		if err != nil {
			return err
		}
		patron, err = s.repo.GetPatron(ctx, id)
		return err
	})
	return patron, err
}

// SetPatronStatus вручную блокирует или разблокирует читателя.
func (s *Service) SetPatronStatus(ctx context.Context, id uuid.UUID, status model.PatronStatus, reason string) (model.Patron, error) {
	if status != model.PatronStatusActive && status != model.PatronStatusSuspended {
		return model.Patron{}, model.ErrInvalidInput
	}
	if status == model.PatronStatusActive {
		reason = ""
	}

	var patron model.Patron
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		patron, err = s.repo.LockPatron(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.UpdatePatronStatus(ctx, id, status, reason); err != nil {
			return err
		}
		patron.Status = status
		patron.SuspensionReason = reason
		return nil
	})
	if err != nil {
		return model.Patron{}, err
	}

	s.logger.Info("patron status changed", zap.String("patron_id", id.String()), zap.String("status", string(status)))
	return patron, nil
}
