package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/circulation-system/internal/model"
)

// TxManager выполняет функцию в одной транзакции хранилища.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PolicyRepository хранит правила категорий читателей.
type PolicyRepository interface {
	GetPolicy(ctx context.Context, categoryID string) (model.Policy, error)
	UpsertPolicy(ctx context.Context, p model.Policy) error
}

// PatronRepository хранит читателей.
type PatronRepository interface {
	GetPatron(ctx context.Context, id uuid.UUID) (model.Patron, error)
	LockPatron(ctx context.Context, id uuid.UUID) (model.Patron, error)
	UpsertPatron(ctx context.Context, p model.Patron) error
	UpdatePatronStatus(ctx context.Context, id uuid.UUID, status model.PatronStatus, reason string) error
}

// ItemRepository хранит фонд экземпляров.
type ItemRepository interface {
	GetItem(ctx context.Context, id uuid.UUID) (model.Item, error)
	GetItemByBarcode(ctx context.Context, barcode string) (model.Item, error)
	LockItem(ctx context.Context, id uuid.UUID) (model.Item, error)
	ReserveCopy(ctx context.Context, id uuid.UUID) error
	ReleaseCopy(ctx context.Context, id uuid.UUID) error
	CreateItem(ctx context.Context, it model.Item) error
	UpdateItemStock(ctx context.Context, it model.Item) error
}

// LoanRepository хранит журнал выдач.
type LoanRepository interface {
	CreateLoan(ctx context.Context, l model.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (model.Loan, error)
	LockLoan(ctx context.Context, id uuid.UUID) (model.Loan, error)
	FindActiveLoan(ctx context.Context, itemID uuid.UUID, patronID *uuid.UUID) (model.Loan, error)
	UpdateLoan(ctx context.Context, l model.Loan) error
	CountActiveLoans(ctx context.Context, patronID uuid.UUID) (int, error)
	ListLoans(ctx context.Context, f model.LoanFilter) ([]model.Loan, error)
	OverdueTotals(ctx context.Context, now time.Time) (model.OverdueTotals, error)
}

// HoldRepository хранит очереди броней.
type HoldRepository interface {
	CreateHold(ctx context.Context, h model.Hold) error
	GetHold(ctx context.Context, id uuid.UUID) (model.Hold, error)
	LockHold(ctx context.Context, id uuid.UUID) (model.Hold, error)
	FindOpenHold(ctx context.Context, patronID, itemID uuid.UUID) (model.Hold, error)
	CountOpenHolds(ctx context.Context, itemID uuid.UUID) (int, error)
	MaxQueuePosition(ctx context.Context, itemID uuid.UUID) (int, error)
	NextWaitingHold(ctx context.Context, itemID uuid.UUID) (model.Hold, error)
	UpdateHold(ctx context.Context, h model.Hold) error
	ShiftQueue(ctx context.Context, itemID uuid.UUID, position int) error
	ListStaleHolds(ctx context.Context, now time.Time, limit int) ([]model.Hold, error)
	ListHolds(ctx context.Context, f model.HoldFilter) ([]model.Hold, error)
}

// FineRepository хранит журнал штрафов и платежей.
type FineRepository interface {
	CreateFine(ctx context.Context, f model.Fine) error
	GetFine(ctx context.Context, id uuid.UUID) (model.Fine, error)
	LockFine(ctx context.Context, id uuid.UUID) (model.Fine, error)
	UpdateFine(ctx context.Context, f model.Fine) error
	AddFinePayment(ctx context.Context, p model.FinePayment) error
	ListFinePayments(ctx context.Context, fineID uuid.UUID) ([]model.FinePayment, error)
	UnpaidFineTotal(ctx context.Context, patronID uuid.UUID) (int64, error)
	ListFines(ctx context.Context, f model.FineFilter) ([]model.Fine, error)
	FineTotals(ctx context.Context, statuses []model.FineStatus) ([]model.FineTotals, error)
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	TxManager
	PolicyRepository
	PatronRepository
	ItemRepository
	LoanRepository
	HoldRepository
	FineRepository
	Close() error
}
