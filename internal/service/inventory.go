package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/circulation-system/internal/model"
)

// Inventory владеет счётчиками экземпляров. Любое изменение available_copies
// проходит через Reserve и Release.
type Inventory struct {
	repo ItemRepository
	now  func() time.Time
}

// NewInventory создаёт учёт фонда.
func NewInventory(repo ItemRepository, now func() time.Time) *Inventory {
	return &Inventory{repo: repo, now: now}
}

// Reserve занимает свободный экземпляр. При отсутствии свободных возвращает model.ErrOutOfStock.
func (i *Inventory) Reserve(ctx context.Context, itemID uuid.UUID) error {
	return i.repo.ReserveCopy(ctx, itemID)
}

// Release возвращает экземпляр в свободный фонд.
func (i *Inventory) Release(ctx context.Context, itemID uuid.UUID) error {
	return i.repo.ReleaseCopy(ctx, itemID)
}

// Lock блокирует издание до конца транзакции.
func (i *Inventory) Lock(ctx context.Context, itemID uuid.UUID) (model.Item, error) {
	return i.repo.LockItem(ctx, itemID)
}

// Upsert заводит издание или меняет общее число экземпляров.
// Изменение применяется к свободным экземплярам как разница: выданные и отложенные не трогаются.
func (i *Inventory) Upsert(ctx context.Context, barcode, title string, total int) (model.Item, error) {
	if total < 0 {
		return model.Item{}, model.ErrInvalidInput
	}

	existing, err := i.repo.GetItemByBarcode(ctx, barcode)
	if errors.Is(err, model.ErrItemNotFound) {
		it := model.Item{
			ID:              uuid.New(),
			Barcode:         barcode,
			Title:           title,
			TotalCopies:     total,
			AvailableCopies: total,
			UpdatedAt:       i.now(),
		}
		if err := i.repo.CreateItem(ctx, it); err != nil {
			return model.Item{}, err
		}
		return it, nil
	}
	if err != nil {
		return model.Item{}, err
	}

	it, err := i.repo.LockItem(ctx, existing.ID)
	if err != nil {
		return model.Item{}, err
	}

	available := it.AvailableCopies + total - it.TotalCopies
	if available < 0 {
		return model.Item{}, model.ErrCopiesInUse
	}
	if title != "" {
		it.Title = title
	}
	it.TotalCopies = total
	it.AvailableCopies = available
	it.UpdatedAt = i.now()

	if err := i.repo.UpdateItemStock(ctx, it); err != nil {
		return model.Item{}, err
	}
	return it, nil
}

// Withdraw списывает утерянный экземпляр. Свободный остаток не меняется,
// так как экземпляр числился выданным.
func (i *Inventory) Withdraw(ctx context.Context, item model.Item) (model.Item, error) {
	if item.TotalCopies <= item.AvailableCopies {
		return model.Item{}, model.ErrCopiesInUse
	}
	item.TotalCopies--
	item.UpdatedAt = i.now()
	if err := i.repo.UpdateItemStock(ctx, item); err != nil {
		return model.Item{}, err
	}
	return item, nil
}
