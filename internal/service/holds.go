package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/circulation-system/internal/model"
)

// HoldQueue ведёт FIFO-очереди броней по изданиям.
// Позиции ожидающих броней одного издания всегда образуют ряд 1..N.
type HoldQueue struct {
	repo      HoldRepository
	patrons   PatronRepository
	policies  *PolicyCatalog
	inventory *Inventory
	now       func() time.Time
}

// NewHoldQueue создаёт менеджер очередей.
func NewHoldQueue(repo HoldRepository, patrons PatronRepository, policies *PolicyCatalog, inventory *Inventory, now func() time.Time) *HoldQueue {
	return &HoldQueue{repo: repo, patrons: patrons, policies: policies, inventory: inventory, now: now}
}

// Place ставит читателя в конец очереди. Бронь допустима только на полностью выданное издание.
func (q *HoldQueue) Place(ctx context.Context, patronID uuid.UUID, item model.Item) (model.Hold, error) {
	_, err := q.repo.FindOpenHold(ctx, patronID, item.ID)
	switch {
	case err == nil:
		return model.Hold{}, model.ErrDuplicateHold
	case !errors.Is(err, model.ErrHoldNotFound):
		return model.Hold{}, err
	}

	if item.AvailableCopies > 0 {
		return model.Hold{}, model.ErrItemAvailable
	}

	last, err := q.repo.MaxQueuePosition(ctx, item.ID)
	if err != nil {
		return model.Hold{}, err
	}

	h := model.NewHold(patronID, item.ID, q.now(), last+1)
	if err := q.repo.CreateHold(ctx, h); err != nil {
		return model.Hold{}, err
	}
	return h, nil
}

// TryFulfilNext переводит первую ожидающую бронь в ready и откладывает под неё экземпляр.
// Возвращает nil, если очередь пуста или свободного экземпляра нет.
func (q *HoldQueue) TryFulfilNext(ctx context.Context, itemID uuid.UUID) (*model.Hold, error) {
	h, err := q.repo.NextWaitingHold(ctx, itemID)
	if errors.Is(err, model.ErrHoldNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	patron, err := q.patrons.GetPatron(ctx, h.PatronID)
	if err != nil {
		return nil, err
	}
	policy, err := q.policies.For(ctx, patron)
	if err != nil {
		return nil, err
	}

	if err := q.inventory.Reserve(ctx, itemID); err != nil {
		if errors.Is(err, model.ErrOutOfStock) {
			return nil, nil
		}
		return nil, err
	}

	position := h.QueuePosition
	if err := h.Promote(q.now(), policy.HoldExpiry()); err != nil {
		return nil, err
	}
	if err := q.repo.UpdateHold(ctx, h); err != nil {
		return nil, err
	}
	if err := q.repo.ShiftQueue(ctx, itemID, position); err != nil {
		return nil, err
	}
	return &h, nil
}

// FulfilAll продвигает очередь, пока есть свободные экземпляры и ожидающие брони.
func (q *HoldQueue) FulfilAll(ctx context.Context, itemID uuid.UUID) ([]model.Hold, error) {
	var promoted []model.Hold
	for {
		h, err := q.TryFulfilNext(ctx, itemID)
		if err != nil {
			return promoted, err
		}
		if h == nil {
			return promoted, nil
		}
		promoted = append(promoted, *h)
	}
}

// Cancel отменяет открытую бронь. Для готовой брони экземпляр возвращается
// в фонд и передаётся следующему в очереди.
func (q *HoldQueue) Cancel(ctx context.Context, h *model.Hold) (*model.Hold, error) {
	wasReady := h.Status == model.HoldStatusReady
	position := h.QueuePosition

	if err := h.Cancel(); err != nil {
		return nil, err
	}
	if err := q.repo.UpdateHold(ctx, *h); err != nil {
		return nil, err
	}

	if !wasReady {
		return nil, q.repo.ShiftQueue(ctx, h.ItemID, position)
	}
	return q.releaseAndAdvance(ctx, h.ItemID)
}

// Expire закрывает готовую бронь с истёкшим сроком. Бронь, которая уже
// не в состоянии ready или ещё не истекла, не трогается.
func (q *HoldQueue) Expire(ctx context.Context, h *model.Hold) (expired bool, promoted *model.Hold, err error) {
	if !h.IsStale(q.now()) {
		return false, nil, nil
	}
	if err := h.Expire(q.now()); err != nil {
		return false, nil, err
	}
	if err := q.repo.UpdateHold(ctx, *h); err != nil {
		return false, nil, err
	}
	promoted, err = q.releaseAndAdvance(ctx, h.ItemID)
	return true, promoted, err
}

// ConsumeReady закрывает готовую бронь читателя выдачей.
// Возвращает true, если под читателя был отложен экземпляр.
func (q *HoldQueue) ConsumeReady(ctx context.Context, patronID, itemID uuid.UUID) (bool, error) {
	h, err := q.repo.FindOpenHold(ctx, patronID, itemID)
	if errors.Is(err, model.ErrHoldNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if h.Status != model.HoldStatusReady {
		return false, nil
	}
	if err := h.Fulfil(); err != nil {
		return false, err
	}
	if err := q.repo.UpdateHold(ctx, h); err != nil {
		return false, err
	}
	return true, nil
}

// Pending возвращает число открытых броней на издание.
func (q *HoldQueue) Pending(ctx context.Context, itemID uuid.UUID) (int, error) {
	return q.repo.CountOpenHolds(ctx, itemID)
}

func (q *HoldQueue) releaseAndAdvance(ctx context.Context, itemID uuid.UUID) (*model.Hold, error) {
	if err := q.inventory.Release(ctx, itemID); err != nil {
		return nil, err
	}
	return q.TryFulfilNext(ctx, itemID)
}
