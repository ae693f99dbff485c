package model

import (
	"time"

	"github.com/google/uuid"
)

// HoldStatus описывает состояние брони.
type HoldStatus string

const (
	HoldStatusWaiting   HoldStatus = "waiting"
	HoldStatusReady     HoldStatus = "ready"
	HoldStatusFulfilled HoldStatus = "fulfilled"
	HoldStatusCancelled HoldStatus = "cancelled"
	HoldStatusExpired   HoldStatus = "expired"
)

// Hold описывает место читателя в очереди на издание.
// QueuePosition имеет смысл только для броней в состоянии waiting.
type Hold struct {
	ID            uuid.UUID
	PatronID      uuid.UUID
	ItemID        uuid.UUID
	PlacedAt      time.Time
	QueuePosition int
	Status        HoldStatus
	ReadySince    *time.Time
	ExpiresAt     *time.Time
}

// NewHold создаёт бронь в конце очереди.
func NewHold(patronID, itemID uuid.UUID, now time.Time, position int) Hold {
	return Hold{
		ID:            uuid.New(),
		PatronID:      patronID,
		ItemID:        itemID,
		PlacedAt:      now,
		QueuePosition: position,
		Status:        HoldStatusWaiting,
	}
}

// IsOpen сообщает, участвует ли бронь в очереди (waiting или ready).
func (h Hold) IsOpen() bool {
	return h.Status == HoldStatusWaiting || h.Status == HoldStatusReady
}

// IsStale сообщает, истёк ли срок хранения готовой брони.
func (h Hold) IsStale(now time.Time) bool {
	return h.Status == HoldStatusReady && h.ExpiresAt != nil && now.After(*h.ExpiresAt)
}

// Promote переводит ожидающую бронь в состояние ready и отводит под неё экземпляр.
func (h *Hold) Promote(now time.Time, expiry time.Duration) error {
	if h.Status != HoldStatusWaiting {
		return ErrInvalidHoldTransition
	}
	expiresAt := now.Add(expiry)
	h.Status = HoldStatusReady
	h.ReadySince = &now
	h.ExpiresAt = &expiresAt
	h.QueuePosition = 0
	return nil
}

// Fulfil закрывает готовую бронь выдачей.
func (h *Hold) Fulfil() error {
	if h.Status != HoldStatusReady {
		return ErrInvalidHoldTransition
	}
	h.Status = HoldStatusFulfilled
	return nil
}

// Cancel отменяет открытую бронь.
func (h *Hold) Cancel() error {
	if !h.IsOpen() {
		return ErrHoldNotOpen
	}
	h.Status = HoldStatusCancelled
	h.QueuePosition = 0
	return nil
}

// Expire закрывает готовую бронь с истёкшим сроком.
func (h *Hold) Expire(now time.Time) error {
	if !h.IsStale(now) {
		return ErrInvalidHoldTransition
	}
	h.Status = HoldStatusExpired
	return nil
}
